package models

import (
	"image"
)

// FrameSlot is one reusable record of the exchange buffer. The producer fills
// Fringe and Index; the reconstruction worker writes the three images.
type FrameSlot struct {
	// Fringe holds linesPerFrame*ALineSize raw detector samples
	Fringe []uint16

	// Index is the frame number within the current sequence
	Index int

	// Rect is the depth-major B-scan (rows = depth, cols = A-lines)
	Rect *image.Gray

	// Radial is the polar-remapped disc image
	Radial *image.Gray

	// Combined is Radial on the left and Rect in the top-right corner
	Combined *image.Gray
}

// Resize sets the fringe length to samples, reusing the existing backing
// array when it is large enough. Newly exposed samples are zeroed.
func (s *FrameSlot) Resize(samples int) {
	if samples < 0 {
		samples = 0
	}
	old := len(s.Fringe)
	if samples <= cap(s.Fringe) {
		s.Fringe = s.Fringe[:samples]
	} else {
		grown := make([]uint16, samples)
		copy(grown, s.Fringe)
		s.Fringe = grown
	}
	for i := old; i < samples; i++ {
		s.Fringe[i] = 0
	}
}

// Populated reports whether the slot carries fringe samples.
func (s *FrameSlot) Populated() bool {
	return len(s.Fringe) > 0
}

// ReuseGray returns dst if it already has the requested size, otherwise a
// freshly allocated image. The returned pixels are not cleared.
func ReuseGray(dst *image.Gray, width, height int) *image.Gray {
	if dst != nil && dst.Rect.Dx() == width && dst.Rect.Dy() == height && dst.Rect.Min == (image.Point{}) {
		return dst
	}
	return image.NewGray(image.Rect(0, 0, width, height))
}
