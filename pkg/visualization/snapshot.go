// Package visualization holds headless display sinks and diagnostic plots.
package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"octrecon/pkg/logging"
)

var (
	// ErrEmpty is returned when no frame has been shown yet.
	ErrEmpty = errors.New("visualization: no frame shown yet")

	// ErrFormat is returned for unsupported image file extensions.
	ErrFormat = errors.New("visualization: unsupported image format")
)

// Snapshot is a display sink that keeps a copy of the latest frame and can
// write it to disk, optionally every N frames.
type Snapshot struct {
	mu      sync.Mutex
	img     *image.Gray
	current int
	total   int
	shown   int

	// autosave directory and period, disabled when every <= 0
	dir   string
	every int

	log zerolog.Logger
}

// NewSnapshot creates a snapshot sink. When every > 0, every Nth frame is
// also saved into dir as frame-<index>.jpg.
func NewSnapshot(dir string, every int) *Snapshot {
	return &Snapshot{dir: dir, every: every, log: logging.Component("display")}
}

// Show stores a copy of combined along with the progress counters.
func (s *Snapshot) Show(combined *image.Gray, current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := combined.Bounds()
	if s.img == nil || s.img.Bounds() != b.Sub(b.Min) {
		s.img = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(s.img, s.img.Bounds(), combined, b.Min, draw.Src)
	s.current, s.total = current, total
	s.shown++

	if s.every > 0 && s.dir != "" && s.shown%s.every == 0 {
		path := filepath.Join(s.dir, fmt.Sprintf("frame-%03d.jpg", current))
		if err := s.save(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("snapshot autosave failed")
		}
	}
}

// Latest returns a copy of the latest frame and its progress counters.
func (s *Snapshot) Latest() (*image.Gray, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return nil, 0, 0, ErrEmpty
	}
	cp := image.NewGray(s.img.Bounds())
	copy(cp.Pix, s.img.Pix)
	return cp, s.current, s.total, nil
}

// Shown returns how many frames were received.
func (s *Snapshot) Shown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown
}

// Region returns a copy of part of the latest frame.
func (s *Snapshot) Region(r image.Rectangle) (*image.Gray, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return nil, ErrEmpty
	}
	if r.Empty() || !r.In(s.img.Bounds()) {
		return nil, fmt.Errorf("region %v outside frame %v", r, s.img.Bounds())
	}
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), s.img, r.Min, draw.Src)
	return out, nil
}

// MeanIntensity returns the mean pixel value of the latest frame.
func (s *Snapshot) MeanIntensity() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return 0, ErrEmpty
	}
	values := make([]float64, len(s.img.Pix))
	for i, v := range s.img.Pix {
		values[i] = float64(v)
	}
	return stat.Mean(values, nil), nil
}

// Save writes the latest frame to path. The format follows the extension:
// .jpg/.jpeg (quality 90) or .png.
func (s *Snapshot) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(path)
}

func (s *Snapshot) save(path string) error {
	if s.img == nil {
		return ErrEmpty
	}
	return SaveImage(s.img, path)
}

// SaveImage writes img to path as JPEG (quality 90) or PNG depending on the
// extension, creating the parent directory when needed.
func SaveImage(img image.Image, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		return fmt.Errorf("%w: %q", ErrFormat, ext)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if ext == ".png" {
		err = png.Encode(file, img)
	} else {
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}
