// Package phasecorr estimates the translation between two equally sized
// images from the peak of their normalized cross-power spectrum.
package phasecorr

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when the inputs are empty or differ in size.
var ErrShape = errors.New("phasecorr: inputs must be non-empty and equally sized")

// epsilon below which a cross-power magnitude is treated as zero
const epsilon = 1e-12

// centroidRadius is the half-width of the window used to refine the peak
const centroidRadius = 2

// Correlate returns the shift (dx, dy) that moves a onto b, so that
// b(x, y) ≈ a(x-dx, y-dy) with circular boundaries. The estimate is refined
// to sub-pixel precision with a weighted centroid around the peak.
//
// Parameters:
//   - a: Reference image
//   - b: Shifted image, same size as a
//   - workers: Goroutines used by the transforms; 0 selects NumCPU
//
// Returns:
//   - dx, dy: Signed shift in pixels, within half the image size
//   - ErrShape if an input is empty or the sizes differ
func Correlate(a, b *mat.Dense, workers int) (dx, dy float64, err error) {
	if a == nil || b == nil || a.IsEmpty() || b.IsEmpty() {
		return 0, 0, ErrShape
	}
	rows, cols := a.Dims()
	if br, bc := b.Dims(); br != rows || bc != cols {
		return 0, 0, ErrShape
	}

	fa := fft2D(a, rows, cols, workers)
	fb := fft2D(b, rows, cols, workers)

	// Normalized cross-power spectrum A·conj(B)/|A·conj(B)|, stored in fa.
	for i, va := range fa.data {
		p := va * cmplx.Conj(fb.data[i])
		mag := cmplx.Abs(p)
		if mag < epsilon {
			fa.data[i] = 0
			continue
		}
		fa.data[i] = p / complex(mag, 0)
	}

	surface := fa.inverse(workers)
	px, py := peak(surface, rows, cols)
	cx, cy := centroid(surface, rows, cols, px, py)

	// The correlation peak of A·conj(B) sits at minus the displacement.
	return -cx, -cy, nil
}

// Offset is Correlate rounded to whole pixels along x.
func Offset(a, b *mat.Dense, workers int) (int, error) {
	dx, _, err := Correlate(a, b, workers)
	if err != nil {
		return 0, err
	}
	return int(math.Round(dx)), nil
}

// peak returns the index of the largest value. Ties keep the first index so
// a flat surface reports zero shift.
func peak(surface []float64, rows, cols int) (int, int) {
	best := math.Inf(-1)
	bestIdx := 0
	for i, v := range surface {
		if v > best {
			best = v
			bestIdx = i
		}
	}
	return bestIdx % cols, bestIdx / cols
}

// centroid refines the peak with a weighted centroid over a small window,
// wrapping at the borders, and returns signed coordinates in
// (-n/2, n/2].
func centroid(surface []float64, rows, cols, px, py int) (float64, float64) {
	rx := windowRadius(cols)
	ry := windowRadius(rows)

	var sum, sx, sy float64
	for oy := -ry; oy <= ry; oy++ {
		y := wrap(py+oy, rows)
		for ox := -rx; ox <= rx; ox++ {
			x := wrap(px+ox, cols)
			w := surface[y*cols+x]
			if w <= 0 {
				continue
			}
			sum += w
			sx += w * float64(ox)
			sy += w * float64(oy)
		}
	}

	fx := float64(signed(px, cols))
	fy := float64(signed(py, rows))
	if sum > 0 {
		fx += sx / sum
		fy += sy / sum
	}
	return fx, fy
}

func windowRadius(n int) int {
	r := (n - 1) / 2
	if r > centroidRadius {
		r = centroidRadius
	}
	return r
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}

func signed(i, n int) int {
	if i > n/2 {
		return i - n
	}
	return i
}
