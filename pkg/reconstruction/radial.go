package reconstruction

import (
	"image"
	"math"

	"octrecon/internal/models"
	"octrecon/pkg/parallel"
)

// Radial maps a depth-major rect image onto the circular scan geometry.
//
// padTop blank rows are added above rect, then the padded image is treated
// as a polar image with one column per angle and one row per radius step. The
// output is a square of side 2·dim, dim = min(rows, cols) of the padded
// image, centred on (dim, dim) with a maximum radius of dim. Pixels outside
// the disc are 0 and the result is mirrored horizontally.
//
// Parameters:
//   - dst: Image to reuse for the result, may be nil
//   - rect: Depth-major image as returned by Rect
//   - padTop: Number of blank rows added above rect, negative means none
//
// Returns:
//   - The square radial image, empty when rect is empty
func (e *Engine) Radial(dst, rect *image.Gray, padTop int) *image.Gray {
	padTop = max(padTop, 0)
	b := rect.Bounds()
	depth, angles := b.Dy(), b.Dx()
	rows := depth + padTop

	dim := min(rows, angles)
	if depth == 0 || dim == 0 {
		return models.ReuseGray(dst, 0, 0)
	}
	size := 2 * dim
	dst = models.ReuseGray(dst, size, size)

	src := polarSource{
		pix:    rect.Pix[rect.PixOffset(b.Min.X, b.Min.Y):],
		stride: rect.Stride,
		padTop: padTop,
		rows:   rows,
		angles: angles,
	}
	kMag := float64(rows) / float64(dim)
	kAngle := float64(angles) / (2 * math.Pi)
	center := float64(dim)

	parallel.For(size, e.workers, func() struct{} { return struct{}{} },
		func(lo, hi int, _ struct{}) {
			for y := lo; y < hi; y++ {
				dy := float64(y) - center
				out := dst.Pix[y*dst.Stride : y*dst.Stride+size]
				for x := 0; x < size; x++ {
					dx := float64(x) - center
					phi := math.Atan2(dy, dx)
					if phi < 0 {
						phi += 2 * math.Pi
					}
					v := src.bilinear(math.Hypot(dx, dy)*kMag, phi*kAngle)
					out[size-1-x] = saturate(v)
				}
			}
		})
	return dst
}

// polarSource samples the padded rect image with radius along the padded
// rows and angle along the columns.
type polarSource struct {
	pix    []uint8
	stride int
	padTop int
	rows   int
	angles int
}

// at returns the pixel at padded row r and column a. Radii outside the
// image are 0; angles wrap around.
func (s polarSource) at(r, a int) float64 {
	if r < s.padTop || r >= s.rows {
		return 0
	}
	a = ((a % s.angles) + s.angles) % s.angles
	return float64(s.pix[(r-s.padTop)*s.stride+a])
}

func (s polarSource) bilinear(radius, angle float64) float64 {
	if radius < -1 || radius >= float64(s.rows) {
		return 0
	}
	r0 := int(math.Floor(radius))
	a0 := int(math.Floor(angle))
	fr := radius - float64(r0)
	fa := angle - float64(a0)

	top := s.at(r0, a0)*(1-fa) + s.at(r0, a0+1)*fa
	bottom := s.at(r0+1, a0)*(1-fa) + s.at(r0+1, a0+1)*fa
	return top*(1-fr) + bottom*fr
}
