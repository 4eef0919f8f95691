package worker

import (
	"image"

	"golang.org/x/image/draw"

	"octrecon/internal/models"
)

// Combine lays out radial on the left and rect in the top-right corner of
// dst, clipped to the radial height. The rest of dst is zero.
func Combine(dst, radial, rect *image.Gray) *image.Gray {
	rb, tb := radial.Bounds(), rect.Bounds()
	height := rb.Dy()
	width := rb.Dx() + tb.Dx()

	dst = models.ReuseGray(dst, width, height)
	clear(dst.Pix)

	draw.Copy(dst, image.Point{}, radial, rb, draw.Src, nil)
	draw.Copy(dst, image.Pt(rb.Dx(), 0), rect, tb, draw.Src, nil)
	return dst
}
