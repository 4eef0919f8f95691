package reconstruction

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"octrecon/pkg/phasecorr"
)

// ProbeTable maps the number of physical A-lines per frame to the number of
// lines in one revolution of the probe. Frames whose line count is not in the
// table are left uncorrected.
type ProbeTable map[int]int

// DefaultProbes returns the table for the supported probes: the in vivo
// probe records 2200 lines for a 2000 line revolution, the ex vivo probe
// (2500 lines) needs no correction.
func DefaultProbes() ProbeTable {
	return ProbeTable{2200: 2000}
}

// correctDistortion trims the overlapping tail of a depth-major image and
// stretches the remaining columns to exactly one revolution. It returns the
// corrected image and the measured overlap offset.
func (e *Engine) correctDistortion(m *mat.Dense) (*mat.Dense, int, error) {
	rows, physical := m.Dims()
	theoretical, ok := e.probes[physical]
	if !ok || theoretical <= 0 || theoretical >= physical {
		return m, 0, nil
	}

	corrWidth := physical - theoretical
	if corrWidth > theoretical {
		return nil, 0, fmt.Errorf("probe %d->%d: overlap wider than one revolution", physical, theoretical)
	}
	first := m.Slice(0, rows, 0, corrWidth).(*mat.Dense)
	last := m.Slice(0, rows, theoretical, physical).(*mat.Dense)
	offset, err := phasecorr.Offset(first, last, e.workers)
	if err != nil {
		return nil, 0, fmt.Errorf("error measuring distortion offset: %w", err)
	}

	width := min(max(theoretical+offset, 1), physical)
	out := mat.NewDense(rows, theoretical, nil)
	resizeColumns(out, m.Slice(0, rows, 0, width).(*mat.Dense))
	return out, offset, nil
}

// resizeColumns linearly resamples src horizontally into dst, which must have
// the same number of rows. Pixel centers are aligned, matching the usual
// half-pixel convention of image resizers.
func resizeColumns(dst, src *mat.Dense) {
	rows, dstCols := dst.Dims()
	_, srcCols := src.Dims()
	scale := float64(srcCols) / float64(dstCols)

	x0 := make([]int, dstCols)
	x1 := make([]int, dstCols)
	frac := make([]float64, dstCols)
	for x := range x0 {
		sx := (float64(x)+0.5)*scale - 0.5
		i := int(math.Floor(sx))
		f := sx - float64(i)
		if i < 0 {
			i, f = 0, 0
		}
		if i >= srcCols-1 {
			i, f = srcCols-1, 0
		}
		x0[x] = i
		x1[x] = min(i+1, srcCols-1)
		frac[x] = f
	}

	sr := src.RawMatrix()
	dr := dst.RawMatrix()
	for r := 0; r < rows; r++ {
		srow := sr.Data[r*sr.Stride : r*sr.Stride+srcCols]
		drow := dr.Data[r*dr.Stride : r*dr.Stride+dstCols]
		for x := range drow {
			drow[x] = srow[x0[x]]*(1-frac[x]) + srow[x1[x]]*frac[x]
		}
	}
}
