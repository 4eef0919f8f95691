package phasecorr

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"octrecon/pkg/parallel"
)

// spectrum is the half-plane 2D spectrum of a real image: rows x (cols/2+1)
// coefficients stored row-major.
type spectrum struct {
	rows, cols, half int
	data             []complex128
}

// fft2D computes the 2D Fourier transform of a real matrix.
// Rows are transformed with a real FFT, which by conjugate symmetry only
// needs cols/2+1 outputs, then each retained column is transformed with a
// complex FFT.
func fft2D(m mat.RawMatrixer, rows, cols, workers int) *spectrum {
	raw := m.RawMatrix()
	half := cols/2 + 1
	s := &spectrum{rows: rows, cols: cols, half: half, data: make([]complex128, rows*half)}

	parallel.For(rows, workers, func() *fourier.FFT { return fourier.NewFFT(cols) },
		func(lo, hi int, fft *fourier.FFT) {
			for r := lo; r < hi; r++ {
				row := raw.Data[r*raw.Stride : r*raw.Stride+cols]
				fft.Coefficients(s.data[r*half:(r+1)*half], row)
			}
		})

	s.columns(workers, false)
	return s
}

// inverse transforms the spectrum back to a real rows x cols grid. The
// result is not normalized.
func (s *spectrum) inverse(workers int) []float64 {
	s.columns(workers, true)

	out := make([]float64, s.rows*s.cols)
	parallel.For(s.rows, workers, func() *fourier.FFT { return fourier.NewFFT(s.cols) },
		func(lo, hi int, fft *fourier.FFT) {
			for r := lo; r < hi; r++ {
				fft.Sequence(out[r*s.cols:(r+1)*s.cols], s.data[r*s.half:(r+1)*s.half])
			}
		})
	return out
}

type columnScratch struct {
	fft     *fourier.CmplxFFT
	in, out []complex128
}

// columns runs a complex FFT down every stored column in place.
func (s *spectrum) columns(workers int, inverse bool) {
	parallel.For(s.half, workers, func() *columnScratch {
		return &columnScratch{
			fft: fourier.NewCmplxFFT(s.rows),
			in:  make([]complex128, s.rows),
			out: make([]complex128, s.rows),
		}
	}, func(lo, hi int, cs *columnScratch) {
		for c := lo; c < hi; c++ {
			for r := 0; r < s.rows; r++ {
				cs.in[r] = s.data[r*s.half+c]
			}
			if inverse {
				cs.fft.Sequence(cs.out, cs.in)
			} else {
				cs.fft.Coefficients(cs.out, cs.in)
			}
			for r := 0; r < s.rows; r++ {
				s.data[r*s.half+c] = cs.out[r]
			}
		}
	})
}
