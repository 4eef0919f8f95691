package reconstruction

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"octrecon/pkg/calibration"
)

// lineScratch is the private working state of one parallel task. The FFT
// plan keeps internal work buffers and must not be shared.
type lineScratch struct {
	fft       *fourier.FFT
	corrected []float64
	linear    []float64
	windowed  []float64
	coeff     []complex128
}

func newLineScratch(aLineSize, splitSize int) *lineScratch {
	return &lineScratch{
		fft:       fourier.NewFFT(splitSize),
		corrected: make([]float64, aLineSize),
		linear:    make([]float64, aLineSize),
		windowed:  make([]float64, splitSize),
		coeff:     make([]complex128, splitSize/2+1),
	}
}

// lineParams bundles the read-only inputs shared by every line of a frame.
type lineParams struct {
	cal        *calibration.Data
	window     []float64
	geom       geometry
	contrast   float64
	brightness float64
}

// reconstruct turns one A-line of raw samples into geom.depth log-compressed
// depth values accumulated over all split segments.
func (s *lineScratch) reconstruct(out []float64, fringe []uint16, lp *lineParams) {
	background := lp.cal.Background()
	for i, v := range fringe {
		s.corrected[i] = float64(v) - background[i]
	}

	s.linearize(lp.cal.Phase())

	for i := range out {
		out[i] = 0
	}
	size := lp.geom.splitSize
	for k := 0; k < lp.geom.splits; k++ {
		floats.MulTo(s.windowed, lp.window, s.linear[k*size:(k+1)*size])
		s.fft.Coefficients(s.coeff, s.windowed)
		logCompressAdd(out, s.coeff, size, lp.contrast, lp.brightness, lp.geom.clearTop)
	}
}

// linearize resamples the corrected spectrum onto a uniform k grid. Entry i
// names the source sample; the interpolation weights are those stored at the
// entry of that sample. The last output sample is always zero.
func (s *lineScratch) linearize(phase []calibration.PhaseUnit) {
	n := len(s.corrected)
	for i := 0; i < n-1; i++ {
		idx := phase[i].Index
		unit := phase[idx]
		v := s.corrected[idx] * unit.Left
		if idx+1 < n {
			v += s.corrected[idx+1] * unit.Right
		}
		s.linear[i] = v
	}
	s.linear[n-1] = 0
}

// logCompress maps one spectral coefficient of an n-point transform to a
// display intensity in [0, 255].
func logCompress(c complex128, n int, contrast, brightness float64) float64 {
	re, im := real(c), imag(c)
	v := contrast * (10*math.Log10(re*re+im*im) + brightness + 20*math.Log10(1/float64(n)))
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 255:
		return 255
	}
	return v
}

// logCompressAdd accumulates the compressed magnitude of coeff into out,
// leaving the first clearTop bins untouched.
func logCompressAdd(out []float64, coeff []complex128, n int, contrast, brightness float64, clearTop int) {
	for i := clearTop; i < len(out); i++ {
		out[i] += logCompress(coeff[i], n, contrast, brightness)
	}
}

// hamming returns the n-point window 0.54 - 0.46·cos(2πi/n).
func hamming(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}
