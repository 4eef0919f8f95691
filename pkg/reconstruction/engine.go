// Package reconstruction turns raw swept-source fringe frames into
// rectangular and radial B-scan images.
//
// The reconstruction runs the following steps:
// 1. Background subtraction and k-space linearization of every A-line
// 2. Split-spectrum windowed FFTs with log compression, accumulated per line
// 3. Transpose to a depth-major image
// 4. Distortion correction for probes that record more lines than one revolution
// 5. Alignment against the previous frame
// 6. Conversion to 8-bit
//
// Radial remaps a rect image onto the circular scan geometry.
package reconstruction

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"octrecon/internal/models"
	"octrecon/pkg/calibration"
	"octrecon/pkg/logging"
	"octrecon/pkg/parallel"
)

// Options configures an Engine.
type Options struct {
	// Workers bounds the goroutines used per frame; 0 selects NumCPU.
	Workers int

	// Probes maps physical to theoretical line counts. Nil selects
	// DefaultProbes.
	Probes ProbeTable

	// Logger receives debug output. The zero value selects the package
	// logger.
	Logger *zerolog.Logger
}

// Offsets reports the corrections applied to the most recent frame.
type Offsets struct {
	// Distortion is the measured revolution overlap in columns
	Distortion int
	// Alignment is the measured shift against the previous frame
	Alignment int
	// Aligned is false when no previous frame of the same size existed
	Aligned bool
}

// Engine reconstructs frames one at a time. It keeps the previous frame for
// alignment, so an Engine must not be shared by concurrent reconstructions.
type Engine struct {
	workers int
	probes  ProbeTable
	log     zerolog.Logger

	// Hamming windows by segment length
	windows map[int][]float64

	// previous rect frame, post alignment
	prev *mat.Dense

	mu   sync.Mutex
	last Offsets
}

// NewEngine creates an engine with the given options.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		workers: parallel.Workers(opts.Workers),
		probes:  opts.Probes,
		windows: make(map[int][]float64),
	}
	if e.probes == nil {
		e.probes = DefaultProbes()
	}
	if opts.Logger != nil {
		e.log = *opts.Logger
	} else {
		e.log = logging.Component("engine")
	}
	return e
}

// Rect reconstructs the depth-major B-scan of one frame into dst, reusing it
// when it already has the right size. Each A-line is background corrected,
// linearized in k, split into NSplits windowed segments whose log spectra are
// summed, then the frame is transposed, distortion corrected and aligned to
// the previous frame.
//
// Parameters:
//   - dst: Image to reuse for the result, may be nil
//   - cal: Calibration built for aLineSize
//   - fringe: Raw samples, a whole number of aLineSize A-lines
//   - aLineSize: Number of samples per A-line
//   - p: Reconstruction parameters for this frame
//
// Returns:
//   - An 8-bit image with one column per A-line and one row per depth bin
//   - ErrFringeSize, ErrNoCalibration or ErrCalibrationSize when the inputs
//     do not fit together
func (e *Engine) Rect(dst *image.Gray, cal *calibration.Data, fringe []uint16, aLineSize int, p Params) (*image.Gray, error) {
	if aLineSize <= 1 || len(fringe) == 0 || len(fringe)%aLineSize != 0 {
		return nil, fmt.Errorf("%w: %d samples, A-line size %d", ErrFringeSize, len(fringe), aLineSize)
	}
	if cal == nil {
		return nil, ErrNoCalibration
	}
	if cal.Len() != aLineSize {
		return nil, fmt.Errorf("%w: calibration %d, A-line size %d", ErrCalibrationSize, cal.Len(), aLineSize)
	}

	g := newGeometry(p, aLineSize, len(fringe)/aLineSize)
	lp := &lineParams{
		cal:        cal,
		window:     e.window(g.splitSize),
		geom:       g,
		contrast:   p.Contrast,
		brightness: p.Brightness,
	}

	// Line-major working image, one row per A-line.
	lines := mat.NewDense(g.nLines, g.depth, nil)
	raw := lines.RawMatrix()
	parallel.For(g.nLines, e.workers,
		func() *lineScratch { return newLineScratch(aLineSize, g.splitSize) },
		func(lo, hi int, s *lineScratch) {
			for j := lo; j < hi; j++ {
				out := raw.Data[j*raw.Stride : j*raw.Stride+g.depth]
				s.reconstruct(out, fringe[j*aLineSize:(j+1)*aLineSize], lp)
			}
		})

	img := mat.DenseCopyOf(lines.T())

	img, distortion, err := e.correctDistortion(img)
	if err != nil {
		return nil, err
	}
	alignment, aligned, err := e.align(img, p.AdditionalOffset)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.last = Offsets{Distortion: distortion, Alignment: alignment, Aligned: aligned}
	e.mu.Unlock()
	e.log.Debug().
		Int("lines", g.nLines).
		Int("depth", g.depth).
		Int("splits", g.splits).
		Int("distortion", distortion).
		Int("alignment", alignment).
		Msg("frame reconstructed")

	rows, cols := img.Dims()
	dst = models.ReuseGray(dst, cols, rows)
	toGray(dst, img)
	return dst, nil
}

// LastOffsets returns the corrections applied to the most recent frame.
func (e *Engine) LastOffsets() Offsets {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Reset forgets the previous frame, so the next frame is not aligned.
func (e *Engine) Reset() {
	e.prev = nil
	e.mu.Lock()
	e.last = Offsets{}
	e.mu.Unlock()
}

func (e *Engine) window(n int) []float64 {
	w, ok := e.windows[n]
	if !ok {
		w = hamming(n)
		e.windows[n] = w
	}
	return w
}

// toGray converts m to 8-bit with rounding and saturation.
func toGray(dst *image.Gray, m *mat.Dense) {
	rows, cols := m.Dims()
	raw := m.RawMatrix()
	for r := 0; r < rows; r++ {
		src := raw.Data[r*raw.Stride : r*raw.Stride+cols]
		out := dst.Pix[r*dst.Stride : r*dst.Stride+cols]
		for c, v := range src {
			out[c] = saturate(v)
		}
	}
}

func saturate(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.RoundToEven(v))
}
