package calibration

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// FrameReader is the subset of a recorded fringe source needed to average a
// background from it.
type FrameReader interface {
	Len() int
	SamplesPerFrame() int
	Read(start, n int, dst []uint16) error
}

// AverageBackground returns the per-sample mean over every A-line in fringe.
func AverageBackground(fringe []uint16, aLineSize int) ([]float64, error) {
	if aLineSize <= 0 || len(fringe) == 0 || len(fringe)%aLineSize != 0 {
		return nil, fmt.Errorf("%w: %d samples is not a whole number of %d-sample A-lines",
			ErrLength, len(fringe), aLineSize)
	}
	nLines := len(fringe) / aLineSize

	acc := make([]float64, aLineSize)
	line := make([]float64, aLineSize)
	for j := 0; j < nLines; j++ {
		offset := j * aLineSize
		for i := range line {
			line[i] = float64(fringe[offset+i])
		}
		floats.Add(acc, line)
	}
	floats.Scale(1/float64(nLines), acc)
	return acc, nil
}

// BackgroundFromReader averages the first nFrames frames of r. nFrames is
// clamped to the number of frames available.
func BackgroundFromReader(r FrameReader, aLineSize, nFrames int) ([]float64, error) {
	if nFrames > r.Len() {
		nFrames = r.Len()
	}
	if nFrames < 1 {
		return nil, errors.New("calibration: no frames to average")
	}

	fringe := make([]uint16, r.SamplesPerFrame()*nFrames)
	if err := r.Read(0, nFrames, fringe); err != nil {
		return nil, fmt.Errorf("error reading background frames: %w", err)
	}
	return AverageBackground(fringe, aLineSize)
}
