// Package calibration holds the per-acquisition correction data used by the
// reconstruction engine: a background spectrum and a k-space linearization
// table.
//
// A Data value is never modified after construction. Updating the
// calibration, including a live background refresh, always builds a new Data
// and publishes it through a Store, so a reconstruction in flight keeps
// reading the instance it started with.
package calibration

import (
	"errors"
	"fmt"
)

var (
	// ErrLength is returned when the background and phase table lengths differ
	// from each other or from the expected A-line size.
	ErrLength = errors.New("calibration: length mismatch")

	// ErrIndex is returned when a phase table entry points outside the A-line.
	ErrIndex = errors.New("calibration: phase index out of range")

	// ErrNotInstalled is returned when a refresh is requested before any
	// calibration has been published.
	ErrNotInstalled = errors.New("calibration: none installed")
)

// PhaseUnit is one entry of the linearization table. Output sample i reads
// input[Index] and input[Index+1], weighted by Left and Right of the entry at
// position Index.
type PhaseUnit struct {
	Index int
	Left  float64
	Right float64
}

// Data is an immutable calibration instance.
type Data struct {
	background []float64
	phase      []PhaseUnit
}

// New validates and copies the given tables into a new Data.
func New(background []float64, phase []PhaseUnit) (*Data, error) {
	if len(background) == 0 || len(background) != len(phase) {
		return nil, fmt.Errorf("%w: background %d, phase %d", ErrLength, len(background), len(phase))
	}
	for i, u := range phase {
		if u.Index < 0 || u.Index >= len(phase) {
			return nil, fmt.Errorf("%w: entry %d has index %d (A-line size %d)", ErrIndex, i, u.Index, len(phase))
		}
	}
	return &Data{
		background: append([]float64(nil), background...),
		phase:      append([]PhaseUnit(nil), phase...),
	}, nil
}

// Identity returns a calibration with a zero background and a phase table
// that leaves samples where they are.
func Identity(aLineSize int) *Data {
	d := &Data{
		background: make([]float64, aLineSize),
		phase:      make([]PhaseUnit, aLineSize),
	}
	for i := range d.phase {
		d.phase[i] = PhaseUnit{Index: i, Left: 1}
	}
	return d
}

// Len returns the A-line size the calibration was built for.
func (d *Data) Len() int {
	return len(d.background)
}

// Background returns the background spectrum. Callers must not modify it.
func (d *Data) Background() []float64 {
	return d.background
}

// Phase returns the linearization table. Callers must not modify it.
func (d *Data) Phase() []PhaseUnit {
	return d.phase
}

// WithBackground returns a new instance with the given background and the
// same phase table.
func (d *Data) WithBackground(background []float64) (*Data, error) {
	if len(background) != len(d.phase) {
		return nil, fmt.Errorf("%w: background %d, phase %d", ErrLength, len(background), len(d.phase))
	}
	return &Data{
		background: append([]float64(nil), background...),
		phase:      d.phase,
	}, nil
}
