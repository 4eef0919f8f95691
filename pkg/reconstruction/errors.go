package reconstruction

import "errors"

var (
	// ErrFringeSize is returned when the fringe is empty or not a whole
	// number of A-lines.
	ErrFringeSize = errors.New("reconstruction: fringe is not a whole number of A-lines")

	// ErrNoCalibration is returned when Rect is called without calibration.
	ErrNoCalibration = errors.New("reconstruction: no calibration")

	// ErrCalibrationSize is returned when the calibration was built for a
	// different A-line size.
	ErrCalibrationSize = errors.New("reconstruction: calibration does not match the A-line size")

	// ErrParams is returned by Params.Validate.
	ErrParams = errors.New("reconstruction: parameter out of range")
)
