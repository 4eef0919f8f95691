package reconstruction

import (
	"fmt"
	"math"
)

// Params controls how a frame is reconstructed. A Params value is read once
// per frame, so a change takes effect from the next frame on.
type Params struct {
	// ImageDepth is the number of depth pixels kept from each A-line spectrum.
	ImageDepth int `yaml:"imageDepth" toml:"imageDepth"`

	// NSplits is the number of split-spectrum segments per A-line.
	NSplits int `yaml:"nSplits" toml:"nSplits"`

	// Contrast and Brightness are the log compression gain and shift.
	Contrast   float64 `yaml:"contrast" toml:"contrast"`
	Brightness float64 `yaml:"brightness" toml:"brightness"`

	// PadTop is the number of blank rows added above the rect image before
	// the radial remap.
	PadTop int `yaml:"padTop" toml:"padTop"`

	// ClearTop is the number of leading depth bins left at zero to hide the
	// DC component.
	ClearTop int `yaml:"clearTop" toml:"clearTop"`

	// AdditionalOffset rotates the image by this many columns on top of the
	// alignment offset. The worker consumes it once.
	AdditionalOffset int `yaml:"additionalOffset" toml:"additionalOffset"`
}

// Accepted ranges for the user facing parameters.
const (
	MinSplits           = 1
	MaxSplits           = 5
	MinImageDepth       = 100
	MaxImageDepth       = 1000
	MaxBrightness       = 50
	MaxContrast         = 15
	MaxPadTop           = 625
	MaxAdditionalOffset = 1000
)

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		ImageDepth: 624,
		NSplits:    1,
		Contrast:   9,
		Brightness: 18,
		PadTop:     300,
		ClearTop:   20,
	}
}

// Validate checks every field against its accepted range.
func (p Params) Validate() error {
	switch {
	case p.NSplits < MinSplits || p.NSplits > MaxSplits:
		return fmt.Errorf("%w: nSplits %d not in [%d, %d]", ErrParams, p.NSplits, MinSplits, MaxSplits)
	case p.ImageDepth < MinImageDepth || p.ImageDepth > MaxImageDepth:
		return fmt.Errorf("%w: imageDepth %d not in [%d, %d]", ErrParams, p.ImageDepth, MinImageDepth, MaxImageDepth)
	case p.Brightness < 0 || p.Brightness > MaxBrightness:
		return fmt.Errorf("%w: brightness %g not in [0, %d]", ErrParams, p.Brightness, MaxBrightness)
	case p.Contrast < 0 || p.Contrast > MaxContrast:
		return fmt.Errorf("%w: contrast %g not in [0, %d]", ErrParams, p.Contrast, MaxContrast)
	case p.PadTop < 0 || p.PadTop > MaxPadTop:
		return fmt.Errorf("%w: padTop %d not in [0, %d]", ErrParams, p.PadTop, MaxPadTop)
	case p.ClearTop < 0:
		return fmt.Errorf("%w: clearTop %d is negative", ErrParams, p.ClearTop)
	case p.AdditionalOffset < -MaxAdditionalOffset || p.AdditionalOffset > MaxAdditionalOffset:
		return fmt.Errorf("%w: additionalOffset %d not in [%d, %d]", ErrParams,
			p.AdditionalOffset, -MaxAdditionalOffset, MaxAdditionalOffset)
	}
	return nil
}

// WithSplits returns p with NSplits set to n. ImageDepth and PadTop are
// scaled by old/new so the displayed depth range stays the same.
func (p Params) WithSplits(n int) Params {
	if n < 1 || n == p.NSplits || p.NSplits < 1 {
		if n >= 1 {
			p.NSplits = n
		}
		return p
	}
	fct := float64(p.NSplits) / float64(n)
	p.ImageDepth = int(math.Round(fct * float64(p.ImageDepth)))
	p.PadTop = int(math.Round(fct * float64(p.PadTop)))
	p.NSplits = n
	return p
}

// geometry is the per-frame layout derived from Params and the A-line size.
type geometry struct {
	nLines    int
	splits    int
	splitSize int
	depth     int
	clearTop  int
}

func newGeometry(p Params, aLineSize, nLines int) geometry {
	g := geometry{nLines: nLines, splits: p.NSplits}
	if g.splits < 1 {
		g.splits = 1
	}
	if g.splits > aLineSize/2 {
		g.splits = max(1, aLineSize/2)
	}
	g.splitSize = aLineSize / g.splits

	g.depth = min(max(p.ImageDepth, 1), g.splitSize/2+1)
	g.clearTop = min(max(p.ClearTop, 0), g.depth)
	return g
}
