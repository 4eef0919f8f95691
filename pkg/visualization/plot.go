package visualization

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"octrecon/pkg/calibration"
)

// PlotCalibration renders the background spectrum and the linearization
// table of d into two images next to each other: <path> for the background
// and <stem>_phase<ext> for the table. The format follows the extension
// (png, svg, pdf, ...).
func PlotCalibration(d *calibration.Data, path string) error {
	if d == nil || d.Len() == 0 {
		return fmt.Errorf("no calibration to plot")
	}

	bgPts := make(plotter.XYs, d.Len())
	for i, v := range d.Background() {
		bgPts[i] = plotter.XY{X: float64(i), Y: v}
	}

	// Index offset and interpolation weight of every output sample.
	shiftPts := make(plotter.XYs, d.Len())
	rightPts := make(plotter.XYs, d.Len())
	for i, u := range d.Phase() {
		shiftPts[i] = plotter.XY{X: float64(i), Y: float64(u.Index - i)}
		rightPts[i] = plotter.XY{X: float64(i), Y: u.Right}
	}

	pBg := plot.New()
	pBg.Title.Text = "Background spectrum"
	pBg.X.Label.Text = "Sample"
	pBg.Y.Label.Text = "Counts"
	bgLine, err := plotter.NewLine(bgPts)
	if err != nil {
		return err
	}
	bgLine.Width = vg.Points(1)
	pBg.Add(bgLine, plotter.NewGrid())

	pPhase := plot.New()
	pPhase.Title.Text = "k-space linearization"
	pPhase.X.Label.Text = "Output sample"
	pPhase.Y.Label.Text = "Index shift"
	shiftLine, err := plotter.NewLine(shiftPts)
	if err != nil {
		return err
	}
	shiftLine.Width = vg.Points(1)
	shiftLine.Color = color.RGBA{R: 200, A: 255}
	weightScatter, err := plotter.NewScatter(rightPts)
	if err != nil {
		return err
	}
	weightScatter.GlyphStyle.Shape = draw.CircleGlyph{}
	weightScatter.GlyphStyle.Radius = vg.Points(0.5)
	pPhase.Add(shiftLine, weightScatter, plotter.NewGrid())
	pPhase.Legend.Add("index - sample", shiftLine)
	pPhase.Legend.Add("right weight", weightScatter)
	pPhase.Legend.Top = true

	if err := pBg.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save background plot: %w", err)
	}
	if err := pPhase.Save(14*vg.Inch, 6*vg.Inch, PhasePlotPath(path)); err != nil {
		return fmt.Errorf("failed to save phase plot: %w", err)
	}
	return nil
}

// PhasePlotPath returns the path PlotCalibration uses for the table plot.
func PhasePlotPath(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + "_phase" + ext
}
