package visualization

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"octrecon/pkg/calibration"
)

// createTestImage creates a grayscale test image with the given pattern
func createTestImage(width, height int, pattern func(x, y int) uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: pattern(x, y)})
		}
	}
	return img
}

// TestSnapshotKeepsCopy verifies that the sink does not alias the shown image
func TestSnapshotKeepsCopy(t *testing.T) {
	s := NewSnapshot("", 0)
	if _, _, _, err := s.Latest(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Expected ErrEmpty before the first frame, got %v", err)
	}

	img := createTestImage(8, 4, func(x, y int) uint8 { return uint8(x + 10*y) })
	s.Show(img, 3, 20)
	img.Pix[0] = 255

	latest, current, total, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if current != 3 || total != 20 {
		t.Errorf("Expected progress 3/20, got %d/%d", current, total)
	}
	if latest.GrayAt(0, 0).Y != 0 {
		t.Errorf("Expected the stored frame to be a copy, got pixel %d", latest.GrayAt(0, 0).Y)
	}
	if latest.GrayAt(7, 3).Y != 37 {
		t.Errorf("Expected pixel 37, got %d", latest.GrayAt(7, 3).Y)
	}
	if s.Shown() != 1 {
		t.Errorf("Expected 1 frame shown, got %d", s.Shown())
	}
}

// TestSnapshotSubImage verifies that sub-images are stored from their origin
func TestSnapshotSubImage(t *testing.T) {
	s := NewSnapshot("", 0)
	img := createTestImage(8, 8, func(x, y int) uint8 { return uint8(x) })
	s.Show(img.SubImage(image.Rect(2, 2, 6, 6)).(*image.Gray), 0, 0)

	latest, _, _, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.Bounds() != image.Rect(0, 0, 4, 4) {
		t.Fatalf("Expected 4x4 frame, got %v", latest.Bounds())
	}
	if latest.GrayAt(0, 0).Y != 2 {
		t.Errorf("Expected pixel 2, got %d", latest.GrayAt(0, 0).Y)
	}
}

// TestSnapshotRegion verifies region extraction and bounds checks
func TestSnapshotRegion(t *testing.T) {
	s := NewSnapshot("", 0)
	s.Show(createTestImage(10, 10, func(x, y int) uint8 { return uint8(x + y) }), 0, 0)

	region, err := s.Region(image.Rect(2, 3, 5, 7))
	if err != nil {
		t.Fatalf("Region failed: %v", err)
	}
	if region.Bounds() != image.Rect(0, 0, 3, 4) {
		t.Errorf("Expected 3x4 region, got %v", region.Bounds())
	}
	if region.GrayAt(0, 0).Y != 5 {
		t.Errorf("Expected pixel 5, got %d", region.GrayAt(0, 0).Y)
	}

	if _, err := s.Region(image.Rect(8, 8, 12, 12)); err == nil {
		t.Error("Expected error for region outside the frame")
	}
}

// TestSnapshotMeanIntensity verifies the mean over all pixels
func TestSnapshotMeanIntensity(t *testing.T) {
	s := NewSnapshot("", 0)
	if _, err := s.MeanIntensity(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Expected ErrEmpty, got %v", err)
	}
	s.Show(createTestImage(4, 1, func(x, y int) uint8 { return uint8(x * 10) }), 0, 0)

	mean, err := s.MeanIntensity()
	if err != nil {
		t.Fatalf("MeanIntensity failed: %v", err)
	}
	if mean != 15 {
		t.Errorf("Expected mean 15, got %f", mean)
	}
}

// TestSnapshotSave verifies that JPEG and PNG files are written
func TestSnapshotSave(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshot("", 0)
	if err := s.Save(filepath.Join(dir, "empty.png")); !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty, got %v", err)
	}

	s.Show(createTestImage(16, 16, func(x, y int) uint8 { return uint8(x * y) }), 0, 0)
	for _, name := range []string{"frame.jpg", "frame.jpeg", "nested/frame.png"} {
		path := filepath.Join(dir, name)
		if err := s.Save(path); err != nil {
			t.Fatalf("Failed to save %s: %v", name, err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("Failed to open %s: %v", name, err)
		}
		cfg, _, err := image.DecodeConfig(f)
		f.Close()
		if err != nil {
			t.Fatalf("Failed to decode %s: %v", name, err)
		}
		if cfg.Width != 16 || cfg.Height != 16 {
			t.Errorf("Expected 16x16 image in %s, got %dx%d", name, cfg.Width, cfg.Height)
		}
	}

	if err := s.Save(filepath.Join(dir, "frame.bmp")); !errors.Is(err, ErrFormat) {
		t.Errorf("Expected ErrFormat, got %v", err)
	}
}

// TestSnapshotAutosave verifies that every Nth frame is saved
func TestSnapshotAutosave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	s := NewSnapshot(dir, 2)

	img := createTestImage(4, 4, func(x, y int) uint8 { return 100 })
	for i := 0; i < 5; i++ {
		s.Show(img, i, 5)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read snapshot dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 || names[0] != "frame-001.jpg" || names[1] != "frame-003.jpg" {
		t.Errorf("Expected frame-001.jpg and frame-003.jpg, got %v", names)
	}
}

// TestPlotCalibration verifies that both plots are written
func TestPlotCalibration(t *testing.T) {
	bg := make([]float64, 32)
	phase := make([]calibration.PhaseUnit, 32)
	for i := range bg {
		bg[i] = float64(1000 + i*i)
		idx := i * 31 / 32
		phase[i] = calibration.PhaseUnit{Index: idx, Left: 0.75, Right: 0.25}
	}
	data, err := calibration.New(bg, phase)
	if err != nil {
		t.Fatalf("Failed to build calibration: %v", err)
	}

	path := filepath.Join(t.TempDir(), "calib.png")
	if err := PlotCalibration(data, path); err != nil {
		t.Fatalf("PlotCalibration failed: %v", err)
	}
	for _, p := range []string{path, PhasePlotPath(path)} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("Expected plot %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Errorf("Expected non-empty plot %s", p)
		}
	}

	if err := PlotCalibration(nil, path); err == nil {
		t.Error("Expected error for missing calibration")
	}
}

func TestPhasePlotPath(t *testing.T) {
	if got := PhasePlotPath("/out/calib.svg"); got != "/out/calib_phase.svg" {
		t.Errorf("Expected /out/calib_phase.svg, got %s", got)
	}
}
