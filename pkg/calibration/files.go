package calibration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Default file names inside a calibration directory.
const (
	BackgroundFileName = "SSOCTBackground.txt"
	PhaseFileName      = "SSOCTCalibration180MHZ.txt"
)

// Load reads a background file and a phase file for the given A-line size.
//
// The background file holds aLineSize whitespace-separated numbers. The phase
// file holds aLineSize "index left right" triples ordered by output sample.
// Values beyond aLineSize are ignored; fewer values is an error.
func Load(aLineSize int, backgroundFile, phaseFile string) (*Data, error) {
	background, err := readBackground(backgroundFile, aLineSize)
	if err != nil {
		return nil, err
	}
	phase, err := readPhase(phaseFile, aLineSize)
	if err != nil {
		return nil, err
	}
	return New(background, phase)
}

// LoadDir loads the default-named calibration files from dir.
func LoadDir(aLineSize int, dir string) (*Data, error) {
	return Load(aLineSize,
		filepath.Join(dir, BackgroundFileName),
		filepath.Join(dir, PhaseFileName))
}

// HasFiles reports whether dir contains both default-named calibration files.
func HasFiles(dir string) bool {
	for _, name := range []string{BackgroundFileName, PhaseFileName} {
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// Save writes d to dir using the default file names, creating dir if needed.
func (d *Data) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating calibration directory: %w", err)
	}

	var bg strings.Builder
	for _, v := range d.background {
		bg.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		bg.WriteByte('\n')
	}
	if err := os.WriteFile(filepath.Join(dir, BackgroundFileName), []byte(bg.String()), 0644); err != nil {
		return fmt.Errorf("error writing background file: %w", err)
	}

	var ph strings.Builder
	for _, u := range d.phase {
		fmt.Fprintf(&ph, "%d %s %s\n", u.Index,
			strconv.FormatFloat(u.Left, 'g', -1, 64),
			strconv.FormatFloat(u.Right, 'g', -1, 64))
	}
	if err := os.WriteFile(filepath.Join(dir, PhaseFileName), []byte(ph.String()), 0644); err != nil {
		return fmt.Errorf("error writing phase file: %w", err)
	}
	return nil
}

func readBackground(path string, n int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening background file: %w", err)
	}
	defer f.Close()

	values, err := readFloats(f, n)
	if err != nil {
		return nil, fmt.Errorf("error reading background file %s: %w", path, err)
	}
	return values, nil
}

func readPhase(path string, n int) ([]PhaseUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening phase file: %w", err)
	}
	defer f.Close()

	values, err := readFloats(f, 3*n)
	if err != nil {
		return nil, fmt.Errorf("error reading phase file %s: %w", path, err)
	}

	phase := make([]PhaseUnit, n)
	for i := range phase {
		idx := values[3*i]
		if idx != float64(int(idx)) {
			return nil, fmt.Errorf("%w: entry %d has non-integer index %v", ErrIndex, i, idx)
		}
		phase[i] = PhaseUnit{Index: int(idx), Left: values[3*i+1], Right: values[3*i+2]}
	}
	return phase, nil
}

// readFloats reads exactly n whitespace-separated numbers from r.
func readFloats(r io.Reader, n int) ([]float64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	values := make([]float64, 0, n)
	for len(values) < n && scanner.Scan() {
		v, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", len(values), err)
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(values) < n {
		return nil, fmt.Errorf("%w: expected %d values, found %d", ErrLength, n, len(values))
	}
	return values, nil
}
