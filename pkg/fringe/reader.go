// Package fringe reads recorded swept-source fringe data and replays it into
// the frame exchange buffer.
//
// Two layouts are supported. A sequence directory holds a series of .dat
// files with whole frames each. A single .bin file holds a whole sequence and
// carries the line count in its name, e.g. OCT20240110_2200.bin.
package fringe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultALineSize is the number of samples per A-line of the recorder.
const DefaultALineSize = 2048 * 3

// Lines per frame of the supported probes.
const (
	InVivoLines = 2200
	ExVivoLines = 2500
)

var (
	// ErrNoFrames is returned when a path holds no usable fringe data.
	ErrNoFrames = errors.New("fringe: no frames found")

	// ErrFrameSize is returned when the file size is not a whole number of
	// A-lines or frames.
	ErrFrameSize = errors.New("fringe: file size does not match the frame geometry")

	// ErrRange is returned for reads outside the sequence.
	ErrRange = errors.New("fringe: read out of range")

	// ErrShortBuffer is returned when the destination cannot hold the frames.
	ErrShortBuffer = errors.New("fringe: destination buffer too small")
)

var binName = regexp.MustCompile(`OCT\d+_(\d+)`)

// Reader gives random access to the frames of one recorded sequence. Files
// are opened per read, so a Reader may be shared by concurrent readers.
type Reader struct {
	files         []string
	seq           string
	aLineSize     int
	linesPerFrame int
	framesPerFile int
}

// Open opens a sequence directory or a .bin file.
func Open(path string, aLineSize int) (*Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error opening fringe data: %w", err)
	}
	if info.IsDir() {
		return OpenDir(path, aLineSize)
	}
	return OpenBin(path, aLineSize)
}

// OpenDir opens every .dat file in dir, in name order, as one sequence. The
// line count is inferred from the size of the first file.
func OpenDir(dir string, aLineSize int) (*Reader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading sequence directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".dat") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no .dat files in %s", ErrNoFrames, dir)
	}
	sort.Strings(files)

	r := &Reader{files: files, seq: sequenceName(filepath.Clean(dir)), aLineSize: aLineSize}
	if err := r.determineFrameSize(0); err != nil {
		return nil, err
	}
	return r, nil
}

// OpenBin opens a single .bin sequence file.
func OpenBin(path string, aLineSize int) (*Reader, error) {
	if !strings.EqualFold(filepath.Ext(path), ".bin") {
		return nil, fmt.Errorf("%w: %s is not a .bin file", ErrNoFrames, path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("error opening fringe data: %w", err)
	}

	r := &Reader{files: []string{path}, seq: sequenceName(path), aLineSize: aLineSize}
	if err := r.determineFrameSize(LinesFromName(path)); err != nil {
		return nil, err
	}
	return r, nil
}

// LinesFromName returns the lines per frame encoded in a .bin file name, or
// 0 when the name does not carry one.
func LinesFromName(path string) int {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m := binName.FindStringSubmatch(stem)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// InferLines picks the probe line count for a file of the given number of
// samples, or 0 if neither probe fits.
func InferLines(samples, aLineSize int) int {
	switch {
	case samples%(InVivoLines*aLineSize) == 0:
		return InVivoLines
	case samples%(ExVivoLines*aLineSize) == 0:
		return ExVivoLines
	}
	return 0
}

func (r *Reader) determineFrameSize(linesPerFrame int) error {
	if r.aLineSize <= 0 {
		return fmt.Errorf("%w: A-line size %d", ErrFrameSize, r.aLineSize)
	}
	info, err := os.Stat(r.files[0])
	if err != nil {
		return fmt.Errorf("error reading fringe file size: %w", err)
	}
	samples := int(info.Size() / 2)
	if info.Size()%2 != 0 || samples%r.aLineSize != 0 {
		return fmt.Errorf("%w: %s has %d bytes, not divisible by A-line size %d",
			ErrFrameSize, r.files[0], info.Size(), r.aLineSize)
	}

	if linesPerFrame <= 0 {
		linesPerFrame = InferLines(samples, r.aLineSize)
	}
	if linesPerFrame <= 0 {
		return fmt.Errorf("%w: %s matches no known probe", ErrFrameSize, r.files[0])
	}

	r.linesPerFrame = linesPerFrame
	r.framesPerFile = samples / r.aLineSize / linesPerFrame
	if r.framesPerFile == 0 {
		return fmt.Errorf("%w: %s is shorter than one frame", ErrNoFrames, r.files[0])
	}
	return nil
}

// sequenceName is "<parent>/<stem>" of path.
func sequenceName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parent := filepath.Base(filepath.Dir(path))
	parent = strings.TrimSuffix(parent, filepath.Ext(parent))
	return filepath.Join(parent, stem)
}

// Len returns the number of frames in the sequence.
func (r *Reader) Len() int {
	return len(r.files) * r.framesPerFile
}

// ALineSize returns the samples per A-line.
func (r *Reader) ALineSize() int {
	return r.aLineSize
}

// LinesPerFrame returns the A-lines per frame.
func (r *Reader) LinesPerFrame() int {
	return r.linesPerFrame
}

// SamplesPerFrame returns the samples in one frame.
func (r *Reader) SamplesPerFrame() int {
	return r.linesPerFrame * r.aLineSize
}

// FrameBytes returns the size of one frame on disk.
func (r *Reader) FrameBytes() int64 {
	return int64(r.SamplesPerFrame()) * 2
}

// Sequence returns a display name for the sequence.
func (r *Reader) Sequence() string {
	return r.seq
}

// Read copies n frames starting at frame start into dst.
func (r *Reader) Read(start, n int, dst []uint16) error {
	if n < 1 {
		return fmt.Errorf("%w: must read at least 1 frame", ErrRange)
	}
	spf := r.SamplesPerFrame()
	if len(dst) < spf*n {
		return fmt.Errorf("%w: %d samples for %d frames", ErrShortBuffer, len(dst), n)
	}
	if start < 0 || start+n > r.Len() {
		return fmt.Errorf("%w: frames [%d, %d) of %d", ErrRange, start, start+n, r.Len())
	}

	for n > 0 {
		file := start / r.framesPerFile
		first := start % r.framesPerFile
		count := min(n, r.framesPerFile-first)
		if err := r.readFile(r.files[file], first, dst[:spf*count]); err != nil {
			return err
		}
		dst = dst[spf*count:]
		start += count
		n -= count
	}
	return nil
}

func (r *Reader) readFile(path string, frame int, dst []uint16) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()

	offset := int64(frame) * r.FrameBytes()
	section := io.NewSectionReader(f, offset, int64(len(dst))*2)
	if err := binary.Read(section, binary.LittleEndian, dst); err != nil {
		return fmt.Errorf("error reading %s at byte %d: %w", path, offset, err)
	}
	return nil
}
