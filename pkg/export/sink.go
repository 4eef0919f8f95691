// Package export writes reconstructed frames to disk.
package export

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"
)

// DirSink writes the rect and radial images of every exported frame as
// rect-NNN.tiff and radial-NNN.tiff into a directory. When a catalog is
// attached each export is also recorded there.
type DirSink struct {
	dir     string
	catalog *Catalog
}

// NewDirSink creates a sink writing into dir. catalog may be nil.
func NewDirSink(dir string, catalog *Catalog) *DirSink {
	return &DirSink{dir: dir, catalog: catalog}
}

// Paths returns the file names used for frame index.
func (s *DirSink) Paths(index int) (rect, radial string) {
	return filepath.Join(s.dir, fmt.Sprintf("rect-%03d.tiff", index)),
		filepath.Join(s.dir, fmt.Sprintf("radial-%03d.tiff", index))
}

// Export writes both images of one frame.
func (s *DirSink) Export(index int, rect, radial *image.Gray) error {
	rectPath, radialPath := s.Paths(index)
	if err := os.MkdirAll(filepath.Dir(rectPath), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := writeTIFF(rectPath, rect); err != nil {
		return err
	}
	if err := writeTIFF(radialPath, radial); err != nil {
		return err
	}
	if s.catalog != nil {
		return s.catalog.Add(index, rectPath, radialPath)
	}
	return nil
}

func writeTIFF(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
