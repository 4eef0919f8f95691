package calibration

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, BackgroundFileName), "1.5 2\n3\n4e0\n")
	writeFile(t, filepath.Join(dir, PhaseFileName), "0 1 0\n1 0.25 0.75\n2 0.5 0.5\n3 1 0\n")

	require.True(t, HasFiles(dir))
	d, err := LoadDir(4, dir)
	require.NoError(t, err)

	assert.Equal(t, 4, d.Len())
	assert.Equal(t, []float64{1.5, 2, 3, 4}, d.Background())
	want := []PhaseUnit{{0, 1, 0}, {1, 0.25, 0.75}, {2, 0.5, 0.5}, {3, 1, 0}}
	if diff := cmp.Diff(want, d.Phase()); diff != "" {
		t.Errorf("phase table mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadIgnoresTrailingValues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, BackgroundFileName), "1 2 3 4 5 6")
	writeFile(t, filepath.Join(dir, PhaseFileName), "0 1 0 1 1 0 9 9 9")

	d, err := LoadDir(2, dir)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, d.Background())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, HasFiles(dir))

	_, err := LoadDir(4, dir)
	assert.Error(t, err, "missing files must fail")

	writeFile(t, filepath.Join(dir, BackgroundFileName), "1 2")
	writeFile(t, filepath.Join(dir, PhaseFileName), "0 1 0\n1 1 0\n2 1 0\n3 1 0\n")
	_, err = LoadDir(4, dir)
	assert.True(t, errors.Is(err, ErrLength), "short background: %v", err)

	writeFile(t, filepath.Join(dir, BackgroundFileName), "1 2 3 4")
	writeFile(t, filepath.Join(dir, PhaseFileName), "0 1 0\n1 1 0\n7 1 0\n3 1 0\n")
	_, err = LoadDir(4, dir)
	assert.True(t, errors.Is(err, ErrIndex), "index out of range: %v", err)

	writeFile(t, filepath.Join(dir, PhaseFileName), "0 1 0\n1.5 1 0\n2 1 0\n3 1 0\n")
	_, err = LoadDir(4, dir)
	assert.True(t, errors.Is(err, ErrIndex), "fractional index: %v", err)

	writeFile(t, filepath.Join(dir, PhaseFileName), "0 1 0\nx 1 0\n2 1 0\n3 1 0\n")
	_, err = LoadDir(4, dir)
	assert.Error(t, err, "unparsable value")
}

func TestSaveRoundTrip(t *testing.T) {
	d, err := New([]float64{0.1, 2.5, -3}, []PhaseUnit{{0, 0.9, 0.1}, {1, 0.3, 0.7}, {2, 1, 0}})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "calib")
	require.NoError(t, d.Save(dir))

	loaded, err := LoadDir(3, dir)
	require.NoError(t, err)
	assert.Equal(t, d.Background(), loaded.Background())
	assert.Equal(t, d.Phase(), loaded.Phase())
}

func TestNewCopiesInput(t *testing.T) {
	bg := []float64{1, 2}
	d, err := New(bg, []PhaseUnit{{0, 1, 0}, {1, 1, 0}})
	require.NoError(t, err)
	bg[0] = 99
	assert.Equal(t, 1.0, d.Background()[0])

	_, err = New([]float64{1}, []PhaseUnit{{0, 1, 0}, {1, 1, 0}})
	assert.ErrorIs(t, err, ErrLength)
	_, err = New(nil, nil)
	assert.ErrorIs(t, err, ErrLength)
}

func TestIdentity(t *testing.T) {
	d := Identity(5)
	assert.Equal(t, 5, d.Len())
	for i, u := range d.Phase() {
		assert.Equal(t, PhaseUnit{Index: i, Left: 1}, u)
		assert.Zero(t, d.Background()[i])
	}
}

func TestWithBackgroundLeavesOriginal(t *testing.T) {
	d := Identity(3)
	next, err := d.WithBackground([]float64{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, d.Background())
	assert.Equal(t, []float64{4, 5, 6}, next.Background())
	assert.Equal(t, d.Phase(), next.Phase())

	_, err = d.WithBackground([]float64{1})
	assert.ErrorIs(t, err, ErrLength)
}

func TestStoreSwapAndRefresh(t *testing.T) {
	var s Store
	assert.Nil(t, s.Load())
	assert.ErrorIs(t, s.RefreshBackground([]float64{1}), ErrNotInstalled)

	first := Identity(2)
	assert.Nil(t, s.Swap(first))
	require.NoError(t, s.RefreshBackground([]float64{7, 8}))

	cur := s.Load()
	assert.NotSame(t, first, cur)
	assert.Equal(t, []float64{0, 0}, first.Background(), "published instances are never mutated")
	assert.Equal(t, []float64{7, 8}, cur.Background())
}

func TestStoreConcurrentReaders(t *testing.T) {
	var s Store
	s.Swap(Identity(64))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				d := s.Load()
				first := d.Background()[0]
				for _, v := range d.Background() {
					if v != first {
						t.Errorf("observed a partially updated background")
						return
					}
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		bg := make([]float64, 64)
		for j := range bg {
			bg[j] = float64(i)
		}
		require.NoError(t, s.RefreshBackground(bg))
	}
	wg.Wait()
}

type fakeReader struct {
	frames [][]uint16
}

func (f *fakeReader) Len() int             { return len(f.frames) }
func (f *fakeReader) SamplesPerFrame() int { return len(f.frames[0]) }
func (f *fakeReader) Read(start, n int, dst []uint16) error {
	for i := 0; i < n; i++ {
		copy(dst[i*f.SamplesPerFrame():], f.frames[start+i])
	}
	return nil
}

func TestAverageBackground(t *testing.T) {
	bg, err := AverageBackground([]uint16{1, 2, 3, 3, 4, 5}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4}, bg)

	_, err = AverageBackground([]uint16{1, 2, 3, 4}, 3)
	assert.ErrorIs(t, err, ErrLength)
	_, err = AverageBackground(nil, 3)
	assert.ErrorIs(t, err, ErrLength)
}

func TestBackgroundFromReader(t *testing.T) {
	r := &fakeReader{frames: [][]uint16{
		{10, 20, 30, 50},
		{30, 40, 10, 10},
		{1000, 1000, 1000, 1000},
	}}

	bg, err := BackgroundFromReader(r, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 30}, bg)

	bg, err = BackgroundFromReader(r, 4, 10)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1040.0 / 3, 1060.0 / 3, 1040.0 / 3, 1060.0 / 3}, bg, 1e-9)

	_, err = BackgroundFromReader(r, 4, 0)
	assert.Error(t, err)
}
