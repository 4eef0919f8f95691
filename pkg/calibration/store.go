package calibration

import "sync/atomic"

// Store publishes the current calibration. Readers always observe a complete
// instance; nil means no calibration is installed.
type Store struct {
	current atomic.Pointer[Data]
}

// Load returns the installed calibration or nil.
func (s *Store) Load() *Data {
	return s.current.Load()
}

// Swap installs d and returns the previous instance.
func (s *Store) Swap(d *Data) *Data {
	return s.current.Swap(d)
}

// RefreshBackground publishes a copy of the current calibration with a new
// background. It fails if nothing is installed or the length differs.
func (s *Store) RefreshBackground(background []float64) error {
	for {
		cur := s.current.Load()
		if cur == nil {
			return ErrNotInstalled
		}
		next, err := cur.WithBackground(background)
		if err != nil {
			return err
		}
		if s.current.CompareAndSwap(cur, next) {
			return nil
		}
	}
}
