package reconstruction

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"octrecon/pkg/phasecorr"
)

// align rotates m so it lines up with the previous frame, then keeps a copy
// of the result as the new reference. It reports the measured offset and
// whether a reference of the same size was available.
func (e *Engine) align(m *mat.Dense, additional int) (int, bool, error) {
	rows, cols := m.Dims()

	offset, aligned := 0, false
	if e.prev != nil {
		if pr, pc := e.prev.Dims(); pr == rows && pc == cols {
			var err error
			offset, err = phasecorr.Offset(e.prev, m, e.workers)
			if err != nil {
				return 0, false, fmt.Errorf("error measuring alignment offset: %w", err)
			}
			shiftLeft(m, offset+additional)
			aligned = true
		}
	}

	if !aligned {
		e.prev = mat.NewDense(rows, cols, nil)
	}
	e.prev.Copy(m)
	return offset, aligned, nil
}

// shiftLeft circularly rotates every row of m left by k columns, so column
// i receives column (i+k) mod cols.
func shiftLeft(m *mat.Dense, k int) {
	rows, cols := m.Dims()
	k = ((k % cols) + cols) % cols
	if k == 0 {
		return
	}

	raw := m.RawMatrix()
	tmp := make([]float64, k)
	for r := 0; r < rows; r++ {
		row := raw.Data[r*raw.Stride : r*raw.Stride+cols]
		copy(tmp, row[:k])
		copy(row, row[k:])
		copy(row[cols-k:], tmp)
	}
}
