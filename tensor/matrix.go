package tensor

import (
	"fmt"

	"github.com/hupe1980/imgrank/internal/errs"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense row-major (N, D) float64 matrix.
//
// Unlike mat.Dense it may hold zero rows, which happens when a selector drops
// every item of a container.
type Matrix struct {
	rows, cols int
	data       []float64
}

// NewMatrix wraps data as a rows x cols matrix. data is not copied.
func NewMatrix(rows, cols int, data []float64) (*Matrix, error) {
	if rows < 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: invalid matrix shape (%d, %d)", errs.ErrDataIntegrity, rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: matrix shape (%d, %d) needs %d values, got %d",
			errs.ErrDataIntegrity, rows, cols, rows*cols, len(data))
	}
	return &Matrix{rows: rows, cols: cols, data: data}, nil
}

// Zeros allocates a zero-filled matrix.
func Zeros(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// FromRows copies rows into a new matrix. All rows must have equal length.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", errs.ErrDataIntegrity)
	}
	cols := len(rows[0])
	m := Zeros(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", errs.ErrDataIntegrity, i, len(r), cols)
		}
		copy(m.Row(i), r)
	}
	return m, nil
}

// FromFloat32 converts a row-major float32 slice into a matrix.
func FromFloat32(rows, cols int, src []float32) (*Matrix, error) {
	data := make([]float64, len(src))
	for i, v := range src {
		data[i] = float64(v)
	}
	return NewMatrix(rows, cols, data)
}

// FromDense copies a gonum matrix.
func FromDense(d *mat.Dense) *Matrix {
	r, c := d.Dims()
	m := Zeros(r, c)
	for i := 0; i < r; i++ {
		mat.Row(m.Row(i), i, d)
	}
	return m
}

// Rows returns N.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns D.
func (m *Matrix) Cols() int { return m.cols }

// Data returns the backing slice.
func (m *Matrix) Data() []float64 { return m.data }

// Row returns row i as a slice sharing storage with m.
func (m *Matrix) Row(i int) []float64 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float64 { return m.data[i*m.cols+j] }

// Dense returns a gonum view sharing storage with m, or nil if m has no rows.
func (m *Matrix) Dense() *mat.Dense {
	if m.rows == 0 {
		return nil
	}
	return mat.NewDense(m.rows, m.cols, m.data)
}

// SliceRows returns a view of rows [lo, hi).
func (m *Matrix) SliceRows(lo, hi int) *Matrix {
	if lo < 0 || hi > m.rows || lo > hi {
		panic(fmt.Sprintf("tensor: row slice [%d:%d] out of range for %d rows", lo, hi, m.rows))
	}
	return &Matrix{rows: hi - lo, cols: m.cols, data: m.data[lo*m.cols : hi*m.cols]}
}

// SelectRows copies the given rows, in order, into a new matrix.
func (m *Matrix) SelectRows(idx []int) *Matrix {
	out := Zeros(len(idx), m.cols)
	for i, r := range idx {
		copy(out.Row(i), m.Row(r))
	}
	return out
}

// Float32 returns a float32 copy of the backing data.
func (m *Matrix) Float32() []float32 {
	out := make([]float32, len(m.data))
	for i, v := range m.data {
		out[i] = float32(v)
	}
	return out
}
