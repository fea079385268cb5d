// Package mat implements a small dense matrix type for the low-order
// state-space models used by the controller. Plant order is fixed at
// configuration time and never exceeds a handful of states, so this stays
// deliberately simpler than a general linear-algebra library.
package mat

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrSingular is returned when an inversion hits a pivot too small to trust.
var ErrSingular = errors.New("mat: matrix is singular")

const pivotTol = 1e-12

type Dense struct {
	rows, cols int
	data       []float64
}

func New(rows, cols int) *Dense {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("mat: invalid dimensions %dx%d", rows, cols))
	}
	return &Dense{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// FromRows builds a matrix from row slices. All rows must have equal length.
func FromRows(rows [][]float64) *Dense {
	if len(rows) == 0 || len(rows[0]) == 0 {
		panic("mat: empty rows")
	}
	m := New(len(rows), len(rows[0]))
	for i, r := range rows {
		if len(r) != m.cols {
			panic(fmt.Sprintf("mat: ragged rows (%d vs %d)", len(r), m.cols))
		}
		copy(m.data[i*m.cols:(i+1)*m.cols], r)
	}
	return m
}

// Column builds an n×1 matrix from a slice.
func Column(v []float64) *Dense {
	m := New(len(v), 1)
	copy(m.data, v)
	return m
}

func Identity(n int) *Dense {
	m := New(n, n)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func (m *Dense) Dims() (int, int)        { return m.rows, m.cols }
func (m *Dense) At(i, j int) float64     { return m.data[i*m.cols+j] }
func (m *Dense) Set(i, j int, v float64) { m.data[i*m.cols+j] = v }

func (m *Dense) Clone() *Dense {
	c := New(m.rows, m.cols)
	copy(c.data, m.data)
	return c
}

// T returns the transpose as a new matrix.
func (m *Dense) T() *Dense {
	t := New(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			t.Set(j, i, m.At(i, j))
		}
	}
	return t
}

func Mul(a, b *Dense) *Dense {
	if a.cols != b.rows {
		panic(fmt.Sprintf("mat: mul dimension mismatch %dx%d * %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	c := New(a.rows, b.cols)
	for i := 0; i < a.rows; i++ {
		for k := 0; k < a.cols; k++ {
			aik := a.At(i, k)
			if aik == 0 {
				continue
			}
			for j := 0; j < b.cols; j++ {
				c.data[i*c.cols+j] += aik * b.At(k, j)
			}
		}
	}
	return c
}

func Add(a, b *Dense) *Dense {
	sameDims(a, b, "add")
	c := a.Clone()
	for i := range c.data {
		c.data[i] += b.data[i]
	}
	return c
}

func Sub(a, b *Dense) *Dense {
	sameDims(a, b, "sub")
	c := a.Clone()
	for i := range c.data {
		c.data[i] -= b.data[i]
	}
	return c
}

func Scale(s float64, a *Dense) *Dense {
	c := a.Clone()
	for i := range c.data {
		c.data[i] *= s
	}
	return c
}

// Inverse computes the inverse by Gauss-Jordan elimination with partial
// pivoting. Returns ErrSingular when a pivot is below tolerance.
func Inverse(a *Dense) (*Dense, error) {
	if a.rows != a.cols {
		panic(fmt.Sprintf("mat: inverse of non-square %dx%d", a.rows, a.cols))
	}
	n := a.rows
	work := a.Clone()
	inv := Identity(n)

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(work.At(r, col)) > math.Abs(work.At(pivot, col)) {
				pivot = r
			}
		}
		pv := work.At(pivot, col)
		if math.Abs(pv) < pivotTol {
			return nil, ErrSingular
		}
		if pivot != col {
			work.swapRows(pivot, col)
			inv.swapRows(pivot, col)
		}
		invPv := 1 / pv
		for j := 0; j < n; j++ {
			work.Set(col, j, work.At(col, j)*invPv)
			inv.Set(col, j, inv.At(col, j)*invPv)
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := work.At(r, col)
			if f == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				work.Set(r, j, work.At(r, j)-f*work.At(col, j))
				inv.Set(r, j, inv.At(r, j)-f*inv.At(col, j))
			}
		}
	}
	return inv, nil
}

// MaxAbsDiff returns the largest elementwise |a-b|, used as a convergence
// measure by the Riccati iteration. NaN propagates so a diverged iterate
// can never read as converged.
func MaxAbsDiff(a, b *Dense) float64 {
	sameDims(a, b, "maxAbsDiff")
	max := 0.0
	for i := range a.data {
		d := math.Abs(a.data[i] - b.data[i])
		if math.IsNaN(d) {
			return d
		}
		if d > max {
			max = d
		}
	}
	return max
}

func (m *Dense) swapRows(i, j int) {
	ri := m.data[i*m.cols : (i+1)*m.cols]
	rj := m.data[j*m.cols : (j+1)*m.cols]
	for k := range ri {
		ri[k], rj[k] = rj[k], ri[k]
	}
}

func sameDims(a, b *Dense, op string) {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Sprintf("mat: %s dimension mismatch %dx%d vs %dx%d", op, a.rows, a.cols, b.rows, b.cols))
	}
}

func (m *Dense) String() string {
	var sb strings.Builder
	for i := 0; i < m.rows; i++ {
		sb.WriteString("[")
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%11.6g", m.At(i, j))
		}
		sb.WriteString("]\n")
	}
	return sb.String()
}
