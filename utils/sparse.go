package utils

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// SparseOperator is an assembled sparse matrix. Values are accumulated in a
// DOK; Complete freezes the sparsity pattern and builds the CSR used for
// products. Writing to a position outside a frozen pattern is an error.
type SparseOperator struct {
	dok      *sparse.DOK
	csr      *sparse.CSR
	pattern  map[[2]int]struct{}
	filled   bool
	stale    bool
	readOnly bool
	name     string
}

func NewSparseOperator(nr, nc int, name string) *SparseOperator {
	return &SparseOperator{
		dok:   sparse.NewDOK(nr, nc),
		name:  name,
		stale: true,
	}
}

// Dims and At satisfy the mat.Matrix interface together with T.
func (m *SparseOperator) Dims() (r, c int)    { return m.dok.Dims() }
func (m *SparseOperator) At(i, j int) float64 { return m.dok.At(i, j) }
func (m *SparseOperator) T() mat.Matrix       { return mat.Transpose{Matrix: m} }
func (m *SparseOperator) Name() string        { return m.name }
func (m *SparseOperator) Filled() bool        { return m.filled }

func (m *SparseOperator) SetReadOnly(name string) {
	m.readOnly = true
	if name != "" {
		m.name = name
	}
}

func (m *SparseOperator) SetWritable() { m.readOnly = false }

func (m *SparseOperator) checkWritable() {
	if m.readOnly {
		panic(NewRuntimeError("SparseOperator", "attempt to write to a read only matrix named: %q", m.name))
	}
}

func (m *SparseOperator) checkPattern(i, j int) {
	if !m.filled {
		return
	}
	if _, ok := m.pattern[[2]int{i, j}]; !ok {
		panic(NewRuntimeError("SparseOperator",
			"matrix %q is filled, cannot insert new entry (%d,%d)", m.name, i, j))
	}
}

// Assemble adds val at (i, j).
func (m *SparseOperator) Assemble(i, j int, val float64) {
	m.checkWritable()
	m.checkPattern(i, j)
	m.dok.Set(i, j, m.dok.At(i, j)+val)
	m.stale = true
}

func (m *SparseOperator) Set(i, j int, val float64) {
	m.checkWritable()
	m.checkPattern(i, j)
	m.dok.Set(i, j, val)
	m.stale = true
}

// AssembleElement adds scale*Ke into the rows/cols given by lm (negative
// entries are skipped). Zero entries are stored too, so the pattern is the
// full element block.
func (m *SparseOperator) AssembleElement(lm []int, Ke mat.Matrix, scale float64) {
	for a, r := range lm {
		if r < 0 {
			continue
		}
		for b, c := range lm {
			if c < 0 {
				continue
			}
			m.Assemble(r, c, scale*Ke.At(a, b))
		}
	}
}

// DoNonZero calls fn for every stored entry, in row-major order.
func (m *SparseOperator) DoNonZero(fn func(i, j int, v float64)) {
	for _, k := range m.keys() {
		fn(k[0], k[1], m.dok.At(k[0], k[1]))
	}
}

func (m *SparseOperator) keys() (keys [][2]int) {
	if m.filled {
		keys = make([][2]int, 0, len(m.pattern))
		for k := range m.pattern {
			keys = append(keys, k)
		}
	} else {
		m.dok.DoNonZero(func(i, j int, _ float64) {
			keys = append(keys, [2]int{i, j})
		})
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a][0] != keys[b][0] {
			return keys[a][0] < keys[b][0]
		}
		return keys[a][1] < keys[b][1]
	})
	return
}

// Zero keeps the pattern and sets all values to zero.
func (m *SparseOperator) Zero() {
	m.checkWritable()
	for _, k := range m.keys() {
		m.dok.Set(k[0], k[1], 0)
	}
	m.stale = true
}

// Scale multiplies all values by a.
func (m *SparseOperator) Scale(a float64) {
	m.checkWritable()
	for _, k := range m.keys() {
		m.dok.Set(k[0], k[1], a*m.dok.At(k[0], k[1]))
	}
	m.stale = true
}

// Add sets m = beta*m + alpha*op(other).
func (m *SparseOperator) Add(other *SparseOperator, transpose bool, alpha, beta float64) {
	m.checkWritable()
	if beta != 1 {
		m.Scale(beta)
	}
	other.DoNonZero(func(i, j int, v float64) {
		if transpose {
			i, j = j, i
		}
		m.Assemble(i, j, alpha*v)
	})
}

// Complete freezes the sparsity pattern. Calling it again is a no-op unless
// UnComplete was called in between.
func (m *SparseOperator) Complete() {
	if m.filled {
		return
	}
	m.pattern = make(map[[2]int]struct{})
	m.dok.DoNonZero(func(i, j int, _ float64) {
		m.pattern[[2]int{i, j}] = struct{}{}
	})
	m.filled = true
	m.stale = true
}

// UnComplete allows the pattern to grow again. Existing entries are kept.
func (m *SparseOperator) UnComplete() {
	m.filled = false
	m.pattern = nil
	m.stale = true
}

func (m *SparseOperator) NNZ() int {
	if m.filled {
		return len(m.pattern)
	}
	return len(m.keys())
}

func (m *SparseOperator) refresh() {
	if !m.stale && m.csr != nil {
		return
	}
	var (
		nr, nc = m.Dims()
		keys   = m.keys()
		ia     = make([]int, nr+1)
		ja     = make([]int, len(keys))
		data   = make([]float64, len(keys))
	)
	// built from the sorted keys so products sum in a fixed order
	for n, k := range keys {
		ia[k[0]+1]++
		ja[n] = k[1]
		data[n] = m.dok.At(k[0], k[1])
	}
	for i := 0; i < nr; i++ {
		ia[i+1] += ia[i]
	}
	m.csr = sparse.NewCSR(nr, nc, ia, ja, data)
	m.stale = false
}

// MulVec sets dst = m*x (or m^T*x).
func (m *SparseOperator) MulVec(dst *mat.VecDense, trans bool, x mat.Vector) {
	var (
		nr, nc = m.Dims()
		out    = make([]float64, nr)
	)
	if trans {
		out = make([]float64, nc)
	}
	m.refresh()
	m.csr.DoNonZero(func(i, j int, v float64) {
		if trans {
			out[j] += v * x.AtVec(i)
		} else {
			out[i] += v * x.AtVec(j)
		}
	})
	copy(VecData(dst), out)
}

func (m *SparseOperator) ToDense() (D *mat.Dense) {
	var (
		nr, nc = m.Dims()
	)
	D = mat.NewDense(nr, nc, nil)
	m.DoNonZero(func(i, j int, v float64) {
		D.Set(i, j, v)
	})
	return
}

func (m *SparseOperator) Copy(name string) (c *SparseOperator) {
	var (
		nr, nc = m.Dims()
	)
	c = NewSparseOperator(nr, nc, name)
	m.DoNonZero(func(i, j int, v float64) {
		c.dok.Set(i, j, v)
	})
	if m.filled {
		c.pattern = make(map[[2]int]struct{}, len(m.pattern))
		for k := range m.pattern {
			c.pattern[k] = struct{}{}
		}
		c.filled = true
	}
	return
}

// Row returns the stored column indices and values of row i.
func (m *SparseOperator) Row(i int) (cols []int, vals []float64) {
	for _, k := range m.keys() {
		if k[0] == i {
			cols = append(cols, k[1])
			vals = append(vals, m.dok.At(i, k[1]))
		}
	}
	return
}

// ApplyDirichlet replaces the rows flagged in dbc by unit rows. When diagOne
// is false the diagonal is zeroed as well. The pattern is kept.
func (m *SparseOperator) ApplyDirichlet(dbc []bool, diagOne bool) {
	m.checkWritable()
	for _, k := range m.keys() {
		if dbc[k[0]] {
			m.dok.Set(k[0], k[1], 0)
		}
	}
	if diagOne {
		for i, isDbc := range dbc {
			if isDbc {
				if m.filled {
					m.pattern[[2]int{i, i}] = struct{}{}
				}
				m.dok.Set(i, i, 1)
			}
		}
	}
	m.stale = true
}

// ZeroColumns zeroes every stored entry of the flagged columns.
func (m *SparseOperator) ZeroColumns(cols []bool) {
	m.checkWritable()
	for _, k := range m.keys() {
		if cols[k[1]] && k[0] != k[1] {
			m.dok.Set(k[0], k[1], 0)
		}
	}
	m.stale = true
}

// ReplaceRow overwrites row i: stored entries become zero, then the given
// values are set. Pattern positions are extended as needed.
func (m *SparseOperator) ReplaceRow(i int, cols []int, vals []float64) {
	m.checkWritable()
	for _, k := range m.keys() {
		if k[0] == i {
			m.dok.Set(i, k[1], 0)
		}
	}
	for n, j := range cols {
		if m.filled {
			m.pattern[[2]int{i, j}] = struct{}{}
		}
		m.dok.Set(i, j, vals[n])
	}
	m.stale = true
}

func (m *SparseOperator) String() string {
	nr, nc := m.Dims()
	return fmt.Sprintf("SparseOperator %q %dx%d nnz=%d filled=%v", m.name, nr, nc, m.NNZ(), m.filled)
}
