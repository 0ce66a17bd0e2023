package utils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

type EquilibrationMethod uint8

const (
	EquilNone EquilibrationMethod = iota
	EquilRowsFull
	EquilRowsMainDiag
	EquilColumnsFull
	EquilColumnsMainDiag
	EquilRowsAndColumnsFull
	EquilRowsAndColumnsMainDiag
)

var equilNames = []string{
	"none",
	"rows_full",
	"rows_maindiag",
	"columns_full",
	"columns_maindiag",
	"rowsandcolumns_full",
	"rowsandcolumns_maindiag",
}

func NewEquilibrationMethod(label string) (EquilibrationMethod, error) {
	for i, n := range equilNames {
		if n == label {
			return EquilibrationMethod(i), nil
		}
	}
	return EquilNone, NewConfigError("NewEquilibrationMethod", "unknown equilibration %q", label)
}

func (e EquilibrationMethod) String() string { return equilNames[e] }

func EquilibrationNames() []string { return equilNames }

// Equilibration scales A x = b into (R A C) y = R b with x = C y.
type Equilibration struct {
	Method   EquilibrationMethod
	rowScale []float64
	colScale []float64
}

func NewEquilibration(m EquilibrationMethod) *Equilibration {
	return &Equilibration{Method: m}
}

func (e *Equilibration) scaleRows() bool {
	switch e.Method {
	case EquilRowsFull, EquilRowsMainDiag, EquilRowsAndColumnsFull, EquilRowsAndColumnsMainDiag:
		return true
	}
	return false
}

func (e *Equilibration) scaleCols() bool {
	switch e.Method {
	case EquilColumnsFull, EquilColumnsMainDiag, EquilRowsAndColumnsFull, EquilRowsAndColumnsMainDiag:
		return true
	}
	return false
}

func invert(s []float64, root bool) {
	for i, v := range s {
		switch {
		case v == 0:
			s[i] = 1
		case root:
			s[i] = 1 / math.Sqrt(v)
		default:
			s[i] = 1 / v
		}
	}
}

// EquilibrateMatrix computes the scaling from A and applies it in place.
func (e *Equilibration) EquilibrateMatrix(A *SparseOperator) {
	if e.Method == EquilNone {
		return
	}
	var (
		nr, nc = A.Dims()
		both   = e.scaleRows() && e.scaleCols()
		full   = e.Method == EquilRowsFull || e.Method == EquilColumnsFull ||
			e.Method == EquilRowsAndColumnsFull
	)
	e.rowScale, e.colScale = ConstArray(nr, 1), ConstArray(nc, 1)
	if e.scaleRows() {
		s := make([]float64, nr)
		A.DoNonZero(func(i, j int, v float64) {
			if full {
				s[i] += math.Abs(v)
			} else if i == j {
				s[i] = math.Abs(v)
			}
		})
		invert(s, both)
		e.rowScale = s
	}
	if e.scaleCols() {
		s := make([]float64, nc)
		A.DoNonZero(func(i, j int, v float64) {
			if full {
				s[j] += math.Abs(v)
			} else if i == j {
				s[j] = math.Abs(v)
			}
		})
		invert(s, both)
		e.colScale = s
	}
	A.DoNonZero(func(i, j int, v float64) {
		A.Set(i, j, e.rowScale[i]*v*e.colScale[j])
	})
}

func (e *Equilibration) EquilibrateRHS(b *mat.VecDense) {
	if e.Method == EquilNone || e.rowScale == nil {
		return
	}
	for i := 0; i < b.Len(); i++ {
		b.SetVec(i, e.rowScale[i]*b.AtVec(i))
	}
}

func (e *Equilibration) UnequilibrateIncrement(x *mat.VecDense) {
	if e.Method == EquilNone || e.colScale == nil {
		return
	}
	for i := 0; i < x.Len(); i++ {
		x.SetVec(i, e.colScale[i]*x.AtVec(i))
	}
}
