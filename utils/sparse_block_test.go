package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSparseOperator(t *testing.T) {
	{ // assembly and products
		A := NewSparseOperator(3, 3, "A")
		A.AssembleElement([]int{0, 2}, mat.NewDense(2, 2, []float64{2, -1, -1, 2}), 1)
		A.Assemble(1, 1, 4)
		A.Assemble(0, 0, 1)
		assert.Equal(t, 3., A.At(0, 0))
		assert.Equal(t, -1., A.At(2, 0))
		A.Complete()
		assert.Equal(t, 5, A.NNZ())
		y := NewVec(3)
		A.MulVec(y, false, mat.NewVecDense(3, []float64{1, 1, 1}))
		assert.Equal(t, []float64{2, 4, 1}, VecData(y))
		A.MulVec(y, true, mat.NewVecDense(3, []float64{0, 1, 0}))
		assert.Equal(t, []float64{0, 4, 0}, VecData(y))
	}
	{ // frozen pattern
		A := NewSparseOperator(2, 2, "frozen")
		A.Assemble(0, 0, 1)
		A.Complete()
		assert.Panics(t, func() { A.Assemble(0, 1, 1) })
		A.Complete() // no-op
		A.UnComplete()
		assert.NotPanics(t, func() { A.Assemble(0, 1, 1) })
		A.Complete()
		assert.Equal(t, 2, A.NNZ())
		A.Zero()
		assert.Equal(t, 2, A.NNZ())
		assert.Equal(t, 0., A.At(0, 1))
	}
	{ // read only
		A := NewSparseOperator(2, 2, "")
		A.SetReadOnly("mass")
		assert.Panics(t, func() { A.Assemble(0, 0, 1) })
		A.SetWritable()
		assert.NotPanics(t, func() { A.Assemble(0, 0, 1) })
	}
	{ // Add with transpose
		A, B := NewSparseOperator(2, 2, "A"), NewSparseOperator(2, 2, "B")
		A.Assemble(0, 0, 1)
		B.Assemble(0, 1, 3)
		A.Add(B, true, 2, 0.5)
		assert.Equal(t, 0.5, A.At(0, 0))
		assert.Equal(t, 6., A.At(1, 0))
		assert.Equal(t, 0., A.At(0, 1))
	}
	{ // Dirichlet rows keep the pattern
		A := NewSparseOperator(3, 3, "K")
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				A.Assemble(i, j, float64(1+i+j))
			}
		}
		A.Complete()
		A.ApplyDirichlet([]bool{false, true, false}, true)
		assert.Equal(t, 9, A.NNZ())
		cols, vals := A.Row(1)
		assert.Equal(t, []int{0, 1, 2}, cols)
		assert.Equal(t, []float64{0, 1, 0}, vals)
		assert.Equal(t, 2., A.At(0, 1))
	}
	{ // products do not depend on storage order
		var (
			n = 40
			A = NewSparseOperator(n, n, "K")
			x = NewVec(n)
		)
		for i := 0; i < n; i++ {
			x.SetVec(i, 1/float64(i+1))
			for j := 0; j < n; j++ {
				if (i*7+j*3)%5 != 0 {
					A.Assemble(i, j, math.Sin(float64(i*n+j))*1e3)
				}
			}
		}
		A.Complete()
		var (
			y0 = NewVec(n)
			y  = NewVec(n)
		)
		A.MulVec(y0, false, x)
		for k := 0; k < 20; k++ {
			A.Scale(1)
			A.MulVec(y, false, x)
			assert.Equal(t, VecData(y0), VecData(y))
			A.Copy("K2").MulVec(y, false, x)
			assert.Equal(t, VecData(y0), VecData(y))
		}
		var yd mat.VecDense
		yd.MulVec(A.ToDense(), x)
		for i := 0; i < n; i++ {
			assert.InDelta(t, yd.AtVec(i), y0.AtVec(i), 1e-9)
		}
	}
}

func TestBlockSparse(t *testing.T) {
	bs := NewBlockSparse([]int{2, 1}, []int{2, 1}, "J")
	bs.Block(0, 0).Assemble(0, 0, 1)
	bs.Block(0, 0).Assemble(1, 1, 2)
	bs.Block(0, 1).Assemble(1, 0, 5)
	bs.Block(1, 1).Assemble(0, 0, 3)
	M := bs.Merge()
	assert.True(t, M.Filled())
	assert.Equal(t, 5., M.At(1, 2))
	assert.Equal(t, 3., M.At(2, 2))
	{ // block views are live
		bs.Block(1, 0).Assemble(0, 1, 7)
		assert.Equal(t, 7., bs.Merge().At(2, 1))
	}
	x := mat.NewVecDense(3, []float64{1, 1, 1})
	y1, y2 := NewVec(3), NewVec(3)
	bs.MulVec(y1, x)
	bs.Merge().MulVec(y2, false, x)
	assert.Equal(t, VecData(y2), VecData(y1))
	assert.InDelta(t, math.Sqrt(1+4+25+9+49), bs.FrobNorm(), 1e-14)
	assert.Panics(t, func() { bs.Block(2, 0) })
}

func laplace1D(n int) (A *SparseOperator) {
	A = NewSparseOperator(n, n, "laplace")
	for i := 0; i < n; i++ {
		A.Assemble(i, i, 2)
		if i > 0 {
			A.Assemble(i, i-1, -1)
		}
		if i < n-1 {
			A.Assemble(i, i+1, -1)
		}
	}
	A.Complete()
	return
}

func TestLinearSolvers(t *testing.T) {
	var (
		n = 30
		A = laplace1D(n)
		b = NewVec(n)
	)
	for i := 0; i < n; i++ {
		b.SetVec(i, float64(i%4)-1.5)
	}
	ref := NewVec(n)
	require.NoError(t, (&DirectSolver{}).Solve(A, ref, b))
	for _, st := range []string{"CG", "BiCGStab", "GMRES", "UMFPACK"} {
		typ, err := NewSolverType(st)
		require.NoError(t, err)
		s := NewLinearSolver(SolverParams{Type: typ, Tol: 1e-12, MaxIter: 500, Restart: 40})
		x := NewVec(n)
		require.NoError(t, s.Solve(A, x, b), s.Name())
		for i := 0; i < n; i++ {
			assert.InDelta(t, ref.AtVec(i), x.AtVec(i), 1e-8, s.Name())
		}
	}
	_, err := NewSolverType("Belos")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestEquilibration(t *testing.T) {
	for _, name := range EquilibrationNames() {
		m, err := NewEquilibrationMethod(name)
		require.NoError(t, err)
		var (
			A = NewSparseOperator(2, 2, "A")
			b = mat.NewVecDense(2, []float64{2, 300})
			x = NewVec(2)
		)
		A.Assemble(0, 0, 2)
		A.Assemble(1, 1, 100)
		A.Assemble(0, 1, 1)
		A.Complete()
		e := NewEquilibration(m)
		e.EquilibrateMatrix(A)
		e.EquilibrateRHS(b)
		require.NoError(t, (&DirectSolver{}).Solve(A, x, b))
		e.UnequilibrateIncrement(x)
		// solution of the unscaled system is (-0.5, 3)
		assert.InDelta(t, -0.5, x.AtVec(0), 1e-12, name)
		assert.InDelta(t, 3., x.AtVec(1), 1e-12, name)
	}
	_, err := NewEquilibrationMethod("diagonal")
	assert.Error(t, err)
}
