package utils

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFieldSplit(t *testing.T) {
	var (
		full  = NewContiguousDofMap(6, 0)
		disp  = NewDofMap([]int{0, 1, 2, 4})
		scal  = NewDofMap([]int{3, 5})
		x     = mat.NewVecDense(6, []float64{10, 11, 12, 13, 14, 15})
		split *FieldSplit
		err   error
	)
	split, err = NewFieldSplit(full, disp, scal)
	require.NoError(t, err)
	assert.Equal(t, 2, split.NumFields())
	assert.Equal(t, []float64{10, 11, 12, 14}, VecData(split.ExtractVector(x, 0)))
	assert.Equal(t, []float64{13, 15}, VecData(split.ExtractVector(x, 1)))
	split.InsertVector(mat.NewVecDense(2, []float64{-1, -2}), 1, x)
	assert.Equal(t, -2., x.AtVec(5))
	split.AddVector(mat.NewVecDense(2, []float64{1, 1}), 1, x, 2)
	assert.Equal(t, 0., x.AtVec(5))
	assert.Equal(t, 4, split.FullIndex(0, 3))

	_, err = NewFieldSplit(full, disp, NewDofMap([]int{4, 5}))
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewFieldSplit(full, NewDofMap([]int{9}))
	assert.ErrorIs(t, err, ErrConfig)
	assert.Panics(t, func() { NewDofMap([]int{1, 1}) })

	m := MergeDofMaps(scal, disp, nil)
	assert.True(t, m.SameAs(full))
	lid, ok := m.LID(4)
	assert.True(t, ok)
	assert.Equal(t, 4, lid)
}

func TestVectorOps(t *testing.T) {
	var (
		y = mat.NewVecDense(3, []float64{1, 2, 3})
		x = mat.NewVecDense(3, []float64{1, 1, 1})
	)
	Update(y, 2, x, 3)
	assert.Equal(t, []float64{5, 8, 11}, VecData(y))
	Update2(y, 1, x, -1, x, 0)
	assert.Equal(t, []float64{0, 0, 0}, VecData(y))
	v := mat.NewVecDense(4, []float64{3, -4, 0, 0})
	assert.Equal(t, 5., Norm(v, NormL2))
	assert.Equal(t, 7., Norm(v, NormL1))
	assert.Equal(t, 4., Norm(v, NormInf))
	assert.Equal(t, 2.5, Norm(v, NormRMS))
	assert.False(t, HasNaNOrInf(v))
	v.SetVec(2, math.NaN())
	assert.True(t, HasNaNOrInf(v))
	nt, err := NewNormType("Linf")
	require.NoError(t, err)
	assert.Equal(t, NormInf, nt)

	f := NewVec(3)
	AssembleVector(f, []int{2, -1, 0}, []float64{1, 100, 2}, 0.5)
	assert.Equal(t, []float64{1, 0, 0.5}, VecData(f))
	assert.Equal(t, []float64{0.5, 0, 1}, GatherVector(f, []int{2, -1, 0}))
}

func TestErrorKinds(t *testing.T) {
	var (
		base = errors.New("singular")
		err  = Wrap(ErrExternal, "Solve", base)
	)
	assert.ErrorIs(t, err, ErrExternal)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ErrExternal, KindOf(err))
	assert.Nil(t, Wrap(ErrIO, "x", nil))
	assert.Nil(t, KindOf(base))
	assert.Equal(t, "config error: Setup: bad theta 2",
		NewConfigError("Setup", "bad theta %v", 2).Error())
	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.ErrorIs(t, r.(error), ErrRuntime)
	}()
	Assert(false, "check", "fails")
}

func TestFunctions(t *testing.T) {
	p := Polynomial{C: []float64{1, 2, 3}}
	assert.Equal(t, 17., p.Evaluate(2, 0))
	assert.Equal(t, 14., p.Evaluate(2, 1))
	assert.Equal(t, 6., p.Evaluate(2, 2))
	h := Harmonic{Amplitude: 2, Omega: math.Pi, Offset: 1}
	assert.InDelta(t, 3., h.Evaluate(0.5, 0), 1e-14)
	assert.InDelta(t, -2*math.Pi*math.Pi, h.Evaluate(0.5, 2), 1e-12)
	pl, err := NewPiecewiseLinear([]float64{0, 1, 3}, []float64{0, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, 1., pl.Evaluate(0.5, 0))
	assert.Equal(t, -1., pl.Evaluate(2, 1))
	assert.Equal(t, 0., pl.Evaluate(5, 0))
	_, err = NewPiecewiseLinear([]float64{1, 0}, []float64{0, 0})
	assert.ErrorIs(t, err, ErrConfig)

	fm := NewFunctionManager(p)
	assert.Equal(t, 2, fm.Add(h))
	f, err := fm.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 1., f.Evaluate(12, 0))
	_, err = fm.Get(3)
	assert.ErrorIs(t, err, ErrConfig)
}
