package dbc

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/utils"
)

func cube(t *testing.T) *discretization.Discretization {
	mesh, err := geometry3D.GenerateCuboid(geometry3D.CuboidParams{
		Bottom: geometry3D.Point{0, 0, 0}, Top: geometry3D.Point{1, 1, 1},
		Intervals: [3]int{1, 1, 1}, Type: geometry3D.Hex8, FirstNodeID: 1,
	})
	require.NoError(t, err)
	dis, err := discretization.NewFromMesh("structure", mesh, 3, 0,
		func(e geometry3D.Element) (discretization.StructuralKernel, discretization.Material, error) {
			return discretization.Hex8{}, discretization.Material{Youngs: 1, Density: 1}, nil
		})
	require.NoError(t, err)
	return dis
}

func TestCubeNodeIDs(t *testing.T) {
	dis := cube(t)
	for i, nid := range []int{1, 3, 7, 9} {
		dofs, err := dis.NodeDofs(nid)
		require.NoError(t, err)
		assert.Equal(t, []int{3 * i, 3*i + 1, 3*i + 2}, dofs)
	}
	_, err := dis.NodeDofs(2)
	assert.Error(t, err)
}

func TestApplyDirichletBC(t *testing.T) {
	var (
		dis   = cube(t)
		funcs = utils.NewFunctionManager(utils.Polynomial{C: []float64{0, 2, 3}})
		conds = []Condition{
			{Name: "clamp", Nodes: []int{1, 3}, OnOff: []bool{true, true, true}, Values: []float64{0, 0, 0}},
			{Name: "pull", Nodes: []int{7}, OnOff: []bool{true}, Values: []float64{0.5}, Funct: []int{1}},
			{Name: "spin", Nodes: []int{9}, OnOff: []bool{false, true}, Values: []float64{0, 2}, Funct: []int{0, 1},
				Kind: KindVelocity},
		}
	)
	h, err := NewHandler(dis, funcs, conds, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 10}, h.DbcDofs())

	n := dis.DofRowMap().Len()
	D, V, A := utils.NewVec(n), utils.NewVec(n), utils.NewVec(n)
	for i := 0; i < n; i++ {
		D.SetVec(i, 9)
		V.SetVec(i, 9)
		A.SetVec(i, 9)
	}
	tm := 2.
	require.NoError(t, h.ApplyDirichletBC(tm, D, V, A, false))
	assert.Equal(t, 0., D.AtVec(0))
	assert.Equal(t, 0., A.AtVec(5))
	// f = 2t + 3t^2
	assert.InDelta(t, 0.5*(2*tm+3*tm*tm), D.AtVec(6), 1e-14)
	assert.InDelta(t, 0.5*(2+6*tm), V.AtVec(6), 1e-14)
	assert.InDelta(t, 0.5*6, A.AtVec(6), 1e-14)
	// velocity kind leaves D alone
	assert.Equal(t, 9., D.AtVec(10))
	assert.InDelta(t, 2*(2*tm+3*tm*tm), V.AtVec(10), 1e-14)
	assert.InDelta(t, 2*(2+6*tm), A.AtVec(10), 1e-14)
	assert.Equal(t, 9., D.AtVec(7))

	// applying twice gives the same state
	D2, V2, A2 := utils.CloneVec(D), utils.CloneVec(V), utils.CloneVec(A)
	require.NoError(t, h.ApplyDirichletBC(tm, D2, V2, A2, true))
	assert.True(t, mat.Equal(D, D2))
	assert.True(t, mat.Equal(V, V2))
	assert.True(t, mat.Equal(A, A2))
}

func TestConflictingConditions(t *testing.T) {
	dis := cube(t)
	_, err := NewHandler(dis, nil, []Condition{
		{Name: "a", Nodes: []int{1}, OnOff: []bool{true}, Values: []float64{1}},
		{Name: "b", Nodes: []int{1, 3}, OnOff: []bool{true}, Values: []float64{2}},
	}, nil, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrConfig))

	// identical duplicates are accepted
	_, err = NewHandler(dis, nil, []Condition{
		{Name: "a", Nodes: []int{1}, OnOff: []bool{true}, Values: []float64{1}},
		{Name: "b", Nodes: []int{1, 3}, OnOff: []bool{true}, Values: []float64{1}},
	}, nil, false)
	assert.NoError(t, err)

	// undefined time function
	h, err := NewHandler(dis, nil, []Condition{
		{Name: "f", Nodes: []int{1}, OnOff: []bool{true}, Values: []float64{1}, Funct: []int{4}},
	}, nil, false)
	require.NoError(t, err)
	n := dis.DofRowMap().Len()
	assert.Error(t, h.ApplyDirichletBC(0, utils.NewVec(n), nil, nil, false))
}

func TestApplyToSystem(t *testing.T) {
	var (
		dis = cube(t)
		n   = dis.DofRowMap().Len()
	)
	build := func() (*utils.SparseOperator, *mat.VecDense) {
		J := utils.NewSparseOperator(n, n, "J")
		b := utils.NewVec(n)
		for i := 0; i < n; i++ {
			J.Assemble(i, i, 4)
			if i > 0 {
				J.Assemble(i, i-1, -1)
				J.Assemble(i-1, i, -1)
			}
			b.SetVec(i, float64(i))
		}
		J.Complete()
		return J, b
	}
	h, err := NewHandler(dis, nil, []Condition{
		{Name: "clamp", Nodes: []int{1}, OnOff: []bool{true, true, true}, Values: []float64{0, 0, 0}},
	}, nil, true)
	require.NoError(t, err)

	J, b := build()
	x := utils.NewVec(n)
	vals := utils.NewVec(n)
	vals.SetVec(1, 0.25)
	h.ApplyToSystem(J, x, b, vals)
	for _, i := range []int{0, 1, 2} {
		for j := 0; j < n; j++ {
			expect := 0.
			if i == j {
				expect = 1
			}
			assert.Equal(t, expect, J.At(i, j))
			assert.Equal(t, expect, J.At(j, i), "symmetric elimination")
		}
	}
	assert.Equal(t, 0.25, b.AtVec(1))
	assert.Equal(t, 0.25, x.AtVec(1))
	// J[3,2] = -1 moved the known value of dof 2 (zero) into b
	assert.Equal(t, 3., b.AtVec(3))

	r := utils.NewVec(n)
	r.CopyVec(b)
	h.ExtractFreeDofs(r)
	assert.Equal(t, 0., r.AtVec(1))
	assert.Equal(t, 5., r.AtVec(5))
}

func TestLocsys(t *testing.T) {
	var (
		dis = cube(t)
		n   = dis.DofRowMap().Len()
		// 90 degrees about z: local x is global y
		ls = NewLocsysFromRotationVector([]int{3}, [3]float64{0, 0, math.Pi / 2})
	)
	assert.InDelta(t, 1, ls.T[0][1], 1e-14)
	assert.InDelta(t, 0, ls.T[0][0], 1e-14)

	h, err := NewHandler(dis, nil, []Condition{
		{Name: "slide", Nodes: []int{3}, OnOff: []bool{true}, Values: []float64{0.3}},
	}, []Locsys{ls}, false)
	require.NoError(t, err)
	assert.True(t, h.HasLocsys())

	D := utils.NewVec(n)
	D.SetVec(3, 0.7)
	require.NoError(t, h.ApplyDirichletBC(0, D, nil, nil, false))
	// global y of node 3 carries the local x value, global x is untouched
	assert.InDelta(t, 0.3, D.AtVec(4), 1e-14)
	assert.InDelta(t, 0.7, D.AtVec(3), 1e-14)

	J := utils.NewSparseOperator(n, n, "J")
	for i := 0; i < n; i++ {
		J.Assemble(i, i, 2)
	}
	J.Complete()
	b := utils.NewVec(n)
	h.ApplyToSystem(J, nil, b, nil)
	// constrained local row is T[0,:] = e_y
	assert.InDelta(t, 1, J.At(3, 4), 1e-14)
	assert.InDelta(t, 0, J.At(3, 3), 1e-14)

	src := utils.NewVec(n)
	src.SetVec(4, 1.5)
	dst := utils.NewVec(n)
	h.InsertToDbc(src, dst)
	assert.InDelta(t, 1.5, dst.AtVec(4), 1e-14)
	assert.InDelta(t, 0, dst.AtVec(3), 1e-14)
}
