package modelevaluator

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

var truss = func(e geometry3D.Element) (discretization.StructuralKernel, discretization.Material, error) {
	return discretization.Truss{}, discretization.Material{Youngs: 10, Density: 1, Area: 0.1}, nil
}

// fibers builds two parallel lines along x, nEle elements each, the second
// one shifted by gap in y. Node ids start at 1 and 101.
func fibers(t *testing.T, gap float64, nEle int) *discretization.Discretization {
	m1 := geometry3D.GenerateLine(geometry3D.Point{0, 0, 0}, geometry3D.Point{1, 0, 0}, nEle, 1, 1)
	m2 := geometry3D.GenerateLine(geometry3D.Point{0, gap, 0}, geometry3D.Point{1, gap, 0}, nEle, 101, 101)
	require.NoError(t, m1.Merge(m2))
	dis, err := discretization.NewFromMesh("structure", m1, 3, 0, truss)
	require.NoError(t, err)
	return dis
}

func line(t *testing.T, nEle int) *discretization.Discretization {
	m := geometry3D.GenerateLine(geometry3D.Point{0, 0, 0}, geometry3D.Point{1, 0, 0}, nEle, 1, 1)
	dis, err := discretization.NewFromMesh("structure", m, 3, 0, truss)
	require.NoError(t, err)
	return dis
}

func newState(dis *discretization.Discretization, dt float64) *state.GlobalState {
	gs := state.NewGlobalState(nil)
	gs.Init(0, dt, 10, 1)
	gs.Setup(dis.DofRowMap(), nil)
	return gs
}

func ids(first, n int) (ids []int) {
	for i := 0; i < n; i++ {
		ids = append(ids, first+i)
	}
	return
}

func TestManagerWeights(t *testing.T) {
	var (
		dis   = line(t, 2)
		gs    = newState(dis, 0.1)
		data  = &Data{TimIntFacDis: 1, TimIntFacVel: 1}
		funcs = utils.NewFunctionManager(utils.Polynomial{C: []float64{0, 1}})
		mgr   = NewManager(gs, data)
		n     = dis.DofRowMap().Len()
	)
	str := NewStructure(gs, data, dis, StructureParams{})
	neu := NewNeumann(gs, data, dis, funcs,
		[]PointLoad{{Nodes: []int{3}, OnOff: []bool{true}, Values: []float64{2}, Funct: []int{1}}}, nil)
	require.NoError(t, mgr.Add(str))
	require.NoError(t, mgr.Add(neu))
	assert.Error(t, mgr.Add(NewStructure(gs, data, dis, StructureParams{})))
	require.NoError(t, mgr.Setup())
	require.NoError(t, mgr.PostSetup())

	ev, ok := mgr.Evaluator(TypeNeumann)
	require.True(t, ok)
	assert.Equal(t, neu, ev)
	_, ok = mgr.Evaluator(TypeContact)
	assert.False(t, ok)

	// stretch the last node
	gs.DisNp().SetVec(6, 0.1)
	for i := 0; i < n; i++ {
		gs.FstructOld().SetVec(i, 1)
	}
	var (
		w = 0.25
		f = utils.NewVec(n)
		J = gs.Jacobian()
	)
	require.True(t, mgr.ApplyForceStiff(gs.DisNp(), f, J, w))
	tn := gs.TimeNp()
	for i := 0; i < n; i++ {
		want := w*gs.FintNp().AtVec(i) + 1
		if i == 6 {
			want -= w * 2 * tn
		}
		assert.InDelta(t, want, f.AtVec(i), 1e-12, "dof %d", i)
	}
	assert.True(t, J.Filled())
	K := str.Stiffness()
	assert.InDelta(t, w*K.At(6, 6), J.At(6, 6), 1e-12)

	mgr.UpdateStepState(0.5)
	for i := 0; i < n; i++ {
		want := 0.5 * gs.FintNp().AtVec(i)
		if i == 6 {
			want -= 0.5 * 2 * tn
		}
		assert.InDelta(t, want, gs.FstructOld().AtVec(i), 1e-12)
	}
}

func TestStructureRayleigh(t *testing.T) {
	var (
		dis  = line(t, 1)
		gs   = newState(dis, 0.1)
		data = &Data{NumThreads: 2}
	)
	str := NewStructure(gs, data, dis, StructureParams{LumpedMass: true, Damping: DampRayleigh, DampK: 0.1, DampM: 0.5})
	require.NoError(t, str.Setup())
	M, C := gs.MassMatrix(), gs.DampMatrix()
	// rho A L / 2 per node
	assert.InDelta(t, 0.05, M.At(0, 0), 1e-14)
	assert.InDelta(t, 0.1*10*0.1+0.5*0.05, C.At(0, 0), 1e-12)
	assert.Panics(t, func() { M.Assemble(0, 0, 1) })

	gs.VelNp().SetVec(0, 2)
	require.True(t, str.EvaluateForce())
	assert.InDelta(t, 2*C.At(0, 0), gs.FviscoNp().AtVec(0), 1e-12)
	assert.InDelta(t, 0.5*0.05*4, str.KineticEnergy(), 1e-12)

	_, err := NewDampingType("Material")
	assert.Error(t, err)
}

func TestBeamPotentialPairs(t *testing.T) {
	var (
		dis   = fibers(t, 0.2, 3)
		gs    = newState(dis, 0.1)
		funcs = utils.NewFunctionManager()
		law   = BeamPotentialParams{Prefactors: []float64{1, 1}, Exponents: []float64{6, 1}}
	)
	{
		p := law
		p.Conditions = []LineCharge{
			{Nodes: ids(1, 4), PotLaw: 1, Density: 1},
			{Nodes: ids(101, 4), PotLaw: 1, Density: 1},
		}
		bp := NewBeamPotential(gs, nil, dis, funcs, p)
		require.NoError(t, bp.Setup())
		// all cross pairs, none within a fiber
		assert.Equal(t, 9, bp.NumPairs())
		for _, pr := range bp.pairs {
			assert.Less(t, pr.a.ID, pr.b.ID)
		}
	}
	{
		p := law
		p.Conditions = []LineCharge{
			{Nodes: ids(1, 4), PotLaw: 1, Density: 1},
			{Nodes: ids(101, 4), PotLaw: 2, Density: 1},
		}
		bp := NewBeamPotential(gs, nil, dis, funcs, p)
		require.NoError(t, bp.Setup())
		assert.Equal(t, 0, bp.NumPairs())
	}
	{
		p := law
		p.CutoffRadius = 0.25
		p.Conditions = []LineCharge{
			{Nodes: ids(1, 4), PotLaw: 1, Density: 1},
			{Nodes: ids(101, 4), PotLaw: 1, Density: 1},
		}
		bp := NewBeamPotential(gs, nil, dis, funcs, p)
		require.NoError(t, bp.Setup())
		// only the facing element and its neighbours
		assert.Equal(t, 7, bp.NumPairs())

		// move the second fiber out of range
		for _, nid := range ids(101, 4) {
			dofs, err := dis.NodeDofs(nid)
			require.NoError(t, err)
			gs.DisNp().SetVec(dofs[1], 1)
		}
		bp.PostUpdate()
		assert.Equal(t, 0, bp.NumPairs())
		assert.True(t, bp.pairsChanged)
	}
	{
		p := law
		p.Conditions = []LineCharge{{Nodes: ids(1, 4), PotLaw: 3}}
		bp := NewBeamPotential(gs, nil, dis, funcs, p)
		assert.Error(t, bp.Setup())
	}
}

func TestBeamPotentialLengthToEdge(t *testing.T) {
	var (
		dis   = line(t, 4)
		gs    = newState(dis, 0.1)
		funcs = utils.NewFunctionManager()
	)
	bp := NewBeamPotential(gs, nil, dis, funcs, BeamPotentialParams{
		Prefactors: []float64{1}, Exponents: []float64{1}, ReductionLength: 0.5,
	})
	require.NoError(t, bp.Setup())
	l1, l2 := bp.PriorLength(1), bp.PriorLength(2)
	assert.InDeltaSlice(t, []float64{0, 0.75}, l1[:], 1e-14)
	assert.InDeltaSlice(t, []float64{0.25, 0.5}, l2[:], 1e-14)
	e2, _ := dis.ElementByID(2)
	// 0.25 + 0.125 from the left end
	assert.InDelta(t, 0.375/0.5, bp.reduction(e2, 0), 1e-14)
	e1, _ := dis.ElementByID(1)
	assert.InDelta(t, 0, bp.reduction(e1, -1), 1e-14)

	// three elements meeting at node 1
	star := geometry3D.NewMesh(
		[]geometry3D.Node{{ID: 1}, {ID: 2, X: geometry3D.Point{1, 0, 0}},
			{ID: 3, X: geometry3D.Point{0, 1, 0}}, {ID: 4, X: geometry3D.Point{0, 0, 1}}},
		[]geometry3D.Element{{ID: 1, Type: geometry3D.Line2, NodeIDs: []int{1, 2}},
			{ID: 2, Type: geometry3D.Line2, NodeIDs: []int{1, 3}},
			{ID: 3, Type: geometry3D.Line2, NodeIDs: []int{1, 4}}})
	sdis, err := discretization.NewFromMesh("structure", star, 3, 0, truss)
	require.NoError(t, err)
	bp = NewBeamPotential(newState(sdis, 0.1), nil, sdis, funcs, BeamPotentialParams{
		Prefactors: []float64{1}, Exponents: []float64{1}, ReductionLength: 0.5,
	})
	err = bp.Setup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than two beam elements connected via a single node")
	assert.Equal(t, utils.ErrRuntime, utils.KindOf(err))
}

// TestBeamPotentialConsistency checks the force against the energy and the
// tangent against the force by central differences.
func TestBeamPotentialConsistency(t *testing.T) {
	var (
		dis   = fibers(t, 0.4, 2)
		gs    = newState(dis, 0.1)
		funcs = utils.NewFunctionManager(utils.Constant(2))
		n     = dis.DofRowMap().Len()
		rng   = rand.New(rand.NewPCG(3, 7))
		h     = 1e-6
	)
	bp := NewBeamPotential(gs, nil, dis, funcs, BeamPotentialParams{
		Prefactors: []float64{0.01}, Exponents: []float64{4}, NumGP: 5, ReductionLength: 0.3,
		Conditions: []LineCharge{
			{Nodes: ids(1, 3), PotLaw: 1, Density: 1.5},
			{Nodes: ids(101, 3), PotLaw: 1, Density: -0.5, Funct: 1},
		},
	})
	require.NoError(t, bp.Setup())
	D := gs.DisNp()
	for i := 0; i < n; i++ {
		D.SetVec(i, 0.05*(rng.Float64()-0.5))
	}
	force := func() []float64 {
		f := utils.NewVec(n)
		require.True(t, bp.EvaluateForce())
		bp.AssembleForce(1, f)
		return utils.VecData(f)
	}
	require.True(t, bp.EvaluateForceStiff())
	f0 := utils.CloneVec(bp.fpot)
	K := bp.stiff.Copy("K")
	for j := 0; j < n; j++ {
		d0 := D.AtVec(j)
		D.SetVec(j, d0+h)
		fp := force()
		ep := bp.Energy
		D.SetVec(j, d0-h)
		fm := force()
		em := bp.Energy
		D.SetVec(j, d0)
		fd := (ep - em) / (2 * h)
		assert.InDelta(t, fd, f0.AtVec(j), 1e-6*math.Max(1, math.Abs(fd)), "f[%d]", j)
		for i := 0; i < n; i++ {
			kd := (fp[i] - fm[i]) / (2 * h)
			assert.InDelta(t, kd, K.At(i, j), 1e-5*math.Max(1, math.Abs(kd)), "K[%d,%d]", i, j)
		}
	}

	// equal and opposite total force on the two fibers
	var sum [3]float64
	for i, v := range utils.VecData(f0) {
		sum[i%3] += v
	}
	assert.InDeltaSlice(t, []float64{0, 0, 0}, sum[:], 1e-10)

	rt := out.NewRuntimeOutput(t.TempDir()+"/bp", false)
	bp.RuntimeOutputStepState(rt)
	rows := rt.Rows("beam_potential")
	require.Len(t, rows, 4*5)
	assert.Equal(t, 1., rows[0]["uid_0_beam_1_gid"])
	assert.Equal(t, 101., rows[0]["uid_1_beam_2_gid"])
	assert.Equal(t, 0., rows[0]["uid_2_gp_id"])
	assert.Contains(t, rows[0], "moment_z")
}

func TestBeamPotentialDefaultGaussPoints(t *testing.T) {
	var (
		dis   = fibers(t, 0.4, 2)
		gs    = newState(dis, 0.1)
		funcs = utils.NewFunctionManager()
	)
	bp := NewBeamPotential(gs, nil, dis, funcs, BeamPotentialParams{
		Prefactors: []float64{0.01}, Exponents: []float64{4},
		Conditions: []LineCharge{
			{Nodes: ids(1, 3), PotLaw: 1, Density: 1},
			{Nodes: ids(101, 3), PotLaw: 1, Density: 1},
		},
	})
	require.NoError(t, bp.Setup())
	assert.Equal(t, 10, bp.Params.NumGP)
	require.True(t, bp.EvaluateForceStiff())
	assert.False(t, utils.HasNaNOrInf(bp.fpot))
	assert.Greater(t, bp.Energy, 0.)
}

func TestBrownianClamp(t *testing.T) {
	var (
		sigma = math.Sqrt(2 * 1.0 / 0.01)
		x     = make([]float64, 1000000)
		in    int
	)
	drawClamped(x, sigma, 2, rand.NewPCG(11, 13))
	for _, v := range x {
		require.LessOrEqual(t, math.Abs(v), 2*sigma)
		if math.Abs(v) <= sigma {
			in++
		}
	}
	assert.InDelta(t, 0.6827, float64(in)/float64(len(x)), 0.01)

	drawClamped(x[:1000], sigma, -1, rand.NewPCG(11, 13))
	var over bool
	for _, v := range x[:1000] {
		over = over || math.Abs(v) > 2*sigma
	}
	assert.True(t, over)
}

func TestBrownianSteps(t *testing.T) {
	var (
		dis  = line(t, 2)
		gs   = newState(dis, 0.01)
		data = &Data{TimIntFacDis: 0.25 * 0.01 * 0.01, TimIntFacVel: 0.5 * 0.01}
		p    = BrownianParams{KT: 1, Viscosity: 0.2, TimeStep: 0.02, RandSeed: 4, MaxRandForce: 3}
	)
	b := NewBrownian(gs, data, dis, p)
	require.NoError(t, b.Setup())
	assert.InDelta(t, math.Sqrt(100), b.Sigma(), 1e-12)

	gs.SetTimeNp(0.01)
	require.True(t, b.EvaluateForceStiff())
	first := append([]float64{}, b.RandomNumbers(0)...)
	require.Len(t, first, 6)
	gs.SetTimeNp(0.015)
	require.True(t, b.EvaluateForce())
	assert.Equal(t, first, b.RandomNumbers(0))
	gs.SetTimeNp(0.02)
	require.True(t, b.EvaluateForce())
	assert.NotEqual(t, first, b.RandomNumbers(0))

	// drag only: the middle node gets the friction of both elements
	zeta := 4 * math.Pi * 0.2 * 0.5 / 2
	assert.InDelta(t, 2*zeta, b.drag.AtVec(3), 1e-14)
	J := utils.NewSparseOperator(9, 9, "J")
	b.AssembleJacobian(1, J)
	assert.InDelta(t, 2*zeta*data.VelocityFactor(), J.At(3, 3), 1e-10)

	var buf bytes.Buffer
	w := restart.NewWriter(2, 0.02)
	b.WriteRestart(w, false)
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)
	r, err := restart.NewReader(&buf)
	require.NoError(t, err)
	b2 := NewBrownian(gs, data, dis, p)
	require.NoError(t, b2.Setup())
	require.NoError(t, b2.ReadRestart(r))
	assert.Equal(t, b.RandomNumbers(1), b2.RandomNumbers(1))
}

func TestContactActiveSet(t *testing.T) {
	var (
		dis = line(t, 1)
		gs  = newState(dis, 0.1)
		J   = utils.NewSparseOperator(6, 6, "J")
	)
	c := NewContact(gs, nil, dis, ContactParams{
		Normal: geometry3D.Point{0, 0, 2}, PenaltyParam: 100, MaxPenetration: 0.1, Nodes: []int{1, 2},
	})
	require.NoError(t, c.Setup())
	require.True(t, c.EvaluateForceStiff())
	c.AssembleJacobian(1, J)
	J.Complete()
	assert.Equal(t, 0, c.NumActive)

	gs.DisNp().SetVec(2, -0.05)
	require.True(t, c.EvaluateForceStiff())
	assert.Equal(t, 1, c.NumActive)
	assert.InDelta(t, -0.05, c.Gap(0), 1e-15)
	J.Zero()
	c.AssembleJacobian(1, J)
	J.Complete()
	assert.Equal(t, 100., J.At(2, 2))
	f := utils.NewVec(6)
	c.AssembleForce(1, f)
	assert.InDelta(t, -5, f.AtVec(2), 1e-12)

	gs.DisNp().SetVec(2, -0.2)
	assert.False(t, c.EvaluateForce())

	assert.Error(t, NewContact(gs, nil, dis, ContactParams{Normal: geometry3D.Point{0, 0, 1}}).Setup())
}

func TestSpringDashpot(t *testing.T) {
	var (
		dis  = line(t, 1)
		gs   = newState(dis, 0.1)
		data = &Data{TimIntFacDis: 0.01, TimIntFacVel: 0.1}
	)
	sd := NewSpringDashpot(gs, data, dis, []SpringDashpotCondition{{
		Name: "robin", Nodes: []int{2}, Stiff: [3]float64{10, 20, 0}, Visco: [3]float64{1, 0, 0}, Area: 0.5,
	}})
	sd.Prestress, sd.PrestressTime = true, 0.1
	require.NoError(t, sd.Setup())
	gs.DisNp().SetVec(3, 0.1)
	gs.VelNp().SetVec(3, 2)
	gs.DisNp().SetVec(4, -0.2)
	require.True(t, sd.EvaluateForceStiff())
	f := utils.NewVec(6)
	sd.AssembleForce(1, f)
	assert.InDelta(t, 0.5*(10*0.1+1*2), f.AtVec(3), 1e-12)
	assert.InDelta(t, 0.5*20*-0.2, f.AtVec(4), 1e-12)
	J := utils.NewSparseOperator(6, 6, "J")
	sd.AssembleJacobian(1, J)
	assert.InDelta(t, 0.5*(10+1*10), J.At(3, 3), 1e-12)
	assert.InDelta(t, 0.5*(0.5*10*0.01+0.5*20*0.04), sd.SpringEnergy(), 1e-12)

	// within the prestress time the offset follows the displacement
	sd.UpdateStepState(1)
	assert.Equal(t, 0.1, sd.Offset().AtVec(3))
	require.True(t, sd.EvaluateForce())
	f.Zero()
	sd.AssembleForce(1, f)
	assert.InDelta(t, 0.5*2, f.AtVec(3), 1e-12)
}
