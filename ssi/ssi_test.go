package ssi

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gocsd/dbc"
	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/integrator"
	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/timint"
	"github.com/notargets/gocsd/utils"
)

var swellingTruss = func(e geometry3D.Element) (discretization.StructuralKernel, discretization.Material, error) {
	return discretization.Truss{}, discretization.Material{Youngs: 100, Density: 1, Swelling: 0.05, Diffusivity: 1}, nil
}

func bar(t *testing.T, nEle, firstID, dofs int) *discretization.Discretization {
	m := geometry3D.GenerateLine(geometry3D.Point{0, 0, 0}, geometry3D.Point{1, 0, 0}, nEle, firstID, firstID)
	dis, err := discretization.NewFromMesh("bar", m, dofs, 0, swellingTruss)
	require.NoError(t, err)
	return dis
}

// coupledFields builds a bar of four trusses along x, clamped at node 1 and
// free to stretch along x, and a scalar field on the same mesh held at 1 on
// node 1.
func coupledFields(t *testing.T, typ integrator.Type) (st *timint.TimeIntBase, dis *discretization.Discretization, sc *ScaTra) {
	dis = bar(t, 4, 1, 3)
	gs := state.NewGlobalState(nil)
	gs.Setup(dis.DofRowMap(), nil)
	data := &modelevaluator.Data{}
	mgr := modelevaluator.NewManager(gs, data)
	require.NoError(t, mgr.Add(modelevaluator.NewStructure(gs, data, dis, modelevaluator.StructureParams{})))
	sdbc, err := dbc.NewHandler(dis, nil, []dbc.Condition{
		{Name: "clamp", Nodes: []int{1}, OnOff: []bool{true, true, true}, Values: []float64{0, 0, 0}},
		{Name: "axial", Nodes: []int{2, 3, 4, 5}, OnOff: []bool{false, true, true}, Values: []float64{0, 0, 0}},
	}, nil, false)
	require.NoError(t, err)

	p := timint.DefaultParams()
	p.DeltaT, p.StepMax, p.TimeMax = 0.1, 5, 0.5
	p.RestartEvery = 0
	p.TolRes, p.TolDisp = 1e-10, 1e-10
	st, err = timint.NewTimeIntBase(p, gs, mgr, sdbc, nil)
	require.NoError(t, err)
	require.NoError(t, st.Setup(integrator.Params{Type: typ, RhoInf: 0.8}))

	scDis, err := dis.Clone("scatra", 1, 0)
	require.NoError(t, err)
	cdbc, err := dbc.NewHandler(scDis, nil, []dbc.Condition{
		{Name: "inflow", Nodes: []int{1}, OnOff: []bool{true}, Values: []float64{1}},
	}, nil, false)
	require.NoError(t, err)
	scp := DefaultScaTraParams()
	scp.Theta = 1
	sc, err = NewScaTra(scp, scDis, cdbc, nil)
	require.NoError(t, err)
	return
}

func newCoupled(t *testing.T, p Params) *Driver {
	st, dis, sc := coupledFields(t, integrator.TypeStatics)
	d, err := NewDriver(p, st, dis, sc)
	require.NoError(t, err)
	return d
}

func TestBlockSystem(t *testing.T) {
	identity := func(n int) *utils.SparseOperator {
		I := utils.NewSparseOperator(n, n, "I")
		for i := 0; i < n; i++ {
			I.Assemble(i, i, 1)
		}
		I.Complete()
		return I
	}
	empty := func(nr, nc int) *utils.SparseOperator {
		Z := utils.NewSparseOperator(nr, nc, "0")
		Z.Complete()
		return Z
	}
	for _, em := range []utils.EquilibrationMethod{utils.EquilNone, utils.EquilRowsFull} {
		bs := NewBlockSystem([]int{10, 5}, em, nil)
		assert.Equal(t, 15, bs.Size())
		bs.SetBlock(0, 0, identity(10))
		bs.SetBlock(0, 1, empty(10, 5))
		bs.SetBlock(1, 0, empty(5, 10))
		bs.SetBlock(1, 1, identity(5))
		r0, r1 := utils.NewVec(10), utils.NewVec(5)
		for i := 0; i < 10; i++ {
			r0.SetVec(i, -1)
		}
		for i := 0; i < 5; i++ {
			r1.SetVec(i, -2)
		}
		bs.SetResidual(0, r0)
		bs.SetResidual(1, r1)
		flags := make([]bool, 10)
		flags[0] = true
		bs.SetDirichlet(0, flags)
		bs.SetDirichlet(1, nil)
		require.NoError(t, bs.Solve(), em.String())

		assert.InDelta(t, math.Sqrt(29), bs.NormRes, 1e-12)
		assert.InDelta(t, math.Sqrt(29), bs.NormInc, 1e-10, em.String())
		d0, d1 := utils.NewVec(10), utils.NewVec(5)
		bs.ExtractIncrement(0, d0)
		bs.ExtractIncrement(1, d1)
		assert.Equal(t, 0., d0.AtVec(0))
		for i := 1; i < 10; i++ {
			assert.InDelta(t, 1, d0.AtVec(i), 1e-12)
		}
		for i := 0; i < 5; i++ {
			assert.InDelta(t, 2, d1.AtVec(i), 1e-12)
		}
	}
}

func TestParams(t *testing.T) {
	for _, name := range SchemeNames() {
		s, err := NewScheme(name)
		require.NoError(t, err)
		assert.Equal(t, name, s.String())
	}
	_, err := NewScheme("ssi_Loose")
	assert.ErrorIs(t, err, utils.ErrConfig)
	relax, aitken := IterStaggAitkenSolidToScatra.relaxed()
	assert.True(t, relax && aitken)
	relax, aitken = IterStaggFixedRelScatraToSolid.relaxed()
	assert.True(t, relax)
	assert.False(t, aitken)
	assert.True(t, IterStaggFixedRelScatraToSolid.scatraFirst())
	assert.False(t, IterStagg.scatraFirst())

	fc, err := NewFieldCoupling("boundary_nonmatch")
	require.NoError(t, err)
	assert.Equal(t, BoundaryNonMatch, fc)
	_, err = NewFieldCoupling("mortar")
	assert.ErrorIs(t, err, utils.ErrConfig)
	_, err = NewScaTraType("levelset")
	assert.ErrorIs(t, err, utils.ErrConfig)

	p := DefaultParams()
	require.NoError(t, p.Validate())
	p.Omega = 0
	assert.ErrorIs(t, p.Validate(), utils.ErrConfig)
	sp := DefaultScaTraParams()
	sp.Theta = 0
	assert.ErrorIs(t, sp.Validate(), utils.ErrConfig)
}

func TestInterfaceConditions(t *testing.T) {
	var (
		sdis = bar(t, 2, 1, 3)
		cdis = bar(t, 2, 1, 1)
	)
	assert.NoError(t, CheckInterfaceConditions(VolumeMatch, sdis, cdis))

	sdis.NodeSets[CondInterfaceMeshtying] = []int{1, 2}
	assert.ErrorIs(t, CheckInterfaceConditions(VolumeMatch, sdis, cdis), utils.ErrConfig)
	cdis.NodeSets[CondS2IKinetics] = []int{2, 1}
	assert.NoError(t, CheckInterfaceConditions(VolumeMatch, sdis, cdis))
	cdis.NodeSets[CondS2IKinetics] = []int{1}
	assert.ErrorIs(t, CheckInterfaceConditions(VolumeMatch, sdis, cdis), utils.ErrConfig)

	delete(sdis.NodeSets, CondInterfaceMeshtying)
	assert.ErrorIs(t, CheckInterfaceConditions(VolumeMatch, sdis, cdis), utils.ErrConfig)
	sdis.NodeSets[CondInterfaceContact] = []int{1}
	assert.NoError(t, CheckInterfaceConditions(VolumeMatch, sdis, cdis))

	cdis.NodeSets[CondCoupling] = []int{3}
	assert.ErrorIs(t, CheckInterfaceConditions(VolumeMatch, sdis, cdis), utils.ErrConfig)
	assert.NoError(t, CheckInterfaceConditions(VolumeBoundaryMatch, sdis, cdis))
}

func TestCoupling(t *testing.T) {
	var (
		sdis = bar(t, 4, 1, 3)
		cdis = bar(t, 2, 11, 1)
	)
	c, err := NewCoupling(VolumeMatch, sdis, mustClone(t, sdis))
	require.NoError(t, err)
	assert.Equal(t, 5, c.NumCoupled())

	_, err = NewCoupling(VolumeMatch, sdis, cdis)
	assert.ErrorIs(t, err, utils.ErrConfig)
	_, err = NewCoupling(BoundaryNonMatch, sdis, cdis)
	assert.ErrorIs(t, err, utils.ErrConfig)

	c, err = NewCoupling(VolumeNonMatch, sdis, cdis)
	require.NoError(t, err)
	assert.Equal(t, 3, c.NumCoupled())
	var (
		phi  = utils.NewVec(3)
		conc = utils.NewVec(5)
	)
	phi.SetVec(0, 10)
	phi.SetVec(1, 20)
	phi.SetVec(2, 30)
	c.ScaTraToStructure(phi, conc)
	assert.Equal(t, 10., conc.AtVec(0))
	assert.Equal(t, 20., conc.AtVec(2))
	assert.Equal(t, 30., conc.AtVec(4))

	var (
		disp = utils.NewVec(15)
		dst  = utils.NewVec(9)
	)
	for i := 0; i < 15; i++ {
		disp.SetVec(i, float64(i))
	}
	c.StructureToScaTra(disp, dst)
	// scalar node 12 sits on structure node 3
	assert.Equal(t, 6., dst.AtVec(3))
	assert.Equal(t, 14., dst.AtVec(8))

	// only the listed nodes take part
	sdis.NodeSets[CondCoupling] = []int{5}
	cdis.NodeSets[CondCoupling] = []int{11}
	c, err = NewCoupling(BoundaryNonMatch, sdis, cdis)
	require.NoError(t, err)
	assert.Equal(t, 1, c.NumCoupled())
	c.ScaTraToStructure(phi, conc)
	assert.Equal(t, 10., conc.AtVec(4))
	assert.Equal(t, 0., conc.AtVec(0))
}

func mustClone(t *testing.T, dis *discretization.Discretization) *discretization.Discretization {
	c, err := dis.Clone("scatra", 1, 0)
	require.NoError(t, err)
	return c
}

func runScaTra(t *testing.T, sc *ScaTra, dt float64, steps int) {
	sc.PrepareTimeLoop()
	for s := 1; s <= steps; s++ {
		require.NoError(t, sc.PrepareTimeStep(float64(s)*dt, dt, s))
		require.NoError(t, sc.Solve())
		sc.Update()
	}
}

func TestScaTraDiffusionConserves(t *testing.T) {
	sp := DefaultScaTraParams()
	sp.Theta = 1
	sc, err := NewScaTra(sp, bar(t, 8, 1, 1), nil, nil)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		sc.Phin.SetVec(i, 1)
	}
	sc.Phinp.CopyVec(sc.Phin)
	sc.PrepareTimeLoop()
	total := sc.Total()
	assert.InDelta(t, 0.5-1./16, total, 1e-12)

	runScaTra(t, sc, 0.01, 20)
	assert.InDelta(t, total, sc.Total(), 1e-10)
	phi := utils.VecData(sc.Phin)
	assert.Less(t, floats.Max(phi), 1.)
	assert.Greater(t, floats.Min(phi), 0.)
	assert.Equal(t, 1, sc.Iter)
}

func TestScaTraPrescribedValueHeld(t *testing.T) {
	sp := DefaultScaTraParams()
	sp.Type, sp.Reaction, sp.Threshold = ScaTraCardiacMonodomain, 5, 0.2
	dis := bar(t, 6, 1, 1)
	h, err := dbc.NewHandler(dis, nil, []dbc.Condition{
		{Name: "inflow", Nodes: []int{1}, OnOff: []bool{true}, Values: []float64{0.7}},
	}, nil, false)
	require.NoError(t, err)
	sc, err := NewScaTra(sp, dis, h, nil)
	require.NoError(t, err)
	sc.PrepareTimeLoop()
	for s := 1; s <= 6; s++ {
		require.NoError(t, sc.PrepareTimeStep(float64(s)*0.05, 0.05, s))
		require.NoError(t, sc.Solve())
		assert.Equal(t, 0.7, sc.Phinp.AtVec(0))
		sc.Update()
	}
	assert.Greater(t, sc.Phin.AtVec(1), 0.)
}

func TestScaTraReactions(t *testing.T) {
	sp := DefaultScaTraParams()
	sp.Reaction, sp.InitialValue = 2, 1
	sc, err := NewScaTra(sp, bar(t, 3, 1, 1), nil, nil)
	require.NoError(t, err)
	var (
		dt   = 0.1
		want = 1.
	)
	runScaTra(t, sc, dt, 5)
	for s := 0; s < 5; s++ {
		want *= (1 - sp.Reaction*dt/2) / (1 + sp.Reaction*dt/2)
	}
	for i := 0; i < 4; i++ {
		assert.InDelta(t, want, sc.Phin.AtVec(i), 1e-12)
	}

	// derivatives of the reaction terms
	for _, typ := range []ScaTraType{ScaTraStandard, ScaTraCardiacMonodomain, ScaTraElch} {
		sc.Params.Type = typ
		for _, phi := range []float64{-0.3, 0.05, 0.4, 0.9} {
			var (
				h     = 1e-6
				_, dr = sc.reaction(phi)
				rp, _ = sc.reaction(phi + h)
				rm, _ = sc.reaction(phi - h)
			)
			assert.InDelta(t, (rp-rm)/(2*h), dr, 1e-6, "%s at %v", typ, phi)
		}
	}
	sc.Params.Type = ScaTraCardiacMonodomain
	for _, phi := range []float64{0, sc.Params.Threshold, 1} {
		r, _ := sc.reaction(phi)
		assert.Equal(t, 0., r)
	}
}

func TestDriverChecks(t *testing.T) {
	st, dis, sc := coupledFields(t, integrator.TypeCentrDiff)
	p := DefaultParams()
	p.Scheme = Monolithic
	_, err := NewDriver(p, st, dis, sc)
	assert.ErrorIs(t, err, utils.ErrConfig)

	st, dis, sc = coupledFields(t, integrator.TypeStatics)
	p.Scheme = IterStagg
	sc.Dis.NodeSets[CondS2IKinetics] = []int{1}
	_, err = NewDriver(p, st, dis, sc)
	assert.ErrorIs(t, err, utils.ErrConfig)
}

func tip(d *Driver) float64 { return d.Struct.GS.DisN().AtVec(12) }

func TestCoupledSchemesAgree(t *testing.T) {
	var (
		results = make(map[Scheme][][2]float64)
	)
	for _, s := range []Scheme{IterStagg, IterStaggAitkenSolidToScatra, IterStaggAitkenScatraToSolid,
		IterStaggFixedRelScatraToSolid, Monolithic} {
		p := DefaultParams()
		p.Scheme = s
		p.ItMax, p.ConvTol = 30, 1e-9
		p.Omega, p.MaxOmega = 0.8, 2
		d := newCoupled(t, p)
		require.NoError(t, d.PostSetup())
		for step := 0; step < 5; step++ {
			require.NoError(t, d.IntegrateStep(), s.String())
			results[s] = append(results[s], [2]float64{tip(d), d.ScaTra.Phin.AtVec(4)})
		}
		gs := d.Struct.GS
		assert.Equal(t, 5, gs.StepN())
		assert.InDelta(t, 0.5, gs.TimeN(), 1e-12)
		assert.Equal(t, 1., d.ScaTra.Phin.AtVec(0))
		assert.Greater(t, tip(d), 0., s.String())
		// transverse DOFs stay put
		assert.Equal(t, 0., gs.DisN().AtVec(13))
		assert.Equal(t, 5, d.Struct.Runtime.Len("scatra"))
	}
	ref := results[Monolithic]
	assert.Greater(t, ref[4][1], 0.)
	assert.Less(t, ref[4][1], 1.)
	for step := 1; step < 5; step++ {
		// the bar keeps swelling
		assert.Greater(t, ref[step][0], ref[step-1][0])
	}
	for s, r := range results {
		for step := range r {
			assert.InDelta(t, ref[step][0], r[step][0], 1e-6, "%s step %d", s, step+1)
			assert.InDelta(t, ref[step][1], r[step][1], 1e-6, "%s step %d", s, step+1)
		}
	}
}

func TestStructureScaTraBlock(t *testing.T) {
	st, dis, sc := coupledFields(t, integrator.TypeGenAlpha)
	p := DefaultParams()
	p.Scheme = Monolithic
	d, err := NewDriver(p, st, dis, sc)
	require.NoError(t, err)
	require.NotNil(t, d.structure)
	require.NoError(t, d.PostSetup())
	for s := 0; s < 2; s++ {
		require.NoError(t, d.IntegrateStep())
	}
	var (
		gs = st.GS
		x  = st.Int.Unknown()
		fs = utils.NewVec(x.Len())
	)
	for i := 0; i < sc.Phinp.Len(); i++ {
		sc.Phinp.SetVec(i, 0.1*float64(i+1))
	}
	d.setScaTraState(sc.Phinp)
	require.True(t, st.Int.ApplyForceStiff(x, fs, gs.Jacobian()))

	var (
		K   = d.structureScaTraBlock(x, fs)
		Kfd = utils.NewSparseOperator(fs.Len(), sc.Phinp.Len(), "fd")
	)
	d.structureScaTraFD(Kfd, x, fs)
	Kfd.Complete()
	var (
		Ka, Kf = K.ToDense(), Kfd.ToDense()
		nr, nc = Ka.Dims()
	)
	assert.Greater(t, K.NNZ(), 0)
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			assert.InDelta(t, Kf.At(i, j), Ka.At(i, j), 1e-5, "(%d,%d)", i, j)
		}
	}
}

func TestOneWay(t *testing.T) {
	p := DefaultParams()
	p.Scheme = OneWayScatraToSolid
	d := newCoupled(t, p)
	assert.Nil(t, d.ScaTra.Disp)
	require.NoError(t, d.PostSetup())
	require.NoError(t, d.Integrate())
	assert.Greater(t, tip(d), 0.)

	p.Scheme = OneWaySolidToScatra
	d = newCoupled(t, p)
	assert.Nil(t, d.Struct.Data.Concentration)
	require.NoError(t, d.PostSetup())
	require.NoError(t, d.Integrate())
	// without swelling the bar does not move
	assert.InDelta(t, 0, tip(d), 1e-12)
	assert.Greater(t, d.ScaTra.Phin.AtVec(1), 0.)
}

func TestSSIRestart(t *testing.T) {
	p := DefaultParams()
	p.Scheme = IterStagg
	p.ConvTol = 1e-9
	var (
		d1 = newCoupled(t, p)
		d2 = newCoupled(t, p)
	)
	require.NoError(t, d1.PostSetup())
	for s := 0; s < 2; s++ {
		require.NoError(t, d1.IntegrateStep())
	}
	var buf bytes.Buffer
	w := restart.NewWriter(d1.Struct.GS.StepN(), d1.Struct.GS.TimeN())
	d1.Struct.WriteRestartTo(w, false)
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)
	structOnly := restart.NewWriter(d1.Struct.GS.StepN(), d1.Struct.GS.TimeN())
	d1.Struct.WriteAuxRestart = nil
	d1.Struct.WriteRestartTo(structOnly, false)
	require.NoError(t, d1.IntegrateStep())

	r, err := restart.NewReader(&buf)
	require.NoError(t, err)
	require.NoError(t, d2.Struct.ReadRestartFrom(r))
	require.NoError(t, d2.PostSetup())
	require.NoError(t, d2.IntegrateStep())
	assert.Equal(t, 3, d2.Struct.GS.StepN())
	assert.InDelta(t, tip(d1), tip(d2), 1e-12)
	for i := 0; i < 5; i++ {
		assert.InDelta(t, d1.ScaTra.Phin.AtVec(i), d2.ScaTra.Phin.AtVec(i), 1e-12)
	}

	// a structure restart lacks the scalar records
	var sbuf bytes.Buffer
	_, err = structOnly.WriteTo(&sbuf)
	require.NoError(t, err)
	data := sbuf.Bytes()

	d3 := newCoupled(t, p)
	r, err = restart.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.ErrorIs(t, d3.Struct.ReadRestartFrom(r), utils.ErrIO)

	p.RestartFromStructure = true
	d4 := newCoupled(t, p)
	r, err = restart.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, d4.Struct.ReadRestartFrom(r))
	require.NoError(t, d4.PostSetup())
	assert.Equal(t, 0., d4.ScaTra.Phin.AtVec(1))
	require.NoError(t, d4.IntegrateStep())
	assert.Equal(t, 3, d4.Struct.GS.StepN())
	assert.InDelta(t, 0.3, d4.Struct.GS.TimeN(), 1e-12)
	assert.Equal(t, 1., d4.ScaTra.Phin.AtVec(0))
}
