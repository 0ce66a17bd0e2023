package integrator

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/dbc"
	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

// oscillator is a set of uncoupled linear mass spring dampers with a constant
// load, fint = k D - fext.
type oscillator struct {
	gs         *state.GlobalState
	m, k, c, p float64
	fint       *mat.VecDense
	stiff      *utils.SparseOperator
}

func (o *oscillator) Type() modelevaluator.Type { return modelevaluator.TypeStructure }

func (o *oscillator) Setup() error {
	var (
		n    = o.gs.DofRowMap().Len()
		M, C = o.gs.MassMatrix(), o.gs.DampMatrix()
	)
	o.fint = utils.NewVec(n)
	o.stiff = utils.NewSparseOperator(n, n, "oscillator")
	for i := 0; i < n; i++ {
		M.Assemble(i, i, o.m)
		C.Assemble(i, i, o.c)
		o.stiff.Assemble(i, i, o.k)
	}
	M.Complete()
	C.Complete()
	o.stiff.Complete()
	return nil
}

func (o *oscillator) PostSetup() error      { return nil }
func (o *oscillator) Reset(x *mat.VecDense) {}

func (o *oscillator) EvaluateForce() bool {
	gs := o.gs
	o.fint.ScaleVec(o.k, gs.DisNp())
	for i := 0; i < o.fint.Len(); i++ {
		o.fint.SetVec(i, o.fint.AtVec(i)-o.p)
	}
	gs.FintNp().CopyVec(o.fint)
	gs.MassMatrix().MulVec(gs.FinertNp(), false, gs.AccNp())
	gs.DampMatrix().MulVec(gs.FviscoNp(), false, gs.VelNp())
	return true
}

func (o *oscillator) EvaluateStiff() bool      { return true }
func (o *oscillator) EvaluateForceStiff() bool { return o.EvaluateForce() }

func (o *oscillator) AssembleForce(w float64, f *mat.VecDense) { f.AddScaledVec(f, w, o.fint) }

func (o *oscillator) AssembleJacobian(w float64, J *utils.SparseOperator) {
	J.Add(o.stiff, false, w, 1)
}

func (o *oscillator) UpdateStepState(w float64) {
	fso := o.gs.FstructOld()
	fso.AddScaledVec(fso, w, o.fint)
}

func (o *oscillator) UpdateStepElement()                           {}
func (o *oscillator) WriteRestart(w *restart.Writer, forced bool)  {}
func (o *oscillator) ReadRestart(r *restart.Reader) error          { return nil }
func (o *oscillator) PostUpdate()                                  {}
func (o *oscillator) Predict(kind modelevaluator.PredictorKind)    {}
func (o *oscillator) RuntimeOutputStepState(rt *out.RuntimeOutput) {}

// newContext sets up n oscillators with D_0 = d0, V_0 = v0.
func newContext(t *testing.T, n int, dt, d0, v0 float64) (ctx Context, osc *oscillator) {
	gs := state.NewGlobalState(nil)
	gs.Init(0, dt, 100, 100*dt)
	gs.Setup(utils.NewContiguousDofMap(n, 0), nil)
	for i := 0; i < n; i++ {
		gs.DisN().SetVec(i, d0)
		gs.VelN().SetVec(i, v0)
	}
	data := &modelevaluator.Data{}
	mgr := modelevaluator.NewManager(gs, data)
	osc = &oscillator{gs: gs, m: 1, k: 100, c: 0.1}
	require.NoError(t, mgr.Add(osc))
	require.NoError(t, mgr.Setup())
	ctx = Context{GS: gs, Manager: mgr, Data: data, Solver: utils.NewLinearSolver(utils.SolverParams{})}
	return
}

// step runs one time step with a single linear solve, which converges the
// linear oscillator.
func step(t *testing.T, it Integrator, ctx Context) (res float64) {
	var (
		gs = ctx.GS
		n  = gs.DofRowMap().Len()
		f  = utils.NewVec(n)
		dx = utils.NewVec(n)
		J  = gs.Jacobian()
	)
	gs.PrepareTimeStep()
	require.NoError(t, it.Predict(modelevaluator.PredConstDis))
	x := it.Unknown()
	require.True(t, it.ApplyForceStiff(x, f, J))
	require.NoError(t, ctx.Solver.Solve(J, dx, f))
	x.SubVec(x, dx)
	require.True(t, it.ApplyForce(x, f))
	res = utils.Norm(f, utils.NormInf)
	it.UpdateStepState()
	it.UpdateStepElement()
	gs.UpdateTimeStep()
	it.PostUpdate()
	return
}

func TestGenAlphaCoefficients(t *testing.T) {
	for i := 0; i <= 10; i++ {
		rho := float64(i) / 10
		b, g, af, am := GenAlphaCoefficients(rho)
		assert.InDelta(t, 0.5-am+af, g, 1e-14)
		assert.InDelta(t, (1-am+af)*(1-am+af), 4*b, 1e-14)
		assert.True(t, am >= -1 && am < 1)
		assert.True(t, af >= 0 && af < 1)
	}
	{ // explicit coefficients out of range
		ctx, _ := newContext(t, 1, 0.01, 0, 0)
		ga := NewGenAlpha(ctx, Params{RhoInf: -1, Beta: 0.25, Gamma: 0.5, AlphaF: 1, AlphaM: 0})
		err := ga.Setup()
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrConfig)
		ga = NewGenAlpha(ctx, Params{RhoInf: -1, Beta: 0.6, Gamma: 0.5})
		assert.Error(t, ga.Setup())
		ga = NewGenAlpha(ctx, Params{RhoInf: 1.5})
		assert.Error(t, ga.Setup())
	}
	{ // rho_inf overrides the explicit values
		ctx, _ := newContext(t, 1, 0.01, 0, 0)
		ga := NewGenAlpha(ctx, Params{RhoInf: 1, Beta: 0.9, AlphaF: 2})
		require.NoError(t, ga.Setup())
		assert.InDelta(t, 0.5, ga.AlphaF, 1e-15)
		assert.InDelta(t, 0.5, ga.AlphaM, 1e-15)
		assert.InDelta(t, 0.25, ga.Beta, 1e-15)
		assert.InDelta(t, 0.5, ga.Gamma, 1e-15)
		assert.InDelta(t, 0.5, ga.ModelEvalFactor(), 1e-15)
		assert.InDelta(t, 0.25e-4, ctx.Data.TimIntFacDis, 1e-18)
	}
	{
		_, err := NewType("Euler")
		assert.Error(t, err)
		tp, err := NewType("ExplicitEuler")
		require.NoError(t, err)
		assert.Equal(t, TypeAdamsBashforth2, tp)
	}
}

func TestConstAccPredictor(t *testing.T) {
	dt := 0.01
	for _, newScheme := range []func(ctx Context) Integrator{
		func(ctx Context) Integrator { return NewGenAlpha(ctx, Params{RhoInf: 0.8}) },
		func(ctx Context) Integrator { return NewOneStepTheta(ctx, 0.66) },
	} {
		ctx, _ := newContext(t, 3, dt, 0.3, 2)
		it := newScheme(ctx)
		require.NoError(t, it.Setup())
		gs := ctx.GS
		gs.AccN().Zero()
		gs.PrepareTimeStep()
		require.NoError(t, it.Predict(modelevaluator.PredConstAcc))
		for i := 0; i < 3; i++ {
			assert.InDelta(t, 0.3+dt*2, gs.DisNp().AtVec(i), 1e-14, it.Name())
			assert.InDelta(t, 2, gs.VelNp().AtVec(i), 1e-10, it.Name())
			assert.InDelta(t, 0, gs.AccNp().AtVec(i), 1e-7, it.Name())
		}
	}
	{ // statics only knows displacement predictors
		ctx, _ := newContext(t, 1, dt, 0, 0)
		s := NewStatics(ctx)
		require.NoError(t, s.Setup())
		err := s.Predict(modelevaluator.PredConstAcc)
		assert.ErrorIs(t, err, utils.ErrConfig)
		assert.NoError(t, s.Predict(modelevaluator.PredConstDis))
	}
}

func TestInitialAcceleration(t *testing.T) {
	ctx, _ := newContext(t, 2, 0.01, 1, 0.5)
	ga := NewGenAlpha(ctx, Params{RhoInf: 0.8})
	require.NoError(t, ga.Setup())
	require.NoError(t, ga.DetermineInitialAcceleration())
	var (
		gs = ctx.GS
		r  = utils.NewVec(2)
	)
	// M A_0 + C V_0 + fint(D_0)
	gs.MassMatrix().MulVec(r, false, gs.AccN())
	r.AddScaledVec(r, 0.1, gs.VelN())
	r.AddScaledVec(r, 100, gs.DisN())
	assert.Less(t, utils.Norm(r, utils.NormInf), 1e-6)
	assert.InDelta(t, -(100 + 0.05), gs.AccN().AtVec(0), 1e-10)
	assert.InDelta(t, gs.AccN().AtVec(1), gs.FinertN().AtVec(1), 1e-12)
}

func TestInitialStructOld(t *testing.T) {
	for _, p := range []Params{
		{Type: TypeGenAlpha, RhoInf: 0.8},
		{Type: TypeOneStepTheta, Theta: 0.6},
		{Type: TypeStatics},
	} {
		ctx, osc := newContext(t, 2, 0.01, 1, 0.5)
		osc.p = 3
		it, err := New(ctx, p)
		require.NoError(t, err)
		require.NoError(t, it.Setup())
		ctx.GS.FstructOld().SetVec(0, 7)
		require.NoError(t, it.DetermineInitialAcceleration())
		// w (k D_0 - p) with the weight of the step n forces
		want := it.IntParam() * (100*1 - 3)
		for i := 0; i < 2; i++ {
			assert.InDelta(t, want, ctx.GS.FstructOld().AtVec(i), 1e-12, it.Name())
		}
	}
}

func TestImplicitLinearStep(t *testing.T) {
	for _, p := range []Params{
		{Type: TypeGenAlpha, RhoInf: 0.8},
		{Type: TypeGenAlpha, RhoInf: -1, Beta: 0.25, Gamma: 0.5},
		{Type: TypeOneStepTheta, Theta: 0.5},
		{Type: TypeOneStepTheta, Theta: 1},
		{Type: TypeStatics},
	} {
		ctx, osc := newContext(t, 2, 0.01, 1, 0)
		osc.p = 3
		it, err := New(ctx, p)
		require.NoError(t, err)
		require.NoError(t, it.Setup())
		require.NoError(t, it.DetermineInitialAcceleration())
		for s := 0; s < 5; s++ {
			assert.Less(t, step(t, it, ctx), 1e-9, it.Name())
		}
		if p.Type == TypeStatics {
			assert.InDelta(t, 0.03, ctx.GS.DisN().AtVec(0), 1e-12)
		}
	}
}

func TestGenAlphaEnergyDecay(t *testing.T) {
	// undamped, rho_inf = 1 keeps the amplitude
	ctx, osc := newContext(t, 1, 0.01, 1, 0)
	osc.c = 0
	ctx.GS.DampMatrix().Zero()
	ga := NewGenAlpha(ctx, Params{RhoInf: 1})
	require.NoError(t, ga.Setup())
	require.NoError(t, ga.DetermineInitialAcceleration())
	energy := func() float64 {
		d, v := ctx.GS.DisN().AtVec(0), ctx.GS.VelN().AtVec(0)
		return 0.5*v*v + 0.5*100*d*d
	}
	e0 := energy()
	for s := 0; s < 200; s++ {
		step(t, ga, ctx)
	}
	assert.InDelta(t, e0, energy(), 1e-8)
}

func TestCentrDiff(t *testing.T) {
	var (
		dt       = 0.001
		ctx, osc = newContext(t, 1, dt, 1, 0)
		cd       = NewCentrDiff(ctx)
		gs       = ctx.GS
	)
	osc.c = 0
	gs.DampMatrix().Zero()
	require.NoError(t, cd.Setup())
	assert.False(t, cd.IsImplicit())
	require.NoError(t, cd.DetermineInitialAcceleration())
	for s := 0; s < 100; s++ {
		step(t, cd, ctx)
	}
	// omega = 10, t = 0.1
	assert.InDelta(t, math.Cos(1), gs.DisN().AtVec(0), 1e-4)
	assert.InDelta(t, -10*math.Sin(1), gs.VelN().AtVec(0), 1e-3)
}

func TestExplicitPrescribedMotion(t *testing.T) {
	var (
		dt   = 0.01
		mesh = geometry3D.GenerateLine(geometry3D.Point{0, 0, 0}, geometry3D.Point{1, 0, 0}, 1, 1, 1)
	)
	dis, err := discretization.NewFromMesh("line", mesh, 3, 0,
		func(e geometry3D.Element) (discretization.StructuralKernel, discretization.Material, error) {
			return discretization.Truss{}, discretization.Material{Youngs: 1, Density: 1}, nil
		})
	require.NoError(t, err)
	var (
		ctx, _ = newContext(t, dis.DofRowMap().Len(), dt, 0, 0)
		funcs  = utils.NewFunctionManager(utils.Polynomial{C: []float64{0, 1}})
		conds  = []dbc.Condition{
			{Name: "pull", Nodes: []int{1}, OnOff: []bool{true}, Values: []float64{0.5}, Funct: []int{1}},
		}
	)
	ctx.DBC, err = dbc.NewHandler(dis, funcs, conds, nil, false)
	require.NoError(t, err)
	cd := NewCentrDiff(ctx)
	require.NoError(t, cd.Setup())
	for s := 1; s <= 3; s++ {
		step(t, cd, ctx)
		assert.InDelta(t, 0.5*float64(s)*dt, ctx.GS.DisN().AtVec(0), 1e-14)
		assert.Equal(t, 0.5, ctx.GS.VelN().AtVec(0))
	}

	// undefined time function
	conds[0].Funct = []int{4}
	ctx.DBC, err = dbc.NewHandler(dis, funcs, conds, nil, false)
	require.NoError(t, err)
	cd = NewCentrDiff(ctx)
	require.NoError(t, cd.Setup())
	ctx.GS.PrepareTimeStep()
	assert.ErrorIs(t, cd.Predict(modelevaluator.PredConstDis), utils.ErrConfig)
}

func TestAdamsBashforthBootstrap(t *testing.T) {
	var (
		dt     = 0.001
		ctx, _ = newContext(t, 2, dt, 1, 0)
		ab     = NewAdamsBashforth(ctx, 4)
		gs     = ctx.GS
	)
	require.NoError(t, ab.Setup())
	assert.Equal(t, 3, gs.MultiVel().Past())
	require.NoError(t, ab.DetermineInitialAcceleration())
	{ // the first step is forward Euler
		vn, an := gs.VelN().AtVec(0), gs.AccN().AtVec(0)
		step(t, ab, ctx)
		assert.InDelta(t, vn+dt*an, gs.VelN().AtVec(0), 1e-14)
	}
	for s := 1; s < 4; s++ {
		assert.Equal(t, []float64{1}, ab.Coefficients())
		step(t, ab, ctx)
	}
	assert.Equal(t, 4, ab.ComputePhase)
	assert.Equal(t, []float64{55. / 24., -59. / 24., 37. / 24., -9. / 24.}, ab.Coefficients())
	{ // multistep update
		want := utils.CloneVec(gs.VelN())
		for i, c := range ab.Coefficients() {
			want.AddScaledVec(want, dt*c, gs.MultiAcc().At(-i))
		}
		gs.PrepareTimeStep()
		require.NoError(t, ab.Predict(modelevaluator.PredConstDis))
		assert.InDelta(t, want.AtVec(1), gs.VelNp().AtVec(1), 1e-14)
	}
	{ // restart carries the history
		var buf bytes.Buffer
		w := restart.NewWriter(gs.StepN(), gs.TimeN())
		gs.WriteRestart(w)
		ab.WriteRestart(w, false)
		_, err := w.WriteTo(&buf)
		require.NoError(t, err)
		r, err := restart.NewReader(&buf)
		require.NoError(t, err)

		ctx2, _ := newContext(t, 2, dt, 0, 0)
		ab2 := NewAdamsBashforth(ctx2, 4)
		require.NoError(t, ab2.Setup())
		require.NoError(t, ctx2.GS.ReadRestart(r))
		require.NoError(t, ab2.ReadRestart(r))
		assert.Equal(t, 4, ab2.ComputePhase)
		for i := 0; i < 4; i++ {
			assert.True(t, mat.Equal(gs.MultiAcc().At(-i), ctx2.GS.MultiAcc().At(-i)), "acc %d", i)
			assert.True(t, mat.Equal(gs.MultiVel().At(-i), ctx2.GS.MultiVel().At(-i)), "vel %d", i)
		}
	}
	{ // variable steps are rejected
		gs.SetDeltaT(dt / 2)
		gs.PrepareTimeStep()
		err := ab.Predict(modelevaluator.PredConstDis)
		assert.ErrorIs(t, err, utils.ErrRuntime)
	}
	{
		ab2 := NewAdamsBashforth(ctx, 3)
		assert.Error(t, ab2.Setup())
	}
}
