// Package integrator holds the structural time integration schemes. Each
// scheme turns the model forces of the manager into the residual and
// Jacobian of its unknown and updates the state after convergence.
package integrator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/dbc"
	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

type Integrator interface {
	Name() string
	IsImplicit() bool
	Setup() error
	PostSetup() error
	// Unknown is the live vector the Newton loop updates, D_{n+1} for the
	// implicit schemes and A_{n+1} for the explicit ones.
	Unknown() *mat.VecDense
	SetState(x *mat.VecDense)
	ApplyForce(x, f *mat.VecDense) bool
	ApplyStiff(x *mat.VecDense, J *utils.SparseOperator) bool
	ApplyForceStiff(x, f *mat.VecDense, J *utils.SparseOperator) bool
	AddViscoMassContributions(f *mat.VecDense)
	AddViscoMassContributionsJac(J *utils.SparseOperator)
	UpdateStepState()
	UpdateStepElement()
	PostUpdate()
	Predict(kind modelevaluator.PredictorKind) error
	IntParam() float64
	AccIntParam() float64
	ModelEvalFactor() float64
	ResetEvalParams()
	UpdateConstantStateContributions()
	DetermineInitialAcceleration() error
	WriteRestart(w *restart.Writer, forced bool)
	ReadRestart(r *restart.Reader) error
}

// Context is what a scheme borrows from the time integrator.
type Context struct {
	GS      *state.GlobalState
	Manager *modelevaluator.Manager
	Data    *modelevaluator.Data
	// nil when nothing is constrained
	DBC    *dbc.Handler
	Solver utils.LinearSolver
}

func (c *Context) check(name string) error {
	if c.GS == nil || c.Manager == nil || c.Data == nil {
		return utils.NewConfigError(name+".Setup", "global state, model evaluator manager and data are required")
	}
	if c.Solver == nil {
		c.Solver = utils.NewLinearSolver(utils.SolverParams{})
	}
	return nil
}

type Type uint8

const (
	TypeGenAlpha Type = iota
	TypeOneStepTheta
	TypeStatics
	TypeCentrDiff
	TypeAdamsBashforth2
	TypeAdamsBashforth4
)

var typeNames = map[string]Type{
	"GenAlpha":        TypeGenAlpha,
	"OneStepTheta":    TypeOneStepTheta,
	"Statics":         TypeStatics,
	"CentrDiff":       TypeCentrDiff,
	"ExplicitEuler":   TypeAdamsBashforth2,
	"AdamsBashforth2": TypeAdamsBashforth2,
	"AdamsBashforth4": TypeAdamsBashforth4,
}

func NewType(label string) (Type, error) {
	if t, ok := typeNames[label]; ok {
		return t, nil
	}
	return TypeStatics, utils.NewConfigError("NewType", "unknown dynamic type %q", label)
}

// Params collects the scheme coefficients of the input file.
type Params struct {
	Type Type
	// generalized alpha, RhoInf in [0,1] overrides the explicit coefficients
	RhoInf, Beta, Gamma, AlphaF, AlphaM float64
	Theta                               float64
	// rotation DOFs request the Lie group variant
	RotationDofs bool
}

// New builds the scheme of p.Type.
func New(ctx Context, p Params) (Integrator, error) {
	switch p.Type {
	case TypeGenAlpha:
		return NewGenAlpha(ctx, p), nil
	case TypeOneStepTheta:
		return NewOneStepTheta(ctx, p.Theta), nil
	case TypeStatics:
		return NewStatics(ctx), nil
	case TypeCentrDiff:
		return NewCentrDiff(ctx), nil
	case TypeAdamsBashforth2:
		return NewAdamsBashforth(ctx, 2), nil
	case TypeAdamsBashforth4:
		return NewAdamsBashforth(ctx, 4), nil
	}
	return nil, utils.NewConfigError("integrator.New", "unsupported scheme %d", p.Type)
}

// base carries the parts shared by all schemes.
type base struct {
	Context
}

func (b *base) UpdateStepElement() { b.Manager.UpdateStepElement() }

func (b *base) PostUpdate() { b.Manager.PostUpdate() }

func (b *base) PostSetup() error { return b.Manager.PostSetup() }

func (b *base) applyDBC(D, V, A *mat.VecDense) error {
	if b.DBC == nil {
		return nil
	}
	return b.DBC.ApplyDirichletBC(b.GS.TimeNp(), D, V, A, false)
}

// addOperator adds a*op into J, reopening the pattern of J when needed.
func addOperator(J, op *utils.SparseOperator, a float64) {
	if a == 0 || op.NNZ() == 0 {
		return
	}
	filled := J.Filled()
	if filled {
		J.UnComplete()
	}
	J.Add(op, false, a, 1)
	if filled {
		J.Complete()
	}
}

// determineInitialAcceleration solves M A_0 = fext - fint - C V_0 at t_0,
// keeping the prescribed accelerations on the constrained DOFs.
func (b *base) determineInitialAcceleration() (err error) {
	var (
		gs  = b.GS
		n   = gs.DofRowMap().Len()
		M   = gs.MassMatrix()
		f   = utils.NewVec(n)
		tnp = gs.TimeNp()
	)
	if M.NNZ() == 0 {
		return
	}
	gs.DisNp().CopyVec(gs.DisN())
	gs.VelNp().CopyVec(gs.VelN())
	gs.AccNp().Zero()
	gs.SetTimeNp(gs.TimeN())
	defer gs.SetTimeNp(tnp)
	if !b.Manager.ApplyForce(gs.DisNp(), f, 1) {
		return utils.NewNumericalError("DetermineInitialAcceleration", "evaluation failed in the initial configuration")
	}
	f.AddVec(f, gs.FviscoNp())
	f.ScaleVec(-1, f)
	var (
		Mc = M.Copy("initial acceleration")
		A0 = utils.CloneVec(gs.AccN())
	)
	if b.DBC != nil {
		b.DBC.ApplyToSystem(Mc, A0, f, utils.CloneVec(gs.AccN()))
	}
	b.Solver.Reset()
	if err = b.Solver.Solve(Mc, A0, f); err != nil {
		return fmt.Errorf("initial acceleration: %w", err)
	}
	b.Solver.Reset()
	gs.AccN().CopyVec(A0)
	gs.AccNp().CopyVec(A0)
	M.MulVec(gs.FinertN(), false, A0)
	gs.FinertNp().CopyVec(gs.FinertN())
	gs.FviscoN().CopyVec(gs.FviscoNp())
	return
}

// initStructOld evaluates the model at D_0 and t_0 and keeps w times those
// forces as fstructold of the first step.
func (b *base) initStructOld(w float64) error {
	var (
		gs  = b.GS
		tnp = gs.TimeNp()
	)
	gs.FstructOld().Zero()
	if w == 0 {
		return nil
	}
	gs.DisNp().CopyVec(gs.DisN())
	gs.VelNp().CopyVec(gs.VelN())
	gs.AccNp().CopyVec(gs.AccN())
	gs.SetTimeNp(gs.TimeN())
	defer gs.SetTimeNp(tnp)
	if !b.Manager.ApplyForce(gs.DisNp(), utils.NewVec(gs.DofRowMap().Len()), 1) {
		return utils.NewNumericalError("DetermineInitialAcceleration", "evaluation failed in the initial configuration")
	}
	b.Manager.UpdateStepState(w)
	return nil
}

// implicitScheme is the part of a scheme the shared predictors need.
type implicitScheme interface {
	SetState(x *mat.VecDense)
	ApplyForceStiff(x, f *mat.VecDense, J *utils.SparseOperator) bool
}

// predictImplicit sets D_{n+1}, V_{n+1} and A_{n+1} of the predictor kind.
// The constrained DOFs get their values at t_{n+1}.
func (b *base) predictImplicit(s implicitScheme, kind modelevaluator.PredictorKind) (err error) {
	var (
		gs  = b.GS
		dt  = gs.DeltaT()
		Dnp = gs.DisNp()
	)
	b.Manager.Predict(kind)
	switch kind {
	case modelevaluator.PredConstDis:
		Dnp.CopyVec(gs.DisN())
	case modelevaluator.PredConstVel:
		Dnp.AddScaledVec(gs.DisN(), dt, gs.VelN())
	case modelevaluator.PredConstAcc:
		utils.Update2(Dnp, dt, gs.VelN(), 0.5*dt*dt, gs.AccN(), 0)
		Dnp.AddVec(Dnp, gs.DisN())
	case modelevaluator.PredConstDisVelAcc:
		gs.ResetNpToN()
		return b.applyDBC(Dnp, gs.VelNp(), gs.AccNp())
	case modelevaluator.PredTangDis:
		return b.predictTangDis(s)
	default:
		return utils.NewConfigError("Predict", "unknown predictor %v", kind)
	}
	if err = b.applyDBC(Dnp, nil, nil); err != nil {
		return
	}
	s.SetState(Dnp)
	return
}

// predictTangDis takes one linear step from D_n carrying the increment of
// the prescribed displacements into the free DOFs.
func (b *base) predictTangDis(s implicitScheme) (err error) {
	var (
		gs  = b.GS
		n   = gs.DofRowMap().Len()
		inc = utils.CloneVec(gs.DisN())
		f   = utils.NewVec(n)
		dx  = utils.NewVec(n)
		J   = gs.Jacobian()
	)
	if err = b.applyDBC(inc, nil, nil); err != nil {
		return
	}
	inc.SubVec(inc, gs.DisN())
	gs.DisNp().CopyVec(gs.DisN())
	gs.IsPredictor = true
	defer func() { gs.IsPredictor = false }()
	if !s.ApplyForceStiff(gs.DisNp(), f, J) {
		return utils.NewNumericalError("Predict", "TangDis: evaluation failed at D_n")
	}
	f.ScaleVec(-1, f)
	Jc := J.Copy("tangdis")
	if b.DBC != nil {
		b.DBC.ApplyToSystem(Jc, dx, f, inc)
	}
	b.Solver.Reset()
	if err = b.Solver.Solve(Jc, dx, f); err != nil {
		return fmt.Errorf("TangDis predictor: %w", err)
	}
	b.Solver.Reset()
	gs.DisNp().AddVec(gs.DisN(), dx)
	s.SetState(gs.DisNp())
	return
}

// writeInertia stores the n state forces of the schemes that need them.
func (b *base) writeInertia(w *restart.Writer) {
	w.WriteVector("finert", b.GS.FinertN())
	w.WriteVector("fvisco", b.GS.FviscoN())
}

func (b *base) readInertia(r *restart.Reader) (err error) {
	if err = r.ReadVectorInto("finert", b.GS.FinertN()); err != nil {
		return
	}
	if err = r.ReadVectorInto("fvisco", b.GS.FviscoN()); err != nil {
		return
	}
	b.GS.FinertNp().CopyVec(b.GS.FinertN())
	b.GS.FviscoNp().CopyVec(b.GS.FviscoN())
	return
}

// shiftInertia copies the converged inertia and viscous forces to step n.
func (b *base) shiftInertia() {
	b.GS.FinertN().CopyVec(b.GS.FinertNp())
	b.GS.FviscoN().CopyVec(b.GS.FviscoNp())
}
