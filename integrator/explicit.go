package integrator

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/utils"
)

// explicit is the part shared by the explicit schemes. The unknown is
// A_{n+1}; D_{n+1} and V_{n+1} follow from the history, so the residual
// M A + f(D, V) is linear with Jacobian M.
type explicit struct {
	base
	// positions D_{n+1}, V_{n+1} from the history
	advance func()
	// D_{n+1}, V_{n+1} with the prescribed values of the step
	prescD, prescV *mat.VecDense
}

func (e *explicit) IsImplicit() bool                  { return false }
func (e *explicit) Unknown() *mat.VecDense            { return e.GS.AccNp() }
func (e *explicit) ModelEvalFactor() float64          { return 1 }
func (e *explicit) IntParam() float64                 { return 0 }
func (e *explicit) AccIntParam() float64              { return 0 }
func (e *explicit) UpdateConstantStateContributions() {}

func (e *explicit) ResetEvalParams() {
	e.Data.TimIntFacDis, e.Data.TimIntFacVel = 0, 0
}

func (e *explicit) SetState(x *mat.VecDense) {
	gs := e.GS
	e.advance()
	e.insertPrescribed(gs.DisNp(), gs.VelNp())
	if x != gs.AccNp() {
		gs.AccNp().CopyVec(x)
	}
}

func (e *explicit) ApplyForce(x, f *mat.VecDense) (ok bool) {
	e.SetState(x)
	ok = e.Manager.ApplyForce(x, f, 1)
	e.AddViscoMassContributions(f)
	return
}

func (e *explicit) ApplyStiff(x *mat.VecDense, J *utils.SparseOperator) bool {
	e.SetState(x)
	e.AddViscoMassContributionsJac(J)
	return true
}

func (e *explicit) ApplyForceStiff(x, f *mat.VecDense, J *utils.SparseOperator) (ok bool) {
	ok = e.ApplyForce(x, f)
	e.AddViscoMassContributionsJac(J)
	return
}

func (e *explicit) AddViscoMassContributions(f *mat.VecDense) {
	f.AddVec(f, e.GS.FinertNp())
	f.AddVec(f, e.GS.FviscoNp())
}

// AddViscoMassContributionsJac sets J = M.
func (e *explicit) AddViscoMassContributionsJac(J *utils.SparseOperator) {
	if J.Filled() {
		J.UnComplete()
	}
	J.Zero()
	J.Add(e.GS.MassMatrix(), false, 1, 1)
	J.Complete()
}

// Predict evaluates the prescribed values at t_{n+1} once; the state
// updates of the step reuse them.
func (e *explicit) Predict(kind modelevaluator.PredictorKind) (err error) {
	gs := e.GS
	e.Manager.Predict(kind)
	e.advance()
	gs.AccNp().CopyVec(gs.AccN())
	if err = e.applyDBC(gs.DisNp(), gs.VelNp(), gs.AccNp()); err != nil {
		return
	}
	e.prescD, e.prescV = utils.CloneVec(gs.DisNp()), utils.CloneVec(gs.VelNp())
	return
}

func (e *explicit) insertPrescribed(D, V *mat.VecDense) {
	if e.DBC == nil || e.prescD == nil {
		return
	}
	if D != nil {
		e.DBC.InsertToDbc(e.prescD, D)
	}
	if V != nil {
		e.DBC.InsertToDbc(e.prescV, V)
	}
}

func (e *explicit) DetermineInitialAcceleration() error {
	return e.determineInitialAcceleration()
}

// CentrDiff is the central difference scheme in velocity Verlet form.
type CentrDiff struct {
	explicit
}

func NewCentrDiff(ctx Context) (cd *CentrDiff) {
	cd = &CentrDiff{explicit: explicit{base: base{Context: ctx}}}
	cd.advance = cd.advanceState
	return
}

func (cd *CentrDiff) Name() string { return "CentrDiff" }

func (cd *CentrDiff) Setup() (err error) {
	if err = cd.check("CentrDiff"); err != nil {
		return
	}
	cd.ResetEvalParams()
	return
}

// advanceState sets V_{n+1} = V_n + dt/2 A_n, D_{n+1} = D_n + dt V_{n+1}.
func (cd *CentrDiff) advanceState() {
	var (
		gs = cd.GS
		dt = gs.DeltaT()
	)
	gs.VelNp().AddScaledVec(gs.VelN(), 0.5*dt, gs.AccN())
	gs.DisNp().AddScaledVec(gs.DisN(), dt, gs.VelNp())
}

// UpdateStepState completes the velocity with the new acceleration.
func (cd *CentrDiff) UpdateStepState() {
	var (
		gs = cd.GS
		dt = gs.DeltaT()
	)
	gs.VelNp().AddVec(gs.AccN(), gs.AccNp())
	gs.VelNp().ScaleVec(0.5*dt, gs.VelNp())
	gs.VelNp().AddVec(gs.VelNp(), gs.VelN())
	cd.insertPrescribed(nil, gs.VelNp())
	cd.Manager.UpdateStepState(0)
	cd.shiftInertia()
}

func (cd *CentrDiff) WriteRestart(w *restart.Writer, forced bool) { cd.writeInertia(w) }
func (cd *CentrDiff) ReadRestart(r *restart.Reader) error         { return cd.readInertia(r) }
