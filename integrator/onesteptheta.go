package integrator

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/utils"
)

// OneStepTheta weights the n+1 forces with Theta and the n forces with
// 1-Theta.
type OneStepTheta struct {
	base
	Theta float64
}

func NewOneStepTheta(ctx Context, theta float64) *OneStepTheta {
	return &OneStepTheta{base: base{Context: ctx}, Theta: theta}
}

func (o *OneStepTheta) Name() string     { return "OneStepTheta" }
func (o *OneStepTheta) IsImplicit() bool { return true }

func (o *OneStepTheta) Setup() (err error) {
	if err = o.check("OneStepTheta"); err != nil {
		return
	}
	if o.Theta <= 0 || o.Theta > 1 {
		return utils.NewConfigError("OneStepTheta.Setup", "THETA = %v outside (0,1]", o.Theta)
	}
	o.ResetEvalParams()
	return
}

func (o *OneStepTheta) Unknown() *mat.VecDense { return o.GS.DisNp() }

func (o *OneStepTheta) ResetEvalParams() {
	dt := o.GS.DeltaT()
	o.Data.TimIntFacDis = o.Theta * o.Theta * dt * dt
	o.Data.TimIntFacVel = o.Theta * dt
}

func (o *OneStepTheta) UpdateConstantStateContributions() {}

func (o *OneStepTheta) SetState(x *mat.VecDense) {
	var (
		gs         = o.GS
		dt, th     = gs.DeltaT(), o.Theta
		Dn, Vn, An = gs.DisN(), gs.VelN(), gs.AccN()
		Vnp, Anp   = gs.VelNp(), gs.AccNp()
	)
	if x != gs.DisNp() {
		gs.DisNp().CopyVec(x)
	}
	Vnp.SubVec(gs.DisNp(), Dn)
	Vnp.ScaleVec(1/(th*dt), Vnp)
	Vnp.AddScaledVec(Vnp, -(1-th)/th, Vn)

	Anp.SubVec(gs.DisNp(), Dn)
	Anp.ScaleVec(1/(th*th*dt*dt), Anp)
	Anp.AddScaledVec(Anp, -1/(th*th*dt), Vn)
	Anp.AddScaledVec(Anp, -(1-th)/th, An)
}

func (o *OneStepTheta) ModelEvalFactor() float64 { return o.Theta }
func (o *OneStepTheta) IntParam() float64        { return 1 - o.Theta }
func (o *OneStepTheta) AccIntParam() float64     { return 1 - o.Theta }

func (o *OneStepTheta) ApplyForce(x, f *mat.VecDense) (ok bool) {
	o.SetState(x)
	ok = o.Manager.ApplyForce(x, f, o.Theta)
	o.AddViscoMassContributions(f)
	return
}

func (o *OneStepTheta) ApplyStiff(x *mat.VecDense, J *utils.SparseOperator) (ok bool) {
	o.SetState(x)
	ok = o.Manager.ApplyStiff(x, J, o.Theta)
	o.AddViscoMassContributionsJac(J)
	return
}

func (o *OneStepTheta) ApplyForceStiff(x, f *mat.VecDense, J *utils.SparseOperator) (ok bool) {
	o.SetState(x)
	ok = o.Manager.ApplyForceStiff(x, f, J, o.Theta)
	o.AddViscoMassContributions(f)
	o.AddViscoMassContributionsJac(J)
	return
}

func (o *OneStepTheta) AddViscoMassContributions(f *mat.VecDense) {
	var (
		gs = o.GS
		th = o.Theta
	)
	f.AddScaledVec(f, th, gs.FinertNp())
	f.AddScaledVec(f, 1-th, gs.FinertN())
	f.AddScaledVec(f, th, gs.FviscoNp())
	f.AddScaledVec(f, 1-th, gs.FviscoN())
}

// AddViscoMassContributionsJac adds M/(theta dt^2) + C/dt.
func (o *OneStepTheta) AddViscoMassContributionsJac(J *utils.SparseOperator) {
	dt := o.GS.DeltaT()
	addOperator(J, o.GS.MassMatrix(), 1/(o.Theta*dt*dt))
	addOperator(J, o.GS.DampMatrix(), 1/dt)
}

func (o *OneStepTheta) UpdateStepState() {
	o.Manager.UpdateStepState(1 - o.Theta)
	o.shiftInertia()
}

func (o *OneStepTheta) Predict(kind modelevaluator.PredictorKind) error {
	return o.predictImplicit(o, kind)
}

func (o *OneStepTheta) DetermineInitialAcceleration() (err error) {
	if err = o.determineInitialAcceleration(); err != nil {
		return
	}
	return o.initStructOld(o.IntParam())
}

func (o *OneStepTheta) WriteRestart(w *restart.Writer, forced bool) { o.writeInertia(w) }

func (o *OneStepTheta) ReadRestart(r *restart.Reader) error { return o.readInertia(r) }
