package integrator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/utils"
)

// GenAlpha is the generalized-alpha method of Chung and Hulbert. The model
// forces are evaluated at n+1-alphaF, the inertia forces at n+1-alphaM.
type GenAlpha struct {
	base
	Beta, Gamma, AlphaF, AlphaM, RhoInf float64
	rotationDofs                        bool

	constVel, constAcc *mat.VecDense
	// sum over the steps of dt/2 (D.fint + V.finert), an energy diagnostic
	ActionIntegral float64
}

func NewGenAlpha(ctx Context, p Params) *GenAlpha {
	return &GenAlpha{
		base:   base{Context: ctx},
		Beta:   p.Beta,
		Gamma:  p.Gamma,
		AlphaF: p.AlphaF,
		AlphaM: p.AlphaM,
		RhoInf: p.RhoInf,

		rotationDofs: p.RotationDofs,
	}
}

// GenAlphaCoefficients returns the optimal coefficients for the spectral
// radius rhoInf at infinite frequency.
func GenAlphaCoefficients(rhoInf float64) (beta, gamma, alphaF, alphaM float64) {
	alphaM = (2*rhoInf - 1) / (rhoInf + 1)
	alphaF = rhoInf / (rhoInf + 1)
	beta = 0.25 * (1 - alphaM + alphaF) * (1 - alphaM + alphaF)
	gamma = 0.5 - alphaM + alphaF
	return
}

func (ga *GenAlpha) Name() string     { return "GenAlpha" }
func (ga *GenAlpha) IsImplicit() bool { return true }

func (ga *GenAlpha) Setup() (err error) {
	if err = ga.check("GenAlpha"); err != nil {
		return
	}
	if ga.RhoInf > -1 {
		if ga.RhoInf < 0 || ga.RhoInf > 1 {
			return utils.NewConfigError("GenAlpha.Setup", "RHO_INF = %v outside [0,1]", ga.RhoInf)
		}
		ga.Beta, ga.Gamma, ga.AlphaF, ga.AlphaM = GenAlphaCoefficients(ga.RhoInf)
	}
	switch {
	case ga.AlphaM < -1 || ga.AlphaM >= 1:
		err = utils.NewConfigError("GenAlpha.Setup", "alpha_m = %v outside [-1,1)", ga.AlphaM)
	case ga.AlphaF < 0 || ga.AlphaF >= 1:
		err = utils.NewConfigError("GenAlpha.Setup", "alpha_f = %v outside [0,1)", ga.AlphaF)
	case ga.Beta <= 0 || ga.Beta > 0.5:
		err = utils.NewConfigError("GenAlpha.Setup", "beta = %v outside (0,0.5]", ga.Beta)
	case ga.Gamma <= 0 || ga.Gamma > 1:
		err = utils.NewConfigError("GenAlpha.Setup", "gamma = %v outside (0,1]", ga.Gamma)
	}
	if err != nil {
		return
	}
	if ga.rotationDofs {
		fmt.Printf("WARNING: rotation DOFs are integrated with the vector space generalized-alpha method\n")
	}
	n := ga.GS.DofRowMap().Len()
	ga.constVel, ga.constAcc = utils.NewVec(n), utils.NewVec(n)
	ga.ResetEvalParams()
	return
}

func (ga *GenAlpha) Unknown() *mat.VecDense { return ga.GS.DisNp() }

func (ga *GenAlpha) ResetEvalParams() {
	dt := ga.GS.DeltaT()
	ga.Data.TimIntFacDis = ga.Beta * dt * dt
	ga.Data.TimIntFacVel = ga.Gamma * dt
}

// UpdateConstantStateContributions computes the parts of V_{n+1} and A_{n+1}
// that only depend on the state at n.
func (ga *GenAlpha) UpdateConstantStateContributions() {
	var (
		gs         = ga.GS
		dt         = gs.DeltaT()
		b, g       = ga.Beta, ga.Gamma
		Dn, Vn, An = gs.DisN(), gs.VelN(), gs.AccN()
	)
	utils.Update2(ga.constVel, (b-g)/b, Vn, (2*b-g)*dt/(2*b), An, 0)
	ga.constVel.AddScaledVec(ga.constVel, -g/(b*dt), Dn)
	utils.Update2(ga.constAcc, (2*b-1)/(2*b), An, -1/(b*dt), Vn, 0)
	ga.constAcc.AddScaledVec(ga.constAcc, -1/(b*dt*dt), Dn)
}

func (ga *GenAlpha) SetState(x *mat.VecDense) {
	var (
		gs   = ga.GS
		dt   = gs.DeltaT()
		b, g = ga.Beta, ga.Gamma
	)
	if x != gs.DisNp() {
		gs.DisNp().CopyVec(x)
	}
	gs.VelNp().AddScaledVec(ga.constVel, g/(b*dt), gs.DisNp())
	gs.AccNp().AddScaledVec(ga.constAcc, 1/(b*dt*dt), gs.DisNp())
}

func (ga *GenAlpha) ModelEvalFactor() float64 { return 1 - ga.AlphaF }
func (ga *GenAlpha) IntParam() float64        { return ga.AlphaF }
func (ga *GenAlpha) AccIntParam() float64     { return ga.AlphaM }

func (ga *GenAlpha) ApplyForce(x, f *mat.VecDense) (ok bool) {
	ga.SetState(x)
	ok = ga.Manager.ApplyForce(x, f, ga.ModelEvalFactor())
	ga.AddViscoMassContributions(f)
	return
}

func (ga *GenAlpha) ApplyStiff(x *mat.VecDense, J *utils.SparseOperator) (ok bool) {
	ga.SetState(x)
	ok = ga.Manager.ApplyStiff(x, J, ga.ModelEvalFactor())
	ga.AddViscoMassContributionsJac(J)
	return
}

func (ga *GenAlpha) ApplyForceStiff(x, f *mat.VecDense, J *utils.SparseOperator) (ok bool) {
	ga.SetState(x)
	ok = ga.Manager.ApplyForceStiff(x, f, J, ga.ModelEvalFactor())
	ga.AddViscoMassContributions(f)
	ga.AddViscoMassContributionsJac(J)
	return
}

func (ga *GenAlpha) AddViscoMassContributions(f *mat.VecDense) {
	var (
		gs     = ga.GS
		am, af = ga.AlphaM, ga.AlphaF
	)
	f.AddScaledVec(f, 1-am, gs.FinertNp())
	f.AddScaledVec(f, am, gs.FinertN())
	f.AddScaledVec(f, 1-af, gs.FviscoNp())
	f.AddScaledVec(f, af, gs.FviscoN())
}

func (ga *GenAlpha) AddViscoMassContributionsJac(J *utils.SparseOperator) {
	var (
		dt   = ga.GS.DeltaT()
		b, g = ga.Beta, ga.Gamma
	)
	addOperator(J, ga.GS.MassMatrix(), (1-ga.AlphaM)/(b*dt*dt))
	addOperator(J, ga.GS.DampMatrix(), (1-ga.AlphaF)*g/(b*dt))
}

func (ga *GenAlpha) UpdateStepState() {
	var (
		gs = ga.GS
		dt = gs.DeltaT()
	)
	ga.ActionIntegral += 0.5 * dt * (mat.Dot(gs.DisNp(), gs.FintNp()) + mat.Dot(gs.VelNp(), gs.FinertNp()))
	ga.Manager.UpdateStepState(ga.AlphaF)
	ga.shiftInertia()
}

func (ga *GenAlpha) Predict(kind modelevaluator.PredictorKind) error {
	ga.UpdateConstantStateContributions()
	return ga.predictImplicit(ga, kind)
}

func (ga *GenAlpha) DetermineInitialAcceleration() (err error) {
	if err = ga.determineInitialAcceleration(); err != nil {
		return
	}
	return ga.initStructOld(ga.IntParam())
}

func (ga *GenAlpha) WriteRestart(w *restart.Writer, forced bool) {
	ga.writeInertia(w)
	w.WriteDouble("action_integral", ga.ActionIntegral)
}

func (ga *GenAlpha) ReadRestart(r *restart.Reader) (err error) {
	if err = ga.readInertia(r); err != nil {
		return
	}
	if r.Has("action_integral") {
		ga.ActionIntegral, err = r.ReadDouble("action_integral")
	}
	return
}
