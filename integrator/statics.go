package integrator

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/utils"
)

// Statics solves fint(D) = fext(t) at every load step; velocities and
// accelerations stay zero.
type Statics struct {
	base
}

func NewStatics(ctx Context) *Statics { return &Statics{base: base{Context: ctx}} }

func (s *Statics) Name() string     { return "Statics" }
func (s *Statics) IsImplicit() bool { return true }

func (s *Statics) Setup() (err error) {
	if err = s.check("Statics"); err != nil {
		return
	}
	s.ResetEvalParams()
	return
}

func (s *Statics) Unknown() *mat.VecDense { return s.GS.DisNp() }

func (s *Statics) ResetEvalParams() {
	s.Data.TimIntFacDis, s.Data.TimIntFacVel = 0, 0
}

func (s *Statics) UpdateConstantStateContributions() {}

func (s *Statics) SetState(x *mat.VecDense) {
	if x != s.GS.DisNp() {
		s.GS.DisNp().CopyVec(x)
	}
	s.GS.VelNp().Zero()
	s.GS.AccNp().Zero()
}

func (s *Statics) ModelEvalFactor() float64 { return 1 }
func (s *Statics) IntParam() float64        { return 0 }
func (s *Statics) AccIntParam() float64     { return 0 }

func (s *Statics) ApplyForce(x, f *mat.VecDense) bool {
	s.SetState(x)
	return s.Manager.ApplyForce(x, f, 1)
}

func (s *Statics) ApplyStiff(x *mat.VecDense, J *utils.SparseOperator) bool {
	s.SetState(x)
	return s.Manager.ApplyStiff(x, J, 1)
}

func (s *Statics) ApplyForceStiff(x, f *mat.VecDense, J *utils.SparseOperator) bool {
	s.SetState(x)
	return s.Manager.ApplyForceStiff(x, f, J, 1)
}

func (s *Statics) AddViscoMassContributions(f *mat.VecDense)            {}
func (s *Statics) AddViscoMassContributionsJac(J *utils.SparseOperator) {}

func (s *Statics) UpdateStepState() { s.Manager.UpdateStepState(0) }

func (s *Statics) Predict(kind modelevaluator.PredictorKind) error {
	switch kind {
	case modelevaluator.PredConstDis, modelevaluator.PredTangDis:
		return s.predictImplicit(s, kind)
	}
	return utils.NewConfigError("Statics.Predict", "predictor %v needs a dynamic scheme", kind)
}

func (s *Statics) DetermineInitialAcceleration() error { return s.initStructOld(0) }

func (s *Statics) WriteRestart(w *restart.Writer, forced bool) {}
func (s *Statics) ReadRestart(r *restart.Reader) error         { return nil }
