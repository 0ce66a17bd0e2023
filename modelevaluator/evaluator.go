// Package modelevaluator holds the physics contributions to the structural
// residual and Jacobian and the manager that combines them.
package modelevaluator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

type Type uint8

const (
	TypeStructure Type = iota
	TypeNeumann
	TypeSpringDashpot
	TypeContact
	TypeBeamPotential
	TypeBrownian
)

var typeNames = map[Type]string{
	TypeStructure:     "structure",
	TypeNeumann:       "neumann",
	TypeSpringDashpot: "springdashpot",
	TypeContact:       "contact",
	TypeBeamPotential: "beam_potential",
	TypeBrownian:      "browniandyn",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", t)
}

// PredictorKind names the predictor of the current step.
type PredictorKind uint8

const (
	PredConstDis PredictorKind = iota
	PredConstVel
	PredConstAcc
	PredTangDis
	PredConstDisVelAcc
)

func NewPredictorKind(label string) (PredictorKind, error) {
	switch label {
	case "ConstDis":
		return PredConstDis, nil
	case "ConstVel":
		return PredConstVel, nil
	case "ConstAcc":
		return PredConstAcc, nil
	case "TangDis":
		return PredTangDis, nil
	case "ConstDisVelAcc":
		return PredConstDisVelAcc, nil
	}
	return PredConstDis, utils.NewConfigError("NewPredictorKind", "unknown predictor %q", label)
}

func (p PredictorKind) String() string {
	return [...]string{"ConstDis", "ConstVel", "ConstAcc", "TangDis", "ConstDisVelAcc"}[p]
}

// Data is shared by the evaluators of one manager. The integrator keeps the
// time integration factors current.
type Data struct {
	// dD_{n+1}/dA_{n+1} and dV_{n+1}/dA_{n+1} of the active scheme
	TimIntFacDis float64
	TimIntFacVel float64
	IsPredictor  bool
	NumThreads   int
	Comm         utils.Comm
	Verbose      bool
	// nodal concentrations of a coupled scalar field, nil when uncoupled
	Concentration *mat.VecDense
}

// VelocityFactor is dV_{n+1}/dD_{n+1}, zero for statics.
func (d *Data) VelocityFactor() float64 {
	if d.TimIntFacDis == 0 {
		return 0
	}
	return d.TimIntFacVel / d.TimIntFacDis
}

// Evaluator is one physics contribution. Evaluate* report false when the
// current state is not admissible, which the Newton loop treats as
// divergence. Forces are assembled with the residual sign convention.
type Evaluator interface {
	Type() Type
	Setup() error
	PostSetup() error
	Reset(x *mat.VecDense)
	EvaluateForce() bool
	EvaluateStiff() bool
	EvaluateForceStiff() bool
	AssembleForce(w float64, f *mat.VecDense)
	AssembleJacobian(w float64, J *utils.SparseOperator)
	// UpdateStepState adds w times the force at n+1 to fstructold
	UpdateStepState(w float64)
	UpdateStepElement()
	WriteRestart(w *restart.Writer, forced bool)
	ReadRestart(r *restart.Reader) error
	PostUpdate()
	Predict(kind PredictorKind)
	RuntimeOutputStepState(rt *out.RuntimeOutput)
}

// base provides the no-op parts of the Evaluator interface.
type base struct {
	gs   *state.GlobalState
	data *Data
}

func (b *base) PostSetup() error                             { return nil }
func (b *base) UpdateStepElement()                           {}
func (b *base) WriteRestart(w *restart.Writer, forced bool)  {}
func (b *base) ReadRestart(r *restart.Reader) error          { return nil }
func (b *base) PostUpdate()                                  {}
func (b *base) Predict(kind PredictorKind)                   {}
func (b *base) RuntimeOutputStepState(rt *out.RuntimeOutput) {}

func (b *base) numThreads() int {
	if b.data == nil {
		return 1
	}
	return utils.DefaultParallelDegree(b.data.NumThreads)
}

func (b *base) velocityFactor() float64 {
	if b.data == nil {
		return 0
	}
	return b.data.VelocityFactor()
}

func (b *base) comm() utils.Comm {
	if b.data == nil || b.data.Comm == nil {
		return utils.SerialComm{}
	}
	return b.data.Comm
}
