package modelevaluator

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

// Manager runs the evaluators in registration order and combines their
// contributions with the weights of the time integrator.
type Manager struct {
	Data       *Data
	gs         *state.GlobalState
	evaluators []Evaluator
}

func NewManager(gs *state.GlobalState, data *Data) *Manager {
	if data == nil {
		data = &Data{}
	}
	return &Manager{Data: data, gs: gs}
}

func (m *Manager) Add(ev Evaluator) error {
	if _, dup := m.Evaluator(ev.Type()); dup {
		return utils.NewConfigError("Manager.Add", "model evaluator %s registered twice", ev.Type())
	}
	m.evaluators = append(m.evaluators, ev)
	return nil
}

func (m *Manager) Evaluators() []Evaluator { return m.evaluators }

// Evaluator looks up an evaluator by type.
func (m *Manager) Evaluator(t Type) (Evaluator, bool) {
	for _, ev := range m.evaluators {
		if ev.Type() == t {
			return ev, true
		}
	}
	return nil, false
}

func (m *Manager) Setup() (err error) {
	for _, ev := range m.evaluators {
		if err = ev.Setup(); err != nil {
			return
		}
	}
	return
}

func (m *Manager) PostSetup() (err error) {
	for _, ev := range m.evaluators {
		if err = ev.PostSetup(); err != nil {
			return
		}
	}
	return
}

func (m *Manager) reset(x *mat.VecDense) {
	for _, ev := range m.evaluators {
		ev.Reset(x)
	}
}

// evaluate runs fn on every evaluator, even after a failure, and ANDs the
// results.
func (m *Manager) evaluate(fn func(ev Evaluator) bool) (ok bool) {
	ok = true
	for _, ev := range m.evaluators {
		ok = fn(ev) && ok
	}
	return
}

func (m *Manager) ApplyForce(x, f *mat.VecDense, w float64) (ok bool) {
	m.reset(x)
	ok = m.evaluate(Evaluator.EvaluateForce)
	m.AssembleForce(w, f)
	return
}

func (m *Manager) ApplyStiff(x *mat.VecDense, J *utils.SparseOperator, w float64) (ok bool) {
	m.reset(x)
	ok = m.evaluate(Evaluator.EvaluateStiff)
	m.AssembleJacobian(w, J)
	return
}

func (m *Manager) ApplyForceStiff(x, f *mat.VecDense, J *utils.SparseOperator, w float64) (ok bool) {
	m.reset(x)
	ok = m.evaluate(Evaluator.EvaluateForceStiff)
	m.AssembleForce(w, f)
	m.AssembleJacobian(w, J)
	return
}

// AssembleForce sets f = sum_m w f_m + fstructold.
func (m *Manager) AssembleForce(w float64, f *mat.VecDense) {
	f.Zero()
	for _, ev := range m.evaluators {
		ev.AssembleForce(w, f)
	}
	f.AddVec(f, m.gs.FstructOld())
}

// AssembleJacobian sets J = sum_m w J_m and freezes the pattern.
func (m *Manager) AssembleJacobian(w float64, J *utils.SparseOperator) {
	J.Zero()
	for _, ev := range m.evaluators {
		ev.AssembleJacobian(w, J)
	}
	J.Complete()
}

// UpdateStepState rebuilds fstructold from the converged forces.
func (m *Manager) UpdateStepState(w float64) {
	m.gs.FstructOld().Zero()
	for _, ev := range m.evaluators {
		ev.UpdateStepState(w)
	}
}

func (m *Manager) UpdateStepElement() {
	for _, ev := range m.evaluators {
		ev.UpdateStepElement()
	}
}

func (m *Manager) WriteRestart(w *restart.Writer, forced bool) {
	for _, ev := range m.evaluators {
		ev.WriteRestart(w, forced)
	}
}

func (m *Manager) ReadRestart(r *restart.Reader) (err error) {
	for _, ev := range m.evaluators {
		if err = ev.ReadRestart(r); err != nil {
			return
		}
	}
	return
}

func (m *Manager) PostUpdate() {
	for _, ev := range m.evaluators {
		ev.PostUpdate()
	}
}

func (m *Manager) Predict(kind PredictorKind) {
	for _, ev := range m.evaluators {
		ev.Predict(kind)
	}
}

func (m *Manager) RuntimeOutputStepState(rt *out.RuntimeOutput) {
	if rt == nil {
		return
	}
	for _, ev := range m.evaluators {
		ev.RuntimeOutputStepState(rt)
	}
}
