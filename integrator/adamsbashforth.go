package integrator

import (
	"fmt"
	"math"

	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/utils"
)

// abCoefficients are the weights of f_n, f_{n-1}, ... for a constant step.
var abCoefficients = map[int][]float64{
	2: {3. / 2., -1. / 2.},
	4: {55. / 24., -59. / 24., 37. / 24., -9. / 24.},
}

// AdamsBashforth is the explicit k step Adams-Bashforth method for V and D.
// The first k steps are forward Euler steps filling the history.
type AdamsBashforth struct {
	explicit
	Order        int
	ComputePhase int
}

func NewAdamsBashforth(ctx Context, order int) (ab *AdamsBashforth) {
	ab = &AdamsBashforth{explicit: explicit{base: base{Context: ctx}}, Order: order}
	ab.advance = ab.advanceState
	return
}

func (ab *AdamsBashforth) Name() string { return fmt.Sprintf("AdamsBashforth%d", ab.Order) }

func (ab *AdamsBashforth) Setup() (err error) {
	if err = ab.check(ab.Name()); err != nil {
		return
	}
	if _, ok := abCoefficients[ab.Order]; !ok {
		return utils.NewConfigError("AdamsBashforth.Setup", "order %d not supported", ab.Order)
	}
	var (
		gs    = ab.GS
		nhist = ab.Order - 1
	)
	gs.MultiTime().Resize(-nhist, 0, gs.TimeN(), false)
	gs.MultiDeltaT().Resize(-nhist, 0, gs.DeltaT(), false)
	gs.MultiDis().Resize(-nhist, 0, gs.DisN(), false)
	gs.MultiVel().Resize(-nhist, 0, gs.VelN(), false)
	gs.MultiAcc().Resize(-nhist, 0, gs.AccN(), false)
	ab.ResetEvalParams()
	return
}

// Coefficients are the weights used for the next step, forward Euler while
// the history is filled.
func (ab *AdamsBashforth) Coefficients() []float64 {
	if ab.ComputePhase < ab.Order {
		return []float64{1}
	}
	return abCoefficients[ab.Order]
}

func (ab *AdamsBashforth) advanceState() {
	var (
		gs  = ab.GS
		dt  = gs.DeltaT()
		Vnp = gs.VelNp()
		Dnp = gs.DisNp()
	)
	if ab.ComputePhase < ab.Order {
		Vnp.AddScaledVec(gs.VelN(), dt, gs.AccN())
		Dnp.AddScaledVec(gs.DisN(), dt, Vnp)
		return
	}
	Vnp.CopyVec(gs.VelN())
	Dnp.CopyVec(gs.DisN())
	for i, c := range abCoefficients[ab.Order] {
		Vnp.AddScaledVec(Vnp, dt*c, gs.MultiAcc().At(-i))
		Dnp.AddScaledVec(Dnp, dt*c, gs.MultiVel().At(-i))
	}
}

// checkStepSize rejects variable steps once the multistep weights are used.
func (ab *AdamsBashforth) checkStepSize() error {
	if ab.ComputePhase < ab.Order {
		return nil
	}
	var (
		dts  = ab.GS.MultiDeltaT()
		diff float64
	)
	for i := 0; i < dts.Past(); i++ {
		diff += math.Abs(dts.At(-i) - dts.At(-i-1))
	}
	if diff > utils.DTTOL {
		return utils.NewRuntimeError("AdamsBashforth", "variable time step not supported, history differs by %g", diff)
	}
	return nil
}

func (ab *AdamsBashforth) Predict(kind modelevaluator.PredictorKind) error {
	if err := ab.checkStepSize(); err != nil {
		return err
	}
	return ab.explicit.Predict(kind)
}

func (ab *AdamsBashforth) UpdateStepState() {
	if ab.ComputePhase < ab.Order {
		ab.ComputePhase++
	}
	ab.Manager.UpdateStepState(0)
	ab.shiftInertia()
}

func histKey(name string, i int) string { return fmt.Sprintf("hist%s_%d", name, i) }

func (ab *AdamsBashforth) WriteRestart(w *restart.Writer, forced bool) {
	ab.writeInertia(w)
	w.WriteInt("compute_phase", ab.ComputePhase)
	if ab.ComputePhase < ab.Order {
		return
	}
	gs := ab.GS
	for i := 1; i < ab.Order; i++ {
		w.WriteVector(histKey("vel", i), gs.MultiVel().At(-i))
		w.WriteVector(histKey("acc", i), gs.MultiAcc().At(-i))
		w.WriteDouble(histKey("dt", i), gs.MultiDeltaT().At(-i))
	}
}

// ReadRestart rebuilds the history by pushing the stored steps oldest first
// in front of the state at n.
func (ab *AdamsBashforth) ReadRestart(r *restart.Reader) (err error) {
	if err = ab.readInertia(r); err != nil {
		return
	}
	if ab.ComputePhase, err = r.ReadInt("compute_phase"); err != nil {
		return
	}
	if ab.ComputePhase < ab.Order {
		return
	}
	var (
		gs       = ab.GS
		v0, a0   = utils.CloneVec(gs.VelN()), utils.CloneVec(gs.AccN())
		dt0      = gs.DeltaT()
		vel, acc = utils.NewVec(v0.Len()), utils.NewVec(v0.Len())
		dt       float64
	)
	for i := ab.Order - 1; i >= 1; i-- {
		if err = r.ReadVectorInto(histKey("vel", i), vel); err != nil {
			return
		}
		if err = r.ReadVectorInto(histKey("acc", i), acc); err != nil {
			return
		}
		if dt, err = r.ReadDouble(histKey("dt", i)); err != nil {
			return
		}
		gs.MultiVel().UpdateSteps(vel)
		gs.MultiAcc().UpdateSteps(acc)
		gs.MultiDeltaT().UpdateSteps(dt)
	}
	gs.MultiVel().UpdateSteps(v0)
	gs.MultiAcc().UpdateSteps(a0)
	gs.MultiDeltaT().UpdateSteps(dt0)
	return
}
