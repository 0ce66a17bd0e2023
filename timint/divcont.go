package timint

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/notargets/gocsd/utils"
)

// performErrorAction handles a diverged step. replay is true when the step
// has to be computed again from the state at n.
func (ti *TimeIntBase) performErrorAction() (replay bool, err error) {
	var (
		gs   = ti.GS
		p    = ti.Params
		step = gs.StepNp()
	)
	switch p.DivCont {
	case DivStop:
		return false, utils.NewNumericalError("TimeInt", "nonlinear solver diverged in step %d: %s", step, ti.Info.Reason)
	case DivContinue:
		if ti.rank() == 0 {
			fmt.Printf("WARNING: step %d did not converge (%s), continuing\n", step, ti.Info.Reason)
		}
		return false, nil
	case DivRepeatStep:
		ti.divConTries++
		if ti.divConTries > p.MaxDivConRefinementLevel {
			return false, utils.NewNumericalError("TimeInt", "step %d diverged %d times", step, ti.divConTries)
		}
		ti.printAction("repeating step %d", step)
	case DivHalveStep, DivAdaptStep:
		if ti.divConRefinementLevel >= p.MaxDivConRefinementLevel {
			return false, utils.NewNumericalError("TimeInt",
				"step %d: maximal refinement level %d reached", step, p.MaxDivConRefinementLevel)
		}
		ti.setStepSize(gs.DeltaT()/2, 2)
		ti.divConRefinementLevel++
		ti.divConNumFineStep = 0
		ti.printAction("step %d: dt halved to %10.4e, refinement level %d", step, gs.DeltaT(), ti.divConRefinementLevel)
	case DivRandAdaptStep:
		ti.divConTries++
		if ti.divConTries > p.MaxDivConRefinementLevel {
			return false, utils.NewNumericalError("TimeInt", "step %d diverged %d times", step, ti.divConTries)
		}
		f := ti.randomFactor()
		ti.setStepSize(gs.DeltaT()*f, 1/f)
		ti.printAction("step %d: dt scaled by %6.4f to %10.4e", step, f, gs.DeltaT())
	}
	gs.ResetNpToN()
	return true, nil
}

func (ti *TimeIntBase) printAction(format string, args ...any) {
	if ti.rank() == 0 {
		fmt.Printf("WARNING: nonlinear solver diverged, "+format+"\n", args...)
	}
}

// setStepSize changes dt; the remaining step budget is scaled by
// stepFactor so the end time stays reachable.
func (ti *TimeIntBase) setStepSize(dt, stepFactor float64) {
	gs := ti.GS
	gs.SetDeltaT(dt)
	remaining := gs.StepMax - gs.StepN()
	gs.StepMax = gs.StepN() + int(math.Ceil(float64(remaining)*stepFactor-utils.DTTOL))
}

// randomFactor draws a step size factor in [0.51, 1.99], alternating
// between refinement and coarsening.
func (ti *TimeIntBase) randomFactor() (f float64) {
	seed := uint64(ti.Params.RandSeed)
	if ti.Params.RandSeed < 0 {
		seed = uint64(time.Now().UnixNano())
	}
	seed += uint64(ti.randSteps)
	ti.randSteps++
	u := distuv.Uniform{Min: 0.51, Max: 1.99, Src: rand.NewPCG(seed, uint64(ti.rank()+1))}
	f = u.Rand()
	// all ranks take the same step
	f = ti.GS.Comm.SumAll(f) / float64(ti.GS.Comm.NumProc())
	if (ti.divConTries%2 == 1) != (f < 1) {
		f = 1 / f
	}
	return
}

// checkForTimeStepIncrease doubles dt again after DivConNumFineStep
// converged steps on a refined level. The doubling waits for an even number
// of remaining steps so the end time is hit exactly.
func (ti *TimeIntBase) checkForTimeStepIncrease() {
	p := ti.Params
	if (p.DivCont != DivHalveStep && p.DivCont != DivAdaptStep) || ti.divConRefinementLevel == 0 {
		return
	}
	gs := ti.GS
	ti.divConNumFineStep++
	if ti.divConNumFineStep < p.DivConNumFineStep {
		return
	}
	remaining := gs.StepMax - gs.StepN()
	if remaining%2 != 0 || remaining == 0 {
		return
	}
	ti.setStepSize(2*gs.DeltaT(), 0.5)
	ti.divConRefinementLevel--
	ti.divConNumFineStep = 0
	if ti.Params.Verbose && ti.rank() == 0 {
		fmt.Printf("step %d: dt restored to %10.4e, refinement level %d\n", gs.StepN(), gs.DeltaT(), ti.divConRefinementLevel)
	}
}
