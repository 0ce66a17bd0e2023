// Package timint drives the structural time loop: predictor, nonlinear
// solve, divergence control, state update, output and restart.
package timint

import (
	"fmt"
	"math"
	"time"

	"github.com/notargets/gocsd/dbc"
	"github.com/notargets/gocsd/integrator"
	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

type TimeIntBase struct {
	Params  Params
	GS      *state.GlobalState
	Manager *modelevaluator.Manager
	Data    *modelevaluator.Data
	// nil when nothing is constrained
	DBC    *dbc.Handler
	Int    integrator.Integrator
	Solver utils.LinearSolver

	Runtime *out.RuntimeOutput
	Monitor *out.Monitor
	Control *restart.Control
	// StepHook wraps each step, used for hardware counters
	StepHook func(step int, f func() error) error
	// restart records of a coupled field, written after the structure
	WriteAuxRestart func(w *restart.Writer, forced bool)
	ReadAuxRestart  func(r *restart.Reader) error

	Info NewtonInfo
	// restart records of the last step when no output prefix is set
	LastRestart []byte

	divConRefinementLevel int
	divConNumFineStep     int
	divConTries           int
	randSteps             int
	dataWritten           bool

	startTime time.Time
	stepsRun  int
}

// NewTimeIntBase initialises the global state with the time parameters. The
// state must already be set up over the DOF map.
func NewTimeIntBase(p Params, gs *state.GlobalState, mgr *modelevaluator.Manager, dbcH *dbc.Handler,
	solver utils.LinearSolver) (ti *TimeIntBase, err error) {
	if err = p.Validate(); err != nil {
		return
	}
	gs.CheckSetup()
	if solver == nil {
		solver = utils.NewLinearSolver(utils.SolverParams{})
	}
	gs.Init(p.TimeInit, p.DeltaT, p.StepMax, p.TimeMax)
	ti = &TimeIntBase{
		Params:  p,
		GS:      gs,
		Manager: mgr,
		Data:    mgr.Data,
		DBC:     dbcH,
		Solver:  solver,
		Runtime: out.NewRuntimeOutput(p.Output, p.EveryIteration),
		Control: restart.NewControl(p.Problem),
	}
	return
}

func (ti *TimeIntBase) rank() int { return ti.GS.Comm.Rank() }

// Setup builds the scheme and sets up the model evaluators.
func (ti *TimeIntBase) Setup(ip integrator.Params) (err error) {
	if err = ti.Manager.Setup(); err != nil {
		return
	}
	ctx := integrator.Context{GS: ti.GS, Manager: ti.Manager, Data: ti.Data, DBC: ti.DBC, Solver: ti.Solver}
	if ti.Int, err = integrator.New(ctx, ip); err != nil {
		return
	}
	if err = ti.Int.Setup(); err != nil {
		return
	}
	if ti.Params.Predictor != modelevaluator.PredConstDis && !ti.Int.IsImplicit() {
		fmt.Printf("WARNING: predictor %s is ignored by %s\n", ti.Params.Predictor, ti.Int.Name())
	}
	return
}

// PostSetup finishes the initialisation. A fresh run gets the prescribed
// values at t_0 and a consistent initial acceleration.
func (ti *TimeIntBase) PostSetup() (err error) {
	gs := ti.GS
	if err = ti.Int.PostSetup(); err != nil {
		return
	}
	if gs.RestartStep == 0 {
		if ti.DBC != nil {
			if err = ti.DBC.ApplyDirichletBC(gs.TimeN(), gs.DisN(), gs.VelN(), gs.AccN(), false); err != nil {
				return
			}
		}
		if err = ti.Int.DetermineInitialAcceleration(); err != nil {
			return
		}
		gs.ResetNpToN()
	}
	ti.startTime = time.Now()
	ti.PrintInitialization()
	return
}

func (ti *TimeIntBase) PrintInitialization() {
	if !ti.Params.Verbose || ti.rank() != 0 {
		return
	}
	gs := ti.GS
	fmt.Printf("Structural time integration with %s, %d DOFs\n", ti.Int.Name(), gs.DofRowMap().Len())
	fmt.Printf("Time %8.5f to %8.5f, dt = %10.4e, max steps = %d\n", gs.TimeN(), gs.TimeMax, gs.DeltaT(), gs.StepMax)
	fmt.Printf("Linear solver: %s, divergence action: %s\n", ti.Solver.Name(), ti.Params.DivCont)
	if ti.Int.IsImplicit() {
		fmt.Printf("    step    iter       |R|         |dx|\n")
	}
}

// NotFinished reports whether steps remain before the end time or the step
// limit.
func (ti *TimeIntBase) NotFinished() bool {
	gs := ti.GS
	return gs.TimeN() < gs.TimeMax-1e-10*gs.DeltaT() && gs.StepN() < gs.StepMax
}

// Integrate runs the time loop to the end and writes the final output.
func (ti *TimeIntBase) Integrate() (err error) {
	for ti.NotFinished() {
		step := ti.GS.StepN() + 1
		if ti.StepHook != nil {
			err = ti.StepHook(step, ti.IntegrateStep)
		} else {
			err = ti.IntegrateStep()
		}
		if err != nil {
			return
		}
	}
	return ti.Finalize()
}

// PrepareTimeStep sets the n+1 time and the time factors of the scheme.
func (ti *TimeIntBase) PrepareTimeStep() {
	ti.GS.PrepareTimeStep()
	ti.Int.ResetEvalParams()
	ti.dataWritten = false
}

func (ti *TimeIntBase) Predict() error {
	return ti.Int.Predict(ti.Params.Predictor)
}

// IntegrateStep advances one step, replaying it as the divergence action
// requires.
func (ti *TimeIntBase) IntegrateStep() (err error) {
	ti.divConTries = 0
	for {
		ti.PrepareTimeStep()
		if err = ti.Predict(); err != nil {
			return
		}
		if ti.Solve() == Converged {
			break
		}
		var replay bool
		if replay, err = ti.performErrorAction(); err != nil {
			return
		}
		if !replay {
			break
		}
	}
	ti.PrepareOutput()
	ti.Update()
	if err = ti.Output(false); err != nil {
		return
	}
	ti.checkForTimeStepIncrease()
	return
}

// PrepareOutput stamps the runtime output with the converged step.
func (ti *TimeIntBase) PrepareOutput() {
	ti.Runtime.SetStep(ti.GS.StepNp(), ti.GS.TimeNp(), -1)
}

// Update commits the converged state: scheme and evaluator histories first,
// then the global state shift.
func (ti *TimeIntBase) Update() {
	ti.Int.UpdateStepState()
	ti.Int.UpdateStepElement()
	ti.GS.UpdateTimeStep()
	ti.Int.PostUpdate()
	ti.stepsRun++
	if !ti.Int.IsImplicit() && ti.Params.Verbose && ti.rank() == 0 {
		gs := ti.GS
		fmt.Printf("Finalised step %d / %d | time %10.5e | dt %10.5e | wct %8.2e\n",
			gs.StepN(), gs.StepMax, gs.TimeN(), gs.DeltaT(), time.Since(ti.startTime).Seconds())
	}
}

// newIOStep marks the current step as written; at most once per step.
func (ti *TimeIntBase) newIOStep() bool {
	if ti.dataWritten {
		return false
	}
	ti.dataWritten = true
	return true
}

// Output writes results and restart data of the converged step n.
func (ti *TimeIntBase) Output(forced bool) (err error) {
	var (
		p    = ti.Params
		step = ti.GS.StepN()
	)
	if forced || (p.ResultsEvery > 0 && step%p.ResultsEvery == 0) {
		ti.newIOStep()
		ti.Runtime.SetStep(step, ti.GS.TimeN(), -1)
		ti.Manager.RuntimeOutputStepState(ti.Runtime)
		if ti.Monitor != nil {
			ti.Monitor.Record(step, ti.GS.TimeN(), ti.GS.DisN(), ti.GS.VelN(), ti.GS.AccN())
		}
	}
	if ti.restartStep(step) {
		ti.newIOStep()
		err = ti.WriteRestart(false)
	}
	return
}

func (ti *TimeIntBase) restartStep(step int) bool {
	return ti.Params.RestartEvery > 0 && step%ti.Params.RestartEvery == 0
}

func (ti *TimeIntBase) iterationOutput(iter int) {
	if !ti.Params.EveryIteration {
		return
	}
	ti.Runtime.SetStep(ti.GS.StepNp(), ti.GS.TimeNp(), iter)
	ti.Manager.RuntimeOutputStepState(ti.Runtime)
}

// Finalize writes the forced restart and flushes the collected output.
// Failures of the secondary outputs are reported and ignored.
func (ti *TimeIntBase) Finalize() (err error) {
	if ti.Params.WriteFinalRestart && !ti.restartStep(ti.GS.StepN()) {
		if err = ti.WriteRestart(true); err != nil {
			return
		}
	}
	if ti.Params.Output != "" && ti.rank() == 0 {
		if ferr := ti.Runtime.Flush(); ferr != nil {
			fmt.Printf("WARNING: runtime output: %v\n", ferr)
		}
		if ti.Monitor != nil && ti.Monitor.Len() > 0 {
			if ferr := ti.Monitor.WriteCSV(); ferr != nil {
				fmt.Printf("WARNING: monitor output: %v\n", ferr)
			}
			if ferr := ti.Monitor.Plot(); ferr != nil {
				fmt.Printf("WARNING: monitor plot: %v\n", ferr)
			}
		}
	}
	ti.PrintFinal()
	return
}

func (ti *TimeIntBase) PrintFinal() {
	if !ti.Params.Verbose || ti.rank() != 0 {
		return
	}
	var (
		elapsed = time.Since(ti.startTime)
		rate    = math.NaN()
	)
	if ti.stepsRun > 0 {
		rate = float64(elapsed.Microseconds()) / float64(ti.stepsRun)
	}
	fmt.Printf("\nRate of execution = %8.2f us/step over %d steps\n", rate, ti.stepsRun)
	utils.PrintMemoryReport(ti.rank())
}

// DivConRefinementLevel is the number of halvings in effect.
func (ti *TimeIntBase) DivConRefinementLevel() int { return ti.divConRefinementLevel }

func (ti *TimeIntBase) DivConNumFineStep() int { return ti.divConNumFineStep }
