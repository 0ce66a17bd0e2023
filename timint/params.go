package timint

import (
	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/utils"
)

// DivContAct is what the time loop does when the nonlinear solve fails.
type DivContAct uint8

const (
	DivStop DivContAct = iota
	DivContinue
	DivRepeatStep
	DivHalveStep
	DivAdaptStep
	DivRandAdaptStep
)

var divContNames = []string{"stop", "continue", "repeat_step", "halve_step", "adapt_step", "rand_adapt_step"}

func NewDivContAct(label string) (DivContAct, error) {
	for i, name := range divContNames {
		if name == label {
			return DivContAct(i), nil
		}
	}
	return DivStop, utils.NewConfigError("NewDivContAct", "unknown DIVERCONT action %q", label)
}

func (d DivContAct) String() string { return divContNames[d] }

// Combination joins the residual and increment tests.
type Combination uint8

const (
	CombAnd Combination = iota
	CombOr
)

func NewCombination(label string) (Combination, error) {
	switch label {
	case "", "And", "AND":
		return CombAnd, nil
	case "Or", "OR":
		return CombOr, nil
	}
	return CombAnd, utils.NewConfigError("NewCombination", "unknown combination %q", label)
}

type Params struct {
	TimeInit, TimeMax, DeltaT float64
	StepMax                   int

	Predictor modelevaluator.PredictorKind

	NormRes, NormDisp utils.NormType
	TolRes, TolDisp   float64
	Combo             Combination
	MaxIter           int

	DivCont                  DivContAct
	MaxDivConRefinementLevel int
	// converged fine steps before the step size is doubled again
	DivConNumFineStep int
	// seed of rand_adapt_step, negative uses the clock
	RandSeed int64

	// 0 disables
	RestartEvery, ResultsEvery int
	EveryIteration             bool
	WriteFinalRestart          bool

	// file prefix of all output, empty keeps everything in memory
	Output  string
	Problem string
	Verbose bool
}

func DefaultParams() Params {
	return Params{
		TimeMax:                  1,
		DeltaT:                   0.05,
		StepMax:                  20,
		Predictor:                modelevaluator.PredConstDis,
		NormRes:                  utils.NormL2,
		NormDisp:                 utils.NormL2,
		TolRes:                   1e-8,
		TolDisp:                  1e-8,
		Combo:                    CombAnd,
		MaxIter:                  50,
		DivCont:                  DivStop,
		MaxDivConRefinementLevel: 10,
		DivConNumFineStep:        4,
		RandSeed:                 -1,
		RestartEvery:             1,
		ResultsEvery:             1,
		Problem:                  "Structure",
	}
}

func (p Params) Validate() error {
	switch {
	case p.DeltaT <= 0:
		return utils.NewConfigError("timint.Params", "TIMESTEP must be positive, got %v", p.DeltaT)
	case p.StepMax < 0:
		return utils.NewConfigError("timint.Params", "NUMSTEP must be non negative")
	case p.MaxIter < 1:
		return utils.NewConfigError("timint.Params", "MAXITER must be at least 1")
	case p.TolRes <= 0 && p.TolDisp <= 0:
		return utils.NewConfigError("timint.Params", "TOLRES or TOLDISP must be positive")
	case p.DivConNumFineStep < 1:
		return utils.NewConfigError("timint.Params", "DIVCONNUMFINESTEP must be at least 1")
	}
	return nil
}
