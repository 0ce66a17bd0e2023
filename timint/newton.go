package timint

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/utils"
)

// Status is the outcome of a nonlinear solve. Divergence is reported here,
// not as an error; the time loop decides what to do with it.
type Status uint8

const (
	Converged Status = iota
	Diverged
)

func (s Status) String() string {
	if s == Converged {
		return "converged"
	}
	return "diverged"
}

// NewtonInfo describes the last nonlinear solve.
type NewtonInfo struct {
	Iter              int
	NormRes, NormDisp float64
	Reason            string
}

// globalNorm reduces the local norm over the ranks of comm.
func globalNorm(comm utils.Comm, v *mat.VecDense, nt utils.NormType) float64 {
	var (
		local = utils.Norm(v, nt)
		n     = float64(v.Len())
	)
	switch nt {
	case utils.NormInf:
		return comm.MaxAll(local)
	case utils.NormL1:
		return comm.SumAll(local)
	case utils.NormRMS:
		return math.Sqrt(comm.SumAll(local*local*n) / comm.SumAll(n))
	}
	return math.Sqrt(comm.SumAll(local * local))
}

func (ti *TimeIntBase) converged(normRes, normDisp float64) bool {
	var (
		p    = ti.Params
		res  = normRes <= p.TolRes
		incr = normDisp <= p.TolDisp
	)
	if p.Combo == CombOr {
		return res || incr
	}
	return res && incr
}

// Solve runs the nonlinear solve of the current step from the predicted
// state. Explicit schemes take a single linear step.
func (ti *TimeIntBase) Solve() Status {
	if !ti.Int.IsImplicit() {
		return ti.solveExplicit()
	}
	return ti.solveNewton()
}

func (ti *TimeIntBase) diverged(reason string) Status {
	ti.Info.Reason = reason
	if ti.Params.Verbose && ti.rank() == 0 {
		fmt.Printf("WARNING: step %d: nonlinear solver diverged: %s\n", ti.GS.StepNp(), reason)
	}
	return Diverged
}

func (ti *TimeIntBase) solveNewton() Status {
	var (
		gs   = ti.GS
		n    = gs.DofRowMap().Len()
		x    = ti.Int.Unknown()
		f    = utils.NewVec(n)
		dx   = utils.NewVec(n)
		J    = gs.Jacobian()
		comm = gs.Comm
	)
	ti.Info = NewtonInfo{NormDisp: math.Inf(1)}
	for iter := 0; ; iter++ {
		gs.NlnIter = iter
		ti.Info.Iter = iter
		ok := ti.Int.ApplyForceStiff(x, f, J)
		ti.iterationOutput(iter)
		if !ok {
			return ti.diverged("model evaluation failed")
		}
		if ti.DBC != nil {
			ti.DBC.ApplyToSystem(J, nil, f, nil)
		}
		ti.Info.NormRes = globalNorm(comm, f, ti.Params.NormRes)
		if math.IsNaN(ti.Info.NormRes) || math.IsInf(ti.Info.NormRes, 0) {
			return ti.diverged("residual is not a number")
		}
		if ti.Params.Verbose && comm.Rank() == 0 {
			fmt.Printf("%8d%8d %12.5e %12.5e\n", gs.StepNp(), iter, ti.Info.NormRes, ti.Info.NormDisp)
		}
		if iter > 0 && ti.converged(ti.Info.NormRes, ti.Info.NormDisp) {
			return Converged
		}
		if iter >= ti.Params.MaxIter {
			return ti.diverged(fmt.Sprintf("MAXITER = %d reached", ti.Params.MaxIter))
		}
		f.ScaleVec(-1, f)
		dx.Zero()
		if err := ti.Solver.Solve(J, dx, f); err != nil {
			return ti.diverged(err.Error())
		}
		x.AddVec(x, dx)
		ti.Info.NormDisp = globalNorm(comm, dx, ti.Params.NormDisp)
	}
}

// solveExplicit solves M A_{n+1} = -r(A_n) once and evaluates the model at
// the result so the converged forces are current.
func (ti *TimeIntBase) solveExplicit() Status {
	var (
		gs = ti.GS
		n  = gs.DofRowMap().Len()
		x  = ti.Int.Unknown()
		f  = utils.NewVec(n)
		dx = utils.NewVec(n)
		J  = gs.Jacobian()
	)
	ti.Info = NewtonInfo{}
	gs.NlnIter = 0
	if !ti.Int.ApplyForceStiff(x, f, J) {
		return ti.diverged("model evaluation failed")
	}
	if ti.DBC != nil {
		ti.DBC.ApplyToSystem(J, nil, f, nil)
	}
	f.ScaleVec(-1, f)
	if err := ti.Solver.Solve(J, dx, f); err != nil {
		return ti.diverged(err.Error())
	}
	x.AddVec(x, dx)
	ti.Info.NormDisp = globalNorm(gs.Comm, dx, ti.Params.NormDisp)
	if !ti.Int.ApplyForce(x, f) {
		return ti.diverged("model evaluation failed")
	}
	if utils.HasNaNOrInf(x) {
		return ti.diverged("acceleration is not a number")
	}
	ti.Info.Iter = 1
	return Converged
}
