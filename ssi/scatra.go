package ssi

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/dbc"
	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/utils"
)

// ScaTra is the scalar transport field, one DOF per node, integrated with
// one-step-theta:
//
//	M (phi_{n+1} - phi_n)/dt + theta g(phi_{n+1}) + (1-theta) g(phi_n) = 0
//
// with g(phi) = K phi - r(phi). M and K are evaluated on the deformed
// geometry, K carries diffusion and advection by the structure velocity.
type ScaTra struct {
	Params  ScaTraParams
	Dis     *discretization.Discretization
	DBC     *dbc.Handler
	Solver  utils.LinearSolver
	Comm    utils.Comm
	Verbose bool

	Phin, Phinp *mat.VecDense
	// structure displacement and velocity on the scalar nodes, 3 per node;
	// nil evaluates on the reference geometry at rest
	Disp, Vel *mat.VecDense

	M, K *utils.SparseOperator
	// Jacobian and residual of the last Evaluate
	Sys      *utils.SparseOperator
	Residual *mat.VecDense

	Time, Dt float64
	Step     int
	Iter     int
	NormRes  float64

	// g(phi_n) of the converged step
	gN     *mat.VecDense
	lumped []float64
}

func NewScaTra(p ScaTraParams, dis *discretization.Discretization, dbcH *dbc.Handler, solver utils.LinearSolver) (sc *ScaTra, err error) {
	if err = p.Validate(); err != nil {
		return
	}
	if dis.NumDofPerNode != 1 {
		return nil, utils.NewConfigError("ssi.NewScaTra", "%s has %d DOFs per node, want 1", dis.Name, dis.NumDofPerNode)
	}
	if solver == nil {
		solver = utils.NewLinearSolver(utils.SolverParams{})
	}
	n := dis.DofRowMap().Len()
	sc = &ScaTra{
		Params:   p,
		Dis:      dis,
		DBC:      dbcH,
		Solver:   solver,
		Comm:     utils.SerialComm{},
		Phin:     utils.NewVec(n),
		Phinp:    utils.NewVec(n),
		Residual: utils.NewVec(n),
		gN:       utils.NewVec(n),
		lumped:   make([]float64, n),
	}
	for i := 0; i < n; i++ {
		sc.Phin.SetVec(i, p.InitialValue)
	}
	sc.Phinp.CopyVec(sc.Phin)
	return
}

func (sc *ScaTra) numNodes() int { return sc.Dis.DofRowMap().Len() }

// assembleOperators evaluates M and K on the current geometry.
func (sc *ScaTra) assembleOperators() {
	n := sc.numNodes()
	if sc.M == nil {
		sc.M = utils.NewSparseOperator(n, n, "scatra mass")
		sc.K = utils.NewSparseOperator(n, n, "scatra transport")
		sc.Sys = utils.NewSparseOperator(n, n, "scatra system")
	}
	sc.M.Zero()
	sc.K.Zero()
	for i := range sc.lumped {
		sc.lumped[i] = 0
	}
	for _, e := range sc.Dis.Elements {
		if e.Kernel == nil {
			continue
		}
		tk, ok := e.Transport()
		if !ok {
			continue
		}
		var (
			X   = sc.Dis.CurrentCoords(e, sc.Disp)
			vel []float64
		)
		if sc.Vel != nil {
			vel = make([]float64, 0, 3*len(e.NodeLIDs()))
			for _, lid := range e.NodeLIDs() {
				vel = append(vel, sc.Vel.AtVec(3*lid), sc.Vel.AtVec(3*lid+1), sc.Vel.AtVec(3*lid+2))
			}
		}
		Me, Ke := tk.Transport(X, vel, e.Material)
		sc.M.AssembleElement(e.LM, Me, 1)
		sc.K.AssembleElement(e.LM, Ke, 1)
		for a, row := range e.LM {
			sc.lumped[row] += floats.Sum(Me.RawRowView(a))
		}
	}
	sc.M.Complete()
	sc.K.Complete()
}

// reaction returns the nodal reaction rate and its derivative.
func (sc *ScaTra) reaction(phi float64) (r, dr float64) {
	var (
		k = sc.Params.Reaction
		a = sc.Params.Threshold
	)
	switch sc.Params.Type {
	case ScaTraCardiacMonodomain:
		// cubic excitation with threshold a
		r = k * phi * (phi - a) * (1 - phi)
		dr = k * ((phi-a)*(1-phi) + phi*(1-phi) - phi*(phi-a))
	case ScaTraElch:
		// first order kinetics towards the equilibrium value a
		r, dr = -k*(phi-a), -k
	default:
		r, dr = -k*phi, -k
	}
	return
}

// transportOperator sets g = K phi - r(phi) on the assembled operators.
func (sc *ScaTra) transportOperator(g, phi *mat.VecDense) {
	sc.K.MulVec(g, false, phi)
	for i := 0; i < g.Len(); i++ {
		r, _ := sc.reaction(phi.AtVec(i))
		g.SetVec(i, g.AtVec(i)-sc.lumped[i]*r)
	}
}

// Evaluate builds the residual and Jacobian at Phinp on the current
// geometry. Constraints are not applied.
func (sc *ScaTra) Evaluate() (ok bool) {
	var (
		n     = sc.numNodes()
		theta = sc.Params.Theta
		g     = utils.NewVec(n)
		dphi  = utils.NewVec(n)
	)
	sc.assembleOperators()
	sc.transportOperator(g, sc.Phinp)
	dphi.SubVec(sc.Phinp, sc.Phin)
	sc.M.MulVec(sc.Residual, false, dphi)
	sc.Residual.ScaleVec(1/sc.Dt, sc.Residual)
	sc.Residual.AddScaledVec(sc.Residual, theta, g)
	sc.Residual.AddScaledVec(sc.Residual, 1-theta, sc.gN)

	sc.Sys.UnComplete()
	sc.Sys.Zero()
	sc.Sys.Add(sc.M, false, 1/sc.Dt, 1)
	sc.Sys.Add(sc.K, false, theta, 1)
	for i := 0; i < n; i++ {
		if _, dr := sc.reaction(sc.Phinp.AtVec(i)); dr != 0 {
			sc.Sys.Assemble(i, i, -theta*sc.lumped[i]*dr)
		}
	}
	sc.Sys.Complete()
	return !utils.HasNaNOrInf(sc.Residual)
}

// PrepareTimeLoop evaluates g(phi_0) on the initial geometry.
func (sc *ScaTra) PrepareTimeLoop() {
	sc.assembleOperators()
	sc.transportOperator(sc.gN, sc.Phin)
}

// PrepareTimeStep starts step n+1 from phi_n with the prescribed values at
// t_{n+1}.
func (sc *ScaTra) PrepareTimeStep(tnp, dt float64, stepNp int) (err error) {
	sc.Time, sc.Dt, sc.Step = tnp, dt, stepNp
	sc.Phinp.CopyVec(sc.Phin)
	if sc.DBC != nil {
		err = sc.DBC.ApplyDirichletBC(tnp, sc.Phinp, nil, nil, false)
	}
	return
}

// Solve runs the Newton iteration of the field with the other field frozen.
func (sc *ScaTra) Solve() (err error) {
	var (
		n  = sc.numNodes()
		dx = utils.NewVec(n)
		b  = utils.NewVec(n)
	)
	for iter := 0; ; iter++ {
		sc.Iter = iter
		if !sc.Evaluate() {
			return utils.NewNumericalError("ScaTra.Solve", "step %d: residual is not a number", sc.Step)
		}
		if sc.DBC != nil {
			sc.DBC.ApplyToSystem(sc.Sys, nil, sc.Residual, nil)
		}
		sc.NormRes = math.Sqrt(sc.Comm.SumAll(math.Pow(utils.Norm(sc.Residual, utils.NormL2), 2)))
		if sc.Verbose && sc.Comm.Rank() == 0 {
			fmt.Printf("  scatra %6d%6d %12.5e\n", sc.Step, iter, sc.NormRes)
		}
		if sc.NormRes <= sc.Params.TolRes {
			return
		}
		if iter >= sc.Params.MaxIter {
			return utils.NewNumericalError("ScaTra.Solve", "step %d: no convergence in %d iterations, |R| = %10.4e",
				sc.Step, sc.Params.MaxIter, sc.NormRes)
		}
		b.ScaleVec(-1, sc.Residual)
		dx.Zero()
		if err = sc.Solver.Solve(sc.Sys, dx, b); err != nil {
			return
		}
		if sc.DBC != nil {
			sc.DBC.ExtractFreeDofs(dx)
		}
		sc.Phinp.AddVec(sc.Phinp, dx)
	}
}

// Update stores g(phi_{n+1}) on the converged geometry and shifts the
// state.
func (sc *ScaTra) Update() {
	sc.assembleOperators()
	sc.transportOperator(sc.gN, sc.Phinp)
	sc.Phin.CopyVec(sc.Phinp)
}

func (sc *ScaTra) WriteRestart(w *restart.Writer) {
	w.WriteVector("scatra_phin", sc.Phin)
	w.WriteVector("scatra_gn", sc.gN)
}

func (sc *ScaTra) ReadRestart(r *restart.Reader) (err error) {
	if err = r.ReadVectorInto("scatra_phin", sc.Phin); err != nil {
		return
	}
	if err = r.ReadVectorInto("scatra_gn", sc.gN); err != nil {
		return
	}
	sc.Phinp.CopyVec(sc.Phin)
	return
}

// Stats summarises phi_n for the runtime output.
func (sc *ScaTra) Stats() out.Record {
	phi := utils.VecData(sc.Phin)
	return out.Record{
		"mean": floats.Sum(phi) / float64(len(phi)),
		"min":  floats.Min(phi),
		"max":  floats.Max(phi),
		"iter": float64(sc.Iter),
	}
}

// Total is the integral of phi_n over the current geometry.
func (sc *ScaTra) Total() float64 {
	return floats.Dot(sc.lumped, utils.VecData(sc.Phin))
}
