// Package StructuralDynamics assembles a complete run from the input file:
// mesh, discretizations, conditions, model evaluators, time integrator and,
// for coupled problems, the scalar field and the SSI driver.
package StructuralDynamics

import (
	"fmt"
	"time"

	"github.com/notargets/gocsd/InputParameters"
	"github.com/notargets/gocsd/dbc"
	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/integrator"
	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/ssi"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/timint"
	"github.com/notargets/gocsd/utils"
)

type Options struct {
	// prefix of every output file, empty keeps results in memory
	Output string
	// restart step, 0 starts fresh and a negative value takes the last one
	Restart int
	// output prefix of the run to restart from, Output when empty
	RestartFrom string
	Verbose     bool
	// count retired instructions per step
	Perf bool
	Comm utils.Comm
}

type Problem struct {
	IP        *InputParameters.InputParameters
	Opts      Options
	Dis       *discretization.Discretization
	ScaTraDis *discretization.Discretization
	Funcs     *utils.FunctionManager
	TI        *timint.TimeIntBase
	// nil for pure structure problems
	SSI *ssi.Driver
	// instructions per step when Perf is set
	Instructions []uint64

	elapsed time.Duration
}

// NewProblem builds the problem and reads the restart if one is requested.
// The returned problem is ready for Solve.
func NewProblem(ip *InputParameters.InputParameters, opts Options) (p *Problem, err error) {
	if opts.Comm == nil {
		opts.Comm = utils.SerialComm{}
	}
	p = &Problem{IP: ip, Opts: opts}
	if p.Funcs, err = BuildFunctions(ip.Functions); err != nil {
		return nil, err
	}
	mesh, matOf, err := BuildMesh(ip)
	if err != nil {
		return nil, err
	}
	if p.Dis, err = discretization.NewFromMesh("structure", mesh, 3, 0, kernelFactory(ip, matOf)); err != nil {
		return nil, err
	}
	for name, nodes := range ip.NodeSets {
		p.Dis.NodeSets[name] = nodes
	}
	if err = p.setupStructure(); err != nil {
		return nil, err
	}
	if ip.ProblemType.ProblemType == InputParameters.ProblemSSI {
		if err = p.setupSSI(); err != nil {
			return nil, err
		}
	}
	if opts.Restart != 0 {
		from := opts.RestartFrom
		if from == "" {
			from = opts.Output
		}
		if from == "" {
			return nil, utils.NewConfigError("NewProblem", "restart needs an output prefix to read from")
		}
		if err = p.TI.ReadRestart(from, opts.Restart); err != nil {
			return nil, err
		}
	}
	if p.SSI != nil {
		err = p.SSI.PostSetup()
	} else {
		err = p.TI.PostSetup()
	}
	if err != nil {
		return nil, err
	}
	return
}

func (p *Problem) setupStructure() (err error) {
	var (
		ip     = p.IP
		sd     = ip.StructuralDynamic
		gs     = state.NewGlobalState(p.Opts.Comm)
		data   = &modelevaluator.Data{NumThreads: sd.NumThreads, Comm: p.Opts.Comm, Verbose: p.Opts.Verbose}
		mgr    = modelevaluator.NewManager(gs, data)
		dbcH   *dbc.Handler
		solver utils.LinearSolver
		tp     timint.Params
	)
	gs.Setup(p.Dis.DofRowMap(), nil)
	if err = addEvaluators(ip, mgr, gs, p.Dis, p.Funcs); err != nil {
		return
	}
	if dbcH, err = p.structureDBC(); err != nil {
		return
	}
	if solver, err = newSolver(sd); err != nil {
		return
	}
	if tp, err = timeParams(ip, p.Opts); err != nil {
		return
	}
	if p.TI, err = timint.NewTimeIntBase(tp, gs, mgr, dbcH, solver); err != nil {
		return
	}
	if err = p.TI.Setup(integratorParams(sd)); err != nil {
		return
	}
	if p.TI.Monitor, err = p.newMonitor(); err != nil {
		return
	}
	if p.Opts.Perf {
		p.TI.StepHook = p.countInstructions
	}
	return
}

func (p *Problem) structureDBC() (h *dbc.Handler, err error) {
	var (
		conds []dbc.Condition
		ls    []dbc.Locsys
	)
	if conds, err = dirichletConditions(p.IP, p.IP.Dirichlet, 3); err != nil {
		return
	}
	if ls, err = locsysConditions(p.IP); err != nil {
		return
	}
	if len(conds) == 0 && len(ls) == 0 {
		return
	}
	return dbc.NewHandler(p.Dis, p.Funcs, conds, ls, false)
}

func newSolver(sd InputParameters.StructuralDynamic) (s utils.LinearSolver, err error) {
	var st utils.SolverType
	if st, err = utils.NewSolverType(sd.LinearSolver); err != nil {
		return
	}
	return utils.NewLinearSolver(utils.SolverParams{Type: st, Tol: sd.SolverTol}), nil
}

func timeParams(ip *InputParameters.InputParameters, opts Options) (tp timint.Params, err error) {
	sd := ip.StructuralDynamic
	tp = timint.DefaultParams()
	tp.TimeInit, tp.TimeMax, tp.DeltaT, tp.StepMax = sd.TimeInit, sd.MaxTime, sd.TimeStep, sd.NumStep
	tp.TolRes, tp.TolDisp, tp.MaxIter = sd.TolRes, sd.TolDisp, sd.MaxIter
	tp.MaxDivConRefinementLevel, tp.DivConNumFineStep = sd.MaxDivCon, sd.DivConFine
	tp.RandSeed = int64(ip.ProblemType.RandSeed)
	tp.RestartEvery, tp.ResultsEvery = sd.RestartEvery, sd.ResultsEvery
	tp.WriteFinalRestart = sd.WriteFinalRestart
	tp.EveryIteration = ip.IO.EveryIteration
	tp.Output = opts.Output
	if tp.Output == "" {
		tp.Output = ip.IO.Output
	}
	tp.Problem = ip.ProblemType.ProblemType
	tp.Verbose = opts.Verbose || ip.IO.Verbose
	if tp.Predictor, err = modelevaluator.NewPredictorKind(sd.Predict); err != nil {
		return
	}
	if tp.NormRes, err = utils.NewNormType(sd.NormResF); err != nil {
		return
	}
	if tp.NormDisp, err = utils.NewNormType(sd.NormDisp); err != nil {
		return
	}
	if tp.Combo, err = timint.NewCombination(sd.NormCombi); err != nil {
		return
	}
	tp.DivCont, err = timint.NewDivContAct(sd.DiverCont)
	return
}

func integratorParams(sd InputParameters.StructuralDynamic) (ipar integrator.Params) {
	ipar.Type, _ = integrator.NewType(sd.DynamicType)
	ipar.RhoInf = sd.GenAlpha.RhoInf
	ipar.Beta, ipar.Gamma = sd.GenAlpha.Beta, sd.GenAlpha.Gamma
	ipar.AlphaF, ipar.AlphaM = sd.GenAlpha.AlphaF, sd.GenAlpha.AlphaM
	ipar.Theta = sd.OneStepTheta.Theta
	return
}

func (p *Problem) newMonitor() (m *out.Monitor, err error) {
	if len(p.IP.IO.Monitor) == 0 {
		return
	}
	dofs := make([]out.MonitorDof, len(p.IP.IO.Monitor))
	for i, md := range p.IP.IO.Monitor {
		var nd []int
		if nd, err = p.Dis.NodeDofs(md.Node); err != nil {
			return
		}
		if md.Dof < 0 || md.Dof >= len(nd) {
			return nil, utils.NewConfigError("newMonitor", "node %d has no DOF %d", md.Node, md.Dof)
		}
		dofs[i] = out.MonitorDof{Node: md.Node, Dof: md.Dof, Label: md.Label, LID: nd[md.Dof]}
	}
	return out.NewMonitor(p.TI.Params.Output, dofs), nil
}

func (p *Problem) countInstructions(step int, f func() error) (err error) {
	n, ok, err := utils.CountInstructions(f)
	if ok {
		p.Instructions = append(p.Instructions, n)
		if p.TI.Params.Verbose && p.Opts.Comm.Rank() == 0 {
			fmt.Printf("step %d: %d instructions\n", step, n)
		}
	}
	return
}

func (p *Problem) setupSSI() (err error) {
	var (
		ip  = p.IP
		sc  = ip.SSIControl
		st  = ip.ScalarTransport
		sp  = ssi.DefaultParams()
		scp = ssi.DefaultScaTraParams()
		sca *ssi.ScaTra
		h   *dbc.Handler
	)
	if sp.Scheme, err = ssi.NewScheme(sc.CoupAlgo); err != nil {
		return
	}
	if sp.FieldCoupling, err = ssi.NewFieldCoupling(sc.FieldCoupling); err != nil {
		return
	}
	if sp.Equilibration, err = utils.NewEquilibrationMethod(sc.Monolithic.Equilibration); err != nil {
		return
	}
	if sp.Scheme == ssi.Monolithic {
		sp.ItMax, sp.ConvTol = sc.Monolithic.ItMax, sc.Monolithic.ConvTol
	} else {
		sp.ItMax, sp.ConvTol = sc.Partitioned.ItMax, sc.Partitioned.ConvTol
	}
	sp.Omega, sp.MaxOmega = sc.Partitioned.Omega, sc.Partitioned.MaxOmega
	sp.AbsTolRes, sp.FDStep = sc.Monolithic.AbsTolRes, sc.Monolithic.FDStep
	sp.RestartFromStructure = sc.RestartFromStructure
	sp.Verbose = p.TI.Params.Verbose

	if scp.Type, err = ssi.NewScaTraType(sc.ScatraTimIntType); err != nil {
		return
	}
	scp.Theta, scp.TolRes, scp.MaxIter = st.Theta, st.AbsTolRes, st.ItMax
	scp.InitialValue, scp.Reaction, scp.Threshold = st.InitialField, st.ReactionRate, st.Threshold
	if scp.Type == ssi.ScaTraElch {
		scp.Threshold = sc.Elch.Equilibrium
	}

	if p.ScaTraDis, err = p.Dis.Clone("scatra", 1, 0); err != nil {
		return
	}
	var conds []dbc.Condition
	if conds, err = dirichletConditions(ip, ip.TransportDirich, 1); err != nil {
		return
	}
	if len(conds) > 0 {
		if h, err = dbc.NewHandler(p.ScaTraDis, p.Funcs, conds, nil, false); err != nil {
			return
		}
	}
	if sca, err = ssi.NewScaTra(scp, p.ScaTraDis, h, nil); err != nil {
		return
	}
	sca.Verbose = sp.Verbose
	p.SSI, err = ssi.NewDriver(sp, p.TI, p.Dis, sca)
	return
}

// Solve runs the time loop to the end.
func (p *Problem) Solve() (err error) {
	start := time.Now()
	if p.SSI != nil {
		err = p.SSI.Integrate()
	} else {
		err = p.TI.Integrate()
	}
	p.elapsed = time.Since(start)
	return
}

func (p *Problem) PrintInitialization() {
	if p.Opts.Comm.Rank() != 0 {
		return
	}
	gs := p.TI.GS
	fmt.Printf("%s: %q\n", p.IP.ProblemType.ProblemType, p.IP.Title)
	fmt.Printf("Nodes = %d, Elements = %d, structure DOFs = %d\n",
		p.Dis.NumNodes(), len(p.Dis.Elements), gs.DofRowMap().Len())
	if p.ScaTraDis != nil {
		fmt.Printf("Scalar transport DOFs = %d\n", p.ScaTraDis.DofRowMap().Len())
	}
	fmt.Printf("Scheme = %s, Time = %8.5f, dt = %10.4e, Final Time = %8.5f\n",
		p.TI.Int.Name(), gs.TimeN(), gs.DeltaT(), gs.TimeMax)
	if gs.RestartStep != 0 {
		fmt.Printf("Restarted from step %d\n", gs.RestartStep)
	}
}

func (p *Problem) PrintFinal() {
	if p.Opts.Comm.Rank() != 0 {
		return
	}
	gs := p.TI.GS
	fmt.Printf("\nFinished at step %d, time %8.5f, wall clock %v\n", gs.StepN(), gs.TimeN(), p.elapsed)
	if p.SSI != nil {
		fmt.Printf("SSI iterations of the last step = %d, scalar total = %10.5e\n",
			p.SSI.Iter, p.SSI.ScaTra.Total())
	}
	if len(p.Instructions) > 0 {
		var total uint64
		for _, n := range p.Instructions {
			total += n
		}
		fmt.Printf("Instructions per step = %d\n", total/uint64(len(p.Instructions)))
	}
}
