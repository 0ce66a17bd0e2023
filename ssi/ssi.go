package ssi

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/timint"
	"github.com/notargets/gocsd/utils"
)

// Driver advances the structure and the scalar field together. The
// structure time integrator owns time, step and output; the scalar field
// follows its steps.
type Driver struct {
	Params   Params
	Struct   *timint.TimeIntBase
	ScaTra   *ScaTra
	Coupling *Coupling
	// monolithic system, nil for the partitioned schemes
	System *BlockSystem

	// iterations and norms of the last step
	Iter             int
	NormRes, NormInc float64
	// relaxation factor of the last outer iteration
	Omega float64

	// scalar field on the structure nodes
	conc *mat.VecDense
	// nil when the structure field is not a modelevaluator.Structure
	structure *modelevaluator.Structure
	// increment of the relaxed field in the previous outer iteration
	incOld *mat.VecDense
}

// NewDriver couples a set up structure integrator with a scalar field. The
// restart hooks of the structure are taken over, so a restart has to be
// read after NewDriver.
func NewDriver(p Params, st *timint.TimeIntBase, structDis *discretization.Discretization, sc *ScaTra) (d *Driver, err error) {
	if err = p.Validate(); err != nil {
		return
	}
	if st.Int == nil {
		return nil, utils.NewRuntimeError("ssi.NewDriver", "structure time integrator is not set up")
	}
	if structDis.DofRowMap().Len() == 0 {
		return nil, utils.NewConfigError("ssi.NewDriver", "structure discretization has no DOFs")
	}
	if sc.Dis.DofRowMap().Len() == 0 {
		return nil, utils.NewConfigError("ssi.NewDriver", "scalar transport discretization has no DOFs")
	}
	if p.Scheme == Monolithic {
		if !st.Int.IsImplicit() {
			return nil, utils.NewConfigError("ssi.NewDriver", "%s needs an implicit structure scheme, got %s",
				p.Scheme, st.Int.Name())
		}
		if st.DBC != nil && st.DBC.HasLocsys() {
			return nil, utils.NewConfigError("ssi.NewDriver", "%s does not support local coordinate systems", p.Scheme)
		}
	}
	if err = CheckInterfaceConditions(p.FieldCoupling, structDis, sc.Dis); err != nil {
		return
	}
	d = &Driver{
		Params: p,
		Struct: st,
		ScaTra: sc,
		Omega:  p.Omega,
		conc:   utils.NewVec(structDis.NumNodes()),
	}
	if d.Coupling, err = NewCoupling(p.FieldCoupling, structDis, sc.Dis); err != nil {
		return nil, err
	}
	if p.Scheme != OneWaySolidToScatra {
		st.Data.Concentration = d.conc
	}
	if ev, ok := st.Manager.Evaluator(modelevaluator.TypeStructure); ok {
		d.structure, _ = ev.(*modelevaluator.Structure)
	}
	if p.Scheme != OneWayScatraToSolid {
		n := 3 * sc.Dis.NumNodes()
		sc.Disp, sc.Vel = utils.NewVec(n), utils.NewVec(n)
	}
	if p.Scheme == Monolithic {
		d.System = NewBlockSystem([]int{st.GS.DofRowMap().Len(), sc.Dis.DofRowMap().Len()},
			p.Equilibration, nil)
		d.System.Comm = st.GS.Comm
	}
	sc.Comm = st.GS.Comm
	st.WriteAuxRestart = d.writeRestart
	st.ReadAuxRestart = d.readRestart
	return
}

// CheckInterfaceConditions verifies that interface conditions of the
// structure have scalar counterparts on the same nodes and the reverse.
func CheckInterfaceConditions(fc FieldCoupling, structDis, scatraDis *discretization.Discretization) error {
	var (
		kin, hasKin = scatraDis.NodeSets[CondS2IKinetics]
		found       bool
	)
	for _, name := range []string{CondInterfaceMeshtying, CondInterfaceContact} {
		nodes, ok := structDis.NodeSets[name]
		if !ok {
			continue
		}
		found = true
		if !hasKin {
			return utils.NewConfigError("ssi.CheckInterfaceConditions",
				"structure condition %s has no %s condition on the scalar field", name, CondS2IKinetics)
		}
		if !sameNodes(nodes, kin) {
			return utils.NewConfigError("ssi.CheckInterfaceConditions",
				"nodes of %s and %s differ", name, CondS2IKinetics)
		}
	}
	if hasKin && !found {
		return utils.NewConfigError("ssi.CheckInterfaceConditions",
			"%s condition without %s or %s condition on the structure", CondS2IKinetics, CondInterfaceMeshtying, CondInterfaceContact)
	}
	if _, ok := scatraDis.NodeSets[CondCoupling]; ok && fc != BoundaryNonMatch && fc != VolumeBoundaryMatch {
		return utils.NewConfigError("ssi.CheckInterfaceConditions",
			"%s condition only valid with FIELDCOUPLING %s or %s", CondCoupling, BoundaryNonMatch, VolumeBoundaryMatch)
	}
	return nil
}

func sameNodes(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = append([]int(nil), a...), append([]int(nil), b...)
	sort.Ints(a)
	sort.Ints(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (d *Driver) rank() int { return d.Struct.GS.Comm.Rank() }

// setStructureState passes displacement and velocity at n+1 to the scalar
// field.
func (d *Driver) setStructureState() {
	if d.ScaTra.Disp == nil {
		return
	}
	gs := d.Struct.GS
	d.Coupling.StructureToScaTra(gs.DisNp(), d.ScaTra.Disp)
	d.Coupling.StructureToScaTra(gs.VelNp(), d.ScaTra.Vel)
}

// setScaTraState passes phi to the structure.
func (d *Driver) setScaTraState(phi *mat.VecDense) {
	d.Coupling.ScaTraToStructure(phi, d.conc)
}

// PostSetup hands the initial states across and initialises both fields.
func (d *Driver) PostSetup() (err error) {
	var (
		gs = d.Struct.GS
		sc = d.ScaTra
	)
	if sc.DBC != nil && gs.RestartStep == 0 {
		if err = sc.DBC.ApplyDirichletBC(gs.TimeN(), sc.Phin, nil, nil, false); err != nil {
			return
		}
		sc.Phinp.CopyVec(sc.Phin)
	}
	d.setScaTraState(sc.Phin)
	if err = d.Struct.PostSetup(); err != nil {
		return
	}
	if sc.Disp != nil {
		d.Coupling.StructureToScaTra(gs.DisN(), sc.Disp)
		d.Coupling.StructureToScaTra(gs.VelN(), sc.Vel)
	}
	if gs.RestartStep == 0 || d.Params.RestartFromStructure {
		sc.PrepareTimeLoop()
	}
	d.PrintInitialization()
	return
}

func (d *Driver) PrintInitialization() {
	if !d.Params.Verbose || d.rank() != 0 {
		return
	}
	fmt.Printf("SSI: %s, %s coupling, %d coupled nodes, scalar field %s with %d DOFs\n",
		d.Params.Scheme, d.Params.FieldCoupling, d.Coupling.NumCoupled(), d.ScaTra.Params.Type,
		d.ScaTra.Dis.DofRowMap().Len())
}

// Integrate runs the coupled time loop to the end.
func (d *Driver) Integrate() (err error) {
	st := d.Struct
	for st.NotFinished() {
		step := st.GS.StepN() + 1
		if st.StepHook != nil {
			err = st.StepHook(step, d.IntegrateStep)
		} else {
			err = d.IntegrateStep()
		}
		if err != nil {
			return
		}
	}
	return st.Finalize()
}

// IntegrateStep advances both fields by one step.
func (d *Driver) IntegrateStep() (err error) {
	var (
		st = d.Struct
		gs = st.GS
		sc = d.ScaTra
	)
	st.PrepareTimeStep()
	if err = st.Predict(); err != nil {
		return
	}
	if err = sc.PrepareTimeStep(gs.TimeNp(), gs.DeltaT(), gs.StepNp()); err != nil {
		return
	}
	switch d.Params.Scheme {
	case Monolithic:
		err = d.newtonLoop()
	case OneWayScatraToSolid, OneWaySolidToScatra:
		err = d.oneWay()
	default:
		err = d.outerLoop()
	}
	if err != nil {
		return
	}
	st.PrepareOutput()
	sc.Update()
	st.Update()
	if err = st.Output(false); err != nil {
		return
	}
	if p := st.Params; p.ResultsEvery > 0 && gs.StepN()%p.ResultsEvery == 0 {
		st.Runtime.Append("scatra", sc.Stats())
	}
	return
}

// solveStructure runs the structure Newton loop with the scalar field
// frozen.
func (d *Driver) solveStructure() error {
	if d.Struct.Solve() != timint.Converged {
		return utils.NewNumericalError("ssi", "structure field diverged in step %d: %s",
			d.Struct.GS.StepNp(), d.Struct.Info.Reason)
	}
	return nil
}

func (d *Driver) oneWay() (err error) {
	d.Iter = 1
	if d.Params.Scheme == OneWayScatraToSolid {
		if err = d.ScaTra.Solve(); err != nil {
			return
		}
		d.setScaTraState(d.ScaTra.Phinp)
		return d.solveStructure()
	}
	if err = d.solveStructure(); err != nil {
		return
	}
	d.setStructureState()
	return d.ScaTra.Solve()
}

func (d *Driver) writeRestart(w *restart.Writer, forced bool) {
	d.ScaTra.WriteRestart(w)
}

// readRestart restores the scalar field. Restarting from a pure structure
// run keeps the initial scalar field; time and step come from the structure.
func (d *Driver) readRestart(r *restart.Reader) error {
	if d.Params.RestartFromStructure {
		return nil
	}
	return d.ScaTra.ReadRestart(r)
}

// relativeNorm scales by the norm of the field unless that is tiny.
func (d *Driver) relativeNorm(inc, v *mat.VecDense) float64 {
	var (
		comm = d.Struct.GS.Comm
		ni   = utils.Norm(inc, utils.NormL2)
		nv   = utils.Norm(v, utils.NormL2)
	)
	ni = math.Sqrt(comm.SumAll(ni * ni))
	nv = math.Sqrt(comm.SumAll(nv * nv))
	if nv < 1e-6 {
		nv = 1
	}
	return ni / nv
}
