package state

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/utils"
)

// GlobalState owns every time indexed vector, the mass and damping operators
// and the step/time counters. Other components borrow from it.
type GlobalState struct {
	Comm utils.Comm

	dofMap *utils.DofMap
	split  *utils.FieldSplit

	timeN   *MultiStepBuffer[float64]
	deltaT  *MultiStepBuffer[float64]
	timeNp  float64
	stepN   int
	stepNp  int
	StepMax int
	TimeMax float64
	// restart step the run was started from, 0 for a fresh run
	RestartStep int

	disN, velN, accN    *MultiStepBuffer[*mat.VecDense]
	disNp, velNp, accNp *mat.VecDense

	fintN, fintNp     *mat.VecDense
	fextN, fextNp     *mat.VecDense
	finertN, finertNp *mat.VecDense
	fviscoN, fviscoNp *mat.VecDense
	fstructOld        *mat.VecDense

	mass *utils.SparseOperator
	damp *utils.SparseOperator
	jac  *utils.SparseOperator

	// set while the predictor state is evaluated
	IsPredictor bool
	// Newton iteration counter of the current step
	NlnIter int

	isSetup bool
}

func NewGlobalState(comm utils.Comm) *GlobalState {
	if comm == nil {
		comm = utils.SerialComm{}
	}
	return &GlobalState{
		Comm:   comm,
		timeN:  NewMultiStepBuffer[float64](nil),
		deltaT: NewMultiStepBuffer[float64](nil),
		disN:   NewMultiStepBuffer(utils.CloneVec),
		velN:   NewMultiStepBuffer(utils.CloneVec),
		accN:   NewMultiStepBuffer(utils.CloneVec),
	}
}

// Init captures the time parameters; no DOF dependent data is created.
func (gs *GlobalState) Init(timeInit, dt float64, stepMax int, timeMax float64) {
	gs.timeN.Resize(0, 0, timeInit, true)
	gs.deltaT.Resize(0, 0, dt, true)
	gs.timeNp = timeInit + dt
	gs.stepN, gs.stepNp = 0, 1
	gs.StepMax, gs.TimeMax = stepMax, timeMax
}

// Setup allocates all vectors and operators over the DOF map. The split
// describes the field structure; nil means a single field.
func (gs *GlobalState) Setup(dofMap *utils.DofMap, split *utils.FieldSplit) {
	var (
		n = dofMap.Len()
	)
	if split == nil {
		split = utils.SingleFieldSplit(dofMap)
	}
	gs.dofMap, gs.split = dofMap, split
	zero := utils.NewVec(n)
	gs.disN.Resize(0, 0, zero, true)
	gs.velN.Resize(0, 0, zero, true)
	gs.accN.Resize(0, 0, zero, true)
	gs.disNp, gs.velNp, gs.accNp = utils.NewVec(n), utils.NewVec(n), utils.NewVec(n)
	gs.fintN, gs.fintNp = utils.NewVec(n), utils.NewVec(n)
	gs.fextN, gs.fextNp = utils.NewVec(n), utils.NewVec(n)
	gs.finertN, gs.finertNp = utils.NewVec(n), utils.NewVec(n)
	gs.fviscoN, gs.fviscoNp = utils.NewVec(n), utils.NewVec(n)
	gs.fstructOld = utils.NewVec(n)
	gs.mass = utils.NewSparseOperator(n, n, "mass")
	gs.damp = utils.NewSparseOperator(n, n, "damping")
	gs.jac = utils.NewSparseOperator(n, n, "jacobian")
	gs.isSetup = true
}

func (gs *GlobalState) CheckSetup() {
	utils.Assert(gs.isSetup, "GlobalState", "Setup() has not been called")
}

func (gs *GlobalState) DofRowMap() *utils.DofMap { return gs.dofMap }

func (gs *GlobalState) DofRowMapField(field int) *utils.DofMap { return gs.split.Fields[field] }

func (gs *GlobalState) FieldSplit() *utils.FieldSplit { return gs.split }

// ExtractDisplEntries projects a full system vector onto the displacement
// field (field 0).
func (gs *GlobalState) ExtractDisplEntries(x *mat.VecDense) *mat.VecDense {
	if gs.split.NumFields() == 1 && x.Len() == gs.dofMap.Len() {
		return x
	}
	return gs.split.ExtractVector(x, 0)
}

// ExtractDisplBlock returns the live displacement block of a system operator.
func (gs *GlobalState) ExtractDisplBlock(J any) *utils.SparseOperator {
	switch op := J.(type) {
	case *utils.SparseOperator:
		return op
	case *utils.BlockSparse:
		return op.Block(0, 0)
	}
	panic(utils.NewRuntimeError("ExtractDisplBlock", "unsupported operator type %T", J))
}

// time and step
func (gs *GlobalState) TimeN() float64                       { return gs.timeN.At(0) }
func (gs *GlobalState) TimeNp() float64                      { return gs.timeNp }
func (gs *GlobalState) SetTimeN(t float64)                   { gs.timeN.Set(0, t) }
func (gs *GlobalState) SetTimeNp(t float64)                  { gs.timeNp = t }
func (gs *GlobalState) DeltaT() float64                      { return gs.deltaT.At(0) }
func (gs *GlobalState) SetDeltaT(dt float64)                 { gs.deltaT.Set(0, dt) }
func (gs *GlobalState) StepN() int                           { return gs.stepN }
func (gs *GlobalState) StepNp() int                          { return gs.stepNp }
func (gs *GlobalState) SetStepN(s int)                       { gs.stepN = s }
func (gs *GlobalState) SetStepNp(s int)                      { gs.stepNp = s }
func (gs *GlobalState) MultiTime() *MultiStepBuffer[float64] { return gs.timeN }
func (gs *GlobalState) MultiDeltaT() *MultiStepBuffer[float64] {
	return gs.deltaT
}

// kinematics
func (gs *GlobalState) DisN() *mat.VecDense                       { return gs.disN.At(0) }
func (gs *GlobalState) VelN() *mat.VecDense                       { return gs.velN.At(0) }
func (gs *GlobalState) AccN() *mat.VecDense                       { return gs.accN.At(0) }
func (gs *GlobalState) DisNp() *mat.VecDense                      { return gs.disNp }
func (gs *GlobalState) VelNp() *mat.VecDense                      { return gs.velNp }
func (gs *GlobalState) AccNp() *mat.VecDense                      { return gs.accNp }
func (gs *GlobalState) MultiDis() *MultiStepBuffer[*mat.VecDense] { return gs.disN }
func (gs *GlobalState) MultiVel() *MultiStepBuffer[*mat.VecDense] { return gs.velN }
func (gs *GlobalState) MultiAcc() *MultiStepBuffer[*mat.VecDense] { return gs.accN }

// forces
func (gs *GlobalState) FintN() *mat.VecDense      { return gs.fintN }
func (gs *GlobalState) FintNp() *mat.VecDense     { return gs.fintNp }
func (gs *GlobalState) FextN() *mat.VecDense      { return gs.fextN }
func (gs *GlobalState) FextNp() *mat.VecDense     { return gs.fextNp }
func (gs *GlobalState) FinertN() *mat.VecDense    { return gs.finertN }
func (gs *GlobalState) FinertNp() *mat.VecDense   { return gs.finertNp }
func (gs *GlobalState) FviscoN() *mat.VecDense    { return gs.fviscoN }
func (gs *GlobalState) FviscoNp() *mat.VecDense   { return gs.fviscoNp }
func (gs *GlobalState) FstructOld() *mat.VecDense { return gs.fstructOld }

// operators
func (gs *GlobalState) MassMatrix() *utils.SparseOperator { return gs.mass }
func (gs *GlobalState) DampMatrix() *utils.SparseOperator { return gs.damp }
func (gs *GlobalState) Jacobian() *utils.SparseOperator   { return gs.jac }

// CreateStructureVector returns a zero vector over the DOF map.
func (gs *GlobalState) CreateStructureVector() *mat.VecDense {
	return utils.NewVec(gs.dofMap.Len())
}

// PrepareTimeStep sets the n+1 time and step from the n state.
func (gs *GlobalState) PrepareTimeStep() {
	gs.timeNp = gs.TimeN() + gs.DeltaT()
	gs.stepNp = gs.stepN + 1
}

// UpdateTimeStep shifts the n+1 state into the n buffers.
func (gs *GlobalState) UpdateTimeStep() {
	gs.timeN.UpdateSteps(gs.timeNp)
	gs.deltaT.UpdateSteps(gs.deltaT.At(0))
	gs.stepN = gs.stepNp
	gs.disN.UpdateSteps(gs.disNp)
	gs.velN.UpdateSteps(gs.velNp)
	gs.accN.UpdateSteps(gs.accNp)
	gs.fextN.CopyVec(gs.fextNp)
	gs.fintN.CopyVec(gs.fintNp)
}

// ResetNpToN copies the n state into the n+1 vectors, used when a step is
// repeated.
func (gs *GlobalState) ResetNpToN() {
	gs.disNp.CopyVec(gs.DisN())
	gs.velNp.CopyVec(gs.VelN())
	gs.accNp.CopyVec(gs.AccN())
	gs.fextNp.CopyVec(gs.fextN)
	gs.fintNp.CopyVec(gs.fintN)
}

func (gs *GlobalState) WriteRestart(w *restart.Writer) {
	w.WriteDouble("time", gs.TimeN())
	w.WriteDouble("dt", gs.DeltaT())
	w.WriteInt("step", gs.stepN)
	w.WriteVector("displacement", gs.DisN())
	w.WriteVector("velocity", gs.VelN())
	w.WriteVector("acceleration", gs.AccN())
	w.WriteVector("fstructold", gs.fstructOld)
	w.WriteVector("fext", gs.fextN)
	w.WriteVector("fint", gs.fintN)
}

func (gs *GlobalState) ReadRestart(r *restart.Reader) (err error) {
	var (
		t, dt float64
		step  int
	)
	if t, err = r.ReadDouble("time"); err != nil {
		return
	}
	if dt, err = r.ReadDouble("dt"); err != nil {
		return
	}
	if step, err = r.ReadInt("step"); err != nil {
		return
	}
	gs.SetTimeN(t)
	gs.SetDeltaT(dt)
	gs.stepN = step
	gs.RestartStep = step
	for key, v := range map[string]*mat.VecDense{
		"displacement": gs.DisN(),
		"velocity":     gs.VelN(),
		"acceleration": gs.AccN(),
		"fstructold":   gs.fstructOld,
		"fext":         gs.fextN,
		"fint":         gs.fintN,
	} {
		if err = r.ReadVectorInto(key, v); err != nil {
			return
		}
	}
	gs.disNp.CopyVec(gs.DisN())
	gs.velNp.CopyVec(gs.VelN())
	gs.accNp.CopyVec(gs.AccN())
	gs.PrepareTimeStep()
	return
}

func (gs *GlobalState) String() string {
	return fmt.Sprintf("GlobalState step %d time %g dt %g ndof %d", gs.stepN, gs.TimeN(), gs.DeltaT(), gs.dofMap.Len())
}
