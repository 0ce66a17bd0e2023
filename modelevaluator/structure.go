package modelevaluator

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

type DampingType uint8

const (
	DampNone DampingType = iota
	DampRayleigh
)

func NewDampingType(label string) (DampingType, error) {
	switch label {
	case "", "None", "none":
		return DampNone, nil
	case "Rayleigh":
		return DampRayleigh, nil
	}
	return DampNone, utils.NewConfigError("NewDampingType", "unknown damping %q", label)
}

type StructureParams struct {
	LumpedMass bool
	Damping    DampingType
	// Rayleigh coefficients, C = DampK K(D_0) + DampM M
	DampK, DampM float64
}

// elementContribution is the private assembly buffer of one partition.
type elementContribution struct {
	fint   []float64
	lms    [][]int
	ks     []*mat.Dense
	energy float64
	ok     bool
}

// Structure evaluates the element kernels: internal forces, tangent, mass
// and Rayleigh damping.
type Structure struct {
	base
	Dis    *discretization.Discretization
	Params StructureParams

	pm    *utils.PartitionMap
	fint  *mat.VecDense
	stiff *utils.SparseOperator

	Energy, EnergyN float64
}

func NewStructure(gs *state.GlobalState, data *Data, dis *discretization.Discretization, params StructureParams) *Structure {
	return &Structure{base: base{gs: gs, data: data}, Dis: dis, Params: params}
}

func (s *Structure) Type() Type { return TypeStructure }

func (s *Structure) Setup() (err error) {
	s.gs.CheckSetup()
	var (
		n = s.gs.DofRowMap().Len()
	)
	if s.Dis.DofRowMap().Len() != n {
		return utils.NewConfigError("Structure.Setup", "%s has %d DOFs, the state has %d",
			s.Dis.Name, s.Dis.DofRowMap().Len(), n)
	}
	s.pm = utils.NewPartitionMap(s.numThreads(), len(s.Dis.Elements))
	s.fint = utils.NewVec(n)
	s.stiff = utils.NewSparseOperator(n, n, "structure stiffness")

	M := s.gs.MassMatrix()
	M.SetWritable()
	M.UnComplete()
	M.Zero()
	for _, e := range s.Dis.Elements {
		if e.Kernel == nil {
			continue
		}
		Me := e.Kernel.Mass(s.Dis.RefCoords(e), e.Material, s.Params.LumpedMass)
		M.AssembleElement(e.LM, Me, 1)
	}
	M.Complete()
	M.SetReadOnly("mass")

	C := s.gs.DampMatrix()
	C.SetWritable()
	C.Zero()
	if s.Params.Damping == DampRayleigh {
		if !s.evaluate(s.gs.DisN(), true) {
			return utils.NewNumericalError("Structure.Setup", "invalid element in the initial configuration")
		}
		C.Add(s.stiff, false, s.Params.DampK, 1)
		C.Add(M, false, s.Params.DampM, 1)
	}
	C.Complete()
	C.SetReadOnly("damping")
	return
}

func (s *Structure) Reset(x *mat.VecDense) {
	s.fint.Zero()
	s.stiff.Zero()
	s.Energy = 0
}

// nodalConc gathers the coupled concentrations of an element, nil when
// uncoupled.
func (s *Structure) nodalConc(e *discretization.Element) (c []float64) {
	if s.data == nil || s.data.Concentration == nil {
		return nil
	}
	c = make([]float64, len(e.NodeLIDs()))
	for a, lid := range e.NodeLIDs() {
		c[a] = s.data.Concentration.AtVec(lid)
	}
	return
}

func (s *Structure) elementState(e *discretization.Element, D *mat.VecDense) discretization.ElementState {
	return discretization.ElementState{
		X:    s.Dis.RefCoords(e),
		Disp: utils.GatherVector(D, e.LM),
		Conc: s.nodalConc(e),
	}
}

// evaluate runs the element loop over the partitions and merges the results
// in partition order.
func (s *Structure) evaluate(D *mat.VecDense, stiff bool) (ok bool) {
	var (
		n       = s.fint.Len()
		buffers = make([]elementContribution, s.pm.ParallelDegree)
	)
	s.pm.ParallelFor(func(bn, kMin, kMax int) {
		buf := &buffers[bn]
		buf.fint = make([]float64, n)
		buf.ok = true
		for k := kMin; k < kMax; k++ {
			e := s.Dis.Elements[k]
			if e.Kernel == nil {
				continue
			}
			res, valid := e.Kernel.Evaluate(s.elementState(e, D), e.Material, stiff)
			if !valid {
				buf.ok = false
				continue
			}
			for a, dof := range e.LM {
				buf.fint[dof] += res.Fint[a]
			}
			buf.energy += res.Energy
			if stiff {
				buf.lms = append(buf.lms, e.LM)
				buf.ks = append(buf.ks, res.K)
			}
		}
	})
	ok = true
	s.fint.Zero()
	s.Energy = 0
	if stiff {
		s.stiff.Zero()
	}
	fint := utils.VecData(s.fint)
	for bn := range buffers {
		buf := &buffers[bn]
		ok = ok && buf.ok
		for i, v := range buf.fint {
			fint[i] += v
		}
		s.Energy += buf.energy
		for i, lm := range buf.lms {
			s.stiff.AssembleElement(lm, buf.ks[i], 1)
		}
	}
	if stiff {
		s.stiff.Complete()
	}
	return
}

// inertiaAndDamping sets finert = M A_{n+1} and fvisc = C V_{n+1}.
func (s *Structure) inertiaAndDamping() {
	s.gs.MassMatrix().MulVec(s.gs.FinertNp(), false, s.gs.AccNp())
	if s.Params.Damping == DampRayleigh {
		s.gs.DampMatrix().MulVec(s.gs.FviscoNp(), false, s.gs.VelNp())
	} else {
		s.gs.FviscoNp().Zero()
	}
}

func (s *Structure) EvaluateForce() (ok bool) {
	ok = s.evaluate(s.gs.DisNp(), false)
	s.gs.FintNp().CopyVec(s.fint)
	s.inertiaAndDamping()
	return
}

func (s *Structure) EvaluateStiff() bool {
	return s.evaluate(s.gs.DisNp(), true)
}

func (s *Structure) EvaluateForceStiff() (ok bool) {
	ok = s.evaluate(s.gs.DisNp(), true)
	s.gs.FintNp().CopyVec(s.fint)
	s.inertiaAndDamping()
	return
}

func (s *Structure) AssembleForce(w float64, f *mat.VecDense) {
	f.AddScaledVec(f, w, s.fint)
}

func (s *Structure) AssembleJacobian(w float64, J *utils.SparseOperator) {
	J.Add(s.stiff, false, w, 1)
}

func (s *Structure) UpdateStepState(w float64) {
	fso := s.gs.FstructOld()
	fso.AddScaledVec(fso, w, s.gs.FintNp())
}

func (s *Structure) UpdateStepElement() { s.EnergyN = s.Energy }

// Stiffness is the tangent of the last stiff evaluation.
func (s *Structure) Stiffness() *utils.SparseOperator { return s.stiff }

// ConcentrationTangent assembles d fint / d c over the nodal concentrations.
func (s *Structure) ConcentrationTangent() (T *utils.SparseOperator) {
	var (
		D = s.gs.DisNp()
	)
	T = utils.NewSparseOperator(D.Len(), s.Dis.NumNodes(), "structure-scatra")
	for _, e := range s.Dis.Elements {
		if e.Kernel == nil {
			continue
		}
		Te := e.Kernel.ConcentrationTangent(s.elementState(e, D), e.Material)
		for a, row := range e.LM {
			for b, col := range e.NodeLIDs() {
				if v := Te.At(a, b); v != 0 {
					T.Assemble(row, col, v)
				}
			}
		}
	}
	T.Complete()
	return
}

// KineticEnergy is 1/2 V^T M V at n+1.
func (s *Structure) KineticEnergy() float64 {
	var (
		V  = s.gs.VelNp()
		MV = utils.NewVec(V.Len())
	)
	s.gs.MassMatrix().MulVec(MV, false, V)
	return 0.5 * mat.Dot(V, MV)
}

func (s *Structure) WriteRestart(w *restart.Writer, forced bool) {
	w.WriteDouble("structure_energy", s.EnergyN)
}

func (s *Structure) ReadRestart(r *restart.Reader) (err error) {
	if !r.Has("structure_energy") {
		return
	}
	s.EnergyN, err = r.ReadDouble("structure_energy")
	return
}

func (s *Structure) RuntimeOutputStepState(rt *out.RuntimeOutput) {
	rt.Append(s.Type().String(), out.Record{
		"strain_energy":  s.Energy,
		"kinetic_energy": s.KineticEnergy(),
	})
}
