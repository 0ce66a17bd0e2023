package ssi

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/utils"
)

// newtonLoop solves both fields in one block Newton iteration,
//
//	[ K_ss  K_sc ] [ dd   ]     [ R_s ]
//	[ K_cs  K_cc ] [ dphi ] = - [ R_c ]
//
// K_sc is the concentration tangent of the structure. K_cs comes from
// forward differences of the scalar residual.
func (d *Driver) newtonLoop() (err error) {
	var (
		p   = d.Params
		st  = d.Struct
		gs  = st.GS
		sc  = d.ScaTra
		sys = d.System
		x   = st.Int.Unknown()
		fs  = utils.NewVec(x.Len())
		dd  = utils.NewVec(x.Len())
		dc  = utils.NewVec(sc.Phinp.Len())
		J   = gs.Jacobian()
	)
	d.NormInc = 0
	for iter := 0; ; iter++ {
		gs.NlnIter = iter
		d.Iter = iter
		d.setScaTraState(sc.Phinp)
		if !st.Int.ApplyForceStiff(x, fs, J) {
			return utils.NewNumericalError("ssi", "step %d: structure evaluation failed", gs.StepNp())
		}
		d.setStructureState()
		if !sc.Evaluate() {
			return utils.NewNumericalError("ssi", "step %d: scalar residual is not a number", gs.StepNp())
		}
		var (
			Kcs = d.scatraStructureBlock(x)
			Ksc = d.structureScaTraBlock(x, fs)
		)
		sys.SetBlock(0, 0, J)
		sys.SetBlock(0, 1, Ksc)
		sys.SetBlock(1, 0, Kcs)
		sys.SetBlock(1, 1, sc.Sys)
		sys.SetResidual(0, fs)
		sys.SetResidual(1, sc.Residual)
		if st.DBC != nil {
			sys.SetDirichlet(0, st.DBC.DbcMap())
		}
		if sc.DBC != nil {
			sys.SetDirichlet(1, sc.DBC.DbcMap())
		}
		sys.Prepare()
		d.NormRes = sys.NormRes
		if p.Verbose && d.rank() == 0 {
			fmt.Printf("  mono %7d%6d %12.5e %12.5e\n", gs.StepNp(), iter, d.NormRes, d.NormInc)
		}
		if iter > 0 && d.converged() {
			return
		}
		if iter >= p.ItMax {
			return utils.NewNumericalError("ssi", "step %d: monolithic Newton not converged in %d iterations, |R| = %10.4e",
				gs.StepNp(), p.ItMax, d.NormRes)
		}
		if err = sys.Solve(); err != nil {
			return
		}
		d.NormInc = sys.NormInc
		sys.ExtractIncrement(0, dd)
		sys.ExtractIncrement(1, dc)
		x.AddVec(x, dd)
		sc.Phinp.AddVec(sc.Phinp, dc)
	}
}

func (d *Driver) converged() bool {
	p := d.Params
	return (d.NormRes <= p.ConvTol && d.NormInc <= p.ConvTol) || d.NormRes <= p.AbsTolRes
}

// structureScaTraBlock is d R_s / d phi. fs is the unperturbed residual.
// The concentration tangent of the structure evaluator, scaled like its
// internal force, is mapped onto the scalar nodes; other structure
// evaluators fall back to forward differences.
func (d *Driver) structureScaTraBlock(x, fs *mat.VecDense) (K *utils.SparseOperator) {
	var (
		n = d.ScaTra.Phinp.Len()
	)
	K = utils.NewSparseOperator(fs.Len(), n, "ssi structure-scatra")
	switch {
	case d.Params.Scheme == OneWaySolidToScatra:
	case d.structure == nil:
		d.structureScaTraFD(K, x, fs)
	default:
		w := d.Struct.Int.ModelEvalFactor()
		d.structure.ConcentrationTangent().DoNonZero(func(i, lid int, v float64) {
			if s := d.Coupling.ScaTraNode(lid); s >= 0 && v != 0 {
				K.Assemble(i, s, w*v)
			}
		})
	}
	K.Complete()
	return
}

// structureScaTraFD fills K by forward differences. The evaluators are left
// at the unperturbed state.
func (d *Driver) structureScaTraFD(K *utils.SparseOperator, x, fs *mat.VecDense) {
	var (
		sc  = d.ScaTra
		h   = d.Params.FDStep
		n   = sc.Phinp.Len()
		phi = utils.CloneVec(sc.Phinp)
		fp  = utils.NewVec(fs.Len())
	)
	for j := 0; j < n; j++ {
		phi.SetVec(j, sc.Phinp.AtVec(j)+h)
		d.setScaTraState(phi)
		d.Struct.Int.ApplyForce(x, fp)
		for i := 0; i < fs.Len(); i++ {
			if v := (fp.AtVec(i) - fs.AtVec(i)) / h; v != 0 {
				K.Assemble(i, j, v)
			}
		}
		phi.SetVec(j, sc.Phinp.AtVec(j))
	}
	d.setScaTraState(sc.Phinp)
	d.Struct.Int.ApplyForce(x, fp)
}

// scatraStructureBlock is d R_c / d D, including the dependence through the
// structure velocity. The scalar residual and Jacobian are restored.
func (d *Driver) scatraStructureBlock(x *mat.VecDense) (K *utils.SparseOperator) {
	var (
		st = d.Struct
		sc = d.ScaTra
		h  = d.Params.FDStep
		n  = x.Len()
		x0 = utils.CloneVec(x)
		xp = utils.CloneVec(x)
		r0 = utils.CloneVec(sc.Residual)
	)
	K = utils.NewSparseOperator(r0.Len(), n, "ssi scatra-structure")
	if sc.Disp == nil {
		K.Complete()
		return
	}
	for j := 0; j < n; j++ {
		xp.SetVec(j, x0.AtVec(j)+h)
		st.Int.SetState(xp)
		d.setStructureState()
		sc.Evaluate()
		for i := 0; i < r0.Len(); i++ {
			if v := (sc.Residual.AtVec(i) - r0.AtVec(i)) / h; v != 0 {
				K.Assemble(i, j, v)
			}
		}
		xp.SetVec(j, x0.AtVec(j))
	}
	st.Int.SetState(x0)
	d.setStructureState()
	sc.Evaluate()
	K.Complete()
	return
}
