package ssi

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/utils"
)

// outerLoop iterates between the fields until the changes of both fields
// between two outer iterations are below CONVTOL. The relaxed schemes relax
// the field solved first before it is passed on; its change is measured
// before relaxation.
func (d *Driver) outerLoop() (err error) {
	var (
		p               = d.Params
		st              = d.Struct
		gs              = st.GS
		sc              = d.ScaTra
		relax, aitken   = p.Scheme.relaxed()
		dispOld         = utils.CloneVec(gs.DisNp())
		phiOld          = utils.CloneVec(sc.Phinp)
		dispInc         = utils.NewVec(dispOld.Len())
		phiInc          = utils.NewVec(phiOld.Len())
		dispRel, phiRel float64
		unrelaxed       *mat.VecDense
	)
	d.Omega = p.Omega
	d.incOld = nil
	for it := 1; ; it++ {
		d.Iter = it
		if p.Scheme.scatraFirst() {
			if err = sc.Solve(); err != nil {
				return
			}
			if relax {
				unrelaxed = d.relax(sc.Phinp, phiOld, it, aitken)
			}
			d.setScaTraState(sc.Phinp)
			if err = d.solveStructure(); err != nil {
				return
			}
			d.setStructureState()
		} else {
			if err = d.solveStructure(); err != nil {
				return
			}
			if relax {
				unrelaxed = d.relax(gs.DisNp(), dispOld, it, aitken)
				st.Int.SetState(gs.DisNp())
			}
			d.setStructureState()
			if err = sc.Solve(); err != nil {
				return
			}
			d.setScaTraState(sc.Phinp)
		}
		dispInc.SubVec(gs.DisNp(), dispOld)
		phiInc.SubVec(sc.Phinp, phiOld)
		switch {
		case unrelaxed == nil:
		case p.Scheme.scatraFirst():
			phiInc.CopyVec(unrelaxed)
		default:
			dispInc.CopyVec(unrelaxed)
		}
		dispRel = d.relativeNorm(dispInc, gs.DisNp())
		phiRel = d.relativeNorm(phiInc, sc.Phinp)
		d.NormInc = max(dispRel, phiRel)
		if p.Verbose && d.rank() == 0 {
			fmt.Printf("  outer %6d%6d  |dd|/|d| %12.5e  |dphi|/|phi| %12.5e  omega %8.4f\n",
				gs.StepNp(), it, dispRel, phiRel, d.Omega)
		}
		if dispRel <= p.ConvTol && phiRel <= p.ConvTol {
			return
		}
		if it >= p.ItMax {
			return utils.NewNumericalError("ssi", "step %d: outer iteration not converged in %d iterations",
				gs.StepNp(), p.ItMax)
		}
		dispOld.CopyVec(gs.DisNp())
		phiOld.CopyVec(sc.Phinp)
	}
}

// relax sets x = prev + omega (x - prev) and returns the increment before
// relaxation. Aitken adapts omega from the last two increments, bounded by
// MAXOMEGA.
func (d *Driver) relax(x, prev *mat.VecDense, it int, aitken bool) (inc *mat.VecDense) {
	comm := d.Struct.GS.Comm
	inc = utils.NewVec(x.Len())
	inc.SubVec(x, prev)
	if aitken && it > 1 && d.incOld != nil {
		diff := utils.NewVec(x.Len())
		diff.SubVec(inc, d.incOld)
		den := comm.SumAll(mat.Dot(diff, diff))
		if den > 0 {
			d.Omega = -d.Omega * comm.SumAll(mat.Dot(d.incOld, diff)) / den
		}
		if d.Params.MaxOmega > 0 && d.Omega > d.Params.MaxOmega {
			d.Omega = d.Params.MaxOmega
		}
	}
	d.incOld = inc
	x.AddScaledVec(prev, d.Omega, inc)
	return
}
