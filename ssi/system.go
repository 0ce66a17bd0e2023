package ssi

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/utils"
)

// BlockSystem is the linear system of one monolithic Newton iteration,
// blocked by field. The right hand side is the negative residual.
type BlockSystem struct {
	Matrix    *utils.BlockSparse
	RHS       *mat.VecDense
	Increment *mat.VecDense
	Equil     *utils.Equilibration
	Solver    utils.LinearSolver
	Comm      utils.Comm

	NormRes, NormInc float64

	sizes []int
	dbc   []bool
}

func NewBlockSystem(sizes []int, em utils.EquilibrationMethod, solver utils.LinearSolver) (bs *BlockSystem) {
	var n int
	for _, s := range sizes {
		n += s
	}
	if solver == nil {
		solver = utils.NewLinearSolver(utils.SolverParams{})
	}
	return &BlockSystem{
		Matrix:    utils.NewBlockSparse(sizes, sizes, "ssi"),
		RHS:       utils.NewVec(n),
		Increment: utils.NewVec(n),
		Equil:     utils.NewEquilibration(em),
		Solver:    solver,
		Comm:      utils.SerialComm{},
		sizes:     sizes,
		dbc:       make([]bool, n),
	}
}

func (bs *BlockSystem) Size() int { return bs.RHS.Len() }

// SetBlock puts op at block (i, j); op is read when the system is solved.
func (bs *BlockSystem) SetBlock(i, j int, op *utils.SparseOperator) {
	bs.Matrix.AssignBlock(i, j, op)
}

// SetResidual stores -r as the right hand side of field i.
func (bs *BlockSystem) SetResidual(field int, r *mat.VecDense) {
	off := bs.Matrix.RowOffset(field)
	for k := 0; k < r.Len(); k++ {
		bs.RHS.SetVec(off+k, -r.AtVec(k))
	}
}

// SetDirichlet flags the constrained DOFs of field i, nil clears them.
func (bs *BlockSystem) SetDirichlet(field int, flags []bool) {
	off := bs.Matrix.RowOffset(field)
	for k := 0; k < bs.sizes[field]; k++ {
		bs.dbc[off+k] = flags != nil && flags[k]
	}
}

// ExtractIncrement copies the increment of field i into dst.
func (bs *BlockSystem) ExtractIncrement(field int, dst *mat.VecDense) {
	off := bs.Matrix.RowOffset(field)
	for k := 0; k < bs.sizes[field]; k++ {
		dst.SetVec(k, bs.Increment.AtVec(off+k))
	}
}

func (bs *BlockSystem) norm(v *mat.VecDense) float64 {
	l := utils.Norm(v, utils.NormL2)
	return math.Sqrt(bs.Comm.SumAll(l * l))
}

// Prepare zeroes the right hand side of constrained rows and computes the
// residual norm.
func (bs *BlockSystem) Prepare() {
	for i, c := range bs.dbc {
		if c {
			bs.RHS.SetVec(i, 0)
		}
	}
	bs.NormRes = bs.norm(bs.RHS)
}

// Solve merges the blocks, imposes the constraints as unit rows, equilibrates
// and solves for the increment.
func (bs *BlockSystem) Solve() (err error) {
	bs.Prepare()
	var (
		A = bs.Matrix.Merge()
		b = utils.CloneVec(bs.RHS)
	)
	A.ApplyDirichlet(bs.dbc, true)
	bs.Equil.EquilibrateMatrix(A)
	bs.Equil.EquilibrateRHS(b)
	bs.Increment.Zero()
	if err = bs.Solver.Solve(A, bs.Increment, b); err != nil {
		return utils.Wrap(utils.ErrNumerical, "ssi.BlockSystem.Solve", err)
	}
	bs.Equil.UnequilibrateIncrement(bs.Increment)
	bs.NormInc = bs.norm(bs.Increment)
	return
}
