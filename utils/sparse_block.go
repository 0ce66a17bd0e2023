package utils

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BlockSparse is a grid of sparse blocks whose row and column partitions are
// given by the field sizes. Blocks are owned by the grid; a block returned by
// Block is the live storage, so writes show up in Merge.
type BlockSparse struct {
	NrBlocks, NcBlocks int
	rowSizes, colSizes []int
	rowOffsets         []int
	colOffsets         []int
	blocks             [][]*SparseOperator
	name               string
}

func NewBlockSparse(rowSizes, colSizes []int, name string) (bs *BlockSparse) {
	bs = &BlockSparse{
		NrBlocks:   len(rowSizes),
		NcBlocks:   len(colSizes),
		rowSizes:   rowSizes,
		colSizes:   colSizes,
		rowOffsets: offsets(rowSizes),
		colOffsets: offsets(colSizes),
		blocks:     make([][]*SparseOperator, len(rowSizes)),
		name:       name,
	}
	for i, nr := range rowSizes {
		bs.blocks[i] = make([]*SparseOperator, len(colSizes))
		for j, nc := range colSizes {
			bs.blocks[i][j] = NewSparseOperator(nr, nc, fmt.Sprintf("%s[%d,%d]", name, i, j))
		}
	}
	return
}

func offsets(sizes []int) (off []int) {
	off = make([]int, len(sizes)+1)
	for i, s := range sizes {
		off[i+1] = off[i] + s
	}
	return
}

// Block returns the live block at (i, j).
func (bs *BlockSparse) Block(i, j int) *SparseOperator {
	if i < 0 || i >= bs.NrBlocks || j < 0 || j >= bs.NcBlocks {
		panic(NewRuntimeError("BlockSparse.Block", "block (%d,%d) out of range %dx%d", i, j, bs.NrBlocks, bs.NcBlocks))
	}
	return bs.blocks[i][j]
}

// AssignBlock replaces block (i, j) with op; dimensions must match.
func (bs *BlockSparse) AssignBlock(i, j int, op *SparseOperator) {
	nr, nc := op.Dims()
	if nr != bs.rowSizes[i] || nc != bs.colSizes[j] {
		panic(NewRuntimeError("BlockSparse.AssignBlock", "block (%d,%d) is %dx%d, got %dx%d",
			i, j, bs.rowSizes[i], bs.colSizes[j], nr, nc))
	}
	bs.blocks[i][j] = op
}

func (bs *BlockSparse) Dims() (r, c int) {
	return bs.rowOffsets[bs.NrBlocks], bs.colOffsets[bs.NcBlocks]
}

func (bs *BlockSparse) RowOffset(i int) int { return bs.rowOffsets[i] }
func (bs *BlockSparse) ColOffset(j int) int { return bs.colOffsets[j] }

func (bs *BlockSparse) Zero() {
	for i := range bs.blocks {
		for _, b := range bs.blocks[i] {
			b.Zero()
		}
	}
}

func (bs *BlockSparse) Complete() {
	for i := range bs.blocks {
		for _, b := range bs.blocks[i] {
			b.Complete()
		}
	}
}

func (bs *BlockSparse) UnComplete() {
	for i := range bs.blocks {
		for _, b := range bs.blocks[i] {
			b.UnComplete()
		}
	}
}

// Merge assembles the blocks into one operator.
func (bs *BlockSparse) Merge() (M *SparseOperator) {
	var (
		nr, nc = bs.Dims()
	)
	M = NewSparseOperator(nr, nc, bs.name)
	for i := range bs.blocks {
		for j, b := range bs.blocks[i] {
			var (
				ro, co = bs.rowOffsets[i], bs.colOffsets[j]
			)
			b.DoNonZero(func(r, c int, v float64) {
				M.Assemble(ro+r, co+c, v)
			})
		}
	}
	M.Complete()
	return
}

// MulVec sets dst = A*x blockwise.
func (bs *BlockSparse) MulVec(dst *mat.VecDense, x *mat.VecDense) {
	var (
		xd = VecData(x)
	)
	dst.Zero()
	for i := range bs.blocks {
		var (
			ro, nr = bs.rowOffsets[i], bs.rowSizes[i]
			acc    = mat.NewVecDense(nr, nil)
			tmp    = mat.NewVecDense(nr, nil)
		)
		for j, b := range bs.blocks[i] {
			if b.NNZ() == 0 {
				continue
			}
			co, nc := bs.colOffsets[j], bs.colSizes[j]
			b.MulVec(tmp, false, mat.NewVecDense(nc, xd[co:co+nc]))
			acc.AddVec(acc, tmp)
		}
		for r := 0; r < nr; r++ {
			dst.SetVec(ro+r, acc.AtVec(r))
		}
	}
}

// FrobNorm is the Frobenius norm over all blocks.
func (bs *BlockSparse) FrobNorm() (norm float64) {
	var sum float64
	for i := range bs.blocks {
		for _, b := range bs.blocks[i] {
			b.DoNonZero(func(_, _ int, v float64) { sum += v * v })
		}
	}
	return sqrt(sum)
}
