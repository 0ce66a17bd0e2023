package geometry3D

import (
	"math"
	"sort"

	"github.com/notargets/gocsd/utils"
)

// Bins is a uniform spatial hash over a bounding box. Items are stored in
// every bin their box overlaps.
type Bins struct {
	Box   BoundingBox
	Size  float64
	N     [3]int
	cells map[[3]int][]int
}

func NewBins(box *BoundingBox, size float64) (b *Bins) {
	utils.Assert(size > 0, "NewBins", "bin size must be positive, got %v", size)
	b = &Bins{Box: *box, Size: size, cells: make(map[[3]int][]int)}
	for i := 0; i < 3; i++ {
		b.N[i] = int(math.Max(1, math.Ceil((box.XMax[i]-box.XMin[i])/size)))
	}
	return
}

func (b *Bins) cell(x Point) (ijk [3]int) {
	for i := 0; i < 3; i++ {
		c := int(math.Floor((x[i] - b.Box.XMin[i]) / b.Size))
		ijk[i] = max(0, min(b.N[i]-1, c))
	}
	return
}

func (b *Bins) visit(box *BoundingBox, fn func(key [3]int)) {
	lo, hi := b.cell(box.XMin), b.cell(box.XMax)
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for k := lo[2]; k <= hi[2]; k++ {
				fn([3]int{i, j, k})
			}
		}
	}
}

func (b *Bins) Insert(id int, box *BoundingBox) {
	b.visit(box, func(key [3]int) {
		b.cells[key] = append(b.cells[key], id)
	})
}

// Candidates returns the sorted ids sharing at least one bin with box.
func (b *Bins) Candidates(box *BoundingBox) (ids []int) {
	seen := make(map[int]struct{})
	b.visit(box, func(key [3]int) {
		for _, id := range b.cells[key] {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	})
	sort.Ints(ids)
	return
}

func (b *Bins) NumNonEmpty() int { return len(b.cells) }
