package utils

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// DofMap is an ordered set of global DOF ids with a stable local numbering.
type DofMap struct {
	gids []int
	lids map[int]int
}

func NewDofMap(gids []int) (dm *DofMap) {
	dm = &DofMap{
		gids: make([]int, len(gids)),
		lids: make(map[int]int, len(gids)),
	}
	copy(dm.gids, gids)
	for lid, gid := range dm.gids {
		if _, dup := dm.lids[gid]; dup {
			panic(NewRuntimeError("NewDofMap", "duplicate gid %d", gid))
		}
		dm.lids[gid] = lid
	}
	return
}

// NewContiguousDofMap returns the map {offset, ..., offset+n-1}.
func NewContiguousDofMap(n, offset int) *DofMap {
	gids := make([]int, n)
	for i := range gids {
		gids[i] = offset + i
	}
	return NewDofMap(gids)
}

func (dm *DofMap) Len() int { return len(dm.gids) }

func (dm *DofMap) GID(lid int) int { return dm.gids[lid] }

func (dm *DofMap) LID(gid int) (lid int, ok bool) {
	lid, ok = dm.lids[gid]
	return
}

func (dm *DofMap) MyGlobalElements() []int { return dm.gids }

func (dm *DofMap) Contains(gid int) bool {
	_, ok := dm.lids[gid]
	return ok
}

func (dm *DofMap) SameAs(other *DofMap) bool {
	if dm.Len() != other.Len() {
		return false
	}
	for i, g := range dm.gids {
		if other.gids[i] != g {
			return false
		}
	}
	return true
}

// MergeDofMaps returns the sorted union of the given maps.
func MergeDofMaps(maps ...*DofMap) *DofMap {
	var (
		set  = make(map[int]struct{})
		gids []int
	)
	for _, m := range maps {
		if m == nil {
			continue
		}
		for _, g := range m.gids {
			if _, ok := set[g]; !ok {
				set[g] = struct{}{}
				gids = append(gids, g)
			}
		}
	}
	sort.Ints(gids)
	return NewDofMap(gids)
}

// FieldSplit partitions a full DofMap into ordered, disjoint sub-maps.
type FieldSplit struct {
	Full   *DofMap
	Fields []*DofMap
	// local index of every field lid in the full map
	toFull [][]int
}

func NewFieldSplit(full *DofMap, fields ...*DofMap) (fs *FieldSplit, err error) {
	var (
		owner = make(map[int]int)
	)
	fs = &FieldSplit{
		Full:   full,
		Fields: fields,
		toFull: make([][]int, len(fields)),
	}
	for f, m := range fields {
		fs.toFull[f] = make([]int, m.Len())
		for lid, gid := range m.gids {
			if prev, dup := owner[gid]; dup {
				return nil, NewConfigError("NewFieldSplit",
					"gid %d is owned by field %d and field %d", gid, prev, f)
			}
			owner[gid] = f
			flid, ok := full.LID(gid)
			if !ok {
				return nil, NewConfigError("NewFieldSplit",
					"gid %d of field %d is not in the full map", gid, f)
			}
			fs.toFull[f][lid] = flid
		}
	}
	return
}

// SingleFieldSplit wraps a map as a one-field split.
func SingleFieldSplit(full *DofMap) *FieldSplit {
	fs, err := NewFieldSplit(full, full)
	if err != nil {
		panic(err)
	}
	return fs
}

func (fs *FieldSplit) NumFields() int { return len(fs.Fields) }

func (fs *FieldSplit) ExtractVector(full *mat.VecDense, field int) (sub *mat.VecDense) {
	sub = mat.NewVecDense(fs.Fields[field].Len(), nil)
	fs.ExtractVectorTo(sub, full, field)
	return
}

func (fs *FieldSplit) ExtractVectorTo(sub, full *mat.VecDense, field int) {
	var (
		idx = fs.toFull[field]
	)
	if sub.Len() != len(idx) || full.Len() != fs.Full.Len() {
		panic(NewRuntimeError("ExtractVector", "length mismatch: sub %d/%d, full %d/%d",
			sub.Len(), len(idx), full.Len(), fs.Full.Len()))
	}
	for lid, flid := range idx {
		sub.SetVec(lid, full.AtVec(flid))
	}
}

func (fs *FieldSplit) InsertVector(sub *mat.VecDense, field int, full *mat.VecDense) {
	var (
		idx = fs.toFull[field]
	)
	if sub.Len() != len(idx) {
		panic(NewRuntimeError("InsertVector", "length mismatch: %d vs %d", sub.Len(), len(idx)))
	}
	for lid, flid := range idx {
		full.SetVec(flid, sub.AtVec(lid))
	}
}

func (fs *FieldSplit) AddVector(sub *mat.VecDense, field int, full *mat.VecDense, scale float64) {
	for lid, flid := range fs.toFull[field] {
		full.SetVec(flid, full.AtVec(flid)+scale*sub.AtVec(lid))
	}
}

// FullIndex maps a field local index to the full local index.
func (fs *FieldSplit) FullIndex(field, lid int) int { return fs.toFull[field][lid] }

func (fs *FieldSplit) String() string {
	s := fmt.Sprintf("FieldSplit full=%d", fs.Full.Len())
	for i, f := range fs.Fields {
		s += fmt.Sprintf(" field[%d]=%d", i, f.Len())
	}
	return s
}
