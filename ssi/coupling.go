package ssi

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/utils"
)

// Coupling transfers nodal quantities between the structure and the scalar
// field. Matching couplings pair equal node ids, non matching ones the
// nearest node of the other mesh.
type Coupling struct {
	Kind FieldCoupling
	// structure node lid of each scalar node, -1 when uncoupled
	scaToStr []int
	// scalar node lid of each structure node, -1 when uncoupled
	strToSca []int
}

func NewCoupling(kind FieldCoupling, structDis, scatraDis *discretization.Discretization) (c *Coupling, err error) {
	var (
		sm, cm = structDis.Mesh, scatraDis.Mesh
	)
	c = &Coupling{
		Kind:     kind,
		scaToStr: make([]int, len(cm.Nodes)),
		strToSca: make([]int, len(sm.Nodes)),
	}
	for i := range c.scaToStr {
		c.scaToStr[i] = -1
	}
	for i := range c.strToSca {
		c.strToSca[i] = -1
	}
	switch kind {
	case VolumeMatch, VolumeBoundaryMatch:
		for lid, n := range cm.Nodes {
			slid, ok := sm.NodeLID(n.ID)
			if !ok {
				return nil, utils.NewConfigError("ssi.NewCoupling", "%s: scalar node %d has no structure node", kind, n.ID)
			}
			c.scaToStr[lid] = slid
			c.strToSca[slid] = lid
		}
	case VolumeNonMatch:
		c.nearest(sm, cm, nil, nil)
	case BoundaryNonMatch:
		var (
			sset, ok1 = structDis.NodeSets[CondCoupling]
			cset, ok2 = scatraDis.NodeSets[CondCoupling]
		)
		if !ok1 || !ok2 {
			return nil, utils.NewConfigError("ssi.NewCoupling", "%s needs a %s condition on both fields", kind, CondCoupling)
		}
		c.nearest(sm, cm, sset, cset)
	}
	return
}

// nearest pairs nodes by distance. Only the listed node ids take part when
// the sets are given.
func (c *Coupling) nearest(sm, cm *geometry3D.Mesh, sset, cset []int) {
	var (
		slids = lidsOf(sm, sset)
		clids = lidsOf(cm, cset)
	)
	pair := func(from, to *geometry3D.Mesh, fromLids, toLids []int, dst []int) {
		if len(toLids) == 0 {
			return
		}
		var (
			pts = make([]geometry3D.Point, len(toLids))
		)
		for i, lid := range toLids {
			pts[i] = to.Nodes[lid].X
		}
		var (
			box  = geometry3D.NewBoundingBox(pts)
			ext  = box.XMax.Minus(box.XMin)
			size = math.Max(math.Max(ext[0], ext[1]), ext[2]) / math.Max(1, math.Cbrt(float64(len(pts))))
		)
		if size == 0 {
			size = 1
		}
		bins := geometry3D.NewBins(box.Pad(size), size)
		for i, p := range pts {
			bins.Insert(i, geometry3D.NewBoundingBox([]geometry3D.Point{p}))
		}
		for _, lid := range fromLids {
			var (
				x    = from.Nodes[lid].X
				best = -1
				dmin = math.Inf(1)
			)
			// a hit is only final once no closer node can lie outside the query
			for r := size; best < 0 || dmin > r; r *= 2 {
				q := geometry3D.NewBoundingBox([]geometry3D.Point{x}).Pad(r)
				for _, i := range bins.Candidates(q) {
					if d := pts[i].Minus(x).Norm(); d < dmin {
						best, dmin = i, d
					}
				}
			}
			dst[lid] = toLids[best]
		}
	}
	pair(cm, sm, clids, slids, c.scaToStr)
	pair(sm, cm, slids, clids, c.strToSca)
}

func lidsOf(m *geometry3D.Mesh, set []int) (lids []int) {
	if set == nil {
		lids = make([]int, len(m.Nodes))
		for i := range lids {
			lids[i] = i
		}
		return
	}
	for _, id := range set {
		if lid, ok := m.NodeLID(id); ok {
			lids = append(lids, lid)
		}
	}
	return
}

// StructureToScaTra copies a 3 DOF per node structure vector onto the
// scalar nodes.
func (c *Coupling) StructureToScaTra(src, dst *mat.VecDense) {
	dst.Zero()
	for lid, s := range c.scaToStr {
		if s < 0 {
			continue
		}
		for d := 0; d < 3; d++ {
			dst.SetVec(3*lid+d, src.AtVec(3*s+d))
		}
	}
}

// ScaTraToStructure copies nodal scalars onto the structure nodes.
func (c *Coupling) ScaTraToStructure(phi, dst *mat.VecDense) {
	dst.Zero()
	for lid, s := range c.strToSca {
		if s >= 0 {
			dst.SetVec(lid, phi.AtVec(s))
		}
	}
}

// ScaTraNode is the scalar node lid coupled to a structure node, -1 when
// uncoupled.
func (c *Coupling) ScaTraNode(structLid int) int { return c.strToSca[structLid] }

func (c *Coupling) NumCoupled() (n int) {
	for _, s := range c.scaToStr {
		if s >= 0 {
			n++
		}
	}
	return
}
