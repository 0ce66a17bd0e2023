package StructuralDynamics

import (
	"github.com/notargets/gocsd/InputParameters"
	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/utils"
)

// BuildMesh assembles the mesh from the explicit node and element lists, the
// DOMAIN generator block and the LINES fibers, in that order. The returned
// map gives the material id of every element.
func BuildMesh(ip *InputParameters.InputParameters) (m *geometry3D.Mesh, matOf map[int]int, err error) {
	matOf = make(map[int]int)
	add := func(part *geometry3D.Mesh) error {
		if m == nil {
			m = part
			return nil
		}
		return m.Merge(part)
	}
	if len(ip.NodeCoords) > 0 {
		var (
			nodes = make([]geometry3D.Node, len(ip.NodeCoords))
			eles  = make([]geometry3D.Element, len(ip.Elements))
		)
		for i, nc := range ip.NodeCoords {
			nodes[i] = geometry3D.Node{ID: nc.ID, X: geometry3D.Point(nc.X)}
		}
		for i, ed := range ip.Elements {
			var ct geometry3D.CellType
			if ct, err = geometry3D.NewCellType(ed.Type); err != nil {
				return
			}
			if len(ed.Nodes) != ct.NumNodes() {
				err = utils.NewConfigError("BuildMesh", "element %d: %s needs %d nodes, got %d",
					ed.ID, ct, ct.NumNodes(), len(ed.Nodes))
				return
			}
			eles[i] = geometry3D.Element{ID: ed.ID, Type: ct, NodeIDs: ed.Nodes}
			matOf[ed.ID] = ed.Material
		}
		if err = add(geometry3D.NewMesh(nodes, eles)); err != nil {
			return
		}
	}
	if d := ip.Domain; d != nil {
		var part *geometry3D.Mesh
		if part, err = GenerateDomain(*d); err != nil {
			return
		}
		for _, e := range part.Elements {
			matOf[e.ID] = d.Material
		}
		if err = add(part); err != nil {
			return
		}
	}
	for _, l := range ip.Lines {
		if l.NumElements < 1 {
			err = utils.NewConfigError("BuildMesh", "LINES: NUMELE must be at least 1")
			return
		}
		part := geometry3D.GenerateLine(geometry3D.Point(l.Start), geometry3D.Point(l.End),
			l.NumElements, l.FirstNodeID, l.FirstElementID)
		for _, e := range part.Elements {
			matOf[e.ID] = l.Material
		}
		if err = add(part); err != nil {
			return
		}
	}
	if m == nil {
		err = utils.NewConfigError("BuildMesh", "input defines no mesh")
	}
	return
}

// GenerateDomain runs the grid generator on one DOMAIN block.
func GenerateDomain(d InputParameters.Domain) (m *geometry3D.Mesh, err error) {
	var ct geometry3D.CellType
	if ct, err = geometry3D.NewCellType(d.ElementType); err != nil {
		return
	}
	return geometry3D.GenerateCuboid(geometry3D.CuboidParams{
		Bottom:         geometry3D.Point(d.Bottom),
		Top:            geometry3D.Point(d.Top),
		Intervals:      d.Intervals,
		Rotation:       d.Rotation,
		Type:           ct,
		FirstNodeID:    d.FirstNodeID,
		FirstElementID: d.FirstElementID,
	})
}

// kernelFactory binds the built-in kernels to the input materials.
func kernelFactory(ip *InputParameters.InputParameters, matOf map[int]int) discretization.KernelFactory {
	return func(e geometry3D.Element) (k discretization.StructuralKernel, dm discretization.Material, err error) {
		var m InputParameters.Material
		if m, err = ip.Material(matOf[e.ID]); err != nil {
			return
		}
		if k, err = discretization.KernelForCell(e.Type, m.PointMass); err != nil {
			return
		}
		dm = discretization.Material{
			ID:          m.ID,
			Youngs:      m.Youngs,
			Poisson:     m.Poisson,
			Density:     m.Density,
			Swelling:    m.Swelling,
			Diffusivity: m.Diffusivity,
			Area:        m.Area,
		}
		err = dm.Validate()
		return
	}
}
