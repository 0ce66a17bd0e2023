// Package discretization couples a mesh with element kernels and numbers the
// degrees of freedom of a field.
package discretization

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/utils"
)

type Element struct {
	ID       int
	NodeIDs  []int
	Kernel   StructuralKernel
	Material Material
	// local DOF indices of the element, NumDofPerNode per node
	LM []int
	// positions of the nodes in the mesh node list
	nodeLIDs []int
}

// Discretization is one field over a mesh: nodes, elements and a DOF map
// with a fixed number of DOFs per node. DOF gids are
// DofOffset + NumDofPerNode*nodeLID + d.
type Discretization struct {
	Name          string
	Mesh          *geometry3D.Mesh
	Elements      []*Element
	NumDofPerNode int
	DofOffset     int
	// named node sets referenced by conditions
	NodeSets map[string][]int

	dofMap  *utils.DofMap
	eleByID map[int]int
	filled  bool
}

func NewDiscretization(name string, mesh *geometry3D.Mesh, numDofPerNode, dofOffset int) *Discretization {
	return &Discretization{
		Name:          name,
		Mesh:          mesh,
		NumDofPerNode: numDofPerNode,
		DofOffset:     dofOffset,
		NodeSets:      make(map[string][]int),
		eleByID:       make(map[int]int),
	}
}

// AddElement attaches a kernel to a mesh element.
func (dis *Discretization) AddElement(meshEle geometry3D.Element, kernel StructuralKernel, m Material) error {
	if kernel != nil && kernel.NumNodes() != len(meshEle.NodeIDs) {
		return utils.NewConfigError("AddElement", "element %d: kernel %s needs %d nodes, got %d",
			meshEle.ID, kernel.Name(), kernel.NumNodes(), len(meshEle.NodeIDs))
	}
	if _, dup := dis.eleByID[meshEle.ID]; dup {
		return utils.NewConfigError("AddElement", "element %d defined twice", meshEle.ID)
	}
	dis.eleByID[meshEle.ID] = len(dis.Elements)
	dis.Elements = append(dis.Elements, &Element{
		ID:       meshEle.ID,
		NodeIDs:  meshEle.NodeIDs,
		Kernel:   kernel,
		Material: m,
	})
	dis.filled = false
	return nil
}

// FillComplete numbers the DOFs and builds the element location vectors.
func (dis *Discretization) FillComplete() error {
	var (
		nn   = len(dis.Mesh.Nodes)
		gids = make([]int, nn*dis.NumDofPerNode)
	)
	for i := range gids {
		gids[i] = dis.DofOffset + i
	}
	dis.dofMap = utils.NewDofMap(gids)
	for _, e := range dis.Elements {
		e.LM = make([]int, 0, len(e.NodeIDs)*dis.NumDofPerNode)
		e.nodeLIDs = make([]int, len(e.NodeIDs))
		for a, nid := range e.NodeIDs {
			lid, ok := dis.Mesh.NodeLID(nid)
			if !ok {
				return utils.NewConfigError("FillComplete", "element %d references unknown node %d", e.ID, nid)
			}
			e.nodeLIDs[a] = lid
			for d := 0; d < dis.NumDofPerNode; d++ {
				e.LM = append(e.LM, dis.NumDofPerNode*lid+d)
			}
		}
	}
	for name, set := range dis.NodeSets {
		for _, nid := range set {
			if _, ok := dis.Mesh.NodeLID(nid); !ok {
				return utils.NewConfigError("FillComplete", "node set %q references unknown node %d", name, nid)
			}
		}
	}
	dis.filled = true
	return nil
}

func (dis *Discretization) Filled() bool { return dis.filled }

func (dis *Discretization) DofRowMap() *utils.DofMap {
	utils.Assert(dis.filled, "Discretization.DofRowMap", "%s: FillComplete() not called", dis.Name)
	return dis.dofMap
}

func (dis *Discretization) NumNodes() int { return len(dis.Mesh.Nodes) }

// NodeDofs returns the local DOF indices of a node.
func (dis *Discretization) NodeDofs(nodeID int) (dofs []int, err error) {
	lid, ok := dis.Mesh.NodeLID(nodeID)
	if !ok {
		return nil, utils.NewConfigError("NodeDofs", "%s: unknown node %d", dis.Name, nodeID)
	}
	dofs = make([]int, dis.NumDofPerNode)
	for d := range dofs {
		dofs[d] = dis.NumDofPerNode*lid + d
	}
	return
}

func (dis *Discretization) ElementByID(id int) (*Element, bool) {
	i, ok := dis.eleByID[id]
	if !ok {
		return nil, false
	}
	return dis.Elements[i], true
}

// NodeLIDs are the positions of the element nodes in the mesh node list.
func (e *Element) NodeLIDs() []int { return e.nodeLIDs }

// RefCoords returns the reference positions of the element nodes.
func (dis *Discretization) RefCoords(e *Element) (X []geometry3D.Point) {
	X = make([]geometry3D.Point, len(e.nodeLIDs))
	for a, lid := range e.nodeLIDs {
		X[a] = dis.Mesh.Nodes[lid].X
	}
	return
}

// CurrentCoords adds the nodal displacements of a 3 DOF per node vector.
func (dis *Discretization) CurrentCoords(e *Element, disp *mat.VecDense) (X []geometry3D.Point) {
	X = dis.RefCoords(e)
	if disp == nil {
		return
	}
	for a, lid := range e.nodeLIDs {
		for d := 0; d < 3; d++ {
			X[a][d] += disp.AtVec(3*lid + d)
		}
	}
	return
}

// NodePosition is the current position of a node for a 3 DOF per node field.
func (dis *Discretization) NodePosition(nodeID int, disp *mat.VecDense) (x geometry3D.Point, err error) {
	lid, ok := dis.Mesh.NodeLID(nodeID)
	if !ok {
		return x, utils.NewConfigError("NodePosition", "%s: unknown node %d", dis.Name, nodeID)
	}
	x = dis.Mesh.Nodes[lid].X
	if disp != nil {
		for d := 0; d < 3; d++ {
			x[d] += disp.AtVec(3*lid + d)
		}
	}
	return
}

// NodeToElements maps node ids to the ids of the elements using them.
func (dis *Discretization) NodeToElements() (n2e map[int][]int) {
	n2e = make(map[int][]int)
	for _, e := range dis.Elements {
		for _, nid := range e.NodeIDs {
			n2e[nid] = append(n2e[nid], e.ID)
		}
	}
	for _, ids := range n2e {
		sort.Ints(ids)
	}
	return
}

func (dis *Discretization) String() string {
	return fmt.Sprintf("Discretization %q: %d nodes, %d elements, %d dofs/node",
		dis.Name, dis.NumNodes(), len(dis.Elements), dis.NumDofPerNode)
}

// Clone builds a field over the same mesh and elements with a different
// number of DOFs per node, as used for the scalar field of coupled problems.
func (dis *Discretization) Clone(name string, numDofPerNode, dofOffset int) (c *Discretization, err error) {
	c = NewDiscretization(name, dis.Mesh, numDofPerNode, dofOffset)
	for _, e := range dis.Elements {
		if err = c.AddElement(geometry3D.Element{ID: e.ID, NodeIDs: e.NodeIDs}, e.Kernel, e.Material); err != nil {
			return nil, err
		}
	}
	for k, v := range dis.NodeSets {
		c.NodeSets[k] = v
	}
	err = c.FillComplete()
	return
}

// Transport returns the transport kernel of the element, if its type has one.
func (e *Element) Transport() (tk TransportKernel, ok bool) {
	tk, ok = e.Kernel.(TransportKernel)
	return
}

// KernelFactory chooses the kernel and material of a mesh element.
type KernelFactory func(e geometry3D.Element) (StructuralKernel, Material, error)

// NewFromMesh builds and fills a discretization over all mesh elements.
func NewFromMesh(name string, mesh *geometry3D.Mesh, numDofPerNode, dofOffset int, kf KernelFactory) (dis *Discretization, err error) {
	dis = NewDiscretization(name, mesh, numDofPerNode, dofOffset)
	for _, me := range mesh.Elements {
		var (
			k StructuralKernel
			m Material
		)
		if k, m, err = kf(me); err != nil {
			return nil, err
		}
		if err = dis.AddElement(me, k, m); err != nil {
			return nil, err
		}
	}
	err = dis.FillComplete()
	return
}

// KernelForCell returns the built-in kernel of a cell type.
func KernelForCell(ct geometry3D.CellType, pointMass float64) (StructuralKernel, error) {
	switch ct {
	case geometry3D.Line2:
		return Truss{}, nil
	case geometry3D.Hex8:
		return Hex8{}, nil
	case geometry3D.Point1:
		return PointMass{Value: pointMass}, nil
	}
	return nil, utils.NewConfigError("KernelForCell", "no element kernel for cell type %s", ct)
}
