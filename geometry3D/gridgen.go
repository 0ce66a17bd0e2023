package geometry3D

import (
	"math"
	"sort"
	"strings"

	"github.com/notargets/gocsd/utils"
)

type CellType uint8

const (
	Point1 CellType = iota
	Line2
	Hex8
	Hex20
	Hex27
	Wedge6
	Wedge15
)

var cellNames = map[CellType]string{
	Point1:  "point1",
	Line2:   "line2",
	Hex8:    "hex8",
	Hex20:   "hex20",
	Hex27:   "hex27",
	Wedge6:  "wedge6",
	Wedge15: "wedge15",
}

var cellNodes = map[CellType]int{
	Point1: 1, Line2: 2, Hex8: 8, Hex20: 20, Hex27: 27, Wedge6: 6, Wedge15: 15,
}

func NewCellType(label string) (CellType, error) {
	for ct, name := range cellNames {
		if strings.EqualFold(name, label) {
			return ct, nil
		}
	}
	return Hex8, utils.NewConfigError("NewCellType", "unknown cell type %q", label)
}

func (ct CellType) String() string { return cellNames[ct] }
func (ct CellType) NumNodes() int  { return cellNodes[ct] }

type Node struct {
	ID int
	X  Point
}

type Element struct {
	ID      int
	Type    CellType
	NodeIDs []int
}

// Mesh holds nodes sorted by id and elements in creation order.
type Mesh struct {
	Nodes     []Node
	Elements  []Element
	nodeIndex map[int]int
}

func NewMesh(nodes []Node, elements []Element) (m *Mesh) {
	m = &Mesh{Nodes: nodes, Elements: elements}
	sort.Slice(m.Nodes, func(i, j int) bool { return m.Nodes[i].ID < m.Nodes[j].ID })
	m.index()
	return
}

func (m *Mesh) index() {
	m.nodeIndex = make(map[int]int, len(m.Nodes))
	for i, n := range m.Nodes {
		m.nodeIndex[n.ID] = i
	}
}

func (m *Mesh) NodeByID(id int) (n *Node, ok bool) {
	var i int
	if i, ok = m.nodeIndex[id]; ok {
		n = &m.Nodes[i]
	}
	return
}

// NodeLID is the position of a node in Nodes.
func (m *Mesh) NodeLID(id int) (lid int, ok bool) {
	lid, ok = m.nodeIndex[id]
	return
}

// Merge appends the nodes and elements of other; ids must not collide.
func (m *Mesh) Merge(other *Mesh) error {
	for _, n := range other.Nodes {
		if _, dup := m.nodeIndex[n.ID]; dup {
			return utils.NewConfigError("Mesh.Merge", "node id %d defined twice", n.ID)
		}
	}
	ids := make(map[int]bool, len(m.Elements))
	for _, e := range m.Elements {
		ids[e.ID] = true
	}
	for _, e := range other.Elements {
		if ids[e.ID] {
			return utils.NewConfigError("Mesh.Merge", "element id %d defined twice", e.ID)
		}
	}
	m.Nodes = append(m.Nodes, other.Nodes...)
	m.Elements = append(m.Elements, other.Elements...)
	sort.Slice(m.Nodes, func(i, j int) bool { return m.Nodes[i].ID < m.Nodes[j].ID })
	m.index()
	return nil
}

func (m *Mesh) BoundingBox() *BoundingBox {
	pts := make([]Point, len(m.Nodes))
	for i, n := range m.Nodes {
		pts[i] = n.X
	}
	return NewBoundingBox(pts)
}

// CuboidParams describes a structured box mesh.
type CuboidParams struct {
	Bottom, Top Point
	Intervals   [3]int

	// rotation in degrees about x, y, z around the box centre, in that order
	Rotation       [3]float64
	Type           CellType
	FirstNodeID    int
	FirstElementID int
}

func (p CuboidParams) Validate() error {
	for i := 0; i < 3; i++ {
		if p.Bottom[i] >= p.Top[i] {
			return utils.NewConfigError("CuboidParams", "lower bound must be smaller than upper bound in direction %d", i)
		}
		if p.Intervals[i] <= 0 {
			return utils.NewConfigError("CuboidParams", "intervals must be greater than zero in direction %d", i)
		}
	}
	for _, a := range p.Rotation {
		if a < 0 || a >= 360 {
			return utils.NewConfigError("CuboidParams", "rotation angle %v outside [0,360)", a)
		}
	}
	switch p.Type {
	case Hex8, Hex20, Hex27, Wedge6, Wedge15:
	default:
		return utils.NewConfigError("CuboidParams", "cell type %s is not supported for box generation", p.Type)
	}
	return nil
}

// NumElements is the number of elements the box generates.
func (p CuboidParams) NumElements() int {
	n := p.Intervals[0] * p.Intervals[1] * p.Intervals[2]
	if p.Type == Wedge6 || p.Type == Wedge15 {
		n *= 2
	}
	return n
}

// GenerateCuboid builds the box mesh. Nodes live on a lattice with twice the
// resolution of the elements; only lattice points referenced by an element
// are created.
func GenerateCuboid(p CuboidParams) (m *Mesh, err error) {
	if err = p.Validate(); err != nil {
		return
	}
	var (
		ne       = p.NumElements()
		elements = make([]Element, ne)
		used     = make(map[int]struct{})
	)
	for e := 0; e < ne; e++ {
		var ids []int
		switch p.Type {
		case Hex8, Hex20, Hex27:
			ids = hexNodeIDs(e, p.FirstNodeID, p.Intervals, p.Type.NumNodes())
		default:
			ids = wedgeNodeIDs(e, p.FirstNodeID, p.Intervals, p.Type.NumNodes())
		}
		for _, id := range ids {
			used[id] = struct{}{}
		}
		elements[e] = Element{ID: p.FirstElementID + e, Type: p.Type, NodeIDs: ids}
	}
	nodes := make([]Node, 0, len(used))
	for id := range used {
		nodes = append(nodes, Node{ID: id, X: p.latticePoint(id)})
	}
	m = NewMesh(nodes, elements)
	return
}

func (p CuboidParams) latticePoint(gid int) (x Point) {
	var (
		nx  = 2*p.Intervals[0] + 1
		ny  = 2*p.Intervals[1] + 1
		pos = gid - p.FirstNodeID
		ijk = [3]int{pos % nx, (pos / nx) % ny, pos / (nx * ny)}
	)
	for d := 0; d < 3; d++ {
		x[d] = float64(ijk[d])/float64(2*p.Intervals[d])*(p.Top[d]-p.Bottom[d]) + p.Bottom[d]
	}
	if p.Rotation == [3]float64{} {
		return
	}
	centre := p.Bottom.Plus(p.Top).Scale(0.5)
	for axis := 0; axis < 3; axis++ {
		if p.Rotation[axis] == 0 {
			continue
		}
		var (
			dx     = x.Minus(centre)
			c, s   = math.Cos(p.Rotation[axis] * math.Pi / 180), math.Sin(p.Rotation[axis] * math.Pi / 180)
			a1, a2 = (axis + 1) % 3, (axis + 2) % 3
		)
		x = centre
		x[a1] += c*dx[a1] + s*dx[a2]
		x[a2] += c*dx[a2] - s*dx[a1]
		x[axis] += dx[axis]
	}
	return
}

func latticeID(offset, nx, ny, ex, ey, ez int) int {
	return offset + (ez*ny+ey)*nx + ex
}

func hexNodeIDs(eid, offset int, iv [3]int, nn int) (ids []int) {
	var (
		ex = 2 * (eid % iv[0])
		ey = 2 * ((eid / iv[0]) % iv[1])
		ez = 2 * (eid / (iv[0] * iv[1]))
		nx = 2*iv[0] + 1
		ny = 2*iv[1] + 1
	)
	at := func(dx, dy, dz int) int { return latticeID(offset, nx, ny, ex+dx, ey+dy, ez+dz) }
	// corner, edge, face and centre offsets in the standard hex numbering
	offsets := [27][3]int{
		{0, 0, 0}, {2, 0, 0}, {2, 2, 0}, {0, 2, 0}, {0, 0, 2}, {2, 0, 2}, {2, 2, 2}, {0, 2, 2},
		{1, 0, 0}, {2, 1, 0}, {1, 2, 0}, {0, 1, 0}, {0, 0, 1}, {2, 0, 1}, {2, 2, 1}, {0, 2, 1},
		{1, 0, 2}, {2, 1, 2}, {1, 2, 2}, {0, 1, 2},
		{1, 1, 0}, {1, 0, 1}, {2, 1, 1}, {1, 2, 1}, {0, 1, 1}, {1, 1, 2}, {1, 1, 1},
	}
	ids = make([]int, nn)
	for i := 0; i < nn; i++ {
		o := offsets[i]
		ids[i] = at(o[0], o[1], o[2])
	}
	return
}

// wedgeNodeIDs splits every hex cell into two wedges aligned with z; even
// ids take the first half, odd ids the second.
func wedgeNodeIDs(eid, offset int, iv [3]int, nn int) (ids []int) {
	var (
		hex = eid / 2
		ex  = 2 * (hex % iv[0])
		ey  = 2 * ((hex / iv[0]) % iv[1])
		ez  = 2 * (hex / (iv[0] * iv[1]))
		nx  = 2*iv[0] + 1
		ny  = 2*iv[1] + 1
	)
	at := func(o [3]int) int { return latticeID(offset, nx, ny, ex+o[0], ey+o[1], ez+o[2]) }
	even := [15][3]int{
		{0, 0, 0}, {2, 0, 0}, {0, 2, 0}, {0, 0, 2}, {2, 0, 2}, {0, 2, 2},
		{1, 0, 0}, {1, 1, 0}, {0, 1, 0}, {0, 0, 1}, {2, 0, 1}, {0, 2, 1},
		{1, 0, 2}, {1, 1, 2}, {0, 1, 2},
	}
	odd := [15][3]int{
		{2, 0, 0}, {2, 2, 0}, {0, 2, 0}, {2, 0, 2}, {2, 2, 2}, {0, 2, 2},
		{2, 1, 0}, {1, 2, 0}, {1, 1, 0}, {2, 0, 1}, {2, 2, 1}, {0, 2, 1},
		{2, 1, 2}, {1, 2, 2}, {1, 1, 2},
	}
	table := even
	if eid%2 == 1 {
		table = odd
	}
	ids = make([]int, nn)
	for i := 0; i < nn; i++ {
		ids[i] = at(table[i])
	}
	return
}

// GenerateLine builds a chain of n two-node line elements from start to end.
func GenerateLine(start, end Point, n, firstNodeID, firstElementID int) *Mesh {
	var (
		nodes    = make([]Node, n+1)
		elements = make([]Element, n)
		d        = end.Minus(start).Scale(1 / float64(n))
	)
	for i := range nodes {
		nodes[i] = Node{ID: firstNodeID + i, X: start.Plus(d.Scale(float64(i)))}
	}
	for i := range elements {
		elements[i] = Element{ID: firstElementID + i, Type: Line2,
			NodeIDs: []int{firstNodeID + i, firstNodeID + i + 1}}
	}
	return NewMesh(nodes, elements)
}
