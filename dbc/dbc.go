// Package dbc applies Dirichlet boundary conditions to state vectors and to
// linear systems, including conditions posed in rotated nodal frames.
package dbc

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/utils"
)

type Kind uint8

const (
	KindDisplacement Kind = iota
	KindVelocity
	KindAcceleration
)

func NewKind(label string) (Kind, error) {
	switch label {
	case "", "Dirichlet", "displacement", "Displacement":
		return KindDisplacement, nil
	case "velocity", "Velocity":
		return KindVelocity, nil
	case "acceleration", "Acceleration":
		return KindAcceleration, nil
	}
	return KindDisplacement, utils.NewConfigError("dbc.NewKind", "unknown Dirichlet kind %q", label)
}

// Condition prescribes value*f(t) on the flagged DOFs of every node.
type Condition struct {
	Name   string
	Nodes  []int
	OnOff  []bool
	Values []float64
	Funct  []int
	Kind   Kind
}

func (c *Condition) same(o *Condition, d int) bool {
	return c.Kind == o.Kind && c.Values[d] == o.Values[d] && funct(c, d) == funct(o, d)
}

func funct(c *Condition, d int) int {
	if d < len(c.Funct) {
		return c.Funct[d]
	}
	return 0
}

// Locsys attaches a local frame to nodes; local = T global.
type Locsys struct {
	Nodes []int
	T     [3][3]float64
}

// NewLocsysFromRotationVector builds the frame of a rotation vector (axis
// times angle in radians) with Rodrigues' formula.
func NewLocsysFromRotationVector(nodes []int, rv [3]float64) (ls Locsys) {
	var (
		theta = math.Sqrt(rv[0]*rv[0] + rv[1]*rv[1] + rv[2]*rv[2])
		R     [3][3]float64
	)
	ls.Nodes = nodes
	for i := 0; i < 3; i++ {
		R[i][i] = 1
	}
	if theta > 0 {
		var (
			k    = [3]float64{rv[0] / theta, rv[1] / theta, rv[2] / theta}
			s, c = math.Sin(theta), math.Cos(theta)
			K    = [3][3]float64{{0, -k[2], k[1]}, {k[2], 0, -k[0]}, {-k[1], k[0], 0}}
		)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				var kk float64
				for l := 0; l < 3; l++ {
					kk += K[i][l] * K[l][j]
				}
				R[i][j] += s*K[i][j] + (1-c)*kk
			}
		}
	}
	// R rotates the global basis onto the local one, so local = R^T global
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ls.T[i][j] = R[j][i]
		}
	}
	return
}

type entry struct {
	cond int
	comp int
}

// Handler owns the Dirichlet conditions of one discretization.
type Handler struct {
	dis       *discretization.Discretization
	funcs     *utils.FunctionManager
	conds     []Condition
	locsys    []Locsys
	Symmetric bool

	ndof    int
	entries map[int]entry // dof -> prescribing condition
	dbcMap  []bool
	dbcDofs []int
	// base DOF of a locsys node -> frame
	trafo map[int]*[3][3]float64
}

func NewHandler(dis *discretization.Discretization, funcs *utils.FunctionManager,
	conds []Condition, locsys []Locsys, symmetric bool) (h *Handler, err error) {
	h = &Handler{
		dis:       dis,
		funcs:     funcs,
		conds:     conds,
		locsys:    locsys,
		Symmetric: symmetric,
		ndof:      dis.DofRowMap().Len(),
		trafo:     make(map[int]*[3][3]float64),
	}
	for i := range h.locsys {
		if dis.NumDofPerNode < 3 {
			return nil, utils.NewConfigError("dbc.NewHandler", "locsys needs 3 DOFs per node, %s has %d",
				dis.Name, dis.NumDofPerNode)
		}
		for _, nid := range h.locsys[i].Nodes {
			var dofs []int
			if dofs, err = dis.NodeDofs(nid); err != nil {
				return nil, err
			}
			if _, dup := h.trafo[dofs[0]]; dup {
				return nil, utils.NewConfigError("dbc.NewHandler", "node %d has two local systems", nid)
			}
			h.trafo[dofs[0]] = &h.locsys[i].T
		}
	}
	if err = h.buildMap(); err != nil {
		return nil, err
	}
	return
}

func (h *Handler) buildMap() error {
	h.entries = make(map[int]entry)
	for ci := range h.conds {
		c := &h.conds[ci]
		if len(c.OnOff) > h.dis.NumDofPerNode || len(c.Values) < len(c.OnOff) {
			return utils.NewConfigError("dbc", "condition %q: %d flags and %d values for %d DOFs per node",
				c.Name, len(c.OnOff), len(c.Values), h.dis.NumDofPerNode)
		}
		for _, nid := range c.Nodes {
			dofs, err := h.dis.NodeDofs(nid)
			if err != nil {
				return err
			}
			for d, on := range c.OnOff {
				if !on {
					continue
				}
				if prev, dup := h.entries[dofs[d]]; dup {
					if !h.conds[prev.cond].same(c, d) {
						return utils.NewConfigError("dbc", "node %d DOF %d is prescribed by conflicting conditions %q and %q",
							nid, d, h.conds[prev.cond].Name, c.Name)
					}
					continue
				}
				h.entries[dofs[d]] = entry{cond: ci, comp: d}
			}
		}
	}
	h.dbcMap = make([]bool, h.ndof)
	h.dbcDofs = h.dbcDofs[:0]
	for dof := range h.entries {
		h.dbcMap[dof] = true
		h.dbcDofs = append(h.dbcDofs, dof)
	}
	sort.Ints(h.dbcDofs)
	return nil
}

// DbcMap flags the constrained DOFs. For locsys nodes the flags refer to
// local directions.
func (h *Handler) DbcMap() []bool { return h.dbcMap }

func (h *Handler) DbcDofs() []int { return h.dbcDofs }

func (h *Handler) IsDbc(dof int) bool { return h.dbcMap[dof] }

func (h *Handler) HasLocsys() bool { return len(h.trafo) > 0 }

func (h *Handler) value(e entry, t float64, deriv int) (v float64, err error) {
	var (
		c = &h.conds[e.cond]
		f utils.Function
	)
	if f, err = h.funcs.Get(funct(c, e.comp)); err != nil {
		return
	}
	return c.Values[e.comp] * f.Evaluate(t, deriv), nil
}

func (h *Handler) rotate(v *mat.VecDense, base int, T *[3][3]float64, transpose bool) {
	var (
		x   = [3]float64{v.AtVec(base), v.AtVec(base + 1), v.AtVec(base + 2)}
		out [3]float64
	)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if transpose {
				out[i] += T[j][i] * x[j]
			} else {
				out[i] += T[i][j] * x[j]
			}
		}
	}
	for i := 0; i < 3; i++ {
		v.SetVec(base+i, out[i])
	}
}

// ToLocal rotates every locsys node triple of v into its local frame.
func (h *Handler) ToLocal(v *mat.VecDense) {
	for base, T := range h.trafo {
		h.rotate(v, base, T, false)
	}
}

// ToGlobal is the inverse of ToLocal.
func (h *Handler) ToGlobal(v *mat.VecDense) {
	for base, T := range h.trafo {
		h.rotate(v, base, T, true)
	}
}

// ApplyDirichletBC writes the prescribed values at time t into the non-nil
// vectors. The DOF map is rebuilt when recreateMap is set.
func (h *Handler) ApplyDirichletBC(t float64, D, V, A *mat.VecDense, recreateMap bool) (err error) {
	if recreateMap {
		if err = h.buildMap(); err != nil {
			return
		}
	}
	for _, v := range []*mat.VecDense{D, V, A} {
		if v != nil {
			h.ToLocal(v)
		}
	}
	targets := [3]*mat.VecDense{D, V, A}
	for _, dof := range h.dbcDofs {
		var (
			e     = h.entries[dof]
			first = int(h.conds[e.cond].Kind)
		)
		// a velocity condition prescribes V = v f(t) and A = v f'(t)
		for i := first; i < 3; i++ {
			if targets[i] == nil {
				continue
			}
			var val float64
			if val, err = h.value(e, t, i-first); err != nil {
				return
			}
			targets[i].SetVec(dof, val)
		}
	}
	for _, v := range []*mat.VecDense{D, V, A} {
		if v != nil {
			h.ToGlobal(v)
		}
	}
	return
}
