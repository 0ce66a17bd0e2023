package modelevaluator

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

type SpringDirection uint8

const (
	DirXYZ SpringDirection = iota
	DirRefSurfNormal
	DirCurSurfNormal
)

func NewSpringDirection(label string) (SpringDirection, error) {
	switch label {
	case "", "xyz":
		return DirXYZ, nil
	case "refsurfnormal":
		return DirRefSurfNormal, nil
	case "cursurfnormal":
		return DirCurSurfNormal, nil
	}
	return DirXYZ, utils.NewConfigError("NewSpringDirection", "unknown spring direction %q", label)
}

// SpringDashpotCondition attaches springs and dashpots to the nodes of a
// surface. For the normal directions only component 0 of Stiff, Visco and
// DispOffset is used.
type SpringDashpotCondition struct {
	Name       string
	Nodes      []int
	Stiff      [3]float64
	Visco      [3]float64
	DispOffset [3]float64
	Direction  SpringDirection
	// tributary area of each node, 1 when zero
	Area float64
}

type springSurface struct {
	cond *SpringDashpotCondition
	dofs [][]int
	// nodes spanning the surface plane
	tri  [3]int
	refN geometry3D.Point
}

// SpringDashpot evaluates Robin type springs and dashpots,
// f = A (k (u - u0 - offset) + c v).
type SpringDashpot struct {
	base
	Dis        *discretization.Discretization
	Conditions []SpringDashpotCondition
	// the offset u0 follows the displacement while t <= PrestressTime
	Prestress     bool
	PrestressTime float64

	surfaces []springSurface
	offset   *mat.VecDense
	fspring  *mat.VecDense
	stiff    *utils.SparseOperator
}

func NewSpringDashpot(gs *state.GlobalState, data *Data, dis *discretization.Discretization,
	conds []SpringDashpotCondition) *SpringDashpot {
	return &SpringDashpot{base: base{gs: gs, data: data}, Dis: dis, Conditions: conds}
}

func (sd *SpringDashpot) Type() Type { return TypeSpringDashpot }

func (sd *SpringDashpot) Setup() (err error) {
	if sd.Dis.NumDofPerNode != 3 {
		return utils.NewConfigError("SpringDashpot.Setup", "%s has %d DOFs per node, springs need 3",
			sd.Dis.Name, sd.Dis.NumDofPerNode)
	}
	n := sd.gs.DofRowMap().Len()
	sd.offset = utils.NewVec(n)
	sd.fspring = utils.NewVec(n)
	sd.stiff = utils.NewSparseOperator(n, n, "springdashpot")
	sd.surfaces = sd.surfaces[:0]
	for ci := range sd.Conditions {
		c := &sd.Conditions[ci]
		if c.Area == 0 {
			c.Area = 1
		}
		s := springSurface{cond: c}
		for _, nid := range c.Nodes {
			var dofs []int
			if dofs, err = sd.Dis.NodeDofs(nid); err != nil {
				return
			}
			s.dofs = append(s.dofs, dofs)
		}
		if c.Direction != DirXYZ {
			if s.tri, s.refN, err = sd.spanningNodes(c); err != nil {
				return
			}
		}
		sd.surfaces = append(sd.surfaces, s)
	}
	return
}

// spanningNodes picks the node triple with the largest spanned area of the
// reference surface.
func (sd *SpringDashpot) spanningNodes(c *SpringDashpotCondition) (tri [3]int, normal geometry3D.Point, err error) {
	if len(c.Nodes) < 3 {
		return tri, normal, utils.NewConfigError("SpringDashpot", "condition %q: a surface normal needs at least 3 nodes", c.Name)
	}
	var (
		X    = make([]geometry3D.Point, len(c.Nodes))
		best float64
	)
	for i, nid := range c.Nodes {
		X[i], _ = sd.Dis.NodePosition(nid, nil)
	}
	for j := 1; j < len(X); j++ {
		for k := j + 1; k < len(X); k++ {
			if a := X[j].Minus(X[0]).Cross(X[k].Minus(X[0])).Norm(); a > best {
				best, tri = a, [3]int{0, j, k}
			}
		}
	}
	if best <= utils.NODETOL {
		return tri, normal, utils.NewConfigError("SpringDashpot", "condition %q: nodes do not span a surface", c.Name)
	}
	normal = sd.normal(c, tri, nil)
	return
}

func (sd *SpringDashpot) normal(c *SpringDashpotCondition, tri [3]int, D *mat.VecDense) geometry3D.Point {
	var x [3]geometry3D.Point
	for i, a := range tri {
		x[i], _ = sd.Dis.NodePosition(c.Nodes[a], D)
	}
	n := x[1].Minus(x[0]).Cross(x[2].Minus(x[0]))
	return n.Scale(1 / n.Norm())
}

func (sd *SpringDashpot) Reset(x *mat.VecDense) {
	sd.fspring.Zero()
	sd.stiff.Zero()
}

func nodal(v *mat.VecDense, dofs []int) geometry3D.Point {
	return geometry3D.Point{v.AtVec(dofs[0]), v.AtVec(dofs[1]), v.AtVec(dofs[2])}
}

// normalForce is the force of one node for a normal spring.
func normalForce(c *SpringDashpotCondition, u, v geometry3D.Point, n geometry3D.Point) geometry3D.Point {
	g := u.Dot(n) - c.DispOffset[0]
	return n.Scale(c.Area * (c.Stiff[0]*g + c.Visco[0]*v.Dot(n)))
}

func (sd *SpringDashpot) evaluate(stiff bool) {
	var (
		D, V   = sd.gs.DisNp(), sd.gs.VelNp()
		velFac = sd.velocityFactor()
	)
	sd.fspring.Zero()
	if stiff {
		sd.stiff.Zero()
	}
	for si := range sd.surfaces {
		var (
			s = &sd.surfaces[si]
			c = s.cond
			n = s.refN
		)
		if c.Direction == DirCurSurfNormal {
			n = sd.normal(c, s.tri, D)
		}
		for _, dofs := range s.dofs {
			var (
				u = nodal(D, dofs).Minus(nodal(sd.offset, dofs))
				v = nodal(V, dofs)
			)
			switch c.Direction {
			case DirXYZ:
				for d := 0; d < 3; d++ {
					f := c.Area * (c.Stiff[d]*(u[d]-c.DispOffset[d]) + c.Visco[d]*v[d])
					sd.fspring.SetVec(dofs[d], sd.fspring.AtVec(dofs[d])+f)
					if stiff {
						sd.stiff.Assemble(dofs[d], dofs[d], c.Area*(c.Stiff[d]+c.Visco[d]*velFac))
					}
				}
			default:
				f := normalForce(c, u, v, n)
				utils.AssembleVector(sd.fspring, dofs, f[:], 1)
				if stiff {
					kn := c.Area * (c.Stiff[0] + c.Visco[0]*velFac)
					for i := 0; i < 3; i++ {
						for j := 0; j < 3; j++ {
							sd.stiff.Assemble(dofs[i], dofs[j], kn*n[i]*n[j])
						}
					}
				}
			}
		}
		if stiff && c.Direction == DirCurSurfNormal {
			sd.geometricTangent(s, D, V)
		}
	}
}

// geometricTangent adds the derivative of the forces through the current
// normal, by central differences over the DOFs of the spanning nodes.
func (sd *SpringDashpot) geometricTangent(s *springSurface, D, V *mat.VecDense) {
	var (
		c  = s.cond
		h  = 1e-7
		Dp = utils.CloneVec(D)
	)
	for _, a := range s.tri {
		for _, col := range s.dofs[a] {
			d0 := D.AtVec(col)
			Dp.SetVec(col, d0+h)
			np := sd.normal(c, s.tri, Dp)
			Dp.SetVec(col, d0-h)
			nm := sd.normal(c, s.tri, Dp)
			Dp.SetVec(col, d0)
			for _, dofs := range s.dofs {
				var (
					u  = nodal(D, dofs).Minus(nodal(sd.offset, dofs))
					v  = nodal(V, dofs)
					fp = normalForce(c, u, v, np)
					fm = normalForce(c, u, v, nm)
				)
				for i := 0; i < 3; i++ {
					sd.stiff.Assemble(dofs[i], col, (fp[i]-fm[i])/(2*h))
				}
			}
		}
	}
}

func (sd *SpringDashpot) EvaluateForce() bool {
	sd.evaluate(false)
	return true
}

func (sd *SpringDashpot) EvaluateStiff() bool {
	sd.evaluate(true)
	return true
}

func (sd *SpringDashpot) EvaluateForceStiff() bool {
	sd.evaluate(true)
	return true
}

func (sd *SpringDashpot) AssembleForce(w float64, f *mat.VecDense) {
	f.AddScaledVec(f, w, sd.fspring)
}

func (sd *SpringDashpot) AssembleJacobian(w float64, J *utils.SparseOperator) {
	J.Add(sd.stiff, false, w, 1)
}

func (sd *SpringDashpot) UpdateStepState(w float64) {
	fso := sd.gs.FstructOld()
	fso.AddScaledVec(fso, w, sd.fspring)
	if sd.Prestress && sd.gs.TimeNp() <= sd.PrestressTime+1e-15 {
		for _, s := range sd.surfaces {
			for _, dofs := range s.dofs {
				for _, dof := range dofs {
					sd.offset.SetVec(dof, sd.gs.DisNp().AtVec(dof))
				}
			}
		}
	}
}

// Offset is the prestress displacement offset u0.
func (sd *SpringDashpot) Offset() *mat.VecDense { return sd.offset }

func (sd *SpringDashpot) WriteRestart(w *restart.Writer, forced bool) {
	w.WriteVector("springoffsetprestr", sd.offset)
}

func (sd *SpringDashpot) ReadRestart(r *restart.Reader) error {
	return r.ReadVectorInto("springoffsetprestr", sd.offset)
}

func (sd *SpringDashpot) RuntimeOutputStepState(rt *out.RuntimeOutput) {
	D := sd.gs.DisNp()
	for _, s := range sd.surfaces {
		var (
			c = s.cond
			n = s.refN
		)
		if c.Direction == DirCurSurfNormal {
			n = sd.normal(c, s.tri, D)
		}
		for i, dofs := range s.dofs {
			var (
				u   = nodal(D, dofs).Minus(nodal(sd.offset, dofs))
				f   = nodal(sd.fspring, dofs)
				gap float64
			)
			if c.Direction == DirXYZ {
				gap = u.Norm()
			} else {
				gap = u.Dot(n)
			}
			rt.Append(sd.Type().String(), out.Record{
				"node":           float64(c.Nodes[i]),
				"gap":            gap,
				"springstress_x": f[0] / c.Area,
				"springstress_y": f[1] / c.Area,
				"springstress_z": f[2] / c.Area,
			})
		}
	}
}

// SpringEnergy is the elastic energy stored in the springs.
func (sd *SpringDashpot) SpringEnergy() (e float64) {
	D := sd.gs.DisNp()
	for _, s := range sd.surfaces {
		c := s.cond
		for _, dofs := range s.dofs {
			u := nodal(D, dofs).Minus(nodal(sd.offset, dofs))
			if c.Direction == DirXYZ {
				for d := 0; d < 3; d++ {
					e += 0.5 * c.Area * c.Stiff[d] * utils.POW(u[d]-c.DispOffset[d], 2)
				}
			} else {
				g := u.Dot(s.refN) - c.DispOffset[0]
				e += 0.5 * c.Area * c.Stiff[0] * g * g
			}
		}
	}
	return
}
