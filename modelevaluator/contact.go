package modelevaluator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

type ContactParams struct {
	// obstacle plane through Point with outward unit Normal
	Point, Normal geometry3D.Point
	PenaltyParam  float64
	// 0 disables the check
	MaxPenetration float64
	Nodes          []int
}

// Contact is penalty contact of nodes against a rigid plane,
// g = (x - p).n, active for g < 0, f = eps g n.
type Contact struct {
	base
	Dis    *discretization.Discretization
	Params ContactParams

	dofs   [][]int
	active []bool
	// active set of the last tangent
	stiffActive []bool
	gaps        []float64
	changed     bool
	fcontact    *mat.VecDense
	stiff       *utils.SparseOperator
	NumActive   int
}

func NewContact(gs *state.GlobalState, data *Data, dis *discretization.Discretization, params ContactParams) *Contact {
	return &Contact{base: base{gs: gs, data: data}, Dis: dis, Params: params}
}

func (c *Contact) Type() Type { return TypeContact }

func (c *Contact) Setup() (err error) {
	var (
		p  = &c.Params
		nn = p.Normal.Norm()
		n  = c.gs.DofRowMap().Len()
	)
	if nn == 0 {
		return utils.NewConfigError("Contact.Setup", "obstacle normal must not be zero")
	}
	if p.PenaltyParam <= 0 {
		return utils.NewConfigError("Contact.Setup", "penalty parameter must be positive, got %v", p.PenaltyParam)
	}
	p.Normal = p.Normal.Scale(1 / nn)
	c.dofs = c.dofs[:0]
	for _, nid := range p.Nodes {
		var dofs []int
		if dofs, err = c.Dis.NodeDofs(nid); err != nil {
			return
		}
		c.dofs = append(c.dofs, dofs)
	}
	c.active = make([]bool, len(p.Nodes))
	c.stiffActive = make([]bool, len(p.Nodes))
	c.gaps = make([]float64, len(p.Nodes))
	c.fcontact = utils.NewVec(n)
	c.stiff = utils.NewSparseOperator(n, n, "contact")
	return
}

func (c *Contact) Reset(x *mat.VecDense) {
	c.fcontact.Zero()
}

// evaluate updates gaps and the active set; false on excessive penetration.
func (c *Contact) evaluate(stiff bool) (ok bool) {
	var (
		p = &c.Params
		D = c.gs.DisNp()
	)
	ok = true
	c.fcontact.Zero()
	c.NumActive = 0
	for i, nid := range p.Nodes {
		x, _ := c.Dis.NodePosition(nid, D)
		g := x.Minus(p.Point).Dot(p.Normal)
		c.gaps[i] = g
		act := g < 0
		c.active[i] = act
		if !act {
			continue
		}
		c.NumActive++
		if p.MaxPenetration > 0 && -g > p.MaxPenetration {
			ok = false
		}
		f := p.Normal.Scale(p.PenaltyParam * g)
		utils.AssembleVector(c.fcontact, c.dofs[i], f[:], 1)
	}
	if stiff {
		c.changed = false
		for i, act := range c.active {
			if act != c.stiffActive[i] {
				c.changed = true
			}
			c.stiffActive[i] = act
		}
		if c.changed {
			c.stiff = utils.NewSparseOperator(c.fcontact.Len(), c.fcontact.Len(), "contact")
		} else {
			c.stiff.Zero()
		}
		for i, act := range c.active {
			if !act {
				continue
			}
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					c.stiff.Assemble(c.dofs[i][a], c.dofs[i][b], p.PenaltyParam*p.Normal[a]*p.Normal[b])
				}
			}
		}
	}
	return
}

func (c *Contact) EvaluateForce() bool      { return c.evaluate(false) }
func (c *Contact) EvaluateStiff() bool      { return c.evaluate(true) }
func (c *Contact) EvaluateForceStiff() bool { return c.evaluate(true) }

func (c *Contact) AssembleForce(w float64, f *mat.VecDense) {
	f.AddScaledVec(f, w, c.fcontact)
}

// AssembleJacobian reopens the pattern of J when the active set changed.
func (c *Contact) AssembleJacobian(w float64, J *utils.SparseOperator) {
	if c.changed && J.Filled() {
		J.UnComplete()
	}
	J.Add(c.stiff, false, w, 1)
}

func (c *Contact) UpdateStepState(w float64) {
	fso := c.gs.FstructOld()
	fso.AddScaledVec(fso, w, c.fcontact)
}

func (c *Contact) Gap(i int) float64 { return c.gaps[i] }

func (c *Contact) RuntimeOutputStepState(rt *out.RuntimeOutput) {
	for i, nid := range c.Params.Nodes {
		if !c.active[i] {
			continue
		}
		rt.Append(c.Type().String(), out.Record{
			"node":    float64(nid),
			"gap":     c.gaps[i],
			"lambdaN": -c.Params.PenaltyParam * c.gaps[i],
		})
	}
}

func (c *Contact) String() string {
	return fmt.Sprintf("Contact: %d nodes, %d active", len(c.Params.Nodes), c.NumActive)
}
