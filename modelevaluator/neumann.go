package modelevaluator

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

// PointLoad applies value*f(t) on the flagged DOFs of every node.
type PointLoad struct {
	Nodes  []int
	OnOff  []bool
	Values []float64
	Funct  []int
}

// BodyLoad is an acceleration field (gravity) acting on the element mass.
type BodyLoad struct {
	Accel [3]float64
	Funct int
}

// Neumann assembles the dead external loads fext(t_{n+1}). They enter the
// residual with a negative sign and have no stiffness.
type Neumann struct {
	base
	Dis    *discretization.Discretization
	Funcs  *utils.FunctionManager
	Points []PointLoad
	Bodies []BodyLoad

	// unit gravity load per body load, scaled by the time function
	bodyRef []*mat.VecDense
}

func NewNeumann(gs *state.GlobalState, data *Data, dis *discretization.Discretization,
	funcs *utils.FunctionManager, points []PointLoad, bodies []BodyLoad) *Neumann {
	return &Neumann{base: base{gs: gs, data: data}, Dis: dis, Funcs: funcs, Points: points, Bodies: bodies}
}

func (n *Neumann) Type() Type { return TypeNeumann }

func (n *Neumann) Setup() (err error) {
	for i, pl := range n.Points {
		if len(pl.OnOff) > n.Dis.NumDofPerNode || len(pl.Values) < len(pl.OnOff) {
			return utils.NewConfigError("Neumann.Setup", "point load %d: %d flags, %d values",
				i, len(pl.OnOff), len(pl.Values))
		}
		for _, nid := range pl.Nodes {
			if _, err = n.Dis.NodeDofs(nid); err != nil {
				return
			}
		}
		for _, id := range pl.Funct {
			if _, err = n.Funcs.Get(id); err != nil {
				return
			}
		}
	}
	size := n.gs.DofRowMap().Len()
	n.bodyRef = n.bodyRef[:0]
	for _, bl := range n.Bodies {
		if _, err = n.Funcs.Get(bl.Funct); err != nil {
			return
		}
		fb := utils.NewVec(size)
		for _, e := range n.Dis.Elements {
			if e.Kernel == nil {
				continue
			}
			var (
				Me = e.Kernel.Mass(n.Dis.RefCoords(e), e.Material, false)
				g  = make([]float64, len(e.LM))
				fe mat.VecDense
			)
			for a := range g {
				g[a] = bl.Accel[a%3]
			}
			fe.MulVec(Me, mat.NewVecDense(len(g), g))
			utils.AssembleVector(fb, e.LM, utils.VecData(&fe), 1)
		}
		n.bodyRef = append(n.bodyRef, fb)
	}
	return
}

func (n *Neumann) Reset(x *mat.VecDense) {}

// evaluateAt writes fext(t) into fext.
func (n *Neumann) evaluateAt(t float64, fext *mat.VecDense) {
	fext.Zero()
	for _, pl := range n.Points {
		for _, nid := range pl.Nodes {
			dofs, _ := n.Dis.NodeDofs(nid)
			for d, on := range pl.OnOff {
				if !on {
					continue
				}
				id := 0
				if d < len(pl.Funct) {
					id = pl.Funct[d]
				}
				f, _ := n.Funcs.Get(id)
				fext.SetVec(dofs[d], fext.AtVec(dofs[d])+pl.Values[d]*f.Evaluate(t, 0))
			}
		}
	}
	for i, bl := range n.Bodies {
		f, _ := n.Funcs.Get(bl.Funct)
		fext.AddScaledVec(fext, f.Evaluate(t, 0), n.bodyRef[i])
	}
}

func (n *Neumann) EvaluateForce() bool {
	n.evaluateAt(n.gs.TimeNp(), n.gs.FextNp())
	return true
}

func (n *Neumann) EvaluateStiff() bool { return true }

func (n *Neumann) EvaluateForceStiff() bool { return n.EvaluateForce() }

func (n *Neumann) AssembleForce(w float64, f *mat.VecDense) {
	f.AddScaledVec(f, -w, n.gs.FextNp())
}

func (n *Neumann) AssembleJacobian(w float64, J *utils.SparseOperator) {}

func (n *Neumann) UpdateStepState(w float64) {
	fso := n.gs.FstructOld()
	fso.AddScaledVec(fso, -w, n.gs.FextNp())
}

// PostSetup evaluates the loads at the initial time, needed by the
// consistent initial acceleration.
func (n *Neumann) PostSetup() error {
	n.evaluateAt(n.gs.TimeN(), n.gs.FextN())
	return nil
}
