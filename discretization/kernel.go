package discretization

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/geometry3D"
)

// ElementState is what a structural kernel needs from one element: reference
// nodal positions, nodal displacements (3 per node) and, when coupled, the
// nodal concentrations.
type ElementState struct {
	X    []geometry3D.Point
	Disp []float64
	Conc []float64
}

// Current returns the deformed position of node a.
func (es ElementState) Current(a int) geometry3D.Point {
	return es.X[a].Plus(geometry3D.Point{es.Disp[3*a], es.Disp[3*a+1], es.Disp[3*a+2]})
}

func (es ElementState) conc(N []float64) (c float64) {
	if es.Conc == nil {
		return 0
	}
	for a, n := range N {
		c += n * es.Conc[a]
	}
	return
}

// StructuralResult holds the element internal force, tangent and energy.
type StructuralResult struct {
	Fint   []float64
	K      *mat.Dense
	Energy float64
}

// StructuralKernel evaluates one element type. Evaluate reports false when
// the element is invalid in the given configuration (inverted geometry).
type StructuralKernel interface {
	Name() string
	NumNodes() int
	Evaluate(es ElementState, m Material, stiff bool) (res StructuralResult, ok bool)
	Mass(X []geometry3D.Point, m Material, lumped bool) *mat.Dense
	// derivative of the internal force with respect to the nodal
	// concentrations, one column per node
	ConcentrationTangent(es ElementState, m Material) *mat.Dense
	// NumRandom is the number of random numbers needed for stochastic forces
	NumRandom() int
}

// TransportKernel evaluates the scalar transport operators of one element on
// the given (current) geometry. vel are the nodal velocities, 3 per node.
type TransportKernel interface {
	Transport(X []geometry3D.Point, vel []float64, m Material) (M, K *mat.Dense)
}

func expand3(m *mat.Dense) (out *mat.Dense) {
	var (
		n, _ = m.Dims()
	)
	out = mat.NewDense(3*n, 3*n, nil)
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			for d := 0; d < 3; d++ {
				out.Set(3*a+d, 3*b+d, m.At(a, b))
			}
		}
	}
	return
}

func lump(m *mat.Dense) *mat.Dense {
	var (
		n, _ = m.Dims()
		out  = mat.NewDense(n, n, nil)
	)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += m.At(i, j)
		}
		out.Set(i, i, s)
	}
	return out
}
