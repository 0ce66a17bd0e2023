package discretization

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/geometry3D"
)

// Truss is the two node bar with Green-Lagrange strain
// eps = (l^2 - L^2) / (2 L^2) and a concentration eigenstrain.
type Truss struct{}

func (Truss) Name() string   { return "truss3" }
func (Truss) NumNodes() int  { return 2 }
func (Truss) NumRandom() int { return 6 }

func (Truss) Evaluate(es ElementState, m Material, stiff bool) (res StructuralResult, ok bool) {
	var (
		D  = es.X[1].Minus(es.X[0])
		L2 = D.Dot(D)
		d  = es.Current(1).Minus(es.Current(0))
		EA = m.Youngs * m.area()
	)
	if L2 == 0 || d.Dot(d) == 0 {
		return res, false
	}
	var (
		L   = math.Sqrt(L2)
		eps = (d.Dot(d)-L2)/(2*L2) - m.Swelling*es.conc([]float64{0.5, 0.5})
		N   = EA * eps // second Piola-Kirchhoff force
	)
	res.Fint = make([]float64, 6)
	for i := 0; i < 3; i++ {
		res.Fint[i] = -N * d[i] / L
		res.Fint[3+i] = N * d[i] / L
	}
	res.Energy = 0.5 * EA * L * eps * eps
	if !stiff {
		return res, true
	}
	res.K = mat.NewDense(6, 6, nil)
	g := [6]float64{-d[0], -d[1], -d[2], d[0], d[1], d[2]}
	for a := 0; a < 6; a++ {
		for b := 0; b < 6; b++ {
			v := EA / (L2 * L) * g[a] * g[b]
			if a%3 == b%3 {
				if a/3 == b/3 {
					v += N / L
				} else {
					v -= N / L
				}
			}
			res.K.Set(a, b, v)
		}
	}
	return res, true
}

func (Truss) Mass(X []geometry3D.Point, m Material, lumped bool) *mat.Dense {
	var (
		L  = X[1].Minus(X[0]).Norm()
		mt = m.Density * m.area() * L
		M  = mat.NewDense(2, 2, []float64{mt / 3, mt / 6, mt / 6, mt / 3})
	)
	if lumped {
		M = lump(M)
	}
	return expand3(M)
}

func (Truss) ConcentrationTangent(es ElementState, m Material) *mat.Dense {
	var (
		D  = es.X[1].Minus(es.X[0])
		L  = D.Norm()
		d  = es.Current(1).Minus(es.Current(0))
		dN = -m.Youngs * m.area() * m.Swelling * 0.5 // dN/dc_a for each node
		T  = mat.NewDense(6, 2, nil)
	)
	for a := 0; a < 2; a++ {
		for i := 0; i < 3; i++ {
			T.Set(i, a, -dN*d[i]/L)
			T.Set(3+i, a, dN*d[i]/L)
		}
	}
	return T
}

// Transport is 1D diffusion along the current axis with advection by the
// mean axial velocity.
func (Truss) Transport(X []geometry3D.Point, vel []float64, m Material) (M, K *mat.Dense) {
	var (
		d  = X[1].Minus(X[0])
		l  = d.Norm()
		A  = m.area()
		kd = m.Diffusivity * A / l
		vt float64
	)
	if vel != nil {
		t := d.Scale(1 / l)
		vt = 0.5 * (t.Dot(geometry3D.Point{vel[0], vel[1], vel[2]}) + t.Dot(geometry3D.Point{vel[3], vel[4], vel[5]}))
	}
	M = mat.NewDense(2, 2, []float64{A * l / 3, A * l / 6, A * l / 6, A * l / 3})
	c := 0.5 * A * vt
	K = mat.NewDense(2, 2, []float64{kd - c, -kd + c, -kd - c, kd + c})
	return
}

// PointMass is a concentrated mass on a single node.
type PointMass struct {
	Value float64
}

func (PointMass) Name() string   { return "pointmass" }
func (PointMass) NumNodes() int  { return 1 }
func (PointMass) NumRandom() int { return 0 }

func (PointMass) Evaluate(es ElementState, m Material, stiff bool) (res StructuralResult, ok bool) {
	res.Fint = make([]float64, 3)
	if stiff {
		res.K = mat.NewDense(3, 3, nil)
	}
	return res, true
}

func (p PointMass) Mass(X []geometry3D.Point, m Material, lumped bool) *mat.Dense {
	M := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		M.Set(i, i, p.Value)
	}
	return M
}

func (PointMass) ConcentrationTangent(es ElementState, m Material) *mat.Dense {
	return mat.NewDense(3, 1, nil)
}
