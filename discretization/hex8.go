package discretization

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/geometry3D"
)

var hex8Corners = [8][3]float64{
	{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
	{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
}

// hex8Shape returns the trilinear shape functions and their derivatives with
// respect to (r, s, t) at one point.
func hex8Shape(r, s, t float64) (N []float64, dN *mat.Dense) {
	N = make([]float64, 8)
	dN = mat.NewDense(3, 8, nil)
	for a, c := range hex8Corners {
		var (
			fr, fs, ft = 1 + r*c[0], 1 + s*c[1], 1 + t*c[2]
		)
		N[a] = fr * fs * ft / 8
		dN.Set(0, a, c[0]*fs*ft/8)
		dN.Set(1, a, fr*c[1]*ft/8)
		dN.Set(2, a, fr*fs*c[2]/8)
	}
	return
}

// hex8Gradients maps the reference derivatives to physical ones, returning
// dN/dx (3x8) and det J.
func hex8Gradients(X []geometry3D.Point, dN *mat.Dense) (dNdx *mat.Dense, detJ float64, ok bool) {
	var (
		J    = mat.NewDense(3, 3, nil)
		Jinv mat.Dense
	)
	for a := 0; a < 8; a++ {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				J.Set(i, j, J.At(i, j)+dN.At(i, a)*X[a][j])
			}
		}
	}
	if detJ = mat.Det(J); detJ <= 0 {
		return nil, detJ, false
	}
	if err := Jinv.Inverse(J); err != nil {
		return nil, detJ, false
	}
	dNdx = mat.NewDense(3, 8, nil)
	dNdx.Mul(&Jinv, dN)
	return dNdx, detJ, true
}

// bOperator is the 6x24 small strain operator in Voigt order
// xx, yy, zz, xy, yz, xz with engineering shears.
func bOperator(dNdx *mat.Dense) (B *mat.Dense) {
	B = mat.NewDense(6, 24, nil)
	for a := 0; a < 8; a++ {
		var (
			nx, ny, nz = dNdx.At(0, a), dNdx.At(1, a), dNdx.At(2, a)
			c          = 3 * a
		)
		B.Set(0, c, nx)
		B.Set(1, c+1, ny)
		B.Set(2, c+2, nz)
		B.Set(3, c, ny)
		B.Set(3, c+1, nx)
		B.Set(4, c+1, nz)
		B.Set(4, c+2, ny)
		B.Set(5, c, nz)
		B.Set(5, c+2, nx)
	}
	return
}

func elasticity(m Material) (D *mat.Dense) {
	var (
		lambda, mu = m.Lame()
	)
	D = mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			D.Set(i, j, lambda)
		}
		D.Set(i, i, lambda+2*mu)
		D.Set(3+i, 3+i, mu)
	}
	return
}

// Hex8 is the trilinear small strain solid with 2x2x2 Gauss integration.
type Hex8 struct{}

func (Hex8) Name() string   { return "solidh8" }
func (Hex8) NumNodes() int  { return 8 }
func (Hex8) NumRandom() int { return 0 }

func (Hex8) Evaluate(es ElementState, m Material, stiff bool) (res StructuralResult, ok bool) {
	var (
		r, s, t, w = HexGauss(2)
		D          = elasticity(m)
		u          = mat.NewVecDense(24, es.Disp)
		fint       = mat.NewVecDense(24, nil)
	)
	if stiff {
		res.K = mat.NewDense(24, 24, nil)
	}
	for gp := range w {
		N, dN := hex8Shape(r[gp], s[gp], t[gp])
		dNdx, detJ, valid := hex8Gradients(es.X, dN)
		if !valid {
			return res, false
		}
		var (
			B      = bOperator(dNdx)
			eps    = mat.NewVecDense(6, nil)
			sigma  = mat.NewVecDense(6, nil)
			fac    = w[gp] * detJ
			cSwell = m.Swelling * es.conc(N)
		)
		eps.MulVec(B, u)
		for i := 0; i < 3; i++ {
			eps.SetVec(i, eps.AtVec(i)-cSwell)
		}
		sigma.MulVec(D, eps)
		res.Energy += 0.5 * fac * mat.Dot(eps, sigma)
		var fe mat.VecDense
		fe.MulVec(B.T(), sigma)
		fint.AddScaledVec(fint, fac, &fe)
		if stiff {
			var DB, BtDB mat.Dense
			DB.Mul(D, B)
			BtDB.Mul(B.T(), &DB)
			res.K.Add(res.K, scaleDense(fac, &BtDB))
		}
	}
	res.Fint = fint.RawVector().Data
	return res, true
}

func scaleDense(a float64, m *mat.Dense) *mat.Dense {
	m.Scale(a, m)
	return m
}

func (Hex8) Mass(X []geometry3D.Point, m Material, lumped bool) *mat.Dense {
	var (
		r, s, t, w = HexGauss(2)
		M          = mat.NewDense(8, 8, nil)
	)
	for gp := range w {
		N, dN := hex8Shape(r[gp], s[gp], t[gp])
		_, detJ, _ := hex8Gradients(X, dN)
		fac := m.Density * w[gp] * detJ
		for a := 0; a < 8; a++ {
			for b := 0; b < 8; b++ {
				M.Set(a, b, M.At(a, b)+fac*N[a]*N[b])
			}
		}
	}
	if lumped {
		M = lump(M)
	}
	return expand3(M)
}

// ConcentrationTangent is d fint / d c_a = -int B^T D (swelling N_a m) dV
// with m = (1,1,1,0,0,0).
func (Hex8) ConcentrationTangent(es ElementState, m Material) *mat.Dense {
	var (
		r, s, t, w = HexGauss(2)
		D          = elasticity(m)
		T          = mat.NewDense(24, 8, nil)
		one        = mat.NewVecDense(6, []float64{1, 1, 1, 0, 0, 0})
		Dm         mat.VecDense
	)
	Dm.MulVec(D, one)
	for gp := range w {
		N, dN := hex8Shape(r[gp], s[gp], t[gp])
		dNdx, detJ, valid := hex8Gradients(es.X, dN)
		if !valid {
			continue
		}
		var (
			B   = bOperator(dNdx)
			btd mat.VecDense
		)
		btd.MulVec(B.T(), &Dm)
		for i := 0; i < 24; i++ {
			for a := 0; a < 8; a++ {
				T.Set(i, a, T.At(i, a)-w[gp]*detJ*m.Swelling*N[a]*btd.AtVec(i))
			}
		}
	}
	return T
}

// Transport evaluates diffusion and advection on the given geometry.
func (Hex8) Transport(X []geometry3D.Point, vel []float64, m Material) (M, K *mat.Dense) {
	var (
		r, s, t, w = HexGauss(2)
	)
	M, K = mat.NewDense(8, 8, nil), mat.NewDense(8, 8, nil)
	for gp := range w {
		N, dN := hex8Shape(r[gp], s[gp], t[gp])
		dNdx, detJ, valid := hex8Gradients(X, dN)
		if !valid {
			continue
		}
		var (
			fac = w[gp] * detJ
			v   [3]float64
		)
		if vel != nil {
			for a := 0; a < 8; a++ {
				for d := 0; d < 3; d++ {
					v[d] += N[a] * vel[3*a+d]
				}
			}
		}
		for a := 0; a < 8; a++ {
			for b := 0; b < 8; b++ {
				var grad, conv float64
				for d := 0; d < 3; d++ {
					grad += dNdx.At(d, a) * dNdx.At(d, b)
					conv += v[d] * dNdx.At(d, b)
				}
				M.Set(a, b, M.At(a, b)+fac*N[a]*N[b])
				K.Set(a, b, K.At(a, b)+fac*(m.Diffusivity*grad+N[a]*conv))
			}
		}
	}
	return
}
