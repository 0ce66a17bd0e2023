package utils

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// GMRESSolver is restarted GMRES with right Jacobi preconditioning. The small
// least squares problem is kept triangular with Givens rotations.
type GMRESSolver struct {
	Tol      float64
	MaxIter  int
	Restart  int
	Iters    int
	Residual float64
}

func (s *GMRESSolver) Name() string { return "GMRES" }
func (s *GMRESSolver) Reset()       {}

func (s *GMRESSolver) Solve(A *SparseOperator, xv, bv *mat.VecDense) error {
	var (
		n     = xv.Len()
		m     = s.Restart
		x, b  = VecData(xv), VecData(bv)
		r     = make([]float64, n)
		w     = make([]float64, n)
		z     = make([]float64, n)
		dinv  = jacobi(A)
		bnorm = floats.Norm(b, 2)
		V     = make([][]float64, m+1)
		H     = make([][]float64, m+1)
		cs    = make([]float64, m)
		sn    = make([]float64, m)
		g     = make([]float64, m+1)
	)
	if bnorm == 0 {
		bnorm = 1
	}
	for i := range V {
		V[i] = make([]float64, n)
		H[i] = make([]float64, m)
	}
	s.Iters = 0
	for s.Iters < s.MaxIter {
		residual(A, r, x, b)
		beta := floats.Norm(r, 2)
		if s.Residual = beta / bnorm; s.Residual <= s.Tol {
			return nil
		}
		floats.ScaleTo(V[0], 1/beta, r)
		for i := range g {
			g[i] = 0
		}
		g[0] = beta
		var j int
		for j = 0; j < m && s.Iters < s.MaxIter; j++ {
			s.Iters++
			floats.MulTo(z, dinv, V[j])
			matVec(A, w, z)
			for i := 0; i <= j; i++ {
				H[i][j] = floats.Dot(w, V[i])
				floats.AddScaled(w, -H[i][j], V[i])
			}
			H[j+1][j] = floats.Norm(w, 2)
			if H[j+1][j] > 0 {
				floats.ScaleTo(V[j+1], 1/H[j+1][j], w)
			}
			for i := 0; i < j; i++ {
				applyGivens(cs[i], sn[i], &H[i][j], &H[i+1][j])
			}
			cs[j], sn[j] = givens(H[j][j], H[j+1][j])
			applyGivens(cs[j], sn[j], &H[j][j], &H[j+1][j])
			applyGivens(cs[j], sn[j], &g[j], &g[j+1])
			if s.Residual = math.Abs(g[j+1]) / bnorm; s.Residual <= s.Tol {
				j++
				break
			}
		}
		// back substitution on the triangular H
		y := make([]float64, j)
		for i := j - 1; i >= 0; i-- {
			y[i] = g[i]
			for k := i + 1; k < j; k++ {
				y[i] -= H[i][k] * y[k]
			}
			if H[i][i] == 0 {
				return NewExternalError("GMRESSolver.Solve", "singular Hessenberg matrix")
			}
			y[i] /= H[i][i]
		}
		for i := range z {
			z[i] = 0
		}
		for i := 0; i < j; i++ {
			floats.AddScaled(z, y[i], V[i])
		}
		floats.Mul(z, dinv)
		floats.Add(x, z)
		if s.Residual <= s.Tol {
			return nil
		}
	}
	residual(A, r, x, b)
	if s.Residual = floats.Norm(r, 2) / bnorm; s.Residual <= s.Tol {
		return nil
	}
	return NewExternalError("GMRESSolver.Solve", "no convergence after %d iterations, residual %g", s.MaxIter, s.Residual)
}

func givens(a, b float64) (c, s float64) {
	if b == 0 {
		return 1, 0
	}
	r := math.Hypot(a, b)
	return a / r, b / r
}

func applyGivens(c, s float64, a, b *float64) {
	t := c*(*a) + s*(*b)
	*b = -s*(*a) + c*(*b)
	*a = t
}
