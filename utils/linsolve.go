package utils

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LinearSolver solves A x = b. x holds the initial guess on entry.
type LinearSolver interface {
	Solve(A *SparseOperator, x, b *mat.VecDense) error
	Name() string
	// Reset drops any cached factorization.
	Reset()
}

type SolverType uint8

const (
	SolverDirect SolverType = iota
	SolverCG
	SolverBiCGStab
	SolverGMRES
)

var solverNames = map[string]SolverType{
	"UMFPACK":  SolverDirect,
	"Direct":   SolverDirect,
	"CG":       SolverCG,
	"BiCGStab": SolverBiCGStab,
	"GMRES":    SolverGMRES,
}

func NewSolverType(label string) (SolverType, error) {
	if st, ok := solverNames[label]; ok {
		return st, nil
	}
	return SolverDirect, NewConfigError("NewSolverType", "unknown linear solver %q", label)
}

type SolverParams struct {
	Type    SolverType
	Tol     float64
	MaxIter int
	Restart int  // GMRES restart length
	Reuse   bool // keep a direct factorization until Reset
}

func NewLinearSolver(sp SolverParams) LinearSolver {
	if sp.Tol == 0 {
		sp.Tol = 1e-10
	}
	if sp.MaxIter == 0 {
		sp.MaxIter = 1000
	}
	if sp.Restart == 0 {
		sp.Restart = 50
	}
	switch sp.Type {
	case SolverCG:
		return &CGSolver{Tol: sp.Tol, MaxIter: sp.MaxIter}
	case SolverBiCGStab:
		return &BiCGStabSolver{Tol: sp.Tol, MaxIter: sp.MaxIter}
	case SolverGMRES:
		return &GMRESSolver{Tol: sp.Tol, MaxIter: sp.MaxIter, Restart: sp.Restart}
	}
	return &DirectSolver{Reuse: sp.Reuse}
}

// DirectSolver uses a dense LU factorization.
type DirectSolver struct {
	Reuse bool
	lu    *mat.LU
}

func (s *DirectSolver) Name() string { return "Direct" }
func (s *DirectSolver) Reset()       { s.lu = nil }

func (s *DirectSolver) Solve(A *SparseOperator, x, b *mat.VecDense) (err error) {
	if s.lu == nil || !s.Reuse {
		s.lu = &mat.LU{}
		s.lu.Factorize(A.ToDense())
	}
	if err = s.lu.SolveVecTo(x, false, b); err != nil {
		s.lu = nil
		return Wrap(ErrExternal, "DirectSolver.Solve", err)
	}
	return
}

// jacobi returns the inverse diagonal of A, 1 where the diagonal vanishes.
func jacobi(A *SparseOperator) (d []float64) {
	var (
		n, _ = A.Dims()
	)
	d = make([]float64, n)
	for i := range d {
		d[i] = 1
	}
	A.DoNonZero(func(i, j int, v float64) {
		if i == j && v != 0 {
			d[i] = 1 / v
		}
	})
	return
}

func matVec(A *SparseOperator, dst, x []float64) {
	var (
		dv = mat.NewVecDense(len(dst), dst)
		xv = mat.NewVecDense(len(x), x)
	)
	A.MulVec(dv, false, xv)
}

func residual(A *SparseOperator, r, x, b []float64) {
	matVec(A, r, x)
	floats.SubTo(r, b, r)
}

// CGSolver is the Jacobi preconditioned conjugate gradient method for
// symmetric positive definite systems.
type CGSolver struct {
	Tol      float64
	MaxIter  int
	Iters    int
	Residual float64
}

func (s *CGSolver) Name() string { return "CG" }
func (s *CGSolver) Reset()       {}

func (s *CGSolver) Solve(A *SparseOperator, xv, bv *mat.VecDense) error {
	var (
		n         = xv.Len()
		x, b      = VecData(xv), VecData(bv)
		r         = make([]float64, n)
		z         = make([]float64, n)
		p         = make([]float64, n)
		Ap        = make([]float64, n)
		dinv      = jacobi(A)
		bnorm     = floats.Norm(b, 2)
		rho, prev float64
	)
	if bnorm == 0 {
		bnorm = 1
	}
	residual(A, r, x, b)
	for s.Iters = 0; s.Iters < s.MaxIter; s.Iters++ {
		if s.Residual = floats.Norm(r, 2) / bnorm; s.Residual <= s.Tol {
			return nil
		}
		floats.MulTo(z, dinv, r) // z = M^-1 r
		rho = floats.Dot(r, z)
		if s.Iters == 0 {
			copy(p, z)
		} else {
			beta := rho / prev
			floats.AddScaledTo(p, z, beta, p) // p = z + β p
		}
		matVec(A, Ap, p)
		pAp := floats.Dot(p, Ap)
		if pAp == 0 {
			return NewExternalError("CGSolver.Solve", "breakdown, p'Ap = 0")
		}
		alpha := rho / pAp
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, Ap)
		prev = rho
	}
	if s.Residual = floats.Norm(r, 2) / bnorm; s.Residual <= s.Tol {
		return nil
	}
	return NewExternalError("CGSolver.Solve", "no convergence after %d iterations, residual %g", s.MaxIter, s.Residual)
}

// BiCGStabSolver handles non-symmetric systems.
type BiCGStabSolver struct {
	Tol      float64
	MaxIter  int
	Iters    int
	Residual float64
}

func (s *BiCGStabSolver) Name() string { return "BiCGStab" }
func (s *BiCGStabSolver) Reset()       {}

func (s *BiCGStabSolver) Solve(A *SparseOperator, xv, bv *mat.VecDense) error {
	var (
		n            = xv.Len()
		x, b         = VecData(xv), VecData(bv)
		r            = make([]float64, n)
		rt           = make([]float64, n)
		p            = make([]float64, n)
		v            = make([]float64, n)
		t            = make([]float64, n)
		phat         = make([]float64, n)
		shat         = make([]float64, n)
		dinv         = jacobi(A)
		bnorm        = floats.Norm(b, 2)
		rho, rhoPrev float64
		alpha, omega = 1.0, 1.0
		eps          = 1e-300
	)
	if bnorm == 0 {
		bnorm = 1
	}
	residual(A, r, x, b)
	copy(rt, r)
	for s.Iters = 0; s.Iters < s.MaxIter; s.Iters++ {
		if s.Residual = floats.Norm(r, 2) / bnorm; s.Residual <= s.Tol {
			return nil
		}
		rho = floats.Dot(rt, r)
		if math.Abs(rho) < eps {
			return NewExternalError("BiCGStabSolver.Solve", "rho breakdown")
		}
		if s.Iters == 0 {
			copy(p, r)
		} else {
			beta := (rho / rhoPrev) * (alpha / omega)
			floats.AddScaled(p, -omega, v) // p -= ω v
			floats.Scale(beta, p)          // p *= β
			floats.Add(p, r)               // p += r
		}
		floats.MulTo(phat, dinv, p)
		matVec(A, v, phat)
		alpha = rho / floats.Dot(rt, v)
		floats.AddScaled(r, -alpha, v) // r is now s
		if floats.Norm(r, 2)/bnorm <= s.Tol {
			floats.AddScaled(x, alpha, phat)
			s.Residual = floats.Norm(r, 2) / bnorm
			return nil
		}
		floats.MulTo(shat, dinv, r)
		matVec(A, t, shat)
		tt := floats.Dot(t, t)
		if tt < eps {
			return NewExternalError("BiCGStabSolver.Solve", "omega breakdown")
		}
		omega = floats.Dot(t, r) / tt
		floats.AddScaled(x, alpha, phat)
		floats.AddScaled(x, omega, shat)
		floats.AddScaled(r, -omega, t)
		rhoPrev = rho
	}
	return NewExternalError("BiCGStabSolver.Solve", "no convergence after %d iterations, residual %g", s.MaxIter, s.Residual)
}
