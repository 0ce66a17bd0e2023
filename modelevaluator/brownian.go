package modelevaluator

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/restart"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

type BrownianParams struct {
	KT        float64
	Viscosity float64
	// time step of the random numbers, the structural step when zero
	TimeStep float64
	// negative seeds from the clock
	RandSeed int
	// clamp in units of the standard deviation, negative disables
	MaxRandForce float64
}

// Brownian adds thermal forces and the viscous drag of the surrounding
// fluid to the line elements.
type Brownian struct {
	base
	Dis    *discretization.Discretization
	Params BrownianParams

	numRandom int
	// random numbers per element, numRandom each
	random    *mat.Dense
	randStep  int
	haveRand  bool
	drag      *mat.VecDense
	fbrown    *mat.VecDense
	stiff     *utils.SparseOperator
	clockSeed int
}

func NewBrownian(gs *state.GlobalState, data *Data, dis *discretization.Discretization, params BrownianParams) *Brownian {
	return &Brownian{base: base{gs: gs, data: data}, Dis: dis, Params: params}
}

func (b *Brownian) Type() Type { return TypeBrownian }

func (b *Brownian) Setup() (err error) {
	var (
		p = &b.Params
		n = b.gs.DofRowMap().Len()
	)
	if p.KT < 0 || p.Viscosity < 0 {
		return utils.NewConfigError("Brownian.Setup", "kT and viscosity must be non-negative, got %v and %v", p.KT, p.Viscosity)
	}
	if p.TimeStep < 0 {
		return utils.NewConfigError("Brownian.Setup", "negative time step %v", p.TimeStep)
	}
	if b.Dis.NumDofPerNode != 3 {
		return utils.NewConfigError("Brownian.Setup", "%s has %d DOFs per node, need 3", b.Dis.Name, b.Dis.NumDofPerNode)
	}
	for _, e := range b.Dis.Elements {
		if e.Kernel != nil {
			b.numRandom = max(b.numRandom, e.Kernel.NumRandom())
		}
	}
	b.numRandom = b.comm().MaxAllInt(b.numRandom)
	if b.numRandom > 0 && len(b.Dis.Elements) > 0 {
		b.random = mat.NewDense(len(b.Dis.Elements), b.numRandom, nil)
	}
	if p.RandSeed < 0 {
		b.clockSeed = int(time.Now().UnixNano() % math.MaxInt32)
	}
	b.fbrown = utils.NewVec(n)
	b.drag = utils.NewVec(n)
	// translational friction 4 pi eta per unit length, lumped to the nodes
	for _, e := range b.Dis.Elements {
		if e.Kernel == nil || e.Kernel.NumRandom() == 0 {
			continue
		}
		X := b.Dis.RefCoords(e)
		zeta := 4 * math.Pi * p.Viscosity * X[1].Minus(X[0]).Norm() / 2
		for _, dof := range e.LM {
			b.drag.SetVec(dof, b.drag.AtVec(dof)+zeta)
		}
	}
	b.stiff = utils.NewSparseOperator(n, n, "browniandyn")
	for i := 0; i < n; i++ {
		if b.drag.AtVec(i) != 0 {
			b.stiff.Assemble(i, i, 0)
		}
	}
	return
}

// Sigma is the standard deviation of the random forces.
func (b *Brownian) Sigma() float64 {
	return math.Sqrt(2 * b.Params.KT / b.timeStep())
}

func (b *Brownian) timeStep() float64 {
	if b.Params.TimeStep > 0 {
		return b.Params.TimeStep
	}
	return b.gs.DeltaT()
}

// brownianStep counts the random number intervals up to t.
func (b *Brownian) brownianStep(t float64) int {
	return int(math.Floor(t/b.timeStep() + utils.DTTOL))
}

func (b *Brownian) seed(step int) uint64 {
	s := b.Params.RandSeed
	if s < 0 {
		s = b.clockSeed
	}
	return uint64((s + step) * (b.comm().Rank() + 1))
}

// drawClamped fills x with N(0, sigma^2) samples cut at clamp*sigma.
func drawClamped(x []float64, sigma, clamp float64, src rand.Source) {
	var (
		dist  = distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
		limit = clamp * sigma
	)
	for i := range x {
		v := dist.Rand()
		if clamp >= 0 && math.Abs(v) > limit {
			v = math.Copysign(limit, v)
		}
		x[i] = v
	}
}

// generate draws new random numbers when the Brownian step changed.
func (b *Brownian) generate(step int) {
	if b.random == nil || (b.haveRand && step == b.randStep) {
		return
	}
	seed := b.seed(step)
	drawClamped(b.random.RawMatrix().Data, b.Sigma(), b.Params.MaxRandForce, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b.randStep, b.haveRand = step, true
}

func (b *Brownian) Reset(x *mat.VecDense) {
	b.fbrown.Zero()
}

func (b *Brownian) evaluate(stiff bool) bool {
	var (
		V = b.gs.VelNp()
	)
	b.generate(b.brownianStep(b.gs.TimeNp()))
	b.fbrown.Zero()
	for i, z := range utils.VecData(b.drag) {
		if z != 0 {
			b.fbrown.SetVec(i, z*V.AtVec(i))
		}
	}
	if b.random != nil {
		for k, e := range b.Dis.Elements {
			if e.Kernel == nil || e.Kernel.NumRandom() == 0 {
				continue
			}
			X := b.Dis.RefCoords(e)
			zeta := 4 * math.Pi * b.Params.Viscosity * X[1].Minus(X[0]).Norm() / 2
			for a, dof := range e.LM {
				if a >= b.numRandom {
					break
				}
				b.fbrown.SetVec(dof, b.fbrown.AtVec(dof)-math.Sqrt(zeta)*b.random.At(k, a))
			}
		}
	}
	if stiff {
		vf := b.velocityFactor()
		for i, z := range utils.VecData(b.drag) {
			if z != 0 {
				b.stiff.Set(i, i, z*vf)
			}
		}
	}
	return true
}

func (b *Brownian) EvaluateForce() bool      { return b.evaluate(false) }
func (b *Brownian) EvaluateStiff() bool      { return b.evaluate(true) }
func (b *Brownian) EvaluateForceStiff() bool { return b.evaluate(true) }

func (b *Brownian) AssembleForce(w float64, f *mat.VecDense) {
	f.AddScaledVec(f, w, b.fbrown)
}

func (b *Brownian) AssembleJacobian(w float64, J *utils.SparseOperator) {
	J.Add(b.stiff, false, w, 1)
}

func (b *Brownian) UpdateStepState(w float64) {
	fso := b.gs.FstructOld()
	fso.AddScaledVec(fso, w, b.fbrown)
}

// RandomNumbers are the current numbers of element k.
func (b *Brownian) RandomNumbers(k int) []float64 {
	if b.random == nil {
		return nil
	}
	return b.random.RawRowView(k)
}

func (b *Brownian) WriteRestart(w *restart.Writer, forced bool) {
	w.WriteInt("browniandyn_randstep", b.randStep)
	w.WriteInt("browniandyn_clockseed", b.clockSeed)
}

// ReadRestart regenerates the numbers of the stored step from its seed.
func (b *Brownian) ReadRestart(r *restart.Reader) (err error) {
	if !r.HasInt("browniandyn_randstep") {
		return
	}
	var step int
	if step, err = r.ReadInt("browniandyn_randstep"); err != nil {
		return
	}
	if b.clockSeed, err = r.ReadInt("browniandyn_clockseed"); err != nil {
		return
	}
	b.haveRand = false
	b.generate(step)
	return
}

func (b *Brownian) RuntimeOutputStepState(rt *out.RuntimeOutput) {
	var fmax float64
	for _, v := range utils.VecData(b.fbrown) {
		fmax = math.Max(fmax, math.Abs(v))
	}
	rt.Append(b.Type().String(), out.Record{
		"randstep":  float64(b.randStep),
		"sigma":     b.Sigma(),
		"max_force": fmax,
	})
}
