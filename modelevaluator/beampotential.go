package modelevaluator

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/out"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

// LineCharge loads the beam elements whose first node is in Nodes with a
// charge density, interacting through potential law PotLaw (1-based).
type LineCharge struct {
	Nodes   []int
	PotLaw  int
	Density float64
	Funct   int
}

type BeamPotentialParams struct {
	// Phi(r) = sum_i Prefactors[i] r^-Exponents[i]
	Prefactors []float64
	Exponents  []float64
	// 0 means every pair interacts, otherwise pairs farther apart are skipped
	CutoffRadius float64
	NumGP        int
	// end regularisation length of the potential, 0 disables it
	ReductionLength float64
	Conditions      []LineCharge
}

type beamPair struct {
	a, b *discretization.Element
	// (condition of a, condition of b) with the same potential law
	combos [][2]int
}

// BeamPotential evaluates power law potentials between the line elements
// of different line charge conditions.
type BeamPotential struct {
	base
	Dis    *discretization.Discretization
	Funcs  *utils.FunctionManager
	Params BeamPotentialParams

	beams   []*discretization.Element
	eleCond map[int][]int
	// arc length from each element end to the fiber end beyond it
	priorLength  map[int][2]float64
	pairs        []beamPair
	pairsChanged bool

	fpot  *mat.VecDense
	stiff *utils.SparseOperator
	// per pair and Gauss point of beam 1: force and moment
	gpForce, gpMoment map[[3]int]geometry3D.Point
	Energy            float64
}

func NewBeamPotential(gs *state.GlobalState, data *Data, dis *discretization.Discretization,
	funcs *utils.FunctionManager, params BeamPotentialParams) *BeamPotential {
	return &BeamPotential{base: base{gs: gs, data: data}, Dis: dis, Funcs: funcs, Params: params}
}

func (bp *BeamPotential) Type() Type { return TypeBeamPotential }

func (bp *BeamPotential) Setup() (err error) {
	var (
		p = &bp.Params
		n = bp.gs.DofRowMap().Len()
	)
	if len(p.Prefactors) != len(p.Exponents) || len(p.Prefactors) == 0 {
		return utils.NewConfigError("BeamPotential.Setup", "%d prefactors for %d exponents",
			len(p.Prefactors), len(p.Exponents))
	}
	if p.NumGP <= 0 {
		p.NumGP = 10
	}
	nodeConds := make(map[int][]int)
	for ci, c := range p.Conditions {
		if c.PotLaw < 1 || c.PotLaw > len(p.Prefactors) {
			return utils.NewConfigError("BeamPotential.Setup", "line charge %d: potential law %d not defined", ci, c.PotLaw)
		}
		if _, err = bp.Funcs.Get(c.Funct); err != nil {
			return
		}
		for _, nid := range c.Nodes {
			nodeConds[nid] = append(nodeConds[nid], ci)
		}
	}
	bp.beams = bp.beams[:0]
	bp.eleCond = make(map[int][]int)
	for _, e := range bp.Dis.Elements {
		if len(e.NodeIDs) != 2 || e.Kernel == nil || e.Kernel.NumNodes() != 2 {
			continue
		}
		bp.beams = append(bp.beams, e)
		bp.eleCond[e.ID] = nodeConds[e.NodeIDs[0]]
	}
	if p.ReductionLength > 0 {
		if err = bp.lengthToEdge(); err != nil {
			return
		}
	}
	bp.fpot = utils.NewVec(n)
	bp.stiff = utils.NewSparseOperator(n, n, "beam potential")
	bp.gpForce = make(map[[3]int]geometry3D.Point)
	bp.gpMoment = make(map[[3]int]geometry3D.Point)
	bp.findPairs()
	return
}

func (bp *BeamPotential) refLength(e *discretization.Element) float64 {
	X := bp.Dis.RefCoords(e)
	return X[1].Minus(X[0]).Norm()
}

// lengthToEdge walks every fiber from each element end to the fiber end.
func (bp *BeamPotential) lengthToEdge() error {
	var (
		nodeEles = make(map[int][]*discretization.Element)
	)
	for _, e := range bp.beams {
		for _, nid := range e.NodeIDs {
			nodeEles[nid] = append(nodeEles[nid], e)
		}
	}
	walk := func(start *discretization.Element, node int) (length float64, err error) {
		var (
			cur     = start
			visited = map[int]bool{start.ID: true}
		)
		for {
			eles := nodeEles[node]
			if len(eles) > 2 {
				return 0, utils.NewRuntimeError("BeamPotential", "more than two beam elements connected via a single node (node %d)", node)
			}
			if len(eles) < 2 {
				return
			}
			next := eles[0]
			if next.ID == cur.ID {
				next = eles[1]
			}
			if visited[next.ID] {
				// closed fiber
				return
			}
			visited[next.ID] = true
			length += bp.refLength(next)
			if next.NodeIDs[0] != node {
				node = next.NodeIDs[0]
			} else {
				node = next.NodeIDs[1]
			}
			cur = next
		}
	}
	bp.priorLength = make(map[int][2]float64, len(bp.beams))
	for _, e := range bp.beams {
		left, err := walk(e, e.NodeIDs[0])
		if err != nil {
			return err
		}
		right, err := walk(e, e.NodeIDs[1])
		if err != nil {
			return err
		}
		bp.priorLength[e.ID] = [2]float64{left, right}
	}
	return nil
}

// PriorLength returns the arc lengths beyond both ends of an element.
func (bp *BeamPotential) PriorLength(eleID int) [2]float64 { return bp.priorLength[eleID] }

func (bp *BeamPotential) currentBox(e *discretization.Element, D *mat.VecDense) *geometry3D.BoundingBox {
	return geometry3D.NewBoundingBox(bp.Dis.CurrentCoords(e, D))
}

// findPairs builds the nearby element pairs with id(a) < id(b) by binning
// the current configuration.
func (bp *BeamPotential) findPairs() {
	var (
		D      = bp.gs.DisNp()
		cutoff = bp.Params.CutoffRadius
		byID   = make(map[int]*discretization.Element, len(bp.beams))
		index  = make(map[int]int, len(bp.beams))
		old    = bp.pairs
		bins   *geometry3D.Bins
		boxes  = make([]*geometry3D.BoundingBox, len(bp.beams))
	)
	bp.pairs = nil
	if len(bp.beams) == 0 {
		return
	}
	for i, e := range bp.beams {
		byID[e.ID], index[e.ID] = e, i
		boxes[i] = bp.currentBox(e, D).Pad(0.5 * cutoff)
	}
	if cutoff > 0 {
		all := boxes[0].Pad(0)
		for _, b := range boxes[1:] {
			all.Grow(b)
		}
		bins = geometry3D.NewBins(all, math.Max(cutoff, utils.NODETOL))
		for i, e := range bp.beams {
			bins.Insert(e.ID, boxes[i])
		}
	}
	for i, a := range bp.beams {
		var candidates []int
		if bins != nil {
			candidates = bins.Candidates(boxes[i])
		} else {
			for _, e := range bp.beams {
				candidates = append(candidates, e.ID)
			}
			sort.Ints(candidates)
		}
		for _, bid := range candidates {
			if a.ID >= bid {
				continue
			}
			b := byID[bid]
			if bins != nil && !boxes[i].Overlaps(boxes[index[bid]]) {
				continue
			}
			if sharesNode(a, b) {
				continue
			}
			if combos := bp.combos(a, b); len(combos) > 0 {
				bp.pairs = append(bp.pairs, beamPair{a: a, b: b, combos: combos})
			}
		}
	}
	bp.pairsChanged = !samePairs(old, bp.pairs)
}

// combos lists the condition pairs of two elements that interact: different
// conditions with the same potential law.
func (bp *BeamPotential) combos(a, b *discretization.Element) (cs [][2]int) {
	for _, ca := range bp.eleCond[a.ID] {
		for _, cb := range bp.eleCond[b.ID] {
			if ca != cb && bp.Params.Conditions[ca].PotLaw == bp.Params.Conditions[cb].PotLaw {
				cs = append(cs, [2]int{ca, cb})
			}
		}
	}
	return
}

func sharesNode(a, b *discretization.Element) bool {
	for _, na := range a.NodeIDs {
		for _, nb := range b.NodeIDs {
			if na == nb {
				return true
			}
		}
	}
	return false
}

func samePairs(a, b []beamPair) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].a.ID != b[i].a.ID || a[i].b.ID != b[i].b.ID {
			return false
		}
	}
	return true
}

func (bp *BeamPotential) NumPairs() int { return len(bp.pairs) }

// reduction scales the potential near fiber ends.
func (bp *BeamPotential) reduction(e *discretization.Element, xi float64) float64 {
	rl := bp.Params.ReductionLength
	if rl <= 0 {
		return 1
	}
	var (
		L     = bp.refLength(e)
		prior = bp.priorLength[e.ID]
		s     = 0.5 * (1 + xi) * L
		dist  = math.Min(prior[0]+s, prior[1]+L-s)
	)
	if dist >= rl {
		return 1
	}
	return dist / rl
}

// potential returns Phi and its first two derivatives for law l.
func (bp *BeamPotential) potential(l int, r float64) (phi, dphi, ddphi float64) {
	var (
		k = bp.Params.Prefactors[l]
		m = bp.Params.Exponents[l]
	)
	phi = k * utils.POWF(r, -m)
	dphi = -m * phi / r
	ddphi = m * (m + 1) * phi / (r * r)
	return
}

func (bp *BeamPotential) evaluate(stiff bool) bool {
	var (
		D      = bp.gs.DisNp()
		t      = bp.gs.TimeNp()
		xi, w  = discretization.GaussLegendre(bp.Params.NumGP)
		cutoff = bp.Params.CutoffRadius
	)
	bp.fpot.Zero()
	if stiff {
		bp.stiff.Zero()
	}
	bp.Energy = 0
	for k := range bp.gpForce {
		delete(bp.gpForce, k)
		delete(bp.gpMoment, k)
	}
	for _, pr := range bp.pairs {
		var (
			xa, xb = bp.Dis.CurrentCoords(pr.a, D), bp.Dis.CurrentCoords(pr.b, D)
			Ja, Jb = 0.5 * bp.refLength(pr.a), 0.5 * bp.refLength(pr.b)
			mid    = xa[0].Plus(xa[1]).Scale(0.5)
			lm     = append(append([]int{}, pr.a.LM...), pr.b.LM...)
			fe     = make([]float64, 12)
			Ke     *mat.Dense
		)
		if stiff {
			Ke = mat.NewDense(12, 12, nil)
		}
		for _, cc := range pr.combos {
			var (
				c1, c2 = bp.Params.Conditions[cc[0]], bp.Params.Conditions[cc[1]]
				f1, _  = bp.Funcs.Get(c1.Funct)
				f2, _  = bp.Funcs.Get(c2.Funct)
				q      = c1.Density * f1.Evaluate(t, 0) * c2.Density * f2.Evaluate(t, 0)
				law    = c1.PotLaw - 1
			)
			for g := range xi {
				var (
					Na = [2]float64{0.5 * (1 - xi[g]), 0.5 * (1 + xi[g])}
					x1 = xa[0].Scale(Na[0]).Plus(xa[1].Scale(Na[1]))
					F  geometry3D.Point
				)
				for h := range xi {
					var (
						Nb = [2]float64{0.5 * (1 - xi[h]), 0.5 * (1 + xi[h])}
						x2 = xb[0].Scale(Nb[0]).Plus(xb[1].Scale(Nb[1]))
						d  = x1.Minus(x2)
						r  = d.Norm()
					)
					if r == 0 || (cutoff > 0 && r > cutoff) {
						continue
					}
					var (
						c               = w[g] * w[h] * Ja * Jb * q * bp.reduction(pr.a, xi[g]) * bp.reduction(pr.b, xi[h])
						phi, dphi, ddph = bp.potential(law, r)
						e               = d.Scale(1 / r)
						N               = [4]float64{Na[0], Na[1], -Nb[0], -Nb[1]}
					)
					bp.Energy += c * phi
					for node := 0; node < 4; node++ {
						for i := 0; i < 3; i++ {
							fe[3*node+i] += N[node] * c * dphi * e[i]
						}
					}
					F = F.Minus(e.Scale(c * dphi))
					if !stiff {
						continue
					}
					var H [3][3]float64
					for i := 0; i < 3; i++ {
						for j := 0; j < 3; j++ {
							H[i][j] = c * (ddph - dphi/r) * e[i] * e[j]
						}
						H[i][i] += c * dphi / r
					}
					for p := 0; p < 4; p++ {
						for o := 0; o < 4; o++ {
							s := N[p] * N[o]
							for i := 0; i < 3; i++ {
								for j := 0; j < 3; j++ {
									Ke.Set(3*p+i, 3*o+j, Ke.At(3*p+i, 3*o+j)+s*H[i][j])
								}
							}
						}
					}
				}
				key := [3]int{pr.a.ID, pr.b.ID, g}
				bp.gpForce[key] = bp.gpForce[key].Plus(F)
				bp.gpMoment[key] = bp.gpMoment[key].Plus(x1.Minus(mid).Cross(F))
			}
		}
		utils.AssembleVector(bp.fpot, lm, fe, 1)
		if stiff {
			bp.stiff.AssembleElement(lm, Ke, 1)
		}
	}
	return true
}

func (bp *BeamPotential) Reset(x *mat.VecDense) {}

func (bp *BeamPotential) EvaluateForce() bool      { return bp.evaluate(false) }
func (bp *BeamPotential) EvaluateStiff() bool      { return bp.evaluate(true) }
func (bp *BeamPotential) EvaluateForceStiff() bool { return bp.evaluate(true) }

func (bp *BeamPotential) AssembleForce(w float64, f *mat.VecDense) {
	f.AddScaledVec(f, w, bp.fpot)
}

func (bp *BeamPotential) AssembleJacobian(w float64, J *utils.SparseOperator) {
	if bp.pairsChanged && J.Filled() {
		J.UnComplete()
	}
	bp.pairsChanged = false
	J.Add(bp.stiff, false, w, 1)
}

func (bp *BeamPotential) UpdateStepState(w float64) {
	fso := bp.gs.FstructOld()
	fso.AddScaledVec(fso, w, bp.fpot)
}

// PostUpdate rebuilds the pairs for the next step from the converged
// configuration.
func (bp *BeamPotential) PostUpdate() {
	old := bp.stiff
	bp.findPairs()
	if bp.pairsChanged {
		n, _ := old.Dims()
		bp.stiff = utils.NewSparseOperator(n, n, "beam potential")
	}
}

func (bp *BeamPotential) RuntimeOutputStepState(rt *out.RuntimeOutput) {
	keys := make([][3]int, 0, len(bp.gpForce))
	for k := range bp.gpForce {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		for d := 0; d < 3; d++ {
			if keys[i][d] != keys[j][d] {
				return keys[i][d] < keys[j][d]
			}
		}
		return false
	})
	for _, k := range keys {
		f, m := bp.gpForce[k], bp.gpMoment[k]
		rt.Append(bp.Type().String(), out.Record{
			"uid_0_beam_1_gid": float64(k[0]),
			"uid_1_beam_2_gid": float64(k[1]),
			"uid_2_gp_id":      float64(k[2]),
			"force_x":          f[0],
			"force_y":          f[1],
			"force_z":          f[2],
			"moment_x":         m[0],
			"moment_y":         m[1],
			"moment_z":         m[2],
		})
	}
}
