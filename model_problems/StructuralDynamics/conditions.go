package StructuralDynamics

import (
	"fmt"

	"github.com/notargets/gocsd/InputParameters"
	"github.com/notargets/gocsd/dbc"
	"github.com/notargets/gocsd/discretization"
	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/modelevaluator"
	"github.com/notargets/gocsd/state"
	"github.com/notargets/gocsd/utils"
)

// BuildFunctions registers the FUNCTIONS section; FUNCT ids are 1-based in
// input order.
func BuildFunctions(fs []InputParameters.Function) (fm *utils.FunctionManager, err error) {
	fm = utils.NewFunctionManager()
	for i, f := range fs {
		var fn utils.Function
		switch f.Type {
		case "", "constant":
			fn = utils.Constant(f.Value)
		case "polynomial":
			fn = utils.Polynomial{C: f.Coefficients}
		case "harmonic":
			fn = utils.Harmonic{Amplitude: f.Amplitude, Omega: f.Omega, Phase: f.Phase, Offset: f.Offset}
		case "piecewise_linear":
			if fn, err = utils.NewPiecewiseLinear(f.Times, f.Values); err != nil {
				return
			}
		default:
			return nil, utils.NewConfigError("BuildFunctions", "FUNCT%d: unknown type %q", i+1, f.Type)
		}
		fm.Add(fn)
	}
	return
}

func onOff(flags []int) (b []bool) {
	b = make([]bool, len(flags))
	for i, f := range flags {
		b[i] = f != 0
	}
	return
}

// dirichletConditions converts DIRICH conditions of a field with ndof DOFs
// per node.
func dirichletConditions(ip *InputParameters.InputParameters, in []InputParameters.Dirichlet, ndof int) (conds []dbc.Condition, err error) {
	for i, d := range in {
		var (
			c = dbc.Condition{Name: d.Name, OnOff: onOff(d.OnOff), Values: d.Values, Funct: d.Funct}
		)
		if c.Name == "" {
			c.Name = fmt.Sprintf("DIRICH%d", i+1)
		}
		if len(c.OnOff) != ndof || len(c.Values) != ndof {
			return nil, utils.NewConfigError("dirichletConditions", "%s: ONOFF and VAL need %d entries", c.Name, ndof)
		}
		if c.Nodes, err = ip.ResolveNodes(d.Nodes, d.Set); err != nil {
			return
		}
		if c.Kind, err = dbc.NewKind(d.Kind); err != nil {
			return
		}
		conds = append(conds, c)
	}
	return
}

func locsysConditions(ip *InputParameters.InputParameters) (ls []dbc.Locsys, err error) {
	for _, l := range ip.Locsys {
		var nodes []int
		if nodes, err = ip.ResolveNodes(l.Nodes, l.Set); err != nil {
			return
		}
		ls = append(ls, dbc.NewLocsysFromRotationVector(nodes, l.Rotation))
	}
	return
}

// addEvaluators registers the structure and every optional model evaluator
// the input asks for.
func addEvaluators(ip *InputParameters.InputParameters, mgr *modelevaluator.Manager, gs *state.GlobalState,
	dis *discretization.Discretization, funcs *utils.FunctionManager) (err error) {
	var (
		sd   = ip.StructuralDynamic
		data = mgr.Data
		sp   = modelevaluator.StructureParams{LumpedMass: sd.LumpMass, DampK: sd.KDamp, DampM: sd.MDamp}
	)
	if sp.Damping, err = modelevaluator.NewDampingType(sd.Damping); err != nil {
		return
	}
	if err = mgr.Add(modelevaluator.NewStructure(gs, data, dis, sp)); err != nil {
		return
	}
	if len(ip.Neumann) > 0 || len(ip.BodyLoads) > 0 {
		var (
			points []modelevaluator.PointLoad
			bodies []modelevaluator.BodyLoad
		)
		for _, n := range ip.Neumann {
			pl := modelevaluator.PointLoad{OnOff: onOff(n.OnOff), Values: n.Values, Funct: n.Funct}
			if pl.Nodes, err = ip.ResolveNodes(n.Nodes, n.Set); err != nil {
				return
			}
			points = append(points, pl)
		}
		for _, b := range ip.BodyLoads {
			bodies = append(bodies, modelevaluator.BodyLoad{Accel: b.Accel, Funct: b.Funct})
		}
		if err = mgr.Add(modelevaluator.NewNeumann(gs, data, dis, funcs, points, bodies)); err != nil {
			return
		}
	}
	if len(ip.SpringDashpot) > 0 {
		var conds []modelevaluator.SpringDashpotCondition
		for _, s := range ip.SpringDashpot {
			c := modelevaluator.SpringDashpotCondition{Name: s.Name, Stiff: s.Stiff, Visco: s.Visco,
				DispOffset: s.DispOffset, Area: s.Area}
			if c.Nodes, err = ip.ResolveNodes(s.Nodes, s.Set); err != nil {
				return
			}
			if c.Direction, err = modelevaluator.NewSpringDirection(s.Direction); err != nil {
				return
			}
			conds = append(conds, c)
		}
		sdp := modelevaluator.NewSpringDashpot(gs, data, dis, conds)
		if sd.PrestressTime > 0 {
			sdp.Prestress, sdp.PrestressTime = true, sd.PrestressTime
		}
		if err = mgr.Add(sdp); err != nil {
			return
		}
	}
	if c := ip.Contact; c != nil {
		if err = mgr.Add(modelevaluator.NewContact(gs, data, dis, modelevaluator.ContactParams{
			Point:          geometry3D.Point(c.Point),
			Normal:         geometry3D.Point(c.Normal),
			PenaltyParam:   c.PenaltyParam,
			MaxPenetration: c.MaxPenetration,
			Nodes:          c.Nodes,
		})); err != nil {
			return
		}
	}
	if b := ip.Brownian; b != nil {
		seed := b.RandSeed
		if seed == 0 {
			seed = ip.ProblemType.RandSeed
		}
		if err = mgr.Add(modelevaluator.NewBrownian(gs, data, dis, modelevaluator.BrownianParams{
			KT:           b.KT,
			Viscosity:    b.Viscosity,
			TimeStep:     b.TimeStep,
			RandSeed:     seed,
			MaxRandForce: b.MaxRandForce,
		})); err != nil {
			return
		}
	}
	if b := ip.BeamPotential; b != nil {
		bp := modelevaluator.BeamPotentialParams{
			Prefactors:      b.Prefactors,
			Exponents:       b.Exponents,
			CutoffRadius:    b.CutoffRadius,
			NumGP:           b.NumGP,
			ReductionLength: b.ReductionLength,
		}
		for _, lc := range b.Conditions {
			bp.Conditions = append(bp.Conditions, modelevaluator.LineCharge{
				Nodes: lc.Nodes, PotLaw: lc.PotLaw, Density: lc.Density, Funct: lc.Funct})
		}
		if err = mgr.Add(modelevaluator.NewBeamPotential(gs, data, dis, funcs, bp)); err != nil {
			return
		}
	}
	return
}
