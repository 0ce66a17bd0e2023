package InputParameters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/gocsd/utils"
)

// Parameters obtained from the YAML input file. Section names follow the
// upper case blocks of the classic input format.
type InputParameters struct {
	Title             string                  `json:"Title"`
	ProblemType       ProblemType             `json:"PROBLEM TYPE"`
	StructuralDynamic StructuralDynamic       `json:"STRUCTURAL DYNAMIC"`
	SSIControl        *SSIControl             `json:"SSI CONTROL,omitempty"`
	ScalarTransport   *ScalarTransportDynamic `json:"SCALAR TRANSPORT DYNAMIC,omitempty"`
	Brownian          *BrownianDynamics       `json:"BROWNIAN DYNAMICS,omitempty"`
	BeamPotential     *BeamPotential          `json:"BEAM POTENTIAL,omitempty"`
	Contact           *Contact                `json:"CONTACT,omitempty"`
	IO                IO                      `json:"IO"`
	Functions         []Function              `json:"FUNCTIONS,omitempty"`
	Materials         []Material              `json:"MATERIALS"`
	// explicit mesh, or DOMAIN for the box generator, or LINES for fibers
	NodeCoords []NodeCoord  `json:"NODE COORDS,omitempty"`
	Elements   []ElementDef `json:"ELEMENTS,omitempty"`
	Domain     *Domain      `json:"DOMAIN,omitempty"`
	Lines      []Line       `json:"LINES,omitempty"`

	NodeSets        map[string][]int `json:"DESIGN NODE SETS,omitempty"`
	Dirichlet       []Dirichlet      `json:"DESIGN POINT DIRICH CONDITIONS,omitempty"`
	TransportDirich []Dirichlet      `json:"DESIGN POINT TRANSPORT DIRICH CONDITIONS,omitempty"`
	Neumann         []Neumann        `json:"DESIGN POINT NEUMANN CONDITIONS,omitempty"`
	BodyLoads       []BodyLoad       `json:"DESIGN VOL NEUMANN CONDITIONS,omitempty"`
	SpringDashpot   []SpringDashpot  `json:"DESIGN SURF ROBIN SPRING DASHPOT CONDITIONS,omitempty"`
	Locsys          []Locsys         `json:"DESIGN POINT LOCSYS CONDITIONS,omitempty"`
}

type ProblemType struct {
	ProblemType string `json:"PROBLEMTYPE"`
	// seed of the process wide random numbers, negative uses the clock
	RandSeed int `json:"RANDSEED"`
}

type GenAlpha struct {
	// in [0,1] it overrides the explicit coefficients
	RhoInf float64 `json:"RHO_INF"`
	Beta   float64 `json:"BETA"`
	Gamma  float64 `json:"GAMMA"`
	AlphaM float64 `json:"ALPHA_M"`
	AlphaF float64 `json:"ALPHA_F"`
}

type OneStepTheta struct {
	Theta float64 `json:"THETA"`
}

type StructuralDynamic struct {
	DynamicType string  `json:"DYNAMICTYPE"`
	TimeInit    float64 `json:"TIMEINIT"`
	TimeStep    float64 `json:"TIMESTEP"`
	NumStep     int     `json:"NUMSTEP"`
	MaxTime     float64 `json:"MAXTIME"`
	Predict     string  `json:"PREDICT"`

	NormResF   string  `json:"NORM_RESF"`
	NormDisp   string  `json:"NORM_DISP"`
	NormCombi  string  `json:"NORMCOMBI_RESFDISP"`
	TolRes     float64 `json:"TOLRES"`
	TolDisp    float64 `json:"TOLDISP"`
	MaxIter    int     `json:"MAXITER"`
	DiverCont  string  `json:"DIVERCONT"`
	MaxDivCon  int     `json:"MAXDIVCONREFINEMENTLEVEL"`
	DivConFine int     `json:"DIVCONNUMFINESTEP"`

	RestartEvery      int  `json:"RESTARTEVERY"`
	ResultsEvery      int  `json:"RESULTSEVERY"`
	WriteFinalRestart bool `json:"WRITE_FINAL_RESTART"`

	Damping  string  `json:"DAMPING"`
	MDamp    float64 `json:"M_DAMP"`
	KDamp    float64 `json:"K_DAMP"`
	LumpMass bool    `json:"LUMPMASS"`

	LinearSolver string  `json:"LINEAR_SOLVER"`
	SolverTol    float64 `json:"SOLVER_TOL"`
	NumThreads   int     `json:"NUMTHREADS"`

	PrestressTime float64 `json:"PRESTRESSTIME"`

	GenAlpha     GenAlpha     `json:"GENALPHA"`
	OneStepTheta OneStepTheta `json:"ONESTEPTHETA"`
}

type Partitioned struct {
	ItMax    int     `json:"ITEMAX"`
	ConvTol  float64 `json:"CONVTOL"`
	Omega    float64 `json:"STARTOMEGA"`
	MaxOmega float64 `json:"MAXOMEGA"`
}

type Monolithic struct {
	AbsTolRes     float64 `json:"ABSTOLRES"`
	ConvTol       float64 `json:"CONVTOL"`
	ItMax         int     `json:"ITEMAX"`
	Equilibration string  `json:"EQUILIBRATION"`
	FDStep        float64 `json:"FDSTEP"`
}

type Manifold struct {
	AddManifold bool `json:"ADD_MANIFOLD"`
}

type Elch struct {
	// equilibrium concentration of the first order kinetics
	Equilibrium float64 `json:"EQUILIBRIUM"`
}

type SSIControl struct {
	CoupAlgo             string      `json:"COUPALGO"`
	FieldCoupling        string      `json:"FIELDCOUPLING"`
	ScatraTimIntType     string      `json:"SCATRATIMINTTYPE"`
	RestartFromStructure bool        `json:"RESTART_FROM_STRUCTURE"`
	Partitioned          Partitioned `json:"PARTITIONED"`
	Monolithic           Monolithic  `json:"MONOLITHIC"`
	Manifold             Manifold    `json:"MANIFOLD"`
	Elch                 Elch        `json:"ELCH"`
}

type ScalarTransportDynamic struct {
	Theta        float64 `json:"THETA"`
	AbsTolRes    float64 `json:"ABSTOLRES"`
	ItMax        int     `json:"ITEMAX"`
	InitialField float64 `json:"INITIALFIELD"`
	ReactionRate float64 `json:"REACTION_RATE"`
	Threshold    float64 `json:"THRESHOLD"`
}

type BrownianDynamics struct {
	KT           float64 `json:"KT"`
	Viscosity    float64 `json:"VISCOSITY"`
	TimeStep     float64 `json:"TIMESTEP"`
	RandSeed     int     `json:"RANDSEED"`
	MaxRandForce float64 `json:"MAXRANDFORCE"`
}

type LineCharge struct {
	Nodes   []int   `json:"NODES"`
	PotLaw  int     `json:"POTLAW"`
	Density float64 `json:"DENSITY"`
	Funct   int     `json:"FUNCT"`
}

type BeamPotential struct {
	Prefactors      []float64    `json:"POT_LAW_PREFACTOR"`
	Exponents       []float64    `json:"POT_LAW_EXPONENT"`
	CutoffRadius    float64      `json:"CUTOFF_RADIUS"`
	NumGP           int          `json:"NUM_GAUSSPOINTS"`
	ReductionLength float64      `json:"REGULARIZATION_LENGTH"`
	Conditions      []LineCharge `json:"LINE CHARGE CONDITIONS"`
}

type Contact struct {
	Point          [3]float64 `json:"POINT"`
	Normal         [3]float64 `json:"NORMAL"`
	PenaltyParam   float64    `json:"PENALTYPARAM"`
	MaxPenetration float64    `json:"MAXPENETRATION"`
	Nodes          []int      `json:"NODES"`
}

type MonitorDof struct {
	Node  int    `json:"NODE"`
	Dof   int    `json:"DOF"`
	Label string `json:"LABEL"`
}

type IO struct {
	Output         string       `json:"OUTPUT"`
	Verbose        bool         `json:"VERBOSE"`
	EveryIteration bool         `json:"EVERY_ITERATION"`
	Monitor        []MonitorDof `json:"MONITOR"`
}

type Function struct {
	Type         string    `json:"TYPE"`
	Value        float64   `json:"VALUE"`
	Coefficients []float64 `json:"COEFFICIENTS"`
	Amplitude    float64   `json:"AMPLITUDE"`
	Omega        float64   `json:"OMEGA"`
	Phase        float64   `json:"PHASE"`
	Offset       float64   `json:"OFFSET"`
	Times        []float64 `json:"TIMES"`
	Values       []float64 `json:"VALUES"`
}

type Material struct {
	ID          int     `json:"ID"`
	Youngs      float64 `json:"YOUNG"`
	Poisson     float64 `json:"NUE"`
	Density     float64 `json:"DENS"`
	Swelling    float64 `json:"SWELLING"`
	Diffusivity float64 `json:"DIFFUSIVITY"`
	Area        float64 `json:"CROSSAREA"`
	PointMass   float64 `json:"POINTMASS"`
}

type NodeCoord struct {
	ID int        `json:"ID"`
	X  [3]float64 `json:"COORD"`
}

type ElementDef struct {
	ID       int    `json:"ID"`
	Type     string `json:"TYPE"`
	Nodes    []int  `json:"NODES"`
	Material int    `json:"MAT"`
}

// Domain is one grid generator block.
type Domain struct {
	Bottom         [3]float64 `json:"LOWER_BOUND"`
	Top            [3]float64 `json:"UPPER_BOUND"`
	Intervals      [3]int     `json:"INTERVALS"`
	Rotation       [3]float64 `json:"ROTATION"`
	ElementType    string     `json:"ELEMENTS"`
	FirstNodeID    int        `json:"NODE_GID_START"`
	FirstElementID int        `json:"ELEMENT_GID_START"`
	Material       int        `json:"MAT"`
}

// Line is a straight fiber of two node elements.
type Line struct {
	Start          [3]float64 `json:"START"`
	End            [3]float64 `json:"END"`
	NumElements    int        `json:"NUMELE"`
	FirstNodeID    int        `json:"NODE_GID_START"`
	FirstElementID int        `json:"ELEMENT_GID_START"`
	Material       int        `json:"MAT"`
}

type Dirichlet struct {
	Name   string    `json:"NAME"`
	Nodes  []int     `json:"NODES"`
	Set    string    `json:"NODESET"`
	OnOff  []int     `json:"ONOFF"`
	Values []float64 `json:"VAL"`
	Funct  []int     `json:"FUNCT"`
	Kind   string    `json:"TAG"`
}

type Neumann struct {
	Nodes  []int     `json:"NODES"`
	Set    string    `json:"NODESET"`
	OnOff  []int     `json:"ONOFF"`
	Values []float64 `json:"VAL"`
	Funct  []int     `json:"FUNCT"`
}

type BodyLoad struct {
	Accel [3]float64 `json:"VAL"`
	Funct int        `json:"FUNCT"`
}

type SpringDashpot struct {
	Name       string     `json:"NAME"`
	Nodes      []int      `json:"NODES"`
	Set        string     `json:"NODESET"`
	Stiff      [3]float64 `json:"STIFF"`
	Visco      [3]float64 `json:"VISCO"`
	DispOffset [3]float64 `json:"DISPLOFFSET"`
	Direction  string     `json:"DIRECTION"`
	Area       float64    `json:"AREA"`
}

type Locsys struct {
	Nodes    []int      `json:"NODES"`
	Set      string     `json:"NODESET"`
	Rotation [3]float64 `json:"ROTANGLE"`
}

// NewInputParameters returns the defaults every input file starts from.
func NewInputParameters() (ip *InputParameters) {
	ip = &InputParameters{
		ProblemType: ProblemType{ProblemType: "Structure", RandSeed: -1},
		StructuralDynamic: StructuralDynamic{
			DynamicType:  "GenAlpha",
			TimeStep:     0.05,
			NumStep:      200,
			MaxTime:      5,
			Predict:      "ConstDis",
			NormResF:     "L2",
			NormDisp:     "L2",
			NormCombi:    "And",
			TolRes:       1e-8,
			TolDisp:      1e-8,
			MaxIter:      50,
			DiverCont:    "stop",
			MaxDivCon:    10,
			DivConFine:   4,
			RestartEvery: 1,
			ResultsEvery: 1,
			Damping:      "None",
			LinearSolver: "Direct",
			SolverTol:    1e-10,
			NumThreads:   1,
			GenAlpha:     GenAlpha{RhoInf: -1, Beta: 0.25, Gamma: 0.5, AlphaM: 0.5, AlphaF: 0.5},
			OneStepTheta: OneStepTheta{Theta: 0.5},
		},
	}
	return
}

// Parse reads the YAML input over the defaults.
func (ip *InputParameters) Parse(data []byte) (err error) {
	if err = yaml.Unmarshal(data, ip); err != nil {
		return utils.Wrap(utils.ErrConfig, "InputParameters.Parse", err)
	}
	if ip.SSIControl != nil {
		ip.SSIControl.applyDefaults()
	}
	if ip.ScalarTransport != nil {
		ip.ScalarTransport.applyDefaults()
	}
	return ip.Validate()
}

func (s *SSIControl) applyDefaults() {
	if s.CoupAlgo == "" {
		s.CoupAlgo = "ssi_IterStagg"
	}
	if s.FieldCoupling == "" {
		s.FieldCoupling = "volume_match"
	}
	if s.ScatraTimIntType == "" {
		s.ScatraTimIntType = "standard"
	}
	p := &s.Partitioned
	if p.ItMax == 0 {
		p.ItMax = 10
	}
	if p.ConvTol == 0 {
		p.ConvTol = 1e-6
	}
	if p.Omega == 0 {
		p.Omega = 1
	}
	m := &s.Monolithic
	if m.AbsTolRes == 0 {
		m.AbsTolRes = 1e-14
	}
	if m.ConvTol == 0 {
		m.ConvTol = 1e-6
	}
	if m.ItMax == 0 {
		m.ItMax = 10
	}
	if m.Equilibration == "" {
		m.Equilibration = "none"
	}
	if m.FDStep == 0 {
		m.FDStep = 1e-7
	}
}

func (s *ScalarTransportDynamic) applyDefaults() {
	if s.Theta == 0 {
		s.Theta = 0.5
	}
	if s.AbsTolRes == 0 {
		s.AbsTolRes = 1e-10
	}
	if s.ItMax == 0 {
		s.ItMax = 10
	}
	if s.Threshold == 0 {
		s.Threshold = 0.1
	}
}

// Validate checks enum values and the presence of a mesh. Numerical ranges
// are checked by the components the values end up in.
func (ip *InputParameters) Validate() (err error) {
	var (
		sd = &ip.StructuralDynamic
	)
	check := func(param, value string) {
		if err == nil {
			err = checkEnum(param, value)
		}
	}
	check("PROBLEMTYPE", ip.ProblemType.ProblemType)
	check("DYNAMICTYPE", sd.DynamicType)
	check("PREDICT", sd.Predict)
	check("NORM_RESF", sd.NormResF)
	check("NORM_DISP", sd.NormDisp)
	check("NORMCOMBI_RESFDISP", sd.NormCombi)
	check("DIVERCONT", sd.DiverCont)
	check("DAMPING", sd.Damping)
	check("LINEAR_SOLVER", sd.LinearSolver)
	for _, f := range ip.Functions {
		check("FUNCT TYPE", f.Type)
	}
	for _, e := range ip.Elements {
		check("ELEMENT TYPE", e.Type)
	}
	if ip.Domain != nil {
		check("ELEMENT TYPE", ip.Domain.ElementType)
	}
	for _, s := range ip.SpringDashpot {
		check("DIRECTION", s.Direction)
	}
	for _, d := range append(append([]Dirichlet(nil), ip.Dirichlet...), ip.TransportDirich...) {
		check("DIRICH TAG", d.Kind)
	}
	if err != nil {
		return
	}
	isSSI := ip.ProblemType.ProblemType == ProblemSSI
	switch {
	case isSSI && (ip.SSIControl == nil || ip.ScalarTransport == nil):
		return utils.NewConfigError("InputParameters.Validate", "%s needs the SSI CONTROL and SCALAR TRANSPORT DYNAMIC sections", ProblemSSI)
	case len(ip.NodeCoords) == 0 && ip.Domain == nil && len(ip.Lines) == 0:
		return utils.NewConfigError("InputParameters.Validate", "no mesh: give NODE COORDS and ELEMENTS, DOMAIN or LINES")
	case len(ip.Materials) == 0:
		return utils.NewConfigError("InputParameters.Validate", "no MATERIALS")
	}
	if isSSI {
		s := ip.SSIControl
		check("COUPALGO", s.CoupAlgo)
		check("FIELDCOUPLING", s.FieldCoupling)
		check("SCATRATIMINTTYPE", s.ScatraTimIntType)
		check("EQUILIBRATION", s.Monolithic.Equilibration)
		if err == nil && s.Manifold.AddManifold {
			err = utils.NewConfigError("InputParameters.Validate", "scalar transport on manifolds is not supported")
		}
	}
	return
}

// Material returns the material with the given id.
func (ip *InputParameters) Material(id int) (m Material, err error) {
	for _, m = range ip.Materials {
		if m.ID == id {
			return
		}
	}
	return m, utils.NewConfigError("InputParameters.Material", "material %d is not defined", id)
}

// ResolveNodes returns the explicit nodes of a condition or those of its node
// set.
func (ip *InputParameters) ResolveNodes(nodes []int, set string) ([]int, error) {
	if set == "" {
		return nodes, nil
	}
	ns, ok := ip.NodeSets[set]
	if !ok {
		return nil, utils.NewConfigError("InputParameters.ResolveNodes", "node set %q is not defined", set)
	}
	return append(append([]int(nil), nodes...), ns...), nil
}

func (ip *InputParameters) Print() {
	var (
		sd = ip.StructuralDynamic
	)
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%s]\t\t= Problem Type\n", ip.ProblemType.ProblemType)
	fmt.Printf("[%s]\t\t= Dynamic Type\n", sd.DynamicType)
	fmt.Printf("%8.5f\t\t= Time Step\n", sd.TimeStep)
	fmt.Printf("[%d]\t\t\t= Number of Steps\n", sd.NumStep)
	fmt.Printf("%8.5f\t\t= Max Time\n", sd.MaxTime)
	fmt.Printf("[%s]\t\t= Predictor\n", sd.Predict)
	fmt.Printf("[%s]\t\t\t= Divergence Control\n", sd.DiverCont)
	if sd.DynamicType == "GenAlpha" {
		fmt.Printf("%8.5f\t\t= Rho Inf\n", sd.GenAlpha.RhoInf)
	}
	if s := ip.SSIControl; s != nil {
		fmt.Printf("[%s]\t= Coupling Algorithm\n", s.CoupAlgo)
		fmt.Printf("[%s]\t\t= Field Coupling\n", s.FieldCoupling)
	}
	keys := make([]string, 0, len(ip.NodeSets))
	for k := range ip.NodeSets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("NodeSets[%s] = %v\n", key, ip.NodeSets[key])
	}
}

// PrintValidParameters lists every enumerated parameter with its values.
func PrintValidParameters() {
	for _, p := range EnumParams() {
		fmt.Printf("%-20s %s\n", p, strings.Join(enums[p], " | "))
	}
}
