package InputParameters

import (
	"sort"

	"github.com/notargets/gocsd/ssi"
	"github.com/notargets/gocsd/utils"
)

const (
	ProblemStructure = "Structure"
	ProblemSSI       = "Structure_Scalar_Interaction"
)

// YAML reads these as booleans or null, so no enum may use them as a value.
var reservedNames = map[string]bool{
	"True": true, "TRUE": true, "true": true,
	"False": true, "FALSE": true, "false": true,
	"null": true, "Null": true, "NULL": true,
}

var enums = map[string][]string{}

// RegisterEnum adds the valid values of an enumerated parameter. A reserved
// YAML word as value is a programming error and panics.
func RegisterEnum(param string, values ...string) {
	for _, v := range values {
		if reservedNames[v] {
			panic(utils.NewConfigError("InputParameters.RegisterEnum",
				"%s: %q is a reserved YAML word and cannot be an enum value", param, v))
		}
	}
	enums[param] = append(enums[param], values...)
}

// EnumParams returns the registered parameter names, sorted.
func EnumParams() (params []string) {
	for p := range enums {
		params = append(params, p)
	}
	sort.Strings(params)
	return
}

func EnumValues(param string) []string { return enums[param] }

// checkEnum accepts the empty string, which selects the default.
func checkEnum(param, value string) error {
	if value == "" {
		return nil
	}
	for _, v := range enums[param] {
		if v == value {
			return nil
		}
	}
	return utils.NewConfigError("InputParameters", "%s: invalid value %q, valid are %v", param, value, enums[param])
}

func init() {
	RegisterEnum("PROBLEMTYPE", ProblemStructure, ProblemSSI)
	RegisterEnum("DYNAMICTYPE", "GenAlpha", "OneStepTheta", "Statics", "CentrDiff",
		"ExplicitEuler", "AdamsBashforth2", "AdamsBashforth4")
	RegisterEnum("PREDICT", "ConstDis", "ConstVel", "ConstAcc", "TangDis", "ConstDisVelAcc")
	RegisterEnum("NORM_RESF", "Vague", "L2", "L1", "Linf", "Rms")
	RegisterEnum("NORM_DISP", "Vague", "L2", "L1", "Linf", "Rms")
	RegisterEnum("NORMCOMBI_RESFDISP", "And", "Or")
	RegisterEnum("DIVERCONT", "stop", "continue", "repeat_step", "halve_step", "adapt_step", "rand_adapt_step")
	RegisterEnum("DAMPING", "None", "Rayleigh")
	RegisterEnum("LINEAR_SOLVER", "Direct", "UMFPACK", "CG", "BiCGStab", "GMRES")
	RegisterEnum("FUNCT TYPE", "constant", "polynomial", "harmonic", "piecewise_linear")
	RegisterEnum("ELEMENT TYPE", "point1", "line2", "hex8", "hex20", "hex27", "wedge6", "wedge15")
	RegisterEnum("DIRECTION", "xyz", "refsurfnormal", "cursurfnormal")
	RegisterEnum("DIRICH TAG", "Dirichlet", "displacement", "velocity", "acceleration")
	RegisterEnum("COUPALGO", ssi.SchemeNames()...)
	RegisterEnum("FIELDCOUPLING", ssi.FieldCouplingNames()...)
	RegisterEnum("SCATRATIMINTTYPE", ssi.ScaTraTypeNames()...)
	RegisterEnum("EQUILIBRATION", utils.EquilibrationNames()...)
}
