// Package ssi couples the structure with a scalar transport field, either
// partitioned with an outer iteration between the fields or monolithic with
// one block Newton system.
package ssi

import (
	"github.com/notargets/gocsd/utils"
)

type Scheme uint8

const (
	OneWayScatraToSolid Scheme = iota
	OneWaySolidToScatra
	IterStagg
	IterStaggFixedRelScatraToSolid
	IterStaggFixedRelSolidToScatra
	IterStaggAitkenScatraToSolid
	IterStaggAitkenSolidToScatra
	Monolithic
)

var schemeNames = []string{
	"ssi_OneWay_ScatraToSolid",
	"ssi_OneWay_SolidToScatra",
	"ssi_IterStagg",
	"ssi_IterStaggFixedRel_ScatraToSolid",
	"ssi_IterStaggFixedRel_SolidToScatra",
	"ssi_IterStaggAitken_ScatraToSolid",
	"ssi_IterStaggAitken_SolidToScatra",
	"ssi_Monolithic",
}

func NewScheme(label string) (Scheme, error) {
	for i, n := range schemeNames {
		if n == label {
			return Scheme(i), nil
		}
	}
	return IterStagg, utils.NewConfigError("ssi.NewScheme", "unknown COUPALGO %q", label)
}

func (s Scheme) String() string { return schemeNames[s] }

func SchemeNames() []string { return schemeNames }

// relaxed reports whether the scheme relaxes the field passed on, and
// whether the relaxation factor is adapted.
func (s Scheme) relaxed() (relax, aitken bool) {
	switch s {
	case IterStaggFixedRelScatraToSolid, IterStaggFixedRelSolidToScatra:
		return true, false
	case IterStaggAitkenScatraToSolid, IterStaggAitkenSolidToScatra:
		return true, true
	}
	return false, false
}

// scatraFirst reports whether the outer iteration starts with the scalar
// field.
func (s Scheme) scatraFirst() bool {
	switch s {
	case OneWayScatraToSolid, IterStaggFixedRelScatraToSolid, IterStaggAitkenScatraToSolid:
		return true
	}
	return false
}

type FieldCoupling uint8

const (
	VolumeMatch FieldCoupling = iota
	VolumeNonMatch
	BoundaryNonMatch
	VolumeBoundaryMatch
)

var couplingNames = []string{"volume_match", "volume_nonmatch", "boundary_nonmatch", "volumeboundary_match"}

func NewFieldCoupling(label string) (FieldCoupling, error) {
	for i, n := range couplingNames {
		if n == label {
			return FieldCoupling(i), nil
		}
	}
	return VolumeMatch, utils.NewConfigError("ssi.NewFieldCoupling", "unknown FIELDCOUPLING %q", label)
}

func (f FieldCoupling) String() string { return couplingNames[f] }

func FieldCouplingNames() []string { return couplingNames }

// ScaTraType selects the reaction term of the scalar field.
type ScaTraType uint8

const (
	ScaTraStandard ScaTraType = iota
	ScaTraCardiacMonodomain
	ScaTraElch
)

var scatraTypeNames = []string{"standard", "cardiac_monodomain", "elch"}

func NewScaTraType(label string) (ScaTraType, error) {
	for i, n := range scatraTypeNames {
		if n == label {
			return ScaTraType(i), nil
		}
	}
	return ScaTraStandard, utils.NewConfigError("ssi.NewScaTraType", "unknown SCATRATIMINTTYPE %q", label)
}

func (t ScaTraType) String() string { return scatraTypeNames[t] }

func ScaTraTypeNames() []string { return scatraTypeNames }

// Node set names of the interface conditions.
const (
	CondInterfaceMeshtying = "ssi_interface_meshtying"
	CondInterfaceContact   = "SSIInterfaceContact"
	CondS2IKinetics        = "S2IKinetics"
	CondCoupling           = "SSICoupling"
)

// Params is the SSI CONTROL section.
type Params struct {
	Scheme        Scheme
	FieldCoupling FieldCoupling
	// outer iterations of the partitioned schemes
	ItMax   int
	ConvTol float64
	// fixed relaxation factor, start value of Aitken
	Omega float64
	// upper bound of the Aitken factor, inactive when <= 0
	MaxOmega float64
	// monolithic
	AbsTolRes     float64
	Equilibration utils.EquilibrationMethod
	// forward difference step of the off diagonal blocks
	FDStep float64

	RestartFromStructure bool
	Verbose              bool
}

func DefaultParams() Params {
	return Params{
		Scheme:    IterStagg,
		ItMax:     10,
		ConvTol:   1e-6,
		Omega:     1,
		AbsTolRes: 1e-14,
		FDStep:    1e-7,
	}
}

func (p Params) Validate() error {
	switch {
	case p.ItMax < 1:
		return utils.NewConfigError("ssi.Params", "ITEMAX must be at least 1")
	case p.ConvTol <= 0:
		return utils.NewConfigError("ssi.Params", "CONVTOL must be positive")
	case p.Omega <= 0:
		return utils.NewConfigError("ssi.Params", "relaxation factor must be positive, got %v", p.Omega)
	case p.FDStep <= 0:
		return utils.NewConfigError("ssi.Params", "finite difference step must be positive")
	}
	return nil
}

// ScaTraParams is the SCALAR TRANSPORT DYNAMIC section.
type ScaTraParams struct {
	Type  ScaTraType
	Theta float64
	// reaction rate; threshold of the cardiac cubic, equilibrium value of elch
	Reaction     float64
	Threshold    float64
	InitialValue float64
	TolRes       float64
	MaxIter      int
}

func DefaultScaTraParams() ScaTraParams {
	return ScaTraParams{
		Theta:     0.5,
		Threshold: 0.1,
		TolRes:    1e-10,
		MaxIter:   10,
	}
}

func (p ScaTraParams) Validate() error {
	switch {
	case p.Theta <= 0 || p.Theta > 1:
		return utils.NewConfigError("ssi.ScaTraParams", "THETA must be in (0,1], got %v", p.Theta)
	case p.MaxIter < 1:
		return utils.NewConfigError("ssi.ScaTraParams", "ITEMAX must be at least 1")
	case p.TolRes <= 0:
		return utils.NewConfigError("ssi.ScaTraParams", "ABSTOLRES must be positive")
	}
	return nil
}
