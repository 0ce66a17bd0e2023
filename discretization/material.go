package discretization

import (
	"github.com/notargets/gocsd/utils"
)

// Material is the linear elastic solid with the transport coefficients used
// when the element also carries a scalar field.
type Material struct {
	ID      int
	Youngs  float64
	Poisson float64
	Density float64
	// isotropic eigenstrain per unit concentration
	Swelling    float64
	Diffusivity float64
	// cross section of line elements
	Area float64
}

func (m Material) Validate() error {
	if m.Youngs < 0 {
		return utils.NewConfigError("Material", "material %d: Young's modulus must be non negative", m.ID)
	}
	if m.Poisson <= -1 || m.Poisson >= 0.5 {
		return utils.NewConfigError("Material", "material %d: Poisson ratio %v outside (-1, 0.5)", m.ID, m.Poisson)
	}
	if m.Density < 0 {
		return utils.NewConfigError("Material", "material %d: negative density", m.ID)
	}
	return nil
}

// Lame returns the Lamé parameters.
func (m Material) Lame() (lambda, mu float64) {
	var (
		E, nu = m.Youngs, m.Poisson
	)
	lambda = E * nu / ((1 + nu) * (1 - 2*nu))
	mu = E / (2 * (1 + nu))
	return
}

func (m Material) area() float64 {
	if m.Area == 0 {
		return 1
	}
	return m.Area
}
