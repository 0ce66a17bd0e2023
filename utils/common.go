package utils

// Tolerances shared across packages.
const (
	NODETOL = 1.e-12
	// Adams-Bashforth constant step check
	DTTOL = 1.e-13
)
