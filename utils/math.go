package utils

import (
	"math"
)

func ConstArray(N int, val float64) (v []float64) {
	v = make([]float64, N)
	for i := range v {
		v[i] = val
	}
	return
}

// POW is x^p, unrolled for small integer exponents.
func POW(x float64, p int) (y float64) {
	var (
		n       = p
		flipped bool
	)
	if p > 8 || p < -8 {
		return math.Pow(x, float64(p))
	}
	if n < 0 {
		n = -n
		flipped = true
	}
	y = 1
	for ; n >= 2; n -= 2 {
		y *= x * x
	}
	if n == 1 {
		y *= x
	}
	if flipped {
		y = 1. / y
	}
	return
}

// POWF is x^p for real exponents, using POW when p is integral.
func POWF(x, p float64) float64 {
	if ip := math.Trunc(p); ip == p && math.Abs(p) <= 8 {
		return POW(x, int(ip))
	}
	return math.Pow(x, p)
}

func sqrt(x float64) float64 { return math.Sqrt(x) }
