package utils

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type NormType uint8

const (
	NormL2 NormType = iota
	NormL1
	NormInf
	NormRMS
)

var normNames = map[string]NormType{
	"Vague": NormL2,
	"L2":    NormL2,
	"L1":    NormL1,
	"Linf":  NormInf,
	"Rms":   NormRMS,
}

func NewNormType(label string) (NormType, error) {
	if n, ok := normNames[label]; ok {
		return n, nil
	}
	return NormL2, NewConfigError("NewNormType", "unknown norm %q", label)
}

func (n NormType) String() string {
	switch n {
	case NormL1:
		return "L1"
	case NormInf:
		return "Linf"
	case NormRMS:
		return "Rms"
	}
	return "L2"
}

func VecData(v *mat.VecDense) []float64 {
	return v.RawVector().Data[:v.Len()]
}

func NewVec(n int) *mat.VecDense {
	return mat.NewVecDense(n, nil)
}

func CloneVec(v *mat.VecDense) *mat.VecDense {
	if v == nil {
		return nil
	}
	c := mat.NewVecDense(v.Len(), nil)
	c.CopyVec(v)
	return c
}

// Update sets y = a*x + b*y.
func Update(y *mat.VecDense, a float64, x mat.Vector, b float64) {
	if b == 0 {
		y.ScaleVec(a, x)
		return
	}
	y.AddScaledVec(scaled(y, b), a, x)
}

// Update2 sets y = a*x + c*z + b*y.
func Update2(y *mat.VecDense, a float64, x mat.Vector, c float64, z mat.Vector, b float64) {
	Update(y, a, x, b)
	y.AddScaledVec(y, c, z)
}

func scaled(y *mat.VecDense, b float64) *mat.VecDense {
	if b != 1 {
		y.ScaleVec(b, y)
	}
	return y
}

func Norm(v *mat.VecDense, nt NormType) float64 {
	var (
		d = VecData(v)
	)
	if len(d) == 0 {
		return 0
	}
	switch nt {
	case NormL1:
		return floats.Norm(d, 1)
	case NormInf:
		return floats.Norm(d, math.Inf(1))
	case NormRMS:
		return floats.Norm(d, 2) / math.Sqrt(float64(len(d)))
	}
	return floats.Norm(d, 2)
}

func HasNaNOrInf(v *mat.VecDense) bool {
	for _, x := range VecData(v) {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}

// AssembleVector adds the element vector fe into f at the local indices lm.
// Negative indices are skipped.
func AssembleVector(f *mat.VecDense, lm []int, fe []float64, scale float64) {
	for i, r := range lm {
		if r < 0 {
			continue
		}
		f.SetVec(r, f.AtVec(r)+scale*fe[i])
	}
}

func GatherVector(v *mat.VecDense, lm []int) (out []float64) {
	out = make([]float64, len(lm))
	for i, r := range lm {
		if r >= 0 {
			out[i] = v.AtVec(r)
		}
	}
	return
}
