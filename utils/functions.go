package utils

import (
	"math"
	"sort"
)

// Function is a scalar function of time with derivatives up to order 2.
type Function interface {
	Evaluate(t float64, deriv int) float64
}

type Constant float64

func (c Constant) Evaluate(t float64, deriv int) float64 {
	if deriv == 0 {
		return float64(c)
	}
	return 0
}

// Polynomial is sum_i C[i] t^i.
type Polynomial struct {
	C []float64
}

func (p Polynomial) Evaluate(t float64, deriv int) (y float64) {
	for i := len(p.C) - 1; i >= deriv; i-- {
		c := p.C[i]
		for k := 0; k < deriv; k++ {
			c *= float64(i - k)
		}
		y = y*t + c
	}
	return
}

// Harmonic is A sin(ω t + φ) + Offset.
type Harmonic struct {
	Amplitude, Omega, Phase, Offset float64
}

func (h Harmonic) Evaluate(t float64, deriv int) float64 {
	arg := h.Omega*t + h.Phase
	switch deriv {
	case 0:
		return h.Amplitude*math.Sin(arg) + h.Offset
	case 1:
		return h.Amplitude * h.Omega * math.Cos(arg)
	case 2:
		return -h.Amplitude * h.Omega * h.Omega * math.Sin(arg)
	}
	return 0
}

// PiecewiseLinear interpolates (Times, Values), constant outside the range.
type PiecewiseLinear struct {
	Times, Values []float64
}

func NewPiecewiseLinear(times, values []float64) (pl PiecewiseLinear, err error) {
	if len(times) != len(values) || len(times) == 0 {
		return pl, NewConfigError("NewPiecewiseLinear", "need matching, non-empty times and values")
	}
	if !sort.Float64sAreSorted(times) {
		return pl, NewConfigError("NewPiecewiseLinear", "times must be ascending")
	}
	return PiecewiseLinear{Times: times, Values: values}, nil
}

func (pl PiecewiseLinear) Evaluate(t float64, deriv int) float64 {
	var (
		n = len(pl.Times)
	)
	if t <= pl.Times[0] {
		if deriv == 0 {
			return pl.Values[0]
		}
		return 0
	}
	if t >= pl.Times[n-1] {
		if deriv == 0 {
			return pl.Values[n-1]
		}
		return 0
	}
	i := sort.SearchFloat64s(pl.Times, t)
	t0, t1 := pl.Times[i-1], pl.Times[i]
	v0, v1 := pl.Values[i-1], pl.Values[i]
	slope := (v1 - v0) / (t1 - t0)
	switch deriv {
	case 0:
		return v0 + slope*(t-t0)
	case 1:
		return slope
	}
	return 0
}

// FunctionManager resolves 1-based function ids.
type FunctionManager struct {
	funcs []Function
}

func NewFunctionManager(funcs ...Function) *FunctionManager {
	return &FunctionManager{funcs: funcs}
}

func (fm *FunctionManager) Add(f Function) (id int) {
	fm.funcs = append(fm.funcs, f)
	return len(fm.funcs)
}

// Get returns the function with the given id; id 0 means "no function" and
// yields the constant 1.
func (fm *FunctionManager) Get(id int) (Function, error) {
	if id == 0 {
		return Constant(1), nil
	}
	if fm == nil || id < 0 || id > len(fm.funcs) {
		return nil, NewConfigError("FunctionManager.Get", "function %d is not defined", id)
	}
	return fm.funcs[id-1], nil
}
