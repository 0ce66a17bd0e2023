//go:build linux

package utils

import (
	perf "github.com/hodgesds/perf-utils"
)

// CountInstructions runs f and reports the retired CPU instructions. When the
// counters are unavailable f still runs once and ok is false.
func CountInstructions(f func() error) (instructions uint64, ok bool, err error) {
	var (
		ran bool
	)
	pv, perr := perf.CPUInstructions(func() error {
		ran = true
		err = f()
		return err
	})
	if !ran {
		err = f()
	}
	if perr != nil || pv == nil {
		return 0, false, err
	}
	return pv.Value, true, err
}
