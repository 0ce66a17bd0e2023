// Package out collects per step output: runtime records of the model
// evaluators and the time history of monitored degrees of freedom.
package out

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/notargets/gocsd/utils"
)

// Record is one row of runtime output, keyed by column name.
type Record map[string]float64

type row struct {
	step int
	time float64
	iter int
	rec  Record
}

// RuntimeOutput keeps the records of each writer in memory until Flush.
type RuntimeOutput struct {
	Prefix string
	// EveryIteration records Newton iterations, not just converged steps
	EveryIteration bool

	mu     sync.Mutex
	step   int
	time   float64
	iter   int
	tables map[string][]row
}

func NewRuntimeOutput(prefix string, everyIteration bool) *RuntimeOutput {
	return &RuntimeOutput{
		Prefix:         prefix,
		EveryIteration: everyIteration,
		tables:         make(map[string][]row),
		iter:           -1,
	}
}

// SetStep stamps subsequent records. iter is -1 for converged step state.
func (rt *RuntimeOutput) SetStep(step int, time float64, iter int) {
	rt.mu.Lock()
	rt.step, rt.time, rt.iter = step, time, iter
	rt.mu.Unlock()
}

func (rt *RuntimeOutput) Append(name string, rec Record) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.tables[name] = append(rt.tables[name], row{step: rt.step, time: rt.time, iter: rt.iter, rec: rec})
}

func (rt *RuntimeOutput) Len(name string) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.tables[name])
}

// Rows returns the records of one writer in insertion order.
func (rt *RuntimeOutput) Rows(name string) (recs []Record) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, r := range rt.tables[name] {
		recs = append(recs, r.rec)
	}
	return
}

func (rt *RuntimeOutput) FileName(name string) string {
	return fmt.Sprintf("%s.%s.csv", rt.Prefix, name)
}

// Flush writes one CSV file per writer and clears the records. Columns are
// step, time, iter, then the union of record keys in sorted order.
func (rt *RuntimeOutput) Flush() (err error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	names := make([]string, 0, len(rt.tables))
	for name := range rt.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err = rt.writeTable(name, rt.tables[name]); err != nil {
			return
		}
		delete(rt.tables, name)
	}
	return
}

func (rt *RuntimeOutput) writeTable(name string, rows []row) (err error) {
	var (
		keySet = make(map[string]struct{})
		keys   []string
		f      *os.File
		path   = rt.FileName(name)
	)
	for _, r := range rows {
		for k := range r.rec {
			keySet[k] = struct{}{}
		}
	}
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)
	if f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err != nil {
		return utils.Wrap(utils.ErrIO, "RuntimeOutput.Flush", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if newFile {
		if err = w.Write(append([]string{"step", "time", "iter"}, keys...)); err != nil {
			return utils.Wrap(utils.ErrIO, "RuntimeOutput.Flush", err)
		}
	}
	line := make([]string, 3+len(keys))
	for _, r := range rows {
		line[0] = strconv.Itoa(r.step)
		line[1] = strconv.FormatFloat(r.time, 'g', -1, 64)
		line[2] = strconv.Itoa(r.iter)
		for i, k := range keys {
			if v, ok := r.rec[k]; ok {
				line[3+i] = strconv.FormatFloat(v, 'g', -1, 64)
			} else {
				line[3+i] = ""
			}
		}
		if err = w.Write(line); err != nil {
			return utils.Wrap(utils.ErrIO, "RuntimeOutput.Flush", err)
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return utils.Wrap(utils.ErrIO, "RuntimeOutput.Flush", err)
	}
	return
}
