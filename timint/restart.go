package timint

import (
	"bytes"
	"fmt"

	"github.com/notargets/gocsd/restart"
)

// WriteRestartTo stores the state at n, the scheme history, the evaluator
// payloads and the divergence control level.
func (ti *TimeIntBase) WriteRestartTo(w *restart.Writer, forced bool) {
	ti.GS.WriteRestart(w)
	ti.Int.WriteRestart(w, forced)
	ti.Manager.WriteRestart(w, forced)
	w.WriteInt("divconrefinementlevel", ti.divConRefinementLevel)
	w.WriteInt("divconnumfinestep", ti.divConNumFineStep)
	if ti.WriteAuxRestart != nil {
		ti.WriteAuxRestart(w, forced)
	}
}

// ReadRestartFrom restores what WriteRestartTo stored. It replaces the
// initial acceleration of PostSetup, so it must run between Setup and
// PostSetup.
func (ti *TimeIntBase) ReadRestartFrom(r *restart.Reader) (err error) {
	if err = ti.GS.ReadRestart(r); err != nil {
		return
	}
	if err = ti.Int.ReadRestart(r); err != nil {
		return
	}
	if err = ti.Manager.ReadRestart(r); err != nil {
		return
	}
	if r.HasInt("divconrefinementlevel") {
		if ti.divConRefinementLevel, err = r.ReadInt("divconrefinementlevel"); err != nil {
			return
		}
		if ti.divConNumFineStep, err = r.ReadInt("divconnumfinestep"); err != nil {
			return
		}
	}
	if ti.ReadAuxRestart != nil {
		if err = ti.ReadAuxRestart(r); err != nil {
			return
		}
	}
	ti.Int.ResetEvalParams()
	return
}

// WriteRestart writes the restart file of step n and records it in the
// control file. Without an output prefix the records stay in LastRestart.
func (ti *TimeIntBase) WriteRestart(forced bool) (err error) {
	var (
		gs = ti.GS
		w  = restart.NewWriter(gs.StepN(), gs.TimeN())
	)
	ti.WriteRestartTo(w, forced)
	if ti.Params.Output == "" {
		var buf bytes.Buffer
		if _, err = w.WriteTo(&buf); err != nil {
			return
		}
		ti.LastRestart = buf.Bytes()
		return
	}
	path := restart.FileName(ti.Params.Output, gs.StepN())
	if err = w.Save(path); err != nil {
		return
	}
	if ti.rank() != 0 {
		return
	}
	ti.Control.Add(gs.StepN(), gs.TimeN(), path)
	if err = ti.Control.Save(restart.ControlFileName(ti.Params.Output)); err != nil {
		return
	}
	if ti.Params.Verbose {
		fmt.Printf("restart written at step %d, time %g: %s\n", gs.StepN(), gs.TimeN(), path)
	}
	return
}

// ReadRestart loads step of the run with the given output prefix; step < 0
// selects the last restart written.
func (ti *TimeIntBase) ReadRestart(prefix string, step int) (err error) {
	var (
		c *restart.Control
		e restart.Entry
		r *restart.Reader
	)
	if c, err = restart.LoadControl(restart.ControlFileName(prefix)); err != nil {
		return
	}
	if e, err = c.Find(step); err != nil {
		return
	}
	if r, err = restart.Load(e.File); err != nil {
		return
	}
	if err = ti.ReadRestartFrom(r); err != nil {
		return fmt.Errorf("restart %s: %w", e.File, err)
	}
	// keep appending to the control file of the continued run
	if prefix == ti.Params.Output {
		ti.Control = c
	}
	return
}
