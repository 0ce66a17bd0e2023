package restart

import (
	"os"
	"sort"

	"github.com/ghodss/yaml"
	"github.com/google/uuid"

	"github.com/notargets/gocsd/utils"
)

type Entry struct {
	Step int     `json:"step"`
	Time float64 `json:"time"`
	File string  `json:"file"`
}

// Control lists the restart steps written by a run.
type Control struct {
	RunID   string  `json:"run_id"`
	Problem string  `json:"problem"`
	Entries []Entry `json:"entries"`
}

func NewControl(problem string) *Control {
	return &Control{RunID: uuid.New().String(), Problem: problem}
}

func ControlFileName(prefix string) string { return prefix + ".control.yaml" }

func LoadControl(path string) (c *Control, err error) {
	var data []byte
	if data, err = os.ReadFile(path); err != nil {
		return nil, utils.Wrap(utils.ErrIO, "restart.LoadControl", err)
	}
	c = &Control{}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, utils.Wrap(utils.ErrIO, "restart.LoadControl", err)
	}
	if _, err = uuid.Parse(c.RunID); err != nil {
		return nil, utils.Wrap(utils.ErrIO, "restart.LoadControl", err)
	}
	return
}

// Add records a restart step, replacing an existing entry for the same step.
func (c *Control) Add(step int, time float64, file string) {
	for i := range c.Entries {
		if c.Entries[i].Step == step {
			c.Entries[i] = Entry{step, time, file}
			return
		}
	}
	c.Entries = append(c.Entries, Entry{step, time, file})
	sort.Slice(c.Entries, func(i, j int) bool { return c.Entries[i].Step < c.Entries[j].Step })
}

// Find returns the entry of the given step; step < 0 selects the last one.
func (c *Control) Find(step int) (e Entry, err error) {
	if len(c.Entries) == 0 {
		return e, utils.NewIOError("restart.Control.Find", "no restart entries in run %s", c.RunID)
	}
	if step < 0 {
		return c.Entries[len(c.Entries)-1], nil
	}
	for _, e = range c.Entries {
		if e.Step == step {
			return e, nil
		}
	}
	return e, utils.NewIOError("restart.Control.Find", "no restart entry for step %d", step)
}

func (c *Control) Save(path string) (err error) {
	var data []byte
	if data, err = yaml.Marshal(c); err != nil {
		return utils.Wrap(utils.ErrIO, "restart.Control.Save", err)
	}
	if err = os.WriteFile(path, data, 0644); err != nil {
		return utils.Wrap(utils.ErrIO, "restart.Control.Save", err)
	}
	return
}
