package out

import (
	"encoding/csv"
	"fmt"
	"image/color"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/notargets/gocsd/utils"
)

// MonitorDof selects one DOF of one node for the time history.
type MonitorDof struct {
	Node  int
	Dof   int
	Label string
	// local index of the DOF in the state vector
	LID int
}

// Monitor records displacement, velocity and acceleration of selected DOFs
// at every step.
type Monitor struct {
	Prefix string
	Dofs   []MonitorDof

	times []float64
	steps []int
	// [dof][0 disp, 1 vel, 2 acc] series
	series [][3][]float64
}

func NewMonitor(prefix string, dofs []MonitorDof) *Monitor {
	return &Monitor{
		Prefix: prefix,
		Dofs:   dofs,
		series: make([][3][]float64, len(dofs)),
	}
}

func (m *Monitor) Record(step int, t float64, D, V, A *mat.VecDense) {
	m.steps = append(m.steps, step)
	m.times = append(m.times, t)
	for i, d := range m.Dofs {
		for k, v := range []*mat.VecDense{D, V, A} {
			val := 0.
			if v != nil {
				val = v.AtVec(d.LID)
			}
			m.series[i][k] = append(m.series[i][k], val)
		}
	}
}

func (m *Monitor) Len() int { return len(m.times) }

// Series returns the displacement history of monitored DOF i.
func (m *Monitor) Series(i int) (t, d []float64) { return m.times, m.series[i][0] }

func (m *Monitor) label(i int) string {
	if m.Dofs[i].Label != "" {
		return m.Dofs[i].Label
	}
	return fmt.Sprintf("node%d_dof%d", m.Dofs[i].Node, m.Dofs[i].Dof)
}

// WriteCSV writes <prefix>.monitor.csv.
func (m *Monitor) WriteCSV() (err error) {
	var (
		f    *os.File
		path = m.Prefix + ".monitor.csv"
	)
	if f, err = os.Create(path); err != nil {
		return utils.Wrap(utils.ErrIO, "Monitor.WriteCSV", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	header := []string{"step", "time"}
	for i := range m.Dofs {
		l := m.label(i)
		header = append(header, l+"_d", l+"_v", l+"_a")
	}
	if err = w.Write(header); err != nil {
		return utils.Wrap(utils.ErrIO, "Monitor.WriteCSV", err)
	}
	for n := range m.times {
		line := []string{strconv.Itoa(m.steps[n]), strconv.FormatFloat(m.times[n], 'e', 12, 64)}
		for i := range m.Dofs {
			for k := 0; k < 3; k++ {
				line = append(line, strconv.FormatFloat(m.series[i][k][n], 'e', 12, 64))
			}
		}
		if err = w.Write(line); err != nil {
			return utils.Wrap(utils.ErrIO, "Monitor.WriteCSV", err)
		}
	}
	w.Flush()
	return utils.Wrap(utils.ErrIO, "Monitor.WriteCSV", w.Error())
}

var palette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
}

// Plot saves the displacement histories as <prefix>.monitor.png.
func (m *Monitor) Plot() (err error) {
	if len(m.times) == 0 || len(m.Dofs) == 0 {
		return nil
	}
	p := plot.New()
	p.Title.Text = "Monitored displacements"
	p.X.Label.Text = "time"
	p.Y.Label.Text = "displacement"
	p.Add(plotter.NewGrid())
	for i := range m.Dofs {
		xys := make(plotter.XYs, len(m.times))
		for n, t := range m.times {
			xys[n].X, xys[n].Y = t, m.series[i][0][n]
		}
		var line *plotter.Line
		if line, err = plotter.NewLine(xys); err != nil {
			return utils.Wrap(utils.ErrIO, "Monitor.Plot", err)
		}
		line.Color = palette[i%len(palette)]
		line.Width = vg.Points(1.2)
		p.Add(line)
		p.Legend.Add(m.label(i), line)
	}
	if err = p.Save(8*vg.Inch, 5*vg.Inch, m.Prefix+".monitor.png"); err != nil {
		return utils.Wrap(utils.ErrIO, "Monitor.Plot", err)
	}
	return
}
