package out

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func readCSV(t *testing.T, path string) [][]string {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestRuntimeOutput(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run")
	rt := NewRuntimeOutput(prefix, false)
	rt.SetStep(1, 0.1, -1)
	rt.Append("spring", Record{"gap": 0.5, "springstress": 2})
	rt.Append("spring", Record{"gap": 0.25})
	assert.Equal(t, 2, rt.Len("spring"))
	require.NoError(t, rt.Flush())
	assert.Equal(t, 0, rt.Len("spring"))

	rt.SetStep(2, 0.2, -1)
	rt.Append("spring", Record{"gap": 0.125, "springstress": 1})
	require.NoError(t, rt.Flush())

	recs := readCSV(t, rt.FileName("spring"))
	require.Len(t, recs, 4)
	assert.Equal(t, []string{"step", "time", "iter", "gap", "springstress"}, recs[0])
	assert.Equal(t, []string{"1", "0.1", "-1", "0.25", ""}, recs[2])
	assert.Equal(t, "2", recs[3][0])
}

func TestMonitor(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run")
	m := NewMonitor(prefix, []MonitorDof{{Node: 1, Dof: 0, LID: 0}, {Node: 2, Dof: 1, LID: 4, Label: "tip"}})
	for n := 0; n < 5; n++ {
		D := mat.NewVecDense(6, nil)
		D.SetVec(0, float64(n))
		D.SetVec(4, -float64(n))
		m.Record(n, 0.1*float64(n), D, nil, nil)
	}
	assert.Equal(t, 5, m.Len())
	tm, d := m.Series(1)
	assert.Equal(t, -4., d[4])
	assert.InDelta(t, 0.4, tm[4], 1e-15)
	require.NoError(t, m.WriteCSV())
	recs := readCSV(t, prefix+".monitor.csv")
	require.Len(t, recs, 6)
	assert.Equal(t, "node1_dof0_d", recs[0][2])
	assert.Equal(t, "tip_a", recs[0][7])
	require.NoError(t, m.Plot())
	_, err := os.Stat(prefix + ".monitor.png")
	assert.NoError(t, err)
}
