package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gocsd/InputParameters"
	"github.com/notargets/gocsd/utils"
)

func TestNormalizeArgs(t *testing.T) {
	in := []string{"-ngroup=2", "-glayout=1,2", "-p", "-v", "--nptype=copyDatFile", "-interactive",
		"-help", "in.yaml", "out", "restart=3", "-unknown"}
	want := []string{"--ngroup=2", "--glayout=1,2", "-p", "-v", "--nptype=copyDatFile", "--interactive",
		"--help", "in.yaml", "out", "restart=3", "-unknown"}
	assert.Equal(t, want, NormalizeArgs(rootCmd, in))
	assert.Equal(t, []string{"--verbose"}, NormalizeArgs(rootCmd, []string{"-verbose"}))
}

func TestParsePositional(t *testing.T) {
	in, out, restart, from, err := ParsePositional([]string{"a.yaml", "res", "restart=4", "restartfrom=old"})
	require.NoError(t, err)
	assert.Equal(t, "a.yaml", in)
	assert.Equal(t, "res", out)
	assert.Equal(t, 4, restart)
	assert.Equal(t, "old", from)

	_, _, restart, _, err = ParsePositional([]string{"a.yaml", "res", "restart=last"})
	require.NoError(t, err)
	assert.Equal(t, -1, restart)
	_, _, restart, _, err = ParsePositional([]string{"a.yaml", "res", "restartfrom=old"})
	require.NoError(t, err)
	assert.Equal(t, -1, restart)

	for _, bad := range [][]string{
		{"a.yaml"},
		{"a.yaml", "res", "restart=-2"},
		{"a.yaml", "res", "restart=x"},
		{"a.yaml", "res", "extra"},
		{"a.yaml", "res", "step=1"},
	} {
		_, _, _, _, err = ParsePositional(bad)
		assert.True(t, errors.Is(err, utils.ErrConfig), "%v", bad)
	}
}

func TestGroupJobs(t *testing.T) {
	{ // one group keeps the output prefix
		jobs, err := GroupJobs([]string{"a.yaml", "res"}, 1, "", "copyDatFile")
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "res", jobs[0].Output)
		assert.Nil(t, jobs[0].input)
	}
	{ // every group reads the same input with its own output
		jobs, err := GroupJobs([]string{"a.yaml", "res", "restart=2"}, 3, "1,2,4", "everyGroupReadInputFile")
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		for g, j := range jobs {
			assert.Equal(t, "a.yaml", j.InputFile)
			assert.Equal(t, 2, j.Restart)
			assert.Equal(t, g, j.Group)
		}
		assert.Equal(t, "res_group_1", jobs[1].Output)
		assert.Equal(t, 4, jobs[2].NumThreads)
	}
	{ // separate inputs
		jobs, err := GroupJobs([]string{"a.yaml", "ra", "b.yaml", "rb", "restart=1"}, 2, "", "separateInputFiles")
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, "ra", jobs[0].Output)
		assert.Equal(t, "b.yaml", jobs[1].InputFile)
		assert.Equal(t, 1, jobs[1].Restart)
		assert.Equal(t, 0, jobs[0].Restart)
	}
	{ // copyDatFile reads the input once
		file := filepath.Join(t.TempDir(), "in.yaml")
		require.NoError(t, os.WriteFile(file, []byte("Title: x\n"), 0644))
		jobs, err := GroupJobs([]string{file, "res"}, 2, "", "copyDatFile")
		require.NoError(t, err)
		assert.Equal(t, []byte("Title: x\n"), jobs[1].input)
	}
	for _, c := range []struct {
		args            []string
		ngroup          int
		glayout, nptype string
	}{
		{[]string{"a", "b"}, 0, "", "copyDatFile"},
		{[]string{"a", "b"}, 2, "1", "copyDatFile"},
		{[]string{"a", "b"}, 1, "x", "copyDatFile"},
		{[]string{"a", "b"}, 2, "", "separateInputFiles"},
		{[]string{"a", "b"}, 1, "", "nestedMultiscale"},
		{[]string{"a", "b"}, 1, "", "scatter"},
	} {
		_, err := GroupJobs(c.args, c.ngroup, c.glayout, c.nptype)
		assert.True(t, errors.Is(err, utils.ErrConfig), "%v", c)
	}
}

func TestExampleFileParses(t *testing.T) {
	ip := InputParameters.NewInputParameters()
	require.NoError(t, ip.Parse([]byte(exampleFile)))
	assert.Equal(t, "GenAlpha", ip.StructuralDynamic.DynamicType)
	assert.Equal(t, 0.9, ip.StructuralDynamic.GenAlpha.RhoInf)
}

func TestRunGroups(t *testing.T) {
	var (
		dir  = t.TempDir()
		file = filepath.Join(dir, "bar.yaml")
		data = bytes.Replace([]byte(exampleFile), []byte("NUMSTEP: 100"), []byte("NUMSTEP: 3"), 1)
	)
	require.NoError(t, os.WriteFile(file, data, 0644))
	jobs, err := GroupJobs([]string{file, filepath.Join(dir, "bar")}, 2, "1,2", "copyDatFile")
	require.NoError(t, err)
	require.NoError(t, RunGroups(jobs, false, false))
	for g := 0; g < 2; g++ {
		_, err = os.Stat(filepath.Join(dir, "bar_group_"+string(rune('0'+g))+".control.yaml"))
		assert.NoError(t, err)
	}

	jobs[1].input = []byte("STRUCTURAL DYNAMIC:\n  DYNAMICTYPE: Newmark\n")
	err = RunGroups(jobs, false, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrConfig))
}

func TestGridSummary(t *testing.T) {
	s, err := GridSummary(InputParameters.Domain{
		Bottom:      [3]float64{-1, -2, -3},
		Top:         [3]float64{2.5, 3.5, 4.5},
		Intervals:   [3]int{5, 10, 15},
		ElementType: "hex8",
		FirstNodeID: 17,
	})
	require.NoError(t, err)
	assert.Equal(t, 750, s.NumElements)
	assert.Equal(t, 1056, s.NumNodes)
	assert.Equal(t, 7177, s.LastNodeID)
	assert.InDeltaSlice(t, []float64{2.5, 3.5, 4.5}, s.LastNode[:], 1e-12)

	file := filepath.Join(t.TempDir(), "box.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
DOMAIN:
  LOWER_BOUND: [0, 0, 0]
  UPPER_BOUND: [1, 1, 1]
  INTERVALS: [2, 2, 2]
  ELEMENTS: hex8
  NODE_GID_START: 1
`), 0644))
	d, err := readDomain(file)
	require.NoError(t, err)
	s, err = GridSummary(d)
	require.NoError(t, err)
	assert.Equal(t, 8, s.NumElements)
	assert.Equal(t, 27, s.NumNodes)

	_, err = GridSummary(InputParameters.Domain{Top: [3]float64{1, 1, 1}, ElementType: "hex8"})
	assert.True(t, errors.Is(err, utils.ErrConfig))
}

func TestPrintPanic(t *testing.T) {
	var buf bytes.Buffer
	printPanic(&buf, utils.NewNumericalError("step", "boom"), []byte("stack\n"))
	assert.Contains(t, buf.String(), "gocsd aborted: numerical error: step: boom")
	assert.Contains(t, buf.String(), "stack")
}
