/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gocsd/InputParameters"
	"github.com/notargets/gocsd/model_problems/StructuralDynamics"
	"github.com/notargets/gocsd/utils"
)

// Job is the run of one group.
type Job struct {
	Group       int
	InputFile   string
	Output      string
	Restart     int
	RestartFrom string
	NumThreads  int
	// parsed once for copyDatFile, read by the group otherwise
	input []byte
}

func runSimulation(cmd *cobra.Command, args []string) {
	if p, _ := cmd.Flags().GetBool("parameters"); p {
		InputParameters.PrintValidParameters()
		return
	}
	if len(args) < 2 {
		_ = cmd.Usage()
		fmt.Printf("\nExample input file:\n%s", exampleFile)
		os.Exit(1)
	}
	var (
		ngroup, _      = cmd.Flags().GetInt("ngroup")
		glayout, _     = cmd.Flags().GetString("glayout")
		nptype, _      = cmd.Flags().GetString("nptype")
		interactive, _ = cmd.Flags().GetBool("interactive")
		verbose        = viper.GetBool("verbose")
	)
	jobs, err := GroupJobs(args, ngroup, glayout, nptype)
	if err != nil {
		panic(err)
	}
	switch viper.GetString("profile") {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	default:
		panic(utils.NewConfigError("gocsd", "unknown profile %q, use cpu or mem", viper.GetString("profile")))
	}
	if interactive {
		fmt.Printf("Press a key to start ...")
		_, _ = bufio.NewReader(os.Stdin).ReadByte()
	}
	if err = RunGroups(jobs, verbose, viper.GetBool("perf")); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

// RunGroups runs every job in its own goroutine. Each group is its own rank
// in the world of groups; all groups learn whether any of them failed.
func RunGroups(jobs []Job, verbose, perf bool) error {
	var (
		comms = utils.NewThreadGroup(len(jobs))
		errs  = make([]error, len(jobs))
		wg    sync.WaitGroup
	)
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = safeRun(jobs[i], verbose && (len(jobs) == 1 || i == 0), perf)
			failed := 0
			if errs[i] != nil {
				failed = 1
			}
			if comms[i].MaxAllInt(failed) != 0 && comms[i].Rank() == 0 && len(jobs) > 1 {
				fmt.Printf("WARNING: at least one of %d groups failed\n", len(jobs))
			}
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("group %d: %w", jobs[i].Group, err)
		}
	}
	return nil
}

// safeRun turns a panic of the group into its error so that the other groups
// still meet in the final reduction.
func safeRun(job Job, verbose, perf bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			printPanic(os.Stderr, r, debug.Stack())
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	return runJob(job, verbose, perf)
}

func runJob(job Job, verbose, perf bool) (err error) {
	var (
		data = job.input
		ip   = InputParameters.NewInputParameters()
		p    *StructuralDynamics.Problem
	)
	if data == nil {
		if data, err = ioutil.ReadFile(job.InputFile); err != nil {
			return utils.Wrap(utils.ErrIO, "read input", err)
		}
	}
	if err = ip.Parse(data); err != nil {
		return
	}
	if job.NumThreads > 0 {
		ip.StructuralDynamic.NumThreads = job.NumThreads
	}
	if verbose {
		ip.Print()
	}
	p, err = StructuralDynamics.NewProblem(ip, StructuralDynamics.Options{
		Output:      job.Output,
		Restart:     job.Restart,
		RestartFrom: job.RestartFrom,
		Verbose:     verbose,
		Perf:        perf,
	})
	if err != nil {
		return
	}
	if verbose {
		p.PrintInitialization()
	}
	if err = p.Solve(); err != nil {
		return
	}
	if verbose {
		p.PrintFinal()
	}
	return
}

// GroupJobs splits the positional arguments into the jobs of the groups.
func GroupJobs(args []string, ngroup int, glayout, nptype string) (jobs []Job, err error) {
	if ngroup < 1 {
		return nil, utils.NewConfigError("GroupJobs", "ngroup must be at least 1")
	}
	var threads []int
	if glayout != "" {
		for _, s := range strings.Split(glayout, ",") {
			var n int
			if n, err = strconv.Atoi(strings.TrimSpace(s)); err != nil || n < 1 {
				return nil, utils.NewConfigError("GroupJobs", "glayout entry %q is not a positive integer", s)
			}
			threads = append(threads, n)
		}
		if len(threads) != ngroup {
			return nil, utils.NewConfigError("GroupJobs", "glayout has %d entries for %d groups", len(threads), ngroup)
		}
	}
	var sets [][]string
	switch nptype {
	case "copyDatFile", "everyGroupReadInputFile":
		for g := 0; g < ngroup; g++ {
			sets = append(sets, args)
		}
	case "separateInputFiles":
		sets = splitArgSets(args)
		if len(sets) != ngroup {
			return nil, utils.NewConfigError("GroupJobs", "%d input/output pairs for %d groups", len(sets), ngroup)
		}
	case "nestedMultiscale":
		return nil, utils.NewConfigError("GroupJobs", "nptype nestedMultiscale is not supported")
	default:
		return nil, utils.NewConfigError("GroupJobs", "unknown nptype %q", nptype)
	}
	var shared []byte
	if nptype == "copyDatFile" && ngroup > 1 {
		if shared, err = ioutil.ReadFile(sets[0][0]); err != nil {
			return nil, utils.Wrap(utils.ErrIO, "GroupJobs", err)
		}
	}
	for g, set := range sets {
		job := Job{Group: g, input: shared}
		if job.InputFile, job.Output, job.Restart, job.RestartFrom, err = ParsePositional(set); err != nil {
			return
		}
		if ngroup > 1 && nptype != "separateInputFiles" {
			job.Output = fmt.Sprintf("%s_group_%d", job.Output, g)
			if job.RestartFrom != "" {
				job.RestartFrom = fmt.Sprintf("%s_group_%d", job.RestartFrom, g)
			}
		}
		if threads != nil {
			job.NumThreads = threads[g]
		}
		jobs = append(jobs, job)
	}
	return
}

// splitArgSets cuts "in0 out0 [restart=..] in1 out1 .." at every argument
// that is neither a key=value pair nor the output following an input.
func splitArgSets(args []string) (sets [][]string) {
	var cur []string
	for _, a := range args {
		if !strings.Contains(a, "=") && len(cur) >= 2 {
			sets = append(sets, cur)
			cur = nil
		}
		cur = append(cur, a)
	}
	if len(cur) > 0 {
		sets = append(sets, cur)
	}
	return
}

// ParsePositional reads <input> <output> [restart=K] [restartfrom=prefix].
// restart=last selects the last restart written.
func ParsePositional(args []string) (input, output string, restart int, restartFrom string, err error) {
	if len(args) < 2 {
		err = utils.NewConfigError("ParsePositional", "need an input file and an output prefix")
		return
	}
	input, output = args[0], args[1]
	for _, a := range args[2:] {
		key, val, found := strings.Cut(a, "=")
		if !found {
			err = utils.NewConfigError("ParsePositional", "unexpected argument %q", a)
			return
		}
		switch key {
		case "restart":
			if val == "last" {
				restart = -1
				continue
			}
			if restart, err = strconv.Atoi(val); err != nil || restart < 0 {
				err = utils.NewConfigError("ParsePositional", "restart step %q is not a non negative integer", val)
				return
			}
		case "restartfrom":
			restartFrom = val
		default:
			err = utils.NewConfigError("ParsePositional", "unknown argument %q", key)
			return
		}
	}
	if restartFrom != "" && restart == 0 {
		restart = -1
	}
	return
}

var exampleFile = `
########################################
Title: "Cantilever fibre under tip load"
PROBLEM TYPE:
  PROBLEMTYPE: Structure
STRUCTURAL DYNAMIC:
  DYNAMICTYPE: GenAlpha
  TIMESTEP: 0.01
  NUMSTEP: 100
  MAXTIME: 1
  DIVERCONT: halve_step
  GENALPHA:
    RHO_INF: 0.9
IO:
  MONITOR:
    - {NODE: 11, DOF: 0, LABEL: tip}
FUNCTIONS:
  - {TYPE: harmonic, AMPLITUDE: 1, OMEGA: 6.283185}
MATERIALS:
  - {ID: 1, YOUNG: 1000, DENS: 1, CROSSAREA: 0.01}
LINES:
  - {START: [0, 0, 0], END: [1, 0, 0], NUMELE: 10, NODE_GID_START: 1, ELEMENT_GID_START: 1, MAT: 1}
DESIGN NODE SETS:
  root: [1]
  free: [2, 3, 4, 5, 6, 7, 8, 9, 10, 11]
DESIGN POINT DIRICH CONDITIONS:
  - {NAME: clamp, NODESET: root, ONOFF: [1, 1, 1], VAL: [0, 0, 0], FUNCT: [0, 0, 0]}
  - {NAME: axial, NODESET: free, ONOFF: [0, 1, 1], VAL: [0, 0, 0], FUNCT: [0, 0, 0]}
DESIGN POINT NEUMANN CONDITIONS:
  - {NODES: [11], ONOFF: [1, 0, 0], VAL: [1, 0, 0], FUNCT: [1, 0, 0]}
########################################
`
