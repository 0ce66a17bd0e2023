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
	"fmt"
	"io/ioutil"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"

	"github.com/notargets/gocsd/InputParameters"
	"github.com/notargets/gocsd/geometry3D"
	"github.com/notargets/gocsd/model_problems/StructuralDynamics"
	"github.com/notargets/gocsd/utils"
)

// GridGenCmd represents the gridgen command
var GridGenCmd = &cobra.Command{
	Use:   "gridgen [input]",
	Short: "Generate a box mesh and report its size",
	Long: `Generate a box mesh from the DOMAIN block of an input file, or from the
flags when no input is given, and print node and element counts and the
position of the last node.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			d   InputParameters.Domain
			err error
		)
		if len(args) == 1 {
			if d, err = readDomain(args[0]); err != nil {
				panic(err)
			}
		} else {
			d = domainFromFlags(cmd)
		}
		s, err := GridSummary(d)
		if err != nil {
			panic(err)
		}
		fmt.Printf("Elements = %d, Nodes = %d\n", s.NumElements, s.NumNodes)
		fmt.Printf("Last node %d at (%g, %g, %g)\n", s.LastNodeID, s.LastNode[0], s.LastNode[1], s.LastNode[2])
		fmt.Printf("Bounding box %v to %v\n", s.Min, s.Max)
	},
}

func init() {
	rootCmd.AddCommand(GridGenCmd)
	GridGenCmd.Flags().Float64SliceP("lower", "l", []float64{0, 0, 0}, "lower bound of the box")
	GridGenCmd.Flags().Float64SliceP("upper", "u", []float64{1, 1, 1}, "upper bound of the box")
	GridGenCmd.Flags().IntSliceP("intervals", "n", []int{1, 1, 1}, "intervals in x, y and z")
	GridGenCmd.Flags().Float64Slice("rotation", []float64{0, 0, 0}, "rotation about x, y and z in degrees")
	GridGenCmd.Flags().StringP("elements", "e", "hex8", "element type")
	GridGenCmd.Flags().Int("first", 1, "first node id")
}

type GridStats struct {
	NumElements, NumNodes int
	LastNodeID            int
	LastNode              geometry3D.Point
	Min, Max              geometry3D.Point
}

func GridSummary(d InputParameters.Domain) (s GridStats, err error) {
	var m *geometry3D.Mesh
	if m, err = StructuralDynamics.GenerateDomain(d); err != nil {
		return
	}
	last := m.Nodes[len(m.Nodes)-1]
	box := m.BoundingBox()
	s = GridStats{
		NumElements: len(m.Elements),
		NumNodes:    len(m.Nodes),
		LastNodeID:  last.ID,
		LastNode:    last.X,
		Min:         box.XMin,
		Max:         box.XMax,
	}
	return
}

func readDomain(file string) (d InputParameters.Domain, err error) {
	var (
		data []byte
		in   struct {
			Domain *InputParameters.Domain `json:"DOMAIN"`
		}
	)
	if data, err = ioutil.ReadFile(file); err != nil {
		return d, utils.Wrap(utils.ErrIO, "gridgen", err)
	}
	if err = yaml.Unmarshal(data, &in); err != nil {
		return d, utils.Wrap(utils.ErrConfig, "gridgen", err)
	}
	if in.Domain == nil {
		return d, utils.NewConfigError("gridgen", "%s has no DOMAIN block", file)
	}
	return *in.Domain, nil
}

func domainFromFlags(cmd *cobra.Command) (d InputParameters.Domain) {
	var (
		lower, _     = cmd.Flags().GetFloat64Slice("lower")
		upper, _     = cmd.Flags().GetFloat64Slice("upper")
		intervals, _ = cmd.Flags().GetIntSlice("intervals")
		rotation, _  = cmd.Flags().GetFloat64Slice("rotation")
	)
	d.ElementType, _ = cmd.Flags().GetString("elements")
	d.FirstNodeID, _ = cmd.Flags().GetInt("first")
	d.FirstElementID = 1
	copy(d.Bottom[:], lower)
	copy(d.Top[:], upper)
	copy(d.Intervals[:], intervals)
	copy(d.Rotation[:], rotation)
	return
}
