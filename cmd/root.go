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
	"io"
	"os"
	"runtime/debug"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd runs a simulation given an input and an output prefix
var rootCmd = &cobra.Command{
	Use:   "gocsd <input> <output> [restart=K] [restartfrom=prefix]",
	Short: "Structural dynamics and scalar-structure interaction solver",
	Long: `Structural dynamics and scalar-structure interaction solver.

The input file is YAML, the output argument is the prefix of all result,
monitor and restart files. restart=K continues from the restart written at
step K (K=last takes the last one), restartfrom names the output prefix of
the run to continue from.`,
	Args: cobra.ArbitraryArgs,
	Run:  runSimulation,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			printPanic(os.Stderr, r, debug.Stack())
			os.Exit(1)
		}
	}()
	rootCmd.SetArgs(NormalizeArgs(rootCmd, os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gocsd.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "print progress of the time loop and the solvers")

	rootCmd.Flags().BoolP("parameters", "p", false, "list the valid values of every enumerated input parameter")
	rootCmd.Flags().Bool("interactive", false, "wait for a key press before starting")
	rootCmd.Flags().String("profile", "", "write a profile: cpu or mem")
	rootCmd.Flags().Bool("perf", false, "count retired instructions per step (Linux)")
	rootCmd.Flags().Int("ngroup", 1, "number of independent groups")
	rootCmd.Flags().String("glayout", "", "comma separated element loop threads of each group")
	rootCmd.Flags().String("nptype", "copyDatFile",
		"group input: copyDatFile, everyGroupReadInputFile, separateInputFiles or nestedMultiscale")

	for _, name := range []string{"verbose", "perf", "profile"} {
		f := rootCmd.Flags().Lookup(name)
		if f == nil {
			f = rootCmd.PersistentFlags().Lookup(name)
		}
		_ = viper.BindPFlag(name, f)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".gocsd" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".gocsd")
	}

	viper.SetEnvPrefix("GOCSD")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// NormalizeArgs turns single dash long options like -ngroup=2 into their
// double dash form. Shorthands and positional arguments pass unchanged.
func NormalizeArgs(cmd *cobra.Command, args []string) (out []string) {
	out = make([]string, len(args))
	for i, a := range args {
		out[i] = a
		if !strings.HasPrefix(a, "-") || strings.HasPrefix(a, "--") {
			continue
		}
		name := strings.TrimPrefix(a, "-")
		if j := strings.IndexByte(name, '='); j >= 0 {
			name = name[:j]
		}
		if len(name) < 2 {
			continue
		}
		if cmd.Flags().Lookup(name) != nil || cmd.PersistentFlags().Lookup(name) != nil || name == "help" {
			out[i] = "-" + a
		}
	}
	return
}

func printPanic(w io.Writer, r any, stack []byte) {
	divider := strings.Repeat("=", 79)
	fmt.Fprintf(w, "\n%s\n", divider)
	fmt.Fprintf(w, "gocsd aborted: %v\n", r)
	fmt.Fprintf(w, "%s\n%s%s\n", divider, stack, divider)
}
