// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ptyopt runs the L-BFGS reconstruction engine on synthetic problems.
//
//	ptyopt run --config lbfgs.yaml --size 64 --probe-size 16 --iter 30
//	ptyopt gradcheck --size 4
//
// Logging is controlled with the klog flags, e.g. -v=2 traces the two-loop
// recursion of every iteration.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/curioloop/ptyopt/field"
	"github.com/curioloop/ptyopt/lbfgs"
	"github.com/curioloop/ptyopt/synth"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var rootCmd = &cobra.Command{
	Use:           "ptyopt",
	Short:         "L-BFGS refinement of coupled object and probe estimates",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Flags shared by the subcommands.
var (
	flagConfig    string
	flagSize      int
	flagProbeSize int
	flagSeed      int64
	flagWeights   [2]float64
)

func init() {
	klog.InitFlags(nil)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML file with the engine parameters")
	pf.IntVar(&flagSize, "size", 64, "object edge length")
	pf.IntVar(&flagProbeSize, "probe-size", 16, "probe edge length")
	pf.Int64Var(&flagSeed, "seed", 1, "seed of the synthetic targets")
	pf.Float64Var(&flagWeights[0], "wmin", 1, "smallest element weight of the bowl")
	pf.Float64Var(&flagWeights[1], "wmax", 10, "largest element weight of the bowl")

	rootCmd.AddCommand(runCmd, gradcheckCmd)
}

func main() {
	defer klog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ptyopt: %+v\n", err)
		os.Exit(1)
	}
}

// loadParams reads --config, or returns the defaults.
func loadParams() (lbfgs.Params, error) {
	if flagConfig == "" {
		return lbfgs.DefaultParams(), nil
	}
	return lbfgs.LoadParams(flagConfig)
}

// newBowl lays out a single-view object and probe, starting from a flat
// estimate, around random targets.
func newBowl[T field.Scalar](params lbfgs.Params, size, probeSize int) (*synth.Bowl[T], error) {
	kernel, err := params.Kernel()
	if err != nil {
		return nil, err
	}
	ob := field.New[T]("object", kernel, nil)
	ob.AddStorage("S00G00", size, size)
	pr := field.New[T]("probe", kernel, nil)
	pr.AddStorage("S00G00", probeSize, probeSize)
	ob.Fill(field.FromParts[T](1, 0))
	pr.Fill(field.FromParts[T](1, 0))
	return synth.Random(ob, pr, flagSeed, flagWeights[0], flagWeights[1])
}
