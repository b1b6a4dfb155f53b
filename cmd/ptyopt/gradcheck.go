// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/curioloop/ptyopt/field"
	"github.com/curioloop/ptyopt/numdiff"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	flagTol     float64
	flagForward bool
)

var gradcheckCmd = &cobra.Command{
	Use:   "gradcheck",
	Short: "Compare the model gradient with finite differences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := loadParams()
		if err != nil {
			return err
		}
		bowl, err := newBowl[complex128](params, flagSize, flagProbeSize)
		if err != nil {
			return err
		}
		obG, prG := bowl.Object.Like("object_grad"), bowl.Probe.Like("probe_grad")
		if _, err = bowl.NewGrad(obG, prG); err != nil {
			return err
		}

		method := numdiff.Central
		if flagForward {
			method = numdiff.Forward
		}
		var failed bool
		for _, c := range []struct {
			x, g *field.Field[complex128]
		}{{bowl.Object, obG}, {bowl.Probe, prG}} {
			num := c.x.Like(c.x.Name + "_numdiff")
			as := numdiff.ApproxSpec[complex128]{Object: bowl.Error, Method: method}
			if err = as.Diff(c.x, num); err != nil {
				return err
			}
			abs, rel, err := numdiff.MaxDeviation(c.g, num)
			if err != nil {
				return err
			}
			status := "ok"
			if rel > flagTol {
				status, failed = "FAILED", true
			}
			fmt.Printf("%-8s max abs %.3e  max rel %.3e  %s\n", c.x.Name, abs, rel, status)
		}
		if failed {
			return errors.Errorf("gradient deviates by more than %g", flagTol)
		}
		return nil
	},
}

func init() {
	gradcheckCmd.Flags().Float64Var(&flagTol, "tol", 1e-6, "largest accepted relative deviation")
	gradcheckCmd.Flags().BoolVar(&flagForward, "forward", false, "use forward instead of central differences")
}
