// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/curioloop/ptyopt/field"
	"github.com/curioloop/ptyopt/lbfgs"
	"github.com/curioloop/ptyopt/smooth"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	flagIter  int
	flagDType string
	flagNoBar bool
	flagHalf  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Refine a synthetic object and probe",
	Long: `Builds a weighted quadratic bowl with random targets and refines flat
object and probe estimates towards them with the L-BFGS engine.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := loadParams()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("iter") {
			params.NumIter = flagIter
		}
		switch flagDType {
		case "complex64":
			return runBowl[complex64](params)
		case "complex128":
			return runBowl[complex128](params)
		}
		return errors.Errorf("unsupported dtype %q", flagDType)
	},
}

func init() {
	runCmd.Flags().IntVar(&flagIter, "iter", 0, "number of iterations, overrides numiter")
	runCmd.Flags().StringVar(&flagDType, "dtype", "complex64", "element type: complex64 or complex128")
	runCmd.Flags().BoolVar(&flagNoBar, "no-progress", false, "disable the progress bar")
	runCmd.Flags().BoolVar(&flagHalf, "half", false, "report the error of a half precision snapshot of the estimates")
}

func runBowl[T field.Scalar](params lbfgs.Params) error {
	bowl, err := newBowl[T](params, flagSize, flagProbeSize)
	if err != nil {
		return err
	}
	problem := &lbfgs.Problem[T]{
		Object: bowl.Object,
		Probe:  bowl.Probe,
		Model:  bowl,
		Params: params,
	}
	if params.SmoothGradient > 0 {
		problem.Smoother = &smooth.Gaussian[T]{}
	}
	engine, err := problem.New()
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !flagNoBar {
		bar = progressbar.NewOptions(params.NumIter,
			progressbar.OptionSetDescription("L-BFGS"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("it"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish(),
		)
	}

	start := time.Now()
	metric := 0.0
	for i := 0; i < params.NumIter; i++ {
		if metric, err = engine.Iterate(1); err != nil {
			return err
		}
		if bar != nil {
			bar.Describe(fmt.Sprintf("L-BFGS error=%.4g", metric))
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	elapsed := time.Since(start)

	final, err := bowl.Error()
	if err != nil {
		return err
	}
	dist, err := bowl.Distance()
	if err != nil {
		return err
	}
	st := engine.Stats()
	klog.V(1).Infof("gradient %s, coefficients %s", st.GradientTime, st.CoeffTime)
	fmt.Printf("iterations:       %d in %s\n", st.Iterations, elapsed.Round(time.Millisecond))
	fmt.Printf("elements:         %s object, %s probe\n",
		humanize.Comma(int64(bowl.Object.Len())), humanize.Comma(int64(bowl.Probe.Len())))
	fmt.Printf("error:            %.6g (last gradient %.6g)\n", final, metric)
	fmt.Printf("distance:         %.6g\n", dist)
	fmt.Printf("scale P/O:        %.4g\n", engine.ScaleFactor())
	fmt.Printf("skipped updates:  %d\n", st.SkippedUpdates)
	fmt.Printf("sanitized coeffs: %d\n", st.SanitizedCoeffs)

	if flagHalf {
		for _, f := range []*field.Field[T]{bowl.Object, bowl.Probe} {
			if err = reportHalf(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// reportHalf prints the size of a half precision snapshot of f and the
// relative change of its squared norm.
func reportHalf[T field.Scalar](f *field.Field[T]) error {
	exact, err := field.Norm2(f)
	if err != nil {
		return err
	}
	h := field.ToHalf(f)
	approx, err := h.Norm2()
	if err != nil {
		return err
	}
	rel := 0.0
	if exact > 0 {
		rel = (approx - exact) / exact
	}
	fmt.Printf("half %-8s  %s, norm² change %.3e\n", f.Name+":", humanize.Bytes(h.Bytes()), rel)
	return nil
}
