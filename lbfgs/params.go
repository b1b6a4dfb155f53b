// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

import (
	"bytes"
	"io"
	"math"
	"os"
	"strings"

	"github.com/curioloop/ptyopt/reduce"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidParams is returned when a parameter is out of range.
	ErrInvalidParams = errors.New("lbfgs: invalid parameters")
	// ErrUnsupportedModel is returned for an unknown noise model name.
	ErrUnsupportedModel = errors.New("lbfgs: unsupported noise model")
	// ErrNotImplemented is returned for a known but unavailable noise model.
	ErrNotImplemented = errors.New("lbfgs: noise model not implemented")
)

// Params configures a reconstruction run.
type Params struct {
	// Likelihood noise model: gaussian, poisson or euclid.
	MLType string `yaml:"ml_type"`
	// Default number of iterations of Engine.Run.
	NumIter int `yaml:"numiter"`
	// Number of curvature pairs kept by the L-BFGS memory.
	BFGSMemorySize int `yaml:"bfgs_memory_size"`
	// Recompute the probe/object scale factor from the gradient norms.
	ScalePrecond bool `yaml:"scale_precond"`
	// Base (or fixed) probe/object scale factor.
	ScaleProbeObject float64 `yaml:"scale_probe_object"`
	// Weight of the previous scale factor in its geometric running average.
	ScalePOMemory float64 `yaml:"scale_p_o_memory"`
	// Iteration from which the probe is updated.
	ProbeUpdateStart int `yaml:"probe_update_start"`
	// Initial smoothing sigma of the object gradient, 0 disables smoothing.
	SmoothGradient float64 `yaml:"smooth_gradient"`
	// Relative decay of the smoothing sigma per iteration.
	SmoothGradientDecay float64 `yaml:"smooth_gradient_decay"`
	// Accumulation precision of inner products: single or double.
	ReducePrecision string `yaml:"reduce_precision"`
	// Elements per reduction block, reduce.DefaultBlockSize if 0.
	ReduceBlockSize int `yaml:"reduce_block_size"`
	// Parallel workers per reduction, one per CPU if 0.
	ReduceWorkers int `yaml:"reduce_workers"`
}

// DefaultParams returns the parameters used when a key is absent.
func DefaultParams() Params {
	return Params{
		MLType:           "gaussian",
		NumIter:          20,
		BFGSMemorySize:   5,
		ScaleProbeObject: 1,
		ScalePOMemory:    0.9,
		ProbeUpdateStart: 2,
		ReducePrecision:  "double",
	}
}

// ParseParams decodes YAML on top of DefaultParams and validates the result.
// Unknown keys are rejected.
func ParseParams(data []byte) (p Params, err error) {
	p = DefaultParams()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, errors.Wrap(err, "lbfgs: decode parameters")
	}
	return p, p.Validate()
}

// LoadParams reads parameters from a YAML file.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultParams(), errors.Wrapf(err, "lbfgs: read parameters %q", path)
	}
	p, err := ParseParams(data)
	return p, errors.Wrapf(err, "lbfgs: parameters %q", path)
}

// Validate checks the ranges of every parameter and the noise model name.
func (p *Params) Validate() (err error) {
	switch {
	case p.BFGSMemorySize <= 0:
		err = errors.Wrapf(ErrInvalidParams, "bfgs_memory_size must be positive, got %d", p.BFGSMemorySize)
	case p.NumIter < 0:
		err = errors.Wrapf(ErrInvalidParams, "numiter must not be negative, got %d", p.NumIter)
	case !(p.ScaleProbeObject > 0) || math.IsInf(p.ScaleProbeObject, 0):
		err = errors.Wrapf(ErrInvalidParams, "scale_probe_object must be positive, got %g", p.ScaleProbeObject)
	case !(p.ScalePOMemory >= 0 && p.ScalePOMemory <= 1):
		err = errors.Wrapf(ErrInvalidParams, "scale_p_o_memory must be in [0,1], got %g", p.ScalePOMemory)
	case p.ProbeUpdateStart < 0:
		err = errors.Wrapf(ErrInvalidParams, "probe_update_start must not be negative, got %d", p.ProbeUpdateStart)
	case !(p.SmoothGradient >= 0):
		err = errors.Wrapf(ErrInvalidParams, "smooth_gradient must not be negative, got %g", p.SmoothGradient)
	case !(p.SmoothGradientDecay >= 0 && p.SmoothGradientDecay < 1):
		err = errors.Wrapf(ErrInvalidParams, "smooth_gradient_decay must be in [0,1), got %g", p.SmoothGradientDecay)
	case p.ReduceBlockSize < 0:
		err = errors.Wrapf(ErrInvalidParams, "reduce_block_size must not be negative, got %d", p.ReduceBlockSize)
	case p.ReduceWorkers < 0:
		err = errors.Wrapf(ErrInvalidParams, "reduce_workers must not be negative, got %d", p.ReduceWorkers)
	}
	if err != nil {
		return
	}
	if _, err = reduce.ParsePrecision(p.ReducePrecision); err != nil {
		return errors.Wrapf(ErrInvalidParams, "reduce_precision: %v", err)
	}
	return checkNoiseModel(p.MLType)
}

// Kernel builds the reduction kernel described by the reduce_* keys.
// The object and probe fields of a Problem must be created with it.
func (p *Params) Kernel() (*reduce.Kernel, error) {
	prec, err := reduce.ParsePrecision(p.ReducePrecision)
	if err != nil {
		return nil, err
	}
	return reduce.Config{
		BlockSize: p.ReduceBlockSize,
		Precision: prec,
		Workers:   p.ReduceWorkers,
	}.New()
}

// checkKernel reports an error when k does not reduce as the reduce_* keys
// ask.
func (p *Params) checkKernel(name string, k *reduce.Kernel) error {
	want, err := p.Kernel()
	if err != nil {
		return errors.Wrapf(ErrInvalidParams, "reduce: %v", err)
	}
	switch {
	case k.Precision() != want.Precision():
		err = errors.Wrapf(ErrInvalidParams, "%s accumulates in %s precision, reduce_precision is %s",
			name, k.Precision(), want.Precision())
	case k.BlockSize() != want.BlockSize():
		err = errors.Wrapf(ErrInvalidParams, "%s reduces blocks of %d elements, reduce_block_size is %d",
			name, k.BlockSize(), want.BlockSize())
	case k.Workers() != want.Workers():
		err = errors.Wrapf(ErrInvalidParams, "%s reduces with %d workers, reduce_workers is %d",
			name, k.Workers(), want.Workers())
	}
	return err
}

func checkNoiseModel(name string) error {
	switch strings.ToLower(name) {
	case "gaussian":
		return nil
	case "poisson", "euclid":
		return errors.Wrapf(ErrNotImplemented, "%s", name)
	}
	return errors.Wrapf(ErrUnsupportedModel, "%q", name)
}
