// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package synth provides synthetic reconstruction models with a known
// minimizer.
//
// A Bowl is the weighted least-squares distance of the object and probe
// estimates to fixed targets:
//
//	f(o, p) = Σ wₒ|o − o*|² + Σ wₚ|p − p*|²
//
// Its gradient and its line coefficients are exact, so the behaviour of an
// optimizer can be checked without a diffraction model.
package synth

import (
	"math"
	"math/rand"

	"github.com/curioloop/ptyopt/field"
	"github.com/pkg/errors"
)

// Bowl is a weighted quadratic model around a target object and probe.
// It satisfies lbfgs.Model.
type Bowl[T field.Scalar] struct {
	Object, Probe      *field.Field[T] // estimates, read on every evaluation
	ObTarget, PrTarget *field.Field[T] // minimizer
	ObWeight, PrWeight *field.Field[T] // positive real weights

	obD, prD *field.Field[T]
	obW, prW *field.Field[T]
}

// NewBowl checks the layouts and allocates the scratch fields of a bowl.
// Nil weights select unit weights.
func NewBowl[T field.Scalar](ob, pr, obTarget, prTarget, obWeight, prWeight *field.Field[T]) (*Bowl[T], error) {
	if obWeight == nil {
		obWeight = ones(ob, "ob_weight")
	}
	if prWeight == nil {
		prWeight = ones(pr, "pr_weight")
	}
	for _, c := range [][2]*field.Field[T]{
		{ob, obTarget}, {ob, obWeight}, {pr, prTarget}, {pr, prWeight},
	} {
		if err := c[0].Compatible(c[1]); err != nil {
			return nil, errors.Wrap(err, "synth: bowl")
		}
	}
	return &Bowl[T]{
		Object:   ob,
		Probe:    pr,
		ObTarget: obTarget,
		PrTarget: prTarget,
		ObWeight: obWeight,
		PrWeight: prWeight,
		obD:      ob.Like("ob_diff"),
		prD:      pr.Like("pr_diff"),
		obW:      ob.Like("ob_wdiff"),
		prW:      pr.Like("pr_wdiff"),
	}, nil
}

// Random builds a bowl around the current estimates with targets drawn
// uniformly in [-1,1] (both parts for complex types) and weights drawn
// uniformly in [wmin,wmax]. The same seed yields the same bowl.
func Random[T field.Scalar](ob, pr *field.Field[T], seed int64, wmin, wmax float64) (*Bowl[T], error) {
	if !(wmin > 0) || wmax < wmin {
		return nil, errors.Errorf("synth: invalid weight range [%g,%g]", wmin, wmax)
	}
	rng := rand.New(rand.NewSource(seed))
	obT, prT := ob.Like("ob_target"), pr.Like("pr_target")
	obW, prW := ob.Like("ob_weight"), pr.Like("pr_weight")
	for _, f := range []*field.Field[T]{obT, prT} {
		for _, s := range f.Storages() {
			for i := range s.Data {
				s.Data[i] = field.FromParts[T](2*rng.Float64()-1, 2*rng.Float64()-1)
			}
		}
	}
	for _, f := range []*field.Field[T]{obW, prW} {
		for _, s := range f.Storages() {
			for i := range s.Data {
				s.Data[i] = field.FromParts[T](wmin+(wmax-wmin)*rng.Float64(), 0)
			}
		}
	}
	return NewBowl(ob, pr, obT, prT, obW, prW)
}

func ones[T field.Scalar](like *field.Field[T], name string) *field.Field[T] {
	w := like.Like(name)
	w.Fill(field.FromParts[T](1, 0))
	return w
}

// diff refreshes the scratch fields with d = x − x* and W·d.
func (b *Bowl[T]) diff() {
	b.obD.Assign(b.Object)
	b.obD.Sub(b.ObTarget)
	b.prD.Assign(b.Probe)
	b.prD.Sub(b.PrTarget)
	b.obW.Assign(b.obD)
	b.obW.Mul(b.ObWeight)
	b.prW.Assign(b.prD)
	b.prW.Mul(b.PrWeight)
}

// Error returns the value of the bowl at the current estimates.
func (b *Bowl[T]) Error() (float64, error) {
	b.diff()
	return b.metric()
}

func (b *Bowl[T]) metric() (float64, error) {
	fo, err := field.DotReal(b.obD, b.obW)
	if err != nil {
		return 0, err
	}
	fp, err := field.DotReal(b.prD, b.prW)
	if err != nil {
		return 0, err
	}
	return fo + fp, nil
}

// NewGrad writes 2W(x − x*) into the gradient fields and returns the error.
func (b *Bowl[T]) NewGrad(obGrad, prGrad *field.Field[T]) (float64, error) {
	b.diff()
	obGrad.Assign(b.obW)
	obGrad.Scale(2)
	prGrad.Assign(b.prW)
	prGrad.Scale(2)
	return b.metric()
}

// PolyLineCoeffs returns the exact coefficients of f(x + t·h) = b₀ + b₁t + b₂t².
func (b *Bowl[T]) PolyLineCoeffs(obH, prH *field.Field[T]) (c [3]float64, err error) {
	b.diff()
	if c[0], err = b.metric(); err != nil {
		return
	}
	var ob1, pr1 float64
	if ob1, err = field.DotReal(obH, b.obW); err != nil {
		return
	}
	if pr1, err = field.DotReal(prH, b.prW); err != nil {
		return
	}
	c[1] = 2 * (ob1 + pr1)

	// Reuse the weighted scratch fields for W·h.
	b.obW.Assign(obH)
	b.obW.Mul(b.ObWeight)
	b.prW.Assign(prH)
	b.prW.Mul(b.PrWeight)
	var ob2, pr2 float64
	if ob2, err = field.DotReal(obH, b.obW); err != nil {
		return
	}
	if pr2, err = field.DotReal(prH, b.prW); err != nil {
		return
	}
	c[2] = ob2 + pr2
	return
}

// Distance returns the Euclidean distance of the estimates to the minimizer.
func (b *Bowl[T]) Distance() (float64, error) {
	b.obD.Assign(b.Object)
	b.obD.Sub(b.ObTarget)
	b.prD.Assign(b.Probe)
	b.prD.Sub(b.PrTarget)
	do, err := field.Norm2(b.obD)
	if err != nil {
		return 0, err
	}
	dp, err := field.Norm2(b.prD)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(do + dp), nil
}
