// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synth

import (
	"math"

	"github.com/curioloop/ptyopt/field"
)

// LineModel is the part of a model a Faulty decorator forwards to.
type LineModel[T field.Scalar] interface {
	NewGrad(obGrad, prGrad *field.Field[T]) (float64, error)
	PolyLineCoeffs(obH, prH *field.Field[T]) ([3]float64, error)
}

// Fault replaces one line coefficient on one call of PolyLineCoeffs, or
// fails that call when Err is set.
type Fault struct {
	Call  int     // zero-based index of the PolyLineCoeffs call
	Coeff int     // coefficient index, 0 to 2
	Value float64 // injected value, typically NaN or ±Inf
	Err   error
}

// Faulty wraps a model and corrupts its line coefficients on selected calls.
type Faulty[T field.Scalar] struct {
	Model  LineModel[T]
	Faults []Fault

	calls int
}

// NaN returns a fault injecting NaN.
func NaN(call, coeff int) Fault { return Fault{Call: call, Coeff: coeff, Value: math.NaN()} }

// Inf returns a fault injecting +Inf.
func Inf(call, coeff int) Fault { return Fault{Call: call, Coeff: coeff, Value: math.Inf(1)} }

// Fail returns a fault making the call return err.
func Fail(call int, err error) Fault { return Fault{Call: call, Err: err} }

// NewGrad forwards to the wrapped model.
func (f *Faulty[T]) NewGrad(obGrad, prGrad *field.Field[T]) (float64, error) {
	return f.Model.NewGrad(obGrad, prGrad)
}

// PolyLineCoeffs forwards to the wrapped model and applies the faults
// registered for this call.
func (f *Faulty[T]) PolyLineCoeffs(obH, prH *field.Field[T]) ([3]float64, error) {
	c, err := f.Model.PolyLineCoeffs(obH, prH)
	if err != nil {
		return c, err
	}
	call := f.calls
	f.calls++
	for _, ft := range f.Faults {
		if ft.Call != call {
			continue
		}
		if ft.Err != nil {
			return [3]float64{}, ft.Err
		}
		c[ft.Coeff] = ft.Value
	}
	return c, nil
}

// Calls returns the number of PolyLineCoeffs calls seen so far.
func (f *Faulty[T]) Calls() int { return f.calls }
