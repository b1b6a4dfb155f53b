// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

import (
	"github.com/curioloop/ptyopt/field"
)

// Model evaluates the error functional of a reconstruction.
// It reads the current object and probe estimates of the Problem it was
// built for.
type Model[T field.Scalar] interface {
	// NewGrad writes the gradients of the current estimates into obGrad and
	// prGrad and returns the error metric.
	NewGrad(obGrad, prGrad *field.Field[T]) (float64, error)
	// PolyLineCoeffs returns the coefficients [b₀ b₁ b₂] of the quadratic
	// approximation of the error along the direction (obH, prH).
	PolyLineCoeffs(obH, prH *field.Field[T]) ([3]float64, error)
}

// Smoother regularizes a gradient field in place.
type Smoother[T field.Scalar] interface {
	Smooth(f *field.Field[T], sigma float64)
}
