// Package numdiff approximates gradients of scalar functionals of fields by
// finite differences.
package numdiff

import (
	"math"

	"github.com/curioloop/ptyopt/field"
	"github.com/pkg/errors"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	Central
)

// ApproxSpec estimates the gradient of a real functional of a field.
//
// For complex fields the real and imaginary parts are perturbed separately
// and the gradient follows the convention g = ∂f/∂Re + i·∂f/∂Im, so that the
// directional derivative along h is Re(Σ conj(g)·h).
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
type ApproxSpec[T field.Scalar] struct {
	// Functional of which to estimate the gradient.
	// It is evaluated on the current content of the field passed to Diff.
	Object func() (float64, error)
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute absolute step size.
	// The default absolute step size is computed as h = eps * sign(x0) * max(1, abs(x0)).
	// Otherwise, absolute step size is computed as h = RelStep * sign(x0) * abs(x0) when RelStep is provided.
	RelStep float64
	// Absolute step size to use.
	// The RelStep is used when AbsStep is not provide.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
}

// Check the parameters.
func (as *ApproxSpec[T]) Check(x, grad *field.Field[T]) (err error) {
	switch {
	case as.Method != Forward && as.Method != Central:
		err = errors.New("numdiff: unknown method")
	case as.Object == nil:
		err = errors.New("numdiff: object function is required")
	case x == nil || grad == nil:
		err = errors.New("numdiff: field is required")
	case as.RelStep < 0:
		err = errors.New("numdiff: negative relative step")
	default:
		err = x.Compatible(grad)
	}
	return
}

// Diff writes the gradient of Object with respect to x into grad.
// Every element of x is perturbed in turn and restored afterwards.
// The field must not be distributed, since each evaluation only sees the
// elements held by this rank.
func (as *ApproxSpec[T]) Diff(x, grad *field.Field[T]) error {
	if err := as.Check(x, grad); err != nil {
		return err
	}

	f0, err := as.Object()
	if err != nil {
		return errors.Wrap(err, "numdiff: evaluate")
	}

	parts := 1
	if field.IsComplex[T]() {
		parts = 2
	}

	gs := grad.Storages()
	for si, s := range x.Storages() {
		g := gs[si].Data
		for i, v := range s.Data {
			var d [2]float64
			for c := 0; c < parts; c++ {
				re, im := field.Parts(v)
				x0 := re
				if c == 1 {
					x0 = im
				}
				set := func(t float64) {
					if c == 0 {
						s.Data[i] = field.FromParts[T](t, im)
					} else {
						s.Data[i] = field.FromParts[T](re, t)
					}
				}
				if d[c], err = as.approx(x0, f0, set); err != nil {
					s.Data[i] = v
					return errors.Wrapf(err, "numdiff: %s[%s][%d]", x.Name, s.ID, i)
				}
			}
			s.Data[i] = v
			g[i] = field.FromParts[T](d[0], d[1])
		}
	}
	return nil
}

// approx estimates the partial derivative along one real coordinate.
// set moves the coordinate to the given value.
func (as *ApproxSpec[T]) approx(x0, f0 float64, set func(float64)) (float64, error) {
	h := as.absoluteStep(x0)
	if as.Method == Central {
		h = math.Abs(h)
		set(x0 - h)
		f1, err := as.Object()
		if err != nil {
			return 0, err
		}
		set(x0 + h)
		f2, err := as.Object()
		if err != nil {
			return 0, err
		}
		return (f2 - f1) / (2 * h), nil
	}
	set(x0 + h)
	f1, err := as.Object()
	if err != nil {
		return 0, err
	}
	return (f1 - f0) / h, nil
}

func (as *ApproxSpec[T]) absoluteStep(x0 float64) float64 {
	var eps float64
	switch as.Method {
	case Forward:
		eps = sqrtEps
	case Central:
		eps = cubeEps
	default:
		panic("unknown method")
	}

	abs := as.AbsStep
	rel := as.RelStep
	if abs == 0 && rel == 0 {
		return math.Copysign(eps, x0) * math.Max(1.0, math.Abs(x0))
	}
	s := abs
	if s == 0 {
		s = math.Copysign(rel, x0) * math.Abs(x0)
	}
	if d := (x0 + s) - x0; d == 0 {
		s = math.Copysign(eps, x0) * math.Max(1.0, math.Abs(x0))
	}
	return s
}

// MaxDeviation returns the largest element-wise distance |a - b| and the
// largest distance relative to max(1, |b|).
func MaxDeviation[T field.Scalar](a, b *field.Field[T]) (abs, rel float64, err error) {
	if err = a.Compatible(b); err != nil {
		return
	}
	bs := b.Storages()
	for si, s := range a.Storages() {
		for i, v := range s.Data {
			ar, ai := field.Parts(v)
			br, bi := field.Parts(bs[si].Data[i])
			d := math.Hypot(ar-br, ai-bi)
			abs = math.Max(abs, d)
			rel = math.Max(rel, d/math.Max(1, math.Hypot(br, bi)))
		}
	}
	return
}
