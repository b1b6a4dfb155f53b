// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package field

import (
	"github.com/curioloop/ptyopt/reduce"
	"github.com/pkg/errors"
)

// IsComplex reports whether T is a complex type.
func IsComplex[T Scalar]() bool {
	var z T
	switch any(z).(type) {
	case complex64, complex128:
		return true
	}
	return false
}

// FromParts builds an element from its real and imaginary parts.
// The imaginary part is dropped for real types.
func FromParts[T Scalar](re, im float64) T {
	var z T
	switch p := any(&z).(type) {
	case *float32:
		*p = float32(re)
	case *float64:
		*p = re
	case *complex64:
		*p = complex(float32(re), float32(im))
	case *complex128:
		*p = complex(re, im)
	default:
		panic(errors.Wrapf(reduce.ErrUnsupported, "%T", z))
	}
	return z
}

// Parts returns the real and imaginary parts of an element.
func Parts[T Scalar](v T) (re, im float64) {
	switch x := any(v).(type) {
	case float32:
		return float64(x), 0
	case float64:
		return x, 0
	case complex64:
		return float64(real(x)), float64(imag(x))
	case complex128:
		return real(x), imag(x)
	}
	panic(errors.Wrapf(reduce.ErrUnsupported, "%T", v))
}

func fromReal[T Scalar](a float64) T {
	return FromParts[T](a, 0)
}
