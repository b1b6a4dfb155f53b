// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reduce

import (
	"github.com/pkg/errors"
)

// dotBlock selects the block accumulator of conj(a)·b for the element type
// and returns the precision it accumulates in. Double precision elements
// always accumulate in double precision.
func dotBlock[T Scalar](p Precision, a, b []T) (partial, Precision, error) {
	switch x := any(a).(type) {
	case []float32:
		y := any(b).([]float32)
		if p == Single {
			return func(lo, hi int) complex128 {
				return complex(float64(sdot(x[lo:hi], y[lo:hi])), 0)
			}, Single, nil
		}
		return func(lo, hi int) complex128 {
			return complex(dsdot(x[lo:hi], y[lo:hi]), 0)
		}, Double, nil
	case []float64:
		y := any(b).([]float64)
		return func(lo, hi int) complex128 {
			return complex(ddot(x[lo:hi], y[lo:hi]), 0)
		}, Double, nil
	case []complex64:
		y := any(b).([]complex64)
		if p == Single {
			return func(lo, hi int) complex128 {
				return complex128(cdotc(x[lo:hi], y[lo:hi]))
			}, Single, nil
		}
		return func(lo, hi int) complex128 {
			return zcdotc(x[lo:hi], y[lo:hi])
		}, Double, nil
	case []complex128:
		y := any(b).([]complex128)
		return func(lo, hi int) complex128 {
			return zdotc(x[lo:hi], y[lo:hi])
		}, Double, nil
	}
	return nil, 0, errors.Wrapf(ErrUnsupported, "%T", a)
}

// norm2Block selects the block accumulator of |a|² for the element type.
func norm2Block[T Scalar](p Precision, a []T) (partial, Precision, error) {
	switch x := any(a).(type) {
	case []float32:
		if p == Single {
			return func(lo, hi int) complex128 {
				return complex(float64(sdot(x[lo:hi], x[lo:hi])), 0)
			}, Single, nil
		}
		return func(lo, hi int) complex128 {
			return complex(dsdot(x[lo:hi], x[lo:hi]), 0)
		}, Double, nil
	case []float64:
		return func(lo, hi int) complex128 {
			return complex(ddot(x[lo:hi], x[lo:hi]), 0)
		}, Double, nil
	case []complex64:
		if p == Single {
			return func(lo, hi int) complex128 {
				return complex(float64(scnrm2(x[lo:hi])), 0)
			}, Single, nil
		}
		return func(lo, hi int) complex128 {
			return complex(dcnrm2(x[lo:hi]), 0)
		}, Double, nil
	case []complex128:
		return func(lo, hi int) complex128 {
			return complex(dznrm2(x[lo:hi]), 0)
		}, Double, nil
	}
	return nil, 0, errors.Wrapf(ErrUnsupported, "%T", a)
}

// sdot computes Σ xᵢyᵢ in single precision.
func sdot(x, y []float32) (dot float32) {
	n := len(x)
	if len(y) < n {
		panic("bound check error")
	}
	m := n % 5
	for i := 0; i < m; i++ {
		dot += x[i] * y[i]
	}
	for i := m; i < n; i += 5 {
		a := x[i : i+5 : i+5]
		b := y[i : i+5 : i+5]
		dot += a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3] + a[4]*b[4]
	}
	return
}

// dsdot computes Σ xᵢyᵢ of single precision inputs in double precision.
func dsdot(x, y []float32) (dot float64) {
	n := len(x)
	if len(y) < n {
		panic("bound check error")
	}
	m := n % 5
	for i := 0; i < m; i++ {
		dot += float64(x[i]) * float64(y[i])
	}
	for i := m; i < n; i += 5 {
		a := x[i : i+5 : i+5]
		b := y[i : i+5 : i+5]
		dot += float64(a[0])*float64(b[0]) + float64(a[1])*float64(b[1]) +
			float64(a[2])*float64(b[2]) + float64(a[3])*float64(b[3]) +
			float64(a[4])*float64(b[4])
	}
	return
}

// ddot computes Σ xᵢyᵢ.
func ddot(x, y []float64) (dot float64) {
	n := len(x)
	if len(y) < n {
		panic("bound check error")
	}
	m := n % 5
	for i := 0; i < m; i++ {
		dot += x[i] * y[i]
	}
	for i := m; i < n; i += 5 {
		a := x[i : i+5 : i+5]
		b := y[i : i+5 : i+5]
		dot += a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3] + a[4]*b[4]
	}
	return
}

// cdotc computes Σ conj(xᵢ)yᵢ in single precision.
func cdotc(x, y []complex64) complex64 {
	if len(y) < len(x) {
		panic("bound check error")
	}
	var re, im float32
	for i, a := range x {
		ar, ai := real(a), imag(a)
		br, bi := real(y[i]), imag(y[i])
		re += ar*br + ai*bi
		im += ar*bi - ai*br
	}
	return complex(re, im)
}

// zcdotc computes Σ conj(xᵢ)yᵢ of single precision inputs in double precision.
func zcdotc(x, y []complex64) complex128 {
	if len(y) < len(x) {
		panic("bound check error")
	}
	var re, im float64
	for i, a := range x {
		ar, ai := float64(real(a)), float64(imag(a))
		br, bi := float64(real(y[i])), float64(imag(y[i]))
		re += ar*br + ai*bi
		im += ar*bi - ai*br
	}
	return complex(re, im)
}

// zdotc computes Σ conj(xᵢ)yᵢ.
func zdotc(x, y []complex128) complex128 {
	if len(y) < len(x) {
		panic("bound check error")
	}
	var re, im float64
	for i, a := range x {
		ar, ai := real(a), imag(a)
		br, bi := real(y[i]), imag(y[i])
		re += ar*br + ai*bi
		im += ar*bi - ai*br
	}
	return complex(re, im)
}

func scnrm2(x []complex64) (sum float32) {
	for _, v := range x {
		r, i := real(v), imag(v)
		sum += r*r + i*i
	}
	return
}

func dcnrm2(x []complex64) (sum float64) {
	for _, v := range x {
		r, i := float64(real(v)), float64(imag(v))
		sum += r*r + i*i
	}
	return
}

func dznrm2(x []complex128) (sum float64) {
	for _, v := range x {
		r, i := real(v), imag(v)
		sum += r*r + i*i
	}
	return
}
