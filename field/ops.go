// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package field

import (
	"github.com/curioloop/ptyopt/reduce"
	"github.com/pkg/errors"
)

// Element-wise operations work in place on the receiver and panic when the
// operands do not share a layout.

// Fill sets every element to v.
func (f *Field[T]) Fill(v T) {
	for _, s := range f.storages {
		for i := range s.Data {
			s.Data[i] = v
		}
	}
}

// Assign copies src into f (f << src).
func (f *Field[T]) Assign(src *Field[T]) {
	f.mustCompatible(src)
	for i, s := range f.storages {
		copy(s.Data, src.storages[i].Data)
	}
}

// Add computes f += src.
func (f *Field[T]) Add(src *Field[T]) {
	f.AddScaled(1, src)
}

// Sub computes f -= src.
func (f *Field[T]) Sub(src *Field[T]) {
	f.AddScaled(-1, src)
}

// Scale computes f *= a.
func (f *Field[T]) Scale(a float64) {
	if a == 1 {
		return
	}
	da := fromReal[T](a)
	for _, s := range f.storages {
		scal(da, s.Data)
	}
}

// AddScaled computes f += a·src.
func (f *Field[T]) AddScaled(a float64, src *Field[T]) {
	f.mustCompatible(src)
	if a == 0 {
		return
	}
	da := fromReal[T](a)
	for i, s := range f.storages {
		axpy(da, src.storages[i].Data, s.Data)
	}
}

// Mul computes f *= m element-wise.
func (f *Field[T]) Mul(m *Field[T]) {
	f.mustCompatible(m)
	for i, s := range f.storages {
		x := m.storages[i].Data
		for j := range s.Data {
			s.Data[j] *= x[j]
		}
	}
}

// Dot returns Σ conj(a)·b over all storages and all ranks.
func Dot[T Scalar](a, b *Field[T]) (complex128, error) {
	if err := a.Compatible(b); err != nil {
		return 0, err
	}
	var sum complex128
	for i, s := range a.storages {
		d, err := reduce.Dot(a.kernel, s.Data, b.storages[i].Data)
		if err != nil {
			return 0, errors.Wrapf(err, "dot %s[%s]", a.Name, s.ID)
		}
		sum += d
	}
	return a.comm.Allreduce(sum), nil
}

// DotReal returns the real part of Dot(a, b).
func DotReal[T Scalar](a, b *Field[T]) (float64, error) {
	d, err := Dot(a, b)
	return real(d), err
}

// Norm2 returns Σ |a|² over all storages and all ranks.
func Norm2[T Scalar](a *Field[T]) (float64, error) {
	var sum float64
	for _, s := range a.storages {
		n, err := reduce.Norm2(a.kernel, s.Data)
		if err != nil {
			return 0, errors.Wrapf(err, "norm2 %s[%s]", a.Name, s.ID)
		}
		sum += n
	}
	return real(a.comm.Allreduce(complex(sum, 0))), nil
}

// axpy computes y += a·x.
func axpy[T Scalar](a T, x, y []T) {
	n := len(y)
	if len(x) < n {
		panic("bound check error")
	}
	m := n % 4
	for i := 0; i < m; i++ {
		y[i] += a * x[i]
	}
	for i := m; i < n; i += 4 {
		xs := x[i : i+4 : i+4]
		ys := y[i : i+4 : i+4]
		ys[0] += a * xs[0]
		ys[1] += a * xs[1]
		ys[2] += a * xs[2]
		ys[3] += a * xs[3]
	}
}

// scal computes x *= a.
func scal[T Scalar](a T, x []T) {
	n := len(x)
	m := n % 5
	for i := 0; i < m; i++ {
		x[i] *= a
	}
	for i := m; i < n; i += 5 {
		d := x[i : i+5 : i+5]
		d[0] *= a
		d[1] *= a
		d[2] *= a
		d[3] *= a
		d[4] *= a
	}
}
