// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package smooth

import (
	"math"
	"testing"

	"github.com/curioloop/ptyopt/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestReflect(t *testing.T) {
	// d c b a | a b c d | d c b a
	n := 4
	want := map[int]int{-4: 3, -3: 2, -2: 1, -1: 0, 0: 0, 3: 3, 4: 3, 5: 2, 7: 0, 8: 0, 9: 1}
	for j, w := range want {
		assert.Equal(t, w, reflect(j, n), "index %d", j)
	}
	assert.Equal(t, 0, reflect(-5, 1))
}

func TestWeights(t *testing.T) {
	w := weights[float64](1.5, DefaultTruncate)
	require.Len(t, w, 2*6+1)
	assert.InDelta(t, 1, floats.Sum(w), 1e-12)
	for i := range w {
		assert.Equal(t, w[i], w[len(w)-1-i])
	}
	assert.Equal(t, w[6], floats.Max(w))
}

func TestNoOp(t *testing.T) {
	f := field.New[float64]("f", nil, nil)
	d := f.AddStorage("s", 3, 3).Data
	for i := range d {
		d[i] = float64(i)
	}
	orig := append([]float64(nil), d...)

	var g Gaussian[float64]
	g.Smooth(f, 0)
	g.Smooth(f, -1)
	g.Smooth(f, math.NaN())
	assert.Equal(t, orig, d)
}

func TestConstantPreserved(t *testing.T) {
	f := field.New[complex64]("f", nil, nil)
	f.AddStorage("img", 2, 5, 7)
	f.AddStorage("line", 9)
	f.Fill(2 - 1i)

	var g Gaussian[complex64]
	g.Smooth(f, 2)
	for _, s := range f.Storages() {
		for _, v := range s.Data {
			assert.InDelta(t, 2, real(v), 1e-5)
			assert.InDelta(t, -1, imag(v), 1e-5)
		}
	}
}

func TestImpulse(t *testing.T) {
	f := field.New[float64]("f", nil, nil)
	d := f.AddStorage("s", 15, 15).Data
	d[7*15+7] = 1

	var g Gaussian[float64]
	g.Smooth(f, 1)

	// Mass is kept and the response is the separable kernel.
	assert.InDelta(t, 1, floats.Sum(d), 1e-12)
	w := weights[float64](1, DefaultTruncate)
	for r := 3; r <= 11; r++ {
		for c := 3; c <= 11; c++ {
			assert.InDelta(t, w[r-3]*w[c-3], d[r*15+c], 1e-14)
		}
	}
	assert.Equal(t, d[7*15+7], floats.Max(d))
}

func TestFramesIndependent(t *testing.T) {
	f := field.New[float64]("f", nil, nil)
	d := f.AddStorage("s", 2, 4, 4).Data
	d[5] = 1

	var g Gaussian[float64]
	g.Smooth(f, 0.8)
	assert.InDelta(t, 1, floats.Sum(d[:16]), 1e-12)
	assert.Equal(t, make([]float64, 16), d[16:])
}
