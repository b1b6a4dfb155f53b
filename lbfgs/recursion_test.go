// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

import (
	"math/rand"
	"testing"

	"github.com/curioloop/ptyopt/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func flatten(j joint[float64]) []float64 {
	var x []float64
	for _, f := range []*field.Field[float64]{j.ob, j.pr} {
		for _, s := range f.Storages() {
			x = append(x, s.Data...)
		}
	}
	return x
}

func setFlat(j joint[float64], x []float64) {
	for _, f := range []*field.Field[float64]{j.ob, j.pr} {
		for _, s := range f.Storages() {
			x = x[copy(s.Data, x):]
		}
	}
}

func TestTwoLoopEmpty(t *testing.T) {
	ob, pr := spaces()
	h := NewHistory(2, ob, pr)
	q := likeJoint(ob, pr, "_q")
	setFlat(q, []float64{1, 2, 3, 4, 5})
	require.NoError(t, twoLoop(h, q, make([]float64, 2)))
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, flatten(q))
}

func TestTwoLoopSinglePair(t *testing.T) {
	ob, pr := spaces()
	h := NewHistory(3, ob, pr)
	s := []float64{1, -2, 0.5, 3, 1}
	y := []float64{2, -1, 1, 2, 0.5}
	q0 := []float64{0.3, 0.7, -1, 2, -0.4}

	st := h.stage()
	setFlat(st.s(), s)
	setFlat(st.y(), y)
	require.NoError(t, h.push(1))

	q := likeJoint(ob, pr, "_q")
	setFlat(q, q0)
	require.NoError(t, twoLoop(h, q, make([]float64, 3)))

	// H q = γ(q − α y) + (α − β) s with α = ρ sᵀq, β = ρ yᵀ(γ(q − α y)).
	rho := 1 / floats.Dot(s, y)
	gamma := floats.Dot(s, y) / floats.Dot(y, y)
	alpha := rho * floats.Dot(s, q0)
	r := make([]float64, len(q0))
	floats.AddScaledTo(r, q0, -alpha, y)
	floats.Scale(gamma, r)
	beta := rho * floats.Dot(y, r)
	floats.AddScaled(r, alpha-beta, s)

	assert.InDeltaSlice(t, r, flatten(q), 1e-12)
}

func TestTwoLoopSecant(t *testing.T) {
	ob, pr := spaces()
	h := NewHistory(3, ob, pr)
	rng := rand.New(rand.NewSource(42))

	var s, y []float64
	for it := 1; it <= 5; it++ {
		s = make([]float64, 5)
		y = make([]float64, 5)
		for i := range s {
			s[i] = rng.NormFloat64()
			y[i] = s[i] * (1 + rng.Float64())
		}
		st := h.stage()
		setFlat(st.s(), s)
		setFlat(st.y(), y)
		require.NoError(t, h.push(it))
	}
	require.Equal(t, 3, h.Len())

	// The newest pair satisfies H y = s.
	q := likeJoint(ob, pr, "_q")
	setFlat(q, y)
	require.NoError(t, twoLoop(h, q, make([]float64, 3)))
	assert.InDeltaSlice(t, s, flatten(q), 1e-10)

	// H stays positive definite.
	d := make([]float64, 5)
	for i := range d {
		d[i] = rng.NormFloat64()
	}
	setFlat(q, d)
	require.NoError(t, twoLoop(h, q, make([]float64, 3)))
	assert.Greater(t, floats.Dot(d, flatten(q)), 0.0)
}

func TestTwoLoopComplex(t *testing.T) {
	ob := field.New[complex128]("ob", nil, nil)
	ob.AddStorage("S00", 2)
	pr := field.New[complex128]("pr", nil, nil)
	pr.AddStorage("P00", 1)
	h := NewHistory(1, ob, pr)

	st := h.stage()
	copy(st.ObS.Storage("S00").Data, []complex128{1i, 1})
	copy(st.PrS.Storage("P00").Data, []complex128{1 - 1i})
	copy(st.ObY.Storage("S00").Data, []complex128{2i, 1 + 1i})
	copy(st.PrY.Storage("P00").Data, []complex128{3 - 1i})
	require.NoError(t, h.push(1))

	q := likeJoint(ob, pr, "_q")
	q.ob.Assign(st.ObY)
	q.pr.Assign(st.PrY)
	require.NoError(t, twoLoop(h, q, make([]float64, 1)))

	for i, v := range q.ob.Storage("S00").Data {
		w := st.ObS.Storage("S00").Data[i]
		assert.InDelta(t, real(w), real(v), 1e-12)
		assert.InDelta(t, imag(w), imag(v), 1e-12)
	}
	v, w := q.pr.Storage("P00").Data[0], st.PrS.Storage("P00").Data[0]
	assert.InDelta(t, real(w), real(v), 1e-12)
	assert.InDelta(t, imag(w), imag(v), 1e-12)
}
