// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reduce

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newKernel(t *testing.T, bs int, p Precision, workers int) *Kernel {
	k, err := Config{BlockSize: bs, Precision: p, Workers: workers}.New()
	require.NoError(t, err)
	return k
}

func randReal(rng *rand.Rand, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	return x
}

func randComplex(rng *rand.Rand, n int) []complex128 {
	x := make([]complex128, n)
	for i := range x {
		x[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	return x
}

func TestConfig(t *testing.T) {
	k, err := Config{}.New()
	require.NoError(t, err)
	assert.Equal(t, DefaultBlockSize, k.BlockSize())
	assert.Equal(t, Double, k.Precision())
	assert.Positive(t, k.Workers())

	_, err = Config{BlockSize: -1}.New()
	assert.Error(t, err)
	_, err = Config{Precision: 7}.New()
	assert.ErrorIs(t, err, ErrPrecision)

	p, err := ParsePrecision("Single")
	require.NoError(t, err)
	assert.Equal(t, Single, p)
	p, err = ParsePrecision("double")
	require.NoError(t, err)
	assert.Equal(t, Double, p)
	_, err = ParsePrecision("quad")
	assert.ErrorIs(t, err, ErrPrecision)
}

func TestEmpty(t *testing.T) {
	k := newKernel(t, 4, Double, 2)
	d, err := Dot(k, []float64{}, []float64{})
	require.NoError(t, err)
	assert.Zero(t, d)
	n, err := Norm2(k, []complex64(nil))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestShapeMismatch(t *testing.T) {
	k := Default()
	_, err := Dot(k, []float64{1, 2, 3}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = DotHalf(k, make([]float16.Float16, 2), make([]float16.Float16, 3))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestUnsupported(t *testing.T) {
	type myFloat float64
	_, err := Dot(Default(), []myFloat{1}, []myFloat{2})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDotReal(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, n := range []int{1, 4, 5, 1023, 1024, 1025, 5000} {
		x, y := randReal(rng, n), randReal(rng, n)
		want := floats.Dot(x, y)
		for _, bs := range []int{1, 7, 64, 1024} {
			for _, w := range []int{1, 3, 8} {
				got, err := Dot(newKernel(t, bs, Double, w), x, y)
				require.NoError(t, err)
				assert.InDelta(t, want, real(got), 1e-9*float64(n), "n=%d bs=%d workers=%d", n, bs, w)
				assert.Zero(t, imag(got))
			}
		}
	}
}

func TestWorkersDoNotChangeResult(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x, y := randComplex(rng, 10000), randComplex(rng, 10000)
	ref, err := Dot(newKernel(t, 128, Double, 1), x, y)
	require.NoError(t, err)
	for _, w := range []int{2, 5, 16} {
		got, err := Dot(newKernel(t, 128, Double, w), x, y)
		require.NoError(t, err)
		assert.Equal(t, ref, got, "workers=%d", w)
	}
}

func TestBlockSizeInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	x := randComplex(rng, 3000)
	ref, err := Norm2(newKernel(t, 1, Double, 1), x)
	require.NoError(t, err)
	for _, bs := range []int{2, 33, 512, 1024, 4096} {
		got, err := Norm2(newKernel(t, bs, Double, 4), x)
		require.NoError(t, err)
		assert.InEpsilon(t, ref, got, 1e-12, "bs=%d", bs)
	}
}

func TestComplexDot(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	k := newKernel(t, 16, Double, 4)
	x, y, z := randComplex(rng, 100), randComplex(rng, 100), randComplex(rng, 100)

	xy, err := Dot(k, x, y)
	require.NoError(t, err)
	yx, err := Dot(k, y, x)
	require.NoError(t, err)
	assert.InDelta(t, 0, cmplx.Abs(xy-cmplx.Conj(yx)), 1e-10)

	// conjugate-linear in the first argument, linear in the second
	const a = complex(0.5, -2)
	ax := make([]complex128, len(x))
	yz := make([]complex128, len(y))
	for i := range x {
		ax[i] = a * x[i]
		yz[i] = y[i] + z[i]
	}
	axy, err := Dot(k, ax, y)
	require.NoError(t, err)
	assert.InDelta(t, 0, cmplx.Abs(axy-cmplx.Conj(a)*xy), 1e-10)

	xz, err := Dot(k, x, z)
	require.NoError(t, err)
	xyz, err := Dot(k, x, yz)
	require.NoError(t, err)
	assert.InDelta(t, 0, cmplx.Abs(xyz-(xy+xz)), 1e-10)

	xx, err := Dot(k, x, x)
	require.NoError(t, err)
	n2, err := Norm2(k, x)
	require.NoError(t, err)
	assert.InDelta(t, n2, real(xx), 1e-10)
	assert.InDelta(t, 0, imag(xx), 1e-10)
}

func TestNorm2(t *testing.T) {
	k := newKernel(t, 8, Single, 2)
	zero := make([]complex64, 100)
	n, err := Norm2(k, zero)
	require.NoError(t, err)
	assert.Zero(t, n)

	zero[57] = complex(1e-3, 0)
	n, err = Norm2(k, zero)
	require.NoError(t, err)
	assert.Positive(t, n)

	rng := rand.New(rand.NewSource(5))
	x := make([]float32, 999)
	for i := range x {
		x[i] = float32(rng.NormFloat64())
	}
	n, err = Norm2(k, x)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 0.0)
}

func TestSinglePrecisionInputs(t *testing.T) {
	const n = 1 << 20
	rng := rand.New(rand.NewSource(3))
	x := make([]float32, n)
	y := make([]float32, n)
	var want float64
	for i := range x {
		x[i] = rng.Float32()
		y[i] = 1.1
		want += float64(x[i]) * float64(y[i])
	}

	// One block, so the whole sum runs in the accumulator.
	single, err := Dot(newKernel(t, n, Single, 1), x, y)
	require.NoError(t, err)
	double, err := Dot(newKernel(t, n, Double, 1), x, y)
	require.NoError(t, err)

	errSingle := math.Abs(real(single) - want)
	errDouble := math.Abs(real(double) - want)
	assert.Greater(t, errSingle, 1e-3)
	assert.Less(t, errDouble, errSingle)
	assert.InEpsilon(t, want, real(double), 1e-12)

	c := make([]complex64, 1000)
	for i := range c {
		c[i] = complex(float32(i), -1)
	}
	cs, err := Dot(newKernel(t, 64, Single, 2), c, c)
	require.NoError(t, err)
	cd, err := Dot(newKernel(t, 64, Double, 2), c, c)
	require.NoError(t, err)
	assert.InEpsilon(t, real(cd), real(cs), 1e-5)
	assert.Zero(t, imag(cd))
}

func TestScratchGrowOnly(t *testing.T) {
	k := newKernel(t, 4, Double, 2)
	_, err := Norm2(k, make([]float64, 400))
	require.NoError(t, err)
	require.Len(t, k.scratch, 100)
	_, err = Norm2(k, make([]float64, 40))
	require.NoError(t, err)
	assert.Len(t, k.scratch, 100)
}

func TestDotHalf(t *testing.T) {
	a := make([]float16.Float16, 3000)
	b := make([]float16.Float16, 3000)
	want := 0.0
	for i := range a {
		a[i] = float16.Fromfloat32(float32(i%7) * 0.25)
		b[i] = float16.Fromfloat32(float32(i%3) - 1)
		want += float64(a[i].Float32()) * float64(b[i].Float32())
	}
	for _, p := range []Precision{Single, Double} {
		got, err := DotHalf(newKernel(t, 256, p, 4), a, b)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-9, p.String())
	}
	n, err := Norm2Half(Default(), a)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestDoubleElementsIgnoreSingle(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	x := randComplex(rng, 5000)
	y := randComplex(rng, 5000)
	single, err := Dot(newKernel(t, 128, Single, 3), x, y)
	require.NoError(t, err)
	double, err := Dot(newKernel(t, 128, Double, 3), x, y)
	require.NoError(t, err)
	assert.Equal(t, double, single)
}
