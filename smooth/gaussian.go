// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package smooth regularizes gradient fields with a separable Gaussian filter.
package smooth

import (
	"math"

	"github.com/curioloop/ptyopt/field"
)

// DefaultTruncate is the filter radius in units of sigma.
const DefaultTruncate = 4.0

// Gaussian filters every storage of a field over its last two axes, or over
// its only axis for one-dimensional storages. Boundaries are mirrored about
// the edge of the last element (d c b a | a b c d | d c b a).
// It satisfies lbfgs.Smoother.
type Gaussian[T field.Scalar] struct {
	Truncate float64 // DefaultTruncate if 0

	line []T
}

// Smooth filters f in place. A non-positive sigma leaves f unchanged.
func (g *Gaussian[T]) Smooth(f *field.Field[T], sigma float64) {
	if !(sigma > 0) {
		return
	}
	trunc := g.Truncate
	if trunc <= 0 {
		trunc = DefaultTruncate
	}
	w := weights[T](sigma, trunc)

	for _, s := range f.Storages() {
		rows, cols := 1, len(s.Data)
		if n := len(s.Shape); n >= 2 {
			rows, cols = s.Shape[n-2], s.Shape[n-1]
		}
		frame := rows * cols
		if frame == 0 {
			continue
		}
		for off := 0; off+frame <= len(s.Data); off += frame {
			d := s.Data[off : off+frame]
			for r := 0; r < rows; r++ {
				g.convolve(d, r*cols, 1, cols, w)
			}
			if rows > 1 {
				for c := 0; c < cols; c++ {
					g.convolve(d, c, cols, rows, w)
				}
			}
		}
	}
}

// weights returns the normalized 1-D kernel of radius ⌊trunc·σ + ½⌋.
func weights[T field.Scalar](sigma, trunc float64) []T {
	r := int(trunc*sigma + 0.5)
	k := make([]float64, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		x := float64(i) / sigma
		k[i+r] = math.Exp(-0.5 * x * x)
		sum += k[i+r]
	}
	w := make([]T, len(k))
	for i, v := range k {
		w[i] = field.FromParts[T](v/sum, 0)
	}
	return w
}

// convolve filters the n elements d[off], d[off+stride], … in place.
func (g *Gaussian[T]) convolve(d []T, off, stride, n int, w []T) {
	if cap(g.line) < n {
		g.line = make([]T, n)
	}
	line := g.line[:n]
	for i := range line {
		line[i] = d[off+i*stride]
	}
	r := len(w) / 2
	for i := 0; i < n; i++ {
		var acc T
		for k, wk := range w {
			acc += wk * line[reflect(i+k-r, n)]
		}
		d[off+i*stride] = acc
	}
}

// reflect maps an index onto [0,n) by mirroring about the array edges.
func reflect(j, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	j %= period
	if j < 0 {
		j += period
	}
	if j >= n {
		j = period - 1 - j
	}
	return j
}
