// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package field

import (
	"github.com/curioloop/ptyopt/parallel"
	"github.com/curioloop/ptyopt/reduce"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Half is a half precision snapshot of a field, one slice per storage.
// Complex elements are stored as interleaved real and imaginary parts.
type Half struct {
	Name string
	Data [][]float16.Float16

	kernel *reduce.Kernel
	comm   parallel.Comm
}

// ToHalf rounds every element of f to half precision.
func ToHalf[T Scalar](f *Field[T]) *Half {
	parts := 1
	if IsComplex[T]() {
		parts = 2
	}
	h := &Half{
		Name:   f.Name,
		Data:   make([][]float16.Float16, len(f.storages)),
		kernel: f.kernel,
		comm:   f.comm,
	}
	for i, s := range f.storages {
		d := make([]float16.Float16, parts*len(s.Data))
		for j, v := range s.Data {
			re, im := Parts(v)
			d[parts*j] = float16.Fromfloat32(float32(re))
			if parts == 2 {
				d[parts*j+1] = float16.Fromfloat32(float32(im))
			}
		}
		h.Data[i] = d
	}
	return h
}

// Bytes returns the memory held by the snapshot on this rank.
func (h *Half) Bytes() (n uint64) {
	for _, d := range h.Data {
		n += 2 * uint64(len(d))
	}
	return
}

// Dot returns the real inner product of two snapshots over all ranks.
func (h *Half) Dot(g *Half) (float64, error) {
	if len(h.Data) != len(g.Data) {
		return 0, errors.Wrapf(ErrLayout, "%s has %d storages, %s has %d",
			h.Name, len(h.Data), g.Name, len(g.Data))
	}
	var sum float64
	for i, d := range h.Data {
		v, err := reduce.DotHalf(h.kernel, d, g.Data[i])
		if err != nil {
			return 0, errors.Wrapf(err, "dot %s[%d]", h.Name, i)
		}
		sum += v
	}
	return real(h.comm.Allreduce(complex(sum, 0))), nil
}

// Norm2 returns Σ |a|² of the snapshot over all ranks.
func (h *Half) Norm2() (float64, error) {
	var sum float64
	for i, d := range h.Data {
		v, err := reduce.Norm2Half(h.kernel, d)
		if err != nil {
			return 0, errors.Wrapf(err, "norm2 %s[%d]", h.Name, i)
		}
		sum += v
	}
	return real(h.comm.Allreduce(complex(sum, 0))), nil
}
