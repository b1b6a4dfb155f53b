// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reduce

import (
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// DotHalf returns Σ aᵢbᵢ of half precision arrays.
// Half precision is a storage format only: products are formed and
// accumulated in the kernel Precision.
func DotHalf(k *Kernel, a, b []float16.Float16) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Wrapf(ErrShapeMismatch, "dot of %d and %d elements", len(a), len(b))
	}
	var blk partial
	if k.precision == Single {
		blk = func(lo, hi int) complex128 {
			var acc float32
			for i := lo; i < hi; i++ {
				acc += a[i].Float32() * b[i].Float32()
			}
			return complex(float64(acc), 0)
		}
	} else {
		blk = func(lo, hi int) complex128 {
			var acc float64
			for i := lo; i < hi; i++ {
				acc += float64(a[i].Float32()) * float64(b[i].Float32())
			}
			return complex(acc, 0)
		}
	}
	return real(k.run(len(a), k.precision, blk)), nil
}

// Norm2Half returns Σ aᵢ² of a half precision array.
func Norm2Half(k *Kernel, a []float16.Float16) (float64, error) {
	return DotHalf(k, a, a)
}
