// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reduce implements the two-stage block reduction used by every
// inner product of the reconstruction engine.
//
// An input of n elements is split into ⌈n / BlockSize⌉ blocks. The first
// stage computes one partial accumulation per block, in parallel when more
// than one worker is configured. The second stage folds the partials in block
// order. A single block is written straight to the result.
//
// Accumulation happens in the configured Precision, which is independent of
// the element type: single precision arrays are usually reduced in double
// precision to bound the drift of very long sums. Results are reproducible for
// a fixed BlockSize, but may change in the last bits when BlockSize changes
// since floating point addition is not associative.
package reduce

import (
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the number of elements accumulated by one block.
const DefaultBlockSize = 1024

var (
	// ErrShapeMismatch is returned when the operands of a reduction differ in length.
	ErrShapeMismatch = errors.New("reduce: operand shape mismatch")
	// ErrUnsupported is returned for element types without a reduction kernel.
	ErrUnsupported = errors.New("reduce: unsupported element type")
	// ErrPrecision is returned for an unknown accumulation precision.
	ErrPrecision = errors.New("reduce: unknown precision")
)

// Scalar is the element type of arrays accepted by the kernel.
// Only the predeclared float32, float64, complex64 and complex128 have
// kernels; named types derived from them are rejected with ErrUnsupported.
type Scalar interface {
	constraints.Float | constraints.Complex
}

// Precision selects the accumulation type of a reduction.
type Precision int

const (
	// Single accumulates in float32 (complex64).
	Single Precision = iota + 1
	// Double accumulates in float64 (complex128).
	Double
)

func (p Precision) String() string {
	switch p {
	case Single:
		return "single"
	case Double:
		return "double"
	default:
		return "unknown"
	}
}

// ParsePrecision converts "single" or "double" (case-insensitive) to a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "float32", "float":
		return Single, nil
	case "double", "float64", "":
		return Double, nil
	}
	return 0, errors.Wrapf(ErrPrecision, "%q", s)
}

// Config specifies a reduction kernel.
type Config struct {
	BlockSize int       // Elements per block, DefaultBlockSize if 0.
	Precision Precision // Accumulation precision, Double if 0.
	Workers   int       // Parallel workers of the first stage, runtime.NumCPU() if 0.
}

// New validates the config and creates a kernel.
func (c Config) New() (kernel *Kernel, err error) {
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.Precision == 0 {
		c.Precision = Double
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	switch {
	case c.BlockSize < 0:
		err = errors.Errorf("reduce: block size must be positive, got %d", c.BlockSize)
	case c.Precision != Single && c.Precision != Double:
		err = errors.Wrapf(ErrPrecision, "%d", int(c.Precision))
	case c.Workers < 0:
		err = errors.Errorf("reduce: workers must be positive, got %d", c.Workers)
	}
	if err != nil {
		return
	}
	kernel = &Kernel{
		blockSize: c.BlockSize,
		precision: c.Precision,
		workers:   c.Workers,
	}
	return
}

// Default returns a kernel with the default block size, double precision
// accumulation and one worker per CPU.
func Default() *Kernel {
	k, _ := Config{}.New()
	return k
}

// Kernel performs two-stage reductions.
// It is safe for concurrent use; reductions sharing a kernel are serialized
// on its scratch buffer.
type Kernel struct {
	blockSize int
	precision Precision
	workers   int

	mu      sync.Mutex
	scratch []complex128 // per-block partials, grown on demand and never shrunk
}

// BlockSize returns the number of elements per block.
func (k *Kernel) BlockSize() int { return k.blockSize }

// Precision returns the accumulation precision.
func (k *Kernel) Precision() Precision { return k.precision }

// Workers returns the parallelism of the first stage.
func (k *Kernel) Workers() int { return k.workers }

// partial accumulates the elements [lo, hi) of one block.
type partial func(lo, hi int) complex128

// Dot returns Σ conj(aᵢ)·bᵢ. For real inputs the imaginary part is zero.
func Dot[T Scalar](k *Kernel, a, b []T) (complex128, error) {
	if len(a) != len(b) {
		return 0, errors.Wrapf(ErrShapeMismatch, "dot of %d and %d elements", len(a), len(b))
	}
	blk, acc, err := dotBlock(k.precision, a, b)
	if err != nil {
		return 0, err
	}
	return k.run(len(a), acc, blk), nil
}

// Norm2 returns Σ |aᵢ|².
func Norm2[T Scalar](k *Kernel, a []T) (float64, error) {
	blk, acc, err := norm2Block(k.precision, a)
	if err != nil {
		return 0, err
	}
	return real(k.run(len(a), acc, blk)), nil
}

func (k *Kernel) run(n int, acc Precision, blk partial) complex128 {
	if n == 0 {
		return 0
	}

	bs := k.blockSize
	nb := (n + bs - 1) / bs
	if nb == 1 {
		return blk(0, n)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.scratch) < nb {
		k.scratch = make([]complex128, nb)
	}
	tmp := k.scratch[:nb]

	fill := func(first, last int) {
		for b := first; b < last; b++ {
			lo := b * bs
			tmp[b] = blk(lo, min(lo+bs, n))
		}
	}

	if workers := min(k.workers, nb); workers <= 1 {
		fill(0, nb)
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		per := (nb + workers - 1) / workers
		for first := 0; first < nb; first += per {
			last := min(first+per, nb)
			g.Go(func() error {
				fill(first, last)
				return nil
			})
		}
		_ = g.Wait()
	}

	return fold(acc, tmp)
}

// fold is the second stage: partials are summed in block order.
func fold(acc Precision, tmp []complex128) complex128 {
	if acc == Single {
		var sum complex64
		for _, v := range tmp {
			sum += complex64(v)
		}
		return complex128(sum)
	}
	var sum complex128
	for _, v := range tmp {
		sum += v
	}
	return sum
}
