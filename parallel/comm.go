// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package parallel aggregates scalars across the ranks that together hold one
// logical field.
package parallel

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Comm sums a scalar over every rank of a group.
//
// Allreduce is a barrier: it returns only after all ranks contributed, and
// every rank receives the same value.
type Comm interface {
	Rank() int
	Size() int
	Allreduce(v complex128) complex128
}

// Serial is the communicator of a single process holding whole fields.
type Serial struct{}

func (Serial) Rank() int                         { return 0 }
func (Serial) Size() int                         { return 1 }
func (Serial) Allreduce(v complex128) complex128 { return v }

// NewGroup creates n in-process ranks sharing one reduction barrier.
// Contributions are summed in rank order so the result does not depend on
// the arrival order.
func NewGroup(n int) []Comm {
	if n <= 0 {
		panic("parallel: group size must be positive")
	}
	g := &group{size: n, vals: make([]complex128, n)}
	g.cond = sync.NewCond(&g.mu)
	comms := make([]Comm, n)
	for r := range comms {
		comms[r] = &member{g: g, rank: r}
	}
	return comms
}

type group struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	vals    []complex128
	arrived int
	gen     uint64
	result  complex128
}

type member struct {
	g    *group
	rank int
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.g.size }

func (m *member) Allreduce(v complex128) complex128 {
	g := m.g
	g.mu.Lock()
	defer g.mu.Unlock()

	gen := g.gen
	g.vals[m.rank] = v
	g.arrived++
	if g.arrived == g.size {
		var sum complex128
		for _, x := range g.vals {
			sum += x
		}
		g.result = sum
		g.arrived = 0
		g.gen++
		g.cond.Broadcast()
		return sum
	}
	for gen == g.gen {
		g.cond.Wait()
	}
	return g.result
}

// Run executes fn once per rank, each in its own goroutine, and returns the
// first error. A rank that fails while others wait in Allreduce deadlocks the
// group, so fn should only fail before or after its collective calls.
func Run(comms []Comm, fn func(c Comm) error) error {
	var g errgroup.Group
	for _, c := range comms {
		g.Go(func() error {
			return errors.Wrapf(fn(c), "rank %d", c.Rank())
		})
	}
	return g.Wait()
}
