// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package field provides the arrays refined by the reconstruction engine.
//
// A Field is one mathematical vector split into named storages. A field may
// also be distributed: every rank of a parallel.Comm holds its own storages,
// and inner products are summed over all ranks before they are returned.
package field

import (
	"fmt"

	"github.com/curioloop/ptyopt/parallel"
	"github.com/curioloop/ptyopt/reduce"
	"github.com/pkg/errors"
)

// ErrLayout is returned when two fields do not share the same storages.
var ErrLayout = errors.New("field: layout mismatch")

// Scalar is the element type of a field.
type Scalar = reduce.Scalar

// Storage is one contiguous partition of a field.
type Storage[T Scalar] struct {
	ID    string
	Shape []int
	Data  []T
}

// Len returns the number of elements of the storage.
func (s *Storage[T]) Len() int { return len(s.Data) }

// Field is an ordered set of storages behaving as one vector.
type Field[T Scalar] struct {
	Name string

	kernel   *reduce.Kernel
	comm     parallel.Comm
	storages []*Storage[T]
	index    map[string]int
}

// New creates an empty field. A nil kernel selects reduce.Default() and a nil
// comm selects parallel.Serial.
func New[T Scalar](name string, kernel *reduce.Kernel, comm parallel.Comm) *Field[T] {
	if kernel == nil {
		kernel = reduce.Default()
	}
	if comm == nil {
		comm = parallel.Serial{}
	}
	return &Field[T]{
		Name:   name,
		kernel: kernel,
		comm:   comm,
		index:  make(map[string]int),
	}
}

// AddStorage appends a zeroed storage of the given shape.
func (f *Field[T]) AddStorage(id string, shape ...int) *Storage[T] {
	if _, dup := f.index[id]; dup {
		panic(fmt.Sprintf("field %s: duplicate storage %q", f.Name, id))
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("field %s: negative dimension in storage %q", f.Name, id))
		}
		n *= d
	}
	s := &Storage[T]{
		ID:    id,
		Shape: append([]int(nil), shape...),
		Data:  make([]T, n),
	}
	f.index[id] = len(f.storages)
	f.storages = append(f.storages, s)
	return s
}

// Storage returns the storage with the given id, or nil.
func (f *Field[T]) Storage(id string) *Storage[T] {
	if i, ok := f.index[id]; ok {
		return f.storages[i]
	}
	return nil
}

// Storages returns the storages in insertion order.
func (f *Field[T]) Storages() []*Storage[T] { return f.storages }

// Len returns the number of elements held by this rank.
func (f *Field[T]) Len() (n int) {
	for _, s := range f.storages {
		n += len(s.Data)
	}
	return
}

// Kernel returns the reduction kernel used by inner products.
func (f *Field[T]) Kernel() *reduce.Kernel { return f.kernel }

// Comm returns the communicator used by inner products.
func (f *Field[T]) Comm() parallel.Comm { return f.comm }

// Like returns a zeroed field with the same layout, kernel and comm.
func (f *Field[T]) Like(name string) *Field[T] {
	g := New[T](name, f.kernel, f.comm)
	for _, s := range f.storages {
		g.AddStorage(s.ID, s.Shape...)
	}
	return g
}

// Copy returns a deep copy of f.
func (f *Field[T]) Copy(name string) *Field[T] {
	g := f.Like(name)
	g.Assign(f)
	return g
}

// Compatible reports whether g has the same storages as f.
func (f *Field[T]) Compatible(g *Field[T]) error {
	if len(f.storages) != len(g.storages) {
		return errors.Wrapf(ErrLayout, "%s has %d storages, %s has %d",
			f.Name, len(f.storages), g.Name, len(g.storages))
	}
	for i, s := range f.storages {
		t := g.storages[i]
		if s.ID != t.ID || len(s.Data) != len(t.Data) {
			return errors.Wrapf(ErrLayout, "%s[%s] has %d elements, %s[%s] has %d",
				f.Name, s.ID, len(s.Data), g.Name, t.ID, len(t.Data))
		}
	}
	return nil
}

func (f *Field[T]) mustCompatible(g *Field[T]) {
	if err := f.Compatible(g); err != nil {
		panic(err)
	}
}
