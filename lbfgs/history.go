// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

import (
	"fmt"
	"math"

	"github.com/curioloop/ptyopt/field"
	"github.com/pkg/errors"
)

// ErrCurvature is returned when a pair violates the curvature condition sᵀy > 0.
var ErrCurvature = errors.New("lbfgs: curvature condition violated")

var epsilon = math.Nextafter(1, 2) - 1

// Slot is one curvature pair with the scalars cached when it was written.
// Probe parts are stored in preconditioned units.
type Slot[T field.Scalar] struct {
	ObS, PrS *field.Field[T] // step
	ObY, PrY *field.Field[T] // gradient difference

	ObYS, PrYS float64 // Re(yᵀs) per space
	ObYY, PrYY float64 // ‖y‖² per space
	Rho        float64 // 1 / (ObYS + PrYS)
	Iter       int     // iteration that wrote the pair
}

func (s *Slot[T]) s() joint[T] { return joint[T]{s.ObS, s.PrS} }
func (s *Slot[T]) y() joint[T] { return joint[T]{s.ObY, s.PrY} }

// refresh recomputes the cached inner products and rho.
func (s *Slot[T]) refresh() (err error) {
	if s.ObYS, s.PrYS, err = s.y().dotParts(s.s()); err != nil {
		return
	}
	if s.ObYY, s.PrYY, err = s.y().norm2Parts(); err != nil {
		return
	}
	s.Rho = 1 / (s.ObYS + s.PrYS)
	return
}

// curvature checks sᵀy > ε‖y‖², which keeps the inverse Hessian estimate
// positive definite.
func (s *Slot[T]) curvature() error {
	ys, yy := s.ObYS+s.PrYS, s.ObYY+s.PrYY
	if math.IsNaN(ys) || math.IsInf(ys, 0) || math.IsInf(yy, 0) || ys <= epsilon*yy {
		return errors.Wrapf(ErrCurvature, "sᵀy = %g, ‖y‖² = %g", ys, yy)
	}
	return nil
}

// History is a fixed capacity ring of curvature pairs.
//
// Logical slot 0 is the oldest pair and slot Len()-1 the newest. Evicting the
// oldest pair only advances the head pointer. One spare physical slot beyond
// the capacity receives a candidate pair before it is accepted, so a rejected
// pair never destroys a stored one.
type History[T field.Scalar] struct {
	m       int
	slots   []Slot[T] // m + 1 physical slots
	head, n int
}

// NewHistory allocates m pairs laid out like the object and probe fields.
func NewHistory[T field.Scalar](m int, ob, pr *field.Field[T]) *History[T] {
	if m <= 0 {
		panic("lbfgs: history capacity must be positive")
	}
	h := &History[T]{m: m, slots: make([]Slot[T], m+1)}
	for i := range h.slots {
		tag := fmt.Sprintf("_%d", i)
		h.slots[i] = Slot[T]{
			ObS: ob.Like(ob.Name + "_s" + tag),
			PrS: pr.Like(pr.Name + "_s" + tag),
			ObY: ob.Like(ob.Name + "_y" + tag),
			PrY: pr.Like(pr.Name + "_y" + tag),
		}
	}
	return h
}

// Cap returns the number of pairs the history can hold.
func (h *History[T]) Cap() int { return h.m }

// Len returns the number of valid pairs.
func (h *History[T]) Len() int { return h.n }

func (h *History[T]) phys(k int) int { return (h.head + k) % (h.m + 1) }

// Slot returns logical slot k, 0 being the oldest.
func (h *History[T]) Slot(k int) *Slot[T] {
	if k < 0 || k >= h.n {
		panic(fmt.Sprintf("lbfgs: history slot %d out of range [0,%d)", k, h.n))
	}
	return &h.slots[h.phys(k)]
}

// Rho returns the rho of every valid pair in logical order.
func (h *History[T]) Rho() []float64 {
	rho := make([]float64, h.n)
	for k := range rho {
		rho[k] = h.slots[h.phys(k)].Rho
	}
	return rho
}

// Write copies a pair into logical slot k and refreshes its cached scalars.
// k may address a valid slot or the first free one (k == Len() < Cap()).
// No curvature check is performed.
func (h *History[T]) Write(k int, obS, prS, obY, prY *field.Field[T], iter int) error {
	if k < 0 || k > h.n || k >= h.m {
		panic(fmt.Sprintf("lbfgs: cannot write slot %d of history with %d/%d pairs", k, h.n, h.m))
	}
	sl := &h.slots[h.phys(k)]
	sl.ObS.Assign(obS)
	sl.PrS.Assign(prS)
	sl.ObY.Assign(obY)
	sl.PrY.Assign(prY)
	sl.Iter = iter
	if err := sl.refresh(); err != nil {
		return err
	}
	if k == h.n {
		h.n++
	}
	return nil
}

// Roll evicts the oldest pair; slot k becomes slot k-1.
func (h *History[T]) Roll() {
	if h.n == 0 {
		return
	}
	h.head = (h.head + 1) % (h.m + 1)
	h.n--
}

// stage returns the spare slot to be filled with a candidate pair.
func (h *History[T]) stage() *Slot[T] {
	return &h.slots[h.phys(h.n)]
}

// push accepts the staged pair as the newest one, evicting the oldest pair if
// the history is full. A pair failing the curvature check is discarded and
// ErrCurvature is returned.
func (h *History[T]) push(iter int) error {
	sl := h.stage()
	sl.Iter = iter
	if err := sl.refresh(); err != nil {
		return err
	}
	if err := sl.curvature(); err != nil {
		return err
	}
	if h.n == h.m {
		h.Roll()
	}
	h.n++
	return nil
}

// Reset drops every pair.
func (h *History[T]) Reset() {
	h.head, h.n = 0, 0
}
