// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lbfgs refines a pair of coupled object and probe estimates with a
// limited-memory BFGS method.
//
// Object and probe form one vector space for the two-loop recursion. Probe
// gradients and steps are preconditioned by √scale so that both parts carry
// comparable units, where scale is either fixed or derived every iteration
// from the ratio of the gradient norms.
//
// The step length along each direction is obtained in closed form from the
// quadratic line coefficients supplied by the Model.
package lbfgs

import (
	"math"
	"time"
	"unsafe"

	"github.com/curioloop/ptyopt/field"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Problem specifies a reconstruction run.
type Problem[T field.Scalar] struct {
	Object *field.Field[T] // Object estimate, updated in place.
	Probe  *field.Field[T] // Probe estimate, updated in place.
	Model  Model[T]        // Gradient and line coefficient model.
	Params Params

	// Optional collaborators.
	Smoother       Smoother[T]                  // Object gradient smoothing, required if Params.SmoothGradient > 0.
	ProbeSupport   func(prGrad *field.Field[T]) // Constraint applied to the probe gradient.
	PositionUpdate func(iter int)               // Position correction, called after each step.
	PostIterate    func(iter int)               // Called at the end of each iteration.
}

// New validates the problem and allocates the engine state.
func (p *Problem[T]) New() (engine *Engine[T], err error) {
	params := p.Params
	switch {
	case p.Object == nil || p.Probe == nil:
		err = errors.New("lbfgs: object and probe estimates are required")
	case p.Model == nil:
		err = errors.New("lbfgs: model is required")
	case params.SmoothGradient > 0 && p.Smoother == nil:
		err = errors.Wrap(ErrInvalidParams, "smooth_gradient is set but no smoother is given")
	}
	if err != nil {
		return
	}
	if err = params.Validate(); err != nil {
		return
	}
	if err = params.checkKernel(p.Object.Name, p.Object.Kernel()); err != nil {
		return
	}
	if err = params.checkKernel(p.Probe.Name, p.Probe.Kernel()); err != nil {
		return
	}

	ob, pr := p.Object, p.Probe
	e := &Engine[T]{
		params:  params,
		problem: *p,
		ob:      ob,
		pr:      pr,
		grad:    likeJoint(ob, pr, "_grad_new"),
		prev:    likeJoint(ob, pr, "_grad"),
		h:       likeJoint(ob, pr, "_h"),
		hist:    NewHistory(params.BFGSMemorySize, ob, pr),
		alpha:   make([]float64, params.BFGSMemorySize),
		sigma:   params.SmoothGradient,
	}

	var zero T
	fields := 2*(params.BFGSMemorySize+1) + 3
	bytes := uint64(fields) * uint64(ob.Len()+pr.Len()) * uint64(unsafe.Sizeof(zero))
	klog.V(1).Infof("L-BFGS engine: %s object and %s probe elements, %d pairs, %s of state",
		humanize.Comma(int64(ob.Len())), humanize.Comma(int64(pr.Len())),
		params.BFGSMemorySize, humanize.Bytes(bytes))

	return e, nil
}

// Stats accumulates counters of an engine.
type Stats struct {
	Iterations      int           // Completed iterations.
	SkippedUpdates  int           // Pairs rejected by the curvature check.
	SanitizedCoeffs int           // Line coefficient sets containing Inf or NaN.
	GradientTime    time.Duration // Time spent in Model.NewGrad.
	CoeffTime       time.Duration // Time spent in Model.PolyLineCoeffs.
}

// Engine holds the running state of one reconstruction.
// An engine is not safe for concurrent use; independent runs need
// independent engines.
type Engine[T field.Scalar] struct {
	params  Params
	problem Problem[T]
	ob, pr  *field.Field[T]

	grad joint[T] // gradient of the current iteration, probe preconditioned after direction()
	prev joint[T] // preconditioned gradient of the previous iteration
	h    joint[T] // search direction, then realized step

	hist  *History[T]
	alpha []float64

	scalePO   float64
	haveScale bool
	sigma     float64
	stale     bool // h and prev do not describe a realized step

	iter  int
	step  float64
	stats Stats
}

// Iteration returns the number of iterations performed since creation or Reset.
func (e *Engine[T]) Iteration() int { return e.iter }

// History returns the curvature memory.
func (e *Engine[T]) History() *History[T] { return e.hist }

// ScaleFactor returns the probe/object scale factor of the last iteration.
func (e *Engine[T]) ScaleFactor() float64 { return e.scalePO }

// LastStep returns the step length of the last iteration.
func (e *Engine[T]) LastStep() float64 { return e.step }

// Step returns the object and probe step realized by the last iteration.
func (e *Engine[T]) Step() (ob, pr *field.Field[T]) { return e.h.ob, e.h.pr }

// Stats returns the counters of the engine.
func (e *Engine[T]) Stats() Stats { return e.stats }

// Reset forgets the curvature memory and restarts with a steepest descent step.
func (e *Engine[T]) Reset() {
	e.hist.Reset()
	e.h.ob.Fill(0)
	e.h.pr.Fill(0)
	e.haveScale = false
	e.stale = false
	e.sigma = e.params.SmoothGradient
	e.iter = 0
	e.step = 0
}

// Run performs Params.NumIter iterations.
func (e *Engine[T]) Run() (float64, error) {
	return e.Iterate(e.params.NumIter)
}

// Iterate performs num iterations and returns the error metric of the last
// gradient evaluation.
//
// When an iteration fails after its direction was computed, no step is taken
// and the next call restarts from a steepest descent step. Stored pairs are
// kept since each of them describes a realized step.
func (e *Engine[T]) Iterate(num int) (metric float64, err error) {
	var tg, tc time.Duration
	defer func() {
		e.stats.GradientTime += tg
		e.stats.CoeffTime += tc
		klog.V(1).Infof("Time spent in gradient calculation: %s", tg)
		klog.V(1).Infof("  ....  in coefficient calculation: %s", tc)
	}()

	for it := 0; it < num; it++ {
		t1 := time.Now()
		metric, err = e.problem.Model.NewGrad(e.grad.ob, e.grad.pr)
		tg += time.Since(t1)
		if err != nil {
			return metric, errors.Wrapf(err, "iteration %d: gradient", e.iter)
		}

		if e.params.ProbeUpdateStart <= e.iter {
			if e.problem.ProbeSupport != nil {
				e.problem.ProbeSupport(e.grad.pr)
			}
		} else {
			e.grad.pr.Fill(0)
		}

		if err = e.updateScale(); err != nil {
			return metric, errors.Wrapf(err, "iteration %d: scale factor", e.iter)
		}
		e.smoothGradient()

		if err = e.direction(); err != nil {
			e.stale = true
			return metric, errors.Wrapf(err, "iteration %d: direction", e.iter)
		}

		var b [3]float64
		t2 := time.Now()
		b, err = e.problem.Model.PolyLineCoeffs(e.h.ob, e.h.pr)
		tc += time.Since(t2)
		if err != nil {
			e.stale = true
			return metric, errors.Wrapf(err, "iteration %d: line coefficients", e.iter)
		}
		if sanitizeCoeffs(&b) {
			e.stats.SanitizedCoeffs++
			klog.Warningf("Inf or NaN found in line coefficients at iteration %d, zeroed", e.iter)
		}
		e.step = stepLength(b)

		// The direction becomes the realized step, the s of the next pair.
		e.h.scale(e.step)
		e.ob.Add(e.h.ob)
		e.pr.Add(e.h.pr)

		if e.problem.PositionUpdate != nil {
			e.problem.PositionUpdate(e.iter)
		}
		if e.problem.PostIterate != nil {
			e.problem.PostIterate(e.iter)
		}

		klog.V(1).Infof("Iteration %d: error=%.6g step=%.6g pairs=%d", e.iter, metric, e.step, e.hist.Len())
		e.iter++
		e.stats.Iterations++
	}
	return metric, nil
}

// updateScale computes the probe/object scale factor of this iteration.
// The dynamic factor is blended geometrically with the previous one:
// scale = old^memory × new^(1-memory).
func (e *Engine[T]) updateScale() error {
	base := e.params.ScaleProbeObject
	if !e.params.ScalePrecond {
		e.scalePO = base
		return nil
	}

	cn2Ob, cn2Pr, err := e.grad.norm2Parts()
	if err != nil {
		return err
	}
	scale := base
	if cn2Pr > 1e-5 {
		scale = base * cn2Ob / cn2Pr
	}
	if !(scale > 0) || math.IsInf(scale, 0) {
		scale = base
	}
	if !e.haveScale {
		e.scalePO, e.haveScale = scale, true
	} else {
		mem := e.params.ScalePOMemory
		e.scalePO = math.Pow(e.scalePO, mem) * math.Pow(scale, 1-mem)
	}
	klog.V(2).Infof("Scale P/O: %6.3g", scale)
	return nil
}

// smoothGradient decays the smoothing sigma and applies it to the object gradient.
func (e *Engine[T]) smoothGradient() {
	if e.problem.Smoother == nil || e.params.SmoothGradient <= 0 {
		return
	}
	e.sigma *= 1 - e.params.SmoothGradientDecay
	e.problem.Smoother.Smooth(e.grad.ob, e.sigma)
}

// direction computes the search direction h from the gradient of this
// iteration and the step realized by the previous one.
func (e *Engine[T]) direction() error {
	if e.iter == 0 || e.stale {
		e.stale = false
		e.steepest()
		return nil
	}

	sq := math.Sqrt(e.scalePO)

	// Candidate pair: s is the last step, y the gradient change, both with
	// the probe part in preconditioned units.
	st := e.hist.stage()
	st.ObS.Assign(e.h.ob)
	st.PrS.Assign(e.h.pr)
	st.PrS.Scale(1 / sq)
	e.grad.pr.Scale(sq)
	st.ObY.Assign(e.grad.ob)
	st.ObY.Sub(e.prev.ob)
	st.PrY.Assign(e.grad.pr)
	st.PrY.Sub(e.prev.pr)

	if err := e.hist.push(e.iter); err != nil {
		if !errors.Is(err, ErrCurvature) {
			return err
		}
		e.stats.SkippedUpdates++
		klog.Warningf("Skipping L-BFGS update at iteration %d: %v", e.iter, err)
		e.grad.pr.Scale(1 / sq)
		e.steepest()
		return nil
	}

	e.h.assign(e.grad)
	if err := twoLoop(e.hist, e.h, e.alpha); err != nil {
		return err
	}

	// Flip for minimization and return the probe to estimate units.
	e.h.scale(-1)
	e.h.pr.Scale(sq)

	e.prev.assign(e.grad)
	return nil
}

// steepest sets h = -g with the probe part scaled by the scale factor.
func (e *Engine[T]) steepest() {
	e.h.ob.Assign(e.grad.ob)
	e.h.ob.Scale(-1)
	e.h.pr.Assign(e.grad.pr)
	e.h.pr.Scale(-e.scalePO)

	e.prev.ob.Assign(e.grad.ob)
	e.prev.pr.Assign(e.grad.pr)
	e.prev.pr.Scale(math.Sqrt(e.scalePO))
}

// sanitizeCoeffs zeroes infinite and NaN coefficients and reports whether
// any was found.
func sanitizeCoeffs(b *[3]float64) (found bool) {
	for i, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b[i] = 0
			found = true
		}
	}
	return
}

// stepLength returns the minimizer -b₁ / 2b₂ of the line polynomial, or 0
// when it is undefined.
func stepLength(b [3]float64) float64 {
	if b[2] == 0 {
		return 0
	}
	t := -0.5 * b[1] / b[2]
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0
	}
	return t
}
