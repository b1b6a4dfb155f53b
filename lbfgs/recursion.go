// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

import (
	"github.com/curioloop/ptyopt/field"
	"k8s.io/klog/v2"
)

// twoLoop overwrites q with H·q, where H is the inverse Hessian estimate
// built from the pairs of hist and scaled by the newest pair.
// alpha must hold at least hist.Len() elements.
//
// Reference: Nocedal, J., Wright, S.: Numerical Optimization (2nd ed),
// Springer (2006), algorithm 7.4.
func twoLoop[T field.Scalar](hist *History[T], q joint[T], alpha []float64) error {
	mi := hist.Len()
	if mi == 0 {
		return nil
	}
	if len(alpha) < mi {
		panic("bound check error")
	}

	// Right-hand side, newest pair first.
	for i := mi - 1; i >= 0; i-- {
		sl := hist.Slot(i)
		sq, err := sl.s().dot(q)
		if err != nil {
			return err
		}
		alpha[i] = sl.Rho * sq
		q.addScaled(-alpha[i], sl.y())
	}

	// Centre: H₀ = (sᵀy / yᵀy)·I of the newest pair.
	last := hist.Slot(mi - 1)
	gamma := (last.ObYS + last.PrYS) / (last.ObYY + last.PrYY)
	q.scale(gamma)

	// Left-hand side, oldest pair first.
	for i := 0; i < mi; i++ {
		sl := hist.Slot(i)
		yq, err := sl.y().dot(q)
		if err != nil {
			return err
		}
		beta := sl.Rho * yq
		q.addScaled(alpha[i]-beta, sl.s())
	}

	if klog.V(2).Enabled() {
		klog.Infof("two-loop recursion: pairs=%d gamma=%.6g alpha=%.6g", mi, gamma, alpha[:mi])
	}
	return nil
}
