// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

import (
	"github.com/curioloop/ptyopt/field"
)

// joint is the concatenation of an object-space and a probe-space field.
// Its inner products are the sums of both contributions, so the recursion
// sees one vector space.
type joint[T field.Scalar] struct {
	ob, pr *field.Field[T]
}

func likeJoint[T field.Scalar](ob, pr *field.Field[T], suffix string) joint[T] {
	return joint[T]{
		ob: ob.Like(ob.Name + suffix),
		pr: pr.Like(pr.Name + suffix),
	}
}

func (j joint[T]) assign(o joint[T]) {
	j.ob.Assign(o.ob)
	j.pr.Assign(o.pr)
}

func (j joint[T]) scale(a float64) {
	j.ob.Scale(a)
	j.pr.Scale(a)
}

func (j joint[T]) addScaled(a float64, o joint[T]) {
	j.ob.AddScaled(a, o.ob)
	j.pr.AddScaled(a, o.pr)
}

// dotParts returns the real inner products of the object and probe parts.
func (j joint[T]) dotParts(o joint[T]) (ob, pr float64, err error) {
	if ob, err = field.DotReal(j.ob, o.ob); err != nil {
		return
	}
	pr, err = field.DotReal(j.pr, o.pr)
	return
}

func (j joint[T]) dot(o joint[T]) (float64, error) {
	ob, pr, err := j.dotParts(o)
	return ob + pr, err
}

func (j joint[T]) norm2Parts() (ob, pr float64, err error) {
	if ob, err = field.Norm2(j.ob); err != nil {
		return
	}
	pr, err = field.Norm2(j.pr)
	return
}
