// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp_test

import (
	"math"
	"testing"

	"github.com/emer/stimclamp/clamp"
)

func TestFreeVariableTransformRoundTrip(t *testing.T) {
	xf := clamp.FreeVariableTransform{}
	lo, hi := 0.5, 3.5
	for _, x := range []float64{lo, hi, 1.0, 2.25, 3.49999} {
		theta := xf.ToAngular(x, lo, hi)
		back := xf.ToLinear(theta, lo, hi)
		if dif := math.Abs(back - x); dif > difTol {
			t.Errorf("x=%v: round-trip got=%v dif=%v", x, back, dif)
		}
	}
}

func TestFreeVariableTransformUnbounded(t *testing.T) {
	xf := clamp.FreeVariableTransform{}
	theta := 2.7
	if got := xf.ToLinear(theta, math.Inf(-1), math.Inf(1)); got != theta {
		t.Errorf("unbounded ToLinear got=%v want=%v", got, theta)
	}
	x := -4.2
	if got := xf.ToAngular(x, math.Inf(-1), math.Inf(1)); got != x {
		t.Errorf("unbounded ToAngular got=%v want=%v", got, x)
	}
}

func TestFreeVariableTransformStaysInBounds(t *testing.T) {
	xf := clamp.FreeVariableTransform{}
	lo, hi := -2.0, 10.0
	for theta := -10.0; theta <= 10.0; theta += 0.37 {
		x := xf.ToLinear(theta, lo, hi)
		if x < lo-difTol || x > hi+difTol {
			t.Errorf("theta=%v: x=%v out of bounds [%v,%v]", theta, x, lo, hi)
		}
	}
}
