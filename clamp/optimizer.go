// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import "math"

//////////////////////////////////////////////////////////////////////////////////////
//  Options

// Options holds the per-run configuration an optimiser feeds into the
// simulator (§6): which propagation method to use and how many
// Monte Carlo runs to draw when that method is selected.
type Options struct {
	Method             Method  `desc:"eigen solver (analytic) or Monte Carlo"`
	NumMonteCarloRuns  int     `def:"1000" desc:"number of dwell-chain draws per (protocol,r,c,v) when Method is MethodMonteCarlo"`
	AccumulateRuns     bool    `def:"false" desc:"append new Monte Carlo chains to existing ones instead of replacing them"`
	SampleFromChains   bool    `def:"true" desc:"derive Probability from the event chains after a Monte Carlo run, rather than leaving it nil"`
	StartEquilibrated  bool    `desc:"override: force every protocol to start from the stationary distribution of its first epoch"`
	Eps                float64 `desc:"tolerance override for index selection and numerical comparisons; 0 means use DefaultEps"`
}

func (o *Options) Defaults() {
	o.Method = MethodEigenSolver
	o.NumMonteCarloRuns = 1000
	o.AccumulateRuns = false
	o.SampleFromChains = true
	o.Eps = 0
}

func (o *Options) Update() {
	if o.NumMonteCarloRuns < 1 {
		o.NumMonteCarloRuns = 1
	}
}

//////////////////////////////////////////////////////////////////////////////////////
//  FreeVariableTransform

// FreeVariableTransform maps an optimiser's unconstrained angular
// parameter theta onto a model's bounded free variable range [lo,hi] (§6),
// and back. Unbounded variables (lo==-Inf or hi==+Inf) pass through
// unchanged in both directions.
type FreeVariableTransform struct{}

// ToLinear maps theta (any real) to x in [lo,hi]: x = lo + (hi-lo)*(sin(theta)+1)/2.
func (FreeVariableTransform) ToLinear(theta, lo, hi float64) float64 {
	if math.IsInf(lo, -1) || math.IsInf(hi, 1) {
		return theta
	}
	return lo + (hi-lo)*(math.Sin(theta)+1)/2
}

// ToAngular maps x in [lo,hi] back to theta = asin(2*(x-lo)/(hi-lo) - 1),
// clamping the asin argument to [-1,1] (with a small tolerance for
// floating-point overshoot at the bounds) to avoid NaN.
func (FreeVariableTransform) ToAngular(x, lo, hi float64) float64 {
	if math.IsInf(lo, -1) || math.IsInf(hi, 1) {
		return x
	}
	if hi == lo {
		return 0
	}
	arg := 2*(x-lo)/(hi-lo) - 1
	if arg > 1 {
		arg = 1
	}
	if arg < -1 {
		arg = -1
	}
	return math.Asin(arg)
}

// ToLinearAll and ToAngularAll apply the transform elementwise over a
// model's free-variable vector and its [xmin,xmax] bounds, as returned by
// ModelProvider.FreeVariables.
func (t FreeVariableTransform) ToLinearAll(theta, xmin, xmax []float64) []float64 {
	out := make([]float64, len(theta))
	for i := range theta {
		out[i] = t.ToLinear(theta[i], xmin[i], xmax[i])
	}
	return out
}

func (t FreeVariableTransform) ToAngularAll(x, xmin, xmax []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = t.ToAngular(x[i], xmin[i], xmax[i])
	}
	return out
}
