// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kinetics

import "github.com/emer/stimclamp/clamp"

// constRate returns a RateFunc that ignores params/stimuli and always
// returns k -- the degenerate case used by schemes whose rates don't
// depend on the clamp.
func constRate(k float64) RateFunc {
	return func(params, stimuli map[string]float64) float64 { return k }
}

// namedParamRate looks up a named scalar from params, falling back to 0
// if absent (an unset parameter behaves as a zero rate rather than a
// panic, so a caller can omit a scheme's unused knobs).
func namedParamRate(name string) RateFunc {
	return func(params, stimuli map[string]float64) float64 { return params[name] }
}

// ligandGatedRate returns params[rateParam] scaled by the named stimulus
// channel -- the standard bimolecular-binding on-rate shape k_on*[L].
func ligandGatedRate(rateParam, stimulusName string) RateFunc {
	return func(params, stimuli map[string]float64) float64 {
		return params[rateParam] * stimuli[stimulusName]
	}
}

// TwoState returns a closed<->open channel: C(0) <-kOn*ligand-> O(1)
// <-kOff-> C(0). Grounds the two-state analytic scenario (§8 S1): a
// linear 2-state system has a closed-form P(t) against which the
// spectral propagator's output can be checked directly.
func TwoState() *Scheme {
	return &Scheme{
		Name:               "two_state",
		StateNames:         []string{"C", "O"},
		InitialProbability: []float64{1, 0},
		Attributes: map[string][]float64{
			"conductance": {0, 1},
		},
		Edges: []Edge{
			{From: 0, To: 1, Rate: ligandGatedRate("kOn", "ligand"), Charge: 1},
			{From: 1, To: 0, Rate: namedParamRate("kOff"), Charge: -1},
		},
		Groups: []clamp.StateGroup{
			{Name: "open", States: []int{1}, Active: true},
		},
	}
}

// Absorbing returns a two-state model with one irreversible transition:
// A(0) -kInact-> B(1), B absorbing. Grounds the absorbing-state
// exponential-decay scenario (§8 S3): P(A,t) = exp(-kInact*t) exactly.
func Absorbing() *Scheme {
	return &Scheme{
		Name:               "absorbing",
		StateNames:         []string{"A", "B"},
		InitialProbability: []float64{1, 0},
		Attributes: map[string][]float64{
			"conductance": {1, 0},
		},
		Edges: []Edge{
			{From: 0, To: 1, Rate: namedParamRate("kInact")},
		},
		Groups: []clamp.StateGroup{
			{Name: "active", States: []int{0}, Active: true},
		},
	}
}

// ThreeStateCyclic returns a three-state ring A(0)->B(1)->C(2)->A(0),
// each edge driven by its own named rate constant -- a minimal scheme
// with no closed-form solution, used to check the general (non-2-state)
// spectral path against a direct numerical integration of dP/dt = P*Q.
func ThreeStateCyclic() *Scheme {
	return &Scheme{
		Name:               "three_state_cyclic",
		StateNames:         []string{"A", "B", "C"},
		InitialProbability: []float64{1, 0, 0},
		Attributes: map[string][]float64{
			"conductance": {0, 1, 0.5},
		},
		Edges: []Edge{
			{From: 0, To: 1, Rate: namedParamRate("kAB")},
			{From: 1, To: 2, Rate: namedParamRate("kBC")},
			{From: 2, To: 0, Rate: namedParamRate("kCA")},
		},
		Groups: []clamp.StateGroup{
			{Name: "conducting", States: []int{1}, Active: true},
		},
	}
}

// DefaultParams returns a parameter set with plausible constants for
// whichever of the schemes above is in use; callers needing a custom
// parameterisation build their own map instead.
func DefaultParams() map[string]float64 {
	return map[string]float64{
		"kOn":    1.0,
		"kOff":   1.0,
		"kInact": 1.0,
		"kAB":    1.0,
		"kBC":    1.0,
		"kCA":    1.0,
	}
}
