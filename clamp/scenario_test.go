// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp_test

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/emer/stimclamp/clamp"
	"github.com/emer/stimclamp/kinetics"
)

// difTol is the numerical difference tolerance for comparing vs. target
// values, analogous to leabra's act_test.go difTol.
const difTol = 1.0e-6

func buildSession(t *testing.T) (*clamp.Session, *clamp.Compiler) {
	t.Helper()
	sess := clamp.NewSession()
	return sess, clamp.NewCompiler(sess.Eval)
}

// protocolWithPulse returns a one-cell protocol with a single "ligand"
// stimulus pulse starting at pulseStart for pulseDuration.
func protocolWithPulse(start, duration, sampleInterval, pulseStart, pulseDuration, amplitude float64, startEq bool) *clamp.Protocol {
	return &clamp.Protocol{
		Name:              "test",
		Start:             [][]float64{{start}},
		Duration:          [][]float64{{duration}},
		SampleInterval:    [][]float64{{sampleInterval}},
		StartEquilibrated: startEq,
		NumVariableSets:   1,
		Stimuli: []*clamp.Stimulus{
			{
				Name:      "ligand",
				Start:     [][]float64{{pulseStart}},
				Duration:  [][]float64{{pulseDuration}},
				Amplitude: [][]float64{{amplitude}},
				Period:    [][]float64{{0}},
				Repeats:   [][]float64{{1}},
			},
		},
	}
}

// TestTwoStateAnalytic checks the spectral propagator against the
// closed-form two-state solution: with a constant ligand pulse active
// for the whole window, P(open,t) = kOn/(kOn+kOff) * (1 - exp(-(kOn+kOff)*t)),
// since the system starts fully closed (§8 scenario S1).
func TestTwoStateAnalytic(t *testing.T) {
	sess, compiler := buildSession(t)
	p := protocolWithPulse(0, 2, 0.05, 0, 2, 1, false)
	if err := compiler.Compile(p, sess.Pool); err != nil {
		t.Fatalf("compile: %v", err)
	}

	model := kinetics.NewModel(kinetics.TwoState(), map[string]float64{"kOn": 2, "kOff": 1})
	preparer := &clamp.Preparer{Model: model, Method: clamp.MethodEigenSolver}
	for _, u := range sess.Pool.All() {
		if err := preparer.Prepare(u, 0, &sess.Abort); err != nil {
			t.Fatalf("prepare: %v", err)
		}
	}

	sim := p.Grid[0][0]
	startP := sim.Epochs[0].Unique.StateProbabilities
	prop := &clamp.SpectralPropagator{}
	if err := prop.Propagate(sim, 0, startP, false, &sess.Abort); err != nil {
		t.Fatalf("propagate: %v", err)
	}

	kOn, kOff := 2.0, 1.0
	for i, tm := range sim.Time {
		want := kOn / (kOn + kOff) * (1 - math.Exp(-(kOn+kOff)*tm))
		got := sim.ProbabilityAt(0, i, 1)
		if dif := math.Abs(got-want); dif > difTol {
			t.Errorf("t=%v: open prob got=%v want=%v dif=%v", tm, got, want, dif)
		}
		sum := sim.ProbabilityAt(0, i, 0) + sim.ProbabilityAt(0, i, 1)
		if dif := math.Abs(sum - 1); dif > difTol {
			t.Errorf("t=%v: row sum got=%v want 1 dif=%v", tm, sum, dif)
		}
	}
}

// TestStartEquilibratedConstant checks that startEquilibrated holds P(t)
// constant at the stationary distribution of the first epoch's Q when
// that epoch spans the whole simulation (§8 scenario S2).
func TestStartEquilibratedConstant(t *testing.T) {
	sess, compiler := buildSession(t)
	p := protocolWithPulse(0, 1, 0.1, 0, 0, 0, true) // no pulse: one epoch for the whole run
	if err := compiler.Compile(p, sess.Pool); err != nil {
		t.Fatalf("compile: %v", err)
	}

	model := kinetics.NewModel(kinetics.TwoState(), map[string]float64{"kOn": 2, "kOff": 1})
	preparer := &clamp.Preparer{Model: model, Method: clamp.MethodEigenSolver}
	for _, u := range sess.Pool.All() {
		if err := preparer.Prepare(u, 0, &sess.Abort); err != nil {
			t.Fatalf("prepare: %v", err)
		}
	}

	sim := p.Grid[0][0]
	startP := sim.Epochs[0].Unique.StateProbabilities
	prop := &clamp.SpectralPropagator{}
	if err := prop.Propagate(sim, 0, startP, true, &sess.Abort); err != nil {
		t.Fatalf("propagate: %v", err)
	}

	closedProb := sim.ProbabilityAt(0, 0, 0)
	for i := range sim.Time {
		got := sim.ProbabilityAt(0, i, 0)
		if dif := math.Abs(got - closedProb); dif > difTol {
			t.Errorf("t=%v: closed prob drifted got=%v want=%v dif=%v", sim.Time[i], got, closedProb, dif)
		}
	}
}

// TestAbsorbingExponentialDecay checks P(A,t) = exp(-kInact*t) exactly
// for the absorbing scheme (§8 scenario S3).
func TestAbsorbingExponentialDecay(t *testing.T) {
	sess, compiler := buildSession(t)
	p := protocolWithPulse(0, 3, 0.1, 0, 0, 0, false)
	if err := compiler.Compile(p, sess.Pool); err != nil {
		t.Fatalf("compile: %v", err)
	}

	model := kinetics.NewModel(kinetics.Absorbing(), map[string]float64{"kInact": 0.7})
	preparer := &clamp.Preparer{Model: model, Method: clamp.MethodEigenSolver}
	for _, u := range sess.Pool.All() {
		if err := preparer.Prepare(u, 0, &sess.Abort); err != nil {
			t.Fatalf("prepare: %v", err)
		}
	}

	sim := p.Grid[0][0]
	startP := sim.Epochs[0].Unique.StateProbabilities
	prop := &clamp.SpectralPropagator{}
	if err := prop.Propagate(sim, 0, startP, false, &sess.Abort); err != nil {
		t.Fatalf("propagate: %v", err)
	}

	for i, tm := range sim.Time {
		want := math.Exp(-0.7 * tm)
		got := sim.ProbabilityAt(0, i, 0)
		if dif := math.Abs(got-want); dif > difTol {
			t.Errorf("t=%v: active prob got=%v want=%v dif=%v", tm, got, want, dif)
		}
	}
}

// TestSquarePulseStimulus checks that the compiled ligand waveform is
// exactly amplitude within [start,start+duration) and zero elsewhere
// (§8 scenario S4).
func TestSquarePulseStimulus(t *testing.T) {
	sess, compiler := buildSession(t)
	p := protocolWithPulse(0, 1, 0.05, 0.2, 0.3, 5, false)
	if err := compiler.Compile(p, sess.Pool); err != nil {
		t.Fatalf("compile: %v", err)
	}
	sim := p.Grid[0][0]
	for i, tm := range sim.Time {
		want := 0.0
		if tm >= 0.2-1e-9 && tm < 0.5-1e-9 {
			want = 5
		}
		got := sim.Stimuli["ligand"][i]
		if dif := math.Abs(got - want); dif > difTol {
			t.Errorf("t=%v: ligand got=%v want=%v", tm, got, want)
		}
	}
}

// TestExpressionPulseStimulus checks that an onset-expression stimulus
// evaluates amplitude*exp(-(t-onset)) over its active window rather than
// a flat square pulse (§8 scenario S5).
func TestExpressionPulseStimulus(t *testing.T) {
	sess, compiler := buildSession(t)
	p := &clamp.Protocol{
		Name:            "test",
		Start:           [][]float64{{0}},
		Duration:        [][]float64{{1}},
		SampleInterval:  [][]float64{{0.1}},
		NumVariableSets: 1,
		Stimuli: []*clamp.Stimulus{
			{
				Name:         "ligand",
				Start:        [][]float64{{0.2}},
				Duration:     [][]float64{{0.5}},
				Amplitude:    [][]float64{{2}},
				Period:       [][]float64{{0}},
				Repeats:      [][]float64{{1}},
				OnsetExprStr: [][]string{{"exp(-t)"}},
			},
		},
	}
	if err := compiler.Compile(p, sess.Pool); err != nil {
		t.Fatalf("compile: %v", err)
	}
	sim := p.Grid[0][0]
	for i, tm := range sim.Time {
		var want float64
		if tm >= 0.2-1e-9 && tm < 0.7-1e-9 {
			want = 2 * math.Exp(-(tm - 0.2))
		}
		got := sim.Stimuli["ligand"][i]
		if dif := math.Abs(got - want); dif > difTol {
			t.Errorf("t=%v: ligand got=%v want=%v dif=%v", tm, got, want, dif)
		}
	}
}

// TestThreeStateCyclicRowSumInvariant checks the general (non-analytic)
// spectral propagation path still maintains sum_s P(s,t) == 1 at every
// sample (§8 invariant 1), using a scheme with no closed-form solution.
func TestThreeStateCyclicRowSumInvariant(t *testing.T) {
	sess, compiler := buildSession(t)
	p := protocolWithPulse(0, 2, 0.1, 0, 0, 0, false)
	if err := compiler.Compile(p, sess.Pool); err != nil {
		t.Fatalf("compile: %v", err)
	}

	model := kinetics.NewModel(kinetics.ThreeStateCyclic(), map[string]float64{"kAB": 1.3, "kBC": 0.7, "kCA": 2.1})
	preparer := &clamp.Preparer{Model: model, Method: clamp.MethodEigenSolver}
	for _, u := range sess.Pool.All() {
		if err := preparer.Prepare(u, 0, &sess.Abort); err != nil {
			t.Fatalf("prepare: %v", err)
		}
	}

	sim := p.Grid[0][0]
	startP := sim.Epochs[0].Unique.StateProbabilities
	prop := &clamp.SpectralPropagator{}
	if err := prop.Propagate(sim, 0, startP, false, &sess.Abort); err != nil {
		t.Fatalf("propagate: %v", err)
	}
	if sim.MaxProbabilityError > difTol {
		t.Errorf("max row-sum error = %v, want <= %v", sim.MaxProbabilityError, difTol)
	}
}

// TestThreeStateCyclicMatchesNumericalIntegration cross-checks the spectral
// propagator's complex-conjugate-eigenvalue path (kAB/kBC/kCA below give Q a
// complex spectrum, see DESIGN.md) against an independent fixed-step RK4
// integration of dP/dt = P*Q, which never touches eigendecomposition at all.
// A wrong spectral expansion (e.g. truncating an eigenvector's imaginary
// part) would diverge from this reference; the row-sum invariant alone
// cannot detect that kind of error.
func TestThreeStateCyclicMatchesNumericalIntegration(t *testing.T) {
	sess, compiler := buildSession(t)
	p := protocolWithPulse(0, 2, 0.1, 0, 0, 0, false)
	if err := compiler.Compile(p, sess.Pool); err != nil {
		t.Fatalf("compile: %v", err)
	}

	model := kinetics.NewModel(kinetics.ThreeStateCyclic(), map[string]float64{"kAB": 1.3, "kBC": 0.7, "kCA": 2.1})
	preparer := &clamp.Preparer{Model: model, Method: clamp.MethodEigenSolver}
	for _, u := range sess.Pool.All() {
		if err := preparer.Prepare(u, 0, &sess.Abort); err != nil {
			t.Fatalf("prepare: %v", err)
		}
	}

	sim := p.Grid[0][0]
	u := sim.Epochs[0].Unique
	startP := u.StateProbabilities
	prop := &clamp.SpectralPropagator{}
	if err := prop.Propagate(sim, 0, startP, false, &sess.Abort); err != nil {
		t.Fatalf("propagate: %v", err)
	}

	q := u.TransitionRates
	want := rk4Integrate(q, startP, sim.EndTime, 20000)
	n := len(sim.Time)
	for s := 0; s < sim.NumStates; s++ {
		got := sim.ProbabilityAt(0, n-1, s)
		if dif := math.Abs(got - want[s]); dif > 1e-5 {
			t.Errorf("state %d at t=%v: spectral=%v rk4=%v dif=%v", s, sim.EndTime, got, want[s], dif)
		}
	}
}

// rk4Integrate integrates dP/dt = P*Q from p0 over [0, tEnd] with steps
// fixed-size steps of classical 4th-order Runge-Kutta.
func rk4Integrate(q *mat.Dense, p0 []float64, tEnd float64, steps int) []float64 {
	s := len(p0)
	dt := tEnd / float64(steps)
	p := append([]float64(nil), p0...)
	f := func(p []float64) []float64 {
		out := make([]float64, s)
		for col := 0; col < s; col++ {
			var sum float64
			for row := 0; row < s; row++ {
				sum += p[row] * q.At(row, col)
			}
			out[col] = sum
		}
		return out
	}
	scaleAdd := func(a []float64, b []float64, scale float64) []float64 {
		out := make([]float64, s)
		for i := range out {
			out[i] = a[i] + scale*b[i]
		}
		return out
	}
	for step := 0; step < steps; step++ {
		k1 := f(p)
		k2 := f(scaleAdd(p, k1, dt/2))
		k3 := f(scaleAdd(p, k2, dt/2))
		k4 := f(scaleAdd(p, k3, dt))
		for i := range p {
			p[i] += dt / 6 * (k1[i] + 2*k2[i] + 2*k3[i] + k4[i])
		}
	}
	return p
}

// TestReferenceResampleShift checks that SampleArray shifts the source
// x-grid by -x0 (yref(xref - x0), not +x0): with x0=0.1, sampling at
// dstX={0.1,0.2,0.3} must land exactly on the shifted grid points
// {-0.1,0,0.1,0.2,0.3}, reproducing srcY shifted one index later.
func TestReferenceResampleShift(t *testing.T) {
	aligner := &clamp.ReferenceAligner{}
	srcX := []float64{0, 0.1, 0.2, 0.3, 0.4}
	srcY := []float64{1, 2, 3, 2, 1}
	dstX := []float64{0.1, 0.2, 0.3}
	out, firstPt, numPts := aligner.SampleArray(srcX, srcY, 0.1, 1, dstX)
	if numPts != len(dstX) {
		t.Fatalf("numPts = %d, want %d", numPts, len(dstX))
	}
	// shifted = srcX - x0 = {-0.1, 0, 0.1, 0.2, 0.3}; at dstX={0.1,0.2,0.3}
	// that lands exactly on shifted indices 2,3,4, i.e. srcY={3,2,1}.
	want := []float64{3, 2, 1}
	for i := 0; i < numPts; i++ {
		got := out[firstPt+i]
		if dif := math.Abs(got - want[i]); dif > difTol {
			t.Errorf("idx %d: got=%v want=%v", i, got, want[i])
		}
	}
}

// TestReferenceResampleRoundTrip checks that resampling a reference curve
// onto its own source x-grid (x0=0, scale=1) reproduces the original y
// values exactly (§8 scenario S6).
func TestReferenceResampleRoundTrip(t *testing.T) {
	aligner := &clamp.ReferenceAligner{}
	srcX := []float64{0, 0.1, 0.2, 0.3, 0.4}
	srcY := []float64{1, 2, 3, 2, 1}
	out, firstPt, numPts := aligner.SampleArray(srcX, srcY, 0, 1, srcX)
	if numPts != len(srcX) {
		t.Fatalf("numPts = %d, want %d", numPts, len(srcX))
	}
	for i := 0; i < numPts; i++ {
		got := out[firstPt+i]
		if dif := math.Abs(got - srcY[i]); dif > difTol {
			t.Errorf("idx %d: got=%v want=%v", i, got, srcY[i])
		}
	}
}
