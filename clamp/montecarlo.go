// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	"golang.org/x/exp/rand"
)

// MonteCarlo is C7 (4.6): it generates dwell-event chains honouring epoch
// boundaries, then samples them back into a P(t) buffer.
type MonteCarlo struct {
	Eps    float64
	Strict bool // not read by any MonteCarlo method; inverse-CDF drift always falls back to state S-1 (see chooseInitialState)
}

// Run performs numRuns Monte Carlo runs of sim under variable set v,
// appending to sim's existing chains when accumulate is true and replacing
// them otherwise (§3 Lifecycle & ownership). Each Simulation owns its own
// rng; MC runs within a simulation are serial to keep chains reproducible
// for a fixed seed (§5).
func (mc *MonteCarlo) Run(sim *Simulation, v int, numRuns int, accumulate, startEquilibrated bool, rng *rand.Rand, abort *AbortFlag) error {
	for len(sim.EventRuns) <= v {
		sim.EventRuns = append(sim.EventRuns, nil)
	}
	if !accumulate {
		sim.EventRuns[v] = nil
	}

	startP := sim.Epochs[0].Unique.StateProbabilities
	if startEquilibrated {
		sp, err := EquilibriumProbability(sim.Epochs[0].Unique.TransitionRates)
		if err != nil {
			return err
		}
		startP = sp
	}

	for run := 0; run < numRuns; run++ {
		if abort.Check() {
			return ErrAborted
		}
		chain, err := mc.runOnce(sim, startP, rng, abort)
		if err != nil {
			return err
		}
		sim.EventRuns[v] = append(sim.EventRuns[v], chain)
	}
	return nil
}

func (mc *MonteCarlo) runOnce(sim *Simulation, startP []float64, rng *rand.Rand, abort *AbortFlag) (MonteCarloEventChain, error) {
	eps := DefaultEps(mc.Eps)
	state := mc.chooseInitialState(startP, rng)

	var chain MonteCarloEventChain
	tChain := 0.0
	epochIdx := 0
	epoch := sim.Epochs[epochIdx]

	for tChain < sim.EndTime {
		if abort.Check() {
			return nil, ErrAborted
		}
		u := epoch.Unique
		lifetime, kout := sampleLifetime(u, state, eps, rng)

		for tChain+lifetime > epoch.Start+epoch.Duration+eps {
			lifetime = epoch.Start + epoch.Duration - tChain
			epochIdx++
			if epochIdx >= len(sim.Epochs) {
				chain = append(chain, MonteCarloEvent{State: state, Duration: sim.EndTime - tChain})
				return chain, nil
			}
			epoch = sim.Epochs[epochIdx]
			u = epoch.Unique
			extra, k := sampleLifetime(u, state, eps, rng)
			lifetime += extra
			kout = k
		}

		chain = append(chain, MonteCarloEvent{State: state, Duration: lifetime})
		tChain += lifetime

		if tChain < sim.EndTime {
			state = mc.chooseNextState(u.TransitionRates, state, kout, rng)
		}
	}
	return chain, nil
}

// sampleLifetime draws the dwell time in the current epoch for state s, and
// returns the outgoing rate kout used for the subsequent state choice.
func sampleLifetime(u *UniqueEpoch, s int, eps float64, rng *rand.Rand) (lifetime, kout float64) {
	q := u.TransitionRates
	kout = -q.At(s, s)
	if kout <= eps {
		return endTimeFallback(u), 0
	}
	exp := distuv.Exponential{Rate: kout, Src: rng}
	return exp.Rand(), kout
}

// endTimeFallback returns a sentinel duration for an absorbing state; the
// caller (runOnce) always clips this against the remaining epoch/chain
// duration, so the actual emitted event never exceeds sim.EndTime.
func endTimeFallback(u *UniqueEpoch) float64 {
	return 1e18
}

// chooseInitialState performs inverse-CDF sampling over startP: draw u in
// [0,1), pick the first index whose cumulative sum exceeds u; if rounding
// leaves none, force state S-1. There is no error or renormalisation path;
// mc.Strict is not consulted.
func (mc *MonteCarlo) chooseInitialState(startP []float64, rng *rand.Rand) int {
	u := rng.Float64()
	var cum float64
	for i, p := range startP {
		cum += p
		if cum > u {
			return i
		}
	}
	return len(startP) - 1
}

// chooseNextState picks s' != s weighted by Q[s][s'] (the off-diagonal
// entries of Q's row s -- the rates leaving s, equivalently "entries of the
// transposed Q restricted to column s" since (Q^T)[:,s] has the same
// support as Q's row s under the row-generator convention used throughout
// this package), normalised by kout.
func (mc *MonteCarlo) chooseNextState(q *mat.Dense, s int, kout float64, rng *rand.Rand) int {
	n, _ := q.Dims()
	u := rng.Float64() * kout
	var cum float64
	for j := 0; j < n; j++ {
		if j == s {
			continue
		}
		w := q.At(s, j)
		if w == 0 {
			continue
		}
		cum += w
		if cum >= u {
			return j
		}
	}
	return s
}

// EquilibriumProbability returns the stationary distribution pi with
// pi*Q=0, sum(pi)=1, via S=[Q|1] (SxS+1), pi = 1*(S*S^T)^-1 (4.6).
func EquilibriumProbability(q *mat.Dense) ([]float64, error) {
	n, _ := q.Dims()
	s := mat.NewDense(n, n+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s.Set(i, j, q.At(i, j))
		}
		s.Set(i, n, 1)
	}
	var sst mat.Dense
	sst.Mul(s, s.T())
	var inv mat.Dense
	if err := inv.Inverse(&sst); err != nil {
		return nil, NewError(KindNumerical, "equilibrium probability: %w", err)
	}
	pi := make([]float64, n)
	for j := 0; j < n; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += inv.At(i, j)
		}
		pi[j] = sum
	}
	return pi, nil
}

// ProbabilityFromEventChains reconstructs a per-variable-set P[N x S] by,
// for each chain, iterating sample interval [t_i, t_{i+1}) (t_N := endTime)
// against event interval [es, ee): each sample interval accumulates
// (overlap/sampleInterval) into column = event.state. P is divided by the
// number of chains at the end (4.6).
func ProbabilityFromEventChains(sim *Simulation, chains []MonteCarloEventChain, numStates int, abort *AbortFlag) []float64 {
	n := len(sim.Time)
	buf := make([]float64, n*numStates)
	if len(chains) == 0 {
		return buf
	}
	sampleInterval := sim.EndTime / float64(n)
	if n > 1 {
		sampleInterval = sim.Time[1] - sim.Time[0]
	}

	for _, chain := range chains {
		if abort.Check() {
			return buf
		}
		es := sim.Time[0]
		for _, ev := range chain {
			ee := es + ev.Duration
			accumulateEventOverlap(buf, sim.Time, sim.EndTime, numStates, es, ee, ev.State, sampleInterval)
			es = ee
		}
	}
	for i := range buf {
		buf[i] /= float64(len(chains))
	}
	return buf
}

func accumulateEventOverlap(buf []float64, time []float64, endTime float64, numStates int, es, ee float64, state int, sampleInterval float64) {
	n := len(time)
	for i := 0; i < n; i++ {
		ti := time[i]
		tiNext := endTime
		if i+1 < n {
			tiNext = time[i+1]
		}
		overlapStart := maxf(ti, es)
		overlapEnd := minf(tiNext, ee)
		overlap := overlapEnd - overlapStart
		if overlap <= 0 {
			continue
		}
		buf[i*numStates+state] += overlap / sampleInterval
	}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
