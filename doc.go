// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package stimclamp is the overall repository for the numerical core of a
stimulus-clamp simulator for continuous-time Markov chain models of
ion-channel kinetics. Given a time-dependent stimulus protocol and a
parametrised state-transition-rate matrix Q(stimuli), the core produces the
occupancy probability trajectory P(t) over a discretised sample grid, or
Monte-Carlo-sampled state-dwell sequences, evaluates arithmetic expressions
over the simulated waveforms, and computes a weighted cost against reference
data so an outer optimiser can fit model parameters.

This top-level of the repository has no functional code -- everything is
organized into the following sub-repositories:

* clamp: the core engine -- stimulus discretisation, epoch construction and
interning, spectral and Monte Carlo propagation, waveform/summary evaluation,
and reference-data cost. Nearly all of the numerical work happens here.

* kinetics: a reference implementation of the model-provider interface that
clamp consumes -- simple parametrised kinetic schemes (two-state, absorbing,
cyclic) used by tests and by the example command.

* cmd/clampsim: a runnable example that builds a single-pulse protocol from
command-line flags, simulates it with either method, reports the final state
occupancy, and optionally writes Monte Carlo chains to a .dwt file. It does
not compute a cost against reference data.
*/
package stimclamp
