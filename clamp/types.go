// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import "gonum.org/v1/gonum/mat"

// machineEpsilon is the float64 machine epsilon (2^-52), the base of the
// DefaultEps tolerance rule below.
const machineEpsilon = 2.220446049250313e-16

// DefaultEps returns max(5*machine-epsilon, caller) -- the epsilon rule used
// by the index-selection rule (4.1), findIndexesInRange (4.7), and
// sampleArray (4.8).
func DefaultEps(caller float64) float64 {
	e := 5 * machineEpsilon
	if caller > e {
		return caller
	}
	return e
}

// Normalization is the summary-matrix post-processing mode (4.7 step 6).
type Normalization int

const (
	NormNone Normalization = iota
	NormPerRow
	NormAllRows
)

// RefNormalization is ReferenceData's waveform normalisation mode (§3).
type RefNormalization int

const (
	RefNormNone RefNormalization = iota
	RefNormToMax
	RefNormToMin
	RefNormToAbsMinMax
)

// Stimulus is a named channel with condition matrices for start, duration,
// amplitude, period, repeats, onsetExpr, offsetExpr (§3). The names
// "weight" and "mask" are reserved: their waveforms accumulate into the
// simulation's weight and mask vectors instead of becoming a stimulus
// channel of their own.
type Stimulus struct {
	Name string

	Start          [][]float64
	Duration       [][]float64
	Amplitude      [][]float64
	Period         [][]float64
	Repeats        [][]float64
	OnsetExprStr   [][]string
	OffsetExprStr  [][]string
}

// IsReserved reports whether this stimulus contributes to weight/mask
// rather than being a bindable stimulus channel.
func (s *Stimulus) IsReserved() bool {
	return s.Name == "weight" || s.Name == "mask"
}

// Waveform is a protocol-level derived signal: an expression over t,
// stimuli, state occupancies and other waveforms, evaluated over the whole
// simulation time grid (4.7 step 4).
type Waveform struct {
	Name   string
	Active bool
	Expr   string
}

// SimulationsSummary reduces a sub-window of a simulation to a scalar pair
// (dataX, dataY) per condition cell, via two condition-matrix expressions
// and their own X/Y sub-ranges (4.7 step 5).
type SimulationsSummary struct {
	Name   string
	Active bool

	ExprX [][]string
	ExprY [][]string

	StartX    [][]float64
	DurationX [][]float64
	StartY    [][]float64
	DurationY [][]float64

	Normalization Normalization

	// DataX/DataY hold the R x C result after Evaluate, one matrix per
	// variable set.
	DataX [][][]float64 // [v][r][c]
	DataY [][][]float64
}

// Epoch is a maximal contiguous interval of constant stimuli within one
// Simulation's sample grid (§3).
type Epoch struct {
	Start    float64
	Duration float64
	FirstPt  int
	NumPts   int
	Stimuli  map[string]float64
	Unique   *UniqueEpoch
}

// Range returns [FirstPt, FirstPt+NumPts).
func (e *Epoch) Range() (int, int) { return e.FirstPt, e.FirstPt + e.NumPts }

// UniqueEpoch is interned by exact equality of its stimuli mapping (§3). It
// owns everything derived from the model for one distinct stimulus tuple:
// Q, its spectral decomposition, and per-state exponential lifetimes.
type UniqueEpoch struct {
	Stimuli map[string]float64

	StateProbabilities []float64
	StateAttributes    map[string][]float64
	TransitionRates    *mat.Dense // Q, S x S
	TransitionCharges  *mat.Dense // S x S, may be nil if charges matrix has no nonzeros

	// Eigen Solver method output: Q's real block-diagonal (pseudo-eigen)
	// decomposition, one SpectralBlock per real eigenvalue or per
	// complex-conjugate eigenvalue pair (see clamp/prepare.go).
	SpectralBlocks []SpectralBlock

	// Monte Carlo method outputs.
	RandomStateLifetimes []ExponentialDist

	StateChargeCurrents []float64
}

// SpectralBlock is one term of Q's real eigendecomposition, in the same
// spirit as Eigen::EigenSolver's pseudoEigenvalueMatrix/pseudoEigenvectors
// (_examples/original_source/StimulusClampProtocol.cpp): a real eigenvalue
// contributes a single rank-1 term exp(Lambda*tau)*Matrix; a
// complex-conjugate pair Alpha +/- i*Beta contributes the real 2x2
// rotation-block term exp(Alpha*tau)*(cos(Beta*tau)*Cos + sin(Beta*tau)*Sin),
// which stays real and correct without ever truncating an imaginary part.
type SpectralBlock struct {
	Real bool

	Lambda float64 // valid when Real

	Alpha float64 // real part of the pair, valid when !Real
	Beta  float64 // positive imaginary part of the pair, valid when !Real

	Matrix *mat.Dense // rank-1 term v*u^T, valid when Real
	Cos    *mat.Dense // cos(Beta*tau) coefficient matrix, valid when !Real
	Sin    *mat.Dense // sin(Beta*tau) coefficient matrix, valid when !Real
}

// ExponentialDist is an exponential waiting-time distribution with the
// given rate; Rate<=eps marks an absorbing state (4.4).
type ExponentialDist struct {
	Rate      float64
	Absorbing bool
}

// MonteCarloEvent is one (state, duration) dwell in a chain (§3).
type MonteCarloEvent struct {
	State    int
	Duration float64
}

// MonteCarloEventChain is an ordered list of events whose total duration
// equals Simulation.EndTime (§3, invariant 3 in §8).
type MonteCarloEventChain []MonteCarloEvent

// TotalDuration sums the chain's event durations.
func (c MonteCarloEventChain) TotalDuration() float64 {
	var t float64
	for _, e := range c {
		t += e.Duration
	}
	return t
}

// AlignedReference is one ReferenceData curve resampled onto a
// Simulation's time grid (or a Summary's X grid), after ReferenceAligner
// has run (4.8).
type AlignedReference struct {
	Name       string
	Waveform   []float64 // trimmed to [FirstPt, FirstPt+NumPts)
	FirstPt    int
	NumPts     int
	Weight     float64
	IsSummaryY bool // true if this reference aligns against a SimulationsSummary's Y column rather than a per-sample waveform
}

// ReferenceData is tabular file content plus alignment parameters (§3).
type ReferenceData struct {
	Name    string
	Active  bool
	Path    string // relative to owning Protocol's resolved base directory
	X0      float64
	Scale   float64
	Weight  float64
	Norm    RefNormalization

	VariableSetIndex int
	RowIndex         int
	ColumnIndex      int

	ColumnTitles []string
	ColumnData   [][]float64 // [column][row]
}

// ColumnPairsXY infers (x,y) column pairings (§3): if the column count is
// even and titles[0]==titles[2], pairs are (0,1),(2,3),...; otherwise
// column 0 is x and each later column is its own y.
func (r *ReferenceData) ColumnPairsXY() [][2]int {
	n := len(r.ColumnData)
	if n == 0 {
		return nil
	}
	if n%2 == 0 && n >= 4 && r.ColumnTitles[0] == r.ColumnTitles[2] {
		pairs := make([][2]int, 0, n/2)
		for i := 0; i+1 < n; i += 2 {
			pairs = append(pairs, [2]int{i, i + 1})
		}
		return pairs
	}
	pairs := make([][2]int, 0, n-1)
	for i := 1; i < n; i++ {
		pairs = append(pairs, [2]int{0, i})
	}
	return pairs
}

// Simulation is one grid cell of a compiled Protocol (§3).
type Simulation struct {
	Row, Col int

	Time    []float64
	EndTime float64
	Weight  []float64
	Mask    []bool // true == sample included in cost (raw mask==0); false == excluded (raw mask!=0)

	Stimuli map[string][]float64

	Epochs []*Epoch

	// Per-variable-set outputs, index v.
	Probability [][]float64 // [v] -> flattened N x S row-major, nil until propagated
	NumStates   int

	Waveforms []map[string][]float64 // [v][name] -> vector[N]

	EventRuns [][]MonteCarloEventChain // [v][run] -> chain

	AlignedRefs []map[string]*AlignedReference // [v][refName]

	MaxProbabilityError float64
}

// ProbabilityAt returns P(state) at sample i for variable set v, reading
// the flattened N x S row-major Probability buffer.
func (s *Simulation) ProbabilityAt(v, i, state int) float64 {
	return s.Probability[v][i*s.NumStates+state]
}

// Protocol is a named container holding condition matrices for start,
// duration, sampleInterval, weight, a set of Stimulus/Waveform/
// SimulationsSummary/ReferenceData children, and, after compilation, an
// R x C grid of Simulations (§3).
type Protocol struct {
	Name string

	Start          [][]float64
	Duration       [][]float64
	SampleInterval [][]float64
	Weight         [][]float64

	StartEquilibrated bool

	Stimuli    []*Stimulus
	Waveforms  []*Waveform
	Summaries  []*SimulationsSummary
	References []*ReferenceData

	NumVariableSets int

	Grid [][]*Simulation // [r][c]
}
