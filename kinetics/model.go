// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kinetics provides a concrete clamp.ModelProvider: a
// named-state continuous-time Markov chain whose transition rates and
// per-transition charge are small closures over the model's parameters
// and the current stimulus values, generalising chans.Chans' fixed
// four-field (E,L,I,K) value struct into an arbitrary-state scheme.
package kinetics

import (
	"fmt"

	"github.com/emer/stimclamp/clamp"
	"gonum.org/v1/gonum/mat"
)

// RateFunc computes one edge's instantaneous rate from the model's
// current parameters and stimulus values (e.g. voltage- or
// ligand-dependence).
type RateFunc func(params, stimuli map[string]float64) float64

// Edge is one directed transition of a Scheme: From -> To at Rate(...),
// optionally carrying a Charge transferred per event (used to derive
// TransitionCharges).
type Edge struct {
	From, To int
	Rate     RateFunc
	Charge   float64
}

// Scheme is the static description of a kinetic model: its named states,
// per-state attributes (conductance, charge, or any other scalar row a
// protocol's waveforms may reference), directed rate edges, starting
// occupancy, and state groupings.
type Scheme struct {
	Name                string
	StateNames          []string
	InitialProbability  []float64
	Attributes          map[string][]float64
	Edges               []Edge
	Groups              []clamp.StateGroup
}

// Bound is a free variable's [Min,Max] range. A Min of -Inf or a Max of
// +Inf makes the angular/linear transform (clamp.FreeVariableTransform)
// pass the variable through unchanged; a free variable with no entry in
// Model.Bounds reports Min==Max==0.
type Bound struct {
	Min, Max float64
}

// Model adapts a Scheme into a clamp.ModelProvider. ParamSets, when
// non-empty, gives each variable set its own parameter overlay (layered
// on top of Params); this is the model-side analogue of running the
// same protocol across several mutant/condition parameter sets in one
// session.
type Model struct {
	Scheme   *Scheme
	Params   map[string]float64
	Bounds   map[string]Bound
	FreeVars []string

	ParamSets []map[string]float64

	activeParams map[string]float64
	q            *mat.Dense
	charges      *mat.Dense
}

// NewModel returns a Model ready for use, copying params so callers may
// keep mutating their own copy.
func NewModel(scheme *Scheme, params map[string]float64) *Model {
	p := make(map[string]float64, len(params))
	for k, v := range params {
		p[k] = v
	}
	return &Model{Scheme: scheme, Params: p, Bounds: map[string]Bound{}}
}

func (m *Model) NumVariableSets() int {
	if len(m.ParamSets) == 0 {
		return 1
	}
	return len(m.ParamSets)
}

func (m *Model) Init() []string {
	return m.Scheme.StateNames
}

// EvalVariables rebuilds Q and the charge matrix from the scheme's edges
// under variable set v's parameter overlay and the given stimulus
// values (§4.2's "evaluate model at one epoch's stimulus tuple").
func (m *Model) EvalVariables(stimuli map[string]float64, v int) error {
	n := len(m.Scheme.StateNames)
	params := m.Params
	if v < len(m.ParamSets) {
		merged := make(map[string]float64, len(m.Params)+len(m.ParamSets[v]))
		for k, val := range m.Params {
			merged[k] = val
		}
		for k, val := range m.ParamSets[v] {
			merged[k] = val
		}
		params = merged
	}
	m.activeParams = params

	q := mat.NewDense(n, n, nil)
	charges := mat.NewDense(n, n, nil)
	anyCharge := false
	for _, e := range m.Scheme.Edges {
		if e.From == e.To || e.From < 0 || e.From >= n || e.To < 0 || e.To >= n {
			return fmt.Errorf("kinetics: invalid edge %d->%d in scheme %q", e.From, e.To, m.Scheme.Name)
		}
		rate := e.Rate(params, stimuli)
		q.Set(e.From, e.To, q.At(e.From, e.To)+rate)
		if e.Charge != 0 {
			charges.Set(e.From, e.To, e.Charge)
			anyCharge = true
		}
	}
	for i := 0; i < n; i++ {
		var rowSum float64
		for j := 0; j < n; j++ {
			if j != i {
				rowSum += q.At(i, j)
			}
		}
		q.Set(i, i, -rowSum)
	}
	m.q = q
	if anyCharge {
		m.charges = charges
	} else {
		m.charges = nil
	}
	return nil
}

func (m *Model) StateProbabilities() []float64 {
	return append([]float64(nil), m.Scheme.InitialProbability...)
}

func (m *Model) StateAttributes() map[string][]float64 {
	return m.Scheme.Attributes
}

func (m *Model) TransitionRates() *mat.Dense {
	return m.q
}

func (m *Model) TransitionCharges() *mat.Dense {
	return m.charges
}

func (m *Model) StateGroups() []clamp.StateGroup {
	return m.Scheme.Groups
}

func (m *Model) Parameters() map[string]float64 {
	if m.activeParams != nil {
		return m.activeParams
	}
	return m.Params
}

func (m *Model) FreeVariables() (x, xmin, xmax []float64) {
	for _, name := range m.FreeVars {
		x = append(x, m.Params[name])
		b := m.Bounds[name]
		xmin = append(xmin, b.Min)
		xmax = append(xmax, b.Max)
	}
	return x, xmin, xmax
}

func (m *Model) SetFreeVariables(x []float64) error {
	if len(x) != len(m.FreeVars) {
		return fmt.Errorf("kinetics: SetFreeVariables expected %d values, got %d", len(m.FreeVars), len(x))
	}
	for i, name := range m.FreeVars {
		m.Params[name] = x[i]
	}
	return nil
}
