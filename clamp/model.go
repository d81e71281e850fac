// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import "gonum.org/v1/gonum/mat"

// StateGroup is a model-provided grouping of state indices, bound in the
// expression evaluator as the sum of those states' occupancy columns
// (4.7 step 3).
type StateGroup struct {
	Name    string
	States  []int
	Active  bool
}

// ModelProvider is the external Markov-model collaborator (§6). The core
// treats it as an interface: it supplies Q(stimuli), state attributes and
// charges, state names/groups, and the free-variable bridge the outer
// optimiser drives. The kinetics package supplies one concrete
// implementation.
type ModelProvider interface {
	// NumVariableSets returns the number of independent parameter
	// assignments this model can be evaluated under.
	NumVariableSets() int

	// Init returns the ordered list of state names.
	Init() (stateNames []string)

	// EvalVariables evaluates the model's parameters for variable set v
	// under the given stimulus scalar assignment.
	EvalVariables(stimuli map[string]float64, v int) error

	// StateProbabilities returns the current starting-probability row
	// vector (length = number of states).
	StateProbabilities() []float64

	// StateAttributes returns named per-state scalar rows (e.g. "charge").
	StateAttributes() map[string][]float64

	// TransitionRates returns Q, S x S.
	TransitionRates() *mat.Dense

	// TransitionCharges returns the S x S per-transition charge matrix, or
	// nil if none of its entries are nonzero.
	TransitionCharges() *mat.Dense

	// StateGroups returns the model's named state groupings.
	StateGroups() []StateGroup

	// Parameters returns the current scalar parameter name -> value map,
	// exposed to the expression evaluator (4.7 step 3).
	Parameters() map[string]float64

	// FreeVariables returns the optimiser-visible free variable vector and
	// its bounds (§6 optimiser bridge).
	FreeVariables() (x, xmin, xmax []float64)

	// SetFreeVariables applies an optimiser-chosen free variable vector.
	SetFreeVariables(x []float64) error
}
