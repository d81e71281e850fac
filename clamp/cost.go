// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

// CostEvaluator is C9's cost half (4.8/§3): it reduces a Simulation's (or
// SimulationsSummary's) aligned reference curves to a weighted sum of
// squared errors against a named series -- a state occupancy column, a
// stimulus channel, or a derived waveform.
type CostEvaluator struct{}

// seriesByName looks up a named series for variable set v: state
// occupancy first (so a state name always wins a collision), then
// stimuli, then derived waveforms.
func seriesByName(sim *Simulation, v int, name string, stateNames []string) []float64 {
	for i, n := range stateNames {
		if n == name && i < sim.NumStates {
			return stateColumn(sim, v, i)
		}
	}
	if s, ok := sim.Stimuli[name]; ok {
		return s
	}
	if v < len(sim.Waveforms) {
		if w, ok := sim.Waveforms[v][name]; ok {
			return w
		}
	}
	return nil
}

// SimulationCost returns the weighted sum-of-squared-error cost of one
// Simulation's aligned reference curves against their named series,
// honouring the per-sample weight and mask vectors (true == included).
func (ce *CostEvaluator) SimulationCost(sim *Simulation, v int, stateNames []string) (float64, error) {
	if v >= len(sim.AlignedRefs) {
		return 0, nil
	}
	var total float64
	for name, ref := range sim.AlignedRefs[v] {
		if ref.IsSummaryY {
			continue
		}
		series := seriesByName(sim, v, name, stateNames)
		if series == nil {
			return 0, NewError(KindModel, "reference %q: no matching state, stimulus, or waveform", name)
		}
		for i := 0; i < ref.NumPts; i++ {
			idx := ref.FirstPt + i
			if idx >= len(series) || idx >= len(sim.Mask) {
				continue
			}
			if !sim.Mask[idx] {
				continue
			}
			d := series[idx] - ref.Waveform[i]
			total += ref.Weight * sim.Weight[idx] * d * d
		}
	}
	return total, nil
}

// SummaryCost returns the weighted squared error of a SimulationsSummary's
// DataY row against a reference row's Y column, using only the
// reference's global weight (no per-sample weights at the summary level,
// §3).
func (ce *CostEvaluator) SummaryCost(summaryY []float64, refY []float64, weight float64) float64 {
	n := len(summaryY)
	if len(refY) < n {
		n = len(refY)
	}
	var total float64
	for i := 0; i < n; i++ {
		d := summaryY[i] - refY[i]
		total += weight * d * d
	}
	return total
}

// ProtocolCost sums every grid cell's SimulationCost for variable set v.
func (ce *CostEvaluator) ProtocolCost(p *Protocol, v int, stateNames []string) (float64, error) {
	var total float64
	for _, row := range p.Grid {
		for _, sim := range row {
			c, err := ce.SimulationCost(sim, v, stateNames)
			if err != nil {
				return 0, err
			}
			total += c
		}
	}
	return total, nil
}

// SessionCost sums ProtocolCost across every variable set of every
// protocol, the final scalar an optimiser minimises (§3, §6).
func (ce *CostEvaluator) SessionCost(protocols []*Protocol, stateNames []string) (float64, error) {
	var total float64
	for _, p := range protocols {
		for v := 0; v < p.NumVariableSets; v++ {
			c, err := ce.ProtocolCost(p, v, stateNames)
			if err != nil {
				return 0, err
			}
			total += c
		}
	}
	return total, nil
}
