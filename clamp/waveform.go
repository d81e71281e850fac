// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import "math"

// FindIndexesInRange implements the range indexing rule used throughout
// the core (4.7): firstPt is the closest index to start (advanced by one
// if it lies below start-eps); endPt is the closest index to stop
// (likewise); numPts = max(0, endPt-firstPt).
func FindIndexesInRange(time []float64, start, stop, eps float64) (firstPt, numPts int) {
	eps = DefaultEps(eps)
	firstPt = closestIndex(time, start)
	if time[firstPt] < start-eps {
		firstPt++
	}
	if firstPt >= len(time) {
		return firstPt, 0
	}
	endPt := closestIndex(time, stop)
	if time[endPt] < stop-eps {
		endPt++
	}
	numPts = endPt - firstPt
	if numPts < 0 {
		numPts = 0
	}
	return firstPt, numPts
}

func closestIndex(time []float64, target float64) int {
	best := 0
	bestDiff := math.Abs(time[0] - target)
	for i := 1; i < len(time); i++ {
		d := math.Abs(time[i] - target)
		if d < bestDiff {
			bestDiff = d
			best = i
		}
	}
	return best
}

// WaveformBuilder is C8 (4.7): it builds derived waveforms, state-group
// sums, and summary scalars via the expression evaluator.
type WaveformBuilder struct {
	Eval *Evaluator
	Eps  float64
}

// stateColumn extracts state s's occupancy column from sim's flattened
// N x S probability buffer for variable set v.
func stateColumn(sim *Simulation, v, s int) []float64 {
	n := len(sim.Time)
	out := make([]float64, n)
	buf := sim.Probability[v]
	for i := 0; i < n; i++ {
		out[i] = buf[i*sim.NumStates+s]
	}
	return out
}

// BuildSimulation performs 4.7 steps 1-4 for one (Simulation, variable
// set): derive per-state occupancy (reconstructing from event chains if
// this was a Monte Carlo run without a direct probability buffer), build
// attribute-derived waveforms per epoch, bind the evaluator environment,
// and evaluate every active Waveform.
func (wb *WaveformBuilder) BuildSimulation(sim *Simulation, v int, stateNames []string, groups []StateGroup, model ModelProvider, waveforms []*Waveform, abort *AbortFlag) error {
	for len(sim.Probability) <= v {
		sim.Probability = append(sim.Probability, nil)
	}
	if sim.Probability[v] == nil && v < len(sim.EventRuns) && len(sim.EventRuns[v]) > 0 {
		sim.NumStates = len(stateNames)
		sim.Probability[v] = ProbabilityFromEventChains(sim, sim.EventRuns[v], sim.NumStates, abort)
	}
	if sim.Probability[v] == nil {
		return NewError(KindModel, "no probability data for variable set %d", v)
	}

	for len(sim.Waveforms) <= v {
		sim.Waveforms = append(sim.Waveforms, nil)
	}
	wv := make(map[string][]float64)
	sim.Waveforms[v] = wv

	n := len(sim.Time)

	// 4.7 step 2: attribute-derived waveforms, per epoch.
	attrNames := attributeNames(sim.Epochs)
	for _, name := range attrNames {
		buf := make([]float64, n)
		for _, e := range sim.Epochs {
			if abort.Check() {
				return ErrAborted
			}
			attr, ok := e.Unique.StateAttributes[name]
			if !ok {
				continue
			}
			firstPt, numPts := e.FirstPt, e.NumPts
			for row := 0; row < numPts; row++ {
				i := firstPt + row
				var sum float64
				for s := 0; s < sim.NumStates; s++ {
					sum += sim.Probability[v][i*sim.NumStates+s] * attr[s]
				}
				buf[i] = sum
			}
		}
		wv[name] = buf
	}

	// 4.7 step 3: expression-evaluator bindings.
	vectors := map[string][]float64{}
	for name, s := range sim.Stimuli {
		vectors[name] = s
	}
	for i, name := range stateNames {
		if i < sim.NumStates {
			vectors[name] = stateColumn(sim, v, i)
		}
	}
	for name, buf := range wv {
		vectors[name] = buf
	}
	for _, g := range groups {
		if !g.Active {
			continue
		}
		sum := make([]float64, n)
		for _, s := range g.States {
			col := stateColumn(sim, v, s)
			for i := range sum {
				sum[i] += col[i]
			}
		}
		vectors[g.Name] = sum
	}
	scalars := model.Parameters()

	// 4.7 step 4: evaluate active Waveform children.
	for _, w := range waveforms {
		if !w.Active {
			continue
		}
		res, err := wb.Eval.EvalVector(w.Expr, sim.Time, vectors, scalars, true)
		if err != nil {
			return err
		}
		if len(res) != n {
			return NewError(KindShape, "waveform %q: result length %d != %d", w.Name, len(res), n)
		}
		wv[w.Name] = res
		vectors[w.Name] = res
	}
	return nil
}

func attributeNames(epochs []*Epoch) []string {
	seen := map[string]bool{}
	var names []string
	for _, e := range epochs {
		if e.Unique == nil {
			continue
		}
		for name := range e.Unique.StateAttributes {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// EvaluateSummaries performs 4.7 steps 5-6 across a protocol's whole grid
// for one variable set: each active SimulationsSummary's exprX/exprY are
// evaluated over their own sub-window at every (r,c), then the resulting
// R x C matrices are normalised.
func (wb *WaveformBuilder) EvaluateSummaries(p *Protocol, v int, stateNames []string, groups []StateGroup, model ModelProvider, abort *AbortFlag) error {
	maxR, maxC := len(p.Grid), 0
	if maxR > 0 {
		maxC = len(p.Grid[0])
	}
	for _, sum := range p.Summaries {
		if !sum.Active {
			continue
		}
		for len(sum.DataX) <= v {
			sum.DataX = append(sum.DataX, nil)
			sum.DataY = append(sum.DataY, nil)
		}
		dataX := make([][]float64, maxR)
		dataY := make([][]float64, maxR)
		for r := 0; r < maxR; r++ {
			dataX[r] = make([]float64, maxC)
			dataY[r] = make([]float64, maxC)
			for c := 0; c < maxC; c++ {
				if abort.Check() {
					return ErrAborted
				}
				sim := p.Grid[r][c]
				x, y, err := wb.evaluateSummaryCell(sim, v, sum, r, c, stateNames, groups, model)
				if err != nil {
					return err
				}
				dataX[r][c] = x
				dataY[r][c] = y
			}
		}
		applyNormalization(dataX, sum.Normalization)
		applyNormalization(dataY, sum.Normalization)
		sum.DataX[v] = dataX
		sum.DataY[v] = dataY
	}
	return nil
}

func (wb *WaveformBuilder) evaluateSummaryCell(sim *Simulation, v int, sum *SimulationsSummary, r, c int, stateNames []string, groups []StateGroup, model ModelProvider) (float64, float64, error) {
	exprX := cellStr(sum.ExprX, r, c)
	exprY := cellStr(sum.ExprY, r, c)
	startX := cellF(sum.StartX, r, c)
	durX := cellF(sum.DurationX, r, c)
	startY := cellF(sum.StartY, r, c)
	durY := cellF(sum.DurationY, r, c)

	fx, nx := FindIndexesInRange(sim.Time, startX, startX+durX, wb.Eps)
	x, err := wb.evalSubrangeScalar(sim, v, exprX, fx, nx, stateNames, groups, model)
	if err != nil {
		return 0, 0, err
	}
	fy, ny := FindIndexesInRange(sim.Time, startY, startY+durY, wb.Eps)
	y, err := wb.evalSubrangeScalar(sim, v, exprY, fy, ny, stateNames, groups, model)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func (wb *WaveformBuilder) evalSubrangeScalar(sim *Simulation, v int, exprStr string, firstPt, numPts int, stateNames []string, groups []StateGroup, model ModelProvider) (float64, error) {
	vectors := map[string][]float64{"t": subrange(sim.Time, firstPt, numPts)}
	for name, s := range sim.Stimuli {
		vectors[name] = subrange(s, firstPt, numPts)
	}
	for i, name := range stateNames {
		if i < sim.NumStates {
			vectors[name] = subrange(stateColumn(sim, v, i), firstPt, numPts)
		}
	}
	if v < len(sim.Waveforms) {
		for name, buf := range sim.Waveforms[v] {
			vectors[name] = subrange(buf, firstPt, numPts)
		}
	}
	for _, g := range groups {
		if !g.Active {
			continue
		}
		sum := make([]float64, numPts)
		for _, s := range g.States {
			col := subrange(stateColumn(sim, v, s), firstPt, numPts)
			for i := range sum {
				sum[i] += col[i]
			}
		}
		vectors[g.Name] = sum
	}
	return wb.Eval.EvalScalar(exprStr, vectors, model.Parameters())
}

func subrange(v []float64, firstPt, numPts int) []float64 {
	if firstPt < 0 {
		firstPt = 0
	}
	end := firstPt + numPts
	if end > len(v) {
		end = len(v)
	}
	if firstPt > end {
		firstPt = end
	}
	out := make([]float64, end-firstPt)
	copy(out, v[firstPt:end])
	return out
}

func cellStr(m [][]string, r, c int) string {
	if r < len(m) && c < len(m[r]) {
		return m[r][c]
	}
	return ""
}

func cellF(m [][]float64, r, c int) float64 {
	if r < len(m) && c < len(m[r]) {
		return m[r][c]
	}
	return 0
}

// applyNormalization implements 4.7 step 6: PerRow divides each row by
// max(|row|); AllRows divides the full matrix by max(|matrix|); None
// leaves it. Division by a zero denominator is guarded (treated as 1).
func applyNormalization(data [][]float64, norm Normalization) {
	switch norm {
	case NormPerRow:
		for _, row := range data {
			m := maxAbs(row)
			if m == 0 {
				m = 1
			}
			for i := range row {
				row[i] /= m
			}
		}
	case NormAllRows:
		var m float64
		for _, row := range data {
			if rm := maxAbs(row); rm > m {
				m = rm
			}
		}
		if m == 0 {
			m = 1
		}
		for _, row := range data {
			for i := range row {
				row[i] /= m
			}
		}
	}
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
