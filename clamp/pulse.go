// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import "math"

// PulseSynthesiser is C2: it renders one stimulus channel's waveform onto a
// given time grid from (start, duration, amplitude, period, repeats,
// onset/offset expr) (4.1).
type PulseSynthesiser struct {
	Eval *Evaluator
	// Strict controls per-pulse expression error handling (§7, §9 Open
	// Question ii): false swallows evaluation errors as zero contributions
	// (optimiser sweep mode), true surfaces them (one-shot simulation).
	Strict bool
	Eps    float64
}

// NewPulseSynthesiser returns a PulseSynthesiser sharing evaluator e.
func NewPulseSynthesiser(e *Evaluator) *PulseSynthesiser {
	return &PulseSynthesiser{Eval: e, Strict: false, Eps: 0}
}

// Waveform synthesises the waveform for one condition cell's start/
// duration/amplitude/period/repeats/onsetExpr/offsetExpr values onto the
// given time grid.
func (p *PulseSynthesiser) Waveform(time []float64, start, duration, amplitude, period, repeats float64, onsetExpr, offsetExpr string) ([]float64, error) {
	n := len(time)
	out := make([]float64, n)
	eps := DefaultEps(p.Eps)
	if duration <= eps || math.Abs(amplitude) <= eps {
		return out, nil
	}
	reps := int(repeats)
	if reps < 1 {
		reps = 1
	}
	for k := 0; k < reps; k++ {
		onset := start + float64(k)*period
		offset := onset + duration
		firstOnsetPt := closestIndexAtLeast(time, onset, eps)
		firstOffsetPt := closestIndexAtLeast(time, offset, eps)
		if firstOnsetPt >= n {
			continue
		}
		if onsetExpr == "" && offsetExpr == "" {
			end := firstOffsetPt
			if end > n {
				end = n
			}
			for i := firstOnsetPt; i < end; i++ {
				out[i] += amplitude
			}
			continue
		}
		if onsetExpr != "" {
			end := firstOffsetPt
			if end > n {
				end = n
			}
			if end > firstOnsetPt {
				local := make([]float64, end-firstOnsetPt)
				for i := firstOnsetPt; i < end; i++ {
					local[i-firstOnsetPt] = time[i] - onset
				}
				res, err := p.Eval.EvalVector(onsetExpr, local, nil, nil, p.Strict)
				if err != nil {
					return nil, err
				}
				for i := firstOnsetPt; i < end; i++ {
					out[i] += res[i-firstOnsetPt] * amplitude
				}
			}
		}
		if offsetExpr != "" && firstOffsetPt < n {
			local := make([]float64, n-firstOffsetPt)
			for i := firstOffsetPt; i < n; i++ {
				local[i-firstOffsetPt] = time[i] - offset
			}
			res, err := p.Eval.EvalVector(offsetExpr, local, nil, nil, p.Strict)
			if err != nil {
				return nil, err
			}
			for i := firstOffsetPt; i < n; i++ {
				out[i] += res[i-firstOffsetPt] * amplitude
			}
		}
	}
	return out, nil
}

// closestIndexAtLeast implements the index-selection rule (4.1): locate the
// closest grid index to target; if the closest sample lies below
// target-eps, advance by one.
func closestIndexAtLeast(time []float64, target, eps float64) int {
	if len(time) == 0 {
		return 0
	}
	best := 0
	bestDiff := math.Abs(time[0] - target)
	for i := 1; i < len(time); i++ {
		d := math.Abs(time[i] - target)
		if d < bestDiff {
			bestDiff = d
			best = i
		}
	}
	if time[best] < target-eps {
		best++
	}
	return best
}
