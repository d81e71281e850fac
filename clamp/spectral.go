// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SpectralPropagator is C6 (4.5): it integrates P(t) analytically across
// epoch boundaries using the eigen-expansion of Q.
type SpectralPropagator struct{}

// Propagate fills sim.Probability[v] (a flattened N x S row-major buffer)
// for variable set v, given the protocol's startEquilibrated flag and the
// starting probability row startP. The max row-sum error observed is
// stored in sim.MaxProbabilityError.
func (sp *SpectralPropagator) Propagate(sim *Simulation, v int, startP []float64, startEquilibrated bool, abort *AbortFlag) error {
	s := len(startP)
	n := len(sim.Time)
	for len(sim.Probability) <= v {
		sim.Probability = append(sim.Probability, nil)
	}
	sim.NumStates = s
	buf := make([]float64, n*s)
	sim.Probability[v] = buf

	p := append([]float64(nil), startP...)

	for ei, e := range sim.Epochs {
		if abort.Check() {
			return ErrAborted
		}
		u := e.Unique
		if u == nil || len(u.SpectralBlocks) == 0 {
			return NewError(KindNumerical, "epoch %d has no spectral decomposition", ei)
		}

		if ei == 0 && startEquilibrated {
			blk := u.SpectralBlocks[stationaryIndex(u.SpectralBlocks)]
			p = rowTimesMat(p, blk.Matrix)
			fillConstantRows(buf, s, e.FirstPt, e.NumPts, p)
			continue
		}

		if e.NumPts > 0 {
			firstPt, numPts := e.FirstPt, e.NumPts
			for _, blk := range u.SpectralBlocks {
				if abort.Check() {
					return ErrAborted
				}
				if blk.Real {
					pa := rowTimesMat(p, blk.Matrix)
					for row := 0; row < numPts; row++ {
						tau := sim.Time[firstPt+row] - e.Start
						factor := math.Exp(blk.Lambda * tau)
						for col := 0; col < s; col++ {
							buf[(firstPt+row)*s+col] += factor * pa[col]
						}
					}
					continue
				}
				pCos := rowTimesMat(p, blk.Cos)
				pSin := rowTimesMat(p, blk.Sin)
				for row := 0; row < numPts; row++ {
					tau := sim.Time[firstPt+row] - e.Start
					decay := math.Exp(blk.Alpha * tau)
					cosT := math.Cos(blk.Beta * tau)
					sinT := math.Sin(blk.Beta * tau)
					for col := 0; col < s; col++ {
						buf[(firstPt+row)*s+col] += decay * (cosT*pCos[col] + sinT*pSin[col])
					}
				}
			}
		}

		// Propagate p to the end of this epoch for the next one.
		next := make([]float64, s)
		for _, blk := range u.SpectralBlocks {
			if abort.Check() {
				return ErrAborted
			}
			if blk.Real {
				pa := rowTimesMat(p, blk.Matrix)
				factor := math.Exp(blk.Lambda * e.Duration)
				for col := 0; col < s; col++ {
					next[col] += factor * pa[col]
				}
				continue
			}
			pCos := rowTimesMat(p, blk.Cos)
			pSin := rowTimesMat(p, blk.Sin)
			decay := math.Exp(blk.Alpha * e.Duration)
			cosT := math.Cos(blk.Beta * e.Duration)
			sinT := math.Sin(blk.Beta * e.Duration)
			for col := 0; col < s; col++ {
				next[col] += decay * (cosT*pCos[col] + sinT*pSin[col])
			}
		}
		p = next
	}

	sim.MaxProbabilityError = maxRowSumError(buf, n, s)
	return nil
}

// stationaryIndex returns the index of the real block whose eigenvalue is
// closest to zero -- the stationary eigenspace projector used for
// startEquilibrated (4.5 step 2). Q*1=0 gives a real eigenvector, so the
// stationary block is always Real; blocks are sorted ascending by
// representative |eigenvalue|, so this is normally index 0, but the search
// is explicit to stay correct if that ordering invariant is ever relaxed.
func stationaryIndex(blocks []SpectralBlock) int {
	best := -1
	bestAbs := math.Inf(1)
	for i, blk := range blocks {
		if !blk.Real {
			continue
		}
		if a := math.Abs(blk.Lambda); a < bestAbs {
			bestAbs = a
			best = i
		}
	}
	return best
}

// rowTimesMat computes row-vector p (len s) times S x S matrix a, returning
// a new row vector of length s.
func rowTimesMat(p []float64, a *mat.Dense) []float64 {
	s := len(p)
	out := make([]float64, s)
	for col := 0; col < s; col++ {
		var sum float64
		for row := 0; row < s; row++ {
			sum += p[row] * a.At(row, col)
		}
		out[col] = sum
	}
	return out
}

func fillConstantRows(buf []float64, s, firstPt, numPts int, p []float64) {
	for row := 0; row < numPts; row++ {
		copy(buf[(firstPt+row)*s:(firstPt+row)*s+s], p)
	}
}

// maxRowSumError returns max|sum_s P(t,s) - 1| over all N rows (§8
// invariant 1, reported as Simulation.MaxProbabilityError).
func maxRowSumError(buf []float64, n, s int) float64 {
	var maxErr float64
	for row := 0; row < n; row++ {
		var sum float64
		for col := 0; col < s; col++ {
			sum += buf[row*s+col]
		}
		err := math.Abs(sum - 1)
		if err > maxErr {
			maxErr = err
		}
	}
	return maxErr
}
