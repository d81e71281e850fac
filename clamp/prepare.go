// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Method selects the propagation method for a given variable set (§6
// Options: "Method").
type Method int

const (
	MethodEigenSolver Method = iota
	MethodMonteCarlo
)

const chargeToPicoamp = 6.242e-6 // elementary charges per second -> pA

// Preparer is C5, the EpochPreparer (4.4): for each unique epoch it asks
// the model provider to evaluate variables under the epoch's stimulus
// scalars for variable set v, then computes the spectral decomposition or
// per-state exponential lifetimes depending on Method.
type Preparer struct {
	Model  ModelProvider
	Method Method
	Eps    float64
}

// Prepare fills in u's model-derived fields for variable set v. It is
// called once per (UniqueEpoch, variable set) pair; §5 requires these
// calls, across UniqueEpochs, to run as independent parallel tasks that
// write only their own epoch's fields.
func (pr *Preparer) Prepare(u *UniqueEpoch, v int, abort *AbortFlag) error {
	if err := pr.Model.EvalVariables(u.Stimuli, v); err != nil {
		return NewError(KindModel, "EvalVariables: %w", err)
	}
	if abort.Check() {
		return ErrAborted
	}
	u.StateProbabilities = pr.Model.StateProbabilities()
	u.StateAttributes = pr.Model.StateAttributes()
	u.TransitionRates = pr.Model.TransitionRates()
	u.TransitionCharges = pr.Model.TransitionCharges()

	if err := pr.computeChargeCurrents(u); err != nil {
		return err
	}

	switch pr.Method {
	case MethodEigenSolver:
		return pr.spectralExpansion(u, abort)
	case MethodMonteCarlo:
		pr.exponentialLifetimes(u)
		return nil
	}
	return nil
}

func (pr *Preparer) computeChargeCurrents(u *UniqueEpoch) error {
	q := u.TransitionRates
	if q == nil {
		return NewError(KindModel, "nil transition rates")
	}
	s, _ := q.Dims()
	out := make([]float64, s)
	if u.TransitionCharges != nil && !isZeroMatrix(u.TransitionCharges) {
		ch := u.TransitionCharges
		for i := 0; i < s; i++ {
			var sum float64
			for j := 0; j < s; j++ {
				sum += q.At(i, j) * ch.At(i, j)
			}
			out[i] = sum * chargeToPicoamp
		}
	}
	u.StateChargeCurrents = out
	return nil
}

func isZeroMatrix(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// spectralExpansion computes Q's eigendecomposition and builds a real
// block-diagonal (pseudo-eigen) representation (4.4, glossary): each real
// eigenvalue becomes a rank-1 SpectralBlock, and each complex-conjugate
// eigenvalue pair is grouped into a single real 2x2-rotation-block
// SpectralBlock, the way Eigen::EigenSolver's pseudoEigenvalueMatrix /
// pseudoEigenvectors keep a complex spectrum real and exact
// (_examples/original_source/StimulusClampProtocol.cpp) rather than
// discarding imaginary parts outright -- Q has no guarantee of a real
// spectrum (e.g. a cyclic 3+-state scheme), and truncating a complex
// eigenvector's imaginary part before inverting silently corrupts every
// SpectralBlock built from it.
func (pr *Preparer) spectralExpansion(u *UniqueEpoch, abort *AbortFlag) error {
	q := u.TransitionRates
	s, _ := q.Dims()
	if s < 2 {
		return NewError(KindNumerical, "spectral expansion requires at least 2 states, got %d", s)
	}
	eps := DefaultEps(pr.Eps)

	var eig mat.Eigen
	ok := eig.Factorize(q, mat.EigenRight)
	if !ok {
		return NewError(KindNumerical, "eigen decomposition did not converge")
	}
	if abort.Check() {
		return ErrAborted
	}

	vals := eig.Values(nil)
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	// v holds the real pseudo-eigenvector basis: a real eigenvalue keeps its
	// (real) eigenvector in its own column; a conjugate pair's two columns
	// are replaced by (Re, Im) of the eigenvector belonging to the
	// positive-imaginary-part member of the pair.
	v := mat.NewDense(s, s, nil)
	visited := make([]bool, s)
	var blocks []pendingBlock

	for i := 0; i < s; i++ {
		if visited[i] {
			continue
		}
		if abort.Check() {
			return ErrAborted
		}
		if math.Abs(imag(vals[i])) <= eps {
			for row := 0; row < s; row++ {
				v.Set(row, i, real(vecs.At(row, i)))
			}
			visited[i] = true
			blocks = append(blocks, pendingBlock{real: true, i: i, lam: real(vals[i])})
			continue
		}
		j := -1
		for k := i + 1; k < s; k++ {
			if visited[k] {
				continue
			}
			if math.Abs(real(vals[k])-real(vals[i])) <= eps && math.Abs(imag(vals[k])+imag(vals[i])) <= eps {
				j = k
				break
			}
		}
		if j < 0 {
			return NewError(KindNumerical, "unmatched complex eigenvalue %v (no conjugate partner found)", vals[i])
		}
		p, qc := i, j
		if imag(vals[i]) < 0 {
			p, qc = j, i
		}
		for row := 0; row < s; row++ {
			v.Set(row, p, real(vecs.At(row, p)))
			v.Set(row, qc, imag(vecs.At(row, p)))
		}
		visited[i] = true
		visited[j] = true
		blocks = append(blocks, pendingBlock{p: p, q: qc, alpha: real(vals[p]), beta: imag(vals[p])})
	}

	var vinv mat.Dense
	if err := vinv.Inverse(v); err != nil {
		return NewError(KindNumerical, "pseudo-eigenvector matrix not invertible: %w", err)
	}

	// Sort blocks by representative |eigenvalue| ascending so the
	// stationary (near-zero) block -- always real, since Q*1=0 has a real
	// eigenvector -- lands first, matching the prior convention.
	sort.Slice(blocks, func(a, b int) bool {
		return blockMagnitude(blocks[a]) < blockMagnitude(blocks[b])
	})

	spectralBlocks := make([]SpectralBlock, len(blocks))
	for bi, b := range blocks {
		if abort.Check() {
			return ErrAborted
		}
		if b.real {
			vi := mat.NewDense(s, 1, nil)
			for row := 0; row < s; row++ {
				vi.Set(row, 0, v.At(row, b.i))
			}
			ui := mat.NewDense(1, s, nil)
			for col := 0; col < s; col++ {
				ui.Set(0, col, vinv.At(b.i, col))
			}
			a := mat.NewDense(s, s, nil)
			a.Mul(vi, ui)
			spectralBlocks[bi] = SpectralBlock{Real: true, Lambda: b.lam, Matrix: a}
			continue
		}
		vr := mat.NewDense(s, 1, nil)
		vi := mat.NewDense(s, 1, nil)
		up := mat.NewDense(1, s, nil)
		uq := mat.NewDense(1, s, nil)
		for row := 0; row < s; row++ {
			vr.Set(row, 0, v.At(row, b.p))
			vi.Set(row, 0, v.At(row, b.q))
		}
		for col := 0; col < s; col++ {
			up.Set(0, col, vinv.At(b.p, col))
			uq.Set(0, col, vinv.At(b.q, col))
		}
		var vrUp, viUq, vrUq, viUp mat.Dense
		vrUp.Mul(vr, up)
		viUq.Mul(vi, uq)
		vrUq.Mul(vr, uq)
		viUp.Mul(vi, up)

		cosMat := mat.NewDense(s, s, nil)
		cosMat.Add(&vrUp, &viUq)
		sinMat := mat.NewDense(s, s, nil)
		sinMat.Sub(&vrUq, &viUp)

		spectralBlocks[bi] = SpectralBlock{Real: false, Alpha: b.alpha, Beta: b.beta, Cos: cosMat, Sin: sinMat}
	}
	u.SpectralBlocks = spectralBlocks
	return nil
}

// pendingBlock is the working record for one eigenvalue (real) or
// conjugate pair (complex) while spectralExpansion groups mat.Eigen's raw
// output into real pseudo-eigen blocks.
type pendingBlock struct {
	real  bool
	i     int // real: the single column index
	p, q  int // complex: p holds vr (Re), q holds vi (Im)
	alpha float64
	beta  float64
	lam   float64
}

func blockMagnitude(b pendingBlock) float64 {
	if b.real {
		return absf(b.lam)
	}
	return math.Hypot(b.alpha, b.beta)
}

// exponentialLifetimes sets randomStateLifetimes[s] = Exponential(rate =
// -Q_ss); states with -Q_ss <= eps are absorbing (4.4).
func (pr *Preparer) exponentialLifetimes(u *UniqueEpoch) {
	q := u.TransitionRates
	s, _ := q.Dims()
	eps := DefaultEps(pr.Eps)
	lifetimes := make([]ExponentialDist, s)
	for i := 0; i < s; i++ {
		rate := -q.At(i, i)
		if rate <= eps {
			lifetimes[i] = ExponentialDist{Rate: 0, Absorbing: true}
		} else {
			lifetimes[i] = ExponentialDist{Rate: rate}
		}
	}
	u.RandomStateLifetimes = lifetimes
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
