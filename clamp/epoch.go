// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import "sync"

// UniqueEpochPool interns UniqueEpochs by stimuli-map equality (§3). It is
// owned by the simulator Session, lives across all protocols compiled into
// that session, and is written only during EpochBuilder (serial, at
// compile time); after compile it is read-only except for EpochPreparer's
// disjoint per-epoch field writes (§5).
type UniqueEpochPool struct {
	mu      sync.Mutex
	uniques []*UniqueEpoch
}

// NewUniqueEpochPool returns an empty pool.
func NewUniqueEpochPool() *UniqueEpochPool {
	return &UniqueEpochPool{}
}

// Intern returns the existing UniqueEpoch whose Stimuli map equals stimuli,
// or allocates and appends a new one (copying stimuli) if none matches.
func (pool *UniqueEpochPool) Intern(stimuli map[string]float64) *UniqueEpoch {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	for _, u := range pool.uniques {
		if stimuliEqual(u.Stimuli, stimuli) {
			return u
		}
	}
	cp := make(map[string]float64, len(stimuli))
	for k, v := range stimuli {
		cp[k] = v
	}
	u := &UniqueEpoch{Stimuli: cp}
	pool.uniques = append(pool.uniques, u)
	return u
}

// All returns every interned UniqueEpoch (for EpochPreparer's fan-out).
func (pool *UniqueEpochPool) All() []*UniqueEpoch {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	out := make([]*UniqueEpoch, len(pool.uniques))
	copy(out, pool.uniques)
	return out
}

func stimuliEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || bv != v {
			return false
		}
	}
	return true
}

// EpochBuilder is C4 (4.3): it scans per-sample stimuli to build the epoch
// list for one Simulation, interning distinct epochs by stimulus tuple
// into the session's shared pool.
type EpochBuilder struct {
	Pool *UniqueEpochPool
}

// Build scans sim's stimuli sample-by-sample and returns the epoch list,
// interning each epoch's stimulus tuple into b.Pool. If b.Pool is nil, a
// private pool is used (handy for isolated tests); a real Session always
// supplies its own shared pool.
func (b *EpochBuilder) Build(sim *Simulation) []*Epoch {
	pool := b.Pool
	if pool == nil {
		pool = NewUniqueEpochPool()
	}
	n := len(sim.Time)
	if n == 0 {
		return nil
	}
	names := make([]string, 0, len(sim.Stimuli))
	for name := range sim.Stimuli {
		names = append(names, name)
	}

	snapshot := func(i int) map[string]float64 {
		m := make(map[string]float64, len(names))
		for _, name := range names {
			m[name] = sim.Stimuli[name][i]
		}
		return m
	}

	var epochs []*Epoch
	cur := &Epoch{Start: sim.Time[0], FirstPt: 0, Stimuli: snapshot(0)}
	for i := 1; i < n; i++ {
		changed := false
		for _, name := range names {
			if sim.Stimuli[name][i] != sim.Stimuli[name][i-1] {
				changed = true
				break
			}
		}
		if changed {
			cur.Duration = sim.Time[i] - cur.Start
			cur.NumPts = i - cur.FirstPt
			cur.Unique = pool.Intern(cur.Stimuli)
			epochs = append(epochs, cur)
			cur = &Epoch{Start: sim.Time[i], FirstPt: i, Stimuli: snapshot(i)}
		}
	}
	cur.Duration = sim.EndTime - cur.Start
	cur.NumPts = n - cur.FirstPt
	cur.Unique = pool.Intern(cur.Stimuli)
	epochs = append(epochs, cur)
	return epochs
}
