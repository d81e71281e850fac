// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/c2h5oh/datasize"
)

// AbortFlag is the shared, task-safe abort signal (§5): a single flag
// polled at task-safe points (between epochs, between state iterations of
// the spectral sum, between MC runs, between events in a chain, between
// chains of the chain-to-P sampler, and inside the eigen-block grouping
// loops). The chain-to-P sampler does not poll between the sample-interval
// steps of a single chain. On observing it set, a worker
// returns immediately, leaving partial output that the caller must treat
// as invalid.
type AbortFlag struct {
	flag int32
}

// Set marks the session as aborted.
func (a *AbortFlag) Set() { atomic.StoreInt32(&a.flag, 1) }

// Check reports whether abort has been requested. A nil *AbortFlag never
// reports aborted, so callers that don't need cancellation can pass nil.
func (a *AbortFlag) Check() bool {
	if a == nil {
		return false
	}
	return atomic.LoadInt32(&a.flag) != 0
}

// taskChan is a channel of closures, adapted from leabra's LayFunChan
// worker-pool idiom (networkbase.go: BuildThreads/ThrLayFun) -- there it
// ran one function per network layer on NThreads goroutines; here it runs
// one function per work item (a UniqueEpoch in P1, a (protocol,r,c,v)
// triple in P2) on a fixed-size goroutine pool, joining at a WaitGroup
// barrier between P1 and P2 and between P2 and WaveformAndSummary (§5).
type taskChan chan func()

// Session owns everything that outlives a single protocol: the shared
// UniqueEpoch pool, the worker pool used for the P1/P2 parallel stages,
// and the abort flag. It must be released (its pool dropped) at the end of
// a simulator run -- the UniqueEpoch pool's lifetime must not outlive the
// session (§9 DESIGN NOTES).
type Session struct {
	Pool      *UniqueEpochPool
	Eval      *Evaluator
	Abort     AbortFlag
	NWorkers  int

	message string
	msgMu   sync.Mutex
}

// NewSession returns a Session with a fresh UniqueEpoch pool and a worker
// count derived from GOMAXPROCS, the way networkbase.go derives NThreads
// from the number of layer thread assignments.
func NewSession() *Session {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	return &Session{
		Pool:     NewUniqueEpochPool(),
		Eval:     NewEvaluator(),
		NWorkers: n,
	}
}

// RunParallel runs one fn(item) per item on s.NWorkers goroutines and
// blocks until all have completed (a join barrier, §5). Errors from
// individual tasks are collected; the first one is recorded into the
// session message and returned.
func (s *Session) RunParallel(n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	workers := s.NWorkers
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	work := make(taskChan, n)
	var wg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error

	for w := 0; w < workers; w++ {
		go func() {
			for task := range work {
				task()
			}
		}()
	}
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		work <- func() {
			defer wg.Done()
			if s.Abort.Check() {
				return
			}
			if err := fn(i); err != nil {
				errOnce.Do(func() {
					firstErr = err
					s.Abort.Set()
				})
			}
		}
	}
	close(work)
	wg.Wait()

	if firstErr != nil {
		s.recordMessage(firstErr)
		return firstErr
	}
	return nil
}

func (s *Session) recordMessage(err error) {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()
	if s.message == "" {
		s.message = err.Error()
		log.Println(err)
	}
}

// Message returns the session-level error message recorded by the first
// task failure, if any (§7: "a single error message is presented by the
// host on finish").
func (s *Session) Message() string {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()
	return s.message
}

// Stats reports a human-readable summary of the UniqueEpoch pool's size
// and estimated memory footprint, the way networkbase.go's TimerReport
// prints per-thread diagnostics.
func (s *Session) Stats() string {
	uniques := s.Pool.All()
	var bytes uint64
	for _, u := range uniques {
		bytes += estimateUniqueEpochBytes(u)
	}
	return fmt.Sprintf("UniqueEpochs: %d\tEstimated size: %v", len(uniques), datasize.ByteSize(bytes).HumanReadable())
}

func estimateUniqueEpochBytes(u *UniqueEpoch) uint64 {
	s := len(u.StateProbabilities)
	var b uint64
	b += uint64(s) * 8                           // StateProbabilities
	b += uint64(len(u.StateAttributes) * s * 8)   // StateAttributes rows
	b += uint64(s * s * 8 * 2)                    // TransitionRates + TransitionCharges
	b += uint64(s * s * s * 8)                    // SpectralBlocks (up to s blocks, each holding one or two s x s/s x 1 matrices)
	b += uint64(s * 16)                           // RandomStateLifetimes
	b += uint64(s * 8)                            // StateChargeCurrents
	return b
}
