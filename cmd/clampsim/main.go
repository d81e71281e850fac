// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command clampsim runs a single stimulus-clamp protocol against a
// built-in kinetic scheme and reports the resulting state occupancy (or
// dwell-event chains, in Monte Carlo mode).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/emer/stimclamp/clamp"
	"github.com/emer/stimclamp/kinetics"
	"golang.org/x/exp/rand"
)

func main() {
	var scheme string
	var method string
	var start, duration, sampleInterval float64
	var pulseStart, pulseDuration, pulseAmplitude float64
	var startEquilibrated bool
	var numRuns int
	var dwtPath string
	var nogui bool

	flag.StringVar(&scheme, "scheme", "two_state", "kinetic scheme: two_state, absorbing, three_state_cyclic")
	flag.StringVar(&method, "method", "eigen", "propagation method: eigen or montecarlo")
	flag.Float64Var(&start, "start", 0, "protocol start time (s)")
	flag.Float64Var(&duration, "duration", 1, "protocol duration (s)")
	flag.Float64Var(&sampleInterval, "sample", 0.01, "sample interval (s)")
	flag.Float64Var(&pulseStart, "pulse-start", 0.2, "ligand pulse onset (s)")
	flag.Float64Var(&pulseDuration, "pulse-duration", 0.5, "ligand pulse duration (s)")
	flag.Float64Var(&pulseAmplitude, "pulse-amplitude", 1, "ligand pulse amplitude")
	flag.BoolVar(&startEquilibrated, "equilibrated", false, "start from the stationary distribution of the first epoch")
	flag.IntVar(&numRuns, "runs", 1000, "number of Monte Carlo runs (method=montecarlo only)")
	flag.StringVar(&dwtPath, "dwt", "", "if set, write Monte Carlo dwell-event chains to this .dwt path")
	flag.BoolVar(&nogui, "nogui", true, "headless mode is the only mode this command supports")
	flag.Parse()

	if err := run(scheme, method, start, duration, sampleInterval, pulseStart, pulseDuration, pulseAmplitude, startEquilibrated, numRuns, dwtPath); err != nil {
		log.Fatal(err)
	}
}

func buildScheme(name string) (*kinetics.Scheme, error) {
	switch name {
	case "two_state":
		return kinetics.TwoState(), nil
	case "absorbing":
		return kinetics.Absorbing(), nil
	case "three_state_cyclic":
		return kinetics.ThreeStateCyclic(), nil
	default:
		return nil, fmt.Errorf("unknown scheme %q", name)
	}
}

func buildProtocol(start, duration, sampleInterval, pulseStart, pulseDuration, pulseAmplitude float64, startEquilibrated bool) *clamp.Protocol {
	return &clamp.Protocol{
		Name:              "clampsim",
		Start:             [][]float64{{start}},
		Duration:          [][]float64{{duration}},
		SampleInterval:    [][]float64{{sampleInterval}},
		StartEquilibrated: startEquilibrated,
		NumVariableSets:   1,
		Stimuli: []*clamp.Stimulus{
			{
				Name:      "ligand",
				Start:     [][]float64{{pulseStart}},
				Duration:  [][]float64{{pulseDuration}},
				Amplitude: [][]float64{{pulseAmplitude}},
				Period:    [][]float64{{0}},
				Repeats:   [][]float64{{1}},
			},
		},
	}
}

func run(schemeName, methodName string, start, duration, sampleInterval, pulseStart, pulseDuration, pulseAmplitude float64, startEquilibrated bool, numRuns int, dwtPath string) error {
	scheme, err := buildScheme(schemeName)
	if err != nil {
		return err
	}
	model := kinetics.NewModel(scheme, kinetics.DefaultParams())

	method := clamp.MethodEigenSolver
	if methodName == "montecarlo" {
		method = clamp.MethodMonteCarlo
	}

	sess := clamp.NewSession()
	protocol := buildProtocol(start, duration, sampleInterval, pulseStart, pulseDuration, pulseAmplitude, startEquilibrated)

	compiler := clamp.NewCompiler(sess.Eval)
	compiler.Pulse.Strict = true
	if err := compiler.Compile(protocol, sess.Pool); err != nil {
		return err
	}

	preparer := &clamp.Preparer{Model: model, Method: method}
	uniques := sess.Pool.All()
	if err := sess.RunParallel(len(uniques), func(i int) error {
		return preparer.Prepare(uniques[i], 0, &sess.Abort)
	}); err != nil {
		return err
	}

	stateNames := model.Init()
	sim := protocol.Grid[0][0]

	switch method {
	case clamp.MethodEigenSolver:
		prop := &clamp.SpectralPropagator{}
		startP := sim.Epochs[0].Unique.StateProbabilities
		if err := prop.Propagate(sim, 0, startP, startEquilibrated, &sess.Abort); err != nil {
			return err
		}
		fmt.Printf("max |rowsum-1| error: %g\n", sim.MaxProbabilityError)
		printOccupancySummary(sim, 0, stateNames)
	case clamp.MethodMonteCarlo:
		mc := &clamp.MonteCarlo{}
		rng := rand.New(rand.NewSource(1))
		if err := mc.Run(sim, 0, numRuns, false, startEquilibrated, rng, &sess.Abort); err != nil {
			return err
		}
		sim.NumStates = len(stateNames)
		sim.Probability = [][]float64{clamp.ProbabilityFromEventChains(sim, sim.EventRuns[0], sim.NumStates, &sess.Abort)}
		printOccupancySummary(sim, 0, stateNames)
		if dwtPath != "" {
			if err := writeDWT(dwtPath, sim.EventRuns[0]); err != nil {
				return err
			}
		}
	}

	fmt.Println(sess.Stats())
	return nil
}

func printOccupancySummary(sim *clamp.Simulation, v int, stateNames []string) {
	n := len(sim.Time)
	last := n - 1
	fmt.Printf("final occupancy at t=%g:\n", sim.Time[last])
	for s, name := range stateNames {
		fmt.Printf("  %s: %.4f\n", name, sim.ProbabilityAt(v, last, s))
	}
}

func writeDWT(path string, chains []clamp.MonteCarloEventChain) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return clamp.WriteDWT(f, chains)
}
