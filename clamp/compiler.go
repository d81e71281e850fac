// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import "math"

// Compiler is C3, the ProtocolCompiler (4.2): it parses the protocol's
// condition matrices, expands them to an R x C grid, and instantiates a
// Simulation per cell with its time grid, weight, mask, stimuli and
// epochs.
type Compiler struct {
	Pulse *PulseSynthesiser
	Eps   float64
}

// NewCompiler returns a Compiler sharing evaluator e.
func NewCompiler(e *Evaluator) *Compiler {
	return &Compiler{Pulse: NewPulseSynthesiser(e)}
}

// Compile builds p.Grid in place, interning epochs into pool.
func (c *Compiler) Compile(p *Protocol, pool *UniqueEpochPool) error {
	maxR, maxC := gridExtent(p)

	start := PadMatrix(p.Start, maxR, maxC, 0)
	duration := PadMatrix(p.Duration, maxR, maxC, 0)
	sampleInterval := PadMatrix(p.SampleInterval, maxR, maxC, 0)
	weight := PadMatrix(p.Weight, maxR, maxC, 1)

	p.Grid = make([][]*Simulation, maxR)
	for r := 0; r < maxR; r++ {
		p.Grid[r] = make([]*Simulation, maxC)
		for col := 0; col < maxC; col++ {
			sim, err := c.compileCell(p, r, col, start[r][col], duration[r][col], sampleInterval[r][col], weight[r][col], pool)
			if err != nil {
				return err
			}
			p.Grid[r][col] = sim
		}
	}
	return nil
}

func (c *Compiler) compileCell(p *Protocol, r, col int, start, duration, sampleInterval, weight float64, pool *UniqueEpochPool) (*Simulation, error) {
	n := 1
	if sampleInterval > 0 {
		n = 1 + int(math.Floor(duration/sampleInterval))
	}
	time := make([]float64, n)
	for i := 0; i < n; i++ {
		time[i] = start + float64(i)*sampleInterval
	}
	endTime := start + duration

	sim := &Simulation{
		Row: r, Col: col,
		Time:    time,
		EndTime: endTime,
		Weight:  make([]float64, n),
		Mask:    make([]bool, n),
		Stimuli: make(map[string][]float64),
	}
	for i := range sim.Weight {
		sim.Weight[i] = weight
	}
	maskSum := make([]float64, n)

	maxR, maxC := gridExtent(p)
	for _, st := range p.Stimuli {
		wv, err := c.stimulusWaveform(st, time, r, col, maxR, maxC)
		if err != nil {
			return nil, err
		}
		switch st.Name {
		case "weight":
			for i := range sim.Weight {
				sim.Weight[i] += wv[i]
			}
		case "mask":
			for i := range maskSum {
				maskSum[i] += wv[i]
			}
		default:
			acc, ok := sim.Stimuli[st.Name]
			if !ok {
				acc = make([]float64, n)
				sim.Stimuli[st.Name] = acc
			}
			for i := range acc {
				acc[i] += wv[i]
			}
		}
	}
	for i := range sim.Mask {
		sim.Mask[i] = maskSum[i] == 0
	}

	builder := &EpochBuilder{Pool: pool}
	sim.Epochs = builder.Build(sim)
	return sim, nil
}

func (c *Compiler) stimulusWaveform(st *Stimulus, time []float64, r, col, maxR, maxC int) ([]float64, error) {
	start := padCell(st.Start, r, col, maxR, maxC, 0)
	duration := padCell(st.Duration, r, col, maxR, maxC, 0)
	amplitude := padCell(st.Amplitude, r, col, maxR, maxC, 0)
	period := padCell(st.Period, r, col, maxR, maxC, 0)
	repeats := padCell(st.Repeats, r, col, maxR, maxC, 1)
	onset := padStrCell(st.OnsetExprStr, r, col, maxR, maxC, "")
	offset := padStrCell(st.OffsetExprStr, r, col, maxR, maxC, "")

	c.Pulse.Eps = c.Eps
	return c.Pulse.Waveform(time, start, duration, amplitude, period, repeats, onset, offset)
}

func padCell(m [][]float64, r, col, maxR, maxC int, fill float64) float64 {
	if r < len(m) && col < len(m[r]) {
		return m[r][col]
	}
	return fill
}

func padStrCell(m [][]string, r, col, maxR, maxC int, fill string) string {
	if r < len(m) && col < len(m[r]) {
		return m[r][col]
	}
	return fill
}

// gridExtent computes the maximum (R,C) across the protocol's own
// condition matrices and every child Stimulus's condition matrices (4.2).
func gridExtent(p *Protocol) (int, int) {
	maxR, maxC := 0, 0
	grow := func(m [][]float64) {
		if len(m) > maxR {
			maxR = len(m)
		}
		for _, row := range m {
			if len(row) > maxC {
				maxC = len(row)
			}
		}
	}
	growStr := func(m [][]string) {
		if len(m) > maxR {
			maxR = len(m)
		}
		for _, row := range m {
			if len(row) > maxC {
				maxC = len(row)
			}
		}
	}
	grow(p.Start)
	grow(p.Duration)
	grow(p.SampleInterval)
	grow(p.Weight)
	for _, st := range p.Stimuli {
		grow(st.Start)
		grow(st.Duration)
		grow(st.Amplitude)
		grow(st.Period)
		grow(st.Repeats)
		growStr(st.OnsetExprStr)
		growStr(st.OffsetExprStr)
	}
	if maxR == 0 {
		maxR = 1
	}
	if maxC == 0 {
		maxC = 1
	}
	return maxR, maxC
}
