// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import (
	"bufio"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// ResolveReferencePath joins a ReferenceData's path against an explicit base
// directory (the owning Protocol's resolved directory, passed in by the
// caller rather than stored on ReferenceData itself -- a protocol's base
// directory is a property of where it was loaded from, not of the
// reference, so there is no back-pointer to follow).
func ResolveReferencePath(baseDir, relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(baseDir, relPath)
}

// ParseReferenceFile reads a tab/space-separated reference data file: a
// title line followed by numeric rows. Short rows are zero-filled out to
// the column count established by the title line; a non-numeric field
// within that column count is a ParseError. Fields beyond the title
// line's column count are ignored.
func ParseReferenceFile(r io.Reader) (titles []string, columns [][]float64, err error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return nil, nil, NewError(KindParse, "reference file: empty")
	}
	titles = splitFields(scanner.Text())
	columns = make([][]float64, len(titles))

	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := splitFields(line)
		for c := 0; c < len(titles); c++ {
			var v float64
			if c < len(fields) {
				v, err = strconv.ParseFloat(fields[c], 64)
				if err != nil {
					return nil, nil, NewError(KindParse, "reference file line %d col %d: %v", lineNo, c, err)
				}
			}
			columns[c] = append(columns[c], v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, NewError(KindParse, "reference file: %w", err)
	}
	return titles, columns, nil
}

func splitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == '\t' || r == ' '
	})
}

// NormalizeReference rescales a waveform in place per RefNormalization:
// ToMax divides by max(value); ToMin divides by min(value); ToAbsMinMax
// divides by max(|min|,|max|). A zero denominator leaves the data
// untouched.
func NormalizeReference(data []float64, norm RefNormalization) {
	if norm == RefNormNone || len(data) == 0 {
		return
	}
	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	var denom float64
	switch norm {
	case RefNormToMax:
		denom = hi
	case RefNormToMin:
		denom = lo
	case RefNormToAbsMinMax:
		denom = math.Max(math.Abs(lo), math.Abs(hi))
	}
	if denom == 0 {
		return
	}
	for i := range data {
		data[i] /= denom
	}
}

// ReferenceAligner is C9's resampling half (4.8): it resamples a
// reference curve (x,y) onto a simulation's own time grid.
type ReferenceAligner struct {
	Eps float64
}

// SampleArray resamples (srcX, srcY) onto dstX via linear interpolation,
// shifting srcX by x0 and scaling srcY by scale first. It is
// direction-aware: srcX may be increasing or decreasing. Destination
// points outside the source range are left at firstPt/numPts boundaries
// rather than extrapolated -- the caller trims the result to
// [firstPt, firstPt+numPts).
func (ra *ReferenceAligner) SampleArray(srcX, srcY []float64, x0, scale float64, dstX []float64) (out []float64, firstPt, numPts int) {
	n := len(srcX)
	if n == 0 || len(dstX) == 0 {
		return nil, 0, 0
	}
	shifted := make([]float64, n)
	for i, x := range srcX {
		shifted[i] = x - x0
	}
	increasing := n < 2 || shifted[1] >= shifted[0]

	out = make([]float64, len(dstX))
	eps := DefaultEps(ra.Eps)
	lo := shifted[0]
	hi := shifted[n-1]
	if !increasing {
		lo, hi = hi, lo
	}

	firstPt = -1
	for i, x := range dstX {
		if x < lo-eps || x > hi+eps {
			continue
		}
		if firstPt == -1 {
			firstPt = i
		}
		numPts = i - firstPt + 1
		out[i] = scale * interp(shifted, srcY, x, increasing)
	}
	if firstPt == -1 {
		firstPt = 0
		numPts = 0
	}
	return out, firstPt, numPts
}

func interp(x, y []float64, target float64, increasing bool) float64 {
	n := len(x)
	if n == 1 {
		return y[0]
	}
	if increasing {
		for i := 0; i < n-1; i++ {
			if target >= x[i] && target <= x[i+1] {
				return lerp(x[i], y[i], x[i+1], y[i+1], target)
			}
		}
	} else {
		for i := 0; i < n-1; i++ {
			if target <= x[i] && target >= x[i+1] {
				return lerp(x[i], y[i], x[i+1], y[i+1], target)
			}
		}
	}
	if target <= x[0] {
		return y[0]
	}
	return y[n-1]
}

func lerp(x0, y0, x1, y1, target float64) float64 {
	if x1 == x0 {
		return y0
	}
	frac := (target - x0) / (x1 - x0)
	return y0 + frac*(y1-y0)
}

// AlignSimulation resamples every active reference curve belonging to
// variable set v onto sim's time grid, recording each into
// sim.AlignedRefs[v].
func (ra *ReferenceAligner) AlignSimulation(sim *Simulation, v int, refs []*ReferenceData) error {
	for len(sim.AlignedRefs) <= v {
		sim.AlignedRefs = append(sim.AlignedRefs, nil)
	}
	aligned := make(map[string]*AlignedReference)
	sim.AlignedRefs[v] = aligned

	for _, ref := range refs {
		if !ref.Active || ref.VariableSetIndex != v {
			continue
		}
		if ref.RowIndex != sim.Row || ref.ColumnIndex != sim.Col {
			continue
		}
		pairs := ref.ColumnPairsXY()
		for _, pair := range pairs {
			xCol, yCol := ref.ColumnData[pair[0]], ref.ColumnData[pair[1]]
			y := append([]float64(nil), yCol...)
			NormalizeReference(y, ref.Norm)
			waveform, firstPt, numPts := ra.SampleArray(xCol, y, ref.X0, ref.Scale, sim.Time)
			name := ref.Name
			if len(pairs) > 1 {
				name = ref.Name + "." + ref.ColumnTitles[pair[1]]
			}
			aligned[name] = &AlignedReference{
				Name:     name,
				Waveform: waveform[firstPt : firstPt+numPts],
				FirstPt:  firstPt,
				NumPts:   numPts,
				Weight:   ref.Weight,
			}
		}
	}
	return nil
}
