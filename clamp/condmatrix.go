// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import (
	"strconv"
	"strings"
)

// ParseNumericMatrix parses a condition-matrix string into an R x C matrix
// of float64. Columns are separated by whitespace or commas, rows by
// semicolons or newlines. A numeric cell may be a range: "a:b" (inclusive,
// step 1 or -1), "a:step:b", or "a:count:b" -- the middle token of a
// 3-token range is read as a count when it has no decimal point and is a
// non-negative integer, otherwise as a step (see DESIGN.md, "condition
// matrix range disambiguation").  A range cell expands to multiple matrix
// columns in place.
func ParseNumericMatrix(s string) ([][]float64, error) {
	rows := splitRows(s)
	out := make([][]float64, 0, len(rows))
	for _, row := range rows {
		cells := splitCells(row)
		var vals []float64
		for _, c := range cells {
			if c == "" {
				continue
			}
			expanded, err := expandNumericCell(c)
			if err != nil {
				return nil, NewError(KindParse, "condition matrix cell %q: %w", c, err)
			}
			vals = append(vals, expanded...)
		}
		out = append(out, vals)
	}
	return out, nil
}

// ParseStringMatrix parses a condition-matrix string of expressions: only
// cell-splitting is performed, no range expansion. Cells are trimmed.
func ParseStringMatrix(s string) [][]string {
	rows := splitRows(s)
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := splitCells(row)
		trimmed := make([]string, 0, len(cells))
		for _, c := range cells {
			trimmed = append(trimmed, strings.TrimSpace(c))
		}
		out = append(out, trimmed)
	}
	return out
}

func splitRows(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == '\n'
	})
	if len(fields) == 0 {
		return []string{""}
	}
	return fields
}

func splitCells(row string) []string {
	fields := strings.FieldsFunc(row, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	return fields
}

// expandNumericCell expands one condition-matrix cell into one or more
// literal values, handling the a:b / a:step:b / a:count:b range forms.
func expandNumericCell(cell string) ([]float64, error) {
	parts := strings.Split(cell, ":")
	switch len(parts) {
	case 1:
		v, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, err
		}
		return []float64{v}, nil
	case 2:
		a, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, err
		}
		b, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, err
		}
		step := 1.0
		if b < a {
			step = -1.0
		}
		return rangeValues(a, b, step), nil
	case 3:
		a, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, err
		}
		mid, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, err
		}
		b, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, err
		}
		if !strings.Contains(parts[1], ".") && mid >= 0 && mid == float64(int64(mid)) {
			// count form: a:count:b
			n := int(mid)
			return linspaceCount(a, b, n), nil
		}
		// step form: a:step:b
		return rangeValues(a, b, mid), nil
	default:
		return nil, NewError(KindParse, "malformed range %q", cell)
	}
}

func rangeValues(a, b, step float64) []float64 {
	if step == 0 {
		return []float64{a}
	}
	var out []float64
	if step > 0 {
		for v := a; v <= b+1e-9; v += step {
			out = append(out, v)
		}
	} else {
		for v := a; v >= b-1e-9; v += step {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		out = []float64{a}
	}
	return out
}

func linspaceCount(a, b float64, n int) []float64 {
	if n <= 1 {
		return []float64{a}
	}
	out := make([]float64, n)
	step := (b - a) / float64(n-1)
	for i := 0; i < n; i++ {
		out[i] = a + step*float64(i)
	}
	return out
}

// PadMatrix pads m (in place semantics via return) to maxR rows and maxC
// columns using fill as the value for any cell beyond m's extent.
func PadMatrix(m [][]float64, maxR, maxC int, fill float64) [][]float64 {
	out := make([][]float64, maxR)
	for r := 0; r < maxR; r++ {
		out[r] = make([]float64, maxC)
		for c := 0; c < maxC; c++ {
			if r < len(m) && c < len(m[r]) {
				out[r][c] = m[r][c]
			} else {
				out[r][c] = fill
			}
		}
	}
	return out
}

// PadStringMatrix pads m to maxR rows and maxC columns using fill for any
// cell beyond m's extent.
func PadStringMatrix(m [][]string, maxR, maxC int, fill string) [][]string {
	out := make([][]string, maxR)
	for r := 0; r < maxR; r++ {
		out[r] = make([]string, maxC)
		for c := 0; c < maxC; c++ {
			if r < len(m) && c < len(m[r]) {
				out[r][c] = m[r][c]
			} else {
				out[r][c] = fill
			}
		}
	}
	return out
}
