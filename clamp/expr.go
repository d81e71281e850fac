// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import (
	"math"
	"sync"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// Evaluator is C1, the expression evaluator: it compiles and runs scalar
// arithmetic with named variables bound to dense buffers. Programs are
// cached by source text since the same onset/offset/waveform/summary
// expression is evaluated many times (once per condition, once per
// variable set).
type Evaluator struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

// NewEvaluator returns a ready-to-use Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

func (e *Evaluator) compile(code string, env any) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.cache[code]; ok {
		return p, nil
	}
	p, err := expr.Compile(code, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, NewError(KindInternal, "compile %q: %w", code, err)
	}
	e.cache[code] = p
	return p, nil
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// EvalVector evaluates code once per sample index in [0,n), binding
// "t" to t[i], each entry of vectors to its i-th element, and each entry
// of scalars verbatim, and collects the per-sample numeric results into a
// vector of length n. This is the elementwise evaluation mode used by
// PulseSynthesiser's onset/offset expressions and by Waveform expressions
// (4.1, 4.7 step 4). Evaluation errors at a given sample contribute 0 when
// strict is false (the per-pulse swallow-errors design, §7); when strict is
// true the first error aborts and is returned.
func (e *Evaluator) EvalVector(code string, t []float64, vectors map[string][]float64, scalars map[string]float64, strict bool) ([]float64, error) {
	n := len(t)
	env := map[string]any{"t": 0.0}
	for name, v := range vectors {
		if len(v) != n {
			return nil, NewError(KindShape, "vector binding %q length %d != %d", name, len(v), n)
		}
		env[name] = 0.0
	}
	for name, v := range scalars {
		env[name] = v
	}
	applyMathEnv(env)
	prog, err := e.compile(code, env)
	if err != nil {
		if strict {
			return nil, err
		}
		return make([]float64, n), nil
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		env["t"] = t[i]
		for name, v := range vectors {
			env[name] = v[i]
		}
		res, err := expr.Run(prog, env)
		if err != nil {
			if strict {
				return nil, NewError(KindInternal, "eval %q at sample %d: %w", code, i, err)
			}
			out[i] = 0
			continue
		}
		f, ok := toFloat64(res)
		if !ok {
			if strict {
				return nil, NewError(KindShape, "eval %q at sample %d: non-numeric result", code, i)
			}
			out[i] = 0
			continue
		}
		out[i] = f
	}
	return out, nil
}

// EvalScalar evaluates code once with the whole sub-range vectors bound
// verbatim (so aggregate builtins like sum/mean/first/last can reduce
// them), and requires the result to be a single scalar -- else ShapeError.
// This is the aggregate evaluation mode used by SimulationsSummary's exprX
// / exprY (4.7 step 5).
func (e *Evaluator) EvalScalar(code string, vectors map[string][]float64, scalars map[string]float64) (float64, error) {
	env := map[string]any{}
	for name, v := range vectors {
		env[name] = v
	}
	for name, v := range scalars {
		env[name] = v
	}
	applyMathEnv(env)
	applyAggregateEnv(env)
	prog, err := e.compile(code, env)
	if err != nil {
		return 0, err
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		return 0, NewError(KindInternal, "eval %q: %w", code, err)
	}
	if f, ok := toFloat64(res); ok {
		return f, nil
	}
	if vs, ok := res.([]float64); ok {
		if len(vs) == 1 {
			return vs[0], nil
		}
		return 0, NewError(KindShape, "eval %q: result has %d elements, want 1", code, len(vs))
	}
	return 0, NewError(KindShape, "eval %q: non-scalar, non-numeric result", code)
}

// applyMathEnv registers the small set of scalar math functions an
// expression may call (mirrors what the PulseSynthesiser onset/offset
// expressions and Waveform expressions commonly need).
func applyMathEnv(env map[string]any) {
	env["sin"] = math.Sin
	env["cos"] = math.Cos
	env["exp"] = math.Exp
	env["log"] = math.Log
	env["sqrt"] = math.Sqrt
	env["abs"] = math.Abs
	env["pow"] = math.Pow
}

// applyAggregateEnv registers the reduction builtins legal in
// SimulationsSummary expressions, over a []float64 argument.
func applyAggregateEnv(env map[string]any) {
	env["sum"] = func(v []float64) float64 {
		var s float64
		for _, x := range v {
			s += x
		}
		return s
	}
	env["mean"] = func(v []float64) float64 {
		if len(v) == 0 {
			return 0
		}
		var s float64
		for _, x := range v {
			s += x
		}
		return s / float64(len(v))
	}
	env["max"] = func(v []float64) float64 {
		m := math.Inf(-1)
		for _, x := range v {
			if x > m {
				m = x
			}
		}
		return m
	}
	env["min"] = func(v []float64) float64 {
		m := math.Inf(1)
		for _, x := range v {
			if x < m {
				m = x
			}
		}
		return m
	}
	env["first"] = func(v []float64) float64 {
		if len(v) == 0 {
			return 0
		}
		return v[0]
	}
	env["last"] = func(v []float64) float64 {
		if len(v) == 0 {
			return 0
		}
		return v[len(v)-1]
	}
}
