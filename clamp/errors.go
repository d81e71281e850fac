// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import (
	"errors"
	"fmt"
)

// Kind classifies the errors the core can raise, per the error handling
// design: ParseError, ShapeError, NumericalFailure, ModelError, Aborted,
// InternalError.
type Kind int

const (
	// KindParse is an unparseable condition-matrix cell or reference field.
	KindParse Kind = iota
	// KindShape is a waveform/summary expression yielding the wrong shape.
	KindShape
	// KindNumerical is a spectral expansion failure (S<2, no convergence).
	KindNumerical
	// KindModel is an error propagated from the model provider.
	KindModel
	// KindAborted means the abort flag was observed; outputs are partial.
	KindAborted
	// KindInternal is an unrecognised error from a nested evaluator.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseError"
	case KindShape:
		return "ShapeError"
	case KindNumerical:
		return "NumericalFailure"
	case KindModel:
		return "ModelError"
	case KindAborted:
		return "Aborted"
	case KindInternal:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// Error is a session-level error tagged with one of the Kind values above.
// It wraps an underlying cause so callers can still errors.Is/errors.As
// through to it.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a *Error of the given kind wrapping cause.
func NewError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Cause: fmt.Errorf(format, args...)}
}

// Is reports whether err is (or wraps) an *Error of kind k.
func Is(err error, k Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == k
	}
	return false
}

// ErrAborted is returned (wrapped) by any task-safe point that observes the
// session abort flag set mid-computation.
var ErrAborted = &Error{Kind: KindAborted, Cause: errors.New("aborted")}
