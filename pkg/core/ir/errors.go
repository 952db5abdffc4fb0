// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ErrMalformedGraph is wrapped by every error caused by an invalid input graph: an operation referencing a role
// with an incompatible type or dimensionality, or a non-constant tensor where a constant is required.
//
// These errors are raised (panic) where they are detected, and are converted back to a returned error by
// the compiler entry points.
var ErrMalformedGraph = errors.New("malformed graph")

// ThrowMalformed panics with an error wrapping ErrMalformedGraph.
func ThrowMalformed(format string, args ...any) {
	panic(errors.Wrapf(ErrMalformedGraph, format, args...))
}

// IsMalformed returns whether err was caused by a malformed input graph.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedGraph)
}

// AssertInvariant panics if cond is false.
//
// It is only used for "bugs in the code": the violation of an internal invariant, never for bad user input.
func AssertInvariant(cond bool, format string, args ...any) {
	if !cond {
		exceptions.Panicf("internal invariant violated: "+format, args...)
	}
}
