// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rewrite

import (
	"github.com/gomlx/npucompiler/pkg/core/ir"
)

// ConvertInt48Tensors widens 48-bit feature maps to 64 bits, the width the hardware stores accumulators in.
// Constants are left untouched.
func ConvertInt48Tensors(_ *Rewriter, t *ir.Tensor) *ir.Tensor {
	if t.IsConstant() {
		return t
	}
	switch t.Type() {
	case ir.Int48:
		t.ChangeType(ir.Int64)
	case ir.UInt48:
		t.ChangeType(ir.UInt64)
	}
	return t
}

// ConvertBool8Tensors converts boolean tensors to the internal representation, where true is -1 (all bits set).
//
// Constant tensors are rewritten in place. Graph inputs and outputs keep the external representation (0 or 1):
// a NotEqual(input, 0) operation is inserted after each graph input, and an And(x, 1) operation before each graph
// output, with the rest of the graph using an internal "_int8" clone of the tensor.
// It returns the tensor holding the internal representation.
func ConvertBool8Tensors(_ *Rewriter, t *ir.Tensor) *ir.Tensor {
	if t.Type() != ir.Bool8 {
		return t
	}
	g := t.Graph()
	switch {
	case t.IsConstant():
		values := t.Buffer().Int64Values(ir.Bool8)
		changed := false
		for i, v := range values {
			if v != 0 && v != -1 {
				values[i] = -1
				changed = true
			}
		}
		if changed {
			t.SetBuffer(ir.MakeBuffer(ir.Bool8, values...))
		}
		return t

	case g.IsInput(t):
		readers := t.Readers()
		if len(readers) == 0 || (len(readers) == 1 && isPolarityConversion(readers[0], t)) {
			return t
		}
		internal := t.Clone()
		internal.SetName(t.Name() + "_int8")
		for _, reader := range readers {
			replaceReads(reader, t, internal)
		}
		cvt := g.NewOperation(ir.OpTypeNotEqual)
		cvt.ConnectInput(ir.UsageIFM0, t)
		cvt.ConnectInput(ir.UsageIFM1, g.ConstScalar("const_zero", ir.Int8, 0))
		cvt.ConnectOutput(ir.UsageOFM, internal)
		g.RecordOptimisation(RuleConvertBool8Tensors, nil, cvt)
		return internal

	case g.IsOutput(t):
		writers := t.Writers()
		if len(writers) == 0 || (len(writers) == 1 && isPolarityConversion(writers[0], nil)) {
			return t
		}
		internal := t.Clone()
		internal.SetName(t.Name() + "_int8")
		for _, writer := range writers {
			replaceWrites(writer, t, internal)
		}
		for _, reader := range t.Readers() {
			replaceReads(reader, t, internal)
		}
		cvt := g.NewOperation(ir.OpTypeAnd)
		cvt.ConnectInput(ir.UsageIFM0, internal)
		cvt.ConnectInput(ir.UsageIFM1, g.ConstScalar("const_one", ir.Int8, 1))
		cvt.ConnectOutput(ir.UsageOFM, t)
		g.RecordOptimisation(RuleConvertBool8Tensors, nil, cvt)
		return internal
	}
	return t
}

// isPolarityConversion returns whether op is one of the conversions inserted by ConvertBool8Tensors.
// If input is not nil, op must read it as its first input.
func isPolarityConversion(op *ir.Operation, input *ir.Tensor) bool {
	if input != nil && op.IFM(0) != input {
		return false
	}
	switch op.Kind() {
	case ir.OpTypeNotEqual:
		return isConstFilled(op.IFM(1), 0)
	case ir.OpTypeAnd:
		return isConstFilled(op.IFM(1), 1)
	}
	return false
}
