// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rewrite

import (
	"github.com/gomlx/npucompiler/pkg/core/ir"
)

// RewriteConcat replaces a concatenation with one memory copy per input, each writing its slice of the output.
func RewriteConcat(_ *Rewriter, op *ir.Operation) *ir.Operation {
	g := op.Graph()
	ofmConn := requireOFM(op)
	attr := ir.Attribute[ir.ConcatAttr](op)
	if attr == nil {
		ir.ThrowMalformed("concatenation %s without axis", op)
	}
	rank := ofmConn.Shape.Rank()
	axis := attr.Axis
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		ir.ThrowMalformed("concatenation %s axis %d out of range for rank %d", op, attr.Axis, rank)
	}

	offset := ofmConn.Shape.WithZeros()
	var last *ir.Operation
	for usage, conn := range op.Inputs() {
		if !usage.IsIFM() {
			continue
		}
		if conn.Shape.Rank() != rank {
			ir.ThrowMalformed("concatenation %s input %s of rank %d, output has rank %d",
				op, usage, conn.Shape.Rank(), rank)
		}
		copyOp := g.NewOperation(ir.OpTypeMemoryCopy)
		copyOp.SetRounding(ir.RoundNatural)
		copyOp.CopyInput(ir.UsageIFM, conn)
		copyOp.CopyOutput(ir.UsageOFM, ofmConn).SetSlice(ir.TensorSlice{Offset: offset, Shape: conn.Shape})
		offset[axis] += conn.Shape[axis]
		if last != nil {
			// The last copy is recorded by the engine, as the replacement of op.
			g.RecordOptimisation(RuleRewriteConcat, op, last)
		}
		last = copyOp
	}
	if last == nil {
		ir.ThrowMalformed("concatenation %s without inputs", op)
	}
	op.Disconnect()
	return last
}

// RewriteSlice replaces a Slice operation with a memory copy reading a slice of its input.
func RewriteSlice(_ *Rewriter, op *ir.Operation) *ir.Operation {
	g := op.Graph()
	ifmConn, ofmConn := requireIFM(op), requireOFM(op)
	attr := ir.Attribute[ir.SliceAttr](op)
	if attr == nil {
		ir.ThrowMalformed("slice %s without begin and size", op)
	}
	rank := ifmConn.Shape.Rank()
	if attr.Begin.Rank() != rank || attr.Size.Rank() != rank {
		ir.ThrowMalformed("slice %s begin %s and size %s don't match input of rank %d", op, attr.Begin, attr.Size, rank)
	}
	copyOp := g.NewOperation(ir.OpTypeMemoryCopy)
	copyOp.SetRounding(ir.RoundNatural)
	copyOp.CopyInput(ir.UsageIFM, ifmConn).SetSlice(ir.TensorSlice{Offset: attr.Begin, Shape: attr.Size})
	copyOp.CopyOutput(ir.UsageOFM, ofmConn)
	op.Disconnect()
	return copyOp
}

// MoveSplitSliceToConsumer removes a memory copy that reads a slice of a tensor (as created by RewriteSlice) and
// makes its single consumer read the slice directly.
func MoveSplitSliceToConsumer(_ *Rewriter, op *ir.Operation) *ir.Operation {
	g := op.Graph()
	ifmConn, ofmConn := requireIFM(op), requireOFM(op)
	ofm := ofmConn.Tensor
	if ifmConn.Slice.Offset.IsEmpty() || ifmConn.IsReordered() || ofmConn.IsReordered() || !ofmConn.Slice.IsEmpty() {
		return op
	}
	if ofm.NumReaders() != 1 || g.IsOutput(ofm) || !ofmConn.Shape.Equal(ofm.StorageShape()) {
		return op
	}
	consumer := ofm.Readers()[0]
	if consumer.Kind().IsReshape() {
		return op
	}
	if consOfm := consumer.Output(ir.UsageOFM); consOfm == nil || consOfm.IsReordered() {
		return op
	}
	usages := []ir.TensorUsage{ir.UsageIFM0}
	if consumer.Kind().IsBinaryElementwise() {
		usages = append(usages, ir.UsageIFM1)
	}
	moved := false
	for _, usage := range usages {
		conn := consumer.Input(usage)
		if conn == nil || conn.Tensor != ofm || !conn.Shape.Equal(ofmConn.Shape) ||
			!conn.Slice.IsEmpty() || conn.IsReordered() || conn.Resampling != ir.ResamplingNone {
			continue
		}
		quantization := conn.Quantization
		newConn := consumer.CopyInput(usage, ifmConn)
		newConn.Quantization = quantization
		moved = true
	}
	if !moved || ofm.NumReaders() > 0 {
		return op
	}
	g.RecordOptimisation(RuleMoveSplitSliceToConsumer, op, consumer)
	op.Disconnect()
	return nil
}
