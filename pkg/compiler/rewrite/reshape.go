// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rewrite

import (
	"github.com/gomlx/npucompiler/pkg/core/ir"
)

// RemoveReshape removes operations that only change the shape of a tensor (Reshape, Squeeze, ExpandDims), by
// making the two tensors they bridge a single one.
//
// If the output is a graph output, the producers of the input write the output directly. Otherwise, the readers of
// the output read the input instead, and the input takes the shape of the output.
// When that would alias a graph input/output, a constant or a tensor read with different shapes, the operation is
// replaced by a memory copy instead.
func RemoveReshape(_ *Rewriter, op *ir.Operation) *ir.Operation {
	g := op.Graph()
	ifmConn, ofmConn := requireIFM(op), requireOFM(op)
	ifm, ofm := ifmConn.Tensor, ofmConn.Tensor

	sameLayout := ifm.StorageShape().Equal(ofm.StorageShape()) && ifm.AxisOrder() == ofm.AxisOrder()
	needsCopy := g.IsOutput(ifm) ||
		(g.IsOutput(ofm) && (g.IsInput(ifm) || ifm.IsConstant())) ||
		(ifm.NumReaders() > 1 && !sameLayout)
	if needsCopy {
		copyOp := g.NewOperation(ir.OpTypeMemoryCopy)
		copyOp.SetRounding(ir.RoundNatural)
		in := copyOp.CopyInput(ir.UsageIFM, ifmConn)
		in.Shape = ofm.StorageShape().Clone()
		copyOp.CopyOutput(ir.UsageOFM, ofmConn)
		op.Disconnect()
		return copyOp
	}

	if g.IsOutput(ofm) {
		for _, writer := range ifm.Writers() {
			replaceWrites(writer, ifm, ofm)
		}
		for _, reader := range ifm.Readers() {
			if reader != op {
				replaceReads(reader, ifm, ofm)
			}
		}
	} else {
		ifm.SetAxisOrder(ofm.AxisOrder())
		ifm.Reshape(ofm.StorageShape())
		for _, reader := range ofm.Readers() {
			replaceReads(reader, ofm, ifm)
		}
	}
	op.Disconnect()
	return nil
}
