// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rewrite

import (
	"math"

	"github.com/gomlx/npucompiler/pkg/core/ir"
)

// maxFullyConnectedTile is the largest side of the batch tile a fully-connected operation can process: larger
// tiles are run as a 1x1 convolution.
const maxFullyConnectedTile = 4

// RewriteFullyConnected normalizes the shapes of a fully-connected operation.
//
// Weights stored as [outputs, inputs] are reshaped to OHWI [outputs, 1, 1, inputs]. The input, whatever its shape,
// is a batch of vectors of the weights' inputs, and the batch is laid out as a 2D tile [1, h, w, inputs]
// approximating a square, with w evenly dividing the batch. If the tile is larger than 4 on any side, the
// operation is converted to a Conv2DBias.
func RewriteFullyConnected(_ *Rewriter, op *ir.Operation) *ir.Operation {
	if weights := op.Input(ir.UsageWeights); weights != nil {
		w := weights.Tensor
		if w.AxisOrder() == ir.AxisOrderOI && w.StorageShape().Rank() == 2 {
			shape := w.StorageShape()
			w.Reshape(ir.MakeShape(shape[0], 1, 1, shape[1]))
			w.SetAxisOrder(ir.AxisOrderOHWI)
			for _, reader := range w.Readers() {
				for _, conn := range reader.Inputs() {
					if conn.Tensor == w {
						conn.Shape = w.StorageShape().Clone()
					}
				}
			}
		}
	}

	ifmConn, ofmConn := requireIFM(op), requireOFM(op)
	// The number of inputs is the innermost dimension of the weights, the input may have any shape.
	depth := ifmConn.Shape.Depth()
	if weights := op.Input(ir.UsageWeights); weights != nil {
		depth = weights.Shape.Depth()
	}
	if depth == 0 {
		ir.ThrowMalformed("fully-connected %s with empty input %s", op, ifmConn.Shape)
	}
	elements := ifmConn.Shape.Elements()
	if elements%depth != 0 {
		ir.ThrowMalformed("fully-connected %s input %s is not a multiple of %d inputs", op, ifmConn.Shape, depth)
	}
	batch := elements / depth
	if batch <= 1 {
		ifmConn.Shape = ir.MakeShape(1, 1, 1, depth)
		return op
	}

	h, w := batchTile(batch)
	ifmConn.Shape = ir.MakeShape(1, h, w, depth)
	ofmConn.Shape = ir.MakeShape(1, h, w, ofmConn.Shape.Depth())
	if h <= maxFullyConnectedTile && w <= maxFullyConnectedTile {
		return op
	}

	conv := op.Graph().NewOperation(ir.OpTypeConv2DBias)
	if op.Kernel() == nil {
		conv.SetKernel(ir.NewKernel(1, 1))
	}
	ir.ReplaceOperation(op, conv)
	if ifmConn.Tensor.Type() == ir.Int16 {
		conv.SetRounding(ir.RoundNatural)
	} else {
		conv.SetRounding(ir.RoundDoubleRounding)
	}
	return conv
}

// batchTile returns the height and width of a tile holding n elements, approximately square, with the width
// evenly dividing n.
func batchTile(n int) (h, w int) {
	w = max(n/16, int(math.Ceil(math.Sqrt(float64(n)))))
	for n%w != 0 {
		w++
	}
	return n / w, w
}

// FixupPoolStrides sets the stride of pooling operations covering the whole input in a single step to 1, since
// the stride is irrelevant then, and large strides may not be supported by the hardware.
func FixupPoolStrides(_ *Rewriter, op *ir.Operation) *ir.Operation {
	k := op.Kernel()
	if k == nil {
		return op
	}
	unit := ir.Point2{X: 1, Y: 1}
	ifmWH := requireIFM(op).SliceShape().WH()
	if k.Size == k.Stride && k.Size == ifmWH && k.Padding.IsZero() && k.Stride != unit {
		op.SetKernel(k.WithStride(unit))
	}
	return op
}
