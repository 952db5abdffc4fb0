// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rewrite

import (
	"github.com/gomlx/npucompiler/pkg/core/ir"
)

// int16TableSize is the number of entries of a 16-bit lookup table: 512 intervals plus the end point.
const int16TableSize = 513

// RewriteTable replaces a Table operation with a hardware LUT operation.
//
// 8-bit tables are used as they are. 16-bit tables of 513 entries are re-encoded as 512 (base, slope) pairs,
// the hardware interpolating linearly within each interval.
func RewriteTable(_ *Rewriter, op *ir.Operation) *ir.Operation {
	g := op.Graph()
	ifmConn, ofmConn := requireIFM(op), requireOFM(op)
	tableConn := op.Input(ir.UsageParams)
	if tableConn == nil {
		ir.ThrowMalformed("table %s has no lookup table", op)
	}
	table := tableConn.Tensor
	lut := table
	switch table.Type() {
	case ir.Int8, ir.UInt8:
		if !table.IsConstant() {
			ir.ThrowMalformed("table %s lookup table %q must be constant", op, table.Name())
		}
	case ir.Int16:
		values := constValues(op, ir.UsageParams)
		if len(values) != int16TableSize {
			ir.ThrowMalformed("table %s: 16-bit lookup table %q must have %d entries, got %d",
				op, table.Name(), int16TableSize, len(values))
		}
		encoded := make([]int64, 2*(int16TableSize-1))
		for i := range int16TableSize - 1 {
			encoded[2*i] = values[i]
			encoded[2*i+1] = values[i+1] - values[i]
		}
		lut = g.NewConstTensor("LUT", ir.Int16, ir.MakeShape(len(encoded)), ir.MakeBuffer(ir.Int16, encoded...))
	default:
		ir.ThrowMalformed("table %s: lookup table %q of unsupported type %s", op, table.Name(), table.Type())
	}

	lutOp := g.NewOperation(ir.OpTypeLUT)
	lutOp.SetRounding(ir.RoundNatural)
	lutOp.CopyInput(ir.UsageIFM, ifmConn)
	lutOp.ConnectInput(ir.UsageLUT, lut)
	lutOp.CopyOutput(ir.UsageOFM, ofmConn)
	op.Disconnect()
	return lutOp
}

// RewriteCast replaces a Cast with an operation the hardware supports:
//
//   - From the internal boolean representation to integer: And(x, 1).
//   - From integer to boolean: NotEqual(x, 0).
//   - Anything else: Add(x, 0), the conversion being done by the output type.
func RewriteCast(_ *Rewriter, op *ir.Operation) *ir.Operation {
	g := op.Graph()
	ifmConn, ofmConn := requireIFM(op), requireOFM(op)
	srcType, dstType := ifmConn.Tensor.Type(), ofmConn.Tensor.Type()

	var newOp *ir.Operation
	switch {
	case srcType.IsBool() && dstType.IsInteger():
		newOp = g.NewOperation(ir.OpTypeAnd)
		newOp.CopyInput(ir.UsageIFM0, ifmConn)
		newOp.ConnectInput(ir.UsageIFM1, g.ConstScalar("const_one", ir.Int8, 1))
		newOp.CopyOutput(ir.UsageOFM, ofmConn)
		op.Disconnect()
	case srcType.IsInteger() && dstType.IsBool():
		newOp = g.NewOperation(ir.OpTypeNotEqual)
		newOp.CopyInput(ir.UsageIFM0, ifmConn)
		newOp.ConnectInput(ir.UsageIFM1, g.ConstScalar("const_zero", srcType, 0))
		newOp.CopyOutput(ir.UsageOFM, ofmConn)
		op.Disconnect()
	default:
		newOp = g.NewOperation(ir.OpTypeAdd)
		ir.ReplaceOperation(op, newOp)
		newOp.ConnectInput(ir.UsageIFM1, g.ConstScalar("const_zero", srcType, 0))
	}
	return newOp
}

// RewriteNegate replaces Neg(x) with Sub(0, x).
func RewriteNegate(_ *Rewriter, op *ir.Operation) *ir.Operation {
	g := op.Graph()
	ifmConn, ofmConn := requireIFM(op), requireOFM(op)
	sub := g.NewOperation(ir.OpTypeSub)
	sub.SetRounding(ir.RoundNatural)
	sub.ConnectInput(ir.UsageIFM0, g.ConstScalar("const_zero", ifmConn.Tensor.Type(), 0))
	sub.CopyInput(ir.UsageIFM1, ifmConn)
	sub.CopyOutput(ir.UsageOFM, ofmConn)
	op.Disconnect()
	return sub
}
