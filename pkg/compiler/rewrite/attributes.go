// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rewrite

import (
	"math"
	"slices"

	"github.com/gomlx/npucompiler/pkg/core/ir"
)

// ConvertAttributes moves operation attributes to where the hardware reads them: rounding modes, and clamping
// bounds and shifts in the output quantization.
func ConvertAttributes(_ *Rewriter, op *ir.Operation) *ir.Operation {
	switch op.Kind() {
	case ir.OpTypeAsr:
		if attr := ir.Attribute[ir.AsrAttr](op); attr != nil && attr.Round {
			op.SetRounding(ir.RoundNatural)
		} else {
			op.SetRounding(ir.RoundTruncateToLower)
		}

	case ir.OpTypeRescale:
		if attr := ir.Attribute[ir.RescaleAttr](op); attr != nil && attr.DoubleRound {
			op.SetRounding(ir.RoundDoubleRounding)
		} else {
			op.SetRounding(ir.RoundNatural)
		}

	case ir.OpTypeClamp:
		attr := ir.Attribute[ir.ClampAttr](op)
		if attr == nil {
			ir.ThrowMalformed("clamp operation %s without bounds", op)
		}
		q := &requireOFM(op).Quantization
		q.QuantMin = []int64{attr.Min}
		q.QuantMax = []int64{attr.Max}

	case ir.OpTypeSHL, ir.OpTypeSHR:
		q := &requireOFM(op).Quantization
		q.QuantMin = []int64{math.MinInt64}
		q.QuantMax = []int64{math.MaxInt64}

	case ir.OpTypeMul:
		attr := ir.Attribute[ir.MulAttr](op)
		if attr == nil || attr.Shift == 0 {
			break
		}
		q := &requireOFM(op).Quantization
		if len(q.Scales) == 0 {
			q.Scales = []ir.QuantizedScale{{Scale: 1, Shift: 0}}
		}
		q.Scales[0].Shift += attr.Shift
		// Folded into the quantization, it must not be applied again.
		attr.Shift = 0
	}
	return op
}

// ConvertResizeOffsets folds resize offsets larger than the scale numerator into the input slice, so the
// remaining offset is always smaller than one input step.
func ConvertResizeOffsets(_ *Rewriter, op *ir.Operation) *ir.Operation {
	attr := ir.Attribute[ir.ResizeAttr](op)
	if attr == nil {
		return op
	}
	ifmConn := requireIFM(op)
	shape := ifmConn.SliceShape().Clone()
	rank := shape.Rank()
	if rank < 3 {
		return op
	}
	offset := ifmConn.Slice.Offset.Clone()
	if offset.IsEmpty() {
		offset = shape.WithZeros()
	}
	changed := false
	fold := func(value *int, scale ir.Fraction, axis int) {
		if scale.N <= 0 || *value < scale.N {
			return
		}
		start := *value / scale.N
		offset[axis] += start
		shape[axis] -= start
		*value %= scale.N
		changed = true
	}
	fold(&attr.Offset.Y, attr.ScaleY, rank-3)
	fold(&attr.Offset.X, attr.ScaleX, rank-2)
	if changed {
		ifmConn.SetSlice(ir.TensorSlice{Offset: offset, Shape: shape})
	}
	return op
}

// maxPermutationRank is the largest rank supported by the hardware for transposes.
const maxPermutationRank = 4

// ConvertTranspose replaces a Transpose operation with a memory copy whose output connection is transposed.
//
// The permutation comes from the constant Params input, or the TransposeAttr if there is no such input.
// A non-constant permutation, or one longer than 4 axes, is a malformed graph.
func ConvertTranspose(_ *Rewriter, op *ir.Operation) *ir.Operation {
	var perm []int
	if op.Input(ir.UsageParams) != nil {
		for _, v := range constValues(op, ir.UsageParams) {
			perm = append(perm, int(v))
		}
	} else if attr := ir.Attribute[ir.TransposeAttr](op); attr != nil {
		perm = slices.Clone(attr.Perm)
	} else {
		ir.ThrowMalformed("transpose %s has no permutation", op)
	}
	if len(perm) > maxPermutationRank {
		ir.ThrowMalformed("transpose %s permutation %v has more than %d axes", op, perm, maxPermutationRank)
	}
	if !isPermutation(perm) {
		ir.ThrowMalformed("transpose %s has an invalid permutation %v", op, perm)
	}
	ifmConn, ofmConn := requireIFM(op), requireOFM(op)
	if rank := ifmConn.Shape.Rank(); rank != len(perm) {
		ir.ThrowMalformed("transpose %s permutation %v doesn't match input of rank %d", op, perm, rank)
	}

	g := op.Graph()
	copyOp := g.NewOperation(ir.OpTypeMemoryCopy)
	copyOp.SetRounding(ir.RoundNatural)
	copyOp.CopyInput(ir.UsageIFM, ifmConn)
	out := copyOp.CopyOutput(ir.UsageOFM, ofmConn)
	if !ir.IsIdentityPermutation(perm) {
		out.Transpose = padPermutation(perm, maxPermutationRank)
	}
	op.Disconnect()
	return copyOp
}

func isPermutation(perm []int) bool {
	seen := make([]bool, len(perm))
	for _, axis := range perm {
		if axis < 0 || axis >= len(perm) || seen[axis] {
			return false
		}
		seen[axis] = true
	}
	return true
}

// padPermutation extends perm to rank axes, keeping the new leading axes in place.
func padPermutation(perm []int, rank int) []int {
	pad := rank - len(perm)
	if pad <= 0 {
		return slices.Clone(perm)
	}
	padded := make([]int, rank)
	for i := range pad {
		padded[i] = i
	}
	for i, axis := range perm {
		padded[pad+i] = axis + pad
	}
	return padded
}

// ConvertReverse replaces a Reverse operation along the height, width or depth axis with a memory copy whose output
// connection is reversed. Reversing other axes is left to software.
//
// The axis comes from the constant Params input, or the ReverseAttr if there is no such input.
func ConvertReverse(_ *Rewriter, op *ir.Operation) *ir.Operation {
	var axis int
	if op.Input(ir.UsageParams) != nil {
		values := constValues(op, ir.UsageParams)
		if len(values) != 1 {
			ir.ThrowMalformed("reverse %s axis must be a scalar, got %v", op, values)
		}
		axis = int(values[0])
	} else if attr := ir.Attribute[ir.ReverseAttr](op); attr != nil {
		axis = attr.Axis
	} else {
		ir.ThrowMalformed("reverse %s has no axis", op)
	}
	ifmConn, ofmConn := requireIFM(op), requireOFM(op)
	rank := ifmConn.Shape.Rank()
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		ir.ThrowMalformed("reverse %s axis %d out of range for rank %d", op, axis, rank)
	}
	var mask ir.ReverseType
	switch rank - axis {
	case 1:
		mask = ir.ReverseC
	case 2:
		mask = ir.ReverseW
	case 3:
		mask = ir.ReverseH
	default:
		return op
	}

	g := op.Graph()
	copyOp := g.NewOperation(ir.OpTypeMemoryCopy)
	copyOp.SetRounding(ir.RoundNatural)
	copyOp.CopyInput(ir.UsageIFM, ifmConn)
	copyOp.CopyOutput(ir.UsageOFM, ofmConn).Reverse = mask
	op.Disconnect()
	return copyOp
}
