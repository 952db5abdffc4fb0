// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rewrite

import (
	"github.com/gomlx/npucompiler/pkg/core/ir"
)

// RewriteRescale moves the multipliers (Params input) and shifts (Params1 input) of a Rescale operation into the
// scales of its output quantization, one per output channel if the rescale is per-channel.
func RewriteRescale(_ *Rewriter, op *ir.Operation) *ir.Operation {
	if op.Input(ir.UsageParams) == nil {
		return op
	}
	ofmConn := requireOFM(op)
	multipliers := constValues(op, ir.UsageParams)
	shifts := constValues(op, ir.UsageParams1)
	channels := 1
	if attr := ir.Attribute[ir.RescaleAttr](op); attr != nil && attr.PerChannel {
		channels = ofmConn.Shape.Depth()
	}
	if len(multipliers) < channels || (shifts != nil && len(shifts) < channels) {
		ir.ThrowMalformed("rescale %s needs %d multipliers and shifts, got %d and %d",
			op, channels, len(multipliers), len(shifts))
	}
	scales := make([]ir.QuantizedScale, channels)
	for i := range scales {
		scales[i].Scale = int32(multipliers[i])
		if shifts != nil {
			scales[i].Shift = int(shifts[i])
		}
	}
	ofmConn.Quantization.Scales = scales
	op.DisconnectInput(ir.UsageParams)
	op.DisconnectInput(ir.UsageParams1)
	return op
}

// FuseRescale removes a Rescale operation by applying its scales in a neighbouring operation, if the architecture
// supports it:
//
//   - In the output of its producer, if the producer's output is unit-scaled.
//   - Otherwise in the inputs of its single consumer, if all zero points are zero and every input reading the
//     rescaled tensor can take the scales.
func FuseRescale(r *Rewriter, op *ir.Operation) *ir.Operation {
	if op.Input(ir.UsageParams) != nil {
		return op
	}
	g := op.Graph()
	a := r.Arch()
	ifmConn, ofmConn := requireIFM(op), requireOFM(op)
	ifm, ofm := ifmConn.Tensor, ofmConn.Tensor
	if a == nil || ifm.NumReaders() != 1 {
		return op
	}

	fused := false
	if writers := ifm.Writers(); len(writers) == 1 && !g.IsOutput(ifm) {
		producer := writers[0]
		prodConn := producer.Output(ir.UsageOFM)
		if prodConn != nil && prodConn.Tensor == ifm && prodConn.Quantization.IsUnitScale() && producer.IFM(0) != nil &&
			a.SupportsFusedRescale(producer.Kind(), ir.UsageOFM, producer.IFM(0).Type(), ofm.Type(), ofmConn.Quantization) {
			producer.CopyOutput(ir.UsageOFM, ofmConn)
			g.RecordOptimisation(RuleFuseRescale, op, producer)
			fused = true
		}
	}

	if !fused && ofm.NumReaders() == 1 && !g.IsOutput(ofm) &&
		zeroPointsAreZero(ifmConn.Quantization) && zeroPointsAreZero(ofmConn.Quantization) {
		q := ofmConn.Quantization.Clone()
		q.Scales = withoutShifts(q.Scales)
		consumer := ofm.Readers()[0]
		// Every input reading the rescaled tensor must take the scales, or none does.
		var usages []ir.TensorUsage
		fusable := true
		for usage, conn := range consumer.Inputs() {
			if conn.Tensor != ofm {
				continue
			}
			if !usage.IsIFM() || !conn.Quantization.IsUnitScale() ||
				!a.SupportsFusedRescale(consumer.Kind(), usage, ifm.Type(), ofm.Type(), q) {
				fusable = false
				break
			}
			usages = append(usages, usage)
		}
		if fusable && len(usages) > 0 {
			for _, usage := range usages {
				newConn := consumer.CopyInput(usage, ifmConn)
				newConn.Quantization.Scales = q.Scales
			}
			g.RecordOptimisation(RuleFuseRescale, op, consumer)
			fused = true
		}
	}

	if !fused {
		return op
	}
	op.Disconnect()
	return nil
}

func zeroPointsAreZero(q ir.Quantization) bool {
	for _, zp := range q.ZeroPoints {
		if zp != 0 {
			return false
		}
	}
	return true
}

// withoutShifts returns the scales with the shift folded into the multiplier wherever that is exact.
func withoutShifts(scales []ir.QuantizedScale) []ir.QuantizedScale {
	result := make([]ir.QuantizedScale, len(scales))
	for i, s := range scales {
		result[i] = s
		if s.Shift > 0 && s.Shift < 31 && s.Scale%(int32(1)<<s.Shift) == 0 {
			result[i] = ir.QuantizedScale{Scale: s.Scale >> s.Shift, Shift: 0}
		}
	}
	return result
}
