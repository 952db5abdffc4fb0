// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
)

// QuantizationType tells how the scales of a connection were specified.
type QuantizationType int

const (
	// QuantizationImplicit scales are derived from float scales by the compiler.
	QuantizationImplicit QuantizationType = iota
	// QuantizationExplicit scales are given as integer scale/shift pairs by the source format.
	QuantizationExplicit
)

// QuantizedScale is a fixed point scale: value * Scale >> Shift.
type QuantizedScale struct {
	Scale int32
	Shift int
}

// Quantization of a tensor connection: per-channel scales, zero points, and clamping bounds.
type Quantization struct {
	Type       QuantizationType
	Scales     []QuantizedScale
	ZeroPoints []int64
	QuantMin   []int64
	QuantMax   []int64
}

// UnitQuantization returns the identity quantization: scale 1, shift 0, zero point 0.
func UnitQuantization() Quantization {
	return Quantization{
		Scales:     []QuantizedScale{{Scale: 1, Shift: 0}},
		ZeroPoints: []int64{0},
	}
}

// Clone returns a deep copy of q.
func (q Quantization) Clone() Quantization {
	return Quantization{
		Type:       q.Type,
		Scales:     slices.Clone(q.Scales),
		ZeroPoints: slices.Clone(q.ZeroPoints),
		QuantMin:   slices.Clone(q.QuantMin),
		QuantMax:   slices.Clone(q.QuantMax),
	}
}

// EqualScales returns whether q and other have the same scales and zero points.
//
// Missing scales or zero points are read as the unit values, so an unset quantization equals UnitQuantization.
func (q Quantization) EqualScales(other Quantization) bool {
	return slices.Equal(normalizedScales(q.Scales), normalizedScales(other.Scales)) &&
		slices.Equal(normalizedZeroPoints(q.ZeroPoints), normalizedZeroPoints(other.ZeroPoints))
}

// IsUnitScale returns whether q has a unit scale and zero point.
func (q Quantization) IsUnitScale() bool {
	return q.EqualScales(UnitQuantization())
}

func normalizedScales(scales []QuantizedScale) []QuantizedScale {
	if len(scales) == 0 {
		return []QuantizedScale{{Scale: 1}}
	}
	return scales
}

func normalizedZeroPoints(zeroPoints []int64) []int64 {
	if len(zeroPoints) == 0 {
		return []int64{0}
	}
	return zeroPoints
}

// String implements fmt.Stringer.
func (q Quantization) String() string {
	return fmt.Sprintf("Quant{scales=%v, zp=%v, min=%v, max=%v}", q.Scales, q.ZeroPoints, q.QuantMin, q.QuantMax)
}
