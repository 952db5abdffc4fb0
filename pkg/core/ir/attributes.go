// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

// Attribute returns the attribute payload of op if it is of type *T, or nil.
//
// Example:
//
//	if attr := ir.Attribute[ir.ConcatAttr](op); attr != nil { ... }
func Attribute[T any](op *Operation) *T {
	attr, _ := op.attr.(*T)
	return attr
}

// ConcatAttr for OpTypeConcat. A negative axis counts from the end.
type ConcatAttr struct {
	Axis int
}

// SliceAttr for OpTypeSlice.
type SliceAttr struct {
	Begin, Size Shape
}

// RescaleAttr for OpTypeRescale.
type RescaleAttr struct {
	// Scale32 selects 32-bit multipliers, otherwise they are 16 bits.
	Scale32     bool
	DoubleRound bool
	PerChannel  bool
}

// ClampAttr for OpTypeClamp, in the quantized domain.
type ClampAttr struct {
	Min, Max int64
}

// MulAttr for OpTypeMul.
type MulAttr struct {
	// Shift right applied to the result, only valid with explicit quantization.
	Shift int
}

// Fraction is a rational number N/D.
type Fraction struct {
	N, D int
}

// ResizeAttr for OpTypeResize.
type ResizeAttr struct {
	ScaleY, ScaleX Fraction
	Offset         Point2
	Border         Point2
}

// TransposeAttr for OpTypeTranspose, once the permutation was read from its constant input.
type TransposeAttr struct {
	Perm []int
}

// AsrAttr for OpTypeAsr (arithmetic shift right).
type AsrAttr struct {
	Round bool
}

// ReverseAttr for OpTypeReverse.
type ReverseAttr struct {
	Axis int
}
