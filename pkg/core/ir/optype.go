// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

// OpType is an enum of all operations the IR can represent.
//
// Some come straight from the source formats (e.g.: OpTypeConcat, OpTypeTable, OpTypeCast) and are rewritten
// away by the graph optimiser; others only exist after rewriting (e.g.: OpTypeMemoryCopy, OpTypeLUT).
type OpType int

const (
	OpTypeNone OpType = iota
	// OpTypePassthrough is an operation from the source format kept verbatim and run on the CPU.
	OpTypePassthrough
	OpTypeCustomNpuOp

	OpTypeAbs
	OpTypeAdd
	OpTypeAnd
	OpTypeAsr
	OpTypeAvgPool
	OpTypeCast
	OpTypeClamp
	OpTypeConcat
	OpTypeConv2D
	OpTypeConv2DBias
	OpTypeDepthwiseConv2DBias
	OpTypeExpandDims
	OpTypeFullyConnected
	OpTypeIdentity
	OpTypeLUT
	OpTypeMaxPool
	OpTypeMemoryCopy
	OpTypeMul
	OpTypeNeg
	OpTypeNotEqual
	OpTypeRelu
	OpTypeRelu6
	OpTypeReluN1To1
	OpTypeRescale
	OpTypeReshape
	OpTypeResize
	OpTypeReverse
	OpTypeSHL
	OpTypeSHR
	OpTypeSigmoid
	OpTypeSlice
	OpTypeSqueeze
	OpTypeSub
	OpTypeTable
	OpTypeTanh
	OpTypeTranspose
	OpTypeTransposeConv2D

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

// IsActivation returns whether t is an activation function: a unary element-wise operation that the hardware
// can apply on the output of another operation.
func (t OpType) IsActivation() bool {
	switch t {
	case OpTypeRelu, OpTypeRelu6, OpTypeReluN1To1, OpTypeClamp, OpTypeSigmoid, OpTypeTanh, OpTypeLUT:
		return true
	}
	return false
}

// IsReshape returns whether t only changes the shape of its input, not its content.
func (t OpType) IsReshape() bool {
	return t == OpTypeReshape || t == OpTypeSqueeze || t == OpTypeExpandDims
}

// IsPooling returns whether t is a pooling operation.
func (t OpType) IsPooling() bool {
	return t == OpTypeMaxPool || t == OpTypeAvgPool
}

// IsConvolution returns whether t is a convolution-like operation with weights.
func (t OpType) IsConvolution() bool {
	switch t {
	case OpTypeConv2D, OpTypeConv2DBias, OpTypeDepthwiseConv2DBias, OpTypeTransposeConv2D, OpTypeFullyConnected:
		return true
	}
	return false
}

// IsBinaryElementwise returns whether t is an element-wise operation with two feature map inputs.
func (t OpType) IsBinaryElementwise() bool {
	switch t {
	case OpTypeAdd, OpTypeSub, OpTypeMul, OpTypeAnd, OpTypeNotEqual, OpTypeSHL, OpTypeSHR, OpTypeAsr:
		return true
	}
	return false
}
