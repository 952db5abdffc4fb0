// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package arch defines the interface the compiler uses to query the capabilities of an accelerator.
//
// The compiler never looks at the internals of a hardware model: it asks whether an operation can run as a
// hardware operation group, whether a group can be extended with one more operation, and whether a rescale can
// be fused into an operation. All queries are pure and can be called any number of times, in any order.
//
// Architectures are registered by name (see Register) and created from a configuration string (see New and
// NewWithConfig), so the hardware model can be selected at run time.
package arch

import (
	"fmt"

	"github.com/gomlx/npucompiler/pkg/core/ir"
)

// MemArea is a class of memory tensors can be placed in.
type MemArea int

const (
	MemAreaUnknown MemArea = iota
	MemAreaSRAM
	MemAreaDRAM
	MemAreaOffChipFlash
)

// String implements fmt.Stringer.
func (m MemArea) String() string {
	switch m {
	case MemAreaSRAM:
		return "SRAM"
	case MemAreaDRAM:
		return "DRAM"
	case MemAreaOffChipFlash:
		return "OffChipFlash"
	default:
		return "Unknown"
	}
}

// TensorDesc describes one tensor of an operation in a capability query.
type TensorDesc struct {
	// Key identifies the tensor, so the architecture can tell when two operations share a tensor.
	Key   ir.UID
	Type  ir.DataType
	Shape ir.Shape

	IsConst     bool
	IsReordered bool
}

// String implements fmt.Stringer.
func (d TensorDesc) String() string {
	return fmt.Sprintf("#%d:%s%s(const=%v, reordered=%v)", d.Key, d.Type, d.Shape, d.IsConst, d.IsReordered)
}

// OpGroupQuery describes one operation for CreateOpGroup and OpGroup.Add.
type OpGroupQuery struct {
	Kind   ir.OpType
	Kernel *ir.Kernel

	// Inputs is the number of feature map inputs: 1 or 2.
	Inputs int
	IFM    [2]TensorDesc
	OFM    TensorDesc
}

// OpGroup is a set of operations the hardware executes as a single dispatch.
//
// It is opaque to the compiler, which only adds operations to it and hands it over to instruction emission.
type OpGroup interface {
	// Add tries to add the operation described by q to the group, as a consumer of the operations with the
	// given keys. It returns the key of the new operation in the group, or 0 if it can't be added.
	// The first operation of a group always has key 0.
	Add(q OpGroupQuery, dependsOn ...int) int

	// Len returns the number of operations in the group.
	Len() int
}

// Architecture is the capability model of an accelerator.
//
// Implementations must be safe to call repeatedly: the packer queries them many times per operation.
type Architecture interface {
	// Name of the architecture.
	Name() string

	// CreateOpGroup returns a new group holding only the operation described by q, or nil if the operation can't
	// run on the hardware.
	CreateOpGroup(q OpGroupQuery) OpGroup

	// SupportsFusedRescale returns whether an operation of the given kind can apply the quantization q on the
	// tensor with the given usage, converting from srcType to dstType.
	SupportsFusedRescale(kind ir.OpType, usage ir.TensorUsage, srcType, dstType ir.DataType, q ir.Quantization) bool

	// ReadonlyMemory is where constant tensors are placed.
	ReadonlyMemory() MemArea

	// FeatureMapMemory is where feature maps are placed.
	FeatureMapMemory() MemArea
}
