// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package generic

import (
	"maps"

	"github.com/gomlx/npucompiler/pkg/core/ir"
)

// Capabilities holds the tables describing what the hardware supports.
type Capabilities struct {
	// Operations that can run as the primary operation of a hardware group.
	// If not listed, it's assumed to be false, hence not supported.
	Operations map[ir.OpType]bool

	// Chainable operations can be appended to an existing group.
	Chainable map[ir.OpType]bool

	// FusedRescale lists the operations that can apply an arbitrary rescale to their input or output.
	FusedRescale map[ir.OpType]bool

	// DTypes list the data types of feature maps supported.
	// If not listed, it's assumed to be false, hence not supported.
	DTypes map[ir.DataType]bool

	// MaxKernel is the largest kernel (after dilation) supported, in both directions.
	MaxKernel int

	// MaxStride and MaxDilation supported natively.
	MaxStride, MaxDilation int

	// MaxChain is the maximum number of operations in a group, including the primary.
	MaxChain int
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	c2 := c
	c2.Operations = maps.Clone(c.Operations)
	c2.Chainable = maps.Clone(c.Chainable)
	c2.FusedRescale = maps.Clone(c.FusedRescale)
	c2.DTypes = maps.Clone(c.DTypes)
	return c2
}

// DefaultCapabilities of the generic architecture: a small accelerator with native 8/16-bit convolutions, pooling,
// elementwise operations and fused activations, without dilation or batch support.
var DefaultCapabilities = Capabilities{
	Operations: map[ir.OpType]bool{
		// Weighted operations.
		ir.OpTypeConv2D:              true,
		ir.OpTypeConv2DBias:          true,
		ir.OpTypeDepthwiseConv2DBias: true,
		ir.OpTypeFullyConnected:      true,

		// Pooling.
		ir.OpTypeAvgPool: true,
		ir.OpTypeMaxPool: true,

		// Elementwise.
		ir.OpTypeAdd:      true,
		ir.OpTypeSub:      true,
		ir.OpTypeMul:      true,
		ir.OpTypeAnd:      true,
		ir.OpTypeNotEqual: true,
		ir.OpTypeSHL:      true,
		ir.OpTypeSHR:      true,
		ir.OpTypeAsr:      true,
		ir.OpTypeAbs:      true,

		// Data movement.
		ir.OpTypeMemoryCopy: true,
		ir.OpTypeRescale:    true,
		ir.OpTypeResize:     true,

		// Activations can also run on their own.
		ir.OpTypeRelu:      true,
		ir.OpTypeRelu6:     true,
		ir.OpTypeReluN1To1: true,
		ir.OpTypeClamp:     true,
		ir.OpTypeLUT:       true,
		ir.OpTypeSigmoid:   true,
		ir.OpTypeTanh:      true,
	},

	Chainable: map[ir.OpType]bool{
		ir.OpTypeRelu:      true,
		ir.OpTypeRelu6:     true,
		ir.OpTypeReluN1To1: true,
		ir.OpTypeClamp:     true,
		ir.OpTypeLUT:       true,
		ir.OpTypeSigmoid:   true,
		ir.OpTypeTanh:      true,

		ir.OpTypeAdd: true,
		ir.OpTypeSub: true,
		ir.OpTypeMul: true,
	},

	FusedRescale: map[ir.OpType]bool{
		ir.OpTypeConv2D:              true,
		ir.OpTypeConv2DBias:          true,
		ir.OpTypeDepthwiseConv2DBias: true,
		ir.OpTypeFullyConnected:      true,
		ir.OpTypeAdd:                 true,
		ir.OpTypeSub:                 true,
		ir.OpTypeMemoryCopy:          true,
		ir.OpTypeAvgPool:             true,
	},

	DTypes: map[ir.DataType]bool{
		ir.Bool8:  true,
		ir.Int8:   true,
		ir.UInt8:  true,
		ir.Int16:  true,
		ir.Int32:  true,
		ir.Int64:  true,
		ir.UInt16: true,
	},

	MaxKernel:   8,
	MaxStride:   3,
	MaxDilation: 1,
	MaxChain:    4,
}
