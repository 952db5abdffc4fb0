// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/gomlx/npucompiler/pkg/arch"
	"github.com/gomlx/npucompiler/pkg/core/ir"
	"github.com/google/uuid"
)

// Tensor is the scheduler view of an ir.Tensor. There is one per distinct source tensor.
type Tensor struct {
	// Source tensor in the graph.
	Source *ir.Tensor

	// UID of the source tensor, used as the tensor key in capability queries.
	UID ir.UID

	// EquivalenceID identifies the content of the tensor: it changes when a constant is rewritten (e.g. weights
	// reversed for a transposed convolution), so tensors with equal content can be shared downstream.
	EquivalenceID uuid.UUID

	MemArea      arch.MemArea
	StorageShape ir.Shape
	Type         ir.DataType

	// Buffer of constant tensors, nil otherwise.
	Buffer *ir.Buffer

	IsGraphInput, IsGraphOutput bool

	Producers, Consumers []*Operation
}

// IsConstant returns whether the tensor has a backing buffer.
func (t *Tensor) IsConstant() bool { return t.Buffer != nil }

// Name of the source tensor.
func (t *Tensor) Name() string { return t.Source.Name() }

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("%q(%s%s, %s)", t.Name(), t.Type, t.StorageShape, t.MemArea)
}

// clone returns an unconnected copy of t with a new equivalence id.
func (t *Tensor) clone() *Tensor {
	c := *t
	c.StorageShape = t.StorageShape.Clone()
	c.EquivalenceID = uuid.New()
	c.Producers, c.Consumers = nil, nil
	return &c
}

// Connection binds a scheduler Tensor to an Operation, with the operation's view of it.
type Connection struct {
	Tensor       *Tensor
	Shape        ir.Shape
	Slice        ir.TensorSlice
	Quantization ir.Quantization
	Transpose    []int
	Reverse      ir.ReverseType
	Resampling   ir.Resampling

	// StepXY is the step between consecutive elements read or written along the width (X) and height (Y) axes.
	// Decomposition of dilated kernels uses steps larger than 1.
	StepXY ir.Point2
}

// SliceShape returns the shape of the slice if one is set, otherwise the connection shape.
func (c *Connection) SliceShape() ir.Shape {
	if !c.Slice.Shape.IsEmpty() {
		return c.Slice.Shape
	}
	return c.Shape
}

// IsReordered returns whether the connection transposes or reverses the tensor.
func (c *Connection) IsReordered() bool {
	return !ir.IsIdentityPermutation(c.Transpose) || c.Reverse != ir.ReverseNone
}

func (c *Connection) clone() *Connection {
	return &Connection{
		Tensor:       c.Tensor,
		Shape:        c.Shape.Clone(),
		Slice:        c.Slice.Clone(),
		Quantization: c.Quantization.Clone(),
		Transpose:    slices.Clone(c.Transpose),
		Reverse:      c.Reverse,
		Resampling:   c.Resampling,
		StepXY:       c.StepXY,
	}
}

type usageConnection struct {
	usage ir.TensorUsage
	conn  *Connection
}

// Operation is the scheduler view of an ir.Operation, or of a part of one, after decomposition.
//
// Once packed, an operation running on the accelerator is either the primary operation of a hardware group
// (OpGroup is set and SubOps lists the operations chained into it), or one of those chained operations (Parent is
// set). Operations not running on the accelerator (IsNPU is false) are executed in software.
type Operation struct {
	Kind     ir.OpType
	Kernel   *ir.Kernel
	Rounding ir.RoundMode
	Attr     any

	// Source operation in the graph. Operations decomposed from the same source share it.
	Source *ir.Operation

	// PrimaryIFM is the index of the feature map input chaining follows: the non-constant, non-broadcast one.
	PrimaryIFM int

	inputs, outputs []usageConnection

	Parent     *Operation
	SubOps     []*Operation
	OpGroupKey int
	OpGroup    arch.OpGroup
	IsNPU      bool

	// Index in the schedule.
	Index int
}

func newOperation(kind ir.OpType) *Operation {
	return &Operation{Kind: kind, Index: -1}
}

func find(list []usageConnection, usage ir.TensorUsage) *Connection {
	for _, uc := range list {
		if uc.usage == usage {
			return uc.conn
		}
	}
	return nil
}

func all(list []usageConnection) iter.Seq2[ir.TensorUsage, *Connection] {
	return func(yield func(ir.TensorUsage, *Connection) bool) {
		for _, uc := range list {
			if !yield(uc.usage, uc.conn) {
				return
			}
		}
	}
}

// Input returns the input connection with the given usage, or nil.
func (op *Operation) Input(usage ir.TensorUsage) *Connection { return find(op.inputs, usage) }

// Output returns the output connection with the given usage, or nil.
func (op *Operation) Output(usage ir.TensorUsage) *Connection { return find(op.outputs, usage) }

// IFM returns the connection of the index-th feature map input, or nil.
func (op *Operation) IFM(index int) *Connection {
	return op.Input(ir.MakeUsage(ir.UsageIFM, index))
}

// OFM returns the output feature map connection, or nil.
func (op *Operation) OFM() *Connection { return op.Output(ir.UsageOFM) }

// PrimaryInput returns the connection of the primary feature map input.
func (op *Operation) PrimaryInput() *Connection { return op.IFM(op.PrimaryIFM) }

// Inputs iterates over the input connections in the order they were added.
func (op *Operation) Inputs() iter.Seq2[ir.TensorUsage, *Connection] { return all(op.inputs) }

// Outputs iterates over the output connections in the order they were added.
func (op *Operation) Outputs() iter.Seq2[ir.TensorUsage, *Connection] { return all(op.outputs) }

// SetInput sets the connection for an input usage, replacing any previous one.
// It doesn't update the producers/consumers of the tensors.
func (op *Operation) SetInput(usage ir.TensorUsage, conn *Connection) {
	op.inputs = setConnection(op.inputs, usage, conn)
}

// SetOutput sets the connection for an output usage, replacing any previous one.
// It doesn't update the producers/consumers of the tensors.
func (op *Operation) SetOutput(usage ir.TensorUsage, conn *Connection) {
	op.outputs = setConnection(op.outputs, usage, conn)
}

func setConnection(list []usageConnection, usage ir.TensorUsage, conn *Connection) []usageConnection {
	for i := range list {
		if list[i].usage == usage {
			list[i].conn = conn
			return list
		}
	}
	return append(list, usageConnection{usage: usage, conn: conn})
}

// attach adds op to the producers and consumers of its tensors.
func (op *Operation) attach() {
	for _, uc := range op.inputs {
		uc.conn.Tensor.Consumers = append(uc.conn.Tensor.Consumers, op)
	}
	for _, uc := range op.outputs {
		uc.conn.Tensor.Producers = append(uc.conn.Tensor.Producers, op)
	}
}

// detach removes op from the producers and consumers of its tensors.
func (op *Operation) detach() {
	isOp := func(other *Operation) bool { return other == op }
	for _, uc := range op.inputs {
		uc.conn.Tensor.Consumers = slices.DeleteFunc(uc.conn.Tensor.Consumers, isOp)
	}
	for _, uc := range op.outputs {
		uc.conn.Tensor.Producers = slices.DeleteFunc(uc.conn.Tensor.Producers, isOp)
	}
}

// IsPrimary returns whether op is the primary operation of a hardware group.
func (op *Operation) IsPrimary() bool { return op.OpGroup != nil }

// String implements fmt.Stringer.
func (op *Operation) String() string {
	if op == nil {
		return "<nil op>"
	}
	var ins, outs []string
	for usage, conn := range op.Inputs() {
		ins = append(ins, fmt.Sprintf("%s=%s", usage, conn.Tensor.Name()))
	}
	for usage, conn := range op.Outputs() {
		outs = append(outs, fmt.Sprintf("%s=%s", usage, conn.Tensor.Name()))
	}
	return fmt.Sprintf("%s(%s) -> (%s)", op.Kind, strings.Join(ins, ", "), strings.Join(outs, ", "))
}
