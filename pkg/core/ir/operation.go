// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// OpID is the stable handle of an Operation within its Graph.
type OpID int32

// RoundMode used by the hardware when scaling results.
type RoundMode int

const (
	RoundDoubleRounding RoundMode = iota
	RoundTruncate
	RoundNatural
	RoundTruncateToLower
)

// ReverseType is a bit mask of the axes a connection is reversed along.
type ReverseType int

const (
	ReverseNone ReverseType = 0
	ReverseC    ReverseType = 1 << iota
	ReverseW
	ReverseH
)

// Resampling mode applied when reading a feature map.
type Resampling int

const (
	ResamplingNone Resampling = iota
	ResamplingNearest
	// ResamplingZeros inserts zeros between the input elements, used by transposed convolutions.
	ResamplingZeros
)

// TensorConnection binds a tensor to an operation, with the operation's local view of it.
type TensorConnection struct {
	Tensor *Tensor

	// Shape is the logical shape as seen by the operation.
	Shape        Shape
	Quantization Quantization
	Slice        TensorSlice

	// Transpose is a permutation of the axes, nil means no transposition.
	Transpose  []int
	Reverse    ReverseType
	Resampling Resampling
}

// SliceShape returns the shape of the slice if one is set, otherwise the connection shape.
func (c *TensorConnection) SliceShape() Shape {
	if !c.Slice.Shape.IsEmpty() {
		return c.Slice.Shape
	}
	return c.Shape
}

// SetSlice sets the slice of the connection and returns it, for chaining.
func (c *TensorConnection) SetSlice(slice TensorSlice) *TensorConnection {
	c.Slice = slice.Clone()
	return c
}

// IsReordered returns whether the connection transposes or reverses the tensor.
func (c *TensorConnection) IsReordered() bool {
	return !IsIdentityPermutation(c.Transpose) || c.Reverse != ReverseNone
}

// clone returns a deep copy of the connection (sharing the tensor).
func (c *TensorConnection) clone() *TensorConnection {
	return &TensorConnection{
		Tensor:       c.Tensor,
		Shape:        c.Shape.Clone(),
		Quantization: c.Quantization.Clone(),
		Slice:        c.Slice.Clone(),
		Transpose:    slices.Clone(c.Transpose),
		Reverse:      c.Reverse,
		Resampling:   c.Resampling,
	}
}

// IsIdentityPermutation returns whether perm is nil or leaves every axis in place.
func IsIdentityPermutation(perm []int) bool {
	for i, axis := range perm {
		if axis != i {
			return false
		}
	}
	return true
}

type usageConnection struct {
	usage TensorUsage
	conn  *TensorConnection
}

// connectionList keeps connections in insertion order, so traversals are deterministic.
type connectionList []usageConnection

func (l connectionList) find(usage TensorUsage) int {
	return slices.IndexFunc(l, func(uc usageConnection) bool { return uc.usage == usage })
}

func (l connectionList) get(usage TensorUsage) *TensorConnection {
	if idx := l.find(usage); idx >= 0 {
		return l[idx].conn
	}
	return nil
}

func (l connectionList) references(t *Tensor) bool {
	return slices.ContainsFunc(l, func(uc usageConnection) bool { return uc.conn.Tensor == t })
}

func (l connectionList) all() iter.Seq2[TensorUsage, *TensorConnection] {
	return func(yield func(TensorUsage, *TensorConnection) bool) {
		for _, uc := range l {
			if !yield(uc.usage, uc.conn) {
				return
			}
		}
	}
}

// Operation is a node of the graph: an operation kind with its input and output tensor connections.
//
// Operations are created by Graph.NewOperation and must be removed with Disconnect, which drops them from
// the writer/reader sets of their tensors.
type Operation struct {
	graph *Graph
	id    OpID
	kind  OpType

	inputs, outputs connectionList

	kernel   *Kernel
	rounding RoundMode
	attr     any

	disconnected bool

	// Passthrough holds original-format metadata, carried unmodified for re-serialization.
	Passthrough any
}

// ID returns the handle of the operation in its graph.
func (op *Operation) ID() OpID { return op.id }

// Kind returns the operation kind.
func (op *Operation) Kind() OpType { return op.kind }

// Graph owning the operation.
func (op *Operation) Graph() *Graph { return op.graph }

// IsDisconnected returns whether Disconnect was called on the operation.
func (op *Operation) IsDisconnected() bool { return op.disconnected }

// Kernel returns the kernel of the operation, or nil if it has none.
func (op *Operation) Kernel() *Kernel { return op.kernel }

// SetKernel sets the kernel of the operation.
func (op *Operation) SetKernel(kernel Kernel) { op.kernel = &kernel }

// Rounding mode of the operation.
func (op *Operation) Rounding() RoundMode { return op.rounding }

// SetRounding sets the rounding mode.
func (op *Operation) SetRounding(mode RoundMode) { op.rounding = mode }

// Attr returns the attribute payload of the operation, or nil.
func (op *Operation) Attr() any { return op.attr }

// SetAttr sets the attribute payload, a pointer to one of the *Attr structs.
func (op *Operation) SetAttr(attr any) { op.attr = attr }

// Input returns the input connection for the usage, or nil.
func (op *Operation) Input(usage TensorUsage) *TensorConnection { return op.inputs.get(usage) }

// Output returns the output connection for the usage, or nil.
func (op *Operation) Output(usage TensorUsage) *TensorConnection { return op.outputs.get(usage) }

// Inputs iterates over the input connections in the order they were connected.
func (op *Operation) Inputs() iter.Seq2[TensorUsage, *TensorConnection] { return op.inputs.all() }

// Outputs iterates over the output connections in the order they were connected.
func (op *Operation) Outputs() iter.Seq2[TensorUsage, *TensorConnection] { return op.outputs.all() }

// NumInputs returns the number of input connections.
func (op *Operation) NumInputs() int { return len(op.inputs) }

// IFM returns the tensor of the index-th feature map input, or nil.
func (op *Operation) IFM(index int) *Tensor {
	if conn := op.Input(MakeUsage(UsageIFM, index)); conn != nil {
		return conn.Tensor
	}
	return nil
}

// OFM returns the tensor of the output feature map, or nil.
func (op *Operation) OFM() *Tensor {
	if conn := op.Output(UsageOFM); conn != nil {
		return conn.Tensor
	}
	return nil
}

func (op *Operation) assertConnected() {
	AssertInvariant(!op.disconnected, "operation %s modified after being disconnected", op)
}

// ConnectInput connects tensor to the input usage and returns the connection.
// An existing connection for the usage keeps its quantization, slice and reordering, but takes the
// storage shape of the new tensor.
func (op *Operation) ConnectInput(usage TensorUsage, tensor *Tensor) *TensorConnection {
	op.assertConnected()
	AssertInvariant(!usage.IsOFM(), "ConnectInput(%s) with an output usage", usage)
	conn := op.inputs.get(usage)
	if conn == nil {
		conn = &TensorConnection{}
		op.inputs = append(op.inputs, usageConnection{usage: usage, conn: conn})
	}
	if conn.Tensor != tensor {
		old := conn.Tensor
		conn.Tensor = tensor
		tensor.acquire()
		tensor.addReader(op)
		if old != nil {
			if !op.inputs.references(old) {
				old.removeReader(op)
			}
			old.release()
		}
	}
	conn.Shape = tensor.StorageShape().Clone()
	return conn
}

// ConnectOutput connects tensor to the output usage and returns the connection.
// There is only ever one connection per output usage: a previously connected tensor is replaced.
func (op *Operation) ConnectOutput(usage TensorUsage, tensor *Tensor) *TensorConnection {
	op.assertConnected()
	AssertInvariant(usage.IsOFM(), "ConnectOutput(%s) with an input usage", usage)
	conn := op.outputs.get(usage)
	if conn == nil {
		conn = &TensorConnection{}
		op.outputs = append(op.outputs, usageConnection{usage: usage, conn: conn})
	}
	if conn.Tensor != tensor {
		old := conn.Tensor
		conn.Tensor = tensor
		tensor.acquire()
		tensor.addWriter(op)
		if old != nil {
			if !op.outputs.references(old) {
				old.removeWriter(op)
			}
			old.release()
		}
	}
	conn.Shape = tensor.StorageShape().Clone()
	return conn
}

// CopyInput connects the tensor of conn to the input usage, copying the whole connection view.
func (op *Operation) CopyInput(usage TensorUsage, conn *TensorConnection) *TensorConnection {
	newConn := op.ConnectInput(usage, conn.Tensor)
	*newConn = *conn.clone()
	return newConn
}

// CopyOutput connects the tensor of conn to the output usage, copying the whole connection view.
func (op *Operation) CopyOutput(usage TensorUsage, conn *TensorConnection) *TensorConnection {
	newConn := op.ConnectOutput(usage, conn.Tensor)
	*newConn = *conn.clone()
	return newConn
}

// DisconnectInput removes the input connection for the usage, if any.
func (op *Operation) DisconnectInput(usage TensorUsage) {
	op.assertConnected()
	idx := op.inputs.find(usage)
	if idx < 0 {
		return
	}
	tensor := op.inputs[idx].conn.Tensor
	op.inputs = slices.Delete(op.inputs, idx, idx+1)
	if !op.inputs.references(tensor) {
		tensor.removeReader(op)
	}
	tensor.release()
}

// Disconnect removes the operation from the writer and reader sets of all its tensors.
//
// The operation keeps its connections, so it can still be inspected, until the graph commits the change (see
// Graph.Commit), at which point its connections are dropped and it is removed from the graph.
func (op *Operation) Disconnect() {
	if op.disconnected {
		return
	}
	for _, uc := range op.inputs {
		uc.conn.Tensor.removeReader(op)
	}
	for _, uc := range op.outputs {
		uc.conn.Tensor.removeWriter(op)
	}
	op.disconnected = true
	op.graph.pending = append(op.graph.pending, op.id)
}

// dropConnections releases all tensors referenced by a disconnected operation.
func (op *Operation) dropConnections() {
	for _, list := range []connectionList{op.inputs, op.outputs} {
		for _, uc := range list {
			uc.conn.Tensor.release()
		}
	}
	op.inputs, op.outputs = nil, nil
}

// ReplaceOperation moves all connections, kernel, rounding and attributes of old to replacement, and disconnects old.
func ReplaceOperation(old, replacement *Operation) {
	for usage, conn := range old.Inputs() {
		replacement.CopyInput(usage, conn)
	}
	for usage, conn := range old.Outputs() {
		replacement.CopyOutput(usage, conn)
	}
	if old.kernel != nil && replacement.kernel == nil {
		replacement.SetKernel(*old.kernel)
	}
	if replacement.attr == nil {
		replacement.attr = old.attr
	}
	replacement.rounding = old.rounding
	old.Disconnect()
}

// String implements fmt.Stringer.
func (op *Operation) String() string {
	if op == nil {
		return "<nil op>"
	}
	var parts []string
	for usage, conn := range op.Inputs() {
		parts = append(parts, fmt.Sprintf("%s=%s", usage, conn.Tensor.Name()))
	}
	var outs []string
	for usage, conn := range op.Outputs() {
		outs = append(outs, fmt.Sprintf("%s=%s", usage, conn.Tensor.Name()))
	}
	return fmt.Sprintf("%s#%d(%s)->(%s)", op.kind, op.id, strings.Join(parts, ", "), strings.Join(outs, ", "))
}
