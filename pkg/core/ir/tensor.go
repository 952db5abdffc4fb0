// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
)

// TensorID is the stable handle of a Tensor within its Graph.
type TensorID int32

// UID is a unique id for a tensor, never reused, even across graphs.
type UID uint64

// AxisOrder tags the layout of a tensor's storage, mostly relevant for weights.
type AxisOrder int

const (
	AxisOrderUnknown AxisOrder = iota
	AxisOrderNHWC
	AxisOrderOHWI
	AxisOrderOI
	AxisOrderHWCM
)

// String implements fmt.Stringer.
func (a AxisOrder) String() string {
	switch a {
	case AxisOrderNHWC:
		return "NHWC"
	case AxisOrderOHWI:
		return "OHWI"
	case AxisOrderOI:
		return "OI"
	case AxisOrderHWCM:
		return "HWCM"
	default:
		return "Unknown"
	}
}

// Tensor is a named, typed multidimensional array descriptor.
//
// A tensor is referenced by the connections of the operations that read or write it; it is released from the
// graph arena by the first Graph.Commit after the last such connection goes away, unless it is a graph input or
// output.
// Writers and readers are kept as operation handles, so there are no ownership cycles between tensors and
// operations.
type Tensor struct {
	graph *Graph
	id    TensorID
	uid   UID

	name         string
	dtype        DataType
	storageShape Shape
	axisOrder    AxisOrder
	buffer       *Buffer

	writers, readers []OpID

	// refs counts the connections referencing this tensor.
	refs     int
	released bool

	// Passthrough holds original-format metadata, carried unmodified for re-serialization.
	Passthrough any
}

// ID returns the handle of the tensor in its graph.
func (t *Tensor) ID() TensorID { return t.id }

// UID returns the unique id of the tensor.
func (t *Tensor) UID() UID { return t.uid }

// Graph owning the tensor.
func (t *Tensor) Graph() *Graph { return t.graph }

// Name of the tensor.
func (t *Tensor) Name() string { return t.name }

// SetName changes the name of the tensor.
func (t *Tensor) SetName(name string) { t.name = name }

// Type returns the element type.
func (t *Tensor) Type() DataType { return t.dtype }

// ChangeType changes the element type of a non-constant tensor.
func (t *Tensor) ChangeType(dtype DataType) {
	AssertInvariant(!t.IsConstant(), "ChangeType(%s) on constant tensor %q", dtype, t.name)
	t.dtype = dtype
}

// StorageShape returns the shape of the stored array.
func (t *Tensor) StorageShape() Shape { return t.storageShape }

// Reshape changes the storage shape. For constant tensors the number of elements must not change.
func (t *Tensor) Reshape(shape Shape) {
	if t.IsConstant() {
		AssertInvariant(shape.Elements() == t.storageShape.Elements(),
			"Reshape of constant tensor %q from %s to %s changes the number of elements", t.name, t.storageShape, shape)
	}
	t.storageShape = shape.Clone()
}

// AxisOrder of the storage.
func (t *Tensor) AxisOrder() AxisOrder { return t.axisOrder }

// SetAxisOrder changes the axis order tag.
func (t *Tensor) SetAxisOrder(order AxisOrder) { t.axisOrder = order }

// IsConstant returns whether the tensor has a backing buffer.
func (t *Tensor) IsConstant() bool { return t.buffer != nil }

// Buffer returns the backing buffer of a constant tensor, or nil.
func (t *Tensor) Buffer() *Buffer { return t.buffer }

// Digest returns the digest of the backing buffer, or the zero Digest for non-constant tensors.
func (t *Tensor) Digest() Digest {
	if t.buffer == nil {
		return Digest{}
	}
	return t.buffer.Digest()
}

// SetBuffer replaces the backing buffer, which must hold exactly the elements of the storage shape.
func (t *Tensor) SetBuffer(buffer *Buffer) {
	if buffer != nil {
		if got, want := buffer.Elements(t.dtype), t.storageShape.Elements(); got != want {
			ThrowMalformed("constant tensor %q of shape %s needs %d elements of %s, buffer has %d",
				t.name, t.storageShape, want, t.dtype, got)
		}
	}
	t.buffer = buffer
}

// Writers returns the operations producing this tensor.
func (t *Tensor) Writers() []*Operation { return t.graph.resolveOps(t.writers) }

// Readers returns the operations consuming this tensor.
func (t *Tensor) Readers() []*Operation { return t.graph.resolveOps(t.readers) }

// NumWriters returns the number of producing operations.
func (t *Tensor) NumWriters() int { return len(t.writers) }

// NumReaders returns the number of consuming operations.
func (t *Tensor) NumReaders() int { return len(t.readers) }

// IsReleased returns whether the tensor was dropped from the graph because nothing references it any longer.
func (t *Tensor) IsReleased() bool { return t.released }

// Clone returns a new, unconnected tensor in the same graph with the same name, type, shape, axis order and buffer.
func (t *Tensor) Clone() *Tensor {
	c := t.graph.NewTensor(t.name, t.dtype, t.storageShape)
	c.axisOrder = t.axisOrder
	c.buffer = t.buffer
	c.Passthrough = t.Passthrough
	return c
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil tensor>"
	}
	constant := ""
	if t.IsConstant() {
		constant = fmt.Sprintf(" const:%s", t.buffer.Digest())
	}
	return fmt.Sprintf("%q(%s%s%s)", t.name, t.dtype, t.storageShape, constant)
}

func addHandle(handles []OpID, id OpID) []OpID {
	if slices.Contains(handles, id) {
		return handles
	}
	return append(handles, id)
}

func removeHandle(handles []OpID, id OpID) []OpID {
	return slices.DeleteFunc(handles, func(h OpID) bool { return h == id })
}

func (t *Tensor) addWriter(op *Operation)    { t.writers = addHandle(t.writers, op.id) }
func (t *Tensor) addReader(op *Operation)    { t.readers = addHandle(t.readers, op.id) }
func (t *Tensor) removeWriter(op *Operation) { t.writers = removeHandle(t.writers, op.id) }
func (t *Tensor) removeReader(op *Operation) { t.readers = removeHandle(t.readers, op.id) }

// writtenBySlices returns whether every writer of t writes only a slice of it, as the memory copies of a
// concatenation do.
func (t *Tensor) writtenBySlices() bool {
	for _, writer := range t.Writers() {
		for _, conn := range writer.Outputs() {
			if conn.Tensor == t && conn.Slice.IsEmpty() {
				return false
			}
		}
	}
	return true
}

func (t *Tensor) acquire() {
	AssertInvariant(!t.released, "tensor %q used after being released", t.name)
	t.refs++
}

func (t *Tensor) release() {
	t.refs--
	AssertInvariant(t.refs >= 0, "tensor %q released more times than acquired", t.name)
	if t.refs == 0 {
		// Freed at the next Graph.Commit, if still unreferenced by then.
		t.graph.unreferenced = append(t.graph.unreferenced, t.id)
	}
}
