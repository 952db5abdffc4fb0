// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/gomlx/npucompiler/pkg/support/sets"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Notation of the source format the graph was loaded from. It changes how some operations are interpreted.
type Notation int

const (
	NotationUnknown Notation = iota
	NotationTFLite
	NotationTOSA
	NotationGraphAPI
)

// String implements fmt.Stringer.
func (n Notation) String() string {
	switch n {
	case NotationTFLite:
		return "TFLite"
	case NotationTOSA:
		return "TOSA"
	case NotationGraphAPI:
		return "GraphAPI"
	default:
		return "Unknown"
	}
}

// nextUID is shared by all graphs, so UIDs are never reused.
var nextUID atomic.Uint64

// Graph holds the operations and tensors of a computation, in arenas addressed by OpID and TensorID.
//
// Operations and tensors removed from the graph leave a nil slot behind: handles are never reused, so a stale
// handle simply resolves to nil.
//
// A Graph is not safe for concurrent use.
type Graph struct {
	name     string
	notation Notation
	version  int

	ops     []*Operation
	tensors []*Tensor

	inputs, outputs []*Tensor

	// pending operations were disconnected and are freed on the next Commit.
	pending []OpID

	// unreferenced tensors lost their last connection and are freed on the next Commit if still unused.
	unreferenced []TensorID

	scheduled []OpID
	optDB     *OptimisationDB

	// Passthrough holds original-format metadata, carried unmodified for re-serialization.
	Passthrough any
}

// NewGraph returns an empty graph.
func NewGraph(name string, notation Notation) *Graph {
	return &Graph{name: name, notation: notation}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// Notation of the source format.
func (g *Graph) Notation() Notation { return g.notation }

// Version of the source format.
func (g *Graph) Version() int { return g.version }

// SetVersion sets the version of the source format.
func (g *Graph) SetVersion(version int) { g.version = version }

// NewTensor creates a non-constant tensor in the graph.
func (g *Graph) NewTensor(name string, dtype DataType, shape Shape) *Tensor {
	t := &Tensor{
		graph:        g,
		id:           TensorID(len(g.tensors)),
		uid:          UID(nextUID.Add(1)),
		name:         name,
		dtype:        dtype,
		storageShape: shape.Clone(),
	}
	g.tensors = append(g.tensors, t)
	return t
}

// NewConstTensor creates a constant tensor backed by buffer.
func (g *Graph) NewConstTensor(name string, dtype DataType, shape Shape, buffer *Buffer) *Tensor {
	t := g.NewTensor(name, dtype, shape)
	t.SetBuffer(buffer)
	return t
}

// ConstScalar creates a constant tensor of shape [1] holding value.
func (g *Graph) ConstScalar(name string, dtype DataType, value int64) *Tensor {
	return g.NewConstTensor(name, dtype, MakeShape(1), MakeBuffer(dtype, value))
}

// NewOperation creates an operation without connections.
func (g *Graph) NewOperation(kind OpType) *Operation {
	op := &Operation{graph: g, id: OpID(len(g.ops)), kind: kind}
	g.ops = append(g.ops, op)
	return op
}

// Operation returns the operation for the handle, or nil if it was freed.
func (g *Graph) Operation(id OpID) *Operation {
	if id < 0 || int(id) >= len(g.ops) {
		return nil
	}
	return g.ops[id]
}

// Tensor returns the tensor for the handle, or nil if it was freed.
func (g *Graph) Tensor(id TensorID) *Tensor {
	if id < 0 || int(id) >= len(g.tensors) {
		return nil
	}
	return g.tensors[id]
}

// Operations returns the operations still in the graph, disconnected ones included until the next Commit,
// in creation order.
func (g *Graph) Operations() []*Operation {
	return nonNil(g.ops)
}

// Tensors returns the tensors still in the graph, in creation order.
func (g *Graph) Tensors() []*Tensor {
	return nonNil(g.tensors)
}

// NumOperations returns the number of connected operations in the graph.
func (g *Graph) NumOperations() int {
	count := 0
	for _, op := range g.ops {
		if op != nil && !op.disconnected {
			count++
		}
	}
	return count
}

func nonNil[T any](items []*T) []*T {
	result := make([]*T, 0, len(items))
	for _, item := range items {
		if item != nil {
			result = append(result, item)
		}
	}
	return result
}

func (g *Graph) resolveOps(ids []OpID) []*Operation {
	ops := make([]*Operation, 0, len(ids))
	for _, id := range ids {
		if op := g.Operation(id); op != nil {
			ops = append(ops, op)
		}
	}
	return ops
}

// AddInput appends t to the graph inputs.
func (g *Graph) AddInput(t *Tensor) {
	if !g.IsInput(t) {
		g.inputs = append(g.inputs, t)
	}
}

// AddOutput appends t to the graph outputs.
func (g *Graph) AddOutput(t *Tensor) {
	if !g.IsOutput(t) {
		g.outputs = append(g.outputs, t)
	}
}

// Inputs returns the graph input tensors. The returned slice must not be modified.
func (g *Graph) Inputs() []*Tensor { return g.inputs }

// Outputs returns the graph output tensors. The returned slice must not be modified.
func (g *Graph) Outputs() []*Tensor { return g.outputs }

// IsInput returns whether t is one of the graph inputs.
func (g *Graph) IsInput(t *Tensor) bool { return slices.Contains(g.inputs, t) }

// IsOutput returns whether t is one of the graph outputs.
func (g *Graph) IsOutput(t *Tensor) bool { return slices.Contains(g.outputs, t) }

func (g *Graph) releaseTensor(t *Tensor) {
	if t.released {
		return
	}
	t.released = true
	g.tensors[t.id] = nil
}

// Commit frees the operations disconnected since the last Commit, and the tensors no longer referenced by any
// connection (except graph inputs and outputs).
//
// The rewrite engine commits after each visited operation, so handles held by the traversal stay valid while a
// node is being rewritten.
func (g *Graph) Commit() {
	for _, id := range g.pending {
		op := g.ops[id]
		if op == nil {
			continue
		}
		op.dropConnections()
		g.ops[id] = nil
	}
	g.pending = g.pending[:0]
	for _, id := range g.unreferenced {
		t := g.tensors[id]
		if t == nil || t.refs > 0 || g.IsInput(t) || g.IsOutput(t) {
			continue
		}
		g.releaseTensor(t)
	}
	g.unreferenced = g.unreferenced[:0]
}

// TraverseFromEnd visits the operations that contribute to the given tensors, in execution order: a reverse
// depth-first walk from the tensors through the writers of each operation's inputs, calling visit after all the
// producers of an operation were visited (post-order). Each operation is visited exactly once.
//
// If visit returns false the traversal stops.
func (g *Graph) TraverseFromEnd(tensors []*Tensor, visit func(op *Operation) bool) {
	visited := sets.Make[OpID]()
	stopped := false
	var recursion func(op *Operation)
	recursion = func(op *Operation) {
		if stopped || visited.Has(op.id) {
			return
		}
		visited.Insert(op.id)
		for _, uc := range op.inputs {
			for _, writer := range uc.conn.Tensor.Writers() {
				recursion(writer)
			}
		}
		if !stopped && !visit(op) {
			stopped = true
		}
	}
	for _, t := range tensors {
		for _, writer := range t.Writers() {
			recursion(writer)
		}
	}
}

// ExecutionOrder returns the operations contributing to the graph outputs, in execution order.
func (g *Graph) ExecutionOrder() []*Operation {
	var order []*Operation
	g.TraverseFromEnd(g.outputs, func(op *Operation) bool {
		order = append(order, op)
		return true
	})
	return order
}

// ScheduledOrder returns the operations in the order set by the scheduler, or nil if the graph was not scheduled.
func (g *Graph) ScheduledOrder() []*Operation {
	if g.scheduled == nil {
		return nil
	}
	return g.resolveOps(g.scheduled)
}

// SetScheduledOrder records the order in which operations are executed.
func (g *Graph) SetScheduledOrder(ops []*Operation) {
	g.scheduled = make([]OpID, len(ops))
	for i, op := range ops {
		g.scheduled[i] = op.id
	}
}

// Validate checks the structural invariants of the graph, and returns all the violations found, each wrapping
// ErrMalformedGraph, or nil.
func (g *Graph) Validate() error {
	var err error
	report := func(format string, args ...any) {
		err = multierr.Append(err, errors.Wrapf(ErrMalformedGraph, format, args...))
	}
	for _, t := range g.inputs {
		if t.released {
			report("graph %q input tensor %q was released", g.name, t.name)
		}
	}
	for _, t := range g.outputs {
		if t.released {
			report("graph %q output tensor %q was released", g.name, t.name)
		} else if len(t.writers) == 0 && !t.IsConstant() && !g.IsInput(t) {
			report("graph %q output tensor %q has no writer", g.name, t.name)
		}
	}
	for _, t := range g.tensors {
		if t == nil {
			continue
		}
		if len(t.writers) > 1 && !t.writtenBySlices() {
			report("tensor %q has %d writers", t.name, len(t.writers))
		}
		if t.IsConstant() {
			if got, want := t.buffer.Elements(t.dtype), t.storageShape.Elements(); got != want {
				report("constant tensor %q of shape %s has %d elements in its buffer", t.name, t.storageShape, got)
			}
			if len(t.writers) > 0 {
				report("constant tensor %q is written by %s", t.name, t.Writers()[0])
			}
		}
	}
	for _, op := range g.ops {
		if op == nil || op.disconnected {
			continue
		}
		for _, list := range []connectionList{op.inputs, op.outputs} {
			for _, uc := range list {
				if uc.conn.Tensor.released {
					report("operation %s %s references released tensor %q", op, uc.usage, uc.conn.Tensor.name)
				}
			}
		}
		if op.OFM() == nil && op.kind != OpTypePassthrough {
			report("operation %s has no OFM", op)
		}
	}
	return err
}

// Dump returns one line per operation in execution order, with tensors and operations renumbered by order of
// appearance. Two graphs with the same structure have the same dump, whatever their handles are.
func (g *Graph) Dump() []string {
	tensorNames := make(map[*Tensor]string)
	name := func(t *Tensor) string {
		if n, found := tensorNames[t]; found {
			return n
		}
		n := fmt.Sprintf("t%d", len(tensorNames))
		tensorNames[t] = n
		return n
	}
	for _, t := range g.inputs {
		name(t)
	}
	describe := func(usage TensorUsage, conn *TensorConnection) string {
		var sb strings.Builder
		t := conn.Tensor
		fmt.Fprintf(&sb, "%s=%s:%s%s", usage, name(t), t.dtype, conn.Shape)
		if t.IsConstant() {
			fmt.Fprintf(&sb, "#%s", t.Digest())
		}
		if !conn.Slice.IsEmpty() {
			fmt.Fprintf(&sb, "@%s", conn.Slice)
		}
		if !conn.Quantization.IsUnitScale() {
			fmt.Fprintf(&sb, " %v/%v", conn.Quantization.Scales, conn.Quantization.ZeroPoints)
		}
		if len(conn.Quantization.QuantMin) > 0 || len(conn.Quantization.QuantMax) > 0 {
			fmt.Fprintf(&sb, " clamp%v..%v", conn.Quantization.QuantMin, conn.Quantization.QuantMax)
		}
		if conn.IsReordered() {
			fmt.Fprintf(&sb, " perm%v rev%d", conn.Transpose, conn.Reverse)
		}
		return sb.String()
	}
	var lines []string
	for i, op := range g.ExecutionOrder() {
		var ins, outs []string
		for usage, conn := range op.Inputs() {
			ins = append(ins, describe(usage, conn))
		}
		for usage, conn := range op.Outputs() {
			outs = append(outs, describe(usage, conn))
		}
		kernel := ""
		if op.kernel != nil {
			kernel = " " + op.kernel.String()
		}
		lines = append(lines, fmt.Sprintf("%d: %s(%s) -> (%s)%s", i, op.kind,
			strings.Join(ins, ", "), strings.Join(outs, ", "), kernel))
	}
	return lines
}

// String implements fmt.Stringer.
func (g *Graph) String() string {
	return fmt.Sprintf("Graph %q (%s): %d inputs, %d outputs, %d operations",
		g.name, g.notation, len(g.inputs), len(g.outputs), g.NumOperations())
}
