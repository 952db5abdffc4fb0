// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scheduler converts a rewritten graph into a list of scheduler operations, decomposes the operations the
// hardware can't run as they are, packs chains of operations into hardware operation groups, and reorders the
// operations left to software so there are fewer switches between hardware and software execution.
package scheduler

import (
	"time"

	"github.com/gomlx/npucompiler/pkg/arch"
	"github.com/gomlx/npucompiler/pkg/core/ir"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Config of the Packer.
type Config struct {
	// DisableChaining only allows activations to be chained into hardware operation groups.
	DisableChaining bool

	// SkipReorder keeps the execution order of the graph.
	SkipReorder bool
}

// Packer converts, decomposes, packs and reorders the operations of a graph.
//
// A Packer is used for one graph only.
type Packer struct {
	arch    arch.Architecture
	config  Config
	graph   *ir.Graph
	tensors map[*ir.Tensor]*Tensor
	ops     []*Operation
}

// NewPacker creates a Packer for the given architecture.
func NewPacker(a arch.Architecture, config Config) *Packer {
	return &Packer{arch: a, config: config, tensors: make(map[*ir.Tensor]*Tensor)}
}

// Process converts the operations of the graph, in execution order, to scheduler operations, decomposing those
// that need it; then packs and reorders them.
func (p *Packer) Process(g *ir.Graph) *Schedule {
	start := time.Now()
	p.Convert(g, g.ExecutionOrder())
	converted := len(p.ops)
	p.Pack()
	if !p.config.SkipReorder {
		p.Reorder()
	}
	s := newSchedule(g, p.ops, p.tensors)
	klog.V(1).Infof("scheduler: %d operations converted into %d scheduled operations (%d hardware groups) in %s",
		converted, len(p.ops), s.NumGroups(), time.Since(start))
	return s
}

// Ops returns the current list of scheduled operations.
func (p *Packer) Ops() []*Operation { return p.ops }

// Convert appends the scheduler version of each of the operations of g to the list of operations, decomposing the
// ones that need it.
func (p *Packer) Convert(g *ir.Graph, ops []*ir.Operation) {
	p.graph = g
	for _, op := range ops {
		schedOp := p.makeOperation(op)
		if !NeedsDecompose(p.arch, schedOp) {
			p.ops = append(p.ops, schedOp)
			continue
		}
		schedOp.detach()
		decomposed := Decompose(p.arch, schedOp)
		for _, sub := range decomposed {
			sub.attach()
			if !CanRunOnHardware(p.arch, sub) {
				klog.Warningf("scheduler: %s (part of %s) will run in software", sub, op)
			}
		}
		p.ops = append(p.ops, decomposed...)
	}
}

func (p *Packer) tensor(t *ir.Tensor) *Tensor {
	if st, found := p.tensors[t]; found {
		return st
	}
	st := &Tensor{
		Source:        t,
		UID:           t.UID(),
		EquivalenceID: uuid.New(),
		StorageShape:  ir.PadAxes(t.StorageShape(), 4, 1),
		Type:          t.Type(),
		Buffer:        t.Buffer(),
	}
	if t.IsConstant() {
		st.MemArea = p.arch.ReadonlyMemory()
	} else {
		st.MemArea = p.arch.FeatureMapMemory()
	}
	st.IsGraphInput = p.graph.IsInput(t)
	st.IsGraphOutput = p.graph.IsOutput(t)
	p.tensors[t] = st
	return st
}

func (p *Packer) makeConnection(conn *ir.TensorConnection) *Connection {
	c := &Connection{
		Tensor:       p.tensor(conn.Tensor),
		Shape:        ir.PadAxes(conn.Shape, 4, 1),
		Quantization: conn.Quantization.Clone(),
		Transpose:    conn.Transpose,
		Reverse:      conn.Reverse,
		Resampling:   conn.Resampling,
		StepXY:       ir.Point2{X: 1, Y: 1},
	}
	if !conn.Slice.IsEmpty() {
		c.Slice = ir.TensorSlice{
			Offset: ir.PadAxes(conn.Slice.Offset, 4, 0),
			Shape:  ir.PadAxes(conn.Slice.Shape, 4, 1),
		}
	}
	return c
}

// makeOperation converts op, and adds it to the producers/consumers of its scheduler tensors.
func (p *Packer) makeOperation(op *ir.Operation) *Operation {
	ir.AssertInvariant(op.Kind() != ir.OpTypeNone, "operation %s without kind", op)
	schedOp := newOperation(op.Kind())
	if k := op.Kernel(); k != nil {
		kernel := *k
		schedOp.Kernel = &kernel
	}
	schedOp.Rounding = op.Rounding()
	schedOp.Attr = op.Attr()
	schedOp.Source = op
	for usage, conn := range op.Inputs() {
		schedOp.SetInput(usage, p.makeConnection(conn))
	}
	for usage, conn := range op.Outputs() {
		schedOp.SetOutput(usage, p.makeConnection(conn))
	}
	schedOp.attach()

	if op.Kind().IsBinaryElementwise() {
		ifm0, ifm1, ofm := schedOp.IFM(0), schedOp.IFM(1), schedOp.OFM()
		if ifm0 == nil || ifm1 == nil || ofm == nil {
			ir.ThrowMalformed("binary elementwise operation %s needs two inputs and an output", op)
		}
		switch {
		case ifm0.Tensor.IsConstant() && !ifm1.Tensor.IsConstant():
			schedOp.PrimaryIFM = 1
		case !ifm0.Shape.Equal(ofm.Shape) && ifm1.Shape.Equal(ofm.Shape):
			// Favour the non-broadcast input.
			schedOp.PrimaryIFM = 1
		}
	}
	return schedOp
}

// Pack groups the operations the hardware can run: each becomes the primary operation of a new hardware group,
// and the operations following it are chained into the group as long as CanPack accepts them.
// Chained operations are moved out of the list of operations, into the SubOps of their primary operation.
func (p *Packer) Pack() {
	klog.V(2).Infof("scheduler: packing %d operations", len(p.ops))
	packed := p.ops[:0]
	for cur := 0; cur < len(p.ops); {
		primary := p.ops[cur]
		cur++
		primary.Index = len(packed)
		packed = append(packed, primary)
		if primary.IFM(0) == nil || primary.OFM() == nil {
			continue
		}
		group := p.arch.CreateOpGroup(groupQuery(primary))
		if group == nil {
			continue
		}
		primary.IsNPU = true
		primary.OpGroupKey = 0
		primary.OpGroup = group
		klog.V(2).Infof("scheduler: new hardware group with %s", primary)

		prev, prevKey := primary, 0
		for cur < len(p.ops) {
			next := p.ops[cur]
			key := p.CanPack(primary, prev, next, prevKey)
			if key == 0 {
				break
			}
			next.IsNPU = true
			next.Parent = primary
			next.OpGroupKey = key
			primary.SubOps = append(primary.SubOps, next)
			klog.V(2).Infof("scheduler: chained %s (key %d) after %s (key %d)", next, key, prev, prevKey)
			if next.Kind.IsActivation() {
				// The group writes the output of the activation, with the quantization of the previous operation
				// clamped by the activation.
				prevOFM := prev.OFM()
				nextOFM := next.OFM()
				prevOFM.Tensor = nextOFM.Tensor
				prevOFM.Quantization.QuantMin = nextOFM.Quantization.QuantMin
				prevOFM.Quantization.QuantMax = nextOFM.Quantization.QuantMax
			}
			prev, prevKey = next, key
			cur++
		}
	}
	clear(p.ops[len(packed):])
	p.ops = packed
}

// CanPack returns the key of next in the hardware group of primary if it can be chained after prev (the last
// operation of the group, with key prevKey), or 0 if it can't.
func (p *Packer) CanPack(primary, prev, next *Operation, prevKey int) int {
	prevOFM := prev.OFM().Tensor
	nextIFM, nextOFM := next.PrimaryInput(), next.OFM()
	if nextIFM == nil || nextOFM == nil || nextIFM.Tensor != prevOFM {
		return 0
	}
	isActivation := next.Kind.IsActivation()
	if p.config.DisableChaining && !isActivation {
		return 0
	}
	ir.AssertInvariant(!prevOFM.IsConstant(), "constant tensor %s between chained operations", prevOFM)

	// No chaining across fan-out or fan-in (e.g. concatenations or splits).
	if len(prevOFM.Producers) != 1 || len(prevOFM.Consumers) != 1 {
		return 0
	}
	if primary.OFM().Tensor.IsGraphOutput {
		return 0
	}
	if isActivation && !nextIFM.Quantization.EqualScales(nextOFM.Quantization) &&
		!p.arch.SupportsFusedRescale(next.Kind, ir.UsageOFM, nextIFM.Tensor.Type, nextOFM.Tensor.Type,
			nextOFM.Quantization) {
		return 0
	}
	return primary.OpGroup.Add(groupQuery(next), prevKey)
}
