// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"fmt"
	"strings"

	"github.com/gomlx/npucompiler/pkg/core/ir"
)

// Schedule is the result of the scheduler: the list of operations in execution order, where each hardware
// operation group is represented by its primary operation.
type Schedule struct {
	Graph *ir.Graph
	Ops   []*Operation

	// Inputs and Outputs of the graph, as scheduler tensors.
	Inputs, Outputs []*Tensor

	tensors map[*ir.Tensor]*Tensor
}

func newSchedule(g *ir.Graph, ops []*Operation, tensors map[*ir.Tensor]*Tensor) *Schedule {
	s := &Schedule{Graph: g, Ops: ops, tensors: tensors}
	for _, t := range g.Inputs() {
		if st := tensors[t]; st != nil {
			s.Inputs = append(s.Inputs, st)
		}
	}
	for _, t := range g.Outputs() {
		if st := tensors[t]; st != nil {
			s.Outputs = append(s.Outputs, st)
		}
	}
	return s
}

// Tensor returns the scheduler tensor of the graph tensor t, or nil if no scheduled operation uses it.
func (s *Schedule) Tensor(t *ir.Tensor) *Tensor { return s.tensors[t] }

// NumTensors returns the number of scheduler tensors, including those created by the decomposition.
func (s *Schedule) NumTensors() int { return len(s.tensors) }

// NumGroups returns the number of hardware operation groups.
func (s *Schedule) NumGroups() int {
	count := 0
	for _, op := range s.Ops {
		if op.IsPrimary() {
			count++
		}
	}
	return count
}

// NumSoftware returns the number of operations running in software.
func (s *Schedule) NumSoftware() int { return len(s.Ops) - s.NumGroups() }

// NumChained returns the number of operations chained into hardware groups after their primary operation.
func (s *Schedule) NumChained() int {
	count := 0
	for _, op := range s.Ops {
		count += len(op.SubOps)
	}
	return count
}

// Transitions returns the number of switches between hardware and software execution along the schedule.
func (s *Schedule) Transitions() int {
	count := 0
	for i := 1; i < len(s.Ops); i++ {
		if s.Ops[i].IsNPU != s.Ops[i-1].IsNPU {
			count++
		}
	}
	return count
}

// ConstantBytes returns the size of the constant tensors read by the schedule, including those created by the
// scheduler (e.g. reversed weights).
func (s *Schedule) ConstantBytes() int {
	seen := make(map[*Tensor]bool)
	total := 0
	for _, op := range s.Ops {
		for _, member := range append([]*Operation{op}, op.SubOps...) {
			for _, conn := range member.Inputs() {
				if t := conn.Tensor; t.IsConstant() && !seen[t] {
					seen[t] = true
					total += t.Buffer.Size()
				}
			}
		}
	}
	return total
}

// SourceOrder returns the graph operations in the order of the schedule, each listed once: decomposed operations
// and operations chained into a group appear where their first part is scheduled.
func (s *Schedule) SourceOrder() []*ir.Operation {
	seen := make(map[*ir.Operation]bool)
	var order []*ir.Operation
	add := func(op *Operation) {
		if op.Source == nil || seen[op.Source] {
			return
		}
		seen[op.Source] = true
		order = append(order, op.Source)
	}
	for _, op := range s.Ops {
		add(op)
		for _, sub := range op.SubOps {
			add(sub)
		}
	}
	return order
}

// Dump returns one line per scheduled operation, with the chained operations indented below their primary.
func (s *Schedule) Dump() []string {
	var lines []string
	for _, op := range s.Ops {
		where := "SW"
		if op.IsNPU {
			where = "NPU"
		}
		lines = append(lines, fmt.Sprintf("%3d %-3s %s", op.Index, where, op))
		for _, sub := range op.SubOps {
			lines = append(lines, fmt.Sprintf("    +%d  %s", sub.OpGroupKey, sub))
		}
	}
	return lines
}

// String implements fmt.Stringer.
func (s *Schedule) String() string {
	return fmt.Sprintf("Schedule %q: %d operations, %d hardware groups\n%s", s.Graph.Name(), len(s.Ops),
		s.NumGroups(), strings.Join(s.Dump(), "\n"))
}
