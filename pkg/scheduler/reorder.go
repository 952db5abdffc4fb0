// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"slices"

	"k8s.io/klog/v2"
)

// Reorder moves the operations running in software so there are fewer switches between hardware and software
// execution, without breaking any data dependency:
//
//   - Software operations reading only constants and graph inputs are moved to the start.
//   - Software operations only writing graph outputs nobody reads are moved to the end.
//   - The remaining software operations are moved past the following hardware operations, for as long as these
//     don't depend on them.
//
// The relative order of the operations within each of the three groups is kept.
func (p *Packer) Reorder() {
	var early, late, others []*Operation
	for _, op := range p.ops {
		switch {
		case !op.IsNPU && readsOnlyGraphInputs(op):
			early = append(early, op)
		case !op.IsNPU && writesOnlyGraphOutputs(op):
			late = append(late, op)
		default:
			others = append(others, op)
		}
	}

	// Bubble software operations towards the end of the list, starting from the last one, so they pile up.
	for i := len(others) - 1; i >= 0; i-- {
		if others[i].IsNPU {
			continue
		}
		for j := i; j < len(others)-1; j++ {
			if !others[j+1].IsNPU || isConnected(others[j], others[j+1]) {
				break
			}
			others[j], others[j+1] = others[j+1], others[j]
		}
	}

	reordered := slices.Concat(early, others, late)
	for i, op := range reordered {
		if klog.V(2).Enabled() && op != p.ops[i] {
			klog.Infof("reorder: position %d is now %s (was %d)", i, op, op.Index)
		}
		op.Index = i
	}
	p.ops = reordered
}

func readsOnlyGraphInputs(op *Operation) bool {
	for _, conn := range op.Inputs() {
		if !conn.Tensor.IsConstant() && !conn.Tensor.IsGraphInput {
			return false
		}
	}
	return true
}

func writesOnlyGraphOutputs(op *Operation) bool {
	for _, conn := range op.Outputs() {
		if !conn.Tensor.IsGraphOutput || len(conn.Tensor.Consumers) > 0 {
			return false
		}
	}
	return true
}

// isConnected returns whether op2 reads a tensor op1 writes, or op1 reads a tensor op2 (or one of the operations
// chained into it) writes.
func isConnected(op1, op2 *Operation) bool {
	for _, out := range op1.Outputs() {
		for _, in := range op2.Inputs() {
			if out.Tensor == in.Tensor {
				return true
			}
		}
		for _, sub := range op2.SubOps {
			for _, in := range sub.Inputs() {
				if out.Tensor == in.Tensor {
					return true
				}
			}
		}
	}
	for _, in := range op1.Inputs() {
		for _, out := range op2.Outputs() {
			if out.Tensor == in.Tensor {
				return true
			}
		}
		for _, sub := range op2.SubOps {
			for _, out := range sub.Outputs() {
				if out.Tensor == in.Tensor {
					return true
				}
			}
		}
	}
	return false
}
