// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package generic implements a table-driven accelerator model, registered as the "generic" architecture.
//
// Its capabilities are described by Capabilities tables, and can be tuned with a configuration string, a
// comma-separated list of options:
//
//   - "max_kernel=N", "max_stride=N", "max_dilation=N": limits of the kernel geometry.
//   - "max_chain=N": maximum number of operations per hardware group, including the primary one.
//   - "disable=<OpType>", "enable=<OpType>": remove or add an operation kind (e.g.: "disable=Sigmoid").
//   - "no_fused_rescale": rescales can't be fused into other operations.
//   - "activations_only": only activations can be chained after a primary operation.
//
// Example: arch.NewWithConfig("generic:max_stride=2,disable=Tanh")
package generic

import (
	"math"
	"strconv"
	"strings"

	"github.com/gomlx/npucompiler/pkg/arch"
	"github.com/gomlx/npucompiler/pkg/core/ir"
	"github.com/pkg/errors"
)

// ArchName is the name under which the generic architecture is registered.
const ArchName = "generic"

func init() {
	arch.Register(ArchName, func(config string) (arch.Architecture, error) {
		return New(config)
	})
}

// Architecture implements arch.Architecture using Capabilities tables.
type Architecture struct {
	caps         Capabilities
	fusedRescale bool
}

// Compile-time check that generic.Architecture implements arch.Architecture.
var _ arch.Architecture = &Architecture{}

// New creates a generic architecture from DefaultCapabilities, modified by the options in config.
func New(config string) (*Architecture, error) {
	a := &Architecture{caps: DefaultCapabilities.Clone(), fusedRescale: true}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if err := a.parseOption(part); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// NewWithCapabilities creates a generic architecture with the given capability tables.
func NewWithCapabilities(caps Capabilities) *Architecture {
	return &Architecture{caps: caps.Clone(), fusedRescale: true}
}

func (a *Architecture) parseOption(option string) error {
	key, value, hasValue := strings.Cut(option, "=")
	switch key {
	case "max_kernel", "max_stride", "max_dilation", "max_chain":
		if !hasValue {
			return errors.Errorf("option %q for %q architecture requires a value", key, ArchName)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return errors.Errorf("invalid value %q for option %q of %q architecture, it must be a positive integer",
				value, key, ArchName)
		}
		switch key {
		case "max_kernel":
			a.caps.MaxKernel = n
		case "max_stride":
			a.caps.MaxStride = n
		case "max_dilation":
			a.caps.MaxDilation = n
		case "max_chain":
			a.caps.MaxChain = n
		}
	case "disable", "enable":
		opType, err := ir.OpTypeString(value)
		if err != nil {
			return errors.Wrapf(err, "invalid operation for option %q of %q architecture", key, ArchName)
		}
		if key == "disable" {
			delete(a.caps.Operations, opType)
			delete(a.caps.Chainable, opType)
		} else {
			a.caps.Operations[opType] = true
		}
	case "no_fused_rescale":
		a.fusedRescale = false
	case "activations_only":
		for opType := range a.caps.Chainable {
			if !opType.IsActivation() {
				delete(a.caps.Chainable, opType)
			}
		}
	default:
		return errors.Errorf("unknown configuration option %q for %q architecture", option, ArchName)
	}
	return nil
}

// Name implements arch.Architecture.
func (a *Architecture) Name() string { return ArchName }

// Capabilities returns a copy of the capability tables in use.
func (a *Architecture) Capabilities() Capabilities { return a.caps.Clone() }

// ReadonlyMemory implements arch.Architecture.
func (a *Architecture) ReadonlyMemory() arch.MemArea { return arch.MemAreaOffChipFlash }

// FeatureMapMemory implements arch.Architecture.
func (a *Architecture) FeatureMapMemory() arch.MemArea { return arch.MemAreaSRAM }

func (a *Architecture) supportsTensor(desc arch.TensorDesc) bool {
	if !a.caps.DTypes[desc.Type] {
		return false
	}
	// No batching: all axes but the inner HWC must be 1.
	for axis := 0; axis < len(desc.Shape)-3; axis++ {
		if desc.Shape[axis] > 1 {
			return false
		}
	}
	return true
}

func (a *Architecture) supportsTensors(q arch.OpGroupQuery) bool {
	if !a.supportsTensor(q.IFM[0]) || !a.supportsTensor(q.OFM) {
		return false
	}
	if q.Inputs > 1 && !a.supportsTensor(q.IFM[1]) {
		return false
	}
	if q.IFM[0].IsReordered || q.IFM[1].IsReordered {
		return false
	}
	// Only memory copies can write a transposed or reversed output.
	return !q.OFM.IsReordered || q.Kind == ir.OpTypeMemoryCopy
}

func (a *Architecture) supportsKernel(kernel *ir.Kernel) bool {
	if kernel == nil {
		return true
	}
	dilated := kernel.DilatedSize()
	switch {
	case dilated.X > a.caps.MaxKernel || dilated.Y > a.caps.MaxKernel:
		return false
	case kernel.Stride.X < 1 || kernel.Stride.Y < 1:
		return false
	case kernel.Stride.X > a.caps.MaxStride || kernel.Stride.Y > a.caps.MaxStride:
		return false
	case kernel.Dilation.X > a.caps.MaxDilation || kernel.Dilation.Y > a.caps.MaxDilation:
		return false
	}
	return true
}

// CreateOpGroup implements arch.Architecture.
func (a *Architecture) CreateOpGroup(q arch.OpGroupQuery) arch.OpGroup {
	if !a.caps.Operations[q.Kind] || !a.supportsTensors(q) || !a.supportsKernel(q.Kernel) {
		return nil
	}
	return &opGroup{arch: a, ops: []arch.OpGroupQuery{q}}
}

// SupportsFusedRescale implements arch.Architecture.
//
// Output rescales are supported for the operations in Capabilities.FusedRescale writing 8 or 16 bits values.
// Input rescales are only supported by elementwise operations and memory copies, with a single 16 bits scale.
func (a *Architecture) SupportsFusedRescale(kind ir.OpType, usage ir.TensorUsage, srcType, dstType ir.DataType,
	q ir.Quantization) bool {
	if !a.fusedRescale || !a.caps.FusedRescale[kind] {
		return false
	}
	if !srcType.IsInteger() || !dstType.IsInteger() {
		return false
	}
	for _, scale := range q.Scales {
		if scale.Shift < 0 || scale.Shift > 63 {
			return false
		}
	}
	switch usage.Kind() {
	case ir.UsageOFM:
		return dstType.SizeBits() <= 16
	case ir.UsageIFM:
		if !kind.IsBinaryElementwise() && kind != ir.OpTypeMemoryCopy {
			return false
		}
		if len(q.Scales) > 1 {
			return false
		}
		for _, scale := range q.Scales {
			if scale.Scale > math.MaxInt16 || scale.Scale < math.MinInt16 {
				return false
			}
		}
		return true
	}
	return false
}

// opGroup is the arch.OpGroup of the generic architecture: a chain of operations, where each chained operation
// reads the output of a previous member from internal buffers.
type opGroup struct {
	arch *Architecture
	ops  []arch.OpGroupQuery
}

// Len implements arch.OpGroup.
func (g *opGroup) Len() int { return len(g.ops) }

// Add implements arch.OpGroup.
func (g *opGroup) Add(q arch.OpGroupQuery, dependsOn ...int) int {
	caps := &g.arch.caps
	if len(g.ops) >= caps.MaxChain || !caps.Chainable[q.Kind] {
		return 0
	}
	if q.Kernel != nil && (q.Kernel.Size != ir.Point2{X: 1, Y: 1} || q.Kernel.Stride != ir.Point2{X: 1, Y: 1}) {
		return 0
	}
	if !g.arch.supportsTensors(q) || q.OFM.IsReordered {
		return 0
	}
	connected := false
	for _, key := range dependsOn {
		if key < 0 || key >= len(g.ops) {
			return 0
		}
		ofm := g.ops[key].OFM.Key
		if ofm == q.IFM[0].Key || (q.Inputs > 1 && ofm == q.IFM[1].Key) {
			connected = true
		}
	}
	if !connected {
		return 0
	}
	g.ops = append(g.ops, q)
	return len(g.ops) - 1
}
