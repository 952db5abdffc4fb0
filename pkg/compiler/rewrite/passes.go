// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rewrite

import (
	"github.com/gomlx/npucompiler/pkg/core/ir"
)

// Names of the rules of the default pipeline, to be used with disabled rules options.
const (
	RuleConvertInt48Tensors      = "ConvertInt48Tensors"
	RuleConvertBool8Tensors      = "ConvertBool8Tensors"
	RuleConvertAttributes        = "ConvertAttributes"
	RuleConvertResizeOffsets     = "ConvertResizeOffsets"
	RuleConvertTranspose         = "ConvertTranspose"
	RuleConvertReverse           = "ConvertReverse"
	RuleRemoveReshape            = "RemoveReshape"
	RuleRewriteFullyConnected    = "RewriteFullyConnected"
	RuleFixupPoolStrides         = "FixupPoolStrides"
	RuleRewriteRescale           = "RewriteRescale"
	RuleFuseRescale              = "FuseRescale"
	RuleRewriteTable             = "RewriteTable"
	RuleRewriteCast              = "RewriteCast"
	RuleRewriteConcat            = "RewriteConcat"
	RuleRewriteSlice             = "RewriteSlice"
	RuleRewriteNegate            = "RewriteNegate"
	RuleMoveSplitSliceToConsumer = "MoveSplitSliceToConsumer"
)

// DefaultPasses returns the passes of the default pipeline, in order.
func DefaultPasses() []Pass {
	return []Pass{
		{
			Name: "ConvertTypes",
			TensorRules: []TensorRule{
				{Name: RuleConvertInt48Tensors, Apply: ConvertInt48Tensors},
				{Name: RuleConvertBool8Tensors, Apply: ConvertBool8Tensors},
			},
		},
		{
			Name: "ConvertAttributes",
			OpRules: []OpRule{
				{Name: RuleConvertAttributes, Apply: ConvertAttributes,
					Kinds: []ir.OpType{ir.OpTypeAsr, ir.OpTypeRescale, ir.OpTypeClamp, ir.OpTypeSHL, ir.OpTypeSHR, ir.OpTypeMul}},
				{Name: RuleConvertResizeOffsets, Apply: ConvertResizeOffsets, Kinds: []ir.OpType{ir.OpTypeResize}},
				{Name: RuleConvertTranspose, Apply: ConvertTranspose, Kinds: []ir.OpType{ir.OpTypeTranspose}},
				{Name: RuleConvertReverse, Apply: ConvertReverse, Kinds: []ir.OpType{ir.OpTypeReverse}},
			},
		},
		{
			Name: "RemoveReshape",
			OpRules: []OpRule{
				{Name: RuleRemoveReshape, Apply: RemoveReshape,
					Kinds: []ir.OpType{ir.OpTypeReshape, ir.OpTypeSqueeze, ir.OpTypeExpandDims}},
			},
		},
		{
			Name: "RewriteOperations",
			OpRules: []OpRule{
				{Name: RuleRewriteFullyConnected, Apply: RewriteFullyConnected, Kinds: []ir.OpType{ir.OpTypeFullyConnected}},
				{Name: RuleFixupPoolStrides, Apply: FixupPoolStrides, Kinds: []ir.OpType{ir.OpTypeMaxPool, ir.OpTypeAvgPool}},
				{Name: RuleRewriteRescale, Apply: RewriteRescale, Kinds: []ir.OpType{ir.OpTypeRescale}},
				{Name: RuleFuseRescale, Apply: FuseRescale, Kinds: []ir.OpType{ir.OpTypeRescale}},
				{Name: RuleRewriteTable, Apply: RewriteTable, Kinds: []ir.OpType{ir.OpTypeTable}},
				{Name: RuleRewriteCast, Apply: RewriteCast, Kinds: []ir.OpType{ir.OpTypeCast}},
				{Name: RuleRewriteConcat, Apply: RewriteConcat, Kinds: []ir.OpType{ir.OpTypeConcat}},
				{Name: RuleRewriteSlice, Apply: RewriteSlice, Kinds: []ir.OpType{ir.OpTypeSlice}},
				{Name: RuleRewriteNegate, Apply: RewriteNegate, Kinds: []ir.OpType{ir.OpTypeNeg}},
			},
		},
		{
			Name: "MoveSplitSlice",
			OpRules: []OpRule{
				{Name: RuleMoveSplitSliceToConsumer, Apply: MoveSplitSliceToConsumer, Kinds: []ir.OpType{ir.OpTypeMemoryCopy}},
			},
		},
	}
}

// RuleNames returns the names of all rules in passes, in order.
func RuleNames(passes []Pass) []string {
	var names []string
	for _, pass := range passes {
		for _, rule := range pass.TensorRules {
			names = append(names, rule.Name)
		}
		for _, rule := range pass.OpRules {
			names = append(names, rule.Name)
		}
	}
	return names
}

// requireOFM returns the output connection of op, raising a malformed-graph error if it has none.
func requireOFM(op *ir.Operation) *ir.TensorConnection {
	conn := op.Output(ir.UsageOFM)
	if conn == nil {
		ir.ThrowMalformed("operation %s has no output", op)
	}
	return conn
}

// requireIFM returns the first input connection of op, raising a malformed-graph error if it has none.
func requireIFM(op *ir.Operation) *ir.TensorConnection {
	conn := op.Input(ir.UsageIFM)
	if conn == nil {
		ir.ThrowMalformed("operation %s has no input", op)
	}
	return conn
}

// constValues returns the values of a constant input of op, raising a malformed-graph error if the input
// is not constant.
func constValues(op *ir.Operation, usage ir.TensorUsage) []int64 {
	conn := op.Input(usage)
	if conn == nil {
		return nil
	}
	if !conn.Tensor.IsConstant() {
		ir.ThrowMalformed("operation %s: %s tensor %q must be constant", op, usage, conn.Tensor.Name())
	}
	return conn.Tensor.Buffer().Int64Values(conn.Tensor.Type())
}

// replaceReads makes every input connection of op reading from tensor from read tensor to instead.
func replaceReads(op *ir.Operation, from, to *ir.Tensor) {
	for usage, conn := range op.Inputs() {
		if conn.Tensor == from {
			op.ConnectInput(usage, to)
		}
	}
}

// replaceWrites makes every output connection of op writing tensor from write tensor to instead.
func replaceWrites(op *ir.Operation, from, to *ir.Tensor) {
	for usage, conn := range op.Outputs() {
		if conn.Tensor == from {
			op.ConnectOutput(usage, to)
		}
	}
}

// isConstFilled returns whether t is a constant tensor with all elements equal to value.
func isConstFilled(t *ir.Tensor, value int64) bool {
	if t == nil || !t.IsConstant() {
		return false
	}
	for _, v := range t.Buffer().Int64Values(t.Type()) {
		if v != value {
			return false
		}
	}
	return true
}
