// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"
	"testing"

	"github.com/gomlx/npucompiler/pkg/arch"
	"github.com/gomlx/npucompiler/pkg/arch/generic"
	"github.com/gomlx/npucompiler/pkg/compiler/rewrite"
	"github.com/gomlx/npucompiler/pkg/core/ir"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

func genericArch() arch.Architecture {
	return must.M1(generic.New(""))
}

// convReluGraph builds: conv -> relu -> identity, where the identity runs in software.
func convReluGraph(name string) *ir.Graph {
	g := ir.NewGraph(name, ir.NotationTFLite)
	shape := ir.MakeShape(1, 8, 8, 8)
	in := g.NewTensor("in", ir.Int8, shape)
	g.AddInput(in)
	t1 := g.NewTensor("t1", ir.Int8, shape)
	t2 := g.NewTensor("t2", ir.Int8, shape)
	out := g.NewTensor("out", ir.Int8, shape)
	g.AddOutput(out)

	weightsShape := ir.MakeShape(8, 3, 3, 8)
	weights := g.NewConstTensor("weights", ir.Int8, weightsShape,
		ir.MakeBuffer(ir.Int8, make([]int8, weightsShape.Elements())...))
	conv := g.NewOperation(ir.OpTypeConv2DBias)
	conv.SetKernel(ir.NewKernel(3, 3).WithPadding(ir.Margin{Top: 1, Left: 1, Bottom: 1, Right: 1}))
	conv.ConnectInput(ir.UsageIFM, in)
	conv.ConnectInput(ir.UsageWeights, weights)
	conv.ConnectOutput(ir.UsageOFM, t1)

	relu := g.NewOperation(ir.OpTypeRelu)
	relu.ConnectInput(ir.UsageIFM, t1)
	relu.ConnectOutput(ir.UsageOFM, t2)

	identity := g.NewOperation(ir.OpTypeIdentity)
	identity.ConnectInput(ir.UsageIFM, t2)
	identity.ConnectOutput(ir.UsageOFM, out)
	return g
}

// transposeGraph builds a transpose with a non-constant permutation, which is malformed.
func transposeGraph() *ir.Graph {
	g := ir.NewGraph("transpose", ir.NotationTOSA)
	in := g.NewTensor("in", ir.Int8, ir.MakeShape(2, 3, 4))
	g.AddInput(in)
	perm := g.NewTensor("perm", ir.Int32, ir.MakeShape(3))
	g.AddInput(perm)
	out := g.NewTensor("out", ir.Int8, ir.MakeShape(2, 4, 3))
	g.AddOutput(out)
	op := g.NewOperation(ir.OpTypeTranspose)
	op.ConnectInput(ir.UsageIFM, in)
	op.ConnectInput(ir.UsageParams, perm)
	op.ConnectOutput(ir.UsageOFM, out)
	return g
}

func TestCompile(t *testing.T) {
	g := convReluGraph("conv")
	conv, relu, identity := g.Operations()[0], g.Operations()[1], g.Operations()[2]
	s, err := Compile(g, genericArch(), Options{RecordOptimisations: true})
	require.NoError(t, err)
	require.Len(t, s.Ops, 2)
	assert.Equal(t, 1, s.NumGroups())
	assert.Equal(t, 1, s.NumChained())
	assert.Equal(t, 1, s.NumSoftware())
	assert.Equal(t, []*ir.Operation{conv, relu, identity}, g.ScheduledOrder())
	assert.NotNil(t, g.OptimisationDB())
	assert.Equal(t, 8*3*3*8, s.ConstantBytes())

	// Chaining disabled: activations are still fused.
	g = convReluGraph("conv")
	s, err = Compile(g, genericArch(), Options{DisableChaining: true})
	require.NoError(t, err)
	require.Len(t, s.Ops, 2)
	assert.Equal(t, 1, s.NumChained())
}

func TestCompileMalformed(t *testing.T) {
	_, err := Compile(transposeGraph(), genericArch(), Options{})
	require.Error(t, err)
	assert.True(t, ir.IsMalformed(err), "unexpected error: %+v", err)
	assert.Contains(t, err.Error(), `compiling graph "transpose"`)

	// Caught by validation: a tensor with two writers.
	g := convReluGraph("two-writers")
	extra := g.NewOperation(ir.OpTypeIdentity)
	extra.ConnectInput(ir.UsageIFM, g.Inputs()[0])
	extra.ConnectOutput(ir.UsageOFM, g.Outputs()[0])
	_, err = Compile(g, genericArch(), Options{})
	require.Error(t, err)
	assert.True(t, ir.IsMalformed(err))
}

func TestCompileInvariantViolation(t *testing.T) {
	// Internal errors are not converted to errors.
	g := ir.NewGraph("kindless", ir.NotationTOSA)
	in := g.NewTensor("in", ir.Int8, ir.MakeShape(1, 4, 4, 4))
	g.AddInput(in)
	out := g.NewTensor("out", ir.Int8, ir.MakeShape(1, 4, 4, 4))
	g.AddOutput(out)
	op := g.NewOperation(ir.OpTypeNone)
	op.ConnectInput(ir.UsageIFM, in)
	op.ConnectOutput(ir.UsageOFM, out)
	assert.Panics(t, func() { _, _ = Compile(g, genericArch(), Options{}) })
}

func TestCompileAll(t *testing.T) {
	for _, parallelism := range []int{0, 3} {
		var graphs []*ir.Graph
		for i := range 6 {
			graphs = append(graphs, convReluGraph(fmt.Sprintf("conv_%d", i)))
		}
		graphs = append(graphs, transposeGraph())
		schedules, err := CompileAll(graphs, genericArch(), Options{}, parallelism)
		require.Error(t, err)
		assert.True(t, ir.IsMalformed(err))
		require.Len(t, schedules, len(graphs))
		for i, s := range schedules[:6] {
			require.NotNilf(t, s, "graph %d", i)
			assert.Equal(t, 1, s.NumGroups())
		}
		assert.Nil(t, schedules[6])
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(" disable_chaining, disable_rule=FuseRescale,disable_rule=RewriteNegate,skip_reorder," +
		"disable_rule=FuseRescale,record_optimisations")
	require.NoError(t, err)
	want := Options{
		DisableChaining:     true,
		DisabledRules:       []string{rewrite.RuleFuseRescale, rewrite.RuleRewriteNegate},
		SkipReorder:         true,
		RecordOptimisations: true,
	}
	assert.Equal(t, want, opts)
	again, err := ParseOptions(opts.String())
	require.NoError(t, err)
	assert.Equal(t, opts, again)
	assert.True(t, opts.SchedulerConfig().DisableChaining)
	assert.True(t, opts.SchedulerConfig().SkipReorder)

	for _, config := range []string{"disable_rule=NoSuchRule", "disable_rule", "skip_reorder=1", "fast"} {
		_, err := ParseOptions(config)
		require.Errorf(t, err, "options %q should fail", config)
	}

	opts, err = ParseOptions("")
	require.NoError(t, err)
	assert.Equal(t, Options{}, opts)
}

func TestDefaultOptions(t *testing.T) {
	t.Setenv(OptionsEnv, "skip_reorder")
	opts, err := DefaultOptions()
	require.NoError(t, err)
	assert.True(t, opts.SkipReorder)

	t.Setenv(OptionsEnv, "unknown")
	_, err = DefaultOptions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), OptionsEnv)
}
