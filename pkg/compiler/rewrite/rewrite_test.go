// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rewrite

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/npucompiler/pkg/arch"
	"github.com/gomlx/npucompiler/pkg/arch/generic"
	"github.com/gomlx/npucompiler/pkg/core/ir"
	"github.com/google/go-cmp/cmp"
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

// runDefault runs the default passes over g and checks the result is a valid graph.
func runDefault(t *testing.T, g *ir.Graph) *Rewriter {
	r := New(genericArch(), DefaultPasses())
	r.Run(g)
	require.NoError(t, g.Validate())
	return r
}

// runRules runs a single pass with the given operation rules.
func runRules(g *ir.Graph, rules ...OpRule) *Rewriter {
	r := New(genericArch(), []Pass{{Name: "test", OpRules: rules}})
	r.Run(g)
	return r
}

func unary(g *ir.Graph, kind ir.OpType, in, out *ir.Tensor) *ir.Operation {
	op := g.NewOperation(kind)
	op.ConnectInput(ir.UsageIFM, in)
	op.ConnectOutput(ir.UsageOFM, out)
	return op
}

func binary(g *ir.Graph, kind ir.OpType, in0, in1, out *ir.Tensor) *ir.Operation {
	op := g.NewOperation(kind)
	op.ConnectInput(ir.UsageIFM0, in0)
	op.ConnectInput(ir.UsageIFM1, in1)
	op.ConnectOutput(ir.UsageOFM, out)
	return op
}

func kinds(ops []*ir.Operation) []ir.OpType {
	result := make([]ir.OpType, len(ops))
	for i, op := range ops {
		result[i] = op.Kind()
	}
	return result
}

// addRescaleParams connects the multipliers and shifts of a per-tensor rescale.
func addRescaleParams(g *ir.Graph, rescale *ir.Operation, multiplier, shift int64) {
	rescale.ConnectInput(ir.UsageParams, g.ConstScalar("multiplier", ir.Int32, multiplier))
	rescale.ConnectInput(ir.UsageParams1, g.ConstScalar("shift", ir.Int8, shift))
}

func TestIdempotence(t *testing.T) {
	g := ir.NewGraph("pipeline", ir.NotationTOSA)
	shape := ir.MakeShape(1, 4, 4, 8)
	in := g.NewTensor("in", ir.Int8, shape)
	g.AddInput(in)
	out := g.NewTensor("out", ir.Int8, ir.MakeShape(1, 16, 8))
	g.AddOutput(out)

	a := g.NewTensor("a", ir.Int8, shape)
	unary(g, ir.OpTypeNeg, in, a)
	half := ir.MakeShape(1, 2, 4, 8)
	b := g.NewTensor("b", ir.Int8, half)
	unary(g, ir.OpTypeSlice, a, b).SetAttr(&ir.SliceAttr{Begin: ir.Shape{0, 0, 0, 0}, Size: half})
	c := g.NewTensor("c", ir.Int8, half)
	unary(g, ir.OpTypeSlice, a, c).SetAttr(&ir.SliceAttr{Begin: ir.Shape{0, 2, 0, 0}, Size: half})
	d := g.NewTensor("d", ir.Int8, shape)
	binary(g, ir.OpTypeConcat, b, c, d).SetAttr(&ir.ConcatAttr{Axis: 1})
	e := g.NewTensor("e", ir.Int16, shape)
	unary(g, ir.OpTypeCast, d, e)
	f := g.NewTensor("f", ir.Int8, shape)
	rescale := unary(g, ir.OpTypeRescale, e, f)
	addRescaleParams(g, rescale, 12345, 20)
	unary(g, ir.OpTypeReshape, f, out)
	require.NoError(t, g.Validate())

	r := runDefault(t, g)
	first := g.Dump()
	require.Equal(t, []ir.OpType{ir.OpTypeSub, ir.OpTypeMemoryCopy, ir.OpTypeMemoryCopy, ir.OpTypeAdd},
		kinds(g.ExecutionOrder()), "graph:\n%s", first)
	assert.Equal(t, 1, r.Applied()[RuleFuseRescale])
	assert.Equal(t, 2, r.Applied()[RuleMoveSplitSliceToConsumer])

	// The add writes the graph output, with the rescale applied.
	add := g.ExecutionOrder()[3]
	require.Equal(t, out, add.OFM())
	assert.Equal(t, []ir.QuantizedScale{{Scale: 12345, Shift: 20}}, add.Output(ir.UsageOFM).Quantization.Scales)

	// The copies read the slices of the negated input directly.
	for i, op := range g.ExecutionOrder()[1:3] {
		conn := op.Input(ir.UsageIFM)
		require.Equal(t, "a", conn.Tensor.Name())
		assert.Equal(t, ir.Shape{0, 2 * i, 0, 0}, conn.Slice.Offset)
		assert.Equal(t, ir.Shape{0, 2 * i, 0, 0}, op.Output(ir.UsageOFM).Slice.Offset)
	}

	runDefault(t, g)
	if diff := cmp.Diff(first, g.Dump()); diff != "" {
		t.Fatalf("second run of the passes changed the graph (-first +second):\n%s", diff)
	}
}

func TestRescaleCollapse(t *testing.T) {
	g := ir.NewGraph("rescale", ir.NotationTOSA)
	in := g.NewTensor("in", ir.Int8, ir.MakeShape(1, 8, 8, 4))
	g.AddInput(in)
	out := g.NewTensor("out", ir.Int8, ir.MakeShape(1, 8, 8, 4))
	g.AddOutput(out)
	acc := g.NewTensor("acc", ir.Int32, ir.MakeShape(1, 8, 8, 4))
	weights := g.NewConstTensor("w", ir.Int8, ir.MakeShape(4, 3, 3, 4), ir.MakeBuffer(ir.Int8, make([]int8, 144)...))
	conv := unary(g, ir.OpTypeConv2DBias, in, acc)
	conv.ConnectInput(ir.UsageWeights, weights)
	conv.SetKernel(ir.NewKernel(3, 3).WithPadding(ir.Margin{Top: 1, Left: 1, Bottom: 1, Right: 1}))
	rescale := unary(g, ir.OpTypeRescale, acc, out)
	rescale.SetAttr(&ir.RescaleAttr{DoubleRound: true})
	addRescaleParams(g, rescale, 12345, 20)
	g.AttachOptimisationDB(ir.NewOptimisationDB())

	before := g.NumOperations()
	runDefault(t, g)
	require.Equal(t, before-1, g.NumOperations())
	require.Equal(t, []*ir.Operation{conv}, g.ExecutionOrder())
	assert.Equal(t, out, conv.OFM())
	assert.Equal(t, []ir.QuantizedScale{{Scale: 12345, Shift: 20}}, conv.Output(ir.UsageOFM).Quantization.Scales)
	assert.True(t, acc.IsReleased())

	var rules []string
	for _, record := range g.OptimisationDB().Records() {
		rules = append(rules, record.Rule)
	}
	assert.Contains(t, rules, RuleFuseRescale)
}

func TestRescaleIntoConsumer(t *testing.T) {
	g := ir.NewGraph("rescale_consumer", ir.NotationTOSA)
	shape := ir.MakeShape(1, 4, 4, 8)
	in := g.NewTensor("in", ir.Int8, shape)
	other := g.NewTensor("other", ir.Int8, shape)
	g.AddInput(in)
	g.AddInput(other)
	mid := g.NewTensor("mid", ir.Int8, shape)
	out := g.NewTensor("out", ir.Int8, shape)
	g.AddOutput(out)
	rescale := unary(g, ir.OpTypeRescale, in, mid)
	addRescaleParams(g, rescale, 6, 1)
	add := binary(g, ir.OpTypeAdd, mid, other, out)

	runDefault(t, g)
	require.Equal(t, []*ir.Operation{add}, g.ExecutionOrder())
	conn := add.Input(ir.UsageIFM0)
	require.Equal(t, in, conn.Tensor)
	// 6 >> 1 is exact, so the shift is folded into the multiplier.
	assert.Equal(t, []ir.QuantizedScale{{Scale: 3, Shift: 0}}, conn.Quantization.Scales)

	// Not supported by the architecture: the rescale stays, with its parameters moved into the quantization.
	g = ir.NewGraph("rescale_kept", ir.NotationTOSA)
	in = g.NewTensor("in", ir.Int8, shape)
	g.AddInput(in)
	out = g.NewTensor("out", ir.Int8, shape)
	g.AddOutput(out)
	mid = g.NewTensor("mid", ir.Int8, shape)
	rescale = unary(g, ir.OpTypeRescale, in, mid)
	addRescaleParams(g, rescale, 1<<20, 21)
	unary(g, ir.OpTypeMaxPool, mid, out).SetKernel(ir.NewKernel(1, 1))
	runDefault(t, g)
	require.Equal(t, []ir.OpType{ir.OpTypeRescale, ir.OpTypeMaxPool}, kinds(g.ExecutionOrder()))
	assert.Nil(t, rescale.Input(ir.UsageParams))
	assert.Equal(t, []ir.QuantizedScale{{Scale: 1 << 20, Shift: 21}}, rescale.Output(ir.UsageOFM).Quantization.Scales)
	assert.Equal(t, ir.RoundNatural, rescale.Rounding())

	// A consumer reading the rescaled tensor twice: both inputs take the scales.
	g = ir.NewGraph("rescale_twice", ir.NotationTOSA)
	in = g.NewTensor("in", ir.Int8, shape)
	g.AddInput(in)
	out = g.NewTensor("out", ir.Int8, shape)
	g.AddOutput(out)
	mid = g.NewTensor("mid", ir.Int8, shape)
	rescale = unary(g, ir.OpTypeRescale, in, mid)
	addRescaleParams(g, rescale, 6, 1)
	add = binary(g, ir.OpTypeAdd, mid, mid, out)
	runDefault(t, g)
	require.Equal(t, []*ir.Operation{add}, g.ExecutionOrder())
	for _, usage := range []ir.TensorUsage{ir.UsageIFM0, ir.UsageIFM1} {
		conn := add.Input(usage)
		require.Equal(t, in, conn.Tensor, "input %s", usage)
		assert.Equal(t, []ir.QuantizedScale{{Scale: 3, Shift: 0}}, conn.Quantization.Scales, "input %s", usage)
	}

	// Only one of the two inputs can take the scales: the rescale is kept, and both inputs still read it.
	g = ir.NewGraph("rescale_twice_kept", ir.NotationTOSA)
	in = g.NewTensor("in", ir.Int8, shape)
	g.AddInput(in)
	out = g.NewTensor("out", ir.Int8, shape)
	g.AddOutput(out)
	mid = g.NewTensor("mid", ir.Int8, shape)
	rescale = unary(g, ir.OpTypeRescale, in, mid)
	addRescaleParams(g, rescale, 6, 1)
	add = binary(g, ir.OpTypeAdd, mid, mid, out)
	add.Input(ir.UsageIFM1).Quantization.Scales = []ir.QuantizedScale{{Scale: 2}}
	runDefault(t, g)
	require.Equal(t, []ir.OpType{ir.OpTypeRescale, ir.OpTypeAdd}, kinds(g.ExecutionOrder()))
	assert.Equal(t, mid, add.Input(ir.UsageIFM0).Tensor)
	assert.Equal(t, mid, add.Input(ir.UsageIFM1).Tensor)
	assert.Equal(t, 1, mid.NumWriters())
}

func TestFullyConnected(t *testing.T) {
	build := func(batch int) (*ir.Graph, *ir.Operation, *ir.Tensor) {
		g := ir.NewGraph("fc", ir.NotationTFLite)
		in := g.NewTensor("in", ir.Int8, ir.MakeShape(batch, 1, 1, 16))
		g.AddInput(in)
		out := g.NewTensor("out", ir.Int8, ir.MakeShape(batch, 4))
		g.AddOutput(out)
		weights := g.NewConstTensor("w", ir.Int8, ir.MakeShape(4, 16), ir.MakeBuffer(ir.Int8, make([]int8, 64)...))
		weights.SetAxisOrder(ir.AxisOrderOI)
		fc := unary(g, ir.OpTypeFullyConnected, in, out)
		fc.ConnectInput(ir.UsageWeights, weights)
		return g, fc, weights
	}

	// Batch of 8: a 2x4 tile, small enough to stay a fully-connected operation.
	g, fc, weights := build(8)
	runDefault(t, g)
	require.Equal(t, []*ir.Operation{fc}, g.ExecutionOrder())
	assert.Equal(t, ir.Shape{1, 2, 4, 16}, fc.Input(ir.UsageIFM).Shape)
	assert.Equal(t, ir.Shape{1, 2, 4, 4}, fc.Output(ir.UsageOFM).Shape)
	assert.Equal(t, ir.Shape{4, 1, 1, 16}, weights.StorageShape())
	assert.Equal(t, ir.Shape{4, 1, 1, 16}, fc.Input(ir.UsageWeights).Shape)
	assert.Equal(t, ir.AxisOrderOHWI, weights.AxisOrder())

	// Batch of 64: an 8x8 tile, run as a convolution.
	g, _, weights = build(64)
	runDefault(t, g)
	order := g.ExecutionOrder()
	require.Len(t, order, 1)
	conv := order[0]
	require.Equal(t, ir.OpTypeConv2DBias, conv.Kind())
	assert.Equal(t, ir.Shape{1, 8, 8, 16}, conv.Input(ir.UsageIFM).Shape)
	assert.Equal(t, ir.Shape{1, 8, 8, 4}, conv.Output(ir.UsageOFM).Shape)
	assert.Equal(t, weights, conv.Input(ir.UsageWeights).Tensor)
	assert.Equal(t, ir.RoundDoubleRounding, conv.Rounding())
	require.NotNil(t, conv.Kernel())
	assert.Equal(t, ir.Point2{X: 1, Y: 1}, conv.Kernel().Size)

	// Input that is not a flat batch of vectors: [2, 2, 8] holds 2 vectors of the 16 inputs of the weights.
	g = ir.NewGraph("fc_unflat", ir.NotationTFLite)
	in := g.NewTensor("in", ir.Int8, ir.MakeShape(2, 2, 8))
	g.AddInput(in)
	out := g.NewTensor("out", ir.Int8, ir.MakeShape(2, 4))
	g.AddOutput(out)
	weights = g.NewConstTensor("w", ir.Int8, ir.MakeShape(4, 16), ir.MakeBuffer(ir.Int8, make([]int8, 64)...))
	weights.SetAxisOrder(ir.AxisOrderOI)
	fc = unary(g, ir.OpTypeFullyConnected, in, out)
	fc.ConnectInput(ir.UsageWeights, weights)
	runDefault(t, g)
	require.Equal(t, []*ir.Operation{fc}, g.ExecutionOrder())
	assert.Equal(t, ir.Shape{1, 1, 2, 16}, fc.Input(ir.UsageIFM).Shape)
	assert.Equal(t, ir.Shape{1, 1, 2, 4}, fc.Output(ir.UsageOFM).Shape)

	// The input elements must be a multiple of the weights' inputs.
	g = ir.NewGraph("fc_malformed", ir.NotationTFLite)
	in = g.NewTensor("in", ir.Int8, ir.MakeShape(1, 3, 3, 2))
	g.AddInput(in)
	out = g.NewTensor("out", ir.Int8, ir.MakeShape(1, 4))
	g.AddOutput(out)
	weights = g.NewConstTensor("w", ir.Int8, ir.MakeShape(4, 16), ir.MakeBuffer(ir.Int8, make([]int8, 64)...))
	weights.SetAxisOrder(ir.AxisOrderOI)
	fc = unary(g, ir.OpTypeFullyConnected, in, out)
	fc.ConnectInput(ir.UsageWeights, weights)
	err := exceptions.TryCatch[error](func() { New(genericArch(), DefaultPasses()).Run(g) })
	require.Error(t, err)
	assert.True(t, ir.IsMalformed(err), "unexpected error: %+v", err)

	for n, want := range map[int][2]int{1: {1, 1}, 8: {2, 4}, 12: {3, 4}, 64: {8, 8}, 7: {1, 7}, 600: {15, 40}} {
		h, w := batchTile(n)
		assert.Equal(t, want, [2]int{h, w}, "batchTile(%d)", n)
	}
}

func TestConcat(t *testing.T) {
	g := ir.NewGraph("concat", ir.NotationTFLite)
	var inputs []*ir.Tensor
	concat := g.NewOperation(ir.OpTypeConcat)
	for i, depth := range []int{3, 5, 1} {
		in := g.NewTensor("in", ir.Int8, ir.MakeShape(1, 2, 2, depth))
		g.AddInput(in)
		inputs = append(inputs, in)
		concat.ConnectInput(ir.MakeUsage(ir.UsageIFM, i), in)
	}
	out := g.NewTensor("out", ir.Int8, ir.MakeShape(1, 2, 2, 9))
	g.AddOutput(out)
	concat.ConnectOutput(ir.UsageOFM, out)
	concat.SetAttr(&ir.ConcatAttr{Axis: -1})

	runDefault(t, g)
	copies := out.Writers()
	require.Len(t, copies, 3)
	for i, want := range []int{0, 3, 8} {
		assert.Equal(t, ir.OpTypeMemoryCopy, copies[i].Kind())
		assert.Equal(t, inputs[i], copies[i].IFM(0))
		slice := copies[i].Output(ir.UsageOFM).Slice
		assert.Equal(t, ir.Shape{0, 0, 0, want}, slice.Offset)
		assert.Equal(t, inputs[i].StorageShape(), slice.Shape)
	}
}

func TestBool8(t *testing.T) {
	g := ir.NewGraph("bool", ir.NotationTOSA)
	shape := ir.MakeShape(1, 2, 2, 1)
	in := g.NewTensor("in", ir.Bool8, shape)
	g.AddInput(in)
	out := g.NewTensor("out", ir.Bool8, shape)
	g.AddOutput(out)
	mask := g.NewConstTensor("mask", ir.Bool8, shape, ir.MakeBuffer(ir.Bool8, 1, 0, 1, 1))
	and := binary(g, ir.OpTypeAnd, in, mask, out)
	acc := g.NewTensor("acc", ir.Int48, shape)
	g.AddOutput(acc)
	unary(g, ir.OpTypeCast, in, acc)

	runDefault(t, g)
	assert.Equal(t, []int64{-1, 0, -1, -1}, mask.Buffer().Int64Values(ir.Bool8))
	assert.Equal(t, ir.Int64, acc.Type())

	// Graph input: converted once, shared by all readers.
	readers := in.Readers()
	require.Len(t, readers, 1)
	assert.Equal(t, ir.OpTypeNotEqual, readers[0].Kind())
	internalIn := readers[0].OFM()
	assert.Equal(t, "in_int8", internalIn.Name())
	assert.Equal(t, internalIn, and.IFM(0))

	// Graph output: the And writes an internal tensor, converted back to 0/1.
	writers := out.Writers()
	require.Len(t, writers, 1)
	assert.Equal(t, ir.OpTypeAnd, writers[0].Kind())
	assert.Equal(t, "out_int8", and.OFM().Name())
	assert.Equal(t, and.OFM(), writers[0].IFM(0))

	first := g.Dump()
	runDefault(t, g)
	if diff := cmp.Diff(first, g.Dump()); diff != "" {
		t.Fatalf("second run of the passes changed the graph (-first +second):\n%s", diff)
	}
}

func TestTranspose(t *testing.T) {
	build := func(perm []int, params bool) *ir.Graph {
		g := ir.NewGraph("transpose", ir.NotationTOSA)
		dims := make([]int, len(perm))
		for i := range dims {
			dims[i] = i + 2
		}
		in := g.NewTensor("in", ir.Int8, ir.MakeShape(dims...))
		g.AddInput(in)
		out := g.NewTensor("out", ir.Int8, in.StorageShape())
		g.AddOutput(out)
		op := unary(g, ir.OpTypeTranspose, in, out)
		if params {
			// A non-constant permutation.
			permTensor := g.NewTensor("perm", ir.Int32, ir.MakeShape(len(perm)))
			g.AddInput(permTensor)
			op.ConnectInput(ir.UsageParams, permTensor)
		} else {
			op.SetAttr(&ir.TransposeAttr{Perm: perm})
		}
		return g
	}

	g := build([]int{0, 2, 1}, false)
	runDefault(t, g)
	order := g.ExecutionOrder()
	require.Len(t, order, 1)
	require.Equal(t, ir.OpTypeMemoryCopy, order[0].Kind())
	assert.Equal(t, []int{0, 1, 3, 2}, order[0].Output(ir.UsageOFM).Transpose)

	for name, g := range map[string]*ir.Graph{
		"non-constant": build([]int{0, 2, 1}, true),
		"too-long":     build([]int{0, 1, 2, 4, 3}, false),
		"invalid":      build([]int{0, 1, 1}, false),
	} {
		err := exceptions.TryCatch[error](func() { New(genericArch(), DefaultPasses()).Run(g) })
		require.Errorf(t, err, "%s permutation should fail", name)
		assert.Truef(t, ir.IsMalformed(err), "%s: %v", name, err)
	}
}

func TestReverse(t *testing.T) {
	g := ir.NewGraph("reverse", ir.NotationTOSA)
	shape := ir.MakeShape(2, 4, 4, 8)
	in := g.NewTensor("in", ir.Int8, shape)
	g.AddInput(in)
	mid := g.NewTensor("mid", ir.Int8, shape)
	out := g.NewTensor("out", ir.Int8, shape)
	g.AddOutput(out)
	byWidth := unary(g, ir.OpTypeReverse, in, mid)
	byWidth.ConnectInput(ir.UsageParams, g.ConstScalar("axis", ir.Int32, -2))
	byBatch := unary(g, ir.OpTypeReverse, mid, out)
	byBatch.SetAttr(&ir.ReverseAttr{Axis: 0})

	runDefault(t, g)
	order := g.ExecutionOrder()
	require.Equal(t, []ir.OpType{ir.OpTypeMemoryCopy, ir.OpTypeReverse}, kinds(order))
	assert.Equal(t, ir.ReverseW, order[0].Output(ir.UsageOFM).Reverse)
	assert.Equal(t, byBatch, order[1])
}

func TestRemoveReshape(t *testing.T) {
	g := ir.NewGraph("reshape", ir.NotationTFLite)
	in := g.NewTensor("in", ir.Int8, ir.MakeShape(1, 4, 4, 8))
	g.AddInput(in)
	mid := g.NewTensor("mid", ir.Int8, ir.MakeShape(1, 4, 4, 8))
	reshaped := g.NewTensor("reshaped", ir.Int8, ir.MakeShape(1, 16, 8))
	out := g.NewTensor("out", ir.Int8, ir.MakeShape(1, 16, 8))
	g.AddOutput(out)
	relu := unary(g, ir.OpTypeRelu, in, mid)
	unary(g, ir.OpTypeReshape, mid, reshaped)
	sigmoid := unary(g, ir.OpTypeSigmoid, reshaped, out)

	runDefault(t, g)
	require.Equal(t, []*ir.Operation{relu, sigmoid}, g.ExecutionOrder())
	assert.Equal(t, mid, sigmoid.IFM(0))
	assert.Equal(t, ir.Shape{1, 16, 8}, mid.StorageShape())
	assert.Equal(t, ir.Shape{1, 16, 8}, sigmoid.Input(ir.UsageIFM).Shape)
	assert.True(t, reshaped.IsReleased())

	// With a fan-out of different shapes, a copy is needed.
	g = ir.NewGraph("reshape_fanout", ir.NotationTFLite)
	in = g.NewTensor("in", ir.Int8, ir.MakeShape(1, 4, 4, 8))
	g.AddInput(in)
	mid = g.NewTensor("mid", ir.Int8, ir.MakeShape(1, 4, 4, 8))
	reshaped = g.NewTensor("reshaped", ir.Int8, ir.MakeShape(1, 16, 8))
	out = g.NewTensor("out", ir.Int8, ir.MakeShape(1, 16, 8))
	out2 := g.NewTensor("out2", ir.Int8, ir.MakeShape(1, 4, 4, 8))
	g.AddOutput(out)
	g.AddOutput(out2)
	unary(g, ir.OpTypeRelu, in, mid)
	unary(g, ir.OpTypeReshape, mid, reshaped)
	unary(g, ir.OpTypeSigmoid, reshaped, out)
	unary(g, ir.OpTypeTanh, mid, out2)

	runDefault(t, g)
	writers := reshaped.Writers()
	require.Len(t, writers, 1)
	assert.Equal(t, ir.OpTypeMemoryCopy, writers[0].Kind())
	assert.Equal(t, ir.Shape{1, 16, 8}, writers[0].Input(ir.UsageIFM).Shape)
	assert.Equal(t, ir.Shape{1, 4, 4, 8}, mid.StorageShape())

	// Reshaping a graph input straight into a graph output.
	g = ir.NewGraph("reshape_io", ir.NotationTFLite)
	in = g.NewTensor("in", ir.Int8, ir.MakeShape(2, 8))
	g.AddInput(in)
	out = g.NewTensor("out", ir.Int8, ir.MakeShape(16))
	g.AddOutput(out)
	unary(g, ir.OpTypeSqueeze, in, out)
	runDefault(t, g)
	require.Equal(t, []ir.OpType{ir.OpTypeMemoryCopy}, kinds(g.ExecutionOrder()))
	assert.Equal(t, ir.Shape{2, 8}, in.StorageShape())
}

func TestRewriteTable(t *testing.T) {
	g := ir.NewGraph("table", ir.NotationTOSA)
	shape := ir.MakeShape(1, 4, 4, 2)
	in := g.NewTensor("in", ir.Int16, shape)
	g.AddInput(in)
	out := g.NewTensor("out", ir.Int16, shape)
	g.AddOutput(out)
	values := make([]int16, 513)
	for i := range values {
		values[i] = int16(3 * i)
	}
	table := unary(g, ir.OpTypeTable, in, out)
	table.ConnectInput(ir.UsageParams, g.NewConstTensor("table", ir.Int16, ir.MakeShape(513), ir.MakeBuffer(ir.Int16, values...)))

	runDefault(t, g)
	order := g.ExecutionOrder()
	require.Len(t, order, 1)
	lut := order[0]
	require.Equal(t, ir.OpTypeLUT, lut.Kind())
	assert.Equal(t, ir.RoundNatural, lut.Rounding())
	lutTensor := lut.Input(ir.UsageLUT).Tensor
	require.Equal(t, ir.Shape{1024}, lutTensor.StorageShape())
	encoded := lutTensor.Buffer().Int64Values(ir.Int16)
	assert.Equal(t, []int64{0, 3, 3, 3, 6, 3}, encoded[:6])
	assert.Equal(t, []int64{3 * 511, 3}, encoded[1022:])

	// 8-bit tables are used as is.
	g = ir.NewGraph("table8", ir.NotationTOSA)
	in = g.NewTensor("in", ir.Int8, shape)
	g.AddInput(in)
	out = g.NewTensor("out", ir.Int8, shape)
	g.AddOutput(out)
	table8 := g.NewConstTensor("table", ir.Int8, ir.MakeShape(256), ir.MakeBuffer(ir.Int8, make([]int8, 256)...))
	unary(g, ir.OpTypeTable, in, out).ConnectInput(ir.UsageParams, table8)
	runDefault(t, g)
	assert.Equal(t, table8, g.ExecutionOrder()[0].Input(ir.UsageLUT).Tensor)

	// 16-bit tables must have 513 entries.
	g = ir.NewGraph("table_bad", ir.NotationTOSA)
	in = g.NewTensor("in", ir.Int16, shape)
	g.AddInput(in)
	out = g.NewTensor("out", ir.Int16, shape)
	g.AddOutput(out)
	unary(g, ir.OpTypeTable, in, out).ConnectInput(ir.UsageParams,
		g.NewConstTensor("table", ir.Int16, ir.MakeShape(256), ir.MakeBuffer(ir.Int16, make([]int16, 256)...)))
	err := exceptions.TryCatch[error](func() { runDefault(t, g) })
	require.Error(t, err)
	assert.True(t, ir.IsMalformed(err))
}

func TestRewriteCast(t *testing.T) {
	shape := ir.MakeShape(1, 2, 2, 4)
	for _, tc := range []struct {
		src, dst ir.DataType
		kind     ir.OpType
		constant int64
	}{
		{ir.Bool8, ir.Int8, ir.OpTypeAnd, 1},
		{ir.Int16, ir.Bool8, ir.OpTypeNotEqual, 0},
		{ir.Int8, ir.Int16, ir.OpTypeAdd, 0},
	} {
		g := ir.NewGraph("cast", ir.NotationTOSA)
		in := g.NewTensor("in", tc.src, shape)
		g.AddInput(in)
		out := g.NewTensor("out", tc.dst, shape)
		g.AddOutput(out)
		unary(g, ir.OpTypeCast, in, out)

		runRules(g, OpRule{Name: RuleRewriteCast, Apply: RewriteCast})
		order := g.ExecutionOrder()
		require.Len(t, order, 1)
		op := order[0]
		assert.Equal(t, tc.kind, op.Kind(), "cast from %s to %s", tc.src, tc.dst)
		assert.Equal(t, in, op.IFM(0))
		assert.Equal(t, out, op.OFM())
		assert.True(t, isConstFilled(op.IFM(1), tc.constant))
	}
}

func TestRewriteNegate(t *testing.T) {
	g := ir.NewGraph("neg", ir.NotationTOSA)
	in := g.NewTensor("in", ir.Int16, ir.MakeShape(1, 2, 2, 4))
	g.AddInput(in)
	out := g.NewTensor("out", ir.Int16, ir.MakeShape(1, 2, 2, 4))
	g.AddOutput(out)
	unary(g, ir.OpTypeNeg, in, out)

	runDefault(t, g)
	sub := g.ExecutionOrder()[0]
	require.Equal(t, ir.OpTypeSub, sub.Kind())
	assert.True(t, isConstFilled(sub.IFM(0), 0))
	assert.Equal(t, ir.Int16, sub.IFM(0).Type())
	assert.Equal(t, in, sub.IFM(1))
	assert.Equal(t, ir.RoundNatural, sub.Rounding())
}

func TestConvertAttributes(t *testing.T) {
	g := ir.NewGraph("attributes", ir.NotationTOSA)
	shape := ir.MakeShape(1, 8, 8, 4)
	in := g.NewTensor("in", ir.Int8, shape)
	other := g.NewTensor("other", ir.Int8, shape)
	g.AddInput(in)
	g.AddInput(other)
	mulOut := g.NewTensor("mul", ir.Int8, shape)
	mul := binary(g, ir.OpTypeMul, in, other, mulOut)
	mul.SetAttr(&ir.MulAttr{Shift: 3})
	clampOut := g.NewTensor("clamp", ir.Int8, shape)
	unary(g, ir.OpTypeClamp, mulOut, clampOut).SetAttr(&ir.ClampAttr{Min: -5, Max: 100})
	asrOut := g.NewTensor("asr", ir.Int8, shape)
	asr := binary(g, ir.OpTypeAsr, clampOut, other, asrOut)
	asr.SetAttr(&ir.AsrAttr{Round: true})
	resizeOut := g.NewTensor("resize", ir.Int8, shape)
	g.AddOutput(resizeOut)
	resize := unary(g, ir.OpTypeResize, asrOut, resizeOut)
	resizeAttr := &ir.ResizeAttr{ScaleY: ir.Fraction{N: 2, D: 1}, ScaleX: ir.Fraction{N: 2, D: 1}, Offset: ir.Point2{X: 1, Y: 5}}
	resize.SetAttr(resizeAttr)
	pool := g.NewTensor("pool", ir.Int8, ir.MakeShape(1, 1, 1, 4))
	g.AddOutput(pool)
	maxPool := unary(g, ir.OpTypeMaxPool, in, pool)
	maxPool.SetKernel(ir.NewKernel(8, 8).WithStride(ir.Point2{X: 8, Y: 8}))

	for range 2 {
		runDefault(t, g)
		assert.Equal(t, []ir.QuantizedScale{{Scale: 1, Shift: 3}}, mul.Output(ir.UsageOFM).Quantization.Scales)
	}
	clamp := clampOut.Writers()[0]
	assert.Equal(t, []int64{-5}, clamp.Output(ir.UsageOFM).Quantization.QuantMin)
	assert.Equal(t, []int64{100}, clamp.Output(ir.UsageOFM).Quantization.QuantMax)
	assert.Equal(t, ir.RoundNatural, asr.Rounding())

	assert.Equal(t, ir.Point2{X: 1, Y: 1}, resizeAttr.Offset)
	assert.Equal(t, ir.Shape{0, 2, 0, 0}, resize.Input(ir.UsageIFM).Slice.Offset)
	assert.Equal(t, ir.Shape{1, 6, 8, 4}, resize.Input(ir.UsageIFM).Slice.Shape)

	assert.Equal(t, ir.Point2{X: 1, Y: 1}, maxPool.Kernel().Stride)
}

func TestEngine(t *testing.T) {
	newGraph := func() (*ir.Graph, *ir.Operation) {
		g := ir.NewGraph("engine", ir.NotationTOSA)
		in := g.NewTensor("in", ir.Int8, ir.MakeShape(1, 2, 2, 1))
		g.AddInput(in)
		out := g.NewTensor("out", ir.Int8, ir.MakeShape(1, 2, 2, 1))
		g.AddOutput(out)
		return g, unary(g, ir.OpTypeRelu, in, out)
	}
	var calls []string
	toRelu6 := OpRule{Name: "ToRelu6", Kinds: []ir.OpType{ir.OpTypeRelu}, Apply: func(_ *Rewriter, op *ir.Operation) *ir.Operation {
		calls = append(calls, "ToRelu6")
		relu6 := op.Graph().NewOperation(ir.OpTypeRelu6)
		ir.ReplaceOperation(op, relu6)
		return relu6
	}}
	onRelu := OpRule{Name: "OnRelu", Kinds: []ir.OpType{ir.OpTypeRelu}, Apply: func(_ *Rewriter, op *ir.Operation) *ir.Operation {
		calls = append(calls, "OnRelu")
		return op
	}}
	onAny := OpRule{Name: "OnAny", Apply: func(_ *Rewriter, op *ir.Operation) *ir.Operation {
		calls = append(calls, "OnAny:"+op.Kind().String())
		return op
	}}
	passes := []Pass{{Name: "chain", OpRules: []OpRule{toRelu6, onRelu, onAny}}}

	// Later rules see the replacement, and only if they apply to its kind.
	g, _ := newGraph()
	g.AttachOptimisationDB(ir.NewOptimisationDB())
	r := New(genericArch(), passes)
	r.Run(g)
	assert.Equal(t, []string{"ToRelu6", "OnAny:Relu6"}, calls)
	assert.Equal(t, map[string]int{"ToRelu6": 1}, r.Applied())
	require.Equal(t, 1, g.OptimisationDB().Len())
	assert.Equal(t, ir.OpTypeRelu, g.OptimisationDB().Records()[0].FromKind)
	assert.Equal(t, ir.OpTypeRelu6, g.OptimisationDB().Records()[0].ToKind)
	assert.Len(t, g.Operations(), 1, "the replaced operation is freed")

	// Disabled rules.
	calls = nil
	g, relu := newGraph()
	New(genericArch(), passes, "ToRelu6").Run(g)
	assert.Equal(t, []string{"OnRelu", "OnAny:Relu"}, calls)
	assert.Equal(t, []*ir.Operation{relu}, g.ExecutionOrder())

	assert.Contains(t, RuleNames(DefaultPasses()), RuleMoveSplitSliceToConsumer)
	assert.Len(t, RuleNames(DefaultPasses()), 17)
}
