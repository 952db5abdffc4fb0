// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package generic

import (
	"testing"

	"github.com/gomlx/npucompiler/pkg/arch"
	"github.com/gomlx/npucompiler/pkg/core/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func desc(key ir.UID, dtype ir.DataType, dims ...int) arch.TensorDesc {
	return arch.TensorDesc{Key: key, Type: dtype, Shape: ir.MakeShape(dims...)}
}

func convQuery(kernel ir.Kernel) arch.OpGroupQuery {
	return arch.OpGroupQuery{
		Kind:   ir.OpTypeConv2DBias,
		Kernel: &kernel,
		Inputs: 1,
		IFM:    [2]arch.TensorDesc{desc(1, ir.Int8, 1, 16, 16, 8)},
		OFM:    desc(2, ir.Int8, 1, 16, 16, 8),
	}
}

func reluQuery(ifm, ofm ir.UID) arch.OpGroupQuery {
	return arch.OpGroupQuery{
		Kind:   ir.OpTypeRelu,
		Inputs: 1,
		IFM:    [2]arch.TensorDesc{desc(ifm, ir.Int8, 1, 16, 16, 8)},
		OFM:    desc(ofm, ir.Int8, 1, 16, 16, 8),
	}
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, arch.Registered(), ArchName)
	a, err := arch.NewWithConfig("generic:max_stride=2")
	require.NoError(t, err)
	assert.Equal(t, ArchName, a.Name())
	assert.Equal(t, 2, a.(*Architecture).Capabilities().MaxStride)

	_, err = arch.NewWithConfig("generic:max_stride")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "while creating architecture")
}

func TestConfig(t *testing.T) {
	a, err := New("max_kernel=3, max_chain=1,disable=Sigmoid,enable=TransposeConv2D,activations_only")
	require.NoError(t, err)
	caps := a.Capabilities()
	assert.Equal(t, 3, caps.MaxKernel)
	assert.Equal(t, 1, caps.MaxChain)
	assert.False(t, caps.Operations[ir.OpTypeSigmoid])
	assert.False(t, caps.Chainable[ir.OpTypeSigmoid])
	assert.True(t, caps.Operations[ir.OpTypeTransposeConv2D])
	assert.False(t, caps.Chainable[ir.OpTypeAdd])
	assert.True(t, caps.Chainable[ir.OpTypeRelu])

	// Defaults are not modified.
	assert.True(t, DefaultCapabilities.Operations[ir.OpTypeSigmoid])
	assert.False(t, DefaultCapabilities.Operations[ir.OpTypeTransposeConv2D])

	for _, config := range []string{"max_kernel=0", "max_dilation=x", "disable=NoSuchOp", "fast"} {
		_, err := New(config)
		require.Errorf(t, err, "config %q should fail", config)
	}
}

func TestCreateOpGroup(t *testing.T) {
	a, err := New("")
	require.NoError(t, err)

	g := a.CreateOpGroup(convQuery(ir.NewKernel(3, 3)))
	require.NotNil(t, g)
	assert.Equal(t, 1, g.Len())

	// Geometry limits.
	assert.Nil(t, a.CreateOpGroup(convQuery(ir.NewKernel(3, 3).WithDilation(ir.Point2{X: 2, Y: 2}))))
	assert.Nil(t, a.CreateOpGroup(convQuery(ir.NewKernel(9, 1))))
	assert.Nil(t, a.CreateOpGroup(convQuery(ir.NewKernel(3, 3).WithStride(ir.Point2{X: 4, Y: 1}))))

	// No batching.
	q := convQuery(ir.NewKernel(1, 1))
	q.IFM[0].Shape = ir.MakeShape(2, 16, 16, 8)
	assert.Nil(t, a.CreateOpGroup(q))

	// Unsupported types and kinds.
	q = convQuery(ir.NewKernel(1, 1))
	q.OFM.Type = ir.Float32
	assert.Nil(t, a.CreateOpGroup(q))
	q = convQuery(ir.NewKernel(1, 1))
	q.Kind = ir.OpTypeTransposeConv2D
	assert.Nil(t, a.CreateOpGroup(q))

	// Only memory copies write reordered outputs.
	q = arch.OpGroupQuery{Kind: ir.OpTypeMemoryCopy, Inputs: 1,
		IFM: [2]arch.TensorDesc{desc(1, ir.Int8, 1, 4, 4, 8)}, OFM: desc(2, ir.Int8, 1, 4, 4, 8)}
	q.OFM.IsReordered = true
	assert.NotNil(t, a.CreateOpGroup(q))
	q.Kind = ir.OpTypeAbs
	assert.Nil(t, a.CreateOpGroup(q))
}

func TestOpGroupAdd(t *testing.T) {
	a, err := New("max_chain=3")
	require.NoError(t, err)
	g := a.CreateOpGroup(convQuery(ir.NewKernel(3, 3)))
	require.NotNil(t, g)

	// Must consume the output of a group member.
	assert.Equal(t, 0, g.Add(reluQuery(7, 3), 0))
	assert.Equal(t, 0, g.Add(reluQuery(2, 3), 5))

	key := g.Add(reluQuery(2, 3), 0)
	assert.Equal(t, 1, key)
	assert.Equal(t, 2, g.Len())

	// Operations with a kernel can't be chained.
	conv := convQuery(ir.NewKernel(3, 3))
	conv.Kind = ir.OpTypeAdd
	conv.IFM[0].Key = 3
	assert.Equal(t, 0, g.Add(conv, key))

	add := arch.OpGroupQuery{Kind: ir.OpTypeAdd, Inputs: 2,
		IFM: [2]arch.TensorDesc{desc(9, ir.Int8, 1, 16, 16, 8), desc(3, ir.Int8, 1, 16, 16, 8)},
		OFM: desc(4, ir.Int8, 1, 16, 16, 8)}
	assert.Equal(t, 2, g.Add(add, key))

	// Chain is full.
	assert.Equal(t, 0, g.Add(reluQuery(4, 5), 2))
	assert.Equal(t, 3, g.Len())
}

func TestSupportsFusedRescale(t *testing.T) {
	a, err := New("")
	require.NoError(t, err)
	q := ir.Quantization{Scales: []ir.QuantizedScale{{Scale: 1 << 20, Shift: 30}}}
	assert.True(t, a.SupportsFusedRescale(ir.OpTypeConv2DBias, ir.UsageOFM, ir.Int8, ir.Int8, q))
	assert.False(t, a.SupportsFusedRescale(ir.OpTypeConv2DBias, ir.UsageOFM, ir.Int8, ir.Int32, q))
	assert.False(t, a.SupportsFusedRescale(ir.OpTypeMaxPool, ir.UsageOFM, ir.Int8, ir.Int8, q))
	assert.False(t, a.SupportsFusedRescale(ir.OpTypeConv2DBias, ir.UsageOFM, ir.Float32, ir.Int8, q))

	// Input rescales only with a single 16 bits scale, on elementwise operations.
	assert.False(t, a.SupportsFusedRescale(ir.OpTypeAdd, ir.UsageIFM1, ir.Int8, ir.Int8, q))
	small := ir.Quantization{Scales: []ir.QuantizedScale{{Scale: 3, Shift: 1}}}
	assert.True(t, a.SupportsFusedRescale(ir.OpTypeAdd, ir.UsageIFM1, ir.Int8, ir.Int8, small))
	assert.False(t, a.SupportsFusedRescale(ir.OpTypeConv2DBias, ir.UsageIFM, ir.Int8, ir.Int8, small))

	noFuse, err := New("no_fused_rescale")
	require.NoError(t, err)
	assert.False(t, noFuse.SupportsFusedRescale(ir.OpTypeConv2DBias, ir.UsageOFM, ir.Int8, ir.Int8, q))

	assert.Equal(t, arch.MemAreaOffChipFlash, a.ReadonlyMemory())
	assert.Equal(t, arch.MemAreaSRAM, a.FeatureMapMemory())
}
