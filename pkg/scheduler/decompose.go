// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"github.com/gomlx/npucompiler/pkg/arch"
	"github.com/gomlx/npucompiler/pkg/core/ir"
	"k8s.io/klog/v2"
)

// Axes of the 4D (NHWC) shapes of scheduler connections.
const (
	axisN = 0
	axisH = 1
	axisW = 2
)

// DecomposeFn splits an operation into operations the hardware can run.
// If that is not possible the (possibly partially decomposed) operations are returned as they are, and will run
// in software.
type DecomposeFn func(a arch.Architecture, op *Operation) []*Operation

// NeedsDecompose returns whether op is of a kind that can be decomposed, and can't run on the hardware as it is.
func NeedsDecompose(a arch.Architecture, op *Operation) bool {
	return CanDecompose(op) && !CanRunOnHardware(a, op)
}

// CanDecompose returns whether op is of a kind the decomposer handles.
// Operations writing a transposed or reversed output are never decomposed.
func CanDecompose(op *Operation) bool {
	if ofm := op.OFM(); ofm != nil && ofm.IsReordered() {
		return false
	}
	switch op.Kind {
	case ir.OpTypeConv2D, ir.OpTypeConv2DBias, ir.OpTypeDepthwiseConv2DBias, ir.OpTypeTransposeConv2D:
		return true
	}
	return false
}

// CanRunOnHardware asks the architecture whether op, in its current sliced and strided form, can run as a hardware
// operation group.
func CanRunOnHardware(a arch.Architecture, op *Operation) bool {
	if op.IFM(0) == nil || op.OFM() == nil {
		return false
	}
	return a.CreateOpGroup(groupQuery(op)) != nil
}

// groupQuery describes op for the architecture capability queries.
func groupQuery(op *Operation) arch.OpGroupQuery {
	q := arch.OpGroupQuery{Kind: op.Kind, Kernel: op.Kernel, Inputs: 1}
	q.IFM[0] = tensorDesc(op.IFM(0))
	if ifm1 := op.IFM(1); ifm1 != nil {
		q.Inputs = 2
		q.IFM[1] = tensorDesc(ifm1)
	}
	q.OFM = tensorDesc(op.OFM())
	q.OFM.Shape = ir.PadAxes(q.OFM.Shape, 3, 1)
	q.OFM.IsConst = false
	return q
}

func tensorDesc(conn *Connection) arch.TensorDesc {
	return arch.TensorDesc{
		Key:         conn.Tensor.UID,
		Type:        conn.Tensor.Type,
		Shape:       conn.SliceShape().Clone(),
		IsConst:     conn.Tensor.IsConstant(),
		IsReordered: conn.IsReordered(),
	}
}

// Decompose splits op into operations the hardware can run, using the decomposition for its kind.
// Operations of kinds that can't be decomposed are returned as they are.
func Decompose(a arch.Architecture, op *Operation) []*Operation {
	if op.Kernel == nil || op.IFM(0) == nil || op.OFM() == nil {
		ir.ThrowMalformed("%s operation %s needs a kernel, an input and an output", op.Kind, op)
	}
	var result []*Operation
	switch op.Kind {
	case ir.OpTypeConv2D, ir.OpTypeConv2DBias:
		result = DecomposeConv2D(a, op)
	case ir.OpTypeDepthwiseConv2DBias:
		result = DecomposeDepthwiseConv2D(a, op)
	case ir.OpTypeTransposeConv2D:
		result = DecomposeTransposeConv2D(a, op)
	default:
		return []*Operation{op}
	}
	klog.V(2).Infof("decompose: %s -> %d operations", op, len(result))
	return result
}

// MakeSubOperation returns a copy of op, with the same connections, and kernel if kernel is nil.
// The sub-operation is not added to the producers/consumers of its tensors.
func MakeSubOperation(op *Operation, kernel *ir.Kernel) *Operation {
	ir.AssertInvariant(len(op.SubOps) == 0 && op.Parent == nil, "sub-operation of packed operation %s", op)
	sub := newOperation(op.Kind)
	sub.Kernel = op.Kernel
	if kernel != nil {
		k := *kernel
		sub.Kernel = &k
	}
	sub.Rounding = op.Rounding
	sub.Attr = op.Attr
	sub.Source = op.Source
	sub.PrimaryIFM = op.PrimaryIFM
	for usage, conn := range op.Inputs() {
		sub.SetInput(usage, conn.clone())
	}
	for usage, conn := range op.Outputs() {
		sub.SetOutput(usage, conn.clone())
	}
	return sub
}

// InitializeSlice sets the offset and shape of the slice, if they are not set yet.
func InitializeSlice(slice *ir.TensorSlice, offset, shape ir.Shape) {
	if slice.Offset.IsEmpty() {
		slice.Offset = offset.Clone()
	}
	if slice.Shape.IsEmpty() {
		slice.Shape = shape.Clone()
	}
}

// initializeConvSlices sets the default slices of a convolution: the whole output, and the whole input offset by
// the top/left padding.
func initializeConvSlices(op *Operation) {
	ofmConn, ifmConn := op.OFM(), op.IFM(0)
	padding := op.Kernel.Padding
	InitializeSlice(&ofmConn.Slice, ofmConn.Shape.WithZeros(), ofmConn.Shape)
	InitializeSlice(&ifmConn.Slice, ifmConn.Shape.WithZeros().WithHW(-padding.Top, -padding.Left), ifmConn.Shape)
}

// decomposeBatch splits op into one operation per output batch element, each decomposed further with fn.
func decomposeBatch(a arch.Architecture, op *Operation, fn DecomposeFn) []*Operation {
	ofmConn, ifmConn, ifm2Conn := op.OFM(), op.IFM(0), op.IFM(1)
	batch := ofmConn.Slice.Shape[axisN]
	var result []*Operation
	for i := range batch {
		sub := MakeSubOperation(op, nil)
		for _, conn := range []*Connection{sub.OFM(), sub.IFM(0)} {
			conn.Slice.Shape[axisN] = 1
		}
		sub.OFM().Slice.Offset[axisN] = ofmConn.Slice.Offset[axisN] + i
		sub.IFM(0).Slice.Offset[axisN] = ifmConn.Slice.Offset[axisN] + i
		if ifm2Conn != nil && !ifm2Conn.Slice.IsEmpty() {
			s := &sub.IFM(1).Slice
			s.Shape[axisN] = 1
			s.Offset[axisN] = ifm2Conn.Slice.Offset[axisN] + i
		}
		result = append(result, fn(a, sub)...)
	}
	return result
}

// handleDilation splits a dilated kernel operation into operations with dilation 1, each reading the input with a
// step equal to the dilation, and writing an interleaved part of the output.
//
// Where the dilation and the stride have a common factor G, it's kept in the stride of the kernel and only
// dilation/G operations per axis are needed.
func handleDilation(a arch.Architecture, op *Operation, fn DecomposeFn) []*Operation {
	ofmConn, ifmConn := op.OFM(), op.IFM(0)
	kernel := op.Kernel
	gy, gx := gcd(kernel.Dilation.Y, kernel.Stride.Y), gcd(kernel.Dilation.X, kernel.Stride.X)
	dy, dx := kernel.Dilation.Y/gy, kernel.Dilation.X/gx
	newKernel := kernel.WithDilation(ir.Point2{X: 1, Y: 1}).
		WithStride(ir.Point2{X: kernel.Stride.X / gx, Y: kernel.Stride.Y / gy})

	var result []*Operation
	for y := range dy {
		for x := range dx {
			sub := MakeSubOperation(op, &newKernel)
			subIfm, subOfm := sub.IFM(0), sub.OFM()
			subIfm.Slice.Offset[axisH] += y * gy
			subIfm.Slice.Offset[axisW] += x * gx
			subIfm.StepXY = ir.Point2{X: ifmConn.StepXY.X * dx * gx, Y: ifmConn.StepXY.Y * dy * gy}
			subOfm.Slice.Offset[axisH] += y
			subOfm.Slice.Offset[axisW] += x
			subOfm.Slice.Shape[axisH] -= y
			subOfm.Slice.Shape[axisW] -= x
			subOfm.StepXY = ir.Point2{X: ofmConn.StepXY.X * dx, Y: ofmConn.StepXY.Y * dy}
			result = append(result, fn(a, sub)...)
		}
	}
	return result
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// UpdatePaddingIfOffsetNegative turns negative input offsets along the height or width into top/left padding of
// the kernel, with the offset clamped to zero.
func UpdatePaddingIfOffsetNegative(op *Operation) {
	offset := op.IFM(0).Slice.Offset
	if offset.IsEmpty() || (offset[axisH] >= 0 && offset[axisW] >= 0) {
		return
	}
	padding := op.Kernel.Padding
	padding.Top = max(0, -offset[axisH])
	padding.Left = max(0, -offset[axisW])
	offset[axisH] = max(0, offset[axisH])
	offset[axisW] = max(0, offset[axisW])
	k := op.Kernel.WithPadding(padding)
	op.Kernel = &k
}

// DecomposeConv2D decomposes convolutions: batches larger than one are split into one operation per batch
// element, and dilation is removed by handleDilation. Large strides are not decomposed.
func DecomposeConv2D(a arch.Architecture, op *Operation) []*Operation {
	initializeConvSlices(op)
	if op.OFM().Slice.Shape.Batch() > 1 {
		return decomposeBatch(a, op, DecomposeConv2D)
	}
	if CanRunOnHardware(a, op) {
		UpdatePaddingIfOffsetNegative(op)
		return []*Operation{op}
	}
	if d := op.Kernel.Dilation; d.X > 1 || d.Y > 1 {
		return handleDilation(a, op, DecomposeConv2D)
	}
	return []*Operation{op}
}

// DecomposeDepthwiseConv2D decomposes depthwise convolutions like DecomposeConv2D. Depth multipliers larger than
// one are not decomposed.
func DecomposeDepthwiseConv2D(a arch.Architecture, op *Operation) []*Operation {
	initializeConvSlices(op)
	if op.OFM().Slice.Shape.Batch() > 1 {
		return decomposeBatch(a, op, DecomposeDepthwiseConv2D)
	}
	if ifmDepth := op.IFM(0).Shape.Depth(); ifmDepth > 0 && op.OFM().Shape.Depth()/ifmDepth > 1 {
		return []*Operation{op}
	}
	if CanRunOnHardware(a, op) {
		UpdatePaddingIfOffsetNegative(op)
		return []*Operation{op}
	}
	if d := op.Kernel.Dilation; d.X > 1 || d.Y > 1 {
		return handleDilation(a, op, DecomposeDepthwiseConv2D)
	}
	return []*Operation{op}
}

// DecomposeTransposeConv2D rewrites a transposed convolution with strides 1x1 or 2x2 (or 1x2, for inputs of height
// 1 and kernels of height 1) into a Conv2DBias with weights reversed along the height and width axes. With stride 2
// the input is upsampled by inserting zeros.
//
// Other strides are left as they are.
func DecomposeTransposeConv2D(_ arch.Architecture, op *Operation) []*Operation {
	ifmConn, ofmConn, weightsConn := op.IFM(0), op.OFM(), op.Input(ir.UsageWeights)
	kernel := op.Kernel
	kh, kw := kernel.Size.Y, kernel.Size.X
	sh, sw := kernel.Stride.Y, kernel.Stride.X
	ir.AssertInvariant(kh > 0 && kw > 0 && sh > 0 && sw > 0, "transposed convolution %s with invalid kernel %s", op, kernel)

	supported := (sh == 1 && sw == 1) || (sh == 2 && sw == 2) ||
		(sh == 1 && sw == 2 && ifmConn.Shape.Height() == 1 && kh == 1)
	if !supported || weightsConn == nil {
		return []*Operation{op}
	}
	reversed := ReverseHW(weightsConn.Tensor)
	if reversed == nil {
		return []*Operation{op}
	}
	weightsConn.Tensor = reversed

	heightPadding := ir.NeededTotalPadding(ifmConn.Shape.Height()*sh, ofmConn.Shape.Height(), 1, kh)
	widthPadding := ir.NeededTotalPadding(ifmConn.Shape.Width()*sw, ofmConn.Shape.Width(), 1, kw)
	bottom := heightPadding / 2
	top := heightPadding - bottom
	right := widthPadding / 2
	left := widthPadding - right
	if sh == 2 || sw == 2 {
		ifmConn.Resampling = ir.ResamplingZeros
		if kernel.Padding.IsZero() {
			// "Valid" padding.
			bottom = max(kh-2, 0)
			top = kh - 1
			right = max(kw-2, 0)
			left = kw - 1
		} else {
			// "Same" padding.
			bottom = max((heightPadding+1)/sh-1, 0)
			top = max(kh-1-bottom, 0)
			right = max((widthPadding+1)/sw-1, 0)
			left = max(kw-1-right, 0)
		}
	}
	newKernel := kernel.WithStride(ir.Point2{X: 1, Y: 1}).
		WithPadding(ir.Margin{Top: top, Left: left, Bottom: bottom, Right: right})
	op.Kind = ir.OpTypeConv2DBias
	op.Kernel = &newKernel
	return []*Operation{op}
}

// ReverseHW returns a copy of the constant tensor t with its elements reversed along the height and width axes,
// for weights in OHWI order. It returns nil if the type of t is not supported.
func ReverseHW(t *Tensor) *Tensor {
	ir.AssertInvariant(t.IsConstant(), "ReverseHW of non-constant tensor %s", t)
	if !t.Type.IsInteger() || t.Type == ir.Int4 {
		return nil
	}
	ir.AssertInvariant(t.StorageShape.Rank() <= 4, "ReverseHW of tensor %s with more than 4 axes", t)
	shape := ir.PadAxes(t.StorageShape, 4, 1)
	n, h, w, c := shape.Batch(), shape.Height(), shape.Width(), shape.Depth()
	values := t.Buffer.Int64Values(t.Type)
	reversed := make([]int64, len(values))
	for b := range n {
		for y := range h {
			for x := range w {
				in := ((b*h+y)*w + x) * c
				out := ((b*h+h-1-y)*w + w - 1 - x) * c
				copy(reversed[out:out+c], values[in:in+c])
			}
		}
	}
	clone := t.clone()
	clone.Buffer = ir.MakeBuffer(t.Type, reversed...)
	return clone
}
