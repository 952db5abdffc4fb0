// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import "fmt"

// Kernel describes the 2D window of convolutions and pooling operations.
//
// Kernels are values: the With* methods return modified copies.
type Kernel struct {
	Size     Point2
	Stride   Point2
	Dilation Point2
	Padding  Margin
}

// NewKernel returns a kernel of the given size with unit stride and dilation, and no padding.
func NewKernel(width, height int) Kernel {
	return Kernel{
		Size:     Point2{X: width, Y: height},
		Stride:   Point2{X: 1, Y: 1},
		Dilation: Point2{X: 1, Y: 1},
	}
}

// WithStride returns a copy of k with the given stride.
func (k Kernel) WithStride(stride Point2) Kernel {
	k.Stride = stride
	return k
}

// WithDilation returns a copy of k with the given dilation.
func (k Kernel) WithDilation(dilation Point2) Kernel {
	k.Dilation = dilation
	return k
}

// WithPadding returns a copy of k with the given padding.
func (k Kernel) WithPadding(padding Margin) Kernel {
	k.Padding = padding
	return k
}

// DilatedSize returns the area covered by the kernel once dilation is applied.
func (k Kernel) DilatedSize() Point2 {
	return Point2{
		X: (k.Size.X-1)*k.Dilation.X + 1,
		Y: (k.Size.Y-1)*k.Dilation.Y + 1,
	}
}

// String implements fmt.Stringer.
func (k Kernel) String() string {
	return fmt.Sprintf("Kernel{size=%dx%d, stride=%dx%d, dilation=%dx%d, pad=%v}",
		k.Size.X, k.Size.Y, k.Stride.X, k.Stride.Y, k.Dilation.X, k.Dilation.Y, k.Padding)
}

// NeededTotalPadding returns the total padding along one axis needed so that a kernel with the given
// stride produces outputSize elements from inputSize elements.
func NeededTotalPadding(inputSize, outputSize, stride, kernelSize int) int {
	needed := (outputSize-1)*stride + kernelSize - inputSize
	return max(0, needed)
}
