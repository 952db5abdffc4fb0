// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
)

// Shape is a list of dimensions, outermost axis first.
//
// Feature maps follow the NHWC convention, and the named accessors (Batch, Height, Width and Depth) count axes from
// the innermost one. A missing axis reads as 1, so a shape of rank 2 still has a Batch and a Height of 1.
//
// A nil Shape is "empty": used by slices and connections to indicate "not set".
type Shape []int

// MakeShape returns a new Shape with the given dimensions.
func MakeShape(dimensions ...int) Shape {
	return slices.Clone(Shape(dimensions))
}

// Rank returns the number of axes.
func (s Shape) Rank() int { return len(s) }

// IsEmpty returns whether the shape has no axes.
func (s Shape) IsEmpty() bool { return len(s) == 0 }

// Clone returns a copy of s that shares no storage.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// Equal returns whether s and other have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s, other)
}

// Elements returns the total number of elements. An empty shape has 1 element (scalar).
func (s Shape) Elements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Dim returns the dimension of the given axis. Negative axes count from the end.
func (s Shape) Dim(axis int) int {
	adjusted := axis
	if adjusted < 0 {
		adjusted += len(s)
	}
	if adjusted < 0 || adjusted >= len(s) {
		exceptions.Panicf("Shape.Dim(%d) out of bounds for shape %s", axis, s)
	}
	return s[adjusted]
}

// fromEnd returns the dimension at position -offset, or 1 if the shape is not large enough.
func (s Shape) fromEnd(offset int) int {
	if len(s) < offset {
		return 1
	}
	return s[len(s)-offset]
}

// Depth is the innermost (channels) dimension.
func (s Shape) Depth() int { return s.fromEnd(1) }

// Width is the second innermost dimension.
func (s Shape) Width() int { return s.fromEnd(2) }

// Height is the third innermost dimension.
func (s Shape) Height() int { return s.fromEnd(3) }

// Batch is the fourth innermost dimension.
func (s Shape) Batch() int { return s.fromEnd(4) }

// WH returns the width and height as a Point2.
func (s Shape) WH() Point2 { return Point2{X: s.Width(), Y: s.Height()} }

// WithZeros returns a shape of the same rank with all dimensions set to zero. Used for offsets.
func (s Shape) WithZeros() Shape {
	return make(Shape, len(s))
}

// withFromEnd returns a copy of s with the dimension at -offset set to value. It panics if the rank is too small.
func (s Shape) withFromEnd(offset, value int) Shape {
	if len(s) < offset {
		exceptions.Panicf("shape %s has no axis %d", s, -offset)
	}
	c := s.Clone()
	c[len(c)-offset] = value
	return c
}

// WithDepth returns a copy of s with the depth changed.
func (s Shape) WithDepth(depth int) Shape { return s.withFromEnd(1, depth) }

// WithBatch returns a copy of s with the batch changed.
func (s Shape) WithBatch(batch int) Shape { return s.withFromEnd(4, batch) }

// WithHW returns a copy of s with height and width changed.
func (s Shape) WithHW(height, width int) Shape {
	return s.withFromEnd(3, height).withFromEnd(2, width)
}

// PadAxes returns s extended to at least rank axes, prepending value for the new outer axes.
func PadAxes(s Shape, rank, value int) Shape {
	if len(s) >= rank {
		return s.Clone()
	}
	padded := make(Shape, rank)
	pad := rank - len(s)
	for i := range pad {
		padded[i] = value
	}
	copy(padded[pad:], s)
	return padded
}

// Add returns the element-wise sum of s and other, which must have the same rank.
func (s Shape) Add(other Shape) Shape {
	if len(s) != len(other) {
		exceptions.Panicf("Shape.Add: rank mismatch %s + %s", s, other)
	}
	sum := s.Clone()
	for i := range sum {
		sum[i] += other[i]
	}
	return sum
}

// String implements fmt.Stringer.
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		parts[i] = fmt.Sprintf("%d", dim)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Point2 is a 2D point or size, used by kernels and strides.
type Point2 struct {
	X, Y int
}

// String implements fmt.Stringer.
func (p Point2) String() string { return fmt.Sprintf("(x=%d, y=%d)", p.X, p.Y) }

// Margin holds the padding on each side of a 2D feature map.
type Margin struct {
	Top, Left, Bottom, Right int
}

// IsZero returns whether there is no padding at all.
func (m Margin) IsZero() bool { return m == Margin{} }

// TensorSlice selects a window (Offset, Shape) from a tensor. The zero value means "the whole tensor".
type TensorSlice struct {
	Offset Shape
	Shape  Shape
}

// IsEmpty returns whether the slice is unset.
func (ts TensorSlice) IsEmpty() bool { return ts.Offset.IsEmpty() && ts.Shape.IsEmpty() }

// Clone returns a deep copy of the slice.
func (ts TensorSlice) Clone() TensorSlice {
	return TensorSlice{Offset: ts.Offset.Clone(), Shape: ts.Shape.Clone()}
}

// String implements fmt.Stringer.
func (ts TensorSlice) String() string {
	if ts.IsEmpty() {
		return "{}"
	}
	return fmt.Sprintf("{offset=%s, shape=%s}", ts.Offset, ts.Shape)
}
