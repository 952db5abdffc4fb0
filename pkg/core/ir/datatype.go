// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"github.com/gomlx/gopjrt/dtypes"
)

// DataType is the element type of a tensor, as seen by the accelerator.
//
// It is a superset of the interchange dtypes: the accelerator has native 48-bit accumulators and packed 4-bit
// weights, and an internal 8-bit boolean representation (-1 is true, 0 is false).
type DataType int

const (
	DataTypeUnknown DataType = iota
	Bool8
	Int4
	Int8
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Int48
	UInt48
	Int64
	UInt64
	Float16
	BFloat16
	Float32

	// dataTypeLast is used as a counter, keep it last.
	dataTypeLast
)

var dataTypeNames = [...]string{
	DataTypeUnknown: "Unknown",
	Bool8:           "Bool8",
	Int4:            "Int4",
	Int8:            "Int8",
	UInt8:           "UInt8",
	Int16:           "Int16",
	UInt16:          "UInt16",
	Int32:           "Int32",
	UInt32:          "UInt32",
	Int48:           "Int48",
	UInt48:          "UInt48",
	Int64:           "Int64",
	UInt64:          "UInt64",
	Float16:         "Float16",
	BFloat16:        "BFloat16",
	Float32:         "Float32",
}

// String implements fmt.Stringer.
func (t DataType) String() string {
	if t < 0 || t >= dataTypeLast {
		return "DataType(invalid)"
	}
	return dataTypeNames[t]
}

// DType returns the equivalent interchange dtype, or dtypes.InvalidDType if there is none (Int4, Int48, UInt48).
// Bool8 maps to Int8, its storage type.
func (t DataType) DType() dtypes.DType {
	switch t {
	case Bool8, Int8:
		return dtypes.Int8
	case UInt8:
		return dtypes.Uint8
	case Int16:
		return dtypes.Int16
	case UInt16:
		return dtypes.Uint16
	case Int32:
		return dtypes.Int32
	case UInt32:
		return dtypes.Uint32
	case Int64:
		return dtypes.Int64
	case UInt64:
		return dtypes.Uint64
	case Float16:
		return dtypes.Float16
	case BFloat16:
		return dtypes.BFloat16
	case Float32:
		return dtypes.Float32
	default:
		return dtypes.InvalidDType
	}
}

// SizeBits returns the number of bits used by one element.
func (t DataType) SizeBits() int {
	switch t {
	case Int4:
		return 4
	case Int48, UInt48:
		return 48
	case DataTypeUnknown:
		return 0
	}
	return int(t.DType().Memory()) * 8
}

// SizeBytes returns the number of bytes used by n elements, rounding packed types up.
func (t DataType) SizeBytes(n int) int {
	return (n*t.SizeBits() + 7) / 8
}

// IsBool returns whether t is the internal boolean type.
func (t DataType) IsBool() bool { return t == Bool8 }

// IsInteger returns whether t is an integer type. Booleans are not integers.
func (t DataType) IsInteger() bool {
	switch t {
	case Int4, Int8, UInt8, Int16, UInt16, Int32, UInt32, Int48, UInt48, Int64, UInt64:
		return true
	}
	return false
}

// IsSigned returns whether t is a signed type.
func (t DataType) IsSigned() bool {
	switch t {
	case Bool8, Int4, Int8, Int16, Int32, Int48, Int64, Float16, BFloat16, Float32:
		return true
	}
	return false
}

// IsFloat returns whether t is a floating point type.
func (t DataType) IsFloat() bool {
	return t == Float16 || t == BFloat16 || t == Float32
}
