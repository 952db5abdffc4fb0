// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Digest identifies the content of a Buffer.
type Digest [sha256.Size]byte

// String returns the first bytes of the digest in hex, enough for logging.
func (d Digest) String() string { return hex.EncodeToString(d[:8]) }

// Buffer is the immutable backing storage of a constant tensor, content-addressed by the SHA-256 of its bytes.
//
// Values are stored little-endian, packed with the size of the element DataType of the tensor.
type Buffer struct {
	data   []byte
	digest Digest
}

// NewBuffer takes ownership of data and returns a Buffer for it.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data, digest: sha256.Sum256(data)}
}

// Bytes returns the raw content. It must not be modified.
func (b *Buffer) Bytes() []byte { return b.data }

// Size returns the size in bytes.
func (b *Buffer) Size() int { return len(b.data) }

// Digest of the content.
func (b *Buffer) Digest() Digest { return b.digest }

// Elements returns the number of elements of the given type stored in the buffer.
func (b *Buffer) Elements(dtype DataType) int {
	bits := dtype.SizeBits()
	if bits == 0 {
		exceptions.Panicf("Buffer.Elements(%s): unsized data type", dtype)
	}
	return len(b.data) * 8 / bits
}

// Int64At returns the i-th element of the buffer interpreted as dtype, converted to int64.
// Floating point values are truncated.
func (b *Buffer) Int64At(dtype DataType, i int) int64 {
	return decodeElement(b.data, dtype, i)
}

// Int64Values returns all elements of the buffer interpreted as dtype.
func (b *Buffer) Int64Values(dtype DataType) []int64 {
	n := b.Elements(dtype)
	values := make([]int64, n)
	for i := range n {
		values[i] = decodeElement(b.data, dtype, i)
	}
	return values
}

// MakeBuffer encodes values as elements of the given dtype.
func MakeBuffer[T constraints.Integer](dtype DataType, values ...T) *Buffer {
	if dtype == Int4 {
		exceptions.Panicf("MakeBuffer: packed type %s not supported", dtype)
	}
	data := make([]byte, dtype.SizeBytes(len(values)))
	for i, v := range values {
		encodeElement(data, dtype, i, int64(v))
	}
	return NewBuffer(data)
}

func decodeElement(data []byte, dtype DataType, i int) int64 {
	switch dtype {
	case Bool8, Int8:
		return int64(int8(data[i]))
	case UInt8:
		return int64(data[i])
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(data[2*i:])))
	case UInt16:
		return int64(binary.LittleEndian.Uint16(data[2*i:]))
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(data[4*i:])))
	case UInt32:
		return int64(binary.LittleEndian.Uint32(data[4*i:]))
	case Int48, UInt48:
		var raw [8]byte
		copy(raw[:6], data[6*i:6*i+6])
		v := int64(binary.LittleEndian.Uint64(raw[:]))
		if dtype == Int48 && v&(1<<47) != 0 {
			v -= 1 << 48
		}
		return v
	case Int64, UInt64:
		return int64(binary.LittleEndian.Uint64(data[8*i:]))
	case Float16:
		return int64(float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32())
	case Float32:
		return int64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	default:
		exceptions.Panicf("cannot decode elements of type %s", dtype)
	}
	return 0
}

func encodeElement(data []byte, dtype DataType, i int, v int64) {
	switch dtype {
	case Bool8, Int8, UInt8:
		data[i] = byte(v)
	case Int16, UInt16:
		binary.LittleEndian.PutUint16(data[2*i:], uint16(v))
	case Int32, UInt32:
		binary.LittleEndian.PutUint32(data[4*i:], uint32(v))
	case Int48, UInt48:
		var raw [8]byte
		binary.LittleEndian.PutUint64(raw[:], uint64(v))
		copy(data[6*i:6*i+6], raw[:6])
	case Int64, UInt64:
		binary.LittleEndian.PutUint64(data[8*i:], uint64(v))
	case Float16:
		binary.LittleEndian.PutUint16(data[2*i:], float16.Fromfloat32(float32(v)).Bits())
	case Float32:
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(float32(v)))
	default:
		exceptions.Panicf("cannot encode elements of type %s", dtype)
	}
}
