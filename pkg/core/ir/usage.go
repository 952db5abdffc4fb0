// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import "fmt"

// TensorUsage is the role of a tensor connection in an operation: a usage kind plus an index, so that operations
// with a variable number of inputs (e.g.: Concat) can have IFM0, IFM1, IFM2, ...
type TensorUsage uint32

const usageIndexShift = 8

const (
	UsageNone TensorUsage = iota
	UsageIFM
	UsageOFM
	UsageWeights
	UsageScales
	UsageParams
	UsageLUT

	usageKindMask TensorUsage = 1<<usageIndexShift - 1
)

// Commonly used indexed usages.
const (
	UsageIFM0    = UsageIFM
	UsageIFM1    = UsageIFM | 1<<usageIndexShift
	UsageParams1 = UsageParams | 1<<usageIndexShift
)

// MakeUsage returns the usage of the given kind and index.
func MakeUsage(kind TensorUsage, index int) TensorUsage {
	return kind&usageKindMask | TensorUsage(index)<<usageIndexShift
}

// Kind returns the usage with the index stripped.
func (u TensorUsage) Kind() TensorUsage { return u & usageKindMask }

// Index returns the index of the usage, e.g.: 1 for IFM1.
func (u TensorUsage) Index() int { return int(u >> usageIndexShift) }

// IsIFM returns whether u is a feature map input.
func (u TensorUsage) IsIFM() bool { return u.Kind() == UsageIFM }

// IsOFM returns whether u is an output.
func (u TensorUsage) IsOFM() bool { return u.Kind() == UsageOFM }

var usageNames = map[TensorUsage]string{
	UsageNone:    "None",
	UsageIFM:     "IFM",
	UsageOFM:     "OFM",
	UsageWeights: "Weights",
	UsageScales:  "Scales",
	UsageParams:  "Params",
	UsageLUT:     "LUT",
}

// String implements fmt.Stringer.
func (u TensorUsage) String() string {
	name, found := usageNames[u.Kind()]
	if !found {
		name = fmt.Sprintf("Usage(%d)", u.Kind())
	}
	if u.Index() > 0 {
		return fmt.Sprintf("%s%d", name, u.Index())
	}
	return name
}
