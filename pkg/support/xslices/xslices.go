// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package.
package xslices

import (
	"cmp"
	"flag"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// SortedKeys returns the sorted keys of a map in the form of a slice.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// Flag creates a flag for []T with the given name, description and default value.
// It takes as input a parser for an individual T value.
func Flag[T any](name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	f := NewFlagValue(defaultValue, parserFn)
	flag.Var(f, name, usage)
	return &f.parsedSlice
}

// FlagValue implements flag.Value for a comma-separated list of T.
type FlagValue[T any] struct {
	parsedSlice []T
	parserFn    func(valueStr string) (T, error)
}

// NewFlagValue returns a flag.Value for []T, using parserFn to parse each comma-separated element.
func NewFlagValue[T any](defaultValue []T, parserFn func(valueStr string) (T, error)) *FlagValue[T] {
	return &FlagValue[T]{parsedSlice: defaultValue, parserFn: parserFn}
}

// String implements flag.Value.
func (f *FlagValue[T]) String() string {
	parts := make([]string, len(f.parsedSlice))
	for ii, elem := range f.parsedSlice {
		if stringer, ok := any(elem).(fmt.Stringer); ok {
			parts[ii] = stringer.String()
		} else {
			parts[ii] = fmt.Sprintf("%v", elem)
		}
	}
	return strings.Join(parts, ",")
}

// Set implements flag.Value.
func (f *FlagValue[T]) Set(listStr string) error {
	if listStr == "" {
		f.parsedSlice = make([]T, 0)
		return nil
	}
	parts := strings.Split(listStr, ",")
	f.parsedSlice = make([]T, len(parts))
	var err error
	for ii, part := range parts {
		f.parsedSlice[ii], err = f.parserFn(strings.TrimSpace(part))
		if err != nil {
			return err
		}
	}
	return nil
}
