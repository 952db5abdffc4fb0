// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arch

import (
	"os"
	"strings"

	"github.com/gomlx/npucompiler/pkg/support/xslices"
	"github.com/pkg/errors"
)

// Constructor takes a config string (optionally empty) and returns an Architecture.
type Constructor func(config string) (Architecture, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register architecture with the given name, and a constructor that takes as input a configuration string that is
// passed along to the architecture.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// Registered returns the names of the registered architectures, sorted.
func Registered() []string {
	return xslices.SortedKeys(registeredConstructors)
}

// DefaultConfig is the name of the default architecture configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// NPUC_ARCH is the environment variable with the default architecture configuration to use.
//
// The format of config is "<arch_name>:<arch_configuration>".
// The "<arch_name>" is the name of a registered architecture (e.g.: "generic") and
// "<arch_configuration>" is architecture specific (e.g.: for "generic", "max_stride=2,max_chain=1").
//
//nolint:revive // Environment variable names are upper case.
const NPUC_ARCH = "NPUC_ARCH"

// New returns a new default Architecture.
//
// The default is:
//
// 1. The environment NPUC_ARCH is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered architecture is used with an empty configuration.
func New() (Architecture, error) {
	config, found := os.LookupEnv(NPUC_ARCH)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configuration string formatted as "<arch_name>:<arch_configuration>".
// If there is no ":", the whole string is taken as the architecture name, or the configuration of the first
// registered architecture if no such name is registered.
func NewWithConfig(config string) (Architecture, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.New(`no registered architectures -- maybe import the generic one with import _ "github.com/gomlx/npucompiler/pkg/arch/generic"?`)
	}
	archName := firstRegistered
	archConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		archName = config[:idx]
		archConfig = config[idx+1:]
	} else if _, found := registeredConstructors[config]; found {
		archName, archConfig = config, ""
	}
	constructor, found := registeredConstructors[archName]
	if !found {
		return nil, errors.Errorf("can't find architecture %q for configuration %q given, registered architectures: %v",
			archName, config, Registered())
	}
	a, err := constructor(archConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "while creating architecture %q", archName)
	}
	return a, nil
}
