// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/gomlx/npucompiler/pkg/compiler/rewrite"
	"github.com/gomlx/npucompiler/pkg/scheduler"
	"github.com/gomlx/npucompiler/pkg/support/sets"
	"github.com/pkg/errors"
)

// OptionsEnv is the environment variable DefaultOptions reads the compiler options from.
const OptionsEnv = "NPUC_OPTIONS"

// Options of the compilation pipeline.
type Options struct {
	// DisableChaining only chains activations into hardware operation groups.
	DisableChaining bool

	// DisabledRules lists the names of rewrite rules that are not applied.
	DisabledRules []string

	// SkipReorder keeps the execution order of the graph, instead of grouping the operations running in software.
	SkipReorder bool

	// RecordOptimisations attaches an ir.OptimisationDB to the graph (if it doesn't have one yet) to record the
	// provenance of rewritten operations.
	RecordOptimisations bool
}

// SchedulerConfig returns the configuration of the scheduler for the options.
func (o Options) SchedulerConfig() scheduler.Config {
	return scheduler.Config{DisableChaining: o.DisableChaining, SkipReorder: o.SkipReorder}
}

// String returns the options in the format accepted by ParseOptions.
func (o Options) String() string {
	var parts []string
	if o.DisableChaining {
		parts = append(parts, "disable_chaining")
	}
	for _, rule := range o.DisabledRules {
		parts = append(parts, "disable_rule="+rule)
	}
	if o.SkipReorder {
		parts = append(parts, "skip_reorder")
	}
	if o.RecordOptimisations {
		parts = append(parts, "record_optimisations")
	}
	return strings.Join(parts, ",")
}

// ParseOptions parses a comma-separated list of options:
//
//   - "disable_chaining": only activations are chained into hardware operation groups.
//   - "disable_rule=<name>": the rewrite rule is not applied, it can be given multiple times.
//   - "skip_reorder": keep the execution order of the graph.
//   - "record_optimisations": record the provenance of rewritten operations in the graph.
//
// Example: "disable_chaining,disable_rule=FuseRescale".
func ParseOptions(config string) (Options, error) {
	var opts Options
	knownRules := sets.MakeWith(rewrite.RuleNames(rewrite.DefaultPasses())...)
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		if hasValue != (key == "disable_rule") {
			return opts, errors.Errorf("invalid compiler option %q", part)
		}
		switch key {
		case "disable_chaining":
			opts.DisableChaining = true
		case "disable_rule":
			if !knownRules.Has(value) {
				return opts, errors.Errorf("unknown rewrite rule %q in compiler option %q, known rules: %s",
					value, part, strings.Join(sets.Sorted(knownRules), ", "))
			}
			if !slices.Contains(opts.DisabledRules, value) {
				opts.DisabledRules = append(opts.DisabledRules, value)
			}
		case "skip_reorder":
			opts.SkipReorder = true
		case "record_optimisations":
			opts.RecordOptimisations = true
		default:
			return opts, errors.Errorf("unknown compiler option %q", part)
		}
	}
	return opts, nil
}

// DefaultOptions returns the options configured in the environment variable NPUC_OPTIONS, or the zero Options if
// it is not set.
func DefaultOptions() (Options, error) {
	opts, err := ParseOptions(os.Getenv(OptionsEnv))
	if err != nil {
		return opts, errors.WithMessage(err, fmt.Sprintf("while parsing $%s", OptionsEnv))
	}
	return opts, nil
}
