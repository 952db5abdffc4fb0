// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package compiler drives the compilation of a graph for an accelerator: the graph is validated, rewritten into
// the operations and layouts the hardware supports, and scheduled into hardware operation groups and operations
// left to software.
//
// Errors caused by a malformed input graph are returned. Violations of internal invariants are bugs, and panic.
package compiler

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/npucompiler/internal/workerspool"
	"github.com/gomlx/npucompiler/pkg/arch"
	"github.com/gomlx/npucompiler/pkg/compiler/rewrite"
	"github.com/gomlx/npucompiler/pkg/core/ir"
	"github.com/gomlx/npucompiler/pkg/scheduler"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// Compile rewrites the graph g in place for the architecture a, and schedules it.
//
// The order of the schedule is also recorded in the graph (see ir.Graph.ScheduledOrder).
// It returns an error wrapping ir.ErrMalformedGraph if the graph is not valid.
func Compile(g *ir.Graph, a arch.Architecture, opts Options) (*scheduler.Schedule, error) {
	if err := g.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "compiling graph %q", g.Name())
	}
	var s *scheduler.Schedule
	err := exceptions.TryCatch[error](func() { s = compile(g, a, opts) })
	if err != nil {
		if !ir.IsMalformed(err) {
			panic(err)
		}
		return nil, errors.WithMessagef(err, "compiling graph %q", g.Name())
	}
	return s, nil
}

func compile(g *ir.Graph, a arch.Architecture, opts Options) *scheduler.Schedule {
	start := time.Now()
	if opts.RecordOptimisations && g.OptimisationDB() == nil {
		g.AttachOptimisationDB(ir.NewOptimisationDB())
	}
	numOps := len(g.ExecutionOrder())
	r := rewrite.New(a, rewrite.DefaultPasses(), opts.DisabledRules...)
	r.Run(g)
	rewritten := len(g.ExecutionOrder())
	rewriteElapsed := time.Since(start)

	s := scheduler.NewPacker(a, opts.SchedulerConfig()).Process(g)
	g.SetScheduledOrder(s.SourceOrder())
	if klog.V(1).Enabled() {
		applied := 0
		for _, count := range r.Applied() {
			applied += count
		}
		klog.Infof("compiler: graph %q for %q: %d operations, %d after %d rewrites (%s); "+
			"%d hardware groups (%d chained operations), %d software operations; %s of constants; total %s",
			g.Name(), a.Name(), numOps, rewritten, applied, rewriteElapsed, s.NumGroups(), s.NumChained(),
			s.NumSoftware(), humanize.Bytes(uint64(s.ConstantBytes())), time.Since(start))
	}
	return s
}

// CompileAll compiles independent graphs in parallel, using at most parallelism goroutines (see
// workerspool.Pool.SetMaxParallelism for the meaning of 0 and negative values).
//
// It returns the schedules in the order of the graphs (nil for the graphs that failed), and the errors of all
// the graphs that failed combined.
// The architecture must support concurrent queries.
func CompileAll(graphs []*ir.Graph, a arch.Architecture, opts Options, parallelism int) ([]*scheduler.Schedule, error) {
	schedules := make([]*scheduler.Schedule, len(graphs))
	errs := make([]error, len(graphs))
	pool := workerspool.New()
	pool.SetMaxParallelism(parallelism)
	pool.ForEach(len(graphs), func(i int) {
		schedules[i], errs[i] = Compile(graphs[i], a, opts)
	})
	return schedules, multierr.Combine(errs...)
}
