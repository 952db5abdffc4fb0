// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package rewrite implements the graph-rewrite pass engine and the rewrite rules that bring a loaded graph into
// the canonical form expected by the scheduler.
//
// A Pass holds an ordered list of operation rules (OpRule) and tensor rules (TensorRule). The Rewriter walks the
// graph once per pass, in execution order: for each operation it first applies the tensor rules to every input and
// output tensor not yet visited in the pass, and then the operation rules. Rules return the node that replaces
// the one they were given (or the same node, if nothing changed), and later rules of the same pass are applied to
// the replacement. Disconnected nodes are freed by the engine after each node visit (see ir.Graph.Commit).
//
// Every rule is idempotent: once its precondition was resolved, running it again changes nothing.
package rewrite

import (
	"time"

	"github.com/gomlx/npucompiler/pkg/arch"
	"github.com/gomlx/npucompiler/pkg/core/ir"
	"github.com/gomlx/npucompiler/pkg/support/sets"
	"k8s.io/klog/v2"
)

// OpRule rewrites operations.
type OpRule struct {
	// Name of the rule, used for logging, provenance and to disable it.
	Name string

	// Kinds of operations the rule applies to. If empty the rule applies to all operations.
	Kinds []ir.OpType

	// Apply returns the operation that replaces op, or op itself if nothing changed.
	// It returns nil if op was removed without a replacement.
	Apply func(r *Rewriter, op *ir.Operation) *ir.Operation
}

// TensorRule rewrites tensors.
type TensorRule struct {
	// Name of the rule, used for logging and to disable it.
	Name string

	// Apply returns the tensor that replaces t, or t itself.
	Apply func(r *Rewriter, t *ir.Tensor) *ir.Tensor
}

// Pass is one traversal of the graph applying its rules.
type Pass struct {
	Name        string
	OpRules     []OpRule
	TensorRules []TensorRule
}

// compiledPass is a Pass with its operation rules indexed by kind.
type compiledPass struct {
	name        string
	opRules     []OpRule
	tensorRules []TensorRule

	// byKind maps each operation kind to the indices (in opRules) of the rules that apply to it, in order.
	byKind map[ir.OpType][]int
}

// Rewriter applies a list of passes to graphs.
//
// The index of rules by operation kind is built once, when the Rewriter is created.
// A Rewriter can be used on any number of graphs, but not concurrently.
type Rewriter struct {
	arch   arch.Architecture
	passes []*compiledPass
	graph  *ir.Graph

	// applied counts the rule applications that changed something, by rule name.
	applied map[string]int
}

// New creates a Rewriter for the given passes. Rules whose names are listed in disabledRules are skipped.
func New(architecture arch.Architecture, passes []Pass, disabledRules ...string) *Rewriter {
	disabled := sets.MakeWith(disabledRules...)
	r := &Rewriter{arch: architecture, applied: make(map[string]int)}
	for _, pass := range passes {
		cp := &compiledPass{name: pass.Name, byKind: make(map[ir.OpType][]int)}
		for _, rule := range pass.OpRules {
			if disabled.Has(rule.Name) {
				klog.V(1).Infof("rewrite: rule %q disabled", rule.Name)
				continue
			}
			idx := len(cp.opRules)
			cp.opRules = append(cp.opRules, rule)
			kinds := rule.Kinds
			if len(kinds) == 0 {
				kinds = ir.OpTypeValues()
			}
			for _, kind := range kinds {
				cp.byKind[kind] = append(cp.byKind[kind], idx)
			}
		}
		for _, rule := range pass.TensorRules {
			if disabled.Has(rule.Name) {
				klog.V(1).Infof("rewrite: rule %q disabled", rule.Name)
				continue
			}
			cp.tensorRules = append(cp.tensorRules, rule)
		}
		r.passes = append(r.passes, cp)
	}
	return r
}

// Arch returns the architecture the rules query.
func (r *Rewriter) Arch() arch.Architecture { return r.arch }

// Graph being rewritten, only valid during Run.
func (r *Rewriter) Graph() *ir.Graph { return r.graph }

// Applied returns how many times each rule changed the graph, over all runs so far.
func (r *Rewriter) Applied() map[string]int { return r.applied }

// Run applies all passes to the graph, in order.
func (r *Rewriter) Run(g *ir.Graph) {
	r.graph = g
	defer func() { r.graph = nil }()
	for _, pass := range r.passes {
		r.runPass(g, pass)
	}
}

func (r *Rewriter) runPass(g *ir.Graph, pass *compiledPass) {
	start := time.Now()
	var count int
	visitedTensors := sets.Make[ir.TensorID]()
	for _, op := range g.ExecutionOrder() {
		if op.IsDisconnected() || g.Operation(op.ID()) != op {
			continue
		}
		if len(pass.tensorRules) > 0 {
			var tensors []*ir.Tensor
			for _, conn := range op.Inputs() {
				tensors = append(tensors, conn.Tensor)
			}
			for _, conn := range op.Outputs() {
				tensors = append(tensors, conn.Tensor)
			}
			for _, t := range tensors {
				if visitedTensors.InsertNew(t.ID()) {
					count += r.applyTensorRules(pass, t)
				}
			}
		}
		if !op.IsDisconnected() {
			count += r.applyOpRules(g, pass, op)
		}
		g.Commit()
	}
	klog.V(1).Infof("rewrite pass %q: %d rule applications in %s", pass.name, count, time.Since(start))
}

func (r *Rewriter) applyTensorRules(pass *compiledPass, t *ir.Tensor) (count int) {
	current := t
	for _, rule := range pass.tensorRules {
		var digest ir.Digest
		dtype := current.Type()
		if current.IsConstant() {
			digest = current.Digest()
		}
		next := rule.Apply(r, current)
		if next == nil || next != current || next.Type() != dtype || next.Digest() != digest {
			klog.V(2).Infof("rewrite: %s: %s -> %s", rule.Name, current, next)
			r.applied[rule.Name]++
			count++
		}
		if next == nil {
			return
		}
		current = next
	}
	return
}

func (r *Rewriter) applyOpRules(g *ir.Graph, pass *compiledPass, op *ir.Operation) (count int) {
	current := op
	last := -1
	for {
		idx := nextRule(pass.byKind[current.Kind()], last)
		if idx < 0 {
			return
		}
		last = idx
		rule := &pass.opRules[idx]
		next := rule.Apply(r, current)
		if next == current {
			continue
		}
		klog.V(2).Infof("rewrite: %s: %s -> %s", rule.Name, current, next)
		r.applied[rule.Name]++
		count++
		if next == nil || next.IsDisconnected() {
			return
		}
		g.RecordOptimisation(rule.Name, current, next)
		current = next
	}
}

// nextRule returns the first rule index in indices after last, or -1.
func nextRule(indices []int, last int) int {
	for _, idx := range indices {
		if idx > last {
			return idx
		}
	}
	return -1
}
