// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import "fmt"

// OptimisationRecord links an operation to the operation that replaced it.
// From is -1 for operations that were inserted from nothing (e.g.: type conversions at the graph boundaries).
type OptimisationRecord struct {
	Rule     string
	From, To OpID
	FromKind OpType
	ToKind   OpType
}

// String implements fmt.Stringer.
func (r OptimisationRecord) String() string {
	if r.From < 0 {
		return fmt.Sprintf("%s: +%s#%d", r.Rule, r.ToKind, r.To)
	}
	return fmt.Sprintf("%s: %s#%d -> %s#%d", r.Rule, r.FromKind, r.From, r.ToKind, r.To)
}

// OptimisationDB collects provenance of rewrites, for debugging.
type OptimisationDB struct {
	records []OptimisationRecord
}

// NewOptimisationDB returns an empty database.
func NewOptimisationDB() *OptimisationDB {
	return &OptimisationDB{}
}

// Records returns the provenance edges in the order they were recorded.
func (db *OptimisationDB) Records() []OptimisationRecord { return db.records }

// Len returns the number of records.
func (db *OptimisationDB) Len() int { return len(db.records) }

// AttachOptimisationDB makes the graph record provenance into db. A nil db disables recording.
func (g *Graph) AttachOptimisationDB(db *OptimisationDB) { g.optDB = db }

// OptimisationDB attached to the graph, or nil.
func (g *Graph) OptimisationDB() *OptimisationDB { return g.optDB }

// RecordOptimisation records that rule replaced from by to. from may be nil for inserted operations.
// It is a no-op if no OptimisationDB is attached.
func (g *Graph) RecordOptimisation(rule string, from, to *Operation) {
	if g.optDB == nil || to == nil {
		return
	}
	r := OptimisationRecord{Rule: rule, From: -1, To: to.id, ToKind: to.kind}
	if from != nil {
		r.From, r.FromKind = from.id, from.kind
	}
	g.optDB.records = append(g.optDB.records, r)
}
