// Package predicate implements the where-clause runtime from spec.md §4.G:
// a compiled, reusable callable over a fixed set of named series, used by
// every graph primitive that accepts an optional predicate.
package predicate

import (
	"fmt"

	"github.com/seriesdb/seriesdb/pkg/record"
	"github.com/seriesdb/seriesdb/pkg/value"
)

// Clause is a compiled predicate: the series it reads, and a function from
// those series' values (in the same order as Series()) to a boolean. A
// concrete compiler (pkg/predicate/cel) produces Clauses from source text;
// the runtime only ever consumes this interface.
type Clause interface {
	Series() []string
	Eval(values []value.Cell) bool
}

// Kind says which record store a Clause applies to.
type Kind int

const (
	NodeClause Kind = iota
	EdgeClause
)

func (k Kind) String() string {
	if k == NodeClause {
		return "node"
	}
	return "edge"
}

type alwaysClause struct{}

func (alwaysClause) Series() []string         { return nil }
func (alwaysClause) Eval([]value.Cell) bool { return true }

// Always is the empty where-clause: it references no series and matches
// every row, the convention spec.md assumes for an absent predicate.
var Always Clause = alwaysClause{}

// Classify inspects c's referenced series and reports whether it is a node-
// or edge-scoped clause, using isNode to classify each fully-qualified name.
// A clause with no referenced series (including Always) classifies as def,
// the kind the call site already expects. Referencing both node and edge
// series is an error — spec.md treats predicates as single-namespace.
func Classify(c Clause, isNode func(name string) bool, def Kind) (Kind, error) {
	names := c.Series()
	if len(names) == 0 {
		return def, nil
	}
	var sawNode, sawEdge bool
	for _, n := range names {
		if isNode(n) {
			sawNode = true
		} else {
			sawEdge = true
		}
	}
	switch {
	case sawNode && sawEdge:
		return def, fmt.Errorf("predicate: clause mixes node and edge series: %v", names)
	case sawNode:
		return NodeClause, nil
	default:
		return EdgeClause, nil
	}
}

// Bound pairs a Clause with the series indices it reads from one particular
// record.Store, so repeated evaluation across many rows resolves names once
// instead of on every call.
type Bound struct {
	clause  Clause
	store   *record.Store
	indices []int
}

// Bind resolves c's referenced series against store. It errors if any
// referenced series is unknown in store — a clause naming a series that
// does not exist cannot ever match, which spec.md treats as a validation
// error rather than "never matches silently".
func Bind(store *record.Store, c Clause) (*Bound, error) {
	names := c.Series()
	indices := make([]int, len(names))
	for i, name := range names {
		idx, ok := store.FindSeries(name)
		if !ok {
			return nil, fmt.Errorf("predicate: unknown series %q", name)
		}
		indices[i] = idx
	}
	return &Bound{clause: c, store: store, indices: indices}, nil
}

// Matches evaluates the bound clause against row, treating an absent cell
// as value.None (so a comparison against a missing field is the compiled
// clause's problem to handle, not a runtime panic).
func (b *Bound) Matches(row uint64) bool {
	if len(b.indices) == 0 {
		return b.clause.Eval(nil)
	}
	cells := make([]value.Cell, len(b.indices))
	for i, idx := range b.indices {
		cells[i], _ = b.store.Cell(idx, row)
	}
	return b.clause.Eval(cells)
}
