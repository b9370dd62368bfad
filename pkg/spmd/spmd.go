// Package spmd specifies the SPMD (single-program-multiple-data) runtime
// spec.md's §5/§9 treat as an external collaborator: the thing every graph
// primitive in pkg/graph/algo assumes without caring whether ranks are
// goroutines in one process (pkg/spmd/local) or separate processes over TCP
// (pkg/spmd/tcp).
package spmd

import "context"

// ReduceOp selects the reduction AllReduce applies across ranks.
type ReduceOp int

const (
	Sum ReduceOp = iota
	Max
	Min
)

// Runtime is the interface every graph primitive programs against. A value
// of this type is rank-local: Rank() identifies which of World() peers it
// is, and every other method coordinates with the other ranks' Runtime
// values sharing the same world.
type Runtime interface {
	// Rank returns this runtime's 0-based rank within its world.
	Rank() int
	// World returns the total number of ranks.
	World() int
	// Async schedules fn to run on dest's rank, asynchronously with respect
	// to the caller. fn must not block waiting on anything but ctx.
	Async(dest int, fn func(ctx context.Context))
	// Barrier blocks until every rank has called Barrier and every Async
	// call issued by any rank before this point has been delivered and
	// executed everywhere.
	Barrier(ctx context.Context) error
	// AllReduce combines v across every rank with op and returns the same
	// result to all of them. Blocks until every rank has called AllReduce.
	AllReduce(ctx context.Context, op ReduceOp, v float64) (float64, error)
}

// ApplyOp folds b into acc per op. Exported so implementations of Runtime
// outside this module can reuse the same reduction semantics.
func ApplyOp(op ReduceOp, acc, b float64) float64 {
	switch op {
	case Sum:
		return acc + b
	case Max:
		if b > acc {
			return b
		}
		return acc
	case Min:
		if b < acc {
			return b
		}
		return acc
	default:
		return acc
	}
}
