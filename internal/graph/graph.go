// Package graph implements the rating graph engine: edge lookup,
// neighborhood queries, isolation tests, and hypothetical-advantage
// synthesis over a directed-weighted graph of per-pair skill advantages.
//
// The algorithms here are defined against the narrow EdgeStore interface
// rather than a concrete database, so the bounded-fan-out BFS in
// HypotheticalAdvantage can be unit tested with an in-memory fake.
package graph

import (
	"context"
	"math"
	"time"
)

// PlayerID identifies a dataset-player. It is a string because upstream
// ids are carried as 64-bit unsigned integers on the wire but stored and
// compared as strings throughout the core (see spec: "Player ids ...
// carried as strings on the wire").
type PlayerID string

// Edge is one neighbor relationship as seen from a queried player: Other
// is the opposite endpoint, Advantage is signed from the queried player's
// viewpoint, Variance is the edge's current uncertainty.
type Edge struct {
	Other     PlayerID
	Advantage float64
	Variance  float64
}

// EdgeStore is the subset of the persistent store the graph engine needs.
// All operations are dataset-scoped; the dataset name is threaded through
// explicitly rather than bound to the store so one EdgeStore value can
// serve many datasets.
type EdgeStore interface {
	// GetEdge returns the edge between p and q, signed from p's
	// viewpoint, or ok=false if no such edge exists. A self-pair (p, p)
	// reports (0, 0, ok=true).
	GetEdge(ctx context.Context, dataset string, p, q PlayerID) (adv, variance float64, ok bool, err error)

	// InsertEdge stores a new edge; adv is given from p's viewpoint. It
	// is an error to call this for a pair that already has an edge.
	InsertEdge(ctx context.Context, dataset string, p, q PlayerID, adv, variance float64, t time.Time) error

	// Neighbors returns every edge incident to p, advantage signed from
	// p's viewpoint, in unspecified order.
	Neighbors(ctx context.Context, dataset string, p PlayerID) ([]Edge, error)

	// EitherIsolated reports whether p or q has no incident edge at all.
	EitherIsolated(ctx context.Context, dataset string, p, q PlayerID) (bool, error)

	// AdjustForTime applies variance inflation to every edge incident to p:
	// variance <- min(variance + varConst*(t-last_updated), MaxVariance),
	// then last_updated <- t.
	AdjustForTime(ctx context.Context, dataset string, p PlayerID, varConst float64, t time.Time) error
}

// AllEdgesReader is the read-only subset of EdgeStore the ranking
// synthesizer needs: every dataset-player and, for each, its neighbor
// list, without any of the write or path-search operations.
type AllEdgesReader interface {
	AllPlayers(ctx context.Context, dataset string) ([]PlayerID, error)
	Neighbors(ctx context.Context, dataset string, p PlayerID) ([]Edge, error)
}

// MaxVariance is the clamp ceiling for edge variance (spec invariant:
// variance in [0, 5.0]).
const MaxVariance = 5.0

// decayFloor below which path contributions are deemed negligible and the
// hypothetical search short-circuits to maximum uncertainty.
const decayFloor = 0.05

// maxPartialPaths bounds the BFS fan-out: both the per-node partial-path
// buffer and the final-paths buffer are truncated to this many entries.
// Without the cap the search is exponential in path length; truncation is
// insertion-order (deterministic for a given traversal order), i.e. the
// first maxPartialPaths discovered paths are kept and the rest dropped.
const maxPartialPaths = 100

// partial is one in-flight path summary accumulated during the BFS:
// cumulative advantage, cumulative variance, and geometrically decayed
// weight.
type partial struct {
	adv, variance, weight float64
}

// HypotheticalAdvantage synthesizes an estimated (advantage, variance)
// between two players who may never have played each other directly, by
// aggregating every path between them up to the fan-out cap, each
// discounted geometrically by decayRate per hop.
//
// Edge cases, in priority order: p == q returns (0, 0); decayRate < 0.05
// or either endpoint isolated returns (0, MaxVariance) without touching
// the store further (paths would contribute negligibly or don't exist).
func HypotheticalAdvantage(ctx context.Context, store EdgeStore, dataset string, p, q PlayerID, decayRate float64) (adv, variance float64, err error) {
	if p == q {
		return 0, 0, nil
	}

	if decayRate < decayFloor {
		return 0, MaxVariance, nil
	}

	isolated, err := store.EitherIsolated(ctx, dataset, p, q)
	if err != nil {
		return 0, 0, err
	}
	if isolated {
		return 0, MaxVariance, nil
	}

	visited := map[PlayerID]bool{}

	type queueEntry struct {
		node  PlayerID
		paths []partial
	}
	queue := []queueEntry{{node: p, paths: []partial{{adv: 0, variance: 0, weight: 1 / decayRate}}}}

	var finalPaths []partial

	// index of already-queued (not yet visited) nodes, so we extend an
	// existing entry's path buffer instead of creating a duplicate one.
	queuedAt := map[PlayerID]int{}

	for head := 0; head < len(queue) && len(finalPaths) < maxPartialPaths; head++ {
		visiting := queue[head]
		delete(queuedAt, visiting.node)

		neighbors, err := store.Neighbors(ctx, dataset, visiting.node)
		if err != nil {
			return 0, 0, err
		}

		for _, n := range neighbors {
			if visited[n.Other] {
				continue
			}

			extended := make([]partial, 0, len(visiting.paths))
			for _, pp := range visiting.paths {
				extended = append(extended, partial{
					adv:      pp.adv + n.Advantage,
					variance: pp.variance + n.Variance,
					weight:   pp.weight * decayRate,
				})
			}

			if n.Other == q {
				finalPaths = appendTruncated(finalPaths, extended)
				continue
			}

			if idx, ok := queuedAt[n.Other]; ok {
				queue[idx].paths = appendTruncated(queue[idx].paths, extended)
				continue
			}

			if len(extended) > maxPartialPaths {
				extended = extended[:maxPartialPaths]
			}
			queuedAt[n.Other] = len(queue)
			queue = append(queue, queueEntry{node: n.Other, paths: extended})
		}

		visited[visiting.node] = true
	}

	if len(finalPaths) == 0 {
		return 0, MaxVariance, nil
	}

	var sumWeight, sumAdv, sumSecondMoment float64
	for _, fp := range finalPaths {
		sumWeight += fp.weight
		sumAdv += fp.adv * fp.weight
		sumSecondMoment += (fp.variance + fp.adv*fp.adv) * fp.weight
	}

	finalAdv := sumAdv / sumWeight
	finalVar := sumSecondMoment/sumWeight - finalAdv*finalAdv

	if finalVar > MaxVariance {
		finalAdv = finalAdv * math.Sqrt(MaxVariance/finalVar)
		finalVar = MaxVariance
	}

	return finalAdv, finalVar, nil
}

// appendTruncated extends buf with more, keeping only the first
// maxPartialPaths entries overall (insertion-order truncation).
func appendTruncated(buf, more []partial) []partial {
	if len(buf) >= maxPartialPaths {
		return buf
	}
	room := maxPartialPaths - len(buf)
	if len(more) > room {
		more = more[:room]
	}
	return append(buf, more...)
}

// InitializeEdge computes the hypothetical advantage between p and q and
// inserts it as a real edge, returning the values stored.
func InitializeEdge(ctx context.Context, store EdgeStore, dataset string, p, q PlayerID, decayRate float64, t time.Time) (adv, variance float64, err error) {
	adv, variance, err = HypotheticalAdvantage(ctx, store, dataset, p, q, decayRate)
	if err != nil {
		return 0, 0, err
	}
	if err := store.InsertEdge(ctx, dataset, p, q, adv, variance, t); err != nil {
		return 0, 0, err
	}
	return adv, variance, nil
}
