// Package ranking computes a global player ordering from the rating graph
// by fixed-point iteration: every player's score diffuses to its
// neighbors weighted by an exponentiated pairwise advantage, with a
// self-loop retaining a constant share.
package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/graphrank/ratings/internal/graph"
)

// Ranked is one player's synthesized global score.
type Ranked struct {
	Player graph.PlayerID
	Points float64
}

const (
	maxIterations  = 10_000
	checkEvery     = 10
	convergenceRMS = 1e-8
)

// Compute runs the fixed-point iteration over every dataset-player visible
// through edges, returning the top-K by points descending. base must be
// > 1; it is the exponent applied to each edge's advantage when computing
// that neighbor's pull.
func Compute(ctx context.Context, edges graph.AllEdgesReader, dataset string, base float64, topK int) ([]Ranked, error) {
	if base <= 1 {
		return nil, fmt.Errorf("ranking: base must be > 1, got %v", base)
	}

	players, err := edges.AllPlayers(ctx, dataset)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	n := len(players)
	if n == 0 {
		return nil, nil
	}

	neighbors := make(map[graph.PlayerID][]graph.Edge, n)
	for _, p := range players {
		ns, err := edges.Neighbors(ctx, dataset, p)
		if err != nil {
			return nil, fmt.Errorf("neighbors of %s: %w", p, err)
		}
		neighbors[p] = ns
	}

	r := make(map[graph.PlayerID]float64, n)
	for _, p := range players {
		r[p] = 1.0 / float64(n)
	}

	for iter := 1; iter <= maxIterations; iter++ {
		points := make(map[graph.PlayerID]float64, n)
		for _, p := range players {
			ns := neighbors[p]
			z := 1.0
			weights := make([]float64, len(ns))
			for i, e := range ns {
				w := math.Pow(base, e.Advantage)
				weights[i] = w
				z += w
			}
			ri := r[p]
			for i, e := range ns {
				points[e.Other] += ri * weights[i] / z
			}
			points[p] += ri * 1.0 / z
		}

		if iter%checkEvery == 0 {
			var sumSq float64
			for _, p := range players {
				d := points[p] - r[p]
				sumSq += d * d
			}
			rms := math.Sqrt(sumSq / float64(n))
			r = points
			if rms < convergenceRMS {
				break
			}
			continue
		}
		r = points

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	ranked := make([]Ranked, 0, n)
	for _, p := range players {
		ranked = append(ranked, Ranked{Player: p, Points: r[p]})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Points > ranked[j].Points })

	if topK > 0 && topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return ranked, nil
}
