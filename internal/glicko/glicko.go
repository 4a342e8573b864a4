// Package glicko implements the Glicko-2-inspired single-match update
// kernel used to adjust one focal edge and propagate a decayed update to
// every other edge incident to the two players involved.
//
// The kernel is a pure function of its scalar inputs: it does not touch a
// store, so it can be exercised with plain unit tests (see design note in
// the rating graph documentation about keeping the numeric core testable
// independent of persistence).
package glicko

import (
	"errors"
	"math"
)

// ErrNumericInstability is returned when the computed focal variance is
// non-finite or non-positive. Given variance > 0 and expVal in (0, 1) on
// entry this should not occur; it guards against bad callers rather than
// expected runtime conditions.
var ErrNumericInstability = errors.New("glicko: numeric instability in update")

// Side identifies which player of the focal edge is being updated.
type Side int

const (
	SideA Side = 0
	SideB Side = 1
)

// Result holds the outcome of a single-match update: the new state of the
// focal edge, plus the terms (LikelihoodVariance, Adjust) from which the
// propagation to every other edge incident to player A and player B is
// derived; HalfAdjust gives each side's signed share.
type Result struct {
	// FocalVariance is the new variance for the (A, B) edge.
	FocalVariance float64
	// FocalAdvantageDelta is added to the current A-viewpoint advantage
	// of the focal edge.
	FocalAdvantageDelta float64

	// LikelihoodVariance is the per-observation variance implied by the
	// pre-update advantage; propagation to neighboring edges is a
	// function of this and the decay rate.
	LikelihoodVariance float64
	// Adjust is score-minus-expectation from side A's viewpoint; callers
	// that need the raw term (e.g. to decide which side of a neighbor's
	// edge to push) can derive each side's share from HalfAdjust.
	Adjust float64
}

// Update computes the Glicko adjustment for one observed set.
//
// advantage and variance are the focal edge's pre-update state, signed
// from player A's viewpoint, where A is side 0 of the set (not
// necessarily the lower-id player). winner is SideA if A won, SideB if B
// won. decayRate is the dataset's propagation
// decay constant, in [0, 1].
func Update(advantage, variance float64, winner Side, decayRate float64) (Result, error) {
	score := 1.0
	if winner != SideA {
		score = 0.0
	}

	expVal := 1.0 / (1.0 + math.Exp(-advantage))
	likeVar := 1.0 / (expVal * (1.0 - expVal))
	varNew := 1.0 / (1.0/variance + 1.0/likeVar)
	adjust := score - expVal

	if math.IsNaN(varNew) || math.IsInf(varNew, 0) || varNew <= 0 {
		return Result{}, ErrNumericInstability
	}

	return Result{
		FocalVariance:       varNew,
		FocalAdvantageDelta: adjust * varNew,
		LikelihoodVariance:  likeVar,
		Adjust:              adjust,
	}, nil
}

// HalfAdjust returns the signed half-adjust term used to propagate this
// update to one focal player's other incident edges: side A's neighbors
// receive -0.5*adjust, side B's neighbors receive +0.5*adjust. The
// per-edge sign flip needed because the stored advantage column is always
// from that edge's own canonical-A viewpoint (not necessarily this
// player's viewpoint) is applied where the edge is updated, since only
// the store knows each neighbor edge's orientation.
func (r Result) HalfAdjust(side Side) float64 {
	half := 0.5 * r.Adjust
	if side == SideA {
		return -half
	}
	return half
}
