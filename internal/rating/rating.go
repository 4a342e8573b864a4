// Package rating applies one recorded set to the rating graph: player
// upsert, time-decay, focal-edge fetch-or-initialize, the Glicko kernel,
// and write-back, all inside the caller's transaction.
package rating

import (
	"context"
	"fmt"
	"time"

	"github.com/graphrank/ratings/internal/glicko"
	"github.com/graphrank/ratings/internal/graph"
	"github.com/graphrank/ratings/internal/remote"
	"github.com/graphrank/ratings/internal/store"
)

// Store is the subset of *store.Tx the updater needs: the graph engine's
// edge operations plus player/event/set bookkeeping. *store.Tx satisfies
// this structurally.
type Store interface {
	graph.EdgeStore
	AddPlayers(ctx context.Context, dataset string, players []store.PlayerData) error
	SetPlayerSetCounts(ctx context.Context, dataset string, id graph.PlayerID, won bool, setID string) error
	HasSet(ctx context.Context, setID string) (bool, error)
	AddSet(ctx context.Context, setID string, eventID uint64) error
	ApplyGlicko(ctx context.Context, dataset string, player1, player2 graph.PlayerID, setID string, winner int, decayRate, likelihoodVariance, focalVariance, focalAdjust float64) error
}

// Updater applies individual sets to the rating graph.
type Updater struct{}

// ApplySet performs the seven-step per-set contract. eventID/eventTime
// come from the event the set was fetched under; set.Time, when present,
// overrides eventTime as the timestamp used for decay and edge creation.
//
// Team matches (either side not exactly one player) and byes (either
// side empty) are out of scope: the set is silently skipped, never an
// error.
func (Updater) ApplySet(ctx context.Context, st Store, dataset string, cfg store.DatasetMetadata, eventID uint64, eventTime time.Time, set remote.Set) error {
	if len(set.Teams) != 2 || len(set.Teams[0]) != 1 || len(set.Teams[1]) != 1 {
		return nil
	}
	if set.Winner != 0 && set.Winner != 1 {
		return nil
	}

	already, err := st.HasSet(ctx, set.ID)
	if err != nil {
		return fmt.Errorf("check set replay: %w", err)
	}
	if already {
		return nil
	}

	p1 := set.Teams[0][0]
	p2 := set.Teams[1][0]

	if err := st.AddPlayers(ctx, dataset, []store.PlayerData{
		{ID: p1.ID, Name: p1.Name, Prefix: p1.Prefix, Discrim: p1.Discrim},
		{ID: p2.ID, Name: p2.Name, Prefix: p2.Prefix, Discrim: p2.Discrim},
	}); err != nil {
		return fmt.Errorf("upsert players: %w", err)
	}

	t := eventTime
	if set.Time != nil {
		t = *set.Time
	}

	if err := st.AdjustForTime(ctx, dataset, p1.ID, cfg.VarConst, t); err != nil {
		return fmt.Errorf("adjust for time (player1): %w", err)
	}
	if err := st.AdjustForTime(ctx, dataset, p2.ID, cfg.VarConst, t); err != nil {
		return fmt.Errorf("adjust for time (player2): %w", err)
	}

	adv, variance, ok, err := st.GetEdge(ctx, dataset, p1.ID, p2.ID)
	if err != nil {
		return fmt.Errorf("get focal edge: %w", err)
	}
	if !ok {
		adv, variance, err = graph.InitializeEdge(ctx, st, dataset, p1.ID, p2.ID, cfg.DecayConst, t)
		if err != nil {
			return fmt.Errorf("initialize focal edge: %w", err)
		}
	}

	result, err := glicko.Update(adv, variance, glicko.Side(set.Winner), cfg.DecayConst)
	if err != nil {
		return fmt.Errorf("glicko update: %w", err)
	}

	if err := st.ApplyGlicko(ctx, dataset, p1.ID, p2.ID, set.ID, set.Winner, cfg.DecayConst, result.LikelihoodVariance, result.FocalVariance, result.Adjust); err != nil {
		return fmt.Errorf("apply glicko write-back: %w", err)
	}

	if err := st.SetPlayerSetCounts(ctx, dataset, p1.ID, set.Winner == 0, set.ID); err != nil {
		return fmt.Errorf("record set count (player1): %w", err)
	}
	if err := st.SetPlayerSetCounts(ctx, dataset, p2.ID, set.Winner == 1, set.ID); err != nil {
		return fmt.Errorf("record set count (player2): %w", err)
	}

	if err := st.AddSet(ctx, set.ID, eventID); err != nil {
		return fmt.Errorf("record set under event: %w", err)
	}

	return nil
}
