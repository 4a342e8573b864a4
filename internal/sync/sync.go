// Package sync drives one incremental pass over a dataset: fetch new
// events and sets from the remote source, apply each through the rating
// updater inside one outermost transaction, commit, then advance the
// dataset's checkpoint.
package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/graphrank/ratings/internal/metrics"
	"github.com/graphrank/ratings/internal/rating"
	"github.com/graphrank/ratings/internal/remote"
	"github.com/graphrank/ratings/internal/store"
)

// Tx is the transactional handle the orchestrator needs beyond what
// rating.Updater already requires: recording an event and finishing the
// transaction. *store.Tx satisfies this structurally.
type Tx interface {
	rating.Store
	AddEvent(ctx context.Context, eventID uint64, slug string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner is the subset of *store.Store the orchestrator needs to open
// its one outermost transaction and read/advance a dataset's checkpoint.
// Begin returns the Tx interface (not the concrete *store.Tx) so the
// orchestrator can be exercised against an in-memory fake.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
	GetMetadata(ctx context.Context, name string) (store.DatasetMetadata, error)
	UpdateLastSync(ctx context.Context, name string, t time.Time) error
}

// storeBeginner adapts *store.Store to Beginner; pgx's *store.Tx already
// satisfies the Tx interface, this only widens Begin's return type.
type storeBeginner struct {
	*store.Store
}

func (b storeBeginner) Begin(ctx context.Context) (Tx, error) {
	tx, err := b.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// NewBeginner wraps a concrete *store.Store as a Beginner.
func NewBeginner(s *store.Store) Beginner {
	return storeBeginner{s}
}

// Orchestrator drives per-dataset incremental syncs.
type Orchestrator struct {
	Store   Beginner
	Remote  remote.Source
	Updater rating.Updater
	Now     func() time.Time
}

// SyncDataset performs one incremental pass for the named dataset,
// exactly per the five-step contract: compute the window, run everything
// in one transaction, commit, then advance the checkpoint in a separate
// statement so a checkpoint-write failure simply causes safe
// re-processing (sets are deduplicated) on the next run.
func (o Orchestrator) SyncDataset(ctx context.Context, name string) error {
	start := time.Now()
	setsApplied := 0
	status := "failure"
	defer func() {
		metrics.RecordSync(name, status, time.Since(start).Seconds())
		metrics.RecordSetsApplied(name, setsApplied)
	}()

	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	meta, err := o.Store.GetMetadata(ctx, name)
	if err != nil {
		metrics.RecordError("sync", "metadata")
		return fmt.Errorf("sync %s: get metadata: %w", name, err)
	}

	before := now()
	if meta.End != nil && meta.End.Before(before) {
		before = *meta.End
	}

	tournaments, err := o.Remote.ListTournaments(ctx, meta.GameID, meta.Country, meta.State, meta.LastSync, before)
	if err != nil {
		metrics.RecordError("sync", "list_tournaments")
		return fmt.Errorf("sync %s: list tournaments: %w", name, err)
	}

	type eventRef struct {
		tournamentID uint64
		event        remote.Event
	}
	var events []eventRef
	for _, tr := range tournaments {
		for _, ev := range tr.Events {
			events = append(events, eventRef{tournamentID: tr.ID, event: ev})
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].event.StartsAt.Before(events[j].event.StartsAt)
	})

	tx, err := o.Store.Begin(ctx)
	if err != nil {
		metrics.RecordError("sync", "begin_tx")
		return fmt.Errorf("sync %s: begin transaction: %w", name, err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Str("dataset", name).Msg("rollback failed")
			}
		}
	}()

	for _, er := range events {
		if err := tx.AddEvent(ctx, er.event.ID, er.event.Slug); err != nil {
			log.Error().Err(err).Str("dataset", name).Uint64("event", er.event.ID).Msg("record event failed")
			metrics.RecordError("sync", "add_event")
			return fmt.Errorf("sync %s: record event %d: %w", name, er.event.ID, err)
		}

		sets, err := o.Remote.ListEventSets(ctx, er.event.ID)
		if err != nil {
			log.Error().Err(err).Str("dataset", name).Uint64("event", er.event.ID).Msg("list event sets failed")
			metrics.RecordError("sync", "list_event_sets")
			return fmt.Errorf("sync %s: list sets for event %d: %w", name, er.event.ID, err)
		}

		sort.SliceStable(sets, func(i, j int) bool {
			ti := sets[i].Time
			tj := sets[j].Time
			a := er.event.StartsAt
			b := er.event.StartsAt
			if ti != nil {
				a = *ti
			}
			if tj != nil {
				b = *tj
			}
			return a.Before(b)
		})

		for _, set := range sets {
			if err := o.Updater.ApplySet(ctx, tx, name, meta, er.event.ID, er.event.StartsAt, set); err != nil {
				log.Error().Err(err).Str("dataset", name).Str("set", set.ID).Msg("apply set failed")
				metrics.RecordError("sync", "apply_set")
				return fmt.Errorf("sync %s: apply set %s: %w", name, set.ID, err)
			}
			setsApplied++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordError("sync", "commit")
		return fmt.Errorf("sync %s: commit: %w", name, err)
	}
	committed = true

	if err := o.Store.UpdateLastSync(ctx, name, before); err != nil {
		log.Error().Err(err).Str("dataset", name).Msg("checkpoint write failed; next sync will re-process this window")
		metrics.RecordError("sync", "update_checkpoint")
		return fmt.Errorf("sync %s: update checkpoint: %w", name, err)
	}

	status = "success"
	log.Info().Str("dataset", name).Time("before", before).Int("events", len(events)).Msg("sync complete")
	return nil
}
