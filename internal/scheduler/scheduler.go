// Package scheduler drives the worker's background sync cadence: a
// nightly cron pass over every registered dataset, plus an immediate
// pass at startup. Each dataset's sync runs in its own goroutine so a
// slow or failing dataset never blocks the others.
package scheduler

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/graphrank/ratings/internal/config"
	"github.com/graphrank/ratings/internal/store"
	ratingsync "github.com/graphrank/ratings/internal/sync"
)

// Scheduler runs the sync orchestrator for every dataset on a cron
// schedule, plus once immediately when started if InitialSyncEnabled is
// set.
type Scheduler struct {
	cfg          *config.Config
	orchestrator ratingsync.Orchestrator
	datasets     DatasetLister
	cron         *cron.Cron
}

// DatasetLister is the subset of *store.Store the scheduler needs to
// discover which datasets to sync.
type DatasetLister interface {
	ListDatasetNames(ctx context.Context) ([]string, error)
}

// New builds a Scheduler.
func New(cfg *config.Config, orchestrator ratingsync.Orchestrator, datasets DatasetLister) *Scheduler {
	return &Scheduler{cfg: cfg, orchestrator: orchestrator, datasets: datasets, cron: cron.New()}
}

// Start schedules the nightly pass and, when InitialSyncEnabled is set,
// kicks off an immediate pass in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.NightlySyncCron, func() {
		log.Info().Msg("running nightly sync pass")
		s.syncAll(ctx)
	}); err != nil {
		return fmt.Errorf("schedule nightly sync: %w", err)
	}
	s.cron.Start()
	log.Info().Str("schedule", s.cfg.NightlySyncCron).Msg("nightly sync scheduled")

	if s.cfg.InitialSyncEnabled {
		go s.syncAll(ctx)
	}
	return nil
}

// Stop halts the cron scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// syncAll runs SyncDataset for every registered dataset concurrently, one
// goroutine per dataset, and waits for them all to finish.
func (s *Scheduler) syncAll(ctx context.Context) {
	names, err := s.datasets.ListDatasetNames(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list datasets for sync")
		return
	}
	if len(names) == 0 {
		log.Info().Msg("no datasets registered, nothing to sync")
		return
	}

	var wg stdsync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := s.orchestrator.SyncDataset(ctx, name); err != nil {
				log.Error().Err(err).Str("dataset", name).Msg("dataset sync failed")
			}
		}(name)
	}
	wg.Wait()
}

var _ DatasetLister = (*store.Store)(nil)
