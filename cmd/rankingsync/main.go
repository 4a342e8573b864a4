// Command rankingsync runs the ranking synthesizer as a periodic batch
// job: once immediately, then on a cron schedule, over every registered
// dataset, logging how many players were ranked and the ten highest.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/graphrank/ratings/internal/ranking"
	"github.com/graphrank/ratings/internal/store"
)

type jobConfig struct {
	databaseDSN string
	base        float64
	topK        int
	cronSpec    string
	runOnce     bool
}

func loadJobConfig() jobConfig {
	base := 1.5
	if v := os.Getenv("RANKING_BASE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			base = parsed
		}
	}
	topK := 100
	if v := os.Getenv("RANKING_TOP_K"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			topK = parsed
		}
	}
	cronSpec := os.Getenv("RANKING_CRON")
	if cronSpec == "" {
		cronSpec = "0 3 * * *"
	}
	return jobConfig{
		databaseDSN: os.Getenv("DATABASE_DSN"),
		base:        base,
		topK:        topK,
		cronSpec:    cronSpec,
		runOnce:     os.Getenv("RUN_ONCE") == "true",
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := loadJobConfig()
	if cfg.databaseDSN == "" {
		logger.Fatal("DATABASE_DSN is required")
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.databaseDSN)
	if err != nil {
		logger.Fatal("failed to connect to store", zap.Error(err))
	}
	defer st.Close()

	run := func() {
		if err := runAllDatasets(ctx, st, cfg, logger); err != nil {
			logger.Error("ranking sync failed", zap.Error(err))
		}
	}

	if cfg.runOnce {
		run()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.cronSpec, run); err != nil {
		logger.Fatal("failed to schedule ranking sync", zap.Error(err))
	}
	go run()
	c.Start()
	logger.Info("ranking sync scheduled", zap.String("schedule", cfg.cronSpec))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	c.Stop()
}

func runAllDatasets(ctx context.Context, st *store.Store, cfg jobConfig, logger *zap.Logger) error {
	names, err := st.ListDatasetNames(ctx)
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}

	for _, name := range names {
		start := time.Now()
		ranked, err := ranking.Compute(ctx, st, name, cfg.base, cfg.topK)
		if err != nil {
			logger.Error("ranking compute failed", zap.String("dataset", name), zap.Error(err))
			continue
		}
		logger.Info("ranking computed",
			zap.String("dataset", name),
			zap.Int("players", len(ranked)),
			zap.Duration("duration", time.Since(start)),
		)
		for i, r := range ranked {
			if i >= 10 {
				break
			}
			logger.Info("top player", zap.String("dataset", name), zap.Int("rank", i+1), zap.String("player", string(r.Player)), zap.Float64("points", r.Points))
		}
	}
	return nil
}
