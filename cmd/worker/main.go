// Command worker runs the continuous rating sync service: nightly cron
// pass over every registered dataset, plus an immediate pass on startup.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/graphrank/ratings/internal/cache"
	"github.com/graphrank/ratings/internal/config"
	"github.com/graphrank/ratings/internal/metrics"
	"github.com/graphrank/ratings/internal/rating"
	"github.com/graphrank/ratings/internal/remote"
	"github.com/graphrank/ratings/internal/scheduler"
	"github.com/graphrank/ratings/internal/store"
	ratingsync "github.com/graphrank/ratings/internal/sync"
)

func main() {
	setupLogger()
	log.Info().Msg("starting graphrank rating sync worker")

	cfg := config.MustLoad()
	log.Info().Str("env", cfg.AppEnv).Str("log_level", cfg.LogLevel).Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal, shutting down")
		cancel()
	}()

	st, err := store.Open(ctx, cfg.DatabaseDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer st.Close()
	log.Info().Msg("store connection established")

	var respCache *cache.Cache
	if cfg.RedisEnabled {
		respCache, err = cache.NewRedisCache(cache.Config{
			Host:     cfg.RedisHost,
			Port:     strconv.Itoa(cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to redis, continuing without cache")
		} else {
			defer respCache.Close()
			log.Info().Msg("redis cache connected")
		}
	}

	httpClient := &http.Client{Timeout: cfg.RemoteTimeout}
	source := remote.NewStartGGSource(cfg.RemoteEndpoint, cfg.AuthToken, httpClient, respCache)

	orchestrator := ratingsync.Orchestrator{
		Store:   ratingsync.NewBeginner(st),
		Remote:  source,
		Updater: rating.Updater{},
	}

	if cfg.EnableMetrics {
		go startMetricsServer(strconv.Itoa(cfg.MetricsPort))
	}

	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
				active, idle := st.PoolStats()
				metrics.UpdatePoolStats(active, idle)
			case <-ctx.Done():
				return
			}
		}
	}()

	sched := scheduler.New(cfg, orchestrator, st)
	if cfg.EnableScheduler {
		if err := sched.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start scheduler")
		}
	}

	<-ctx.Done()

	log.Info().Msg("shutting down scheduler")
	sched.Stop()
	log.Info().Msg("worker shutdown complete")
}

func setupLogger() {
	if os.Getenv("APP_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	level := zerolog.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, err := zerolog.ParseLevel(lvl); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
}

func startMetricsServer(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info().Str("port", port).Msg("metrics server listening")
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
