// Package cache wraps a Redis client as an optional response cache for the
// remote tournament-API adapter. Every lookup degrades to a cache miss on
// error; nothing here is load-bearing for correctness.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Config mirrors the connection fields the worker's configuration layer
// already carries for Redis.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Cache is a thin, miss-tolerant wrapper over a redis.Client.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache dials Redis and verifies connectivity with a PING.
func NewRedisCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Cache{client: client, ttl: 15 * time.Minute}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

func searchGamesKey(name string) string {
	return "ratings:search_games:" + name
}

// GetSearchGames returns a previously cached SearchGames result. The value
// type is left generic (any) at the call site via JSON so this package
// stays free of a dependency on remote's types.
func (c *Cache) GetSearchGames(ctx context.Context, name string, out any) bool {
	raw, err := c.client.Get(ctx, searchGamesKey(name)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Msg("cache get failed, treating as miss")
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Debug().Err(err).Msg("cache value corrupt, treating as miss")
		return false
	}
	return true
}

// SetSearchGames stores a SearchGames result with the cache's default TTL.
func (c *Cache) SetSearchGames(ctx context.Context, name string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Debug().Err(err).Msg("cache marshal failed, skipping write")
		return
	}
	if err := c.client.Set(ctx, searchGamesKey(name), raw, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Msg("cache set failed")
	}
}
