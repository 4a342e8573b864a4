// Package store is the persistent store: a Postgres-backed dataset
// registry plus per-dataset player and advantage-network tables, reached
// through pgxpool. It implements graph.EdgeStore so the rating graph
// engine never has to know it's talking to a real database, and it hosts
// the bulk Glicko propagation update that touches every edge incident to
// the two players in one set.
package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// validNamePattern is the safe-identifier check every dataset name must
// pass before it is interpolated into a table name. Postgres identifiers
// quoted with double quotes accept nearly anything, but the dataset name
// is interpolated into DDL and query text and into Postgres-derived index
// names, so the allow-list stays conservative.
var validNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,63}$`)

func validateName(name string) error {
	if !validNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// playersTable and networkTable return the quoted, validated per-dataset
// table identifiers. Callers must validateName(dataset) first.
func playersTable(dataset string) string { return fmt.Sprintf(`"%s_players"`, dataset) }
func networkTable(dataset string) string { return fmt.Sprintf(`"%s_network"`, dataset) }

// querier is the subset of pgx's query surface shared by *pgxpool.Pool and
// pgx.Tx, so edge and player operations can be written once and run either
// directly against the pool or inside the caller's transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns the connection pool and is the entry point for dataset
// registry operations and read-only convenience queries run outside a
// sync transaction.
type Store struct {
	pool *pgxpool.Pool
	edgeOps
}

// Open creates the pool, pings it, and ensures the registry tables exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %v", ErrStoreUnavailable, err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrStoreUnavailable, err)
	}

	if err := ensureRegistry(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	log.Info().Msg("connected to ratings store")

	return &Store{pool: pool, edgeOps: edgeOps{q: pool}}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// PoolStats returns the current connection pool occupancy, for a caller
// to feed into a gauge on a periodic tick.
func (s *Store) PoolStats() (active, idle int32) {
	stat := s.pool.Stat()
	return stat.AcquiredConns(), stat.IdleConns()
}

// Health pings the pool with a short timeout, for use by a liveness probe.
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Tx wraps one outermost transaction: exactly one per dataset sync, opened
// by the orchestrator and passed down through the match updater.
type Tx struct {
	tx pgx.Tx
	edgeOps
}

// Begin opens a new transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrStoreUnavailable, err)
	}
	return &Tx{tx: tx, edgeOps: edgeOps{q: tx}}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback rolls the transaction back. Calling it after a successful
// Commit is a no-op error pgx already tolerates (ErrTxClosed), matching
// the usual `defer tx.Rollback(ctx)` idiom.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return err
	}
	return nil
}

const registrySchema = `
CREATE TABLE IF NOT EXISTS datasets (
	name TEXT UNIQUE NOT NULL,
	start TIMESTAMPTZ NOT NULL,
	"end" TIMESTAMPTZ,
	last_sync TIMESTAMPTZ NOT NULL,
	game_id BIGINT NOT NULL,
	game_name TEXT NOT NULL,
	game_slug TEXT NOT NULL,
	country TEXT,
	state TEXT,
	decay_const DOUBLE PRECISION NOT NULL,
	var_const DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS players (
	id BIGINT PRIMARY KEY,
	discrim TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL,
	prefix TEXT
);

CREATE TABLE IF NOT EXISTS events (
	id BIGINT PRIMARY KEY,
	slug TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sets (
	id TEXT PRIMARY KEY,
	event BIGINT NOT NULL REFERENCES events
);
`

func ensureRegistry(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, registrySchema)
	return err
}
