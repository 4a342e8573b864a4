package store

import (
	"context"
	"fmt"
	"time"

	"github.com/graphrank/ratings/internal/metrics"
)

// DatasetMetadata is the immutable configuration (plus the mutable
// last-sync checkpoint) of one rating space.
type DatasetMetadata struct {
	Start      time.Time
	End        *time.Time
	LastSync   time.Time
	GameID     uint64
	GameName   string
	GameSlug   string
	Country    *string
	State      *string
	DecayConst float64
	VarConst   float64
}

const networkDDL = `
CREATE TABLE %[1]s (
	player_a BIGINT NOT NULL,
	player_b BIGINT NOT NULL,
	advantage DOUBLE PRECISION NOT NULL,
	variance DOUBLE PRECISION NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	sets_a TEXT NOT NULL DEFAULT '',
	sets_b TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (player_a, player_b),
	CHECK (player_a < player_b),
	FOREIGN KEY (player_a) REFERENCES %[2]s ON DELETE CASCADE,
	FOREIGN KEY (player_b) REFERENCES %[2]s ON DELETE CASCADE
);
CREATE INDEX ON %[1]s (player_b);
`

const playersDDL = `
CREATE TABLE %[1]s (
	id BIGINT PRIMARY KEY REFERENCES players,
	sets_won TEXT NOT NULL DEFAULT '',
	sets_lost TEXT NOT NULL DEFAULT ''
);
`

// NewDataset registers a dataset and creates its two per-dataset tables.
func (s *Store) NewDataset(ctx context.Context, name string, meta DatasetMetadata) (err error) {
	defer recordDatasetQuery("new_dataset", &err)

	if err := validateName(name); err != nil {
		return err
	}

	tx, beginErr := s.pool.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, beginErr)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO datasets (name, start, "end", last_sync, game_id, game_name, game_slug, country, state, decay_const, var_const)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		name, meta.Start, meta.End, meta.LastSync, int64(meta.GameID), meta.GameName, meta.GameSlug,
		meta.Country, meta.State, meta.DecayConst, meta.VarConst)
	if isUniqueViolation(err) {
		return ErrNameConflict
	}
	if err != nil {
		return fmt.Errorf("new dataset: %w", err)
	}

	if _, err = tx.Exec(ctx, fmt.Sprintf(playersDDL, playersTable(name))); err != nil {
		return fmt.Errorf("create players table: %w", err)
	}
	if _, err = tx.Exec(ctx, fmt.Sprintf(networkDDL, networkTable(name), playersTable(name))); err != nil {
		return fmt.Errorf("create network table: %w", err)
	}

	return tx.Commit(ctx)
}

// GetMetadata fetches one dataset's registry row.
func (s *Store) GetMetadata(ctx context.Context, name string) (_ DatasetMetadata, err error) {
	defer recordDatasetQuery("get_metadata", &err)

	row := s.pool.QueryRow(ctx, `
SELECT start, "end", last_sync, game_id, game_name, game_slug, country, state, decay_const, var_const
FROM datasets WHERE name = $1`, name)

	var m DatasetMetadata
	var gameID int64
	scanErr := row.Scan(&m.Start, &m.End, &m.LastSync, &gameID, &m.GameName, &m.GameSlug, &m.Country, &m.State, &m.DecayConst, &m.VarConst)
	if scanErr != nil {
		err = fmt.Errorf("%w: dataset %q: %v", ErrNotFound, name, scanErr)
		return DatasetMetadata{}, err
	}
	m.GameID = uint64(gameID)
	return m, nil
}

// recordDatasetQuery reports a registry operation's outcome to the store
// query counter; called via defer with the named error result.
func recordDatasetQuery(operation string, err *error) {
	status := "success"
	if *err != nil {
		status = "failure"
	}
	metrics.RecordStoreQuery(operation, status)
}

// ListDatasetNames returns every registered dataset's name.
func (s *Store) ListDatasetNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM datasets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list dataset names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("list dataset names scan: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// UpdateLastSync advances the checkpoint in its own statement, separate
// from the sync transaction itself, per the orchestrator's commit-then-
// checkpoint contract.
func (s *Store) UpdateLastSync(ctx context.Context, name string, before time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE datasets SET last_sync = $2 WHERE name = $1`, name, before)
	if err != nil {
		return fmt.Errorf("update last_sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: dataset %q", ErrNotFound, name)
	}
	return nil
}

// RenameDataset is a no-op when old == new, ErrNameConflict on collision,
// ErrNotFound when old doesn't exist.
func (s *Store) RenameDataset(ctx context.Context, oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	if err := validateName(newName); err != nil {
		return err
	}
	if err := validateName(oldName); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE datasets SET name = $2 WHERE name = $1`, oldName, newName)
	if isUniqueViolation(err) {
		return ErrNameConflict
	}
	if err != nil {
		return fmt.Errorf("rename dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: dataset %q", ErrNotFound, oldName)
	}

	renames := []string{
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, playersTable(oldName), playersTable(newName)),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, networkTable(oldName), networkTable(newName)),
	}
	for _, stmt := range renames {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("rename dataset tables: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// DeleteDataset drops the dataset's two tables and its registry row.
// Cascade delete on the two per-dataset tables' foreign keys to the
// global players table never touches the global players rows themselves.
func (s *Store) DeleteDataset(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM datasets WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: dataset %q", ErrNotFound, name)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, networkTable(name))); err != nil {
		return fmt.Errorf("drop network table: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, playersTable(name))); err != nil {
		return fmt.Errorf("drop players table: %w", err)
	}

	return tx.Commit(ctx)
}
