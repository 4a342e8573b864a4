package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/graphrank/ratings/internal/graph"
)

// PlayerData is one globally-identified player as carried across the
// remote adapter and the store.
type PlayerData struct {
	ID      graph.PlayerID
	Name    string
	Prefix  *string
	Discrim string
}

// AddPlayers upserts the global player rows and ensures a dataset-player
// row exists for each, idempotently (INSERT ... ON CONFLICT DO NOTHING,
// matching the source's INSERT OR IGNORE semantics).
func (e edgeOps) AddPlayers(ctx context.Context, dataset string, players []PlayerData) error {
	if err := validateName(dataset); err != nil {
		return err
	}
	for _, p := range players {
		id, err := parsePlayerID(p.ID)
		if err != nil {
			return err
		}
		if _, err := e.q.Exec(ctx, `
INSERT INTO players (id, discrim, name, prefix) VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO NOTHING`, id, p.Discrim, p.Name, p.Prefix); err != nil {
			return fmt.Errorf("add player %s: %w", p.ID, err)
		}
		if _, err := e.q.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, playersTable(dataset)), id); err != nil {
			return fmt.Errorf("add dataset-player %s: %w", p.ID, err)
		}
	}
	return nil
}

// GetPlayer fetches one player's global row.
func (e edgeOps) GetPlayer(ctx context.Context, id graph.PlayerID) (PlayerData, error) {
	pid, err := parsePlayerID(id)
	if err != nil {
		return PlayerData{}, err
	}
	var p PlayerData
	p.ID = id
	err = e.q.QueryRow(ctx, `SELECT name, prefix, discrim FROM players WHERE id = $1`, pid).
		Scan(&p.Name, &p.Prefix, &p.Discrim)
	if err != nil {
		return PlayerData{}, fmt.Errorf("%w: player %s: %v", ErrNotFound, id, err)
	}
	return p, nil
}

// GetPlayerSetCounts returns (sets_won, sets_lost) counts for one
// dataset-player, derived from the ';'-delimited append-only lists.
func (e edgeOps) GetPlayerSetCounts(ctx context.Context, dataset string, id graph.PlayerID) (won, lost int, err error) {
	if err = validateName(dataset); err != nil {
		return 0, 0, err
	}
	pid, err := parsePlayerID(id)
	if err != nil {
		return 0, 0, err
	}
	var setsWon, setsLost string
	err = e.q.QueryRow(ctx, fmt.Sprintf(`SELECT sets_won, sets_lost FROM %s WHERE id = $1`, playersTable(dataset)), pid).
		Scan(&setsWon, &setsLost)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: dataset-player %s: %v", ErrNotFound, id, err)
	}
	return strings.Count(setsWon, ";"), strings.Count(setsLost, ";"), nil
}

// SetPlayerSetCounts appends setID to the won or lost list for one
// dataset-player.
func (e edgeOps) SetPlayerSetCounts(ctx context.Context, dataset string, id graph.PlayerID, won bool, setID string) error {
	if err := validateName(dataset); err != nil {
		return err
	}
	pid, err := parsePlayerID(id)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE %s SET
  sets_won = CASE WHEN $2 THEN sets_won || $3 || ';' ELSE sets_won END,
  sets_lost = CASE WHEN $2 THEN sets_lost ELSE sets_lost || $3 || ';' END
WHERE id = $1`, playersTable(dataset))
	if _, err := e.q.Exec(ctx, query, pid, won, setID); err != nil {
		return fmt.Errorf("set player set counts: %w", err)
	}
	return nil
}

// AddEvent records an event, a no-op if it already exists.
func (e edgeOps) AddEvent(ctx context.Context, eventID uint64, slug string) error {
	_, err := e.q.Exec(ctx, `INSERT INTO events (id, slug) VALUES ($1,$2) ON CONFLICT (id) DO NOTHING`, int64(eventID), slug)
	if err != nil {
		return fmt.Errorf("add event: %w", err)
	}
	return nil
}

// HasSet reports whether setID has already been recorded, letting the
// updater skip a set entirely (not just the final insert) on replay —
// required because the Glicko write-back is not itself idempotent.
func (e edgeOps) HasSet(ctx context.Context, setID string) (bool, error) {
	var exists bool
	err := e.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sets WHERE id = $1)`, setID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has set: %w", err)
	}
	return exists, nil
}

// AddSet records a set under its event, a no-op if it already exists —
// this is what makes re-ingesting the same set idempotent.
func (e edgeOps) AddSet(ctx context.Context, setID string, eventID uint64) error {
	_, err := e.q.Exec(ctx, `INSERT INTO sets (id, event) VALUES ($1,$2) ON CONFLICT (id) DO NOTHING`, setID, int64(eventID))
	if err != nil {
		return fmt.Errorf("add set: %w", err)
	}
	return nil
}

// playerIDString converts a wire-level uint64 id into a PlayerID, for
// assembling PlayerData; nothing in the module calls it.
func playerIDString(id uint64) graph.PlayerID {
	return graph.PlayerID(strconv.FormatUint(id, 10))
}
