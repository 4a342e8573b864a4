package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/graphrank/ratings/internal/graph"
)

// edgeOps implements graph.EdgeStore against whatever querier it is given
// (the pool for read-only use, a Tx inside a sync). Embedding it in both
// Store and Tx lets either type satisfy graph.EdgeStore directly.
type edgeOps struct {
	q querier
}

func parsePlayerID(p graph.PlayerID) (int64, error) {
	id, err := strconv.ParseInt(string(p), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed player id %q", ErrIntegrityViolation, p)
	}
	return id, nil
}

// GetEdge implements graph.EdgeStore.
func (e edgeOps) GetEdge(ctx context.Context, dataset string, p, q graph.PlayerID) (float64, float64, bool, error) {
	if p == q {
		return 0, 0, true, nil
	}
	if err := validateName(dataset); err != nil {
		return 0, 0, false, err
	}
	a, err := parsePlayerID(p)
	if err != nil {
		return 0, 0, false, err
	}
	c, err := strconv.ParseInt(string(q), 10, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: malformed player id %q", ErrIntegrityViolation, q)
	}

	query := fmt.Sprintf(`
SELECT CASE WHEN $1 > $2 THEN -advantage ELSE advantage END, variance
FROM %s WHERE player_a = LEAST($1,$2) AND player_b = GREATEST($1,$2)`, networkTable(dataset))

	var adv, variance float64
	err = e.q.QueryRow(ctx, query, a, c).Scan(&adv, &variance)
	if err == pgx.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("get edge: %w", err)
	}
	return adv, variance, true, nil
}

// InsertEdge implements graph.EdgeStore.
func (e edgeOps) InsertEdge(ctx context.Context, dataset string, p, q graph.PlayerID, adv, variance float64, t time.Time) error {
	if err := validateName(dataset); err != nil {
		return err
	}
	a, err := parsePlayerID(p)
	if err != nil {
		return err
	}
	b, err := parsePlayerID(q)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (player_a, player_b, advantage, variance, last_updated)
VALUES (LEAST($1,$2), GREATEST($1,$2), CASE WHEN $1 > $2 THEN -$3 ELSE $3 END, $4, $5)`, networkTable(dataset))

	_, err = e.q.Exec(ctx, query, a, b, adv, variance, t)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

// Neighbors implements graph.EdgeStore.
func (e edgeOps) Neighbors(ctx context.Context, dataset string, p graph.PlayerID) ([]graph.Edge, error) {
	if err := validateName(dataset); err != nil {
		return nil, err
	}
	id, err := parsePlayerID(p)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT CASE WHEN $1 = player_b THEN player_a ELSE player_b END AS other,
       CASE WHEN $1 = player_b THEN -advantage ELSE advantage END AS advantage,
       variance
FROM %s WHERE player_a = $1 OR player_b = $1`, networkTable(dataset))

	rows, err := e.q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("neighbors: %w", err)
	}
	defer rows.Close()

	var out []graph.Edge
	for rows.Next() {
		var other int64
		var adv, variance float64
		if err := rows.Scan(&other, &adv, &variance); err != nil {
			return nil, fmt.Errorf("neighbors scan: %w", err)
		}
		out = append(out, graph.Edge{
			Other:     graph.PlayerID(strconv.FormatInt(other, 10)),
			Advantage: adv,
			Variance:  variance,
		})
	}
	return out, rows.Err()
}

// EitherIsolated implements graph.EdgeStore.
func (e edgeOps) EitherIsolated(ctx context.Context, dataset string, p, q graph.PlayerID) (bool, error) {
	if err := validateName(dataset); err != nil {
		return false, err
	}
	a, err := parsePlayerID(p)
	if err != nil {
		return false, err
	}
	b, err := parsePlayerID(q)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
SELECT EXISTS(SELECT 1 FROM %[1]s WHERE player_a = $1 OR player_b = $1),
       EXISTS(SELECT 1 FROM %[1]s WHERE player_a = $2 OR player_b = $2)`,
		networkTable(dataset))

	var pHasEdge, qHasEdge bool
	if err := e.q.QueryRow(ctx, query, a, b).Scan(&pHasEdge, &qHasEdge); err != nil {
		return false, fmt.Errorf("either isolated: %w", err)
	}
	return !pHasEdge || !qHasEdge, nil
}

// AdjustForTime implements graph.EdgeStore.
func (e edgeOps) AdjustForTime(ctx context.Context, dataset string, p graph.PlayerID, varConst float64, t time.Time) error {
	if err := validateName(dataset); err != nil {
		return err
	}
	id, err := parsePlayerID(p)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
UPDATE %s SET
  variance = LEAST(variance + $2 * EXTRACT(EPOCH FROM ($3 - last_updated)), %f),
  last_updated = $3
WHERE player_a = $1 OR player_b = $1`, networkTable(dataset), graph.MaxVariance)

	_, err = e.q.Exec(ctx, query, id, varConst, t)
	if err != nil {
		return fmt.Errorf("adjust for time: %w", err)
	}
	return nil
}

// AllPlayers lists every dataset-player id, for the ranking synthesizer's
// initial r[i] = 1/N assignment.
func (e edgeOps) AllPlayers(ctx context.Context, dataset string) ([]graph.PlayerID, error) {
	if err := validateName(dataset); err != nil {
		return nil, err
	}
	rows, err := e.q.Query(ctx, fmt.Sprintf(`SELECT id FROM %s`, playersTable(dataset)))
	if err != nil {
		return nil, fmt.Errorf("all players: %w", err)
	}
	defer rows.Close()

	var out []graph.PlayerID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("all players scan: %w", err)
		}
		out = append(out, graph.PlayerID(strconv.FormatInt(id, 10)))
	}
	return out, rows.Err()
}

// ApplyGlicko performs the three-statement bulk update described by the
// Glicko kernel: propagate the half-adjust to every other edge incident
// to player1, then to every other edge incident to player2, then write
// the focal edge's new state and append the set id to the winning side's
// list.
func (e edgeOps) ApplyGlicko(ctx context.Context, dataset string, player1, player2 graph.PlayerID, setID string, winner int, decayRate, likelihoodVariance, focalVariance, focalAdjust float64) error {
	if err := validateName(dataset); err != nil {
		return err
	}
	p1, err := parsePlayerID(player1)
	if err != nil {
		return err
	}
	p2, err := parsePlayerID(player2)
	if err != nil {
		return err
	}

	propagate := fmt.Sprintf(`
UPDATE %s SET
  variance = 1.0 / (1.0/variance + $2/$3),
  advantage = advantage + $2 * (CASE WHEN $1 = player_a THEN -$4 ELSE $4 END) / (1.0/variance + $2/$3)
WHERE (player_a = $1 AND player_b != $5) OR (player_b = $1 AND player_a != $5)`, networkTable(dataset))

	if _, err := e.q.Exec(ctx, propagate, p1, decayRate, likelihoodVariance, -0.5*focalAdjust, p2); err != nil {
		return fmt.Errorf("propagate to player1 neighbors: %w", err)
	}
	if _, err := e.q.Exec(ctx, propagate, p2, decayRate, likelihoodVariance, 0.5*focalAdjust, p1); err != nil {
		return fmt.Errorf("propagate to player2 neighbors: %w", err)
	}

	focal := fmt.Sprintf(`
UPDATE %s SET
  variance = $3,
  advantage = advantage + (CASE WHEN $1 > $2 THEN -$4 ELSE $4 END) * $3,
  sets_a = CASE WHEN $5 = ($1 > $2) THEN sets_a || $6 || ';' ELSE sets_a END,
  sets_b = CASE WHEN $5 = ($2 > $1) THEN sets_b || $6 || ';' ELSE sets_b END
WHERE player_a = LEAST($1,$2) AND player_b = GREATEST($1,$2)`, networkTable(dataset))

	won := winner != 0
	if _, err := e.q.Exec(ctx, focal, p1, p2, focalVariance, focalAdjust, won, setID); err != nil {
		return fmt.Errorf("apply focal edge: %w", err)
	}
	return nil
}
