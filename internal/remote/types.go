// Package remote is the abstract tournament-API source the core depends
// on: paginated game search, tournament/event listing, and event-set
// retrieval, with the retry and dedup policy spec'd for a GraphQL-like
// upstream. Response envelopes use nullable fields at every level; a row
// missing a required field along the way is dropped rather than failing
// the whole page.
package remote

import (
	"context"
	"time"

	"github.com/graphrank/ratings/internal/graph"
)

// Game is one entry in a search_games result.
type Game struct {
	ID   uint64
	Name string
	Slug string
}

// Player is one participant as carried on the wire: ids are 64-bit
// unsigned integers carried as strings, per the external schema.
type Player struct {
	ID      graph.PlayerID
	Name    string
	Prefix  *string
	Discrim string
}

// Event is one tournament event (a slug and start time).
type Event struct {
	ID       uint64
	Slug     string
	StartsAt time.Time
}

// Tournament groups events administratively; only its events are
// consumed downstream, but the id is kept for dedup.
type Tournament struct {
	ID       uint64
	StartsAt time.Time
	Events   []Event
}

// Set is one recorded match: two sides (team matches, where either side
// has more than one player, are out of scope and are filtered upstream
// by the caller, not the adapter).
type Set struct {
	ID     string
	Time   *time.Time
	Teams  [][]Player
	Winner int
}

// Source is the abstract remote collaborator the core depends on.
type Source interface {
	// SearchGames returns up to 10 matches for a free-text game name.
	SearchGames(ctx context.Context, name string) ([]Game, error)

	// ListTournaments returns every tournament (deduplicated by id,
	// ascending by StartsAt) with events for gameID, in the window
	// (after, before], optionally filtered by country/state.
	ListTournaments(ctx context.Context, gameID uint64, country, state *string, after, before time.Time) ([]Tournament, error)

	// ListEventSets returns every set recorded under eventID.
	ListEventSets(ctx context.Context, eventID uint64) ([]Set, error)
}
