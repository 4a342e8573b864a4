package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrank/ratings/internal/graph"
	"github.com/graphrank/ratings/internal/rating"
	"github.com/graphrank/ratings/internal/remote"
	"github.com/graphrank/ratings/internal/store"
)

// fakeTx is an in-memory rating.Store plus the bookkeeping sync.Tx adds,
// letting the orchestrator run without a database.
type fakeTx struct {
	edges       map[[2]graph.PlayerID]struct{ adv, v float64 }
	lastUpdated map[graph.PlayerID]time.Time
	sets        map[string]bool
	events      map[uint64]string
	rolledBack  bool
	committed   bool
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		edges:       map[[2]graph.PlayerID]struct{ adv, v float64 }{},
		lastUpdated: map[graph.PlayerID]time.Time{},
		sets:        map[string]bool{},
		events:      map[uint64]string{},
	}
}

func (f *fakeTx) canon(p, q graph.PlayerID) ([2]graph.PlayerID, bool) {
	if p < q {
		return [2]graph.PlayerID{p, q}, false
	}
	return [2]graph.PlayerID{q, p}, true
}

func (f *fakeTx) GetEdge(ctx context.Context, dataset string, p, q graph.PlayerID) (float64, float64, bool, error) {
	if p == q {
		return 0, 0, true, nil
	}
	key, flipped := f.canon(p, q)
	e, ok := f.edges[key]
	if !ok {
		return 0, 0, false, nil
	}
	if flipped {
		return -e.adv, e.v, true, nil
	}
	return e.adv, e.v, true, nil
}

func (f *fakeTx) InsertEdge(ctx context.Context, dataset string, p, q graph.PlayerID, adv, v float64, t time.Time) error {
	key, flipped := f.canon(p, q)
	if flipped {
		adv = -adv
	}
	f.edges[key] = struct{ adv, v float64 }{adv, v}
	return nil
}

func (f *fakeTx) Neighbors(ctx context.Context, dataset string, p graph.PlayerID) ([]graph.Edge, error) {
	return nil, nil
}

func (f *fakeTx) EitherIsolated(ctx context.Context, dataset string, p, q graph.PlayerID) (bool, error) {
	return true, nil
}

func (f *fakeTx) AdjustForTime(ctx context.Context, dataset string, p graph.PlayerID, varConst float64, t time.Time) error {
	f.lastUpdated[p] = t
	return nil
}

func (f *fakeTx) AllPlayers(ctx context.Context, dataset string) ([]graph.PlayerID, error) {
	return nil, nil
}

func (f *fakeTx) AddPlayers(ctx context.Context, dataset string, players []store.PlayerData) error {
	return nil
}

func (f *fakeTx) SetPlayerSetCounts(ctx context.Context, dataset string, id graph.PlayerID, won bool, setID string) error {
	return nil
}

func (f *fakeTx) HasSet(ctx context.Context, setID string) (bool, error) {
	return f.sets[setID], nil
}

func (f *fakeTx) ApplyGlicko(ctx context.Context, dataset string, player1, player2 graph.PlayerID, setID string, winner int, decayRate, likelihoodVariance, focalVariance, focalAdjust float64) error {
	return nil
}

func (f *fakeTx) AddSet(ctx context.Context, setID string, eventID uint64) error {
	f.sets[setID] = true
	return nil
}

func (f *fakeTx) AddEvent(ctx context.Context, eventID uint64, slug string) error {
	f.events[eventID] = slug
	return nil
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	meta store.DatasetMetadata
	tx   *fakeTx
	sync time.Time
}

func (b *fakeBeginner) Begin(ctx context.Context) (Tx, error) {
	return b.tx, nil
}

func (b *fakeBeginner) GetMetadata(ctx context.Context, name string) (store.DatasetMetadata, error) {
	return b.meta, nil
}

func (b *fakeBeginner) UpdateLastSync(ctx context.Context, name string, t time.Time) error {
	b.sync = t
	return nil
}

type fakeRemote struct {
	tournaments []remote.Tournament
	sets        map[uint64][]remote.Set
	setsErr     error
}

func (r *fakeRemote) SearchGames(ctx context.Context, name string) ([]remote.Game, error) {
	return nil, nil
}

func (r *fakeRemote) ListTournaments(ctx context.Context, gameID uint64, country, state *string, after, before time.Time) ([]remote.Tournament, error) {
	return r.tournaments, nil
}

func (r *fakeRemote) ListEventSets(ctx context.Context, eventID uint64) ([]remote.Set, error) {
	if r.setsErr != nil {
		return nil, r.setsErr
	}
	return r.sets[eventID], nil
}

func player(id, name string) remote.Player {
	return remote.Player{ID: graph.PlayerID(id), Name: name, Discrim: name + "#1"}
}

func TestSyncDataset_CommitsAndAdvancesCheckpoint(t *testing.T) {
	tx := newFakeTx()
	start := time.Unix(1000, 0)
	b := &fakeBeginner{meta: store.DatasetMetadata{LastSync: start, DecayConst: 0.5, VarConst: 0.0001}, tx: tx}
	r := &fakeRemote{
		tournaments: []remote.Tournament{{
			ID:       1,
			StartsAt: time.Unix(1100, 0),
			Events:   []remote.Event{{ID: 10, Slug: "event-a", StartsAt: time.Unix(1100, 0)}},
		}},
		sets: map[uint64][]remote.Set{
			10: {{ID: "set-1", Teams: [][]remote.Player{{player("1", "Alice")}, {player("2", "Bob")}}, Winner: 0}},
		},
	}

	o := Orchestrator{Store: b, Remote: r, Now: func() time.Time { return time.Unix(2000, 0) }}
	err := o.SyncDataset(context.Background(), "ds")
	require.NoError(t, err)

	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	assert.True(t, tx.sets["set-1"])
	assert.Equal(t, "event-a", tx.events[10])
	assert.Equal(t, time.Unix(2000, 0), b.sync)
}

func TestSyncDataset_RollsBackAndLeavesCheckpointOnRemoteFailure(t *testing.T) {
	tx := newFakeTx()
	b := &fakeBeginner{meta: store.DatasetMetadata{DecayConst: 0.5}, tx: tx}
	r := &fakeRemote{
		tournaments: []remote.Tournament{{
			ID:       1,
			StartsAt: time.Unix(1100, 0),
			Events:   []remote.Event{{ID: 10, Slug: "event-a", StartsAt: time.Unix(1100, 0)}},
		}},
		setsErr: errors.New("upstream down"),
	}

	o := Orchestrator{Store: b, Remote: r, Now: func() time.Time { return time.Unix(2000, 0) }}
	err := o.SyncDataset(context.Background(), "ds")
	require.Error(t, err)

	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
	assert.True(t, b.sync.IsZero())
}

func TestSyncDataset_UsesDatasetEndAsUpperBound(t *testing.T) {
	tx := newFakeTx()
	end := time.Unix(1500, 0)
	b := &fakeBeginner{meta: store.DatasetMetadata{End: &end, DecayConst: 0.5}, tx: tx}
	r := &fakeRemote{}

	o := Orchestrator{Store: b, Remote: r, Now: func() time.Time { return time.Unix(2000, 0) }}
	require.NoError(t, o.SyncDataset(context.Background(), "ds"))
	assert.Equal(t, end, b.sync)
}

var _ rating.Store = (*fakeTx)(nil)
