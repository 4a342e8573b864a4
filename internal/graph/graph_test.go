package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory EdgeStore used to exercise HypotheticalAdvantage
// without any persistence layer, per the design note that the path search
// should be testable independent of a real database.
type fakeStore struct {
	// edges maps a canonical [lo, hi] key to (adv signed from lo, variance).
	edges map[[2]PlayerID]struct {
		adv float64
		v   float64
	}
	lastUpdated map[[2]PlayerID]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		edges: map[[2]PlayerID]struct {
			adv float64
			v   float64
		}{},
		lastUpdated: map[[2]PlayerID]time.Time{},
	}
}

func canon(p, q PlayerID) ([2]PlayerID, bool) {
	if p < q {
		return [2]PlayerID{p, q}, false
	}
	return [2]PlayerID{q, p}, true
}

func (f *fakeStore) seed(p, q PlayerID, adv, variance float64) {
	key, _ := canon(p, q)
	f.edges[key] = struct {
		adv float64
		v   float64
	}{adv, variance}
}

func (f *fakeStore) GetEdge(ctx context.Context, dataset string, p, q PlayerID) (float64, float64, bool, error) {
	if p == q {
		return 0, 0, true, nil
	}
	key, flipped := canon(p, q)
	e, ok := f.edges[key]
	if !ok {
		return 0, 0, false, nil
	}
	adv := e.adv
	if flipped {
		adv = -adv
	}
	return adv, e.v, true, nil
}

func (f *fakeStore) InsertEdge(ctx context.Context, dataset string, p, q PlayerID, adv, variance float64, t time.Time) error {
	key, flipped := canon(p, q)
	if flipped {
		adv = -adv
	}
	f.edges[key] = struct {
		adv float64
		v   float64
	}{adv, variance}
	f.lastUpdated[key] = t
	return nil
}

func (f *fakeStore) Neighbors(ctx context.Context, dataset string, p PlayerID) ([]Edge, error) {
	var out []Edge
	for key, e := range f.edges {
		if key[0] == p {
			out = append(out, Edge{Other: key[1], Advantage: e.adv, Variance: e.v})
		} else if key[1] == p {
			out = append(out, Edge{Other: key[0], Advantage: -e.adv, Variance: e.v})
		}
	}
	return out, nil
}

func (f *fakeStore) AdjustForTime(ctx context.Context, dataset string, p PlayerID, varConst float64, t time.Time) error {
	for key, e := range f.edges {
		if key[0] != p && key[1] != p {
			continue
		}
		prev, ok := f.lastUpdated[key]
		if !ok {
			prev = t
		}
		delta := t.Sub(prev).Seconds()
		if delta < 0 {
			delta = 0
		}
		e.v += varConst * delta
		if e.v > MaxVariance {
			e.v = MaxVariance
		}
		f.edges[key] = e
		f.lastUpdated[key] = t
	}
	return nil
}

func (f *fakeStore) EitherIsolated(ctx context.Context, dataset string, p, q PlayerID) (bool, error) {
	pHas, qHas := false, false
	for key := range f.edges {
		if key[0] == p || key[1] == p {
			pHas = true
		}
		if key[0] == q || key[1] == q {
			qHas = true
		}
	}
	return !pHas || !qHas, nil
}

func TestHypotheticalAdvantage_SelfPair(t *testing.T) {
	store := newFakeStore()
	adv, v, err := HypotheticalAdvantage(context.Background(), store, "ds", "1", "1", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, adv)
	assert.Equal(t, 0.0, v)
}

func TestHypotheticalAdvantage_IsolatedOpponent(t *testing.T) {
	store := newFakeStore()
	store.seed("1", "2", 1.0, 1.0)
	// player "4" has no edges at all.
	adv, v, err := HypotheticalAdvantage(context.Background(), store, "ds", "1", "4", 0.9)
	require.NoError(t, err)
	assert.Equal(t, 0.0, adv)
	assert.Equal(t, MaxVariance, v)
}

func TestHypotheticalAdvantage_LowDecayShortCircuits(t *testing.T) {
	store := newFakeStore()
	store.seed("1", "2", 1.0, 1.0)
	store.seed("2", "3", 1.0, 1.0)
	adv, v, err := HypotheticalAdvantage(context.Background(), store, "ds", "1", "3", 0.01)
	require.NoError(t, err)
	assert.Equal(t, 0.0, adv)
	assert.Equal(t, MaxVariance, v)
}

func TestHypotheticalAdvantage_TrianglePropagation(t *testing.T) {
	store := newFakeStore()
	store.seed("1", "2", 1.0, 1.0)
	store.seed("1", "3", 5.0, 1.0)

	adv, v, err := HypotheticalAdvantage(context.Background(), store, "ds", "2", "3", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, adv, 1e-9)
	assert.InDelta(t, 2.0, v, 1e-9)
}

func TestHypotheticalAdvantage_NoPathFound(t *testing.T) {
	store := newFakeStore()
	store.seed("1", "2", 1.0, 1.0)
	store.seed("3", "4", 1.0, 1.0)

	adv, v, err := HypotheticalAdvantage(context.Background(), store, "ds", "1", "3", 0.9)
	require.NoError(t, err)
	assert.Equal(t, 0.0, adv)
	assert.Equal(t, MaxVariance, v)
}

func TestHypotheticalAdvantage_RescalesWhenVarianceExceedsCeiling(t *testing.T) {
	store := newFakeStore()
	// A long chain of high-variance edges should push the aggregated
	// variance above the 5.0 ceiling, forcing a rescale.
	store.seed("1", "2", 10.0, 4.9)
	store.seed("2", "3", 10.0, 4.9)

	adv, v, err := HypotheticalAdvantage(context.Background(), store, "ds", "1", "3", 0.9)
	require.NoError(t, err)
	assert.LessOrEqual(t, v, MaxVariance)
	assert.InDelta(t, MaxVariance, v, 1e-9)
	assert.Greater(t, adv, 0.0)
}

func TestInitializeEdge_StoresHypothetical(t *testing.T) {
	store := newFakeStore()
	store.seed("1", "2", 1.0, 1.0)
	store.seed("1", "3", 5.0, 1.0)

	adv, v, err := InitializeEdge(context.Background(), store, "ds", "2", "3", 0.5, time.Unix(100, 0))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, adv, 1e-9)
	assert.InDelta(t, 2.0, v, 1e-9)

	storedAdv, storedVar, ok, err := store.GetEdge(context.Background(), "ds", "2", "3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 4.0, storedAdv, 1e-9)
	assert.InDelta(t, 2.0, storedVar, 1e-9)
}

func TestAdjustForTime_InflatesVarianceAndClamps(t *testing.T) {
	store := newFakeStore()
	t0 := time.Unix(0, 0)
	require.NoError(t, store.InsertEdge(context.Background(), "ds", "1", "2", 0.5, 1.0, t0))

	t1 := t0.Add(2 * time.Second)
	require.NoError(t, store.AdjustForTime(context.Background(), "ds", "1", 1.0, t1))

	_, v, ok, err := store.GetEdge(context.Background(), "ds", "1", "2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 3.0, v, 1e-9)

	t2 := t1.Add(100 * time.Second)
	require.NoError(t, store.AdjustForTime(context.Background(), "ds", "1", 1.0, t2))
	_, v, ok, err = store.GetEdge(context.Background(), "ds", "1", "2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, MaxVariance, v, "variance must clamp at the 5.0 ceiling")
}

func TestGetEdge_SignSymmetry(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.InsertEdge(context.Background(), "ds", "5", "2", 1.5, 0.8, time.Now()))

	adv1, v1, ok, err := store.GetEdge(context.Background(), "ds", "2", "5")
	require.NoError(t, err)
	require.True(t, ok)
	adv2, v2, ok, err := store.GetEdge(context.Background(), "ds", "5", "2")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, v1, v2)
	assert.Equal(t, -adv1, adv2)
}
