package ranking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrank/ratings/internal/graph"
)

type fakeReader struct {
	players   []graph.PlayerID
	neighbors map[graph.PlayerID][]graph.Edge
}

func (f *fakeReader) AllPlayers(ctx context.Context, dataset string) ([]graph.PlayerID, error) {
	return f.players, nil
}

func (f *fakeReader) Neighbors(ctx context.Context, dataset string, p graph.PlayerID) ([]graph.Edge, error) {
	return f.neighbors[p], nil
}

func TestCompute_EmptyDatasetReturnsNothing(t *testing.T) {
	f := &fakeReader{}
	ranked, err := Compute(context.Background(), f, "ds", 2.0, 10)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestCompute_StrongerPlayerRanksHigher(t *testing.T) {
	// 1 beats 2 decisively (adv=3 from 1's viewpoint); 2 and 3 are even.
	f := &fakeReader{
		players: []graph.PlayerID{"1", "2", "3"},
		neighbors: map[graph.PlayerID][]graph.Edge{
			"1": {{Other: "2", Advantage: 3.0, Variance: 1.0}},
			"2": {{Other: "1", Advantage: -3.0, Variance: 1.0}, {Other: "3", Advantage: 0.0, Variance: 1.0}},
			"3": {{Other: "2", Advantage: 0.0, Variance: 1.0}},
		},
	}

	ranked, err := Compute(context.Background(), f, "ds", 2.0, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, graph.PlayerID("1"), ranked[0].Player)
}

func TestCompute_RespectsTopK(t *testing.T) {
	f := &fakeReader{
		players: []graph.PlayerID{"1", "2", "3"},
		neighbors: map[graph.PlayerID][]graph.Edge{
			"1": {{Other: "2", Advantage: 1.0, Variance: 1.0}},
			"2": {{Other: "1", Advantage: -1.0, Variance: 1.0}},
			"3": {},
		},
	}

	ranked, err := Compute(context.Background(), f, "ds", 1.5, 2)
	require.NoError(t, err)
	assert.Len(t, ranked, 2)
}

func TestCompute_RejectsBaseNotAboveOne(t *testing.T) {
	f := &fakeReader{players: []graph.PlayerID{"1"}}
	_, err := Compute(context.Background(), f, "ds", 1.0, 0)
	assert.Error(t, err)
}
