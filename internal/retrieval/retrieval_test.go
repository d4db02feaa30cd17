package retrieval

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/arag/internal/chunk"
	"github.com/hpungsan/arag/internal/errors"
)

func TestTopK_PicksClosest(t *testing.T) {
	cands := []chunk.Vector{
		{ID: 1, Values: []float32{1, 0}},
		{ID: 2, Values: []float32{0, 1}},
	}

	got, err := TopK(cands, []float32{0.9, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
	assert.InDelta(t, 0.9, got[0].Score, 1e-6)

	got, err = TopK(cands, []float32{0.1, 0.9}, 5)
	require.NoError(t, err)
	require.Len(t, got, 2, "k larger than candidates returns all")
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)
}

func TestTopK_TiesByAscendingID(t *testing.T) {
	cands := []chunk.Vector{
		{ID: 7, Values: []float32{1}},
		{ID: 3, Values: []float32{1}},
		{ID: 5, Values: []float32{1}},
		{ID: 1, Values: []float32{0.5}},
	}

	got, err := TopK(cands, []float32{1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []Scored{{ID: 3, Score: 1}, {ID: 5, Score: 1}}, got)
}

func TestTopK_MatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cands := make([]chunk.Vector, 500)
	for i := range cands {
		v := make([]float32, 8)
		for j := range v {
			// Coarse values so ties actually occur.
			v[j] = float32(rng.Intn(5))
		}
		cands[i] = chunk.Vector{ID: int64(i + 1), Values: v}
	}
	query := []float32{1, 0, 2, 0, 1, 0, 0, 1}

	all := make([]Scored, len(cands))
	for i, c := range cands {
		all[i] = Scored{ID: c.ID, Score: Dot(c.Values, query)}
	}
	sort.Slice(all, func(i, j int) bool { return better(all[i], all[j]) })

	for _, k := range []int{1, 3, 10, 100} {
		got, err := TopK(cands, query, k)
		require.NoError(t, err)
		assert.Equal(t, all[:k], got, "k=%d", k)
	}
}

func TestTopK_Errors(t *testing.T) {
	cands := []chunk.Vector{{ID: 1, Values: []float32{1, 0}}}

	_, err := TopK(nil, []float32{1}, 1)
	assert.True(t, errors.Is(err, errors.ErrEmptyIndex))

	_, err = TopK(cands, []float32{1, 0}, 0)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = TopK(cands, []float32{1, 0, 0}, 1)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
