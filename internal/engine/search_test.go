package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/constellation/internal/store"
)

func resultIDs(results []SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Entry.ID
	}
	return ids
}

func seedBeach(t *testing.T, e *Engine, db *store.DB) {
	t.Helper()
	e.SetEmbedder(&fakeEmbedder{vectors: map[string][]float64{
		"beach":       {1, 0},
		"beach day":   {1, 0},
		"beach again": {0.8, 0.6},
		"tax forms":   {0, 1},
	}})
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	addEntry(t, db, "a", "beach day", store.MoodHappy, base)
	addEntry(t, db, "b", "beach again", store.MoodSad, base.Add(time.Hour))
	addEntry(t, db, "c", "tax forms", store.MoodAngry, base.Add(2*time.Hour))
}

func TestSearch(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	seedBeach(t, e, db)

	res, err := e.Search(ctx, owner, "beach", SearchOpts{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, resultIDs(res), "orthogonal entry is dropped")
	assert.InDelta(t, 1.0, res[0].Similarity, 1e-9)
	assert.InDelta(t, 0.8, res[1].Similarity, 1e-9)

	res, err = e.Search(ctx, owner, "beach", SearchOpts{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, resultIDs(res))

	res, err = e.Search(ctx, owner, "beach", SearchOpts{MinSimilarity: 0.8})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, resultIDs(res), "threshold is exclusive")

	vecs, err := db.OwnerVectors(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
}

func TestSearchEmptyOwner(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Search(context.Background(), "nobody", "anything", SearchOpts{})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestSearchTFIDF(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	addEntry(t, db, "a", "lisbon tram ride", store.MoodHappy, base)
	addEntry(t, db, "b", "lisbon pastries", store.MoodHappy, base.Add(time.Hour))
	addEntry(t, db, "c", "tax forms", store.MoodSad, base.Add(2*time.Hour))

	res, err := e.Search(ctx, owner, "Lisbon", SearchOpts{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, resultIDs(res), "shorter entry weighs the shared term more")

	vecs, err := db.OwnerVectors(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, vecs, "tf-idf vectors are not cached")
}

func TestRelated(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	seedBeach(t, e, db)

	res, err := e.Related(ctx, owner, "a", SearchOpts{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, resultIDs(res), "source and unrelated entries are excluded")
	assert.InDelta(t, 0.8, res[0].Similarity, 1e-9)

	res, err = e.Related(ctx, owner, "c", SearchOpts{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, resultIDs(res))
	assert.InDelta(t, 0.6, res[0].Similarity, 1e-9)
}

func TestRelatedUnknownEntry(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	seedBeach(t, e, db)

	_, err := e.Related(ctx, owner, "missing", SearchOpts{})
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = e.Related(ctx, "user-2", "a", SearchOpts{})
	assert.ErrorIs(t, err, ErrEntryNotFound, "entries are scoped to their owner")
}
