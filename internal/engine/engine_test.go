package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/constellation/internal/config"
	"github.com/lazypower/constellation/internal/graph"
	"github.com/lazypower/constellation/internal/metrics"
	"github.com/lazypower/constellation/internal/store"
)

const owner = "user-1"

// fakeEmbedder returns fixed vectors keyed by entry text.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	fail    map[string]bool
	calls   int
}

func (f *fakeEmbedder) Model() string   { return "fake" }
func (f *fakeEmbedder) Dimensions() int { return 2 }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[text] {
		return nil, errors.New("provider unavailable")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0}, nil
}

// noEntities keeps the entity signal out of scoring scenarios.
type noEntities struct{}

func (noEntities) Extract(context.Context, string) ([]string, error) { return []string{}, nil }

func newTestEngine(t *testing.T) (*Engine, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := New(db, config.EngineConfig{})
	e.SetExtractor(noEntities{})
	e.SetMetrics(metrics.New())
	return e, db
}

func addEntry(t *testing.T, db *store.DB, id, content, mood string, at time.Time) {
	t.Helper()
	require.NoError(t, db.CreateEntry(context.Background(), &store.Entry{
		ID: id, OwnerID: owner, Content: content, Mood: mood, CreatedAt: at,
	}))
}

func TestAnalyzeSemanticPair(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.SetEmbedder(&fakeEmbedder{vectors: map[string][]float64{
		"beach day":   {1, 0},
		"beach again": {1, 0},
		"tax forms":   {0, 1},
	}})

	addEntry(t, db, "a", "beach day", store.MoodHappy, base)
	addEntry(t, db, "b", "beach again", store.MoodSad, base.Add(2*time.Hour))
	addEntry(t, db, "c", "tax forms", store.MoodAngry, base.Add(60*24*time.Hour))

	res, err := e.AnalyzeRelationships(ctx, owner, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Strong)
	assert.Equal(t, 0, res.Existing)

	rels, err := db.ListRelationships(ctx, owner, 0)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	r := rels[0]
	assert.Equal(t, "a", r.SourceID)
	assert.Equal(t, "b", r.TargetID)
	assert.InDelta(t, 0.8, r.Strength, 1e-9)
	assert.Equal(t, "semantic", r.Type)
	assert.Equal(t, []string{"semantic_similarity", "same_day"}, r.Reasons)
}

func TestAnalyzeDiscardsAtThreshold(t *testing.T) {
	e, db := newTestEngine(t)
	addEntry(t, db, "a", "one", store.MoodCalm, base)
	addEntry(t, db, "b", "two", store.MoodCalm, base.Add(3*24*time.Hour))
	e.SetEmbedder(&fakeEmbedder{})

	res, err := e.AnalyzeRelationships(context.Background(), owner, false)
	require.NoError(t, err)
	assert.Zero(t, res.Created, "0.2 temporal + 0.1 mood is not above 0.3")
}

func TestAnalyzeSharedEntitiesAtThreshold(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.SetEmbedder(&fakeEmbedder{vectors: map[string][]float64{
		"tram with Ana in Lisbon": {1, 0},
		"Ana showed me Lisbon":    {0.2, math.Sqrt(0.96)},
	}})
	require.NoError(t, db.CreateEntry(ctx, &store.Entry{
		ID: "a", OwnerID: owner, Content: "tram with Ana in Lisbon", Mood: store.MoodHappy,
		Entities: []string{"ana", "lisbon"}, CreatedAt: base,
	}))
	require.NoError(t, db.CreateEntry(ctx, &store.Entry{
		ID: "b", OwnerID: owner, Content: "Ana showed me Lisbon", Mood: store.MoodSad,
		Entities: []string{"ana", "lisbon"}, CreatedAt: base.Add(10 * 24 * time.Hour),
	}))

	res, err := e.AnalyzeRelationships(ctx, owner, false)
	require.NoError(t, err)
	assert.Zero(t, res.Created, "two shared entities score exactly 0.3")
}

func TestAnalyzeTooFewEntries(t *testing.T) {
	e, db := newTestEngine(t)
	addEntry(t, db, "a", "alone", store.MoodCalm, base)

	res, err := e.AnalyzeRelationships(context.Background(), owner, true)
	require.NoError(t, err)
	assert.Equal(t, AnalyzeResult{}, res)
}

func TestAnalyzeIncrementalIsIdempotent(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.SetEmbedder(&fakeEmbedder{})
	addEntry(t, db, "a", "one", store.MoodCalm, base)
	addEntry(t, db, "b", "two", store.MoodCalm, base.Add(time.Hour))

	first, err := e.AnalyzeRelationships(ctx, owner, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := e.AnalyzeRelationships(ctx, owner, false)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 1, second.Existing)

	addEntry(t, db, "c", "three", store.MoodCalm, base.Add(2*time.Hour))
	third, err := e.AnalyzeRelationships(ctx, owner, false)
	require.NoError(t, err)
	assert.Equal(t, 2, third.Created, "only pairs involving the new entry")
}

func TestAnalyzeIncrementalKeepsManualEdges(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.SetEmbedder(&fakeEmbedder{})
	addEntry(t, db, "a", "one", store.MoodCalm, base)
	addEntry(t, db, "b", "two", store.MoodCalm, base.Add(time.Hour))

	_, err := e.Relate(ctx, owner, "a", "b", RelationManual, 0.35)
	require.NoError(t, err)

	_, err = e.AnalyzeRelationships(ctx, owner, false)
	require.NoError(t, err)
	rels, _ := db.ListRelationships(ctx, owner, 0)
	require.Len(t, rels, 1)
	assert.Equal(t, "manual", rels[0].Type)

	_, err = e.AnalyzeRelationships(ctx, owner, true)
	require.NoError(t, err)
	rels, _ = db.ListRelationships(ctx, owner, 0)
	require.Len(t, rels, 1)
	assert.Equal(t, "temporal", rels[0].Type, "force refresh replaces the edge set")
}

func TestAnalyzeForceDeterministic(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.SetExtractor(HeuristicExtractor{})
	texts := []string{
		"Hiked Mount Tam with Sarah",
		"Sarah and I hiked the coastal trail",
		"Project meeting ran late at the office",
		"Office party after the project launch",
		"Quiet morning with coffee",
	}
	for i, txt := range texts {
		addEntry(t, db, string(rune('a'+i)), txt, store.MoodHappy, base.Add(time.Duration(i)*20*time.Hour))
	}

	snapshot := func() []store.Relationship {
		_, err := e.AnalyzeRelationships(ctx, owner, true)
		require.NoError(t, err)
		rels, err := db.ListRelationships(ctx, owner, 0)
		require.NoError(t, err)
		for i := range rels {
			rels[i].ID, rels[i].CreatedAt = "", time.Time{}
		}
		return rels
	}

	first := snapshot()
	require.NotEmpty(t, first)
	assert.Equal(t, first, snapshot())

	for _, r := range first {
		assert.Greater(t, r.Strength, 0.3)
		assert.LessOrEqual(t, r.Strength, 1.0)
	}
}

func TestAnalyzeCachesVectors(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	emb := &fakeEmbedder{}
	e.SetEmbedder(emb)
	addEntry(t, db, "a", "one", store.MoodCalm, base)
	addEntry(t, db, "b", "two", store.MoodCalm, base.Add(time.Hour))

	_, err := e.AnalyzeRelationships(ctx, owner, true)
	require.NoError(t, err)
	assert.Equal(t, 2, emb.calls)

	_, err = e.AnalyzeRelationships(ctx, owner, true)
	require.NoError(t, err)
	assert.Equal(t, 2, emb.calls, "second run reads cached vectors")

	vec, err := db.GetVector(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, vec)
	assert.Equal(t, "fake", vec.Model)
}

func TestAnalyzeTFIDFWithoutEmbedder(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	addEntry(t, db, "a", "sailing the bay with Marco", store.MoodHappy, base)
	addEntry(t, db, "b", "sailing the bay with Marco again", store.MoodSad, base.Add(2*time.Hour))

	res, err := e.AnalyzeRelationships(ctx, owner, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	rels, _ := db.ListRelationships(ctx, owner, 0)
	require.Len(t, rels, 1)
	assert.Equal(t, "semantic", rels[0].Type)

	vec, err := db.GetVector(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, vec, "per-run tfidf vectors are not persisted")
}

func TestAnalyzeEmbedFailureDegrades(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.SetEmbedder(&fakeEmbedder{
		vectors: map[string][]float64{"one": {1, 0}, "two": {1, 0}},
		fail:    map[string]bool{"two": true},
	})
	addEntry(t, db, "a", "one", store.MoodCalm, base)
	addEntry(t, db, "b", "two", store.MoodSad, base.Add(time.Hour))

	res, err := e.AnalyzeRelationships(ctx, owner, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	rels, _ := db.ListRelationships(ctx, owner, 0)
	require.Len(t, rels, 1)
	assert.InDelta(t, 0.4, rels[0].Strength, 1e-9, "semantic signal skipped for the failed entry")
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics.EmbedFailures))
}

func TestAnalyzeCachesEntities(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.SetEmbedder(&fakeEmbedder{})
	e.SetExtractor(HeuristicExtractor{})
	addEntry(t, db, "a", "Lunch with Priya downtown", store.MoodCalm, base)
	addEntry(t, db, "b", "Priya called about lunch", store.MoodCalm, base.Add(10*24*time.Hour))

	_, err := e.AnalyzeRelationships(ctx, owner, false)
	require.NoError(t, err)

	en, err := db.GetEntry(ctx, owner, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"lunch", "priya", "downtown"}, en.Entities)

	rels, _ := db.ListRelationships(ctx, owner, 0)
	require.Len(t, rels, 1)
	assert.Equal(t, "entity_based", rels[0].Type)
	assert.Equal(t, []string{"shared_entities:2", "same_mood"}, rels[0].Reasons)
}

func TestAnalyzeConcurrentSameOwner(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.SetEmbedder(&fakeEmbedder{})
	for i := 0; i < 6; i++ {
		addEntry(t, db, string(rune('a'+i)), "entry", store.MoodCalm, base.Add(time.Duration(i)*time.Hour))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(force bool) {
			defer wg.Done()
			_, err := e.AnalyzeRelationships(ctx, owner, force)
			errs <- err
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	n, err := db.CountRelationships(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 15, n)
}

func relate(t *testing.T, e *Engine, src, dst string, strength float64) {
	t.Helper()
	_, err := e.Relate(context.Background(), owner, src, dst, RelationManual, strength)
	require.NoError(t, err)
}

func TestDetectClustersFourOfFive(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.SetExtractor(HeuristicExtractor{})
	texts := []string{
		"Flight to Lisbon booked",
		"Hotel in Lisbon near the river",
		"Lisbon trip photos",
		"Vacation planning for Lisbon",
		"Dentist appointment",
	}
	ids := []string{"e1", "e2", "e3", "e4", "e5"}
	for i, txt := range texts {
		addEntry(t, db, ids[i], txt, store.MoodHappy, base.Add(time.Duration(i)*time.Hour))
	}
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			relate(t, e, ids[i], ids[j], 0.9)
		}
	}
	relate(t, e, "e4", "e5", 0.4)

	clusters, err := e.DetectClusters(ctx, owner)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	c := clusters[0]
	assert.Equal(t, 4, c.Size)
	assert.Equal(t, "Travel", c.Theme)
	assert.Equal(t, "Travel Memories #1", c.Name)
	assert.Equal(t, "lisbon", c.Keywords[0])
	assert.LessOrEqual(t, len(c.Keywords), 5)

	stored, err := db.ListClusters(ctx, owner)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, stored[0].MemberIDs)
	assert.Equal(t, c.ID, stored[0].ID)
}

func TestDetectClustersNeedsThreeEntriesAndEdges(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	addEntry(t, db, "a", "one", store.MoodCalm, base)
	addEntry(t, db, "b", "two", store.MoodCalm, base)
	relate(t, e, "a", "b", 0.9)

	clusters, err := e.DetectClusters(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, clusters)

	addEntry(t, db, "c", "three", store.MoodCalm, base)
	_, err = db.DeleteEntry(ctx, owner, "a")
	require.NoError(t, err)
	addEntry(t, db, "d", "four", store.MoodCalm, base)

	clusters, err = e.DetectClusters(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, clusters, "no edges left")
	stored, err := db.ListClusters(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestDetectClustersClearsStaleClusters(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		addEntry(t, db, id, id, store.MoodCalm, base)
	}
	relate(t, e, "a", "b", 0.9)

	clusters, err := e.DetectClusters(ctx, owner)
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	_, err = db.DeleteEntry(ctx, owner, "a")
	require.NoError(t, err)

	clusters, err = e.DetectClusters(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, clusters)
	stored, err := db.ListClusters(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, stored, "cluster naming a deleted entry survived")
}

func TestForceAnalyzeClearsClustersWhenTooFewEntries(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.SetEmbedder(&fakeEmbedder{vectors: map[string][]float64{
		"a": {1, 0}, "b": {1, 0}, "c": {1, 0},
	}})
	for _, id := range []string{"a", "b", "c"} {
		addEntry(t, db, id, id, store.MoodCalm, base)
	}
	res, err := e.AnalyzeRelationships(ctx, owner, true)
	require.NoError(t, err)
	require.Equal(t, 1, res.Clusters)

	// Two entries still get an edge but cannot form a cluster.
	_, err = db.DeleteEntry(ctx, owner, "c")
	require.NoError(t, err)
	res, err = e.AnalyzeRelationships(ctx, owner, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.Clusters)
	stored, err := db.ListClusters(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, stored)

	// One entry: nothing to score, everything is cleared.
	_, err = db.DeleteEntry(ctx, owner, "b")
	require.NoError(t, err)
	require.NoError(t, db.ReplaceClusters(ctx, owner, []store.Cluster{
		{Name: "Stale", Theme: "Life", MemberIDs: []string{"a", "b"}, DominantMood: store.MoodCalm},
	}))
	_, err = e.AnalyzeRelationships(ctx, owner, true)
	require.NoError(t, err)
	n, err := db.CountRelationships(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, n)
	stored, err = db.ListClusters(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestOrphanedEdgesAreIgnored(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C", "D"} {
		addEntry(t, db, id, id, store.MoodCalm, base)
	}
	relate(t, e, "A", "B", 0.9)
	relate(t, e, "B", "C", 0.9)
	relate(t, e, "A", "D", 0.9)

	// Delete B without the cascade, leaving A-B and B-C dangling.
	_, err := db.Exec("PRAGMA foreign_keys = OFF")
	require.NoError(t, err)
	_, err = db.Exec("DELETE FROM entries WHERE id = 'B'")
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)

	_, err = e.FindPath(ctx, "A", "C", owner)
	assert.ErrorIs(t, err, ErrNoPath)

	clusters, err := e.DetectClusters(ctx, owner)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	stored, err := db.ListClusters(ctx, owner)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, []string{"A", "D"}, stored[0].MemberIDs)
}

type brokenDetector struct{}

func (brokenDetector) Detect(*graph.Graph) ([][]string, error) {
	return nil, errors.New("did not converge")
}

func TestDetectClustersFallsBack(t *testing.T) {
	e, db := newTestEngine(t)
	e.Detector = brokenDetector{}
	for _, id := range []string{"a", "b", "c", "d", "x"} {
		addEntry(t, db, id, id, store.MoodCalm, base)
	}
	relate(t, e, "a", "b", 0.9)
	relate(t, e, "c", "d", 0.8)
	relate(t, e, "b", "x", 0.5) // not strong

	clusters, err := e.DetectClusters(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, 2, clusters[0].Size)
	assert.Equal(t, 2, clusters[1].Size)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics.DetectorFallbacks))
}

func TestForceAnalyzeRebuildsClusters(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.SetEmbedder(&fakeEmbedder{vectors: map[string][]float64{
		"a": {1, 0}, "b": {1, 0}, "c": {1, 0},
	}})
	for _, id := range []string{"a", "b", "c"} {
		addEntry(t, db, id, id, store.MoodCalm, base)
	}

	res, err := e.AnalyzeRelationships(ctx, owner, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, 3, res.Strong)
	assert.Equal(t, 1, res.Clusters)
}

func TestFindPath(t *testing.T) {
	tests := []struct {
		name   string
		ab, ac float64
	}{
		{"equal strengths", 0.9, 0.9},
		{"weak second leg", 0.9, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, db := newTestEngine(t)
			ctx := context.Background()
			addEntry(t, db, "A", "hub", store.MoodCalm, base)
			addEntry(t, db, "B", "left", store.MoodCalm, base.Add(time.Hour))
			addEntry(t, db, "C", "right", store.MoodCalm, base.Add(2*time.Hour))
			relate(t, e, "A", "B", tt.ab)
			relate(t, e, "A", "C", tt.ac)

			res, err := e.FindPath(ctx, "B", "C", owner)
			require.NoError(t, err)
			assert.Equal(t, []string{"B", "A", "C"}, res.IDs)
			assert.Equal(t, 2, res.Distance)
			require.Len(t, res.Entries, 3)
			assert.Equal(t, "hub", res.Entries[1].Content)
		})
	}
}

func TestFindPathErrors(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	addEntry(t, db, "A", "a", store.MoodCalm, base)
	addEntry(t, db, "B", "b", store.MoodCalm, base)
	addEntry(t, db, "C", "c", store.MoodCalm, base)

	_, err := e.FindPath(ctx, "A", "B", owner)
	assert.ErrorIs(t, err, ErrNoPath, "no edges at all")

	relate(t, e, "A", "B", 0.9)
	_, err = e.FindPath(ctx, "A", "C", owner)
	assert.ErrorIs(t, err, ErrNoPath, "disconnected")

	_, err = e.FindPath(ctx, "A", "missing", owner)
	assert.ErrorIs(t, err, ErrNoPath, "unknown id")

	_, err = e.FindPath(ctx, "A", "B", "someone-else")
	assert.ErrorIs(t, err, ErrNoPath, "other owner")
}

func TestRelate(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	addEntry(t, db, "a", "a", store.MoodCalm, base)
	addEntry(t, db, "b", "b", store.MoodCalm, base)

	r, err := e.Relate(ctx, owner, "a", "b", "", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Strength)
	assert.Equal(t, "manual", r.Type)
	assert.Equal(t, []string{"manual_connection"}, r.Reasons)

	r, err = e.Relate(ctx, owner, "b", "a", RelationSemantic, -0.2)
	require.NoError(t, err)
	assert.Zero(t, r.Strength)

	rels, _ := db.ListRelationships(ctx, owner, 0)
	require.Len(t, rels, 1, "relating the same pair replaces the edge")
	assert.Equal(t, "semantic", rels[0].Type)

	r, err = e.Relate(ctx, owner, "a", "b", RelationManual, math.NaN())
	require.NoError(t, err)
	assert.Zero(t, r.Strength)
}

func TestRelateErrors(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	addEntry(t, db, "a", "a", store.MoodCalm, base)

	_, err := e.Relate(ctx, owner, "a", "ghost", RelationManual, 0.8)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = e.Relate(ctx, "someone-else", "a", "a2", RelationManual, 0.8)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = e.Relate(ctx, owner, "a", "a", RelationManual, 0.8)
	assert.ErrorIs(t, err, ErrSelfRelation)

	_, err = e.Relate(ctx, owner, "a", "b", RelationType("friendship"), 0.8)
	assert.ErrorIs(t, err, ErrInvalidRelationType)
}

func TestGraphView(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()
	long := "This entry is deliberately long so that the preview has to cut it somewhere past the hundredth character mark."

	addEntry(t, db, "old", "months ago", store.MoodSad, now.Add(-60*24*time.Hour))
	addEntry(t, db, "r1", long, store.MoodHappy, now.Add(-3*24*time.Hour))
	addEntry(t, db, "r2", "recent two", store.MoodCalm, now.Add(-2*24*time.Hour))
	addEntry(t, db, "lone", "no edges", store.MoodCalm, now.Add(-time.Hour))
	relate(t, e, "r1", "r2", 0.6)
	relate(t, e, "old", "r1", 0.9)

	view, err := e.Graph(ctx, owner, GraphOpts{TimeRange: "all"})
	require.NoError(t, err)
	assert.Len(t, view.Edges, 2)
	assert.Len(t, view.Nodes, 3, "only entries touching an edge")
	assert.Equal(t, 0.75, view.Stats.AvgStrength)
	assert.Equal(t, "all", view.Stats.TimeRange)
	assert.Empty(t, view.Clusters)

	view, err = e.Graph(ctx, owner, GraphOpts{TimeRange: "week"})
	require.NoError(t, err)
	require.Len(t, view.Edges, 1)
	assert.Equal(t, "r1", view.Edges[0].Source)
	assert.Equal(t, 2, view.Stats.TotalMemories)
	assert.Equal(t, 0.6, view.Stats.AvgStrength)

	var r1 GraphNode
	for _, n := range view.Nodes {
		if n.ID == "r1" {
			r1 = n
		}
	}
	assert.Equal(t, long[:100]+"...", r1.Text)
	assert.Equal(t, long, r1.FullText)

	view, err = e.Graph(ctx, owner, GraphOpts{MinStrength: 0.95, TimeRange: "week"})
	require.NoError(t, err)
	assert.Empty(t, view.Edges)
	assert.Len(t, view.Nodes, 3, "all in-range entries when nothing connects")
	assert.Zero(t, view.Stats.AvgStrength)

	view, err = e.Graph(ctx, owner, GraphOpts{TimeRange: "fortnight"})
	require.NoError(t, err)
	assert.Equal(t, "month", view.Stats.TimeRange)
}

func TestGraphIncludesClusters(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		addEntry(t, db, id, id, store.MoodCalm, base)
	}
	relate(t, e, "a", "b", 0.9)
	relate(t, e, "b", "c", 0.9)
	_, err := e.DetectClusters(ctx, owner)
	require.NoError(t, err)

	view, err := e.Graph(ctx, owner, GraphOpts{IncludeClusters: true})
	require.NoError(t, err)
	require.Len(t, view.Clusters, 1)
	assert.Equal(t, 3, view.Clusters[0].Size)
	assert.Equal(t, 1, view.Stats.ClustersCount)
}

func TestParseTimeRange(t *testing.T) {
	tests := map[string]string{"": "all", "all": "all", "week": "week", "month": "month", "year": "year", "decade": "month"}
	for in, want := range tests {
		got, _ := ParseTimeRange(in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 50))
	assert.Equal(t, "abc...", Preview("abcdef", 3))
	assert.Equal(t, "héllo", Preview("héllo", 5))
}
