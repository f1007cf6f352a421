package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/constellation/internal/config"
	"github.com/lazypower/constellation/internal/graph"
	"github.com/lazypower/constellation/internal/metrics"
	"github.com/lazypower/constellation/internal/store"
)

var (
	// ErrNoPath is returned when two entries are not connected.
	ErrNoPath = errors.New("no path found between these memories")
	// ErrEntryNotFound is returned when an entry does not exist for the owner.
	ErrEntryNotFound = errors.New("memory not found")
	// ErrSelfRelation is returned when an entry is related to itself.
	ErrSelfRelation = errors.New("cannot relate a memory to itself")
)

// DefaultManualStrength is used for manual relationships without a strength.
const DefaultManualStrength = 0.8

const defaultTFIDFTerms = 512

// Engine discovers, clusters and queries relationships between entries.
type Engine struct {
	DB *store.DB
	// Embedder is optional. Without one, each run fits a TF-IDF model over
	// the owner's entries and vectors are not cached.
	Embedder   Embedder
	Extractor  EntityExtractor
	Detector   graph.Detector
	Metrics    *metrics.Collector
	TFIDFTerms int

	cfg   config.EngineConfig
	locks sync.Map // owner -> *sync.Mutex
}

// New creates an Engine. Zero thresholds in cfg fall back to the defaults.
func New(db *store.DB, cfg config.EngineConfig) *Engine {
	def := config.Default().Engine
	if cfg.MinStrength <= 0 {
		cfg.MinStrength = def.MinStrength
	}
	if cfg.ClusterStrength <= 0 {
		cfg.ClusterStrength = def.ClusterStrength
	}
	if cfg.StrongStrength <= 0 {
		cfg.StrongStrength = def.StrongStrength
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Engine{
		DB:         db,
		Extractor:  HeuristicExtractor{},
		Detector:   graph.Louvain{},
		TFIDFTerms: defaultTFIDFTerms,
		cfg:        cfg,
	}
}

// SetEmbedder configures the embedding provider.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
}

// SetExtractor configures the entity extractor.
func (e *Engine) SetExtractor(x EntityExtractor) {
	e.Extractor = x
}

// SetMetrics attaches a metrics collector.
func (e *Engine) SetMetrics(m *metrics.Collector) {
	e.Metrics = m
}

func (e *Engine) lock(owner string) func() {
	mu, _ := e.locks.LoadOrStore(owner, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// AnalyzeResult reports what one analysis run wrote.
type AnalyzeResult struct {
	Created  int `json:"count"`
	Strong   int `json:"strong_connections"`
	Existing int `json:"existing"`
	Clusters int `json:"clusters"`
}

// AnalyzeRelationships scores every pair of the owner's entries. With force
// the owner's edge set is replaced and clusters are rebuilt; otherwise only
// pairs without an edge are inserted.
func (e *Engine) AnalyzeRelationships(ctx context.Context, owner string, force bool) (res AnalyzeResult, err error) {
	start := time.Now()
	defer func() { e.Metrics.ObserveRun("analyze", start, err) }()

	unlock := e.lock(owner)
	defer unlock()

	entries, err := e.DB.ListEntries(ctx, owner, time.Time{})
	if err != nil {
		return res, fmt.Errorf("analyze: %w", err)
	}
	if res.Existing, err = e.DB.CountRelationships(ctx, owner); err != nil {
		return res, fmt.Errorf("analyze: %w", err)
	}
	if len(entries) < 2 {
		if force {
			if _, err := e.DB.ReplaceRelationships(ctx, owner, nil); err != nil {
				return res, fmt.Errorf("analyze: %w", err)
			}
			if _, err := e.detectClusters(ctx, owner, entries); err != nil {
				return res, fmt.Errorf("analyze: %w", err)
			}
		}
		return res, nil
	}

	feats, err := e.prepare(ctx, owner, entries)
	if err != nil {
		return res, fmt.Errorf("analyze: %w", err)
	}
	rels, err := e.scoreAll(ctx, feats)
	if err != nil {
		return res, fmt.Errorf("analyze: %w", err)
	}

	var inserted []store.Relationship
	if force {
		inserted, err = e.DB.ReplaceRelationships(ctx, owner, rels)
	} else {
		inserted, err = e.DB.InsertMissingRelationships(ctx, owner, rels)
	}
	if err != nil {
		return res, fmt.Errorf("analyze: %w", err)
	}

	res.Created = len(inserted)
	for _, r := range inserted {
		if above(r.Strength, e.cfg.StrongStrength) {
			res.Strong++
		}
	}
	e.Metrics.AddEdges(res.Created)
	log.Info().Str("owner", owner).Int("entries", len(entries)).
		Int("created", res.Created).Int("strong", res.Strong).Bool("force", force).
		Msg("relationships analyzed")

	if force {
		clusters, err := e.detectClusters(ctx, owner, entries)
		if err != nil {
			return res, fmt.Errorf("analyze: %w", err)
		}
		res.Clusters = len(clusters)
	}
	return res, nil
}

// scoreAll scores pair (i, j) for every i < j. Each worker fills one row;
// rows are concatenated in index order.
func (e *Engine) scoreAll(ctx context.Context, feats []Features) ([]store.Relationship, error) {
	rows := make([][]store.Relationship, len(feats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range feats {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for j := i + 1; j < len(feats); j++ {
				s := ScorePair(&feats[i], &feats[j])
				if !above(s.Strength, e.cfg.MinStrength) {
					continue
				}
				rows[i] = append(rows[i], store.Relationship{
					SourceID: feats[i].ID,
					TargetID: feats[j].ID,
					Strength: s.Strength,
					Type:     s.Type.String(),
					Reasons:  s.Reasons,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score pairs: %w", err)
	}

	var rels []store.Relationship
	for _, row := range rows {
		rels = append(rels, row...)
	}
	return rels, nil
}

// ClusterSummary is the short form of a detected cluster.
type ClusterSummary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Theme    string   `json:"theme"`
	Size     int      `json:"size"`
	Keywords []string `json:"keywords"`
}

// DetectClusters partitions the owner's strong edges into communities,
// summarizes each and replaces the owner's stored clusters.
func (e *Engine) DetectClusters(ctx context.Context, owner string) (out []ClusterSummary, err error) {
	start := time.Now()
	defer func() { e.Metrics.ObserveRun("detect_clusters", start, err) }()

	unlock := e.lock(owner)
	defer unlock()

	entries, err := e.DB.ListEntries(ctx, owner, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("detect clusters: %w", err)
	}
	return e.detectClusters(ctx, owner, entries)
}

// detectClusters always replaces the owner's stored clusters, with an empty
// set when there is nothing to partition.
func (e *Engine) detectClusters(ctx context.Context, owner string, entries []store.Entry) ([]ClusterSummary, error) {
	out := []ClusterSummary{}
	var rels []store.Relationship
	if len(entries) >= 3 {
		var err error
		if rels, err = e.DB.ListRelationships(ctx, owner, 0); err != nil {
			return nil, fmt.Errorf("detect clusters: %w", err)
		}
	}
	if len(rels) == 0 {
		if err := e.DB.ReplaceClusters(ctx, owner, nil); err != nil {
			return nil, fmt.Errorf("detect clusters: %w", err)
		}
		return out, nil
	}

	g := graph.New()
	byID := make(map[string]store.Entry, len(entries))
	for _, en := range entries {
		g.AddNode(en.ID)
		byID[en.ID] = en
	}
	for _, r := range rels {
		if !hasBoth(byID, r) {
			continue
		}
		if above(r.Strength, e.cfg.ClusterStrength) {
			g.AddEdge(graph.Edge{Source: r.SourceID, Target: r.TargetID, Weight: r.Strength})
		}
	}

	detector := e.Detector
	if detector == nil {
		detector = graph.Louvain{}
	}
	groups, fallback := graph.Partition(g, detector)
	if fallback != nil {
		log.Warn().Err(fallback).Str("owner", owner).Msg("community detection failed, using connected components")
		e.Metrics.DetectorFellBack()
	}

	sum := Summarizer{Extractor: e.Extractor}
	clusters := make([]store.Cluster, 0, len(groups))
	for i, ids := range groups {
		members := make([]store.Entry, 0, len(ids))
		for _, id := range ids {
			members = append(members, byID[id])
		}
		// Entries are listed oldest first, and so is the graph's node order.
		sortByIndex(g, members)
		clusters = append(clusters, sum.Summarize(ctx, members, i))
	}

	if err := e.DB.ReplaceClusters(ctx, owner, clusters); err != nil {
		return nil, fmt.Errorf("detect clusters: %w", err)
	}
	e.Metrics.AddClusters(len(clusters))

	for _, c := range clusters {
		out = append(out, ClusterSummary{
			ID:       c.ID,
			Name:     c.Name,
			Theme:    c.Theme,
			Size:     len(c.MemberIDs),
			Keywords: c.Keywords[:min(5, len(c.Keywords))],
		})
	}
	log.Info().Str("owner", owner).Int("count", len(out)).
		Float64("modularity", graph.Modularity(g, groups)).Msg("clusters detected")
	return out, nil
}

// hasBoth reports whether both endpoints of r are live entries.
func hasBoth(byID map[string]store.Entry, r store.Relationship) bool {
	_, src := byID[r.SourceID]
	_, dst := byID[r.TargetID]
	return src && dst
}

func sortByIndex(g *graph.Graph, members []store.Entry) {
	idx := func(id string) int {
		i, _ := g.Index(id)
		return i
	}
	sort.Slice(members, func(i, j int) bool {
		return idx(members[i].ID) < idx(members[j].ID)
	})
}

// PathResult is the shortest chain of entries between two endpoints.
type PathResult struct {
	IDs      []string
	Entries  []store.Entry
	Distance int
}

// FindPath returns the strongest chain of relationships from source to
// target, or ErrNoPath when either is unknown or they are not connected.
func (e *Engine) FindPath(ctx context.Context, source, target, owner string) (*PathResult, error) {
	entries, err := e.DB.ListEntries(ctx, owner, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("find path: %w", err)
	}
	rels, err := e.DB.ListRelationships(ctx, owner, 0)
	if err != nil {
		return nil, fmt.Errorf("find path: %w", err)
	}
	if len(rels) == 0 {
		return nil, ErrNoPath
	}

	byID := make(map[string]store.Entry, len(entries))
	ids := make([]string, len(entries))
	for i, en := range entries {
		byID[en.ID] = en
		ids[i] = en.ID
	}
	if _, ok := byID[source]; !ok {
		return nil, ErrNoPath
	}
	if _, ok := byID[target]; !ok {
		return nil, ErrNoPath
	}

	edges := make([]graph.Edge, 0, len(rels))
	for _, r := range rels {
		if hasBoth(byID, r) {
			edges = append(edges, graph.Edge{Source: r.SourceID, Target: r.TargetID, Weight: r.Strength})
		}
	}
	path, ok := graph.ShortestPath(graph.Build(ids, edges), source, target)
	if !ok {
		return nil, ErrNoPath
	}

	res := &PathResult{IDs: path, Distance: len(path) - 1}
	for _, id := range path {
		res.Entries = append(res.Entries, byID[id])
	}
	return res, nil
}

// Relate creates or replaces the edge between source and target with a
// manual relationship. Strength is clamped to [0, 1].
func (e *Engine) Relate(ctx context.Context, owner, source, target string, typ RelationType, strength float64) (*store.Relationship, error) {
	if _, err := ParseRelationType(typ.String()); err != nil {
		return nil, err
	}
	if typ == "" {
		typ = RelationManual
	}
	if source == target {
		return nil, ErrSelfRelation
	}

	unlock := e.lock(owner)
	defer unlock()

	for _, id := range []string{source, target} {
		en, err := e.DB.GetEntry(ctx, owner, id)
		if err != nil {
			return nil, fmt.Errorf("relate: %w", err)
		}
		if en == nil {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
	}

	r := &store.Relationship{
		OwnerID:  owner,
		SourceID: source,
		TargetID: target,
		Strength: clamp01(strength),
		Type:     typ.String(),
		Reasons:  []string{"manual_connection"},
	}
	if err := e.DB.UpsertRelationship(ctx, r); err != nil {
		return nil, fmt.Errorf("relate: %w", err)
	}
	log.Info().Str("owner", owner).Str("source", source).Str("target", target).
		Float64("strength", r.Strength).Msg("manual relationship")
	return r, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return min(v, 1)
}
