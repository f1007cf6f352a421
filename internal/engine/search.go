package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/constellation/internal/store"
)

// SearchResult is one entry ranked by embedding similarity.
type SearchResult struct {
	Entry      store.Entry
	Similarity float64
}

// SearchOpts controls Search and Related.
type SearchOpts struct {
	Limit         int     // max results (default 10 for Search, 5 for Related)
	MinSimilarity float64 // results must score above this; zero keeps any positive match
}

func (o SearchOpts) limit(def int) int {
	if o.Limit <= 0 {
		return def
	}
	return o.Limit
}

// Search ranks the owner's entries by similarity to query.
func (e *Engine) Search(ctx context.Context, owner, query string, opts SearchOpts) (out []SearchResult, err error) {
	start := time.Now()
	defer func() { e.Metrics.ObserveRun("search", start, err) }()

	entries, err := e.DB.ListEntries(ctx, owner, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(entries) == 0 {
		return []SearchResult{}, nil
	}

	emb, persist := e.embedderFor(entries)
	qv, err := emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	return e.rank(ctx, owner, entries, emb, persist, qv, "", opts.MinSimilarity, opts.limit(10))
}

// Related ranks the owner's other entries by similarity to entry id.
func (e *Engine) Related(ctx context.Context, owner, id string, opts SearchOpts) (out []SearchResult, err error) {
	start := time.Now()
	defer func() { e.Metrics.ObserveRun("related", start, err) }()

	entries, err := e.DB.ListEntries(ctx, owner, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("related: %w", err)
	}
	src := -1
	for i := range entries {
		if entries[i].ID == id {
			src = i
			break
		}
	}
	if src < 0 {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}

	emb, persist := e.embedderFor(entries)
	qv := e.embedding(ctx, &entries[src], emb, e.cachedVectors(ctx, owner, persist), persist)
	if qv == nil {
		return []SearchResult{}, nil
	}
	return e.rank(ctx, owner, entries, emb, persist, qv, id, opts.MinSimilarity, opts.limit(5))
}

func (e *Engine) rank(ctx context.Context, owner string, entries []store.Entry, emb Embedder, persist bool,
	query []float64, exclude string, minSim float64, limit int) ([]SearchResult, error) {
	cached := e.cachedVectors(ctx, owner, persist)

	sims := make([]float64, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range entries {
		if entries[i].ID == exclude {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sims[i] = CosineSimilarity(query, e.embedding(gctx, &entries[i], emb, cached, persist))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}

	results := []SearchResult{}
	for i, en := range entries {
		if en.ID == exclude || !above(sims[i], minSim) {
			continue
		}
		results = append(results, SearchResult{Entry: en, Similarity: sims[i]})
	}
	// Stable, so equal scores stay oldest first.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	log.Debug().Str("owner", owner).Int("results", len(results)).Msg("similarity ranking")
	return results, nil
}
