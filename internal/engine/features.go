package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/constellation/internal/store"
)

// prepare computes embeddings and entity sets for every entry before any
// pair is scored. Per-entry failures degrade that entry's signals and are
// not returned; only cancellation aborts.
func (e *Engine) prepare(ctx context.Context, owner string, entries []store.Entry) ([]Features, error) {
	emb, persist := e.embedderFor(entries)
	cached := e.cachedVectors(ctx, owner, persist)

	feats := make([]Features, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			en := &entries[i]
			feats[i] = Features{
				ID:        en.ID,
				CreatedAt: en.CreatedAt,
				Mood:      en.Mood,
				Tags:      toSet(en.Tags),
				Embedding: e.embedding(gctx, en, emb, cached, persist),
				Entities:  toSet(e.entities(gctx, en)),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("prepare features: %w", err)
	}
	return feats, nil
}

// embedderFor returns the configured embedder, or a TF-IDF model fitted to
// entries when there is none. The second result reports whether vectors from
// the returned embedder may be cached.
func (e *Engine) embedderFor(entries []store.Entry) (Embedder, bool) {
	if e.Embedder != nil {
		return e.Embedder, true
	}
	docs := make([]string, len(entries))
	for i, en := range entries {
		docs[i] = en.Content
	}
	return NewTFIDFEmbedder(docs, e.TFIDFTerms), false
}

func (e *Engine) cachedVectors(ctx context.Context, owner string, persist bool) map[string]store.VectorRecord {
	if !persist {
		return map[string]store.VectorRecord{}
	}
	vecs, err := e.DB.OwnerVectors(ctx, owner)
	if err != nil {
		log.Warn().Err(err).Str("owner", owner).Msg("loading cached vectors")
		return map[string]store.VectorRecord{}
	}
	return vecs
}

func (e *Engine) embedding(ctx context.Context, en *store.Entry, emb Embedder, cached map[string]store.VectorRecord, persist bool) []float64 {
	if rec, ok := cached[en.ID]; ok && rec.Model == emb.Model() && len(rec.Embedding) > 0 {
		return rec.Embedding
	}

	vec, err := emb.Embed(ctx, en.Content)
	if err != nil {
		log.Warn().Err(err).Str("entry", en.ID).Msg("embedding failed, skipping semantic signal")
		e.Metrics.EmbedFailed()
		return nil
	}
	if persist {
		if err := e.DB.SaveVector(ctx, en.ID, vec, emb.Model()); err != nil {
			log.Warn().Err(err).Str("entry", en.ID).Msg("caching vector")
		}
	}
	return vec
}

func (e *Engine) entities(ctx context.Context, en *store.Entry) []string {
	if en.Entities != nil {
		return en.Entities
	}
	if e.Extractor == nil {
		return nil
	}

	ents, err := e.Extractor.Extract(ctx, en.Content)
	if err != nil {
		log.Warn().Err(err).Str("entry", en.ID).Msg("entity extraction failed, skipping entity signal")
		e.Metrics.ExtractFailed()
		return nil
	}
	if err := e.DB.SaveEntities(ctx, en.OwnerID, en.ID, ents); err != nil {
		log.Warn().Err(err).Str("entry", en.ID).Msg("caching entities")
	}
	return ents
}
