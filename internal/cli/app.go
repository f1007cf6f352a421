package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/lazypower/constellation/internal/engine"
	"github.com/lazypower/constellation/internal/llm"
	"github.com/lazypower/constellation/internal/metrics"
	"github.com/lazypower/constellation/internal/store"
)

func openDB() (*store.DB, error) {
	path := cfg.Database.Path
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// newEngine wires the engine from cfg: embedder by provider, LLM extractor
// when a model is configured, heuristic extraction otherwise.
func newEngine(ctx context.Context, db *store.DB, m *metrics.Collector) *engine.Engine {
	eng := engine.New(db, cfg.Engine)
	eng.SetMetrics(m)
	if cfg.Embedding.MaxTerms > 0 {
		eng.TFIDFTerms = cfg.Embedding.MaxTerms
	}

	if emb := selectEmbedder(ctx); emb != nil {
		eng.SetEmbedder(emb)
		log.Info().Str("model", emb.Model()).Msg("embedder configured")
	} else {
		log.Info().Msg("embedder: tfidf (per run)")
	}

	client, err := llm.NewClient(cfg.LLM)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("llm not configured, using heuristic entity extraction")
	case client != nil:
		eng.SetExtractor(&engine.LLMExtractor{Client: client, Fallback: engine.HeuristicExtractor{}})
		log.Info().Str("provider", cfg.LLM.Provider).Msg("llm entity extraction enabled")
	}
	return eng
}

func selectEmbedder(ctx context.Context) engine.Embedder {
	ec := cfg.Embedding
	ollama := func() engine.Embedder {
		return engine.NewBreakerEmbedder(engine.NewOllamaEmbedder(ec.OllamaURL, ec.Model, ec.Dimensions), 3, 30*time.Second)
	}
	switch ec.Provider {
	case "ollama":
		return ollama()
	case "tfidf":
		return nil
	default:
		if engine.ProbeOllama(ctx, ec.OllamaURL, ec.Model) {
			return ollama()
		}
		return nil
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
