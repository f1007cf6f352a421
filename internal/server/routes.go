package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/constellation/internal/engine"
	"github.com/lazypower/constellation/internal/store"
)

type entryJSON struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Mood      string    `json:"mood"`
	Tags      []string  `json:"tags"`
	Keywords  []string  `json:"keywords"`
	CreatedAt time.Time `json:"created_at"`
}

func toEntryJSON(e *store.Entry) entryJSON {
	keywords := e.Entities
	if keywords == nil {
		keywords = []string{}
	}
	return entryJSON{
		ID:        e.ID,
		Text:      e.Content,
		Mood:      e.Mood,
		Tags:      e.Tags,
		Keywords:  keywords,
		CreatedAt: e.CreatedAt,
	}
}

type createEntryRequest struct {
	ID        string     `json:"id" validate:"omitempty,max=128"`
	Text      string     `json:"text" validate:"required,max=20000"`
	Mood      string     `json:"mood" validate:"omitempty,oneof=Happy Sad Angry Calm Neutral"`
	Tags      []string   `json:"tags" validate:"omitempty,max=32,dive,required,max=64"`
	CreatedAt *time.Time `json:"created_at"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	e := &store.Entry{
		ID:      req.ID,
		OwnerID: chi.URLParam(r, "owner"),
		Content: req.Text,
		Mood:    req.Mood,
		Tags:    req.Tags,
	}
	if req.CreatedAt != nil {
		e.CreatedAt = req.CreatedAt.UTC()
	}
	if err := s.db.CreateEntry(r.Context(), e); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryJSON(e))
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	name, window := engine.ParseTimeRange(r.URL.Query().Get("time_range"))
	var since time.Time
	if window > 0 {
		since = time.Now().Add(-window)
	}

	entries, err := s.db.ListEntries(r.Context(), chi.URLParam(r, "owner"), since)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]entryJSON, len(entries))
	for i := range entries {
		out[i] = toEntryJSON(&entries[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    out,
		"count":      len(out),
		"time_range": name,
	})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.db.GetEntry(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if e == nil {
		fail(w, r, engine.ErrEntryNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toEntryJSON(e))
}

type updateEntryRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req updateEntryRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	owner, id := chi.URLParam(r, "owner"), chi.URLParam(r, "id")
	ok, err := s.db.UpdateEntryContent(r.Context(), owner, id, req.Text)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !ok {
		fail(w, r, engine.ErrEntryNotFound)
		return
	}
	s.handleGetEntry(w, r)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	ok, err := s.db.DeleteEntry(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if !ok {
		fail(w, r, engine.ErrEntryNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	force, err := boolParam(r, "force_refresh", false)
	if err != nil {
		fail(w, r, err)
		return
	}

	n, err := s.db.CountEntries(r.Context(), owner)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := s.engine.AnalyzeRelationships(r.Context(), owner, force)
	if err != nil {
		fail(w, r, err)
		return
	}
	if n < 2 {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Not enough memories to analyze relationships",
			"count":   0,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":            "Relationships analyzed successfully",
		"count":              res.Created,
		"strong_connections": res.Strong,
		"existing":           res.Existing,
	})
}

func (s *Server) handleDetectClusters(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	n, err := s.db.CountRelationships(r.Context(), owner)
	if err != nil {
		fail(w, r, err)
		return
	}
	// Runs even without relationships so stale clusters are cleared.
	clusters, err := s.engine.DetectClusters(r.Context(), owner)
	if err != nil {
		fail(w, r, err)
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":  "No relationships found. Please analyze relationships first.",
			"clusters": clusters,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Clusters detected successfully",
		"count":    len(clusters),
		"clusters": clusters,
	})
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.db.ListClusters(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]engine.GraphCluster, len(clusters))
	for i, c := range clusters {
		out[i] = engine.ClusterView(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clusters": out,
		"count":    len(out),
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	minStrength := engine.DefaultMinScore
	if v := r.URL.Query().Get("min_strength"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			fail(w, r, fmt.Errorf("%w: min_strength must be a number in [0, 1]", errBadRequest))
			return
		}
		minStrength = f
	}
	include, err := boolParam(r, "include_clusters", true)
	if err != nil {
		fail(w, r, err)
		return
	}

	view, err := s.engine.Graph(r.Context(), chi.URLParam(r, "owner"), engine.GraphOpts{
		MinStrength:     minStrength,
		IncludeClusters: include,
		TimeRange:       r.URL.Query().Get("time_range"),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type pathStep struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Mood      string    `json:"mood"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.FindPath(r.Context(), chi.URLParam(r, "source"), chi.URLParam(r, "target"), chi.URLParam(r, "owner"))
	if errors.Is(err, engine.ErrNoPath) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "No path found between these memories",
			"path":    []pathStep{},
		})
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}

	steps := make([]pathStep, len(res.Entries))
	for i, e := range res.Entries {
		steps[i] = pathStep{
			ID:        e.ID,
			Text:      engine.Preview(e.Content, 50),
			Mood:      e.Mood,
			CreatedAt: e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  fmt.Sprintf("Path found with %d memories", len(steps)),
		"path":     steps,
		"distance": res.Distance,
	})
}

type relateRequest struct {
	SourceID string   `json:"source_id" validate:"required"`
	TargetID string   `json:"target_id" validate:"required"`
	Type     string   `json:"relationship_type" validate:"omitempty,oneof=semantic temporal entity_based manual related"`
	Strength *float64 `json:"strength"`
}

func (s *Server) handleRelate(w http.ResponseWriter, r *http.Request) {
	var req relateRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	strength := engine.DefaultManualStrength
	if req.Strength != nil {
		strength = *req.Strength
	}
	s.relate(w, r, req.SourceID, req.TargetID, req.Type, strength)
}

// handleRelatePair takes the pair from the path and the options from the
// query string.
func (s *Server) handleRelatePair(w http.ResponseWriter, r *http.Request) {
	strength := engine.DefaultManualStrength
	if v := r.URL.Query().Get("strength"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fail(w, r, fmt.Errorf("%w: strength must be a number", errBadRequest))
			return
		}
		strength = f
	}
	s.relate(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "target"), r.URL.Query().Get("relationship_type"), strength)
}

func (s *Server) relate(w http.ResponseWriter, r *http.Request, source, target, typ string, strength float64) {
	rt, err := engine.ParseRelationType(typ)
	if err != nil {
		fail(w, r, err)
		return
	}
	rel, err := s.engine.Relate(r.Context(), chi.URLParam(r, "owner"), source, target, rt, strength)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Relationship created successfully",
		"relationship": map[string]any{
			"id":       rel.ID,
			"source":   rel.SourceID,
			"target":   rel.TargetID,
			"type":     rel.Type,
			"strength": rel.Strength,
		},
	})
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", errBadRequest, name)
	}
	return b, nil
}

type searchHit struct {
	entryJSON
	Similarity float64 `json:"similarity"`
}

func searchOpts(r *http.Request) (engine.SearchOpts, error) {
	var opts engine.SearchOpts
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, fmt.Errorf("%w: limit must be a positive integer", errBadRequest)
		}
		opts.Limit = n
	}
	if v := r.URL.Query().Get("min_similarity"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return opts, fmt.Errorf("%w: min_similarity must be a number in [0, 1]", errBadRequest)
		}
		opts.MinSimilarity = f
	}
	return opts, nil
}

func writeHits(w http.ResponseWriter, results []engine.SearchResult) {
	hits := make([]searchHit, len(results))
	for i := range results {
		hits[i] = searchHit{entryJSON: toEntryJSON(&results[i].Entry), Similarity: results[i].Similarity}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": hits,
		"count":   len(hits),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		fail(w, r, fmt.Errorf("%w: q is required", errBadRequest))
		return
	}
	opts, err := searchOpts(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	results, err := s.engine.Search(r.Context(), chi.URLParam(r, "owner"), q, opts)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeHits(w, results)
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	opts, err := searchOpts(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	results, err := s.engine.Related(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "id"), opts)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeHits(w, results)
}
