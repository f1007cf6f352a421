package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lazypower/constellation/internal/engine"
	"github.com/lazypower/constellation/internal/metrics"
	"github.com/lazypower/constellation/internal/store"
)

// Server is the constellation HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	metrics *metrics.Collector
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server. m may be nil, in which case /metrics is not served.
func New(db *store.DB, eng *engine.Engine, m *metrics.Collector, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		metrics: m,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/owners/{owner}", func(r chi.Router) {
			r.Post("/entries", s.handleCreateEntry)
			r.Get("/entries", s.handleListEntries)
			r.Get("/entries/{id}", s.handleGetEntry)
			r.Put("/entries/{id}", s.handleUpdateEntry)
			r.Delete("/entries/{id}", s.handleDeleteEntry)
			r.Post("/entries/{id}/relate/{target}", s.handleRelatePair)
			r.Get("/entries/{id}/related", s.handleRelated)
			r.Get("/search", s.handleSearch)

			r.Post("/relationships/analyze", s.handleAnalyze)
			r.Post("/relationships", s.handleRelate)
			r.Post("/clusters/detect", s.handleDetectClusters)
			r.Get("/clusters", s.handleListClusters)
			r.Get("/graph", s.handleGraph)
			r.Get("/path/{source}/{target}", s.handlePath)
		})
	})

	s.router = r
}

// instrument records request counts and latency by route pattern, so path
// parameters do not blow up label cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db.PingContext(r.Context()) == nil

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}
