// Package api exposes the enrichment pipeline over HTTP for dashboard
// and automation use.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edulead/leadgen-cli/internal/model"
	"github.com/edulead/leadgen-cli/internal/store"
)

// Runner executes an enrichment run that has already been persisted.
type Runner interface {
	Execute(ctx context.Context, run *model.Run) (*model.OrganizationResult, error)
}

// Server serves the enrichment API. Enrichment requests are accepted
// immediately and executed in the background; callers poll the run
// endpoints for progress.
type Server struct {
	store    store.Store
	pipeline Runner

	// base context for background runs, so an accepted run survives the
	// request that created it but still stops on shutdown.
	runCtx context.Context
}

func NewServer(runCtx context.Context, st store.Store, pipeline Runner) *Server {
	return &Server{store: st, pipeline: pipeline, runCtx: runCtx}
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/enrich", s.handleEnrich)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)
	r.Get("/batches/{id}", s.handleGetBatch)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEnrich accepts a school, persists a queued run, and starts the
// pipeline in the background.
func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var school model.School
	if err := json.NewDecoder(r.Body).Decode(&school); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "api: decode school"))
		return
	}
	if school.Name == "" {
		writeError(w, http.StatusBadRequest, eris.New("api: school name is required"))
		return
	}

	run, err := s.store.CreateRun(r.Context(), school)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	go func() {
		if _, execErr := s.pipeline.Execute(s.runCtx, run); execErr != nil {
			zap.L().Error("api: background run failed",
				zap.String("run_id", run.ID),
				zap.String("school", school.Name),
				zap.Error(execErr),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:     model.RunStatus(q.Get("status")),
		SchoolName: q.Get("school"),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.store.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
