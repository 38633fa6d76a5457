package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeafMist/fin-news-radar/internal/config"
	"github.com/DeafMist/fin-news-radar/internal/enrich"
	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/processing"
	"github.com/DeafMist/fin-news-radar/internal/service"
	"github.com/DeafMist/fin-news-radar/internal/store"
)

const maxBodyBytes = 1 << 20

type server struct {
	log *slog.Logger
	cfg *config.API
	svc *service.Service
	// called after a successful purge
	onPurge func()
}

type errorResponse struct {
	Error string `json:"error"`
}

type articleRequest struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Source      string            `json:"source"`
	PublishedAt string            `json:"published_at"`
	Sentiment   *models.Sentiment `json:"sentiment"`
	Entities    *models.Entities  `json:"entities"`
	Embedding   []float64         `json:"embedding"`
}

type assignResponse struct {
	ArticleID  string  `json:"article_id"`
	ClusterID  int64   `json:"cluster_id"`
	Created    bool    `json:"created"`
	Duplicate  bool    `json:"duplicate"`
	Similarity float64 `json:"similarity"`
}

func (s *server) routes(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/search", s.handleSearch)
	r.Get("/articles", s.handleListArticles)
	r.Post("/articles", s.handleIngest)
	r.Get("/articles/similar", s.handleSimilar)
	r.Get("/articles/{id}", s.handleArticle)
	r.Get("/clusters", s.handleClusters)
	r.Get("/clusters/{id}", s.handleCluster)
	r.Delete("/corpus", s.handlePurge)
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.svc.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	articles, clusters := s.svc.Len()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"articles":  articles,
		"clusters":  clusters,
		"threshold": s.svc.Threshold(),
	})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := clampInt(r.URL.Query().Get("limit"), s.cfg.DefaultPage, s.cfg.MaxPage)

	resp, err := s.svc.Search(r.Context(), q, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	k := clampInt(r.URL.Query().Get("k"), s.cfg.DefaultPage, s.cfg.MaxPage)

	hits, err := s.svc.SimilarArticles(r.Context(), q, k)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "results": hits})
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req articleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	a := models.Article{
		ID:          req.ID,
		Title:       req.Title,
		Body:        req.Body,
		Source:      req.Source,
		PublishedAt: processing.ParseTimestamp(req.PublishedAt),
		Embedding:   req.Embedding,
	}
	if strings.TrimSpace(req.PublishedAt) != "" && a.PublishedAt.IsZero() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid published_at"})
		return
	}
	if req.Sentiment != nil {
		a.Sentiment = *req.Sentiment
	}
	if req.Entities != nil {
		a.Entities = *req.Entities
	}

	res, err := s.svc.IngestAndAssign(r.Context(), a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, assignResponse{
		ArticleID:  res.Article.ID,
		ClusterID:  res.Cluster.ID,
		Created:    res.Created,
		Duplicate:  res.Duplicate,
		Similarity: res.Similarity,
	})
}

func (s *server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := store.SearchParams{
		Query:   strings.TrimSpace(q.Get("q")),
		Source:  strings.TrimSpace(q.Get("source")),
		Company: strings.TrimSpace(q.Get("company")),
		From:    clampInt(q.Get("from"), 0, 10_000),
		Size:    clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Start:   parseTime(q.Get("start")),
		End:     parseTime(q.Get("end")),
	}

	result, err := s.svc.SearchArticles(ctx, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleArticle(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Article(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view.Embedding = nil
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleClusters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Clusters())
}

func (s *server) handleCluster(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cluster id must be an integer"})
		return
	}
	view, err := s.svc.Cluster(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Purge(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.onPurge != nil {
		s.onPurge()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case service.IsClientError(err):
		status = http.StatusBadRequest
	case errors.Is(err, enrich.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("err", err),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
