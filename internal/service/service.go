// Package service exposes the corpus operations used by the HTTP API, the Kafka
// consumer and the replay tool.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DeafMist/fin-news-radar/internal/cluster"
	"github.com/DeafMist/fin-news-radar/internal/enrich"
	"github.com/DeafMist/fin-news-radar/internal/metrics"
	"github.com/DeafMist/fin-news-radar/internal/query"
	"github.com/DeafMist/fin-news-radar/internal/ranking"
	"github.com/DeafMist/fin-news-radar/internal/store"
	"github.com/DeafMist/fin-news-radar/internal/vector"
)

var (
	// ErrEmptyQuery is returned for a blank search text.
	ErrEmptyQuery = errors.New("no query")
	// ErrInvalidArticle rejects articles that cannot be ingested.
	ErrInvalidArticle = errors.New("invalid article")
	// ErrNotFound is returned for unknown article or cluster IDs.
	ErrNotFound = errors.New("not found")
	// ErrEmbedderMismatch means the configured embedder produces vectors of a
	// different dimension than the stored corpus.
	ErrEmbedderMismatch = errors.New("embedder dimension does not match corpus")
)

// Options tune the service.
type Options struct {
	QueryTimeout  time.Duration
	DefaultLimit  int
	MaxLimit      int
	TitleMaxWords int
}

// Deps are the collaborators of a Service. Metrics and Logger are optional.
type Deps struct {
	Corpus      *cluster.Corpus
	Store       store.Corpus
	Embedder    enrich.Embedder
	Extractor   enrich.EntityExtractor
	Interpreter *query.Interpreter
	Ranker      *ranking.Ranker
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Service wires enrichment, clustering and ranking together.
type Service struct {
	corpus      *cluster.Corpus
	store       store.Corpus
	embedder    enrich.Embedder
	extractor   enrich.EntityExtractor
	interpreter *query.Interpreter
	ranker      *ranking.Ranker
	metrics     *metrics.Metrics
	log         *slog.Logger
	opts        Options
}

// New validates deps and builds a Service.
func New(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Corpus == nil:
		return nil, errors.New("service: corpus is required")
	case deps.Store == nil:
		return nil, errors.New("service: store is required")
	case deps.Embedder == nil:
		return nil, errors.New("service: embedder is required")
	case deps.Extractor == nil:
		return nil, errors.New("service: entity extractor is required")
	case deps.Ranker == nil:
		return nil, errors.New("service: ranker is required")
	}
	if deps.Interpreter == nil {
		deps.Interpreter = query.NewInterpreter(deps.Extractor, 0)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	if opts.TitleMaxWords <= 0 {
		opts.TitleMaxWords = 12
	}

	return &Service{
		corpus:      deps.Corpus,
		store:       deps.Store,
		embedder:    deps.Embedder,
		extractor:   deps.Extractor,
		interpreter: deps.Interpreter,
		ranker:      deps.Ranker,
		metrics:     deps.Metrics,
		log:         deps.Logger,
		opts:        opts,
	}, nil
}

// Load restores the corpus from the store.
func (s *Service) Load(ctx context.Context) error {
	articles, err := s.store.LoadArticles(ctx)
	if err != nil {
		return err
	}
	clusters, err := s.store.LoadClusters(ctx)
	if err != nil {
		return err
	}
	if err := s.corpus.Restore(ctx, articles, clusters); err != nil {
		return fmt.Errorf("restore corpus: %w", err)
	}
	s.publishSize()
	return nil
}

// Recentre recomputes drifted centroids and returns how many were rewritten.
func (s *Service) Recentre(ctx context.Context) (int, error) {
	n, err := s.corpus.Recentre(ctx)
	s.metrics.AddRecomputed(n)
	return n, err
}

// Purge deletes the stored corpus and empties the in-memory state.
func (s *Service) Purge(ctx context.Context) error {
	if err := s.corpus.Purge(ctx); err != nil {
		return err
	}
	s.publishSize()
	s.log.Info("corpus purged")
	return nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Threshold returns the clustering similarity floor.
func (s *Service) Threshold() float64 {
	return s.corpus.Threshold()
}

func (s *Service) publishSize() {
	articles, clusters := s.corpus.Len()
	s.metrics.SetCorpusSize(articles, clusters)
}

// IsClientError reports whether err was caused by the submitted input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArticle) ||
		errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, cluster.ErrMissingEmbedding) ||
		errors.Is(err, cluster.ErrMissingID) ||
		errors.Is(err, vector.ErrDimensionMismatch)
}

// Len returns the corpus size.
func (s *Service) Len() (articles, clusters int) {
	return s.corpus.Len()
}
