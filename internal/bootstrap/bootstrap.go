// Package bootstrap assembles the store, enrichment providers and service from
// configuration for the api and replay binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DeafMist/fin-news-radar/internal/cluster"
	"github.com/DeafMist/fin-news-radar/internal/config"
	"github.com/DeafMist/fin-news-radar/internal/elasticsearch"
	"github.com/DeafMist/fin-news-radar/internal/enrich"
	"github.com/DeafMist/fin-news-radar/internal/metrics"
	"github.com/DeafMist/fin-news-radar/internal/query"
	"github.com/DeafMist/fin-news-radar/internal/sqlitestore"
	"github.com/DeafMist/fin-news-radar/internal/store"
)

// Store is a corpus store that may hold resources to release.
type Store interface {
	store.Corpus
	Close() error
}

type nopCloser struct {
	store.Corpus
}

func (nopCloser) Close() error { return nil }

// OpenStore connects the configured backend. Elasticsearch indices are created
// when missing.
func OpenStore(ctx context.Context, cfg config.Store, log *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendElasticsearch:
		es, err := elasticsearch.Connect(ctx, cfg.ElasticsearchAddr, cfg.ArticleIndex, cfg.ClusterIndex, cfg.ConnectAttempts, log)
		if err != nil {
			return nil, err
		}
		if err := es.EnsureIndices(ctx); err != nil {
			return nil, err
		}
		log.Info("connected to elasticsearch", slog.String("addr", cfg.ElasticsearchAddr))
		return nopCloser{es}, nil
	case config.BackendSQLite:
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("opened sqlite store", slog.String("path", cfg.SQLitePath))
		return db, nil
	case config.BackendMemory:
		log.Warn("using in-memory store, corpus is lost on restart")
		return nopCloser{store.NewMemory()}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Enrichment bundles the providers used for articles and queries.
type Enrichment struct {
	Embedder  enrich.Embedder
	Extractor enrich.EntityExtractor
}

// NewEnrichment builds the configured embedder behind a memo cache and wraps
// both providers with timeouts and retries.
func NewEnrichment(cfg config.Embedding, log *slog.Logger, m *metrics.Metrics) (Enrichment, error) {
	var base enrich.Embedder
	switch cfg.Provider {
	case config.ProviderOpenAI:
		oa, err := enrich.NewOpenAI(enrich.OpenAIConfig{
			APIKey:     cfg.OpenAIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return Enrichment{}, fmt.Errorf("init openai embedder: %w", err)
		}
		base = oa
	case config.ProviderHashing:
		base = enrich.NewHashing(cfg.Dimensions)
	default:
		return Enrichment{}, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	retrying := enrich.NewRetrying(base, enrich.NewDictionary(), enrich.RetryPolicy{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.Backoff,
	}, log, m)

	var embedder enrich.Embedder = retrying
	if cfg.CacheCapacity > 0 {
		embedder = enrich.NewCaching(retrying, cfg.CacheCapacity, cfg.CacheTTL)
	}
	return Enrichment{Embedder: embedder, Extractor: retrying}, nil
}

// NewCorpus creates an empty corpus persisting to st.
func NewCorpus(cfg config.Common, st cluster.Store, log *slog.Logger) *cluster.Corpus {
	return cluster.New(st, cluster.Options{
		Threshold:      cfg.Threshold,
		RecomputeEvery: cfg.RecomputeEvery,
	}, log)
}

// NewInterpreter builds the query interpreter for cfg.
func NewInterpreter(cfg config.Common, e Enrichment) *query.Interpreter {
	return query.NewInterpreter(e.Extractor, cfg.KeywordMinLen)
}
