package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/fin-news-radar/internal/cluster"
	"github.com/DeafMist/fin-news-radar/internal/enrich"
	"github.com/DeafMist/fin-news-radar/internal/metrics"
	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/processing"
	"github.com/DeafMist/fin-news-radar/internal/vector"
)

// IngestAndAssign normalises a raw article, enriches it and places it in a story
// cluster. Provider calls happen before the corpus lock is taken. An article
// whose ID is already known returns its existing assignment without enrichment.
func (s *Service) IngestAndAssign(ctx context.Context, a models.Article) (cluster.Assignment, error) {
	start := time.Now()

	res, err := s.ingest(ctx, a)
	outcome := metrics.OutcomeFailed
	switch {
	case err != nil:
	case res.Duplicate:
		outcome = metrics.OutcomeDuplicate
	case res.Created:
		outcome = metrics.OutcomeCreated
	default:
		outcome = metrics.OutcomeJoined
	}
	s.metrics.ObserveAssign(outcome, time.Since(start))
	if err != nil {
		return cluster.Assignment{}, err
	}

	s.publishSize()
	s.log.Info("article assigned",
		slog.String("id", res.Article.ID),
		slog.Int64("cluster", res.Cluster.ID),
		slog.String("outcome", outcome),
		slog.Float64("similarity", res.Similarity),
	)
	return res, nil
}

func (s *Service) ingest(ctx context.Context, a models.Article) (cluster.Assignment, error) {
	a, err := s.normalize(a)
	if err != nil {
		return cluster.Assignment{}, err
	}

	if existing, ok := s.corpus.Article(a.ID); ok {
		if cl, ok := s.corpus.Cluster(existing.ClusterID); ok {
			return cluster.Assignment{Cluster: cl, Article: existing, Duplicate: true, Similarity: 1}, nil
		}
	}

	text := a.Text()
	embedded := len(a.Embedding) == 0
	if embedded {
		emb, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return cluster.Assignment{}, enrich.Unavailable("embed article "+a.ID, err)
		}
		a.Embedding = emb
	}
	if a.Entities.Empty() {
		ents, err := s.extractor.Extract(ctx, text)
		if err != nil {
			return cluster.Assignment{}, enrich.Unavailable("extract entities of "+a.ID, err)
		}
		a.Entities = ents
	}

	res, err := s.corpus.Assign(ctx, a)
	if embedded && errors.Is(err, vector.ErrDimensionMismatch) {
		// the mismatch comes from our embedder, not the submitted article
		return cluster.Assignment{}, fmt.Errorf("%w: %v", ErrEmbedderMismatch, err)
	}
	return res, err
}

// normalize fills derived fields and validates the article.
func (s *Service) normalize(a models.Article) (models.Article, error) {
	a.Title = strings.TrimSpace(a.Title)
	a.Body = strings.TrimSpace(a.Body)
	a.Source = strings.TrimSpace(a.Source)
	a.ID = strings.TrimSpace(a.ID)

	if a.Title == "" && a.Body == "" {
		return models.Article{}, fmt.Errorf("%w: empty title and body", ErrInvalidArticle)
	}
	if a.Title == "" {
		a.Title = processing.GenerateTitleFromText(a.Body, s.opts.TitleMaxWords)
	}
	if a.Source == "" {
		a.Source = "unknown"
	}
	if a.PublishedAt.IsZero() {
		a.PublishedAt = time.Now().UTC()
	}

	if a.Sentiment.IsZero() {
		a.Sentiment = models.NeutralSentiment
	} else if !a.Sentiment.Valid() {
		return models.Article{}, fmt.Errorf("%w: sentiment %+v must lie in [0,1] and sum to 1", ErrInvalidArticle, a.Sentiment)
	}

	if a.ID == "" {
		a.ID = processing.BuildDocumentID(a.Title, processing.CleanText(a.Body), a.PublishedAt)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	// assigned by the corpus
	a.Seq, a.ClusterID = 0, 0
	return a, nil
}
