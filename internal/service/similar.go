package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/DeafMist/fin-news-radar/internal/enrich"
	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/vector"
)

// SimilarArticle is a stored article scored against a query embedding.
type SimilarArticle struct {
	models.Article
	Similarity float64 `json:"similarity"`
}

// SimilarArticles embeds text and returns the k stored articles whose
// embeddings are closest to it by cosine similarity. Equal scores order by
// article ID. Returned articles carry no embedding.
func (s *Service) SimilarArticles(ctx context.Context, text string, k int) ([]SimilarArticle, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = s.opts.DefaultLimit
	}
	if k > s.opts.MaxLimit {
		k = s.opts.MaxLimit
	}

	qv, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, enrich.Unavailable("embed query", err)
	}

	out := make([]SimilarArticle, 0)
	for _, a := range s.corpus.Articles() {
		if len(a.Embedding) != len(qv) {
			return nil, fmt.Errorf("%w: query has %d dimensions, article %s has %d",
				ErrEmbedderMismatch, len(qv), a.ID, len(a.Embedding))
		}
		sim, err := vector.Cosine(qv, a.Embedding)
		if err != nil {
			return nil, fmt.Errorf("score article %s: %w", a.ID, err)
		}
		a.Embedding = nil
		out = append(out, SimilarArticle{Article: a, Similarity: sim})
	}

	sortBySimilarity(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
