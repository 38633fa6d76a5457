package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DeafMist/fin-news-radar/internal/enrich"
	"github.com/DeafMist/fin-news-radar/internal/impact"
	"github.com/DeafMist/fin-news-radar/internal/metrics"
	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/store"
	"github.com/DeafMist/fin-news-radar/internal/vector"
)

// Hit is a ranked story with the stocks its representative article affects.
type Hit struct {
	models.SearchResult
	Impacts []impact.Impact `json:"impacted_stocks"`
}

// Response answers a search. Partial is set when the query deadline expired
// before every story was scored.
type Response struct {
	Query   string                  `json:"query"`
	Intent  models.StructuredIntent `json:"intent"`
	Results []Hit                   `json:"results"`
	Partial bool                    `json:"partial"`
}

// Search interprets text, embeds it once and ranks the current stories. An
// uninterpretable query yields an empty result list, not an error.
func (s *Service) Search(ctx context.Context, text string, limit int) (Response, error) {
	start := time.Now()
	resp, err := s.search(ctx, text, limit)

	outcome := metrics.SearchOK
	switch {
	case err != nil:
		outcome = metrics.SearchFailed
	case resp.Partial:
		outcome = metrics.SearchPartial
	case len(resp.Results) == 0:
		outcome = metrics.SearchEmpty
	}
	s.metrics.ObserveSearch(outcome, time.Since(start))
	return resp, err
}

func (s *Service) search(ctx context.Context, text string, limit int) (Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Response{}, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	if limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}

	parent := ctx
	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}

	resp := Response{Query: text, Results: []Hit{}}

	intent, err := s.interpreter.Interpret(ctx, text)
	if err != nil {
		if s.queryExpired(parent, ctx) {
			resp.Partial = true
			return resp, nil
		}
		return Response{}, err
	}
	resp.Intent = intent
	if !intent.HasEntities() && !intent.HasLexicalSignal() {
		return resp, nil
	}

	qv, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if s.queryExpired(parent, ctx) {
			resp.Partial = true
			return resp, nil
		}
		return Response{}, enrich.Unavailable("embed query", err)
	}

	outcome, err := s.ranker.Rank(ctx, intent, qv, s.corpus.Snapshot())
	if errors.Is(err, vector.ErrDimensionMismatch) {
		return Response{}, fmt.Errorf("%w: %v", ErrEmbedderMismatch, err)
	}
	if err != nil {
		return Response{}, err
	}
	resp.Partial = outcome.Partial

	results := outcome.Results
	if len(results) > limit {
		results = results[:limit]
	}
	for _, r := range results {
		r.Representative.Embedding = nil
		resp.Results = append(resp.Results, Hit{
			SearchResult: r,
			Impacts:      impact.Analyze(r.Representative.Entities),
		})
	}
	return resp, nil
}

// queryExpired reports whether the query's own deadline, not the caller's
// context, ended the work.
func (s *Service) queryExpired(parent, ctx context.Context) bool {
	return parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// SearchArticles runs a lexical article search against the store.
func (s *Service) SearchArticles(ctx context.Context, params store.SearchParams) (*store.SearchResult, error) {
	return s.store.SearchArticles(ctx, params)
}
