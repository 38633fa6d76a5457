// Package store defines the corpus persistence contract shared by the
// Elasticsearch, SQLite and in-memory backends.
package store

import (
	"context"
	"time"

	"github.com/DeafMist/fin-news-radar/internal/models"
)

// TimeLayout is the timestamp format written by every backend.
const TimeLayout = time.RFC3339Nano

// Corpus is a keyed article and cluster store. Writes are last-write-wins.
type Corpus interface {
	SaveArticle(ctx context.Context, a models.Article) error
	SaveCluster(ctx context.Context, c models.StoryCluster) error
	LoadArticles(ctx context.Context) ([]models.Article, error)
	LoadClusters(ctx context.Context) ([]models.StoryCluster, error)
	SearchArticles(ctx context.Context, params SearchParams) (*SearchResult, error)
	DeleteCluster(ctx context.Context, id int64) error
	Purge(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Page size bounds for SearchArticles.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// SearchParams narrow a lexical article search.
type SearchParams struct {
	Query   string
	Source  string
	Company string
	From    int
	Size    int
	Start   *time.Time
	End     *time.Time
}

// Normalize clamps paging to the supported range.
func (p SearchParams) Normalize() SearchParams {
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	if p.From < 0 {
		p.From = 0
	}
	return p
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64            `json:"total"`
	Items []models.Article `json:"items"`
}
