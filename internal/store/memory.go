package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/DeafMist/fin-news-radar/internal/models"
)

// Memory keeps the corpus in process. It backs local runs and tests.
type Memory struct {
	mu       sync.RWMutex
	articles map[string]models.Article
	clusters map[int64]models.StoryCluster
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		articles: make(map[string]models.Article),
		clusters: make(map[int64]models.StoryCluster),
	}
}

func (m *Memory) SaveArticle(_ context.Context, a models.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles[a.ID] = a
	return nil
}

func (m *Memory) SaveCluster(_ context.Context, c models.StoryCluster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Members = append([]string(nil), c.Members...)
	m.clusters[c.ID] = c
	return nil
}

func (m *Memory) LoadArticles(context.Context) ([]models.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Article, 0, len(m.articles))
	for _, a := range m.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) LoadClusters(context.Context) ([]models.StoryCluster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.StoryCluster, 0, len(m.clusters))
	for _, c := range m.clusters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SearchArticles matches the query words case-insensitively against title and body.
func (m *Memory) SearchArticles(_ context.Context, params SearchParams) (*SearchResult, error) {
	params = params.Normalize()
	words := strings.Fields(strings.ToLower(params.Query))

	m.mu.RLock()
	var hits []models.Article
	for _, a := range m.articles {
		if params.Source != "" && a.Source != params.Source {
			continue
		}
		if params.Company != "" && !containsFold(a.Entities.Companies, params.Company) {
			continue
		}
		if params.Start != nil && a.PublishedAt.Before(*params.Start) {
			continue
		}
		if params.End != nil && a.PublishedAt.After(*params.End) {
			continue
		}
		if !matchesAll(strings.ToLower(a.Title+" "+a.Body), words) {
			continue
		}
		a.Embedding = nil
		hits = append(hits, a)
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].PublishedAt.Equal(hits[j].PublishedAt) {
			return hits[i].PublishedAt.After(hits[j].PublishedAt)
		}
		return hits[i].ID < hits[j].ID
	})

	res := &SearchResult{Total: int64(len(hits))}
	if params.From < len(hits) {
		end := params.From + params.Size
		if end > len(hits) {
			end = len(hits)
		}
		res.Items = hits[params.From:end]
	}
	return res, nil
}

// DeleteCluster removes one cluster record. Missing IDs are not an error.
func (m *Memory) DeleteCluster(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clusters, id)
	return nil
}

func (m *Memory) Purge(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles = make(map[string]models.Article)
	m.clusters = make(map[int64]models.StoryCluster)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func matchesAll(text string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
