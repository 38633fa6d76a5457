package service

import (
	"fmt"
	"time"

	"github.com/DeafMist/fin-news-radar/internal/impact"
	"github.com/DeafMist/fin-news-radar/internal/models"
)

// ArticleView is a stored article with its stock impact.
type ArticleView struct {
	models.Article
	Impacts []impact.Impact `json:"impacted_stocks"`
}

// ClusterView is a story with its member articles, newest first.
type ClusterView struct {
	ID             int64            `json:"id"`
	Size           int              `json:"size"`
	Representative models.Article   `json:"representative"`
	Articles       []models.Article `json:"articles"`
}

// ClusterSummary is one line of the story listing.
type ClusterSummary struct {
	ID               int64     `json:"id"`
	Size             int       `json:"size"`
	RepresentativeID string    `json:"representative_id"`
	Title            string    `json:"title"`
	PublishedAt      time.Time `json:"published_at"`
}

// Article returns a stored article and its impact analysis.
func (s *Service) Article(id string) (ArticleView, error) {
	a, ok := s.corpus.Article(id)
	if !ok {
		return ArticleView{}, fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	return ArticleView{Article: a, Impacts: impact.Analyze(a.Entities)}, nil
}

// Cluster returns a story with its members.
func (s *Service) Cluster(id int64) (ClusterView, error) {
	cl, ok := s.corpus.Cluster(id)
	if !ok {
		return ClusterView{}, fmt.Errorf("cluster %d: %w", id, ErrNotFound)
	}

	view := ClusterView{ID: cl.ID, Size: cl.Size()}
	for _, mid := range cl.Members {
		a, ok := s.corpus.Article(mid)
		if !ok {
			continue
		}
		a.Embedding = nil
		view.Articles = append(view.Articles, a)
		if a.ID == cl.RepresentativeID {
			view.Representative = a
		}
	}
	sortNewestFirst(view.Articles)
	return view, nil
}

// Clusters lists every story, newest representative first.
func (s *Service) Clusters() []ClusterSummary {
	snap := s.corpus.Snapshot()
	out := make([]ClusterSummary, 0, len(snap.Stories))
	for _, st := range snap.Stories {
		out = append(out, ClusterSummary{
			ID:               st.Cluster.ID,
			Size:             st.Cluster.Size(),
			RepresentativeID: st.Representative.ID,
			Title:            st.Representative.Title,
			PublishedAt:      st.Representative.PublishedAt,
		})
	}
	sortSummaries(out)
	return out
}
