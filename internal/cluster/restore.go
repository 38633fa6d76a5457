package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/DeafMist/fin-news-radar/internal/models"
)

// Restore replaces the corpus state with persisted records.
//
// Records written by an interrupted Assign are repaired: cluster members that have
// no article are dropped, articles that no cluster claims are assigned again in
// ingestion order, and every repaired cluster is saved back.
func (c *Corpus) Restore(ctx context.Context, articles []models.Article, clusters []models.StoryCluster) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reset()

	articles = append([]models.Article(nil), articles...)
	clusters = append([]models.StoryCluster(nil), clusters...)
	sort.Slice(articles, func(i, j int) bool {
		if articles[i].Seq != articles[j].Seq {
			return articles[i].Seq < articles[j].Seq
		}
		return articles[i].ID < articles[j].ID
	})
	for _, a := range articles {
		if len(a.Embedding) == 0 {
			return fmt.Errorf("restore article %s: %w", a.ID, ErrMissingEmbedding)
		}
		if c.dim == 0 {
			c.dim = len(a.Embedding)
		}
		c.articles[a.ID] = a
		if a.Seq > c.lastSeq {
			c.lastSeq = a.Seq
		}
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })

	claimed := make(map[string]int64, len(articles))
	var repaired []int
	for _, cl := range clusters {
		if cl.ID > c.lastID {
			c.lastID = cl.ID
		}
		members := make([]string, 0, len(cl.Members))
		for _, id := range cl.Members {
			if _, ok := c.articles[id]; !ok {
				continue
			}
			if _, dup := claimed[id]; dup {
				continue
			}
			claimed[id] = cl.ID
			members = append(members, id)
		}
		if len(members) == 0 {
			c.log.Warn("dropping empty cluster on restore", slog.Int64("cluster", cl.ID))
			continue
		}

		next := cl
		if len(members) != len(cl.Members) || len(cl.Centroid) != c.dim {
			centroid, err := c.exactCentroid(members)
			if err != nil {
				return fmt.Errorf("restore cluster %d: %w", cl.ID, err)
			}
			next.Members = members
			next.Centroid = centroid
			next.Updates = 0
			repaired = append(repaired, len(c.clusters))
		}
		next.RepresentativeID = c.representativeOf(members)

		c.byID[next.ID] = len(c.clusters)
		c.clusters = append(c.clusters, next)
	}

	for _, i := range repaired {
		if err := c.store.SaveCluster(ctx, c.clusters[i]); err != nil {
			return fmt.Errorf("save cluster %d: %w", c.clusters[i].ID, err)
		}
	}

	for i := range articles {
		a := c.articles[articles[i].ID]
		if cid, ok := claimed[a.ID]; ok {
			a.ClusterID = cid
			c.articles[a.ID] = a
			continue
		}
		if err := c.reassign(ctx, a); err != nil {
			return err
		}
	}

	c.log.Info("corpus restored",
		slog.Int("articles", len(c.articles)),
		slog.Int("clusters", len(c.clusters)),
		slog.Int("repaired", len(repaired)),
	)
	return nil
}

// reassign places an already-sequenced orphan article. Caller holds the write lock.
func (c *Corpus) reassign(ctx context.Context, a models.Article) error {
	delete(c.articles, a.ID)

	best, _, err := c.bestMatch(a.Embedding)
	if err != nil {
		return fmt.Errorf("restore article %s: %w", a.ID, err)
	}

	var updated models.StoryCluster
	if best < 0 {
		updated = models.StoryCluster{
			ID:               c.lastID + 1,
			Members:          []string{a.ID},
			RepresentativeID: a.ID,
			Centroid:         append([]float64(nil), a.Embedding...),
		}
	} else {
		updated, err = c.join(c.clusters[best], a)
		if err != nil {
			return fmt.Errorf("restore article %s: %w", a.ID, err)
		}
	}
	a.ClusterID = updated.ID

	if err := c.store.SaveArticle(ctx, a); err != nil {
		return fmt.Errorf("save article %s: %w", a.ID, err)
	}
	if err := c.store.SaveCluster(ctx, updated); err != nil {
		return fmt.Errorf("save cluster %d: %w", updated.ID, err)
	}

	c.articles[a.ID] = a
	if best < 0 {
		c.lastID = updated.ID
		c.byID[updated.ID] = len(c.clusters)
		c.clusters = append(c.clusters, updated)
	} else {
		c.clusters[best] = updated
	}
	return nil
}

func (c *Corpus) representativeOf(ids []string) string {
	members := make([]models.Article, 0, len(ids))
	for _, id := range ids {
		members = append(members, c.articles[id])
	}
	return Representative(members).ID
}
