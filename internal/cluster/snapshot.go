package cluster

import "github.com/DeafMist/fin-news-radar/internal/models"

// Story pairs a cluster with its representative article.
type Story struct {
	Cluster        models.StoryCluster
	Representative models.Article
}

// Snapshot is a read-only view of the corpus at one point in time. Cluster slices
// are never written after publication, so a snapshot stays consistent while
// assignment continues.
type Snapshot struct {
	Stories  []Story
	Articles int
}

// Snapshot returns the current clusters with their representatives.
func (c *Corpus) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stories := make([]Story, 0, len(c.clusters))
	for _, cl := range c.clusters {
		stories = append(stories, Story{
			Cluster:        cl,
			Representative: c.articles[cl.RepresentativeID],
		})
	}
	return Snapshot{Stories: stories, Articles: len(c.articles)}
}
