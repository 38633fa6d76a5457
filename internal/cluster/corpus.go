// Package cluster groups near-duplicate articles into story clusters.
//
// Assignment is online: each article is compared with the current cluster centroids
// and joins the most similar one at or above the threshold, otherwise it opens a new
// cluster. The resulting partition depends on ingestion order; Partition offers an
// order-independent batch alternative over a fixed article set.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/vector"
)

// DefaultThreshold is the near-duplicate cosine similarity floor.
const DefaultThreshold = 0.85

// DefaultRecomputeEvery bounds how many incremental centroid updates a cluster
// accumulates before its centroid is recomputed from the member embeddings.
const DefaultRecomputeEvery = 64

var (
	// ErrMissingEmbedding rejects articles without a vector or with a zero vector.
	ErrMissingEmbedding = errors.New("article has no embedding")
	// ErrMissingID rejects articles without an identifier.
	ErrMissingID = errors.New("article has no id")
)

// Store persists corpus records. Writes are last-write-wins.
type Store interface {
	SaveArticle(ctx context.Context, a models.Article) error
	SaveCluster(ctx context.Context, c models.StoryCluster) error
	Purge(ctx context.Context) error
}

// Options tune assignment.
type Options struct {
	Threshold      float64
	RecomputeEvery int
}

// Assignment describes where Assign placed an article.
type Assignment struct {
	Cluster    models.StoryCluster
	Article    models.Article
	Created    bool
	Duplicate  bool
	Similarity float64
}

// Corpus owns the articles and clusters of a single news corpus. All mutation goes
// through Assign, Recentre, Restore and Purge, which hold the write lock for the
// whole scan-and-update.
type Corpus struct {
	mu    sync.RWMutex
	store Store
	opts  Options
	log   *slog.Logger

	articles map[string]models.Article
	clusters []models.StoryCluster // ascending by ID
	byID     map[int64]int
	lastID   int64
	lastSeq  int64
	dim      int
}

// New creates an empty corpus persisting through store.
func New(store Store, opts Options, logger *slog.Logger) *Corpus {
	if store == nil {
		store = Discard{}
	}
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}
	if opts.RecomputeEvery < 0 {
		opts.RecomputeEvery = 0
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Corpus{store: store, opts: opts, log: logger}
	c.reset()
	return c
}

func (c *Corpus) reset() {
	c.articles = make(map[string]models.Article)
	c.clusters = nil
	c.byID = make(map[int64]int)
	c.lastID = 0
	c.lastSeq = 0
	c.dim = 0
}

// Threshold returns the similarity floor in use.
func (c *Corpus) Threshold() float64 {
	return c.opts.Threshold
}

// Assign places an enriched article into the best qualifying cluster or a new one.
// The article and the affected cluster are persisted before the in-memory state
// changes; a store failure leaves the corpus untouched.
func (c *Corpus) Assign(ctx context.Context, a models.Article) (Assignment, error) {
	if a.ID == "" {
		return Assignment{}, ErrMissingID
	}
	if vector.IsZero(a.Embedding) {
		return Assignment{}, fmt.Errorf("assign %s: %w", a.ID, ErrMissingEmbedding)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.articles[a.ID]; ok {
		cl := c.clusters[c.byID[existing.ClusterID]]
		return Assignment{Cluster: cl, Article: existing, Duplicate: true, Similarity: 1}, nil
	}
	if c.dim != 0 && len(a.Embedding) != c.dim {
		return Assignment{}, fmt.Errorf("assign %s: %w: got %d, corpus uses %d",
			a.ID, vector.ErrDimensionMismatch, len(a.Embedding), c.dim)
	}

	best, sim, err := c.bestMatch(a.Embedding)
	if err != nil {
		return Assignment{}, fmt.Errorf("assign %s: %w", a.ID, err)
	}

	a.Embedding = append([]float64(nil), a.Embedding...)
	a.Seq = c.lastSeq + 1

	var (
		updated models.StoryCluster
		created bool
	)
	if best < 0 {
		created = true
		updated = models.StoryCluster{
			ID:               c.lastID + 1,
			Members:          []string{a.ID},
			RepresentativeID: a.ID,
			Centroid:         append([]float64(nil), a.Embedding...),
		}
		sim = 1
	} else {
		updated, err = c.join(c.clusters[best], a)
		if err != nil {
			return Assignment{}, fmt.Errorf("assign %s: %w", a.ID, err)
		}
	}
	a.ClusterID = updated.ID

	if err := c.store.SaveArticle(ctx, a); err != nil {
		return Assignment{}, fmt.Errorf("save article %s: %w", a.ID, err)
	}
	if err := c.store.SaveCluster(ctx, updated); err != nil {
		return Assignment{}, fmt.Errorf("save cluster %d: %w", updated.ID, err)
	}

	c.articles[a.ID] = a
	c.lastSeq = a.Seq
	if c.dim == 0 {
		c.dim = len(a.Embedding)
	}
	if created {
		c.lastID = updated.ID
		c.byID[updated.ID] = len(c.clusters)
		c.clusters = append(c.clusters, updated)
	} else {
		c.clusters[best] = updated
	}

	c.log.Debug("article assigned",
		slog.String("article", a.ID),
		slog.Int64("cluster", updated.ID),
		slog.Bool("created", created),
		slog.Float64("similarity", sim),
	)

	return Assignment{Cluster: updated, Article: a, Created: created, Similarity: sim}, nil
}

// bestMatch returns the index of the most similar qualifying cluster, or -1.
// Clusters are scanned in ascending ID order and only a strictly greater similarity
// replaces the current best, so ties resolve to the lowest cluster ID.
func (c *Corpus) bestMatch(embedding []float64) (int, float64, error) {
	best := -1
	bestSim := 0.0
	for i, cl := range c.clusters {
		sim, err := vector.Cosine(embedding, cl.Centroid)
		if err != nil {
			return -1, 0, err
		}
		if sim < c.opts.Threshold {
			continue
		}
		if best < 0 || sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return best, bestSim, nil
}

// join returns a copy of cl with a added. The receiver's slices are never shared
// with the result, so snapshots taken earlier stay valid.
func (c *Corpus) join(cl models.StoryCluster, a models.Article) (models.StoryCluster, error) {
	members := make([]string, len(cl.Members), len(cl.Members)+1)
	copy(members, cl.Members)
	members = append(members, a.ID)

	centroid, err := vector.UpdateMean(cl.Centroid, a.Embedding, len(members))
	if err != nil {
		return models.StoryCluster{}, err
	}
	updates := cl.Updates + 1

	if c.opts.RecomputeEvery > 0 && updates >= c.opts.RecomputeEvery {
		centroid, err = c.exactCentroid(members, a)
		if err != nil {
			return models.StoryCluster{}, err
		}
		updates = 0
	}

	rep := cl.RepresentativeID
	if current, ok := c.articles[rep]; !ok || moreRepresentative(a, current) {
		rep = a.ID
	}

	return models.StoryCluster{
		ID:               cl.ID,
		Members:          members,
		RepresentativeID: rep,
		Centroid:         centroid,
		Updates:          updates,
	}, nil
}

func (c *Corpus) exactCentroid(members []string, pending ...models.Article) ([]float64, error) {
	extra := make(map[string]models.Article, len(pending))
	for _, p := range pending {
		extra[p.ID] = p
	}
	vecs := make([][]float64, 0, len(members))
	for _, id := range members {
		a, ok := c.articles[id]
		if !ok {
			a, ok = extra[id]
		}
		if !ok {
			return nil, fmt.Errorf("member %s not in corpus", id)
		}
		vecs = append(vecs, a.Embedding)
	}
	return vector.Mean(vecs)
}

// Recentre recomputes, from the member embeddings, the centroid of every cluster
// that received incremental updates since its last exact recomputation.
// It returns the number of clusters rewritten.
func (c *Corpus) Recentre(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for i, cl := range c.clusters {
		if cl.Updates == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		centroid, err := c.exactCentroid(cl.Members)
		if err != nil {
			return n, fmt.Errorf("recentre cluster %d: %w", cl.ID, err)
		}
		next := cl
		next.Centroid = centroid
		next.Updates = 0
		if err := c.store.SaveCluster(ctx, next); err != nil {
			return n, fmt.Errorf("save cluster %d: %w", cl.ID, err)
		}
		c.clusters[i] = next
		n++
	}
	return n, nil
}

// Purge deletes every persisted record and empties the corpus.
func (c *Corpus) Purge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Purge(ctx); err != nil {
		return fmt.Errorf("purge store: %w", err)
	}
	c.reset()
	return nil
}

// Article returns a stored article by id.
func (c *Corpus) Article(id string) (models.Article, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.articles[id]
	return a, ok
}

// Cluster returns a cluster by id.
func (c *Corpus) Cluster(id int64) (models.StoryCluster, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return models.StoryCluster{}, false
	}
	return c.clusters[i], true
}

// Clusters returns every cluster in ascending ID order.
func (c *Corpus) Clusters() []models.StoryCluster {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.StoryCluster, len(c.clusters))
	copy(out, c.clusters)
	return out
}

// Len returns the number of articles and clusters.
func (c *Corpus) Len() (articles, clusters int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.articles), len(c.clusters)
}

// Articles returns all articles in ingestion order.
func (c *Corpus) Articles() []models.Article {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Article, 0, len(c.articles))
	for _, a := range c.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Representative picks the member with the latest publication date, breaking
// ties by the lowest article ID. It returns the zero value for no members.
func Representative(members []models.Article) models.Article {
	var best models.Article
	for i, m := range members {
		if i == 0 || moreRepresentative(m, best) {
			best = m
		}
	}
	return best
}

func moreRepresentative(a, b models.Article) bool {
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.After(b.PublishedAt)
	}
	return a.ID < b.ID
}

// Discard is a Store that keeps nothing.
type Discard struct{}

func (Discard) SaveArticle(context.Context, models.Article) error      { return nil }
func (Discard) SaveCluster(context.Context, models.StoryCluster) error { return nil }
func (Discard) Purge(context.Context) error                            { return nil }
