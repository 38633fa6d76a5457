package cluster_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/fin-news-radar/internal/cluster"
	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/vector"
)

type memStore struct {
	mu          sync.Mutex
	articles    map[string]models.Article
	clusters    map[int64]models.StoryCluster
	failCluster error
	purged      int
}

func newMemStore() *memStore {
	return &memStore{
		articles: make(map[string]models.Article),
		clusters: make(map[int64]models.StoryCluster),
	}
}

func (s *memStore) SaveArticle(_ context.Context, a models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[a.ID] = a
	return nil
}

func (s *memStore) SaveCluster(_ context.Context, c models.StoryCluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCluster != nil {
		return s.failCluster
	}
	s.clusters[c.ID] = c
	return nil
}

func (s *memStore) Purge(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles = make(map[string]models.Article)
	s.clusters = make(map[int64]models.StoryCluster)
	s.purged++
	return nil
}

func (s *memStore) records() ([]models.Article, []models.StoryCluster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var as []models.Article
	for _, a := range s.articles {
		as = append(as, a)
	}
	var cs []models.StoryCluster
	for _, c := range s.clusters {
		cs = append(cs, c)
	}
	return as, cs
}

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func article(id string, emb ...float64) models.Article {
	return models.Article{ID: id, Title: "title " + id, PublishedAt: base, Embedding: emb}
}

func newCorpus(t *testing.T, threshold float64) (*cluster.Corpus, *memStore) {
	t.Helper()
	store := newMemStore()
	return cluster.New(store, cluster.Options{Threshold: threshold, RecomputeEvery: cluster.DefaultRecomputeEvery}, nil), store
}

// unitAt returns a unit vector with the given cosine to the unit direction of u,
// rotated within the plane spanned by u and the first axis orthogonal to it.
func unitAt(u []float64, cos float64) []float64 {
	n := vector.Normalize(u)
	w := make([]float64, len(n))
	w[len(w)-1] = 1
	dot := n[len(n)-1]
	for i := range w {
		w[i] -= dot * n[i]
	}
	w = vector.Normalize(w)
	sin := math.Sqrt(1 - cos*cos)
	out := make([]float64, len(n))
	for i := range out {
		out[i] = cos*n[i] + sin*w[i]
	}
	return out
}

func TestAssignMergesNearDuplicatesAndSplitsOthers(t *testing.T) {
	corpus, _ := newCorpus(t, 0.85)
	ctx := context.Background()

	a := []float64{1, 0, 0}
	b := unitAt(a, 0.92)

	first, err := corpus.Assign(ctx, article("a", a...))
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := corpus.Assign(ctx, article("b", b...))
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Cluster.ID, second.Cluster.ID)
	require.InDelta(t, 0.92, second.Similarity, 1e-9)
	require.ElementsMatch(t, []string{"a", "b"}, second.Cluster.Members)

	c := unitAt(second.Cluster.Centroid, 0.40)
	third, err := corpus.Assign(ctx, article("c", c...))
	require.NoError(t, err)
	require.True(t, third.Created)
	require.Equal(t, []string{"c"}, third.Cluster.Members)

	_, clusters := corpus.Len()
	require.Equal(t, 2, clusters)
}

func TestAssignThresholdIsInclusive(t *testing.T) {
	a := []float64{1, 0.2, 0}
	b := []float64{0.7, 0.5, 0.1}
	tau, err := vector.Cosine(b, a)
	require.NoError(t, err)

	corpus, _ := newCorpus(t, tau)
	ctx := context.Background()
	_, err = corpus.Assign(ctx, article("a", a...))
	require.NoError(t, err)
	got, err := corpus.Assign(ctx, article("b", b...))
	require.NoError(t, err)
	require.False(t, got.Created)
}

func TestAssignTieBreaksOnLowestClusterID(t *testing.T) {
	corpus, _ := newCorpus(t, 0.6)
	ctx := context.Background()

	_, err := corpus.Assign(ctx, article("x", 1, 0))
	require.NoError(t, err)
	_, err = corpus.Assign(ctx, article("y", 0, 1))
	require.NoError(t, err)

	got, err := corpus.Assign(ctx, article("z", 1, 1))
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Cluster.ID)
}

func TestAssignIdenticalArticleAlwaysJoins(t *testing.T) {
	corpus, _ := newCorpus(t, 0.99)
	ctx := context.Background()
	emb := []float64{0.3, -0.2, 0.9, 0.1}

	first, err := corpus.Assign(ctx, article("one", emb...))
	require.NoError(t, err)
	second, err := corpus.Assign(ctx, article("two", emb...))
	require.NoError(t, err)
	require.Equal(t, first.Cluster.ID, second.Cluster.ID)
}

func TestAssignRejectsMissingEmbedding(t *testing.T) {
	corpus, store := newCorpus(t, 0.85)

	_, err := corpus.Assign(context.Background(), models.Article{ID: "bare"})
	require.ErrorIs(t, err, cluster.ErrMissingEmbedding)

	_, err = corpus.Assign(context.Background(), article("", 1, 2))
	require.ErrorIs(t, err, cluster.ErrMissingID)

	_, err = corpus.Assign(context.Background(), article("zero", 0, 0, 0))
	require.ErrorIs(t, err, cluster.ErrMissingEmbedding)

	as, cs := store.records()
	require.Empty(t, as)
	require.Empty(t, cs)
}

func TestAssignRejectsDimensionMismatch(t *testing.T) {
	corpus, _ := newCorpus(t, 0.85)
	ctx := context.Background()
	_, err := corpus.Assign(ctx, article("a", 1, 0, 0))
	require.NoError(t, err)

	_, err = corpus.Assign(ctx, article("b", 1, 0))
	require.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestAssignDoesNotCommitWhenStoreFails(t *testing.T) {
	corpus, store := newCorpus(t, 0.85)
	ctx := context.Background()

	store.failCluster = errors.New("disk full")
	_, err := corpus.Assign(ctx, article("a", 1, 0))
	require.ErrorContains(t, err, "disk full")

	articles, clusters := corpus.Len()
	require.Zero(t, articles)
	require.Zero(t, clusters)
	_, ok := corpus.Article("a")
	require.False(t, ok)

	store.failCluster = nil
	got, err := corpus.Assign(ctx, article("a", 1, 0))
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Cluster.ID)
	require.Equal(t, int64(1), got.Article.Seq)
}

func TestAssignSameIDIsIdempotent(t *testing.T) {
	corpus, _ := newCorpus(t, 0.85)
	ctx := context.Background()

	first, err := corpus.Assign(ctx, article("a", 1, 0))
	require.NoError(t, err)
	again, err := corpus.Assign(ctx, article("a", 0, 1))
	require.NoError(t, err)

	require.True(t, again.Duplicate)
	require.Equal(t, first.Cluster.ID, again.Cluster.ID)
	require.Equal(t, []float64{1, 0}, again.Article.Embedding)

	articles, clusters := corpus.Len()
	require.Equal(t, 1, articles)
	require.Equal(t, 1, clusters)
}

func TestRepresentative(t *testing.T) {
	older := models.Article{ID: "a", PublishedAt: base}
	newer := models.Article{ID: "z", PublishedAt: base.Add(time.Hour)}
	tie := models.Article{ID: "m", PublishedAt: base.Add(time.Hour)}

	require.Equal(t, "z", cluster.Representative([]models.Article{older, newer}).ID)
	require.Equal(t, "m", cluster.Representative([]models.Article{newer, older, tie}).ID)
	require.Empty(t, cluster.Representative(nil).ID)
}

func TestAssignUpdatesRepresentative(t *testing.T) {
	corpus, _ := newCorpus(t, 0.85)
	ctx := context.Background()

	a := article("b-old", 1, 0)
	_, err := corpus.Assign(ctx, a)
	require.NoError(t, err)

	newer := article("c-new", 1, 0.01)
	newer.PublishedAt = base.Add(2 * time.Hour)
	got, err := corpus.Assign(ctx, newer)
	require.NoError(t, err)
	require.Equal(t, "c-new", got.Cluster.RepresentativeID)

	sameTime := article("a-tie", 1, 0.02)
	sameTime.PublishedAt = newer.PublishedAt
	got, err = corpus.Assign(ctx, sameTime)
	require.NoError(t, err)
	require.Equal(t, "a-tie", got.Cluster.RepresentativeID)
}

// topicArticles builds n articles spread over k well-separated topics.
func topicArticles(seed int64, k, n, dim int) []models.Article {
	rng := rand.New(rand.NewSource(seed))
	centers := make([][]float64, k)
	for i := range centers {
		c := make([]float64, dim)
		for j := range c {
			c[j] = rng.NormFloat64()
		}
		centers[i] = vector.Normalize(c)
	}

	out := make([]models.Article, n)
	for i := range out {
		c := centers[rng.Intn(k)]
		emb := make([]float64, dim)
		for j := range emb {
			emb[j] = c[j] + rng.NormFloat64()*0.02
		}
		out[i] = models.Article{
			ID:          fmt.Sprintf("art-%03d", i),
			PublishedAt: base.Add(time.Duration(rng.Intn(48)) * time.Hour),
			Embedding:   emb,
		}
	}
	return out
}

func assignAll(t *testing.T, threshold float64, articles []models.Article) *cluster.Corpus {
	t.Helper()
	corpus := cluster.New(nil, cluster.Options{Threshold: threshold, RecomputeEvery: 8}, nil)
	for _, a := range articles {
		_, err := corpus.Assign(context.Background(), a)
		require.NoError(t, err)
	}
	return corpus
}

func requirePartition(t *testing.T, articles []models.Article, clusters []models.StoryCluster) {
	t.Helper()
	seen := make(map[string]int64)
	for _, c := range clusters {
		require.NotEmpty(t, c.Members)
		require.Contains(t, c.Members, c.RepresentativeID)
		for _, id := range c.Members {
			prev, dup := seen[id]
			require.False(t, dup, "article %s in clusters %d and %d", id, prev, c.ID)
			seen[id] = c.ID
		}
	}
	require.Len(t, seen, len(articles))
	for _, a := range articles {
		require.Contains(t, seen, a.ID)
	}
}

func TestAssignKeepsPartitionInvariant(t *testing.T) {
	articles := topicArticles(1, 10, 200, 64)
	corpus := assignAll(t, 0.85, articles)

	clusters := corpus.Clusters()
	requirePartition(t, articles, clusters)
	require.Len(t, clusters, 10)

	for _, a := range articles {
		stored, ok := corpus.Article(a.ID)
		require.True(t, ok)
		c, ok := corpus.Cluster(stored.ClusterID)
		require.True(t, ok)
		require.Contains(t, c.Members, a.ID)
	}
}

func TestAssignIsDeterministic(t *testing.T) {
	articles := topicArticles(2, 6, 120, 32)

	first := assignAll(t, 0.9, articles).Clusters()
	second := assignAll(t, 0.9, articles).Clusters()

	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].ID, second[i].ID)
		require.Equal(t, first[i].Members, second[i].Members)
		require.Equal(t, first[i].RepresentativeID, second[i].RepresentativeID)
	}
}

func TestAssignThresholdMonotonicityOnSeparatedTopics(t *testing.T) {
	articles := topicArticles(3, 8, 160, 64)

	prevMerges := math.MaxInt
	for _, tau := range []float64{0.6, 0.75, 0.85, 0.9} {
		_, clusters := assignAll(t, tau, articles).Len()
		merges := len(articles) - clusters
		require.LessOrEqual(t, merges, prevMerges, "tau %.2f", tau)
		prevMerges = merges
	}
}

func TestAssignExactDuplicateKeepsClusterCount(t *testing.T) {
	articles := topicArticles(4, 5, 50, 16)
	corpus := assignAll(t, 0.85, articles)
	_, before := corpus.Len()

	for i, a := range articles[:10] {
		dup := a
		dup.ID = fmt.Sprintf("dup-%d", i)
		_, err := corpus.Assign(context.Background(), dup)
		require.NoError(t, err)
	}

	_, after := corpus.Len()
	require.Equal(t, before, after)
}

func TestRecentreRestoresExactMean(t *testing.T) {
	corpus := cluster.New(nil, cluster.Options{Threshold: 0.8}, nil)
	ctx := context.Background()
	articles := topicArticles(5, 1, 40, 16)
	for _, a := range articles {
		_, err := corpus.Assign(ctx, a)
		require.NoError(t, err)
	}

	c := corpus.Clusters()[0]
	require.Equal(t, len(articles)-1, c.Updates)

	n, err := corpus.Recentre(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	vecs := make([][]float64, len(articles))
	for i, a := range articles {
		vecs[i] = a.Embedding
	}
	exact, err := vector.Mean(vecs)
	require.NoError(t, err)

	got := corpus.Clusters()[0]
	require.Zero(t, got.Updates)
	require.Equal(t, exact, got.Centroid)
	for i := range exact {
		require.InDelta(t, exact[i], c.Centroid[i], 1e-9)
	}

	n, err = corpus.Recentre(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAssignRecomputesPeriodically(t *testing.T) {
	corpus := cluster.New(nil, cluster.Options{Threshold: 0.8, RecomputeEvery: 3}, nil)
	ctx := context.Background()
	for _, a := range topicArticles(6, 1, 4, 8) {
		_, err := corpus.Assign(ctx, a)
		require.NoError(t, err)
	}
	require.Zero(t, corpus.Clusters()[0].Updates)
}

func TestSnapshotIsStableAcrossAssign(t *testing.T) {
	corpus, _ := newCorpus(t, 0.85)
	ctx := context.Background()
	_, err := corpus.Assign(ctx, article("a", 1, 0))
	require.NoError(t, err)

	snap := corpus.Snapshot()
	before := append([]float64(nil), snap.Stories[0].Cluster.Centroid...)

	_, err = corpus.Assign(ctx, article("b", 1, 0.3))
	require.NoError(t, err)

	require.Equal(t, before, snap.Stories[0].Cluster.Centroid)
	require.Equal(t, []string{"a"}, snap.Stories[0].Cluster.Members)
	require.Equal(t, "a", snap.Stories[0].Representative.ID)
	require.Equal(t, 1, snap.Articles)
}

func TestConcurrentAssignDoesNotDuplicateClusters(t *testing.T) {
	corpus, _ := newCorpus(t, 0.85)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := corpus.Assign(ctx, article(fmt.Sprintf("a-%02d", i), 0.5, 0.5, 0.1))
			require.NoError(t, err)
			_ = corpus.Snapshot()
		}(i)
	}
	wg.Wait()

	articles, clusters := corpus.Len()
	require.Equal(t, 32, articles)
	require.Equal(t, 1, clusters)
}

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	articles := topicArticles(7, 4, 40, 16)

	store := newMemStore()
	original := cluster.New(store, cluster.Options{Threshold: 0.85}, nil)
	for _, a := range articles {
		_, err := original.Assign(ctx, a)
		require.NoError(t, err)
	}

	persistedArticles, persistedClusters := store.records()
	restored := cluster.New(store, cluster.Options{Threshold: 0.85}, nil)
	require.NoError(t, restored.Restore(ctx, persistedArticles, persistedClusters))

	require.Equal(t, original.Clusters(), restored.Clusters())

	next := articles[0]
	next.ID = "after-restore"
	got, err := restored.Assign(ctx, next)
	require.NoError(t, err)
	require.Equal(t, int64(len(articles)+1), got.Article.Seq)
}

func TestRestoreRepairsInterruptedAssign(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	a := article("a", 1, 0)
	a.Seq, a.ClusterID = 1, 1
	orphan := article("b", 1, 0.1)
	orphan.Seq, orphan.ClusterID = 2, 1

	clusters := []models.StoryCluster{
		{ID: 1, Members: []string{"a", "ghost"}, RepresentativeID: "ghost", Centroid: []float64{0, 1}},
	}

	input := []models.Article{orphan, a}
	corpus := cluster.New(store, cluster.Options{Threshold: 0.85}, nil)
	require.NoError(t, corpus.Restore(ctx, input, clusters))

	// caller slices are left as passed
	require.Equal(t, "b", input[0].ID)
	require.Equal(t, []string{"a", "ghost"}, clusters[0].Members)

	got := corpus.Clusters()
	require.Len(t, got, 1)
	sort.Strings(got[0].Members)
	require.Equal(t, []string{"a", "b"}, got[0].Members)
	requirePartition(t, []models.Article{a, orphan}, got)

	_, persisted := store.records()
	require.Len(t, persisted, 1)
	require.NotContains(t, persisted[0].Members, "ghost")
}

func TestPurgeEmptiesCorpusAndStore(t *testing.T) {
	corpus, store := newCorpus(t, 0.85)
	ctx := context.Background()
	_, err := corpus.Assign(ctx, article("a", 1, 0))
	require.NoError(t, err)

	require.NoError(t, corpus.Purge(ctx))
	articles, clusters := corpus.Len()
	require.Zero(t, articles)
	require.Zero(t, clusters)
	require.Equal(t, 1, store.purged)

	got, err := corpus.Assign(ctx, article("b", 0, 1))
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Cluster.ID)
}

func TestArticlesInIngestionOrder(t *testing.T) {
	c, _ := newCorpus(t, 0.9)
	ctx := context.Background()

	for _, a := range []models.Article{article("z", 1, 0), article("m", 0, 1), article("a", 1, 0.01)} {
		_, err := c.Assign(ctx, a)
		require.NoError(t, err)
	}

	got := c.Articles()
	require.Len(t, got, 3)
	for i, want := range []string{"z", "m", "a"} {
		require.Equal(t, want, got[i].ID)
		require.Equal(t, int64(i+1), got[i].Seq)
	}
}
