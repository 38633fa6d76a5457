package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/store"
)

var _ store.Corpus = (*store.Memory)(nil)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.SaveArticle(ctx, models.Article{ID: "b", Seq: 2}))
	require.NoError(t, m.SaveArticle(ctx, models.Article{ID: "a", Seq: 1}))
	require.NoError(t, m.SaveCluster(ctx, models.StoryCluster{ID: 2, Members: []string{"b"}}))
	require.NoError(t, m.SaveCluster(ctx, models.StoryCluster{ID: 1, Members: []string{"a"}}))
	require.NoError(t, m.SaveCluster(ctx, models.StoryCluster{ID: 1, Members: []string{"a", "c"}}))

	articles, err := m.LoadArticles(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", articles[0].ID)
	require.Equal(t, "b", articles[1].ID)

	clusters, err := m.LoadClusters(ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	require.Equal(t, []string{"a", "c"}, clusters[0].Members)

	require.NoError(t, m.DeleteCluster(ctx, 2))
	require.NoError(t, m.DeleteCluster(ctx, 42))
	clusters, err = m.LoadClusters(ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Equal(t, int64(1), clusters[0].ID)

	require.NoError(t, m.Purge(ctx))
	articles, err = m.LoadArticles(ctx)
	require.NoError(t, err)
	require.Empty(t, articles)
}

func TestMemorySearchArticles(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	docs := []models.Article{
		{ID: "1", Title: "HDFC Bank profit jumps", Source: "wire", PublishedAt: base, Embedding: []float64{1},
			Entities: models.Entities{Companies: []string{"HDFC Bank"}}},
		{ID: "2", Title: "HDFC Bank dividend", Source: "blog", PublishedAt: base.Add(time.Hour)},
		{ID: "3", Title: "TCS wins deal", Source: "wire", PublishedAt: base.Add(2 * time.Hour)},
	}
	for _, d := range docs {
		require.NoError(t, m.SaveArticle(ctx, d))
	}

	res, err := m.SearchArticles(ctx, store.SearchParams{Query: "hdfc bank"})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Total)
	require.Equal(t, "2", res.Items[0].ID)
	require.Nil(t, res.Items[1].Embedding)

	res, err = m.SearchArticles(ctx, store.SearchParams{Source: "wire", Company: "hdfc bank"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Equal(t, "1", res.Items[0].ID)

	start := base.Add(30 * time.Minute)
	res, err = m.SearchArticles(ctx, store.SearchParams{Start: &start, Size: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Total)
	require.Len(t, res.Items, 1)
	require.Equal(t, "3", res.Items[0].ID)

	res, err = m.SearchArticles(ctx, store.SearchParams{From: 10})
	require.NoError(t, err)
	require.Empty(t, res.Items)
}

func TestSearchParamsNormalize(t *testing.T) {
	p := store.SearchParams{Size: 1000, From: -3}.Normalize()
	require.Equal(t, store.MaxPageSize, p.Size)
	require.Zero(t, p.From)
	require.Equal(t, store.DefaultPageSize, store.SearchParams{}.Normalize().Size)
}
