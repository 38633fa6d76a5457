package elasticsearch_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/fin-news-radar/internal/elasticsearch"
	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/store"
)

var _ store.Corpus = (*elasticsearch.Client)(nil)

type recorded struct {
	method string
	path   string
	query  string
	body   string
}

// fakeES answers like Elasticsearch, recording every request.
type fakeES struct {
	mu       sync.Mutex
	requests []recorded
	handle   func(w http.ResponseWriter, r *http.Request, body string)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(data)})
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	f.handle(w, r, string(data))
}

func newClient(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, body string)) (*elasticsearch.Client, *fakeES) {
	t.Helper()
	fake := &fakeES{handle: handle}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := elasticsearch.New(srv.URL, "articles", "clusters", nil)
	require.NoError(t, err)
	return c, fake
}

func TestSaveArticleIndexesByID(t *testing.T) {
	c, fake := newClient(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	a := models.Article{ID: "abc", Title: "HDFC Bank", Embedding: []float64{0.5, 1}, Seq: 3, ClusterID: 2}
	require.NoError(t, c.SaveArticle(context.Background(), a))

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	require.Equal(t, http.MethodPut, req.method)
	require.Equal(t, "/articles/_doc/abc", req.path)

	var got models.Article
	require.NoError(t, json.Unmarshal([]byte(req.body), &got))
	require.Equal(t, a.Embedding, got.Embedding)
	require.Equal(t, int64(2), got.ClusterID)
}

func TestSaveClusterSurfacesErrors(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"shard failure"}`))
	})

	err := c.SaveCluster(context.Background(), models.StoryCluster{ID: 7})
	require.ErrorContains(t, err, "save cluster 7")
	require.ErrorContains(t, err, "shard failure")
}

func TestLoadArticlesPagesWithSearchAfter(t *testing.T) {
	const total = 501
	c, fake := newClient(t, func(w http.ResponseWriter, r *http.Request, body string) {
		var req struct {
			SearchAfter []any `json:"search_after"`
		}
		_ = json.Unmarshal([]byte(body), &req)

		start, end := 0, 500
		if req.SearchAfter != nil {
			start, end = 500, total
		}
		var hits []string
		for i := start; i < end; i++ {
			id := fmt.Sprintf("a-%03d", i)
			hits = append(hits, fmt.Sprintf(`{"_source":{"id":%q,"seq":%d,"embedding":[1]},"sort":[%d,%q]}`, id, i+1, i+1, id))
		}
		_, _ = fmt.Fprintf(w, `{"hits":{"hits":[%s]}}`, strings.Join(hits, ","))
	})

	articles, err := c.LoadArticles(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, total)
	require.Equal(t, "a-500", articles[total-1].ID)

	require.Len(t, fake.requests, 2)
	require.Equal(t, "/articles/_search", fake.requests[0].path)
	require.Contains(t, fake.requests[1].body, `"search_after":[500,"a-499"]`)
}

func TestLoadClustersMissingIndex(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"}}`))
	})

	clusters, err := c.LoadClusters(context.Background())
	require.NoError(t, err)
	require.Empty(t, clusters)
}

func TestPurgeDeletesBothIndices(t *testing.T) {
	c, fake := newClient(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(`{"deleted":4}`))
	})

	require.NoError(t, c.Purge(context.Background()))
	require.Len(t, fake.requests, 1)
	require.Equal(t, "/articles,clusters/_delete_by_query", fake.requests[0].path)
	require.Contains(t, fake.requests[0].body, "match_all")
	require.Contains(t, fake.requests[0].query, "refresh=true")
}

func TestEnsureIndicesCreatesMissing(t *testing.T) {
	c, fake := newClient(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		switch r.Method {
		case http.MethodHead:
			if strings.HasPrefix(r.URL.Path, "/articles") {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		}
	})

	require.NoError(t, c.EnsureIndices(context.Background()))

	var created []string
	for _, req := range fake.requests {
		if req.method == http.MethodPut {
			created = append(created, req.path)
			require.Contains(t, req.body, `"centroid"`)
		}
	}
	require.Equal(t, []string{"/clusters"}, created)
}

func TestSearchArticlesBuildsBoolQuery(t *testing.T) {
	c, fake := newClient(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":1},"hits":[{"_source":{"id":"x","title":"HDFC Bank"}}]}}`))
	})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := c.SearchArticles(context.Background(), store.SearchParams{Query: "hdfc", Source: "wire", Company: "HDFC Bank", Start: &start})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Total)
	require.Equal(t, "x", res.Items[0].ID)

	body := fake.requests[0].body
	require.Contains(t, body, "multi_match")
	require.Contains(t, body, `"entities.companies":"HDFC Bank"`)
	require.Contains(t, body, `"gte":"2024-01-01T00:00:00Z"`)
	require.Contains(t, body, `"excludes":["embedding"]`)
}

func TestConnectGivesUpAfterAttempts(t *testing.T) {
	c, err := elasticsearch.Connect(context.Background(), "http://127.0.0.1:1", "a", "c", 1, nil)
	require.Error(t, err)
	require.Nil(t, c)
}

func TestDeleteClusterToleratesMissingDocument(t *testing.T) {
	status := http.StatusNotFound
	c, fake := newClient(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"result":"not_found"}`))
	})

	require.NoError(t, c.DeleteCluster(context.Background(), 7))
	require.Equal(t, http.MethodDelete, fake.requests[0].method)
	require.Equal(t, "/clusters/_doc/7", fake.requests[0].path)

	status = http.StatusInternalServerError
	require.Error(t, c.DeleteCluster(context.Background(), 7))
}

func TestConnectWaitsForClusterHealth(t *testing.T) {
	healthStatus := http.StatusOK
	fake := &fakeES{handle: func(w http.ResponseWriter, r *http.Request, _ string) {
		if r.URL.Path == "/_cluster/health" {
			w.WriteHeader(healthStatus)
			_, _ = w.Write([]byte(`{"status":"green"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := elasticsearch.Connect(context.Background(), srv.URL, "a", "c", 1, nil)
	require.NoError(t, err)
	require.NotNil(t, c)

	var paths []string
	for _, req := range fake.requests {
		paths = append(paths, req.path)
	}
	require.Contains(t, paths, "/_cluster/health")

	healthStatus = http.StatusServiceUnavailable
	_, err = elasticsearch.Connect(context.Background(), srv.URL, "a", "c", 1, nil)
	require.ErrorContains(t, err, "cluster health")
}
