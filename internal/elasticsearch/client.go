// Package elasticsearch persists the story corpus in two Elasticsearch indices,
// one for articles and one for clusters.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/fin-news-radar/internal/models"
)

const loadPageSize = 500

// Client wraps go-elasticsearch with the corpus store operations.
type Client struct {
	es           *elasticsearch.Client
	articleIndex string
	clusterIndex string
	log          *slog.Logger
}

// New instantiates the Elasticsearch client.
func New(addr, articleIndex, clusterIndex string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, articleIndex: articleIndex, clusterIndex: clusterIndex, log: logger}, nil
}

// Connect creates a client and waits until Elasticsearch answers a ping and a
// cluster health request, backing off exponentially up to 30s between attempts.
func Connect(ctx context.Context, addr, articleIndex, clusterIndex string, attempts int, logger *slog.Logger) (*Client, error) {
	client, err := New(addr, articleIndex, clusterIndex, logger)
	if err != nil {
		return nil, err
	}
	if attempts <= 0 {
		attempts = 1
	}

	retryDelay := 2 * time.Second
	var pingErr error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr = client.Ping(pingCtx)
		if pingErr == nil {
			pingErr = client.Health(pingCtx)
		}
		cancel()
		if pingErr == nil {
			return client, nil
		}
		if i == attempts-1 {
			break
		}

		client.log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", pingErr),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", retryDelay),
		)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}
	return nil, fmt.Errorf("connect elasticsearch after %d attempts: %w", attempts, pingErr)
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Health checks cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

var articleMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":           map[string]any{"type": "keyword"},
			"title":        map[string]any{"type": "text"},
			"body":         map[string]any{"type": "text"},
			"source":       map[string]any{"type": "keyword"},
			"published_at": map[string]any{"type": "date"},
			"embedding":    map[string]any{"type": "float", "index": false},
			"entities": map[string]any{
				"properties": map[string]any{
					"companies":  map[string]any{"type": "keyword"},
					"sectors":    map[string]any{"type": "keyword"},
					"regulators": map[string]any{"type": "keyword"},
				},
			},
			"seq":        map[string]any{"type": "long"},
			"cluster_id": map[string]any{"type": "long"},
		},
	},
}

var clusterMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":                map[string]any{"type": "long"},
			"members":           map[string]any{"type": "keyword"},
			"representative_id": map[string]any{"type": "keyword"},
			"centroid":          map[string]any{"type": "float", "index": false},
			"updates":           map[string]any{"type": "integer"},
		},
	},
}

// EnsureIndices creates the article and cluster indices when they do not exist.
func (c *Client) EnsureIndices(ctx context.Context) error {
	for index, mapping := range map[string]map[string]any{
		c.articleIndex: articleMapping,
		c.clusterIndex: clusterMapping,
	} {
		if err := c.ensureIndex(ctx, index, mapping); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) ensureIndex(ctx context.Context, index string, mapping map[string]any) error {
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	payload, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	res, err = c.es.Indices.Create(index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// a concurrent creator won the race
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index %s failed: %s", index, strings.TrimSpace(string(body)))
	}

	c.log.Info("created index", slog.String("index", index))
	return nil
}

// SaveArticle writes an article document keyed by its ID.
func (c *Client) SaveArticle(ctx context.Context, a models.Article) error {
	if err := c.put(ctx, c.articleIndex, a.ID, a); err != nil {
		return fmt.Errorf("save article %s: %w", a.ID, err)
	}
	return nil
}

// SaveCluster writes a cluster document keyed by its ID.
func (c *Client) SaveCluster(ctx context.Context, cl models.StoryCluster) error {
	if err := c.put(ctx, c.clusterIndex, fmt.Sprintf("%d", cl.ID), cl); err != nil {
		return fmt.Errorf("save cluster %d: %w", cl.ID, err)
	}
	return nil
}

func (c *Client) put(ctx context.Context, index, id string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// LoadArticles reads every stored article in ingestion order.
func (c *Client) LoadArticles(ctx context.Context) ([]models.Article, error) {
	var out []models.Article
	err := c.scan(ctx, c.articleIndex, []map[string]any{
		{"seq": map[string]any{"order": "asc"}},
		{"id": map[string]any{"order": "asc"}},
	}, func(raw json.RawMessage) error {
		var a models.Article
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	return out, nil
}

// LoadClusters reads every stored cluster in ID order.
func (c *Client) LoadClusters(ctx context.Context) ([]models.StoryCluster, error) {
	var out []models.StoryCluster
	err := c.scan(ctx, c.clusterIndex, []map[string]any{
		{"id": map[string]any{"order": "asc"}},
	}, func(raw json.RawMessage) error {
		var cl models.StoryCluster
		if err := json.Unmarshal(raw, &cl); err != nil {
			return err
		}
		out = append(out, cl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load clusters: %w", err)
	}
	return out, nil
}

// scan pages through index with search_after, handing each _source to fn.
func (c *Client) scan(ctx context.Context, index string, sortBy []map[string]any, fn func(json.RawMessage) error) error {
	var after []any
	for {
		body := map[string]any{
			"size":  loadPageSize,
			"query": map[string]any{"match_all": map[string]any{}},
			"sort":  sortBy,
		}
		if after != nil {
			body["search_after"] = after
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal search body: %w", err)
		}

		res, err := c.es.Search(
			c.es.Search.WithContext(ctx),
			c.es.Search.WithIndex(index),
			c.es.Search.WithBody(bytes.NewReader(payload)),
		)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if res.StatusCode == http.StatusNotFound {
			res.Body.Close()
			return nil
		}
		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Hits struct {
				Hits []struct {
					Source json.RawMessage `json:"_source"`
					Sort   []any           `json:"sort"`
				} `json:"hits"`
			} `json:"hits"`
		}
		err = json.NewDecoder(res.Body).Decode(&parsed)
		res.Body.Close()
		if err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}

		hits := parsed.Hits.Hits
		for _, hit := range hits {
			if err := fn(hit.Source); err != nil {
				return fmt.Errorf("decode document: %w", err)
			}
		}
		if len(hits) < loadPageSize {
			return nil
		}
		after = hits[len(hits)-1].Sort
	}
}

// DeleteCluster removes one cluster document. A missing document is not an
// error.
func (c *Client) DeleteCluster(ctx context.Context, id int64) error {
	req := esapi.DeleteRequest{
		Index:      c.clusterIndex,
		DocumentID: fmt.Sprintf("%d", id),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("delete cluster %d: %w", id, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("delete cluster %d failed: %s", id, strings.TrimSpace(string(body)))
	}
	return nil
}

// Purge deletes every article and cluster document.
func (c *Client) Purge(ctx context.Context) error {
	payload := []byte(`{"query":{"match_all":{}}}`)

	res, err := c.es.DeleteByQuery(
		[]string{c.articleIndex, c.clusterIndex},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithRefresh(true),
		c.es.DeleteByQuery.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode delete response: %w", err)
	}

	c.log.Info("corpus purged", slog.Int64("deleted", parsed.Deleted))
	return nil
}
