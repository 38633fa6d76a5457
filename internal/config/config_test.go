package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/fin-news-radar/internal/config"
)

func TestLoadAPIDefaults(t *testing.T) {
	for _, key := range []string{
		"STORE_BACKEND", "ELASTICSEARCH_ADDR", "ELASTICSEARCH_ARTICLE_INDEX", "ELASTICSEARCH_CLUSTER_INDEX",
		"EMBEDDING_PROVIDER", "KAFKA_BROKERS", "KAFKA_TOPIC", "KAFKA_CONSUMER_GROUP", "INGEST_ENABLED",
		"CLUSTER_THRESHOLD", "RANK_SEMANTIC_WEIGHT", "RANK_ENTITY_WEIGHT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.LoadAPI()
	require.NoError(t, err)

	require.Equal(t, config.BackendElasticsearch, cfg.Backend)
	require.Equal(t, "http://elasticsearch:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "articles", cfg.ArticleIndex)
	require.Equal(t, "clusters", cfg.ClusterIndex)
	require.Equal(t, config.ProviderHashing, cfg.Embedding.Provider)
	require.Equal(t, 0.85, cfg.Threshold)
	require.Equal(t, 64, cfg.RecomputeEvery)
	require.Equal(t, 0.65, cfg.SemanticWeight)
	require.Equal(t, 0.35, cfg.EntityWeight)
	require.True(t, cfg.Ingest.Enabled)
	require.Equal(t, []string{"kafka:9092"}, cfg.Ingest.KafkaBrokers)
	require.Equal(t, "news_raw", cfg.Ingest.KafkaTopic)
	require.Equal(t, "news-radar", cfg.Ingest.KafkaConsumer)
	require.Equal(t, 5*time.Second, cfg.QueryTimeout)
}

func TestLoadAPIOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/radar.db")
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("API_PAGE_SIZE", "15")
	t.Setenv("API_MAX_PAGE_SIZE", "200")
	t.Setenv("KAFKA_BROKERS", "broker-a:29092, broker-b:29093")
	t.Setenv("INGEST_DEDUPE_TTL", "48h")
	t.Setenv("CLUSTER_THRESHOLD", "0.9")
	t.Setenv("CLUSTER_RECOMPUTE_EVERY", "0")
	t.Setenv("RANK_MIN_SCORE", "0.2")
	t.Setenv("QUERY_TIMEOUT", "750ms")
	t.Setenv("ENRICH_MAX_RETRIES", "4")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)

	require.Equal(t, config.BackendSQLite, cfg.Backend)
	require.Equal(t, "/tmp/radar.db", cfg.SQLitePath)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, 15, cfg.DefaultPage)
	require.Equal(t, 200, cfg.MaxPage)
	require.Equal(t, []string{"broker-a:29092", "broker-b:29093"}, cfg.Ingest.KafkaBrokers)
	require.Equal(t, 48*time.Hour, cfg.Ingest.DedupeTTL)
	require.Equal(t, 0.9, cfg.Threshold)
	require.Zero(t, cfg.RecomputeEvery)
	require.Equal(t, 0.2, cfg.MinScore)
	require.Equal(t, 750*time.Millisecond, cfg.QueryTimeout)
	require.Equal(t, 4, cfg.Embedding.MaxRetries)
}

func TestLoadAPIValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown backend", env: map[string]string{"STORE_BACKEND": "redis"}},
		{name: "threshold above one", env: map[string]string{"CLUSTER_THRESHOLD": "1.5"}},
		{name: "zero threshold", env: map[string]string{"CLUSTER_THRESHOLD": "0"}},
		{name: "openai without key", env: map[string]string{"EMBEDDING_PROVIDER": "openai", "OPENAI_API_KEY": ""}},
		{name: "unknown provider", env: map[string]string{"EMBEDDING_PROVIDER": "word2vec"}},
		{name: "page above max", env: map[string]string{"API_PAGE_SIZE": "50", "API_MAX_PAGE_SIZE": "10"}},
		{name: "min score above one", env: map[string]string{"RANK_MIN_SCORE": "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.LoadAPI()
			require.Error(t, err)
		})
	}
}

func TestLoadAPIWithoutIngest(t *testing.T) {
	t.Setenv("INGEST_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", " , ")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.False(t, cfg.Ingest.Enabled)
}

func TestLoadReplay(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REPLAY_MODE", "Batch")
	t.Setenv("REPLAY_INPUT", "data/news.jsonl")

	cfg, err := config.LoadReplay()
	require.NoError(t, err)
	require.Equal(t, config.ModeBatch, cfg.Mode)
	require.Equal(t, "data/news.jsonl", cfg.Input)
	require.Equal(t, config.BackendMemory, cfg.Backend)

	t.Setenv("REPLAY_MODE", "shuffle")
	_, err = config.LoadReplay()
	require.Error(t, err)
}
