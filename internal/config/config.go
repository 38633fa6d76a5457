package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendElasticsearch = "elasticsearch"
	BackendSQLite        = "sqlite"
	BackendMemory        = "memory"
)

// Embedding providers.
const (
	ProviderOpenAI  = "openai"
	ProviderHashing = "hash"
)

// Replay modes.
const (
	ModeOnline = "online"
	ModeBatch  = "batch"
)

// Store selects and addresses the corpus backend.
type Store struct {
	Backend           string
	ElasticsearchAddr string
	ArticleIndex      string
	ClusterIndex      string
	SQLitePath        string
	ConnectAttempts   int
}

// Embedding configures the embedding provider and its retry policy.
type Embedding struct {
	Provider      string
	OpenAIKey     string
	OpenAIBaseURL string
	Model         string
	Dimensions    int
	CacheCapacity int
	CacheTTL      time.Duration
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
}

// Common contains parameters shared by every binary.
type Common struct {
	Store
	Embedding      Embedding
	Threshold      float64
	RecomputeEvery int
	KeywordMinLen  int
}

// Ingest configures the Kafka consumer hosted by the API.
type Ingest struct {
	Enabled        bool
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	BatchSize      int
	DedupeCapacity int
	DedupeTTL      time.Duration
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	Ingest          Ingest
	BindAddr        string
	DefaultPage     int
	MaxPage         int
	SemanticWeight  float64
	EntityWeight    float64
	MinScore        float64
	QueryTimeout    time.Duration
	RefreshInterval time.Duration
}

// Replay configures the offline re-clustering tool.
type Replay struct {
	Common
	Mode  string
	Input string
}

func loadCommon() (Common, error) {
	c := Common{
		Store: Store{
			Backend:           strings.ToLower(getEnv("STORE_BACKEND", BackendElasticsearch)),
			ElasticsearchAddr: getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
			ArticleIndex:      getEnv("ELASTICSEARCH_ARTICLE_INDEX", "articles"),
			ClusterIndex:      getEnv("ELASTICSEARCH_CLUSTER_INDEX", "clusters"),
			SQLitePath:        getEnv("SQLITE_PATH", "data/radar.db"),
			ConnectAttempts:   getInt("STORE_CONNECT_ATTEMPTS", 10),
		},
		Embedding: Embedding{
			Provider:      strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderHashing)),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:         getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimensions:    getInt("EMBEDDING_DIMENSIONS", 256),
			CacheCapacity: getInt("EMBEDDING_CACHE_CAPACITY", 5000),
			CacheTTL:      getDuration("EMBEDDING_CACHE_TTL", "1h"),
			Timeout:       getDuration("ENRICH_TIMEOUT", "10s"),
			MaxRetries:    getInt("ENRICH_MAX_RETRIES", 2),
			Backoff:       getDuration("ENRICH_BACKOFF", "200ms"),
		},
		Threshold:      getFloat("CLUSTER_THRESHOLD", 0.85),
		RecomputeEvery: getInt("CLUSTER_RECOMPUTE_EVERY", 64),
		KeywordMinLen:  getInt("KEYWORD_MIN_LEN", 3),
	}

	switch c.Backend {
	case BackendElasticsearch, BackendSQLite, BackendMemory:
	default:
		return Common{}, fmt.Errorf("STORE_BACKEND must be one of elasticsearch, sqlite, memory")
	}
	if c.ConnectAttempts <= 0 {
		return Common{}, fmt.Errorf("STORE_CONNECT_ATTEMPTS must be positive")
	}

	switch c.Embedding.Provider {
	case ProviderHashing:
	case ProviderOpenAI:
		if c.Embedding.OpenAIKey == "" {
			return Common{}, fmt.Errorf("OPENAI_API_KEY is required for the openai embedding provider")
		}
	default:
		return Common{}, fmt.Errorf("EMBEDDING_PROVIDER must be openai or hash")
	}
	if c.Embedding.Dimensions < 0 {
		return Common{}, fmt.Errorf("EMBEDDING_DIMENSIONS cannot be negative")
	}
	if c.Embedding.CacheCapacity < 0 {
		return Common{}, fmt.Errorf("EMBEDDING_CACHE_CAPACITY cannot be negative")
	}
	if c.Embedding.Timeout <= 0 {
		return Common{}, fmt.Errorf("ENRICH_TIMEOUT must be positive")
	}
	if c.Embedding.MaxRetries < 0 {
		return Common{}, fmt.Errorf("ENRICH_MAX_RETRIES cannot be negative")
	}

	if c.Threshold <= 0 || c.Threshold > 1 {
		return Common{}, fmt.Errorf("CLUSTER_THRESHOLD must be in (0, 1]")
	}
	if c.RecomputeEvery < 0 {
		return Common{}, fmt.Errorf("CLUSTER_RECOMPUTE_EVERY cannot be negative")
	}
	if c.KeywordMinLen < 0 {
		return Common{}, fmt.Errorf("KEYWORD_MIN_LEN cannot be negative")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common: common,
		Ingest: Ingest{
			Enabled:        getBool("INGEST_ENABLED", true),
			KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
			KafkaTopic:     getEnv("KAFKA_TOPIC", "news_raw"),
			KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "news-radar"),
			BatchSize:      getInt("INGEST_BATCH_SIZE", 10),
			DedupeCapacity: getInt("INGEST_DEDUPE_CAPACITY", 20000),
			DedupeTTL:      getDuration("INGEST_DEDUPE_TTL", "24h"),
		},
		BindAddr:        getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:     getInt("API_PAGE_SIZE", 20),
		MaxPage:         getInt("API_MAX_PAGE_SIZE", 100),
		SemanticWeight:  getFloat("RANK_SEMANTIC_WEIGHT", 0.65),
		EntityWeight:    getFloat("RANK_ENTITY_WEIGHT", 0.35),
		MinScore:        getFloat("RANK_MIN_SCORE", 0),
		QueryTimeout:    getDuration("QUERY_TIMEOUT", "5s"),
		RefreshInterval: getDuration("CLUSTER_REFRESH_INTERVAL", "10m"),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return nil, fmt.Errorf("RANK_MIN_SCORE must be in [0, 1]")
	}
	if c.QueryTimeout < 0 {
		return nil, fmt.Errorf("QUERY_TIMEOUT cannot be negative")
	}
	if c.RefreshInterval <= 0 {
		return nil, fmt.Errorf("CLUSTER_REFRESH_INTERVAL must be positive")
	}

	if c.Ingest.Enabled {
		if len(c.Ingest.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
		}
		if c.Ingest.BatchSize <= 0 {
			return nil, fmt.Errorf("INGEST_BATCH_SIZE must be positive")
		}
		if c.Ingest.DedupeCapacity <= 0 {
			return nil, fmt.Errorf("INGEST_DEDUPE_CAPACITY must be positive")
		}
	}

	return c, nil
}

// LoadReplay builds a Replay config from environment variables.
func LoadReplay() (*Replay, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &Replay{
		Common: common,
		Mode:   strings.ToLower(getEnv("REPLAY_MODE", ModeOnline)),
		Input:  getEnv("REPLAY_INPUT", ""),
	}

	if c.Mode != ModeOnline && c.Mode != ModeBatch {
		return nil, fmt.Errorf("REPLAY_MODE must be online or batch")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
