// Package metrics provides Prometheus collectors for ingestion, clustering and search.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricArticlesIngestedTotal = "radar_articles_ingested_total"
	MetricAssignDuration        = "radar_assign_duration_seconds"
	MetricCorpusArticles        = "radar_corpus_articles"
	MetricCorpusClusters        = "radar_corpus_clusters"
	MetricSearchesTotal         = "radar_searches_total"
	MetricSearchDuration        = "radar_search_duration_seconds"
	MetricProviderFailures      = "radar_provider_failures_total"
	MetricDLQMessagesTotal      = "radar_dlq_messages_total"
	MetricCentroidsRecomputed   = "radar_centroids_recomputed_total"
)

// Ingestion outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeJoined    = "joined"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// Search outcomes.
const (
	SearchOK      = "ok"
	SearchEmpty   = "empty"
	SearchPartial = "partial"
	SearchFailed  = "failed"
)

// Metrics holds every collector. All methods are safe on a nil receiver so
// components can run without instrumentation.
type Metrics struct {
	ingested       *prometheus.CounterVec
	assignDuration prometheus.Histogram
	articles       prometheus.Gauge
	clusters       prometheus.Gauge
	searches       *prometheus.CounterVec
	searchDuration prometheus.Histogram
	providerFail   *prometheus.CounterVec
	dlq            prometheus.Counter
	recomputed     prometheus.Counter
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		ingested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricArticlesIngestedTotal,
				Help: "Articles passed to assignment by outcome",
			},
			[]string{"outcome"},
		),
		assignDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricAssignDuration,
			Help:    "Time spent enriching and assigning one article",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		articles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricCorpusArticles,
			Help: "Articles currently in the corpus",
		}),
		clusters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricCorpusClusters,
			Help: "Story clusters currently in the corpus",
		}),
		searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSearchesTotal,
				Help: "Search requests by outcome",
			},
			[]string{"outcome"},
		),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricSearchDuration,
			Help:    "End-to-end search latency",
			Buckets: prometheus.DefBuckets,
		}),
		providerFail: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricProviderFailures,
				Help: "Failed embedding or entity provider attempts by operation",
			},
			[]string{"op"},
		),
		dlq: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDLQMessagesTotal,
			Help: "Messages routed to the dead-letter topic",
		}),
		recomputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCentroidsRecomputed,
			Help: "Cluster centroids recomputed from member embeddings",
		}),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ingested, m.assignDuration, m.articles, m.clusters,
		m.searches, m.searchDuration, m.providerFail, m.dlq, m.recomputed,
	}
}

// ObserveAssign records one ingestion.
func (m *Metrics) ObserveAssign(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(outcome).Inc()
	if outcome != OutcomeFailed {
		m.assignDuration.Observe(d.Seconds())
	}
}

// SetCorpusSize publishes the corpus size.
func (m *Metrics) SetCorpusSize(articles, clusters int) {
	if m == nil {
		return
	}
	m.articles.Set(float64(articles))
	m.clusters.Set(float64(clusters))
}

// ObserveSearch records one search.
func (m *Metrics) ObserveSearch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(d.Seconds())
}

// ProviderFailure counts a failed provider attempt.
func (m *Metrics) ProviderFailure(op string) {
	if m == nil {
		return
	}
	m.providerFail.WithLabelValues(op).Inc()
}

// IncDLQ counts a dead-lettered message.
func (m *Metrics) IncDLQ() {
	if m == nil {
		return
	}
	m.dlq.Inc()
}

// AddRecomputed counts recomputed centroids.
func (m *Metrics) AddRecomputed(n int) {
	if m == nil {
		return
	}
	m.recomputed.Add(float64(n))
}
