// Package ingest consumes raw articles from Kafka and feeds them to the corpus.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/fin-news-radar/internal/cache"
	"github.com/DeafMist/fin-news-radar/internal/cluster"
	"github.com/DeafMist/fin-news-radar/internal/metrics"
	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/processing"
)

const dlqAttempts = 5

// rawArticle is the message payload. Text is accepted as an alias of Body.
type rawArticle struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Text      string            `json:"text"`
	Timestamp string            `json:"timestamp"`
	Source    string            `json:"source"`
	Sentiment *models.Sentiment `json:"sentiment"`
	Entities  *models.Entities  `json:"entities"`
	Embedding []float64         `json:"embedding"`
}

// Assigner places an article into a story cluster.
type Assigner interface {
	IngestAndAssign(ctx context.Context, a models.Article) (cluster.Assignment, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config describes the topic to consume.
type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	QueueCapacity  int
	DedupeCapacity int
	DedupeTTL      time.Duration
	TitleMaxWords  int
}

// Consumer reads articles, assigns them and commits offsets manually. Messages
// that fail are forwarded to "<topic>_dlq" before their offset is committed.
type Consumer struct {
	reader     messageReader
	dlq        messageWriter
	assigner   Assigner
	seen       *cache.TTL[string, struct{}]
	log        *slog.Logger
	metrics    *metrics.Metrics
	titleWords int
	topic      string
	group      string
	dlqBackoff time.Duration
}

// NewConsumer connects a Kafka reader and DLQ writer for cfg.
func NewConsumer(cfg Config, assigner Assigner, log *slog.Logger, m *metrics.Metrics) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		QueueCapacity:  cfg.QueueCapacity,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	dlq := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic + "_dlq",
		MaxAttempts: 3,
	})
	c := newConsumer(reader, dlq, assigner, cfg, log, m)
	c.topic, c.group = cfg.Topic, cfg.GroupID
	return c
}

func newConsumer(reader messageReader, dlq messageWriter, assigner Assigner, cfg Config, log *slog.Logger, m *metrics.Metrics) *Consumer {
	if cfg.TitleMaxWords <= 0 {
		cfg.TitleMaxWords = 12
	}
	return &Consumer{
		reader:     reader,
		dlq:        dlq,
		assigner:   assigner,
		seen:       cache.New[string, struct{}](cfg.DedupeCapacity, cfg.DedupeTTL),
		log:        log,
		metrics:    m,
		titleWords: cfg.TitleMaxWords,
		dlqBackoff: time.Second,
	}
}

// Close releases the reader and the DLQ writer.
func (c *Consumer) Close() error {
	return errors.Join(c.reader.Close(), c.dlq.Close())
}

// Reset forgets which articles were already consumed.
func (c *Consumer) Reset() {
	c.seen.Reset()
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("consumer started",
		slog.String("topic", c.topic),
		slog.String("group", c.group),
		slog.String("dlq_topic", c.topic+"_dlq"),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info("context canceled, stopping consumer")
				return nil
			}
			c.log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := c.processMessage(ctx, msg); err != nil {
			c.log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if !c.sendToDLQ(ctx, msg, err) {
				if ctx.Err() != nil {
					return nil
				}
				// leave uncommitted so it is redelivered after restart
				c.log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit message", slog.Any("err", err))
		}
	}
}

func (c *Consumer) sendToDLQ(ctx context.Context, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := range dlqAttempts {
		dlqErr := c.dlq.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			c.metrics.IncDLQ()
			c.log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := c.dlqBackoff * time.Duration(1<<uint(attempt))
		c.log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			c.log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var payload rawArticle
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	a, err := c.toArticle(payload)
	if err != nil {
		return err
	}

	if c.seen.Contains(a.ID) {
		c.log.Debug("duplicate article", slog.String("id", a.ID))
		return nil
	}

	res, err := c.assigner.IngestAndAssign(ctx, a)
	if err != nil {
		return err
	}

	c.seen.Put(a.ID, struct{}{})
	c.log.Debug("consumed article",
		slog.String("id", res.Article.ID),
		slog.Int64("cluster", res.Cluster.ID),
	)
	return nil
}

func (c *Consumer) toArticle(payload rawArticle) (models.Article, error) {
	title := strings.TrimSpace(payload.Title)
	body := strings.TrimSpace(payload.Body)
	if body == "" {
		body = strings.TrimSpace(payload.Text)
	}
	if title == "" && body == "" {
		return models.Article{}, errors.New("empty payload")
	}
	if title == "" {
		title = processing.GenerateTitleFromText(body, c.titleWords)
	}

	ts := processing.ParseTimestamp(payload.Timestamp)
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	a := models.Article{
		ID:          strings.TrimSpace(payload.ID),
		Title:       title,
		Body:        body,
		Source:      strings.TrimSpace(payload.Source),
		PublishedAt: ts,
		Embedding:   payload.Embedding,
	}
	if payload.Sentiment != nil {
		a.Sentiment = *payload.Sentiment
	}
	if payload.Entities != nil {
		a.Entities = *payload.Entities
	}
	if a.ID == "" {
		a.ID = processing.BuildDocumentID(title, processing.CleanText(body), ts)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return a, nil
}
