package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/DeafMist/fin-news-radar/internal/cluster"
	"github.com/DeafMist/fin-news-radar/internal/config"
	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/processing"
	"github.com/DeafMist/fin-news-radar/internal/service"
	"github.com/DeafMist/fin-news-radar/internal/store"
)

type reclusterResult struct {
	Articles int
	Before   int
	After    int
}

// recluster rebuilds every cluster from the stored article embeddings. Online
// mode replays Assign in the original ingestion order; batch mode uses the
// order-independent Partition. Articles and clusters are rewritten as keyed
// upserts and only cluster IDs the rebuild no longer produces are deleted, so
// a failed run never drops articles.
func recluster(ctx context.Context, st store.Corpus, cfg config.Common, mode string, log *slog.Logger) (reclusterResult, error) {
	articles, err := st.LoadArticles(ctx)
	if err != nil {
		return reclusterResult{}, err
	}
	before, err := st.LoadClusters(ctx)
	if err != nil {
		return reclusterResult{}, err
	}
	res := reclusterResult{Articles: len(articles), Before: len(before)}

	sort.Slice(articles, func(i, j int) bool {
		if articles[i].Seq != articles[j].Seq {
			return articles[i].Seq < articles[j].Seq
		}
		return articles[i].ID < articles[j].ID
	})

	var after []models.StoryCluster
	if mode == config.ModeBatch {
		after, err = cluster.Partition(articles, cfg.Threshold)
		if err != nil {
			return res, err
		}
		if err := writePartition(ctx, st, articles, after); err != nil {
			return res, err
		}
	} else {
		corpus := cluster.New(st, cluster.Options{Threshold: cfg.Threshold, RecomputeEvery: cfg.RecomputeEvery}, log)
		for _, a := range articles {
			a.Seq, a.ClusterID = 0, 0
			if _, err := corpus.Assign(ctx, a); err != nil {
				return res, err
			}
		}
		after = corpus.Clusters()
	}
	res.After = len(after)

	live := make(map[int64]struct{}, len(after))
	for _, c := range after {
		live[c.ID] = struct{}{}
	}
	stale := 0
	for _, c := range before {
		if _, ok := live[c.ID]; ok {
			continue
		}
		if err := st.DeleteCluster(ctx, c.ID); err != nil {
			return res, fmt.Errorf("delete stale cluster %d: %w", c.ID, err)
		}
		stale++
	}
	log.Info("clusters rewritten", slog.Int("articles", len(articles)), slog.Int("clusters", res.After), slog.Int("stale_deleted", stale))
	return res, nil
}

func writePartition(ctx context.Context, st store.Corpus, articles []models.Article, clusters []models.StoryCluster) error {
	owner := make(map[string]int64, len(articles))
	for _, c := range clusters {
		for _, id := range c.Members {
			owner[id] = c.ID
		}
	}
	for i, a := range articles {
		a.Seq = int64(i + 1)
		a.ClusterID = owner[a.ID]
		if err := st.SaveArticle(ctx, a); err != nil {
			return fmt.Errorf("save article %s: %w", a.ID, err)
		}
	}
	for _, c := range clusters {
		if err := st.SaveCluster(ctx, c); err != nil {
			return fmt.Errorf("save cluster %d: %w", c.ID, err)
		}
	}
	return nil
}

type articleLine struct {
	models.Article
	PublishedAt string `json:"published_at"`
}

// importArticles ingests one JSON article per line. Lines that fail to decode or
// ingest are logged and counted; provider and store errors abort.
func importArticles(ctx context.Context, svc *service.Service, r io.Reader, log *slog.Logger) (imported, failed int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec articleLine
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			log.Warn("skip malformed line", slog.Int("line", line), slog.Any("err", err))
			failed++
			continue
		}
		a := rec.Article
		a.PublishedAt = processing.ParseTimestamp(rec.PublishedAt)

		if _, err := svc.IngestAndAssign(ctx, a); err != nil {
			if !service.IsClientError(err) {
				return imported, failed, fmt.Errorf("line %d: %w", line, err)
			}
			log.Warn("skip invalid article", slog.Int("line", line), slog.Any("err", err))
			failed++
			continue
		}
		imported++
	}
	return imported, failed, scanner.Err()
}
