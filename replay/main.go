// Command replay rebuilds the story clusters of a stored corpus, or imports a
// JSON-lines article file through the regular ingestion path.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/DeafMist/fin-news-radar/internal/bootstrap"
	"github.com/DeafMist/fin-news-radar/internal/config"
	"github.com/DeafMist/fin-news-radar/internal/logger"
	"github.com/DeafMist/fin-news-radar/internal/ranking"
	"github.com/DeafMist/fin-news-radar/internal/service"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("replay")
	cfg, err := config.LoadReplay()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := bootstrap.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		log.Error("open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer st.Close()

	if cfg.Input == "" {
		res, err := recluster(ctx, st, cfg.Common, cfg.Mode, log)
		if err != nil {
			log.Error("recluster corpus", slog.Any("err", err))
			os.Exit(1)
		}
		log.Info("corpus reclustered",
			slog.String("mode", cfg.Mode),
			slog.Int("articles", res.Articles),
			slog.Int("clusters_before", res.Before),
			slog.Int("clusters_after", res.After),
		)
		return
	}

	enrichment, err := bootstrap.NewEnrichment(cfg.Embedding, log, nil)
	if err != nil {
		log.Error("init enrichment", slog.Any("err", err))
		os.Exit(1)
	}
	ranker, err := ranking.New(ranking.DefaultWeights(), 0)
	if err != nil {
		log.Error("init ranker", slog.Any("err", err))
		os.Exit(1)
	}
	svc, err := service.New(service.Deps{
		Corpus:    bootstrap.NewCorpus(cfg.Common, st, log),
		Store:     st,
		Embedder:  enrichment.Embedder,
		Extractor: enrichment.Extractor,
		Ranker:    ranker,
		Logger:    log,
	}, service.Options{})
	if err != nil {
		log.Error("init service", slog.Any("err", err))
		os.Exit(1)
	}
	if err := svc.Load(ctx); err != nil {
		log.Error("load corpus", slog.Any("err", err))
		os.Exit(1)
	}

	f, err := os.Open(cfg.Input)
	if err != nil {
		log.Error("open input", slog.Any("err", err))
		os.Exit(1)
	}
	defer f.Close()

	imported, failed, err := importArticles(ctx, svc, f, log)
	if err != nil {
		log.Error("import articles", slog.Any("err", err))
		os.Exit(1)
	}
	articles, clusters := svc.Len()
	log.Info("import finished",
		slog.Int("imported", imported),
		slog.Int("failed", failed),
		slog.Int("articles", articles),
		slog.Int("clusters", clusters),
	)
}
