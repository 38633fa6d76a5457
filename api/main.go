package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeafMist/fin-news-radar/internal/bootstrap"
	"github.com/DeafMist/fin-news-radar/internal/config"
	"github.com/DeafMist/fin-news-radar/internal/ingest"
	"github.com/DeafMist/fin-news-radar/internal/logger"
	"github.com/DeafMist/fin-news-radar/internal/metrics"
	"github.com/DeafMist/fin-news-radar/internal/ranking"
	"github.com/DeafMist/fin-news-radar/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	m := metrics.NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		log.Error("register metrics", slog.Any("err", err))
		os.Exit(1)
	}

	st, err := bootstrap.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		log.Error("open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer st.Close()

	enrichment, err := bootstrap.NewEnrichment(cfg.Embedding, log, m)
	if err != nil {
		log.Error("init enrichment", slog.Any("err", err))
		os.Exit(1)
	}

	ranker, err := ranking.New(ranking.Weights{Semantic: cfg.SemanticWeight, Entity: cfg.EntityWeight}, cfg.MinScore)
	if err != nil {
		log.Error("init ranker", slog.Any("err", err))
		os.Exit(1)
	}

	svc, err := service.New(service.Deps{
		Corpus:      bootstrap.NewCorpus(cfg.Common, st, log),
		Store:       st,
		Embedder:    enrichment.Embedder,
		Extractor:   enrichment.Extractor,
		Interpreter: bootstrap.NewInterpreter(cfg.Common, enrichment),
		Ranker:      ranker,
		Metrics:     m,
		Logger:      log,
	}, service.Options{
		QueryTimeout: cfg.QueryTimeout,
		DefaultLimit: cfg.DefaultPage,
		MaxLimit:     cfg.MaxPage,
	})
	if err != nil {
		log.Error("init service", slog.Any("err", err))
		os.Exit(1)
	}

	if err := svc.Load(ctx); err != nil {
		log.Error("load corpus", slog.Any("err", err))
		os.Exit(1)
	}
	articles, clusters := svc.Len()
	log.Info("corpus loaded", slog.Int("articles", articles), slog.Int("clusters", clusters))

	srv := &server{log: log, cfg: cfg, svc: svc}
	if cfg.Ingest.Enabled {
		consumer := ingest.NewConsumer(ingest.Config{
			Brokers:        cfg.Ingest.KafkaBrokers,
			Topic:          cfg.Ingest.KafkaTopic,
			GroupID:        cfg.Ingest.KafkaConsumer,
			QueueCapacity:  cfg.Ingest.BatchSize,
			DedupeCapacity: cfg.Ingest.DedupeCapacity,
			DedupeTTL:      cfg.Ingest.DedupeTTL,
		}, svc, log, m)
		defer consumer.Close()
		srv.onPurge = consumer.Reset

		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("consumer stopped", slog.Any("err", err))
			}
		}()
	}

	go refreshLoop(ctx, log, svc, cfg.RefreshInterval)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(reg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

// refreshLoop periodically recomputes drifted centroids.
func refreshLoop(ctx context.Context, log *slog.Logger, svc *service.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.Recentre(ctx)
			if err != nil {
				log.Error("recentre clusters", slog.Any("err", err))
				continue
			}
			log.Info("clusters recentred", slog.Int("count", n))
		}
	}
}
