// Package main wires together the exhibition crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/artner/artmap-crawler/internal/api"
	"github.com/artner/artmap-crawler/internal/blob"
	"github.com/artner/artmap-crawler/internal/config"
	"github.com/artner/artmap-crawler/internal/discover"
	"github.com/artner/artmap-crawler/internal/extract"
	"github.com/artner/artmap-crawler/internal/fetch"
	"github.com/artner/artmap-crawler/internal/logging"
	"github.com/artner/artmap-crawler/internal/pipeline"
	"github.com/artner/artmap-crawler/internal/publisher"
	"github.com/artner/artmap-crawler/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DB.DSN == "" {
		logger.Fatal("db.dsn is required")
	}

	var blobs blob.Store
	var gcsStore *blob.GCSStore
	if cfg.Storage.GCSBucket != "" {
		gcsStore, err = blob.NewGCSStore(ctx, cfg.Storage.GCSBucket)
		if err != nil {
			logger.Fatal("gcs init failed", zap.Error(err))
		}
		blobs = gcsStore
	} else {
		logger.Warn("storage.gcs_bucket not set, keeping posters in memory")
		blobs = blob.NewMemoryStore()
	}

	st, err := store.New(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}, blobs, logger.Named("store"))
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer st.Close()

	var notifier publisher.Publisher = publisher.Noop{}
	if cfg.PubSub.ProjectID != "" {
		ps, err := publisher.NewPubSub(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := ps.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		notifier = ps
	}

	extractor := extract.New(cfg.Crawler.BaseURL)
	fetcher := fetch.New(fetch.Config{
		Concurrency: cfg.HTTP.Concurrency,
		Timeout:     cfg.FetchTimeout(),
		Delay:       cfg.FetchDelay(),
		UserAgent:   cfg.Crawler.UserAgent,
	}, extractor, nil, logger.Named("fetch"))

	newDiscoverer := func(opts pipeline.RunOptions) pipeline.Discoverer {
		dcfg := discover.Config{
			ListingURL:  cfg.Crawler.ListingURL,
			BaseURL:     cfg.Crawler.BaseURL,
			MaxScroll:   cfg.Crawler.MaxScroll,
			ScrollDelay: cfg.ScrollDelay(),
		}
		if opts.MaxScroll > 0 {
			dcfg.MaxScroll = opts.MaxScroll
		}
		if opts.ScrollDelayProvided {
			dcfg.ScrollDelay = opts.ScrollDelay
			if dcfg.ScrollDelay <= 0 {
				// An explicit zero still needs a tick for the DOM to settle.
				dcfg.ScrollDelay = time.Millisecond
			}
		}
		factory := func(ctx context.Context) (discover.PageSource, error) {
			return discover.NewChromedpSource(ctx, discover.BrowserConfig{
				UserAgent:  cfg.Crawler.UserAgent,
				NavTimeout: cfg.NavTimeout(),
			})
		}
		return discover.New(factory, dcfg, logger.Named("discover"))
	}

	pipe := pipeline.New(newDiscoverer, fetcher, st, notifier, logger.Named("pipeline"))
	apiServer := api.NewServer(pipe, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if gcsStore != nil {
		if err := gcsStore.Close(); err != nil {
			logger.Warn("gcs close failed", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
