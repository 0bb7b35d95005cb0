// Package main wires together the procurement scraper service.
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

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/govsight/procurement-crawler/internal/api"
	"github.com/govsight/procurement-crawler/internal/clock/system"
	"github.com/govsight/procurement-crawler/internal/config"
	"github.com/govsight/procurement-crawler/internal/extract"
	"github.com/govsight/procurement-crawler/internal/fetcher/browserapi"
	"github.com/govsight/procurement-crawler/internal/fetcher/direct"
	"github.com/govsight/procurement-crawler/internal/fetcher/proxyrender"
	"github.com/govsight/procurement-crawler/internal/hash/sha256"
	"github.com/govsight/procurement-crawler/internal/id/uuid"
	"github.com/govsight/procurement-crawler/internal/logging"
	memorypublisher "github.com/govsight/procurement-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/govsight/procurement-crawler/internal/publisher/pubsub"
	queuememory "github.com/govsight/procurement-crawler/internal/queue/memory"
	"github.com/govsight/procurement-crawler/internal/scraper"
	"github.com/govsight/procurement-crawler/internal/service"
	"github.com/govsight/procurement-crawler/internal/storage/gcs"
	"github.com/govsight/procurement-crawler/internal/storage/local"
	storagememory "github.com/govsight/procurement-crawler/internal/storage/memory"
	"github.com/govsight/procurement-crawler/internal/storage/postgres"
	"github.com/govsight/procurement-crawler/internal/strategy"
	"github.com/govsight/procurement-crawler/internal/tool"
	"github.com/govsight/procurement-crawler/internal/worker"
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

	jobStore, recordStore, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStores()

	blobStore, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	queue := queuememory.NewQueue(cfg.Worker.QueueDepth)
	hasher := sha256.New()
	clock := system.New()
	sleeper := system.NewSleeper()
	idGen := uuid.New()

	fetchers := []scraper.Fetcher{
		direct.New(direct.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		}),
		proxyrender.New(proxyrender.Config{
			APIKey:             cfg.Proxy.APIKey,
			BaseURL:            cfg.Proxy.BaseURL,
			DisableJSRendering: cfg.Proxy.DisableJSRendering,
			PremiumProxy:       cfg.Proxy.PremiumProxy,
			CountryCode:        cfg.Proxy.CountryCode,
			Timeout:            time.Duration(cfg.Proxy.TimeoutSeconds) * time.Second,
		}),
		browserapi.New(browserapi.Config{
			APIKey:         cfg.Browser.APIKey,
			BaseURL:        cfg.Browser.BaseURL,
			DisableStealth: cfg.Browser.DisableStealth,
			DisableAdBlock: cfg.Browser.DisableAdBlock,
			Timeout:        time.Duration(cfg.Browser.TimeoutSeconds) * time.Second,
		}),
	}
	orchestrator := strategy.New(fetchers, logger.Named("strategy"))

	scrapeSvc, err := service.New(service.Config{
		Strategy:  orchestrator,
		Records:   recordStore,
		Blobs:     blobStore,
		Extractor: extract.New(logger.Named("extract")),
		Hasher:    hasher,
		IDs:       idGen,
		Clock:     clock,
		Logger:    logger.Named("service"),
	})
	if err != nil {
		logger.Fatal("scrape service init failed", zap.Error(err))
	}

	jobWorker := worker.New(
		queue,
		jobStore,
		scrapeSvc,
		publisher,
		sleeper,
		worker.Config{
			Topic:           cfg.PubSub.TopicName,
			PolitenessDelay: cfg.PolitenessDelay(),
		},
		logger.Named("worker"),
	)

	fetchTool := tool.New(orchestrator)
	apiServer := api.NewServer(jobStore, recordStore, queue, fetchTool, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("worker started")
		jobWorker.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	grace := time.Duration(cfg.Worker.ShutdownGraceSecs) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}

func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (scraper.JobStore, scraper.RecordStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("using in-memory stores")
		return storagememory.NewJobStore(), storagememory.NewRecordStore(), func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             cfg.DB.DSN,
		MaxConns:        int32(cfg.DB.MaxConns),
		MinConns:        int32(cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMin) * time.Minute,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	jobStore, err := postgres.NewJobStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	recordStore, err := postgres.NewRecordStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	logger.Info("using postgres stores")
	return jobStore, recordStore, pool.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (scraper.BlobStore, error) {
	switch {
	case cfg.Storage.GCSBucket != "":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		logger.Info("using gcs blob store", zap.String("bucket", cfg.Storage.GCSBucket))
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case cfg.Storage.LocalDir != "":
		logger.Info("using local blob store", zap.String("dir", cfg.Storage.LocalDir))
		return local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
	default:
		logger.Info("using in-memory blob store")
		return storagememory.NewBlobStore(), nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (scraper.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		logger.Info("using in-memory publisher")
		return memorypublisher.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	logger.Info("using pubsub publisher", zap.String("topic", cfg.PubSub.TopicName))
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	return pubsubpublisher.New(client), closeFn, nil
}
