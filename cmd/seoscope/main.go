// Package main wires together the audit service binary.
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

	"github.com/seoscope/seoscope/internal/analyzer"
	"github.com/seoscope/seoscope/internal/api"
	"github.com/seoscope/seoscope/internal/audit"
	"github.com/seoscope/seoscope/internal/billing"
	"github.com/seoscope/seoscope/internal/clock/system"
	"github.com/seoscope/seoscope/internal/config"
	"github.com/seoscope/seoscope/internal/dispatcher"
	"github.com/seoscope/seoscope/internal/fetcher/rendered"
	"github.com/seoscope/seoscope/internal/fetcher/simple"
	"github.com/seoscope/seoscope/internal/id/uuid"
	"github.com/seoscope/seoscope/internal/logging"
	"github.com/seoscope/seoscope/internal/metrics"
	memorypublisher "github.com/seoscope/seoscope/internal/publisher/memory"
	pubsubpublisher "github.com/seoscope/seoscope/internal/publisher/pubsub"
	"github.com/seoscope/seoscope/internal/ratelimit"
	gcsstorage "github.com/seoscope/seoscope/internal/storage/gcs"
	localstorage "github.com/seoscope/seoscope/internal/storage/local"
	memorystorage "github.com/seoscope/seoscope/internal/storage/memory"
	"github.com/seoscope/seoscope/internal/storage/postgres"
	"github.com/seoscope/seoscope/internal/worker"
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
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	var (
		jobs    audit.JobStore
		results audit.ResultStore
		ledger  audit.CreditLedger
		pinger  api.Pinger
	)
	if cfg.DB.DSN != "" {
		if err := postgres.RunMigrations(cfg.DB.DSN); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxConns),
			MinConns: int32(cfg.DB.MinConns),
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pool.Close()
		jobs = postgres.NewJobStore(pool, clock)
		results = postgres.NewResultStore(pool, clock)
		ledger = postgres.NewLedger(pool, clock)
		pinger = pool
		logger.Info("using postgres stores")
	} else {
		memLedger := memorystorage.NewLedger(clock)
		memResults := memorystorage.NewResultStore()
		jobs = memorystorage.NewJobStore(memLedger, memResults, clock)
		results = memResults
		ledger = memLedger
		logger.Warn("db.dsn not set, using in-memory stores")
	}

	var blobs audit.BlobStore
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("gcs client close failed", zap.Error(closeErr))
			}
		}()
		blobs, err = gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("gcs storage init failed", zap.Error(err))
		}
	case "local":
		blobs, err = localstorage.New(localstorage.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			logger.Fatal("local storage init failed", zap.Error(err))
		}
	default:
		blobs = memorystorage.NewBlobStore()
	}

	var publisher audit.Publisher
	if cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		pub, err := pubsubpublisher.New(client)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := pub.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		publisher = pub
	} else {
		publisher = memorypublisher.New()
	}

	var limiter ratelimit.Counter
	if cfg.Redis.URL != "" {
		redisCounter, err := ratelimit.NewRedis(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("redis init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := redisCounter.Close(); closeErr != nil {
				logger.Warn("redis close failed", zap.Error(closeErr))
			}
		}()
		if err := redisCounter.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, rate limiting will fail open", zap.Error(err))
		}
		limiter = redisCounter
	}

	simpleFetcher := simple.New(simple.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	var renderedFetcher audit.Fetcher = rendered.NewNoop()
	if cfg.Headless.Enabled {
		headless, err := rendered.New(rendered.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			renderedFetcher = headless
		}
	}

	engine := analyzer.New()
	workerCfg := worker.Config{
		PollInterval: cfg.PollInterval(),
		FetchTimeout: cfg.FetchTimeout(),
		BlobPrefix:   cfg.Storage.Prefix,
		Topic:        cfg.PubSub.Topic,
	}

	var workers []*worker.Worker
	for i := 0; i < cfg.Worker.Count; i++ {
		wc := workerCfg
		wc.ID = fmt.Sprintf("worker-%d", i+1)
		workers = append(workers, worker.New(
			jobs,
			blobs,
			publisher,
			idGen,
			clock,
			simpleFetcher,
			renderedFetcher,
			engine,
			analyzer.Summarize,
			wc,
			logger.Named("worker").With(zap.String("worker_id", wc.ID)),
		))
	}
	sweeper := worker.NewSweeper(jobs, worker.SweeperConfig{
		Interval:    cfg.SweepInterval(),
		StaleAfter:  cfg.StaleAfter(),
		MaxRequeues: cfg.Worker.MaxRequeues,
	}, logger.Named("sweeper"))
	dispatch := dispatcher.New(workers, sweeper)

	proc := billing.New(ledger, nil, logger.Named("billing"))
	apiServer := api.NewServer(jobs, results, ledger, proc, idGen, clock, limiter, pinger, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
