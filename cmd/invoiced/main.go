package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-ledger/constants"
	"github.com/joseph-ayodele/invoice-ledger/internal/common"
	"github.com/joseph-ayodele/invoice-ledger/internal/dedup"
	"github.com/joseph-ayodele/invoice-ledger/internal/export"
	"github.com/joseph-ayodele/invoice-ledger/internal/extract"
	"github.com/joseph-ayodele/invoice-ledger/internal/extract/openai"
	"github.com/joseph-ayodele/invoice-ledger/internal/ingest"
	"github.com/joseph-ayodele/invoice-ledger/internal/logging"
	"github.com/joseph-ayodele/invoice-ledger/internal/pipeline"
	"github.com/joseph-ayodele/invoice-ledger/internal/repository"
	"github.com/joseph-ayodele/invoice-ledger/internal/server"
)

const drainTimeout = 2 * time.Minute

func main() {
	cfg := common.LoadConfig()
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.Log.Format = "zap"
	}
	logger := logging.New(cfg.Log.Format, cfg.Log.Level, os.Stdout)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireLLM(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = common.WithRunID(ctx, uuid.NewString())

	db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
	if err != nil {
		logger.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Healthcheck DB on startup
	if err := db.HealthCheck(ctx, cfg.Database.HealthTimeout); err != nil {
		logger.Error("ledger health check failed", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx); err != nil {
		logger.Error("ledger migration failed", "error", err)
		os.Exit(1)
	}
	ledger := repository.NewLedger(db, logger)

	client := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	gateway := extract.NewGateway(client, cfg.Pipeline.ExtractTimeout, logger)

	opts := []pipeline.ProcessorOption{pipeline.WithSkipKnown(true)}
	if cfg.Export.CSVPath != "" {
		opts = append(opts, pipeline.WithExporter(export.NewCSVAppender(cfg.Export.CSVPath, logger)))
	}
	proc := pipeline.NewProcessor(dedup.New(), gateway, ledger, logger, opts...)

	watcher, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Dir:         cfg.Watch.Dir,
		Extensions:  cfg.Watch.Extensions,
		SettleDelay: cfg.Watch.SettleDelay,
		Identity:    cfg.Pipeline.Identity,
	}, logger)
	if err != nil {
		logger.Error("failed to watch folder", "dir", cfg.Watch.Dir, "error", err)
		os.Exit(1)
	}

	var reconcile ingest.Source
	if cfg.Watch.Reconcile {
		reconcile = ingest.NewScanner(ingest.ScanConfig{
			Dir:        cfg.Watch.Dir,
			Extensions: cfg.Watch.Extensions,
			SkipHidden: true,
			Identity:   cfg.Pipeline.Identity,
			Source:     constants.SourceWatchedFolder,
		}, logger)
	}

	// gRPC health
	hs, err := server.Listen(cfg.Server.GRPCAddr, logger)
	if err != nil {
		watcher.Stop()
		logger.Error("failed to listen", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		if err := hs.Serve(); err != nil {
			logger.Error("grpc serve failed", "error", err)
		}
	}()
	go hs.Monitor(ctx, 30*time.Second, func(ctx context.Context) error {
		return db.HealthCheck(ctx, cfg.Database.HealthTimeout)
	})
	hs.SetServing(true)

	q := pipeline.NewQueue(proc, logger,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
		pipeline.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
		pipeline.WithBaseContext(context.WithoutCancel(ctx)),
	)

	logger.Info("invoiced.started",
		"dir", cfg.Watch.Dir,
		"workers", cfg.Pipeline.Workers,
		"reconcile", cfg.Watch.Reconcile,
		"grpc_addr", hs.Addr(),
	)

	runErr := pipeline.RunWatch(ctx, q, watcher, reconcile, drainTimeout)

	logger.Info("shutting down...")
	hs.Stop()
	if runErr != nil {
		logger.Error("watch run ended with error", "error", runErr)
		db.Close()
		os.Exit(1)
	}
	logger.Info("invoiced.stopped")
}
