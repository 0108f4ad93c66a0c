package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
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
	"github.com/joseph-ayodele/invoice-ledger/internal/utils"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	cfg := common.LoadConfig()

	var (
		dir     = flag.String("dir", cfg.Watch.Dir, "directory to process invoices from")
		exts    = flag.String("ext", "", "comma separated extensions (default .pdf,.png,.jpg,.jpeg,...)")
		out     = flag.String("out", "", "optional XLSX report of the ledger written after the run")
		csvPath = flag.String("csv", cfg.Export.CSVPath, "CSV file saved invoices are appended to (empty disables)")
		workers = flag.Int("workers", cfg.Pipeline.Workers, "concurrent documents")
		fromStr = flag.String("from", "", "report: from issue date YYYY-MM-DD")
		toStr   = flag.String("to", "", "report: to issue date YYYY-MM-DD")
		status  = flag.String("status", "", "report: only OK, REVIEW or ERROR records")
	)
	flag.Parse()

	filters := repository.Filters{}
	var err error
	if filters.From, err = utils.ParseOptionalYMD(*fromStr); err != nil {
		printError("Error: invalid --from date format, use YYYY-MM-DD: %v\n", err)
		os.Exit(1)
	}
	if filters.To, err = utils.ParseOptionalYMD(*toStr); err != nil {
		printError("Error: invalid --to date format, use YYYY-MM-DD: %v\n", err)
		os.Exit(1)
	}
	if *status != "" {
		c, ok := constants.Canonicalize(*status)
		if !ok {
			printError("Error: --status must be one of %v\n", constants.ClassificationsAsStringSlice())
			os.Exit(1)
		}
		filters.Classification = c
	}

	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *exts != "" {
		cfg.Watch.Extensions = constants.ParseExtensions(*exts)
	}

	logger := logging.New(cfg.Log.Format, cfg.Log.Level, os.Stderr)

	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.RequireLLM(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = common.WithRunID(ctx, uuid.NewString())

	db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
	if err != nil {
		logger.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer db.Close()

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

	var opts []pipeline.ProcessorOption
	if *csvPath != "" {
		opts = append(opts, pipeline.WithExporter(export.NewCSVAppender(*csvPath, logger)))
	}
	proc := pipeline.NewProcessor(dedup.New(), gateway, ledger, logger, opts...)

	scanner := ingest.NewScanner(ingest.ScanConfig{
		Dir:        *dir,
		Extensions: cfg.Watch.Extensions,
		SkipHidden: true,
		Identity:   cfg.Pipeline.Identity,
	}, logger)

	start := time.Now()
	logger.Info("batch.started", "dir", *dir, "workers", cfg.Pipeline.Workers, "run_id", common.RunIDFromContext(ctx))

	col, err := pipeline.RunScan(ctx, proc, scanner,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithQueueSize(cfg.Pipeline.QueueSize),
		pipeline.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
	)
	if err != nil {
		if common.IsInvalidInput(err) {
			printError("Error: cannot read --dir %q: %v\n", *dir, err)
		}
		logger.Error("batch run failed", "dir", *dir, "error", err)
		os.Exit(1)
	}

	sum := col.Summary()
	logger.Info("batch.finished",
		"total", sum.Total,
		"failures", sum.Failures(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	export.WriteOutcomeTable(os.Stdout, col.Outcomes(), sum)

	if *out != "" {
		xlsx, err := export.NewService(ledger, logger).ExportXLSX(ctx, filters)
		if err != nil {
			logger.Error("failed to export ledger", "error", err)
			return
		}
		if outDir := filepath.Dir(*out); outDir != "." {
			_ = os.MkdirAll(outDir, 0o755)
		}
		if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
			logger.Error("failed to write output file", "path", *out, "error", err)
			return
		}
		fmt.Printf("- Report: %s\n", *out)
	}
}
