package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/invoices"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/printing"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	screens, err := cfg.Screens()
	if err != nil {
		logger.Error("screen config", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var source catalog.Source = catalog.NewRepository(pool)
	if cfg.CatalogFile != "" {
		source = catalog.NewFileSource(cfg.CatalogFile)
	}
	catalogService := catalog.NewService(source, catalog.NewCache(redisClient, cfg.CatalogCacheTTL), logger)
	invoiceService := invoices.NewService(invoices.NewRepository(pool), catalogService, logger)

	metrics := jobmetrics.NewMetrics(nil)

	renderer, err := printing.NewHTMLRenderer()
	if err != nil {
		logger.Error("parse invoice template", slog.Any("error", err))
		os.Exit(1)
	}
	direct, err := printing.NewDirectPrinter(printing.DirectPrinterConfig{
		Renderer:   renderer,
		PDF:        printing.NewGotenbergClient(cfg.GotenbergURL, cfg.PrintPaperWidth),
		XLSX:       printing.NewXLSXExporter(),
		StorageDir: cfg.PrintStorageDir,
		Screens:    screens,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("init printer", slog.Any("error", err))
		os.Exit(1)
	}
	printJob := printing.NewJob(printing.JobConfig{
		Invoices: invoiceService,
		Catalog:  catalogService,
		Printer:  direct,
		Metrics:  metrics,
		Logger:   logger,
	})
	warmupJob := jobs.NewCatalogWarmupJob(catalogService, logger, metrics)

	warmupTask, err := jobs.NewCatalogWarmupTask()
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cache.QueueOpt(cfg.RedisAddr),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInvoicePrint, Handler: printJob.Handle},
			{Type: jobs.TaskCatalogWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CatalogWarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
