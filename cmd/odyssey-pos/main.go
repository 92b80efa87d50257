package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/composer"
	"github.com/odyssey-erp/odyssey-pos/internal/invoices"
	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/printing"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Without Redis the catalog is read straight from its source.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, catalog cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func(c *redis.Client) {
		if c == nil {
			return
		}
		if err := c.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}(redisClient)

	var source catalog.Source = catalog.NewRepository(dbpool)
	if cfg.CatalogFile != "" {
		logger.Info("catalog served from fixture", slog.String("file", cfg.CatalogFile))
		source = catalog.NewFileSource(cfg.CatalogFile)
	}
	catalogCache := catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
	catalogService := catalog.NewService(source, catalogCache, logger)
	if err := catalogCache.Subscribe(ctx, func(version int64) {
		logger.Info("catalog version bumped", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("catalog subscribe", slog.Any("error", err))
	}

	invoiceService := invoices.NewService(invoices.NewRepository(dbpool), catalogService, logger)

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	renderer, err := printing.NewHTMLRenderer()
	if err != nil {
		logger.Error("parse invoice template", slog.Any("error", err))
		os.Exit(1)
	}
	gotenberg := printing.NewGotenbergClient(cfg.GotenbergURL, cfg.PrintPaperWidth)
	direct, err := printing.NewDirectPrinter(printing.DirectPrinterConfig{
		Renderer:   renderer,
		PDF:        gotenberg,
		XLSX:       printing.NewXLSXExporter(),
		StorageDir: cfg.PrintStorageDir,
		Screens:    screens,
		Metrics:    jobMetrics,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("init printer", slog.Any("error", err))
		os.Exit(1)
	}

	var printer invoicing.Printer = direct
	if cfg.PrintAsync {
		queueClient, err := jobs.NewClient(cache.QueueOpt(cfg.RedisAddr))
		if err != nil {
			logger.Error("init queue client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn("queue client close", slog.Any("error", err))
			}
		}()
		printer = printing.NewQueuePrinter(queueClient, logger)
	}

	store := composer.NewStore(composer.StoreConfig{
		Catalog:   catalogService,
		Submitter: invoiceService,
		Printer:   printer,
		Screens:   screens,
		IdleTTL:   cfg.SessionIdleTTL,
		Gauge:     metrics,
		Logger:    logger,
	})
	go store.Run(ctx)
	composerHandler := composer.NewHandler(store, metrics, logger)

	printHandler := printing.NewHandler(printing.HandlerConfig{
		Pinger:   gotenberg,
		Invoices: invoiceService,
		Catalog:  catalogService,
		Direct:   direct,
		Printer:  printer,
		Logger:   logger,
	})

	inspector := asynq.NewInspector(cache.QueueOpt(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		ComposerHandler: composerHandler,
		PrintHandler:    printHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
