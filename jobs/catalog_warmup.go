package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// TaskCatalogWarmup reloads the reference data cache before tills open.
const TaskCatalogWarmup = "catalog:warmup"

// CatalogWarmupPayload controls a warmup run.
type CatalogWarmupPayload struct {
	// Invalidate bumps the cache version first so the source is read again.
	Invalidate bool `json:"invalidate"`
}

// NewCatalogWarmupTask constructs the nightly warmup task.
func NewCatalogWarmupTask() (*asynq.Task, error) {
	data, err := json.Marshal(CatalogWarmupPayload{Invalidate: true})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogWarmup, data), nil
}

// CatalogLoader is the subset of the catalog service the warmup needs.
type CatalogLoader interface {
	Load(ctx context.Context, kind invoicing.Kind) (*catalog.Snapshot, error)
	Invalidate(ctx context.Context) error
}

// CatalogWarmupJob pre-populates the catalog cache for both entry screens.
type CatalogWarmupJob struct {
	Catalog CatalogLoader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCatalogWarmupJob wires dependencies for the warmup handler.
func NewCatalogWarmupJob(loader CatalogLoader, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogWarmupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogWarmupJob{Catalog: loader, Logger: logger, Metrics: metrics}
}

// Handle processes catalog warmup tasks.
func (j *CatalogWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Catalog == nil {
		return errors.New("catalog warmup: handler not configured")
	}
	var payload CatalogWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskCatalogWarmup)
	return tracker.End(j.warm(ctx, payload))
}

func (j *CatalogWarmupJob) warm(ctx context.Context, payload CatalogWarmupPayload) error {
	if payload.Invalidate {
		if err := j.Catalog.Invalidate(ctx); err != nil {
			j.Logger.Error("catalog warmup invalidate", slog.Any("error", err))
			return err
		}
	}
	for _, kind := range []invoicing.Kind{invoicing.KindSales, invoicing.KindPurchase} {
		snap, err := j.Catalog.Load(ctx, kind)
		if err != nil {
			j.Logger.Error("catalog warmup load", slog.String("kind", string(kind)), slog.Any("error", err))
			return err
		}
		ref := snap.Reference()
		j.Logger.Info("catalog warmed",
			slog.String("kind", string(kind)),
			slog.Int("counterparties", len(ref.Counterparties)),
			slog.Int("products", len(ref.Products)))
	}
	return nil
}
