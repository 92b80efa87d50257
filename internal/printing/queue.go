package printing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/invoices"
	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

// Enqueuer submits print jobs.
type Enqueuer interface {
	EnqueueInvoicePrint(ctx context.Context, payload jobs.InvoicePrintPayload) (*asynq.TaskInfo, error)
}

// QueuePrinter hands printing to the worker. The till gets its result as soon as the
// job is queued.
type QueuePrinter struct {
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewQueuePrinter constructs a QueuePrinter.
func NewQueuePrinter(enqueuer Enqueuer, logger *slog.Logger) *QueuePrinter {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueuePrinter{enqueuer: enqueuer, logger: logger}
}

// Print implements invoicing.Printer. The worker reloads reference data itself.
func (q *QueuePrinter) Print(ctx context.Context, inv invoicing.Invoice, _ invoicing.ReferenceData, kind invoicing.Kind) error {
	if inv.ID == 0 {
		return errors.New("printing: invoice has no id")
	}
	info, err := q.enqueuer.EnqueueInvoicePrint(ctx, jobs.InvoicePrintPayload{InvoiceID: inv.ID, Kind: string(kind)})
	if err != nil {
		return fmt.Errorf("printing: enqueue: %w", err)
	}
	taskID := ""
	if info != nil {
		taskID = info.ID
	}
	q.logger.Info("print job queued", slog.String("number", inv.Number), slog.String("task_id", taskID))
	return nil
}

// InvoiceSource loads persisted invoices.
type InvoiceSource interface {
	Get(ctx context.Context, id int64) (invoicing.Invoice, error)
}

// ReferenceLoader loads the reference data of an entry screen.
type ReferenceLoader interface {
	Load(ctx context.Context, kind invoicing.Kind) (*catalog.Snapshot, error)
}

// JobConfig wires dependencies required by the worker job.
type JobConfig struct {
	Invoices InvoiceSource
	Catalog  ReferenceLoader
	Printer  *DirectPrinter
	Metrics  *jobmetrics.Metrics
	Logger   *slog.Logger
}

// Job processes invoice print requests coming from the queue.
type Job struct {
	invoices InvoiceSource
	catalog  ReferenceLoader
	printer  *DirectPrinter
	metrics  *jobmetrics.Metrics
	logger   *slog.Logger
}

// NewJob constructs a Job handler.
func NewJob(cfg JobConfig) *Job {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{invoices: cfg.Invoices, catalog: cfg.Catalog, printer: cfg.Printer, metrics: cfg.Metrics, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.invoices == nil || j.catalog == nil || j.printer == nil {
		return fmt.Errorf("print job not configured")
	}
	payload, err := jobs.ParseInvoicePrintPayload(task)
	if err != nil {
		return err
	}
	kind := invoicing.Kind(payload.Kind)
	if !kind.Valid() {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(jobs.TaskInvoicePrint)
	return tracker.End(j.print(ctx, payload.InvoiceID, kind))
}

func (j *Job) print(ctx context.Context, id int64, kind invoicing.Kind) error {
	inv, err := j.invoices.Get(ctx, id)
	if err != nil {
		if errors.Is(err, invoices.ErrNotFound) {
			j.logger.Warn("print job for missing invoice", slog.Int64("invoice_id", id))
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		return err
	}
	snap, err := j.catalog.Load(ctx, kind)
	if err != nil {
		return err
	}
	artifacts, err := j.printer.Render(ctx, inv, snap.Reference(), kind)
	if err != nil {
		j.logger.Error("print job failed", slog.String("number", inv.Number), slog.Any("error", err))
		return err
	}
	j.logger.Info("print job done", slog.String("number", inv.Number), slog.String("pdf", artifacts.PDF), slog.String("xlsx", artifacts.XLSX))
	return nil
}
