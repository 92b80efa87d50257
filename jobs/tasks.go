package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueuePrint carries invoice print jobs so a slow renderer never delays other work.
	QueuePrint = "print"
	// TaskInvoicePrint renders a saved invoice into PDF and XLSX artefacts.
	TaskInvoicePrint = "invoice:print"
)

// InvoicePrintPayload identifies the invoice to print.
type InvoicePrintPayload struct {
	InvoiceID int64  `json:"invoice_id"`
	Kind      string `json:"kind"`
}

// ErrInvalidPayload is returned when a payload cannot describe a job.
var ErrInvalidPayload = errors.New("jobs: invalid payload")

// NewInvoicePrintTask constructs an Asynq task.
func NewInvoicePrintTask(payload InvoicePrintPayload) (*asynq.Task, error) {
	if payload.InvoiceID <= 0 || payload.Kind == "" {
		return nil, ErrInvalidPayload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoicePrint, data, asynq.MaxRetry(5)), nil
}

// ParseInvoicePrintPayload decodes a task payload. Malformed payloads yield asynq.SkipRetry.
func ParseInvoicePrintPayload(t *asynq.Task) (InvoicePrintPayload, error) {
	var payload InvoicePrintPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return InvoicePrintPayload{}, asynq.SkipRetry
	}
	if payload.InvoiceID <= 0 || payload.Kind == "" {
		return InvoicePrintPayload{}, asynq.SkipRetry
	}
	return payload, nil
}
