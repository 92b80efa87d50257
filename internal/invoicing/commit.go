package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const fixErrorsNotice = "please fix the errors before saving the invoice"

// Draft builds the persistence shape of the current state without validating it.
func (e *Engine) Draft() (Draft, error) {
	issuedAt, err := IssuedAt(e.header, e.loc)
	if err != nil {
		return Draft{}, err
	}
	items := e.rows.items()
	lines := make([]FlatLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, Flatten(item))
	}
	header := e.header
	if e.cfg.Kind != KindSales {
		header.AgentType = ""
	}
	return Draft{
		Kind:     e.cfg.Kind,
		Header:   header,
		IssuedAt: issuedAt,
		Lines:    lines,
		Total:    GrandTotal(items),
		Status:   StatusCompleted,

		StockPolicy: e.cfg.StockPolicy,
	}, nil
}

// Commit validates, persists, optionally prints and resets. Validation failures
// return an error wrapping ErrInvalidDraft and the ValidationErrors; persistence
// failures keep the draft for a retry.
func (e *Engine) Commit(ctx context.Context, print bool) (Invoice, error) {
	if e.closed {
		return Invoice{}, ErrEngineClosed
	}

	if errs := e.Validate(); len(errs) > 0 {
		e.notifier.Notify(NoticeError, fixErrorsNotice)
		if first, ok := errs.First(); ok {
			msg := first.Message
			e.tasks.schedule(taskFirstErrorNotice, e.cfg.ErrorNoticeDelay, func() {
				e.notifier.Notify(NoticeError, msg)
			})
		}
		return Invoice{}, fmt.Errorf("%w: %w", ErrInvalidDraft, errs)
	}

	draft, err := e.Draft()
	if err != nil {
		e.notifier.Notify(NoticeError, "invoice date or time is not valid")
		return Invoice{}, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	if e.submitter == nil {
		return Invoice{}, errors.New("invoicing: no submitter configured")
	}

	invoice, err := e.submitter.SubmitInvoice(ctx, draft)
	if err != nil {
		e.logger.Error("submit invoice failed", slog.Any("error", err))
		e.notifier.Notify(NoticeError, err.Error())
		return Invoice{}, fmt.Errorf("invoicing: submit: %w", err)
	}

	e.logger.Info("invoice saved",
		slog.Int64("invoice_id", invoice.ID),
		slog.String("number", invoice.Number),
		slog.String("total", invoice.Total.StringFixed(2)),
	)
	e.notifier.Notify(NoticeSuccess, fmt.Sprintf("invoice %s saved, total %s %s",
		invoice.Number, FormatAmount(e.cfg.Language, invoice.Total), e.cfg.Currency))

	if print && e.printer != nil {
		if err := e.printer.Print(ctx, invoice, e.Reference(), e.cfg.Kind); err != nil {
			e.logger.Error("print invoice failed", slog.Int64("invoice_id", invoice.ID), slog.Any("error", err))
			e.notifier.Notify(NoticeError, fmt.Sprintf("invoice %s was saved but printing failed: %v", invoice.Number, err))
		}
	}

	e.reset()
	return invoice, nil
}
