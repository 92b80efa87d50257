package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

// RepositoryPort abstracts invoice persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (invoicing.Invoice, error)
}

// TxRepository exposes the operations available inside a transaction.
type TxRepository interface {
	GetCounterparty(ctx context.Context, kind invoicing.Kind, id int64) (invoicing.Counterparty, error)
	GetProductsForUpdate(ctx context.Context, ids []int64) (map[int64]invoicing.Product, error)
	InsertInvoice(ctx context.Context, inv invoicing.Invoice) (invoicing.Invoice, error)
	AdjustStock(ctx context.Context, productID int64, delta decimal.Decimal) error
}

// CatalogInvalidator drops cached reference data after stock moved.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Service persists drafts handed over by the composer.
type Service struct {
	repo    RepositoryPort
	catalog CatalogInvalidator
	logger  *slog.Logger
	now     func() time.Time
	number  func(invoicing.Kind, time.Time) string
}

// NewService builds Service. catalog may be nil.
func NewService(repo RepositoryPort, catalog CatalogInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, logger: logger, now: time.Now, number: NewNumber}
}

// SubmitInvoice implements invoicing.Submitter. The counterparty and every product are
// re-read under lock; sales drafts validated under StockBlock re-check stock against the
// locked rows so two tills cannot both sell the last unit. Under StockWarn the sale goes
// through and stock may fall below zero.
func (s *Service) SubmitInvoice(ctx context.Context, draft invoicing.Draft) (invoicing.Invoice, error) {
	if !draft.Kind.Valid() {
		return invoicing.Invoice{}, fmt.Errorf("invoices: unknown kind %q", draft.Kind)
	}
	if len(draft.Lines) == 0 {
		return invoicing.Invoice{}, ErrEmptyInvoice
	}
	if draft.Header.CounterpartyID == nil {
		return invoicing.Invoice{}, fmt.Errorf("%w: none selected", ErrUnknownCounterparty)
	}

	issuedAt := draft.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = s.now()
	}

	var saved invoicing.Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		party, err := tx.GetCounterparty(ctx, draft.Kind, *draft.Header.CounterpartyID)
		if err != nil {
			return err
		}

		requested := make(map[int64]decimal.Decimal)
		var ids []int64
		for _, line := range draft.Lines {
			if _, seen := requested[line.ProductID]; !seen {
				ids = append(ids, line.ProductID)
			}
			requested[line.ProductID] = requested[line.ProductID].Add(line.Quantity)
		}
		products, err := tx.GetProductsForUpdate(ctx, ids)
		if err != nil {
			return err
		}
		for _, line := range draft.Lines {
			if _, ok := products[line.ProductID]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownProduct, line.ProductName)
			}
		}
		if draft.EnforcesStock() {
			for _, id := range ids {
				p := products[id]
				if requested[id].GreaterThan(p.MainQuantity) {
					return insufficientStock(p.Name, p.MainQuantity, requested[id])
				}
			}
		}

		inv := invoicing.Invoice{
			Number:   s.number(draft.Kind, issuedAt),
			Kind:     draft.Kind,
			Header:   draft.Header,
			IssuedAt: issuedAt,
			Lines:    draft.Lines,
			Total:    draft.Total,
			Status:   draft.Status,
		}
		inv.Header.CounterpartyName = party.Name
		if inv.Status == "" {
			inv.Status = invoicing.StatusCompleted
		}
		saved, err = tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}

		for _, id := range ids {
			delta := requested[id]
			if draft.Kind == invoicing.KindSales {
				delta = delta.Neg()
			}
			if err := tx.AdjustStock(ctx, id, delta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return invoicing.Invoice{}, err
	}

	s.logger.Info("invoice saved",
		slog.String("number", saved.Number),
		slog.String("kind", string(saved.Kind)),
		slog.String("total", saved.Total.StringFixed(2)),
		slog.Int("lines", len(saved.Lines)))

	if s.catalog != nil {
		if err := s.catalog.Invalidate(ctx); err != nil {
			s.logger.Warn("catalog invalidation failed", slog.String("number", saved.Number), slog.Any("error", err))
		}
	}
	return saved, nil
}

// Get loads a persisted invoice for reprinting.
func (s *Service) Get(ctx context.Context, id int64) (invoicing.Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return invoicing.Invoice{}, fmt.Errorf("invoices: get %d: %w", id, err)
	}
	return inv, nil
}
