// Package invoices persists composed invoices and applies their stock movements.
package invoices

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

// User-facing failures. The composer shows their text verbatim.
var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrUnknownProduct      = errors.New("unknown product")
	ErrUnknownCounterparty = errors.New("unknown counterparty")
	ErrEmptyInvoice        = errors.New("invoice has no lines")
)

// ErrNotFound is returned by Get for a missing invoice.
var ErrNotFound = errors.New("invoices: invoice not found")

// numberPrefix maps a kind to its document prefix.
var numberPrefix = map[invoicing.Kind]string{
	invoicing.KindSales:    "SI",
	invoicing.KindPurchase: "PI",
}

// NewNumber builds a document number such as SI-202610-1A2B3C4D.
func NewNumber(kind invoicing.Kind, issuedAt time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", numberPrefix[kind], issuedAt.Format("200601"), suffix)
}

func insufficientStock(name string, available, requested fmt.Stringer) error {
	return fmt.Errorf("%w for %s: available %s, requested %s", ErrInsufficientStock, name, available, requested)
}
