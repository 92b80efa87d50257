// Package catalog loads the reference data the invoice composer works against:
// counterparties, products with their known stock, and warehouses.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

var (
	// ErrUnknownKind is returned when a load names neither sales nor purchase.
	ErrUnknownKind = errors.New("catalog: unknown invoice kind")
	// ErrInvalidFixture wraps the problems found in a fixture file.
	ErrInvalidFixture = errors.New("catalog: invalid fixture")
)

// Source reads reference data from its origin.
type Source interface {
	Customers(ctx context.Context) ([]invoicing.Counterparty, error)
	Suppliers(ctx context.Context) ([]invoicing.Counterparty, error)
	Products(ctx context.Context) ([]invoicing.Product, error)
	Warehouses(ctx context.Context) ([]invoicing.Warehouse, error)
}

// Fixture is the full reference data set as stored in a YAML file or seeded into Postgres.
type Fixture struct {
	Customers  []invoicing.Counterparty `yaml:"customers" json:"customers"`
	Suppliers  []invoicing.Counterparty `yaml:"suppliers" json:"suppliers"`
	Warehouses []invoicing.Warehouse    `yaml:"warehouses" json:"warehouses"`
	Products   []invoicing.Product      `yaml:"products" json:"products"`
}

// Snapshot is the reference data of one entry screen at a point in time.
type Snapshot struct {
	Kind     invoicing.Kind
	LoadedAt time.Time
	Data     invoicing.ReferenceData
}

// Reference implements invoicing.Catalog.
func (s *Snapshot) Reference() invoicing.ReferenceData {
	if s == nil {
		return invoicing.ReferenceData{}
	}
	return s.Data
}
