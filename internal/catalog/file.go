package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

// ReadFixture parses a YAML fixture file.
func ReadFixture(path string) (Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("catalog: read fixture: %w", err)
	}
	return ParseFixture(raw)
}

// ParseFixture decodes YAML fixture bytes. Unknown keys are rejected.
func ParseFixture(raw []byte) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("catalog: decode fixture: %w", err)
	}
	return f, nil
}

// Validate reports every consistency problem of the fixture at once.
func (f Fixture) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	checkParties := func(label string, list []invoicing.Counterparty) {
		seen := make(map[int64]bool, len(list))
		for _, c := range list {
			switch {
			case c.ID <= 0:
				add("%s %q: id must be positive", label, c.Name)
			case seen[c.ID]:
				add("%s %d: duplicate id", label, c.ID)
			}
			seen[c.ID] = true
			if strings.TrimSpace(c.Name) == "" {
				add("%s %d: name is required", label, c.ID)
			}
		}
	}
	checkParties("customer", f.Customers)
	checkParties("supplier", f.Suppliers)

	warehouses := make(map[int64]bool, len(f.Warehouses))
	for _, w := range f.Warehouses {
		if warehouses[w.ID] {
			add("warehouse %d: duplicate id", w.ID)
		}
		warehouses[w.ID] = true
		if strings.TrimSpace(w.Name) == "" {
			add("warehouse %d: name is required", w.ID)
		}
	}

	products := make(map[int64]bool, len(f.Products))
	for _, p := range f.Products {
		if products[p.ID] {
			add("product %d: duplicate id", p.ID)
		}
		products[p.ID] = true
		if strings.TrimSpace(p.Name) == "" {
			add("product %d: name is required", p.ID)
		}
		if p.WarehouseID != 0 && !warehouses[p.WarehouseID] {
			add("product %d: unknown warehouse %d", p.ID, p.WarehouseID)
		}
		if p.MainPrice.IsNegative() || p.SubPrice.IsNegative() {
			add("product %d: prices cannot be negative", p.ID)
		}
		if p.MainQuantity.IsNegative() {
			add("product %d: stock cannot be negative", p.ID)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidFixture, errors.Join(problems...))
}

// FileSource serves reference data from a YAML fixture. It is used in development
// and by the operator CLI; production reads Postgres.
type FileSource struct {
	path string
}

// NewFileSource constructs a FileSource reading path on every call.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) load() (Fixture, error) {
	f, err := ReadFixture(s.path)
	if err != nil {
		return Fixture{}, err
	}
	if err := f.Validate(); err != nil {
		return Fixture{}, err
	}
	return f, nil
}

// Customers implements Source.
func (s *FileSource) Customers(context.Context) ([]invoicing.Counterparty, error) {
	f, err := s.load()
	return f.Customers, err
}

// Suppliers implements Source.
func (s *FileSource) Suppliers(context.Context) ([]invoicing.Counterparty, error) {
	f, err := s.load()
	return f.Suppliers, err
}

// Products implements Source.
func (s *FileSource) Products(context.Context) ([]invoicing.Product, error) {
	f, err := s.load()
	return f.Products, err
}

// Warehouses implements Source.
func (s *FileSource) Warehouses(context.Context) ([]invoicing.Warehouse, error) {
	f, err := s.load()
	return f.Warehouses, err
}
