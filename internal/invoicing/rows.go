package invoicing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Field names an editable numeric column of a row.
type Field string

const (
	FieldMainQuantity Field = "mainQuantity"
	FieldSubQuantity  Field = "subQuantity"
	FieldMainPrice    Field = "mainPrice"
	FieldSubPrice     Field = "subPrice"
)

// ParseField validates a field name coming from the outside.
func ParseField(name string) (Field, error) {
	switch f := Field(name); f {
	case FieldMainQuantity, FieldSubQuantity, FieldMainPrice, FieldSubPrice:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// IsQuantity reports whether f is one of the quantity columns.
func (f Field) IsQuantity() bool {
	return f == FieldMainQuantity || f == FieldSubQuantity
}

// Row is a line item together with its per-row UI state. Keeping the state on the
// row means adding or removing a row is one structural operation.
type Row struct {
	LineItem
	SearchText         string `json:"search_text"`
	SuggestionsVisible bool   `json:"suggestions_visible"`
	QuantityError      bool   `json:"quantity_error"`
	PriceError         bool   `json:"price_error"`

	// id survives index shifts so deferred tasks never hit a different row.
	id uint64
}

// rowSet is the ordered, positional collection of rows.
type rowSet struct {
	rows   []Row
	nextID uint64
}

func newRowSet() rowSet {
	var rs rowSet
	rs.append()
	return rs
}

func (rs *rowSet) append() int {
	rs.nextID++
	rs.rows = append(rs.rows, Row{
		LineItem: LineItem{
			MainQuantity: decimal.Zero,
			SubQuantity:  decimal.Zero,
			MainPrice:    decimal.Zero,
			SubPrice:     decimal.Zero,
		},
		id: rs.nextID,
	})
	return len(rs.rows) - 1
}

// remove deletes row i. The last remaining row is never removed.
func (rs *rowSet) remove(i int) (Row, bool, error) {
	if err := rs.check(i); err != nil {
		return Row{}, false, err
	}
	if len(rs.rows) == 1 {
		return Row{}, false, nil
	}
	removed := rs.rows[i]
	rs.rows = append(rs.rows[:i], rs.rows[i+1:]...)
	return removed, true, nil
}

func (rs *rowSet) check(i int) error {
	if i < 0 || i >= len(rs.rows) {
		return fmt.Errorf("%w: %d (rows: %d)", ErrRowOutOfRange, i, len(rs.rows))
	}
	return nil
}

func (rs *rowSet) at(i int) (*Row, error) {
	if err := rs.check(i); err != nil {
		return nil, err
	}
	return &rs.rows[i], nil
}

func (rs *rowSet) indexOf(id uint64) int {
	for i := range rs.rows {
		if rs.rows[i].id == id {
			return i
		}
	}
	return -1
}

func (rs *rowSet) items() []LineItem {
	out := make([]LineItem, len(rs.rows))
	for i, r := range rs.rows {
		out[i] = r.LineItem
	}
	return out
}

func (rs *rowSet) snapshot() []Row {
	out := make([]Row, len(rs.rows))
	copy(out, rs.rows)
	return out
}

// set writes value into field and refreshes the single-field error flag.
func (r *Row) set(field Field, value decimal.Decimal) error {
	switch field {
	case FieldMainQuantity:
		r.MainQuantity = value
	case FieldSubQuantity:
		r.SubQuantity = value
	case FieldMainPrice:
		r.MainPrice = value
	case FieldSubPrice:
		r.SubPrice = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if field.IsQuantity() {
		r.QuantityError = r.MainQuantity.IsNegative() || r.SubQuantity.IsNegative()
	} else {
		r.PriceError = r.MainPrice.IsNegative() || r.SubPrice.IsNegative()
	}
	return nil
}
