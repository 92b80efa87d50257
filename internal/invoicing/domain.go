package invoicing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind selects which entry screen an engine serves.
type Kind string

const (
	// KindSales composes invoices issued to customers.
	KindSales Kind = "sales"
	// KindPurchase composes invoices received from suppliers.
	KindPurchase Kind = "purchase"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindSales || k == KindPurchase
}

// PaymentType enumerates how an invoice is settled.
type PaymentType string

const (
	PaymentCash     PaymentType = "cash"
	PaymentDeferred PaymentType = "deferred"
	PaymentPartial  PaymentType = "partial"
)

// Valid reports whether p is a supported payment type.
func (p PaymentType) Valid() bool {
	switch p {
	case PaymentCash, PaymentDeferred, PaymentPartial:
		return true
	}
	return false
}

// AgentType is the sales-only agent commission mode.
type AgentType string

const (
	AgentNone    AgentType = "none"
	AgentInvoice AgentType = "invoice"
	AgentCarton  AgentType = "carton"
)

// Valid reports whether a is a supported agent type.
func (a AgentType) Valid() bool {
	switch a {
	case AgentNone, AgentInvoice, AgentCarton:
		return true
	}
	return false
}

// StatusCompleted is the only status the engine hands to persistence.
const StatusCompleted = "completed"

// Counterparty is a customer or a supplier.
type Counterparty struct {
	ID    int64  `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Phone string `json:"phone,omitempty" yaml:"phone"`
}

// Product is a catalog entry. MainQuantity is the stock known at lookup time.
type Product struct {
	ID           int64           `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Category     string          `json:"category,omitempty" yaml:"category"`
	WarehouseID  int64           `json:"warehouse_id" yaml:"warehouse_id"`
	MainPrice    decimal.Decimal `json:"main_price" yaml:"main_price"`
	SubPrice     decimal.Decimal `json:"sub_price" yaml:"sub_price"`
	MainQuantity decimal.Decimal `json:"main_quantity" yaml:"main_quantity"`
}

// Warehouse is used when rendering printed invoices.
type Warehouse struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ReferenceData is the read-only snapshot an engine works against.
type ReferenceData struct {
	Counterparties []Counterparty `json:"counterparties" yaml:"counterparties"`
	Products       []Product      `json:"products" yaml:"products"`
	Warehouses     []Warehouse    `json:"warehouses" yaml:"warehouses"`
}

// Product returns the product with the given id.
func (r ReferenceData) Product(id int64) (Product, bool) {
	for _, p := range r.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Counterparty returns the counterparty with the given id.
func (r ReferenceData) Counterparty(id int64) (Counterparty, bool) {
	for _, c := range r.Counterparties {
		if c.ID == id {
			return c, true
		}
	}
	return Counterparty{}, false
}

// Warehouse returns the warehouse with the given id.
func (r ReferenceData) Warehouse(id int64) (Warehouse, bool) {
	for _, w := range r.Warehouses {
		if w.ID == id {
			return w, true
		}
	}
	return Warehouse{}, false
}

// LineItem is one invoice row priced in two units.
// A nil ProductID marks an incomplete row.
type LineItem struct {
	ProductID    *int64          `json:"product_id,omitempty"`
	ProductName  string          `json:"product_name"`
	MainQuantity decimal.Decimal `json:"main_quantity"`
	SubQuantity  decimal.Decimal `json:"sub_quantity"`
	MainPrice    decimal.Decimal `json:"main_price"`
	SubPrice     decimal.Decimal `json:"sub_price"`
}

// HasProduct reports whether a product has been selected.
func (li LineItem) HasProduct() bool {
	return li.ProductID != nil
}

// Header holds invoice-level fields. Date is YYYY-MM-DD and Time is HH:MM.
type Header struct {
	CounterpartyID   *int64      `json:"counterparty_id,omitempty"`
	CounterpartyName string      `json:"counterparty_name"`
	Date             string      `json:"date"`
	Time             string      `json:"time"`
	PaymentType      PaymentType `json:"payment_type"`
	AgentType        AgentType   `json:"agent_type,omitempty"`
	Notes            string      `json:"notes,omitempty"`
}

// FlatLine is the persistence shape of a line item: both units collapsed.
type FlatLine struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Draft is what the engine hands to the persistence collaborator.
type Draft struct {
	Kind     Kind            `json:"kind"`
	Header   Header          `json:"header"`
	IssuedAt time.Time       `json:"issued_at"`
	Lines    []FlatLine      `json:"lines"`
	Total    decimal.Decimal `json:"total"`
	Status   string          `json:"status"`

	// StockPolicy is the policy the screen validated with. Empty means StockBlock.
	StockPolicy StockPolicy `json:"stock_policy,omitempty"`
}

// EnforcesStock reports whether persistence must refuse lines that exceed stock.
func (d Draft) EnforcesStock() bool {
	return d.Kind == KindSales && (d.StockPolicy == "" || d.StockPolicy == StockBlock)
}

// Invoice is a persisted draft. It is never mutated after creation.
type Invoice struct {
	ID        int64           `json:"id"`
	Number    string          `json:"number"`
	Kind      Kind            `json:"kind"`
	Header    Header          `json:"header"`
	IssuedAt  time.Time       `json:"issued_at"`
	Lines     []FlatLine      `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

var (
	// ErrInvalidDraft is returned by Commit when validation fails.
	ErrInvalidDraft = errors.New("invoicing: draft has validation errors")
	// ErrRowOutOfRange indicates a row index outside the collection.
	ErrRowOutOfRange = errors.New("invoicing: row index out of range")
	// ErrInvalidPaymentType indicates an unsupported payment type.
	ErrInvalidPaymentType = errors.New("invoicing: invalid payment type")
	// ErrInvalidAgentType indicates an unsupported agent type.
	ErrInvalidAgentType = errors.New("invoicing: invalid agent type")
	// ErrAgentNotSupported is returned when setting an agent on a purchase invoice.
	ErrAgentNotSupported = errors.New("invoicing: agent type applies to sales invoices only")
	// ErrInvalidDate indicates a date or time that does not parse.
	ErrInvalidDate = errors.New("invoicing: invalid date or time")
	// ErrUnknownField indicates an unsupported row field.
	ErrUnknownField = errors.New("invoicing: unknown row field")
	// ErrNotInCatalog indicates a counterparty or product id the catalog does not know.
	ErrNotInCatalog = errors.New("invoicing: not in catalog")
	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("invoicing: engine closed")
)
