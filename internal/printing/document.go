// Package printing renders persisted invoices into PDF and spreadsheet artefacts.
package printing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

// Document is the print model shared by the HTML template and the workbook exporter.
type Document struct {
	Title       string
	PartyLabel  string
	Invoice     invoicing.Invoice
	Party       invoicing.Counterparty
	Lines       []DocumentLine
	Currency    string
	MainUnit    string
	SubUnit     string
	ShowAgent   bool
	GeneratedAt time.Time

	lang language.Tag
}

// DocumentLine is one printed row.
type DocumentLine struct {
	No        int
	Product   string
	Warehouse string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Total     decimal.Decimal
}

// Amount formats a money value in the document locale.
func (d Document) Amount(v decimal.Decimal) string {
	return invoicing.FormatAmount(d.lang, v)
}

// QuantityHeader titles the quantity column with the unit labels of the screen,
// e.g. "Quantity (carton/piece)". Printed quantities are main plus sub units.
func (d Document) QuantityHeader() string {
	units := make([]string, 0, 2)
	for _, u := range []string{d.MainUnit, d.SubUnit} {
		if u != "" {
			units = append(units, u)
		}
	}
	if len(units) == 0 {
		return "Quantity"
	}
	return "Quantity (" + strings.Join(units, "/") + ")"
}

// BaseName is the file name stem shared by every artefact of the invoice.
func (d Document) BaseName() string {
	return d.Invoice.Number
}

// BuildDocument resolves names against the reference data. Lines whose product or
// warehouse is no longer in the catalog keep the name stored on the invoice.
func BuildDocument(inv invoicing.Invoice, ref invoicing.ReferenceData, cfg invoicing.Config, now time.Time) Document {
	doc := Document{
		Title:       "Sales Invoice",
		PartyLabel:  "Customer",
		Invoice:     inv,
		Party:       invoicing.Counterparty{Name: inv.Header.CounterpartyName},
		Currency:    cfg.Currency,
		MainUnit:    cfg.MainUnitLabel,
		SubUnit:     cfg.SubUnitLabel,
		ShowAgent:   inv.Kind == invoicing.KindSales && inv.Header.AgentType != "" && inv.Header.AgentType != invoicing.AgentNone,
		GeneratedAt: now,
		lang:        cfg.Language,
	}
	if inv.Kind == invoicing.KindPurchase {
		doc.Title, doc.PartyLabel = "Purchase Invoice", "Supplier"
	}
	if inv.Header.CounterpartyID != nil {
		if c, ok := ref.Counterparty(*inv.Header.CounterpartyID); ok {
			doc.Party.ID, doc.Party.Phone = c.ID, c.Phone
		}
	}
	for i, l := range inv.Lines {
		line := DocumentLine{
			No:       i + 1,
			Product:  l.ProductName,
			Quantity: l.Quantity,
			Price:    l.Price,
			Total:    l.LineTotal,
		}
		if p, ok := ref.Product(l.ProductID); ok {
			if w, ok := ref.Warehouse(p.WarehouseID); ok {
				line.Warehouse = w.Name
			}
		}
		doc.Lines = append(doc.Lines, line)
	}
	return doc
}
