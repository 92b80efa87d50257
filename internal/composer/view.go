package composer

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

// View is the screen state returned by every composer endpoint.
type View struct {
	SessionID          string                   `json:"session_id"`
	Kind               invoicing.Kind           `json:"kind"`
	Header             invoicing.Header         `json:"header"`
	PartySuggestions   []invoicing.Counterparty `json:"party_suggestions,omitempty"`
	SuggestionsVisible bool                     `json:"party_suggestions_visible"`
	Rows               []RowView                `json:"rows"`
	GrandTotal         decimal.Decimal          `json:"grand_total"`
	GrandTotalText     string                   `json:"grand_total_text"`
	Currency           string                   `json:"currency"`
	MainUnitLabel      string                   `json:"main_unit_label"`
	SubUnitLabel       string                   `json:"sub_unit_label"`
	Focus              invoicing.Focus          `json:"focus"`
	Errors             map[string]string        `json:"errors,omitempty"`
	Notices            []Notice                 `json:"notices"`
	Invoice            *invoicing.Invoice       `json:"invoice,omitempty"`
}

// RowView is one row with its derived values.
type RowView struct {
	invoicing.Row
	Index       int                    `json:"index"`
	LineTotal   decimal.Decimal        `json:"line_total"`
	Stock       invoicing.StockWarning `json:"stock"`
	Suggestions []invoicing.Product    `json:"suggestions,omitempty"`
}

// view must be called with s.mu held.
func (s *Session) view() View {
	e := s.engine
	cfg := e.Config()
	v := View{
		SessionID:          s.ID,
		Kind:               s.Kind,
		Header:             e.Header(),
		SuggestionsVisible: e.CounterpartySuggestionsVisible(),
		GrandTotal:         e.GrandTotal(),
		Currency:           cfg.Currency,
		MainUnitLabel:      cfg.MainUnitLabel,
		SubUnitLabel:       cfg.SubUnitLabel,
		Focus:              e.Focus(),
		Notices:            s.drainNotices(),
	}
	v.GrandTotalText = invoicing.FormatAmount(cfg.Language, v.GrandTotal)
	if v.SuggestionsVisible {
		v.PartySuggestions = e.CounterpartySuggestions()
	}

	rows := e.Rows()
	v.Rows = make([]RowView, 0, len(rows))
	for i, r := range rows {
		rv := RowView{Row: r, Index: i, LineTotal: invoicing.LineTotal(r.LineItem)}
		if w, err := e.StockWarning(i); err == nil {
			rv.Stock = w
		}
		if r.SuggestionsVisible {
			rv.Suggestions, _ = e.ProductSuggestions(i)
		}
		v.Rows = append(v.Rows, rv)
	}
	return v
}
