package invoicing

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	taskDismissCounterparty = "dismiss:counterparty"
	taskFirstErrorNotice    = "notice:first-error"
)

func dismissRowTask(id uint64) string {
	return fmt.Sprintf("dismiss:row:%d", id)
}

// Deps wires an engine to its collaborators. Catalog and Submitter are required.
type Deps struct {
	Catalog   Catalog
	Submitter Submitter
	Printer   Printer
	Notifier  Notifier
	Scheduler Scheduler
	Keymap    *Keymap
	Logger    *slog.Logger
	Now       func() time.Time
	Location  *time.Location
}

// Engine composes one invoice for one entry screen. It is owned by a single caller
// and is not safe for concurrent use.
type Engine struct {
	cfg       Config
	catalog   Catalog
	submitter Submitter
	printer   Printer
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
	loc       *time.Location

	header       Header
	partyVisible bool
	rows         rowSet
	focus        Focus

	tasks      *deferredTasks
	unregister func()
	closed     bool
}

// New constructs an engine in its empty default state.
func New(cfg Config, deps Deps) *Engine {
	e := &Engine{
		cfg:       cfg,
		catalog:   deps.Catalog,
		submitter: deps.Submitter,
		printer:   deps.Printer,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		now:       deps.Now,
		loc:       deps.Location,
		tasks:     newDeferredTasks(deps.Scheduler),
	}
	if e.catalog == nil {
		e.catalog = StaticCatalog{}
	}
	if e.notifier == nil {
		e.notifier = NotifierFunc(func(NoticeKind, string) {})
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	e.logger = e.logger.With(slog.String("kind", string(cfg.Kind)))
	e.reset()
	if deps.Keymap != nil {
		e.unregister = deps.Keymap.Register(e.handleKey)
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Kind returns the screen the engine serves.
func (e *Engine) Kind() Kind { return e.cfg.Kind }

// Reference returns the current catalog snapshot.
func (e *Engine) Reference() ReferenceData { return e.catalog.Reference() }

func (e *Engine) defaultHeader() Header {
	now := e.now().In(e.loc)
	h := Header{
		Date:        now.Format(dateLayout),
		Time:        now.Format(timeLayout),
		PaymentType: PaymentCash,
	}
	if e.cfg.Kind == KindSales {
		h.AgentType = AgentNone
	}
	return h
}

func (e *Engine) reset() {
	e.tasks.cancelAll()
	e.header = e.defaultHeader()
	e.partyVisible = false
	e.rows = newRowSet()
	e.focus = Focus{Target: FocusCounterparty}
}

// Reset discards the draft and returns to one empty row and a default header.
func (e *Engine) Reset() {
	e.reset()
}

// Close cancels pending deferred work and deregisters keyboard shortcuts.
// It is safe to call more than once.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.tasks.close()
	if e.unregister != nil {
		e.unregister()
	}
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool { return e.closed }

// Header returns a copy of the header.
func (e *Engine) Header() Header { return e.header }

// SetDate sets the invoice date (YYYY-MM-DD). An empty value clears it.
func (e *Engine) SetDate(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		if _, err := time.Parse(dateLayout, v); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDate, v)
		}
	}
	e.header.Date = v
	return nil
}

// SetTime sets the invoice time (HH:MM). An empty value means midnight.
func (e *Engine) SetTime(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		if _, err := time.Parse(timeLayout, v); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDate, v)
		}
	}
	e.header.Time = v
	return nil
}

// SetPaymentType sets how the invoice is settled.
func (e *Engine) SetPaymentType(p PaymentType) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentType, p)
	}
	e.header.PaymentType = p
	return nil
}

// SetAgentType sets the agent commission mode. Only sales invoices carry one.
func (e *Engine) SetAgentType(a AgentType) error {
	if e.cfg.Kind != KindSales {
		return ErrAgentNotSupported
	}
	if !a.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAgentType, a)
	}
	e.header.AgentType = a
	return nil
}

// SetNotes sets the free-text notes.
func (e *Engine) SetNotes(v string) {
	e.header.Notes = v
}

// SearchCounterparty records typing in the counterparty field. Typing invalidates
// an earlier selection.
func (e *Engine) SearchCounterparty(text string) {
	e.tasks.cancel(taskDismissCounterparty)
	e.header.CounterpartyName = text
	e.header.CounterpartyID = nil
	e.partyVisible = SuggestionsVisible(text, len(FilterCounterparties(e.Reference().Counterparties, text)))
	e.focus = Focus{Target: FocusCounterparty}
}

// CounterpartySuggestions returns the counterparties matching the typed text.
func (e *Engine) CounterpartySuggestions() []Counterparty {
	return FilterCounterparties(e.Reference().Counterparties, e.header.CounterpartyName)
}

// CounterpartySuggestionsVisible reports whether the counterparty panel is shown.
func (e *Engine) CounterpartySuggestionsVisible() bool { return e.partyVisible }

// SelectCounterparty takes c as the invoice counterparty.
func (e *Engine) SelectCounterparty(c Counterparty) {
	e.tasks.cancel(taskDismissCounterparty)
	id := c.ID
	e.header.CounterpartyID = &id
	e.header.CounterpartyName = c.Name
	e.partyVisible = false
	e.focus = Focus{Row: 0, Target: FocusProduct}
}

// SelectCounterpartyByID selects a counterparty from the catalog.
func (e *Engine) SelectCounterpartyByID(id int64) error {
	c, ok := e.Reference().Counterparty(id)
	if !ok {
		return fmt.Errorf("%w: counterparty %d", ErrNotInCatalog, id)
	}
	e.SelectCounterparty(c)
	return nil
}

// BlurCounterpartySearch schedules the delayed dismissal of the counterparty panel.
func (e *Engine) BlurCounterpartySearch() {
	e.tasks.schedule(taskDismissCounterparty, e.cfg.DismissDelay, func() {
		e.partyVisible = false
	})
}

// Rows returns a copy of the rows.
func (e *Engine) Rows() []Row { return e.rows.snapshot() }

// Len returns the number of rows.
func (e *Engine) Len() int { return len(e.rows.rows) }

// Row returns a copy of row i.
func (e *Engine) Row(i int) (Row, error) {
	r, err := e.rows.at(i)
	if err != nil {
		return Row{}, err
	}
	return *r, nil
}

// AddRow appends an empty row and moves focus to its product field.
func (e *Engine) AddRow() int {
	i := e.rows.append()
	e.focus = Focus{Row: i, Target: FocusProduct}
	return i
}

// RemoveRow removes row i. It reports false without error when only one row is left.
func (e *Engine) RemoveRow(i int) (bool, error) {
	removed, ok, err := e.rows.remove(i)
	if err != nil || !ok {
		return false, err
	}
	e.tasks.cancel(dismissRowTask(removed.id))
	if e.focus.Target != FocusCounterparty && e.focus.Target != FocusNone {
		switch {
		case e.focus.Row == i:
			e.focus = Focus{Row: min(i, e.Len()-1), Target: FocusProduct}
		case e.focus.Row > i:
			e.focus.Row--
		}
	}
	return true, nil
}

// UpdateField sets a numeric field of row i and refreshes that row's error flag.
func (e *Engine) UpdateField(i int, field Field, value decimal.Decimal) error {
	r, err := e.rows.at(i)
	if err != nil {
		return err
	}
	return r.set(field, value)
}

// SearchProduct records typing in the product field of row i. Typing invalidates
// an earlier selection.
func (e *Engine) SearchProduct(i int, text string) error {
	r, err := e.rows.at(i)
	if err != nil {
		return err
	}
	e.tasks.cancel(dismissRowTask(r.id))
	r.SearchText = text
	r.ProductName = text
	r.ProductID = nil
	r.SuggestionsVisible = SuggestionsVisible(text, len(FilterProducts(e.Reference().Products, text)))
	e.focus = Focus{Row: i, Target: FocusProduct}
	return nil
}

// ProductSuggestions returns the products matching the search text of row i.
func (e *Engine) ProductSuggestions(i int) ([]Product, error) {
	r, err := e.rows.at(i)
	if err != nil {
		return nil, err
	}
	return FilterProducts(e.Reference().Products, r.SearchText), nil
}

// SelectProduct takes p for row i. Quantities are kept; prices come from the catalog.
func (e *Engine) SelectProduct(i int, p Product) error {
	r, err := e.rows.at(i)
	if err != nil {
		return err
	}
	e.tasks.cancel(dismissRowTask(r.id))
	id := p.ID
	r.ProductID = &id
	r.ProductName = p.Name
	r.MainPrice = p.MainPrice
	r.SubPrice = p.SubPrice
	r.PriceError = r.MainPrice.IsNegative() || r.SubPrice.IsNegative()
	r.SearchText = p.Name
	r.SuggestionsVisible = false
	e.focus = Focus{Row: i, Target: FocusMainQuantity}
	return nil
}

// SelectProductByID selects a catalog product for row i.
func (e *Engine) SelectProductByID(i int, productID int64) error {
	if err := e.rows.check(i); err != nil {
		return err
	}
	p, ok := e.Reference().Product(productID)
	if !ok {
		return fmt.Errorf("%w: product %d", ErrNotInCatalog, productID)
	}
	return e.SelectProduct(i, p)
}

// BlurProductSearch schedules the delayed dismissal of row i's suggestion panel.
// The dismissal follows the row, not the index.
func (e *Engine) BlurProductSearch(i int) error {
	r, err := e.rows.at(i)
	if err != nil {
		return err
	}
	id := r.id
	e.tasks.schedule(dismissRowTask(id), e.cfg.DismissDelay, func() {
		if idx := e.rows.indexOf(id); idx >= 0 {
			e.rows.rows[idx].SuggestionsVisible = false
		}
	})
	return nil
}

// Focus returns the input that currently has focus.
func (e *Engine) Focus() Focus { return e.focus }

// SetFocus records where the screen moved focus.
func (e *Engine) SetFocus(f Focus) error {
	switch f.Target {
	case FocusNone, FocusCounterparty:
		f.Row = 0
	case FocusProduct, FocusMainQuantity, FocusSubQuantity:
		if err := e.rows.check(f.Row); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invoicing: unknown focus target %q", f.Target)
	}
	e.focus = f
	return nil
}

// LineTotal returns the total of row i.
func (e *Engine) LineTotal(i int) (decimal.Decimal, error) {
	r, err := e.rows.at(i)
	if err != nil {
		return decimal.Zero, err
	}
	return LineTotal(r.LineItem), nil
}

// GrandTotal returns the sum of all line totals.
func (e *Engine) GrandTotal() decimal.Decimal {
	return GrandTotal(e.rows.items())
}

// StockWarning returns the stock check of row i; always OK under StockOff.
func (e *Engine) StockWarning(i int) (StockWarning, error) {
	r, err := e.rows.at(i)
	if err != nil {
		return StockWarning{}, err
	}
	if e.cfg.StockPolicy == StockOff {
		return StockWarning{Level: StockOK}, nil
	}
	return CheckStock(r.LineItem, e.Reference().Products, e.cfg.LowStockThreshold), nil
}

// Validate runs the full validation pass and syncs the per-row error flags with it.
func (e *Engine) Validate() ValidationErrors {
	errs := ValidateAll(e.header, e.rows.items(), e.Reference().Products, e.cfg.rules())
	for i := range e.rows.rows {
		r := &e.rows.rows[i]
		r.QuantityError = errs.Has(rowKey("mainQuantity", i)) || errs.Has(rowKey("subQuantity", i))
		r.PriceError = errs.Has(rowKey("mainPrice", i)) || errs.Has(rowKey("subPrice", i))
	}
	return errs
}
