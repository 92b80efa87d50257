package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/invoices"
	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubLoader struct {
	err error
}

func (l stubLoader) Load(_ context.Context, kind invoicing.Kind) (*catalog.Snapshot, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &catalog.Snapshot{Kind: kind, Data: invoicing.ReferenceData{
		Counterparties: []invoicing.Counterparty{
			{ID: 1, Name: "Walk-in Customer"},
			{ID: 2, Name: "Acme Trading"},
		},
		Products: []invoicing.Product{
			{ID: 10, Name: "Cola Can", WarehouseID: 1, MainPrice: dec("24"), SubPrice: dec("1"), MainQuantity: dec("3")},
			{ID: 11, Name: "Coffee Beans", WarehouseID: 1, MainPrice: dec("350.50"), SubPrice: dec("35.05"), MainQuantity: dec("100")},
		},
		Warehouses: []invoicing.Warehouse{{ID: 1, Name: "Main Store"}},
	}}, nil
}

type stubSubmitter struct {
	mu     sync.Mutex
	drafts []invoicing.Draft
	err    error
}

func (s *stubSubmitter) SubmitInvoice(_ context.Context, d invoicing.Draft) (invoicing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, d)
	if s.err != nil {
		return invoicing.Invoice{}, s.err
	}
	return invoicing.Invoice{
		ID:       int64(len(s.drafts)),
		Number:   fmt.Sprintf("SI-202610-0000BEE%d", len(s.drafts)),
		Kind:     d.Kind,
		Header:   d.Header,
		IssuedAt: d.IssuedAt,
		Lines:    d.Lines,
		Total:    d.Total,
		Status:   d.Status,
	}, nil
}

type stubPrinter struct {
	mu     sync.Mutex
	prints []string
}

func (p *stubPrinter) Print(_ context.Context, inv invoicing.Invoice, _ invoicing.ReferenceData, _ invoicing.Kind) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prints = append(p.prints, inv.Number)
	return nil
}

type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	f    func()
	done bool
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{f: f}
	s.tasks = append(s.tasks, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.done {
			return false
		}
		t.done = true
		return true
	}
}

// fire runs every pending callback the way a timer goroutine would.
func (s *manualScheduler) fire() int {
	s.mu.Lock()
	var due []func()
	for _, t := range s.tasks {
		if !t.done {
			t.done = true
			due = append(due, t.f)
		}
	}
	s.tasks = nil
	s.mu.Unlock()
	for _, f := range due {
		f()
	}
	return len(due)
}

type recorder struct {
	mu       sync.Mutex
	outcomes []string
	sessions int
}

func (r *recorder) RecordCommit(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, kind+":"+outcome)
}

func (r *recorder) SetSessions(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = n
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store     *Store
	router    http.Handler
	sched     *manualScheduler
	submitter *stubSubmitter
	printer   *stubPrinter
	metrics   *recorder
	clock     *clock
}

func newFixture(t *testing.T, loader ReferenceLoader) *fixture {
	t.Helper()
	if loader == nil {
		loader = stubLoader{}
	}
	f := &fixture{
		sched:     &manualScheduler{},
		submitter: &stubSubmitter{},
		printer:   &stubPrinter{},
		metrics:   &recorder{},
		clock:     &clock{now: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)},
	}
	f.store = NewStore(StoreConfig{
		Catalog:   loader,
		Submitter: f.submitter,
		Printer:   f.printer,
		IdleTTL:   10 * time.Minute,
		Scheduler: f.sched,
		Gauge:     f.metrics,
		Location:  time.UTC,
		Now:       f.clock.Now,
	})
	r := chi.NewRouter()
	NewHandler(f.store, f.metrics, nil).MountRoutes(r)
	f.router = r
	t.Cleanup(f.store.CloseAll)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) View {
	t.Helper()
	var v View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (f *fixture) open(t *testing.T, kind string) View {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/sessions", map[string]string{"kind": kind})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeView(t, rec)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	v := f.open(t, "sales")

	require.NotEmpty(t, v.SessionID)
	require.Equal(t, invoicing.KindSales, v.Kind)
	require.Len(t, v.Rows, 1)
	require.Equal(t, "2026-10-18", v.Header.Date)
	require.Equal(t, invoicing.PaymentCash, v.Header.PaymentType)
	require.Equal(t, invoicing.AgentNone, v.Header.AgentType)
	require.Equal(t, "EGP", v.Currency)
	require.Equal(t, "carton", v.MainUnitLabel)
	require.Equal(t, "piece", v.SubUnitLabel)
	require.Empty(t, v.Notices)
	require.Equal(t, 1, f.metrics.sessions)

	sess, err := f.store.Get(v.SessionID)
	require.NoError(t, err)
	require.Equal(t, 1, sess.Listeners())

	rec := f.do(t, http.MethodGet, "/sessions/"+v.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/sessions/"+v.SessionID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 0, sess.Listeners())
	require.Equal(t, 0, f.metrics.sessions)

	rec = f.do(t, http.MethodGet, "/sessions/"+v.SessionID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSessionRejects(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/sessions", map[string]string{"kind": "refund"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"kind"`)

	down := newFixture(t, stubLoader{err: errors.New("connection refused")})
	rec = down.do(t, http.MethodPost, "/sessions", map[string]string{"kind": "sales"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, 0, down.store.Len())
}

func TestComposeAndCommit(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(t, "sales").SessionID
	base := "/sessions/" + id

	rec := f.do(t, http.MethodPost, base+"/counterparty/search", map[string]string{"text": "acme"})
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeView(t, rec)
	require.True(t, v.SuggestionsVisible)
	require.Len(t, v.PartySuggestions, 1)

	rec = f.do(t, http.MethodPost, base+"/counterparty/select", map[string]int64{"id": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	require.Equal(t, "Acme Trading", v.Header.CounterpartyName)
	require.Equal(t, invoicing.Focus{Row: 0, Target: invoicing.FocusProduct}, v.Focus)

	rec = f.do(t, http.MethodPost, base+"/rows/0/select", map[string]int64{"id": 11})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPatch, base+"/rows/0", map[string]string{"field": "mainQuantity", "value": "2"})
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	require.True(t, v.Rows[0].LineTotal.Equal(dec("701")))
	require.Equal(t, "701.00", v.GrandTotalText)
	require.Equal(t, invoicing.StockOK, v.Rows[0].Stock.Level)

	rec = f.do(t, http.MethodPatch, base+"/header", map[string]string{"agent_type": "carton", "notes": "deliver friday"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/commit", map[string]bool{"print": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v = decodeView(t, rec)
	require.NotNil(t, v.Invoice)
	require.Equal(t, "SI-202610-0000BEE1", v.Invoice.Number)
	require.Len(t, v.Rows, 1)
	require.Nil(t, v.Header.CounterpartyID)
	require.Len(t, v.Notices, 1)
	require.Equal(t, invoicing.NoticeSuccess, v.Notices[0].Kind)
	require.Contains(t, v.Notices[0].Message, "701.00 EGP")

	require.Len(t, f.submitter.drafts, 1)
	draft := f.submitter.drafts[0]
	require.True(t, draft.Total.Equal(dec("701")))
	require.Equal(t, invoicing.AgentCarton, draft.Header.AgentType)
	require.Equal(t, []string{"SI-202610-0000BEE1"}, f.printer.prints)
	require.Equal(t, []string{"sales:saved"}, f.metrics.outcomes)
}

func TestCommitInvalidDraft(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(t, "sales").SessionID

	rec := f.do(t, http.MethodPost, "/sessions/"+id+"/commit", map[string]bool{})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	v := decodeView(t, rec)
	require.Equal(t, "a customer must be selected", v.Errors["customer"])
	require.Contains(t, v.Errors, "product_0")
	require.Len(t, v.Notices, 1)
	require.Equal(t, invoicing.NoticeError, v.Notices[0].Kind)
	require.True(t, v.Rows[0].QuantityError)
	require.Empty(t, f.submitter.drafts)
	require.Equal(t, []string{"sales:rejected"}, f.metrics.outcomes)

	require.Equal(t, 1, f.sched.fire())
	v = decodeView(t, f.do(t, http.MethodGet, "/sessions/"+id, nil))
	require.Equal(t, []Notice{{Kind: invoicing.NoticeError, Message: "a customer must be selected"}}, v.Notices)

	v = decodeView(t, f.do(t, http.MethodGet, "/sessions/"+id, nil))
	require.Empty(t, v.Notices)
}

func TestCommitRejectedBySubmitterKeepsDraft(t *testing.T) {
	f := newFixture(t, nil)
	f.submitter.err = fmt.Errorf("%w for Coffee Beans: available 1, requested 2", invoices.ErrInsufficientStock)
	id := f.open(t, "sales").SessionID
	base := "/sessions/" + id

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/counterparty/select", map[string]int64{"id": 1}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/rows/0/select", map[string]int64{"id": 11}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, base+"/rows/0", map[string]string{"field": "mainQuantity", "value": "2"}).Code)

	rec := f.do(t, http.MethodPost, base+"/commit", map[string]bool{"print": false})
	require.Equal(t, http.StatusConflict, rec.Code)
	v := decodeView(t, rec)
	require.Nil(t, v.Invoice)
	require.NotNil(t, v.Header.CounterpartyID)
	require.True(t, v.Rows[0].MainQuantity.Equal(dec("2")))
	require.Len(t, v.Notices, 1)
	require.Contains(t, v.Notices[0].Message, "insufficient stock for Coffee Beans")
	require.Empty(t, f.printer.prints)
	require.Equal(t, []string{"sales:rejected"}, f.metrics.outcomes)

	f.submitter.err = errors.New("pool closed")
	rec = f.do(t, http.MethodPost, base+"/commit", map[string]bool{"print": false})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, []string{"sales:rejected", "sales:failed"}, f.metrics.outcomes)
}

func TestStockWarningAndValidate(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(t, "sales").SessionID
	base := "/sessions/" + id

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/rows/0/select", map[string]int64{"id": 10}).Code)
	v := decodeView(t, f.do(t, http.MethodPatch, base+"/rows/0", map[string]string{"field": "mainQuantity", "value": "4"}))
	require.Equal(t, invoicing.StockExceeded, v.Rows[0].Stock.Level)
	require.Empty(t, v.Errors)

	rec := f.do(t, http.MethodPost, base+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	require.Contains(t, v.Errors, "stock_0")
	require.Contains(t, v.Errors, "customer")
	require.NotContains(t, v.Errors, "product_0")

	purchase := f.open(t, "purchase").SessionID
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/sessions/"+purchase+"/rows/0/select", map[string]int64{"id": 10}).Code)
	v = decodeView(t, f.do(t, http.MethodPatch, "/sessions/"+purchase+"/rows/0", map[string]string{"field": "mainQuantity", "value": "40"}))
	require.Equal(t, invoicing.StockOK, v.Rows[0].Stock.Level)
}

func TestRowEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(t, "sales").SessionID
	base := "/sessions/" + id

	rec := f.do(t, http.MethodDelete, base+"/rows/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var removed removeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &removed))
	require.False(t, removed.Removed)
	require.Len(t, removed.Rows, 1)

	rec = f.do(t, http.MethodPost, base+"/rows", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	v := decodeView(t, rec)
	require.Len(t, v.Rows, 2)
	require.Equal(t, invoicing.Focus{Row: 1, Target: invoicing.FocusProduct}, v.Focus)

	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, base+"/rows/5", map[string]string{"field": "mainPrice", "value": "1"}).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, base+"/rows/x", map[string]string{"field": "mainPrice", "value": "1"}).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, base+"/rows/0", map[string]string{"field": "discount", "value": "1"}).Code)
	require.Equal(t, http.StatusUnprocessableEntity, f.do(t, http.MethodPost, base+"/rows/0/select", map[string]int64{"id": 99}).Code)

	rec = f.do(t, http.MethodDelete, base+"/rows/0", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &removed))
	require.True(t, removed.Removed)
	require.Len(t, removed.Rows, 1)
}

func TestHeaderValidation(t *testing.T) {
	f := newFixture(t, nil)
	sales := f.open(t, "sales").SessionID
	purchase := f.open(t, "purchase").SessionID

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/sessions/"+sales+"/header", map[string]string{"payment_type": "barter"}).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/sessions/"+sales+"/header", map[string]string{"date": "18/10/2026"}).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/sessions/"+purchase+"/header", map[string]string{"agent_type": "carton"}).Code)

	v := decodeView(t, f.do(t, http.MethodPatch, "/sessions/"+sales+"/header", map[string]string{"date": "2026-10-17", "time": "", "payment_type": "deferred"}))
	require.Equal(t, "2026-10-17", v.Header.Date)
	require.Empty(t, v.Header.Time)
	require.Equal(t, invoicing.PaymentDeferred, v.Header.PaymentType)
}

func TestBlurDismissesSuggestionsLater(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(t, "sales").SessionID
	base := "/sessions/" + id

	v := decodeView(t, f.do(t, http.MethodPost, base+"/rows/0/search", map[string]string{"text": "co"}))
	require.True(t, v.Rows[0].SuggestionsVisible)
	require.Len(t, v.Rows[0].Suggestions, 2)

	v = decodeView(t, f.do(t, http.MethodPost, base+"/rows/0/blur", nil))
	require.True(t, v.Rows[0].SuggestionsVisible)

	require.Equal(t, 1, f.sched.fire())
	v = decodeView(t, f.do(t, http.MethodGet, base, nil))
	require.False(t, v.Rows[0].SuggestionsVisible)
	require.Empty(t, v.Rows[0].Suggestions)
}

func TestKeys(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(t, "sales").SessionID
	base := "/sessions/" + id

	rec := f.do(t, http.MethodPost, base+"/keys", map[string]any{"key": "Enter", "focus": map[string]any{"row": 0, "target": "product"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp keyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Handled)
	require.Len(t, resp.Rows, 2)

	rec = f.do(t, http.MethodPost, base+"/keys", map[string]any{"key": "f5"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Handled)

	rec = f.do(t, http.MethodPost, base+"/keys", map[string]any{"key": "s", "ctrl": true})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, []string{"sales:rejected"}, f.metrics.outcomes)
}

func TestResetAndFocus(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(t, "sales").SessionID
	base := "/sessions/" + id

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, base+"/rows", nil).Code)
	v := decodeView(t, f.do(t, http.MethodPost, base+"/focus", map[string]any{"row": 1, "target": "mainQuantity"}))
	require.Equal(t, invoicing.Focus{Row: 1, Target: invoicing.FocusMainQuantity}, v.Focus)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, base+"/focus", map[string]any{"row": 4, "target": "product"}).Code)

	v = decodeView(t, f.do(t, http.MethodPost, base+"/reset", nil))
	require.Len(t, v.Rows, 1)
	require.Equal(t, invoicing.Focus{Target: invoicing.FocusCounterparty}, v.Focus)
}

func TestSweepClosesIdleSessions(t *testing.T) {
	f := newFixture(t, nil)
	idle := f.open(t, "sales").SessionID
	busy := f.open(t, "purchase").SessionID
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/sessions/"+idle+"/rows/0/blur", nil).Code)
	sess, err := f.store.Get(idle)
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/sessions/"+busy, nil).Code)
	f.clock.Advance(6 * time.Minute)

	require.Equal(t, 1, f.store.Sweep())
	require.Equal(t, 1, f.store.Len())
	require.Equal(t, 1, f.metrics.sessions)
	require.Equal(t, 0, sess.Listeners())

	// The pending dismissal must not touch the closed engine.
	f.sched.fire()
	_, err = sess.Do(nil)
	require.ErrorIs(t, err, ErrSessionClosed)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/sessions/"+idle, nil).Code)
}

func TestSweepDoesNotWaitOnBusySession(t *testing.T) {
	f := newFixture(t, nil)
	idle := f.open(t, "sales").SessionID
	f.clock.Advance(20 * time.Minute)
	busyID := f.open(t, "purchase").SessionID
	busy, err := f.store.Get(busyID)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)

	// Held as during a commit that waits on the database.
	busy.mu.Lock()
	defer busy.mu.Unlock()

	done := make(chan int, 1)
	go func() { done <- f.store.Sweep() }()
	select {
	case n := <-done:
		require.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("sweep blocked on a busy session")
	}
	require.Equal(t, 1, f.store.Len())
	_, err = f.store.Get(busyID)
	require.NoError(t, err)
	_, err = f.store.Get(idle)
	require.ErrorIs(t, err, ErrSessionNotFound)
}
