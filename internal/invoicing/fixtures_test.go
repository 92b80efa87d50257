package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testReference() ReferenceData {
	return ReferenceData{
		Counterparties: []Counterparty{
			{ID: 1, Name: "Ahmed Stores", Phone: "0100"},
			{ID: 2, Name: "Cairo Market"},
		},
		Products: []Product{
			{ID: 1, Name: "Cola Can", Category: "Drinks", WarehouseID: 1, MainPrice: dec("10"), SubPrice: dec("1"), MainQuantity: dec("3")},
			{ID: 2, Name: "Coffee Beans", Category: "Grocery", WarehouseID: 1, MainPrice: dec("50"), SubPrice: dec("5"), MainQuantity: dec("100")},
			{ID: 3, Name: "Bread", Category: "Bakery", WarehouseID: 2, MainPrice: dec("4"), SubPrice: dec("0.5"), MainQuantity: dec("20")},
		},
		Warehouses: []Warehouse{{ID: 1, Name: "Main"}, {ID: 2, Name: "Branch"}},
	}
}

type fakeTask struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

// fakeScheduler records tasks and runs them only when told to.
type fakeScheduler struct {
	tasks []*fakeTask
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	t := &fakeTask{delay: d, f: f}
	s.tasks = append(s.tasks, t)
	return func() bool {
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

// fire runs every task that has not been stopped.
func (s *fakeScheduler) fire() {
	for i := 0; i < len(s.tasks); i++ {
		t := s.tasks[i]
		if t.stopped || t.fired {
			continue
		}
		t.fired = true
		t.f()
	}
}

// runLate runs task i even if it was stopped, as a timer that fired just before Stop.
func (s *fakeScheduler) runLate(i int) {
	s.tasks[i].fired = true
	s.tasks[i].f()
}

func (s *fakeScheduler) live() int {
	n := 0
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type notice struct {
	kind    NoticeKind
	message string
}

type recordingNotifier struct {
	notices []notice
}

func (n *recordingNotifier) Notify(kind NoticeKind, message string) {
	n.notices = append(n.notices, notice{kind: kind, message: message})
}

func (n *recordingNotifier) last() notice {
	if len(n.notices) == 0 {
		return notice{}
	}
	return n.notices[len(n.notices)-1]
}

type fakeSubmitter struct {
	calls  int
	drafts []Draft
	err    error
}

func (s *fakeSubmitter) SubmitInvoice(_ context.Context, draft Draft) (Invoice, error) {
	s.calls++
	s.drafts = append(s.drafts, draft)
	if s.err != nil {
		return Invoice{}, s.err
	}
	return Invoice{
		ID:       int64(s.calls),
		Number:   fmt.Sprintf("SI-202610-%08d", s.calls),
		Kind:     draft.Kind,
		Header:   draft.Header,
		IssuedAt: draft.IssuedAt,
		Lines:    draft.Lines,
		Total:    draft.Total,
		Status:   draft.Status,
	}, nil
}

type fakePrinter struct {
	calls    int
	invoices []Invoice
	kinds    []Kind
	err      error
}

func (p *fakePrinter) Print(_ context.Context, inv Invoice, _ ReferenceData, kind Kind) error {
	p.calls++
	p.invoices = append(p.invoices, inv)
	p.kinds = append(p.kinds, kind)
	return p.err
}

var errStockRecheck = errors.New("stock re-check failed")

type harness struct {
	engine    *Engine
	sched     *fakeScheduler
	notifier  *recordingNotifier
	submitter *fakeSubmitter
	printer   *fakePrinter
	keymap    *Keymap
}

func newHarness(cfg Config) *harness {
	h := &harness{
		sched:     &fakeScheduler{},
		notifier:  &recordingNotifier{},
		submitter: &fakeSubmitter{},
		printer:   &fakePrinter{},
		keymap:    NewKeymap(),
	}
	h.engine = New(cfg, Deps{
		Catalog:   StaticCatalog(testReference()),
		Submitter: h.submitter,
		Printer:   h.printer,
		Notifier:  h.notifier,
		Scheduler: h.sched,
		Keymap:    h.keymap,
		Now:       func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) },
		Location:  time.UTC,
	})
	return h
}
