package invoices

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

type memoryRepo struct {
	customers map[int64]invoicing.Counterparty
	suppliers map[int64]invoicing.Counterparty
	products  map[int64]invoicing.Product
	invoices  []invoicing.Invoice
	nextID    int64
}

type memoryTx struct {
	repo     *memoryRepo
	products map[int64]invoicing.Product
	invoices []invoicing.Invoice
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		customers: map[int64]invoicing.Counterparty{1: {ID: 1, Name: "Acme Trading"}},
		suppliers: map[int64]invoicing.Counterparty{7: {ID: 7, Name: "Delta Beverages"}},
		products: map[int64]invoicing.Product{
			10: {ID: 10, Name: "Cola Can", MainPrice: decimal.NewFromInt(24), SubPrice: decimal.NewFromInt(1), MainQuantity: decimal.NewFromInt(3)},
			11: {ID: 11, Name: "Coffee Beans", MainPrice: decimal.NewFromInt(350), SubPrice: decimal.NewFromInt(35), MainQuantity: decimal.NewFromInt(100)},
		},
	}
}

// WithTx stages writes and applies them only when fn succeeds.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, products: make(map[int64]invoicing.Product, len(r.products)), nextID: r.nextID}
	for id, p := range r.products {
		tx.products[id] = p
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.products = tx.products
	r.invoices = append(r.invoices, tx.invoices...)
	r.nextID = tx.nextID
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (invoicing.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.ID == id {
			return inv, nil
		}
	}
	return invoicing.Invoice{}, ErrNotFound
}

func (t *memoryTx) GetCounterparty(_ context.Context, kind invoicing.Kind, id int64) (invoicing.Counterparty, error) {
	parties := t.repo.customers
	if kind == invoicing.KindPurchase {
		parties = t.repo.suppliers
	}
	c, ok := parties[id]
	if !ok {
		return invoicing.Counterparty{}, fmt.Errorf("%w: %d", ErrUnknownCounterparty, id)
	}
	return c, nil
}

func (t *memoryTx) GetProductsForUpdate(_ context.Context, ids []int64) (map[int64]invoicing.Product, error) {
	out := make(map[int64]invoicing.Product)
	for _, id := range ids {
		if p, ok := t.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memoryTx) InsertInvoice(_ context.Context, inv invoicing.Invoice) (invoicing.Invoice, error) {
	t.nextID++
	inv.ID = t.nextID
	inv.CreatedAt = time.Date(2026, 10, 18, 9, 31, 0, 0, time.UTC)
	t.invoices = append(t.invoices, inv)
	return inv, nil
}

func (t *memoryTx) AdjustStock(_ context.Context, productID int64, delta decimal.Decimal) error {
	p := t.products[productID]
	p.MainQuantity = p.MainQuantity.Add(delta)
	t.products[productID] = p
	return nil
}

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return c.err
}

func ptr(v int64) *int64 { return &v }

func line(id int64, name string, qty, price int64) invoicing.FlatLine {
	q, p := decimal.NewFromInt(qty), decimal.NewFromInt(price)
	return invoicing.FlatLine{ProductID: id, ProductName: name, Quantity: q, Price: p, LineTotal: q.Mul(p)}
}

func draft(kind invoicing.Kind, party int64, lines ...invoicing.FlatLine) invoicing.Draft {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return invoicing.Draft{
		Kind: kind,
		Header: invoicing.Header{
			CounterpartyID:   ptr(party),
			CounterpartyName: "typed name",
			Date:             "2026-10-18",
			Time:             "09:30",
			PaymentType:      invoicing.PaymentCash,
		},
		IssuedAt: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
		Lines:    lines,
		Total:    total,
		Status:   invoicing.StatusCompleted,
	}
}

func TestSubmitSalesInvoiceDecrementsStock(t *testing.T) {
	repo := newMemoryRepo()
	inval := &countingInvalidator{}
	svc := NewService(repo, inval, nil)

	inv, err := svc.SubmitInvoice(context.Background(), draft(invoicing.KindSales, 1,
		line(10, "Cola Can", 2, 24), line(11, "Coffee Beans", 5, 350)))
	require.NoError(t, err)
	require.Equal(t, int64(1), inv.ID)
	require.Regexp(t, `^SI-202610-[0-9A-F]{8}$`, inv.Number)
	require.Equal(t, "Acme Trading", inv.Header.CounterpartyName)
	require.True(t, decimal.NewFromInt(1798).Equal(inv.Total))
	require.False(t, inv.CreatedAt.IsZero())

	require.True(t, decimal.NewFromInt(1).Equal(repo.products[10].MainQuantity))
	require.True(t, decimal.NewFromInt(95).Equal(repo.products[11].MainQuantity))
	require.Len(t, repo.invoices, 1)
	require.Equal(t, 1, inval.calls)
}

func TestSubmitPurchaseInvoiceIncrementsStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	inv, err := svc.SubmitInvoice(context.Background(), draft(invoicing.KindPurchase, 7, line(10, "Cola Can", 12, 20)))
	require.NoError(t, err)
	require.Regexp(t, `^PI-202610-`, inv.Number)
	require.Equal(t, "Delta Beverages", inv.Header.CounterpartyName)
	require.True(t, decimal.NewFromInt(15).Equal(repo.products[10].MainQuantity))
}

func TestSubmitChecksStockAcrossLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.SubmitInvoice(context.Background(), draft(invoicing.KindSales, 1,
		line(10, "Cola Can", 2, 24), line(10, "Cola Can", 2, 24)))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.EqualError(t, err, "insufficient stock for Cola Can: available 3, requested 4")
	require.Empty(t, repo.invoices)
	require.True(t, decimal.NewFromInt(3).Equal(repo.products[10].MainQuantity))
}

func TestSubmitWarnPolicyAllowsOverstockSale(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	d := draft(invoicing.KindSales, 1, line(10, "Cola Can", 5, 24))
	d.StockPolicy = invoicing.StockWarn
	_, err := svc.SubmitInvoice(context.Background(), d)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(-2).Equal(repo.products[10].MainQuantity))

	d.StockPolicy = invoicing.StockBlock
	_, err = svc.SubmitInvoice(context.Background(), d)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestEngineWarnPolicyCommitsOverstockSale(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ref := invoicing.ReferenceData{Counterparties: []invoicing.Counterparty{repo.customers[1]}}
	for _, p := range repo.products {
		ref.Products = append(ref.Products, p)
	}

	cfg := invoicing.SalesConfig()
	cfg.StockPolicy = invoicing.StockWarn
	e := invoicing.New(cfg, invoicing.Deps{
		Catalog:   invoicing.StaticCatalog(ref),
		Submitter: svc,
		Now:       func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) },
		Location:  time.UTC,
	})
	t.Cleanup(e.Close)

	require.NoError(t, e.SelectCounterpartyByID(1))
	require.NoError(t, e.SelectProductByID(0, 10))
	require.NoError(t, e.UpdateField(0, invoicing.FieldMainQuantity, decimal.NewFromInt(5)))
	require.Empty(t, e.Validate())

	inv, err := e.Commit(context.Background(), false)
	require.NoError(t, err)
	require.Regexp(t, `^SI-202610-`, inv.Number)
	require.True(t, decimal.NewFromInt(-2).Equal(repo.products[10].MainQuantity))
}

func TestSubmitPurchaseIgnoresStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.SubmitInvoice(context.Background(), draft(invoicing.KindPurchase, 7, line(10, "Cola Can", 50, 20)))
	require.NoError(t, err)
}

func TestSubmitRejects(t *testing.T) {
	cases := []struct {
		name  string
		draft invoicing.Draft
		want  error
	}{
		{"empty", draft(invoicing.KindSales, 1), ErrEmptyInvoice},
		{"unknown customer", draft(invoicing.KindSales, 99, line(10, "Cola Can", 1, 24)), ErrUnknownCounterparty},
		{"supplier on sales", draft(invoicing.KindSales, 7, line(10, "Cola Can", 1, 24)), ErrUnknownCounterparty},
		{"unknown product", draft(invoicing.KindSales, 1, line(404, "Ghost", 1, 1)), ErrUnknownProduct},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryRepo()
			_, err := NewService(repo, nil, nil).SubmitInvoice(context.Background(), tc.draft)
			require.ErrorIs(t, err, tc.want)
			require.Empty(t, repo.invoices)
		})
	}

	noParty := draft(invoicing.KindSales, 1, line(10, "Cola Can", 1, 24))
	noParty.Header.CounterpartyID = nil
	_, err := NewService(newMemoryRepo(), nil, nil).SubmitInvoice(context.Background(), noParty)
	require.ErrorIs(t, err, ErrUnknownCounterparty)
}

func TestSubmitKeepsInvoiceWhenInvalidationFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &countingInvalidator{err: errors.New("redis down")}, nil)

	_, err := svc.SubmitInvoice(context.Background(), draft(invoicing.KindSales, 1, line(11, "Coffee Beans", 1, 350)))
	require.NoError(t, err)
	require.Len(t, repo.invoices, 1)
}

func TestSubmitStampsMissingIssueTime(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC) }

	d := draft(invoicing.KindSales, 1, line(11, "Coffee Beans", 1, 350))
	d.IssuedAt = time.Time{}
	inv, err := svc.SubmitInvoice(context.Background(), d)
	require.NoError(t, err)
	require.Regexp(t, `^SI-202501-`, inv.Number)
	require.Equal(t, 2025, inv.IssuedAt.Year())
}

func TestGet(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	saved, err := svc.SubmitInvoice(context.Background(), draft(invoicing.KindSales, 1, line(11, "Coffee Beans", 1, 350)))
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), saved.ID)
	require.NoError(t, err)
	require.Equal(t, saved.Number, got.Number)

	_, err = svc.Get(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewNumberIsUnique(t *testing.T) {
	at := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n := NewNumber(invoicing.KindSales, at)
		require.False(t, seen[n])
		seen[n] = true
	}
}
