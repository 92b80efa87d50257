package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository provides Postgres backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("invoices: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Get loads an invoice with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (invoicing.Invoice, error) {
	if r == nil || r.pool == nil {
		return invoicing.Invoice{}, errors.New("invoices: repository not initialised")
	}
	const header = `SELECT id, number, kind, counterparty_id, counterparty_name, invoice_date::text, invoice_time,
issued_at, payment_type, COALESCE(agent_type,''), COALESCE(notes,''), total::text, status, created_at
FROM pos_invoices WHERE id = $1`
	var (
		inv       invoicing.Invoice
		partyID   int64
		kind      string
		payment   string
		agent     string
		totalText string
	)
	err := r.pool.QueryRow(ctx, header, id).Scan(
		&inv.ID, &inv.Number, &kind, &partyID, &inv.Header.CounterpartyName,
		&inv.Header.Date, &inv.Header.Time, &inv.IssuedAt, &payment, &agent,
		&inv.Header.Notes, &totalText, &inv.Status, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invoicing.Invoice{}, ErrNotFound
		}
		return invoicing.Invoice{}, err
	}
	inv.Kind = invoicing.Kind(kind)
	inv.Header.CounterpartyID = &partyID
	inv.Header.PaymentType = invoicing.PaymentType(payment)
	inv.Header.AgentType = invoicing.AgentType(agent)
	if inv.Total, err = decimal.NewFromString(totalText); err != nil {
		return invoicing.Invoice{}, fmt.Errorf("invoices: total: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT product_id, product_name, quantity::text, price::text, line_total::text
FROM pos_invoice_lines WHERE invoice_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return invoicing.Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line            invoicing.FlatLine
			qty, price, tot string
		)
		if err := rows.Scan(&line.ProductID, &line.ProductName, &qty, &price, &tot); err != nil {
			return invoicing.Invoice{}, err
		}
		if line.Quantity, err = decimal.NewFromString(qty); err != nil {
			return invoicing.Invoice{}, err
		}
		if line.Price, err = decimal.NewFromString(price); err != nil {
			return invoicing.Invoice{}, err
		}
		if line.LineTotal, err = decimal.NewFromString(tot); err != nil {
			return invoicing.Invoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

var partyTables = map[invoicing.Kind]string{
	invoicing.KindSales:    "pos_customers",
	invoicing.KindPurchase: "pos_suppliers",
}

func (r *txRepo) GetCounterparty(ctx context.Context, kind invoicing.Kind, id int64) (invoicing.Counterparty, error) {
	table, ok := partyTables[kind]
	if !ok {
		return invoicing.Counterparty{}, fmt.Errorf("invoices: unknown kind %q", kind)
	}
	var c invoicing.Counterparty
	err := r.tx.QueryRow(ctx, `SELECT id, name, COALESCE(phone,'') FROM `+table+` WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return invoicing.Counterparty{}, fmt.Errorf("%w: %d", ErrUnknownCounterparty, id)
	}
	return c, err
}

func (r *txRepo) GetProductsForUpdate(ctx context.Context, ids []int64) (map[int64]invoicing.Product, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name, main_price::text, sub_price::text, main_quantity::text
FROM pos_products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]invoicing.Product, len(ids))
	for rows.Next() {
		var (
			p                   invoicing.Product
			main, sub, quantity string
		)
		if err := rows.Scan(&p.ID, &p.Name, &main, &sub, &quantity); err != nil {
			return nil, err
		}
		if p.MainPrice, err = decimal.NewFromString(main); err != nil {
			return nil, err
		}
		if p.SubPrice, err = decimal.NewFromString(sub); err != nil {
			return nil, err
		}
		if p.MainQuantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *txRepo) InsertInvoice(ctx context.Context, inv invoicing.Invoice) (invoicing.Invoice, error) {
	var agent *string
	if inv.Header.AgentType != "" {
		a := string(inv.Header.AgentType)
		agent = &a
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO pos_invoices
(number, kind, counterparty_id, counterparty_name, invoice_date, invoice_time, issued_at,
 payment_type, agent_type, notes, total, status)
VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, NULLIF($10,''), $11::numeric, $12)
RETURNING id, created_at`,
		inv.Number, string(inv.Kind), *inv.Header.CounterpartyID, inv.Header.CounterpartyName,
		inv.Header.Date, inv.Header.Time, inv.IssuedAt, string(inv.Header.PaymentType), agent,
		inv.Header.Notes, inv.Total.String(), inv.Status).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return invoicing.Invoice{}, fmt.Errorf("invoices: insert header: %w", err)
	}

	batch := &pgx.Batch{}
	for i, line := range inv.Lines {
		batch.Queue(`INSERT INTO pos_invoice_lines
(invoice_id, line_no, product_id, product_name, quantity, price, line_total)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric)`,
			inv.ID, i+1, line.ProductID, line.ProductName,
			line.Quantity.String(), line.Price.String(), line.LineTotal.String())
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return invoicing.Invoice{}, fmt.Errorf("invoices: insert lines: %w", err)
	}
	return inv, nil
}

func (r *txRepo) AdjustStock(ctx context.Context, productID int64, delta decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE pos_products SET main_quantity = main_quantity + $2::numeric WHERE id = $1`,
		productID, delta.String())
	if err != nil {
		return fmt.Errorf("invoices: adjust stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownProduct, productID)
	}
	return nil
}
