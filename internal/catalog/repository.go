package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository reads reference data from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ready() error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("catalog: repository not initialised")
	}
	return nil
}

// Customers implements Source.
func (r *Repository) Customers(ctx context.Context) ([]invoicing.Counterparty, error) {
	return r.listParties(ctx, `SELECT id, name, COALESCE(phone,'') FROM pos_customers ORDER BY name, id`)
}

// Suppliers implements Source.
func (r *Repository) Suppliers(ctx context.Context) ([]invoicing.Counterparty, error) {
	return r.listParties(ctx, `SELECT id, name, COALESCE(phone,'') FROM pos_suppliers ORDER BY name, id`)
}

func (r *Repository) listParties(ctx context.Context, query string) ([]invoicing.Counterparty, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []invoicing.Counterparty
	for rows.Next() {
		var c invoicing.Counterparty
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Products implements Source. Numeric columns are read as text to keep full precision.
func (r *Repository) Products(ctx context.Context) ([]invoicing.Product, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	const query = `SELECT id, name, COALESCE(category,''), COALESCE(warehouse_id,0),
main_price::text, sub_price::text, main_quantity::text
FROM pos_products
ORDER BY name, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []invoicing.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Warehouses implements Source.
func (r *Repository) Warehouses(ctx context.Context) ([]invoicing.Warehouse, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM pos_warehouses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []invoicing.Warehouse
	for rows.Next() {
		var w invoicing.Warehouse
		if err := rows.Scan(&w.ID, &w.Name); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Seed upserts a fixture in one transaction. Existing rows keep their ids.
func (r *Repository) Seed(ctx context.Context, f Fixture) error {
	if err := r.ready(); err != nil {
		return err
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, w := range f.Warehouses {
			if _, err := tx.Exec(ctx, `
				INSERT INTO pos_warehouses (id, name) VALUES ($1, $2)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, w.ID, w.Name); err != nil {
				return fmt.Errorf("catalog: seed warehouse %d: %w", w.ID, err)
			}
		}
		for _, c := range f.Customers {
			if _, err := tx.Exec(ctx, `
				INSERT INTO pos_customers (id, name, phone) VALUES ($1, $2, NULLIF($3,''))
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone`, c.ID, c.Name, c.Phone); err != nil {
				return fmt.Errorf("catalog: seed customer %d: %w", c.ID, err)
			}
		}
		for _, s := range f.Suppliers {
			if _, err := tx.Exec(ctx, `
				INSERT INTO pos_suppliers (id, name, phone) VALUES ($1, $2, NULLIF($3,''))
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone`, s.ID, s.Name, s.Phone); err != nil {
				return fmt.Errorf("catalog: seed supplier %d: %w", s.ID, err)
			}
		}
		for _, p := range f.Products {
			var warehouse *int64
			if p.WarehouseID != 0 {
				warehouse = &p.WarehouseID
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO pos_products (id, name, category, warehouse_id, main_price, sub_price, main_quantity)
				VALUES ($1, $2, NULLIF($3,''), $4, $5::numeric, $6::numeric, $7::numeric)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category,
					warehouse_id = EXCLUDED.warehouse_id, main_price = EXCLUDED.main_price,
					sub_price = EXCLUDED.sub_price, main_quantity = EXCLUDED.main_quantity`,
				p.ID, p.Name, p.Category, warehouse,
				p.MainPrice.String(), p.SubPrice.String(), p.MainQuantity.String()); err != nil {
				return fmt.Errorf("catalog: seed product %d: %w", p.ID, err)
			}
		}
		return nil
	})
}

func scanProduct(row pgx.Row) (invoicing.Product, error) {
	var (
		p                        invoicing.Product
		mainPrice, subPrice, qty string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.WarehouseID, &mainPrice, &subPrice, &qty); err != nil {
		return invoicing.Product{}, err
	}
	var err error
	if p.MainPrice, err = decimal.NewFromString(mainPrice); err != nil {
		return invoicing.Product{}, fmt.Errorf("catalog: product %d main price: %w", p.ID, err)
	}
	if p.SubPrice, err = decimal.NewFromString(subPrice); err != nil {
		return invoicing.Product{}, fmt.Errorf("catalog: product %d sub price: %w", p.ID, err)
	}
	if p.MainQuantity, err = decimal.NewFromString(qty); err != nil {
		return invoicing.Product{}, fmt.Errorf("catalog: product %d stock: %w", p.ID, err)
	}
	return p, nil
}
