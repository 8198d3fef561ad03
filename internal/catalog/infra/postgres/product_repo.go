package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/dwikikusuma/bullion-store/internal/catalog/app"
	"github.com/dwikikusuma/bullion-store/internal/catalog/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const productColumns = `id, name, weight, price_amount, currency, in_stock, created_at, updated_at`

type ProductRepo struct {
	pool *pgxpool.Pool
}

func NewProductRepo(pool *pgxpool.Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func (r *ProductRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate products: %w", err)
	}
	return nil
}

// Seed inserts products that are not stored yet. Existing rows keep their
// price and stock.
func (r *ProductRepo) Seed(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(`
			INSERT INTO products (id, name, weight, price_amount, currency, in_stock)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, p.Name, p.Weight, p.Price.Amount, p.Price.Currency, p.InStock,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	return nil
}

func (r *ProductRepo) Get(ctx context.Context, id string) (domain.Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, app.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

func (r *ProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY price_amount DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Weight,
		&p.Price.Amount,
		&p.Price.Currency,
		&p.InStock,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}
