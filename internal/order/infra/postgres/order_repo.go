package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/dwikikusuma/bullion-store/internal/order/app"
	"github.com/dwikikusuma/bullion-store/internal/order/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func (r *OrderRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate orders: %w", err)
	}
	return nil
}

func (r *OrderRepo) execTX(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %w; rollback err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

// Handoff stores the order and its items in one transaction.
func (r *OrderRepo) Handoff(ctx context.Context, order domain.Order) error {
	return r.execTX(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, currency, subtotal_amount, fee_amount, total_amount,
				payment_method, crypto_currency, crypto_amount, wallet_address, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			order.ID, order.Currency, order.Subtotal, order.Fee, order.Total,
			order.PaymentMethod, order.CryptoCurrency, order.CryptoAmount, order.WalletAddress, order.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		batch := &pgx.Batch{}
		for i, item := range order.OrderItems {
			expected := item.UnitAmount * int64(item.Quantity)
			if item.LineTotalAmount != expected {
				return fmt.Errorf("item %d: line total mismatch", i)
			}
			batch.Queue(`
				INSERT INTO order_items (order_id, position, product_id, name, unit_amount, quantity, line_total_amount)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				order.ID, i, item.ProductID, item.Name, item.UnitAmount, item.Quantity, item.LineTotalAmount,
			)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert items: %w", err)
		}
		return nil
	})
}

func (r *OrderRepo) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, currency, subtotal_amount, fee_amount, total_amount,
			payment_method, crypto_currency, crypto_amount, wallet_address, created_at
		FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.Currency, &o.Subtotal, &o.Fee, &o.Total,
		&o.PaymentMethod, &o.CryptoCurrency, &o.CryptoAmount, &o.WalletAddress, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, app.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT product_id, name, unit_amount, quantity, line_total_amount
		FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order items %s: %w", id, err)
	}

	o.OrderItems, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderItem, error) {
		var it domain.OrderItem
		err := row.Scan(&it.ProductID, &it.Name, &it.UnitAmount, &it.Quantity, &it.LineTotalAmount)
		return it, err
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order items %s: %w", id, err)
	}
	return o, nil
}
