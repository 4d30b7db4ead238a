package carts

import (
	"context"
	"database/sql"
	"time"

	"github.com/andre-campbell/marketflow/internal/domain"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// Get returns the customer's cart. A customer with no lines gets an empty
// cart, not a missing one.
func (r *CartRepository) Get(ctx context.Context, customerID string) (*domain.Cart, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sku, name, vendor_id, quantity, unit_price_minor, list_price_minor, updated_at
		FROM cart_lines
		WHERE customer_id = $1
		ORDER BY sku
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cart := &domain.Cart{CustomerID: customerID, Currency: "USD"}
	for rows.Next() {
		var line domain.CartLine
		var updatedAt time.Time
		if err := rows.Scan(&line.SKU, &line.Name, &line.VendorID, &line.Quantity,
			&line.UnitPriceMinor, &line.ListPriceMinor, &updatedAt); err != nil {
			return nil, err
		}
		if updatedAt.After(cart.UpdatedAt) {
			cart.UpdatedAt = updatedAt
		}
		cart.Lines = append(cart.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cart, nil
}

// Replace swaps the customer's cart for the given lines in one transaction.
func (r *CartRepository) Replace(ctx context.Context, customerID string, lines []domain.CartLine) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE customer_id = $1`, customerID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cart_lines (customer_id, sku, name, vendor_id, quantity, unit_price_minor, list_price_minor, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, customerID, line.SKU, line.Name, line.VendorID, line.Quantity,
			line.UnitPriceMinor, line.ListPriceMinor, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *CartRepository) Clear(ctx context.Context, customerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE customer_id = $1`, customerID)
	return err
}
