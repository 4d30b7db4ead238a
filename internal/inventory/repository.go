package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/andre-campbell/marketflow/internal/domain"
)

type StockRepository struct {
	db *sql.DB
}

func NewStockRepository(db *sql.DB) *StockRepository {
	return &StockRepository{db: db}
}

func (r *StockRepository) ListAll(ctx context.Context) ([]domain.StockLevel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sku, available, reserved
		FROM stock_levels
		ORDER BY sku
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var levels []domain.StockLevel
	for rows.Next() {
		var level domain.StockLevel
		if err := rows.Scan(&level.SKU, &level.Available, &level.Reserved); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return levels, nil
}

func (r *StockRepository) GetStock(ctx context.Context, sku string) (*domain.StockLevel, error) {
	level := &domain.StockLevel{}

	err := r.db.QueryRowContext(ctx, `
		SELECT sku, available, reserved
		FROM stock_levels
		WHERE sku = $1
	`, sku).Scan(&level.SKU, &level.Available, &level.Reserved)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return level, nil
}

// Reserve holds quantity units for a pending order. The hold is recorded in
// stock_reservations keyed by order and sku, so release and commit only ever
// touch units this order actually holds. The availability check rides on the
// conditional UPDATE, so concurrent reservations on the same sku serialize
// on the row and cannot oversell. Re-reserving for the same order and sku is
// a no-op, which makes redelivered placement events safe.
func (r *StockRepository) Reserve(ctx context.Context, orderID, sku string, quantity int) error {
	if quantity <= 0 {
		return domain.ErrItemQuantityInvalid
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO stock_reservations (order_id, sku, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id, sku) DO NOTHING
	`, orderID, sku, quantity)
	if err != nil {
		return err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		// Already reserved for this order.
		return tx.Commit()
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE stock_levels
		SET available = available - $2, reserved = reserved + $2
		WHERE sku = $1 AND available >= $2
	`, sku, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrInsufficientStock
	}

	return tx.Commit()
}

// Release returns the order's hold on a sku to the sellable pool. Releasing
// an order that holds nothing on the sku is a no-op, so the worker's
// compensation and the cancellation side effect can both call it without
// double-counting.
func (r *StockRepository) Release(ctx context.Context, orderID, sku string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var quantity int
	err = tx.QueryRowContext(ctx, `
		DELETE FROM stock_reservations
		WHERE order_id = $1 AND sku = $2
		RETURNING quantity
	`, orderID, sku).Scan(&quantity)
	if err != nil {
		if err == sql.ErrNoRows {
			return tx.Commit()
		}
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE stock_levels
		SET available = available + $2, reserved = reserved - $2
		WHERE sku = $1 AND reserved >= $2
	`, sku, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("release %s for order %s: reserved pool below %d", sku, orderID, quantity)
	}

	return tx.Commit()
}

// CommitLines consumes the order's reservations for every line inside one
// transaction. A line the order never reserved fails the whole commit, so a
// half-decremented order cannot exist and no other order's hold is spent.
func (r *StockRepository) CommitLines(ctx context.Context, orderID string, lines []domain.StockCommitLine) error {
	if len(lines) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.ErrItemQuantityInvalid
		}

		var reserved int
		err := tx.QueryRowContext(ctx, `
			DELETE FROM stock_reservations
			WHERE order_id = $1 AND sku = $2
			RETURNING quantity
		`, orderID, line.SKU).Scan(&reserved)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("commit %s: order %s holds no reservation: %w", line.SKU, orderID, domain.ErrInsufficientStock)
			}
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE stock_levels
			SET reserved = reserved - $2
			WHERE sku = $1 AND reserved >= $2
		`, line.SKU, reserved)
		if err != nil {
			return err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if rowsAffected == 0 {
			return fmt.Errorf("commit %s: %w", line.SKU, domain.ErrInsufficientStock)
		}
	}

	return tx.Commit()
}
