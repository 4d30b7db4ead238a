package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/andre-campbell/marketflow/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists the order header and every line in one transaction. Any
// failure rolls the whole order back; no partial order survives.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()
	order.UpdatedAt = order.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, vendor_id, status, currency,
			subtotal_minor, discount_minor, shipping_minor, tax_minor, total_minor,
			address_line1, address_line2, address_city, address_region, address_postal_code, address_country,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
	`, order.ID, order.CustomerID, order.VendorID, order.Status, order.Currency,
		order.SubtotalMinor, order.DiscountMinor, order.ShippingMinor, order.TaxMinor, order.TotalMinor,
		order.Address.Line1, order.Address.Line2, order.Address.City, order.Address.Region,
		order.Address.PostalCode, order.Address.Country, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, sku, name, quantity, unit_price_minor, list_price_minor, line_total_minor)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New().String(), order.ID, item.SKU, item.Name, item.Quantity,
			item.UnitPriceMinor, item.ListPriceMinor, item.LineTotalMinor)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, vendor_id, status, currency,
		       subtotal_minor, discount_minor, shipping_minor, tax_minor, total_minor,
		       address_line1, address_line2, address_city, address_region, address_postal_code, address_country,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &order.CustomerID, &order.VendorID, &order.Status, &order.Currency,
		&order.SubtotalMinor, &order.DiscountMinor, &order.ShippingMinor, &order.TaxMinor, &order.TotalMinor,
		&order.Address.Line1, &order.Address.Line2, &order.Address.City, &order.Address.Region,
		&order.Address.PostalCode, &order.Address.Country,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT sku, name, quantity, unit_price_minor, list_price_minor, line_total_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY sku
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.SKU, &item.Name, &item.Quantity,
			&item.UnitPriceMinor, &item.ListPriceMinor, &item.LineTotalMinor); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, customerID string) ([]domain.Order, error) {
	query := `
		SELECT id, customer_id, vendor_id, status, currency,
		       subtotal_minor, discount_minor, shipping_minor, tax_minor, total_minor,
		       created_at, updated_at
		FROM orders`
	args := []any{}
	if customerID != "" {
		query += ` WHERE customer_id = $1`
		args = append(args, customerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.CustomerID, &order.VendorID, &order.Status, &order.Currency,
			&order.SubtotalMinor, &order.DiscountMinor, &order.ShippingMinor, &order.TaxMinor, &order.TotalMinor,
			&order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, sku, name, quantity, unit_price_minor, list_price_minor, line_total_minor
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.SKU, &item.Name, &item.Quantity,
			&item.UnitPriceMinor, &item.ListPriceMinor, &item.LineTotalMinor); err != nil {
			return nil, err
		}
		orderMap[orderID].Items = append(orderMap[orderID].Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// UpdateStatus flips from -> to with the previous status pinned in the WHERE
// clause; a zero row count means another writer got there first.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, to, time.Now().UTC(), id, from)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, domain.NewTransitionError(string(from), string(to))
	}

	return r.GetByID(ctx, id)
}

// ConfirmPayment flips pending -> confirmed and records the capture in one
// transaction. The conditional flip doubles as the idempotency guard: a
// second capture for the same order finds no pending row and fails with
// ErrOrderNotPending before any stock moves.
func (r *OrderRepository) ConfirmPayment(ctx context.Context, payment *domain.Payment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, domain.OrderStatusConfirmed, payment.CapturedAt, payment.OrderID, domain.OrderStatusPending)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrOrderNotPending
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (order_id, transaction_id, amount_minor, currency, status, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, payment.OrderID, payment.TransactionID, payment.AmountMinor, payment.Currency,
		payment.Status, payment.CapturedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// RevertConfirmation is the compensation for a failed stock commit: the
// status goes back to pending and the payment row is removed, leaving the
// order retryable.
func (r *OrderRepository) RevertConfirmation(ctx context.Context, orderID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE order_id = $1`, orderID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, domain.OrderStatusPending, time.Now().UTC(), orderID, domain.OrderStatusConfirmed)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *OrderRepository) GetPayment(ctx context.Context, orderID string) (*domain.Payment, error) {
	payment := &domain.Payment{}

	err := r.db.QueryRowContext(ctx, `
		SELECT order_id, transaction_id, amount_minor, currency, status, captured_at
		FROM payments
		WHERE order_id = $1
	`, orderID).Scan(&payment.OrderID, &payment.TransactionID, &payment.AmountMinor,
		&payment.Currency, &payment.Status, &payment.CapturedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return payment, nil
}
