package shipping

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/andre-campbell/marketflow/internal/domain"
)

const uniqueViolation = "23505"

type ShipmentRepository struct {
	db *sql.DB
}

func NewShipmentRepository(db *sql.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

func (r *ShipmentRepository) Create(ctx context.Context, shipment *domain.Shipment) error {
	shipment.ID = uuid.New().String()
	shipment.Status = domain.ShipmentStatusPending
	shipment.CreatedAt = time.Now().UTC()
	shipment.UpdatedAt = shipment.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shipments (id, order_id, customer_id, courier, tracking_number, status, estimated_delivery, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, shipment.ID, shipment.OrderID, shipment.CustomerID, shipment.Courier,
		shipment.TrackingNumber, shipment.Status, shipment.EstimatedDelivery, shipment.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.ErrShipmentExists
		}
		return err
	}

	return nil
}

func (r *ShipmentRepository) GetByID(ctx context.Context, id string) (*domain.Shipment, error) {
	return r.get(ctx, "id", id)
}

func (r *ShipmentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Shipment, error) {
	return r.get(ctx, "order_id", orderID)
}

func (r *ShipmentRepository) get(ctx context.Context, column, value string) (*domain.Shipment, error) {
	shipment := &domain.Shipment{}

	query := `
		SELECT id, order_id, customer_id, courier, tracking_number, status,
		       estimated_delivery, shipped_at, delivered_at, created_at, updated_at
		FROM shipments
		WHERE ` + column + ` = $1`

	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&shipment.ID, &shipment.OrderID, &shipment.CustomerID, &shipment.Courier,
		&shipment.TrackingNumber, &shipment.Status, &shipment.EstimatedDelivery,
		&shipment.ShippedAt, &shipment.DeliveredAt, &shipment.CreatedAt, &shipment.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return shipment, nil
}

// UpdateStatus persists a guarded transition. The WHERE clause pins the
// previous status so two racing updates cannot both win.
func (r *ShipmentRepository) UpdateStatus(ctx context.Context, id string, from, to domain.ShipmentStatus) (*domain.Shipment, error) {
	now := time.Now().UTC()

	var result sql.Result
	var err error

	switch to {
	case domain.ShipmentStatusShipped:
		result, err = r.db.ExecContext(ctx, `
			UPDATE shipments SET status = $1, shipped_at = $2, updated_at = $2
			WHERE id = $3 AND status = $4
		`, to, now, id, from)
	case domain.ShipmentStatusDelivered:
		result, err = r.db.ExecContext(ctx, `
			UPDATE shipments SET status = $1, delivered_at = $2, updated_at = $2
			WHERE id = $3 AND status = $4
		`, to, now, id, from)
	default:
		result, err = r.db.ExecContext(ctx, `
			UPDATE shipments SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
		`, to, now, id, from)
	}
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

// UpdateDetails edits courier and tracking fields while the shipment is
// still pending. Dispatch freezes them.
func (r *ShipmentRepository) UpdateDetails(ctx context.Context, id, courier, trackingNumber string, estimatedDelivery *time.Time) (*domain.Shipment, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE shipments
		SET courier = $1, tracking_number = $2, estimated_delivery = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`, courier, trackingNumber, estimatedDelivery, time.Now().UTC(), id, domain.ShipmentStatusPending)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, domain.ErrShipmentLocked
	}

	return r.GetByID(ctx, id)
}
