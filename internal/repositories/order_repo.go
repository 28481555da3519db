package repositories

import (
	"context"
	"encoding/json"
	"time"

	"agendafacil/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderRepository covers orders, their payment movements and comandas.
type OrderRepository interface {
	RunInTx(ctx context.Context, fn func(repo OrderRepository) error) error

	GetMovementByExternalID(ctx context.Context, externalID string) (*models.PaymentMovement, error)
	LockMovement(ctx context.Context, id uuid.UUID) (*models.PaymentMovement, error)
	UpdateMovement(ctx context.Context, id uuid.UUID, status models.PaymentStatus, payload json.RawMessage, needsReview bool) error
	MarkMovementChecked(ctx context.Context, id uuid.UUID) error
	HasOtherApprovedMovement(ctx context.Context, orderID, movementID uuid.UUID) (bool, error)
	ListStaleMovements(ctx context.Context, before time.Time, limit int) ([]*models.PaymentMovement, error)
	ListMovementsNeedingReview(ctx context.Context, limit, offset int) ([]*models.PaymentMovement, error)

	LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	TransitionOrder(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (bool, error)

	CreateComanda(ctx context.Context, comanda *models.Comanda) (bool, error)
}

type orderRepo struct {
	db DBTX
}

func NewOrderRepo(db DBTX) OrderRepository {
	return &orderRepo{db: db}
}

const movementColumns = `id, order_id, tenant_id, mp_payment_id, mp_preference_id, amount, status, payload, needs_review, created_at, updated_at, last_checked_at`

func scanMovement(row pgx.Row) (*models.PaymentMovement, error) {
	m := &models.PaymentMovement{}
	err := row.Scan(&m.ID, &m.OrderID, &m.TenantID, &m.MPPaymentID, &m.MPPreferenceID, &m.Amount, &m.Status, &m.Payload, &m.NeedsReview, &m.CreatedAt, &m.UpdatedAt, &m.LastCheckedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *orderRepo) RunInTx(ctx context.Context, fn func(repo OrderRepository) error) error {
	return runInTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&orderRepo{db: tx})
	})
}

func (r *orderRepo) GetMovementByExternalID(ctx context.Context, externalID string) (*models.PaymentMovement, error) {
	query := `SELECT ` + movementColumns + `
		FROM payment_movements
		WHERE mp_payment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	m, err := scanMovement(r.db.QueryRow(ctx, query, externalID))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (r *orderRepo) LockMovement(ctx context.Context, id uuid.UUID) (*models.PaymentMovement, error) {
	query := `SELECT ` + movementColumns + `
		FROM payment_movements
		WHERE id = $1
		FOR UPDATE
	`
	m, err := scanMovement(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (r *orderRepo) UpdateMovement(ctx context.Context, id uuid.UUID, status models.PaymentStatus, payload json.RawMessage, needsReview bool) error {
	query := `
		UPDATE payment_movements
		SET status = $1, payload = $2, needs_review = $3, updated_at = NOW(), last_checked_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.Exec(ctx, query, string(status), payload, needsReview, id)
	return err
}

// MarkMovementChecked records a gateway lookup that changed nothing, so the
// pending sweep rotates the movement behind rows it has not looked at yet.
func (r *orderRepo) MarkMovementChecked(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE payment_movements SET last_checked_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

func (r *orderRepo) HasOtherApprovedMovement(ctx context.Context, orderID, movementID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM payment_movements
			WHERE order_id = $1 AND id <> $2 AND status = 'approved'
		)
	`
	if err := r.db.QueryRow(ctx, query, orderID, movementID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListStaleMovements returns movements that have a gateway id but never left
// created/pending, least recently checked first.
func (r *orderRepo) ListStaleMovements(ctx context.Context, before time.Time, limit int) ([]*models.PaymentMovement, error) {
	query := `SELECT ` + movementColumns + `
		FROM payment_movements
		WHERE mp_payment_id IS NOT NULL
		AND status IN ('created', 'pending')
		AND COALESCE(last_checked_at, updated_at) < $1
		ORDER BY COALESCE(last_checked_at, updated_at) ASC
		LIMIT $2
	`
	return r.listMovements(ctx, query, before, limit)
}

func (r *orderRepo) ListMovementsNeedingReview(ctx context.Context, limit, offset int) ([]*models.PaymentMovement, error) {
	query := `SELECT ` + movementColumns + `
		FROM payment_movements
		WHERE needs_review = TRUE
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.listMovements(ctx, query, limit, offset)
}

func (r *orderRepo) listMovements(ctx context.Context, query string, args ...interface{}) ([]*models.PaymentMovement, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []*models.PaymentMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *orderRepo) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order := &models.Order{}
	query := `
		SELECT id, tenant_id, customer_name, customer_whatsapp, total, status, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`
	err := r.db.QueryRow(ctx, query, orderID).Scan(&order.ID, &order.TenantID, &order.CustomerName, &order.CustomerWhatsapp, &order.Total, &order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return order, nil
}

// TransitionOrder writes the new status unless the order is already paid, or
// cancelled and the new status is not paid. It reports whether a row changed.
func (r *orderRepo) TransitionOrder(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (bool, error) {
	query := `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		AND status <> 'paid'
		AND (status <> 'cancelled' OR $1 = 'paid')
		AND status <> $1
	`
	tag, err := r.db.Exec(ctx, query, string(status), orderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CreateComanda opens the fulfillment ticket for an order. A second call for
// the same order is a no-op and reports false.
func (r *orderRepo) CreateComanda(ctx context.Context, comanda *models.Comanda) (bool, error) {
	query := `
		INSERT INTO comandas (id, tenant_id, order_id, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (order_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, comanda.ID, comanda.TenantID, comanda.OrderID, comanda.Status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
