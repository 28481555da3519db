package repositories

import (
	"context"
	"time"

	"agendafacil/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SubscriptionRepository covers subscription payments and the subscription
// window stored on the tenant profile.
type SubscriptionRepository interface {
	RunInTx(ctx context.Context, fn func(repo SubscriptionRepository) error) error

	GetPaymentByExternalID(ctx context.Context, externalID string) (*models.SubscriptionPayment, error)
	LockPayment(ctx context.Context, id uuid.UUID) (*models.SubscriptionPayment, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, status models.PaymentStatus, paidAt *time.Time, needsReview bool) error
	MarkPaymentChecked(ctx context.Context, id uuid.UUID) error
	ListStalePayments(ctx context.Context, before time.Time, limit int) ([]*models.SubscriptionPayment, error)
	ListPaymentsNeedingReview(ctx context.Context, limit, offset int) ([]*models.SubscriptionPayment, error)

	LockTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)
	ExtendWindow(ctx context.Context, tenant *models.Tenant) error
	DeactivateExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type subscriptionRepo struct {
	db DBTX
}

func NewSubscriptionRepo(db DBTX) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

const subscriptionPaymentColumns = `id, tenant_id, mp_payment_id, amount, status, paid_at, needs_review, created_at, updated_at, last_checked_at`

func scanSubscriptionPayment(row pgx.Row) (*models.SubscriptionPayment, error) {
	p := &models.SubscriptionPayment{}
	err := row.Scan(&p.ID, &p.TenantID, &p.MPPaymentID, &p.Amount, &p.Status, &p.PaidAt, &p.NeedsReview, &p.CreatedAt, &p.UpdatedAt, &p.LastCheckedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *subscriptionRepo) RunInTx(ctx context.Context, fn func(repo SubscriptionRepository) error) error {
	return runInTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&subscriptionRepo{db: tx})
	})
}

func (r *subscriptionRepo) GetPaymentByExternalID(ctx context.Context, externalID string) (*models.SubscriptionPayment, error) {
	query := `SELECT ` + subscriptionPaymentColumns + `
		FROM subscription_payments
		WHERE mp_payment_id = $1
	`
	p, err := scanSubscriptionPayment(r.db.QueryRow(ctx, query, externalID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *subscriptionRepo) LockPayment(ctx context.Context, id uuid.UUID) (*models.SubscriptionPayment, error) {
	query := `SELECT ` + subscriptionPaymentColumns + `
		FROM subscription_payments
		WHERE id = $1
		FOR UPDATE
	`
	p, err := scanSubscriptionPayment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *subscriptionRepo) UpdatePayment(ctx context.Context, id uuid.UUID, status models.PaymentStatus, paidAt *time.Time, needsReview bool) error {
	query := `
		UPDATE subscription_payments
		SET status = $1, paid_at = COALESCE($2, paid_at), needs_review = $3, updated_at = NOW(), last_checked_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.Exec(ctx, query, string(status), paidAt, needsReview, id)
	return err
}

func (r *subscriptionRepo) MarkPaymentChecked(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE subscription_payments SET last_checked_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

func (r *subscriptionRepo) ListStalePayments(ctx context.Context, before time.Time, limit int) ([]*models.SubscriptionPayment, error) {
	query := `SELECT ` + subscriptionPaymentColumns + `
		FROM subscription_payments
		WHERE mp_payment_id IS NOT NULL AND mp_payment_id <> ''
		AND status IN ('created', 'pending')
		AND COALESCE(last_checked_at, updated_at) < $1
		ORDER BY COALESCE(last_checked_at, updated_at) ASC
		LIMIT $2
	`
	return r.listPayments(ctx, query, before, limit)
}

func (r *subscriptionRepo) ListPaymentsNeedingReview(ctx context.Context, limit, offset int) ([]*models.SubscriptionPayment, error) {
	query := `SELECT ` + subscriptionPaymentColumns + `
		FROM subscription_payments
		WHERE needs_review = TRUE
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.listPayments(ctx, query, limit, offset)
}

func (r *subscriptionRepo) listPayments(ctx context.Context, query string, args ...interface{}) ([]*models.SubscriptionPayment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.SubscriptionPayment
	for rows.Next() {
		p, err := scanSubscriptionPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *subscriptionRepo) LockTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	query := `
		SELECT user_id, business_name, subscription_active, subscription_plan, subscription_amount, subscription_valid_until
		FROM user_profile
		WHERE user_id = $1
		FOR UPDATE
	`
	err := r.db.QueryRow(ctx, query, tenantID).Scan(&tenant.ID, &tenant.BusinessName, &tenant.SubscriptionActive, &tenant.SubscriptionPlan, &tenant.SubscriptionAmount, &tenant.SubscriptionValidUntil)
	if err != nil {
		return nil, notFound(err)
	}
	return tenant, nil
}

// ExtendWindow stores the tenant's subscription window. valid_until only ever
// moves forward.
func (r *subscriptionRepo) ExtendWindow(ctx context.Context, tenant *models.Tenant) error {
	query := `
		UPDATE user_profile
		SET subscription_active = $1,
		    subscription_plan = $2,
		    subscription_amount = $3,
		    subscription_valid_until = GREATEST(COALESCE(subscription_valid_until, $4), $4)
		WHERE user_id = $5
	`
	_, err := r.db.Exec(ctx, query, tenant.SubscriptionActive, tenant.SubscriptionPlan, tenant.SubscriptionAmount, tenant.SubscriptionValidUntil, tenant.ID)
	return err
}

func (r *subscriptionRepo) DeactivateExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE user_profile
		SET subscription_active = FALSE
		WHERE subscription_active = TRUE
		AND subscription_valid_until IS NOT NULL
		AND subscription_valid_until < $1
		RETURNING user_id
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
