package services

import (
	"context"
	"fmt"
	"time"

	"agendafacil/internal/models"
	"agendafacil/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultSubscriptionPlan       = "PROFISSIONAL"
	DefaultSubscriptionPeriodDays = 30
)

// SubscriptionResult describes what one subscription event changed.
type SubscriptionResult struct {
	Status      models.PaymentStatus
	Replay      bool
	NeedsReview bool
	Renewed     bool
	ValidUntil  *time.Time
}

// SubscriptionReconciler applies an authoritative gateway status to a
// subscription payment and extends the tenant's window on approval.
type SubscriptionReconciler interface {
	Reconcile(ctx context.Context, payment *models.SubscriptionPayment, gateway *models.GatewayPayment) (*SubscriptionResult, error)
}

type SubscriptionPolicy struct {
	Plan       string
	PeriodDays int
}

type subscriptionReconciler struct {
	subscriptionRepo repositories.SubscriptionRepository
	notifications    NotificationService
	policy           SubscriptionPolicy
	now              func() time.Time
	logger           *zap.Logger
}

func NewSubscriptionReconciler(subscriptionRepo repositories.SubscriptionRepository, notifications NotificationService, policy SubscriptionPolicy, logger *zap.Logger) SubscriptionReconciler {
	return newSubscriptionReconciler(subscriptionRepo, notifications, policy, time.Now, logger)
}

func newSubscriptionReconciler(subscriptionRepo repositories.SubscriptionRepository, notifications NotificationService, policy SubscriptionPolicy, now func() time.Time, logger *zap.Logger) *subscriptionReconciler {
	if policy.Plan == "" {
		policy.Plan = DefaultSubscriptionPlan
	}
	if policy.PeriodDays <= 0 {
		policy.PeriodDays = DefaultSubscriptionPeriodDays
	}
	return &subscriptionReconciler{
		subscriptionRepo: subscriptionRepo,
		notifications:    notifications,
		policy:           policy,
		now:              now,
		logger:           logger.Named("subscription-reconciler"),
	}
}

// RenewedUntil returns the end of a window renewed at now. Remaining time on
// a still-valid window is carried over.
func RenewedUntil(now time.Time, validUntil *time.Time, periodDays int) time.Time {
	base := now
	if validUntil != nil && validUntil.After(now) {
		base = *validUntil
	}
	return base.Add(time.Duration(periodDays) * 24 * time.Hour)
}

func (r *subscriptionReconciler) Reconcile(ctx context.Context, payment *models.SubscriptionPayment, gateway *models.GatewayPayment) (*SubscriptionResult, error) {
	log := r.logger.With(
		zap.String("external_id", gateway.ID),
		zap.String("subscription_payment_id", payment.ID.String()),
		zap.String("tenant_id", payment.TenantID.String()),
		zap.String("gateway_status", gateway.Status),
	)
	if ref := gateway.MetadataString("user_id"); ref != "" && ref != payment.TenantID.String() {
		log.Warn("gateway tenant reference does not match subscription payment", zap.String("gateway_reference", ref))
	}

	var result *SubscriptionResult
	err := r.subscriptionRepo.RunInTx(ctx, func(repo repositories.SubscriptionRepository) error {
		result = &SubscriptionResult{}
		now := r.now()

		p, err := repo.LockPayment(ctx, payment.ID)
		if err != nil {
			return fmt.Errorf("failed to lock subscription payment: %w", err)
		}
		tenant, err := repo.LockTenant(ctx, p.TenantID)
		if err != nil {
			return fmt.Errorf("failed to lock tenant %s: %w", p.TenantID, err)
		}

		status, renews, recognised := SubscriptionStatus(gateway.Status)
		result.Status = status
		result.NeedsReview = !recognised
		result.ValidUntil = tenant.SubscriptionValidUntil

		// An approval we already recorded never renews twice.
		if p.Status == models.PaymentApproved && (tenant.ValidAt(now) || p.PaidAt != nil) {
			result.Status = p.Status
			result.NeedsReview = p.NeedsReview
			result.Replay = true
			return markChecked(ctx, repo, p.ID)
		}
		if p.Status == status && p.NeedsReview == result.NeedsReview && !renews {
			result.Replay = true
			return markChecked(ctx, repo, p.ID)
		}

		var paidAt *time.Time
		if renews {
			paidAt = &now
		}
		if err := repo.UpdatePayment(ctx, p.ID, status, paidAt, result.NeedsReview); err != nil {
			return fmt.Errorf("failed to update subscription payment: %w", err)
		}
		if !renews {
			return nil
		}

		validUntil := RenewedUntil(now, tenant.SubscriptionValidUntil, r.policy.PeriodDays)
		plan := r.policy.Plan
		tenant.SubscriptionActive = true
		tenant.SubscriptionPlan = &plan
		tenant.SubscriptionAmount = gateway.TransactionAmount
		if tenant.SubscriptionAmount.IsZero() {
			tenant.SubscriptionAmount = p.Amount
		}
		tenant.SubscriptionValidUntil = &validUntil
		if err := repo.ExtendWindow(ctx, tenant); err != nil {
			return fmt.Errorf("failed to extend subscription window: %w", err)
		}

		result.Renewed = true
		result.ValidUntil = &validUntil
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case result.Replay:
		log.Info("subscription event already applied")
	case result.NeedsReview:
		log.Warn("subscription payment flagged for manual review", zap.String("status", string(result.Status)))
	case result.Renewed:
		log.Info("subscription renewed", zap.Time("valid_until", *result.ValidUntil))
	default:
		log.Info("subscription payment updated", zap.String("status", string(result.Status)))
	}

	if result.Renewed {
		n := SubscriptionRenewedNotification(payment.TenantID, *result.ValidUntil, gateway.ID)
		if err := r.notifications.Enqueue(ctx, n); err != nil {
			log.Error("failed to enqueue subscription notification", zap.Error(err))
		}
	}
	return result, nil
}

func markChecked(ctx context.Context, repo repositories.SubscriptionRepository, id uuid.UUID) error {
	if err := repo.MarkPaymentChecked(ctx, id); err != nil {
		return fmt.Errorf("failed to mark subscription payment checked: %w", err)
	}
	return nil
}
