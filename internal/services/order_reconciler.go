package services

import (
	"context"
	"fmt"

	"agendafacil/internal/models"
	"agendafacil/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderResult describes what one order event changed.
type OrderResult struct {
	MovementStatus models.PaymentStatus
	OrderStatus    models.OrderStatus
	Replay         bool
	NeedsReview    bool
	Paid           bool
	ComandaID      *uuid.UUID
}

// OrderReconciler applies an authoritative gateway status to an order and its
// payment movement.
type OrderReconciler interface {
	Reconcile(ctx context.Context, movement *models.PaymentMovement, payment *models.GatewayPayment) (*OrderResult, error)
}

type orderReconciler struct {
	orderRepo     repositories.OrderRepository
	notifications NotificationService
	logger        *zap.Logger
}

func NewOrderReconciler(orderRepo repositories.OrderRepository, notifications NotificationService, logger *zap.Logger) OrderReconciler {
	return &orderReconciler{
		orderRepo:     orderRepo,
		notifications: notifications,
		logger:        logger.Named("order-reconciler"),
	}
}

func (r *orderReconciler) Reconcile(ctx context.Context, movement *models.PaymentMovement, payment *models.GatewayPayment) (*OrderResult, error) {
	log := r.logger.With(
		zap.String("external_id", payment.ID),
		zap.String("movement_id", movement.ID.String()),
		zap.String("order_id", movement.OrderID.String()),
		zap.String("tenant_id", movement.TenantID.String()),
		zap.String("gateway_status", payment.Status),
	)
	r.checkReference(log, movement, payment)

	result := &OrderResult{}
	err := r.orderRepo.RunInTx(ctx, func(repo repositories.OrderRepository) error {
		result = &OrderResult{}

		m, err := repo.LockMovement(ctx, movement.ID)
		if err != nil {
			return fmt.Errorf("failed to lock payment movement: %w", err)
		}
		order, err := repo.LockOrder(ctx, m.OrderID)
		if err != nil {
			return fmt.Errorf("failed to lock order %s: %w", m.OrderID, err)
		}

		movStatus, recognised := MovementStatus(payment.Status)
		result.MovementStatus = movStatus
		result.OrderStatus = order.Status
		result.NeedsReview = !recognised

		// A second approved movement on a paid order is a duplicate charge.
		duplicateCharge := false
		if movStatus == models.PaymentApproved && m.Status != models.PaymentApproved && order.Status == models.OrderPaid {
			other, err := repo.HasOtherApprovedMovement(ctx, order.ID, m.ID)
			if err != nil {
				return fmt.Errorf("failed to check approved movements: %w", err)
			}
			duplicateCharge = other
			result.NeedsReview = result.NeedsReview || other
		}

		if m.Status == movStatus && m.NeedsReview == result.NeedsReview {
			result.Replay = true
			if err := repo.MarkMovementChecked(ctx, m.ID); err != nil {
				return fmt.Errorf("failed to mark payment movement checked: %w", err)
			}
			return nil
		}

		if err := repo.UpdateMovement(ctx, m.ID, movStatus, payment.Raw, result.NeedsReview); err != nil {
			return fmt.Errorf("failed to update payment movement: %w", err)
		}
		if duplicateCharge {
			return nil
		}

		orderStatus, _ := OrderStatus(payment.Status)
		changed, err := repo.TransitionOrder(ctx, order.ID, orderStatus)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if !changed {
			return nil
		}
		result.OrderStatus = orderStatus

		if orderStatus != models.OrderPaid {
			return nil
		}

		comanda := &models.Comanda{
			ID:       uuid.New(),
			TenantID: order.TenantID,
			OrderID:  order.ID,
			Status:   models.ComandaOpen,
		}
		created, err := repo.CreateComanda(ctx, comanda)
		if err != nil {
			return fmt.Errorf("failed to open comanda: %w", err)
		}
		result.Paid = true
		if created {
			result.ComandaID = &comanda.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case result.Replay:
		log.Info("order event already applied")
	case result.NeedsReview:
		log.Warn("payment movement flagged for manual review", zap.String("movement_status", string(result.MovementStatus)))
	default:
		log.Info("order reconciled", zap.String("order_status", string(result.OrderStatus)))
	}

	if result.Paid {
		n := PaymentApprovedNotification(movement.TenantID, movement.OrderID, payment.ID)
		if err := r.notifications.Enqueue(ctx, n); err != nil {
			log.Error("failed to enqueue payment notification", zap.Error(err))
		}
	}
	return result, nil
}

// checkReference warns when the gateway's order reference disagrees with the
// movement. The movement wins.
func (r *orderReconciler) checkReference(log *zap.Logger, movement *models.PaymentMovement, payment *models.GatewayPayment) {
	ref := payment.ExternalReference
	if ref == "" {
		ref = payment.MetadataString("pedido_id")
	}
	if ref != "" && ref != movement.OrderID.String() {
		log.Warn("gateway order reference does not match payment movement", zap.String("gateway_reference", ref))
	}
}
