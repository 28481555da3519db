package handlers

import (
	"errors"
	"net/http"

	"agendafacil/internal/common"
	"agendafacil/internal/models"
	"agendafacil/internal/repositories"
	"agendafacil/internal/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	defaultReviewLimit = 50
	maxReviewLimit     = 500
)

// ReviewHandlers serves operator endpoints for flagged payments and manual
// re-drives.
type ReviewHandlers struct {
	orderRepo        repositories.OrderRepository
	subscriptionRepo repositories.SubscriptionRepository
	events           services.PaymentEventService
	logger           *zap.Logger
}

func NewReviewHandlers(orderRepo repositories.OrderRepository, subscriptionRepo repositories.SubscriptionRepository, events services.PaymentEventService, logger *zap.Logger) *ReviewHandlers {
	return &ReviewHandlers{
		orderRepo:        orderRepo,
		subscriptionRepo: subscriptionRepo,
		events:           events,
		logger:           logger.Named("ops"),
	}
}

// ListMovements handles GET /v1/ops/review/movements
func (h *ReviewHandlers) ListMovements(c echo.Context) error {
	limit, offset, err := common.ParsePagination(c, defaultReviewLimit, maxReviewLimit)
	if err != nil {
		return common.SendValidationError(c, "pagination", err.Error())
	}

	movements, err := h.orderRepo.ListMovementsNeedingReview(c.Request().Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list flagged movements", zap.Error(err))
		return common.SendServerError(c, "Failed to list movements")
	}
	if movements == nil {
		movements = []*models.PaymentMovement{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"movements": movements,
		"limit":     limit,
		"offset":    offset,
	})
}

// ListSubscriptionPayments handles GET /v1/ops/review/subscription-payments
func (h *ReviewHandlers) ListSubscriptionPayments(c echo.Context) error {
	limit, offset, err := common.ParsePagination(c, defaultReviewLimit, maxReviewLimit)
	if err != nil {
		return common.SendValidationError(c, "pagination", err.Error())
	}

	payments, err := h.subscriptionRepo.ListPaymentsNeedingReview(c.Request().Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list flagged subscription payments", zap.Error(err))
		return common.SendServerError(c, "Failed to list subscription payments")
	}
	if payments == nil {
		payments = []*models.SubscriptionPayment{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"subscription_payments": payments,
		"limit":                 limit,
		"offset":                offset,
	})
}

// Reconcile handles POST /v1/ops/reconcile/:externalId
func (h *ReviewHandlers) Reconcile(c echo.Context) error {
	externalID := c.Param("externalId")
	if err := common.ValidateRequiredString(externalID, "externalId"); err != nil {
		return common.SendValidationError(c, "externalId", err.Error())
	}

	operator, _ := common.OperatorFromContext(c.Request().Context())
	h.logger.Info("manual reconciliation requested", zap.String("external_id", externalID), zap.String("operator", operator))

	outcome, err := h.events.Reconcile(c.Request().Context(), externalID)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, outcome)
	case errors.Is(err, services.ErrGatewayUnavailable):
		return common.SendUpstreamError(c, "Payment gateway unavailable")
	case services.IsTenantConfigError(err):
		return c.JSON(http.StatusUnprocessableEntity, common.CreateErrorResponse("TENANT_CONFIG_ERROR", err.Error(), nil))
	default:
		return common.SendServerError(c, "Reconciliation failed")
	}
}
