package handlers

import (
	"errors"
	"io"
	"net/http"

	"agendafacil/internal/common"
	"agendafacil/internal/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// maxWebhookBody caps the callback body we read.
const maxWebhookBody = 1 << 20

// WebhookHandlers handles gateway payment callbacks
type WebhookHandlers struct {
	events services.PaymentEventService
	logger *zap.Logger
}

// NewWebhookHandlers creates a new webhook handlers instance
func NewWebhookHandlers(events services.PaymentEventService, logger *zap.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		events: events,
		logger: logger.Named("webhooks"),
	}
}

// WebhookResponse is the acknowledgement body returned to the gateway.
type WebhookResponse struct {
	OK       bool                 `json:"ok"`
	InFlight bool                 `json:"in_flight,omitempty"`
	Outcome  services.OutcomeKind `json:"outcome,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// MercadoPagoWebhook handles POST /webhooks/mercadopago and its legacy aliases.
//
// Only a body that is not JSON gets 400 and only a transient gateway failure
// gets 502. Every other failure is acknowledged with 200 so the gateway stops
// redelivering; the pending sweep picks those events up.
func (h *WebhookHandlers) MercadoPagoWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return common.SendClientError(c, "Failed to read request body")
	}

	outcome, err := h.events.HandleNotification(c.Request().Context(), body)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, WebhookResponse{
			OK:       true,
			InFlight: outcome.Kind == services.OutcomeInFlight,
			Outcome:  outcome.Kind,
		})
	case errors.Is(err, services.ErrMalformedEvent):
		return common.SendClientError(c, "Invalid notification body")
	case errors.Is(err, services.ErrGatewayUnavailable):
		return common.SendUpstreamError(c, "Payment gateway unavailable")
	case services.IsTenantConfigError(err):
		return c.JSON(http.StatusOK, WebhookResponse{OK: false, Error: "tenant_config_error"})
	default:
		h.logger.Error("payment event failed, acknowledged for sweep", zap.Error(err))
		return c.JSON(http.StatusOK, WebhookResponse{OK: false, Error: "internal_error"})
	}
}
