package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agendafacil/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PushQueueKey is the Redis list the push fan-out service consumes.
const PushQueueKey = "agendafacil:push:queue"

// NotificationService enqueues merchant push notifications. Delivery is done
// by the push fan-out service.
type NotificationService interface {
	Enqueue(ctx context.Context, notification *models.PushNotification) error
}

type notificationService struct {
	redisClient redis.Cmdable
	now         func() time.Time
}

func NewNotificationService(redisClient redis.Cmdable) NotificationService {
	return &notificationService{
		redisClient: redisClient,
		now:         time.Now,
	}
}

func (s *notificationService) Enqueue(ctx context.Context, notification *models.PushNotification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.EnqueuedAt.IsZero() {
		notification.EnqueuedAt = s.now().UTC()
	}

	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal push notification: %w", err)
	}

	if err := s.redisClient.LPush(ctx, PushQueueKey, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to enqueue push notification: %w", err)
	}
	return nil
}

// PaymentApprovedNotification is sent to the merchant when an order is paid.
func PaymentApprovedNotification(tenantID, orderID uuid.UUID, externalID string) *models.PushNotification {
	return &models.PushNotification{
		TenantID: tenantID,
		Kind:     models.NotificationKindPayment,
		Title:    "Pagamento aprovado 💳",
		Body:     fmt.Sprintf("Pedido %s pago e liberado automaticamente.", shortID(orderID)),
		URL:      "/comandas.html",
		EventID:  externalID,
	}
}

// SubscriptionRenewedNotification is sent to the merchant when their plan renews.
func SubscriptionRenewedNotification(tenantID uuid.UUID, validUntil time.Time, externalID string) *models.PushNotification {
	return &models.PushNotification{
		TenantID: tenantID,
		Kind:     models.NotificationKindSubscription,
		Title:    "Assinatura ativada ✅",
		Body:     fmt.Sprintf("Sua assinatura está válida até %s.", validUntil.Format("02/01/2006")),
		URL:      "/assinatura.html",
		EventID:  externalID,
	}
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
