package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind groups merchant push notifications.
type NotificationKind string

const (
	NotificationKindPayment      NotificationKind = "PAGAMENTO"
	NotificationKindSubscription NotificationKind = "ASSINATURA"
)

// PushNotification is handed to the push fan-out service through the queue.
type PushNotification struct {
	ID         string           `json:"id"`
	TenantID   uuid.UUID        `json:"tenant_id"`
	Kind       NotificationKind `json:"kind"`
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	URL        string           `json:"url"`
	EventID    string           `json:"event_id"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}
