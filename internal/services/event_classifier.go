package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agendafacil/internal/models"
	"agendafacil/internal/repositories"

	"github.com/google/uuid"
)

// Notification is the decoded shape of an inbound gateway callback.
type Notification struct {
	ExternalID string
	Type       string
	Raw        []byte
}

// ParseNotification decodes a callback body and extracts the payment id from
// data.id, then id, then the last segment of resource. A body that is not a
// JSON object yields ErrMalformedEvent; a missing id is not an error.
func ParseNotification(body []byte) (*Notification, error) {
	var payload map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedEvent)
	}

	n := &Notification{Raw: body}
	if t, ok := payload["type"].(string); ok {
		n.Type = t
	} else if t, ok := payload["topic"].(string); ok {
		n.Type = t
	}
	n.ExternalID = ExtractPaymentID(payload)
	return n, nil
}

// ExtractPaymentID returns the first non-empty payment id found in priority
// order, or "".
func ExtractPaymentID(payload map[string]interface{}) string {
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if id := idString(data["id"]); id != "" {
			return id
		}
	}
	if id := idString(payload["id"]); id != "" {
		return id
	}
	if resource, ok := payload["resource"].(string); ok {
		return lastPathSegment(resource)
	}
	return ""
}

// IsPaymentEvent reports whether the notification type allows a payment lookup.
func (n *Notification) IsPaymentEvent() bool {
	return n.Type == "" || n.Type == "payment"
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	case float64:
		return fmt.Sprintf("%.0f", id)
	}
	return ""
}

func lastPathSegment(resource string) string {
	resource = strings.TrimSpace(resource)
	if i := strings.IndexAny(resource, "?#"); i >= 0 {
		resource = resource[:i]
	}
	resource = strings.TrimRight(resource, "/")
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		return resource[i+1:]
	}
	return resource
}

// TargetKind discriminates the two reconciliation targets.
type TargetKind string

const (
	TargetUnknown      TargetKind = "unknown"
	TargetSubscription TargetKind = "subscription"
	TargetOrder        TargetKind = "order"
)

// Target is the classification result. Exactly one of Subscription or
// Movement is set, matching Kind.
type Target struct {
	Kind         TargetKind
	Subscription *models.SubscriptionPayment
	Movement     *models.PaymentMovement
}

// TenantID returns the tenant owning the target, or uuid.Nil when unknown.
func (t Target) TenantID() uuid.UUID {
	switch t.Kind {
	case TargetSubscription:
		return t.Subscription.TenantID
	case TargetOrder:
		return t.Movement.TenantID
	}
	return uuid.Nil
}

// EventClassifier resolves which local record an external payment id belongs to.
type EventClassifier interface {
	Classify(ctx context.Context, externalID string) (Target, error)
}

type eventClassifier struct {
	orderRepo        repositories.OrderRepository
	subscriptionRepo repositories.SubscriptionRepository
}

func NewEventClassifier(orderRepo repositories.OrderRepository, subscriptionRepo repositories.SubscriptionRepository) EventClassifier {
	return &eventClassifier{
		orderRepo:        orderRepo,
		subscriptionRepo: subscriptionRepo,
	}
}

// Classify looks up a subscription payment first and only then an order
// payment movement.
func (c *eventClassifier) Classify(ctx context.Context, externalID string) (Target, error) {
	sub, err := c.subscriptionRepo.GetPaymentByExternalID(ctx, externalID)
	switch {
	case err == nil:
		return Target{Kind: TargetSubscription, Subscription: sub}, nil
	case !errors.Is(err, repositories.ErrNotFound):
		return Target{Kind: TargetUnknown}, fmt.Errorf("failed to look up subscription payment: %w", err)
	}

	mov, err := c.orderRepo.GetMovementByExternalID(ctx, externalID)
	switch {
	case err == nil:
		return Target{Kind: TargetOrder, Movement: mov}, nil
	case !errors.Is(err, repositories.ErrNotFound):
		return Target{Kind: TargetUnknown}, fmt.Errorf("failed to look up payment movement: %w", err)
	}

	return Target{Kind: TargetUnknown}, nil
}
