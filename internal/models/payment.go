package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the local vocabulary for a single payment attempt. Values
// outside the declared constants are kept verbatim from the gateway.
type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "created"
	PaymentPending   PaymentStatus = "pending"
	PaymentApproved  PaymentStatus = "approved"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentError     PaymentStatus = "error"
)

// PaymentMovement is one attempt to pay an order. Retries get a new row.
type PaymentMovement struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrderID        uuid.UUID       `json:"order_id" db:"order_id"`
	TenantID       uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	MPPaymentID    *string         `json:"mp_payment_id" db:"mp_payment_id"`
	MPPreferenceID *string         `json:"mp_preference_id" db:"mp_preference_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Status         PaymentStatus   `json:"status" db:"status"`
	Payload        json.RawMessage `json:"payload,omitempty" db:"payload"`
	NeedsReview    bool            `json:"needs_review" db:"needs_review"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	LastCheckedAt  *time.Time      `json:"last_checked_at" db:"last_checked_at"`
}

// SubscriptionPayment is one billing attempt for a tenant's own subscription.
type SubscriptionPayment struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	TenantID      uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	MPPaymentID   string          `json:"mp_payment_id" db:"mp_payment_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Status        PaymentStatus   `json:"status" db:"status"`
	PaidAt        *time.Time      `json:"paid_at" db:"paid_at"`
	NeedsReview   bool            `json:"needs_review" db:"needs_review"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
	LastCheckedAt *time.Time      `json:"last_checked_at" db:"last_checked_at"`
}

// GatewayPayment is the authoritative payment record fetched from Mercado Pago.
type GatewayPayment struct {
	ID                string                 `json:"-"`
	Status            string                 `json:"status"`
	StatusDetail      string                 `json:"status_detail"`
	TransactionAmount decimal.Decimal        `json:"transaction_amount"`
	ExternalReference string                 `json:"external_reference"`
	Metadata          map[string]interface{} `json:"metadata"`
	Raw               json.RawMessage        `json:"-"`
}

// MetadataString returns a metadata value as a string, or "" when absent.
func (p *GatewayPayment) MetadataString(key string) string {
	if p == nil || p.Metadata == nil {
		return ""
	}
	if v, ok := p.Metadata[key].(string); ok {
		return v
	}
	return ""
}
