package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tenant is a store owner profile. The subscription window lives on the
// profile row itself.
type Tenant struct {
	ID                     uuid.UUID       `json:"id" db:"user_id"`
	BusinessName           string          `json:"business_name" db:"business_name"`
	SubscriptionActive     bool            `json:"subscription_active" db:"subscription_active"`
	SubscriptionPlan       *string         `json:"subscription_plan" db:"subscription_plan"`
	SubscriptionAmount     decimal.Decimal `json:"subscription_amount" db:"subscription_amount"`
	SubscriptionValidUntil *time.Time      `json:"subscription_valid_until" db:"subscription_valid_until"`
}

// ValidAt reports whether the subscription window is still open strictly after now.
func (t *Tenant) ValidAt(now time.Time) bool {
	return t.SubscriptionValidUntil != nil && t.SubscriptionValidUntil.After(now)
}

// PaymentCredential is the gateway access token a tenant collects payments with.
type PaymentCredential struct {
	ID          uuid.UUID `json:"id" db:"id"`
	TenantID    uuid.UUID `json:"tenant_id" db:"tenant_id"`
	AccessToken string    `json:"-" db:"mp_access_token"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
