package services

import "errors"

var (
	// ErrMalformedEvent means the callback body is not a JSON object.
	ErrMalformedEvent = errors.New("malformed notification body")

	// ErrCredentialNotConfigured means the tenant has no active gateway credential.
	ErrCredentialNotConfigured = errors.New("payment credential not configured for tenant")
	// ErrCredentialRejected means the gateway refused the tenant's credential.
	ErrCredentialRejected = errors.New("payment credential rejected by gateway")

	// ErrGatewayUnavailable is a transient gateway failure; redelivery may fix it.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayPaymentNotFound means the gateway has no payment with that id.
	ErrGatewayPaymentNotFound = errors.New("payment not found at gateway")
)

// IsTenantConfigError reports whether err stems from a misconfigured tenant.
func IsTenantConfigError(err error) bool {
	return errors.Is(err, ErrCredentialNotConfigured) || errors.Is(err, ErrCredentialRejected)
}
