package services

import "agendafacil/internal/models"

// Gateway status values Mercado Pago reports that carry local meaning.
const (
	gatewayApproved  = "approved"
	gatewayPending   = "pending"
	gatewayRejected  = "rejected"
	gatewayCancelled = "cancelled"
)

var movementStatusByGateway = map[string]models.PaymentStatus{
	gatewayApproved:  models.PaymentApproved,
	gatewayPending:   models.PaymentPending,
	gatewayRejected:  models.PaymentRejected,
	gatewayCancelled: models.PaymentCancelled,
}

var orderStatusByGateway = map[string]models.OrderStatus{
	gatewayApproved:  models.OrderPaid,
	gatewayPending:   models.OrderPendingPayment,
	gatewayRejected:  models.OrderCancelled,
	gatewayCancelled: models.OrderCancelled,
}

// MovementStatus maps a gateway status to the payment movement vocabulary.
// Unrecognised values pass through verbatim with recognised=false.
func MovementStatus(gatewayStatus string) (status models.PaymentStatus, recognised bool) {
	if s, ok := movementStatusByGateway[gatewayStatus]; ok {
		return s, true
	}
	return models.PaymentStatus(gatewayStatus), false
}

// OrderStatus maps a gateway status to the order vocabulary. Unrecognised
// values become payment_error.
func OrderStatus(gatewayStatus string) (status models.OrderStatus, recognised bool) {
	if s, ok := orderStatusByGateway[gatewayStatus]; ok {
		return s, true
	}
	return models.OrderPaymentError, false
}

// SubscriptionStatus maps a gateway status for a subscription payment. Only
// approved renews; every other value is stored as reported.
func SubscriptionStatus(gatewayStatus string) (status models.PaymentStatus, renews bool, recognised bool) {
	s, recognised := MovementStatus(gatewayStatus)
	return s, s == models.PaymentApproved, recognised
}
