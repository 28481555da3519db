package services

import (
	"context"
	"errors"
	"fmt"

	"agendafacil/internal/caching"
	"agendafacil/internal/metrics"

	"go.uber.org/zap"
)

// OutcomeKind summarises what processing one event did.
type OutcomeKind string

const (
	OutcomeApplied     OutcomeKind = "applied"
	OutcomeReplay      OutcomeKind = "replay"
	OutcomeIgnored     OutcomeKind = "ignored"
	OutcomeInFlight    OutcomeKind = "in_flight"
	OutcomeNeedsReview OutcomeKind = "needs_review"
)

type Outcome struct {
	Kind          OutcomeKind `json:"kind"`
	ExternalID    string      `json:"external_id,omitempty"`
	Target        TargetKind  `json:"target,omitempty"`
	GatewayStatus string      `json:"gateway_status,omitempty"`
	Applied       bool        `json:"applied"`
	ArchiveKey    string      `json:"archive_key,omitempty"`
}

// PaymentEventService runs one gateway event through classification, the
// authoritative gateway lookup and the matching reconciler.
type PaymentEventService interface {
	// HandleNotification processes a raw callback body.
	HandleNotification(ctx context.Context, body []byte) (*Outcome, error)
	// Reconcile processes a known external payment id, as the sweep and
	// operators do.
	Reconcile(ctx context.Context, externalID string) (*Outcome, error)
}

type paymentEventService struct {
	classifier    EventClassifier
	credentials   CredentialService
	gateway       PaymentGateway
	orders        OrderReconciler
	subscriptions SubscriptionReconciler
	lock          caching.EventLock
	archive       EventArchive
	logger        *zap.Logger
}

// NewPaymentEventService wires the pipeline. lock and archive may be nil.
func NewPaymentEventService(
	classifier EventClassifier,
	credentials CredentialService,
	gateway PaymentGateway,
	orders OrderReconciler,
	subscriptions SubscriptionReconciler,
	lock caching.EventLock,
	archive EventArchive,
	logger *zap.Logger,
) PaymentEventService {
	if lock == nil {
		lock = caching.NoopEventLock{}
	}
	return &paymentEventService{
		classifier:    classifier,
		credentials:   credentials,
		gateway:       gateway,
		orders:        orders,
		subscriptions: subscriptions,
		lock:          lock,
		archive:       archive,
		logger:        logger.Named("payment-events"),
	}
}

func (s *paymentEventService) HandleNotification(ctx context.Context, body []byte) (outcome *Outcome, err error) {
	defer func() {
		metrics.WebhookEvents.WithLabelValues(OutcomeLabel(outcome, err)).Inc()
	}()

	n, err := ParseNotification(body)
	if err != nil {
		s.logger.Info("rejected malformed notification", zap.Error(err))
		return nil, err
	}

	archiveKey := s.store(ctx, n)

	if !n.IsPaymentEvent() {
		s.logger.Info("ignoring non-payment notification", zap.String("type", n.Type), zap.String("external_id", n.ExternalID))
		return &Outcome{Kind: OutcomeIgnored, ExternalID: n.ExternalID, ArchiveKey: archiveKey}, nil
	}
	if n.ExternalID == "" {
		s.logger.Info("ignoring notification without payment id")
		return &Outcome{Kind: OutcomeIgnored, ArchiveKey: archiveKey}, nil
	}

	outcome, err = s.Reconcile(ctx, n.ExternalID)
	if outcome != nil {
		outcome.ArchiveKey = archiveKey
	}
	return outcome, err
}

func (s *paymentEventService) store(ctx context.Context, n *Notification) string {
	if s.archive == nil {
		return ""
	}
	key, err := s.archive.Store(ctx, n.ExternalID, n.Raw)
	if err != nil {
		s.logger.Warn("failed to archive notification", zap.String("external_id", n.ExternalID), zap.Error(err))
		return ""
	}
	return key
}

func (s *paymentEventService) Reconcile(ctx context.Context, externalID string) (*Outcome, error) {
	log := s.logger.With(zap.String("external_id", externalID))
	outcome := &Outcome{ExternalID: externalID}

	release, acquired, err := s.lock.Acquire(ctx, externalID)
	if err != nil {
		log.Warn("event lock unavailable, relying on database idempotency", zap.Error(err))
	} else if !acquired {
		log.Info("event already in flight")
		outcome.Kind = OutcomeInFlight
		return outcome, nil
	}
	defer release()

	target, err := s.classifier.Classify(ctx, externalID)
	if err != nil {
		log.Error("failed to classify payment event", zap.Error(err))
		return nil, err
	}
	outcome.Target = target.Kind
	if target.Kind == TargetUnknown {
		log.Info("no local record for payment, ignoring")
		outcome.Kind = OutcomeIgnored
		return outcome, nil
	}

	tenantID := target.TenantID()
	log = log.With(zap.String("target", string(target.Kind)), zap.String("tenant_id", tenantID.String()))

	cred, err := s.credentials.ResolveActive(ctx, tenantID)
	if err != nil {
		return nil, s.fail(log, err)
	}

	payment, err := s.gateway.ForCredential(cred).GetPayment(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrGatewayPaymentNotFound) {
			log.Warn("gateway has no such payment, ignoring")
			outcome.Kind = OutcomeIgnored
			return outcome, nil
		}
		return nil, s.fail(log, err)
	}
	outcome.GatewayStatus = payment.Status

	switch target.Kind {
	case TargetOrder:
		res, err := s.orders.Reconcile(ctx, target.Movement, payment)
		if err != nil {
			log.Error("failed to reconcile order payment", zap.Error(err))
			return nil, fmt.Errorf("order reconciliation: %w", err)
		}
		metrics.Reconciliations.WithLabelValues(string(TargetOrder), string(res.MovementStatus)).Inc()
		outcome.Kind = outcomeKind(res.Replay, res.NeedsReview)
	case TargetSubscription:
		res, err := s.subscriptions.Reconcile(ctx, target.Subscription, payment)
		if err != nil {
			log.Error("failed to reconcile subscription payment", zap.Error(err))
			return nil, fmt.Errorf("subscription reconciliation: %w", err)
		}
		metrics.Reconciliations.WithLabelValues(string(TargetSubscription), string(res.Status)).Inc()
		outcome.Kind = outcomeKind(res.Replay, res.NeedsReview)
	}
	outcome.Applied = outcome.Kind == OutcomeApplied
	return outcome, nil
}

// fail logs err at the level its class calls for and returns it.
func (s *paymentEventService) fail(log *zap.Logger, err error) error {
	switch {
	case IsTenantConfigError(err):
		metrics.TenantConfigErrors.Inc()
		log.Error("tenant payment credential misconfigured", zap.String("alert", "tenant_misconfigured"), zap.Error(err))
	case errors.Is(err, ErrGatewayUnavailable):
		log.Warn("payment gateway unavailable", zap.Error(err))
	default:
		log.Error("failed to fetch payment from gateway", zap.Error(err))
	}
	return err
}

func outcomeKind(replay, needsReview bool) OutcomeKind {
	switch {
	case needsReview:
		return OutcomeNeedsReview
	case replay:
		return OutcomeReplay
	}
	return OutcomeApplied
}

// OutcomeLabel maps a processing result to its metric label.
func OutcomeLabel(outcome *Outcome, err error) string {
	switch {
	case errors.Is(err, ErrMalformedEvent):
		return metrics.OutcomeMalformed
	case IsTenantConfigError(err):
		return metrics.OutcomeTenantConfigError
	case errors.Is(err, ErrGatewayUnavailable):
		return metrics.OutcomeUpstreamError
	case err != nil:
		return metrics.OutcomeInternalError
	case outcome == nil:
		return metrics.OutcomeIgnored
	}
	return string(outcome.Kind)
}
