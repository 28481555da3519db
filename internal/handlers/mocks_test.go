package handlers

import (
	"context"

	"agendafacil/internal/jobs/background"
	"agendafacil/internal/models"
	"agendafacil/internal/repositories"
	"agendafacil/internal/services"

	"github.com/stretchr/testify/mock"
)

type MockPaymentEventService struct {
	mock.Mock
}

func (m *MockPaymentEventService) HandleNotification(ctx context.Context, body []byte) (*services.Outcome, error) {
	args := m.Called(ctx, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Outcome), args.Error(1)
}

func (m *MockPaymentEventService) Reconcile(ctx context.Context, externalID string) (*services.Outcome, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Outcome), args.Error(1)
}

// stubOrderRepo only implements the review listing; other calls panic.
type stubOrderRepo struct {
	repositories.OrderRepository
	movements []*models.PaymentMovement
	err       error
	limit     int
	offset    int
}

func (s *stubOrderRepo) ListMovementsNeedingReview(_ context.Context, limit, offset int) ([]*models.PaymentMovement, error) {
	s.limit, s.offset = limit, offset
	return s.movements, s.err
}

type stubSubscriptionRepo struct {
	repositories.SubscriptionRepository
	payments []*models.SubscriptionPayment
	err      error
}

func (s *stubSubscriptionRepo) ListPaymentsNeedingReview(_ context.Context, _, _ int) ([]*models.SubscriptionPayment, error) {
	return s.payments, s.err
}

type stubJobRunner struct {
	report background.SweepReport
	err    error
}

func (s *stubJobRunner) RunPendingSweep(context.Context) (background.SweepReport, error) {
	return s.report, s.err
}

func (s *stubJobRunner) GetJobStatus() map[string]interface{} {
	return map[string]interface{}{"scheduler_running": true}
}
