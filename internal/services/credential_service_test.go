package services

import (
	"context"
	"errors"
	"testing"

	"agendafacil/internal/models"
	"agendafacil/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCredentialRepository struct {
	mock.Mock
}

func (m *MockCredentialRepository) GetActiveByTenant(ctx context.Context, tenantID uuid.UUID) (*models.PaymentCredential, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentCredential), args.Error(1)
}

func TestResolveActive(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("active credential", func(t *testing.T) {
		repo := &MockCredentialRepository{}
		cred := &models.PaymentCredential{ID: uuid.New(), TenantID: tenantID, AccessToken: "APP_USR-1", Active: true}
		repo.On("GetActiveByTenant", ctx, tenantID).Return(cred, nil)

		got, err := NewCredentialService(repo).ResolveActive(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, "APP_USR-1", got.AccessToken)
		repo.AssertExpectations(t)
	})

	t.Run("no credential", func(t *testing.T) {
		repo := &MockCredentialRepository{}
		repo.On("GetActiveByTenant", ctx, tenantID).Return(nil, repositories.ErrNotFound)

		_, err := NewCredentialService(repo).ResolveActive(ctx, tenantID)
		assert.ErrorIs(t, err, ErrCredentialNotConfigured)
		assert.True(t, IsTenantConfigError(err))
	})

	t.Run("empty token", func(t *testing.T) {
		repo := &MockCredentialRepository{}
		repo.On("GetActiveByTenant", ctx, tenantID).Return(&models.PaymentCredential{TenantID: tenantID, Active: true}, nil)

		_, err := NewCredentialService(repo).ResolveActive(ctx, tenantID)
		assert.ErrorIs(t, err, ErrCredentialNotConfigured)
	})

	t.Run("storage error", func(t *testing.T) {
		repo := &MockCredentialRepository{}
		repo.On("GetActiveByTenant", ctx, tenantID).Return(nil, errors.New("timeout"))

		_, err := NewCredentialService(repo).ResolveActive(ctx, tenantID)
		require.Error(t, err)
		assert.False(t, IsTenantConfigError(err))
	})
}
