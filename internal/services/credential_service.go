package services

import (
	"context"
	"errors"
	"fmt"

	"agendafacil/internal/models"
	"agendafacil/internal/repositories"

	"github.com/google/uuid"
)

// CredentialService resolves the gateway credential a tenant collects with.
type CredentialService interface {
	ResolveActive(ctx context.Context, tenantID uuid.UUID) (*models.PaymentCredential, error)
}

type credentialService struct {
	credentialRepo repositories.CredentialRepository
}

func NewCredentialService(credentialRepo repositories.CredentialRepository) CredentialService {
	return &credentialService{credentialRepo: credentialRepo}
}

func (s *credentialService) ResolveActive(ctx context.Context, tenantID uuid.UUID) (*models.PaymentCredential, error) {
	cred, err := s.credentialRepo.GetActiveByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrCredentialNotConfigured)
		}
		return nil, fmt.Errorf("failed to load payment credential: %w", err)
	}
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("tenant %s: empty access token: %w", tenantID, ErrCredentialNotConfigured)
	}
	return cred, nil
}
