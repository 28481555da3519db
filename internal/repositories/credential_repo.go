package repositories

import (
	"context"

	"agendafacil/internal/models"

	"github.com/google/uuid"
)

type CredentialRepository interface {
	GetActiveByTenant(ctx context.Context, tenantID uuid.UUID) (*models.PaymentCredential, error)
}

type credentialRepo struct {
	db DBTX
}

func NewCredentialRepo(db DBTX) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) GetActiveByTenant(ctx context.Context, tenantID uuid.UUID) (*models.PaymentCredential, error) {
	cred := &models.PaymentCredential{}
	query := `
		SELECT id, tenant_id, mp_access_token, active, created_at
		FROM payment_credentials
		WHERE tenant_id = $1 AND active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, tenantID).Scan(&cred.ID, &cred.TenantID, &cred.AccessToken, &cred.Active, &cred.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return cred, nil
}
