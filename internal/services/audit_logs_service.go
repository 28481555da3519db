package services

import (
	"context"
	"errors"
	"time"

	"agendafacil/internal/models"
	"agendafacil/internal/repositories"

	"github.com/google/uuid"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

type AuditLogsService interface {
	// LogActivity records one operator action
	LogActivity(ctx context.Context, operator, action, recordID string, statusCode int, details models.JSONB) error
	ListAuditLogs(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
}

type auditLogsService struct {
	auditLogsRepo repositories.AuditLogsRepository
	now           func() time.Time
}

func NewAuditLogsService(auditLogsRepo repositories.AuditLogsRepository) AuditLogsService {
	return &auditLogsService{
		auditLogsRepo: auditLogsRepo,
		now:           time.Now,
	}
}

// LogActivity creates a new audit log entry with validation
func (s *auditLogsService) LogActivity(ctx context.Context, operator, action, recordID string, statusCode int, details models.JSONB) error {
	if action == "" {
		return errors.New("action is required")
	}
	if operator == "" {
		operator = "unknown"
	}

	return s.auditLogsRepo.Create(ctx, &models.AuditLog{
		ID:         uuid.New(),
		Operator:   operator,
		Action:     action,
		RecordID:   recordID,
		StatusCode: statusCode,
		Details:    details,
		CreatedAt:  s.now(),
	})
}

// ListAuditLogs retrieves audit entries, newest first
func (s *auditLogsService) ListAuditLogs(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	if filters == nil {
		filters = &models.AuditLogFilters{}
	}
	if filters.Limit <= 0 || filters.Limit > maxAuditLimit {
		filters.Limit = defaultAuditLimit
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	if filters.StartDate != nil && filters.EndDate != nil && filters.StartDate.After(*filters.EndDate) {
		return nil, errors.New("start_date cannot be after end_date")
	}

	return s.auditLogsRepo.List(ctx, filters)
}
