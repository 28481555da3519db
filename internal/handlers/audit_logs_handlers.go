package handlers

import (
	"net/http"
	"time"

	"agendafacil/internal/common"
	"agendafacil/internal/models"
	"agendafacil/internal/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuditLogsHandlers handles audit logs related HTTP requests
type AuditLogsHandlers struct {
	auditLogsService services.AuditLogsService
	logger           *zap.Logger
}

// NewAuditLogsHandlers creates a new audit logs handlers instance
func NewAuditLogsHandlers(auditLogsService services.AuditLogsService, logger *zap.Logger) *AuditLogsHandlers {
	return &AuditLogsHandlers{
		auditLogsService: auditLogsService,
		logger:           logger.Named("ops"),
	}
}

// ListAuditLogs handles GET /v1/ops/audit
func (h *AuditLogsHandlers) ListAuditLogs(c echo.Context) error {
	limit, offset, err := common.ParsePagination(c, 50, 1000)
	if err != nil {
		return common.SendValidationError(c, "pagination", err.Error())
	}

	filters := &models.AuditLogFilters{Limit: limit, Offset: offset}
	if operator := c.QueryParam("operator"); operator != "" {
		filters.Operator = &operator
	}
	if recordID := c.QueryParam("record_id"); recordID != "" {
		filters.RecordID = &recordID
	}
	if v := c.QueryParam("start_date"); v != "" {
		start, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return common.SendValidationError(c, "start_date", "must be RFC3339")
		}
		filters.StartDate = &start
	}
	if v := c.QueryParam("end_date"); v != "" {
		end, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return common.SendValidationError(c, "end_date", "must be RFC3339")
		}
		filters.EndDate = &end
	}

	logs, err := h.auditLogsService.ListAuditLogs(c.Request().Context(), filters)
	if err != nil {
		h.logger.Error("failed to list audit logs", zap.Error(err))
		return common.SendServerError(c, "Failed to list audit logs")
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"audit_logs": logs,
		"limit":      filters.Limit,
		"offset":     filters.Offset,
	})
}
