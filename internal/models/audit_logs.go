package models

import (
	"time"

	"github.com/google/uuid"
)

// JSONB is a free-form JSON object column.
type JSONB map[string]interface{}

// AuditLog records one operator action against the ops API
type AuditLog struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Operator   string    `json:"operator" db:"operator"`
	Action     string    `json:"action" db:"action"`
	RecordID   string    `json:"record_id" db:"record_id"`
	StatusCode int       `json:"status_code" db:"status_code"`
	Details    JSONB     `json:"details" db:"details"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// AuditLogFilters represents filters for querying audit logs
type AuditLogFilters struct {
	Operator  *string    `json:"operator"`
	RecordID  *string    `json:"record_id"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}
