package repositories

import (
	"context"
	"testing"
	"time"

	"agendafacil/internal/models"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogsCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := &models.AuditLog{
		ID:         uuid.New(),
		Operator:   "ops",
		Action:     "POST /v1/ops/jobs/sweep",
		StatusCode: 200,
		Details:    models.JSONB{"ip": "10.0.0.1"},
		CreatedAt:  time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
	}
	mock.ExpectExec(`INSERT INTO ops_audit_logs`).
		WithArgs(entry.ID, "ops", "POST /v1/ops/jobs/sweep", "", 200, []byte(`{"ip":"10.0.0.1"}`), entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewAuditLogsRepo(mock).Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogsList_WithFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	operator := "ops"
	recordID := "123"
	created := time.Now()
	mock.ExpectQuery(`FROM ops_audit_logs WHERE operator = \$1 AND record_id = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("ops", "123", 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "operator", "action", "record_id", "status_code", "details", "created_at"}).
			AddRow(uuid.New(), "ops", "POST /v1/ops/reconcile/:externalId", "123", 502, []byte(`{"error":"gateway"}`), created))

	logs, err := NewAuditLogsRepo(mock).List(context.Background(), &models.AuditLogFilters{Operator: &operator, RecordID: &recordID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 502, logs[0].StatusCode)
	assert.Equal(t, "gateway", logs[0].Details["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
