package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agendafacil/internal/jobs/background"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunSweep(t *testing.T) {
	h := NewJobHandlers(&stubJobRunner{report: background.SweepReport{Scanned: 3, Applied: 2, Failed: 1}}, zap.NewNop())
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/v1/ops/jobs/sweep", nil), rec)

	require.NoError(t, h.RunSweep(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"scanned":3,"applied":2,"failed":1}`, rec.Body.String())
}

func TestRunSweep_Error(t *testing.T) {
	h := NewJobHandlers(&stubJobRunner{err: errors.New("db down")}, zap.NewNop())
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/v1/ops/jobs/sweep", nil), rec)

	require.NoError(t, h.RunSweep(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJobStatus(t *testing.T) {
	h := NewJobHandlers(&stubJobRunner{}, zap.NewNop())
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/v1/ops/jobs", nil), rec)

	require.NoError(t, h.Status(c))
	assert.JSONEq(t, `{"scheduler_running":true}`, rec.Body.String())
}
