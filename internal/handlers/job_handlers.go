package handlers

import (
	"context"
	"net/http"

	"agendafacil/internal/common"
	"agendafacil/internal/jobs/background"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// JobRunner is the part of the scheduler operators can drive.
type JobRunner interface {
	RunPendingSweep(ctx context.Context) (background.SweepReport, error)
	GetJobStatus() map[string]interface{}
}

type JobHandlers struct {
	jobs   JobRunner
	logger *zap.Logger
}

func NewJobHandlers(jobs JobRunner, logger *zap.Logger) *JobHandlers {
	return &JobHandlers{jobs: jobs, logger: logger.Named("ops")}
}

// Status handles GET /v1/ops/jobs
func (h *JobHandlers) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}

// RunSweep handles POST /v1/ops/jobs/sweep
func (h *JobHandlers) RunSweep(c echo.Context) error {
	operator, _ := common.OperatorFromContext(c.Request().Context())
	h.logger.Info("manual sweep requested", zap.String("operator", operator))

	report, err := h.jobs.RunPendingSweep(c.Request().Context())
	if err != nil {
		return common.SendServerError(c, "Sweep failed")
	}
	return c.JSON(http.StatusOK, report)
}
