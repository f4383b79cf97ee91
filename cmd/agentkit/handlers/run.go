package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/agentkit/agentkit/cmd/agentkit/container"
	"github.com/agentkit/agentkit/common/middleware"
	"github.com/agentkit/agentkit/common/models"
	"github.com/agentkit/agentkit/common/repository"
)

const defaultRunListLimit = 50

// RunHandler serves run history
type RunHandler struct {
	container *container.Container
}

// NewRunHandler creates a new run handler
func NewRunHandler(c *container.Container) *RunHandler {
	return &RunHandler{container: c}
}

// ListRuns lists the caller's runs, newest first
// GET /api/runs?workflow_id=...&limit=50
func (h *RunHandler) ListRuns(c echo.Context) error {
	var workflowID *uuid.UUID
	if raw := c.QueryParam("workflow_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "invalid workflow_id")
		}
		workflowID = &id
	}

	limit := defaultRunListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.container.RunRepo.ListRuns(c.Request().Context(), middleware.GetUserID(c), workflowID, limit)
	if err != nil {
		h.container.Components.Logger.Error("failed to list runs", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to list runs")
	}
	if runs == nil {
		runs = []*models.WorkflowRun{}
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun retrieves one run with node_runs embedded
// GET /api/runs/:id
func (h *RunHandler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid run id")
	}

	ctx := c.Request().Context()
	run, err := h.container.RunRepo.GetRun(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "Run not found")
	}
	if err != nil {
		h.container.Components.Logger.Error("failed to load run", "run_id", id, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to load run")
	}

	// Ownership check goes through the run's workflow
	wf, err := h.container.WorkflowRepo.GetWithGraph(ctx, run.WorkflowID)
	if err != nil || wf.UserID != middleware.GetUserID(c) {
		return errorJSON(c, http.StatusNotFound, "Run not found")
	}

	return c.JSON(http.StatusOK, run)
}
