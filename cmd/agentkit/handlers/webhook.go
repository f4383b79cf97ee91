package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/agentkit/agentkit/cmd/agentkit/container"
	"github.com/agentkit/agentkit/common/models"
	"github.com/agentkit/agentkit/common/repository"
)

// publishedCacheTTL bounds how stale a webhook-served workflow graph
// can be after an edit or unpublish
const publishedCacheTTL = 30 * time.Second

// WebhookHandler triggers published workflows from external callers.
// No identity is required; the workflow id is the capability.
type WebhookHandler struct {
	container *container.Container
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(c *container.Container) *WebhookHandler {
	return &WebhookHandler{container: c}
}

// TriggerWebhook executes a published workflow with the posted body.
// A body that fails to parse as JSON yields an empty payload.
// POST /api/webhook/:workflow_id
func (h *WebhookHandler) TriggerWebhook(c echo.Context) error {
	id, err := uuid.Parse(c.Param("workflow_id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid workflow id")
	}

	ctx := c.Request().Context()
	wf, err := h.loadPublished(c, id)
	if wf == nil {
		return err
	}

	payload := decodeBody(c)
	run, err := h.container.Executor.Execute(ctx, wf, payload, models.TriggerWebhook)
	if err != nil {
		h.container.Components.Logger.Error("run bookkeeping failed", "workflow_id", wf.ID, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to execute workflow")
	}

	loaded, err := h.container.RunRepo.GetRun(ctx, run.ID)
	if err != nil {
		return c.JSON(http.StatusOK, run)
	}
	return c.JSON(http.StatusOK, loaded)
}

// loadPublished resolves a published workflow, serving repeat webhook
// bursts from the in-memory cache
func (h *WebhookHandler) loadPublished(c echo.Context, id uuid.UUID) (*models.Workflow, error) {
	ctx := c.Request().Context()
	cache := h.container.Components.Cache
	cacheKey := "workflow:published:" + id.String()

	if cache != nil {
		if raw, ok, err := cache.Get(ctx, cacheKey); err == nil && ok {
			wf := &models.Workflow{}
			if err := json.Unmarshal(raw, wf); err == nil {
				return wf, nil
			}
		}
	}

	wf, err := h.container.WorkflowRepo.GetWithGraph(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errorJSON(c, http.StatusNotFound, "Workflow not found or not published")
	}
	if err != nil {
		h.container.Components.Logger.Error("failed to load workflow", "workflow_id", id, "error", err)
		return nil, errorJSON(c, http.StatusInternalServerError, "failed to load workflow")
	}
	if wf.Status != models.WorkflowPublished {
		return nil, errorJSON(c, http.StatusNotFound, "Workflow not found or not published")
	}

	if cache != nil {
		if raw, err := json.Marshal(wf); err == nil {
			_ = cache.Set(ctx, cacheKey, raw, publishedCacheTTL)
		}
	}
	return wf, nil
}
