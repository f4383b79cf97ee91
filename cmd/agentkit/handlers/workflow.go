package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/agentkit/agentkit/cmd/agentkit/container"
	"github.com/agentkit/agentkit/common/middleware"
	"github.com/agentkit/agentkit/common/models"
	"github.com/agentkit/agentkit/common/repository"
)

// WorkflowHandler handles workflow CRUD and manual runs
type WorkflowHandler struct {
	container *container.Container
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{container: c}
}

type nodePayload struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	Position     map[string]float64     `json:"position"`
	Data         map[string]interface{} `json:"data"`
	CustomNodeID *uuid.UUID             `json:"custom_node_id"`
}

type edgePayload struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	SourceHandle *string `json:"source_handle"`
	TargetHandle *string `json:"target_handle"`
	Condition    *string `json:"condition"`
}

type workflowCreate struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	AgentID     *uuid.UUID             `json:"agent_id"`
	Variables   map[string]interface{} `json:"variables"`
	Metadata    map[string]interface{} `json:"metadata"`
	Nodes       []nodePayload          `json:"nodes"`
	Edges       []edgePayload          `json:"edges"`
}

// CreateWorkflow creates a workflow with its graph
// POST /api/workflows
func (h *WorkflowHandler) CreateWorkflow(c echo.Context) error {
	var payload workflowCreate
	if err := c.Bind(&payload); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if payload.Name == "" {
		return errorJSON(c, http.StatusBadRequest, "name is required")
	}

	now := time.Now().UTC()
	wf := &models.Workflow{
		ID:          uuid.New(),
		UserID:      middleware.GetUserID(c),
		AgentID:     payload.AgentID,
		Name:        payload.Name,
		Description: payload.Description,
		Status:      models.WorkflowDraft,
		Variables:   payload.Variables,
		Metadata:    payload.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, n := range payload.Nodes {
		wf.Nodes = append(wf.Nodes, &models.WorkflowNode{
			ID:           uuid.New(),
			WorkflowID:   wf.ID,
			NodeKey:      n.ID,
			Type:         n.Type,
			PositionX:    n.Position["x"],
			PositionY:    n.Position["y"],
			Data:         n.Data,
			CustomNodeID: n.CustomNodeID,
		})
	}
	for _, e := range payload.Edges {
		wf.Edges = append(wf.Edges, &models.WorkflowEdge{
			ID:           uuid.New(),
			WorkflowID:   wf.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
			Condition:    e.Condition,
		})
	}

	ctx := c.Request().Context()
	if err := h.container.WorkflowRepo.Create(ctx, wf); err != nil {
		h.container.Components.Logger.Error("failed to create workflow", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to create workflow")
	}

	return c.JSON(http.StatusCreated, wf)
}

// ListWorkflows lists the caller's workflows
// GET /api/workflows
func (h *WorkflowHandler) ListWorkflows(c echo.Context) error {
	workflows, err := h.container.WorkflowRepo.ListByUser(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		h.container.Components.Logger.Error("failed to list workflows", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to list workflows")
	}
	if workflows == nil {
		workflows = []*models.Workflow{}
	}
	return c.JSON(http.StatusOK, workflows)
}

// GetWorkflow retrieves one workflow with its graph
// GET /api/workflows/:id
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	wf, err := h.loadOwned(c)
	if wf == nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}

// PublishWorkflow transitions a workflow to published
// POST /api/workflows/:id/publish
func (h *WorkflowHandler) PublishWorkflow(c echo.Context) error {
	return h.setStatus(c, models.WorkflowPublished)
}

// UnpublishWorkflow transitions a workflow back to draft
// POST /api/workflows/:id/unpublish
func (h *WorkflowHandler) UnpublishWorkflow(c echo.Context) error {
	return h.setStatus(c, models.WorkflowDraft)
}

// RunWorkflow executes a workflow synchronously with a manual trigger
// POST /api/workflows/:id/run
func (h *WorkflowHandler) RunWorkflow(c echo.Context) error {
	wf, err := h.loadOwned(c)
	if wf == nil {
		return err
	}

	payload := decodeBody(c)
	ctx := c.Request().Context()

	run, err := h.container.Executor.Execute(ctx, wf, payload, models.TriggerManual)
	if err != nil {
		h.container.Components.Logger.Error("run bookkeeping failed", "workflow_id", wf.ID, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to execute workflow")
	}

	// Re-read so node_runs are embedded in the response
	loaded, err := h.container.RunRepo.GetRun(ctx, run.ID)
	if err != nil {
		return c.JSON(http.StatusOK, run)
	}
	return c.JSON(http.StatusOK, loaded)
}

func (h *WorkflowHandler) setStatus(c echo.Context, status models.WorkflowStatus) error {
	wf, err := h.loadOwned(c)
	if wf == nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.container.WorkflowRepo.UpdateStatus(ctx, wf.ID, status); err != nil {
		h.container.Components.Logger.Error("failed to update workflow status", "workflow_id", wf.ID, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to update workflow")
	}
	wf.Status = status

	// Drop the webhook handler's cached copy so the status change takes
	// effect immediately
	if cache := h.container.Components.Cache; cache != nil {
		_ = cache.Delete(ctx, "workflow:published:"+wf.ID.String())
	}

	return c.JSON(http.StatusOK, wf)
}

// loadOwned parses :id and loads the workflow, enforcing ownership.
// A nil workflow means the response has already been written; the
// error return is only the write failure, if any.
func (h *WorkflowHandler) loadOwned(c echo.Context) (*models.Workflow, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, errorJSON(c, http.StatusBadRequest, "invalid workflow id")
	}

	wf, err := h.container.WorkflowRepo.GetWithGraph(c.Request().Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errorJSON(c, http.StatusNotFound, "Workflow not found")
	}
	if err != nil {
		h.container.Components.Logger.Error("failed to load workflow", "workflow_id", id, "error", err)
		return nil, errorJSON(c, http.StatusInternalServerError, "failed to load workflow")
	}
	if wf.UserID != middleware.GetUserID(c) {
		return nil, errorJSON(c, http.StatusNotFound, "Workflow not found")
	}
	return wf, nil
}

// decodeBody reads the request body as a JSON object; anything
// unparsable yields an empty payload
func decodeBody(c echo.Context) map[string]interface{} {
	var payload map[string]interface{}
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil || payload == nil {
		return map[string]interface{}{}
	}
	return payload
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]interface{}{"error": msg})
}
