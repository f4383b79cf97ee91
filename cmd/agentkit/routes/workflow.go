package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/agentkit/agentkit/cmd/agentkit/container"
	"github.com/agentkit/agentkit/cmd/agentkit/handlers"
	"github.com/agentkit/agentkit/common/middleware"
)

// RegisterWorkflowRoutes registers workflow CRUD and manual run routes
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWorkflowHandler(c)

	wf := e.Group("/api/workflows")
	wf.Use(middleware.ExtractUser())
	{
		wf.POST("", h.CreateWorkflow)
		wf.GET("", h.ListWorkflows)
		wf.GET("/:id", h.GetWorkflow)
		wf.POST("/:id/publish", h.PublishWorkflow)
		wf.POST("/:id/unpublish", h.UnpublishWorkflow)
		wf.POST("/:id/run", h.RunWorkflow)
	}
}
