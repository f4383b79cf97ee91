package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/agentkit/agentkit/cmd/agentkit/container"
	"github.com/agentkit/agentkit/cmd/agentkit/handlers"
	"github.com/agentkit/agentkit/common/middleware"
)

// RegisterRunRoutes registers run history routes
func RegisterRunRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewRunHandler(c)

	runs := e.Group("/api/runs")
	runs.Use(middleware.ExtractUser())
	{
		runs.GET("", h.ListRuns)
		runs.GET("/:id", h.GetRun)
	}
}
