package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/agentkit/agentkit/cmd/agentkit/container"
	"github.com/agentkit/agentkit/cmd/agentkit/handlers"
	"github.com/agentkit/agentkit/common/middleware"
)

// RegisterWebhookRoutes registers the external webhook trigger route.
// Rate limited; no identity middleware — the workflow id is the
// capability.
func RegisterWebhookRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWebhookHandler(c)

	e.POST("/api/webhook/:workflow_id", h.TriggerWebhook,
		middleware.WebhookRateLimit(c.Limiter, c.Components.Config.RateLimit))
}
