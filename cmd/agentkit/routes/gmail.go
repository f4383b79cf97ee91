package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/agentkit/agentkit/cmd/agentkit/container"
	"github.com/agentkit/agentkit/cmd/agentkit/handlers"
	"github.com/agentkit/agentkit/common/middleware"
)

// RegisterGmailRoutes registers gmail integration management routes
func RegisterGmailRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewGmailHandler(c)

	gm := e.Group("/api/gmail")
	gm.Use(middleware.ExtractUser())
	{
		gm.POST("/setup", h.Setup)
		gm.POST("/:id/test", h.Test)
		gm.POST("/:id/poll-now", h.PollNow)
		gm.GET("/oauth-instructions", h.OAuthInstructions)
	}
}
