package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agentkit/agentkit/cmd/agentkit/container"
	"github.com/agentkit/agentkit/cmd/agentkit/routes"
	"github.com/agentkit/agentkit/common/bootstrap"
	"github.com/agentkit/agentkit/common/repository"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, cache)
	components, err := bootstrap.Setup(ctx, "agentkit",
		bootstrap.WithDBInitHook(repository.InitSchema),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap agentkit: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}
	defer serviceContainer.Shutdown()

	e := setupEcho()
	setupMiddleware(e, components)
	setupHealthCheck(e)
	registerRoutes(e, serviceContainer)

	// The poller shares process lifetime with the HTTP server
	if components.Config.Poller.Enabled {
		serviceContainer.Poller.Start(ctx)
	}

	startServer(ctx, e, serviceContainer)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, components *bootstrap.Components) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	corsConfig := middleware.DefaultCORSConfig
	if origins := components.Config.CORSOrigins; len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	}
	e.Use(middleware.CORSWithConfig(corsConfig))
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo) {
	e.GET("/api/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "agentkit",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterWorkflowRoutes(e, serviceContainer)
	routes.RegisterRunRoutes(e, serviceContainer)
	routes.RegisterWebhookRoutes(e, serviceContainer)
	routes.RegisterGmailRoutes(e, serviceContainer)
}

// startServer runs the Echo server until SIGINT/SIGTERM, then drains:
// stop the poller first so no new runs start, then shut down HTTP.
func startServer(ctx context.Context, e *echo.Echo, serviceContainer *container.Container) {
	components := serviceContainer.Components
	port := components.Config.Service.Port
	components.Logger.Info("starting agentkit", "port", port)

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			components.Logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	components.Logger.Info("shutdown signal received")
	serviceContainer.Poller.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		components.Logger.Error("server shutdown error", "error", err)
	}
}
