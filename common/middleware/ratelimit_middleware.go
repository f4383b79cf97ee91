package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agentkit/agentkit/common/config"
	"github.com/agentkit/agentkit/common/ratelimit"
)

// WebhookRateLimit caps webhook-triggered runs: a global window shared by
// all workflows and a tighter per-workflow window. Fails open when Redis is
// unavailable so a cache outage never blocks executions.
func WebhookRateLimit(limiter *ratelimit.Limiter, cfg config.RateLimitConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Enabled || limiter == nil {
				return next(c)
			}

			ctx := c.Request().Context()

			global, err := limiter.CheckGlobal(ctx, cfg.GlobalLimit, cfg.WindowSeconds)
			if err == nil && !global.Allowed {
				return tooManyRequests(c, "global_rate_limit_exceeded", global)
			}

			workflowID := c.Param("workflow_id")
			if workflowID != "" {
				perWorkflow, err := limiter.CheckWorkflow(ctx, workflowID, cfg.WorkflowLimit, cfg.WindowSeconds)
				if err == nil && !perWorkflow.Allowed {
					return tooManyRequests(c, "workflow_rate_limit_exceeded", perWorkflow)
				}
			}

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, code string, result *ratelimit.Result) error {
	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"error":   code,
		"message": "Too many webhook requests. Please retry later.",
		"details": map[string]interface{}{
			"limit":               result.Limit,
			"current_count":       result.CurrentCount,
			"retry_after_seconds": result.RetryAfterSeconds,
		},
	})
}
