package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// UserIDKey is the context key for the authenticated user id
const UserIDKey ContextKey = "user_id"

// DevUserID is the identity assumed when no X-User-ID header is
// present. It matches the seed row applied with the schema.
var DevUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// ExtractUser resolves the caller's identity from the X-User-ID header,
// falling back to the dev user. A malformed header also falls back
// rather than failing the request.
func ExtractUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := DevUserID
			if raw := c.Request().Header.Get("X-User-ID"); raw != "" {
				if parsed, err := uuid.Parse(raw); err == nil {
					userID = parsed
				}
			}
			c.Set(string(UserIDKey), userID)
			return next(c)
		}
	}
}

// GetUserID retrieves the caller's user id from the request context
func GetUserID(c echo.Context) uuid.UUID {
	if v, ok := c.Get(string(UserIDKey)).(uuid.UUID); ok {
		return v
	}
	return DevUserID
}
