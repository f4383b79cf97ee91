package repository

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/agentkit/agentkit/common/db"
)

//go:embed schema.sql
var schemaSQL string

// InitSchema applies the schema idempotently. Wired into bootstrap via
// WithDBInitHook so the service can start against an empty database.
func InitSchema(database *db.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := database.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}
