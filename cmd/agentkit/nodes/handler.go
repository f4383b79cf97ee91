// Package nodes implements the node-handler framework: a registry
// mapping a node's type discriminator to a handler, plus the builtin
// handlers for the email → summarize → sheets pipeline.
package nodes

import (
	"context"
	"fmt"
	"strconv"

	"github.com/agentkit/agentkit/common/db"
	"github.com/agentkit/agentkit/common/models"
)

// Handler executes one node type. data is the node's static
// configuration with expressions already resolved; runCtx is the run
// context and must be treated as read-only — the executor merges the
// result back itself. store is the persistence side channel; the
// builtin handlers don't touch it and it may be nil in tests.
type Handler interface {
	Execute(ctx context.Context, data, runCtx map[string]interface{}, store *db.DB) (*Result, error)
}

// Result is a handler's output plus optional token accounting
type Result struct {
	Output     map[string]interface{}
	TokenUsage *models.TokenUsage
}

// toString renders a node data value as a string the way handlers
// consume loosely typed configuration. nil becomes the empty string.
func toString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// toFloat coerces numbers and numeric strings, falling back to def
func toFloat(v interface{}, def float64) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return def
}
