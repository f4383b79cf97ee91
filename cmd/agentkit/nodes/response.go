package nodes

import (
	"context"

	"github.com/agentkit/agentkit/common/db"
)

// ResponseHandler is the final output node. It passes the configured
// body through as the workflow's result.
type ResponseHandler struct{}

func (h *ResponseHandler) Execute(_ context.Context, data, _ map[string]interface{}, _ *db.DB) (*Result, error) {
	body, ok := data["body"]
	if !ok || body == nil {
		body = map[string]interface{}{}
	}
	return &Result{
		Output: map[string]interface{}{
			"type": "json",
			"data": body,
		},
	}, nil
}
