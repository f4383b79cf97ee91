package nodes

import (
	"context"

	"github.com/agentkit/agentkit/common/db"
)

// EmailTriggerHandler ingests email data from a webhook payload or
// manual test input. Outputs: subject, body, sender, attachments,
// received_at, raw.
type EmailTriggerHandler struct{}

func (h *EmailTriggerHandler) Execute(_ context.Context, data, runCtx map[string]interface{}, _ *db.DB) (*Result, error) {
	trigger, _ := runCtx["trigger"].(map[string]interface{})
	triggerBody, _ := trigger["body"].(map[string]interface{})

	// The gmail poller wraps its payload as
	// {"trigger_type": "gmail", "body": {...}, "integration_id": ...}
	// and the executor stores the whole dict under trigger.body, so
	// unwrap one level.
	if inner, ok := triggerBody["body"].(map[string]interface{}); ok {
		triggerBody = inner
	}

	subject := fieldOrTest(triggerBody, "subject", data, "test_subject", "(No Subject)")
	body := fieldOrTest(triggerBody, "body", data, "test_body", "(No Body)")
	sender := fieldOrTest(triggerBody, "sender", data, "test_sender", "unknown@example.com")

	attachments, _ := triggerBody["attachments"].([]interface{})
	if attachments == nil {
		attachments = []interface{}{}
	}

	receivedAt := toString(triggerBody["received_at"])

	var raw interface{} = triggerBody
	if triggerBody == nil {
		raw = map[string]interface{}{}
	}

	return &Result{
		Output: map[string]interface{}{
			"subject":     subject,
			"body":        body,
			"sender":      sender,
			"attachments": attachments,
			"received_at": receivedAt,
			"raw":         raw,
		},
	}, nil
}

// fieldOrTest reads a trigger field, falling back to the node's test
// value and finally to a fixed default
func fieldOrTest(body map[string]interface{}, key string, data map[string]interface{}, testKey, def string) string {
	if v := toString(body[key]); v != "" {
		return v
	}
	if v := toString(data[testKey]); v != "" {
		return v
	}
	return def
}
