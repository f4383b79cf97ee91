package nodes

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit/agentkit/common/config"
)

func testConfig() *config.Config {
	return &config.Config{}
}

func TestRegistryKnownTypes(t *testing.T) {
	r := NewRegistry(testConfig())

	assert.Equal(t, []string{"email_trigger", "extract_content", "google_sheets", "response", "summarize"}, r.Types())

	for _, typ := range r.Types() {
		h, err := r.HandlerFor(typ)
		require.NoError(t, err)
		assert.NotNil(t, h)
	}
}

func TestRegistryUnknownType(t *testing.T) {
	r := NewRegistry(testConfig())

	_, err := r.HandlerFor("does_not_exist")
	require.Error(t, err)

	var unknown *UnknownNodeTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "does_not_exist", unknown.Type)
	assert.Contains(t, err.Error(), "email_trigger")
}

func TestEmailTriggerFromWebhookPayload(t *testing.T) {
	h := &EmailTriggerHandler{}
	runCtx := map[string]interface{}{
		"trigger": map[string]interface{}{
			"body": map[string]interface{}{
				"subject":     "Invoice overdue",
				"body":        "Please pay",
				"sender":      "billing@acme.io",
				"received_at": "2026-08-20T10:00:00Z",
			},
			"type": "webhook",
		},
	}

	res, err := h.Execute(context.Background(), map[string]interface{}{}, runCtx, nil)
	require.NoError(t, err)

	assert.Equal(t, "Invoice overdue", res.Output["subject"])
	assert.Equal(t, "Please pay", res.Output["body"])
	assert.Equal(t, "billing@acme.io", res.Output["sender"])
	assert.Equal(t, "2026-08-20T10:00:00Z", res.Output["received_at"])
	assert.Equal(t, []interface{}{}, res.Output["attachments"])
}

func TestEmailTriggerUnwrapsPollerEnvelope(t *testing.T) {
	h := &EmailTriggerHandler{}
	runCtx := map[string]interface{}{
		"trigger": map[string]interface{}{
			"body": map[string]interface{}{
				"trigger_type":   "gmail",
				"integration_id": "int-1",
				"body": map[string]interface{}{
					"subject": "From the poller",
					"body":    "hello",
					"sender":  "a@b.c",
				},
			},
			"type": "gmail",
		},
	}

	res, err := h.Execute(context.Background(), map[string]interface{}{}, runCtx, nil)
	require.NoError(t, err)
	assert.Equal(t, "From the poller", res.Output["subject"])
	assert.Equal(t, "a@b.c", res.Output["sender"])
}

func TestEmailTriggerTestDefaults(t *testing.T) {
	h := &EmailTriggerHandler{}
	data := map[string]interface{}{
		"test_subject": "Manual test",
	}

	res, err := h.Execute(context.Background(), data, map[string]interface{}{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Manual test", res.Output["subject"])
	assert.Equal(t, "(No Body)", res.Output["body"])
	assert.Equal(t, "unknown@example.com", res.Output["sender"])
}

func TestExtractContentStripsHTML(t *testing.T) {
	h := &ExtractContentHandler{}
	data := map[string]interface{}{
		"subject": "Hi",
		"body":    "<p>Hello   <b>world</b></p>\n<br/>done",
	}

	res, err := h.Execute(context.Background(), data, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello world done", res.Output["clean_body"])
	assert.Equal(t, 0, res.Output["attachment_count"])
	assert.Equal(t, "Subject: Hi\n\nBody:\nHello world done", res.Output["combined_text"])
}

func TestExtractContentDecodesAttachments(t *testing.T) {
	h := &ExtractContentHandler{}
	encoded := base64.StdEncoding.EncodeToString([]byte("quarterly numbers"))
	data := map[string]interface{}{
		"subject": "Report",
		"body":    "see attached",
		"attachments": []interface{}{
			map[string]interface{}{"filename": "q3.txt", "content": encoded},
			map[string]interface{}{"name": "logo.png", "content": "!!!not-base64!!!"},
			map[string]interface{}{"filename": "empty.txt"},
		},
	}

	res, err := h.Execute(context.Background(), data, nil, nil)
	require.NoError(t, err)

	texts := res.Output["attachment_texts"].([]interface{})
	require.Len(t, texts, 3)
	assert.Equal(t, "[Attachment: q3.txt]\nquarterly numbers", texts[0])
	assert.Equal(t, "[Attachment: logo.png] (binary, not decoded)", texts[1])
	assert.Equal(t, "[Attachment: empty.txt]", texts[2])
	assert.Equal(t, 3, res.Output["attachment_count"])
	assert.Contains(t, res.Output["combined_text"].(string), "Attachments:\n[Attachment: q3.txt]")
}

func TestResponsePassesBodyThrough(t *testing.T) {
	h := &ResponseHandler{}

	res, err := h.Execute(context.Background(), map[string]interface{}{
		"body": map[string]interface{}{"done": true},
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "json", res.Output["type"])
	assert.Equal(t, map[string]interface{}{"done": true}, res.Output["data"])

	res, err = h.Execute(context.Background(), map[string]interface{}{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{}, res.Output["data"])
}
