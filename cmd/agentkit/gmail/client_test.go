package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/agentkit/agentkit/common/logger"
)

func b64url(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func testCreds() map[string]interface{} {
	return map[string]interface{}{
		"access_token":  "tok-1",
		"refresh_token": "refresh-1",
		"client_id":     "cid",
		"client_secret": "secret",
	}
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), testCreds(), logger.New("error", "json"))
	require.NoError(t, err)
	c.baseURL = server.URL
	c.httpClient = server.Client()
	return c
}

func gmailFixture() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/gmail/v1/users/me/messages":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"messages": []map[string]string{{"id": "m1"}, {"id": "m2"}},
			})
		case "/gmail/v1/users/me/messages/m1", "/gmail/v1/users/me/messages/m2":
			id := r.URL.Path[len("/gmail/v1/users/me/messages/"):]
			fmt.Fprintf(w, `{
				"id": %q,
				"threadId": "t1",
				"labelIds": ["UNREAD", "INBOX"],
				"snippet": "Hello there",
				"internalDate": "1755686400000",
				"payload": {
					"mimeType": "multipart/mixed",
					"headers": [
						{"name": "Subject", "value": "Quarterly report"},
						{"name": "From", "value": "alice@acme.io"},
						{"name": "To", "value": "me@x.io"}
					],
					"body": {},
					"parts": [
						{"mimeType": "text/html", "body": {"data": %q}},
						{"mimeType": "text/plain", "body": {"data": %q}},
						{"mimeType": "application/pdf", "filename": "q3.pdf",
						 "body": {"size": 1024, "attachmentId": "att-1"}}
					]
				}
			}`, id, b64url("<b>hi</b>"), b64url("plain text body"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestListUnreadFetchesFullMessages(t *testing.T) {
	server := httptest.NewServer(gmailFixture())
	defer server.Close()

	c := newTestClient(t, server)
	messages, err := c.ListUnread(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	m := messages[0]
	assert.Equal(t, "m1", m.MessageID)
	assert.Equal(t, "t1", m.ThreadID)
	assert.Equal(t, "Quarterly report", m.Subject)
	assert.Equal(t, "alice@acme.io", m.Sender)
	assert.Equal(t, "me@x.io", m.To)
	assert.Equal(t, "plain text body", m.Body)
	assert.Equal(t, []string{"UNREAD", "INBOX"}, m.Labels)
	assert.Equal(t, "2025-08-20T10:40:00Z", m.ReceivedAt)

	require.Len(t, m.Attachments, 1)
	att := m.Attachments[0].(map[string]interface{})
	assert.Equal(t, "q3.pdf", att["filename"])
	assert.Equal(t, "application/pdf", att["mime_type"])
	assert.Equal(t, "att-1", att["attachment_id"])
}

func TestListSinceUsesAfterQuery(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gmail/v1/users/me/messages" {
			gotQuery = r.URL.Query().Get("q")
			_, _ = w.Write([]byte(`{"messages":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	since := time.Unix(1755686400, 0)
	messages, err := c.ListSince(context.Background(), since, 50)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.Equal(t, "after:1755686400", gotQuery)
}

func TestListSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	_, err := c.ListUnread(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)
}

func TestListAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid credentials"}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	_, err := c.ListUnread(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gmail API error 401")
}

func TestTriggerBodyShape(t *testing.T) {
	m := &Message{
		MessageID:   "m1",
		ThreadID:    "t1",
		Subject:     "s",
		Sender:      "a@b",
		To:          "c@d",
		Body:        "hello",
		Attachments: []interface{}{},
		ReceivedAt:  "2026-08-20T10:40:00Z",
		Snippet:     "hel",
		Labels:      []string{"INBOX"},
	}

	body := m.TriggerBody()
	assert.Equal(t, "m1", body["message_id"])
	assert.Equal(t, "hello", body["body"])
	assert.Equal(t, "hello", body["email_content"])
	assert.Equal(t, []string{"INBOX"}, body["labels"])
}

func TestUpdatedCredentialsUnchanged(t *testing.T) {
	c, err := NewClient(context.Background(), testCreds(), logger.New("error", "json"))
	require.NoError(t, err)

	creds, changed, err := c.UpdatedCredentials()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "tok-1", creds["access_token"])
}

func TestUpdatedCredentialsAfterRefresh(t *testing.T) {
	c, err := NewClient(context.Background(), testCreds(), logger.New("error", "json"))
	require.NoError(t, err)

	// Simulate a refresh having produced a new token
	c.tokens = oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken:  "tok-2",
		RefreshToken: "refresh-1",
		Expiry:       time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	})

	creds, changed, err := c.UpdatedCredentials()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "tok-2", creds["access_token"])
	assert.Equal(t, "2026-08-24T12:00:00Z", creds["expiry"])
	// Original mapping untouched
	assert.Equal(t, "tok-1", c.initial["access_token"])
}

func TestNewClientRejectsEmptyCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), map[string]interface{}{}, logger.New("error", "json"))
	assert.Error(t, err)
}
