// Package gmail is a minimal Gmail REST client: list messages by
// query, fetch full messages, walk MIME parts for body text and
// attachment metadata. OAuth2 token refresh is handled by the token
// source; refreshed tokens are surfaced so the caller can re-seal and
// persist them.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/agentkit/agentkit/common/logger"
)

const (
	defaultBaseURL  = "https://gmail.googleapis.com"
	defaultTokenURI = "https://oauth2.googleapis.com/token"
	readonlyScope   = "https://www.googleapis.com/auth/gmail.readonly"
)

// Client talks to the Gmail API on behalf of one integration
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	initial    map[string]interface{}
	log        *logger.Logger
}

// NewClient builds a client from an unsealed credential mapping:
// access_token, refresh_token, token_uri, client_id, client_secret,
// scopes, expiry. An expired access token is refreshed lazily on the
// first API call.
func NewClient(ctx context.Context, creds map[string]interface{}, log *logger.Logger) (*Client, error) {
	accessToken, _ := creds["access_token"].(string)
	refreshToken, _ := creds["refresh_token"].(string)
	if accessToken == "" && refreshToken == "" {
		return nil, fmt.Errorf("gmail credentials missing both access_token and refresh_token")
	}

	tokenURI, _ := creds["token_uri"].(string)
	if tokenURI == "" {
		tokenURI = defaultTokenURI
	}
	clientID, _ := creds["client_id"].(string)
	clientSecret, _ := creds["client_secret"].(string)

	scopes := []string{readonlyScope}
	if raw, ok := creds["scopes"].([]interface{}); ok && len(raw) > 0 {
		scopes = scopes[:0]
		for _, s := range raw {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if expiry, ok := creds["expiry"].(string); ok && expiry != "" {
		if t, err := time.Parse(time.RFC3339, expiry); err == nil {
			token.Expiry = t
		}
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURI},
		Scopes:       scopes,
	}

	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     oauth2.ReuseTokenSource(token, conf.TokenSource(ctx, token)),
		initial:    creds,
		log:        log,
	}, nil
}

// Message is one fetched email, flattened for trigger payloads
type Message struct {
	MessageID   string
	ThreadID    string
	Subject     string
	Sender      string
	To          string
	Body        string
	Attachments []interface{}
	ReceivedAt  string
	Snippet     string
	Labels      []string
}

// TriggerBody renders the message as the body of a gmail trigger payload
func (m *Message) TriggerBody() map[string]interface{} {
	return map[string]interface{}{
		"message_id":    m.MessageID,
		"thread_id":     m.ThreadID,
		"subject":       m.Subject,
		"sender":        m.Sender,
		"to":            m.To,
		"body":          m.Body,
		"email_content": m.Body,
		"attachments":   m.Attachments,
		"received_at":   m.ReceivedAt,
		"snippet":       m.Snippet,
		"labels":        m.Labels,
	}
}

// ListUnread fetches up to max unread messages
func (c *Client) ListUnread(ctx context.Context, max int) ([]*Message, error) {
	return c.list(ctx, "is:unread", max)
}

// ListSince fetches up to max messages received after the given time
func (c *Client) ListSince(ctx context.Context, since time.Time, max int) ([]*Message, error) {
	return c.list(ctx, fmt.Sprintf("after:%d", since.Unix()), max)
}

// UpdatedCredentials reports the current credential mapping and whether
// the access token changed since the client was built (i.e. a refresh
// happened). Errors surface refresh failures.
func (c *Client) UpdatedCredentials() (map[string]interface{}, bool, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, false, fmt.Errorf("token refresh failed: %w", err)
	}

	original, _ := c.initial["access_token"].(string)
	if token.AccessToken == original {
		return c.initial, false, nil
	}

	updated := make(map[string]interface{}, len(c.initial)+1)
	for k, v := range c.initial {
		updated[k] = v
	}
	updated["access_token"] = token.AccessToken
	if token.RefreshToken != "" {
		updated["refresh_token"] = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		updated["expiry"] = token.Expiry.UTC().Format(time.RFC3339)
	}
	return updated, true, nil
}

func (c *Client) list(ctx context.Context, query string, max int) ([]*Message, error) {
	listURL := fmt.Sprintf("%s/gmail/v1/users/me/messages?q=%s&maxResults=%d",
		c.baseURL, url.QueryEscape(query), max)

	var listing struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := c.get(ctx, listURL, &listing); err != nil {
		return nil, err
	}

	messages := make([]*Message, 0, len(listing.Messages))
	for _, ref := range listing.Messages {
		msg, err := c.getMessage(ctx, ref.ID)
		if err != nil {
			// One unreadable message shouldn't sink the whole fetch
			c.log.Warn("failed to fetch gmail message", "message_id", ref.ID, "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (c *Client) getMessage(ctx context.Context, id string) (*Message, error) {
	var raw apiMessage
	msgURL := fmt.Sprintf("%s/gmail/v1/users/me/messages/%s?format=full", c.baseURL, url.PathEscape(id))
	if err := c.get(ctx, msgURL, &raw); err != nil {
		return nil, err
	}

	msg := &Message{
		MessageID:   raw.ID,
		ThreadID:    raw.ThreadID,
		Snippet:     raw.Snippet,
		Labels:      raw.LabelIDs,
		Attachments: []interface{}{},
	}
	if msg.Labels == nil {
		msg.Labels = []string{}
	}

	var dateHeader string
	if raw.Payload != nil {
		msg.Subject = raw.Payload.header("Subject")
		msg.Sender = raw.Payload.header("From")
		msg.To = raw.Payload.header("To")
		dateHeader = raw.Payload.header("Date")
		msg.Body = extractBody(raw.Payload)
		msg.Attachments = extractAttachments(raw.Payload)
	}
	if msg.Subject == "" {
		msg.Subject = "(No Subject)"
	}
	if msg.Sender == "" {
		msg.Sender = "unknown@example.com"
	}

	msg.ReceivedAt = dateHeader
	if raw.InternalDate != "" {
		if ms, err := strconv.ParseInt(raw.InternalDate, 10, 64); err == nil {
			msg.ReceivedAt = time.UnixMilli(ms).UTC().Format(time.RFC3339)
		}
	}
	return msg, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out interface{}) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build gmail request: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gmail response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmail API error %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode gmail response: %w", err)
	}
	return nil
}

type apiMessage struct {
	ID           string          `json:"id"`
	ThreadID     string          `json:"threadId"`
	LabelIDs     []string        `json:"labelIds"`
	Snippet      string          `json:"snippet"`
	InternalDate string          `json:"internalDate"`
	Payload      *messagePayload `json:"payload"`
}

type messagePayload struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Headers  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body struct {
		Data         string `json:"data"`
		Size         int    `json:"size"`
		AttachmentID string `json:"attachmentId"`
	} `json:"body"`
	Parts []*messagePayload `json:"parts"`
}

func (p *messagePayload) header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractBody walks MIME parts preferring text/plain, falling back to
// text/html, recursing into multipart containers
func extractBody(p *messagePayload) string {
	if len(p.Parts) == 0 {
		return decodeBodyData(p.Body.Data)
	}

	body := ""
	for _, part := range p.Parts {
		switch {
		case part.MimeType == "text/plain":
			if part.Body.Data != "" {
				return decodeBodyData(part.Body.Data)
			}
		case part.MimeType == "text/html" && body == "":
			body = decodeBodyData(part.Body.Data)
		case len(part.Parts) > 0:
			if nested := extractBody(part); nested != "" {
				return nested
			}
		}
	}
	return body
}

func extractAttachments(p *messagePayload) []interface{} {
	attachments := []interface{}{}
	for _, part := range p.Parts {
		if part.Filename != "" {
			attachments = append(attachments, map[string]interface{}{
				"filename":      part.Filename,
				"mime_type":     part.MimeType,
				"size":          part.Body.Size,
				"attachment_id": part.Body.AttachmentID,
			})
		} else if len(part.Parts) > 0 {
			attachments = append(attachments, extractAttachments(part)...)
		}
	}
	return attachments
}

// decodeBodyData decodes Gmail's base64url (unpadded) body encoding
func decodeBodyData(data string) string {
	if data == "" {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return strings.ToValidUTF8(string(decoded), "")
}
