package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/agentkit/agentkit/cmd/agentkit/container"
	"github.com/agentkit/agentkit/cmd/agentkit/gmail"
	"github.com/agentkit/agentkit/common/middleware"
	"github.com/agentkit/agentkit/common/models"
	"github.com/agentkit/agentkit/common/repository"
)

const (
	gmailTokenURI      = "https://oauth2.googleapis.com/token"
	gmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"
)

// GmailHandler manages gmail integrations: credential setup, connection
// testing and manual poll triggering
type GmailHandler struct {
	container *container.Container
}

// NewGmailHandler creates a new gmail handler
func NewGmailHandler(c *container.Container) *GmailHandler {
	return &GmailHandler{container: c}
}

type gmailCredentialsCreate struct {
	Name         string   `json:"name"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
}

// Setup creates a gmail integration from OAuth2 credentials
// POST /api/gmail/setup
func (h *GmailHandler) Setup(c echo.Context) error {
	var payload gmailCredentialsCreate
	if err := c.Bind(&payload); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if payload.Name == "" || payload.AccessToken == "" || payload.RefreshToken == "" {
		return errorJSON(c, http.StatusBadRequest, "name, access_token and refresh_token are required")
	}

	scopes := payload.Scopes
	if len(scopes) == 0 {
		scopes = []string{gmailReadonlyScope}
	}
	scopeValues := make([]interface{}, len(scopes))
	for i, s := range scopes {
		scopeValues[i] = s
	}

	creds := map[string]interface{}{
		"access_token":  payload.AccessToken,
		"refresh_token": payload.RefreshToken,
		"token_uri":     gmailTokenURI,
		"client_id":     payload.ClientID,
		"client_secret": payload.ClientSecret,
		"scopes":        scopeValues,
	}

	ctx := c.Request().Context()

	// Validate the credentials are at least well-formed before sealing
	if _, err := gmail.NewClient(ctx, creds, h.container.Components.Logger); err != nil {
		return errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Failed to setup Gmail integration: %v", err))
	}

	sealed, err := h.container.Sealer.Seal(creds)
	if err != nil {
		h.container.Components.Logger.Error("failed to seal credentials", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to seal credentials")
	}

	now := time.Now().UTC()
	integration := &models.Integration{
		ID:                   uuid.New(),
		UserID:               middleware.GetUserID(c),
		Name:                 payload.Name,
		Type:                 models.IntegrationGmail,
		CredentialsEncrypted: sealed,
		Status:               models.IntegrationActive,
		Metadata: map[string]interface{}{
			"email":  "configured",
			"scopes": scopeValues,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.container.IntegrationRepo.Create(ctx, integration); err != nil {
		h.container.Components.Logger.Error("failed to create integration", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to create integration")
	}

	return c.JSON(http.StatusCreated, integration)
}

// Test fetches a handful of unread emails to prove the connection works
// POST /api/gmail/:id/test
func (h *GmailHandler) Test(c echo.Context) error {
	integration, err := h.loadOwned(c)
	if integration == nil {
		return err
	}

	ctx := c.Request().Context()
	creds, err := h.container.Sealer.Unseal(integration.CredentialsEncrypted)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Failed to test Gmail integration: %v", err))
	}

	client, err := gmail.NewClient(ctx, creds, h.container.Components.Logger)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Failed to test Gmail integration: %v", err))
	}

	messages, err := client.ListUnread(ctx, 5)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Failed to test Gmail integration: %v", err))
	}

	h.persistRefreshedCredentials(c, integration, client)

	emails := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		emails = append(emails, m.TriggerBody())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": fmt.Sprintf("Successfully connected. Found %d unread emails.", len(messages)),
		"emails":  emails,
	})
}

// PollNow triggers one poll iteration for an integration outside the
// regular schedule
// POST /api/gmail/:id/poll-now
func (h *GmailHandler) PollNow(c echo.Context) error {
	integration, err := h.loadOwned(c)
	if integration == nil {
		return err
	}

	if err := h.container.Poller.PollOne(c.Request().Context(), integration); err != nil {
		return errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Failed to poll Gmail: %v", err))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Gmail polling triggered successfully",
	})
}

// OAuthInstructions documents the manual OAuth2 credential flow
// GET /api/gmail/oauth-instructions
func (h *GmailHandler) OAuthInstructions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"instructions": []string{
			"1. Go to Google Cloud Console: https://console.cloud.google.com/",
			"2. Create a new project or select an existing one",
			"3. Enable Gmail API: Navigate to 'APIs & Services' > 'Library' > Search 'Gmail API' > Enable",
			"4. Create OAuth2 Credentials:",
			"   - Go to 'APIs & Services' > 'Credentials'",
			"   - Click 'Create Credentials' > 'OAuth client ID'",
			"   - Application type: 'Web application'",
			"   - Add authorized redirect URIs (e.g., http://localhost:3000/auth/gmail/callback)",
			"5. Download the credentials JSON file",
			"6. Use the client_id and client_secret from the JSON file",
			"7. Generate access_token and refresh_token using OAuth2 flow:",
			"   - Use the OAuth2 playground: https://developers.google.com/oauthplayground/",
			"   - Or implement the OAuth2 flow in your frontend",
			"8. Required scopes: " + gmailReadonlyScope,
			"9. Call /api/gmail/setup with the credentials",
		},
		"required_scopes": []string{gmailReadonlyScope},
		"example_payload": map[string]interface{}{
			"name":          "My Gmail Account",
			"access_token":  "ya29.a0AfH6SMBx...",
			"refresh_token": "1//0gZ9X...",
			"client_id":     "123456789.apps.googleusercontent.com",
			"client_secret": "GOCSPX-...",
			"scopes":        []string{gmailReadonlyScope},
		},
	})
}

func (h *GmailHandler) loadOwned(c echo.Context) (*models.Integration, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, errorJSON(c, http.StatusBadRequest, "invalid integration id")
	}

	integration, err := h.container.IntegrationRepo.GetByID(c.Request().Context(), id, middleware.GetUserID(c))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errorJSON(c, http.StatusNotFound, "Gmail integration not found")
	}
	if err != nil {
		h.container.Components.Logger.Error("failed to load integration", "integration_id", id, "error", err)
		return nil, errorJSON(c, http.StatusInternalServerError, "failed to load integration")
	}
	if integration.Type != models.IntegrationGmail {
		return nil, errorJSON(c, http.StatusNotFound, "Gmail integration not found")
	}
	return integration, nil
}

// persistRefreshedCredentials re-seals and stores the credential bundle
// when the access token was refreshed during an API call
func (h *GmailHandler) persistRefreshedCredentials(c echo.Context, integration *models.Integration, client *gmail.Client) {
	updated, changed, err := client.UpdatedCredentials()
	if err != nil || !changed {
		return
	}
	sealed, err := h.container.Sealer.Seal(updated)
	if err != nil {
		h.container.Components.Logger.Error("failed to seal refreshed credentials", "error", err)
		return
	}
	if err := h.container.IntegrationRepo.UpdateCredentials(c.Request().Context(), integration.ID, sealed); err != nil {
		h.container.Components.Logger.Error("failed to persist refreshed credentials", "error", err)
	}
}
