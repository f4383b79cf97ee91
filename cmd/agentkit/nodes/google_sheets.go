package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/agentkit/agentkit/common/db"
)

const sheetsScope = "https://www.googleapis.com/auth/spreadsheets"

// GoogleSheetsHandler appends a row to a Google Sheet.
// Auth priority: service_account_json first, raw bearer_token second.
type GoogleSheetsHandler struct {
	baseURL    string
	httpClient *http.Client

	// tokenSource is swapped out in tests to avoid real JWT exchange
	tokenSource func(ctx context.Context, serviceAccountJSON string) (oauth2.TokenSource, error)
}

// NewGoogleSheetsHandler creates a sheets handler against the public API
func NewGoogleSheetsHandler() *GoogleSheetsHandler {
	return &GoogleSheetsHandler{
		baseURL:    "https://sheets.googleapis.com",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokenSource: func(ctx context.Context, serviceAccountJSON string) (oauth2.TokenSource, error) {
			conf, err := google.JWTConfigFromJSON([]byte(serviceAccountJSON), sheetsScope)
			if err != nil {
				return nil, fmt.Errorf("invalid service account JSON: %w", err)
			}
			return conf.TokenSource(ctx), nil
		},
	}
}

func (h *GoogleSheetsHandler) Execute(ctx context.Context, data, _ map[string]interface{}, _ *db.DB) (*Result, error) {
	spreadsheetID := strings.TrimSpace(toString(data["spreadsheet_id"]))
	if spreadsheetID == "" {
		return nil, NewConfigError("Google Sheets: spreadsheet_id is required.")
	}

	sheetName := strings.TrimSpace(toString(data["sheet_name"]))
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	values := rowValues(data)

	serviceAccountJSON := strings.TrimSpace(toString(data["service_account_json"]))
	bearerToken := strings.TrimSpace(toString(data["bearer_token"]))
	if serviceAccountJSON == "" && bearerToken == "" {
		return nil, NewConfigError("Google Sheets: provide either a service_account_json or bearer_token in the node config.")
	}

	if serviceAccountJSON != "" {
		ts, err := h.tokenSource(ctx, serviceAccountJSON)
		if err != nil {
			return nil, NewConfigError("Google Sheets: %v", err)
		}
		tok, err := ts.Token()
		if err != nil {
			return nil, &UpstreamError{Service: "google sheets", Detail: fmt.Sprintf("token exchange failed: %v", err)}
		}
		bearerToken = tok.AccessToken
	}

	respBody, err := h.append(ctx, spreadsheetID, sheetName, bearerToken, values)
	if err != nil {
		return nil, err
	}

	updatedRows := 1
	if r := gjson.GetBytes(respBody, "updates.updatedRows"); r.Exists() {
		updatedRows = int(r.Int())
	}

	return &Result{
		Output: map[string]interface{}{
			"status":         "appended",
			"spreadsheet_id": spreadsheetID,
			"sheet_name":     sheetName,
			"row_values":     values,
			"updated_range":  gjson.GetBytes(respBody, "updates.updatedRange").String(),
			"updated_rows":   updatedRows,
		},
	}, nil
}

func (h *GoogleSheetsHandler) append(ctx context.Context, spreadsheetID, sheetName, token string, values []interface{}) ([]byte, error) {
	appendURL := fmt.Sprintf(
		"%s/v4/spreadsheets/%s/values/%s:append?valueInputOption=USER_ENTERED&insertDataOption=INSERT_ROWS",
		h.baseURL, spreadsheetID, url.PathEscape(sheetName+"!A1"),
	)

	payload, err := json.Marshal(map[string]interface{}{"values": []interface{}{values}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal append body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, appendURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build append request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Service: "google sheets", Detail: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Service: "google sheets", Detail: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &UpstreamError{Service: "google sheets", Status: resp.StatusCode, Detail: string(body)}
	}
	return body, nil
}

// rowValues builds the row to append. An explicit row_values list (or
// JSON string) wins; otherwise the seven conventional columns are
// assembled from col_* fields.
func rowValues(data map[string]interface{}) []interface{} {
	switch tmpl := data["row_values"].(type) {
	case []interface{}:
		if len(tmpl) > 0 {
			return stringifyRow(tmpl)
		}
	case string:
		if tmpl != "" {
			var parsed []interface{}
			if err := json.Unmarshal([]byte(tmpl), &parsed); err == nil {
				return stringifyRow(parsed)
			}
			return []interface{}{tmpl}
		}
	}

	return []interface{}{
		toString(data["col_subject"]),
		toString(data["col_sender"]),
		toString(data["col_summary"]),
		toString(data["col_category"]),
		toString(data["col_sentiment"]),
		toString(data["col_action_items"]),
		toString(data["col_received_at"]),
	}
}

func stringifyRow(row []interface{}) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = toString(v)
	}
	return out
}
