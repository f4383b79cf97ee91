package nodes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestSheetsHandler(server *httptest.Server) *GoogleSheetsHandler {
	h := NewGoogleSheetsHandler()
	h.baseURL = server.URL
	h.httpClient = server.Client()
	h.tokenSource = func(_ context.Context, _ string) (oauth2.TokenSource, error) {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "sa-token"}), nil
	}
	return h
}

func TestGoogleSheetsRequiresSpreadsheetID(t *testing.T) {
	h := NewGoogleSheetsHandler()

	_, err := h.Execute(context.Background(), map[string]interface{}{}, nil, nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "spreadsheet_id")
}

func TestGoogleSheetsRequiresCredentials(t *testing.T) {
	h := NewGoogleSheetsHandler()

	_, err := h.Execute(context.Background(), map[string]interface{}{
		"spreadsheet_id": "sheet-1",
	}, nil, nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestGoogleSheetsAppendsWithBearerToken(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"updates":{"updatedRange":"Sheet1!A5:G5","updatedRows":1}}`))
	}))
	defer server.Close()

	h := newTestSheetsHandler(server)
	data := map[string]interface{}{
		"spreadsheet_id":   "sheet-1",
		"bearer_token":     "user-token",
		"col_subject":      "Invoice overdue",
		"col_sender":       "billing@acme.io",
		"col_summary":      "pay up",
		"col_category":     "invoice",
		"col_sentiment":    "negative",
		"col_action_items": "- pay",
		"col_received_at":  "2026-08-20",
	}

	res, err := h.Execute(context.Background(), data, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "/v4/spreadsheets/sheet-1/values/Sheet1!A1:append", gotPath)
	assert.Equal(t, "Bearer user-token", gotAuth)

	rows := gotBody["values"].([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, []interface{}{
		"Invoice overdue", "billing@acme.io", "pay up", "invoice", "negative", "- pay", "2026-08-20",
	}, rows[0])

	assert.Equal(t, "appended", res.Output["status"])
	assert.Equal(t, "Sheet1!A5:G5", res.Output["updated_range"])
	assert.Equal(t, 1, res.Output["updated_rows"])
	assert.Equal(t, "Sheet1", res.Output["sheet_name"])
}

func TestGoogleSheetsServiceAccountWins(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"updates":{"updatedRange":"Sheet1!A1:B1","updatedRows":1}}`))
	}))
	defer server.Close()

	h := newTestSheetsHandler(server)
	data := map[string]interface{}{
		"spreadsheet_id":       "sheet-1",
		"service_account_json": `{"type":"service_account"}`,
		"bearer_token":         "user-token",
		"row_values":           []interface{}{"a", "b"},
	}

	_, err := h.Execute(context.Background(), data, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer sa-token", gotAuth)
}

func TestGoogleSheetsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"insufficient permissions"}}`))
	}))
	defer server.Close()

	h := newTestSheetsHandler(server)
	data := map[string]interface{}{
		"spreadsheet_id": "sheet-1",
		"bearer_token":   "user-token",
	}

	_, err := h.Execute(context.Background(), data, nil, nil)
	require.Error(t, err)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusForbidden, upstream.Status)
	assert.Contains(t, upstream.Detail, "insufficient permissions")
}

func TestRowValuesVariants(t *testing.T) {
	// Explicit list wins over col_* fields
	row := rowValues(map[string]interface{}{
		"row_values":  []interface{}{"x", float64(2)},
		"col_subject": "ignored",
	})
	assert.Equal(t, []interface{}{"x", "2"}, row)

	// JSON string form
	row = rowValues(map[string]interface{}{"row_values": `["a","b"]`})
	assert.Equal(t, []interface{}{"a", "b"}, row)

	// Non-JSON string becomes a single cell
	row = rowValues(map[string]interface{}{"row_values": "just one"})
	assert.Equal(t, []interface{}{"just one"}, row)

	// Default: seven conventional columns
	row = rowValues(map[string]interface{}{"col_subject": "s"})
	require.Len(t, row, 7)
	assert.Equal(t, "s", row[0])
	assert.Equal(t, "", row[1])
}
