package server

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/classifier"
	"github.com/dativo-io/masquerade/internal/redact"
	"github.com/dativo-io/masquerade/internal/tenant"
)

const scenario = "Email me at john@example.com or call 555-123-4567, john@example.com again"

func newTestServer(t *testing.T, apiKeys map[string]string) http.Handler {
	t.Helper()
	reg, err := alias.NewRegistry()
	require.NoError(t, err)
	engine := redact.NewEngine(classifier.MustNewMatcher(), reg)
	return NewServer(engine, apiKeys, WithComponents(map[string]string{"ai": "disabled"})).Routes()
}

type testResponse struct {
	Success bool            `json:"success"`
	Error   *apiError       `json:"error"`
	Result  json.RawMessage `json:"result"`
}

func do(t *testing.T, h http.Handler, method, path, key string, body interface{}) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Masquerade-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp testResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, map[string]string{"k": "acme"})
	rec, resp := do(t, h, http.MethodGet, "/health?detail=true", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "disabled", body.Components["ai"])
}

func TestFormats(t *testing.T) {
	h := newTestServer(t, nil)
	rec, resp := do(t, h, http.MethodGet, "/v1/formats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var f redact.Formats
	require.NoError(t, json.Unmarshal(resp.Result, &f))
	assert.Equal(t, []string{".pdf"}, f.PDF)
	assert.Contains(t, f.Code, ".go")
}

func TestAuth(t *testing.T) {
	h := newTestServer(t, map[string]string{"good-key": "acme"})

	rec, resp := do(t, h, http.MethodGet, "/v1/scopes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unauthorized", resp.Error.Code)

	rec, _ = do(t, h, http.MethodGet, "/v1/scopes", "bad-key", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/scopes", nil)
	req.Header.Set("Authorization", "Bearer good-key")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRedact(t *testing.T) {
	h := newTestServer(t, nil)
	rec, resp := do(t, h, http.MethodPost, "/v1/redact", "", redactRequest{Content: scenario, ScopeID: "s1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, resp.Success)

	var res redact.Result
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	assert.Equal(t, "Email me at [EMAIL_1] or call [PHONE_1], [EMAIL_1] again", res.RedactedContent)
	assert.Equal(t, 3, res.RedactionCount)
	assert.Len(t, res.Entities, 2)
	assert.Equal(t, "s1", res.ScopeID)
}

func TestRedact_Conversation(t *testing.T) {
	h := newTestServer(t, nil)
	rec, resp := do(t, h, http.MethodPost, "/v1/redact", "", redactRequest{
		ScopeID:  "chat",
		Messages: []string{"I am jane@example.com", "reply to jane@example.com or bob@example.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []redact.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &body))
	require.Len(t, body.Results, 2)
	assert.Equal(t, "I am [EMAIL_1]", body.Results[0].RedactedContent)
	assert.Equal(t, "reply to [EMAIL_1] or [EMAIL_2]", body.Results[1].RedactedContent)
}

func TestRedact_InvalidInput(t *testing.T) {
	h := newTestServer(t, nil)
	tests := []struct {
		name string
		body interface{}
		code string
	}{
		{"binary content", redactRequest{Content: "\x00\x01\x02"}, "invalid_input"},
		{"unknown content type", redactRequest{Content: "x", ContentType: "spreadsheet"}, "invalid_input"},
		{"pdf inline", redactRequest{Content: "x", ContentType: "pdf"}, "invalid_input"},
		{"malformed json", "not an object", "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, h, http.MethodPost, "/v1/redact", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestResolve(t *testing.T) {
	h := newTestServer(t, nil)

	_, resp := do(t, h, http.MethodPost, "/v1/aliases/resolve", "", map[string]string{
		"scope_id": "s", "entity_type": "person_name", "value": "John Smith",
	})
	var single map[string]string
	require.NoError(t, json.Unmarshal(resp.Result, &single))
	assert.Equal(t, "[PERSON_1]", single["alias"])

	_, resp = do(t, h, http.MethodPost, "/v1/aliases/resolve", "", map[string]interface{}{
		"scope_id": "s",
		"entities": []map[string]string{
			{"entity_type": "PERSON", "value": "jane doe"},
			{"entity_type": "person_name", "value": "john  smith"},
			{"entity_type": "EMAIL_ADDRESS", "value": "a@b.io"},
		},
	})
	var batch struct {
		Aliases []string `json:"aliases"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &batch))
	assert.Equal(t, []string{"[PERSON_2]", "[PERSON_1]", "[EMAIL_1]"}, batch.Aliases)

	rec, resp := do(t, h, http.MethodPost, "/v1/aliases/resolve", "", map[string]string{"value": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", resp.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/aliases/resolve", "", map[string]string{"entity_type": "email", "value": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScopes_TenantIsolation(t *testing.T) {
	h := newTestServer(t, map[string]string{"key-acme": "acme", "key-globex": "globex"})
	resolve := func(key, value string) string {
		_, resp := do(t, h, http.MethodPost, "/v1/aliases/resolve", key, map[string]string{
			"scope_id": "shared", "entity_type": "email", "value": value,
		})
		var out map[string]string
		require.NoError(t, json.Unmarshal(resp.Result, &out))
		return out["alias"]
	}

	assert.Equal(t, "[EMAIL_1]", resolve("key-acme", "a@acme.io"))
	assert.Equal(t, "[EMAIL_1]", resolve("key-globex", "g@globex.io"), "same scope name, separate namespace")
	assert.Equal(t, "[EMAIL_2]", resolve("key-acme", "b@acme.io"))

	_, resp := do(t, h, http.MethodGet, "/v1/scopes", "key-acme", nil)
	var list struct {
		Scopes []alias.ScopeInfo `json:"scopes"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	require.Len(t, list.Scopes, 1)
	assert.Equal(t, "shared", list.Scopes[0].ID)
	assert.Equal(t, 2, list.Scopes[0].Mappings)

	_, resp = do(t, h, http.MethodGet, "/v1/scopes/shared/stats", "key-globex", nil)
	var stats alias.ScopeStats
	require.NoError(t, json.Unmarshal(resp.Result, &stats))
	assert.Equal(t, "shared", stats.ScopeID)
	assert.Equal(t, 1, stats.Total)
}

func TestScopeExportAndClear(t *testing.T) {
	h := newTestServer(t, nil)
	_, _ = do(t, h, http.MethodPost, "/v1/redact", "", redactRequest{Content: scenario, ScopeID: "exp"})

	rec, _ := do(t, h, http.MethodGet, "/v1/scopes/exp/export", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ex alias.Export
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ex))
	assert.Equal(t, "exp", ex.ScopeID)
	assert.Equal(t, 2, ex.Count)
	assert.Equal(t, "[EMAIL_1]", ex.Mappings[0].Alias)
	assert.NotEmpty(t, ex.ExportID)

	rec, _ = do(t, h, http.MethodGet, "/v1/scopes/exp/export?format=csv", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rec, resp := do(t, h, http.MethodGet, "/v1/scopes/exp/export?format=xml", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_format", resp.Error.Code)

	rec, resp = do(t, h, http.MethodDelete, "/v1/scopes/exp", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &cleared))
	assert.EqualValues(t, 2, cleared["cleared"])

	rec, _ = do(t, h, http.MethodGet, "/v1/scopes/exp/export", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ex))
	assert.Equal(t, 0, ex.Count)
}

func TestScopeExport_ClearInOneStep(t *testing.T) {
	h := newTestServer(t, nil)
	_, _ = do(t, h, http.MethodPost, "/v1/redact", "", redactRequest{Content: "x@y.io", ScopeID: "once"})

	rec, _ := do(t, h, http.MethodGet, "/v1/scopes/once/export?format=yaml&clear=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alias: '[EMAIL_1]'")

	_, resp := do(t, h, http.MethodPost, "/v1/redact", "", redactRequest{Content: "z@y.io", ScopeID: "once"})
	var res redact.Result
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	assert.Equal(t, "[EMAIL_1]", res.RedactedContent, "numbering restarts after clear")
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/v1/redact", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit_PerTenant(t *testing.T) {
	reg, err := alias.NewRegistry()
	require.NoError(t, err)
	engine := redact.NewEngine(classifier.MustNewMatcher(), reg)
	keys := map[string]string{"acme-key": "acme", "globex-key": "globex"}
	h := NewServer(engine, keys, WithTenantManager(tenant.FromAPIKeys(keys, 1))).Routes()

	for i := 0; i < 2; i++ {
		rec, _ := do(t, h, http.MethodGet, "/v1/scopes", "acme-key", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, resp := do(t, h, http.MethodGet, "/v1/scopes", "acme-key", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "rate_limited", resp.Error.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec, _ = do(t, h, http.MethodGet, "/v1/scopes", "globex-key", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not rate limited")
}
