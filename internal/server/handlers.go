package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/entity"
	masqotel "github.com/dativo-io/masquerade/internal/otel"
	"github.com/dativo-io/masquerade/internal/redact"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool        `json:"success"`
	Error   *apiError   `json:"error"`
	Result  interface{} `json:"result"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Result: result})
}

// writeError writes the failure envelope. AuthMiddleware uses it too.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &apiError{Code: code, Message: message}})
}

// writeEngineError maps engine errors onto HTTP statuses.
func writeEngineError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, redact.ErrInvalidInput), errors.Is(err, alias.ErrEmptyValue):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, alias.ErrUnknownFormat):
		writeError(w, http.StatusBadRequest, "unknown_format", err.Error())
	case errors.Is(err, alias.ErrScopeConflict):
		log.Error().Err(err).Func(masqotel.LogTraceFields(ctx)).Msg("scope_conflict")
		writeError(w, http.StatusConflict, "scope_conflict", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		log.Error().Err(err).Func(masqotel.LogTraceFields(ctx)).Msg("request_failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]string{
			"pattern_matcher": "ok",
			"alias_registry":  "ok",
		}
		for k, v := range s.components {
			components[k] = v
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, redact.SupportedFormats())
}

type redactRequest struct {
	Content     string   `json:"content"`
	Messages    []string `json:"messages"`
	ContentType string   `json:"content_type"`
	Language    string   `json:"language"`
	ScopeID     string   `json:"scope_id"`
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req redactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	hint, ok := redact.ParseContentType(req.ContentType)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_input", "unknown content_type "+req.ContentType)
		return
	}
	if hint == redact.TypePDF {
		writeError(w, http.StatusBadRequest, "invalid_input", "pdf redaction is file based; use the CLI")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), redactTimeout)
	defer cancel()
	scope := tenantScope(ctx, req.ScopeID)
	shown, _ := visibleScope(ctx, scope)

	if len(req.Messages) > 0 {
		results, err := s.engine.RedactConversation(ctx, scope, req.Messages)
		if err != nil {
			writeEngineError(ctx, w, err)
			return
		}
		for _, res := range results {
			res.ScopeID = shown
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
		return
	}

	in := redact.Text(req.Content).WithScope(scope).WithHint(hint).WithLanguage(req.Language)
	res, err := s.engine.Redact(ctx, in)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	res.ScopeID = shown
	writeJSON(w, http.StatusOK, res)
}

type resolveEntity struct {
	EntityType string `json:"entity_type"`
	Value      string `json:"value"`
}

type resolveRequest struct {
	ScopeID string `json:"scope_id"`
	resolveEntity
	Entities []resolveEntity `json:"entities"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	items := req.Entities
	single := len(items) == 0
	if single {
		items = []resolveEntity{req.resolveEntity}
	}
	reqs := make([]alias.Request, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.EntityType) == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "entity_type is required")
			return
		}
		reqs[i] = alias.Request{Type: entity.ParseType(it.EntityType), Value: it.Value}
	}

	ctx := r.Context()
	aliases, err := s.engine.Registry().ResolveBatch(ctx, tenantScope(ctx, req.ScopeID), reqs)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	if single {
		writeJSON(w, http.StatusOK, map[string]string{"alias": aliases[0]})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"aliases": aliases})
}

func (s *Server) handleScopesList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scopes, err := s.engine.Registry().Scopes(ctx)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	out := make([]alias.ScopeInfo, 0, len(scopes))
	for _, sc := range scopes {
		id, ok := visibleScope(ctx, sc.ID)
		if !ok {
			continue
		}
		sc.ID = id
		out = append(out, sc)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scopes": out})
}

func (s *Server) handleScopeStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	stats, err := s.engine.Registry().Stats(ctx, tenantScope(ctx, id))
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	stats.ScopeID = id
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleScopeClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	n, err := s.engine.ClearScope(ctx, tenantScope(ctx, id))
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	logger := masqotel.ScopeLogger(ctx, log.Logger, id)
	logger.Info().Int("mappings", n).Msg("scope_cleared")
	writeJSON(w, http.StatusOK, map[string]interface{}{"scope_id": id, "cleared": n})
}

// handleScopeExport streams the scope's mappings in the requested format.
// With clear=true the scope is removed in the same step.
func (s *Server) handleScopeExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = alias.FormatJSON
	}
	switch format {
	case alias.FormatJSON, alias.FormatCSV, alias.FormatYAML, "yml":
	default:
		writeError(w, http.StatusBadRequest, "unknown_format", "format must be json, csv or yaml")
		return
	}

	reg := s.engine.Registry()
	scope := tenantScope(ctx, id)
	var (
		mappings []alias.Mapping
		err      error
	)
	if r.URL.Query().Get("clear") == "true" {
		mappings, err = reg.ExportAndClear(ctx, scope)
	} else {
		mappings, err = reg.Export(ctx, scope)
	}
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	for i := range mappings {
		mappings[i].ScopeID = id
	}

	var buf bytes.Buffer
	if err := alias.Encode(&buf, format, alias.NewExport(id, mappings)); err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", alias.ContentType(format))
	w.Header().Set("Content-Disposition", `attachment; filename="`+safeFilename(id)+`.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '/' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, s)
}
