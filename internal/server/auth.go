// Package server provides the HTTP API, middleware, and handlers for masquerade.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/requestctx"
	"github.com/dativo-io/masquerade/internal/tenant"
)

// AuthMiddleware validates X-Masquerade-Key or Authorization: Bearer <key>
// and sets tenant_id in context. apiKeys maps key -> tenant_id. With no keys
// configured every request passes without a tenant.
func AuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(apiKeys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Masquerade-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			var tenantID string
			for k, t := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					tenantID = t
					break
				}
			}
			if tenantID == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			r = r.WithContext(requestctx.WithTenant(r.Context(), tenantID))
			next.ServeHTTP(w, r)
		})
	}
}

// tenantScope maps a caller-visible scope to the registry scope. Tenants
// never see or touch each other's scopes.
func tenantScope(ctx context.Context, scope string) string {
	if strings.TrimSpace(scope) == "" {
		scope = alias.DefaultScope
	}
	return requestctx.Scope(ctx, scope)
}

func visibleScope(ctx context.Context, stored string) (string, bool) {
	return requestctx.Visible(ctx, stored)
}

// RateLimitMiddleware rejects requests from tenants over their rate. A nil
// manager or an unauthenticated request passes through.
func RateLimitMiddleware(m *tenant.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestctx.Tenant(r.Context())
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			switch err := m.ValidateRequest(id); {
			case errors.Is(err, tenant.ErrRateLimitExceeded):
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "Tenant request rate exceeded")
				return
			case errors.Is(err, tenant.ErrTenantNotFound):
				writeError(w, http.StatusForbidden, "forbidden", "Unknown tenant")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware returns a middleware that sets CORS headers. allowedOrigins can be ["*"] for any.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				for _, o := range allowedOrigins {
					if o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						break
					}
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Masquerade-Key")
			w.Header().Set("Access-Control-Max-Age", "300")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
