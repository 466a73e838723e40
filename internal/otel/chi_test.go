package otel

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_Status(t *testing.T) {
	mw := Middleware()
	for _, code := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, code, rec.Code)
	}
}

func TestMiddleware_ChiRouteContext(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	var pattern string
	r.Get("/v1/scopes/{id}/stats", func(w http.ResponseWriter, r *http.Request) {
		pattern = routePattern(r)
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/scopes/abc/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/v1/scopes/{id}/stats", pattern)
}

func TestRoutePattern_FallsBackToPath(t *testing.T) {
	assert.Equal(t, "/plain", routePattern(httptest.NewRequest(http.MethodGet, "/plain", nil)))
}
