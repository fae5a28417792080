package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arisu-ai/arisu/internal/auth"
	"github.com/arisu-ai/arisu/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"ok": "true"})
	})
}

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/traces/x", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestRequestIDPropagated(t *testing.T) {
	h := requestIDMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/executions", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "client-supplied-id", rec.Header().Get("X-Request-ID"))

	var resp model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "client-supplied-id", resp.Meta.RequestID)
	assert.False(t, resp.Meta.Timestamp.IsZero())
}

func TestAuthMiddlewareRejects(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	h := authMiddleware(mgr, okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/executions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var apiErr model.APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
			assert.Equal(t, model.ErrCodeUnauthorized, apiErr.Error.Code)
		})
	}
}

func TestAuthMiddlewareAccepts(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	projectID := uuid.New()
	token, _, err := mgr.IssueToken(projectID, nil)
	require.NoError(t, err)

	var got uuid.UUID
	h := authMiddleware(mgr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ProjectIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/executions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, projectID, got)
}

func TestAuthMiddlewareSkipsPublicPaths(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	h := authMiddleware(mgr, okHandler())

	for _, path := range []string{"/health", "/auth/token"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(discardLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/traces/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var apiErr model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, model.ErrCodeInternal, apiErr.Error.Code)
}

func TestProjectIDFromContextDefault(t *testing.T) {
	assert.Equal(t, uuid.Nil, ProjectIDFromContext(context.Background()))
}

func TestDecodeJSONUnknownField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/token",
		jsonBody(`{"api_key":"x","bogus":true}`))
	var target model.AuthTokenRequest
	assert.Error(t, decodeJSON(req, 1024, &target))
}

func TestDecodeJSONTooLarge(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/token",
		jsonBody(`{"api_key":"`+string(make([]byte, 2048))+`"}`))
	var target model.AuthTokenRequest
	assert.Error(t, decodeJSON(req, 64, &target))
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
