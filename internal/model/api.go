package model

import (
	"time"

	"github.com/google/uuid"
)

// Error codes used in API error responses.
const (
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnsupported  = "unsupported_media_type"
)

// ResponseMeta carries request correlation data on every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// APIResponse is the standard success envelope.
type APIResponse struct {
	Data any          `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// ErrorDetail describes one API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is the standard error envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// IngestResponse reports the outcome of one span batch submission.
// SpansIngested counts spans durably stored in this call, including
// duplicates that were no-ops.
type IngestResponse struct {
	Success       bool   `json:"success"`
	SpansIngested int    `json:"spans_ingested"`
	Message       string `json:"message"`
}

// AuthTokenRequest exchanges a project API key for a JWT.
type AuthTokenRequest struct {
	APIKey string `json:"api_key"`
}

// AuthTokenResponse carries the issued token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ProjectID uuid.UUID `json:"project_id"`
}

// ExecutionFilters narrows execution list queries.
type ExecutionFilters struct {
	TraceID  *string    `json:"trace_id,omitempty"`
	SpanType *SpanType  `json:"span_type,omitempty"`
	Provider *string    `json:"provider,omitempty"`
	Model    *string    `json:"model,omitempty"`
	AgentID  *string    `json:"agent_id,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	Limit    int        `json:"limit,omitempty"`
}

// Project is the tenant scope every ingested span belongs to.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKey is a hashed project credential. The plaintext key is shown once at
// creation and never stored.
type APIKey struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID uuid.UUID  `json:"project_id"`
	Name      string     `json:"name"`
	KeyHash   string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}
