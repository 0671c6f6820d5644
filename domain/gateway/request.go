// Package gateway provides request/response value types for the proxy core.
package gateway

import "encoding/json"

// Request represents an inbound chat-completion request (value type).
// This is extracted from HTTP and passed to the application services.
type Request struct {
	// Authentication
	Token string

	// Parsed request details
	Model  string
	Stream bool
	Body   []byte // Raw JSON body, forwarded verbatim

	// Passthrough protocol headers
	ProviderVersion string // anthropic-version
	BetaFeatures    string // anthropic-beta

	// Metadata
	RemoteIP  string
	UserAgent string
	TraceID   string
}

// Response represents a buffered upstream response (value type).
type Response struct {
	Status    int
	Body      []byte
	LatencyMs int64

	// Usage extracted from the response body (zero on provider errors)
	Usage     TokenUsage
	RequestID string
}

// TokenUsage holds token counts reported by the provider (value type).
type TokenUsage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
}

// Total returns the sum of all token counts.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheCreationTokens + u.CacheReadTokens
}

// ErrorResponse represents an error to return to the client (value type).
// Type follows the provider's error taxonomy so that client SDKs written
// against the provider work unmodified against the gateway.
type ErrorResponse struct {
	Status  int
	Type    string
	Message string

	// RetryAfter in seconds, emitted as a Retry-After header when > 0.
	RetryAfter int

	// Limits payload attached to rate-limit rejections.
	Limits *LimitsInfo
}

// LimitsInfo reports used/limit pairs on quota and rate-limit rejections.
type LimitsInfo struct {
	MonthlyCredits    Window `json:"monthly_credits"`
	RequestsPerMinute Window `json:"requests_per_minute"`
	TokensPerMinute   Window `json:"tokens_per_minute"`
}

// Window is a used/limit pair.
type Window struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// Envelope renders the provider-shaped error body.
func (e *ErrorResponse) Envelope() []byte {
	body := struct {
		Type  string `json:"type"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
		Limits *LimitsInfo `json:"limits,omitempty"`
	}{Type: "error", Limits: e.Limits}
	body.Error.Type = e.Type
	body.Error.Message = e.Message

	data, err := json.Marshal(body)
	if err != nil {
		return []byte(`{"type":"error","error":{"type":"api_error","message":"internal error"}}`)
	}
	return data
}

// Common error responses
var (
	ErrMissingToken = ErrorResponse{
		Status:  401,
		Type:    "authentication_error",
		Message: "Missing token",
	}
	ErrInvalidToken = ErrorResponse{
		Status:  401,
		Type:    "authentication_error",
		Message: "Invalid gateway token",
	}
	ErrInvalidBody = ErrorResponse{
		Status:  400,
		Type:    "invalid_request_error",
		Message: "Invalid JSON body",
	}
	ErrTimeout = ErrorResponse{
		Status:  504,
		Type:    "timeout_error",
		Message: "Request timed out",
	}
	ErrUpstream = ErrorResponse{
		Status:  502,
		Type:    "api_error",
		Message: "Failed to connect to upstream",
	}
)
