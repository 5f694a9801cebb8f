package model

import "net/http"

// InboundFormat identifies the wire format the client is speaking.
type InboundFormat string

const (
	FormatOpenAI InboundFormat = "openai"
	FormatClaude InboundFormat = "anthropic"
)

// Error kinds shared by both inbound envelopes. The Anthropic envelope uses
// these verbatim; the OpenAI envelope carries them in error.type.
const (
	ErrKindAuthentication = "authentication_error"
	ErrKindInvalidRequest = "invalid_request_error"
	ErrKindRateLimit      = "rate_limit_error"
	ErrKindNotFound       = "not_found_error"
	ErrKindOverloaded     = "overloaded_error"
	ErrKindAPI            = "api_error"
)

// Error is the normalized gateway error.
type Error struct {
	Message  string `json:"message"`
	Type     string `json:"type"`
	Code     any    `json:"code,omitempty"`
	RawError error  `json:"-"`
}

// ErrorWithStatusCode pairs a normalized error with the HTTP status to surface.
type ErrorWithStatusCode struct {
	Error
	StatusCode int `json:"-"`
}

// NewError builds an ErrorWithStatusCode with the kind inferred from status.
func NewError(status int, message string, raw error) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{
		Error: Error{
			Message:  message,
			Type:     kindForStatus(status),
			RawError: raw,
		},
		StatusCode: status,
	}
}

func kindForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrKindAuthentication
	case status == http.StatusTooManyRequests:
		return ErrKindRateLimit
	case status == http.StatusNotFound:
		return ErrKindNotFound
	case status == http.StatusServiceUnavailable:
		return ErrKindOverloaded
	case status >= 400 && status < 500:
		return ErrKindInvalidRequest
	default:
		return ErrKindAPI
	}
}

// Envelope renders the error in the inbound wire format.
//
// Anthropic: {"type":"error","error":{"type":...,"message":...}}
// OpenAI:    {"error":{"message":...,"type":...,"code":<http status>}}
func (e *ErrorWithStatusCode) Envelope(format InboundFormat) map[string]any {
	if format == FormatOpenAI {
		return map[string]any{
			"error": map[string]any{
				"message": e.Message,
				"type":    e.Type,
				"code":    e.StatusCode,
			},
		}
	}
	return map[string]any{
		"type": "error",
		"error": map[string]any{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}
