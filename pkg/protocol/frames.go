// Package protocol defines the wire shapes shared by the memhub HTTP API, the MCP
// tool surface and external clients.
package protocol

// APIVersion is reported by /healthz and `memhub doctor`.
const APIVersion = 1

// ErrorShape describes an API error.
type ErrorShape struct {
	Code         string      `json:"code"`
	Message      string      `json:"message"`
	Details      interface{} `json:"details,omitempty"`
	Retryable    bool        `json:"retryable,omitempty"`
	RetryAfterMs int         `json:"retryAfterMs,omitempty"`
}

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Error ErrorShape `json:"error"`
}

// NewError creates an error envelope.
func NewError(code, message string) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorShape{Code: code, Message: message}}
}
