package protocol

// Error codes returned in ErrorShape.Code by the HTTP and MCP surfaces.
const (
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrNotFound          = "NOT_FOUND"
	ErrResourceExhausted = "RESOURCE_EXHAUSTED"
	ErrTimeout           = "TIMEOUT"
	ErrInternal          = "INTERNAL"
)
