package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/pkg/protocol"
)

// intArg extracts an integer argument; JSON numbers arrive as float64.
func intArg(req mcpgo.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// optIntArg returns nil when key is absent.
func optIntArg(req mcpgo.CallToolRequest, key string) *int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}

// listArg accepts either a JSON array of strings or a comma-separated string.
func listArg(req mcpgo.CallToolRequest, key string) []string {
	switch v := req.GetArguments()[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return strings.Split(v, ",")
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

// errorResult reports domain errors as tool errors prefixed with the shared
// error code. Storage failures are logged and hidden.
func errorResult(tool string, err error) *mcpgo.CallToolResult {
	code := errorCode(err)
	msg := err.Error()
	if code == protocol.ErrInternal {
		slog.Error("mcp: tool failed", "tool", tool, "error", err)
		msg = "internal error"
	}
	return mcpgo.NewToolResultError(code + ": " + msg)
}

func errorCode(err error) string {
	switch {
	case apperr.IsValidation(err):
		return protocol.ErrInvalidRequest
	case apperr.IsNotFound(err):
		return protocol.ErrNotFound
	case apperr.IsAuthorization(err):
		return protocol.ErrForbidden
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return protocol.ErrTimeout
	}
	return protocol.ErrInternal
}

// withCaller attaches the configured caller identity when the context has none.
func withCaller(ctx context.Context, userID string) context.Context {
	if userID == "" || store.UserIDFromContext(ctx) != "" {
		return ctx
	}
	return store.WithUserID(ctx, userID)
}
