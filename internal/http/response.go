package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/pkg/protocol"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("http: write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.NewError(code, message))
}

// writeErr maps domain errors to status codes. Storage errors are reported as
// internal without their text.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("http: request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}

func errorStatus(err error) (int, string) {
	switch {
	case apperr.IsValidation(err):
		return http.StatusBadRequest, protocol.ErrInvalidRequest
	case apperr.IsNotFound(err):
		return http.StatusNotFound, protocol.ErrNotFound
	case apperr.IsAuthorization(err):
		return http.StatusForbidden, protocol.ErrForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, protocol.ErrTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; the status is never seen.
		return 499, protocol.ErrTimeout
	}
	return http.StatusInternalServerError, protocol.ErrInternal
}
