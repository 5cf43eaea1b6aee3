// Package apperr holds the error types that cross component boundaries unchanged:
// resolution/lookup misses, malformed input and failed access checks.
package apperr

import (
	"errors"
	"fmt"
)

// NotFoundError reports that no resolution strategy matched or a referenced
// entity does not exist.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// ValidationError reports malformed selectors, parameters or settings.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthorizationError reports that the caller lacks workspace or project membership.
type AuthorizationError struct {
	UserID   string
	Resource string
	Key      string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("access denied to %s %s", e.Resource, e.Key)
}

// NotFound builds a *NotFoundError.
func NotFound(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// Invalid builds a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Forbidden builds an *AuthorizationError.
func Forbidden(userID, resource, key string) error {
	return &AuthorizationError{UserID: userID, Resource: resource, Key: key}
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsAuthorization(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}
