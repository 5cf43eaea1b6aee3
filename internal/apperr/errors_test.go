package apperr

import (
	"fmt"
	"testing"
)

func TestClassification_SurvivesWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		nf   bool
		val  bool
		auth bool
	}{
		{"not_found", NotFound("project", "github:acme/api"), true, false, false},
		{"validation", Invalid("budget", "must be within [%d, %d]", 300, 8000), false, true, false},
		{"authorization", Forbidden("u1", "workspace", "acme"), false, false, true},
		{"plain", fmt.Errorf("connection reset"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("resolve: %w", tt.err)
			if got := IsNotFound(wrapped); got != tt.nf {
				t.Errorf("IsNotFound = %v, want %v", got, tt.nf)
			}
			if got := IsValidation(wrapped); got != tt.val {
				t.Errorf("IsValidation = %v, want %v", got, tt.val)
			}
			if got := IsAuthorization(wrapped); got != tt.auth {
				t.Errorf("IsAuthorization = %v, want %v", got, tt.auth)
			}
		})
	}
}

func TestMessages(t *testing.T) {
	if got := Invalid("mode", "unrecognized %q", "fast").Error(); got != `invalid mode: unrecognized "fast"` {
		t.Errorf("message = %q", got)
	}
	if got := NotFound("workspace", "").Error(); got != "workspace not found" {
		t.Errorf("message = %q", got)
	}
}
