package store

import (
	"strings"
	"testing"
)

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"empty", "", false},
		{"normal", "user@example.com", false},
		{"max_length", strings.Repeat("a", 255), false},
		{"too_long", strings.Repeat("a", 256), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserID(%d chars) error = %v, wantErr %v", len(tt.id), err, tt.wantErr)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"github:acme/api", false},
		{"local:billing", false},
		{"github:acme/mono#apps/web", false},
		{"", true},
		{" leading-space", true},
		{"has space", true},
		{strings.Repeat("k", 201), true},
	}
	for _, tt := range tests {
		if err := ValidateKey(tt.key); (err != nil) != tt.wantErr {
			t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
}

func TestParseKinds(t *testing.T) {
	if k, ok := ParseMappingKind(" manual "); !ok || k != KindManual {
		t.Errorf("ParseMappingKind(manual) = %q, %v", k, ok)
	}
	if _, ok := ParseMappingKind("gitlab_remote"); ok {
		t.Error("unknown kind accepted")
	}
	if tp, ok := ParseMemoryType("Decision"); !ok || tp != TypeDecision {
		t.Errorf("ParseMemoryType(Decision) = %q, %v", tp, ok)
	}
}
