package store

import (
	"context"

	"github.com/google/uuid"
)

// RuleStore reads global rules.
type RuleStore interface {
	// ListRules returns enabled workspace-scope rules plus enabled user-scope rules
	// owned by userID (none when userID is empty).
	ListRules(ctx context.Context, workspaceID uuid.UUID, userID string) ([]GlobalRule, error)
}
