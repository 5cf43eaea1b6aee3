package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// SettingsStore persists per-workspace settings as a JSON document.
type SettingsStore interface {
	// GetWorkspaceSettings returns nil, nil when the workspace has no stored settings.
	GetWorkspaceSettings(ctx context.Context, workspaceID uuid.UUID) (json.RawMessage, error)
	PutWorkspaceSettings(ctx context.Context, workspaceID uuid.UUID, doc json.RawMessage) error
}
