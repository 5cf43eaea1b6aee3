package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SettingsStore implements store.SettingsStore.
type SettingsStore struct {
	db *DB
}

func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) GetWorkspaceSettings(ctx context.Context, workspaceID uuid.UUID) (json.RawMessage, error) {
	var doc string
	err := s.db.GetContext(ctx, &doc, s.db.Rebind(
		`SELECT settings FROM workspace_settings WHERE workspace_id = ?`), workspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace settings: %w", err)
	}
	return json.RawMessage(doc), nil
}

func (s *SettingsStore) PutWorkspaceSettings(ctx context.Context, workspaceID uuid.UUID, doc json.RawMessage) error {
	if len(doc) > 0 && !json.Valid(doc) {
		return fmt.Errorf("workspace settings: invalid JSON document")
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO workspace_settings (workspace_id, settings, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (workspace_id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = EXCLUDED.updated_at`),
		workspaceID, string(jsonOrEmpty(doc)), nowUTC())
	if err != nil {
		return fmt.Errorf("put workspace settings: %w", err)
	}
	return nil
}
