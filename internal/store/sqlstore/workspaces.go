package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/store"
)

// EnsureWorkspace creates a workspace if missing and returns it.
func (s *ProjectStore) EnsureWorkspace(ctx context.Context, key, name string) (*store.Workspace, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}
	if name == "" {
		name = key
	}
	now := nowUTC()
	var id uuid.UUID
	err := s.db.GetContext(ctx, &id, s.db.Rebind(
		`INSERT INTO workspaces (id, key, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO NOTHING RETURNING id`),
		store.GenNewID(), key, name, now, now)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return s.GetWorkspaceByKey(ctx, key)
}

// SetProjectVisibility switches a project between workspace-wide and restricted.
func (s *ProjectStore) SetProjectVisibility(ctx context.Context, projectID uuid.UUID, visibility string) error {
	if visibility != store.VisibilityWorkspace && visibility != store.VisibilityRestricted {
		return fmt.Errorf("unknown visibility %q", visibility)
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE projects SET visibility = ?, updated_at = ? WHERE id = ?`), visibility, nowUTC(), projectID)
	if err != nil {
		return fmt.Errorf("set project visibility: %w", err)
	}
	return nil
}

// SetMappingEnabled toggles a mapping. Disabled mappings never match during resolution.
func (s *ProjectStore) SetMappingEnabled(ctx context.Context, mappingID uuid.UUID, enabled bool) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE project_mappings SET is_enabled = ?, updated_at = ? WHERE id = ?`), enabled, nowUTC(), mappingID)
	if err != nil {
		return fmt.Errorf("set mapping enabled: %w", err)
	}
	return nil
}

// AddSubproject adds a subpath to the split_on_demand allow-list.
func (s *ProjectStore) AddSubproject(ctx context.Context, sp store.MonorepoSubproject) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO monorepo_subprojects (workspace_id, repo_key, subpath, enabled) VALUES (?, ?, ?, ?)
		 ON CONFLICT (workspace_id, repo_key, subpath) DO UPDATE SET enabled = EXCLUDED.enabled`),
		sp.WorkspaceID, sp.RepoKey, sp.Subpath, sp.Enabled)
	if err != nil {
		return fmt.Errorf("add subproject: %w", err)
	}
	return nil
}

// ListMappings returns every mapping of a project, enabled or not.
func (s *ProjectStore) ListMappings(ctx context.Context, projectID uuid.UUID) ([]store.ProjectMapping, error) {
	var out []store.ProjectMapping
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(
		`SELECT `+mappingCols+` FROM project_mappings WHERE project_id = ?
		 ORDER BY kind, priority ASC, created_at ASC`), projectID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return out, nil
}
