package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/store"
)

// AccessStore implements store.AccessStore.
type AccessStore struct {
	db *DB
}

func NewAccessStore(db *DB) *AccessStore {
	return &AccessStore{db: db}
}

func (s *AccessStore) IsWorkspaceMember(ctx context.Context, workspaceID uuid.UUID, userID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COUNT(*) FROM workspace_members WHERE workspace_id = ? AND user_id = ?`), workspaceID, userID)
	if err != nil {
		return false, fmt.Errorf("check workspace membership: %w", err)
	}
	return n > 0, nil
}

func (s *AccessStore) CanAccessProject(ctx context.Context, projectID uuid.UUID, userID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COUNT(*) FROM projects p
		 WHERE p.id = ? AND (p.visibility <> ?
		   OR EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id = p.id AND pm.user_id = ?))`),
		projectID, store.VisibilityRestricted, userID)
	if err != nil {
		return false, fmt.Errorf("check project access: %w", err)
	}
	return n > 0, nil
}

// AddWorkspaceMember grants a user membership (idempotent).
func (s *AccessStore) AddWorkspaceMember(ctx context.Context, workspaceID uuid.UUID, userID, role string) error {
	if err := store.ValidateUserID(userID); err != nil {
		return err
	}
	if role == "" {
		role = "member"
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO workspace_members (workspace_id, user_id, role, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = EXCLUDED.role`),
		workspaceID, userID, role, nowUTC())
	if err != nil {
		return fmt.Errorf("add workspace member: %w", err)
	}
	return nil
}

// AddProjectMember grants a user access to a restricted project (idempotent).
func (s *AccessStore) AddProjectMember(ctx context.Context, projectID uuid.UUID, userID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO project_members (project_id, user_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (project_id, user_id) DO NOTHING`),
		projectID, userID, nowUTC())
	if err != nil {
		return fmt.Errorf("add project member: %w", err)
	}
	return nil
}
