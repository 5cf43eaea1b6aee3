package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/store"
)

const ruleCols = `id, workspace_id, scope, user_id, category, title, content, priority, severity, pinned, enabled, condition_expr, created_at, updated_at`

// RuleStore implements store.RuleStore.
type RuleStore struct {
	db *DB
}

func NewRuleStore(db *DB) *RuleStore {
	return &RuleStore{db: db}
}

func (s *RuleStore) ListRules(ctx context.Context, workspaceID uuid.UUID, userID string) ([]store.GlobalRule, error) {
	var rules []store.GlobalRule
	err := s.db.SelectContext(ctx, &rules, s.db.Rebind(
		`SELECT `+ruleCols+` FROM global_rules
		 WHERE workspace_id = ? AND enabled = ?
		   AND (scope = ? OR (scope = ? AND user_id = ? AND user_id <> ''))
		 ORDER BY created_at ASC, id ASC`),
		workspaceID, true, store.RuleScopeWorkspace, store.RuleScopeUser, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// InsertRule writes a global rule.
func (s *RuleStore) InsertRule(ctx context.Context, r *store.GlobalRule) error {
	if r.ID == uuid.Nil {
		r.ID = store.GenNewID()
	}
	now := nowUTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	if r.Severity == "" {
		r.Severity = "medium"
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO global_rules (`+ruleCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.WorkspaceID, r.Scope, r.UserID, r.Category, r.Title, r.Content, r.Priority,
		r.Severity, r.Pinned, r.Enabled, r.Condition, r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}
