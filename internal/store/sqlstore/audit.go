package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/memhub/internal/store"
)

// AuditStore implements store.AuditStore.
type AuditStore struct {
	db *DB
}

func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) BatchInsertAudit(ctx context.Context, events []store.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	return withTx(ctx, s.db.DB, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`INSERT INTO audit_events (id, workspace_id, actor, action, target, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		for _, e := range events {
			if e.ID == uuid.Nil {
				e.ID = store.GenNewID()
			}
			if e.CreatedAt.IsZero() {
				e.CreatedAt = nowUTC()
			}
			if _, err := tx.ExecContext(ctx, q, e.ID, e.WorkspaceID, e.Actor, e.Action, e.Target,
				jsonOrNull(e.Detail), e.CreatedAt.UTC()); err != nil {
				return fmt.Errorf("insert audit event %s: %w", e.Action, err)
			}
		}
		return nil
	})
}

// ListAudit returns the most recent audit events for a workspace.
func (s *AuditStore) ListAudit(ctx context.Context, workspaceID uuid.UUID, limit int) ([]store.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	type row struct {
		store.AuditEvent
		RawDetail *string `db:"detail"`
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT id, workspace_id, actor, action, target, detail, created_at
		 FROM audit_events WHERE workspace_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`),
		workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	out := make([]store.AuditEvent, 0, len(rows))
	for _, r := range rows {
		e := r.AuditEvent
		if r.RawDetail != nil {
			e.Detail = []byte(*r.RawDetail)
		}
		out = append(out, e)
	}
	return out, nil
}
