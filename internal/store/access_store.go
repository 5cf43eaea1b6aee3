package store

import (
	"context"

	"github.com/google/uuid"
)

// AccessStore answers membership questions for the authorization gate.
type AccessStore interface {
	IsWorkspaceMember(ctx context.Context, workspaceID uuid.UUID, userID string) (bool, error)
	// CanAccessProject assumes workspace membership was already established.
	CanAccessProject(ctx context.Context, projectID uuid.UUID, userID string) (bool, error)
}

// AuditStore persists audit events in batches.
type AuditStore interface {
	BatchInsertAudit(ctx context.Context, events []AuditEvent) error
}
