// Package access is the authorization gate every read passes before touching
// workspace or project data.
package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

// Guard checks workspace and project membership.
type Guard struct {
	store store.AccessStore
	// AllowAnonymous admits callers without a user ID (local stdio front-ends).
	AllowAnonymous bool
}

func NewGuard(s store.AccessStore, allowAnonymous bool) *Guard {
	return &Guard{store: s, AllowAnonymous: allowAnonymous}
}

// AssertWorkspaceAccess fails with an AuthorizationError unless the caller is a member.
func (g *Guard) AssertWorkspaceAccess(ctx context.Context, ws *store.Workspace) error {
	userID := store.UserIDFromContext(ctx)
	if userID == "" {
		if g.AllowAnonymous {
			return nil
		}
		slog.Warn("security.access_denied", "reason", "anonymous", "workspace", ws.Key)
		return apperr.Forbidden("", "workspace", ws.Key)
	}
	if err := store.ValidateUserID(userID); err != nil {
		return apperr.Invalid("user_id", "%v", err)
	}
	ok, err := g.store.IsWorkspaceMember(ctx, ws.ID, userID)
	if err != nil {
		return fmt.Errorf("workspace access: %w", err)
	}
	if !ok {
		slog.Warn("security.access_denied", "user_id", userID, "workspace", ws.Key)
		return apperr.Forbidden(userID, "workspace", ws.Key)
	}
	return nil
}

// AssertProjectAccess checks workspace membership, then project visibility.
func (g *Guard) AssertProjectAccess(ctx context.Context, ws *store.Workspace, p *store.Project) error {
	if err := g.AssertWorkspaceAccess(ctx, ws); err != nil {
		return err
	}
	userID := store.UserIDFromContext(ctx)
	if userID == "" {
		return nil
	}
	ok, err := g.store.CanAccessProject(ctx, p.ID, userID)
	if err != nil {
		return fmt.Errorf("project access: %w", err)
	}
	if !ok {
		slog.Warn("security.access_denied", "user_id", userID, "project", p.Key)
		return apperr.Forbidden(userID, "project", p.Key)
	}
	return nil
}
