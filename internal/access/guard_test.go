package access_test

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/memhub/internal/access"
	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/store/sqlstore/sqltest"
)

func TestGuard(t *testing.T) {
	f := sqltest.Open(t)
	ctx := context.Background()
	ws := f.Workspace(t, "acme", "alice", "bob")
	open := f.Project(t, ws, "local:open", store.KindRepoRootSlug, "open")
	secret := f.Project(t, ws, "local:secret", store.KindRepoRootSlug, "secret")
	if err := f.Projects.SetProjectVisibility(ctx, secret.ID, store.VisibilityRestricted); err != nil {
		t.Fatal(err)
	}
	if err := f.Access.AddProjectMember(ctx, secret.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	strict := access.NewGuard(f.Access, false)
	anon := access.NewGuard(f.Access, true)

	tests := []struct {
		name       string
		guard      *access.Guard
		user       string
		project    *store.Project
		wantDenied bool
	}{
		{"member open project", strict, "alice", open, false},
		{"member restricted with grant", strict, "alice", secret, false},
		{"member restricted without grant", strict, "bob", secret, true},
		{"non member", strict, "mallory", open, true},
		{"anonymous strict", strict, "", open, true},
		{"anonymous allowed", anon, "", secret, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := store.WithUserID(context.Background(), tt.user)
			err := tt.guard.AssertProjectAccess(ctx, ws, tt.project)
			if got := apperr.IsAuthorization(err); got != tt.wantDenied {
				t.Errorf("denied = %v (err %v), want %v", got, err, tt.wantDenied)
			}
		})
	}
}
