// Package sqltest opens migrated SQLite stores for package tests.
package sqltest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/store/sqlstore"
)

// Fixture bundles an open test database with its concrete stores.
type Fixture struct {
	DB         *sqlstore.DB
	Stores     *store.Stores
	Projects   *sqlstore.ProjectStore
	Memory     *sqlstore.MemoryStore
	Rules      *sqlstore.RuleStore
	ActiveWork *sqlstore.ActiveWorkStore
	Access     *sqlstore.AccessStore
	Audit      *sqlstore.AuditStore
	Settings   *sqlstore.SettingsStore
}

// Open creates a migrated SQLite database under t.TempDir.
func Open(t testing.TB) *Fixture {
	t.Helper()
	db, err := sqlstore.Open(sqlstore.DialectSQLite, filepath.Join(t.TempDir(), "memhub.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlstore.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	f := &Fixture{
		DB:         db,
		Projects:   sqlstore.NewProjectStore(db),
		Memory:     sqlstore.NewMemoryStore(db),
		Rules:      sqlstore.NewRuleStore(db),
		ActiveWork: sqlstore.NewActiveWorkStore(db),
		Access:     sqlstore.NewAccessStore(db),
		Audit:      sqlstore.NewAuditStore(db),
		Settings:   sqlstore.NewSettingsStore(db),
	}
	f.Stores = &store.Stores{
		Projects:   f.Projects,
		Memory:     f.Memory,
		Rules:      f.Rules,
		ActiveWork: f.ActiveWork,
		Settings:   f.Settings,
		Access:     f.Access,
		Audit:      f.Audit,
	}
	return f
}

// Workspace creates a workspace and makes each user a member.
func (f *Fixture) Workspace(t testing.TB, key string, members ...string) *store.Workspace {
	t.Helper()
	ctx := context.Background()
	ws, err := f.Projects.EnsureWorkspace(ctx, key, "")
	if err != nil {
		t.Fatalf("ensure workspace %s: %v", key, err)
	}
	for _, m := range members {
		if err := f.Access.AddWorkspaceMember(ctx, ws.ID, m, ""); err != nil {
			t.Fatalf("add member %s: %v", m, err)
		}
	}
	return ws
}

// Project creates a project with a mapping of the given kind.
func (f *Fixture) Project(t testing.TB, ws *store.Workspace, key string, kind store.MappingKind, externalID string) *store.Project {
	t.Helper()
	res, err := f.Projects.CreateProjectWithMapping(context.Background(), store.CreateProjectParams{
		WorkspaceID: ws.ID,
		Key:         key,
		Kind:        kind,
		ExternalID:  externalID,
	})
	if err != nil {
		t.Fatalf("create project %s: %v", key, err)
	}
	return res.Project
}

// MemoryItem inserts a memory item.
func (f *Fixture) MemoryItem(t testing.TB, it store.MemoryItem) store.MemoryItem {
	t.Helper()
	if err := f.Memory.InsertMemoryItem(context.Background(), &it); err != nil {
		t.Fatalf("insert memory item: %v", err)
	}
	return it
}

// Rule inserts a global rule.
func (f *Fixture) Rule(t testing.TB, r store.GlobalRule) store.GlobalRule {
	t.Helper()
	if err := f.Rules.InsertRule(context.Background(), &r); err != nil {
		t.Fatalf("insert rule: %v", err)
	}
	return r
}
