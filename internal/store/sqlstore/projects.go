package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/memhub/internal/store"
)

const projectCols = `id, workspace_id, key, name, visibility, created_at, updated_at`
const mappingCols = `id, workspace_id, project_id, kind, external_id, priority, is_enabled, created_at, updated_at`

// ProjectStore implements store.ProjectStore.
type ProjectStore struct {
	db *DB
}

func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{db: db}
}

func (s *ProjectStore) GetWorkspaceByKey(ctx context.Context, key string) (*store.Workspace, error) {
	var ws store.Workspace
	err := s.db.GetContext(ctx, &ws,
		s.db.Rebind(`SELECT id, key, name, created_at, updated_at FROM workspaces WHERE key = ?`), key)
	if err != nil {
		return nil, notFound(err, "workspace "+key)
	}
	return &ws, nil
}

func (s *ProjectStore) GetProjectByKey(ctx context.Context, workspaceID uuid.UUID, key string) (*store.Project, error) {
	return getProjectByKey(ctx, s.db.DB, workspaceID, key)
}

func (s *ProjectStore) GetProjectByID(ctx context.Context, id uuid.UUID) (*store.Project, error) {
	var p store.Project
	err := s.db.GetContext(ctx, &p,
		s.db.Rebind(`SELECT `+projectCols+` FROM projects WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "project "+id.String())
	}
	return &p, nil
}

func (s *ProjectStore) FindMapping(ctx context.Context, workspaceID uuid.UUID, kind store.MappingKind, externalIDs []string) (*store.ProjectMapping, error) {
	if len(externalIDs) == 0 {
		return nil, fmt.Errorf("find %s mapping: %w", kind, store.ErrNotFound)
	}
	q, args, err := inQuery(s.db.DB,
		`SELECT `+mappingCols+` FROM project_mappings
		 WHERE workspace_id = ? AND kind = ? AND is_enabled = ? AND external_id IN (?)
		 ORDER BY priority ASC, created_at ASC, id ASC LIMIT 1`,
		workspaceID, kind, true, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("build mapping query: %w", err)
	}
	var m store.ProjectMapping
	if err := s.db.GetContext(ctx, &m, q, args...); err != nil {
		return nil, notFound(err, fmt.Sprintf("find %s mapping", kind))
	}
	return &m, nil
}

func (s *ProjectStore) CreateProjectWithMapping(ctx context.Context, p store.CreateProjectParams) (*store.CreateProjectResult, error) {
	res := &store.CreateProjectResult{}
	err := withTx(ctx, s.db.DB, func(tx *sqlx.Tx) error {
		proj, created, err := upsertProject(ctx, tx, p.WorkspaceID, p.Key, p.Name)
		if err != nil {
			return err
		}
		res.Project, res.ProjectCreated = proj, created

		m, mCreated, err := upsertMapping(ctx, tx, store.EnsureMappingParams{
			WorkspaceID: p.WorkspaceID,
			ProjectID:   proj.ID,
			Kind:        p.Kind,
			ExternalID:  p.ExternalID,
			Priority:    p.Priority,
		})
		if err != nil {
			return err
		}
		res.Mapping, res.MappingCreated = m, mCreated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create project %s: %w", p.Key, err)
	}
	return res, nil
}

func (s *ProjectStore) EnsureMapping(ctx context.Context, p store.EnsureMappingParams) (*store.ProjectMapping, bool, error) {
	var (
		m       *store.ProjectMapping
		created bool
	)
	err := withTx(ctx, s.db.DB, func(tx *sqlx.Tx) error {
		var err error
		m, created, err = upsertMapping(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("ensure %s mapping %s: %w", p.Kind, p.ExternalID, err)
	}
	return m, created, nil
}

func (s *ProjectStore) EnsureProject(ctx context.Context, workspaceID uuid.UUID, key, name string) (*store.Project, bool, error) {
	var (
		p       *store.Project
		created bool
	)
	err := withTx(ctx, s.db.DB, func(tx *sqlx.Tx) error {
		var err error
		p, created, err = upsertProject(ctx, tx, workspaceID, key, name)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("ensure project %s: %w", key, err)
	}
	return p, created, nil
}

func (s *ProjectStore) ListSubprojects(ctx context.Context, workspaceID uuid.UUID, repoKey string) ([]store.MonorepoSubproject, error) {
	var out []store.MonorepoSubproject
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(
		`SELECT workspace_id, repo_key, subpath, enabled FROM monorepo_subprojects
		 WHERE workspace_id = ? AND repo_key = ? ORDER BY subpath`), workspaceID, repoKey)
	if err != nil {
		return nil, fmt.Errorf("list subprojects: %w", err)
	}
	return out, nil
}

// --- transactional helpers ---

func getProjectByKey(ctx context.Context, q sqlx.QueryerContext, workspaceID uuid.UUID, key string) (*store.Project, error) {
	var p store.Project
	err := sqlx.GetContext(ctx, q, &p,
		sqlx.Rebind(sqlx.BindType(driverOf(q)), `SELECT `+projectCols+` FROM projects WHERE workspace_id = ? AND key = ?`),
		workspaceID, key)
	if err != nil {
		return nil, notFound(err, "project "+key)
	}
	return &p, nil
}

// upsertProject inserts with ON CONFLICT DO NOTHING and re-reads the winner.
// created is true only when this transaction's insert landed.
func upsertProject(ctx context.Context, tx *sqlx.Tx, workspaceID uuid.UUID, key, name string) (*store.Project, bool, error) {
	if name == "" {
		name = key
	}
	now := nowUTC()
	var id uuid.UUID
	err := tx.GetContext(ctx, &id, tx.Rebind(
		`INSERT INTO projects (id, workspace_id, key, name, visibility, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (workspace_id, key) DO NOTHING
		 RETURNING id`),
		store.GenNewID(), workspaceID, key, name, store.VisibilityWorkspace, now, now)
	created := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert project: %w", err)
	}
	p, err := getProjectByKey(ctx, tx, workspaceID, key)
	if err != nil {
		return nil, false, err
	}
	return p, created, nil
}

func upsertMapping(ctx context.Context, tx *sqlx.Tx, p store.EnsureMappingParams) (*store.ProjectMapping, bool, error) {
	priority := 0
	if p.Priority != nil {
		priority = *p.Priority
	} else {
		var next sql.NullInt64
		if err := tx.GetContext(ctx, &next, tx.Rebind(
			`SELECT MAX(priority) + 1 FROM project_mappings WHERE workspace_id = ? AND kind = ?`),
			p.WorkspaceID, p.Kind); err != nil {
			return nil, false, fmt.Errorf("next mapping priority: %w", err)
		}
		if next.Valid {
			priority = int(next.Int64)
		}
	}

	now := nowUTC()
	var id uuid.UUID
	err := tx.GetContext(ctx, &id, tx.Rebind(
		`INSERT INTO project_mappings (id, workspace_id, project_id, kind, external_id, priority, is_enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (workspace_id, kind, external_id) DO NOTHING
		 RETURNING id`),
		store.GenNewID(), p.WorkspaceID, p.ProjectID, p.Kind, p.ExternalID, priority, true, now, now)
	created := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert mapping: %w", err)
	}

	var m store.ProjectMapping
	if err := tx.GetContext(ctx, &m, tx.Rebind(
		`SELECT `+mappingCols+` FROM project_mappings WHERE workspace_id = ? AND kind = ? AND external_id = ?`),
		p.WorkspaceID, p.Kind, p.ExternalID); err != nil {
		return nil, false, notFound(err, "mapping "+p.ExternalID)
	}
	return &m, created, nil
}

// driverOf recovers the driver name from a sqlx handle or transaction.
func driverOf(q sqlx.QueryerContext) string {
	switch v := q.(type) {
	case *sqlx.DB:
		return v.DriverName()
	case *sqlx.Tx:
		return v.DriverName()
	}
	return "sqlite"
}
