package store

import (
	"context"

	"github.com/google/uuid"
)

// CreateProjectParams describes an idempotent project+mapping creation.
type CreateProjectParams struct {
	WorkspaceID uuid.UUID
	Key         string
	Name        string
	Kind        MappingKind
	ExternalID  string
	// Priority is used verbatim when set; otherwise max(existing priority for kind)+1, starting at 0.
	Priority *int
}

// CreateProjectResult reports what the upsert observed. ProjectCreated and
// MappingCreated are true only for the transaction whose insert won.
type CreateProjectResult struct {
	Project        *Project
	Mapping        *ProjectMapping
	ProjectCreated bool
	MappingCreated bool
}

// EnsureMappingParams describes an idempotent mapping upsert for an existing project.
type EnsureMappingParams struct {
	WorkspaceID uuid.UUID
	ProjectID   uuid.UUID
	Kind        MappingKind
	ExternalID  string
	Priority    *int
}

// ProjectStore owns workspaces, projects and project mappings.
type ProjectStore interface {
	GetWorkspaceByKey(ctx context.Context, key string) (*Workspace, error)
	GetProjectByKey(ctx context.Context, workspaceID uuid.UUID, key string) (*Project, error)
	GetProjectByID(ctx context.Context, id uuid.UUID) (*Project, error)

	// FindMapping returns the enabled mapping of kind matching any external ID,
	// ordered by (priority asc, created_at asc).
	FindMapping(ctx context.Context, workspaceID uuid.UUID, kind MappingKind, externalIDs []string) (*ProjectMapping, error)

	// CreateProjectWithMapping runs in one transaction and relies on unique-key
	// upserts, so concurrent identical calls converge on one row without error.
	CreateProjectWithMapping(ctx context.Context, p CreateProjectParams) (*CreateProjectResult, error)

	// EnsureMapping upserts a mapping; the bool reports whether this call inserted it.
	EnsureMapping(ctx context.Context, p EnsureMappingParams) (*ProjectMapping, bool, error)

	// EnsureProject upserts a project without a mapping (monorepo subprojects).
	EnsureProject(ctx context.Context, workspaceID uuid.UUID, key, name string) (*Project, bool, error)

	ListSubprojects(ctx context.Context, workspaceID uuid.UUID, repoKey string) ([]MonorepoSubproject, error)
}
