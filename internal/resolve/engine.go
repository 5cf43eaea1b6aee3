// Package resolve maps external repository signals (git remote, repo-root slug,
// manual pin) to a logical project, auto-creating project and mapping when
// a workspace allows it.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/memhub/internal/access"
	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/audit"
	"github.com/nextlevelbuilder/memhub/internal/metrics"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/tracing"
	"github.com/nextlevelbuilder/memhub/pkg/protocol"
)

// Selectors are the external signals a caller offers for resolution.
type Selectors struct {
	WorkspaceKey     string        `json:"workspace_key"`
	GithubRemote     *GithubRemote `json:"github_remote,omitempty"`
	RepoRootSlug     string        `json:"repo_root_slug,omitempty"`
	ManualProjectKey string        `json:"manual_project_key,omitempty"`
	// Priority is used for auto-created mappings instead of max(existing)+1.
	Priority *int `json:"priority,omitempty"`
}

// ProjectRef is the project summary returned to callers.
type ProjectRef struct {
	Key  string    `json:"key"`
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Result is the outcome of a successful resolution.
type Result struct {
	WorkspaceKey     string            `json:"workspace_key"`
	Project          ProjectRef        `json:"project"`
	Resolution       store.MappingKind `json:"resolution"`
	MatchedMappingID *uuid.UUID        `json:"matched_mapping_id,omitempty"`
	Created          bool              `json:"created,omitempty"`

	Workspace  *store.Workspace `json:"-"`
	ProjectRow *store.Project   `json:"-"`
	// Attempts lists the kinds consulted in order, for the debug view.
	Attempts []Attempt `json:"-"`
}

// Attempt records what one strategy did.
type Attempt struct {
	Kind    store.MappingKind `json:"kind"`
	Outcome string            `json:"outcome"` // matched | created | no_selector | no_match | auto_create_disabled | mapping_disabled
}

// SettingsSource supplies effective workspace settings.
type SettingsSource interface {
	For(ctx context.Context, workspaceID uuid.UUID) (*settings.Settings, error)
}

// Engine is the resolution engine. It is the only component that creates
// projects and mappings.
type Engine struct {
	projects store.ProjectStore
	guard    *access.Guard
	settings SettingsSource
	audit    audit.Emitter
	metrics  *metrics.Metrics

	strategies map[store.MappingKind]strategy
}

// Config wires an Engine.
type Config struct {
	Projects store.ProjectStore
	Guard    *access.Guard
	Settings SettingsSource
	Audit    audit.Emitter    // nil = discard
	Metrics  *metrics.Metrics // nil = disabled
}

func NewEngine(cfg Config) *Engine {
	if cfg.Audit == nil {
		cfg.Audit = audit.Discard
	}
	e := &Engine{
		projects: cfg.Projects,
		guard:    cfg.Guard,
		settings: cfg.Settings,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
	}
	e.strategies = map[store.MappingKind]strategy{
		store.KindGithubRemote: githubStrategy{e},
		store.KindRepoRootSlug: slugStrategy{e},
		store.KindManual:       manualStrategy{e},
	}
	return e
}

// Validate checks selector shape without touching storage.
func (s Selectors) Validate() error {
	if strings.TrimSpace(s.WorkspaceKey) == "" {
		return apperr.Invalid("workspace_key", "required")
	}
	if s.GithubRemote == nil && strings.TrimSpace(s.RepoRootSlug) == "" && strings.TrimSpace(s.ManualProjectKey) == "" {
		return apperr.Invalid("selectors", "one of github_remote, repo_root_slug or manual_project_key is required")
	}
	if s.GithubRemote != nil {
		if _, err := NormalizeGithubRemote(*s.GithubRemote); err != nil {
			return err
		}
	}
	if s.RepoRootSlug != "" {
		if _, err := NormalizeSlug(s.RepoRootSlug); err != nil {
			return err
		}
	}
	if s.ManualProjectKey != "" {
		if err := store.ValidateKey(s.ManualProjectKey); err != nil {
			return apperr.Invalid("manual_project_key", "%v", err)
		}
	}
	return nil
}

// resolveCtx is the per-call state shared by strategies.
type resolveCtx struct {
	sel Selectors
	ws  *store.Workspace
	cfg *settings.Settings
}

// Workspace loads a workspace by key and checks membership.
func (e *Engine) Workspace(ctx context.Context, key string) (*store.Workspace, error) {
	ws, err := e.projects.GetWorkspaceByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("workspace", key)
		}
		return nil, err
	}
	if err := e.guard.AssertWorkspaceAccess(ctx, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// Resolve walks the workspace's resolution_order and returns the first match.
func (e *Engine) Resolve(ctx context.Context, sel Selectors) (res *Result, err error) {
	ctx, span := tracing.Start(ctx, tracing.StageResolve, attribute.String("memhub.workspace", sel.WorkspaceKey))
	defer func() { tracing.End(span, err) }()

	if err := sel.Validate(); err != nil {
		return nil, err
	}
	ws, err := e.Workspace(ctx, sel.WorkspaceKey)
	if err != nil {
		return nil, err
	}
	cfg, err := e.settings.For(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	rc := &resolveCtx{sel: sel, ws: ws, cfg: cfg}

	var attempts []Attempt
	for _, kind := range cfg.ResolutionOrder {
		strat, ok := e.strategies[kind]
		if !ok {
			continue
		}
		r, outcome, err := strat.resolve(ctx, rc)
		attempts = append(attempts, Attempt{Kind: kind, Outcome: outcome})
		if err != nil {
			return nil, err
		}
		if r == nil {
			continue
		}
		if err := e.guard.AssertProjectAccess(ctx, ws, r.ProjectRow); err != nil {
			return nil, err
		}
		r.WorkspaceKey = ws.Key
		r.Workspace = ws
		r.Resolution = kind
		r.Attempts = attempts
		r.Project = ProjectRef{Key: r.ProjectRow.Key, ID: r.ProjectRow.ID, Name: r.ProjectRow.Name}
		e.metrics.ObserveResolution(string(kind), r.Created)
		span.SetAttributes(attribute.String("memhub.resolution", string(kind)), attribute.Bool("memhub.created", r.Created))
		return r, nil
	}
	return nil, apperr.NotFound("project", describe(sel))
}

// ProjectByKey loads a pinned project and checks access.
func (e *Engine) ProjectByKey(ctx context.Context, ws *store.Workspace, key string) (*store.Project, error) {
	p, err := e.projects.GetProjectByKey(ctx, ws.ID, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("project", key)
		}
		return nil, err
	}
	if err := e.guard.AssertProjectAccess(ctx, ws, p); err != nil {
		return nil, err
	}
	return p, nil
}

// EnsureSubproject returns the repo#subpath project for an isolated subpath,
// creating it when auto_create_project is on. It returns nil, false, nil when
// the subproject does not exist and may not be created.
func (e *Engine) EnsureSubproject(ctx context.Context, ws *store.Workspace, repo *store.Project, subpath string, cfg *settings.Settings) (*store.Project, bool, error) {
	key := repo.Key + "#" + subpath
	p, err := e.projects.GetProjectByKey(ctx, ws.ID, key)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	if !cfg.AutoCreateProject {
		return nil, false, nil
	}
	p, created, err := e.projects.EnsureProject(ctx, ws.ID, key, key)
	if err != nil {
		return nil, false, err
	}
	if created {
		slog.Info("subproject auto-created", "workspace", ws.Key, "project", key)
		e.emit(ctx, ws, protocol.AuditSubprojectCreated, key, map[string]any{"repo": repo.Key, "subpath": subpath})
	}
	return p, created, nil
}

// autoCreate atomically upserts project + mapping. A mapping that already exists
// but is disabled is reported as no match.
func (e *Engine) autoCreate(ctx context.Context, rc *resolveCtx, kind store.MappingKind, key, externalID string) (*Result, string, error) {
	if !rc.cfg.AutoCreateProject {
		return nil, "auto_create_disabled", nil
	}
	cr, err := e.projects.CreateProjectWithMapping(ctx, store.CreateProjectParams{
		WorkspaceID: rc.ws.ID,
		Key:         key,
		Name:        key,
		Kind:        kind,
		ExternalID:  externalID,
		Priority:    rc.sel.Priority,
	})
	if err != nil {
		return nil, "", fmt.Errorf("auto-create %s: %w", key, err)
	}
	if !cr.Mapping.IsEnabled {
		return nil, "mapping_disabled", nil
	}

	project := cr.Project
	if cr.Mapping.ProjectID != project.ID {
		if project, err = e.projects.GetProjectByID(ctx, cr.Mapping.ProjectID); err != nil {
			return nil, "", err
		}
	}

	if cr.ProjectCreated {
		slog.Info("project auto-created", "workspace", rc.ws.Key, "project", key, "kind", kind)
		e.emit(ctx, rc.ws, protocol.AuditProjectCreated, key, map[string]any{"kind": kind, "external_id": externalID})
	}
	if cr.MappingCreated {
		e.emit(ctx, rc.ws, protocol.AuditMappingCreated, externalID, map[string]any{
			"kind": kind, "project": project.Key, "priority": cr.Mapping.Priority,
		})
	}

	id := cr.Mapping.ID
	created := cr.ProjectCreated || cr.MappingCreated
	outcome := "matched"
	if created {
		outcome = "created"
	}
	return &Result{ProjectRow: project, MatchedMappingID: &id, Created: created}, outcome, nil
}

func (e *Engine) fromMapping(ctx context.Context, m *store.ProjectMapping) (*Result, string, error) {
	p, err := e.projects.GetProjectByID(ctx, m.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("load mapped project: %w", err)
	}
	id := m.ID
	return &Result{ProjectRow: p, MatchedMappingID: &id}, "matched", nil
}

func (e *Engine) emit(ctx context.Context, ws *store.Workspace, action, target string, detail map[string]any) {
	e.audit.Emit(store.AuditEvent{
		WorkspaceID: ws.ID,
		Actor:       store.UserIDFromContext(ctx),
		Action:      action,
		Target:      target,
		Detail:      audit.Detail(detail),
	})
}

func describe(sel Selectors) string {
	var parts []string
	if g := sel.GithubRemote; g != nil {
		if n, err := NormalizeGithubRemote(*g); err == nil {
			parts = append(parts, "github_remote="+n.OwnerRepo())
		}
	}
	if sel.RepoRootSlug != "" {
		parts = append(parts, "repo_root_slug="+sel.RepoRootSlug)
	}
	if sel.ManualProjectKey != "" {
		parts = append(parts, "manual="+sel.ManualProjectKey)
	}
	return strings.Join(parts, ", ")
}
