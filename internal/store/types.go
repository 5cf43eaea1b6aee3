package store

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by store implementations when a row does not exist.
var ErrNotFound = errors.New("not found")

// BaseModel provides common fields for all database models.
type BaseModel struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// GenNewID generates a new UUID v7 (time-ordered).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Workspace is the tenant boundary.
type Workspace struct {
	BaseModel
	Key  string `json:"key" db:"key"`
	Name string `json:"name" db:"name"`
}

// Project visibility values.
const (
	VisibilityWorkspace  = "workspace"
	VisibilityRestricted = "restricted"
)

// Project is unique on (workspace_id, key).
type Project struct {
	BaseModel
	WorkspaceID uuid.UUID `json:"workspace_id" db:"workspace_id"`
	Key         string    `json:"key" db:"key"`
	Name        string    `json:"name" db:"name"`
	Visibility  string    `json:"visibility" db:"visibility"`
}

// MappingKind is the closed set of external signals a project can be resolved from.
type MappingKind string

const (
	KindGithubRemote MappingKind = "github_remote"
	KindRepoRootSlug MappingKind = "repo_root_slug"
	KindManual       MappingKind = "manual"
)

// DefaultResolutionOrder is used when a workspace does not configure one.
var DefaultResolutionOrder = []MappingKind{KindGithubRemote, KindRepoRootSlug, KindManual}

// ParseMappingKind validates a kind name.
func ParseMappingKind(s string) (MappingKind, bool) {
	switch k := MappingKind(strings.TrimSpace(s)); k {
	case KindGithubRemote, KindRepoRootSlug, KindManual:
		return k, true
	}
	return "", false
}

// ProjectMapping associates (kind, external_id) with a project. Unique on
// (workspace_id, kind, external_id); lower priority is tried first.
type ProjectMapping struct {
	BaseModel
	WorkspaceID uuid.UUID   `json:"workspace_id" db:"workspace_id"`
	ProjectID   uuid.UUID   `json:"project_id" db:"project_id"`
	Kind        MappingKind `json:"kind" db:"kind"`
	ExternalID  string      `json:"external_id" db:"external_id"`
	Priority    int         `json:"priority" db:"priority"`
	IsEnabled   bool        `json:"is_enabled" db:"is_enabled"`
}

// MemoryType classifies a memory item.
type MemoryType string

const (
	TypeDecision   MemoryType = "decision"
	TypeConstraint MemoryType = "constraint"
	TypeGoal       MemoryType = "goal"
	TypeActivity   MemoryType = "activity"
	TypeActiveWork MemoryType = "active_work"
	TypeSummary    MemoryType = "summary"
	TypeNote       MemoryType = "note"
	TypeProblem    MemoryType = "problem"
	TypeCaveat     MemoryType = "caveat"
)

// MemoryTypes lists every memory type in a stable order.
var MemoryTypes = []MemoryType{
	TypeDecision, TypeConstraint, TypeGoal, TypeActivity, TypeActiveWork,
	TypeSummary, TypeNote, TypeProblem, TypeCaveat,
}

// ParseMemoryType validates a type name.
func ParseMemoryType(s string) (MemoryType, bool) {
	t := MemoryType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range MemoryTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// MemoryStatusActive is the only status retrieval considers by default.
const MemoryStatusActive = "active"

// MemoryItem is a typed content unit belonging to exactly one project.
type MemoryItem struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID uuid.UUID  `json:"project_id"`
	Type      MemoryType `json:"type"`
	Title     string     `json:"title,omitempty"`
	Content   string     `json:"content"`
	Status    string     `json:"status"`
	Subpath   string     `json:"subpath,omitempty"`
	Embedding []float32  `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RuleScope is the owner scope of a global rule.
type RuleScope string

const (
	RuleScopeWorkspace RuleScope = "workspace"
	RuleScopeUser      RuleScope = "user"
)

// GlobalRule is an organization-wide (workspace) or personal (user) rule.
type GlobalRule struct {
	BaseModel
	WorkspaceID uuid.UUID `json:"workspace_id" db:"workspace_id"`
	Scope       RuleScope `json:"scope" db:"scope"`
	UserID      string    `json:"user_id,omitempty" db:"user_id"`
	Category    string    `json:"category" db:"category"`
	Title       string    `json:"title,omitempty" db:"title"`
	Content     string    `json:"content" db:"content"`
	Priority    int       `json:"priority" db:"priority"`
	Severity    string    `json:"severity" db:"severity"`
	Pinned      bool      `json:"pinned" db:"pinned"`
	Enabled     bool      `json:"enabled" db:"enabled"`
	Condition   string    `json:"condition,omitempty" db:"condition_expr"`
}

// ActiveWorkItem is tracked per project. Staleness and auto-close eligibility are
// computed by the active-work collaborator and only read here.
type ActiveWorkItem struct {
	ID                uuid.UUID `json:"id" db:"id"`
	ProjectID         uuid.UUID `json:"project_id" db:"project_id"`
	Title             string    `json:"title" db:"title"`
	Status            string    `json:"status" db:"status"`
	Owner             string    `json:"owner,omitempty" db:"owner"`
	IsStale           bool      `json:"is_stale" db:"is_stale"`
	AutoCloseEligible bool      `json:"auto_close_eligible" db:"auto_close_eligible"`
	LastActivityAt    time.Time `json:"last_activity_at" db:"last_activity_at"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// ExtractorRun is one pass of the decision extractor over a project's raw activity.
type ExtractorRun struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ProjectID      uuid.UUID  `json:"project_id" db:"project_id"`
	Status         string     `json:"status" db:"status"`
	ItemsExtracted int        `json:"items_extracted" db:"items_extracted"`
	Error          string     `json:"error,omitempty" db:"error"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// MonorepoSubproject is one entry of the split_on_demand allow-list.
type MonorepoSubproject struct {
	WorkspaceID uuid.UUID `json:"workspace_id" db:"workspace_id"`
	RepoKey     string    `json:"repo_key" db:"repo_key"`
	Subpath     string    `json:"subpath" db:"subpath"`
	Enabled     bool      `json:"enabled" db:"enabled"`
}

// AuditEvent records a write performed by the resolution engine.
type AuditEvent struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	WorkspaceID uuid.UUID       `json:"workspace_id" db:"workspace_id"`
	Actor       string          `json:"actor" db:"actor"`
	Action      string          `json:"action" db:"action"`
	Target      string          `json:"target" db:"target"`
	Detail      json.RawMessage `json:"detail,omitempty" db:"-"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
