package bundle

import (
	"strings"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/persona"
	"github.com/nextlevelbuilder/memhub/internal/resolve"
	"github.com/nextlevelbuilder/memhub/internal/retrieval"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/pkg/protocol"
)

// Request is one context bundle request.
type Request struct {
	WorkspaceKey string
	// ProjectKey pins the project; resolution is skipped when set.
	ProjectKey string
	// Selectors resolve the project when ProjectKey is empty.
	GithubRemote *resolve.GithubRemote
	RepoRootSlug string

	Query          string
	Budget         *int   // nil = workspace default
	Mode           string // default | debug
	CurrentSubpath string
	Persona        string // override
	SearchMode     string // hybrid | keyword | semantic; empty = workspace default
	Limit          int
	Types          []store.MemoryType
}

// Debug reports whether the diagnostic view was requested.
func (r Request) Debug() bool { return r.Mode == protocol.BundleModeDebug }

// Validate checks request shape before any read.
func (r *Request) Validate() error {
	r.WorkspaceKey = strings.TrimSpace(r.WorkspaceKey)
	r.ProjectKey = strings.TrimSpace(r.ProjectKey)
	if r.WorkspaceKey == "" {
		return apperr.Invalid("workspace_key", "required")
	}
	if r.ProjectKey == "" && r.GithubRemote == nil && strings.TrimSpace(r.RepoRootSlug) == "" {
		return apperr.Invalid("project_key", "project_key or a github remote / repo_root_slug selector is required")
	}
	if r.ProjectKey != "" {
		if err := store.ValidateKey(r.ProjectKey); err != nil {
			return apperr.Invalid("project_key", "%v", err)
		}
	}
	switch r.Mode {
	case "":
		r.Mode = protocol.BundleModeDefault
	case protocol.BundleModeDefault, protocol.BundleModeDebug:
	default:
		return apperr.Invalid("mode", "must be %q or %q", protocol.BundleModeDefault, protocol.BundleModeDebug)
	}
	if r.Budget != nil && (*r.Budget < settings.MinBudget || *r.Budget > settings.MaxBudget) {
		return apperr.Invalid("budget", "must be within [%d, %d]", settings.MinBudget, settings.MaxBudget)
	}
	if r.Limit < 0 || r.Limit > retrieval.MaxLimit {
		return apperr.Invalid("limit", "must be within [1, %d]", retrieval.MaxLimit)
	}
	if err := persona.Validate(r.Persona); err != nil {
		return err
	}
	return retrieval.ValidateMode(r.SearchMode)
}

// requestedBudget is the explicit budget, or 0 for the workspace default.
func (r Request) requestedBudget() int {
	if r.Budget == nil {
		return 0
	}
	return *r.Budget
}

func (r Request) selectors() resolve.Selectors {
	return resolve.Selectors{
		WorkspaceKey: r.WorkspaceKey,
		GithubRemote: r.GithubRemote,
		RepoRootSlug: r.RepoRootSlug,
	}
}
