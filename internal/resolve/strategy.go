package resolve

import (
	"context"
	"errors"

	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/pkg/protocol"
)

// strategy is implemented by exactly one type per store.MappingKind.
// A nil result with nil error means "no match, try the next kind".
type strategy interface {
	resolve(ctx context.Context, rc *resolveCtx) (*Result, string, error)
}

type githubStrategy struct{ e *Engine }

func (s githubStrategy) resolve(ctx context.Context, rc *resolveCtx) (*Result, string, error) {
	if rc.sel.GithubRemote == nil {
		return nil, "no_selector", nil
	}
	n, err := NormalizeGithubRemote(*rc.sel.GithubRemote)
	if err != nil {
		return nil, "", err
	}
	m, err := s.e.projects.FindMapping(ctx, rc.ws.ID, store.KindGithubRemote, n.Candidates())
	switch {
	case err == nil:
		return s.e.fromMapping(ctx, m)
	case !errors.Is(err, store.ErrNotFound):
		return nil, "", err
	}
	id := n.CreateID()
	return s.e.autoCreate(ctx, rc, store.KindGithubRemote, rc.cfg.GithubKeyPrefix+id, id)
}

type slugStrategy struct{ e *Engine }

func (s slugStrategy) resolve(ctx context.Context, rc *resolveCtx) (*Result, string, error) {
	if rc.sel.RepoRootSlug == "" {
		return nil, "no_selector", nil
	}
	slug, err := NormalizeSlug(rc.sel.RepoRootSlug)
	if err != nil {
		return nil, "", err
	}
	m, err := s.e.projects.FindMapping(ctx, rc.ws.ID, store.KindRepoRootSlug, []string{slug})
	switch {
	case err == nil:
		return s.e.fromMapping(ctx, m)
	case !errors.Is(err, store.ErrNotFound):
		return nil, "", err
	}
	return s.e.autoCreate(ctx, rc, store.KindRepoRootSlug, rc.cfg.LocalKeyPrefix+slug, slug)
}

// manualStrategy never creates projects. The referenced project must exist;
// a manual mapping is ensured so the next call resolves by lookup.
type manualStrategy struct{ e *Engine }

func (s manualStrategy) resolve(ctx context.Context, rc *resolveCtx) (*Result, string, error) {
	key := rc.sel.ManualProjectKey
	if key == "" {
		return nil, "no_selector", nil
	}
	m, err := s.e.projects.FindMapping(ctx, rc.ws.ID, store.KindManual, []string{key})
	switch {
	case err == nil:
		return s.e.fromMapping(ctx, m)
	case !errors.Is(err, store.ErrNotFound):
		return nil, "", err
	}

	p, err := s.e.projects.GetProjectByKey(ctx, rc.ws.ID, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "no_match", nil
	}
	if err != nil {
		return nil, "", err
	}
	if err := s.e.guard.AssertProjectAccess(ctx, rc.ws, p); err != nil {
		return nil, "", err
	}

	mapping, created, err := s.e.projects.EnsureMapping(ctx, store.EnsureMappingParams{
		WorkspaceID: rc.ws.ID,
		ProjectID:   p.ID,
		Kind:        store.KindManual,
		ExternalID:  key,
	})
	if err != nil {
		return nil, "", err
	}
	if created {
		s.e.emit(ctx, rc.ws, protocol.AuditManualMappingSeen, key, map[string]any{"project": p.Key})
	}
	res := &Result{ProjectRow: p}
	if mapping.IsEnabled && mapping.ProjectID == p.ID {
		id := mapping.ID
		res.MatchedMappingID = &id
	}
	return res, "matched", nil
}
