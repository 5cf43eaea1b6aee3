// Package monorepo decides whether a request inside a repository is scoped to
// the repository project or to an isolated repo#subpath subproject, and whether
// the subpath boost applies.
package monorepo

import (
	"context"
	"io/fs"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

// Fixed level-1 detection rules.
var levelOneGlobs = []string{"apps/*", "packages/*"}

// SubprojectLister reads the split_on_demand allow-list.
type SubprojectLister interface {
	ListSubprojects(ctx context.Context, workspaceID uuid.UUID, repoKey string) ([]store.MonorepoSubproject, error)
}

// Classification is the outcome of Classify.
type Classification struct {
	ContextMode       string  `json:"context_mode"`
	MonorepoMode      string  `json:"monorepo_mode"`
	RepoKey           string  `json:"repo_key"`
	CurrentSubpath    string  `json:"current_subpath,omitempty"`
	EffectiveScopeKey string  `json:"effective_scope_key"`
	Isolated          bool    `json:"isolated"`
	IsolatedSubpath   string  `json:"isolated_subpath,omitempty"`
	DetectionLevel    int     `json:"detection_level"`
	BoostEnabled      bool    `json:"boost_enabled"`
	BoostWeight       float64 `json:"boost_weight"`
	Reason            string  `json:"reason"`
}

// Classifier implements the three context modes.
type Classifier struct {
	lister SubprojectLister
	// root, when set, is the checked-out repository used by detection level 3
	// and root-marker guardrails.
	root fs.FS
}

func NewClassifier(lister SubprojectLister, root fs.FS) *Classifier {
	return &Classifier{lister: lister, root: root}
}

// NormalizeSubpath cleans a repo-relative path. It rejects paths that escape the repo.
func NormalizeSubpath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return "", nil
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", apperr.Invalid("current_subpath", "%q escapes the repository", p)
		}
	}
	clean := strings.Trim(path.Clean(p), "/")
	if clean == "." {
		return "", nil
	}
	return clean, nil
}

// SubpathMatches reports whether an item's subpath falls under current.
func SubpathMatches(itemSubpath, current string) bool {
	if itemSubpath == "" || current == "" {
		return false
	}
	return itemSubpath == current || strings.HasPrefix(itemSubpath, current+"/")
}

// Classify computes the effective scope for project at subpath.
func (c *Classifier) Classify(ctx context.Context, workspaceID uuid.UUID, project *store.Project, subpath string, cfg *settings.Settings) (*Classification, error) {
	sub, err := NormalizeSubpath(subpath)
	if err != nil {
		return nil, err
	}

	repoKey, pinnedSub, _ := strings.Cut(project.Key, "#")
	out := &Classification{
		ContextMode:       cfg.MonorepoContextMode,
		MonorepoMode:      cfg.MonorepoMode,
		RepoKey:           repoKey,
		CurrentSubpath:    sub,
		EffectiveScopeKey: project.Key,
		DetectionLevel:    cfg.MonorepoDetectionLevel,
		BoostEnabled:      cfg.MonorepoSubpathBoostEnabled && sub != "",
		BoostWeight:       cfg.SubpathBoostWeight(),
		Reason:            "shared",
	}
	if !out.BoostEnabled {
		out.BoostWeight = 1
	}

	switch {
	case pinnedSub != "":
		out.Isolated = true
		out.IsolatedSubpath = pinnedSub
		out.Reason = "pinned_subproject"
		return out, nil
	case sub == "":
		out.Reason = "no_subpath"
		return out, nil
	case cfg.MonorepoMode == settings.MonorepoRepoOnly:
		out.Reason = "repo_only"
		return out, nil
	}

	var root string
	switch cfg.MonorepoContextMode {
	case settings.ContextSplitOnDemand:
		root, err = c.onDemandRoot(ctx, workspaceID, repoKey, sub)
		if err != nil {
			return nil, err
		}
		out.Reason = "not_allow_listed"
	case settings.ContextSplitAuto:
		root = c.autoRoot(sub, cfg)
		out.Reason = "not_detected"
	default:
		return out, nil
	}

	if root != "" {
		out.Isolated = true
		out.IsolatedSubpath = root
		out.EffectiveScopeKey = repoKey + "#" + root
		out.Reason = cfg.MonorepoContextMode
	}
	return out, nil
}

// onDemandRoot returns the longest enabled allow-listed subpath covering sub.
func (c *Classifier) onDemandRoot(ctx context.Context, workspaceID uuid.UUID, repoKey, sub string) (string, error) {
	if c.lister == nil {
		return "", nil
	}
	entries, err := c.lister.ListSubprojects(ctx, workspaceID, repoKey)
	if err != nil {
		return "", err
	}
	best := ""
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		p, err := NormalizeSubpath(e.Subpath)
		if err != nil || p == "" {
			continue
		}
		if (sub == p || strings.HasPrefix(sub, p+"/")) && len(p) > len(best) {
			best = p
		}
	}
	return best, nil
}

// autoRoot infers a subproject root from the detection level.
func (c *Classifier) autoRoot(sub string, cfg *settings.Settings) string {
	level := cfg.MonorepoDetectionLevel
	if level <= 0 {
		return ""
	}
	if matchesAny(cfg.MonorepoExcludeGlobs, sub) {
		return ""
	}

	globs := append([]string(nil), levelOneGlobs...)
	if level >= 2 {
		globs = append(globs, cfg.MonorepoWorkspaceGlobs...)
	}

	segs := strings.Split(sub, "/")
	for depth := 1; depth <= len(segs) && depth <= cfg.MonorepoMaxDepth; depth++ {
		cand := strings.Join(segs[:depth], "/")
		if matchesAny(cfg.MonorepoExcludeGlobs, cand) {
			return ""
		}
		if matchesAny(globs, cand) && !c.isNestedRoot(cand, cfg.MonorepoRootMarkers) {
			return cand
		}
	}

	if level >= 3 {
		return c.nearestPackageDir(sub, cfg)
	}
	return ""
}

// nearestPackageDir walks up from sub to the closest directory holding a
// package.json, stopping at the repository root or any directory carrying a
// root marker.
func (c *Classifier) nearestPackageDir(sub string, cfg *settings.Settings) string {
	if c.root == nil {
		return ""
	}
	dir := sub
	if st, err := fs.Stat(c.root, sub); err != nil || !st.IsDir() {
		dir = path.Dir(sub)
	}
	for dir != "." && dir != "" && dir != "/" {
		if c.isNestedRoot(dir, cfg.MonorepoRootMarkers) {
			return ""
		}
		if fileExists(c.root, path.Join(dir, "package.json")) {
			if depth := strings.Count(dir, "/") + 1; depth > cfg.MonorepoMaxDepth {
				return ""
			}
			if matchesAny(cfg.MonorepoExcludeGlobs, dir) {
				return ""
			}
			return dir
		}
		dir = path.Dir(dir)
	}
	return ""
}

// isNestedRoot reports whether dir itself carries a workspace root marker.
func (c *Classifier) isNestedRoot(dir string, markers []string) bool {
	if c.root == nil {
		return false
	}
	for _, m := range markers {
		if fileExists(c.root, path.Join(dir, m)) {
			return true
		}
	}
	return false
}

func fileExists(fsys fs.FS, name string) bool {
	st, err := fs.Stat(fsys, name)
	return err == nil && !st.IsDir()
}

func matchesAny(globs []string, p string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, p); err == nil && ok {
			return true
		}
		// "**/x/**" style excludes should also match the directory itself.
		if strings.HasSuffix(g, "/**") {
			if ok, err := doublestar.Match(strings.TrimSuffix(g, "/**"), p); err == nil && ok {
				return true
			}
		}
	}
	return false
}
