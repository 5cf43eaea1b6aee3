package monorepo

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

type staticLister []store.MonorepoSubproject

func (l staticLister) ListSubprojects(context.Context, uuid.UUID, string) ([]store.MonorepoSubproject, error) {
	return l, nil
}

var repo = &store.Project{Key: "github:acme/mono"}

func cfgWith(mod func(s *settings.Settings)) *settings.Settings {
	s := settings.Defaults()
	if mod != nil {
		mod(s)
	}
	s.Normalize()
	return s
}

func TestClassify_SharedRepo(t *testing.T) {
	c := NewClassifier(nil, nil)
	w := 2.0
	cfg := cfgWith(func(s *settings.Settings) { s.MonorepoSubpathBoostWeight = &w })

	for _, sub := range []string{"apps/a", "apps/b"} {
		got, err := c.Classify(context.Background(), uuid.Nil, repo, sub, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if got.EffectiveScopeKey != repo.Key || got.Isolated {
			t.Errorf("%s: scope = %q isolated=%v, want repo scope", sub, got.EffectiveScopeKey, got.Isolated)
		}
		if !got.BoostEnabled || got.BoostWeight != 2 {
			t.Errorf("%s: boost = %v/%v, want enabled/2", sub, got.BoostEnabled, got.BoostWeight)
		}
	}
}

func TestClassify_NoSubpathNoBoost(t *testing.T) {
	got, err := NewClassifier(nil, nil).Classify(context.Background(), uuid.Nil, repo, "", cfgWith(nil))
	if err != nil {
		t.Fatal(err)
	}
	if got.BoostEnabled || got.BoostWeight != 1 {
		t.Errorf("boost = %v/%v, want disabled/1", got.BoostEnabled, got.BoostWeight)
	}
}

func TestClassify_SplitOnDemand(t *testing.T) {
	lister := staticLister{
		{RepoKey: repo.Key, Subpath: "apps/web", Enabled: true},
		{RepoKey: repo.Key, Subpath: "apps/web/admin", Enabled: true},
		{RepoKey: repo.Key, Subpath: "apps/api", Enabled: false},
	}
	c := NewClassifier(lister, nil)
	cfg := cfgWith(func(s *settings.Settings) { s.MonorepoContextMode = settings.ContextSplitOnDemand })

	tests := []struct {
		sub, want string
	}{
		{"apps/web/src/index.ts", "github:acme/mono#apps/web"},
		{"apps/web/admin/page.tsx", "github:acme/mono#apps/web/admin"},
		{"apps/api/main.go", "github:acme/mono"},
		{"libs/shared", "github:acme/mono"},
	}
	for _, tt := range tests {
		got, err := c.Classify(context.Background(), uuid.Nil, repo, tt.sub, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if got.EffectiveScopeKey != tt.want {
			t.Errorf("Classify(%q) scope = %q, want %q", tt.sub, got.EffectiveScopeKey, tt.want)
		}
	}
}

func TestClassify_SplitAutoLevels(t *testing.T) {
	root := fstest.MapFS{
		"tools/gen/package.json":          {Data: []byte("{}")},
		"tools/gen/src/main.ts":           {Data: []byte("")},
		"services/billing/package.json":   {Data: []byte("{}")},
		"services/billing/lib/x.ts":       {Data: []byte("")},
		"apps/nested/pnpm-workspace.yaml": {Data: []byte("")},
		"apps/nested/pkg/a.ts":            {Data: []byte("")},
		"deep/a/b/c/package.json":         {Data: []byte("{}")},
		"deep/a/b/c/file.ts":              {Data: []byte("")},
	}
	c := NewClassifier(nil, root)

	tests := []struct {
		name  string
		level int
		globs []string
		sub   string
		want  string
	}{
		{"level 0 off", 0, nil, "apps/web/src", ""},
		{"level 1 apps", 1, nil, "apps/web/src/index.ts", "apps/web"},
		{"level 1 packages", 1, nil, "packages/ui", "packages/ui"},
		{"level 1 ignores custom glob", 1, []string{"services/*"}, "services/billing/lib/x.ts", ""},
		{"level 2 custom glob", 2, []string{"services/*"}, "services/billing/lib/x.ts", "services/billing"},
		{"level 2 no package fallback", 2, nil, "tools/gen/src/main.ts", ""},
		{"level 3 package fallback", 3, nil, "tools/gen/src/main.ts", "tools/gen"},
		{"level 3 max depth", 3, nil, "deep/a/b/c/file.ts", ""},
		{"excluded", 2, nil, "apps/web/node_modules/x/index.js", ""},
		{"nested root marker", 1, nil, "apps/nested/pkg/a.ts", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cfgWith(func(s *settings.Settings) {
				s.MonorepoContextMode = settings.ContextSplitAuto
				s.MonorepoDetectionLevel = tt.level
				s.MonorepoWorkspaceGlobs = tt.globs
			})
			got, err := c.Classify(context.Background(), uuid.Nil, repo, tt.sub, cfg)
			if err != nil {
				t.Fatal(err)
			}
			if got.IsolatedSubpath != tt.want {
				t.Errorf("isolated subpath = %q, want %q (reason %s)", got.IsolatedSubpath, tt.want, got.Reason)
			}
		})
	}
}

func TestClassify_RepoOnlyNeverSplits(t *testing.T) {
	cfg := cfgWith(func(s *settings.Settings) {
		s.MonorepoMode = settings.MonorepoRepoOnly
		s.MonorepoContextMode = settings.ContextSplitAuto
	})
	got, err := NewClassifier(nil, nil).Classify(context.Background(), uuid.Nil, repo, "apps/web", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got.Isolated {
		t.Errorf("repo_only must not isolate, got %+v", got)
	}
}

func TestNormalizeSubpath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"./apps/a/", "apps/a"},
		{"/apps//a", "apps/a"},
		{`apps\a\b`, "apps/a/b"},
		{".", ""},
	}
	for _, tt := range tests {
		got, err := NormalizeSubpath(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("NormalizeSubpath(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := NormalizeSubpath("../etc"); !apperr.IsValidation(err) {
		t.Errorf("escape not rejected: %v", err)
	}
}

func TestSubpathMatches(t *testing.T) {
	tests := []struct {
		item, current string
		want          bool
	}{
		{"apps/a", "apps/a", true},
		{"apps/a/src", "apps/a", true},
		{"apps/ab", "apps/a", false},
		{"apps/b", "apps/a", false},
		{"", "apps/a", false},
		{"apps/a", "", false},
	}
	for _, tt := range tests {
		if got := SubpathMatches(tt.item, tt.current); got != tt.want {
			t.Errorf("SubpathMatches(%q, %q) = %v, want %v", tt.item, tt.current, got, tt.want)
		}
	}
}
