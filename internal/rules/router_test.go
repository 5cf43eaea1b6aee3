package rules

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func rule(title string, priority int, severity string, pinned bool) store.GlobalRule {
	r := store.GlobalRule{
		Scope:    store.RuleScopeWorkspace,
		Category: "general",
		Title:    title,
		Content:  title,
		Priority: priority,
		Severity: severity,
		Pinned:   pinned,
		Enabled:  true,
	}
	r.ID = store.GenNewID()
	r.CreatedAt = t0
	r.UpdatedAt = t0
	return r
}

func titles(rs []store.GlobalRule) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Title
	}
	return out
}

func reasons(d []Dropped) map[string]int {
	out := map[string]int{}
	for _, x := range d {
		out[x.Reason]++
	}
	return out
}

func newRouter(t *testing.T) *Router {
	t.Helper()
	ce, err := NewConditionEvaluator(16)
	if err != nil {
		t.Fatalf("NewConditionEvaluator: %v", err)
	}
	return NewRouter(RouterConfig{Conditions: ce})
}

func TestSelect_PinnedAlwaysSelected(t *testing.T) {
	r := newRouter(t)
	rng := rand.New(rand.NewPCG(1, 2))
	severities := []string{"critical", "high", "medium", "low", "info"}

	for iter := 0; iter < 200; iter++ {
		cfg := settings.Defaults()
		cfg.GlobalRulesRecommendMax = rng.IntN(6)
		cfg.GlobalRulesRoutingEnabled = rng.IntN(2) == 0
		cfg.GlobalRulesRoutingMinScore = 0.9
		cfg.GlobalRulesRoutingTopK = rng.IntN(3)

		var rs []store.GlobalRule
		var pinned []uuid.UUID
		for i, n := 0, rng.IntN(15); i < n; i++ {
			rr := rule(fmt.Sprintf("rule-%d", i), rng.IntN(101), severities[rng.IntN(len(severities))], rng.IntN(3) == 0)
			rr.CreatedAt = t0.Add(time.Duration(i) * time.Minute)
			if rr.Pinned {
				pinned = append(pinned, rr.ID)
			}
			rs = append(rs, rr)
		}

		res := r.Select(context.Background(), rs, Input{Vars: Vars{Query: "unrelated words"}}, cfg)
		want := min(len(pinned), cfg.GlobalRulesRecommendMax)
		got := 0
		for _, s := range res.Selected {
			if s.Pinned {
				got++
			}
		}
		if got != want {
			t.Fatalf("iter %d: %d pinned selected, want %d", iter, got, want)
		}
		for i := 0; i < want; i++ {
			if !res.Selected[i].Pinned {
				t.Fatalf("iter %d: pinned rules must lead the selection", iter)
			}
		}
		if len(res.Selected) > cfg.GlobalRulesRecommendMax {
			t.Fatalf("iter %d: selected %d > recommend_max %d", iter, len(res.Selected), cfg.GlobalRulesRecommendMax)
		}
		if len(res.Selected)+len(res.Dropped) != len(rs) {
			t.Fatalf("iter %d: selected %d + dropped %d != candidates %d", iter, len(res.Selected), len(res.Dropped), len(rs))
		}
	}
}

func TestSelect_ScoreOrdering(t *testing.T) {
	r := newRouter(t)
	cfg := settings.Defaults()
	cfg.GlobalRulesRecommendMax = 3
	rs := []store.GlobalRule{
		rule("low", 10, "low", false),
		rule("critical", 50, "critical", false),
		rule("pinned", 0, "info", true),
		rule("high", 90, "high", false),
	}
	res := r.Select(context.Background(), rs, Input{}, cfg)
	if diff := cmp.Diff([]string{"pinned", "high", "critical"}, titles(res.Selected)); diff != "" {
		t.Errorf("selected (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{DropSummarized: 1}, reasons(res.Dropped)); diff != "" {
		t.Errorf("dropped (-want +got):\n%s", diff)
	}
	if !strings.Contains(res.WorkspaceSummary, "1 more workspace rules") || !strings.Contains(res.WorkspaceSummary, "low") {
		t.Errorf("WorkspaceSummary = %q", res.WorkspaceSummary)
	}
}

func TestSelect_SelectionModes(t *testing.T) {
	r := newRouter(t)
	older := rule("older-high", 90, "critical", false)
	newer := rule("newer-low", 10, "low", false)
	newer.UpdatedAt = t0.Add(time.Hour)
	mid := rule("mid", 50, "critical", false)

	cases := []struct {
		mode string
		want []string
	}{
		{settings.SelectScore, []string{"older-high", "mid", "newer-low"}},
		{settings.SelectRecent, []string{"newer-low", "older-high", "mid"}},
		{settings.SelectPriorityOnly, []string{"older-high", "mid", "newer-low"}},
	}
	for _, tc := range cases {
		t.Run(tc.mode, func(t *testing.T) {
			cfg := settings.Defaults()
			cfg.GlobalRulesSelectionMode = tc.mode
			res := r.Select(context.Background(), []store.GlobalRule{newer, mid, older}, Input{}, cfg)
			if diff := cmp.Diff(tc.want, titles(res.Selected)); diff != "" {
				t.Errorf("selected (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelect_Routing(t *testing.T) {
	r := newRouter(t)
	cfg := settings.Defaults()
	cfg.GlobalRulesRoutingEnabled = true
	cfg.GlobalRulesRoutingMode = settings.ModeKeyword
	cfg.GlobalRulesRoutingTopK = 1
	cfg.GlobalRulesRoutingMinScore = 0.2

	sql := rule("sql migrations need review", 10, "low", false)
	sqlToo := rule("sql naming", 90, "high", false)
	css := rule("css modules only", 90, "high", false)
	pinned := rule("pinned security rule", 0, "info", true)

	res := r.Select(context.Background(), []store.GlobalRule{sql, sqlToo, css, pinned}, Input{Vars: Vars{Query: "sql migrations"}}, cfg)
	if diff := cmp.Diff([]string{"pinned security rule", "sql migrations need review"}, titles(res.Selected)); diff != "" {
		t.Errorf("selected (-want +got):\n%s", diff)
	}
	want := []Dropped{
		{RuleID: css.ID, Scope: "workspace", Reason: DropBelowMinScore},
		{RuleID: sqlToo.ID, Scope: "workspace", Reason: DropOutsideTopK},
	}
	if diff := cmp.Diff(want, res.Dropped); diff != "" {
		t.Errorf("dropped (-want +got):\n%s", diff)
	}
	if !res.RoutingApplied {
		t.Error("RoutingApplied = false")
	}
	if len(res.Scores) != 4 {
		t.Errorf("score breakdown has %d entries, want 4", len(res.Scores))
	}
	for _, s := range res.Scores {
		if !s.Pinned && s.Relevance == nil {
			t.Errorf("rule %s has no relevance", s.RuleID)
		}
	}
}

func TestSelect_SemanticRoutingFallsBackWithoutEmbedder(t *testing.T) {
	r := newRouter(t)
	cfg := settings.Defaults()
	cfg.GlobalRulesRoutingEnabled = true
	cfg.GlobalRulesRoutingMode = settings.ModeSemantic

	res := r.Select(context.Background(), []store.GlobalRule{rule("logging format", 50, "medium", false)}, Input{Vars: Vars{Query: "logging"}}, cfg)
	if len(res.Selected) != 1 {
		t.Errorf("selected = %v, want keyword fallback to keep the rule", titles(res.Selected))
	}
	var codes []string
	for _, w := range res.Warnings {
		codes = append(codes, w.Code)
	}
	if diff := cmp.Diff([]string{WarnSemanticUnavailable}, codes); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}
}

type fixedEmbedder map[string][]float32

func (f fixedEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	for k, v := range f {
		if strings.Contains(text, k) {
			return v, nil
		}
	}
	return []float32{0, 0, 1}, nil
}

func TestSelect_SemanticRouting(t *testing.T) {
	ce, _ := NewConditionEvaluator(0)
	r := NewRouter(RouterConfig{Conditions: ce, Embedder: fixedEmbedder{
		"deploy":   {1, 0, 0},
		"rollout":  {0.9, 0.1, 0},
		"frontend": {0, 1, 0},
	}})
	cfg := settings.Defaults()
	cfg.GlobalRulesRoutingEnabled = true
	cfg.GlobalRulesRoutingMode = settings.ModeSemantic
	cfg.GlobalRulesRoutingMinScore = 0.5

	res := r.Select(context.Background(), []store.GlobalRule{
		rule("rollout needs a canary", 10, "low", false),
		rule("frontend uses tokens", 90, "critical", false),
	}, Input{Vars: Vars{Query: "deploy"}}, cfg)
	if diff := cmp.Diff([]string{"rollout needs a canary"}, titles(res.Selected)); diff != "" {
		t.Errorf("selected (-want +got):\n%s", diff)
	}
}

func TestSelect_Conditions(t *testing.T) {
	r := newRouter(t)
	cfg := settings.Defaults()
	match := rule("api only", 50, "medium", false)
	match.Condition = `project_key.startsWith("github:acme/api")`
	miss := rule("web only", 50, "medium", false)
	miss.Condition = `current_subpath.startsWith("apps/web")`
	broken := rule("broken", 50, "medium", false)
	broken.Condition = `query +`
	notBool := rule("not bool", 50, "medium", false)
	notBool.Condition = `persona`

	res := r.Select(context.Background(), []store.GlobalRule{match, miss, broken, notBool}, Input{Vars: Vars{
		ProjectKey:     "github:acme/api",
		CurrentSubpath: "apps/api",
	}}, cfg)
	if diff := cmp.Diff([]string{"api only"}, titles(res.Selected)); diff != "" {
		t.Errorf("selected (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{DropConditionFalse: 1, DropConditionError: 2}, reasons(res.Dropped)); diff != "" {
		t.Errorf("dropped (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("warnings = %+v, want 2 condition errors", res.Warnings)
	}
}

func TestSelect_WarnThresholdAndSummaries(t *testing.T) {
	r := newRouter(t)
	cfg := settings.Defaults()
	cfg.GlobalRulesRecommendMax = 2
	cfg.GlobalRulesWarnThreshold = 3
	cfg.GlobalRulesSummaryMinCount = 3

	var rs []store.GlobalRule
	for i := 0; i < 5; i++ {
		rs = append(rs, rule(fmt.Sprintf("ws-%d", i), 90-i, "medium", false))
	}
	u := rule("personal tabs", 10, "low", false)
	u.Scope = store.RuleScopeUser
	u.UserID = "alice"
	rs = append(rs, u)

	res := r.Select(context.Background(), rs, Input{}, cfg)
	if len(res.Warnings) != 1 || res.Warnings[0].Level != "warn" || res.Warnings[0].Code != WarnRuleCount {
		t.Errorf("warnings = %+v", res.Warnings)
	}
	if !strings.HasPrefix(res.WorkspaceSummary, "3 more workspace rules:") {
		t.Errorf("WorkspaceSummary = %q", res.WorkspaceSummary)
	}
	if !strings.Contains(res.UserSummary, "personal tabs") {
		t.Errorf("UserSummary = %q", res.UserSummary)
	}

	cfg.GlobalRulesSummaryEnabled = false
	res = r.Select(context.Background(), rs, Input{}, cfg)
	if res.WorkspaceSummary != "" || res.UserSummary != "" {
		t.Errorf("summaries emitted while disabled")
	}
	if diff := cmp.Diff(map[string]int{DropOverRecommendMax: 4}, reasons(res.Dropped)); diff != "" {
		t.Errorf("dropped (-want +got):\n%s", diff)
	}
}

type listOnly struct {
	gotUser string
	rules   []store.GlobalRule
}

func (l *listOnly) ListRules(_ context.Context, _ uuid.UUID, userID string) ([]store.GlobalRule, error) {
	l.gotUser = userID
	return l.rules, nil
}

func TestRouter_Route(t *testing.T) {
	ls := &listOnly{rules: []store.GlobalRule{rule("one", 1, "low", false)}}
	r := NewRouter(RouterConfig{Rules: ls})
	res, err := r.Route(context.Background(), &store.Workspace{}, "alice", Input{}, settings.Defaults())
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if ls.gotUser != "alice" || len(res.Selected) != 1 {
		t.Errorf("user=%q selected=%v", ls.gotUser, titles(res.Selected))
	}
}
