package retrieval

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/store/sqlstore/sqltest"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func item(typ store.MemoryType, content, subpath string, age time.Duration, emb ...float32) store.MemoryItem {
	return store.MemoryItem{
		ID:        store.GenNewID(),
		Type:      typ,
		Content:   content,
		Status:    store.MemoryStatusActive,
		Subpath:   subpath,
		Embedding: emb,
		CreatedAt: now.Add(-age),
	}
}

func ids(items []Scored) []uuid.UUID {
	out := make([]uuid.UUID, len(items))
	for i, s := range items {
		out[i] = s.Item.ID
	}
	return out
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRecencyDecay(t *testing.T) {
	cfg := settings.Defaults()
	half := time.Duration(cfg.SearchRecencyHalfLifeDays*24) * time.Hour
	cases := []struct {
		name   string
		age    time.Duration
		factor float64
	}{
		{"fresh", 0, 1},
		{"one half-life", half, 0.5},
		{"two half-lives", 2 * half, 0.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it := item(store.TypeDecision, "database migration plan", "", tc.age)
			res, err := Rank([]store.MemoryItem{it}, Query{Text: "migration", Mode: settings.ModeKeyword, Now: now}, cfg)
			if err != nil {
				t.Fatalf("Rank: %v", err)
			}
			got := res.Items[0].Score
			if !approx(got.FinalScore, got.TypeAdj*tc.factor) {
				t.Errorf("FinalScore = %v, want %v", got.FinalScore, got.TypeAdj*tc.factor)
			}
			if got.TypeAdj == 0 {
				t.Errorf("TypeAdj = 0, want a positive score")
			}
		})
	}
}

func TestRecencyFactor_NonPositiveHalfLife(t *testing.T) {
	if got := RecencyFactor(100, 0); got != 1 {
		t.Errorf("RecencyFactor(100, 0) = %v, want 1", got)
	}
}

func TestScoreFormula(t *testing.T) {
	cfg := settings.Defaults()
	it := item(store.TypeConstraint, "cache invalidation", "apps/a", 0, 1, 0)
	res, err := Rank([]store.MemoryItem{it}, Query{
		Text:           "cache",
		Embedding:      []float32{1, 0},
		CurrentSubpath: "apps/a",
		BoostEnabled:   true,
		BoostWeight:    2,
		Now:            now,
	}, cfg)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	b := res.Items[0].Score
	wantBase := 0.6*1 + 0.4*0.5
	if !approx(b.Base, wantBase) {
		t.Errorf("Base = %v, want %v", b.Base, wantBase)
	}
	if !approx(b.TypeAdj, wantBase*1.35) {
		t.Errorf("TypeAdj = %v, want %v", b.TypeAdj, wantBase*1.35)
	}
	if !approx(b.FinalScore, wantBase*1.35*2) {
		t.Errorf("FinalScore = %v, want %v", b.FinalScore, wantBase*1.35*2)
	}
	if res.BoostsApplied != 1 {
		t.Errorf("BoostsApplied = %d, want 1", res.BoostsApplied)
	}
}

func TestModeEquivalence(t *testing.T) {
	candidates := []store.MemoryItem{
		item(store.TypeNote, "retry budget for the payment queue", "", time.Hour, 0.1, 0.9),
		item(store.TypeNote, "payment queue retry policy retry", "", 2*time.Hour, 0.8, 0.2),
		item(store.TypeNote, "unrelated frontend styling", "", 3*time.Hour, 0.95, 0.05),
		item(store.TypeNote, "payment webhooks", "", 4*time.Hour, 0.3, 0.7),
	}
	q := Query{Text: "payment retry", Embedding: []float32{1, 0}, Now: now}

	alphaOnly := settings.Defaults()
	alphaOnly.SearchHybridAlpha, alphaOnly.SearchHybridBeta = 1, 0
	betaOnly := settings.Defaults()
	betaOnly.SearchHybridAlpha, betaOnly.SearchHybridBeta = 0, 1

	rank := func(cfg *settings.Settings, mode string) []uuid.UUID {
		t.Helper()
		qq := q
		qq.Mode = mode
		res, err := Rank(candidates, qq, cfg)
		if err != nil {
			t.Fatalf("Rank(%s): %v", mode, err)
		}
		return ids(res.Items)
	}

	if diff := cmp.Diff(rank(settings.Defaults(), settings.ModeSemantic), rank(alphaOnly, settings.ModeHybrid)); diff != "" {
		t.Errorf("alpha=1,beta=0 differs from semantic ranking (-semantic +hybrid):\n%s", diff)
	}
	if diff := cmp.Diff(rank(settings.Defaults(), settings.ModeKeyword), rank(betaOnly, settings.ModeHybrid)); diff != "" {
		t.Errorf("alpha=0,beta=1 differs from keyword ranking (-keyword +hybrid):\n%s", diff)
	}
}

// Two items under one repo project; boosting apps/a must lift it above apps/b.
func TestSubpathBoost_ImprovesRank(t *testing.T) {
	cfg := settings.Defaults()
	project := store.GenNewID()
	a := item(store.TypeDecision, "auth token rotation", "apps/a", 48*time.Hour)
	b := item(store.TypeDecision, "auth token rotation", "apps/b", time.Hour)
	a.ProjectID, b.ProjectID = project, project
	candidates := []store.MemoryItem{a, b}

	rankOf := func(res *Result, id uuid.UUID) int {
		for i, s := range res.Items {
			if s.Item.ID == id {
				return i
			}
		}
		return -1
	}

	q := Query{Text: "auth rotation", CurrentSubpath: "apps/a", BoostWeight: 2, Now: now}
	plain, err := Rank(candidates, q, cfg)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	q.BoostEnabled = true
	boosted, err := Rank(candidates, q, cfg)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	if before, after := rankOf(plain, a.ID), rankOf(boosted, a.ID); after >= before {
		t.Errorf("apps/a rank = %d boosted, %d plain; want strict improvement", after, before)
	}
	for _, s := range boosted.Items {
		if s.Item.ProjectID != project {
			t.Errorf("item %s escaped repo project", s.Item.ID)
		}
	}
	if boosted.BoostsApplied != 1 {
		t.Errorf("BoostsApplied = %d, want 1", boosted.BoostsApplied)
	}
}

func TestRank_TiesBreakOnRecency(t *testing.T) {
	cfg := settings.Defaults()
	// No decay, so both items score equally.
	cfg.SearchRecencyHalfLifeDays = 0
	older := item(store.TypeNote, "flaky test", "", 5*time.Hour)
	newer := item(store.TypeNote, "flaky test", "", time.Hour)

	res, err := Rank([]store.MemoryItem{older, newer}, Query{Text: "flaky", Mode: settings.ModeKeyword, Now: now}, cfg)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	want := []uuid.UUID{newer.ID, older.ID}
	if diff := cmp.Diff(want, ids(res.Items)); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestRank_DedupesAndLimits(t *testing.T) {
	cfg := settings.Defaults()
	var candidates []store.MemoryItem
	for i := 0; i < 12; i++ {
		candidates = append(candidates, item(store.TypeNote, "release checklist", "", time.Duration(i)*time.Hour))
	}
	candidates = append(candidates, candidates[0], candidates[1])

	res, err := Rank(candidates, Query{Text: "release", Limit: 10, Now: now}, cfg)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(res.Items) != 10 {
		t.Fatalf("len = %d, want 10", len(res.Items))
	}
	seen := map[uuid.UUID]bool{}
	for _, s := range res.Items {
		if seen[s.Item.ID] {
			t.Errorf("item %s returned twice", s.Item.ID)
		}
		seen[s.Item.ID] = true
	}
	if res.CandidateCount != len(candidates) {
		t.Errorf("CandidateCount = %d, want %d", res.CandidateCount, len(candidates))
	}

	res, err = Rank(candidates, Query{Text: "release", Now: now}, cfg)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(res.Items) != cfg.SearchDefaultLimit {
		t.Errorf("default limit len = %d, want %d", len(res.Items), cfg.SearchDefaultLimit)
	}
}

func TestRank_SemanticUnavailable(t *testing.T) {
	cfg := settings.Defaults()
	it := item(store.TypeGoal, "ship the billing rewrite", "", 0)
	res, err := Rank([]store.MemoryItem{it}, Query{Text: "billing", Now: now}, cfg)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !res.SemanticUnavailable || res.Alpha != 0 || res.Beta != 1 {
		t.Errorf("got unavailable=%v alpha=%v beta=%v, want keyword fallback", res.SemanticUnavailable, res.Alpha, res.Beta)
	}
	if diff := cmp.Diff([]string{WarnSemanticUnavailable}, res.Warnings); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}
}

func TestRank_EmptyQueryBrowsesByWeightAndAge(t *testing.T) {
	cfg := settings.Defaults()
	note := item(store.TypeNote, "n", "", 0)
	decision := item(store.TypeDecision, "d", "", 0)
	res, err := Rank([]store.MemoryItem{note, decision}, Query{Now: now}, cfg)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if diff := cmp.Diff([]uuid.UUID{decision.ID, note.ID}, ids(res.Items)); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestRank_UnknownMode(t *testing.T) {
	_, err := Rank(nil, Query{Mode: "fuzzy"}, settings.Defaults())
	if !apperr.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

type fakeMemory struct {
	store.MemoryStore
	got   store.CandidateQuery
	items []store.MemoryItem
}

func (f *fakeMemory) ListCandidates(_ context.Context, q store.CandidateQuery) ([]store.MemoryItem, error) {
	f.got = q
	return f.items, nil
}

func TestRetriever_UsesCandidatePool(t *testing.T) {
	cfg := settings.Defaults()
	mem := &fakeMemory{items: []store.MemoryItem{item(store.TypeNote, "x", "", 0)}}
	project := store.GenNewID()
	res, err := NewRetriever(mem).Retrieve(context.Background(), Query{ProjectIDs: []uuid.UUID{project}, Text: "The Cache cache TTL", Now: now}, cfg)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if mem.got.Limit != cfg.SearchCandidatePool {
		t.Errorf("candidate limit = %d, want %d", mem.got.Limit, cfg.SearchCandidatePool)
	}
	if diff := cmp.Diff([]string{"cache", "ttl"}, mem.got.Terms); diff != "" {
		t.Errorf("candidate terms (-want +got):\n%s", diff)
	}
	if len(res.Items) != 1 {
		t.Errorf("len = %d, want 1", len(res.Items))
	}
}

func TestRetriever_FindsOlderMatchBeyondRecencyPool(t *testing.T) {
	f := sqltest.Open(t)
	ws := f.Workspace(t, "acme")
	p := f.Project(t, ws, "local:api", store.KindRepoRootSlug, "api")
	cfg := settings.Defaults()

	created := time.Now().UTC()
	match := f.MemoryItem(t, store.MemoryItem{ProjectID: p.ID, Type: store.TypeDecision,
		Content: "use postgres advisory locks for migrations", CreatedAt: created.Add(-72 * time.Hour)})
	for i := 0; i <= cfg.SearchCandidatePool; i++ {
		f.MemoryItem(t, store.MemoryItem{ProjectID: p.ID, Type: store.TypeNote,
			Content: fmt.Sprintf("unrelated chatter %d", i), CreatedAt: created.Add(-time.Duration(i) * time.Minute)})
	}

	res, err := NewRetriever(f.Memory).Retrieve(context.Background(), Query{
		ProjectIDs: []uuid.UUID{p.ID},
		Text:       "advisory locks migrations",
		Mode:       settings.ModeKeyword,
	}, cfg)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.CandidateCount != cfg.SearchCandidatePool+1 {
		t.Errorf("CandidateCount = %d, want %d", res.CandidateCount, cfg.SearchCandidatePool+1)
	}
	if len(res.Items) == 0 || res.Items[0].Item.ID != match.ID {
		t.Fatalf("top item = %+v, want the advisory lock decision", res.Items)
	}
	if res.Items[0].Score.Keyword == 0 {
		t.Errorf("keyword score = 0, want a match")
	}
}

func TestRank_Overfetch(t *testing.T) {
	cfg := settings.Defaults()
	var candidates []store.MemoryItem
	for i := 0; i < 8; i++ {
		candidates = append(candidates, item(store.TypeNote, "release checklist", "", time.Duration(i)*time.Hour))
	}

	res, err := Rank(candidates, Query{Text: "release", Limit: 3, Overfetch: 2, Now: now}, cfg)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(res.Items) != 6 || res.Limit != 3 {
		t.Fatalf("len/limit = %d/%d, want 6/3", len(res.Items), res.Limit)
	}
	res.Truncate()
	var want []uuid.UUID
	for _, c := range candidates[:3] {
		want = append(want, c.ID)
	}
	if diff := cmp.Diff(want, ids(res.Items)); diff != "" {
		t.Errorf("truncated (-want +got):\n%s", diff)
	}
}

func TestRank_BoostsCountedAfterLimit(t *testing.T) {
	cfg := settings.Defaults()
	var candidates []store.MemoryItem
	for i := 0; i < 5; i++ {
		candidates = append(candidates, item(store.TypeNote, "deploy script", "apps/a", time.Duration(i)*time.Hour))
	}
	q := Query{Text: "deploy", Limit: 2, Overfetch: 2, CurrentSubpath: "apps/a", BoostEnabled: true, BoostWeight: 1.5, Now: now}

	res, err := Rank(candidates, q, cfg)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if res.BoostsApplied != 4 {
		t.Errorf("BoostsApplied = %d, want 4 over the over-fetched list", res.BoostsApplied)
	}
	res.Truncate()
	if res.BoostsApplied != len(res.Items) || len(res.Items) != 2 {
		t.Errorf("BoostsApplied = %d for %d items, want 2/2", res.BoostsApplied, len(res.Items))
	}
}
