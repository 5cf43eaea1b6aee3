package persona

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/retrieval"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

func TestRecommend(t *testing.T) {
	cases := []struct {
		name    string
		query   string
		recent  map[store.MemoryType]int
		want    string
		applied string
	}{
		{"empty falls back to neutral", "", nil, Neutral, Neutral},
		{"review query", "review this PR diff for regressions", nil, Reviewer, Reviewer},
		{"design query", "schema migration design tradeoffs", nil, Architect, Architect},
		{"implementation query", "implement the retry endpoint", nil, Author, Author},
		{
			"activity only below floor",
			"",
			map[store.MemoryType]int{store.TypeActiveWork: 3, store.TypeActivity: 2},
			Author,
			Author,
		},
		{
			"weak activity signal",
			"",
			map[store.MemoryType]int{store.TypeDecision: 1, store.TypeNote: 1, store.TypeProblem: 1},
			Neutral,
			Neutral,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := Recommend(tc.query, tc.recent, "", 0.35)
			if err != nil {
				t.Fatalf("Recommend: %v", err)
			}
			if rec.Recommended != tc.want {
				t.Errorf("Recommended = %q, want %q (alternatives %+v)", rec.Recommended, tc.want, rec.Alternatives)
			}
			if rec.Applied != tc.applied {
				t.Errorf("Applied = %q, want %q", rec.Applied, tc.applied)
			}
			if len(rec.Alternatives) != len(All)-1 {
				t.Errorf("alternatives = %d, want %d", len(rec.Alternatives), len(All)-1)
			}
			for i := 1; i < len(rec.Alternatives); i++ {
				if rec.Alternatives[i].Score > rec.Alternatives[i-1].Score {
					t.Errorf("alternatives not sorted: %+v", rec.Alternatives)
				}
			}
		})
	}
}

func TestRecommend_LowConfidenceAppliesNeutral(t *testing.T) {
	// One author cue: 0.6*0.5 = 0.3, above neutral but under the floor.
	rec, err := Recommend("implement", nil, "", 0.35)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.Recommended != Author {
		t.Fatalf("Recommended = %q, want author", rec.Recommended)
	}
	if rec.Applied != Neutral || !rec.LowConfidence {
		t.Errorf("Applied = %q low=%v, want neutral with low confidence", rec.Applied, rec.LowConfidence)
	}
}

func TestRecommend_OverrideWins(t *testing.T) {
	rec, err := Recommend("review the diff", nil, Architect, 0.35)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.Recommended != Reviewer || rec.Applied != Architect {
		t.Errorf("recommended=%q applied=%q, want reviewer/architect", rec.Recommended, rec.Applied)
	}

	if _, err := Recommend("", nil, "wizard", 0.35); !apperr.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestReweight(t *testing.T) {
	cfg := settings.Defaults()
	now := time.Now()
	decision := retrieval.Scored{
		Item:  store.MemoryItem{ID: uuid.New(), Type: store.TypeDecision, CreatedAt: now},
		Score: retrieval.ScoreBreakdown{FinalScore: 1.0},
	}
	problem := retrieval.Scored{
		Item:  store.MemoryItem{ID: uuid.New(), Type: store.TypeProblem, CreatedAt: now},
		Score: retrieval.ScoreBreakdown{FinalScore: 0.8},
	}
	items := []retrieval.Scored{decision, problem}

	adj := Reweight(items, Reviewer, cfg)
	if items[0].Item.ID != problem.Item.ID {
		t.Errorf("first = %s, want problem item after reviewer weighting", items[0].Item.Type)
	}
	if got, want := items[0].Score.AdjustedScore, 0.8*1.4; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("AdjustedScore = %v, want %v", got, want)
	}
	if items[0].Score.FinalScore != 0.8 {
		t.Errorf("FinalScore mutated to %v", items[0].Score.FinalScore)
	}
	want := []Adjustment{{Type: store.TypeProblem, Weight: 1.4, Items: 1}}
	if diff := cmp.Diff(want, adj); diff != "" {
		t.Errorf("adjustments (-want +got):\n%s", diff)
	}

	if adj := Reweight(items, Neutral, cfg); len(adj) != 0 {
		t.Errorf("neutral adjustments = %+v, want none", adj)
	}
}

type countsOnly struct {
	store.MemoryStore
	counts map[store.MemoryType]int
}

func (c countsOnly) RecentTypeCounts(context.Context, []uuid.UUID, int) (map[store.MemoryType]int, error) {
	return c.counts, nil
}

func TestAdvisor_Advise(t *testing.T) {
	a := NewAdvisor(countsOnly{counts: map[store.MemoryType]int{store.TypeProblem: 4, store.TypeCaveat: 1}})
	rec, err := a.Advise(context.Background(), []uuid.UUID{uuid.New()}, "check the flaky test", "", settings.Defaults())
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	if rec.Applied != Reviewer {
		t.Errorf("Applied = %q, want reviewer", rec.Applied)
	}
}
