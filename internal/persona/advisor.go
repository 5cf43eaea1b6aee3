// Package persona recommends a reading persona from the query and recent
// project activity, and re-weights retrieval scores for the applied persona.
package persona

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/retrieval"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/textutil"
	"github.com/nextlevelbuilder/memhub/internal/tracing"
)

const (
	Neutral   = "neutral"
	Author    = "author"
	Reviewer  = "reviewer"
	Architect = "architect"
)

// All lists personas in tie-break order.
var All = []string{Neutral, Author, Reviewer, Architect}

const (
	neutralScore   = 0.25
	queryWeight    = 0.6
	activityWeight = 0.4
	// recentWindow is how many recent items feed the activity signal.
	recentWindow = 50
)

type profile struct {
	cues  []string // exact tokens, or prefixes when longer than three runes
	types []store.MemoryType
}

var profiles = map[string]profile{
	Author: {
		cues:  []string{"implement", "add", "build", "write", "code", "fix", "refactor", "feature", "todo", "continue", "finish", "wire", "endpoint"},
		types: []store.MemoryType{store.TypeActiveWork, store.TypeActivity, store.TypeNote},
	},
	Reviewer: {
		cues:  []string{"review", "pr", "diff", "bug", "regress", "risk", "check", "test", "audit", "secur", "edge", "flaky", "break"},
		types: []store.MemoryType{store.TypeProblem, store.TypeCaveat, store.TypeConstraint},
	},
	Architect: {
		cues:  []string{"design", "architect", "tradeoff", "boundar", "scal", "structur", "decision", "migrat", "schema", "interface", "adr", "roadmap", "long"},
		types: []store.MemoryType{store.TypeDecision, store.TypeGoal, store.TypeSummary},
	},
}

// Signal is one persona's score.
type Signal struct {
	Persona  string  `json:"persona"`
	Score    float64 `json:"score"`
	Query    float64 `json:"query_signal"`
	Activity float64 `json:"activity_signal"`
}

// Recommendation is the advisor's output. Applied is the persona used for
// re-weighting: the override when given, else Recommended when Confidence
// clears the floor, else neutral.
type Recommendation struct {
	Recommended   string   `json:"recommended"`
	Confidence    float64  `json:"confidence"`
	Alternatives  []Signal `json:"alternatives"`
	Applied       string   `json:"applied"`
	Override      string   `json:"override,omitempty"`
	LowConfidence bool     `json:"low_confidence,omitempty"`
}

// Validate rejects unknown persona names; empty is allowed.
func Validate(p string) error {
	if p == "" {
		return nil
	}
	for _, known := range All {
		if p == known {
			return nil
		}
	}
	return apperr.Invalid("persona", "unknown persona %q", p)
}

// Advisor reads recent activity and recommends a persona.
type Advisor struct {
	memory store.MemoryStore
}

func NewAdvisor(m store.MemoryStore) *Advisor {
	return &Advisor{memory: m}
}

// Advise loads recent type counts for the projects and calls Recommend.
func (a *Advisor) Advise(ctx context.Context, projectIDs []uuid.UUID, query, override string, cfg *settings.Settings) (rec *Recommendation, err error) {
	ctx, span := tracing.Start(ctx, tracing.StagePersona)
	defer func() { tracing.End(span, err) }()

	if err := Validate(override); err != nil {
		return nil, err
	}
	counts, err := a.memory.RecentTypeCounts(ctx, projectIDs, recentWindow)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	return Recommend(query, counts, override, cfg.PersonaMinConfidence)
}

// Recommend scores every persona. Non-neutral personas score
// 0.6*query + 0.4*activity; neutral is a constant baseline.
func Recommend(query string, recent map[store.MemoryType]int, override string, floor float64) (*Recommendation, error) {
	if err := Validate(override); err != nil {
		return nil, err
	}
	terms := textutil.Tokenize(query)
	total := 0
	for _, n := range recent {
		total += n
	}

	signals := make([]Signal, 0, len(All))
	for _, p := range All {
		if p == Neutral {
			signals = append(signals, Signal{Persona: Neutral, Score: neutralScore})
			continue
		}
		prof := profiles[p]
		s := Signal{Persona: p, Query: querySignal(terms, prof.cues)}
		if total > 0 {
			n := 0
			for _, t := range prof.types {
				n += recent[t]
			}
			s.Activity = float64(n) / float64(total)
		}
		s.Score = queryWeight*s.Query + activityWeight*s.Activity
		signals = append(signals, s)
	}
	// Stable sort keeps All's order on ties, so neutral wins a draw.
	sort.SliceStable(signals, func(i, j int) bool { return signals[i].Score > signals[j].Score })

	rec := &Recommendation{
		Recommended:  signals[0].Persona,
		Confidence:   signals[0].Score,
		Alternatives: signals[1:],
		Override:     override,
	}
	switch {
	case override != "":
		rec.Applied = override
	case rec.Confidence < floor:
		rec.Applied = Neutral
		rec.LowConfidence = true
	default:
		rec.Applied = rec.Recommended
	}
	return rec, nil
}

// querySignal is the share of cue hits, saturating at two.
func querySignal(terms, cues []string) float64 {
	hits := 0
	for _, t := range terms {
		for _, c := range cues {
			if t == c || (len(c) > 3 && strings.HasPrefix(t, c)) {
				hits++
				break
			}
		}
	}
	return min(float64(hits)/2, 1)
}

// Adjustment records the multiplier applied to one memory type.
type Adjustment struct {
	Type   store.MemoryType `json:"type"`
	Weight float64          `json:"weight"`
	Items  int              `json:"items"`
}

// Reweight multiplies each item's FinalScore by persona_weights[persona][type],
// stores the product in AdjustedScore and re-sorts. It returns the distinct
// non-unit multipliers that were applied.
func Reweight(items []retrieval.Scored, persona string, cfg *settings.Settings) []Adjustment {
	for i := range items {
		w := cfg.PersonaWeight(persona, items[i].Item.Type)
		items[i].Score.PersonaWeight = w
		items[i].Score.AdjustedScore = items[i].Score.FinalScore * w
	}
	retrieval.SortScored(items, func(s retrieval.Scored) float64 { return s.Score.AdjustedScore })
	return Adjustments(items)
}

// Adjustments groups the non-unit persona multipliers of reweighted items by type.
func Adjustments(items []retrieval.Scored) []Adjustment {
	byType := map[store.MemoryType]*Adjustment{}
	for _, s := range items {
		w := s.Score.PersonaWeight
		if w == 1 {
			continue
		}
		adj, ok := byType[s.Item.Type]
		if !ok {
			adj = &Adjustment{Type: s.Item.Type, Weight: w}
			byType[s.Item.Type] = adj
		}
		adj.Items++
	}
	out := make([]Adjustment, 0, len(byType))
	for _, t := range store.MemoryTypes {
		if adj, ok := byType[t]; ok {
			out = append(out, *adj)
		}
	}
	return out
}
