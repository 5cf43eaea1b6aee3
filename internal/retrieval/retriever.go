// Package retrieval scores and ranks memory items against a query with
// weighted semantic and keyword signals, type weights, recency decay and the
// monorepo subpath boost.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/monorepo"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/textutil"
	"github.com/nextlevelbuilder/memhub/internal/tracing"
)

// MaxLimit caps the number of items a single retrieval may return.
const MaxLimit = 50

// WarnSemanticUnavailable is reported when hybrid or semantic mode ran without a query embedding.
const WarnSemanticUnavailable = "semantic_unavailable"

// Query describes one retrieval.
type Query struct {
	ProjectIDs     []uuid.UUID
	Text           string
	Embedding      []float32 // nil when no embedding provider is configured
	Mode           string    // hybrid | keyword | semantic; empty = workspace default
	Types          []store.MemoryType
	Limit          int
	CurrentSubpath string
	BoostEnabled   bool
	BoostWeight    float64
	// Overfetch keeps up to Limit*Overfetch ranked items so a later
	// re-weighting can promote items from below the cut. Values < 1 mean 1.
	Overfetch int
	Now       time.Time
}

// ScoreBreakdown explains how FinalScore was computed.
type ScoreBreakdown struct {
	Semantic      float64 `json:"semantic"`
	Keyword       float64 `json:"keyword"`
	Base          float64 `json:"base"`
	TypeWeight    float64 `json:"type_weight"`
	TypeAdj       float64 `json:"type_adj"`
	AgeDays       float64 `json:"age_days"`
	RecencyFactor float64 `json:"recency_factor"`
	RecencyAdj    float64 `json:"recency_adj"`
	SubpathBoost  float64 `json:"subpath_boost"`
	Boosted       bool    `json:"boosted,omitempty"`
	FinalScore    float64 `json:"final_score"`
	// Persona re-weighting, filled in at fan-in.
	PersonaWeight float64 `json:"persona_weight,omitempty"`
	AdjustedScore float64 `json:"adjusted_score,omitempty"`
}

// Scored is a ranked item.
type Scored struct {
	Item  store.MemoryItem `json:"item"`
	Score ScoreBreakdown   `json:"score"`
}

// Result is the ranked output of a retrieval.
type Result struct {
	Items               []Scored `json:"items"`
	Mode                string   `json:"mode"`
	Alpha               float64  `json:"alpha"`
	Beta                float64  `json:"beta"`
	SemanticUnavailable bool     `json:"semantic_unavailable,omitempty"`
	CandidateCount      int      `json:"candidate_count"`
	// BoostsApplied counts boosted items among Items.
	BoostsApplied int      `json:"boosts_applied"`
	Limit         int      `json:"limit"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Retriever loads candidates from the memory store and ranks them.
type Retriever struct {
	memory store.MemoryStore
}

func NewRetriever(m store.MemoryStore) *Retriever {
	return &Retriever{memory: m}
}

// Retrieve loads up to search_candidate_pool recent candidates plus as many
// keyword matches for the query text, and ranks their union.
func (r *Retriever) Retrieve(ctx context.Context, q Query, cfg *settings.Settings) (res *Result, err error) {
	ctx, span := tracing.Start(ctx, tracing.StageRetrieve, attribute.Int("memhub.projects", len(q.ProjectIDs)))
	defer func() { tracing.End(span, err) }()

	candidates, err := r.memory.ListCandidates(ctx, store.CandidateQuery{
		ProjectIDs: q.ProjectIDs,
		Types:      q.Types,
		Limit:      cfg.SearchCandidatePool,
		Terms:      textutil.UniqueTerms(q.Text),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}
	res, err = Rank(candidates, q, cfg)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("memhub.candidates", res.CandidateCount), attribute.Int("memhub.results", len(res.Items)))
	return res, nil
}

// EffectiveWeights returns the alpha/beta pair for mode, and whether semantic
// scoring had to be dropped for lack of a query embedding.
func EffectiveWeights(mode string, hasEmbedding bool, cfg *settings.Settings) (alpha, beta float64, unavailable bool) {
	switch mode {
	case settings.ModeKeyword:
		return 0, 1, false
	case settings.ModeSemantic:
		if !hasEmbedding {
			return 0, 1, true
		}
		return 1, 0, false
	default:
		if !hasEmbedding {
			return 0, 1, true
		}
		return cfg.SearchHybridAlpha, cfg.SearchHybridBeta, false
	}
}

// ValidateMode rejects unknown retrieval modes.
func ValidateMode(mode string) error {
	switch mode {
	case "", settings.ModeHybrid, settings.ModeKeyword, settings.ModeSemantic:
		return nil
	}
	return apperr.Invalid("mode", "unknown retrieval mode %q", mode)
}

// Rank scores candidates and returns them ordered by FinalScore desc, then
// CreatedAt desc. Each item appears at most once; Limit bounds the result.
func Rank(candidates []store.MemoryItem, q Query, cfg *settings.Settings) (*Result, error) {
	if err := ValidateMode(q.Mode); err != nil {
		return nil, err
	}
	mode := q.Mode
	if mode == "" {
		mode = cfg.SearchDefaultMode
	}
	limit := q.Limit
	if limit <= 0 {
		limit = cfg.SearchDefaultLimit
	}
	limit = min(limit, MaxLimit)
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}

	alpha, beta, unavailable := EffectiveWeights(mode, len(q.Embedding) > 0, cfg)
	res := &Result{
		Mode:                mode,
		Alpha:               alpha,
		Beta:                beta,
		SemanticUnavailable: unavailable,
		CandidateCount:      len(candidates),
		Limit:               limit,
	}
	if unavailable && q.Text != "" {
		res.Warnings = append(res.Warnings, WarnSemanticUnavailable)
	}

	terms := textutil.UniqueTerms(q.Text)
	browse := len(terms) == 0 && len(q.Embedding) == 0
	halfLife := cfg.SearchRecencyHalfLifeDays

	seen := make(map[uuid.UUID]bool, len(candidates))
	scored := make([]Scored, 0, len(candidates))
	for _, it := range candidates {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true

		var b ScoreBreakdown
		if browse {
			b.Base = 1
		} else {
			if alpha > 0 {
				b.Semantic = textutil.Cosine(q.Embedding, it.Embedding)
			}
			if beta > 0 {
				b.Keyword = textutil.KeywordScore(terms, it.Title+"\n"+it.Content)
			}
			b.Base = alpha*b.Semantic + beta*b.Keyword
		}
		b.TypeWeight = cfg.TypeWeight(it.Type)
		b.TypeAdj = b.Base * b.TypeWeight
		b.AgeDays = math.Max(0, now.Sub(it.CreatedAt).Hours()/24)
		b.RecencyFactor = RecencyFactor(b.AgeDays, halfLife)
		b.RecencyAdj = b.TypeAdj * b.RecencyFactor
		b.SubpathBoost = 1
		if q.BoostEnabled && monorepo.SubpathMatches(it.Subpath, q.CurrentSubpath) {
			b.SubpathBoost = q.BoostWeight
			b.Boosted = true
		}
		b.FinalScore = b.RecencyAdj * b.SubpathBoost
		scored = append(scored, Scored{Item: it, Score: b})
	}

	SortScored(scored, func(s Scored) float64 { return s.Score.FinalScore })
	if keep := limit * max(q.Overfetch, 1); len(scored) > keep {
		scored = scored[:keep]
	}
	res.Items = scored
	res.BoostsApplied = CountBoosted(scored)
	return res, nil
}

// Truncate cuts r.Items to r.Limit and recounts boosts.
func (r *Result) Truncate() {
	if len(r.Items) > r.Limit {
		r.Items = r.Items[:r.Limit]
	}
	r.BoostsApplied = CountBoosted(r.Items)
}

// CountBoosted counts items that received the subpath boost.
func CountBoosted(items []Scored) int {
	n := 0
	for _, s := range items {
		if s.Score.Boosted {
			n++
		}
	}
	return n
}

// RecencyFactor is 0.5^(ageDays/halfLifeDays).
func RecencyFactor(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}

// SortScored orders by key desc, CreatedAt desc, then ID for a total order.
func SortScored(items []Scored, key func(Scored) float64) {
	sort.SliceStable(items, func(i, j int) bool {
		ki, kj := key(items[i]), key(items[j])
		if ki != kj {
			return ki > kj
		}
		ti, tj := items[i].Item.CreatedAt, items[j].Item.CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return items[i].Item.ID.String() < items[j].Item.ID.String()
	})
}
