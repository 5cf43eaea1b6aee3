// Package rules selects the workspace and user global rules that go into a
// context bundle: pinning, ranking, optional query routing, CEL conditions and
// overflow summaries.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/memhub/internal/metrics"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/textutil"
	"github.com/nextlevelbuilder/memhub/internal/tracing"
)

// Drop reasons.
const (
	DropBelowMinScore    = "below_min_score"
	DropOutsideTopK      = "outside_top_k"
	DropOverRecommendMax = "over_recommend_max"
	DropSummarized       = "summarized"
	DropConditionFalse   = "condition_false"
	DropConditionError   = "condition_error"
)

// Warning codes.
const (
	WarnRuleCount           = "rule_count_over_threshold"
	WarnConditionError      = "rule_condition_error"
	WarnSemanticUnavailable = "semantic_unavailable"
)

var severityWeight = map[string]float64{
	"critical": 1.0,
	"high":     0.75,
	"medium":   0.5,
	"low":      0.25,
	"info":     0.1,
}

// Embedder turns text into a vector. Semantic routing is skipped without one.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Input is the request context rules are routed against.
type Input struct {
	Vars
	QueryEmbedding []float32
}

// Score explains one rule's ranking.
type Score struct {
	RuleID    uuid.UUID `json:"rule_id"`
	Scope     string    `json:"scope"`
	Pinned    bool      `json:"pinned"`
	Base      float64   `json:"base"`
	Relevance *float64  `json:"relevance,omitempty"`
}

// Dropped is a rule excluded from the selection and why.
type Dropped struct {
	RuleID uuid.UUID `json:"rule_id"`
	Scope  string    `json:"scope"`
	Reason string    `json:"reason"`
}

// Warning is a non-fatal anomaly surfaced in the response body.
type Warning struct {
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the router output. Selected holds pinned rules first.
type Result struct {
	Selected         []store.GlobalRule `json:"selected"`
	Dropped          []Dropped          `json:"dropped"`
	Scores           []Score            `json:"score_breakdown"`
	WorkspaceSummary string             `json:"workspace_summary,omitempty"`
	UserSummary      string             `json:"user_summary,omitempty"`
	Warnings         []Warning          `json:"warnings,omitempty"`
	CandidateCount   int                `json:"candidate_count"`
	RoutingApplied   bool               `json:"routing_applied"`
}

// DroppedIDs lists dropped rule ids in drop order.
func (r *Result) DroppedIDs() []uuid.UUID {
	out := make([]uuid.UUID, len(r.Dropped))
	for i, d := range r.Dropped {
		out[i] = d.RuleID
	}
	return out
}

// Router loads and selects global rules.
type Router struct {
	rules      store.RuleStore
	conditions *ConditionEvaluator
	embedder   Embedder
	metrics    *metrics.Metrics
}

// RouterConfig wires a Router. Embedder and Metrics are optional.
type RouterConfig struct {
	Rules      store.RuleStore
	Conditions *ConditionEvaluator
	Embedder   Embedder
	Metrics    *metrics.Metrics
}

func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		rules:      cfg.Rules,
		conditions: cfg.Conditions,
		embedder:   cfg.Embedder,
		metrics:    cfg.Metrics,
	}
}

// Route loads the workspace rules plus the caller's user rules and selects among them.
func (r *Router) Route(ctx context.Context, ws *store.Workspace, userID string, in Input, cfg *settings.Settings) (res *Result, err error) {
	ctx, span := tracing.Start(ctx, tracing.StageRoute)
	defer func() { tracing.End(span, err) }()

	candidates, err := r.rules.ListRules(ctx, ws.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	res = r.Select(ctx, candidates, in, cfg)
	span.SetAttributes(
		attribute.Int("memhub.rules.candidates", res.CandidateCount),
		attribute.Int("memhub.rules.selected", len(res.Selected)),
		attribute.Int("memhub.rules.dropped", len(res.Dropped)),
	)
	return res, nil
}

type ranked struct {
	rule      store.GlobalRule
	base      float64
	relevance float64
}

// Select applies pinning, conditions, ranking, routing and the recommend_max
// ceiling. Pinned rules take the first slots regardless of score.
func (r *Router) Select(ctx context.Context, candidates []store.GlobalRule, in Input, cfg *settings.Settings) *Result {
	res := &Result{CandidateCount: len(candidates)}
	ceiling := max(cfg.GlobalRulesRecommendMax, 0)

	if cfg.GlobalRulesWarnThreshold > 0 && len(candidates) > cfg.GlobalRulesWarnThreshold {
		res.Warnings = append(res.Warnings, Warning{
			Level:   "warn",
			Code:    WarnRuleCount,
			Message: fmt.Sprintf("%d global rules exceed warn threshold %d; consider consolidating", len(candidates), cfg.GlobalRulesWarnThreshold),
		})
	}

	var pinned, rest []ranked
	for _, rule := range candidates {
		rk := ranked{rule: rule, base: baseScore(rule)}
		if rule.Pinned {
			pinned = append(pinned, rk)
			continue
		}
		if rule.Condition != "" && !r.conditionHolds(rule, in.Vars, res) {
			continue
		}
		rest = append(rest, rk)
	}

	sort.SliceStable(pinned, func(i, j int) bool { return lessByPriority(pinned[i], pinned[j]) })
	var overflow []ranked
	for i, p := range pinned {
		res.Scores = append(res.Scores, Score{RuleID: p.rule.ID, Scope: string(p.rule.Scope), Pinned: true, Base: p.base})
		if i < ceiling {
			res.Selected = append(res.Selected, p.rule)
		} else {
			overflow = append(overflow, p)
		}
	}

	sortForSelection(rest, cfg.GlobalRulesSelectionMode)

	if cfg.GlobalRulesRoutingEnabled && in.Query != "" {
		res.RoutingApplied = true
		rest = r.routeByRelevance(ctx, rest, in, cfg, res)
	} else {
		for _, rk := range rest {
			res.Scores = append(res.Scores, Score{RuleID: rk.rule.ID, Scope: string(rk.rule.Scope), Base: rk.base})
		}
	}

	slots := ceiling - len(res.Selected)
	for i, rk := range rest {
		if i < slots {
			res.Selected = append(res.Selected, rk.rule)
		} else {
			overflow = append(overflow, rk)
		}
	}

	summarize := cfg.GlobalRulesSummaryEnabled && len(candidates) > cfg.GlobalRulesSummaryMinCount
	if summarize && len(overflow) > 0 {
		res.WorkspaceSummary, res.UserSummary = summaries(overflow)
	}
	for _, rk := range overflow {
		reason := DropOverRecommendMax
		if summarize {
			reason = DropSummarized
		}
		r.drop(res, rk.rule, reason)
	}
	return res
}

func (r *Router) conditionHolds(rule store.GlobalRule, vars Vars, res *Result) bool {
	if r.conditions == nil {
		return true
	}
	ok, err := r.conditions.Eval(rule.Condition, vars)
	if err != nil {
		slog.Warn("rules: condition failed", "rule", rule.ID, "error", err)
		res.Warnings = append(res.Warnings, Warning{
			Level:   "warn",
			Code:    WarnConditionError,
			Message: fmt.Sprintf("rule %s condition: %v", rule.ID, err),
		})
		r.drop(res, rule, DropConditionError)
		return false
	}
	if !ok {
		r.drop(res, rule, DropConditionFalse)
	}
	return ok
}

// routeByRelevance scores rest against the query, drops those under
// routing_min_score and keeps the top routing_top_k.
func (r *Router) routeByRelevance(ctx context.Context, rest []ranked, in Input, cfg *settings.Settings, res *Result) []ranked {
	alpha, beta := routingWeights(cfg)
	qEmb := in.QueryEmbedding
	if alpha > 0 && len(qEmb) == 0 && r.embedder != nil {
		if emb, err := r.embedder.EmbedQuery(ctx, in.Query); err == nil {
			qEmb = emb
		} else {
			slog.Warn("rules: query embedding failed", "error", err)
		}
	}
	if alpha > 0 && (len(qEmb) == 0 || r.embedder == nil) {
		alpha, beta = 0, 1
		res.Warnings = append(res.Warnings, Warning{
			Level:   "info",
			Code:    WarnSemanticUnavailable,
			Message: "semantic rule routing unavailable; using keyword relevance",
		})
	}

	terms := textutil.UniqueTerms(in.Query)
	for i := range rest {
		var sem, kw float64
		if alpha > 0 {
			if emb, err := r.embedder.EmbedQuery(ctx, ruleText(rest[i].rule)); err == nil {
				sem = textutil.Cosine(qEmb, emb)
			}
		}
		if beta > 0 {
			kw = textutil.KeywordScore(terms, ruleText(rest[i].rule))
		}
		rel := alpha*sem + beta*kw
		rest[i].relevance = rel
		res.Scores = append(res.Scores, Score{RuleID: rest[i].rule.ID, Scope: string(rest[i].rule.Scope), Base: rest[i].base, Relevance: &rel})
	}

	kept := make([]ranked, 0, len(rest))
	for _, rk := range rest {
		if rk.relevance < cfg.GlobalRulesRoutingMinScore {
			r.drop(res, rk.rule, DropBelowMinScore)
			continue
		}
		kept = append(kept, rk)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].relevance != kept[j].relevance {
			return kept[i].relevance > kept[j].relevance
		}
		return kept[i].base > kept[j].base
	})
	if k := cfg.GlobalRulesRoutingTopK; k > 0 && len(kept) > k {
		for _, rk := range kept[k:] {
			r.drop(res, rk.rule, DropOutsideTopK)
		}
		kept = kept[:k]
	}
	return kept
}

func (r *Router) drop(res *Result, rule store.GlobalRule, reason string) {
	res.Dropped = append(res.Dropped, Dropped{RuleID: rule.ID, Scope: string(rule.Scope), Reason: reason})
	r.metrics.ObserveRuleDropped(reason)
}

func routingWeights(cfg *settings.Settings) (alpha, beta float64) {
	switch cfg.GlobalRulesRoutingMode {
	case settings.ModeKeyword:
		return 0, 1
	case settings.ModeSemantic:
		return 1, 0
	default:
		return cfg.SearchHybridAlpha, cfg.SearchHybridBeta
	}
}

func ruleText(r store.GlobalRule) string {
	return r.Category + "\n" + r.Title + "\n" + r.Content
}

// baseScore blends priority (0..100) and severity.
func baseScore(r store.GlobalRule) float64 {
	p := min(max(float64(r.Priority), 0), 100) / 100
	sev, ok := severityWeight[r.Severity]
	if !ok {
		sev = severityWeight["medium"]
	}
	return 0.6*p + 0.4*sev
}

func sortForSelection(rs []ranked, mode string) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		switch mode {
		case settings.SelectRecent:
			if !a.rule.UpdatedAt.Equal(b.rule.UpdatedAt) {
				return a.rule.UpdatedAt.After(b.rule.UpdatedAt)
			}
		case settings.SelectPriorityOnly:
			return lessByPriority(a, b)
		default:
			if a.base != b.base {
				return a.base > b.base
			}
		}
		return lessByPriority(a, b)
	})
}

func lessByPriority(a, b ranked) bool {
	if a.rule.Priority != b.rule.Priority {
		return a.rule.Priority > b.rule.Priority
	}
	return olderFirst(a.rule.CreatedAt, b.rule.CreatedAt, a.rule.ID, b.rule.ID)
}

func olderFirst(ta, tb time.Time, ia, ib uuid.UUID) bool {
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return ia.String() < ib.String()
}
