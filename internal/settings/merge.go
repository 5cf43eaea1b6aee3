package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

// Merge overlays JSON documents onto base in order. Scalars and lists replace;
// map-valued keys merge per key (persona_weights merges per persona).
func Merge(base *Settings, docs ...json.RawMessage) (*Settings, error) {
	out := base.Clone()
	for i, doc := range docs {
		doc = bytes.TrimSpace(doc)
		if len(doc) == 0 || bytes.Equal(doc, []byte("null")) {
			continue
		}
		if err := json.Unmarshal(doc, out); err != nil {
			return nil, fmt.Errorf("settings layer %d: %w", i, err)
		}
	}
	return out, nil
}

// Normalize clamps values into their valid ranges. It never fails; use
// Validate to report out-of-range input instead.
func (s *Settings) Normalize() {
	if len(s.ResolutionOrder) == 0 {
		s.ResolutionOrder = append([]store.MappingKind(nil), store.DefaultResolutionOrder...)
	}
	s.ResolutionOrder = dedupeKinds(s.ResolutionOrder)

	switch s.SearchDefaultMode {
	case ModeHybrid, ModeKeyword, ModeSemantic:
	default:
		s.SearchDefaultMode = ModeHybrid
	}
	s.SearchHybridAlpha = math.Max(0, s.SearchHybridAlpha)
	s.SearchHybridBeta = math.Max(0, s.SearchHybridBeta)
	if s.SearchRecencyHalfLifeDays <= 0 {
		s.SearchRecencyHalfLifeDays = 14
	}
	s.SearchSubpathBoostWeight = clamp(s.SearchSubpathBoostWeight, 1, 10)
	if s.MonorepoSubpathBoostWeight != nil {
		w := clamp(*s.MonorepoSubpathBoostWeight, 1, 10)
		s.MonorepoSubpathBoostWeight = &w
	}
	if s.SearchDefaultLimit <= 0 {
		s.SearchDefaultLimit = 8
	}
	if s.SearchCandidatePool < s.SearchDefaultLimit {
		s.SearchCandidatePool = max(200, s.SearchDefaultLimit)
	}

	s.BundleTokenBudgetTotal = ClampBudget(s.BundleTokenBudgetTotal)
	s.BundleBudgetGlobalWorkspacePct = clamp(s.BundleBudgetGlobalWorkspacePct, 0, 1)
	s.BundleBudgetGlobalUserPct = clamp(s.BundleBudgetGlobalUserPct, 0, 1)
	s.BundleBudgetProjectPct = clamp(s.BundleBudgetProjectPct, 0, 1)
	s.BundleBudgetRetrievalPct = clamp(s.BundleBudgetRetrievalPct, 0, 1)

	s.GlobalRulesRecommendMax = max(0, s.GlobalRulesRecommendMax)
	s.GlobalRulesWarnThreshold = max(0, s.GlobalRulesWarnThreshold)
	s.GlobalRulesSummaryMinCount = max(0, s.GlobalRulesSummaryMinCount)
	switch s.GlobalRulesSelectionMode {
	case SelectScore, SelectRecent, SelectPriorityOnly:
	default:
		s.GlobalRulesSelectionMode = SelectScore
	}
	switch s.GlobalRulesRoutingMode {
	case ModeHybrid, ModeKeyword, ModeSemantic:
	default:
		s.GlobalRulesRoutingMode = ModeHybrid
	}
	if s.GlobalRulesRoutingTopK <= 0 {
		s.GlobalRulesRoutingTopK = 5
	}
	s.GlobalRulesRoutingMinScore = clamp(s.GlobalRulesRoutingMinScore, 0, 1)

	switch s.MonorepoMode {
	case MonorepoRepoHashPath, MonorepoRepoOnly:
	default:
		s.MonorepoMode = MonorepoRepoHashPath
	}
	switch s.MonorepoContextMode {
	case ContextSharedRepo, ContextSplitOnDemand, ContextSplitAuto:
	default:
		s.MonorepoContextMode = ContextSharedRepo
	}
	s.MonorepoDetectionLevel = min(max(s.MonorepoDetectionLevel, 0), 3)
	if s.MonorepoMaxDepth <= 0 {
		s.MonorepoMaxDepth = 3
	}

	s.PersonaMinConfidence = clamp(s.PersonaMinConfidence, 0, 1)
	if s.ActiveWorkStaleDays <= 0 {
		s.ActiveWorkStaleDays = 14
	}
	if s.SnapshotActiveWorkLimit <= 0 {
		s.SnapshotActiveWorkLimit = 5
	}
}

// Validate reports the first out-of-range or unknown value as a ValidationError.
func (s *Settings) Validate() error {
	seen := map[store.MappingKind]bool{}
	for _, k := range s.ResolutionOrder {
		if _, ok := store.ParseMappingKind(string(k)); !ok {
			return apperr.Invalid("resolution_order", "unknown kind %q", k)
		}
		if seen[k] {
			return apperr.Invalid("resolution_order", "duplicate kind %q", k)
		}
		seen[k] = true
	}
	if s.GithubKeyPrefix == "" || s.LocalKeyPrefix == "" {
		return apperr.Invalid("key_prefix", "github_key_prefix and local_key_prefix must be non-empty")
	}
	if !oneOf(s.SearchDefaultMode, ModeHybrid, ModeKeyword, ModeSemantic) {
		return apperr.Invalid("search_default_mode", "unknown mode %q", s.SearchDefaultMode)
	}
	if s.SearchHybridAlpha < 0 || s.SearchHybridBeta < 0 {
		return apperr.Invalid("search_hybrid_alpha/beta", "weights must be >= 0")
	}
	if s.SearchRecencyHalfLifeDays <= 0 {
		return apperr.Invalid("search_recency_half_life_days", "must be > 0")
	}
	for t, w := range s.SearchTypeWeights {
		if _, ok := store.ParseMemoryType(t); !ok {
			return apperr.Invalid("search_type_weights", "unknown memory type %q", t)
		}
		if w < 0 {
			return apperr.Invalid("search_type_weights", "%s weight must be >= 0", t)
		}
	}
	if s.BundleTokenBudgetTotal < MinBudget || s.BundleTokenBudgetTotal > MaxBudget {
		return apperr.Invalid("bundle_token_budget_total", "must be within [%d,%d]", MinBudget, MaxBudget)
	}
	pcts := map[string]float64{
		"bundle_budget_global_workspace_pct": s.BundleBudgetGlobalWorkspacePct,
		"bundle_budget_global_user_pct":      s.BundleBudgetGlobalUserPct,
		"bundle_budget_project_pct":          s.BundleBudgetProjectPct,
		"bundle_budget_retrieval_pct":        s.BundleBudgetRetrievalPct,
	}
	for name, v := range pcts {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return apperr.Invalid(name, "%v is outside [0,1]", v)
		}
	}
	if !oneOf(s.GlobalRulesSelectionMode, SelectScore, SelectRecent, SelectPriorityOnly) {
		return apperr.Invalid("global_rules_selection_mode", "unknown mode %q", s.GlobalRulesSelectionMode)
	}
	if !oneOf(s.GlobalRulesRoutingMode, ModeHybrid, ModeKeyword, ModeSemantic) {
		return apperr.Invalid("global_rules_routing_mode", "unknown mode %q", s.GlobalRulesRoutingMode)
	}
	if s.GlobalRulesRoutingMinScore < 0 || s.GlobalRulesRoutingMinScore > 1 {
		return apperr.Invalid("global_rules_routing_min_score", "must be within [0,1]")
	}
	if !oneOf(s.MonorepoContextMode, ContextSharedRepo, ContextSplitOnDemand, ContextSplitAuto) {
		return apperr.Invalid("monorepo_context_mode", "unknown mode %q", s.MonorepoContextMode)
	}
	if !oneOf(s.MonorepoMode, MonorepoRepoHashPath, MonorepoRepoOnly) {
		return apperr.Invalid("monorepo_mode", "unknown mode %q", s.MonorepoMode)
	}
	if s.MonorepoDetectionLevel < 0 || s.MonorepoDetectionLevel > 3 {
		return apperr.Invalid("monorepo_detection_level", "must be within [0,3]")
	}
	for p, m := range s.PersonaWeights {
		if !oneOf(p, "neutral", "author", "reviewer", "architect") {
			return apperr.Invalid("persona_weights", "unknown persona %q", p)
		}
		for t, w := range m {
			if _, ok := store.ParseMemoryType(t); !ok {
				return apperr.Invalid("persona_weights", "unknown memory type %q for %s", t, p)
			}
			if w < 0 {
				return apperr.Invalid("persona_weights", "%s.%s weight must be >= 0", p, t)
			}
		}
	}
	return nil
}

// BudgetPctSum returns the sum of the four section percentages. Values above 1
// are allowed; sections are clamped independently.
func (s *Settings) BudgetPctSum() float64 {
	return s.BundleBudgetGlobalWorkspacePct + s.BundleBudgetGlobalUserPct +
		s.BundleBudgetProjectPct + s.BundleBudgetRetrievalPct
}

// ClampBudget clamps a token budget to [MinBudget, MaxBudget]; 0 means default.
func ClampBudget(b int) int {
	if b == 0 {
		return DefaultBudget
	}
	return min(max(b, MinBudget), MaxBudget)
}

func dedupeKinds(in []store.MappingKind) []store.MappingKind {
	seen := make(map[store.MappingKind]bool, len(in))
	out := in[:0:0]
	for _, k := range in {
		if _, ok := store.ParseMappingKind(string(k)); !ok || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	if len(out) == 0 {
		return append(out, store.DefaultResolutionOrder...)
	}
	return out
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
