// Package settings resolves the effective WorkspaceSettings for a workspace:
// built-in defaults, overlaid by the process-level defaults from config,
// overlaid by the workspace's stored document.
package settings

import (
	"github.com/nextlevelbuilder/memhub/internal/store"
)

// Search modes.
const (
	ModeHybrid   = "hybrid"
	ModeKeyword  = "keyword"
	ModeSemantic = "semantic"
)

// Monorepo context modes.
const (
	ContextSharedRepo    = "shared_repo"
	ContextSplitOnDemand = "split_on_demand"
	ContextSplitAuto     = "split_auto"
	MonorepoRepoHashPath = "repo_hash_subpath"
	MonorepoRepoOnly     = "repo_only"
)

// Rule selection modes.
const (
	SelectScore        = "score"
	SelectRecent       = "recent"
	SelectPriorityOnly = "priority_only"
)

// Budget bounds.
const (
	MinBudget     = 300
	MaxBudget     = 8000
	DefaultBudget = 3000
)

// Settings is the per-workspace configuration consumed by resolution and bundle
// assembly. Field names match the stored JSON document.
type Settings struct {
	ResolutionOrder   []store.MappingKind `json:"resolution_order"`
	AutoCreateProject bool                `json:"auto_create_project"`
	GithubKeyPrefix   string              `json:"github_key_prefix"`
	LocalKeyPrefix    string              `json:"local_key_prefix"`

	SearchDefaultMode         string             `json:"search_default_mode"`
	SearchHybridAlpha         float64            `json:"search_hybrid_alpha"`
	SearchHybridBeta          float64            `json:"search_hybrid_beta"`
	SearchTypeWeights         map[string]float64 `json:"search_type_weights"`
	SearchRecencyHalfLifeDays float64            `json:"search_recency_half_life_days"`
	SearchSubpathBoostWeight  float64            `json:"search_subpath_boost_weight"`
	SearchDefaultLimit        int                `json:"search_default_limit"`
	SearchCandidatePool       int                `json:"search_candidate_pool"`

	BundleTokenBudgetTotal         int     `json:"bundle_token_budget_total"`
	BundleBudgetGlobalWorkspacePct float64 `json:"bundle_budget_global_workspace_pct"`
	BundleBudgetGlobalUserPct      float64 `json:"bundle_budget_global_user_pct"`
	BundleBudgetProjectPct         float64 `json:"bundle_budget_project_pct"`
	BundleBudgetRetrievalPct       float64 `json:"bundle_budget_retrieval_pct"`

	GlobalRulesRecommendMax    int     `json:"global_rules_recommend_max"`
	GlobalRulesWarnThreshold   int     `json:"global_rules_warn_threshold"`
	GlobalRulesSummaryEnabled  bool    `json:"global_rules_summary_enabled"`
	GlobalRulesSummaryMinCount int     `json:"global_rules_summary_min_count"`
	GlobalRulesSelectionMode   string  `json:"global_rules_selection_mode"`
	GlobalRulesRoutingEnabled  bool    `json:"global_rules_routing_enabled"`
	GlobalRulesRoutingMode     string  `json:"global_rules_routing_mode"`
	GlobalRulesRoutingTopK     int     `json:"global_rules_routing_top_k"`
	GlobalRulesRoutingMinScore float64 `json:"global_rules_routing_min_score"`

	MonorepoMode                string   `json:"monorepo_mode"`
	MonorepoContextMode         string   `json:"monorepo_context_mode"`
	MonorepoDetectionLevel      int      `json:"monorepo_detection_level"`
	MonorepoWorkspaceGlobs      []string `json:"monorepo_workspace_globs"`
	MonorepoExcludeGlobs        []string `json:"monorepo_exclude_globs"`
	MonorepoRootMarkers         []string `json:"monorepo_root_markers"`
	MonorepoMaxDepth            int      `json:"monorepo_max_depth"`
	MonorepoSubpathBoostEnabled bool     `json:"monorepo_subpath_boost_enabled"`
	// MonorepoSubpathBoostWeight overrides SearchSubpathBoostWeight when set.
	MonorepoSubpathBoostWeight *float64 `json:"monorepo_subpath_boost_weight,omitempty"`

	PersonaWeights       map[string]map[string]float64 `json:"persona_weights"`
	PersonaMinConfidence float64                       `json:"persona_min_confidence"`

	ActiveWorkStaleDays        int  `json:"active_work_stale_days"`
	ActiveWorkAutoCloseEnabled bool `json:"active_work_auto_close_enabled"`
	SnapshotActiveWorkLimit    int  `json:"snapshot_active_work_limit"`
}

// Defaults returns a freshly allocated default Settings.
func Defaults() *Settings {
	return &Settings{
		ResolutionOrder:   append([]store.MappingKind(nil), store.DefaultResolutionOrder...),
		AutoCreateProject: true,
		GithubKeyPrefix:   "github:",
		LocalKeyPrefix:    "local:",

		SearchDefaultMode: ModeHybrid,
		SearchHybridAlpha: 0.6,
		SearchHybridBeta:  0.4,
		SearchTypeWeights: map[string]float64{
			"decision":    1.5,
			"constraint":  1.35,
			"goal":        1.2,
			"activity":    1.05,
			"active_work": 1.1,
			"summary":     1.2,
			"note":        1.0,
			"problem":     1.0,
			"caveat":      0.95,
		},
		SearchRecencyHalfLifeDays: 14,
		SearchSubpathBoostWeight:  1.5,
		SearchDefaultLimit:        8,
		SearchCandidatePool:       200,

		BundleTokenBudgetTotal:         DefaultBudget,
		BundleBudgetGlobalWorkspacePct: 0.15,
		BundleBudgetGlobalUserPct:      0.10,
		BundleBudgetProjectPct:         0.45,
		BundleBudgetRetrievalPct:       0.30,

		GlobalRulesRecommendMax:    5,
		GlobalRulesWarnThreshold:   10,
		GlobalRulesSummaryEnabled:  true,
		GlobalRulesSummaryMinCount: 3,
		GlobalRulesSelectionMode:   SelectScore,
		GlobalRulesRoutingEnabled:  false,
		GlobalRulesRoutingMode:     ModeHybrid,
		GlobalRulesRoutingTopK:     5,
		GlobalRulesRoutingMinScore: 0.2,

		MonorepoMode:                MonorepoRepoHashPath,
		MonorepoContextMode:         ContextSharedRepo,
		MonorepoDetectionLevel:      2,
		MonorepoWorkspaceGlobs:      []string{"apps/*", "packages/*"},
		MonorepoExcludeGlobs:        []string{"**/node_modules/**", "**/.git/**", "**/dist/**", "**/build/**"},
		MonorepoRootMarkers:         []string{"pnpm-workspace.yaml", "turbo.json", "nx.json", "lerna.json"},
		MonorepoMaxDepth:            3,
		MonorepoSubpathBoostEnabled: true,

		PersonaWeights: map[string]map[string]float64{
			"author": {
				"active_work": 1.3,
				"activity":    1.2,
				"note":        1.1,
				"decision":    0.9,
			},
			"reviewer": {
				"problem":    1.4,
				"caveat":     1.3,
				"constraint": 1.2,
				"activity":   0.9,
			},
			"architect": {
				"decision":    1.4,
				"constraint":  1.3,
				"goal":        1.2,
				"activity":    0.8,
				"active_work": 0.85,
			},
		},
		PersonaMinConfidence: 0.35,

		ActiveWorkStaleDays:        14,
		ActiveWorkAutoCloseEnabled: false,
		SnapshotActiveWorkLimit:    5,
	}
}

// TypeWeight returns the configured weight for a memory type (1.0 when unset).
func (s *Settings) TypeWeight(t store.MemoryType) float64 {
	if w, ok := s.SearchTypeWeights[string(t)]; ok {
		return w
	}
	return 1.0
}

// SubpathBoostWeight is the effective boost multiplier, clamped to [1,10].
func (s *Settings) SubpathBoostWeight() float64 {
	w := s.SearchSubpathBoostWeight
	if s.MonorepoSubpathBoostWeight != nil {
		w = *s.MonorepoSubpathBoostWeight
	}
	return clamp(w, 1, 10)
}

// PersonaWeight returns persona_weights[persona][type], 1.0 when unset.
func (s *Settings) PersonaWeight(persona string, t store.MemoryType) float64 {
	if m, ok := s.PersonaWeights[persona]; ok {
		if w, ok := m[string(t)]; ok {
			return w
		}
	}
	return 1.0
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.ResolutionOrder = append([]store.MappingKind(nil), s.ResolutionOrder...)
	c.MonorepoWorkspaceGlobs = append([]string(nil), s.MonorepoWorkspaceGlobs...)
	c.MonorepoExcludeGlobs = append([]string(nil), s.MonorepoExcludeGlobs...)
	c.MonorepoRootMarkers = append([]string(nil), s.MonorepoRootMarkers...)
	c.SearchTypeWeights = make(map[string]float64, len(s.SearchTypeWeights))
	for k, v := range s.SearchTypeWeights {
		c.SearchTypeWeights[k] = v
	}
	c.PersonaWeights = make(map[string]map[string]float64, len(s.PersonaWeights))
	for p, m := range s.PersonaWeights {
		inner := make(map[string]float64, len(m))
		for k, v := range m {
			inner[k] = v
		}
		c.PersonaWeights[p] = inner
	}
	if s.MonorepoSubpathBoostWeight != nil {
		w := *s.MonorepoSubpathBoostWeight
		c.MonorepoSubpathBoostWeight = &w
	}
	return &c
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
