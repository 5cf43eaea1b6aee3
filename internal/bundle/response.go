package bundle

import (
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/monorepo"
	"github.com/nextlevelbuilder/memhub/internal/persona"
	"github.com/nextlevelbuilder/memhub/internal/resolve"
	"github.com/nextlevelbuilder/memhub/internal/retrieval"
	"github.com/nextlevelbuilder/memhub/internal/rules"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

// Response is the context bundle. Only Text fields count against the budget;
// ids, enums, timestamps and scores are structural.
type Response struct {
	Project   ProjectSection   `json:"project"`
	Global    GlobalSection    `json:"global"`
	Snapshot  SnapshotSection  `json:"snapshot"`
	Retrieval RetrievalSection `json:"retrieval"`
	Debug     *Debug           `json:"debug,omitempty"`
}

type ProjectSection struct {
	WorkspaceKey string            `json:"workspace_key"`
	Key          string            `json:"key"`
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	ScopeKey     string            `json:"scope_key"`
	Resolution   store.MappingKind `json:"resolution,omitempty"`
	Created      bool              `json:"created,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
}

type RuleEntry struct {
	ID       uuid.UUID `json:"id"`
	Category string    `json:"category,omitempty"`
	Severity string    `json:"severity,omitempty"`
	Pinned   bool      `json:"pinned,omitempty"`
	Text     string    `json:"text"`
}

type GlobalSection struct {
	Workspace        []RuleEntry     `json:"workspace"`
	User             []RuleEntry     `json:"user"`
	WorkspaceSummary string          `json:"workspace_summary,omitempty"`
	UserSummary      string          `json:"user_summary,omitempty"`
	DroppedRuleIDs   []uuid.UUID     `json:"dropped_rule_ids"`
	Warnings         []rules.Warning `json:"warnings,omitempty"`
}

// Snapshot entry kinds.
const (
	EntryActiveWork = "active_work"
	EntrySummary    = "summary"
	EntryGoal       = "goal"
)

type SnapshotEntry struct {
	Kind   string    `json:"kind"`
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status,omitempty"`
	Owner  string    `json:"owner,omitempty"`
	Stale  bool      `json:"stale,omitempty"`
	At     time.Time `json:"at"`
	Text   string    `json:"text"`
}

type SnapshotSection struct {
	Entries []SnapshotEntry `json:"entries"`
}

type RetrievalItem struct {
	ID        uuid.UUID        `json:"id"`
	Type      store.MemoryType `json:"type"`
	Subpath   string           `json:"subpath,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Score     float64          `json:"score"`
	Truncated bool             `json:"truncated,omitempty"`
	Text      string           `json:"text"`
}

type RetrievalSection struct {
	Mode     string          `json:"mode"`
	Persona  string          `json:"persona"`
	Items    []RetrievalItem `json:"items"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Debug is the diagnostic view. It is not budgeted.
type Debug struct {
	WorkspaceKey       string                   `json:"workspace_key"`
	ProjectKey         string                   `json:"project_key"`
	ScopeKey           string                   `json:"scope_key"`
	Resolution         *ResolutionDebug         `json:"resolution"`
	Monorepo           *monorepo.Classification `json:"monorepo"`
	BoostsApplied      int                      `json:"boosts_applied"`
	PersonaApplied     string                   `json:"persona_applied"`
	PersonaRecommended *persona.Recommendation  `json:"persona_recommended"`
	WeightAdjustments  []persona.Adjustment     `json:"weight_adjustments"`
	TokenBudget        TokenBudget              `json:"token_budget"`
	Retrieval          RetrievalDebug           `json:"retrieval"`
	Rules              RulesDebug               `json:"rules"`

	ActiveWorkCandidates []store.ActiveWorkItem `json:"active_work_candidates"`
	ActiveWorkPolicy     ActiveWorkPolicy       `json:"active_work_policy"`
	ExtractorRuns        []store.ExtractorRun   `json:"extractor_runs"`
}

type ResolutionDebug struct {
	Pinned           bool              `json:"pinned"`
	Kind             store.MappingKind `json:"kind,omitempty"`
	Created          bool              `json:"created"`
	MatchedMappingID *uuid.UUID        `json:"matched_mapping_id,omitempty"`
	Attempts         []resolve.Attempt `json:"attempts,omitempty"`
}

type TokenBudget struct {
	Requested       int            `json:"requested"`
	Total           int            `json:"total"`
	WorkspaceGlobal int            `json:"workspace_global"`
	UserGlobal      int            `json:"user_global"`
	ProjectSnapshot int            `json:"project_snapshot"`
	Retrieval       int            `json:"retrieval"`
	RetrievalLimit  int            `json:"retrieval_limit"`
	PerItemChars    int            `json:"per_item_chars"`
	PctSum          float64        `json:"pct_sum"`
	Overallocated   bool           `json:"overallocated,omitempty"`
	Used            map[string]int `json:"used"`
	UsedTotal       int            `json:"used_total"`
	EstimatedTokens int            `json:"estimated_tokens"`
	TokenizerExact  bool           `json:"tokenizer_exact"`
}

type ItemScore struct {
	ID    uuid.UUID                `json:"id"`
	Type  store.MemoryType         `json:"type"`
	Score retrieval.ScoreBreakdown `json:"score"`
}

type RetrievalDebug struct {
	Mode                string      `json:"mode"`
	Alpha               float64     `json:"alpha"`
	Beta                float64     `json:"beta"`
	SemanticUnavailable bool        `json:"semantic_unavailable"`
	CandidateCount      int         `json:"candidate_count"`
	Items               []ItemScore `json:"items"`
}

type RulesDebug struct {
	CandidateCount int             `json:"candidate_count"`
	RoutingApplied bool            `json:"routing_applied"`
	Scores         []rules.Score   `json:"score_breakdown"`
	Dropped        []rules.Dropped `json:"dropped"`
}

type ActiveWorkPolicy struct {
	StaleDays        int  `json:"active_work_stale_days"`
	AutoCloseEnabled bool `json:"active_work_auto_close_enabled"`
	Limit            int  `json:"limit"`
}
