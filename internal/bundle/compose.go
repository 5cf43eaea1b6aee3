package bundle

import (
	"context"

	"github.com/nextlevelbuilder/memhub/internal/budget"
	"github.com/nextlevelbuilder/memhub/internal/persona"
	"github.com/nextlevelbuilder/memhub/internal/retrieval"
	"github.com/nextlevelbuilder/memhub/internal/rules"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/tracing"
)

// compose is the fan-in: persona re-weighting, budget allocation, fitting and
// the response shape.
func (a *Assembler) compose(ctx context.Context, req Request, sc *scope, cfg *settings.Settings, out *fanout) *Response {
	_, span := tracing.Start(ctx, tracing.StageAllocate)
	defer span.End()

	persona.Reweight(out.retrieval.Items, out.persona.Applied, cfg)
	out.retrieval.Truncate()
	adjustments := persona.Adjustments(out.retrieval.Items)

	alloc := budget.Allocate(req.requestedBudget(), cfg)
	b := budget.New(alloc)

	resp := &Response{
		Project: ProjectSection{
			WorkspaceKey: sc.ws.Key,
			Key:          sc.project.Key,
			ID:           sc.project.ID,
			Name:         sc.project.Name,
			ScopeKey:     sc.scope.Key,
			Warnings:     sc.warnings,
		},
		Global: GlobalSection{
			Workspace:      []RuleEntry{},
			User:           []RuleEntry{},
			DroppedRuleIDs: out.rules.DroppedIDs(),
			Warnings:       out.rules.Warnings,
		},
		Snapshot: SnapshotSection{Entries: []SnapshotEntry{}},
		Retrieval: RetrievalSection{
			Mode:     out.retrieval.Mode,
			Persona:  out.persona.Applied,
			Items:    []RetrievalItem{},
			Warnings: out.retrieval.Warnings,
		},
	}
	if sc.resolution != nil {
		resp.Project.Resolution = sc.resolution.Resolution
		resp.Project.Created = sc.resolution.Created
	}
	if out.persona.LowConfidence {
		resp.Retrieval.Warnings = append(resp.Retrieval.Warnings, WarnPersonaLowConfidence)
	}

	var wsRules, userRules []store.GlobalRule
	for _, r := range out.rules.Selected {
		if r.Scope == store.RuleScopeUser {
			userRules = append(userRules, r)
		} else {
			wsRules = append(wsRules, r)
		}
	}
	resp.Global.Workspace, resp.Global.WorkspaceSummary = fitRules(b, budget.WorkspaceGlobal, wsRules, out.rules.WorkspaceSummary)
	resp.Global.User, resp.Global.UserSummary = fitRules(b, budget.UserGlobal, userRules, out.rules.UserSummary)

	texts := make([]string, len(out.snapshot.entries))
	for i, e := range out.snapshot.entries {
		texts[i] = e.Text
	}
	fs := b.Fit(budget.ProjectSnapshot, texts)
	for i, t := range fs.Content {
		e := out.snapshot.entries[i]
		e.Text = t
		resp.Snapshot.Entries = append(resp.Snapshot.Entries, e)
	}

	limit := out.retrieval.Limit
	perItem := alloc.PerItemChars(limit)
	texts = make([]string, len(out.retrieval.Items))
	for i, s := range out.retrieval.Items {
		texts[i] = itemText(s.Item)
	}
	fr := b.FitItems(budget.Retrieval, texts, perItem)
	for i, t := range fr.Content {
		s := out.retrieval.Items[i]
		resp.Retrieval.Items = append(resp.Retrieval.Items, RetrievalItem{
			ID:        s.Item.ID,
			Type:      s.Item.Type,
			Subpath:   s.Item.Subpath,
			CreatedAt: s.Item.CreatedAt,
			Score:     s.Score.AdjustedScore,
			Truncated: t != texts[i],
			Text:      t,
		})
	}

	if req.Debug() {
		resp.Debug = a.debugView(sc, cfg, out, adjustments, b, limit, perItem, resp)
	}
	return resp
}

// fitRules fits rule texts then the overflow summary into one section.
func fitRules(b *budget.Budget, s budget.Section, rs []store.GlobalRule, summary string) ([]RuleEntry, string) {
	texts := make([]string, 0, len(rs)+1)
	for _, r := range rs {
		texts = append(texts, ruleText(r))
	}
	if summary != "" {
		texts = append(texts, summary)
	}
	f := b.Fit(s, texts)

	entries := []RuleEntry{}
	fittedSummary := ""
	for i, t := range f.Content {
		if i == len(rs) {
			fittedSummary = t
			break
		}
		r := rs[i]
		entries = append(entries, RuleEntry{ID: r.ID, Category: r.Category, Severity: r.Severity, Pinned: r.Pinned, Text: t})
	}
	return entries, fittedSummary
}

func ruleText(r store.GlobalRule) string {
	if r.Title != "" {
		return r.Title + ": " + r.Content
	}
	return r.Content
}

func (a *Assembler) debugView(sc *scope, cfg *settings.Settings, out *fanout, adj []persona.Adjustment, b *budget.Budget, limit, perItem int, resp *Response) *Debug {
	alloc := b.Allocation()
	d := &Debug{
		WorkspaceKey:       sc.ws.Key,
		ProjectKey:         sc.project.Key,
		ScopeKey:           sc.scope.Key,
		Resolution:         &ResolutionDebug{Pinned: sc.resolution == nil},
		Monorepo:           sc.class,
		BoostsApplied:      out.retrieval.BoostsApplied,
		PersonaApplied:     out.persona.Applied,
		PersonaRecommended: out.persona,
		WeightAdjustments:  adj,
		TokenBudget: TokenBudget{
			Requested:       alloc.Requested,
			Total:           alloc.Total,
			WorkspaceGlobal: alloc.WorkspaceGlobal,
			UserGlobal:      alloc.UserGlobal,
			ProjectSnapshot: alloc.ProjectSnapshot,
			Retrieval:       alloc.Retrieval,
			RetrievalLimit:  limit,
			PerItemChars:    perItem,
			PctSum:          alloc.PctSum,
			Overallocated:   alloc.Overallocated(),
			Used:            make(map[string]int, len(budget.Sections)),
			UsedTotal:       b.Used(),
			EstimatedTokens: a.tokens.CountAll(emittedTexts(resp)...),
			TokenizerExact:  a.tokens.Exact(),
		},
		Retrieval: RetrievalDebug{
			Mode:                out.retrieval.Mode,
			Alpha:               out.retrieval.Alpha,
			Beta:                out.retrieval.Beta,
			SemanticUnavailable: out.retrieval.SemanticUnavailable,
			CandidateCount:      out.retrieval.CandidateCount,
			Items:               itemScores(out.retrieval.Items),
		},
		Rules: RulesDebug{
			CandidateCount: out.rules.CandidateCount,
			RoutingApplied: out.rules.RoutingApplied,
			Scores:         out.rules.Scores,
			Dropped:        out.rules.Dropped,
		},
		ActiveWorkCandidates: out.snapshot.candidates,
		ActiveWorkPolicy: ActiveWorkPolicy{
			StaleDays:        cfg.ActiveWorkStaleDays,
			AutoCloseEnabled: cfg.ActiveWorkAutoCloseEnabled,
			Limit:            cfg.SnapshotActiveWorkLimit,
		},
		ExtractorRuns: out.snapshot.runs,
	}
	for _, s := range budget.Sections {
		d.TokenBudget.Used[string(s)] = b.Emitted(s)
	}
	if r := sc.resolution; r != nil {
		d.Resolution.Kind = r.Resolution
		d.Resolution.Created = r.Created
		d.Resolution.MatchedMappingID = r.MatchedMappingID
		d.Resolution.Attempts = r.Attempts
	}
	if d.ActiveWorkCandidates == nil {
		d.ActiveWorkCandidates = []store.ActiveWorkItem{}
	}
	if d.ExtractorRuns == nil {
		d.ExtractorRuns = []store.ExtractorRun{}
	}
	if d.Rules.Dropped == nil {
		d.Rules.Dropped = []rules.Dropped{}
	}
	return d
}

func itemScores(items []retrieval.Scored) []ItemScore {
	out := make([]ItemScore, len(items))
	for i, s := range items {
		out[i] = ItemScore{ID: s.Item.ID, Type: s.Item.Type, Score: s.Score}
	}
	return out
}

// emittedTexts lists every budgeted text in the response.
func emittedTexts(r *Response) []string {
	var out []string
	for _, e := range r.Global.Workspace {
		out = append(out, e.Text)
	}
	for _, e := range r.Global.User {
		out = append(out, e.Text)
	}
	out = append(out, r.Global.WorkspaceSummary, r.Global.UserSummary)
	for _, e := range r.Snapshot.Entries {
		out = append(out, e.Text)
	}
	for _, it := range r.Retrieval.Items {
		out = append(out, it.Text)
	}
	return out
}

// EmittedChars is the total budgeted characters in r.
func EmittedChars(r *Response) int {
	n := 0
	for _, t := range emittedTexts(r) {
		n += len([]rune(t))
	}
	return n
}
