package bundle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/tracing"
)

const extractorRunLimit = 5

// snapshot is the raw project-snapshot material before fitting.
type snapshot struct {
	entries    []SnapshotEntry
	candidates []store.ActiveWorkItem
	runs       []store.ExtractorRun
}

func (a *Assembler) loadSnapshot(ctx context.Context, projectID uuid.UUID, cfg *settings.Settings, debug bool) (snap *snapshot, err error) {
	ctx, span := tracing.Start(ctx, tracing.StageSnapshot)
	defer func() { tracing.End(span, err) }()

	limit := max(cfg.SnapshotActiveWorkLimit, 0)
	candidates, err := a.activeWork.ListActiveWork(ctx, projectID, max(limit*3, 20))
	if err != nil {
		return nil, fmt.Errorf("active work: %w", err)
	}
	latest, err := a.memory.LatestByType(ctx, projectID, []store.MemoryType{store.TypeSummary, store.TypeGoal}, 1)
	if err != nil {
		return nil, fmt.Errorf("latest summary: %w", err)
	}
	snap = &snapshot{candidates: candidates}
	if debug {
		if snap.runs, err = a.activeWork.RecentExtractorRuns(ctx, projectID, extractorRunLimit); err != nil {
			return nil, fmt.Errorf("extractor runs: %w", err)
		}
	}

	for _, w := range selectActiveWork(candidates, cfg.ActiveWorkAutoCloseEnabled, limit) {
		snap.entries = append(snap.entries, SnapshotEntry{
			Kind:   EntryActiveWork,
			ID:     w.ID,
			Status: w.Status,
			Owner:  w.Owner,
			Stale:  w.IsStale,
			At:     w.LastActivityAt,
			Text:   w.Title,
		})
	}
	// Summary before goal.
	sort.SliceStable(latest, func(i, j int) bool { return latest[i].Type == store.TypeSummary && latest[j].Type != store.TypeSummary })
	for _, it := range latest {
		kind := EntryGoal
		if it.Type == store.TypeSummary {
			kind = EntrySummary
		}
		snap.entries = append(snap.entries, SnapshotEntry{Kind: kind, ID: it.ID, At: it.CreatedAt, Text: itemText(it)})
	}
	return snap, nil
}

// selectActiveWork orders non-stale items first, then by last activity, and
// skips auto-close-eligible items when auto-close is on.
func selectActiveWork(items []store.ActiveWorkItem, autoClose bool, limit int) []store.ActiveWorkItem {
	out := make([]store.ActiveWorkItem, 0, len(items))
	for _, w := range items {
		if autoClose && w.AutoCloseEligible {
			continue
		}
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsStale != out[j].IsStale {
			return !out[i].IsStale
		}
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func itemText(it store.MemoryItem) string {
	content := strings.TrimSpace(it.Content)
	if t := strings.TrimSpace(it.Title); t != "" {
		return t + ": " + content
	}
	return content
}
