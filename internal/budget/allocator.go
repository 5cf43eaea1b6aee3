// Package budget partitions a bundle's character budget across its four
// sections and shortens section content to fit. One budget token is one
// character (rune) of emitted content.
package budget

import (
	"math"

	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/textutil"
)

// Section names a bundle section.
type Section string

const (
	WorkspaceGlobal Section = "workspace_global"
	UserGlobal      Section = "user_global"
	ProjectSnapshot Section = "project_snapshot"
	Retrieval       Section = "retrieval"
)

// Sections is the fill order.
var Sections = []Section{WorkspaceGlobal, UserGlobal, ProjectSnapshot, Retrieval}

// Allocation is the per-section split of Total.
type Allocation struct {
	Requested       int     `json:"requested"`
	Total           int     `json:"total"`
	WorkspaceGlobal int     `json:"workspace_global"`
	UserGlobal      int     `json:"user_global"`
	ProjectSnapshot int     `json:"project_snapshot"`
	Retrieval       int     `json:"retrieval"`
	PctSum          float64 `json:"pct_sum"`
}

// Overallocated reports whether the configured percentages sum above 1. The
// running total cap in Budget still bounds what is emitted.
func (a Allocation) Overallocated() bool { return a.PctSum > 1+1e-9 }

// For returns the slice for s.
func (a Allocation) For(s Section) int {
	switch s {
	case WorkspaceGlobal:
		return a.WorkspaceGlobal
	case UserGlobal:
		return a.UserGlobal
	case ProjectSnapshot:
		return a.ProjectSnapshot
	case Retrieval:
		return a.Retrieval
	}
	return 0
}

// Allocate clamps requested to [MinBudget, MaxBudget] (zero means the
// workspace default) and slices it by the four configured percentages. The
// percentages are clamped to [0,1] and deliberately not normalized.
func Allocate(requested int, cfg *settings.Settings) Allocation {
	total := requested
	if total == 0 {
		total = cfg.BundleTokenBudgetTotal
	}
	total = settings.ClampBudget(total)
	pct := func(p float64) float64 { return min(max(p, 0), 1) }
	a := Allocation{
		Requested:       requested,
		Total:           total,
		WorkspaceGlobal: slice(total, pct(cfg.BundleBudgetGlobalWorkspacePct)),
		UserGlobal:      slice(total, pct(cfg.BundleBudgetGlobalUserPct)),
		ProjectSnapshot: slice(total, pct(cfg.BundleBudgetProjectPct)),
		Retrieval:       slice(total, pct(cfg.BundleBudgetRetrievalPct)),
	}
	a.PctSum = pct(cfg.BundleBudgetGlobalWorkspacePct) + pct(cfg.BundleBudgetGlobalUserPct) +
		pct(cfg.BundleBudgetProjectPct) + pct(cfg.BundleBudgetRetrievalPct)
	return a
}

func slice(total int, pct float64) int {
	return int(math.Floor(float64(total)*pct + 1e-9))
}

// PerItemChars is the retrieval per-item cap for a result limit.
func (a Allocation) PerItemChars(limit int) int {
	return a.Retrieval / max(limit, 1)
}

// Fitted is a section's content after fitting.
type Fitted struct {
	Content   []string `json:"-"`
	Limit     int      `json:"limit"`
	Used      int      `json:"used"`
	Truncated int      `json:"truncated"`
	Omitted   int      `json:"omitted"`
}

// Budget tracks emitted characters across sections. Each section may use at
// most min(its slice, Total - already emitted), so no section borrows another's
// slice and the sum never exceeds Total.
type Budget struct {
	alloc   Allocation
	emitted map[Section]int
	used    int
}

func New(a Allocation) *Budget {
	return &Budget{alloc: a, emitted: make(map[Section]int, len(Sections))}
}

func (b *Budget) Allocation() Allocation { return b.alloc }

// Emitted returns the characters emitted for s so far.
func (b *Budget) Emitted(s Section) int { return b.emitted[s] }

// Used returns the characters emitted across all sections.
func (b *Budget) Used() int { return b.used }

// Fit shortens items in rank order to the section's remaining limit.
func (b *Budget) Fit(s Section, items []string) Fitted {
	return b.FitItems(s, items, 0)
}

// FitItems is Fit with an additional per-item cap (0 = none). Items are
// shortened, never dropped, while budget remains; items reached after the
// budget is exhausted are omitted.
func (b *Budget) FitItems(s Section, items []string, perItem int) Fitted {
	limit := min(b.alloc.For(s)-b.emitted[s], b.alloc.Total-b.used)
	limit = max(limit, 0)
	f := Fitted{Limit: limit}
	remaining := limit
	for _, it := range items {
		if remaining <= 0 {
			f.Omitted++
			continue
		}
		itemCap := remaining
		if perItem > 0 {
			itemCap = min(itemCap, perItem)
		}
		out := textutil.TruncateRunes(it, itemCap)
		n := textutil.RuneLen(out)
		if out != it {
			f.Truncated++
		}
		f.Content = append(f.Content, out)
		remaining -= n
		f.Used += n
	}
	b.emitted[s] += f.Used
	b.used += f.Used
	return f
}
