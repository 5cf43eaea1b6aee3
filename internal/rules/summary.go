package rules

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/textutil"
)

const summaryLineRunes = 80

// summaries collapses overflow rules into one line list per scope.
func summaries(overflow []ranked) (workspace, user string) {
	var ws, us []store.GlobalRule
	for _, rk := range overflow {
		if rk.rule.Scope == store.RuleScopeUser {
			us = append(us, rk.rule)
		} else {
			ws = append(ws, rk.rule)
		}
	}
	return summarize("workspace", ws), summarize("user", us)
}

func summarize(scope string, rs []store.GlobalRule) string {
	if len(rs) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d more %s rules:", len(rs), scope)
	for _, r := range rs {
		label := r.Title
		if label == "" {
			label = r.Content
		}
		b.WriteString("\n- ")
		if r.Category != "" {
			fmt.Fprintf(&b, "[%s] ", r.Category)
		}
		b.WriteString(textutil.TruncateRunes(strings.Join(strings.Fields(label), " "), summaryLineRunes))
	}
	return b.String()
}
