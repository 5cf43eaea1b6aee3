// Package textutil holds the text primitives shared by retrieval and rule
// routing: tokenization, keyword relevance and vector similarity.
package textutil

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "how": true, "in": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "we": true, "what": true, "when": true, "where": true, "which": true,
	"why": true, "with": true,
}

// Tokenize case-folds and NFKC-normalizes s, then splits on anything that is
// not a letter or digit. Stopwords and single-rune tokens are dropped.
func Tokenize(s string) []string {
	s = folder.String(norm.NFKC.String(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// UniqueTerms returns the distinct tokens of s in first-seen order.
func UniqueTerms(s string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range Tokenize(s) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// KeywordScore returns a relevance score in [0,1]: the mean over distinct query
// terms of a saturating term frequency tf/(tf+1), scaled so one hit scores 0.5
// and repeated hits approach 1.
func KeywordScore(queryTerms []string, doc string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	tf := map[string]int{}
	for _, t := range Tokenize(doc) {
		tf[t]++
	}
	var sum float64
	for _, q := range queryTerms {
		n := float64(tf[q])
		sum += n / (n + 1)
	}
	return sum / float64(len(queryTerms))
}

// Cosine returns the cosine similarity of a and b clamped to [0,1]; mismatched
// or zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, c))
}

// TruncateRunes cuts s to at most n runes, appending a marker when it shortens.
// The marker counts toward n.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	const marker = "…"
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + marker
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return len([]rune(s))
}
