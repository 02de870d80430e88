// Package analysis holds the language heuristics applied to transcripts:
// tokenization, surface statistics, quality flags, and term suggestions.
// Everything here is pure; no I/O, no storage.
package analysis

import (
	"regexp"
	"strings"
)

var (
	wordRe     = regexp.MustCompile(`[a-zäöüß]+`)
	spaceRe    = regexp.MustCompile(`\s+`)
	anyWordRe  = regexp.MustCompile(`[\wäöüß]+`)
	stopMarkRe = regexp.MustCompile(`(?i)\bpunkt\b[.!?]?`)
)

// Normalize lowercases and collapses whitespace.
func Normalize(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(strings.ToLower(s), " "))
}

// Tokenize extracts lowercase German word tokens. Digits and punctuation
// are dropped.
func Tokenize(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

// CutAtMark truncates a transcript at the last spoken stop word "punkt".
// Learners end their recording by saying it; everything after is trailing
// noise. Text without the mark is returned unchanged.
func CutAtMark(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return t
	}
	locs := stopMarkRe.FindAllStringIndex(t, -1)
	if locs == nil {
		return t
	}
	last := locs[len(locs)-1][0]
	return strings.TrimSpace(t[:last])
}

// Overlap captures lexical overlap between a source text and a retell.
type Overlap struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// OverlapMetrics compares the token sets of source and spoken text.
// Precision is the share of spoken tokens found in the source, recall the
// share of source tokens covered.
func OverlapMetrics(source, spoken string) Overlap {
	sw := Tokenize(Normalize(source))
	tw := Tokenize(Normalize(spoken))
	if len(sw) == 0 || len(tw) == 0 {
		return Overlap{}
	}
	sset := toSet(sw)
	tset := toSet(tw)
	inter := 0
	for w := range tset {
		if sset[w] {
			inter++
		}
	}
	precision := float64(inter) / float64(len(tset))
	recall := float64(inter) / float64(len(sset))
	var f1 float64
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return Overlap{
		Precision: round4(precision),
		Recall:    round4(recall),
		F1:        round4(f1),
	}
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
