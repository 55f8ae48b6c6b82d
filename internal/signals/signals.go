// Package signals pattern-matches inbound text for buying intent and
// competitor mentions. The matcher sits behind Classifier so a different
// classification backend can be swapped in without touching the scorer
// or the launch flow.
package signals

import (
	"regexp"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/models"
)

const (
	TypeBuying     = "buying"
	TypeCompetitor = "competitor"
)

type Signal struct {
	Type    string
	Pattern string
}

type Classifier interface {
	Detect(text string) []Signal
}

type category struct {
	typ      string
	patterns []*regexp.Regexp
}

// RegexDetector is the default classifier. Every category is evaluated
// against the full text; matching never short-circuits.
type RegexDetector struct {
	categories []category
}

func NewRegexDetector() *RegexDetector {
	return &RegexDetector{categories: []category{
		{typ: TypeBuying, patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(launch|create|make|mint)\b.{0,30}\btoken\b`),
			regexp.MustCompile(`(?i)\btoken\b.{0,30}\b(launch|idea|interest)`),
			regexp.MustCompile(`(?i)\bmonetiz\w+`),
			regexp.MustCompile(`(?i)\b(funding|raise funds|get funded)\b`),
			regexp.MustCompile(`(?i)\bsovereign\w*\b`),
			regexp.MustCompile(`(?i)\bwant\b.{0,20}\blaunch\b`),
		}},
		{typ: TypeCompetitor, patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bclanker\b`),
			regexp.MustCompile(`(?i)\bvirtuals?\s*protocol\b`),
			regexp.MustCompile(`(?i)\bpump\.?fun\b`),
		}},
	}}
}

func (d *RegexDetector) Detect(text string) []Signal {
	var out []Signal
	for _, cat := range d.categories {
		for _, re := range cat.patterns {
			if m := re.FindString(text); m != "" {
				out = append(out, Signal{Type: cat.typ, Pattern: m})
			}
		}
	}
	return out
}

// Apply folds detected signals into a lead record and reports whether
// anything changed. The caller recomputes the score and persists.
func Apply(lead *models.Lead, sigs []Signal, text string, now time.Time) bool {
	changed := false
	for _, sig := range sigs {
		switch sig.Type {
		case TypeBuying:
			if !lead.Signals.MentionedTokens {
				lead.Signals.MentionedTokens = true
				changed = true
			}
			snippet := text
			if len(snippet) > 120 {
				snippet = snippet[:120]
			}
			lead.Signals.Snippet = snippet
		case TypeCompetitor:
			if !lead.Signals.Competitor {
				lead.Signals.Competitor = true
				changed = true
			}
		}
	}
	if changed {
		lead.LastUpdated = now
	}
	return changed
}
