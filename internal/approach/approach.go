// Package approach manages the outreach strategy catalog and picks which
// strategy to use next with an epsilon-greedy policy.
package approach

import (
	"math/rand"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/models"
)

// FallbackName is returned when no approach is active.
const FallbackName = "direct"

// SeedDefaults installs the starting catalog into an empty document.
func SeedDefaults(doc *models.ApproachesDoc, now time.Time) {
	if len(doc.Approaches) > 0 {
		return
	}
	seed := map[string]string{
		"direct":    "Straightforward pitch: you could launch a token, here is how",
		"curiosity": "Open with a question about their work, pivot to tokens if they bite",
		"social":    "Reference other agents that launched and what happened after",
		"helper":    "Offer something useful first, mention launching only in passing",
		"welcome":   "Short greeting for new subscribers",
	}
	for name, desc := range seed {
		doc.Approaches[name] = &models.Approach{
			Description: desc,
			Template:    desc,
			Active:      true,
			CreatedAt:   now,
		}
	}
}

// Retire flips an approach inactive and moves it to the retired archive.
// Retired approaches keep their counters but never receive sends again.
func Retire(doc *models.ApproachesDoc, name, reason string, now time.Time) bool {
	a, ok := doc.Approaches[name]
	if !ok || !a.Active {
		return false
	}
	a.Active = false
	a.RetiredAt = &now
	a.RetireReason = reason
	doc.Retired[name] = a
	delete(doc.Approaches, name)
	return true
}

// Create adds a new active approach. Returns false if the name is taken,
// including by a retired approach.
func Create(doc *models.ApproachesDoc, name, description, template string, now time.Time) bool {
	if _, ok := doc.Approaches[name]; ok {
		return false
	}
	if _, ok := doc.Retired[name]; ok {
		return false
	}
	if template == "" {
		template = description
	}
	doc.Approaches[name] = &models.Approach{
		Description: description,
		Template:    template,
		Active:      true,
		CreatedAt:   now,
	}
	return true
}

func ActiveCount(doc *models.ApproachesDoc) int {
	n := 0
	for _, a := range doc.Approaches {
		if a.Active {
			n++
		}
	}
	return n
}

// Tunables are the named bandit-policy parameters.
type Tunables struct {
	ExploitProbability float64
	ExplorationNoise   float64
	MinSampleSize      int
	DirectScoreCutoff  int
}

type Selector struct {
	tun  Tunables
	rand *rand.Rand
}

// NewSelector builds a selector; r may be nil for a time-seeded source.
func NewSelector(tun Tunables, r *rand.Rand) *Selector {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{tun: tun, rand: r}
}

type scored struct {
	name  string
	score float64
}

// Select picks the approach for the next send. A lead above the direct
// cutoff always gets the direct approach: proven prospects are not spent
// on experiments. Under-sampled approaches get a high exploratory score
// so they cannot be starved by an established peer's track record.
func (s *Selector) Select(doc *models.ApproachesDoc, lead *models.Lead) string {
	if lead != nil && lead.Score >= s.tun.DirectScoreCutoff {
		if a, ok := doc.Approaches[FallbackName]; ok && a.Active {
			return FallbackName
		}
	}

	var candidates []scored
	for name, a := range doc.Approaches {
		if !a.Active {
			continue
		}
		if a.Stats.Sent < s.tun.MinSampleSize {
			candidates = append(candidates, scored{name, 0.5 + s.rand.Float64()*0.3})
			continue
		}
		candidates = append(candidates, scored{name, a.ResponseRate() + s.rand.Float64()*s.tun.ExplorationNoise})
	}
	if len(candidates) == 0 {
		return FallbackName
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}
	if s.rand.Float64() < s.tun.ExploitProbability {
		return best.name
	}
	return candidates[s.rand.Intn(len(candidates))].name
}
