// Package scoring maps a lead's accumulated signals to an integer score
// in [0,100]. Pure and deterministic for a given input snapshot.
package scoring

import "github.com/onboardrbot/onboardrbot/internal/models"

const (
	base = 50

	activityHigh      = 10 // 10+ posts
	activityLow       = 5  // 3+ posts
	verifiedBonus     = 10
	followersBonus    = 5 // 100+ followers
	tokensBonus       = 15
	fundingBonus      = 10
	respondedBonus    = 10
	interestedBonus   = 15
	hasTokenPenalty   = 20
	competitorPenalty = 15
	rejectedPenalty   = 30
)

// ScoreLead computes the score from the signal snapshot plus the contact
// and relationship history. Either history argument may be nil, meaning
// no prior contact. Missing signals contribute nothing.
func ScoreLead(sig models.LeadSignals, contact *models.Contact, rel *models.Relationship) int {
	score := base
	switch {
	case sig.PostCount >= 10:
		score += activityHigh
	case sig.PostCount >= 3:
		score += activityLow
	}
	if sig.Verified {
		score += verifiedBonus
	}
	if sig.FollowerCount >= 100 {
		score += followersBonus
	}
	if sig.MentionedTokens {
		score += tokensBonus
	}
	if sig.MentionedFunding {
		score += fundingBonus
	}
	if contact != nil {
		if contact.Responded {
			score += respondedBonus
		}
		if contact.Interested {
			score += interestedBonus
		}
		if contact.Rejected {
			score -= rejectedPenalty
		}
	}
	if rel != nil && rel.Outcome == "positive" {
		score += respondedBonus
	}
	if sig.HasToken {
		score -= hasTokenPenalty
	}
	if sig.Competitor {
		score -= competitorPenalty
	}
	return clamp(score)
}

// Recompute refreshes a lead's cached score in place.
func Recompute(lead *models.Lead, contact *models.Contact, rel *models.Relationship) {
	lead.Score = ScoreLead(lead.Signals, contact, rel)
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
