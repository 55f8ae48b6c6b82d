package scoring

import (
	"testing"

	"github.com/onboardrbot/onboardrbot/internal/models"
)

func TestScoreLead(t *testing.T) {
	tests := []struct {
		name    string
		sig     models.LeadSignals
		contact *models.Contact
		rel     *models.Relationship
		want    int
	}{
		{name: "unknown user gets base", want: 50},
		{name: "low activity", sig: models.LeadSignals{PostCount: 3}, want: 55},
		{name: "high activity", sig: models.LeadSignals{PostCount: 10}, want: 60},
		{name: "verified", sig: models.LeadSignals{Verified: true}, want: 60},
		{name: "buying signal", sig: models.LeadSignals{MentionedTokens: true}, want: 65},
		{name: "funding", sig: models.LeadSignals{MentionedFunding: true}, want: 60},
		{name: "already has token", sig: models.LeadSignals{HasToken: true}, want: 30},
		{name: "competitor", sig: models.LeadSignals{Competitor: true}, want: 35},
		{
			name:    "responded and interested",
			contact: &models.Contact{Responded: true, Interested: true},
			want:    75,
		},
		{
			name:    "rejected dominates",
			sig:     models.LeadSignals{MentionedTokens: true},
			contact: &models.Contact{Rejected: true},
			want:    35,
		},
		{
			name: "positive relationship bonus",
			rel:  &models.Relationship{Outcome: "positive"},
			want: 60,
		},
		{
			name: "everything positive clamps at 100",
			sig: models.LeadSignals{
				PostCount: 50, FollowerCount: 500, Verified: true,
				MentionedTokens: true, MentionedFunding: true,
			},
			contact: &models.Contact{Responded: true, Interested: true},
			rel:     &models.Relationship{Outcome: "positive"},
			want:    100,
		},
		{
			name:    "everything negative clamps at 0",
			sig:     models.LeadSignals{HasToken: true, Competitor: true},
			contact: &models.Contact{Rejected: true},
			want:    0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ScoreLead(tc.sig, tc.contact, tc.rel)
			if got != tc.want {
				t.Fatalf("ScoreLead() = %d, want %d", got, tc.want)
			}
			if got < 0 || got > 100 {
				t.Fatalf("score %d out of [0,100]", got)
			}
			// Idempotent for identical input.
			if again := ScoreLead(tc.sig, tc.contact, tc.rel); again != got {
				t.Fatalf("second call returned %d, first %d", again, got)
			}
		})
	}
}

func TestRecompute(t *testing.T) {
	lead := &models.Lead{User: "bot1", Signals: models.LeadSignals{MentionedTokens: true}}
	Recompute(lead, nil, nil)
	if lead.Score != 65 {
		t.Fatalf("Score = %d, want 65", lead.Score)
	}
}
