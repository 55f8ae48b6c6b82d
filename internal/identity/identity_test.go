package identity

import (
	"testing"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/models"
)

func TestExtractHandle(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"find me @cooldev on x", "cooldev"},
		{"@a_b_c here", "a_b_c"},
		{"no handle in this one", ""},
		{"email me at foo@bar.com", "bar"}, // known limitation of the loose pattern
	}
	for _, tc := range tests {
		if got := ExtractHandle(tc.text); got != tc.want {
			t.Errorf("ExtractHandle(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestConfirmRequiresSelfAttribution(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		text string
		want string
	}{
		{"my handle is", "my handle is @cooldev", "cooldev"},
		{"my x handle", "my x handle: cooldev", "cooldev"},
		{"this is my x", "this is my x @cooldev", "cooldev"},
		{"bare mention never links", "you should follow @cooldev", ""},
		{"talking about someone else", "@cooldev built something wild", ""},
		{"unrelated", "ready to launch whenever", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ids := models.DefaultIdentities()
			got := Confirm(ids, "bot1", tc.text, now)
			if got != tc.want {
				t.Fatalf("Confirm(%q) = %q, want %q", tc.text, got, tc.want)
			}
			if tc.want == "" {
				if len(ids.Links) != 0 {
					t.Fatal("link created without self-attribution")
				}
				return
			}
			if Linked(ids, "bot1") != tc.want {
				t.Fatalf("Linked = %q, want %q", Linked(ids, "bot1"), tc.want)
			}
		})
	}
}

func TestRecordClaimDedupes(t *testing.T) {
	now := time.Now()
	doc := models.DefaultClaims()
	if !RecordClaim(doc, "bot1", "@cooldev", "dm", now) {
		t.Fatal("first claim rejected")
	}
	if RecordClaim(doc, "bot1", "CoolDev", "dm", now) {
		t.Fatal("case-variant duplicate accepted")
	}
	if !RecordClaim(doc, "bot2", "cooldev", "dm", now) {
		t.Fatal("same handle for a different user rejected")
	}
	if len(doc.Claims) != 2 {
		t.Fatalf("claims = %d, want 2", len(doc.Claims))
	}
	if doc.Claims[0].Handle != "cooldev" {
		t.Fatalf("sigil not stripped: %q", doc.Claims[0].Handle)
	}
}
