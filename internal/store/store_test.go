package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	ts := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	state := models.DefaultState()
	state.Contacts["bot1"] = &models.Contact{
		User:         "bot1",
		FirstContact: ts,
		LastContact:  ts,
		Approach:     "direct",
		Messages: []models.Message{
			{Timestamp: ts, Direction: models.DirectionOut, Text: "hello", Approach: "direct"},
			{Timestamp: ts.Add(time.Minute), Direction: models.DirectionIn, Text: "hey"},
		},
		Attempts:  1,
		Responded: true,
	}
	state.Leads["bot1"] = &models.Lead{
		User:        "bot1",
		Signals:     models.LeadSignals{PostCount: 4, MentionedTokens: true, Snippet: "launch a token"},
		Score:       70,
		LastUpdated: ts,
	}
	state.PendingLaunches = append(state.PendingLaunches, &models.PendingLaunch{
		User: "bot1", Ticker: "ABCD", Stage: models.StageDescription,
		CreatedAt: ts, UpdatedAt: ts,
	})
	state.FollowUps = append(state.FollowUps, &models.FollowUp{
		ID: "f1", User: "bot1", Type: "direct", ScheduledFor: ts.Add(24 * time.Hour), CreatedAt: ts,
	})
	state.Launches = append(state.Launches, models.Launch{
		User: "bot2", Ticker: "ZZZZ",
		Contract: "0x1234567890abcdef1234567890abcdef12345678", Timestamp: ts,
	})
	state.ProcessedDMs = []string{"m1", "m2"}
	state.Stats.Outreach = 3

	if err := s.SaveState(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}
	got := s.LoadState(ctx)
	if !reflect.DeepEqual(got, state) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, state)
	}
}

func TestLoadMissingYieldsDefaults(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	state := s.LoadState(ctx)
	if state == nil || state.Contacts == nil || state.Leads == nil {
		t.Fatalf("missing state did not yield usable defaults: %+v", state)
	}
	doc := s.LoadApproaches(ctx)
	if doc.Approaches == nil || doc.Retired == nil {
		t.Fatalf("missing approaches did not yield usable defaults: %+v", doc)
	}
	if ids := s.LoadIdentities(ctx); ids.Links == nil {
		t.Fatal("missing identities did not yield usable defaults")
	}
}

func TestLoadCorruptYieldsDefaults(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, name := range []string{DocState, DocApproaches, DocClaims} {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)`,
			name, "{not valid json", time.Now()); err != nil {
			t.Fatalf("plant corrupt doc: %v", err)
		}
	}
	state := s.LoadState(ctx)
	if len(state.Contacts) != 0 || len(state.ProcessedDMs) != 0 {
		t.Fatalf("corrupt state not replaced by default: %+v", state)
	}
	if doc := s.LoadApproaches(ctx); len(doc.Approaches) != 0 {
		t.Fatalf("corrupt approaches not replaced by default: %+v", doc)
	}
	if claims := s.LoadClaims(ctx); len(claims.Claims) != 0 {
		t.Fatalf("corrupt claims not replaced by default: %+v", claims)
	}
}

func TestPartialDocumentMergesOverDefaults(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// A document written by an older build lacks newer fields; they must
	// default in rather than zero out required maps.
	if _, err := s.db.ExecContext(ctx, `INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)`,
		DocState, `{"prospects":["bot1"]}`, time.Now()); err != nil {
		t.Fatalf("plant partial doc: %v", err)
	}
	state := s.LoadState(ctx)
	if len(state.Prospects) != 1 || state.Prospects[0] != "bot1" {
		t.Fatalf("stored field lost: %+v", state.Prospects)
	}
	if state.Contacts == nil || state.Leads == nil {
		t.Fatal("absent maps not defaulted")
	}
}

func TestActionLogTrims(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for i := 0; i < 20; i++ {
		s.LogAction(ctx, "dm_out", "detail", 5)
	}
	entries, err := s.RecentActions(ctx, "", 100)
	if err != nil {
		t.Fatalf("recent actions: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("action log has %d rows, want 5", len(entries))
	}
}

func TestRecentActionsFiltersByType(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.LogAction(ctx, "error", "boom", 100)
	s.LogAction(ctx, "dm_out", "hello", 100)
	entries, err := s.RecentActions(ctx, "error", 10)
	if err != nil {
		t.Fatalf("recent actions: %v", err)
	}
	if len(entries) != 1 || entries[0].Detail != "boom" {
		t.Fatalf("filter wrong: %+v", entries)
	}
}
