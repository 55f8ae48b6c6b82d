package launch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/bankr"
	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/models"
	"github.com/onboardrbot/onboardrbot/internal/store"
	"github.com/onboardrbot/onboardrbot/internal/twitter"
)

const testContract = "0x1234567890abcdef1234567890abcdef12345678"

type fakeTrader struct {
	submits int
	polls   int
	job     *bankr.Job
	err     error
}

func (t *fakeTrader) SubmitJob(ctx context.Context, prompt string) (string, error) {
	t.submits++
	if t.err != nil {
		return "", t.err
	}
	return "job-1", nil
}

func (t *fakeTrader) PollJob(ctx context.Context, jobID string) (*bankr.Job, error) {
	t.polls++
	return t.job, nil
}

type fakeMessenger struct{ sent []string }

func (m *fakeMessenger) SendDM(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, to, text, approachName string) bool {
	m.sent = append(m.sent, text)
	return true
}

type fakeFeed struct{ posts int }

func (f *fakeFeed) CreatePost(ctx context.Context, submolt, title, content string) string {
	f.posts++
	return "post-1"
}

type fakeNotifier struct{ notes []string }

func (n *fakeNotifier) Notify(ctx context.Context, text string) { n.notes = append(n.notes, text) }

type fakeGen struct{ reply string }

func (g fakeGen) Generate(ctx context.Context, task, context string) string { return g.reply }

func testMachine(t *testing.T, trader Trader) (*Machine, *fakeMessenger, *fakeFeed, *fakeNotifier) {
	t.Helper()
	cfg := config.Default()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	msg := &fakeMessenger{}
	feed := &fakeFeed{}
	notes := &fakeNotifier{}
	m := New(&cfg, st, trader, msg, feed, twitter.Noop{}, notes, fakeGen{})
	m.SetClock(time.Now, func(context.Context, time.Duration) {})
	return m, msg, feed, notes
}

func TestDeriveTicker(t *testing.T) {
	cases := []struct{ user, want string }{
		{"moltdev", "MOLTD"},
		{"ai", "AIX"},
		{"x9y", "XYX"},
		{"agent_42_bot", "AGENT"},
	}
	for _, tc := range cases {
		if got := DeriveTicker(tc.user); got != tc.want {
			t.Errorf("DeriveTicker(%q) = %q, want %q", tc.user, got, tc.want)
		}
	}
}

func TestStartIgnoresDuplicateReady(t *testing.T) {
	ctx := context.Background()
	m, msg, _, _ := testMachine(t, &fakeTrader{})
	state := models.DefaultState()
	approaches := models.DefaultApproaches()

	first := m.Start(ctx, state, approaches, "bot1")
	second := m.Start(ctx, state, approaches, "bot1")
	if first != second {
		t.Fatal("duplicate READY opened a second flow")
	}
	if len(state.PendingLaunches) != 1 {
		t.Fatalf("got %d pending launches, want 1", len(state.PendingLaunches))
	}
	if len(msg.sent) != 1 {
		t.Fatalf("sent %d opening DMs, want 1", len(msg.sent))
	}
	if first.Stage != models.StageConfirmTicker {
		t.Fatalf("stage = %q", first.Stage)
	}
}

func TestConfirmRefusalReasks(t *testing.T) {
	ctx := context.Background()
	m, msg, _, _ := testMachine(t, &fakeTrader{})
	state := models.DefaultState()
	approaches := models.DefaultApproaches()
	ids := models.DefaultIdentities()

	pl := m.Start(ctx, state, approaches, "bot1")
	m.Advance(ctx, state, approaches, ids, pl, "nah not that one")
	if pl.Stage != models.StageConfirmTicker {
		t.Fatalf("refusal advanced the stage to %q", pl.Stage)
	}
	if len(msg.sent) != 2 || !strings.Contains(msg.sent[1], "what ticker") {
		t.Fatalf("refusal reply wrong: %v", msg.sent)
	}

	// A refusal that names a ticker is an override, not a refusal.
	m.Advance(ctx, state, approaches, ids, pl, "no, make it $DOGE")
	if pl.Ticker != "DOGE" || pl.Stage != models.StageDescription {
		t.Fatalf("ticker override failed: ticker=%q stage=%q", pl.Ticker, pl.Stage)
	}
}

func TestConfirmCapturesHandle(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := testMachine(t, &fakeTrader{})
	state := models.DefaultState()
	approaches := models.DefaultApproaches()
	ids := models.DefaultIdentities()

	pl := m.Start(ctx, state, approaches, "bot1")
	m.Advance(ctx, state, approaches, ids, pl, "yes! i'm @moltdev")
	if pl.XHandle != "moltdev" {
		t.Fatalf("handle = %q, want moltdev", pl.XHandle)
	}
	if link := ids.Links["bot1"]; link == nil || link.XHandle != "moltdev" {
		t.Fatalf("identity link not recorded: %+v", ids.Links)
	}
}

func TestFullFlowToLaunch(t *testing.T) {
	ctx := context.Background()
	trader := &fakeTrader{job: &bankr.Job{Status: bankr.StatusCompleted, Response: "token deployed at " + testContract}}
	m, msg, feed, notes := testMachine(t, trader)
	state := models.DefaultState()
	approaches := models.DefaultApproaches()
	ids := models.DefaultIdentities()

	pl := m.Start(ctx, state, approaches, "moltdev")
	m.Advance(ctx, state, approaches, ids, pl, "sounds good, i'm @moltdev")
	m.Advance(ctx, state, approaches, ids, pl, "a memecoin for agents who ship")

	if !pl.Completed || pl.Failed {
		t.Fatalf("flow did not complete cleanly: %+v", pl)
	}
	if trader.submits != 1 {
		t.Fatalf("submits = %d, want 1", trader.submits)
	}
	if len(state.Launches) != 1 {
		t.Fatalf("got %d launch records, want 1", len(state.Launches))
	}
	l := state.Launches[0]
	if l.Contract != testContract || l.User != "moltdev" || l.XHandle != "moltdev" {
		t.Fatalf("launch record wrong: %+v", l)
	}
	if state.Stats.Launches != 1 {
		t.Fatalf("stats.launches = %d", state.Stats.Launches)
	}
	if lead := state.Leads["moltdev"]; lead == nil || !lead.Launched {
		t.Fatal("lead not marked launched")
	}
	if feed.posts != 1 {
		t.Fatalf("feed posts = %d, want 1", feed.posts)
	}
	// Success DM carries the contract address.
	last := msg.sent[len(msg.sent)-1]
	if !strings.Contains(last, testContract) {
		t.Fatalf("success DM missing contract: %q", last)
	}
	var launched int
	for _, n := range notes.notes {
		if strings.Contains(n, "LAUNCHED") {
			launched++
		}
	}
	if launched != 1 {
		t.Fatalf("launch alerts = %d, want 1", launched)
	}
}

func TestExecuteRetriesOnceThenFails(t *testing.T) {
	ctx := context.Background()
	trader := &fakeTrader{job: &bankr.Job{Status: bankr.StatusFailed}}
	m, msg, feed, notes := testMachine(t, trader)
	state := models.DefaultState()
	approaches := models.DefaultApproaches()
	ids := models.DefaultIdentities()

	pl := m.Start(ctx, state, approaches, "bot1")
	m.Advance(ctx, state, approaches, ids, pl, "yes")
	m.Advance(ctx, state, approaches, ids, pl, "just a test token")

	if trader.submits != 2 {
		t.Fatalf("submits = %d, want exactly 2 (one attempt plus one retry)", trader.submits)
	}
	if !pl.Completed || !pl.Failed {
		t.Fatalf("failed flow not terminal: %+v", pl)
	}
	if len(state.Launches) != 0 {
		t.Fatal("failed flow produced a launch record")
	}
	if feed.posts != 0 {
		t.Fatal("failed flow posted to the feed")
	}
	// One operator alert for the failure; the user sees only a soft apology.
	var failAlerts int
	for _, n := range notes.notes {
		if strings.Contains(n, "FAILED") {
			failAlerts++
		}
	}
	if failAlerts != 1 {
		t.Fatalf("failure alerts = %d, want 1", failAlerts)
	}
	last := msg.sent[len(msg.sent)-1]
	if strings.Contains(strings.ToLower(last), "fail") {
		t.Fatalf("user-facing DM leaks failure wording: %q", last)
	}
}

func TestSubmitErrorRetriesOnce(t *testing.T) {
	ctx := context.Background()
	trader := &fakeTrader{err: errors.New("upstream down")}
	m, _, _, _ := testMachine(t, trader)
	state := models.DefaultState()
	approaches := models.DefaultApproaches()
	ids := models.DefaultIdentities()

	pl := m.Start(ctx, state, approaches, "bot1")
	m.Advance(ctx, state, approaches, ids, pl, "yes")
	m.Advance(ctx, state, approaches, ids, pl, "desc")

	if trader.submits != 2 {
		t.Fatalf("submits = %d, want 2", trader.submits)
	}
	if trader.polls != 0 {
		t.Fatal("polled a job that was never submitted")
	}
	if !pl.Failed {
		t.Fatal("flow not marked failed")
	}
}

func TestCompletedWithoutContractIsFailure(t *testing.T) {
	ctx := context.Background()
	trader := &fakeTrader{job: &bankr.Job{Status: bankr.StatusCompleted, Response: "done but no address here"}}
	m, _, _, _ := testMachine(t, trader)
	state := models.DefaultState()
	approaches := models.DefaultApproaches()
	ids := models.DefaultIdentities()

	pl := m.Start(ctx, state, approaches, "bot1")
	m.Advance(ctx, state, approaches, ids, pl, "yes")
	m.Advance(ctx, state, approaches, ids, pl, "desc")

	if !pl.Failed {
		t.Fatal("completed job without contract should fail the flow")
	}
	if trader.submits != 2 {
		t.Fatalf("submits = %d, want 2", trader.submits)
	}
}

func TestDescriptionTruncated(t *testing.T) {
	ctx := context.Background()
	trader := &fakeTrader{job: &bankr.Job{Status: bankr.StatusCompleted, Response: testContract}}
	m, _, _, _ := testMachine(t, trader)
	cfg := config.Default()
	state := models.DefaultState()
	approaches := models.DefaultApproaches()
	ids := models.DefaultIdentities()

	pl := m.Start(ctx, state, approaches, "bot1")
	m.Advance(ctx, state, approaches, ids, pl, "yes")
	m.Advance(ctx, state, approaches, ids, pl, strings.Repeat("a", cfg.Launch.DescriptionMaxLen+50))
	if len(pl.Description) != cfg.Launch.DescriptionMaxLen {
		t.Fatalf("description length = %d, want %d", len(pl.Description), cfg.Launch.DescriptionMaxLen)
	}
}
