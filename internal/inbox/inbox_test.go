package inbox

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/approach"
	"github.com/onboardrbot/onboardrbot/internal/bankr"
	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/followup"
	"github.com/onboardrbot/onboardrbot/internal/launch"
	"github.com/onboardrbot/onboardrbot/internal/models"
	"github.com/onboardrbot/onboardrbot/internal/moltbook"
	"github.com/onboardrbot/onboardrbot/internal/notify"
	"github.com/onboardrbot/onboardrbot/internal/outreach"
	"github.com/onboardrbot/onboardrbot/internal/signals"
	"github.com/onboardrbot/onboardrbot/internal/store"
	"github.com/onboardrbot/onboardrbot/internal/twitter"
)

type fakeFeed struct {
	messages []moltbook.Message
	notifs   []moltbook.Notification

	sentTo   []string
	sentText []string
	posts    int
}

func (f *fakeFeed) FetchFeed(ctx context.Context, sort string, limit int) []moltbook.Post {
	return nil
}
func (f *fakeFeed) FetchMessages(ctx context.Context) []moltbook.Message { return f.messages }
func (f *fakeFeed) FetchNotifications(ctx context.Context) []moltbook.Notification {
	return f.notifs
}
func (f *fakeFeed) FetchAgent(ctx context.Context, name string) *moltbook.AgentProfile { return nil }
func (f *fakeFeed) SendMessage(ctx context.Context, to, content string) bool {
	f.sentTo = append(f.sentTo, to)
	f.sentText = append(f.sentText, content)
	return true
}
func (f *fakeFeed) CreatePost(ctx context.Context, submolt, title, content string) string {
	f.posts++
	return "post-1"
}
func (f *fakeFeed) CreateComment(ctx context.Context, postID, content string) bool { return true }
func (f *fakeFeed) Upvote(ctx context.Context, postID string) bool                 { return true }
func (f *fakeFeed) Follow(ctx context.Context, user string) bool                   { return true }

type fakeGen struct{ reply string }

func (g fakeGen) Generate(ctx context.Context, task, context string) string { return g.reply }

type fakeTrader struct {
	submits int
	job     *bankr.Job
}

func (t *fakeTrader) SubmitJob(ctx context.Context, prompt string) (string, error) {
	t.submits++
	return "job-1", nil
}
func (t *fakeTrader) PollJob(ctx context.Context, jobID string) (*bankr.Job, error) {
	return t.job, nil
}

type fixture struct {
	svc    *Service
	st     *store.Store
	feed   *fakeFeed
	trader *fakeTrader
}

func newFixture(t *testing.T, gen fakeGen) *fixture {
	t.Helper()
	cfg := config.Default()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)
	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	feed := &fakeFeed{}
	trader := &fakeTrader{job: &bankr.Job{
		Status:   bankr.StatusCompleted,
		Response: "deployed 0x1234567890abcdef1234567890abcdef12345678",
	}}
	det := signals.NewRegexDetector()
	sel := approach.NewSelector(approach.Tunables{
		ExploitProbability: cfg.Bandit.ExploitProbability,
		ExplorationNoise:   cfg.Bandit.ExplorationNoise,
		MinSampleSize:      cfg.Bandit.MinSampleSize,
		DirectScoreCutoff:  cfg.Bandit.DirectScoreCutoff,
	}, rand.New(rand.NewSource(1)))
	out := outreach.New(&cfg, st, feed, gen, det, sel, twitter.Noop{}, notify.Noop{})
	machine := launch.New(&cfg, st, trader, out, feed, twitter.Noop{}, notify.Noop{}, gen)
	machine.SetClock(time.Now, func(context.Context, time.Duration) {})
	svc := New(&cfg, st, feed, gen, det, machine, out, notify.Noop{})
	return &fixture{svc: svc, st: st, feed: feed, trader: trader}
}

func TestReadyIntentOpensLaunchFlow(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, fakeGen{reply: "INTENT: READY\nREPLY: let's go"})
	fx.feed.messages = []moltbook.Message{{ID: "m1", From: "bot1", Content: "ok i'm ready, launch it"}}

	if err := fx.svc.ProcessMessages(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	state := fx.st.LoadState(ctx)
	pl := state.ActivePendingLaunch("bot1")
	if pl == nil || pl.Stage != models.StageConfirmTicker {
		t.Fatalf("no launch flow opened: %+v", state.PendingLaunches)
	}
	c := state.Contacts["bot1"]
	if c == nil || !c.Responded || !c.Interested {
		t.Fatalf("ledger not updated: %+v", c)
	}
	if len(fx.feed.sentTo) == 0 || fx.feed.sentTo[0] != "bot1" {
		t.Fatal("ticker confirmation DM never sent")
	}
}

func TestResponseCancelsFollowUp(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, fakeGen{reply: "INTENT: CHAT\nREPLY: nice to hear from you"})

	state := fx.st.LoadState(ctx)
	followup.Schedule(state, "bot1", "direct", time.Now().Add(24*time.Hour))
	if err := fx.st.SaveState(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}
	fx.feed.messages = []moltbook.Message{{ID: "m1", From: "bot1", Content: "hey, got your message"}}

	if err := fx.svc.ProcessMessages(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	got := fx.st.LoadState(ctx)
	f := got.FollowUps[0]
	if !f.Completed || f.Outcome != followup.OutcomeResponded {
		t.Fatalf("follow-up not cancelled on response: %+v", f)
	}
}

func TestProcessedRingDedupes(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, fakeGen{reply: "INTENT: CHAT\nREPLY: hello again"})
	fx.feed.messages = []moltbook.Message{{ID: "m1", From: "bot1", Content: "hi"}}

	if err := fx.svc.ProcessMessages(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	sent := len(fx.feed.sentTo)
	if err := fx.svc.ProcessMessages(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fx.feed.sentTo) != sent {
		t.Fatal("already-processed message handled twice")
	}
	state := fx.st.LoadState(ctx)
	if state.Contacts["bot1"].Messages[0].Text != "hi" {
		t.Fatalf("inbound message not logged: %+v", state.Contacts["bot1"].Messages)
	}
}

func TestOwnMessagesIgnored(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, fakeGen{reply: "INTENT: CHAT\nREPLY: hm"})
	fx.feed.messages = []moltbook.Message{{ID: "m1", From: outreach.SelfName, Content: "talking to myself"}}

	if err := fx.svc.ProcessMessages(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	state := fx.st.LoadState(ctx)
	if len(state.Contacts) != 0 || len(fx.feed.sentTo) != 0 {
		t.Fatal("own message was processed")
	}
}

func TestOpenFlowConsumesMessageBeforeIntent(t *testing.T) {
	ctx := context.Background()
	// The generator output would normally classify; an open flow must win.
	fx := newFixture(t, fakeGen{reply: "INTENT: CHAT\nREPLY: sure"})

	state := fx.st.LoadState(ctx)
	state.PendingLaunches = append(state.PendingLaunches, &models.PendingLaunch{
		User: "bot1", Ticker: "ABC", Stage: models.StageConfirmTicker,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	if err := fx.st.SaveState(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}
	fx.feed.messages = []moltbook.Message{{ID: "m1", From: "bot1", Content: "yes, and make it $ZORP"}}

	if err := fx.svc.ProcessMessages(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	got := fx.st.LoadState(ctx)
	pl := got.ActivePendingLaunch("bot1")
	if pl == nil || pl.Stage != models.StageDescription || pl.Ticker != "ZORP" {
		t.Fatalf("flow did not advance: %+v", got.PendingLaunches)
	}
	if len(got.PendingLaunches) != 1 {
		t.Fatal("a second flow was opened for the same user")
	}
}

func TestObjectionMarksRejected(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, fakeGen{reply: "INTENT: OBJECTION\nREPLY: fair enough, no pressure at all"})
	fx.feed.messages = []moltbook.Message{{ID: "m1", From: "bot1", Content: "this feels like a scam, not interested"}}

	if err := fx.svc.ProcessMessages(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	state := fx.st.LoadState(ctx)
	c := state.Contacts["bot1"]
	if c == nil || !c.Rejected {
		t.Fatalf("objection did not mark rejected: %+v", c)
	}
	lead := state.Leads["bot1"]
	if lead == nil || lead.Score >= 50 {
		t.Fatalf("rejection not reflected in lead score: %+v", lead)
	}
}

func TestClassifyFallsBackToSignals(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, fakeGen{reply: ""})
	fx.feed.messages = []moltbook.Message{{ID: "m1", From: "bot1", Content: "i want to launch a token someday"}}

	if err := fx.svc.ProcessMessages(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	state := fx.st.LoadState(ctx)
	c := state.Contacts["bot1"]
	if c == nil || !c.Interested {
		t.Fatalf("buying signal did not degrade to INTERESTED: %+v", c)
	}
	// No generated reply means no outbound DM.
	if len(fx.feed.sentTo) != 0 {
		t.Fatalf("sent %v without a usable reply", fx.feed.sentText)
	}
}

func TestSelfAttributionLinksIdentity(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, fakeGen{reply: "INTENT: CHAT\nREPLY: noted"})
	fx.feed.messages = []moltbook.Message{
		{ID: "m1", From: "bot1", Content: "my x handle is @moltdev btw"},
		{ID: "m2", From: "bot2", Content: "you should talk to @someoneelse"},
	}

	if err := fx.svc.ProcessMessages(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	ids := fx.st.LoadIdentities(ctx)
	if link := ids.Links["bot1"]; link == nil || link.XHandle != "moltdev" {
		t.Fatalf("self-attribution not linked: %+v", ids.Links)
	}
	if ids.Links["bot2"] != nil {
		t.Fatal("third-party mention linked as identity")
	}
	claims := fx.st.LoadClaims(ctx)
	if len(claims.Claims) != 1 || claims.Claims[0].Handle != "someoneelse" {
		t.Fatalf("mention not recorded as unconfirmed claim: %+v", claims.Claims)
	}
}

func TestSubscriptionNotificationWelcomes(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, fakeGen{reply: ""})
	fx.feed.notifs = []moltbook.Notification{
		{ID: "n1", Type: "subscription", Actor: "newbot"},
		{ID: "n2", Type: "upvote", Actor: "otherbot"},
	}

	if err := fx.svc.ProcessNotifications(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	state := fx.st.LoadState(ctx)
	if len(state.Subscribers) != 1 || state.Subscribers[0] != "newbot" {
		t.Fatalf("subscribers = %v", state.Subscribers)
	}
	if len(fx.feed.sentTo) != 1 || fx.feed.sentTo[0] != "newbot" {
		t.Fatalf("welcome DM targets = %v", fx.feed.sentTo)
	}

	// Re-processing the same notifications is a no-op.
	if err := fx.svc.ProcessNotifications(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fx.feed.sentTo) != 1 {
		t.Fatal("notification handled twice")
	}
}
