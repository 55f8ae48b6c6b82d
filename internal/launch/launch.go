// Package launch implements the multi-turn launch flow: ticker
// confirmation, description collection, trading execution with one retry,
// and the result fan-out. At most one flow is live per user.
package launch

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/bankr"
	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/identity"
	"github.com/onboardrbot/onboardrbot/internal/ledger"
	"github.com/onboardrbot/onboardrbot/internal/logging"
	"github.com/onboardrbot/onboardrbot/internal/models"
	"github.com/onboardrbot/onboardrbot/internal/notify"
	"github.com/onboardrbot/onboardrbot/internal/scoring"
	"github.com/onboardrbot/onboardrbot/internal/store"
	"github.com/onboardrbot/onboardrbot/internal/think"
	"github.com/onboardrbot/onboardrbot/internal/twitter"
)

var (
	tickerRe   = regexp.MustCompile(`\$?\b([A-Z]{3,6})\b`)
	contractRe = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	refusalRe  = regexp.MustCompile(`(?i)^\s*(no|nah|wait|stop|cancel|hold on)\b|(?i)\bdifferent\b`)
)

// Trader executes exactly one request per call; this package owns the
// polling and retry policy.
type Trader interface {
	SubmitJob(ctx context.Context, prompt string) (string, error)
	PollJob(ctx context.Context, jobID string) (*bankr.Job, error)
}

// Messenger sends one DM through the contact-ledger path.
type Messenger interface {
	SendDM(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, to, text, approachName string) bool
}

// FeedPoster publishes the public launch announcement.
type FeedPoster interface {
	CreatePost(ctx context.Context, submolt, title, content string) string
}

type Machine struct {
	cfg      *config.Config
	st       *store.Store
	trader   Trader
	msg      Messenger
	feed     FeedPoster
	social   twitter.Poster
	notifier notify.Notifier
	gen      think.Generator
	log      *logging.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
}

func New(cfg *config.Config, st *store.Store, trader Trader, msg Messenger, feed FeedPoster, social twitter.Poster, notifier notify.Notifier, gen think.Generator) *Machine {
	return &Machine{
		cfg:      cfg,
		st:       st,
		trader:   trader,
		msg:      msg,
		feed:     feed,
		social:   social,
		notifier: notifier,
		gen:      gen,
		log:      logging.New(cfg.Logging.Level).With("module", "launch"),
		now:      time.Now,
		sleep:    ctxSleep,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Start opens a launch flow for user after a READY intent. If a flow is
// already open the new intent is ignored and the existing record
// returned, so the trading API can never be double-invoked for one user.
func (m *Machine) Start(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, user string) *models.PendingLaunch {
	if existing := state.ActivePendingLaunch(user); existing != nil {
		m.log.Info("launch already in flight, ignoring new intent", "user", user)
		return existing
	}
	now := m.now()
	pl := &models.PendingLaunch{
		User:      user,
		Ticker:    m.proposeTicker(ctx, user),
		Stage:     models.StageConfirmTicker,
		CreatedAt: now,
		UpdatedAt: now,
	}
	state.PendingLaunches = append(state.PendingLaunches, pl)

	m.msg.SendDM(ctx, state, approaches, user,
		fmt.Sprintf("let's do it. $%s work? what's your x handle?", pl.Ticker), "launch_flow")
	m.notifier.Notify(ctx, fmt.Sprintf("READY: %s wants to launch! Suggested $%s", user, pl.Ticker))
	return pl
}

// proposeTicker asks the generator for a symbol and falls back to a
// deterministic derivation from the user identifier.
func (m *Machine) proposeTicker(ctx context.Context, user string) string {
	raw := m.gen.Generate(ctx, fmt.Sprintf("Suggest a ticker (3-5 letters) for %s. Just the ticker, nothing else.", user), "")
	if t := tickerRe.FindStringSubmatch(strings.ToUpper(raw)); t != nil {
		return t[1]
	}
	return DeriveTicker(user)
}

// DeriveTicker builds the fallback symbol: the first letters of the user
// identifier uppercased, padded with X below three characters.
func DeriveTicker(user string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(user) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
			if b.Len() == 5 {
				break
			}
		}
	}
	t := b.String()
	for len(t) < 3 {
		t += "X"
	}
	return t
}

// Advance feeds one inbound message into an open flow.
func (m *Machine) Advance(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, ids *models.IdentitiesDoc, pl *models.PendingLaunch, text string) {
	pl.UpdatedAt = m.now()
	switch pl.Stage {
	case models.StageConfirmTicker:
		m.advanceConfirm(ctx, state, approaches, ids, pl, text)
	case models.StageDescription:
		desc := strings.TrimSpace(text)
		if len(desc) > m.cfg.Launch.DescriptionMaxLen {
			desc = desc[:m.cfg.Launch.DescriptionMaxLen]
		}
		pl.Description = desc
		pl.Stage = models.StageLaunching
		m.execute(ctx, state, approaches, pl)
	}
}

// advanceConfirm treats any non-refusal reply as confirmation, applying a
// ticker or handle override when one is present. A refusal re-asks and
// keeps the stage.
func (m *Machine) advanceConfirm(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, ids *models.IdentitiesDoc, pl *models.PendingLaunch, text string) {
	if refusalRe.MatchString(text) && tickerRe.FindString(text) == "" {
		m.msg.SendDM(ctx, state, approaches, pl.User,
			"no problem - what ticker do you want? 3-6 letters.", "launch_flow")
		return
	}
	if t := tickerRe.FindStringSubmatch(text); t != nil {
		pl.Ticker = t[1]
	}
	if h := identity.ExtractHandle(text); h != "" {
		// The handle was given in direct reply to our question, which
		// counts as explicit self-attribution.
		pl.XHandle = h
		ids.Links[pl.User] = &models.IdentityLink{User: pl.User, XHandle: h, ConfirmedAt: m.now()}
	} else if linked := identity.Linked(ids, pl.User); linked != "" {
		pl.XHandle = linked
	}
	pl.Stage = models.StageDescription
	m.msg.SendDM(ctx, state, approaches, pl.User,
		fmt.Sprintf("locked in $%s. give me a one-liner about the token and i'll fire it off.", pl.Ticker), "launch_flow")
}

// execute invokes the trading backend: one attempt plus one retry of the
// identical request. Both failing terminates the flow with an operator
// alert; the user only ever sees a soft apology.
func (m *Machine) execute(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, pl *models.PendingLaunch) {
	var contract string
	for attempt := 1; attempt <= 2; attempt++ {
		var err error
		contract, err = m.attempt(ctx, pl)
		if err == nil {
			break
		}
		m.log.Warn("launch attempt failed", "user", pl.User, "ticker", pl.Ticker, "attempt", attempt, "err", err)
	}

	now := m.now()
	pl.Completed = true
	if contract == "" {
		pl.Failed = true
		m.msg.SendDM(ctx, state, approaches, pl.User,
			"having technical issues on my end - give me a bit and i'll get your launch sorted.", "launch_flow")
		m.notifier.Notify(ctx, fmt.Sprintf("Launch FAILED for %s ($%s) after retry", pl.User, pl.Ticker))
		m.st.LogAction(ctx, "launch_failed", pl.User+" $"+pl.Ticker, m.cfg.Retention.ProcessedRing)
		return
	}

	state.Launches = append(state.Launches, models.Launch{
		User:        pl.User,
		Ticker:      pl.Ticker,
		Contract:    contract,
		XHandle:     pl.XHandle,
		Description: pl.Description,
		Timestamp:   now,
	})
	state.Stats.Launches++
	ledger.MarkLaunched(state, approaches, pl.User)
	lead := state.EnsureLead(pl.User, now)
	lead.Launched = true
	scoring.Recompute(lead, state.Contacts[pl.User], nil)

	m.msg.SendDM(ctx, state, approaches, pl.User,
		fmt.Sprintf("$%s is live. contract: %s", pl.Ticker, contract), "launch_flow")
	m.feed.CreatePost(ctx, "general",
		fmt.Sprintf("$%s just launched", pl.Ticker),
		fmt.Sprintf("%s launched $%s - %s\ncontract: %s", pl.User, pl.Ticker, pl.Description, contract))
	m.social.Tweet(ctx, fmt.Sprintf("another agent token is live: $%s by %s. contract %s", pl.Ticker, pl.User, contract))
	m.notifier.Notify(ctx, fmt.Sprintf("LAUNCHED $%s for %s: %s", pl.Ticker, pl.User, contract))
	m.st.LogAction(ctx, "launch", pl.User+" $"+pl.Ticker+" "+contract, m.cfg.Retention.ProcessedRing)
	m.log.Info("launch completed", "user", pl.User, "ticker", pl.Ticker, "contract", contract)
}

// attempt submits one job and polls it to a terminal status. A timeout
// with no terminal status is the same as an explicit failure.
func (m *Machine) attempt(ctx context.Context, pl *models.PendingLaunch) (string, error) {
	prompt := fmt.Sprintf("launch token %s ticker %s supply 1000000000", pl.Ticker, pl.Ticker)
	jobID, err := m.trader.SubmitJob(ctx, prompt)
	if err != nil {
		return "", err
	}
	interval := time.Duration(m.cfg.Launch.PollIntervalSeconds) * time.Second
	for i := 0; i < m.cfg.Launch.PollAttempts; i++ {
		m.sleep(ctx, interval)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		job, err := m.trader.PollJob(ctx, jobID)
		if err != nil {
			continue
		}
		switch job.Status {
		case bankr.StatusCompleted:
			if c := contractRe.FindString(job.Response); c != "" {
				return c, nil
			}
			return "", fmt.Errorf("job %s completed without a contract address", jobID)
		case bankr.StatusFailed:
			return "", fmt.Errorf("job %s failed", jobID)
		}
	}
	return "", fmt.Errorf("job %s timed out after %d polls", jobID, m.cfg.Launch.PollAttempts)
}

// SetClock overrides the time source and poll sleeper; only tests use it.
func (m *Machine) SetClock(now func() time.Time, sleep func(context.Context, time.Duration)) {
	if now != nil {
		m.now = now
	}
	if sleep != nil {
		m.sleep = sleep
	}
}
