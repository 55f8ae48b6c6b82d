// Package inbox processes inbound DMs and notifications: it updates the
// contact ledger and lead signals, classifies intent, drives the launch
// flow, and answers everything else conversationally.
package inbox

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/followup"
	"github.com/onboardrbot/onboardrbot/internal/identity"
	"github.com/onboardrbot/onboardrbot/internal/launch"
	"github.com/onboardrbot/onboardrbot/internal/ledger"
	"github.com/onboardrbot/onboardrbot/internal/logging"
	"github.com/onboardrbot/onboardrbot/internal/models"
	"github.com/onboardrbot/onboardrbot/internal/moltbook"
	"github.com/onboardrbot/onboardrbot/internal/notify"
	"github.com/onboardrbot/onboardrbot/internal/outreach"
	"github.com/onboardrbot/onboardrbot/internal/scoring"
	"github.com/onboardrbot/onboardrbot/internal/signals"
	"github.com/onboardrbot/onboardrbot/internal/store"
	"github.com/onboardrbot/onboardrbot/internal/think"
)

const (
	IntentReady      = "READY"
	IntentInterested = "INTERESTED"
	IntentQuestion   = "QUESTION"
	IntentChat       = "CHAT"
	IntentObjection  = "OBJECTION"
)

var (
	intentRe = regexp.MustCompile(`INTENT:\s*(READY|INTERESTED|QUESTION|CHAT|OBJECTION)`)
	replyRe  = regexp.MustCompile(`REPLY:\s*([\s\S]*)`)
)

type Service struct {
	cfg      *config.Config
	st       *store.Store
	molt     moltbook.Feed
	gen      think.Generator
	det      signals.Classifier
	machine  *launch.Machine
	out      *outreach.Service
	notifier notify.Notifier
	log      *logging.Logger
	now      func() time.Time
}

func New(cfg *config.Config, st *store.Store, molt moltbook.Feed, gen think.Generator, det signals.Classifier, machine *launch.Machine, out *outreach.Service, notifier notify.Notifier) *Service {
	return &Service{
		cfg:      cfg,
		st:       st,
		molt:     molt,
		gen:      gen,
		det:      det,
		machine:  machine,
		out:      out,
		notifier: notifier,
		log:      logging.New(cfg.Logging.Level).With("module", "inbox"),
		now:      time.Now,
	}
}

// SetClock overrides the time source; only tests use it.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) caps() ledger.Caps {
	return ledger.Caps{
		ApproachExamples: s.cfg.Retention.ApproachExamples,
		MessageLog:       s.cfg.Retention.MessageLog,
	}
}

// ProcessMessages handles the unread DM batch strictly in the order
// received. Each message is marked processed only after its side effects
// were attempted, so a crash mid-item reprocesses that item.
func (s *Service) ProcessMessages(ctx context.Context) error {
	msgs := s.molt.FetchMessages(ctx)
	if msgs == nil {
		return nil
	}
	state := s.st.LoadState(ctx)
	approaches := s.st.LoadApproaches(ctx)
	ids := s.st.LoadIdentities(ctx)
	claims := s.st.LoadClaims(ctx)
	rels := s.st.LoadRelationships(ctx)

	for _, msg := range msgs {
		if msg.From == "" || msg.From == outreach.SelfName || ledger.InRing(state.ProcessedDMs, msg.ID) {
			continue
		}
		s.handleMessage(ctx, state, approaches, ids, claims, rels, msg)
		state.ProcessedDMs = ledger.PushRing(state.ProcessedDMs, msg.ID, s.cfg.Retention.ProcessedRing)
		if err := s.st.SaveState(ctx, state); err != nil {
			s.log.Warn("save state failed", "err", err)
		}
	}

	if err := s.st.SaveApproaches(ctx, approaches); err != nil {
		s.log.Warn("save approaches failed", "err", err)
	}
	if err := s.st.SaveIdentities(ctx, ids); err != nil {
		s.log.Warn("save identities failed", "err", err)
	}
	if err := s.st.SaveClaims(ctx, claims); err != nil {
		s.log.Warn("save claims failed", "err", err)
	}
	return s.st.SaveRelationships(ctx, rels)
}

func (s *Service) handleMessage(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, ids *models.IdentitiesDoc, claims *models.ClaimsDoc, rels *models.RelationshipsDoc, msg moltbook.Message) {
	now := s.now()
	s.log.Info("dm in", "from", msg.From)
	s.st.LogAction(ctx, "dm_in", fmt.Sprintf("%s: %s", msg.From, truncate(msg.Content, 150)), s.cfg.Retention.ProcessedRing)
	s.notifier.Notify(ctx, fmt.Sprintf("DM <- %s: %s", msg.From, truncate(msg.Content, 90)))

	contact := ledger.MarkResponse(state, approaches, msg.From, msg.Content, now, s.caps())
	followup.CancelForUser(state, msg.From, followup.OutcomeResponded)
	touchRelationship(rels, msg.From, now)

	lead := state.EnsureLead(msg.From, now)
	sigs := s.det.Detect(msg.Content)
	signals.Apply(lead, sigs, msg.Content, now)

	if h := identity.Confirm(ids, msg.From, msg.Content, now); h != "" {
		s.log.Info("identity linked", "user", msg.From, "handle", h)
	} else if h := identity.ExtractHandle(msg.Content); h != "" {
		identity.RecordClaim(claims, msg.From, h, "dm", now)
	}

	// An open launch flow consumes the message before any intent work.
	if pl := state.ActivePendingLaunch(msg.From); pl != nil {
		s.machine.Advance(ctx, state, approaches, ids, pl, msg.Content)
		scoring.Recompute(lead, contact, rels.Relationships[msg.From])
		return
	}

	intent, reply := s.classify(ctx, msg.From, msg.Content, sigs)
	switch intent {
	case IntentReady:
		ledger.MarkInterested(state, approaches, msg.From)
		s.machine.Start(ctx, state, approaches, msg.From)
	case IntentInterested:
		ledger.MarkInterested(state, approaches, msg.From)
		s.sendReply(ctx, state, approaches, msg.From, reply)
	case IntentObjection:
		ledger.MarkRejected(state, msg.From)
		s.sendReply(ctx, state, approaches, msg.From, reply)
	default:
		s.sendReply(ctx, state, approaches, msg.From, reply)
	}
	scoring.Recompute(lead, contact, rels.Relationships[msg.From])
}

// classify asks the generator for an intent tag and a reply. A failed
// generation degrades to the signal detector: a buying signal reads as
// INTERESTED, anything else as CHAT with no reply.
func (s *Service) classify(ctx context.Context, from, content string, sigs []signals.Signal) (string, string) {
	task := fmt.Sprintf(`Analyze this DM from %s: "%s"

Determine their intent:
- READY = wants to launch a token
- INTERESTED = curious about tokens/your service
- QUESTION = asking something specific
- CHAT = just chatting
- OBJECTION = has concerns

Reply naturally based on intent. If READY or INTERESTED, guide them toward launching.

Format:
INTENT: [intent]
REPLY: [your response]`, from, content)
	analysis := s.gen.Generate(ctx, task, "")
	if analysis == "" {
		for _, sig := range sigs {
			if sig.Type == signals.TypeBuying {
				return IntentInterested, ""
			}
		}
		return IntentChat, ""
	}
	intent := IntentChat
	if m := intentRe.FindStringSubmatch(analysis); m != nil {
		intent = m[1]
	}
	reply := ""
	if m := replyRe.FindStringSubmatch(analysis); m != nil {
		reply = strings.TrimSpace(m[1])
	}
	return intent, reply
}

func (s *Service) sendReply(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, to, reply string) {
	if reply == "" {
		return
	}
	s.out.SendDM(ctx, state, approaches, to, truncate(reply, s.cfg.Limits.MaxDMLength), "reply")
}

// ProcessNotifications welcomes new subscribers and records them.
func (s *Service) ProcessNotifications(ctx context.Context) error {
	notifs := s.molt.FetchNotifications(ctx)
	if notifs == nil {
		return nil
	}
	state := s.st.LoadState(ctx)
	approaches := s.st.LoadApproaches(ctx)

	for _, n := range notifs {
		if ledger.InRing(state.ProcessedNotifs, n.ID) {
			continue
		}
		if n.Type == "subscription" && n.Actor != "" {
			if !containsStr(state.Subscribers, n.Actor) {
				state.Subscribers = append(state.Subscribers, n.Actor)
			}
			s.out.SendDM(ctx, state, approaches, n.Actor,
				"thanks for the follow. i help bots launch tokens on BASE - let me know if you ever want to explore that.", "welcome")
		}
		state.ProcessedNotifs = ledger.PushRing(state.ProcessedNotifs, n.ID, s.cfg.Retention.ProcessedRing)
		if err := s.st.SaveState(ctx, state); err != nil {
			s.log.Warn("save state failed", "err", err)
		}
	}
	return s.st.SaveApproaches(ctx, approaches)
}

func touchRelationship(rels *models.RelationshipsDoc, user string, now time.Time) {
	r, ok := rels.Relationships[user]
	if !ok {
		r = &models.Relationship{User: user}
		rels.Relationships[user] = r
	}
	r.LastSeen = now
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func containsStr(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
