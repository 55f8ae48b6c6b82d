// Package followup is the bounded-retry reminder queue for unanswered
// outreach. It shares the contact ledger with the rest of the system but
// is independent of the launch flow.
package followup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/logging"
	"github.com/onboardrbot/onboardrbot/internal/models"
	"github.com/onboardrbot/onboardrbot/internal/store"
	"github.com/onboardrbot/onboardrbot/internal/think"
)

const (
	OutcomeResponded = "responded"
	OutcomeExhausted = "exhausted"
)

// Messenger sends one DM through the contact-ledger path.
type Messenger interface {
	SendDM(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, to, text, approachName string) bool
}

// Schedule enqueues a follow-up for user unless one is already pending.
// Idempotent per user.
func Schedule(s *models.State, user, typ string, at time.Time) *models.FollowUp {
	if existing := s.OpenFollowUp(user); existing != nil {
		return existing
	}
	f := &models.FollowUp{
		ID:           uuid.NewString(),
		User:         user,
		Type:         typ,
		ScheduledFor: at,
		CreatedAt:    time.Now(),
	}
	s.FollowUps = append(s.FollowUps, f)
	return f
}

// CancelForUser completes the open follow-up for user, if any. Used when
// the user responds before the reminder fires.
func CancelForUser(s *models.State, user, outcome string) bool {
	f := s.OpenFollowUp(user)
	if f == nil {
		return false
	}
	f.Completed = true
	f.Outcome = outcome
	return true
}

// Due returns non-completed follow-ups whose time has come and whose
// attempts are below the cap.
func Due(s *models.State, now time.Time, maxAttempts int) []*models.FollowUp {
	var out []*models.FollowUp
	for _, f := range s.FollowUps {
		if f.Completed || f.Attempts >= maxAttempts {
			continue
		}
		if !f.ScheduledFor.After(now) {
			out = append(out, f)
		}
	}
	return out
}

type Service struct {
	cfg *config.Config
	st  *store.Store
	gen think.Generator
	msg Messenger
	log *logging.Logger
	now func() time.Time
}

func New(cfg *config.Config, st *store.Store, gen think.Generator, msg Messenger) *Service {
	return &Service{
		cfg: cfg,
		st:  st,
		gen: gen,
		msg: msg,
		log: logging.New(cfg.Logging.Level).With("module", "followup"),
		now: time.Now,
	}
}

// ProcessDue walks the due queue. A contact who has responded since the
// reminder was scheduled completes it silently; otherwise a reminder is
// generated and sent, and the entry either reschedules or exhausts.
func (s *Service) ProcessDue(ctx context.Context) error {
	state := s.st.LoadState(ctx)
	approaches := s.st.LoadApproaches(ctx)
	now := s.now()

	due := Due(state, now, s.cfg.FollowUp.MaxAttempts)
	if len(due) == 0 {
		return nil
	}
	s.log.Info("follow-ups due", "count", len(due))

	for _, f := range due {
		c := state.Contacts[f.User]
		if c != nil && c.Responded {
			f.Completed = true
			f.Outcome = OutcomeResponded
			continue
		}

		text := s.reminderText(ctx, f, c)
		if text != "" {
			if s.msg.SendDM(ctx, state, approaches, f.User, text, "followup") {
				state.Stats.FollowUps++
				s.st.LogAction(ctx, "followup", fmt.Sprintf("%s attempt %d", f.User, f.Attempts+1), s.cfg.Retention.ProcessedRing)
			}
		}

		f.Attempts++
		if f.Attempts >= s.cfg.FollowUp.MaxAttempts {
			f.Completed = true
			f.Outcome = OutcomeExhausted
		} else {
			f.ScheduledFor = now.Add(time.Duration(s.cfg.FollowUp.RetryHours) * time.Hour)
		}
	}

	if err := s.st.SaveApproaches(ctx, approaches); err != nil {
		s.log.Warn("save approaches failed", "err", err)
	}
	return s.st.SaveState(ctx, state)
}

func (s *Service) reminderText(ctx context.Context, f *models.FollowUp, c *models.Contact) string {
	last := ""
	if c != nil && len(c.Messages) > 0 {
		last = c.Messages[len(c.Messages)-1].Text
	}
	task := fmt.Sprintf(`Write a short, low-pressure follow-up DM to "%s". This is reminder %d of %d; they have not replied.

RULES:
- Do not guilt them or repeat the original pitch verbatim
- Keep it under %d characters
- Write ONLY the message, nothing else.`,
		f.User, f.Attempts+1, s.cfg.FollowUp.MaxAttempts, s.cfg.Limits.MaxDMLength)
	text := s.gen.Generate(ctx, task, "Last message sent: "+last)
	if !think.Usable(text, 10, s.cfg.Limits.MaxDMLength) {
		return ""
	}
	return text
}
