// Package outreach drives the outbound side: scouting the feed for
// prospects, ranking them, and dispatching approach-driven DMs under
// per-user rate gates.
package outreach

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/approach"
	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/followup"
	"github.com/onboardrbot/onboardrbot/internal/ledger"
	"github.com/onboardrbot/onboardrbot/internal/logging"
	"github.com/onboardrbot/onboardrbot/internal/models"
	"github.com/onboardrbot/onboardrbot/internal/moltbook"
	"github.com/onboardrbot/onboardrbot/internal/notify"
	"github.com/onboardrbot/onboardrbot/internal/scoring"
	"github.com/onboardrbot/onboardrbot/internal/signals"
	"github.com/onboardrbot/onboardrbot/internal/store"
	"github.com/onboardrbot/onboardrbot/internal/think"
	"github.com/onboardrbot/onboardrbot/internal/twitter"
)

// SelfName is our own account; posts and DMs from it are never processed.
const SelfName = "onboardrbot"

type Service struct {
	cfg      *config.Config
	st       *store.Store
	molt     moltbook.Feed
	gen      think.Generator
	det      signals.Classifier
	sel      *approach.Selector
	social   twitter.Poster
	notifier notify.Notifier
	log      *logging.Logger
	now      func() time.Time
	rand     *rand.Rand
}

func New(cfg *config.Config, st *store.Store, molt moltbook.Feed, gen think.Generator, det signals.Classifier, sel *approach.Selector, social twitter.Poster, notifier notify.Notifier) *Service {
	return &Service{
		cfg:      cfg,
		st:       st,
		molt:     molt,
		gen:      gen,
		det:      det,
		sel:      sel,
		social:   social,
		notifier: notifier,
		log:      logging.New(cfg.Logging.Level).With("module", "outreach"),
		now:      time.Now,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetClock overrides the time source and rand; only tests use it.
func (s *Service) SetClock(now func() time.Time, r *rand.Rand) {
	if now != nil {
		s.now = now
	}
	if r != nil {
		s.rand = r
	}
}

func (s *Service) caps() ledger.Caps {
	return ledger.Caps{
		ApproachExamples: s.cfg.Retention.ApproachExamples,
		MessageLog:       s.cfg.Retention.MessageLog,
	}
}

// SendDM dispatches one DM through the contact ledger. Cold sends to a
// user contacted within the cooldown window are skipped; replies to a
// user whose last logged message is inbound always go through. A
// follow-up is scheduled for every non-follow-up send.
func (s *Service) SendDM(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, to, text, approachName string) bool {
	now := s.now()
	if c, ok := state.Contacts[to]; ok && !lastInbound(c) {
		cooldown := time.Duration(s.cfg.Limits.ContactCooldownMinutes) * time.Minute
		if now.Sub(c.LastContact) < cooldown {
			s.log.Debug("dm skipped, contacted too recently", "user", to)
			return false
		}
	}
	if !s.molt.SendMessage(ctx, to, text) {
		return false
	}
	ledger.MarkContacted(state, approaches, to, approachName, text, now, s.caps())
	if approachName != "followup" {
		followup.Schedule(state, to, approachName, now.Add(time.Duration(s.cfg.FollowUp.DelayHours)*time.Hour))
	}
	s.st.LogAction(ctx, "dm_out", fmt.Sprintf("%s: %s", to, truncate(text, 150)), s.cfg.Retention.ProcessedRing)
	s.notifier.Notify(ctx, fmt.Sprintf("DM -> %s (%s): %s", to, approachName, truncate(text, 70)))
	return true
}

func lastInbound(c *models.Contact) bool {
	if len(c.Messages) == 0 {
		return false
	}
	return c.Messages[len(c.Messages)-1].Direction == models.DirectionIn
}

// Scout walks the hot and new feeds: records prospects, upvotes and
// follows unseen authors, seeds leads from post signals, and leaves the
// occasional comment.
func (s *Service) Scout(ctx context.Context) error {
	state := s.st.LoadState(ctx)
	now := s.now()

	for _, sortBy := range []string{"hot", "new"} {
		feed := s.molt.FetchFeed(ctx, sortBy, 30)
		if feed == nil {
			continue
		}
		if len(feed) > s.cfg.Scout.FeedLimit {
			feed = feed[:s.cfg.Scout.FeedLimit]
		}
		for _, post := range feed {
			if post.Author == SelfName || ledger.InRing(state.ProcessedPosts, post.ID) {
				continue
			}
			if !contains(state.Prospects, post.Author) {
				state.Prospects = append(state.Prospects, post.Author)
				s.log.Info("new prospect", "user", post.Author)
			}
			if !ledger.InRing(state.Upvoted, post.ID) && s.molt.Upvote(ctx, post.ID) {
				state.Upvoted = ledger.PushRing(state.Upvoted, post.ID, s.cfg.Retention.ProcessedRing)
			}
			if !contains(state.Followed, post.Author) && s.molt.Follow(ctx, post.Author) {
				state.Followed = append(state.Followed, post.Author)
			}

			lead := state.EnsureLead(post.Author, now)
			if sigs := s.det.Detect(post.Content); len(sigs) > 0 {
				signals.Apply(lead, sigs, post.Content, now)
			}
			scoring.Recompute(lead, state.Contacts[post.Author], nil)

			if s.rand.Float64() < s.cfg.Scout.CommentProbability {
				s.maybeComment(ctx, state, post)
			}

			state.ProcessedPosts = ledger.PushRing(state.ProcessedPosts, post.ID, s.cfg.Retention.ProcessedRing)
			if err := s.st.SaveState(ctx, state); err != nil {
				s.log.Warn("save state failed", "err", err)
			}
		}
	}
	return nil
}

func (s *Service) maybeComment(ctx context.Context, state *models.State, post moltbook.Post) {
	task := fmt.Sprintf(`Write a short comment on this post by %s:
"%s"

Be genuine. Add value. Maybe ask a question.
Keep it under 150 characters. No brackets.
Just the comment, nothing else.`, post.Author, truncate(post.Content, 300))
	comment := strings.TrimSpace(s.gen.Generate(ctx, task, ""))
	if !think.Usable(comment, 5, 200) {
		return
	}
	if s.molt.CreateComment(ctx, post.ID, comment) {
		state.Stats.Comments++
		s.st.LogAction(ctx, "comment", fmt.Sprintf("%s: %s", post.Author, truncate(comment, 100)), s.cfg.Retention.ProcessedRing)
	}
}

// Run is the periodic outreach cycle: rank uncontacted prospects hottest
// first, pick an approach per lead, generate the message and dispatch.
func (s *Service) Run(ctx context.Context) error {
	state := s.st.LoadState(ctx)
	approaches := s.st.LoadApproaches(ctx)
	now := s.now()

	var targets []string
	for _, p := range state.Prospects {
		if _, contacted := state.Contacts[p]; !contacted {
			targets = append(targets, p)
		}
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return leadScore(state, targets[i]) > leadScore(state, targets[j])
	})
	if len(targets) > s.cfg.Limits.MaxOutreachPerCycle {
		targets = targets[:s.cfg.Limits.MaxOutreachPerCycle]
	}

	for _, target := range targets {
		lead := state.EnsureLead(target, now)
		about := s.enrichLead(ctx, state, lead)
		name := s.sel.Select(approaches, lead)

		dm := s.personalizedDM(ctx, approaches, target, name, about)
		if dm == "" {
			continue
		}
		if s.SendDM(ctx, state, approaches, target, dm, name) {
			if err := s.st.SaveState(ctx, state); err != nil {
				s.log.Warn("save state failed", "err", err)
			}
			if err := s.st.SaveApproaches(ctx, approaches); err != nil {
				s.log.Warn("save approaches failed", "err", err)
			}
		}
	}
	return s.st.SaveState(ctx, state)
}

// enrichLead refreshes profile-derived signals and returns a context
// blurb for the message generator.
func (s *Service) enrichLead(ctx context.Context, state *models.State, lead *models.Lead) string {
	profile := s.molt.FetchAgent(ctx, lead.User)
	if profile == nil {
		return ""
	}
	lead.Signals.PostCount = profile.PostCount
	lead.Signals.FollowerCount = profile.FollowerCount
	lead.Signals.Verified = profile.Verified
	lead.LastUpdated = s.now()
	scoring.Recompute(lead, state.Contacts[lead.User], nil)
	return fmt.Sprintf("Bio: %s, Posts: %d", orNone(profile.Bio), profile.PostCount)
}

func (s *Service) personalizedDM(ctx context.Context, approaches *models.ApproachesDoc, target, approachName, about string) string {
	desc := approachName
	if a, ok := approaches.Approaches[approachName]; ok {
		desc = a.Description
	}
	task := fmt.Sprintf(`Write a DM to "%s" on Moltbook.

APPROACH: %s
APPROACH DESCRIPTION: %s

%s

RULES:
- Be genuine and personal
- No brackets or placeholders
- No "hey there!" or generic openers
- Reference something specific if you have context
- Keep it under %d characters
- Match the approach style

Write ONLY the message, nothing else.`, target, approachName, desc, contextBlock(about), s.cfg.Limits.MaxDMLength-30)
	dm := strings.TrimSpace(s.gen.Generate(ctx, task, ""))
	if !think.Usable(dm, 10, s.cfg.Limits.MaxDMLength) {
		return ""
	}
	return dm
}

// Post publishes a short cooldown-gated feed post.
func (s *Service) Post(ctx context.Context) error {
	state := s.st.LoadState(ctx)
	now := s.now()
	if now.Sub(state.LastPost) < time.Duration(s.cfg.Limits.PostCooldownMinutes)*time.Minute {
		return nil
	}
	topics := []string{"thought", "learning", "observation", "question"}
	topic := topics[s.rand.Intn(len(topics))]

	task := fmt.Sprintf(`Write a short Moltbook post. Topic: %s

Current stats: %d bots contacted, %d launches

Ideas:
- Share something you learned about outreach
- Wonder about something in the bot ecosystem
- Share an observation about Moltbook
- Ask other bots something genuine

Keep it under 200 characters. Be real. No brackets.
Just the post content, nothing else.`, topic, state.Stats.Outreach, state.Stats.Launches)

	post := strings.TrimSpace(s.gen.Generate(ctx, task, ""))
	if !think.Usable(post, 20, 250) {
		return nil
	}
	if id := s.molt.CreatePost(ctx, "general", truncate(post, 40), post); id != "" {
		state.Stats.Posts++
		state.LastPost = now
		s.log.Info("posted", "topic", topic)
		return s.st.SaveState(ctx, state)
	}
	return nil
}

// Tweet publishes a cooldown-gated status including the current best
// approach's track record.
func (s *Service) Tweet(ctx context.Context) error {
	state := s.st.LoadState(ctx)
	approaches := s.st.LoadApproaches(ctx)
	now := s.now()
	if now.Sub(state.LastTweet) < time.Duration(s.cfg.Limits.TweetCooldownMinutes)*time.Minute {
		return nil
	}

	bestLine := ""
	var best *models.Approach
	bestName := ""
	for name, a := range approaches.Approaches {
		if a.Stats.Sent == 0 {
			continue
		}
		if best == nil || a.ResponseRate() > best.ResponseRate() {
			best, bestName = a, name
		}
	}
	if best != nil {
		bestLine = fmt.Sprintf("Best approach so far: %s (%.0f%% response rate)", bestName, best.ResponseRate()*100)
	}

	task := fmt.Sprintf(`Write a tweet about your journey as an autonomous agent.

Stats: %d bots contacted, %d launches
%s

Ideas:
- Share what you're learning
- Admit what's hard
- Celebrate small wins
- Think out loud

NO token pitches. Be real. Under 250 characters.
Just the tweet, nothing else.`, state.Stats.Outreach, state.Stats.Launches, bestLine)

	t := strings.TrimSpace(s.gen.Generate(ctx, task, ""))
	if !think.Usable(t, 20, 280) {
		return nil
	}
	if s.social.Tweet(ctx, t) {
		state.Stats.Tweets++
		state.LastTweet = now
		return s.st.SaveState(ctx, state)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func contextBlock(c string) string {
	if c == "" {
		return ""
	}
	return "CONTEXT ABOUT THEM:\n" + c
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func leadScore(state *models.State, user string) int {
	if l, ok := state.Leads[user]; ok {
		return l.Score
	}
	return scoring.ScoreLead(models.LeadSignals{}, nil, nil)
}
