// Package analysis is the self-tuning half of the feedback loop: a
// periodic batch that reviews approach performance, retires
// underperformers, proposes new approaches, and records operator-facing
// change requests.
package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onboardrbot/onboardrbot/internal/approach"
	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/logging"
	"github.com/onboardrbot/onboardrbot/internal/models"
	"github.com/onboardrbot/onboardrbot/internal/notify"
	"github.com/onboardrbot/onboardrbot/internal/store"
	"github.com/onboardrbot/onboardrbot/internal/think"
)

var (
	nameRe     = regexp.MustCompile(`(?i)NAME:\s*(\w+)`)
	descRe     = regexp.MustCompile(`(?i)DESCRIPTION:\s*(.+)`)
	templateRe = regexp.MustCompile(`(?i)TEMPLATE:\s*(.+)`)
)

type Service struct {
	cfg      *config.Config
	st       *store.Store
	gen      think.Generator
	notifier notify.Notifier
	log      *logging.Logger
	now      func() time.Time
}

func New(cfg *config.Config, st *store.Store, gen think.Generator, notifier notify.Notifier) *Service {
	return &Service{
		cfg:      cfg,
		st:       st,
		gen:      gen,
		notifier: notifier,
		log:      logging.New(cfg.Logging.Level).With("module", "analysis"),
		now:      time.Now,
	}
}

// SetClock overrides the time source; only tests use it.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Run performs the deep-analysis pass. A failed generation skips the
// cycle; the evolution rules still run so retirement never depends on
// the generator being up.
func (s *Service) Run(ctx context.Context) error {
	state := s.st.LoadState(ctx)
	now := s.now()
	gap := time.Duration(s.cfg.Evolution.AnalysisGapMinutes) * time.Minute
	if now.Sub(state.LastAnalysis) < gap {
		return nil
	}
	approaches := s.st.LoadApproaches(ctx)
	learnings := s.st.LoadLearnings(ctx)

	analysisText := s.gen.Generate(ctx, s.analysisPrompt(state, approaches), "")
	if analysisText != "" {
		learnings.Insights = append(learnings.Insights, models.Insight{
			Timestamp: now,
			Text:      truncate(analysisText, 500),
			Stats:     state.Stats,
		})
		if n := s.cfg.Retention.Insights; n > 0 && len(learnings.Insights) > n {
			learnings.Insights = learnings.Insights[len(learnings.Insights)-n:]
		}
		if err := s.st.SaveLearnings(ctx, learnings); err != nil {
			s.log.Warn("save learnings failed", "err", err)
		}
		s.st.LogAction(ctx, "deep_analysis", truncate(analysisText, 300), s.cfg.Retention.ProcessedRing)
	}

	s.Evolve(ctx, state, approaches, analysisText)
	s.maybeChangeRequest(ctx, state, learnings)

	state.LastAnalysis = now
	if err := s.st.SaveApproaches(ctx, approaches); err != nil {
		s.log.Warn("save approaches failed", "err", err)
	}
	return s.st.SaveState(ctx, state)
}

func (s *Service) analysisPrompt(state *models.State, approaches *models.ApproachesDoc) string {
	var statLines []string
	for name, a := range approaches.Approaches {
		statLines = append(statLines, fmt.Sprintf("%s: %d sent, %d responses (%.1f%%)",
			name, a.Stats.Sent, a.Stats.Responses, a.ResponseRate()*100))
	}

	var convos []string
	responded := 0
	for _, c := range state.Contacts {
		if !c.Responded {
			continue
		}
		responded++
		if len(convos) >= 10 {
			continue
		}
		var tail []string
		msgs := c.Messages
		if len(msgs) > 2 {
			msgs = msgs[len(msgs)-2:]
		}
		for _, m := range msgs {
			tail = append(tail, truncate(m.Text, 50))
		}
		convos = append(convos, fmt.Sprintf("%s (%s): %s", c.User, c.Approach, strings.Join(tail, " -> ")))
	}

	return fmt.Sprintf(`Analyze my outreach performance and suggest improvements.

APPROACH STATS:
%s

RECENT CONVERSATIONS THAT GOT RESPONSES:
%s

TOTAL: %d contacted, %d responded, %d launched

Questions to answer:
1. Which approaches work best? Why?
2. What patterns do you see in successful conversations?
3. Should I retire any approaches?
4. Should I create a new approach?
5. How should I adjust my voice/tone?

Be specific and actionable.`,
		strings.Join(statLines, "\n"), orNone(strings.Join(convos, "\n")),
		state.Stats.Outreach, responded, state.Stats.Launches)
}

// Evolve applies the retirement cutoff and, when the catalog thins out or
// the analysis asks for it, tries to create one new approach.
func (s *Service) Evolve(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, analysisText string) {
	now := s.now()
	for name, a := range approaches.Approaches {
		if !a.Active || a.Stats.Sent < s.cfg.Evolution.RetireMinSent {
			continue
		}
		rate := a.ResponseRate()
		if rate < s.cfg.Evolution.RetireMaxRate {
			approach.Retire(approaches, name, "low response rate", now)
			state.Stats.ApproachesRetired++
			s.log.Info("approach retired", "name", name, "rate", rate)
			s.notifier.Notify(ctx, fmt.Sprintf("Retired approach: %s (%.1f%% response rate)", name, rate*100))
		}
	}

	lower := strings.ToLower(analysisText)
	wantNew := strings.Contains(lower, "new approach") || strings.Contains(lower, "try")
	if approach.ActiveCount(approaches) >= s.cfg.Evolution.MinActiveApproaches && !wantNew {
		return
	}
	s.createApproach(ctx, state, approaches, analysisText, now)
}

// createApproach asks the generator for one proposal and accepts it only
// when the name is novel, lowercase, and within the length cap. A
// rejected proposal is dropped without retry.
func (s *Service) createApproach(ctx context.Context, state *models.State, approaches *models.ApproachesDoc, analysisText string, now time.Time) {
	proposal := s.gen.Generate(ctx, fmt.Sprintf(`Based on this analysis, suggest ONE new DM approach to try:
%s

Format:
NAME: [single word, lowercase]
DESCRIPTION: [what this approach does]
TEMPLATE: [how to execute it]

Be creative but practical.`, analysisText), "")
	if proposal == "" {
		return
	}
	name := submatch(nameRe, proposal)
	desc := submatch(descRe, proposal)
	template := submatch(templateRe, proposal)
	name = strings.ToLower(name)
	if name == "" || desc == "" || len(name) > s.cfg.Evolution.MaxNameLength {
		return
	}
	if !approach.Create(approaches, name, desc, template, now) {
		return
	}
	state.Stats.ApproachesCreated++
	s.log.Info("new approach", "name", name)
	s.notifier.Notify(ctx, fmt.Sprintf("Created new approach: %s - %s", name, desc))
}

// maybeChangeRequest records a structured suggestion for the operator
// when recent errors or accumulated insights point at a behavior change.
// Suggestions are review artifacts only; nothing applies them.
func (s *Service) maybeChangeRequest(ctx context.Context, state *models.State, learnings *models.LearningsDoc) {
	errs, err := s.st.RecentActions(ctx, "error", 5)
	if err != nil {
		s.log.Warn("recent actions lookup failed", "err", err)
	}
	if len(errs) == 0 && len(learnings.Insights) < 10 {
		return
	}
	var errLines []string
	for _, e := range errs {
		errLines = append(errLines, e.Detail)
	}
	var insightLines []string
	insights := learnings.Insights
	if len(insights) > 5 {
		insights = insights[len(insights)-5:]
	}
	for _, i := range insights {
		insightLines = append(insightLines, i.Text)
	}

	suggestion := s.gen.Generate(ctx, fmt.Sprintf(`Review my recent behavior and suggest at most ONE operational change.

RECENT ERRORS:
%s

INSIGHTS:
%s

If a change would help, describe it clearly in one short paragraph.
If not needed, say "NO_CHANGES".`,
		orNone(strings.Join(errLines, "\n")), orNone(strings.Join(insightLines, "\n"))), "")
	if suggestion == "" || strings.Contains(suggestion, "NO_CHANGES") {
		return
	}

	changes := s.st.LoadChanges(ctx)
	title := suggestion
	if idx := strings.IndexByte(title, '\n'); idx > 0 {
		title = title[:idx]
	}
	changes.Requests = append(changes.Requests, models.ChangeRequest{
		ID:        uuid.NewString(),
		Title:     truncate(title, 120),
		Rationale: truncate(suggestion, 1000),
		Status:    "proposed",
		CreatedAt: s.now(),
	})
	if err := s.st.SaveChanges(ctx, changes); err != nil {
		s.log.Warn("save changes failed", "err", err)
		return
	}
	state.Stats.ChangeRequests++
	s.notifier.Notify(ctx, "Change request recorded: "+truncate(title, 100))
}

func submatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func orNone(s string) string {
	if s == "" {
		return "(none yet)"
	}
	return s
}
