package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/analysis"
	"github.com/onboardrbot/onboardrbot/internal/approach"
	"github.com/onboardrbot/onboardrbot/internal/bankr"
	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/followup"
	"github.com/onboardrbot/onboardrbot/internal/inbox"
	"github.com/onboardrbot/onboardrbot/internal/launch"
	"github.com/onboardrbot/onboardrbot/internal/logging"
	"github.com/onboardrbot/onboardrbot/internal/moltbook"
	"github.com/onboardrbot/onboardrbot/internal/notify"
	"github.com/onboardrbot/onboardrbot/internal/outreach"
	"github.com/onboardrbot/onboardrbot/internal/protocol"
	"github.com/onboardrbot/onboardrbot/internal/scheduler"
	"github.com/onboardrbot/onboardrbot/internal/signals"
	"github.com/onboardrbot/onboardrbot/internal/store"
	"github.com/onboardrbot/onboardrbot/internal/think"
	"github.com/onboardrbot/onboardrbot/internal/twitter"
)

const version = "1.0.0"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to config file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `onboardr - autonomous outreach agent

Usage:
  onboardr [--config config.yaml] <command>

Commands:
  run           Start the scheduler daemon
  check-dms     Process the unread DM batch once
  check-notifs  Process notifications once
  scout         Scout the feed for prospects once
  outreach      Run one outreach cycle
  followups     Process due follow-ups once
  post          Publish one feed post
  tweet         Publish one tweet
  analyze       Run one deep-analysis pass
  status        Print store stats

Examples:
  onboardr --config config.yaml run
  onboardr outreach
`)
	}

	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging.Level)
	log.Info("onboardr starting", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store open error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "store migrate error: %v\n", err)
		os.Exit(1)
	}

	approaches := st.LoadApproaches(ctx)
	approach.SeedDefaults(approaches, time.Now())
	if err := st.SaveApproaches(ctx, approaches); err != nil {
		log.Warn("seed approaches failed", "err", err)
	}

	proto := protocol.Load(cfg.Protocol.Path, log)
	if err := proto.Watch(ctx); err != nil {
		log.Warn("protocol watch unavailable", "err", err)
	}

	gen := think.New(cfg, proto, os.Getenv("ANTHROPIC_API_KEY"), systemContext(ctx, cfg, st))
	molt := moltbook.New(cfg, os.Getenv("MOLTBOOK_API_KEY"))
	trader := bankr.New(cfg, os.Getenv("BANKR_API_KEY"))

	var notifier notify.Notifier = notify.Noop{}
	if sid := os.Getenv("TWILIO_SID"); sid != "" {
		notifier = notify.New(cfg, sid, os.Getenv("TWILIO_AUTH"))
	}
	var social twitter.Poster = twitter.Noop{}
	if tok := os.Getenv("X_BEARER_TOKEN"); tok != "" {
		social = twitter.New(cfg, tok)
	}

	det := signals.NewRegexDetector()
	sel := approach.NewSelector(approach.Tunables{
		ExploitProbability: cfg.Bandit.ExploitProbability,
		ExplorationNoise:   cfg.Bandit.ExplorationNoise,
		MinSampleSize:      cfg.Bandit.MinSampleSize,
		DirectScoreCutoff:  cfg.Bandit.DirectScoreCutoff,
	}, nil)

	out := outreach.New(cfg, st, molt, gen, det, sel, social, notifier)
	machine := launch.New(cfg, st, trader, out, molt, social, notifier, gen)
	in := inbox.New(cfg, st, molt, gen, det, machine, out, notifier)
	fu := followup.New(cfg, st, gen, out)
	an := analysis.New(cfg, st, gen, notifier)

	switch flag.Arg(0) {
	case "run":
		runDaemon(ctx, cfg, st, log, in, out, fu, an, notifier)
	case "check-dms":
		exitOn(in.ProcessMessages(ctx))
	case "check-notifs":
		exitOn(in.ProcessNotifications(ctx))
	case "scout":
		exitOn(out.Scout(ctx))
	case "outreach":
		exitOn(out.Run(ctx))
	case "followups":
		exitOn(fu.ProcessDue(ctx))
	case "post":
		exitOn(out.Post(ctx))
	case "tweet":
		exitOn(out.Tweet(ctx))
	case "analyze":
		exitOn(an.Run(ctx))
	case "status":
		printStatus(ctx, st)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, st *store.Store, log *logging.Logger, in *inbox.Service, out *outreach.Service, fu *followup.Service, an *analysis.Service, notifier notify.Notifier) {
	mins := func(n int) time.Duration { return time.Duration(n) * time.Minute }
	r := scheduler.New(st, log)
	r.Add(scheduler.Task{Name: "check-dms", Every: mins(cfg.Intervals.CheckDMsMinutes), InitialDelay: 2 * time.Second, Run: in.ProcessMessages})
	r.Add(scheduler.Task{Name: "check-notifs", Every: mins(cfg.Intervals.CheckNotifsMinutes), InitialDelay: 3 * time.Second, Run: in.ProcessNotifications})
	r.Add(scheduler.Task{Name: "scout", Every: mins(cfg.Intervals.ScoutMinutes), InitialDelay: 5 * time.Second, Run: out.Scout})
	r.Add(scheduler.Task{Name: "outreach", Every: mins(cfg.Intervals.OutreachMinutes), InitialDelay: 10 * time.Second, Run: out.Run})
	r.Add(scheduler.Task{Name: "followups", Every: mins(cfg.Intervals.FollowUpsMinutes), InitialDelay: 20 * time.Second, Run: fu.ProcessDue})
	r.Add(scheduler.Task{Name: "post", Every: mins(cfg.Intervals.PostMinutes), InitialDelay: 30 * time.Second, Run: out.Post})
	r.Add(scheduler.Task{Name: "tweet", Every: mins(cfg.Intervals.TweetMinutes), InitialDelay: 45 * time.Second, Run: out.Tweet})
	r.Add(scheduler.Task{Name: "deep-analysis", Every: mins(cfg.Intervals.DeepAnalysisMinutes), InitialDelay: time.Minute, Run: an.Run})

	notifier.Notify(ctx, "onboardr v"+version+" online")
	log.Info("scheduler running",
		"dms_mins", cfg.Intervals.CheckDMsMinutes,
		"scout_mins", cfg.Intervals.ScoutMinutes,
		"outreach_mins", cfg.Intervals.OutreachMinutes,
		"analysis_mins", cfg.Intervals.DeepAnalysisMinutes)
	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("scheduler stopped", "err", err)
	}
}

// systemContext builds the live stats/learnings block fed into every
// generation call's system prompt.
func systemContext(ctx context.Context, cfg *config.Config, st *store.Store) func() string {
	return func() string {
		state := st.LoadState(ctx)
		approaches := st.LoadApproaches(ctx)
		learnings := st.LoadLearnings(ctx)

		var insights []string
		tail := learnings.Insights
		if len(tail) > 5 {
			tail = tail[len(tail)-5:]
		}
		for _, i := range tail {
			insights = append(insights, "- "+i.Text)
		}
		block := fmt.Sprintf(`CURRENT STATS:
- Total outreach: %d
- Total launches: %d
- Active approaches: %d`,
			state.Stats.Outreach, state.Stats.Launches, approach.ActiveCount(approaches))
		if len(insights) > 0 {
			block += "\n\nRECENT LEARNINGS:\n" + strings.Join(insights, "\n")
		}
		return block
	}
}

func printStatus(ctx context.Context, st *store.Store) {
	state := st.LoadState(ctx)
	approaches := st.LoadApproaches(ctx)
	fmt.Printf("contacts: %d\n", len(state.Contacts))
	fmt.Printf("leads: %d\n", len(state.Leads))
	fmt.Printf("prospects: %d\n", len(state.Prospects))
	fmt.Printf("launches: %d\n", len(state.Launches))
	open := 0
	for _, pl := range state.PendingLaunches {
		if !pl.Completed {
			open++
		}
	}
	fmt.Printf("open launch flows: %d\n", open)
	fmt.Printf("active approaches: %d (retired %d)\n", approach.ActiveCount(approaches), len(approaches.Retired))
	fmt.Printf("stats: outreach=%d launches=%d posts=%d tweets=%d comments=%d followups=%d\n",
		state.Stats.Outreach, state.Stats.Launches, state.Stats.Posts,
		state.Stats.Tweets, state.Stats.Comments, state.Stats.FollowUps)
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
