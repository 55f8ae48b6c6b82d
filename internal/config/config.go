package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Moltbook struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"moltbook"`
	Bankr struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"bankr"`
	LLM struct {
		BaseURL   string `yaml:"base_url"`
		Model     string `yaml:"model"`
		MaxTokens int    `yaml:"max_tokens"`
	} `yaml:"llm"`
	Twitter struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"twitter"`
	Notify struct {
		BaseURL string `yaml:"base_url"`
		From    string `yaml:"from"`
		To      string `yaml:"to"`
	} `yaml:"notify"`
	Limits struct {
		ContactCooldownMinutes int `yaml:"contact_cooldown_minutes"`
		MaxOutreachPerCycle    int `yaml:"max_outreach_per_cycle"`
		MaxDMLength            int `yaml:"max_dm_length"`
		PostCooldownMinutes    int `yaml:"post_cooldown_minutes"`
		TweetCooldownMinutes   int `yaml:"tweet_cooldown_minutes"`
	} `yaml:"limits"`
	Bandit struct {
		ExploitProbability float64 `yaml:"exploit_probability"`
		ExplorationNoise   float64 `yaml:"exploration_noise"`
		MinSampleSize      int     `yaml:"min_sample_size"`
		DirectScoreCutoff  int     `yaml:"direct_score_cutoff"`
	} `yaml:"bandit"`
	Evolution struct {
		RetireMinSent       int     `yaml:"retire_min_sent"`
		RetireMaxRate       float64 `yaml:"retire_max_rate"`
		MinActiveApproaches int     `yaml:"min_active_approaches"`
		MaxNameLength       int     `yaml:"max_name_length"`
		AnalysisGapMinutes  int     `yaml:"analysis_gap_minutes"`
	} `yaml:"evolution"`
	Launch struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
		PollAttempts        int `yaml:"poll_attempts"`
		DescriptionMaxLen   int `yaml:"description_max_len"`
	} `yaml:"launch"`
	FollowUp struct {
		DelayHours  int `yaml:"delay_hours"`
		RetryHours  int `yaml:"retry_hours"`
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"follow_up"`
	Scout struct {
		FeedLimit          int     `yaml:"feed_limit"`
		CommentProbability float64 `yaml:"comment_probability"`
	} `yaml:"scout"`
	Retention struct {
		ProcessedRing    int `yaml:"processed_ring"`
		ApproachExamples int `yaml:"approach_examples"`
		MessageLog       int `yaml:"message_log"`
		Insights         int `yaml:"insights"`
	} `yaml:"retention"`
	Intervals struct {
		CheckDMsMinutes     int `yaml:"check_dms_minutes"`
		CheckNotifsMinutes  int `yaml:"check_notifs_minutes"`
		ScoutMinutes        int `yaml:"scout_minutes"`
		OutreachMinutes     int `yaml:"outreach_minutes"`
		FollowUpsMinutes    int `yaml:"follow_ups_minutes"`
		PostMinutes         int `yaml:"post_minutes"`
		TweetMinutes        int `yaml:"tweet_minutes"`
		DeepAnalysisMinutes int `yaml:"deep_analysis_minutes"`
	} `yaml:"intervals"`
	HTTP struct {
		APITimeoutSeconds        int `yaml:"api_timeout_seconds"`
		GenerationTimeoutSeconds int `yaml:"generation_timeout_seconds"`
	} `yaml:"http"`
	Protocol struct {
		Path string `yaml:"path"`
	} `yaml:"protocol"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional
	cfg := defaultConfig()
	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the compiled-in configuration without reading the
// config file or environment. Used by tests and the status command.
func Default() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	var cfg Config
	cfg.Moltbook.BaseURL = "https://www.moltbook.com/api/v1"
	cfg.Bankr.BaseURL = "https://api.bankr.bot"
	cfg.LLM.BaseURL = "https://api.anthropic.com"
	cfg.LLM.Model = "claude-sonnet-4-20250514"
	cfg.LLM.MaxTokens = 4096
	cfg.Twitter.BaseURL = "https://api.twitter.com"
	cfg.Notify.BaseURL = "https://api.twilio.com"
	cfg.Limits.ContactCooldownMinutes = 60
	cfg.Limits.MaxOutreachPerCycle = 5
	cfg.Limits.MaxDMLength = 280
	cfg.Limits.PostCooldownMinutes = 30
	cfg.Limits.TweetCooldownMinutes = 60
	cfg.Bandit.ExploitProbability = 0.7
	cfg.Bandit.ExplorationNoise = 0.2
	cfg.Bandit.MinSampleSize = 10
	cfg.Bandit.DirectScoreCutoff = 80
	cfg.Evolution.RetireMinSent = 20
	cfg.Evolution.RetireMaxRate = 0.05
	cfg.Evolution.MinActiveApproaches = 4
	cfg.Evolution.MaxNameLength = 20
	cfg.Evolution.AnalysisGapMinutes = 120
	cfg.Launch.PollIntervalSeconds = 3
	cfg.Launch.PollAttempts = 30
	cfg.Launch.DescriptionMaxLen = 200
	cfg.FollowUp.DelayHours = 24
	cfg.FollowUp.RetryHours = 48
	cfg.FollowUp.MaxAttempts = 3
	cfg.Scout.FeedLimit = 20
	cfg.Scout.CommentProbability = 0.3
	cfg.Retention.ProcessedRing = 500
	cfg.Retention.ApproachExamples = 20
	cfg.Retention.MessageLog = 50
	cfg.Retention.Insights = 50
	cfg.Intervals.CheckDMsMinutes = 2
	cfg.Intervals.CheckNotifsMinutes = 2
	cfg.Intervals.ScoutMinutes = 4
	cfg.Intervals.OutreachMinutes = 5
	cfg.Intervals.FollowUpsMinutes = 10
	cfg.Intervals.PostMinutes = 30
	cfg.Intervals.TweetMinutes = 60
	cfg.Intervals.DeepAnalysisMinutes = 120
	cfg.HTTP.APITimeoutSeconds = 15
	cfg.HTTP.GenerationTimeoutSeconds = 60
	cfg.Protocol.Path = "config/protocol.md"
	cfg.Database.Path = "onboardr.db"
	cfg.Logging.Level = "info"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ONBOARDR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ONBOARDR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ONBOARDR_PROTOCOL_PATH"); v != "" {
		cfg.Protocol.Path = v
	}
	if v := os.Getenv("WHATSAPP_FROM"); v != "" {
		cfg.Notify.From = v
	}
	if v := os.Getenv("WHATSAPP_TO"); v != "" {
		cfg.Notify.To = v
	}
}

func validate(cfg *Config) error {
	if cfg.Moltbook.BaseURL == "" {
		return errors.New("moltbook.base_url is required")
	}
	if cfg.Bankr.BaseURL == "" {
		return errors.New("bankr.base_url is required")
	}
	if cfg.Bandit.ExploitProbability <= 0 || cfg.Bandit.ExploitProbability > 1 {
		return errors.New("bandit.exploit_probability must be in (0,1]")
	}
	if cfg.Bandit.MinSampleSize <= 0 {
		return errors.New("bandit.min_sample_size must be > 0")
	}
	if cfg.Evolution.RetireMinSent <= 0 {
		return errors.New("evolution.retire_min_sent must be > 0")
	}
	if cfg.FollowUp.MaxAttempts <= 0 {
		return errors.New("follow_up.max_attempts must be > 0")
	}
	if os.Getenv("MOLTBOOK_API_KEY") == "" {
		return errors.New("MOLTBOOK_API_KEY is required in env")
	}
	return nil
}
