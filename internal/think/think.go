// Package think wraps the text-generation backend. Failures are never
// fatal: Generate returns an empty string and the caller skips the item.
package think

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/logging"
	"github.com/onboardrbot/onboardrbot/internal/protocol"
)

// Generator is the narrow contract the rest of the system depends on.
type Generator interface {
	Generate(ctx context.Context, task, context string) string
}

type Client struct {
	cfg      *config.Config
	proto    *protocol.Protocol
	apiKey   string
	http     *http.Client
	log      *logging.Logger
	sysExtra func() string
}

// New builds the client. sysExtra supplies the live stats/learnings block
// appended to the persona on every call; nil means persona only.
func New(cfg *config.Config, proto *protocol.Protocol, apiKey string, sysExtra func() string) *Client {
	return &Client{
		cfg:      cfg,
		proto:    proto,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: time.Duration(cfg.HTTP.GenerationTimeoutSeconds) * time.Second},
		log:      logging.New(cfg.Logging.Level).With("module", "think"),
		sysExtra: sysExtra,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) Generate(ctx context.Context, task, extra string) string {
	if c.apiKey == "" {
		return ""
	}
	system := c.proto.Text()
	if c.sysExtra != nil {
		if s := c.sysExtra(); s != "" {
			system += "\n\n" + s
		}
	}
	system += "\n\nRemember: Be genuine. No brackets. No templates. Personalize everything."

	content := task
	if extra != "" {
		content += "\n\nContext: " + extra
	}
	body, err := json.Marshal(request{
		Model:     c.cfg.LLM.Model,
		MaxTokens: c.cfg.LLM.MaxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: content}},
	})
	if err != nil {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LLM.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("generation failed", "err", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("generation failed", "status", resp.StatusCode)
		return ""
	}
	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil || len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

// Usable reports whether generated text is safe to send: non-empty,
// within bounds, and free of leftover template brackets.
func Usable(s string, min, max int) bool {
	s = strings.TrimSpace(s)
	if len(s) < min || len(s) > max {
		return false
	}
	return !strings.ContainsAny(s, "[]{}")
}
