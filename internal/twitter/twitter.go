// Package twitter posts short status updates. Best-effort only; a failed
// post returns false and the caller moves on.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/logging"
)

type Poster interface {
	Tweet(ctx context.Context, text string) bool
}

type Client struct {
	base  string
	token string
	http  *http.Client
	log   *logging.Logger
}

func New(cfg *config.Config, bearerToken string) *Client {
	return &Client{
		base:  cfg.Twitter.BaseURL,
		token: bearerToken,
		http:  &http.Client{Timeout: time.Duration(cfg.HTTP.APITimeoutSeconds) * time.Second},
		log:   logging.New(cfg.Logging.Level).With("module", "twitter"),
	}
}

func (c *Client) Tweet(ctx context.Context, text string) bool {
	if c.token == "" {
		return false
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("tweet failed", "err", err)
		return false
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("tweet failed", "status", resp.StatusCode)
		return false
	}
	return true
}

// Noop never posts; used when no credentials are configured.
type Noop struct{}

func (Noop) Tweet(context.Context, string) bool { return false }
