// Package notify sends best-effort operator alerts over a WhatsApp-style
// channel. Failures are logged and swallowed.
package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/logging"
)

type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Client struct {
	base string
	sid  string
	auth string
	from string
	to   string
	http *http.Client
	log  *logging.Logger
}

func New(cfg *config.Config, sid, auth string) *Client {
	return &Client{
		base: cfg.Notify.BaseURL,
		sid:  sid,
		auth: auth,
		from: cfg.Notify.From,
		to:   cfg.Notify.To,
		http: &http.Client{Timeout: time.Duration(cfg.HTTP.APITimeoutSeconds) * time.Second},
		log:  logging.New(cfg.Logging.Level).With("module", "notify"),
	}
}

func (c *Client) Notify(ctx context.Context, text string) {
	if c.sid == "" || c.to == "" {
		return
	}
	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", c.to)
	form.Set("Body", text)
	endpoint := c.base + "/2010-04-01/Accounts/" + c.sid + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.sid, c.auth)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("notify failed", "err", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.log.Warn("notify failed", "status", resp.StatusCode)
	}
}

// Noop discards alerts; used when no channel is configured.
type Noop struct{}

func (Noop) Notify(context.Context, string) {}
