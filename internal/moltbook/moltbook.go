// Package moltbook is the social feed client. Every call returns a nil
// or zero sentinel on failure; callers skip the cycle and must not mark
// the item processed.
package moltbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/config"
	"github.com/onboardrbot/onboardrbot/internal/logging"
)

type Post struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Submolt string `json:"submolt"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Upvotes int    `json:"upvotes"`
}

type Message struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Content string `json:"content"`
}

type Notification struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Actor string `json:"actor"`
}

type AgentProfile struct {
	Name          string `json:"name"`
	Bio           string `json:"bio"`
	PostCount     int    `json:"postCount"`
	FollowerCount int    `json:"followerCount"`
	Verified      bool   `json:"verified"`
}

// Feed is the interface the orchestrator and inbox consume, so tests can
// substitute a fake.
type Feed interface {
	FetchFeed(ctx context.Context, sort string, limit int) []Post
	FetchMessages(ctx context.Context) []Message
	FetchNotifications(ctx context.Context) []Notification
	FetchAgent(ctx context.Context, name string) *AgentProfile
	SendMessage(ctx context.Context, to, content string) bool
	CreatePost(ctx context.Context, submolt, title, content string) string
	CreateComment(ctx context.Context, postID, content string) bool
	Upvote(ctx context.Context, postID string) bool
	Follow(ctx context.Context, user string) bool
}

type Client struct {
	base string
	key  string
	http *http.Client
	log  *logging.Logger
}

func New(cfg *config.Config, apiKey string) *Client {
	return &Client{
		base: cfg.Moltbook.BaseURL,
		key:  apiKey,
		http: &http.Client{Timeout: time.Duration(cfg.HTTP.APITimeoutSeconds) * time.Second},
		log:  logging.New(cfg.Logging.Level).With("module", "moltbook"),
	}
}

func (c *Client) get(ctx context.Context, endpoint string) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+endpoint, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("get failed", "endpoint", endpoint, "err", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	return b
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) []byte {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("post failed", "endpoint", endpoint, "err", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	return b
}

// listOf decodes either a bare JSON array or an object wrapping the array
// under key; the API has returned both shapes.
func listOf[T any](b []byte, key string) []T {
	if b == nil {
		return nil
	}
	var bare []T
	if err := json.Unmarshal(b, &bare); err == nil {
		return bare
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return nil
	}
	var out []T
	if raw, ok := wrapped[key]; ok {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

func (c *Client) FetchFeed(ctx context.Context, sort string, limit int) []Post {
	b := c.get(ctx, fmt.Sprintf("/posts?sort=%s&limit=%d", sort, limit))
	return listOf[Post](b, "posts")
}

func (c *Client) FetchMessages(ctx context.Context) []Message {
	return listOf[Message](c.get(ctx, "/messages"), "messages")
}

func (c *Client) FetchNotifications(ctx context.Context) []Notification {
	return listOf[Notification](c.get(ctx, "/notifications"), "notifications")
}

func (c *Client) FetchAgent(ctx context.Context, name string) *AgentProfile {
	b := c.get(ctx, "/agents/"+name)
	if b == nil {
		return nil
	}
	var p AgentProfile
	if err := json.Unmarshal(b, &p); err != nil {
		return nil
	}
	return &p
}

func (c *Client) SendMessage(ctx context.Context, to, content string) bool {
	return c.post(ctx, "/messages", map[string]string{"to": to, "content": content}) != nil
}

// CreatePost returns the new post's ID, or "" on failure.
func (c *Client) CreatePost(ctx context.Context, submolt, title, content string) string {
	b := c.post(ctx, "/posts", map[string]string{"submolt": submolt, "title": title, "content": content})
	if b == nil {
		return ""
	}
	var r struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return ""
	}
	return r.ID
}

func (c *Client) CreateComment(ctx context.Context, postID, content string) bool {
	return c.post(ctx, "/posts/"+postID+"/comments", map[string]string{"content": content}) != nil
}

func (c *Client) Upvote(ctx context.Context, postID string) bool {
	return c.post(ctx, "/posts/"+postID+"/upvote", map[string]string{}) != nil
}

func (c *Client) Follow(ctx context.Context, user string) bool {
	return c.post(ctx, "/agents/"+user+"/subscribe", map[string]string{}) != nil
}
