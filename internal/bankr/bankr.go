// Package bankr wraps the trading execution backend. Each method makes a
// single request; the launch flow owns the polling and retry policy.
package bankr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/config"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Job struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

type Client struct {
	base string
	key  string
	http *http.Client
}

func New(cfg *config.Config, apiKey string) *Client {
	return &Client{
		base: cfg.Bankr.BaseURL,
		key:  apiKey,
		http: &http.Client{Timeout: time.Duration(cfg.HTTP.APITimeoutSeconds) * time.Second},
	}
}

// SubmitJob sends one natural-language instruction and returns the job ID.
func (c *Client) SubmitJob(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/agent/prompt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.key)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit job: status %d", resp.StatusCode)
	}
	var r struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	if r.JobID == "" {
		return "", errors.New("submit job: empty job id")
	}
	return r.JobID, nil
}

// PollJob fetches the current status of one job.
func (c *Client) PollJob(ctx context.Context, jobID string) (*Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/agent/job/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.key)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll job: status %d", resp.StatusCode)
	}
	var j Job
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return nil, fmt.Errorf("poll job: %w", err)
	}
	return &j, nil
}
