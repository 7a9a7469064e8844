// Package apphistory retrieves audit events from the application's
// /history/ API for a trailing time window.
package apphistory

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/seclogix/auditpipe/internal/model"
	"github.com/seclogix/auditpipe/internal/source/httpclient"
)

const defaultFetchTimeout = 30 * time.Second

// Config holds connection settings for the history API.
type Config struct {
	BaseURL      string
	Token        string
	FetchTimeout time.Duration
}

// Client fetches application history events.
type Client struct {
	cfg Config
	now func() time.Time
}

// New creates a Client from cfg, filling in the default timeout.
func New(cfg Config) *Client {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Client{cfg: cfg, now: time.Now}
}

type historyResponse struct {
	Count int                      `json:"count"`
	Items []model.ApplicationEvent `json:"items"`
}

// Fetch returns all history items from the trailing window. The API filters
// server-side on the epoch-second `at` bounds, so no re-filtering is needed.
func (c *Client) Fetch(ctx context.Context, window time.Duration) ([]model.ApplicationEvent, error) {
	hc := httpclient.New(c.cfg.BaseURL, c.cfg.Token, httpclient.WithTimeout(c.cfg.FetchTimeout))

	now := c.now().UTC()
	since := now.Add(-window)

	q := url.Values{}
	q.Set("$gt-at", strconv.FormatInt(since.Unix(), 10))
	q.Set("$lt-at", strconv.FormatInt(now.Unix(), 10))
	q.Set("all", "true")

	var resp historyResponse
	if err := hc.GetJSON(ctx, "/history/", q, &resp); err != nil {
		return nil, fmt.Errorf("apphistory: fetch: %w", err)
	}
	return resp.Items, nil
}
