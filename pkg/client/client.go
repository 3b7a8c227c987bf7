// Package client talks to a running sidecard daemon's control API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the default local endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8787/api",
		Timeout: 10 * time.Second,
	}
}

// Client is an HTTP client for the sidecard daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given config.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{baseURL: cfg.BaseURL, http: &http.Client{Timeout: cfg.Timeout}}
}

// Status mirrors the daemon's status response.
type Status struct {
	State     string `json:"state"`
	Running   bool   `json:"running"`
	Port      int    `json:"port"`
	PID       int    `json:"pid"`
	Restarts  int    `json:"restarts"`
	Exhausted bool   `json:"exhausted"`
	BaseURL   string `json:"base_url,omitempty"`
	SocketURL string `json:"socket_url,omitempty"`
}

// Status fetches the current supervisor snapshot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/status", &st)
	return st, err
}

// Start asks the daemon to launch the backend.
func (c *Client) Start(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodPost, "/start", &st)
	return st, err
}

// Restart asks the daemon to stop, reset the retry budget, and relaunch.
func (c *Client) Restart(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodPost, "/restart", &st)
	return st, err
}

// Stop asks the daemon to tear the backend down.
func (c *Client) Stop(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodPost, "/stop", &st)
	return st, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
