// Package health probes the backend's liveness endpoint after readiness.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Probe issues bounded GET requests against a fixed local endpoint.
// Only a 200 response counts as healthy; any other status, timeout, or
// connection failure is unhealthy.
type Probe struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// NewProbe builds a probe for url with the given per-request timeout.
func NewProbe(url string, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Probe{URL: url, Timeout: timeout, Client: &http.Client{}}
}

// Check performs one probe. A nil return means healthy.
func (p *Probe) Check(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Monitor polls a probe on a fixed interval and reports the first failure.
// No debouncing: one unhealthy result hands off to the restart path.
type Monitor struct {
	Probe    *Probe
	Interval time.Duration
}

// NewMonitor wraps probe with a polling interval.
func NewMonitor(probe *Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{Probe: probe, Interval: interval}
}

// Run polls until the context is cancelled or a probe fails, in which case
// onUnhealthy is called exactly once and Run returns. Run is the body of
// the monitor goroutine; the caller owns the context and must cancel it
// before any restart or shutdown proceeds.
func (m *Monitor) Run(ctx context.Context, onUnhealthy func(error)) {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Probe.Check(ctx); err != nil {
				if ctx.Err() != nil {
					// Cancelled mid-probe; shutdown wins.
					return
				}
				onUnhealthy(err)
				return
			}
		}
	}
}
