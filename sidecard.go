package sidecard

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/sidecard/internal/config"
	"github.com/loykin/sidecard/internal/history"
	"github.com/loykin/sidecard/internal/metrics"
	"github.com/loykin/sidecard/internal/resolver"
	iapi "github.com/loykin/sidecard/internal/server"
	"github.com/loykin/sidecard/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Options = supervisor.Options

type Status = supervisor.Status

type Event = supervisor.Event

type ResolverConfig = resolver.Config

type Config = cfg.Config

type HistorySink = history.Sink

type History = history.SQLite

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

// New constructs a supervisor. Nothing launches until Start.
func New(opts Options) *Supervisor {
	return &Supervisor{inner: supervisor.New(opts)}
}

func (s *Supervisor) Start(ctx context.Context) error   { return s.inner.Start(ctx) }
func (s *Supervisor) Stop(ctx context.Context) error    { return s.inner.Stop(ctx) }
func (s *Supervisor) Restart(ctx context.Context) error { return s.inner.Restart(ctx) }
func (s *Supervisor) Status() Status                    { return s.inner.Status() }
func (s *Supervisor) BaseURL() string                   { return s.inner.BaseURL() }
func (s *Supervisor) SocketURL() string                 { return s.inner.SocketURL() }

// Subscribe registers an event listener; the returned cancel function
// releases it.
func (s *Supervisor) Subscribe(buffer int) (<-chan Event, func()) {
	return s.inner.Events().Subscribe(buffer)
}

// LoadConfig reads the TOML configuration at path.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// OpenHistory opens the sqlite lifecycle audit sink at path.
func OpenHistory(ctx context.Context, path string) (*History, error) {
	return history.OpenSQLite(ctx, path)
}

// NewHTTPServer starts the local control API for the supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor, hist *History) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner, hist)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
