// Package config loads the sidecard TOML configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/sidecard/internal/backoff"
	"github.com/loykin/sidecard/internal/logger"
	"github.com/loykin/sidecard/internal/resolver"
	"github.com/loykin/sidecard/internal/supervisor"
)

// ServiceConfig locates the supervised backend.
type ServiceConfig struct {
	Mode         string `mapstructure:"mode"` // packaged or development
	ServiceDir   string `mapstructure:"service_dir"`
	ResourcesDir string `mapstructure:"resources_dir"`
	BinaryName   string `mapstructure:"binary_name"`
	Entrypoint   string `mapstructure:"entrypoint"`
	DataDir      string `mapstructure:"data_dir"`
	Host         string `mapstructure:"host"`
}

// SupervisorConfig tunes the lifecycle policy.
type SupervisorConfig struct {
	ReadyMarker    string        `mapstructure:"ready_marker"`
	HealthPath     string        `mapstructure:"health_path"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	GraceTimeout   time.Duration `mapstructure:"grace_timeout"`
	MaxRestarts    int           `mapstructure:"max_restarts"`
	RestartDelay   time.Duration `mapstructure:"restart_delay"`
	CaptureBytes   int           `mapstructure:"capture_bytes"`
}

// ServerConfig configures the local control API.
type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// HistoryConfig configures the lifecycle audit sink.
type HistoryConfig struct {
	Path string `mapstructure:"path"` // sqlite file; empty disables
}

// Config is the top-level TOML structure.
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        logger.Config    `mapstructure:"log"`
	History    HistoryConfig    `mapstructure:"history"`
}

// Load reads the TOML file at path. Environment variables prefixed with
// SIDECARD_ override file values (SIDECARD_SERVER_LISTEN, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("sidecard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	switch c.Service.Mode {
	case "", string(resolver.ModePackaged), string(resolver.ModeDevelopment):
	default:
		return fmt.Errorf("unknown service mode %q", c.Service.Mode)
	}
	if c.Supervisor.MaxRestarts < 0 {
		return fmt.Errorf("max_restarts must not be negative")
	}
	if c.Service.Mode == string(resolver.ModePackaged) && c.Service.ResourcesDir == "" {
		return fmt.Errorf("packaged mode requires resources_dir")
	}
	return nil
}

// SupervisorOptions converts the config into supervisor.Options. Unset
// fields keep the supervisor's own defaults.
func (c *Config) SupervisorOptions() supervisor.Options {
	mode := resolver.ModeDevelopment
	if c.Service.Mode == string(resolver.ModePackaged) {
		mode = resolver.ModePackaged
	}
	opts := supervisor.Options{
		Resolver: resolver.Config{
			Mode:         mode,
			ServiceDir:   c.Service.ServiceDir,
			ResourcesDir: c.Service.ResourcesDir,
			BinaryName:   c.Service.BinaryName,
			Entrypoint:   c.Service.Entrypoint,
		},
		Host:           c.Service.Host,
		DataDir:        c.Service.DataDir,
		Marker:         c.Supervisor.ReadyMarker,
		HealthPath:     c.Supervisor.HealthPath,
		StartupTimeout: c.Supervisor.StartupTimeout,
		HealthInterval: c.Supervisor.HealthInterval,
		ProbeTimeout:   c.Supervisor.ProbeTimeout,
		GraceTimeout:   c.Supervisor.GraceTimeout,
		MaxRestarts:    c.Supervisor.MaxRestarts,
		CaptureBytes:   c.Supervisor.CaptureBytes,
		Log:            c.Log,
	}
	if c.Supervisor.RestartDelay > 0 {
		opts.Backoff = backoff.Fixed{Interval: c.Supervisor.RestartDelay}
	}
	return opts
}

// ListenAddr returns the control API address, defaulting to a loopback port.
func (c *Config) ListenAddr() string {
	if c.Server.Listen == "" {
		return "127.0.0.1:8787"
	}
	return c.Server.Listen
}
