package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/sidecard"
	"github.com/loykin/sidecard/pkg/client"
)

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

func newRootCmd() *cobra.Command {
	g := &GlobalFlags{}
	root := &cobra.Command{
		Use:          "sidecard",
		Short:        "Supervise the local backend service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.ConfigPath, "config", "c", "sidecard.toml", "path to config file")
	root.PersistentFlags().StringVar(&g.APIUrl, "api-url", client.DefaultConfig().BaseURL, "control API base URL")
	root.PersistentFlags().DurationVar(&g.APITimeout, "api-timeout", client.DefaultConfig().Timeout, "control API request timeout")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newStatusCmd(g))
	root.AddCommand(newRestartCmd(g))
	root.AddCommand(newStopCmd(g))
	return root
}

func newRunCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Launch the backend and serve the control API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), g)
		},
	}
}

func runDaemon(ctx context.Context, g *GlobalFlags) error {
	cfg, err := sidecard.LoadConfig(g.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	if err := sidecard.RegisterMetricsDefault(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var hist *sidecard.History
	if cfg.History.Path != "" {
		hist, err = sidecard.OpenHistory(ctx, cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer func() { _ = hist.Close() }()
	}

	opts := cfg.SupervisorOptions()
	opts.Logger = log
	if hist != nil {
		opts.History = hist
	}
	sup := sidecard.New(opts)

	srv, err := sidecard.NewHTTPServer(cfg.ListenAddr(), cfg.Server.BasePath, sup, hist)
	if err != nil {
		return fmt.Errorf("control API: %w", err)
	}
	log.Info("control API listening", "addr", cfg.ListenAddr())

	if err := sup.Start(ctx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("start backend: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sup.Stop(shutdownCtx); err != nil {
		log.Error("backend stop failed", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func newStatusCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the daemon's status snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient(g).Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
}

func newRestartCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop the backend, reset the retry budget, and relaunch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient(g).Restart(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
}

func newStopCmd(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient(g).Stop(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
}

func apiClient(g *GlobalFlags) *client.Client {
	return client.New(client.Config{BaseURL: g.APIUrl, Timeout: g.APITimeout})
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(b))
	return nil
}
