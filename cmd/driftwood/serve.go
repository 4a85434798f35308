// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/lcaswell/driftwood/internal/arcade"
	"github.com/lcaswell/driftwood/internal/auth"
	"github.com/lcaswell/driftwood/internal/blog"
	"github.com/lcaswell/driftwood/internal/config"
	"github.com/lcaswell/driftwood/internal/control"
	"github.com/lcaswell/driftwood/internal/logging"
	"github.com/lcaswell/driftwood/internal/observability"
	"github.com/lcaswell/driftwood/internal/store"
	"github.com/lcaswell/driftwood/internal/web"
	"github.com/lcaswell/driftwood/internal/xdg"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long: `Start the web server: static site, blog, auth endpoints,
and the arcade leaderboard. Configuration comes from defaults, the config
file, and these flags, in that order.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	defaults := config.Default()
	cmd.Flags().String("listen-addr", defaults.ListenAddr, "HTTP listen address")
	cmd.Flags().String("metrics-addr", defaults.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("data-dir", "", "data directory (default: XDG_DATA_HOME/driftwood)")
	cmd.Flags().String("static-dir", defaults.StaticDir, "static site directory")
	cmd.Flags().String("blog-dir", defaults.BlogDir, "blog posts directory")
	cmd.Flags().String("log-format", defaults.LogFormat, "log format (json or text)")

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := config.FindFile(configFile,
		filepath.Join(xdg.ConfigDir(), "driftwood.yaml"),
		"driftwood.yaml",
	)
	return config.Load(path, cmd.Flags())
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logging.SetDefault("driftwood", version, cfg.LogFormat)

	if cfg.DataDir == "" {
		cfg.DataDir = xdg.DataDir()
	}
	if err := xdg.EnsureDir(cfg.DataDir); err != nil {
		return oops.Code("DATA_DIR_FAILED").Wrap(err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	st, err := store.Open(ctx, cfg.DBPath())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Warn("error closing store", "error", closeErr)
		}
	}()
	if err := st.Migrate(); err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DBPath())

	logins, err := auth.NewLogins(auth.LoginsConfig{
		LockoutDuration: cfg.Auth.LockoutDuration,
		MaxFails:        cfg.Auth.MaxFails,
		SaltLength:      cfg.Auth.SaltLength,
		HashLength:      cfg.Auth.HashLength,
		MinUsernameLen:  cfg.Auth.MinUsernameLen,
		MaxUsernameLen:  cfg.Auth.MaxUsernameLen,
		PasswordPattern: cfg.Auth.PasswordPattern,
		CleanupInterval: cfg.Auth.CleanupInterval,
		Blocklist:       cfg.Auth.Blocklist,
	}, logging.FailedLogins(slog.Default()))
	if err != nil {
		return err
	}

	sessions := auth.NewSessions(auth.SessionsConfig{
		MaxSessionDuration: cfg.Session.MaxDuration,
		CleanupInterval:    cfg.Session.CleanupInterval,
		MaxRenewCount:      cfg.Session.MaxRenewCount,
	})

	// The janitor backstops the request-path sweeps, so sessions of idle
	// deployments still expire on time.
	janitor := auth.NewJanitor(sweepInterval(cfg), logins, sessions)
	janitor.Start(ctx)

	arcadeSvc := arcade.NewService(st, slog.Default())

	var metrics *observability.Metrics
	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool { return true }, sessions.Count)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
	}

	webServer := web.NewServer(web.Config{
		Addr:      cfg.ListenAddr,
		StaticDir: cfg.StaticDir,
		Logger:    slog.Default(),
		Logins:    logins,
		Sessions:  sessions,
		Store:     st,
		Blog:      blog.NewLibrary(cfg.BlogDir, slog.Default()),
		Arcade:    arcadeSvc,
		Metrics:   metrics,
	})
	webErrCh, err := webServer.Start()
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, webErrCh, "web")

	controlServer := control.NewServer(version, control.ShutdownFunc(cancel), sessions.Count)
	if err := controlServer.Start(); err != nil {
		return err
	}
	slog.Info("control socket ready", "path", control.SocketPath())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("driftwood started on " + webServer.Addr())

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := webServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping web server", "error", err)
	}
	arcadeSvc.Hub().Close()

	if err := controlServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping control socket", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	// Let the sweeps finish so state is not cleaned up mid-sweep.
	janitor.Wait()

	slog.Info("shutdown complete")
	return nil
}

// sweepInterval picks the janitor tick from the shorter of the two
// configured cleanup intervals.
func sweepInterval(cfg *config.Config) time.Duration {
	interval := cfg.Auth.CleanupInterval
	if cfg.Session.CleanupInterval < interval {
		interval = cfg.Session.CleanupInterval
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return interval
}

// monitorServerErrors cancels the context when a server reports a fatal
// error, so one failing listener takes the whole process down cleanly.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
