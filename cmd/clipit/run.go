package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clipit/internal/clipboard"
	"clipit/internal/config"
	"clipit/internal/logging"
	"clipit/internal/server"
	"clipit/internal/service"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture the clipboard and serve the history API",
		Long: `Watches the system clipboard, stores every distinct capture and serves
the history on a loopback HTTP API with a websocket notification stream.

Retention settings (daysToKeep, maxItems) are re-applied when the settings
file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, v, log, err := loadSettings(cmd, true)
			if err != nil {
				return err
			}
			noAPI, _ := cmd.Flags().GetBool("no-api")
			return runDaemon(cmd.Context(), s, v, log, !noAPI)
		},
	}

	f := cmd.Flags()
	f.Int("days-to-keep", config.DefaultDaysToKeep, "drop entries older than this many days (0 keeps everything)")
	f.Int("max-items", config.DefaultMaxItems, "keep at most this many entries (0 for no limit)")
	f.Duration("poll-interval", config.DefaultPollInterval, "pause between two monitor cycles")
	f.String("addr", config.DefaultAPIAddr, "HTTP API listen address")
	f.Bool("no-api", false, "do not start the HTTP API")

	return cmd
}

func runDaemon(ctx context.Context, s config.Settings, v *viper.Viper, log *slog.Logger, api bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.EnsureDirs(s); err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		if path, err := config.WriteDefaults(s); err != nil {
			log.Warn("could not write default settings", "err", err)
		} else if err := v.MergeInConfig(); err == nil {
			log.Info("created settings file", "path", path)
		}
	}

	pid := server.NewPIDFile(s.PIDPath())
	if err := pid.Acquire(); err != nil {
		return err
	}
	defer pid.Remove()

	src := clipboard.NewSource()
	defer src.Close()

	images, err := clipboard.NewImageCache(s.ImageDir())
	if err != nil {
		return err
	}

	a, err := openApp(ctx, s, log,
		service.WithSource(src),
		service.WithImageCache(images),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close storage", "err", err)
		}
	}()

	var srv *server.Server
	if api {
		srv = server.New(a.svc, server.Config{Addr: s.APIAddr}, log)
		a.svc.RegisterHandler(srv.Hub())
	}

	if err := a.svc.Start(ctx); err != nil {
		return err
	}
	if srv != nil {
		if err := srv.Start(); err != nil {
			return err
		}
	}

	if err := config.Watch(v, logging.Component(log, "config"), func(ns config.Settings) {
		logging.SetLevel(ns.LogLevel, slog.LevelInfo)
		a.svc.SetRetention(service.Retention{DaysToKeep: ns.DaysToKeep, MaxItems: ns.MaxItems})
		if _, err := a.svc.ApplyRetention(ctx); err != nil {
			log.Warn("retention pass failed", "err", err)
		}
	}); err != nil && !errors.Is(err, config.ErrNoSettingsFile) {
		log.Warn("settings reload disabled", "err", err)
	}

	watcher := clipboard.NewWatcher(src, a.svc, log)
	log = logging.Component(log, "daemon")
	watched := make(chan error, 1)
	go func() { watched <- watcher.Run(ctx) }()

	log.Info("clipit running",
		"version", Version,
		"source", src.Name(),
		"data_dir", s.DataDir,
		"api", api,
	)

	var werr error
	select {
	case <-ctx.Done():
		werr = <-watched
	case werr = <-watched:
	}
	if werr != nil && !errors.Is(werr, context.Canceled) {
		log.Error("clipboard watcher stopped", "err", werr)
	}
	stop()
	log.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Warn("http server shutdown", "err", err)
		}
	}
	return nil
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, _, err := loadSettings(cmd, false)
			if err != nil {
				return err
			}

			pid, err := server.NewPIDFile(s.PIDPath()).Read()
			if err != nil {
				return err
			}
			if pid == 0 || !server.IsRunning(pid) {
				return fmt.Errorf("clipit is not running")
			}
			if err := server.Terminate(pid); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped clipit (pid %d)\n", pid)
			return nil
		},
	}
}
