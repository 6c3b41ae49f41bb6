package main

import (
	"context"
	"errors"
	"log/slog"

	"clipit/internal/config"
	"clipit/internal/logging"
	"clipit/internal/monitor"
	"clipit/internal/service"
	"clipit/internal/storage"
	"clipit/internal/storage/sqlite"
)

// app is the storage engine, its monitor and the service on top of them.
// The engine's primary handle serves the caller's goroutine; the monitor
// gets a handle of its own.
type app struct {
	engine  *sqlite.Engine
	monitor *monitor.Monitor
	svc     *service.ClipboardService
}

func openApp(ctx context.Context, s config.Settings, log *slog.Logger, opts ...service.Option) (*app, error) {
	engine, err := sqlite.New(ctx, storage.Config{
		DBPath: s.DBPath(),
		Debug:  log.Enabled(ctx, slog.LevelDebug),
		Logger: log,
	})
	if err != nil {
		return nil, err
	}

	conn, err := engine.OpenConn()
	if err != nil {
		return nil, errors.Join(err, engine.Close())
	}

	mon := monitor.New(conn,
		monitor.WithInterval(s.PollInterval),
		monitor.WithLogger(log),
	)

	opts = append([]service.Option{
		service.WithLogger(log),
		service.WithRetention(service.Retention{
			DaysToKeep: s.DaysToKeep,
			MaxItems:   s.MaxItems,
		}),
	}, opts...)

	logging.Component(log, "app").Debug("history opened",
		"db", s.DBPath(),
		"poll_interval", s.PollInterval,
		"days_to_keep", s.DaysToKeep,
		"max_items", s.MaxItems,
	)
	return &app{
		engine:  engine,
		monitor: mon,
		svc:     service.New(engine, mon, opts...),
	}, nil
}

// flush runs one monitor cycle so queued deletions reach the database
// without starting the loop.
func (a *app) flush(ctx context.Context) error {
	_, err := a.monitor.Poll(ctx)
	return err
}

// Close stops the service before releasing the storage handles
func (a *app) Close() error {
	a.svc.Stop()
	return a.engine.Close()
}
