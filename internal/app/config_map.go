package app

import (
	"fmt"
	"strings"
	"time"

	"taskgraph/internal/config"
	"taskgraph/internal/scheduler"
	"taskgraph/internal/storage"
	"taskgraph/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Alerts: logx.AlertsConfig{
			Enabled:    l.Alerts.Enabled,
			Path:       l.Alerts.Path,
			MinLevel:   l.Alerts.MinLevel,
			RatePerSec: l.Alerts.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
	}, nil
}

func mapScheduler(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Location: cfg.Scheduler.Location(), Timeout: 30 * time.Second}
}

func closeToDeadline(cfg *config.Config) time.Duration {
	d, err := config.ParseDurationOrDefault("agenda.close_to_deadline", cfg.Agenda.CloseToDeadline, 24*time.Hour)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// validate is the config check that needs other packages.
func validate(cfg *config.Config) error {
	if cfg.Scheduler.Enabled {
		if _, err := scheduler.ParseSchedule(cfg.Scheduler.Tick); err != nil {
			return fmt.Errorf("scheduler.tick: %w", err)
		}
	}
	return nil
}
