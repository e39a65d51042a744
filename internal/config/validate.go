package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Validate checks the fields that can be checked without outside knowledge.
// The cron spec in scheduler.tick is checked by the scheduler.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch strings.ToUpper(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Alerts.RatePerSec < 0 {
		return fmt.Errorf("logging.alerts.rate_per_sec: must be >= 0")
	}

	switch cfg.Storage.Driver {
	case DriverFile, DriverSQLite:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path: required for driver %q", cfg.Storage.Driver)
		}
	case DriverNone, "":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if cfg.Scheduler.Enabled && strings.TrimSpace(cfg.Scheduler.Tick) == "" {
		return fmt.Errorf("scheduler.tick: required when the scheduler is enabled")
	}
	if _, err := ParseDurationField("agenda.close_to_deadline", cfg.Agenda.CloseToDeadline); err != nil {
		return err
	}
	if cfg.Debug.Enabled {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(cfg.Debug.Address)); err != nil {
			return fmt.Errorf("debug.address: %w", err)
		}
	}
	return nil
}

// Location is the scheduler timezone, local time when unset or invalid.
func (s SchedulerConfig) Location() *time.Location {
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}
