package config

import (
	"strings"

	"taskgraph/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and
// structured fields describing the new values of those sections.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alerts_enabled", newCfg.Logging.Alerts.Enabled),
		)
	}
	if !sameStorage(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.tick", strings.TrimSpace(newCfg.Scheduler.Tick)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Bool("scheduler.wake_on_boundary", newCfg.Scheduler.WakeOnBoundary),
		)
	}
	if strings.TrimSpace(oldCfg.Agenda.CloseToDeadline) != strings.TrimSpace(newCfg.Agenda.CloseToDeadline) {
		changed = append(changed, "agenda")
		attrs = append(attrs, logx.String("agenda.close_to_deadline", newCfg.Agenda.CloseToDeadline))
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.address", newCfg.Debug.Address),
		)
	}
	return changed, attrs
}

func sameStorage(a, b StorageConfig) bool {
	return a.Driver == b.Driver &&
		strings.TrimSpace(a.Path) == strings.TrimSpace(b.Path) &&
		strings.TrimSpace(a.BusyTimeout) == strings.TrimSpace(b.BusyTimeout)
}
