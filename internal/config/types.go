package config

// Config is the taskgraph configuration file.
//
// Durations are Go duration strings ("500ms", "10s", "24h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Agenda    AgendaConfig    `json:"agenda"`
	Debug     DebugConfig     `json:"debug"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Alerts  LoggingAlerts `json:"alerts"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlerts is a second log file for warnings and errors only.
type LoggingAlerts struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects where the task graph is persisted.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./taskgraph.db", "busy_timeout": "5s" }
//
// Driver "file" treats Path as a directory, "sqlite" as a database file.
// Driver "none" keeps everything in memory.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SchedulerConfig controls background recomputes in serve mode.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Tick is a cron spec ("*/5 * * * *", "@every 1m") for the periodic recompute.
	Tick string `json:"tick"`
	// Timezone for Tick. Empty means local time.
	Timezone string `json:"timezone,omitempty"`
	// WakeOnBoundary schedules an extra recompute at the next birthline or
	// deadline so transitions do not wait for the tick.
	WakeOnBoundary bool `json:"wake_on_boundary"`
}

type AgendaConfig struct {
	// CloseToDeadline puts tasks due within this window at the top of the agenda.
	CloseToDeadline string `json:"close_to_deadline"`
}

// DebugConfig controls the debug HTTP listener of serve mode: pprof
// handlers and a JSON status page.
type DebugConfig struct {
	Enabled              bool   `json:"enabled"`
	Address              string `json:"address"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
}

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverNone   = "none"
)

// Default is the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Path: "./taskgraph.log"},
			Alerts:  LoggingAlerts{MinLevel: "warn", RatePerSec: 1},
		},
		Storage: StorageConfig{Driver: DriverFile, Path: "./taskgraph_data"},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			Tick:           "@every 1m",
			WakeOnBoundary: true,
		},
		Agenda: AgendaConfig{CloseToDeadline: "24h"},
		Debug:  DebugConfig{Address: "127.0.0.1:6060"},
	}
}
