package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Alerts  AlertsConfig

	// Output receives console records. Nil means stderr, which leaves stdout
	// to command output.
	Output io.Writer
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// AlertsConfig routes records at or above MinLevel to a separate file, one
// plain line each, at most RatePerSec lines per second.
type AlertsConfig struct {
	Enabled    bool
	Path       string
	MinLevel   string
	RatePerSec int
}

const (
	defaultLogPath    = "./taskgraph.log"
	defaultAlertsPath = "./taskgraph.alerts"
)

// Service owns the log sinks and can swap them at runtime.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger

	file   *os.File
	alerts *os.File

	// guarded by mu
	limiter  *rate.Limiter
	minLevel zerolog.Level

	dropped atomic.Uint64
}

// New creates the logging service, applies cfg and returns the Service with
// a root Logger that follows later Apply calls.
func New(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{cfg: cfg}
	s.root.Store(zerolog.New(newConsoleWriter(output(cfg))).Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger())
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Dropped counts alert lines discarded by the rate limit since New.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root.Store(zerolog.Nop())
	return s.closeFiles()
}

func (s *Service) closeFiles() error {
	var first error
	for _, f := range []**os.File{&s.file, &s.alerts} {
		if *f == nil {
			continue
		}
		if err := (*f).Close(); err != nil && first == nil {
			first = err
		}
		*f = nil
	}
	return first
}

// Apply swaps outputs and levels at runtime. It is safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = ParseLevel(cfg.Alerts.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.Alerts.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	_ = s.closeFiles()

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(output(cfg)))
	}
	if cfg.File.Enabled {
		if f := openAppend(cfg.File.Path, defaultLogPath); f != nil {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Alerts.Enabled {
		if f := openAppend(cfg.Alerts.Path, defaultAlertsPath); f != nil {
			s.alerts = f
			writers = append(writers, &alertWriter{svc: s})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(output(cfg)))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(zl)
}

func openAppend(path, def string) *os.File {
	path = strings.TrimSpace(path)
	if path == "" {
		path = def
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logx: failed opening %q: %v\n", path, err)
		return nil
	}
	return f
}

func output(cfg Config) io.Writer {
	if cfg.Output != nil {
		return cfg.Output
	}
	return os.Stderr
}
