// Package app owns the task graph of a running taskgraph process.
//
// It is the caller the core packages expect: it serialises access to the
// TaskGraph, persists the graph after every successful mutation, records an
// audit trail, publishes domain events and, in serve mode, recomputes the
// graph on a schedule and at the next birthline or deadline.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"taskgraph/internal/config"
	"taskgraph/internal/eventbus"
	"taskgraph/internal/scheduler"
	"taskgraph/internal/storage"
	"taskgraph/internal/taskgraph"
	"taskgraph/pkg/logx"
	"taskgraph/pkg/timepoint"
)

type App struct {
	cfgm   *config.ConfigManager
	log    logx.Logger
	logs   *logx.Service
	logOut io.Writer
	level  string
	bus    eventbus.Bus
	store  storage.Store
	sched  *scheduler.Service
	now    func() time.Time

	schedOn atomic.Bool

	mu sync.Mutex
	tg *taskgraph.TaskGraph
}

type options struct {
	now      func() time.Time
	logOut   io.Writer
	logLevel string
	cfg      *config.Config
}

type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogOutput sends console logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOut = w }
}

// WithLogLevel overrides the configured log level.
func WithLogLevel(level string) Option {
	return func(o *options) { o.logLevel = level }
}

// WithConfig uses cfg instead of reading the config file. The file is still
// watched in serve mode.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// New loads the configuration, opens storage and loads the stored graph.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return validate(c) })
	cfg, found := o.cfg, true
	if cfg != nil {
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
		if err := validate(cfg); err != nil {
			return nil, err
		}
		cfgm.Commit(cfg)
	} else {
		var err error
		if cfg, found, err = cfgm.Load(ctx); err != nil {
			return nil, err
		}
	}

	lc := mapLogging(cfg)
	lc.Output = o.logOut
	if o.logLevel != "" {
		lc.Level = o.logLevel
	}
	logs, root := logx.New(lc)
	log := root.With(logx.String("comp", "app"))
	if !found {
		log.Debug("no config file; using defaults", logx.String("path", cfgPath))
	}
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	sc, err := mapStorage(cfg)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()
	a := &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logs,
		logOut: o.logOut,
		level:  o.logLevel,
		bus:    bus,
		store:  store,
		sched:  scheduler.New(mapScheduler(cfg), root.With(logx.String("comp", "scheduler")), bus),
		now:    o.now,
		tg:     taskgraph.New(taskgraph.WithLogger(root.With(logx.String("comp", "taskgraph")))),
	}
	if err := a.load(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) Logger() logx.Logger { return a.log }

// Close releases storage and log files.
func (a *App) Close() error {
	err := a.store.Close()
	if lerr := a.logs.Close(); err == nil {
		err = lerr
	}
	return err
}

func (a *App) stamp() timepoint.TimePoint { return timepoint.FromTime(a.now()) }

func (a *App) load(ctx context.Context) error {
	data, ok, err := a.store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	next := taskgraph.New()
	if err := next.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	report, err := a.tg.Replace(next, a.stamp())
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	a.log.Info("task graph loaded", logx.Int("tasks", a.tg.Len()))
	if report.Empty() {
		return nil
	}
	return a.afterLocked(ctx, change{action: "load", id: -1}, report, nil)
}
