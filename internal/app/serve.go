package app

import (
	"context"
	"strings"
	"time"

	"taskgraph/internal/config"
	"taskgraph/internal/eventbus"
	"taskgraph/internal/observability/debug"
	"taskgraph/internal/runtime/supervisor"
	"taskgraph/pkg/logx"
)

const (
	tickJob = "tick"
	wakeJob = "wake"
)

// Serve keeps the graph current until ctx is done: it recomputes on the
// configured tick and at the next birthline or deadline, and follows edits
// to the config file.
func (a *App) Serve(ctx context.Context) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	runCtx := sup.Context()

	dbg := debug.New(a.log.With(logx.String("comp", "debug")), func() any {
		st := a.Status()
		st.Goroutines = sup.Stats()
		return st
	})
	cfg := a.cfgm.Get()
	dbg.Apply(runCtx, cfg.Debug)
	if cfg.Scheduler.Enabled {
		if err := a.startScheduler(runCtx, cfg); err != nil {
			sup.Cancel()
			dbg.Stop(context.Background())
			return err
		}
	}

	events, unsubscribe := a.bus.Subscribe(128)
	sup.Go("eventbus.log", func(ctx context.Context) error {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
			}
		}
	})

	updates := a.cfgm.Subscribe(4)
	sup.Go("config.reload", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		last := cfg
		for {
			select {
			case <-ctx.Done():
				return nil
			case next, ok := <-updates:
				if !ok {
					return nil
				}
				a.applyConfig(ctx, last, next)
				dbg.Apply(ctx, next.Debug)
				last = next
			}
		}
	})
	sup.GoRestart("config.watch", 250*time.Millisecond, 30*time.Second, a.cfgm.Watch)

	a.mu.Lock()
	n := a.tg.Len()
	a.mu.Unlock()
	a.log.Info("serving", logx.Int("tasks", n), logx.String("config", a.cfgm.Path()))

	<-runCtx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.stopScheduler(stopCtx)
	dbg.Stop(stopCtx)
	err := sup.Stop(stopCtx)
	for _, st := range sup.Stats() {
		if st.Panics > 0 || st.LastErr != "" {
			a.log.Warn("goroutine summary", logx.String("name", st.Name), logx.Int("panics", st.Panics), logx.String("last_err", st.LastErr))
		}
	}
	if dropped := a.bus.Dropped(); dropped > 0 {
		a.log.Info("events dropped", logx.Uint64("count", dropped))
	}
	a.log.Info("stopped")
	return err
}

func (a *App) recomputeJob(reason string) func(ctx context.Context) error {
	return func(ctx context.Context) error { return a.Recompute(ctx, reason) }
}

func (a *App) startScheduler(ctx context.Context, cfg *config.Config) error {
	a.sched.Apply(mapScheduler(cfg))
	if err := a.sched.AddSchedule(tickJob, cfg.Scheduler.Tick, a.recomputeJob(tickJob)); err != nil {
		return err
	}
	a.sched.Start(ctx)
	a.schedOn.Store(true)

	a.mu.Lock()
	a.rescheduleLocked()
	a.mu.Unlock()
	return nil
}

func (a *App) stopScheduler(ctx context.Context) {
	if a.schedOn.Swap(false) {
		a.sched.Stop(ctx)
	}
}

// rescheduleLocked points the wake job at the next instant the graph can
// change by itself.
func (a *App) rescheduleLocked() {
	if !a.schedOn.Load() {
		return
	}
	if !a.cfgm.Get().Scheduler.WakeOnBoundary {
		a.sched.Remove(wakeJob)
		return
	}
	next, ok := a.tg.NextBoundary(a.stamp())
	if !ok {
		a.sched.Remove(wakeJob)
		return
	}
	at, _ := next.Time()
	if err := a.sched.AddOnce(wakeJob, at, a.recomputeJob("boundary")); err != nil {
		a.log.Warn("wake schedule failed", logx.Err(err))
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, fields := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		return
	}
	a.log.Info("config reloaded", append(fields, logx.String("sections", strings.Join(sections, ",")))...)

	for _, s := range sections {
		switch s {
		case "logging":
			lc := mapLogging(next)
			lc.Output = a.logOut
			if a.level != "" {
				lc.Level = a.level
			}
			a.logs.Apply(lc)
		case "storage":
			a.log.Warn("storage settings change on restart")
		case "scheduler":
			a.applyScheduler(ctx, prev, next)
		}
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
}

func (a *App) applyScheduler(ctx context.Context, prev, next *config.Config) {
	switch {
	case !next.Scheduler.Enabled:
		a.stopScheduler(ctx)
	case !prev.Scheduler.Enabled || !a.schedOn.Load():
		if err := a.startScheduler(ctx, next); err != nil {
			a.log.Warn("scheduler start failed", logx.Err(err))
		}
	default:
		a.sched.Apply(mapScheduler(next))
		if err := a.sched.AddSchedule(tickJob, next.Scheduler.Tick, a.recomputeJob(tickJob)); err != nil {
			a.log.Warn("tick schedule failed", logx.Err(err))
		}
		a.mu.Lock()
		a.rescheduleLocked()
		a.mu.Unlock()
	}
}
