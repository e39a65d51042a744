// Package scheduler triggers background work on cron schedules and at
// single instants.
//
// Serve mode uses it for the periodic recompute tick and for one-shot
// wake-ups at the next birthline or deadline boundary.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskgraph/internal/eventbus"
	"taskgraph/pkg/logx"
)

// Job is the unit of scheduled work.
type Job func(ctx context.Context) error

// Config controls the service.
type Config struct {
	// Location for cron specs. Nil means local time.
	Location *time.Location
	// Timeout bounds a single job run. Zero means none.
	Timeout time.Duration
}

type entry struct {
	spec string
	id   cron.EntryID
	job  Job
}

type once struct {
	at    time.Time
	job   Job
	timer *time.Timer
	ver   uint64
}

// Service owns a cron runner and a set of one-shot timers, both keyed by a
// caller-chosen name. Adding under a name replaces what was there.
type Service struct {
	log logx.Logger
	bus eventbus.Bus

	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]*entry
	onces   map[string]*once
	ver     uint64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		entries: map[string]*entry{},
		onces:   map[string]*once{},
	}
}

func (s *Service) location() *time.Location {
	if s.cfg.Location == nil {
		return time.Local
	}
	return s.cfg.Location
}

func (s *Service) newCron() *cron.Cron {
	cl := cronLogger{log: s.log}
	return cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// Start begins triggering. Jobs see a context that ends at Stop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.c = s.newCron()
	for name, e := range s.entries {
		s.registerLocked(name, e)
	}
	s.c.Start()
	for name, o := range s.onces {
		s.armLocked(name, o)
	}
	s.log.Info("scheduler started", logx.String("tz", s.location().String()), logx.Int("schedules", len(s.entries)))
}

// Stop halts triggering and waits for running cron jobs until ctx is done.
// Registered schedules are kept for the next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	for _, o := range s.onces {
		if o.timer != nil {
			o.timer.Stop()
			o.timer = nil
		}
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("scheduler stopped")
}

// Apply swaps the configuration, restarting the cron runner when the
// location changed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldLoc := s.location().String()
	s.cfg = cfg
	if s.c == nil || oldLoc == s.location().String() {
		s.mu.Unlock()
		return
	}
	prev := s.c
	s.c = s.newCron()
	for name, e := range s.entries {
		s.registerLocked(name, e)
	}
	s.c.Start()
	tz := s.location().String()
	s.mu.Unlock()

	// running jobs may call back into the service
	<-prev.Stop().Done()
	s.log.Info("scheduler restarted", logx.String("tz", tz))
}

// AddSchedule registers job under name on a schedule accepted by
// ParseSchedule.
func (s *Service) AddSchedule(name, schedule string, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	e := &entry{spec: spec, job: job}
	s.entries[name] = e
	if s.c != nil {
		s.registerLocked(name, e)
	}
	return nil
}

func (s *Service) registerLocked(name string, e *entry) {
	id, err := s.c.AddJob(e.spec, cron.FuncJob(func() { s.run(name, e.job) }))
	if err != nil {
		// ParseSchedule already accepted the spec.
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", e.spec), logx.Err(err))
		return
	}
	e.id = id
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", e.spec))
}

// AddOnce runs job once at at (immediately if at has passed). It replaces
// any schedule or pending one-shot under name.
func (s *Service) AddOnce(name string, at time.Time, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if at.IsZero() {
		return errors.New("at required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.ver++
	o := &once{at: at, job: job, ver: s.ver}
	s.onces[name] = o
	if s.c != nil {
		s.armLocked(name, o)
	}
	return nil
}

func (s *Service) armLocked(name string, o *once) {
	ver := o.ver
	o.timer = time.AfterFunc(max(time.Until(o.at), 0), func() {
		s.mu.Lock()
		cur, ok := s.onces[name]
		if !ok || cur.ver != ver {
			s.mu.Unlock()
			return
		}
		delete(s.onces, name)
		s.mu.Unlock()
		s.run(name, o.job)
	})
	s.log.Debug("one-shot armed", logx.String("name", name), logx.Time("at", o.at))
}

// Remove drops the schedule or one-shot under name.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	removed := false
	if e, ok := s.entries[name]; ok {
		if s.c != nil && e.id != 0 {
			s.c.Remove(e.id)
		}
		delete(s.entries, name)
		removed = true
	}
	if o, ok := s.onces[name]; ok {
		if o.timer != nil {
			o.timer.Stop()
		}
		delete(s.onces, name)
		removed = true
	}
	return removed
}

// Next reports when name fires next.
func (s *Service) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.onces[name]; ok {
		return o.at, true
	}
	e, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	if s.c != nil && e.id != 0 {
		if next := s.c.Entry(e.id).Next; !next.IsZero() {
			return next, true
		}
	}
	next, err := NextRuns(e.spec, time.Now().In(s.location()), 1)
	if err != nil || len(next) == 0 {
		return time.Time{}, false
	}
	return next[0], true
}

func (s *Service) run(name string, job Job) {
	s.mu.Lock()
	parent, timeout := s.ctx, s.cfg.Timeout
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return job(ctx)
	}()
	took := time.Since(start)
	if err != nil {
		s.log.Warn("scheduled job failed", logx.String("name", name), logx.Duration("took", took), logx.Err(err))
	} else {
		s.log.Debug("scheduled job done", logx.String("name", name), logx.Duration("took", took))
	}
	if s.bus != nil {
		data := map[string]any{"name": name, "took": took.String()}
		if err != nil {
			data["err"] = err.Error()
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.SchedulerTriggered, Data: data})
	}
}
