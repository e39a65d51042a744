package app

import (
	"time"

	"taskgraph/internal/runtime/supervisor"
)

// Status is a snapshot of a serving app, shown on the debug listener.
type Status struct {
	Tasks         int                         `json:"tasks"`
	ByProgress    map[string]int              `json:"by_progress"`
	NextTick      *time.Time                  `json:"next_tick,omitempty"`
	NextWake      *time.Time                  `json:"next_wake,omitempty"`
	EventsDropped uint64                      `json:"events_dropped"`
	AlertsDropped uint64                      `json:"alerts_dropped"`
	Goroutines    []supervisor.GoroutineStats `json:"goroutines,omitempty"`
}

func (a *App) Status() Status {
	st := Status{
		ByProgress:    map[string]int{},
		EventsDropped: a.bus.Dropped(),
		AlertsDropped: a.logs.Dropped(),
	}
	a.mu.Lock()
	for _, v := range a.tg.List() {
		st.Tasks++
		st.ByProgress[v.Task.ComputedProgress.String()]++
	}
	a.mu.Unlock()
	if a.schedOn.Load() {
		if t, ok := a.sched.Next(tickJob); ok {
			st.NextTick = &t
		}
		if t, ok := a.sched.Next(wakeJob); ok {
			st.NextWake = &t
		}
	}
	return st
}
