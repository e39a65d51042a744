// Package eventbus fans out domain events to in-process subscribers.
//
// Publish never blocks. Subscribers get buffered channels and lose events
// when they fall behind; Dropped counts those losses.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the app.
const (
	TaskUpserted       = "task.upserted"
	TaskDeleted        = "task.deleted"
	GraphComputed      = "graph.computed"
	ComputeFailed      = "graph.compute_failed"
	InstanceSpawned    = "recurrence.spawned"
	InstanceRetracted  = "recurrence.retracted"
	GraphImported      = "graph.imported"
	ConfigReloaded     = "config.reloaded"
	SchedulerTriggered = "scheduler.triggered"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// TaskData is the payload of task events.
type TaskData struct {
	ID   int
	Name string
}

// InstanceData is the payload of recurrence events.
type InstanceData struct {
	Task     int
	Instance int
}

// ComputeData is the payload of GraphComputed and ComputeFailed.
type ComputeData struct {
	Tasks     int
	Done      []int
	Refreshed []int
	Reason    string
	Err       string
}

type Bus interface {
	Publish(e Event)
	// Subscribe delivers events of the given types, or all events when no
	// type is named.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	ch    chan Event
	types map[string]struct{}
}

func (s *subscriber) wants(t string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sending under the read lock keeps unsubscribe from closing a channel
	// mid-send; sends never block so the lock is short.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
