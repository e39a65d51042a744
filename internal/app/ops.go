package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"taskgraph/internal/eventbus"
	"taskgraph/internal/storage"
	"taskgraph/internal/task"
	"taskgraph/internal/taskgraph"
	"taskgraph/pkg/graph"
	"taskgraph/pkg/logx"
)

// change describes one mutation for the audit log and the event bus.
type change struct {
	action string
	id     graph.ID
	name   string
	reason string
}

func (a *App) Get(id graph.ID) (taskgraph.View, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tg.Get(id)
}

func (a *App) List() []taskgraph.View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tg.List()
}

// Agenda lists actionable tasks in the order they should be done.
func (a *App) Agenda() []taskgraph.View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewsLocked(a.tg.Agenda(a.stamp(), closeToDeadline(a.cfgm.Get())))
}

func (a *App) ByProgress(p task.ComputedProgress) []taskgraph.View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewsLocked(a.tg.ByProgress(p))
}

func (a *App) viewsLocked(ids []graph.ID) []taskgraph.View {
	out := make([]taskgraph.View, 0, len(ids))
	for _, id := range ids {
		if v, err := a.tg.Get(id); err == nil {
			v.Candidates = nil
			out = append(out, v)
		}
	}
	return out
}

// Upsert stores t under id (graph.NoID for a new task) with the given
// dependencies. Errors from the graph are *taskgraph.UserError.
func (a *App) Upsert(ctx context.Context, id graph.ID, t task.Task, deps []graph.ID) (graph.ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	newID, report, err := a.tg.Upsert(id, t, deps, a.stamp())
	c := change{action: "upsert", id: id, name: t.Name}
	if err == nil {
		c.id = newID
	}
	if aerr := a.afterLocked(ctx, c, report, err); err != nil {
		return graph.NoID, err
	} else if aerr != nil {
		return newID, aerr
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TaskUpserted, Data: eventbus.TaskData{ID: int(newID), Name: t.Name}})
	return newID, nil
}

func (a *App) Delete(ctx context.Context, id graph.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := change{action: "delete", id: id}
	if t, err := a.tg.Task(id); err == nil {
		c.name = t.Name
	}
	report, err := a.tg.Delete(id, a.stamp())
	if aerr := a.afterLocked(ctx, c, report, err); err != nil {
		return err
	} else if aerr != nil {
		return aerr
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TaskDeleted, Data: eventbus.TaskData{ID: int(id), Name: c.name}})
	return nil
}

// Recompute refreshes derived state at the current time. Passes that change
// nothing but derived fields are not audited.
func (a *App) Recompute(ctx context.Context, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	report, err := a.tg.Refresh(a.stamp())
	c := change{action: "compute", id: -1, reason: reason}
	if err == nil && report.Empty() {
		a.publishComputedLocked(report, reason)
		a.rescheduleLocked()
		return nil
	}
	aerr := a.afterLocked(ctx, c, report, err)
	if err != nil {
		return err
	}
	return aerr
}

// Import replaces every task with the graph in data (the export format).
// Each record is checked against the task schema first.
func (a *App) Import(ctx context.Context, data []byte) (int, error) {
	var nodes map[string]struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &nodes); err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	for _, key := range slices.Sorted(maps.Keys(nodes)) {
		if err := task.Validate(nodes[key].Value); err != nil {
			return 0, fmt.Errorf("import: task %s: %w", key, err)
		}
	}
	next := taskgraph.New()
	if err := next.UnmarshalJSON(data); err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	report, err := a.tg.Replace(next, a.stamp())
	if aerr := a.afterLocked(ctx, change{action: "import", id: -1}, report, err); err != nil {
		return 0, err
	} else if aerr != nil {
		return 0, aerr
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.GraphImported, Data: eventbus.ComputeData{Tasks: a.tg.Len()}})
	return a.tg.Len(), nil
}

// Export returns the graph in its wire shape, indented.
func (a *App) Export() ([]byte, error) {
	a.mu.Lock()
	raw, err := a.tg.MarshalJSON()
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (a *App) History(ctx context.Context, n int) ([]storage.AuditEntry, error) {
	return a.store.RecentAudit(ctx, n)
}

// afterLocked records the outcome of a mutation. On success it also saves
// the graph, publishes what the compute pass did and moves the wake-up.
// The returned error concerns persistence only.
func (a *App) afterLocked(ctx context.Context, c change, report taskgraph.Report, opErr error) error {
	entry := storage.AuditEntry{Action: c.action, TaskID: int(c.id), TaskName: c.name, OK: opErr == nil}
	if opErr != nil {
		entry.Error = opErr.Error()
	} else if !report.Empty() {
		if meta, err := json.Marshal(report); err == nil {
			entry.MetaJSON = string(meta)
		}
	}
	if err := a.store.AppendAudit(ctx, entry); err != nil {
		a.log.Warn("audit append failed", logx.String("action", c.action), logx.Err(err))
	}

	if opErr != nil {
		a.log.Info("operation rejected", logx.String("action", c.action), logx.Int("task", int(c.id)), logx.Err(opErr))
		var ue *taskgraph.UserError
		if c.action == "compute" || !errors.As(opErr, &ue) {
			a.bus.Publish(eventbus.Event{Type: eventbus.ComputeFailed, Data: eventbus.ComputeData{Tasks: a.tg.Len(), Reason: c.reason, Err: opErr.Error()}})
		}
		return nil
	}

	raw, err := a.tg.MarshalJSON()
	if err == nil {
		err = a.store.SaveSnapshot(ctx, raw)
	}
	if err != nil {
		a.log.Error("snapshot save failed", logx.String("action", c.action), logx.Err(err))
		return fmt.Errorf("save snapshot: %w", err)
	}
	a.publishComputedLocked(report, c.reason)
	a.rescheduleLocked()
	return nil
}

func (a *App) publishComputedLocked(r taskgraph.Report, reason string) {
	for _, id := range slices.Sorted(maps.Keys(r.Spawned)) {
		a.bus.Publish(eventbus.Event{Type: eventbus.InstanceSpawned, Data: eventbus.InstanceData{Task: int(id), Instance: int(r.Spawned[id])}})
	}
	for _, id := range slices.Sorted(maps.Keys(r.Retracted)) {
		a.bus.Publish(eventbus.Event{Type: eventbus.InstanceRetracted, Data: eventbus.InstanceData{Task: int(id), Instance: int(r.Retracted[id])}})
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.GraphComputed, Data: eventbus.ComputeData{
		Tasks:     a.tg.Len(),
		Done:      ints(r.Done),
		Refreshed: ints(r.Refreshed),
		Reason:    reason,
	}})
}

func ints(ids []graph.ID) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
