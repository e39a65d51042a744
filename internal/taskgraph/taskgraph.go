// Package taskgraph schedules tasks stored in a dependency graph.
//
// Compute propagates deadlines and priorities from each task down to the
// tasks it depends on, derives every task's progress bottom-up from its
// dependencies, and then spawns, refreshes or retracts the future instances of
// recurring tasks. The boundary operations (Get, Upsert, Delete, List) work on
// a copy of the graph and only commit it when Compute succeeds.
package taskgraph

import (
	"errors"

	"taskgraph/internal/task"
	"taskgraph/pkg/graph"
	"taskgraph/pkg/logx"
	"taskgraph/pkg/timepoint"
)

// TaskGraph is not safe for concurrent use.
type TaskGraph struct {
	graph *graph.Graph[task.Task]
	log   logx.Logger
}

type Option func(*TaskGraph)

func WithLogger(l logx.Logger) Option {
	return func(tg *TaskGraph) { tg.log = l }
}

func New(opts ...Option) *TaskGraph {
	tg := &TaskGraph{graph: graph.New[task.Task](), log: logx.Nop()}
	for _, o := range opts {
		o(tg)
	}
	return tg
}

// Report lists what a Compute pass changed besides derived fields.
type Report struct {
	// Done holds tasks whose finish time was stamped by this pass.
	Done []graph.ID
	// Spawned maps recurring tasks to the instance created for them.
	Spawned map[graph.ID]graph.ID
	// Refreshed holds recurring tasks whose pending instance got a new deadline.
	Refreshed []graph.ID
	// Retracted maps recurring tasks to the pending instance removed for them.
	Retracted map[graph.ID]graph.ID
}

// Empty reports whether the pass changed nothing but derived fields.
func (r Report) Empty() bool {
	return len(r.Done) == 0 && len(r.Spawned) == 0 && len(r.Refreshed) == 0 && len(r.Retracted) == 0
}

func (tg *TaskGraph) Len() int { return tg.graph.Len() }

// Add inserts t without dependencies. Derived fields are refreshed by the next
// Compute.
func (tg *TaskGraph) Add(t task.Task) graph.ID { return tg.graph.AddNode(t) }

// AddDependency records that from depends on to.
func (tg *TaskGraph) AddDependency(from, to graph.ID) error { return tg.graph.AddEdge(from, to) }

func (tg *TaskGraph) Remove(id graph.ID) { tg.graph.Remove(id) }

// Task returns a copy of the task stored under id.
func (tg *TaskGraph) Task(id graph.ID) (task.Task, error) {
	t, err := tg.graph.Get(id)
	if err != nil {
		return task.Task{}, err
	}
	return t.Clone(), nil
}

// Compute runs one propagation pass followed by recurrence handling.
//
// On failure the derived fields already written stay as they are; use the
// boundary operations for all-or-nothing updates.
func (tg *TaskGraph) Compute(now timepoint.TimePoint) (Report, error) {
	report := Report{}
	ids := tg.graph.IDs()
	pos := make(map[*task.Task]graph.ID, len(ids))
	for _, id := range ids {
		if err := tg.graph.Update(id, func(t *task.Task) error {
			t.Seed()
			pos[t] = id
			return nil
		}); err != nil {
			return report, err
		}
	}

	// Traverse omits the results of dependencies already finished through
	// another path, so each pass remembers every task's dependencies and final
	// progress itself. The pointers are identities only.
	deps := make(map[*task.Task][]*task.Task, len(ids))
	final := make(map[*task.Task]task.ComputedProgress, len(ids))

	pre := func(t *task.Task, children []*task.Task) error {
		if t.Birthline.After(t.ComputedDeadline) {
			return &BirthlineAfterDeadlineError{Name: t.Name}
		}
		for _, d := range children {
			d.ComputedDeadline = timepoint.Min(d.ComputedDeadline, t.ComputedDeadline)
			if t.ComputedPriority > d.ComputedPriority {
				d.ComputedPriority = t.ComputedPriority
			}
			if d.Birthline.After(d.ComputedDeadline) {
				return &BirthlineAfterDeadlineError{Name: d.Name}
			}
		}
		deps[t] = children
		return nil
	}
	post := func(t *task.Task, _ []task.ComputedProgress) (task.ComputedProgress, error) {
		p := t.ComputedProgress
		if children := deps[t]; len(children) > 0 {
			states := make([]task.ComputedProgress, len(children))
			for i, c := range children {
				states[i] = final[c]
			}
			p = derive(t, states, now)
		}
		if t.SetComputedProgress(p, now) {
			report.Done = appendOnce(report.Done, pos[t])
		}
		final[t] = p
		return p, nil
	}

	if err := graph.Traverse(tg.graph, pre, post); err != nil {
		var birth *BirthlineAfterDeadlineError
		if errors.As(err, &birth) {
			err = birth
		}
		tg.log.Debug("compute failed", logx.Err(err))
		return report, err
	}

	if err := tg.recur(ids, &report); err != nil {
		return report, err
	}
	tg.log.Debug("computed task graph",
		logx.Int("tasks", tg.graph.Len()),
		logx.Int("done", len(report.Done)),
		logx.Int("spawned", len(report.Spawned)),
		logx.Int("retracted", len(report.Retracted)),
	)
	return report, nil
}

// derive is the progress of t given the computed progress of each of its
// dependencies.
func derive(t *task.Task, deps []task.ComputedProgress, now timepoint.TimePoint) task.ComputedProgress {
	if t.Progress == task.Failed {
		return task.ComputedFailed
	}
	notYet, allDone := false, true
	for _, d := range deps {
		switch d {
		case task.ComputedFailed:
			return task.ComputedFailed
		case task.NotYet:
			notYet = true
		}
		if d != task.ComputedDone {
			allDone = false
		}
	}
	switch {
	case notYet:
		return task.NotYet
	case !allDone:
		return task.Blocked
	case now.Before(t.Birthline):
		return task.NotYet
	case t.AutoFail && t.Progress != task.Done && now.After(t.ComputedDeadline):
		return task.ComputedFailed
	case t.GroupLike:
		return task.ComputedDone
	default:
		return t.Progress.Computed()
	}
}

// recur spawns, refreshes or retracts next instances for the tasks in ids.
// Instances spawned here are not themselves considered.
func (tg *TaskGraph) recur(ids []graph.ID, report *Report) error {
	for _, id := range ids {
		if !tg.graph.Contains(id) {
			// retracted earlier in this loop
			continue
		}
		t, err := tg.graph.Get(id)
		if err != nil {
			return err
		}
		r := t.Recurrence
		if r == nil {
			continue
		}

		if t.ComputedProgress != task.ComputedDone {
			if r.NextInstance == nil {
				continue
			}
			next := *r.NextInstance
			if tg.graph.Contains(next) {
				tg.graph.Remove(next)
				if report.Retracted == nil {
					report.Retracted = map[graph.ID]graph.ID{}
				}
				report.Retracted[id] = next
				tg.log.Info("retracted recurrence instance", logx.Int("task", int(id)), logx.Int("instance", int(next)))
			}
			if err := tg.graph.Update(id, func(t *task.Task) error {
				t.Recurrence.NextInstance = nil
				return nil
			}); err != nil {
				return err
			}
			continue
		}

		deadline, ok := t.NextDeadline()
		if !ok {
			continue
		}
		if r.NextInstance != nil && tg.graph.Contains(*r.NextInstance) {
			changed := false
			if err := tg.graph.Update(*r.NextInstance, func(inst *task.Task) error {
				if !inst.Deadline.Equal(deadline) {
					inst.Deadline = deadline
					inst.ComputedDeadline = deadline
					changed = true
				}
				return nil
			}); err != nil {
				return err
			}
			if changed {
				report.Refreshed = append(report.Refreshed, id)
			}
			continue
		}

		inst := tg.graph.AddNode(t.Instance(deadline))
		if err := tg.graph.Update(id, func(t *task.Task) error {
			t.Recurrence.NextInstance = &inst
			return nil
		}); err != nil {
			return err
		}
		if report.Spawned == nil {
			report.Spawned = map[graph.ID]graph.ID{}
		}
		report.Spawned[id] = inst
		tg.log.Info("spawned recurrence instance",
			logx.Int("task", int(id)), logx.Int("instance", int(inst)), logx.String("deadline", deadline.String()))
	}
	return nil
}

func appendOnce(ids []graph.ID, id graph.ID) []graph.ID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
