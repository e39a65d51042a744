package taskgraph

import (
	"taskgraph/internal/task"
	"taskgraph/pkg/graph"
	"taskgraph/pkg/timepoint"
)

// Short names of the errors returned by the boundary operations.
const (
	errGetName    = "Could not load task"
	errSaveName   = "Could not save task"
	errDeleteName = "Could not delete task"
	errUpdateName = "Could not update tasks"
	errImportName = "Could not import tasks"
)

// View is one task as shown to a caller.
type View struct {
	ID   graph.ID  `json:"id"`
	Task task.Task `json:"task"`
	// Dependencies are the tasks this one depends on.
	Dependencies []graph.ID `json:"dependencies"`
	// Dependents are the tasks that depend on this one.
	Dependents []graph.ID `json:"dependents"`
	// Candidates are the tasks that could become new dependencies without
	// closing a cycle. Only Get fills it in.
	Candidates []graph.ID `json:"candidates,omitempty"`
}

func (tg *TaskGraph) view(id graph.ID) (View, error) {
	t, err := tg.Task(id)
	if err != nil {
		return View{}, err
	}
	children, err := tg.graph.Children(id)
	if err != nil {
		return View{}, err
	}
	parents, err := tg.graph.Parents(id)
	if err != nil {
		return View{}, err
	}
	return View{ID: id, Task: t, Dependencies: children, Dependents: parents}, nil
}

// Get returns the task under id with its edges and dependency candidates.
func (tg *TaskGraph) Get(id graph.ID) (View, error) {
	v, err := tg.view(id)
	if err != nil {
		return View{}, describe(tg.graph, err, errGetName)
	}
	v.Candidates, err = graph.PossibleChildren(tg.graph, id)
	if err != nil {
		return View{}, describe(tg.graph, err, errGetName)
	}
	return v, nil
}

// List returns every task in ID order.
func (tg *TaskGraph) List() []View {
	ids := tg.graph.IDs()
	out := make([]View, 0, len(ids))
	for _, id := range ids {
		v, err := tg.view(id)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Upsert stores t under id, or under a new ID when id is graph.NoID, replaces
// its dependencies with deps and recomputes the graph. Nothing is changed
// unless every step succeeds. The returned error is a *UserError.
func (tg *TaskGraph) Upsert(id graph.ID, t task.Task, deps []graph.ID, now timepoint.TimePoint) (graph.ID, Report, error) {
	work := tg.fork()
	if id == graph.NoID {
		id = work.graph.AddNode(t.Clone())
	} else if err := work.graph.Update(id, func(cur *task.Task) error {
		cur.Assign(t)
		return nil
	}); err != nil {
		return graph.NoID, Report{}, describe(work.graph, err, errSaveName)
	}
	if err := work.graph.SetChildren(id, deps); err != nil {
		return graph.NoID, Report{}, describe(work.graph, err, errSaveName)
	}
	report, err := work.Compute(now)
	if err != nil {
		return graph.NoID, Report{}, describe(work.graph, err, errSaveName)
	}
	tg.graph = work.graph
	return id, report, nil
}

// Delete removes the task under id and recomputes the graph. Recurring tasks
// whose pending instance was id forget it.
func (tg *TaskGraph) Delete(id graph.ID, now timepoint.TimePoint) (Report, error) {
	if !tg.graph.Contains(id) {
		return Report{}, describe(tg.graph, &graph.NodeError{ID: id}, errDeleteName)
	}
	work := tg.fork()
	work.graph.Remove(id)
	for _, other := range work.graph.IDs() {
		if err := work.graph.Update(other, func(t *task.Task) error {
			if r := t.Recurrence; r != nil && r.NextInstance != nil && *r.NextInstance == id {
				r.NextInstance = nil
			}
			return nil
		}); err != nil {
			return Report{}, describe(work.graph, err, errDeleteName)
		}
	}
	report, err := work.Compute(now)
	if err != nil {
		return Report{}, describe(work.graph, err, errDeleteName)
	}
	tg.graph = work.graph
	return report, nil
}

// Refresh recomputes the graph at now, keeping the previous state when the
// pass fails.
func (tg *TaskGraph) Refresh(now timepoint.TimePoint) (Report, error) {
	work := tg.fork()
	report, err := work.Compute(now)
	if err != nil {
		return Report{}, describe(work.graph, err, errUpdateName)
	}
	tg.graph = work.graph
	return report, nil
}

// Replace swaps in the tasks of other once they compute cleanly at now.
// other is not modified.
func (tg *TaskGraph) Replace(other *TaskGraph, now timepoint.TimePoint) (Report, error) {
	work := other.fork()
	report, err := work.Compute(now)
	if err != nil {
		return Report{}, describe(work.graph, err, errImportName)
	}
	tg.graph = work.graph
	return report, nil
}

func (tg *TaskGraph) fork() *TaskGraph {
	return &TaskGraph{graph: tg.graph.Clone(task.Task.Clone), log: tg.log}
}
