package taskgraph

import (
	"container/heap"
	"time"

	"taskgraph/internal/task"
	"taskgraph/pkg/graph"
	"taskgraph/pkg/timepoint"
)

type agendaItem struct {
	id   graph.ID
	task task.Task
	due  bool
}

// agendaQueue pops due items first, then higher computed priority, then the
// earlier computed deadline, then the smaller ID.
type agendaQueue []agendaItem

func (q agendaQueue) Len() int { return len(q) }
func (q agendaQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.due != b.due {
		return a.due
	}
	if a.task.ComputedPriority != b.task.ComputedPriority {
		return a.task.ComputedPriority > b.task.ComputedPriority
	}
	if c := a.task.ComputedDeadline.Compare(b.task.ComputedDeadline); c != 0 {
		return c < 0
	}
	return a.id < b.id
}
func (q agendaQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *agendaQueue) Push(x any)   { *q = append(*q, x.(agendaItem)) }
func (q *agendaQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// Agenda lists the actionable (Todo or Started) tasks in an order that never
// puts a task before one it depends on. Among tasks that are free to go next,
// those whose computed deadline is less than closeToDeadline away from now
// come first.
//
// The result reflects the last Compute.
func (tg *TaskGraph) Agenda(now timepoint.TimePoint, closeToDeadline time.Duration) []graph.ID {
	ids := tg.graph.IDs()
	pending := make(map[graph.ID]int, len(ids))
	q := &agendaQueue{}
	push := func(id graph.ID) {
		t, err := tg.graph.Get(id)
		if err != nil {
			return
		}
		heap.Push(q, agendaItem{id: id, task: t, due: t.ComputedDeadline.Sub(now) < closeToDeadline})
	}
	for _, id := range ids {
		children, _ := tg.graph.Children(id)
		pending[id] = len(children)
		if len(children) == 0 {
			push(id)
		}
	}

	var out []graph.ID
	for q.Len() > 0 {
		it := heap.Pop(q).(agendaItem)
		switch it.task.ComputedProgress {
		case task.ComputedTodo, task.ComputedStarted:
			out = append(out, it.id)
		}
		parents, _ := tg.graph.Parents(it.id)
		for _, p := range parents {
			pending[p]--
			if pending[p] == 0 {
				push(p)
			}
		}
	}
	return out
}

// ByProgress returns, in ID order, the tasks whose computed progress is p.
func (tg *TaskGraph) ByProgress(p task.ComputedProgress) []graph.ID {
	var out []graph.ID
	for _, id := range tg.graph.IDs() {
		t, err := tg.graph.Get(id)
		if err == nil && t.ComputedProgress == p {
			out = append(out, id)
		}
	}
	return out
}

// NextBoundary is the next instant after now at which Compute can give a
// different answer without any edit: the earliest birthline, or the second
// following a computed deadline (auto-fail triggers once it has passed).
// Tasks without dependencies keep their progress, so only tasks with
// dependencies are considered.
func (tg *TaskGraph) NextBoundary(now timepoint.TimePoint) (timepoint.TimePoint, bool) {
	var (
		best  timepoint.TimePoint
		found bool
	)
	consider := func(tp timepoint.TimePoint) {
		if !tp.IsNormal() || !tp.After(now) {
			return
		}
		if !found || tp.Before(best) {
			best, found = tp, true
		}
	}
	for _, id := range tg.graph.IDs() {
		if children, _ := tg.graph.Children(id); len(children) == 0 {
			continue
		}
		t, err := tg.graph.Get(id)
		if err != nil {
			continue
		}
		consider(t.Birthline)
		consider(t.ComputedDeadline.Add(time.Second))
	}
	return best, found
}
