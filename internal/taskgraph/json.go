package taskgraph

import (
	"taskgraph/internal/task"
	"taskgraph/pkg/graph"
)

// MarshalJSON writes the graph wire shape: tasks keyed by ID with their
// parent and child lists. Derived fields are not written.
func (tg *TaskGraph) MarshalJSON() ([]byte, error) {
	return tg.graph.MarshalJSON()
}

// UnmarshalJSON replaces the stored tasks. Derived fields are seeded from the
// user-set ones; call Compute before reading them.
func (tg *TaskGraph) UnmarshalJSON(b []byte) error {
	g := graph.New[task.Task]()
	if err := g.UnmarshalJSON(b); err != nil {
		return err
	}
	tg.graph = g
	return nil
}
