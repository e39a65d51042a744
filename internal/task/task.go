// Package task defines the task record stored in a task graph, its wire
// shape, and validation of records arriving as JSON.
package task

import (
	"time"

	"taskgraph/pkg/graph"
	"taskgraph/pkg/timepoint"
)

// Recurrence makes a task spawn a future instance once it is done.
type Recurrence struct {
	Repeat     time.Duration
	RepeatBase RepeatBase
	// NextInstance is the pending future instance, nil until one is spawned.
	NextInstance *graph.ID
}

func (r *Recurrence) clone() *Recurrence {
	if r == nil {
		return nil
	}
	out := *r
	if r.NextInstance != nil {
		id := *r.NextInstance
		out.NextInstance = &id
	}
	return &out
}

// Task is a node payload of the task graph.
//
// The Computed* fields are derived by propagation. They are never encoded and
// never accepted on input.
type Task struct {
	Name        string
	Description string
	Priority    int8
	Deadline    timepoint.TimePoint
	Birthline   timepoint.TimePoint
	Progress    Progress
	// GroupLike tasks are done as soon as all their dependencies are done.
	GroupLike bool
	// AutoFail tasks fail once overdue and not done.
	AutoFail bool
	// Finished is set, in seconds since the epoch, when the task first becomes
	// done.
	Finished   *int64
	Recurrence *Recurrence

	ComputedPriority int8
	ComputedDeadline timepoint.TimePoint
	ComputedProgress ComputedProgress

	computed    bool
	hadPrevious bool
	previous    ComputedProgress
}

// New returns a task with the default deadline (AfterEverything) and
// birthline (BeforeEverything).
func New(name string) Task {
	t := Task{
		Name:      name,
		Deadline:  timepoint.AfterEverything(),
		Birthline: timepoint.BeforeEverything(),
	}
	t.Seed()
	return t
}

// Clone returns a deep copy, derived state included.
func (t Task) Clone() Task {
	out := t
	if t.Finished != nil {
		f := *t.Finished
		out.Finished = &f
	}
	out.Recurrence = t.Recurrence.clone()
	return out
}

// Instance returns the next occurrence of a recurring task: a fresh Todo copy
// due at deadline, with no finish time and no instance of its own.
func (t Task) Instance(deadline timepoint.TimePoint) Task {
	out := t.Clone()
	out.Progress = Todo
	out.Finished = nil
	out.Deadline = deadline
	if out.Recurrence != nil {
		out.Recurrence.NextInstance = nil
	}
	out.computed = false
	out.hadPrevious = false
	out.Seed()
	return out
}

// Assign copies the user-set fields of edit into t, keeping t's derived state.
// A recurrence without a next instance keeps the one t already has.
func (t *Task) Assign(edit Task) {
	var pending *graph.ID
	if t.Recurrence != nil && t.Recurrence.NextInstance != nil {
		id := *t.Recurrence.NextInstance
		pending = &id
	}
	edit = edit.Clone()
	t.Name = edit.Name
	t.Description = edit.Description
	t.Priority = edit.Priority
	t.Deadline = edit.Deadline
	t.Birthline = edit.Birthline
	t.Progress = edit.Progress
	t.GroupLike = edit.GroupLike
	t.AutoFail = edit.AutoFail
	if edit.Finished != nil {
		t.Finished = edit.Finished
	}
	t.Recurrence = edit.Recurrence
	if t.Recurrence != nil && t.Recurrence.NextInstance == nil {
		t.Recurrence.NextInstance = pending
	}
}

// Seed resets the derived fields to the user-set ones ahead of a propagation
// pass and remembers the computed progress the last pass left.
func (t *Task) Seed() {
	t.hadPrevious = t.computed
	t.previous = t.ComputedProgress
	t.ComputedPriority = t.Priority
	t.ComputedDeadline = t.Deadline
	t.ComputedProgress = t.Progress.Computed()
}

// SetComputedProgress stores p and stamps Finished with now when the task
// becomes done: either it has never finished, or the previous pass saw it in
// another state. It reports whether Finished was stamped.
func (t *Task) SetComputedProgress(p ComputedProgress, now timepoint.TimePoint) bool {
	t.ComputedProgress = p
	t.computed = true
	if p != ComputedDone {
		return false
	}
	if t.Finished != nil && !(t.hadPrevious && t.previous != ComputedDone) {
		return false
	}
	secs, ok := now.Seconds()
	if !ok {
		return false
	}
	t.Finished = &secs
	return true
}

// Computed reports whether a propagation pass has completed on t.
func (t Task) Computed() bool { return t.computed }

// NextDeadline is the deadline of the instance following t, or false when t
// does not recur or its base is unknown (Finished base without a finish time).
func (t Task) NextDeadline() (timepoint.TimePoint, bool) {
	r := t.Recurrence
	if r == nil {
		return timepoint.TimePoint{}, false
	}
	switch r.RepeatBase {
	case FromDeadline:
		return t.Deadline.Add(r.Repeat), true
	case FromFinished:
		if t.Finished == nil {
			return timepoint.TimePoint{}, false
		}
		return timepoint.At(*t.Finished).Add(r.Repeat), true
	}
	return timepoint.TimePoint{}, false
}
