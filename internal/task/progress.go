package task

import "fmt"

// Progress is the user-set state of a task.
type Progress uint8

const (
	Todo Progress = iota
	Started
	Done
	Failed
)

var progressNames = [...]string{"Todo", "Started", "Done", "Failed"}

func (p Progress) String() string {
	if int(p) < len(progressNames) {
		return progressNames[p]
	}
	return fmt.Sprintf("Progress(%d)", uint8(p))
}

func (p Progress) MarshalText() ([]byte, error) {
	if int(p) >= len(progressNames) {
		return nil, fmt.Errorf("task: invalid progress %d", uint8(p))
	}
	return []byte(progressNames[p]), nil
}

func (p *Progress) UnmarshalText(b []byte) error {
	v, err := ParseProgress(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func ParseProgress(s string) (Progress, error) {
	for i, name := range progressNames {
		if name == s {
			return Progress(i), nil
		}
	}
	return Todo, fmt.Errorf("task: unknown progress %q", s)
}

// ComputedProgress is the state propagation derives for a task from its own
// progress and the states of its dependencies.
type ComputedProgress uint8

const (
	Blocked ComputedProgress = iota
	NotYet
	ComputedTodo
	ComputedStarted
	ComputedDone
	ComputedFailed
)

var computedNames = [...]string{"Blocked", "NotYet", "Todo", "Started", "Done", "Failed"}

func (p ComputedProgress) String() string {
	if int(p) < len(computedNames) {
		return computedNames[p]
	}
	return fmt.Sprintf("ComputedProgress(%d)", uint8(p))
}

func (p ComputedProgress) MarshalText() ([]byte, error) {
	if int(p) >= len(computedNames) {
		return nil, fmt.Errorf("task: invalid computed progress %d", uint8(p))
	}
	return []byte(computedNames[p]), nil
}

func ParseComputedProgress(s string) (ComputedProgress, error) {
	for i, name := range computedNames {
		if name == s {
			return ComputedProgress(i), nil
		}
	}
	return Blocked, fmt.Errorf("task: unknown computed progress %q", s)
}

// Computed maps a user-set progress onto the computed domain.
func (p Progress) Computed() ComputedProgress {
	switch p {
	case Started:
		return ComputedStarted
	case Done:
		return ComputedDone
	case Failed:
		return ComputedFailed
	default:
		return ComputedTodo
	}
}

// RepeatBase selects what a recurrence interval is added to.
type RepeatBase uint8

const (
	// FromFinished repeats relative to when the task was finished.
	FromFinished RepeatBase = iota
	// FromDeadline repeats relative to the task's own deadline.
	FromDeadline
)

func (b RepeatBase) String() string {
	switch b {
	case FromFinished:
		return "Finished"
	case FromDeadline:
		return "Deadline"
	default:
		return fmt.Sprintf("RepeatBase(%d)", uint8(b))
	}
}

func (b RepeatBase) MarshalText() ([]byte, error) {
	if b > FromDeadline {
		return nil, fmt.Errorf("task: invalid repeat base %d", uint8(b))
	}
	return []byte(b.String()), nil
}

func (b *RepeatBase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Finished":
		*b = FromFinished
	case "Deadline":
		*b = FromDeadline
	default:
		return fmt.Errorf("task: unknown repeat base %q", text)
	}
	return nil
}
