package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskgraph/internal/task"
	"taskgraph/pkg/graph"
)

// taskFlags are the task fields settable from the command line. Only flags
// the user passed are applied, so edit keeps everything else.
type taskFlags struct {
	name        string
	description string
	priority    int8
	deadline    string
	birthline   string
	progress    string
	group       bool
	autoFail    bool
	repeat      string
	repeatBase  string
	deps        string
	file        string
}

func (f *taskFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.name, "name", "n", "", "task name")
	fs.StringVarP(&f.description, "description", "d", "", "task description")
	fs.Int8VarP(&f.priority, "priority", "p", 0, "priority (-128..127)")
	fs.StringVar(&f.deadline, "deadline", "", "deadline: +inf, +3d, 2026-05-01 18:00, RFC3339 or unix seconds")
	fs.StringVar(&f.birthline, "birthline", "", "earliest start: -inf, +2h, a date, RFC3339 or unix seconds")
	fs.StringVar(&f.progress, "progress", "", "todo, started, done or failed")
	fs.BoolVar(&f.group, "group", false, "done as soon as all dependencies are done")
	fs.BoolVar(&f.autoFail, "auto-fail", false, "fail when overdue")
	fs.StringVar(&f.repeat, "repeat", "", "recurrence interval (1h, 3d, 2w); none removes it")
	fs.StringVar(&f.repeatBase, "repeat-base", "deadline", "what the interval is added to: deadline or finished")
	fs.StringVar(&f.deps, "deps", "", "comma-separated IDs this task depends on")
	fs.StringVarP(&f.file, "file", "f", "", "read the task record as JSON from a file (- for stdin)")
}

// apply writes the passed flags onto t.
func (f *taskFlags) apply(cmd *cobra.Command, t *task.Task, now time.Time, loc *time.Location) error {
	changed := cmd.Flags().Changed
	if changed("name") {
		t.Name = f.name
	}
	if changed("description") {
		t.Description = f.description
	}
	if changed("priority") {
		t.Priority = f.priority
	}
	if changed("deadline") {
		tp, err := parseTimePoint(f.deadline, now, loc)
		if err != nil {
			return fmt.Errorf("--deadline: %w", err)
		}
		t.Deadline = tp
	}
	if changed("birthline") {
		tp, err := parseTimePoint(f.birthline, now, loc)
		if err != nil {
			return fmt.Errorf("--birthline: %w", err)
		}
		t.Birthline = tp
	}
	if changed("progress") {
		p, err := parseProgress(f.progress)
		if err != nil {
			return fmt.Errorf("--progress: %w", err)
		}
		t.Progress = p
	}
	if changed("group") {
		t.GroupLike = f.group
	}
	if changed("auto-fail") {
		t.AutoFail = f.autoFail
	}
	created := false
	if changed("repeat") {
		if strings.EqualFold(strings.TrimSpace(f.repeat), "none") {
			t.Recurrence = nil
		} else {
			d, err := parseDuration(f.repeat)
			if err != nil || d <= 0 {
				return fmt.Errorf("--repeat: invalid interval %q", f.repeat)
			}
			if t.Recurrence == nil {
				t.Recurrence = &task.Recurrence{}
				created = true
			}
			t.Recurrence.Repeat = d
		}
	}
	// an existing recurrence keeps its base unless --repeat-base is passed
	if changed("repeat-base") || created {
		b, err := parseRepeatBase(f.repeatBase)
		if err != nil {
			return fmt.Errorf("--repeat-base: %w", err)
		}
		if t.Recurrence == nil {
			return fmt.Errorf("--repeat-base needs a recurrence")
		}
		t.Recurrence.RepeatBase = b
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task name required")
	}
	return nil
}

// dependencies returns the --deps list, or keep when the flag was not passed.
func (f *taskFlags) dependencies(cmd *cobra.Command, keep []graph.ID) ([]graph.ID, error) {
	if !cmd.Flags().Changed("deps") {
		return keep, nil
	}
	ids, err := parseIDs(f.deps)
	if err != nil {
		return nil, fmt.Errorf("--deps: %w", err)
	}
	out := make([]graph.ID, len(ids))
	for i, id := range ids {
		out[i] = graph.ID(id)
	}
	return out, nil
}
