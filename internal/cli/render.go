package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"taskgraph/internal/storage"
	"taskgraph/internal/task"
	"taskgraph/internal/taskgraph"
	"taskgraph/pkg/graph"
	"taskgraph/pkg/timepoint"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

	progressStyles = map[task.ComputedProgress]lipgloss.Style{
		task.Blocked:         lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		task.NotYet:          lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		task.ComputedTodo:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		task.ComputedStarted: lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		task.ComputedDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		task.ComputedFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

func progressLabel(p task.ComputedProgress) string {
	label := fmt.Sprintf("%-7s", p.String())
	if st, ok := progressStyles[p]; ok {
		return st.Render(label)
	}
	return label
}

// relTime renders tp relative to now: "3 hours from now", "2 days ago".
func relTime(tp timepoint.TimePoint, now time.Time) string {
	switch {
	case tp.IsBeforeEverything():
		return "-inf"
	case tp.IsAfterEverything():
		return "+inf"
	}
	t, _ := tp.Time()
	if t.Unix() == now.Unix() {
		return "now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func absTime(tp timepoint.TimePoint, loc *time.Location) string {
	t, ok := tp.Time()
	if !ok {
		return tp.String()
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

func joinIDs(ids []graph.ID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(int(id))
	}
	return strings.Join(parts, ",")
}

// renderList writes one line per task: id, computed progress, priority,
// computed deadline and name.
func renderList(w io.Writer, views []taskgraph.View, now time.Time) {
	if len(views) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no tasks"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%4s  %-7s  %4s  %-18s  %s", "ID", "STATE", "PRI", "DUE", "NAME")))
	for _, v := range views {
		t := v.Task
		fmt.Fprintf(w, "%4d  %s  %4d  %-18s  %s\n",
			v.ID, progressLabel(t.ComputedProgress), t.ComputedPriority, relTime(t.ComputedDeadline, now), t.Name)
	}
}

func renderView(w io.Writer, v taskgraph.View, now time.Time, loc *time.Location) {
	t := v.Task
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render(fmt.Sprintf("#%d", v.ID)), headerStyle.Render(t.Name))
	if t.Description != "" {
		fmt.Fprintln(w, t.Description)
	}
	row := func(k, val string) { fmt.Fprintf(w, "  %-13s %s\n", dimStyle.Render(k), val) }
	row("state", fmt.Sprintf("%s (set: %s)", progressLabel(t.ComputedProgress), t.Progress))
	row("priority", fmt.Sprintf("%d (own %d)", t.ComputedPriority, t.Priority))
	row("deadline", fmt.Sprintf("%s, %s (own %s)", absTime(t.ComputedDeadline, loc), relTime(t.ComputedDeadline, now), absTime(t.Deadline, loc)))
	row("birthline", fmt.Sprintf("%s, %s", absTime(t.Birthline, loc), relTime(t.Birthline, now)))
	if t.GroupLike {
		row("group", "yes")
	}
	if t.AutoFail {
		row("auto-fail", "yes")
	}
	if t.Finished != nil {
		row("finished", absTime(timepoint.At(*t.Finished), loc))
	}
	if r := t.Recurrence; r != nil {
		next := "-"
		if r.NextInstance != nil {
			next = "#" + strconv.Itoa(int(*r.NextInstance))
		}
		row("repeat", fmt.Sprintf("every %s from %s, next %s", r.Repeat, r.RepeatBase, next))
	}
	row("depends on", joinIDs(v.Dependencies))
	row("needed by", joinIDs(v.Dependents))
	if v.Candidates != nil {
		row("could add", joinIDs(v.Candidates))
	}
}

func renderHistory(w io.Writer, entries []storage.AuditEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no history"))
		return
	}
	for _, e := range entries {
		status := progressStyles[task.ComputedDone].Render("ok  ")
		if !e.OK {
			status = errStyle.Render("FAIL")
		}
		subject := ""
		if e.TaskID >= 0 {
			subject = fmt.Sprintf(" #%d", e.TaskID)
		}
		if e.TaskName != "" {
			subject += " " + e.TaskName
		}
		fmt.Fprintf(w, "%-16s %s %-8s%s\n", humanize.RelTime(e.At, now, "ago", "from now"), status, e.Action, subject)
		if e.Error != "" {
			fmt.Fprintln(w, dimStyle.Render("    "+firstLine(e.Error)))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// renderError prints a *taskgraph.UserError as a title and its prose.
func renderError(w io.Writer, err error) {
	var ue *taskgraph.UserError
	if errors.As(err, &ue) {
		fmt.Fprintln(w, errStyle.Render(ue.ShortName))
		fmt.Fprintln(w, ue.Details)
		return
	}
	fmt.Fprintln(w, errStyle.Render("Error: ")+err.Error())
}

// jsonView is the --json shape of a task: the stored record plus the state
// derived for it.
type jsonView struct {
	ID           graph.ID    `json:"id"`
	Task         task.Task   `json:"task"`
	Computed     jsonDerived `json:"computed"`
	Dependencies []graph.ID  `json:"dependencies"`
	Dependents   []graph.ID  `json:"dependents"`
	Candidates   []graph.ID  `json:"candidates,omitempty"`
}

type jsonDerived struct {
	Priority int8                  `json:"priority"`
	Deadline timepoint.TimePoint   `json:"deadline"`
	Progress task.ComputedProgress `json:"progress"`
}

func toJSON(v taskgraph.View) jsonView {
	nonNil := func(ids []graph.ID) []graph.ID {
		if ids == nil {
			return []graph.ID{}
		}
		return ids
	}
	return jsonView{
		ID:   v.ID,
		Task: v.Task,
		Computed: jsonDerived{
			Priority: v.Task.ComputedPriority,
			Deadline: v.Task.ComputedDeadline,
			Progress: v.Task.ComputedProgress,
		},
		Dependencies: nonNil(v.Dependencies),
		Dependents:   nonNil(v.Dependents),
		Candidates:   v.Candidates,
	}
}

func toJSONList(views []taskgraph.View) []jsonView {
	out := make([]jsonView, len(views))
	for i, v := range views {
		out[i] = toJSON(v)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
