package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"taskgraph/pkg/graph"
	"taskgraph/pkg/timepoint"
)

// maxRepeat is the longest interval, in seconds, a time.Duration can hold.
const maxRepeat = int64(1<<63-1) / int64(time.Second)

type wireRecurrence struct {
	Repeat       *int64      `json:"repeat"`
	RepeatBase   *RepeatBase `json:"repeat_base"`
	NextInstance *graph.ID   `json:"next_instance,omitempty"`
}

type wireTask struct {
	Name        *string              `json:"name"`
	Description string               `json:"description,omitempty"`
	Priority    int8                 `json:"priority,omitempty"`
	Deadline    *timepoint.TimePoint `json:"deadline,omitempty"`
	Birthline   *timepoint.TimePoint `json:"birthline,omitempty"`
	Progress    Progress             `json:"progress,omitempty"`
	GroupLike   bool                 `json:"group_like,omitempty"`
	AutoFail    bool                 `json:"auto_fail,omitempty"`
	Finished    *int64               `json:"finished,omitempty"`
	Recurrence  *wireRecurrence      `json:"recurrence,omitempty"`
}

// MarshalJSON writes the record with every default-valued field omitted.
func (t Task) MarshalJSON() ([]byte, error) {
	name := t.Name
	w := wireTask{
		Name:        &name,
		Description: t.Description,
		Priority:    t.Priority,
		Progress:    t.Progress,
		GroupLike:   t.GroupLike,
		AutoFail:    t.AutoFail,
		Finished:    t.Finished,
	}
	if !t.Deadline.IsAfterEverything() {
		d := t.Deadline
		w.Deadline = &d
	}
	if !t.Birthline.IsBeforeEverything() {
		b := t.Birthline
		w.Birthline = &b
	}
	if r := t.Recurrence; r != nil {
		secs := int64(r.Repeat / time.Second)
		base := r.RepeatBase
		w.Recurrence = &wireRecurrence{Repeat: &secs, RepeatBase: &base, NextInstance: r.NextInstance}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a record strictly: unknown fields, derived fields and
// trailing data are rejected, name is required, and a recurrence needs both
// repeat and repeat_base. Derived fields are reset from the user-set ones.
func (t *Task) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var w wireTask
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("task: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("task: trailing data after record")
	}
	if w.Name == nil {
		return errors.New("task: missing field \"name\"")
	}

	out := New(*w.Name)
	out.Description = w.Description
	out.Priority = w.Priority
	out.Progress = w.Progress
	out.GroupLike = w.GroupLike
	out.AutoFail = w.AutoFail
	out.Finished = w.Finished
	if w.Deadline != nil {
		out.Deadline = *w.Deadline
	}
	if w.Birthline != nil {
		out.Birthline = *w.Birthline
	}
	if r := w.Recurrence; r != nil {
		if r.Repeat == nil {
			return errors.New("task: recurrence: missing field \"repeat\"")
		}
		if *r.Repeat > maxRepeat || *r.Repeat < -maxRepeat {
			return fmt.Errorf("task: recurrence: repeat %d out of range", *r.Repeat)
		}
		if r.RepeatBase == nil {
			return errors.New("task: recurrence: missing field \"repeat_base\"")
		}
		if r.NextInstance != nil && *r.NextInstance < 0 {
			return fmt.Errorf("task: recurrence: invalid next_instance %d", *r.NextInstance)
		}
		out.Recurrence = &Recurrence{
			Repeat:       time.Duration(*r.Repeat) * time.Second,
			RepeatBase:   *r.RepeatBase,
			NextInstance: r.NextInstance,
		}
	}
	out.Seed()
	*t = out
	return nil
}
