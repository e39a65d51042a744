package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"taskgraph/internal/config"
	"taskgraph/internal/eventbus"
	"taskgraph/internal/task"
	"taskgraph/internal/taskgraph"
	"taskgraph/pkg/graph"
	"taskgraph/pkg/timepoint"
)

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverFile
	cfg.Storage.Path = filepath.Join(dir, "data")
	cfg.Scheduler.Enabled = false
	return cfg
}

func open(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	dir := t.TempDir()
	if cfg == nil {
		cfg = testConfig(dir)
	}
	opts = append([]Option{WithConfig(cfg), WithLogOutput(io.Discard)}, opts...)
	a, err := New(context.Background(), filepath.Join(dir, "taskgraph.yaml"), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, match func(eventbus.Event) bool) eventbus.Event {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("no matching event")
			return eventbus.Event{}
		}
	}
}

func TestUpsertPersistsAcrossRestart(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t.TempDir())
	ctx := context.Background()

	a, err := New(ctx, "", WithConfig(cfg), WithLogOutput(io.Discard), WithClock(fixedClock(100)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	base, err := a.Upsert(ctx, graph.NoID, task.New("buy paint"), nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := a.Upsert(ctx, graph.NoID, task.New("paint fence"), []graph.ID{base}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := New(ctx, "", WithConfig(cfg), WithLogOutput(io.Discard), WithClock(fixedClock(100)))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	views := b.List()
	if len(views) != 2 {
		t.Fatalf("List len = %d, want 2", len(views))
	}
	if got := views[1].Dependencies; len(got) != 1 || got[0] != base {
		t.Fatalf("dependencies = %v, want [%d]", got, base)
	}
	if got := views[1].Task.ComputedProgress; got != task.Blocked {
		t.Fatalf("progress = %v, want Blocked", got)
	}
}

func TestRejectedUpsertIsAudited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := open(t, nil, WithClock(fixedClock(100)))

	first, err := a.Upsert(ctx, graph.NoID, task.New("a"), nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	second, err := a.Upsert(ctx, graph.NoID, task.New("b"), []graph.ID{first})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	before, _ := a.Export()

	_, err = a.Upsert(ctx, first, task.New("a"), []graph.ID{second})
	var ue *taskgraph.UserError
	if !errors.As(err, &ue) {
		t.Fatalf("Upsert err = %v, want *UserError", err)
	}
	if !errors.Is(err, graph.ErrCycle) {
		t.Fatalf("Upsert err = %v, want cycle", err)
	}
	if after, _ := a.Export(); string(after) != string(before) {
		t.Fatalf("graph changed after rejected upsert:\n%s\nwant\n%s", after, before)
	}

	hist, err := a.History(ctx, 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].OK || hist[0].Action != "upsert" || hist[0].TaskID != int(first) {
		t.Fatalf("History = %+v, want one failed upsert of %d", hist, first)
	}
}

func TestDeleteMissing(t *testing.T) {
	t.Parallel()
	a := open(t, nil)
	err := a.Delete(context.Background(), 7)
	var ue *taskgraph.UserError
	if !errors.As(err, &ue) {
		t.Fatalf("Delete err = %v, want *UserError", err)
	}
}

func TestDeletePublishes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := open(t, nil)
	events, unsubscribe := a.Bus().Subscribe(16, eventbus.TaskDeleted)
	defer unsubscribe()

	id, err := a.Upsert(ctx, graph.NoID, task.New("sweep"), nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := a.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ev := waitEvent(t, events, func(eventbus.Event) bool { return true })
	if got := ev.Data.(eventbus.TaskData); got.ID != int(id) || got.Name != "sweep" {
		t.Fatalf("event = %+v, want %d sweep", got, id)
	}
	if n := len(a.List()); n != 0 {
		t.Fatalf("List len = %d, want 0", n)
	}
}

func TestImportExport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := open(t, nil, WithClock(fixedClock(100)))
	dep, _ := src.Upsert(ctx, graph.NoID, task.New("dep"), nil)
	top := task.New("top")
	top.Deadline = timepoint.At(5000)
	if _, err := src.Upsert(ctx, graph.NoID, top, []graph.ID{dep}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	data, err := src.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := open(t, nil, WithClock(fixedClock(100)))
	n, err := dst.Import(ctx, data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 2 {
		t.Fatalf("Import = %d, want 2", n)
	}
	v, err := dst.Get(dep)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !v.Task.ComputedDeadline.Equal(timepoint.At(5000)) {
		t.Fatalf("computed deadline = %v, want 5000", v.Task.ComputedDeadline)
	}
}

func TestImportRejectsInvalidRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := open(t, nil)
	if _, err := a.Upsert(ctx, graph.NoID, task.New("keep"), nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	tests := []struct {
		name string
		data string
	}{
		{"unknown field", `{"0":{"value":{"name":"x","computed_progress":"Done"},"parents":[],"children":[]}}`},
		{"bad progress", `{"0":{"value":{"name":"x","progress":"Maybe"},"parents":[],"children":[]}}`},
		{"missing name", `{"0":{"value":{},"parents":[],"children":[]}}`},
	}
	for _, tt := range tests {
		_, err := a.Import(ctx, []byte(tt.data))
		var ve *task.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: Import err = %v, want *ValidationError", tt.name, err)
		}
	}
	if views := a.List(); len(views) != 1 || views[0].Task.Name != "keep" {
		t.Fatalf("List = %+v, want only keep", views)
	}
}

func TestRecomputeAutoFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := int64(1000)
	a := open(t, nil, WithClock(func() time.Time { return time.Unix(now, 0) }))
	events, unsubscribe := a.Bus().Subscribe(16, eventbus.GraphComputed)
	defer unsubscribe()

	receipts := task.New("collect receipts")
	receipts.Progress = task.Done
	dep, err := a.Upsert(ctx, graph.NoID, receipts, nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	tk := task.New("file taxes")
	tk.AutoFail = true
	tk.Deadline = timepoint.At(1010)
	id, err := a.Upsert(ctx, graph.NoID, tk, []graph.ID{dep})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if v, _ := a.Get(id); v.Task.ComputedProgress != task.ComputedTodo {
		t.Fatalf("progress = %v, want Todo", v.Task.ComputedProgress)
	}

	now = 1100
	if err := a.Recompute(ctx, "manual"); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if v, _ := a.Get(id); v.Task.ComputedProgress != task.ComputedFailed {
		t.Fatalf("progress = %v, want Failed", v.Task.ComputedProgress)
	}
	waitEvent(t, events, func(ev eventbus.Event) bool {
		return ev.Data.(eventbus.ComputeData).Reason == "manual"
	})
	if got := a.Agenda(); len(got) != 0 {
		t.Fatalf("Agenda = %+v, want empty", got)
	}
	if got := a.ByProgress(task.ComputedFailed); len(got) != 1 || got[0].ID != id {
		t.Fatalf("ByProgress(Failed) = %+v, want [%d]", got, id)
	}
}

func TestUpsertPublishesSpawn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := open(t, nil, WithClock(fixedClock(100)))
	events, unsubscribe := a.Bus().Subscribe(16, eventbus.InstanceSpawned)
	defer unsubscribe()

	tk := task.New("water plants")
	tk.Progress = task.Done
	tk.Deadline = timepoint.At(1000)
	tk.Recurrence = &task.Recurrence{Repeat: time.Minute, RepeatBase: task.FromDeadline}
	id, err := a.Upsert(ctx, graph.NoID, tk, nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	ev := waitEvent(t, events, func(eventbus.Event) bool { return true })
	data := ev.Data.(eventbus.InstanceData)
	if data.Task != int(id) {
		t.Fatalf("spawn event task = %d, want %d", data.Task, id)
	}
	inst, err := a.Get(graph.ID(data.Instance))
	if err != nil {
		t.Fatalf("Get instance: %v", err)
	}
	if !inst.Task.Deadline.Equal(timepoint.At(1060)) {
		t.Fatalf("instance deadline = %v, want 1060", inst.Task.Deadline)
	}

	hist, err := a.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || !hist[0].OK || hist[0].MetaJSON == "" {
		t.Fatalf("History = %+v, want one upsert with a report", hist)
	}
}

func TestServeWakesAtBirthline(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Tick = "@every 1h"
	cfg.Scheduler.WakeOnBoundary = true
	a := open(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fan := task.New("switch off fan")
	fan.Progress = task.Done
	dep, err := a.Upsert(ctx, graph.NoID, fan, nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	tk := task.New("open window")
	tk.Birthline = timepoint.FromTime(time.Now()).Add(2 * time.Second)
	id, err := a.Upsert(ctx, graph.NoID, tk, []graph.ID{dep})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if v, _ := a.Get(id); v.Task.ComputedProgress != task.NotYet {
		t.Fatalf("progress = %v, want NotYet", v.Task.ComputedProgress)
	}

	events, unsubscribe := a.Bus().Subscribe(16, eventbus.GraphComputed)
	defer unsubscribe()
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	waitEvent(t, events, func(ev eventbus.Event) bool {
		return ev.Data.(eventbus.ComputeData).Reason == "boundary"
	})
	if v, _ := a.Get(id); v.Task.ComputedProgress != task.ComputedTodo {
		t.Fatalf("progress after wake = %v, want Todo", v.Task.ComputedProgress)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Serve did not return")
	}
}

func TestStatusCountsByProgress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := open(t, nil, WithClock(fixedClock(100)))
	dep, _ := a.Upsert(ctx, graph.NoID, task.New("dep"), nil)
	if _, err := a.Upsert(ctx, graph.NoID, task.New("top"), []graph.ID{dep}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	st := a.Status()
	if st.Tasks != 2 || st.ByProgress["Todo"] != 1 || st.ByProgress["Blocked"] != 1 {
		t.Fatalf("Status = %+v, want one Todo and one Blocked", st)
	}
	if st.NextTick != nil || st.NextWake != nil {
		t.Fatalf("Status has schedule times while not serving: %+v", st)
	}
}
