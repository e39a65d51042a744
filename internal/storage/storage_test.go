package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"taskgraph/pkg/logx"
)

func drivers(t *testing.T) map[string]Config {
	dir := t.TempDir()
	return map[string]Config{
		"file":   {Driver: "file", Path: filepath.Join(dir, "data")},
		"sqlite": {Driver: "sqlite", Path: filepath.Join(dir, "db", "taskgraph.db"), BusyTimeout: time.Second},
	}
}

func mustOpen(t *testing.T, cfg Config) Store {
	t.Helper()
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", cfg.Driver, err)
	}
	return st
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := mustOpen(t, cfg)
			if _, ok, err := st.LoadSnapshot(ctx); err != nil || ok {
				t.Fatalf("LoadSnapshot on empty store = %v, %v, want false, nil", ok, err)
			}
			for _, data := range []string{`{"0":{}}`, `{"0":{},"1":{}}`} {
				if err := st.SaveSnapshot(ctx, []byte(data)); err != nil {
					t.Fatalf("SaveSnapshot: %v", err)
				}
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			st = mustOpen(t, cfg)
			defer st.Close()
			got, ok, err := st.LoadSnapshot(ctx)
			if err != nil || !ok {
				t.Fatalf("LoadSnapshot after reopen = %v, %v", ok, err)
			}
			if string(got) != `{"0":{},"1":{}}` {
				t.Fatalf("snapshot = %s, want the last save", got)
			}
		})
	}
}

func TestAuditOrderAndLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfgs := drivers(t)
	cfgs["memory"] = Config{Driver: "none"}
	for name, cfg := range cfgs {
		t.Run(name, func(t *testing.T) {
			st := mustOpen(t, cfg)
			defer st.Close()
			actions := []string{"upsert", "upsert", "delete", "import"}
			for i, a := range actions {
				e := AuditEntry{Action: a, TaskID: i, TaskName: "t", OK: a != "delete"}
				if a == "delete" {
					e.Error = "Could not delete task"
				}
				if err := st.AppendAudit(ctx, e); err != nil {
					t.Fatalf("AppendAudit: %v", err)
				}
			}

			all, err := st.RecentAudit(ctx, 0)
			if err != nil {
				t.Fatalf("RecentAudit: %v", err)
			}
			if len(all) != len(actions) {
				t.Fatalf("len(RecentAudit(0)) = %d, want %d", len(all), len(actions))
			}
			seen := map[string]bool{}
			for i, e := range all {
				if e.Action != actions[i] || e.TaskID != i {
					t.Fatalf("entry %d = %+v, want action %s", i, e, actions[i])
				}
				if e.ID == "" || seen[e.ID] {
					t.Fatalf("entry %d has a missing or repeated id %q", i, e.ID)
				}
				seen[e.ID] = true
				if e.At.IsZero() {
					t.Fatalf("entry %d was not stamped", i)
				}
			}
			if all[2].OK || all[2].Error != "Could not delete task" {
				t.Fatalf("failed entry = %+v", all[2])
			}

			last, err := st.RecentAudit(ctx, 2)
			if err != nil {
				t.Fatalf("RecentAudit(2): %v", err)
			}
			if len(last) != 2 || last[0].Action != "delete" || last[1].Action != "import" {
				t.Fatalf("RecentAudit(2) = %+v", last)
			}
		})
	}
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := mustOpen(t, cfg)
			_ = st.Close()
			if err := st.SaveSnapshot(ctx, []byte("{}")); !errors.Is(err, ErrClosed) {
				t.Fatalf("SaveSnapshot after Close = %v, want ErrClosed", err)
			}
		})
	}
}

func TestOpenRejects(t *testing.T) {
	t.Parallel()
	for _, cfg := range []Config{{Driver: "postgres", Path: "x"}, {Driver: "file"}, {Driver: "sqlite", Path: " "}} {
		if _, err := Open(cfg, logx.Nop()); err == nil {
			t.Fatalf("Open(%+v) succeeded", cfg)
		}
	}
}
