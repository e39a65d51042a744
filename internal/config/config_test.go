package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDecodeFormatsAgree(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"c.json": `{"storage":{"driver":"sqlite","path":"tg.db","busy_timeout":"5s"},"scheduler":{"enabled":true,"tick":"@every 5m","wake_on_boundary":false}}`,
		"c.yaml": "storage:\n  driver: sqlite\n  path: tg.db\n  busy_timeout: 5s\nscheduler:\n  enabled: true\n  tick: \"@every 5m\"\n  wake_on_boundary: false\n",
		"c.toml": "[storage]\ndriver = \"sqlite\"\npath = \"tg.db\"\nbusy_timeout = \"5s\"\n\n[scheduler]\nenabled = true\ntick = \"@every 5m\"\nwake_on_boundary = false\n",
	}
	want := Default()
	want.Storage = StorageConfig{Driver: DriverSQLite, Path: "tg.db", BusyTimeout: "5s"}
	want.Scheduler = SchedulerConfig{Enabled: true, Tick: "@every 5m"}

	for name, body := range files {
		got, err := Decode(name, []byte(body))
		if err != nil {
			t.Fatalf("Decode(%s): %v", name, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Decode(%s) = %+v, want %+v", name, got, want)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, path, body, want string
	}{
		{"unknown key", "c.json", `{"telegram":{}}`, "unknown field"},
		{"unknown nested yaml key", "c.yml", "storage:\n  dsn: x\n", "unknown field"},
		{"trailing data", "c.json", `{} {}`, "trailing data"},
		{"bad toml", "c.toml", "[storage\n", "toml decode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tc.path, []byte(tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Decode err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"default", func(*Config) {}, ""},
		{"memory only", func(c *Config) { c.Storage = StorageConfig{Driver: DriverNone} }, ""},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"path", func(c *Config) { c.Storage.Path = " " }, "storage.path"},
		{"busy timeout", func(c *Config) { c.Storage.BusyTimeout = "soon" }, "storage.busy_timeout"},
		{"timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
		{"tick", func(c *Config) { c.Scheduler.Tick = "" }, "scheduler.tick"},
		{"tick unused", func(c *Config) { c.Scheduler = SchedulerConfig{} }, ""},
		{"close to deadline", func(c *Config) { c.Agenda.CloseToDeadline = "-1h" }, "agenda.close_to_deadline"},
		{"debug address", func(c *Config) { c.Debug = DebugConfig{Enabled: true, Address: "6060"} }, "debug.address"},
		{"debug address unused", func(c *Config) { c.Debug.Address = "" }, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("Validate = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFileUsesDefault(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(filepath.Join(t.TempDir(), "taskgraph.yaml"))
	cfg, found, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatalf("found = true for a missing file")
	}
	if !reflect.DeepEqual(cfg, Default()) || m.Get() != cfg {
		t.Fatalf("Load did not commit the default config")
	}
}

func TestLoadRunsValidator(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "c.json")
	if err := os.WriteFile(path, []byte(`{"scheduler":{"enabled":true,"tick":"never"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Scheduler.Tick == "never" {
			return os.ErrInvalid
		}
		return nil
	})
	if _, _, err := m.Load(context.Background()); err == nil {
		t.Fatalf("Load accepted a config the validator rejects")
	}
	if m.Get() != nil {
		t.Fatalf("rejected config was committed")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	if changed, attrs := SummarizeConfigChange(a, b); len(changed) != 0 || len(attrs) != 0 {
		t.Fatalf("identical configs changed %v", changed)
	}
	b.Logging.Level = "debug"
	b.Storage.Path = " ./taskgraph_data "
	b.Agenda.CloseToDeadline = "1h"
	b.Debug.Enabled = true
	changed, _ := SummarizeConfigChange(a, b)
	if want := []string{"logging", "agenda", "debug"}; !reflect.DeepEqual(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	first, second := Default(), Default()
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatalf("subscriber got the stale config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after Unsubscribe")
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "taskgraph.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.Logging.Level != "debug" {
				t.Fatalf("published level = %q, want debug", cfg.Logging.Level)
			}
			return
		case <-tick.C:
			// Rewrite until the watcher is up and reports the change.
			_ = os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o644)
		case <-deadline:
			t.Fatalf("no config published")
		}
	}
}
