package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lserver.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsWithoutFile(t *testing.T) {
	l, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := l.Current()
	want := Defaults()
	if got != want {
		t.Fatalf("Current() = %+v, want %+v", got, want)
	}
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	path := writeTempConfig(t, `
listen:
  ip: 10.0.0.1
  port: 9999
concurrency:
  num_workers: 8
logging:
  header_interval: 5s
`)
	l, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := l.Current()
	if got.Listen.IP != "10.0.0.1" || got.Listen.Port != 9999 {
		t.Fatalf("listen not overridden: %+v", got.Listen)
	}
	if got.Concurrency.NumWorkers != 8 {
		t.Fatalf("concurrency.num_workers = %d, want 8", got.Concurrency.NumWorkers)
	}
	if got.Logging.HeaderInterval != 5*time.Second {
		t.Fatalf("logging.header_interval = %v, want 5s", got.Logging.HeaderInterval)
	}
	// Unset keys keep their defaults.
	if got.Sessions.MaxSessionPoolSize != Defaults().Sessions.MaxSessionPoolSize {
		t.Fatalf("sessions.max_session_pool_size drifted from default: %d", got.Sessions.MaxSessionPoolSize)
	}
}

func TestLoadOverridesMetricsFromFile(t *testing.T) {
	path := writeTempConfig(t, `
metrics:
  enabled: true
  ip: 0.0.0.0
  port: 9999
`)
	l, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := l.Current().Metrics
	if !got.Enabled || got.IP != "0.0.0.0" || got.Port != 9999 {
		t.Fatalf("metrics not overridden: %+v", got)
	}
}

func TestWatchFiresOnReloadableFieldChange(t *testing.T) {
	path := writeTempConfig(t, "listen:\n  port: 1000\n")
	l, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	changes := make(chan Reloadable, 4)
	l.Watch(func(r Reloadable) { changes <- r })

	if err := os.WriteFile(path, []byte("listen:\n  port: 2000\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case r := <-changes:
		if r.Listen.Port != 2000 {
			t.Fatalf("Listen.Port = %d, want 2000", r.Listen.Port)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config change notification")
	}
}
