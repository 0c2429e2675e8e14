package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"schoolbell/internal/config"
)

func writeConfig(t *testing.T, dir, storage string) string {
	t.Helper()
	cfg := `{
  "logging": {"level": "warn", "console": false},
  "schedule": {"path": "` + filepath.Join(dir, "schedule.json") + `", "max_entries": 4},
  "ringer": {"tick": "50ms"},
  "device": {
    "relay": {"driver": "log"},
    "player": {"command": "true"},
    "sounds": {"dir": "` + filepath.Join(dir, "sounds") + `"}
  },
  "jobs": {"sound_rescan": "1s"},
  ` + storage + `
  "telegram": {"token": "", "owner_user_ids": [], "poll_timeout": "10s"}
}`
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppStartStop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `"storage": {"driver": "file", "path": "`+filepath.Join(dir, "audit")+`"},`)

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.remote != nil {
		t.Fatalf("remote console must be off without a token")
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !a.ring.Alive(time.Second) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !a.ring.Alive(time.Second) {
		t.Fatalf("tick loop did not run")
	}
	if err := a.store.AddEntry(); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := a.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "schedule.json"))
	if err != nil {
		t.Fatalf("read schedule: %v", err)
	}
	if !strings.Contains(string(b), `"00:00"`) {
		t.Fatalf("final save missing new bell: %s", b)
	}
	if a.dev.Status().AmplifierOn {
		t.Fatalf("amplifier left on after stop")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `"storage": {"driver": "tape"},`)
	if _, err := New(cfgPath); err == nil {
		t.Fatalf("expected error for unknown storage driver")
	}
}

func TestApplyConfigRetimesRinger(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := New(writeConfig(t, dir, ""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Stop(context.Background(), StopUnknown) }()

	old := a.cfgm.Get()
	next, err := a.cfgm.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	next.Ringer.AmpOnLead = "30s"
	next.Ringer.Tick = "200ms"
	next.Device.Player.MaxPlay = "5s"
	a.applyConfig(old, next)

	if got := a.sched.Config().AmpOnLead; got != 30*time.Second {
		t.Fatalf("amp_on_lead = %v", got)
	}
	if got := time.Duration(a.tick.Load()); got != 200*time.Millisecond {
		t.Fatalf("tick = %v", got)
	}
}

func TestValidateReloadGuardsCapacity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := New(writeConfig(t, dir, ""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Stop(context.Background(), StopUnknown) }()

	for i := 0; i < 3; i++ {
		if err := a.store.AddEntry(); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
	}
	cfg := config.Default()
	cfg.Schedule.MaxEntries = 2
	if err := a.validateReload(context.Background(), cfg); err == nil {
		t.Fatalf("expected capacity error")
	}
	cfg.Schedule.MaxEntries = 3
	if err := a.validateReload(context.Background(), cfg); err != nil {
		t.Fatalf("validateReload: %v", err)
	}
}
