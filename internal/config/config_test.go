package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDecodeYAMLMatchesJSON(t *testing.T) {
	t.Parallel()
	yamlDoc := `
logging:
  level: debug
  console: true
schedule:
  path: ./bells.json
  max_entries: 12
ringer:
  tick: 500ms
  suppressed_days: [sat, sun]
telegram:
  token: ""
  owner_user_ids: [42]
  poll_timeout: 5s
`
	jsonDoc := `{
  "logging": {"level": "debug", "console": true},
  "schedule": {"path": "./bells.json", "max_entries": 12},
  "ringer": {"tick": "500ms", "suppressed_days": ["sat", "sun"]},
  "telegram": {"token": "", "owner_user_ids": [42], "poll_timeout": "5s"}
}`
	fromYAML, err := decode("config.yaml", []byte(yamlDoc))
	if err != nil {
		t.Fatalf("yaml decode: %v", err)
	}
	fromJSON, err := decode("config.json", []byte(jsonDoc))
	if err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if hashConfig(fromYAML) != hashConfig(fromJSON) {
		t.Fatalf("yaml and json configs differ:\n%+v\n%+v", fromYAML, fromJSON)
	}
	if fromYAML.MaxEntries() != 12 || fromYAML.SchedulePath() != "./bells.json" {
		t.Fatalf("unexpected schedule section: %+v", fromYAML.Schedule)
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		doc  string
		want string
	}{
		{name: "unknown key", path: "c.json", doc: `{"ringer": {"tik": "1s"}}`, want: "unknown field"},
		{name: "trailing data", path: "c.json", doc: `{} {}`, want: "trailing data"},
		{name: "bad yaml", path: "c.yml", doc: "ringer: [unclosed", want: "parse yaml"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := decode(tt.path, []byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("decode error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestResolveRingerDefaults(t *testing.T) {
	t.Parallel()
	r, err := (&Config{}).ResolveRinger()
	if err != nil {
		t.Fatalf("ResolveRinger: %v", err)
	}
	if r.Tick != time.Second || r.AmpOnLead != 10*time.Second || r.AmpOffTrail != 2*time.Second || r.StalenessWindow != time.Minute {
		t.Fatalf("unexpected durations: %+v", r)
	}
	if len(r.SuppressedDays) != 2 || r.SuppressedDays[0] != time.Saturday || r.SuppressedDays[1] != time.Sunday {
		t.Fatalf("unexpected suppressed days: %v", r.SuppressedDays)
	}
	if r.Location != time.Local {
		t.Fatalf("location = %v, want Local", r.Location)
	}
}

func TestResolveStorage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		sc      *StorageConfig
		want    Storage
		wantErr bool
	}{
		{name: "nil", sc: nil},
		{name: "none", sc: &StorageConfig{Driver: "none", Path: "x"}},
		{name: "file", sc: &StorageConfig{Driver: "file", Path: "x"}, want: Storage{Driver: "file", Path: "x"}},
		{name: "sqlite default busy", sc: &StorageConfig{Driver: "sqlite", Path: "x.db"}, want: Storage{Driver: "sqlite", Path: "x.db", BusyTimeout: DefaultBusyTimeout}},
		{name: "sqlite", sc: &StorageConfig{Driver: " SQLite", Path: "x.db", BusyTimeout: "2s"}, want: Storage{Driver: "sqlite", Path: "x.db", BusyTimeout: 2 * time.Second}},
		{name: "sqlite no path", sc: &StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "bad busy", sc: &StorageConfig{Driver: "sqlite", Path: "x", BusyTimeout: "soon"}, wantErr: true},
		{name: "unknown", sc: &StorageConfig{Driver: "tape"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := (&Config{Storage: tt.sc}).ResolveStorage()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "default", mutate: func(*Config) {}, ok: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }},
		{name: "negative duration", mutate: func(c *Config) { c.Ringer.AmpOnLead = "-1s" }},
		{name: "bad weekday", mutate: func(c *Config) { c.Ringer.SuppressedDays = []string{"caturday"} }},
		{name: "gpio without pin", mutate: func(c *Config) { c.Device.Relay.Driver = "gpio" }},
		{name: "gpio with pin", mutate: func(c *Config) { c.Device.Relay = RelayConfig{Driver: "gpio", Pin: "GPIO25"} }, ok: true},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "redis"} }},
		{name: "token without owners", mutate: func(c *Config) { c.Telegram.Token = "123:abc" }},
		{name: "negative lead", mutate: func(c *Config) { v := -1.0; c.Schedule.DefaultLead = &v }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Default()
			tt.mutate(c)
			err := Validate(c)
			if tt.ok && err != nil {
				t.Fatalf("Validate: unexpected error %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("Validate: expected error")
			}
		})
	}
}

func TestEnsureFileWritesLoadableDefault(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"config.json", "config.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		created, err := EnsureFile(path)
		if err != nil || !created {
			t.Fatalf("EnsureFile(%s) = %v, %v", name, created, err)
		}
		created, err = EnsureFile(path)
		if err != nil || created {
			t.Fatalf("second EnsureFile(%s) = %v, %v", name, created, err)
		}
		m := NewConfigManager(path)
		cfg, err := m.Load()
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if hashConfig(cfg) != hashConfig(Default()) {
			t.Fatalf("%s: loaded config differs from default", name)
		}
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	if _, err := EnsureFile(path); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub, unsubscribe := m.Subscribe(1)
	defer unsubscribe()
	ctx := context.Background()

	if m.reload(ctx) {
		t.Fatal("reload published unchanged content")
	}

	cfg := Default()
	cfg.Logging.Level = "debug"
	b, err := encodeFor(path, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}
	if !m.reload(ctx) {
		t.Fatal("reload did not publish changed content")
	}
	got := <-sub
	if got.Logging.Level != "debug" || m.Get().Logging.Level != "debug" {
		t.Fatalf("published level = %q", got.Logging.Level)
	}

	// A config failing validation is not committed.
	if err := os.WriteFile(path, []byte(`{"logging": {"level": "loud"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if m.reload(ctx) {
		t.Fatal("invalid config was published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatal("invalid config replaced the committed one")
	}
}

func TestSummarizeConfigChangeHidesToken(t *testing.T) {
	t.Parallel()
	oldCfg := Default()
	newCfg := Default()
	newCfg.Telegram.Token = "123:secret"
	newCfg.Ringer.Tick = "2s"
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "ringer,telegram" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
}
