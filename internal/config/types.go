package config

import "strings"

// Config is the daemon configuration. It is decoded strictly: unknown keys
// are rejected so typos surface at load or reload time.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Schedule ScheduleConfig `json:"schedule"`
	Ringer   RingerConfig   `json:"ringer"`
	Device   DeviceConfig   `json:"device"`
	Jobs     JobsConfig     `json:"jobs"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Telegram TelegramConfig `json:"telegram"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ScheduleConfig locates the bell schedule document.
//
// Defaults:
//   - path: "./schedule.json"
//   - max_entries: 24
//   - default_lead_minutes: 1
//   - watch: false
type ScheduleConfig struct {
	Path        string   `json:"path"`
	MaxEntries  int      `json:"max_entries,omitempty"`
	DefaultLead *float64 `json:"default_lead_minutes,omitempty"`
	Watch       bool     `json:"watch,omitempty"`
}

// RingerConfig controls the tick loop and the action timing.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - tick: "1s"
//   - amp_on_lead: "10s"
//   - amp_off_trail: "2s"
//   - staleness_window: "60s"
//   - suppressed_days: ["saturday", "sunday"]
//   - timezone: "" (system local time)
type RingerConfig struct {
	Tick            string   `json:"tick,omitempty"`
	AmpOnLead       string   `json:"amp_on_lead,omitempty"`
	AmpOffTrail     string   `json:"amp_off_trail,omitempty"`
	StalenessWindow string   `json:"staleness_window,omitempty"`
	SuppressedDays  []string `json:"suppressed_days,omitempty"`
	Timezone        string   `json:"timezone,omitempty"`
}

// DeviceConfig describes the amplifier relay and the audio player.
type DeviceConfig struct {
	Relay  RelayConfig  `json:"relay"`
	Player PlayerConfig `json:"player"`
	Sounds SoundsConfig `json:"sounds"`
}

// RelayConfig selects the amplifier relay driver.
//
// Driver is "gpio" (periph.io pin by name, e.g. "GPIO25") or "log" (no
// hardware; every switch is only logged). Empty means "log".
type RelayConfig struct {
	Driver    string `json:"driver"`
	Pin       string `json:"pin,omitempty"`
	ActiveLow bool   `json:"active_low,omitempty"`
}

// PlayerConfig runs an external decoder for each sound.
//
// Defaults:
//   - command: "mpg123"
//   - args: ["-q"]
//   - max_play: "15s"
//   - max_alarm: "10m"
type PlayerConfig struct {
	Command  string   `json:"command,omitempty"`
	Args     []string `json:"args,omitempty"`
	MaxPlay  string   `json:"max_play,omitempty"`
	MaxAlarm string   `json:"max_alarm,omitempty"`
}

// SoundsConfig locates the sound files. Files whose name starts with "1" are
// bells, "2" pre-bells and "0" alarms; Default is used when none match.
type SoundsConfig struct {
	Dir     string `json:"dir"`
	Default string `json:"default,omitempty"`
}

// JobsConfig controls background maintenance jobs.
//
// Schedules accept cron expressions, "@every <duration>", plain durations
// and HH:MM intervals.
//
// Defaults:
//   - enabled: true
//   - sound_rescan: "@every 5s"
//   - audit_prune: "0 3 * * *"
//   - audit_retention: "720h"
type JobsConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	SoundRescan    string `json:"sound_rescan,omitempty"`
	AuditPrune     string `json:"audit_prune,omitempty"`
	AuditRetention string `json:"audit_retention,omitempty"`
}

func (j JobsConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// StorageConfig controls the ring audit log. Nil disables it.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./schoolbell.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TelegramConfig enables the remote console. An empty token disables it.
type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChatID receives forwarded log lines and alerts. Zero falls back to
	// the first owner.
	LogChatID int64 `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

func (t TelegramConfig) Enabled() bool { return strings.TrimSpace(t.Token) != "" }

// AlertChatID returns where alerts go, or 0 when nowhere is configured.
func (t TelegramConfig) AlertChatID() int64 {
	if t.LogChatID != 0 {
		return t.LogChatID
	}
	if len(t.OwnerUserIDs) > 0 {
		return t.OwnerUserIDs[0]
	}
	return 0
}
