package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultSchedulePath    = "./schedule.json"
	DefaultMaxEntries      = 24
	DefaultLeadMinutes     = 1.0
	DefaultTick            = time.Second
	DefaultBusyTimeout     = time.Second
	DefaultAmpOnLead       = 10 * time.Second
	DefaultAmpOffTrail     = 2 * time.Second
	DefaultStaleness       = 60 * time.Second
	DefaultPlayerCommand   = "mpg123"
	DefaultMaxPlay         = 15 * time.Second
	DefaultMaxAlarm        = 10 * time.Minute
	DefaultSoundsDir       = "./sounds"
	DefaultSoundRescan     = "@every 5s"
	DefaultAuditPrune      = "0 3 * * *"
	DefaultAuditRetention  = 30 * 24 * time.Hour
	DefaultTelegramTimeout = 10 * time.Second
)

// Default returns the configuration written on first run.
func Default() *Config {
	lead := DefaultLeadMinutes
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Enabled: false, Path: "./schoolbell.log"},
			Telegram: LoggingTelegram{
				MinLevel:   "warn",
				RatePerSec: 1,
			},
		},
		Schedule: ScheduleConfig{
			Path:        DefaultSchedulePath,
			MaxEntries:  DefaultMaxEntries,
			DefaultLead: &lead,
		},
		Ringer: RingerConfig{
			Tick:            DefaultTick.String(),
			AmpOnLead:       DefaultAmpOnLead.String(),
			AmpOffTrail:     DefaultAmpOffTrail.String(),
			StalenessWindow: DefaultStaleness.String(),
			SuppressedDays:  []string{"saturday", "sunday"},
		},
		Device: DeviceConfig{
			Relay: RelayConfig{Driver: "log"},
			Player: PlayerConfig{
				Command:  DefaultPlayerCommand,
				Args:     []string{"-q"},
				MaxPlay:  DefaultMaxPlay.String(),
				MaxAlarm: DefaultMaxAlarm.String(),
			},
			Sounds: SoundsConfig{Dir: DefaultSoundsDir},
		},
		Jobs: JobsConfig{
			SoundRescan:    DefaultSoundRescan,
			AuditPrune:     DefaultAuditPrune,
			AuditRetention: DefaultAuditRetention.String(),
		},
		Storage: &StorageConfig{Driver: "file", Path: "./schoolbell_audit"},
		Telegram: TelegramConfig{
			OwnerUserIDs: []int64{},
			PollTimeout:  DefaultTelegramTimeout.String(),
		},
	}
}

// EnsureFile writes the default configuration to path when nothing exists
// there yet. It reports whether a file was created.
func EnsureFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	b, err := encodeFor(path, Default())
	if err != nil {
		return false, err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return false, err
	}
	return true, nil
}
