package app

import (
	"time"

	"schoolbell/internal/agenda"
	"schoolbell/internal/config"
	"schoolbell/internal/device"
	"schoolbell/internal/remote"
	logx "schoolbell/pkg/logx"
)

func logConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Remote: logx.RemoteConfig{
			Enabled:    lc.Telegram.Enabled && cfg.Telegram.Enabled(),
			ChatID:     cfg.Telegram.AlertChatID(),
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func agendaConfig(r config.Ringer) agenda.Config {
	return agenda.Config{
		AmpOnLead:       r.AmpOnLead,
		AmpOffTrail:     r.AmpOffTrail,
		StalenessWindow: r.StalenessWindow,
		SuppressedDays:  r.SuppressedDays,
		Location:        r.Location,
	}
}

func deviceConfig(cfg *config.Config, p config.Player) device.Config {
	d := cfg.Device
	return device.Config{
		Relay:     device.RelayOptions{Driver: d.Relay.Driver, Pin: d.Relay.Pin, ActiveLow: d.Relay.ActiveLow},
		Player:    device.ExecPlayer{Command: p.Command, Args: p.Args},
		SoundsDir: cfg.SoundsDir(),
		Fallback:  d.Sounds.Default,
		Limits:    deviceLimits(p),
	}
}

func deviceLimits(p config.Player) device.Options {
	return device.Options{MaxPlay: p.MaxPlay, MaxAlarm: p.MaxAlarm}
}

func remoteOptions(cfg *config.Config) remote.Options {
	return remote.Options{
		Owners:      cfg.Telegram.OwnerUserIDs,
		AlertChat:   cfg.Telegram.AlertChatID(),
		AlertThread: cfg.Logging.Telegram.ThreadID,
	}
}

// watchdogGrace is how stale the last tick may be before the watchdog ping
// is withheld.
func watchdogGrace(tick time.Duration) time.Duration {
	return 3*tick + 5*time.Second
}
