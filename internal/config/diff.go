package config

import (
	"reflect"
	"sort"
	"strings"

	logx "schoolbell/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. The bot token is never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 20)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.path", newCfg.SchedulePath()),
			logx.Int("schedule.max_entries", newCfg.MaxEntries()),
			logx.Float64("schedule.default_lead", newCfg.DefaultLead()),
			logx.Bool("schedule.watch", newCfg.Schedule.Watch),
		)
	}

	if !reflect.DeepEqual(oldCfg.Ringer, newCfg.Ringer) {
		changed = append(changed, "ringer")
		r := newCfg.Ringer
		attrs = append(attrs,
			logx.String("ringer.tick", strings.TrimSpace(r.Tick)),
			logx.String("ringer.amp_on_lead", strings.TrimSpace(r.AmpOnLead)),
			logx.String("ringer.amp_off_trail", strings.TrimSpace(r.AmpOffTrail)),
			logx.String("ringer.staleness_window", strings.TrimSpace(r.StalenessWindow)),
			logx.Strs("ringer.suppressed_days", r.SuppressedDays),
			logx.String("ringer.timezone", strings.TrimSpace(r.Timezone)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Device, newCfg.Device) {
		changed = append(changed, "device")
		d := newCfg.Device
		attrs = append(attrs,
			logx.String("device.relay.driver", d.Relay.Driver),
			logx.String("device.relay.pin", d.Relay.Pin),
			logx.String("device.player.command", d.Player.Command),
			logx.String("device.sounds.dir", d.Sounds.Dir),
		)
	}

	if !reflect.DeepEqual(oldCfg.Jobs, newCfg.Jobs) {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Bool("jobs.enabled", newCfg.Jobs.IsEnabled()),
			logx.String("jobs.sound_rescan", newCfg.Jobs.SoundRescan),
			logx.String("jobs.audit_prune", newCfg.Jobs.AuditPrune),
		)
	}

	// Nil storage means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if s := oldCfg.Storage; s != nil {
		oDriver = strings.TrimSpace(s.Driver)
		oBusy = strings.TrimSpace(s.BusyTimeout)
		oPathSet = strings.TrimSpace(s.Path) != ""
	}
	if s := newCfg.Storage; s != nil {
		nDriver = strings.TrimSpace(s.Driver)
		nBusy = strings.TrimSpace(s.BusyTimeout)
		nPathSet = strings.TrimSpace(s.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// Never log the token itself.
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		ot.LogChatID != nt.LogChatID ||
		strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.log_chat_set", nt.LogChatID != 0),
			logx.Bool("telegram.token_set", nt.Enabled()),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
