package config

import (
	"fmt"
	"strings"
	"time"

	logx "schoolbell/pkg/logx"
)

// Ringer is RingerConfig with defaults applied and values parsed.
type Ringer struct {
	Tick            time.Duration
	AmpOnLead       time.Duration
	AmpOffTrail     time.Duration
	StalenessWindow time.Duration
	SuppressedDays  []time.Weekday
	Location        *time.Location
}

func (c *Config) ResolveRinger() (Ringer, error) {
	var out Ringer
	var err error
	r := c.Ringer
	if out.Tick, err = Duration("ringer.tick", r.Tick, DefaultTick); err != nil {
		return Ringer{}, err
	}
	if out.AmpOnLead, err = Duration("ringer.amp_on_lead", r.AmpOnLead, DefaultAmpOnLead); err != nil {
		return Ringer{}, err
	}
	if out.AmpOffTrail, err = Duration("ringer.amp_off_trail", r.AmpOffTrail, DefaultAmpOffTrail); err != nil {
		return Ringer{}, err
	}
	if out.StalenessWindow, err = Duration("ringer.staleness_window", r.StalenessWindow, DefaultStaleness); err != nil {
		return Ringer{}, err
	}

	days := r.SuppressedDays
	if days == nil {
		days = []string{"saturday", "sunday"}
	}
	for i, raw := range days {
		wd, err := ParseWeekday(raw)
		if err != nil {
			return Ringer{}, fmt.Errorf("ringer.suppressed_days[%d]: %w", i, err)
		}
		out.SuppressedDays = append(out.SuppressedDays, wd)
	}

	out.Location = time.Local
	if tz := strings.TrimSpace(r.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Ringer{}, fmt.Errorf("ringer.timezone: %w", err)
		}
		out.Location = loc
	}
	return out, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func ParseWeekday(raw string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", raw)
	}
	return wd, nil
}

// Player is PlayerConfig with defaults applied.
type Player struct {
	Command  string
	Args     []string
	MaxPlay  time.Duration
	MaxAlarm time.Duration
}

func (c *Config) ResolvePlayer() (Player, error) {
	p := c.Device.Player
	out := Player{Command: strings.TrimSpace(p.Command), Args: p.Args}
	if out.Command == "" {
		out.Command = DefaultPlayerCommand
		if out.Args == nil {
			out.Args = []string{"-q"}
		}
	}
	var err error
	if out.MaxPlay, err = Duration("device.player.max_play", p.MaxPlay, DefaultMaxPlay); err != nil {
		return Player{}, err
	}
	if out.MaxAlarm, err = Duration("device.player.max_alarm", p.MaxAlarm, DefaultMaxAlarm); err != nil {
		return Player{}, err
	}
	return out, nil
}

func (c *Config) SchedulePath() string {
	if p := strings.TrimSpace(c.Schedule.Path); p != "" {
		return p
	}
	return DefaultSchedulePath
}

func (c *Config) MaxEntries() int {
	if c.Schedule.MaxEntries > 0 {
		return c.Schedule.MaxEntries
	}
	return DefaultMaxEntries
}

func (c *Config) DefaultLead() float64 {
	if c.Schedule.DefaultLead != nil {
		return *c.Schedule.DefaultLead
	}
	return DefaultLeadMinutes
}

func (c *Config) SoundsDir() string {
	if d := strings.TrimSpace(c.Device.Sounds.Dir); d != "" {
		return d
	}
	return DefaultSoundsDir
}

// Jobs is JobsConfig with defaults applied.
type Jobs struct {
	Enabled        bool
	SoundRescan    string
	AuditPrune     string
	AuditRetention time.Duration
}

func (c *Config) ResolveJobs() (Jobs, error) {
	j := c.Jobs
	out := Jobs{
		Enabled:     j.IsEnabled(),
		SoundRescan: strings.TrimSpace(j.SoundRescan),
		AuditPrune:  strings.TrimSpace(j.AuditPrune),
	}
	if out.SoundRescan == "" {
		out.SoundRescan = DefaultSoundRescan
	}
	if out.AuditPrune == "" {
		out.AuditPrune = DefaultAuditPrune
	}
	var err error
	if out.AuditRetention, err = Duration("jobs.audit_retention", j.AuditRetention, DefaultAuditRetention); err != nil {
		return Jobs{}, err
	}
	return out, nil
}

// Storage is the audit log section resolved. An empty Driver means the
// audit log is off.
type Storage struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

func (c *Config) ResolveStorage() (Storage, error) {
	st := c.Storage
	if st == nil {
		return Storage{}, nil
	}
	out := Storage{
		Driver: strings.ToLower(strings.TrimSpace(st.Driver)),
		Path:   strings.TrimSpace(st.Path),
	}
	switch out.Driver {
	case "", "none":
		return Storage{}, nil
	case "file":
		return out, nil
	case "sqlite":
	default:
		return Storage{}, fmt.Errorf("storage.driver: unknown driver %q", st.Driver)
	}
	if out.Path == "" {
		return Storage{}, fmt.Errorf("storage.path is required for the sqlite driver")
	}
	var err error
	if out.BusyTimeout, err = Duration("storage.busy_timeout", st.BusyTimeout, DefaultBusyTimeout); err != nil {
		return Storage{}, err
	}
	return out, nil
}

func (c *Config) TelegramPollTimeout() (time.Duration, error) {
	return Duration("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultTelegramTimeout)
}

// Validate checks every section that needs parsing. It is used at startup
// and as the hot-reload gate.
func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if lv := strings.TrimSpace(c.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	if lv := strings.TrimSpace(c.Logging.Telegram.MinLevel); lv != "" && !logx.ValidLevel(lv) {
		return fmt.Errorf("logging.telegram.min_level: unknown level %q", c.Logging.Telegram.MinLevel)
	}
	if _, err := c.ResolveRinger(); err != nil {
		return err
	}
	if _, err := c.ResolvePlayer(); err != nil {
		return err
	}
	if _, err := c.ResolveJobs(); err != nil {
		return err
	}
	if _, err := c.TelegramPollTimeout(); err != nil {
		return err
	}
	if c.Schedule.MaxEntries < 0 {
		return fmt.Errorf("schedule.max_entries must be >= 0")
	}
	if c.Schedule.DefaultLead != nil && *c.Schedule.DefaultLead < 0 {
		return fmt.Errorf("schedule.default_lead_minutes must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Device.Relay.Driver)) {
	case "", "log":
	case "gpio":
		if strings.TrimSpace(c.Device.Relay.Pin) == "" {
			return fmt.Errorf("device.relay.pin is required for the gpio driver")
		}
	default:
		return fmt.Errorf("device.relay.driver: unknown driver %q", c.Device.Relay.Driver)
	}
	if _, err := c.ResolveStorage(); err != nil {
		return err
	}
	if c.Telegram.Enabled() && len(c.Telegram.OwnerUserIDs) == 0 {
		return fmt.Errorf("telegram.owner_user_ids must not be empty when a token is set")
	}
	return nil
}
