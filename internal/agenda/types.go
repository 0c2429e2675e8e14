// Package agenda expands the bell schedule into timed actions for one
// calendar day and reports each action exactly once when it becomes due.
package agenda

import (
	"time"
)

// ActionKind is one atomic step of ringing a bell. The numeric order is
// the tie-break for actions sharing a timestamp.
type ActionKind int

const (
	AmpOn ActionKind = iota
	PlayPrebell
	PlayBell
	AmpOff
)

func (k ActionKind) String() string {
	switch k {
	case AmpOn:
		return "amp_on"
	case PlayPrebell:
		return "play_prebell"
	case PlayBell:
		return "play_bell"
	case AmpOff:
		return "amp_off"
	default:
		return "unknown"
	}
}

// Action is one scheduled step. Fired only ever goes from false to true.
type Action struct {
	Kind   ActionKind
	FireAt time.Time
	Fired  bool
	// EntryIndex is the position of the originating bell entry in the
	// document the agenda was built from.
	EntryIndex int
	BellAt     time.Time
}

// Agenda is the ordered action list for one date.
type Agenda struct {
	// Date is midnight of the day the agenda covers.
	Date       time.Time
	Revision   uint64
	Suppressed bool
	Actions    []Action
}

func (a Agenda) clone() Agenda {
	out := a
	out.Actions = append([]Action(nil), a.Actions...)
	return out
}

// Pending counts actions not yet fired.
func (a Agenda) Pending() int {
	n := 0
	for _, act := range a.Actions {
		if !act.Fired {
			n++
		}
	}
	return n
}

type Config struct {
	// AmpOnLead is how long before the first sound the amplifier is powered.
	AmpOnLead time.Duration
	// AmpOffTrail is how long after the bell the amplifier stays powered.
	AmpOffTrail time.Duration
	// StalenessWindow is the longest delay after which a due action still
	// fires. Older actions are dropped.
	StalenessWindow time.Duration
	// SuppressedDays are skipped entirely when weekend suppression is on.
	SuppressedDays []time.Weekday
	Location       *time.Location
}

func DefaultConfig() Config {
	return Config{
		AmpOnLead:       10 * time.Second,
		AmpOffTrail:     2 * time.Second,
		StalenessWindow: 60 * time.Second,
		SuppressedDays:  []time.Weekday{time.Saturday, time.Sunday},
		Location:        time.Local,
	}
}

func (c Config) normalized() Config {
	if c.AmpOnLead < 0 {
		c.AmpOnLead = 0
	}
	if c.AmpOffTrail < 0 {
		c.AmpOffTrail = 0
	}
	if c.StalenessWindow < 0 {
		c.StalenessWindow = 0
	}
	if c.SuppressedDays == nil {
		c.SuppressedDays = []time.Weekday{time.Saturday, time.Sunday}
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

func (c Config) suppresses(d time.Weekday) bool {
	for _, wd := range c.SuppressedDays {
		if wd == d {
			return true
		}
	}
	return false
}

// NextReason classifies a NextOccurrence.
type NextReason int

const (
	NextToday NextReason = iota
	NextLaterDay
	NextSuppressed
	NextNoActiveBells
)

// NextOccurrence describes the upcoming bell for display.
type NextOccurrence struct {
	Reason NextReason
	// At is the upcoming bell time; zero when Reason is NextSuppressed or
	// NextNoActiveBells.
	At      time.Time
	Message string
}

func (n NextOccurrence) String() string { return n.Message }

// Result is what one Poll observed.
type Result struct {
	// Fired lists each kind that fired in this poll once, in FireAt order.
	Fired []ActionKind
	// Actions are the fired actions themselves, in FireAt order.
	Actions []Action
	// Dropped are actions that became due too long ago to fire.
	Dropped []Action
	Next    NextOccurrence
	Rebuilt bool
}

// Stats are cumulative counters since the scheduler was created.
type Stats struct {
	Builds    uint64
	Fired     uint64
	Dropped   uint64
	LastBuild time.Time
	LastPoll  time.Time
}
