package schedule

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM" (a single-digit hour is allowed).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	raw := s
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return TimeOfDay{}, &ParseError{Value: raw, Reason: "expected HH:MM"}
	}
	if len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
		return TimeOfDay{}, &ParseError{Value: raw, Reason: "expected HH:MM"}
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, &ParseError{Value: raw, Reason: "hour must be 0-23"}
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, &ParseError{Value: raw, Reason: "minute must be 0-59"}
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// On returns the instant t on date's calendar day, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, t.Hour, t.Minute, 0, 0, date.Location())
}

// Entry is one configured bell. Time is kept as stored so a malformed value
// survives until the operator fixes it.
type Entry struct {
	Time        string
	LeadMinutes float64
	Active      bool
}

func (e Entry) TimeOfDay() (TimeOfDay, error) { return ParseTimeOfDay(e.Time) }

// Lead returns the pre-bell lead as a duration. Zero means no pre-bell.
func (e Entry) Lead() time.Duration {
	if e.LeadMinutes <= 0 {
		return 0
	}
	return time.Duration(e.LeadMinutes * float64(time.Minute))
}

// Mutation is a partial update; nil fields are left unchanged.
type Mutation struct {
	Time        *string
	LeadMinutes *float64
	Active      *bool
}

func (m Mutation) IsZero() bool {
	return m.Time == nil && m.LeadMinutes == nil && m.Active == nil
}

func validLead(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: lead must be a non-negative number, got %v", ErrInvalidEntry, v)
	}
	return nil
}

// sortEntries orders entries by time of day. Malformed times go last and
// keep their relative order. It reports whether the order changed.
func sortEntries(entries []Entry) bool {
	keys := make([]int, len(entries))
	for i, e := range entries {
		if tod, err := e.TimeOfDay(); err == nil {
			keys[i] = tod.Minutes()
		} else {
			keys[i] = math.MaxInt
		}
	}
	if sort.IntsAreSorted(keys) {
		return false
	}
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })
	sorted := make([]Entry, len(entries))
	for i, j := range idx {
		sorted[i] = entries[j]
	}
	copy(entries, sorted)
	return true
}
