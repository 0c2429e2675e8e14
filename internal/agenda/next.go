package agenda

import (
	"fmt"
	"time"

	"schoolbell/internal/schedule"
)

const lookaheadDays = 7

func nextOccurrence(a Agenda, doc schedule.Document, cfg Config, now time.Time) NextOccurrence {
	for _, act := range a.Actions {
		if act.Kind == PlayBell && !act.Fired && act.FireAt.After(now) {
			return NextOccurrence{
				Reason:  NextToday,
				At:      act.FireAt,
				Message: "Next bell at " + act.FireAt.Format("15:04"),
			}
		}
	}
	if a.Suppressed {
		return suppressedNext()
	}

	var earliest *schedule.TimeOfDay
	for _, e := range doc.Entries {
		if !e.Active {
			continue
		}
		tod, err := e.TimeOfDay()
		if err != nil {
			continue
		}
		if earliest == nil || tod.Minutes() < earliest.Minutes() {
			t := tod
			earliest = &t
		}
	}
	if earliest == nil {
		return NextOccurrence{Reason: NextNoActiveBells, Message: "No active bells"}
	}

	today := midnight(now)
	for d := 1; d <= lookaheadDays; d++ {
		day := today.AddDate(0, 0, d)
		if doc.SuppressWeekends && cfg.suppresses(day.Weekday()) {
			continue
		}
		at := earliest.On(day)
		msg := fmt.Sprintf("Next bell on %s at %s", day.Weekday(), at.Format("15:04"))
		if d == 1 {
			msg = "Next bell tomorrow at " + at.Format("15:04")
		}
		return NextOccurrence{Reason: NextLaterDay, At: at, Message: msg}
	}
	return suppressedNext()
}

func suppressedNext() NextOccurrence {
	return NextOccurrence{Reason: NextSuppressed, Message: "No bells on weekends"}
}
