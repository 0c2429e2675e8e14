package agenda

import (
	"sort"
	"time"

	"schoolbell/internal/schedule"
	logx "schoolbell/pkg/logx"
)

// Build returns the actions firing on the calendar day of date, in
// cfg.Location. Bells near midnight contribute to the neighbouring day: a
// 00:00 bell's amp-on and pre-bell land on the previous day's agenda, and a
// late bell's amp-off on the next one. Entries with malformed times are
// logged and skipped.
func Build(doc schedule.Document, date time.Time, cfg Config, log logx.Logger) Agenda {
	cfg = cfg.normalized()
	day := midnight(date.In(cfg.Location))
	end := day.AddDate(0, 0, 1)
	a := Agenda{Date: day, Suppressed: doc.SuppressWeekends && cfg.suppresses(day.Weekday())}

	bells := activeBells(doc, log)
	if len(bells) == 0 {
		return a
	}
	back, ahead := spillDays(bells, cfg)
	for off := -back; off <= ahead; off++ {
		bellDay := day.AddDate(0, 0, off)
		if doc.SuppressWeekends && cfg.suppresses(bellDay.Weekday()) {
			continue
		}
		for _, b := range bells {
			for _, act := range b.actions(bellDay, cfg) {
				if !act.FireAt.Before(day) && act.FireAt.Before(end) {
					a.Actions = append(a.Actions, act)
				}
			}
		}
	}

	sort.SliceStable(a.Actions, func(x, y int) bool {
		ax, ay := a.Actions[x], a.Actions[y]
		if !ax.FireAt.Equal(ay.FireAt) {
			return ax.FireAt.Before(ay.FireAt)
		}
		return ax.Kind < ay.Kind
	})
	return a
}

type activeBell struct {
	index int
	tod   schedule.TimeOfDay
	lead  time.Duration
}

func activeBells(doc schedule.Document, log logx.Logger) []activeBell {
	var out []activeBell
	for i, e := range doc.Entries {
		if !e.Active {
			continue
		}
		tod, err := e.TimeOfDay()
		if err != nil {
			log.Warn("skipping bell with malformed time", logx.Int("bell", i+1), logx.String("time", e.Time), logx.Err(err))
			continue
		}
		out = append(out, activeBell{index: i, tod: tod, lead: e.Lead()})
	}
	return out
}

// actions expands the bell as rung on day. The pre-bell exists only for a
// positive lead; the amplifier is switched on ahead of the first sound.
func (b activeBell) actions(day time.Time, cfg Config) []Action {
	at := b.tod.On(day)
	first := at
	out := make([]Action, 0, 4)
	if b.lead > 0 {
		first = at.Add(-b.lead)
		out = append(out, Action{Kind: PlayPrebell, FireAt: first, EntryIndex: b.index, BellAt: at})
	}
	return append(out,
		Action{Kind: AmpOn, FireAt: first.Add(-cfg.AmpOnLead), EntryIndex: b.index, BellAt: at},
		Action{Kind: PlayBell, FireAt: at, EntryIndex: b.index, BellAt: at},
		Action{Kind: AmpOff, FireAt: at.Add(cfg.AmpOffTrail), EntryIndex: b.index, BellAt: at},
	)
}

// spillDays reports how many days before and after an agenda's date can
// hold bells whose actions fall on that date.
func spillDays(bells []activeBell, cfg Config) (back, ahead int) {
	var lead time.Duration
	for _, b := range bells {
		lead = max(lead, b.lead)
	}
	const day = 24 * time.Hour
	return 1 + int(cfg.AmpOffTrail/day), 1 + int((lead+cfg.AmpOnLead)/day)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
