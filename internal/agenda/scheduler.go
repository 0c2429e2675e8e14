package agenda

import (
	"sync"
	"time"

	"schoolbell/internal/schedule"
	logx "schoolbell/pkg/logx"
)

// Source is the schedule the agenda is built from. *schedule.Store
// implements it; View must hold the source's mutation lock while fn runs.
type Source interface {
	View(fn func(doc schedule.Document, revision uint64))
}

// Scheduler owns the current agenda. Poll may be called at any cadence,
// including after long gaps; every action is either fired or dropped
// exactly once.
type Scheduler struct {
	src Source
	log logx.Logger

	mu       sync.Mutex
	cfg      Config
	agenda   Agenda
	built    bool
	force    bool
	lastPoll time.Time
	stats    Stats
}

func New(src Source, cfg Config, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		src: src,
		cfg: cfg.normalized(),
		log: log.With(logx.String("comp", "agenda")),
	}
}

// Apply replaces the timing parameters. The agenda is rebuilt on the next
// poll; actions already handled stay handled.
func (s *Scheduler) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.normalized()
	s.force = true
	s.mu.Unlock()
}

func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Agenda returns a copy of the current agenda. ok is false before the
// first poll.
func (s *Scheduler) Agenda() (a Agenda, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.built {
		return Agenda{}, false
	}
	return s.agenda.clone(), true
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Poll rebuilds the agenda if the day rolled over or the schedule changed,
// then fires every pending action that is due. Actions due longer ago than
// the staleness window are marked fired but reported as dropped.
func (s *Scheduler) Poll(now time.Time) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.In(s.cfg.Location)
	var res Result
	s.src.View(func(doc schedule.Document, revision uint64) {
		if !s.built || s.force || revision != s.agenda.Revision || !sameDay(now, s.agenda.Date) {
			s.rebuildLocked(doc, revision, now)
			res.Rebuilt = true
		}
		s.fireLocked(now, &res)
		res.Next = nextOccurrence(s.agenda, doc, s.cfg, now)
	})
	s.lastPoll = now
	s.stats.LastPoll = now
	return res
}

func (s *Scheduler) rebuildLocked(doc schedule.Document, revision uint64, now time.Time) {
	prev := s.agenda
	had := s.built

	a := Build(doc, now, s.cfg, s.log)
	a.Revision = revision

	carried := 0
	if had {
		carried = carryFired(prev, &a)
		// The clock stepped back into a day that was already lived through.
		if a.Date.Before(prev.Date) {
			for i := range a.Actions {
				if !a.Actions[i].Fired && !a.Actions[i].FireAt.After(s.lastPoll) {
					a.Actions[i].Fired = true
					carried++
				}
			}
		}
	}

	s.agenda = a
	s.built = true
	s.force = false
	s.stats.Builds++
	s.stats.LastBuild = now

	fields := []logx.Field{
		logx.String("date", a.Date.Format("2006-01-02")),
		logx.Uint64("revision", revision),
		logx.Int("actions", len(a.Actions)),
		logx.Bool("suppressed", a.Suppressed),
	}
	if carried > 0 {
		fields = append(fields, logx.Int("already_handled", carried))
	}
	if had && !sameDay(prev.Date, a.Date) {
		s.log.Info("agenda rolled over", fields...)
	} else {
		s.log.Debug("agenda rebuilt", fields...)
	}
}

func (s *Scheduler) fireLocked(now time.Time, res *Result) {
	seen := map[ActionKind]bool{}
	for i := range s.agenda.Actions {
		act := &s.agenda.Actions[i]
		if act.Fired || act.FireAt.After(now) {
			continue
		}
		act.Fired = true
		lag := now.Sub(act.FireAt)
		if lag > s.cfg.StalenessWindow {
			s.stats.Dropped++
			res.Dropped = append(res.Dropped, *act)
			s.log.Warn("stale action dropped",
				logx.String("kind", act.Kind.String()),
				logx.Time("fire_at", act.FireAt),
				logx.Duration("lag", lag),
			)
			continue
		}
		s.stats.Fired++
		res.Actions = append(res.Actions, *act)
		if !seen[act.Kind] {
			seen[act.Kind] = true
			res.Fired = append(res.Fired, act.Kind)
		}
	}
}

type firedKey struct {
	kind ActionKind
	at   int64
}

// carryFired marks actions of next that prev already handled. An action is
// the same one when its kind and either its fire time or its bell time
// match, so retimed amp-on or pre-bell steps of a bell that already rang do
// not fire twice. Everything else goes through the normal due check.
func carryFired(prev Agenda, next *Agenda) int {
	byFire := map[firedKey]bool{}
	byBell := map[firedKey]bool{}
	for _, act := range prev.Actions {
		if act.Fired {
			byFire[firedKey{act.Kind, act.FireAt.UnixNano()}] = true
			byBell[firedKey{act.Kind, act.BellAt.UnixNano()}] = true
		}
	}
	n := 0
	for i := range next.Actions {
		act := &next.Actions[i]
		if byFire[firedKey{act.Kind, act.FireAt.UnixNano()}] || byBell[firedKey{act.Kind, act.BellAt.UnixNano()}] {
			act.Fired = true
			n++
		}
	}
	return n
}
