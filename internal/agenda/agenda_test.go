package agenda

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"schoolbell/internal/schedule"
	logx "schoolbell/pkg/logx"
)

var logxNop = logx.Nop()

type fakeSource struct {
	doc schedule.Document
	rev uint64
}

func (f *fakeSource) View(fn func(schedule.Document, uint64)) { fn(f.doc, f.rev) }

func (f *fakeSource) set(doc schedule.Document) {
	f.doc = doc
	f.rev++
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	return cfg
}

// 2026-03-02 is a Monday.
func at(day, hh, mm, ss int) time.Time {
	return time.Date(2026, time.March, day, hh, mm, ss, 0, time.UTC)
}

func doc(suppress bool, entries ...schedule.Entry) schedule.Document {
	return schedule.Document{Entries: entries, SuppressWeekends: suppress}
}

func bell(t string, lead float64) schedule.Entry {
	return schedule.Entry{Time: t, LeadMinutes: lead, Active: true}
}

func kinds(actions []Action) []ActionKind {
	out := make([]ActionKind, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Kind)
	}
	return out
}

func TestBuildScenario(t *testing.T) {
	t.Parallel()
	a := Build(doc(true, bell("07:30", 1)), at(2, 12, 0, 0), testConfig(), logxNop)
	want := []struct {
		kind ActionKind
		at   time.Time
	}{
		{AmpOn, at(2, 7, 28, 50)},
		{PlayPrebell, at(2, 7, 29, 0)},
		{PlayBell, at(2, 7, 30, 0)},
		{AmpOff, at(2, 7, 30, 2)},
	}
	if len(a.Actions) != len(want) {
		t.Fatalf("got %d actions, want %d", len(a.Actions), len(want))
	}
	for i, w := range want {
		got := a.Actions[i]
		if got.Kind != w.kind || !got.FireAt.Equal(w.at) || got.Fired {
			t.Fatalf("action %d = %v at %v (fired=%v), want %v at %v", i, got.Kind, got.FireAt, got.Fired, w.kind, w.at)
		}
		if !got.BellAt.Equal(at(2, 7, 30, 0)) || got.EntryIndex != 0 {
			t.Fatalf("action %d has bell %v index %d", i, got.BellAt, got.EntryIndex)
		}
	}
	if !a.Date.Equal(at(2, 0, 0, 0)) {
		t.Fatalf("agenda date = %v", a.Date)
	}
}

func TestBuildZeroLeadOmitsPrebell(t *testing.T) {
	t.Parallel()
	a := Build(doc(false, bell("08:00", 0), bell("09:00", 0)), at(2, 0, 0, 0), testConfig(), logxNop)
	for _, act := range a.Actions {
		if act.Kind == PlayPrebell {
			t.Fatalf("unexpected pre-bell: %+v", act)
		}
	}
	if len(a.Actions) != 6 {
		t.Fatalf("got %d actions, want 6", len(a.Actions))
	}
	if !a.Actions[0].FireAt.Equal(at(2, 7, 59, 50)) {
		t.Fatalf("amp on without pre-bell at %v", a.Actions[0].FireAt)
	}
}

func TestBuildSkipsInactiveAndMalformed(t *testing.T) {
	t.Parallel()
	inactive := bell("10:00", 1)
	inactive.Active = false
	d := doc(false, bell("nonsense", 1), inactive, bell("11:00", 0))
	a := Build(d, at(2, 0, 0, 0), testConfig(), logxNop)
	if got := kinds(a.Actions); !reflect.DeepEqual(got, []ActionKind{AmpOn, PlayBell, AmpOff}) {
		t.Fatalf("kinds = %v", got)
	}
	if a.Actions[0].EntryIndex != 2 {
		t.Fatalf("entry index = %d, want 2", a.Actions[0].EntryIndex)
	}
}

func TestBuildTieBreak(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.AmpOnLead = 0
	cfg.AmpOffTrail = 0
	a := Build(doc(false, bell("12:00", 0)), at(2, 0, 0, 0), cfg, logxNop)
	if got := kinds(a.Actions); !reflect.DeepEqual(got, []ActionKind{AmpOn, PlayBell, AmpOff}) {
		t.Fatalf("kinds = %v", got)
	}

	// A pre-bell of one bell coinciding with another bell.
	a = Build(doc(false, bell("12:00", 0), bell("12:01", 1)), at(2, 0, 0, 0), cfg, logxNop)
	want := []ActionKind{AmpOn, AmpOn, PlayPrebell, PlayBell, AmpOff, PlayBell, AmpOff}
	if got := kinds(a.Actions); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
}

func TestBuildWeekendSuppression(t *testing.T) {
	t.Parallel()
	a := Build(doc(true, bell("07:30", 1)), at(7, 9, 0, 0), testConfig(), logxNop)
	if !a.Suppressed || len(a.Actions) != 0 {
		t.Fatalf("Saturday agenda = %+v", a)
	}
	a = Build(doc(false, bell("07:30", 1)), at(7, 9, 0, 0), testConfig(), logxNop)
	if a.Suppressed || len(a.Actions) != 4 {
		t.Fatalf("Saturday agenda without suppression = %+v", a)
	}
}

func TestPollFiresEachActionOnce(t *testing.T) {
	t.Parallel()
	src := &fakeSource{doc: doc(true, bell("07:30", 1))}
	s := New(src, testConfig(), logxNop)

	got := map[ActionKind]int{}
	for _, now := range []time.Time{
		at(2, 7, 28, 50), at(2, 7, 28, 50),
		at(2, 7, 29, 0), at(2, 7, 29, 0),
		at(2, 7, 30, 0), at(2, 7, 30, 0),
		at(2, 7, 30, 2), at(2, 7, 30, 2),
		at(2, 7, 31, 0),
	} {
		res := s.Poll(now)
		for _, k := range res.Fired {
			got[k]++
		}
		if len(res.Dropped) != 0 {
			t.Fatalf("unexpected drop at %v: %+v", now, res.Dropped)
		}
	}
	want := map[ActionKind]int{AmpOn: 1, PlayPrebell: 1, PlayBell: 1, AmpOff: 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("fired counts = %v, want %v", got, want)
	}
	if st := s.Stats(); st.Builds != 1 || st.Fired != 4 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestPollReportsInFireAtOrder(t *testing.T) {
	t.Parallel()
	src := &fakeSource{doc: doc(false, bell("07:30", 1))}
	s := New(src, testConfig(), logxNop)
	s.Poll(at(2, 7, 0, 0))

	res := s.Poll(at(2, 7, 29, 30))
	if !reflect.DeepEqual(res.Fired, []ActionKind{AmpOn, PlayPrebell}) {
		t.Fatalf("fired = %v", res.Fired)
	}
	res = s.Poll(at(2, 7, 30, 5))
	if !reflect.DeepEqual(res.Fired, []ActionKind{PlayBell, AmpOff}) {
		t.Fatalf("fired = %v", res.Fired)
	}
}

func TestPollDedupsKinds(t *testing.T) {
	t.Parallel()
	src := &fakeSource{doc: doc(false, bell("07:30", 0), bell("07:30", 0))}
	s := New(src, testConfig(), logxNop)
	res := s.Poll(at(2, 7, 30, 3))
	if !reflect.DeepEqual(res.Fired, []ActionKind{AmpOn, PlayBell, AmpOff}) {
		t.Fatalf("fired = %v", res.Fired)
	}
	if len(res.Actions) != 6 {
		t.Fatalf("fired actions = %d, want 6", len(res.Actions))
	}
}

func TestPollDropsStaleActions(t *testing.T) {
	t.Parallel()
	src := &fakeSource{doc: doc(false, bell("07:30", 1))}
	s := New(src, testConfig(), logxNop)
	s.Poll(at(2, 7, 0, 0))

	res := s.Poll(at(2, 8, 0, 0))
	if len(res.Fired) != 0 {
		t.Fatalf("stale actions fired: %v", res.Fired)
	}
	if len(res.Dropped) != 4 {
		t.Fatalf("dropped = %d, want 4", len(res.Dropped))
	}
	res = s.Poll(at(2, 8, 0, 1))
	if len(res.Fired) != 0 || len(res.Dropped) != 0 {
		t.Fatalf("dropped actions came back: %+v", res)
	}
	if st := s.Stats(); st.Dropped != 4 || st.Fired != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestPollWithinWindowStillFires(t *testing.T) {
	t.Parallel()
	src := &fakeSource{doc: doc(false, bell("07:30", 0))}
	s := New(src, testConfig(), logxNop)
	res := s.Poll(at(2, 7, 30, 59))
	// AmpOn was due at 07:29:50, 69s ago.
	if !reflect.DeepEqual(res.Fired, []ActionKind{PlayBell, AmpOff}) {
		t.Fatalf("fired = %v", res.Fired)
	}
	if got := kinds(res.Dropped); !reflect.DeepEqual(got, []ActionKind{AmpOn}) {
		t.Fatalf("dropped = %v", got)
	}
}

func TestPollRolloverRebuildsOnce(t *testing.T) {
	t.Parallel()
	src := &fakeSource{doc: doc(false, bell("07:30", 1))}
	s := New(src, testConfig(), logxNop)

	if res := s.Poll(at(2, 23, 59, 59)); !res.Rebuilt {
		t.Fatal("first poll did not build")
	}
	res := s.Poll(at(3, 0, 0, 1))
	if !res.Rebuilt {
		t.Fatal("rollover poll did not rebuild")
	}
	if s.Stats().Builds != 2 {
		t.Fatalf("builds = %d, want 2", s.Stats().Builds)
	}
	if res := s.Poll(at(3, 0, 0, 2)); res.Rebuilt {
		t.Fatal("second poll on the new day rebuilt again")
	}
	a, ok := s.Agenda()
	if !ok || !a.Date.Equal(at(3, 0, 0, 0)) || a.Pending() != 4 {
		t.Fatalf("agenda after rollover = %+v", a)
	}
}

func TestPollLiveEditDoesNotRefire(t *testing.T) {
	t.Parallel()
	src := &fakeSource{doc: doc(false, bell("07:30", 1))}
	s := New(src, testConfig(), logxNop)

	var fired []ActionKind
	for _, now := range []time.Time{at(2, 7, 28, 55), at(2, 7, 29, 30), at(2, 7, 30, 1)} {
		fired = append(fired, s.Poll(now).Fired...)
	}
	if !reflect.DeepEqual(fired, []ActionKind{AmpOn, PlayPrebell, PlayBell}) {
		t.Fatalf("fired = %v", fired)
	}

	src.set(doc(false, bell("07:30", 2), bell("07:45", 0)))
	res := s.Poll(at(2, 7, 30, 3))
	if !res.Rebuilt {
		t.Fatal("edit did not trigger a rebuild")
	}
	if !reflect.DeepEqual(res.Fired, []ActionKind{AmpOff}) {
		t.Fatalf("fired after edit = %v, want only amp_off", res.Fired)
	}
	if len(res.Dropped) != 0 {
		t.Fatalf("handled actions reported as dropped: %+v", res.Dropped)
	}
	if res.Next.Message != "Next bell at 07:45" {
		t.Fatalf("next = %q", res.Next.Message)
	}
}

func TestPollLiveAddFiresDueActions(t *testing.T) {
	t.Parallel()
	src := &fakeSource{doc: doc(false)}
	s := New(src, testConfig(), logxNop)
	s.Poll(at(2, 7, 29, 29))

	src.set(doc(false, bell("07:30", 1)))
	res := s.Poll(at(2, 7, 29, 31))
	// AmpOn is 41s late and the pre-bell 31s late, both inside the window.
	if !reflect.DeepEqual(res.Fired, []ActionKind{AmpOn, PlayPrebell}) {
		t.Fatalf("fired = %v", res.Fired)
	}
	if len(res.Dropped) != 0 {
		t.Fatalf("dropped = %+v", res.Dropped)
	}
}

func TestPollLiveAddDropsStaleActions(t *testing.T) {
	t.Parallel()
	src := &fakeSource{doc: doc(false, bell("12:00", 0))}
	s := New(src, testConfig(), logxNop)
	s.Poll(at(2, 9, 0, 0))

	src.set(doc(false, bell("08:00", 0), bell("12:00", 0)))
	res := s.Poll(at(2, 9, 0, 1))
	if len(res.Fired) != 0 {
		t.Fatalf("fired = %v", res.Fired)
	}
	if got := kinds(res.Dropped); !reflect.DeepEqual(got, []ActionKind{AmpOn, PlayBell, AmpOff}) {
		t.Fatalf("dropped = %v", got)
	}
	if res := s.Poll(at(2, 9, 0, 2)); len(res.Dropped) != 0 {
		t.Fatalf("dropped twice: %+v", res.Dropped)
	}
}

func TestBuildSpillsAcrossMidnight(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.AmpOffTrail = 90 * time.Second
	a := Build(doc(false, bell("00:00", 1), bell("23:59", 0)), at(2, 12, 0, 0), cfg, logxNop)

	var early []time.Time
	lateOff := false
	for _, act := range a.Actions {
		if act.FireAt.Before(at(2, 0, 0, 0)) || !act.FireAt.Before(at(3, 0, 0, 0)) {
			t.Fatalf("action %v at %v outside the day", act.Kind, act.FireAt)
		}
		switch act.Kind {
		case AmpOn, PlayPrebell:
			early = append(early, act.FireAt)
		case AmpOff:
			if act.BellAt.Equal(at(1, 23, 59, 0)) && act.FireAt.Equal(at(2, 0, 0, 30)) {
				lateOff = true
			}
		}
	}
	// Today's 23:59 bell, then tomorrow's 00:00 bell.
	want := []time.Time{at(2, 23, 58, 50), at(2, 23, 58, 50), at(2, 23, 59, 0)}
	if !reflect.DeepEqual(early, want) {
		t.Fatalf("amp-on/pre-bell times = %v, want %v", early, want)
	}
	if !lateOff {
		t.Fatal("yesterday's 23:59 bell does not switch the amplifier off today")
	}
}

func TestPollMidnightBellFiresEveryStep(t *testing.T) {
	t.Parallel()
	src := &fakeSource{doc: doc(false, bell("00:00", 1))}
	s := New(src, testConfig(), logxNop)
	s.Poll(at(2, 23, 58, 0))

	var fired []ActionKind
	dropped := 0
	for now := at(2, 23, 58, 3); !now.After(at(3, 0, 0, 4)); now = now.Add(3 * time.Second) {
		res := s.Poll(now)
		fired = append(fired, res.Fired...)
		dropped += len(res.Dropped)
	}
	if !reflect.DeepEqual(fired, []ActionKind{AmpOn, PlayPrebell, PlayBell, AmpOff}) {
		t.Fatalf("fired = %v", fired)
	}
	if dropped != 0 {
		t.Fatalf("dropped = %d", dropped)
	}
}

func TestApplyRebuildsWithNewTiming(t *testing.T) {
	t.Parallel()
	src := &fakeSource{doc: doc(false, bell("07:30", 0))}
	s := New(src, testConfig(), logxNop)
	s.Poll(at(2, 7, 0, 0))

	cfg := testConfig()
	cfg.AmpOnLead = 30 * time.Second
	s.Apply(cfg)
	res := s.Poll(at(2, 7, 29, 31))
	if !res.Rebuilt || !reflect.DeepEqual(res.Fired, []ActionKind{AmpOn}) {
		t.Fatalf("after Apply: rebuilt=%v fired=%v", res.Rebuilt, res.Fired)
	}
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()
	weekday := doc(true, bell("07:30", 1), bell("12:00", 0))
	inactive := bell("09:00", 0)
	inactive.Active = false

	tests := []struct {
		name   string
		doc    schedule.Document
		now    time.Time
		reason NextReason
		msg    string
	}{
		{name: "later today", doc: weekday, now: at(2, 8, 0, 0), reason: NextToday, msg: "Next bell at 12:00"},
		{name: "tomorrow", doc: weekday, now: at(2, 13, 0, 0), reason: NextLaterDay, msg: "Next bell tomorrow at 07:30"},
		{name: "after friday", doc: weekday, now: at(6, 13, 0, 0), reason: NextLaterDay, msg: "Next bell on Monday at 07:30"},
		{name: "saturday", doc: weekday, now: at(7, 6, 0, 0), reason: NextSuppressed, msg: "No bells on weekends"},
		{name: "no active bells", doc: doc(false, inactive), now: at(2, 6, 0, 0), reason: NextNoActiveBells, msg: "No active bells"},
		{name: "empty", doc: doc(false), now: at(2, 6, 0, 0), reason: NextNoActiveBells, msg: "No active bells"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New(&fakeSource{doc: tt.doc}, testConfig(), logxNop)
			res := s.Poll(tt.now)
			if res.Next.Reason != tt.reason || res.Next.String() != tt.msg {
				t.Fatalf("next = %+v, want %v %q", res.Next, tt.reason, tt.msg)
			}
		})
	}
}

func TestSchedulerWithStore(t *testing.T) {
	t.Parallel()
	store := schedule.NewStore(schedule.Options{Path: filepath.Join(t.TempDir(), "schedule.json"), DefaultLead: 1})
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	store.SetSuppressWeekends(false)
	if err := store.AddEntry(); err != nil {
		t.Fatal(err)
	}
	s := New(store, testConfig(), logxNop)

	// 00:00 with a one minute lead falls on the previous day, so only the
	// bell itself and the amp off remain.
	res := s.Poll(at(2, 0, 0, 1))
	if !reflect.DeepEqual(res.Fired, []ActionKind{PlayBell}) {
		t.Fatalf("fired = %v", res.Fired)
	}

	time07 := "07:00"
	if err := store.MutateEntry(0, schedule.Mutation{Time: &time07}); err != nil {
		t.Fatal(err)
	}
	res = s.Poll(at(2, 6, 58, 55))
	if !res.Rebuilt || !reflect.DeepEqual(res.Fired, []ActionKind{AmpOn}) {
		t.Fatalf("after edit: rebuilt=%v fired=%v", res.Rebuilt, res.Fired)
	}
	if err := store.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
