// Package ringer drives the hardware from the daily agenda. Every tick it
// polls the scheduler, hands each fired action to the device driver in order
// and records the outcome in the audit log and on the event bus.
package ringer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"schoolbell/internal/agenda"
	"schoolbell/internal/device"
	"schoolbell/internal/eventbus"
	"schoolbell/internal/storage"
	logx "schoolbell/pkg/logx"
)

const (
	DefaultTick     = time.Second
	dispatchTimeout = 5 * time.Second
	auditTimeout    = 2 * time.Second
)

// Poller is satisfied by *agenda.Scheduler.
type Poller interface {
	Poll(now time.Time) agenda.Result
}

type Options struct {
	Tick  time.Duration
	Now   func() time.Time
	Audit storage.Store // optional
	Bus   eventbus.Bus  // optional
	// Status receives the next-bell message whenever it changes.
	Status func(string)
	Log    logx.Logger
}

type Ringer struct {
	poller Poller
	driver device.Driver
	audit  storage.Store
	bus    eventbus.Bus
	status func(string)
	now    func() time.Time
	log    logx.Logger

	tick     atomic.Int64
	retick   chan struct{}
	lastTick atomic.Int64

	mu   sync.Mutex
	next agenda.NextOccurrence
}

func New(p Poller, drv device.Driver, opt Options) *Ringer {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	r := &Ringer{
		poller: p,
		driver: drv,
		audit:  opt.Audit,
		bus:    opt.Bus,
		status: opt.Status,
		now:    opt.Now,
		log:    opt.Log.With(logx.String("comp", "ringer")),
		retick: make(chan struct{}, 1),
	}
	r.SetTick(opt.Tick)
	return r
}

// SetTick changes the poll interval of a running loop.
func (r *Ringer) SetTick(d time.Duration) {
	if d <= 0 {
		d = DefaultTick
	}
	if time.Duration(r.tick.Swap(int64(d))) == d {
		return
	}
	select {
	case r.retick <- struct{}{}:
	default:
	}
}

// Run polls until ctx ends. The first poll happens immediately.
func (r *Ringer) Run(ctx context.Context) error {
	interval := time.Duration(r.tick.Load())
	t := time.NewTicker(interval)
	defer t.Stop()
	r.log.Info("tick loop started", logx.Duration("tick", interval))

	r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("tick loop stopped")
			return nil
		case <-r.retick:
			interval = time.Duration(r.tick.Load())
			t.Reset(interval)
			r.log.Info("tick interval changed", logx.Duration("tick", interval))
		case <-t.C:
			r.Tick(ctx)
		}
	}
}

// Alive reports whether a tick completed within maxAge.
func (r *Ringer) Alive(maxAge time.Duration) bool {
	last := r.lastTick.Load()
	return last != 0 && time.Since(time.Unix(0, last)) <= maxAge
}

// Next is the next-bell description from the latest poll.
func (r *Ringer) Next() agenda.NextOccurrence {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// Tick runs one poll and dispatches what fired.
func (r *Ringer) Tick(ctx context.Context) agenda.Result {
	now := r.now()
	res := r.poller.Poll(now)
	defer func() { r.lastTick.Store(time.Now().UnixNano()) }()

	if res.Rebuilt {
		r.publish(eventbus.AgendaRebuilt, nil)
	}
	for _, a := range res.Dropped {
		r.record(ctx, a, now, storage.OutcomeDropped, nil)
	}

	failed := make(map[agenda.ActionKind]error, len(res.Fired))
	for _, kind := range res.Fired {
		if err := r.dispatch(ctx, kind); err != nil {
			failed[kind] = err
		}
	}
	for _, a := range res.Actions {
		if err, ok := failed[a.Kind]; ok {
			r.record(ctx, a, now, storage.OutcomeFailed, err)
			continue
		}
		r.record(ctx, a, now, storage.OutcomeFired, nil)
	}

	r.mu.Lock()
	changed := res.Next.Message != r.next.Message
	r.next = res.Next
	r.mu.Unlock()
	if changed {
		r.log.Info("next bell", logx.String("next", res.Next.Message))
		if r.status != nil {
			r.status(res.Next.Message)
		}
	}
	return res
}

func (r *Ringer) dispatch(ctx context.Context, kind agenda.ActionKind) error {
	dctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	var err error
	switch kind {
	case agenda.AmpOn:
		err = r.driver.SetAmplifier(dctx, true)
	case agenda.PlayPrebell:
		err = r.driver.Play(dctx, device.Prebell)
	case agenda.PlayBell:
		err = r.driver.Play(dctx, device.Bell)
	case agenda.AmpOff:
		err = r.driver.SetAmplifier(dctx, false)
	default:
		err = errors.New("unknown action kind")
	}
	if errors.Is(err, device.ErrAlarmActive) {
		r.log.Info("action skipped during alarm", logx.String("kind", kind.String()))
		return err
	}
	if err != nil {
		r.log.Error("action failed", logx.String("kind", kind.String()), logx.Err(err))
		return err
	}
	r.log.Info("action fired", logx.String("kind", kind.String()))
	return nil
}

func (r *Ringer) record(ctx context.Context, a agenda.Action, now time.Time, outcome storage.Outcome, err error) {
	data := eventbus.RingData{Kind: a.Kind.String(), FireAt: a.FireAt, BellAt: a.BellAt, Lag: now.Sub(a.FireAt)}
	if err != nil {
		data.Err = err.Error()
	}
	switch outcome {
	case storage.OutcomeDropped:
		r.publish(eventbus.RingDropped, data)
	case storage.OutcomeFailed:
		r.publish(eventbus.RingFailed, data)
	default:
		r.publish(eventbus.RingFired, data)
	}

	if r.audit == nil {
		return
	}
	rec := storage.NewRingRecord(data.Kind, outcome)
	rec.FireAt, rec.BellAt, rec.Lag, rec.Error = a.FireAt, a.BellAt, data.Lag, data.Err
	actx, cancel := context.WithTimeout(ctx, auditTimeout)
	defer cancel()
	if aerr := r.audit.AppendRing(actx, rec); aerr != nil {
		r.log.Warn("audit append failed", logx.String("kind", data.Kind), logx.Err(aerr))
	}
}

func (r *Ringer) publish(typ string, data any) {
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
