package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logx "schoolbell/pkg/logx"
)

// ErrAlarmActive is returned when a bell or pre-bell is requested while the
// alarm is sounding. The alarm is never interrupted by scheduled sounds.
var ErrAlarmActive = errors.New("device: alarm is active")

// Driver is what the ringer needs from the hardware.
type Driver interface {
	SetAmplifier(ctx context.Context, on bool) error
	Play(ctx context.Context, s Sound) error
	Stop(ctx context.Context) error
	IsPlaying() bool
}

const (
	DefaultMaxPlay  = 15 * time.Second
	DefaultMaxAlarm = 10 * time.Minute

	alarmRestartDelay = 200 * time.Millisecond
)

type Options struct {
	MaxPlay  time.Duration
	MaxAlarm time.Duration
}

// Device combines a relay, a player and a sound library.
type Device struct {
	relay   Relay
	player  Player
	library *Library
	log     logx.Logger

	mu       sync.Mutex
	maxPlay  time.Duration
	maxAlarm time.Duration
	playID   uint64
	current  *playback
}

type playback struct {
	id     uint64
	sound  Sound
	cancel context.CancelFunc
	done   chan struct{}
}

func New(relay Relay, player Player, library *Library, opt Options, log logx.Logger) *Device {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Device{
		relay:   relay,
		player:  player,
		library: library,
		log:     log.With(logx.String("comp", "device")),
	}
	d.Apply(opt)
	return d
}

// Apply updates the playback limits for sounds started afterwards.
func (d *Device) Apply(opt Options) {
	if opt.MaxPlay <= 0 {
		opt.MaxPlay = DefaultMaxPlay
	}
	if opt.MaxAlarm <= 0 {
		opt.MaxAlarm = DefaultMaxAlarm
	}
	d.mu.Lock()
	d.maxPlay = opt.MaxPlay
	d.maxAlarm = opt.MaxAlarm
	d.mu.Unlock()
}

func (d *Device) Library() *Library { return d.library }

// SetAmplifier switches the relay. Switching off is ignored while the
// alarm sounds.
func (d *Device) SetAmplifier(ctx context.Context, on bool) error {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	if !on && d.current != nil && d.current.sound == Alarm {
		d.log.Info("amplifier kept on while the alarm sounds")
		return nil
	}
	return d.relay.Set(on)
}

// Play stops whatever is playing, switches the amplifier on and starts s in
// the background. Bells and pre-bells are refused while the alarm sounds.
// When two calls race, the later one replaces the earlier sound as a
// sequential call would; Play returns nil only once s has started.
func (d *Device) Play(ctx context.Context, s Sound) error {
	path, err := d.library.Path(s)
	if err != nil {
		return err
	}

	for {
		d.mu.Lock()
		cur := d.current
		if cur != nil && cur.sound == Alarm && s != Alarm {
			d.mu.Unlock()
			return ErrAlarmActive
		}
		if cur == nil {
			err := d.startLocked(s, path)
			d.mu.Unlock()
			return err
		}
		d.current = nil
		d.mu.Unlock()

		if err := waitStopped(ctx, cur); err != nil {
			return err
		}
	}
}

func (d *Device) startLocked(s Sound, path string) error {
	if err := d.relay.Set(true); err != nil {
		return err
	}
	limit := d.maxPlay
	if s == Alarm {
		limit = d.maxAlarm
	}
	d.playID++
	pctx, cancel := context.WithTimeout(context.Background(), limit)
	pb := &playback{id: d.playID, sound: s, cancel: cancel, done: make(chan struct{})}
	d.current = pb
	go d.run(pctx, pb, path)

	d.log.Info("playback started", logx.String("sound", s.String()), logx.String("file", path), logx.Duration("limit", limit))
	return nil
}

func (d *Device) run(ctx context.Context, pb *playback, path string) {
	defer close(pb.done)
	defer pb.cancel()

loop:
	for {
		err := d.player.Play(ctx, path)
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				d.log.Info("playback time limit reached", logx.String("sound", pb.sound.String()))
			}
			break
		}
		if err != nil {
			d.log.Error("playback failed", logx.String("sound", pb.sound.String()), logx.Err(err))
			break
		}
		if pb.sound != Alarm {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case <-time.After(alarmRestartDelay):
		}
	}

	d.mu.Lock()
	if d.current != nil && d.current.id == pb.id {
		d.current = nil
	}
	d.mu.Unlock()
}

// Stop ends playback, including the alarm, and switches the amplifier off.
func (d *Device) Stop(ctx context.Context) error {
	d.mu.Lock()
	prev := d.current
	d.current = nil
	d.mu.Unlock()

	err := waitStopped(ctx, prev)
	if rerr := d.relay.Set(false); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

func waitStopped(ctx context.Context, pb *playback) error {
	if pb == nil {
		return nil
	}
	pb.cancel()
	select {
	case <-pb.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("device: waiting for %s to stop: %w", pb.sound, ctx.Err())
	}
}

func (d *Device) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil
}

// Status is a point-in-time view for display.
type Status struct {
	AmplifierOn bool
	Playing     bool
	Sound       Sound
}

func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := Status{AmplifierOn: d.relay.On()}
	if d.current != nil {
		st.Playing = true
		st.Sound = d.current.sound
	}
	return st
}

// Close stops playback and releases the relay with the amplifier off.
func (d *Device) Close(ctx context.Context) error {
	err := d.Stop(ctx)
	if cerr := d.relay.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
