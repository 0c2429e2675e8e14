package device

import (
	"fmt"
	"strings"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	logx "schoolbell/pkg/logx"
)

// Relay switches the amplifier power.
type Relay interface {
	Set(on bool) error
	On() bool
	Close() error
}

type RelayOptions struct {
	// Driver is "gpio" or "log". Empty means "log".
	Driver string
	// Pin is a periph pin name such as "GPIO25".
	Pin       string
	ActiveLow bool
}

func OpenRelay(opt RelayOptions, log logx.Logger) (Relay, error) {
	switch strings.ToLower(strings.TrimSpace(opt.Driver)) {
	case "", "log":
		return NewLogRelay(log), nil
	case "gpio":
		return NewGPIORelay(opt.Pin, opt.ActiveLow, log)
	default:
		return nil, fmt.Errorf("device: unknown relay driver %q", opt.Driver)
	}
}

// GPIORelay drives a relay board input through a GPIO output pin.
type GPIORelay struct {
	log       logx.Logger
	pin       gpio.PinIO
	activeLow bool

	mu sync.Mutex
	on bool
}

// NewGPIORelay initialises periph.io, resolves the pin by name and drives
// it to the "off" level.
func NewGPIORelay(name string, activeLow bool, log logx.Logger) (*GPIORelay, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("device: periph host init failed: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("device: gpio pin %q not found", name)
	}
	r := &GPIORelay{log: log, pin: p, activeLow: activeLow}
	if err := p.Out(r.level(false)); err != nil {
		return nil, fmt.Errorf("device: gpio %s: %w", name, err)
	}
	log.Info("amplifier relay ready", logx.String("pin", p.Name()), logx.Bool("active_low", activeLow))
	return r, nil
}

func (r *GPIORelay) level(on bool) gpio.Level {
	if on != r.activeLow {
		return gpio.High
	}
	return gpio.Low
}

func (r *GPIORelay) Set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pin.Out(r.level(on)); err != nil {
		return fmt.Errorf("device: gpio %s: %w", r.pin.Name(), err)
	}
	if r.on != on {
		r.log.Info("amplifier relay switched", logx.Bool("on", on))
	}
	r.on = on
	return nil
}

func (r *GPIORelay) On() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

// Close leaves the amplifier off. periph pins need no explicit release.
func (r *GPIORelay) Close() error { return r.Set(false) }

// LogRelay only records switches. It stands in for the relay off-device.
type LogRelay struct {
	log logx.Logger

	mu sync.Mutex
	on bool
}

func NewLogRelay(log logx.Logger) *LogRelay { return &LogRelay{log: log} }

func (r *LogRelay) Set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.on != on {
		r.log.Info("amplifier relay switched (no hardware)", logx.Bool("on", on))
	}
	r.on = on
	return nil
}

func (r *LogRelay) On() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

func (r *LogRelay) Close() error { return r.Set(false) }
