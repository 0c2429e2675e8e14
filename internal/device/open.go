package device

import (
	"fmt"

	logx "schoolbell/pkg/logx"
)

// Config gathers everything needed to assemble a Device.
type Config struct {
	Relay     RelayOptions
	Player    ExecPlayer
	SoundsDir string
	Fallback  string
	Limits    Options
}

// Open builds the relay, scans the sounds directory once and returns the
// assembled Device.
func Open(cfg Config, log logx.Logger) (*Device, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	relay, err := OpenRelay(cfg.Relay, log)
	if err != nil {
		return nil, err
	}
	lib := NewLibrary(cfg.SoundsDir, cfg.Fallback, log.With(logx.String("comp", "sounds")))
	if _, err := lib.Rescan(); err != nil {
		log.Warn("initial sound scan failed", logx.Err(err))
	}
	if cfg.Player.Command == "" {
		_ = relay.Close()
		return nil, fmt.Errorf("device: player command is empty")
	}
	return New(relay, cfg.Player, lib, cfg.Limits, log), nil
}
