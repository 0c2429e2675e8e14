package app

import (
	"context"
	"slices"
	"strings"

	"schoolbell/internal/config"
	logx "schoolbell/pkg/logx"
)

// restartSections change wiring that is built once at startup.
var restartSections = []string{"storage", "schedule"}

func (a *App) reloadLoop(ctx context.Context) error {
	sub, unsubscribe := a.cfgm.Subscribe(8)
	defer unsubscribe()
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-sub:
			if !ok {
				return nil
			}
			// Only the newest pending config matters.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(last, cfg)
			last = cfg
		}
	}
}

// applyConfig pushes a validated config into the running components.
func (a *App) applyConfig(old, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(old, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if slices.Contains(restartSections, s) {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}
	if old.Telegram.Token != cfg.Telegram.Token || old.Telegram.PollTimeout != cfg.Telegram.PollTimeout {
		a.log.Warn("telegram token or poll timeout changed; restart required for it to take effect")
	}
	op, np := old.Device.Player, cfg.Device.Player
	if old.Device.Relay != cfg.Device.Relay || old.Device.Sounds != cfg.Device.Sounds ||
		op.Command != np.Command || !slices.Equal(op.Args, np.Args) {
		a.log.Warn("device relay, sounds or player command changed; restart required for it to take effect")
	}

	a.logs.Apply(logConfig(cfg))

	if rc, err := cfg.ResolveRinger(); err != nil {
		a.log.Warn("invalid ringer config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(agendaConfig(rc))
		a.ring.SetTick(rc.Tick)
		a.tick.Store(int64(rc.Tick))
	}

	if p, err := cfg.ResolvePlayer(); err != nil {
		a.log.Warn("invalid player config; keeping previous", logx.Err(err))
	} else {
		a.dev.Apply(deviceLimits(p))
	}

	if a.jobs != nil {
		if jc, err := cfg.ResolveJobs(); err != nil {
			a.log.Warn("invalid jobs config; keeping previous", logx.Err(err))
		} else if err := a.registerJobs(jc); err != nil {
			a.log.Warn("jobs update failed", logx.Err(err))
		}
	}

	if a.remote != nil {
		a.remote.SetOptions(remoteOptions(cfg))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
