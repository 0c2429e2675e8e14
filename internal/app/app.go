package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"schoolbell/internal/agenda"
	"schoolbell/internal/config"
	"schoolbell/internal/device"
	"schoolbell/internal/eventbus"
	"schoolbell/internal/jobs"
	"schoolbell/internal/remote"
	"schoolbell/internal/ringer"
	rtsup "schoolbell/internal/runtime/supervisor"
	"schoolbell/internal/runtime/systemd"
	"schoolbell/internal/schedule"
	"schoolbell/internal/storage"
	"schoolbell/internal/transport/telegram"
	logx "schoolbell/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	audit  storage.Store
	store  *schedule.Store
	sched  *agenda.Scheduler
	dev    *device.Device
	ring   *ringer.Ringer
	jobs   *jobs.Service
	tg     *telegram.Adapter
	remote *remote.Console
	sd     *systemd.Notifier

	tick      atomic.Int64
	retention atomic.Int64
}

// New loads the configuration and assembles every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logConfig(cfg))
	a := &App{cfgm: cfgm, logs: logs, log: log.With(logx.String("comp", "app")), bus: eventbus.New()}
	ok := false
	defer func() {
		if !ok {
			a.closeResources(context.Background())
			_ = logs.Close()
		}
	}()

	sc, err := cfg.ResolveStorage()
	if err != nil {
		return nil, err
	}
	if sc.Driver != "" {
		a.audit, err = storage.Open(storage.Config{Driver: sc.Driver, Path: sc.Path, BusyTimeout: sc.BusyTimeout}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.log.Info("ring log enabled", logx.String("driver", sc.Driver))
	}

	a.store = schedule.NewStore(schedule.Options{
		Path:        cfg.SchedulePath(),
		MaxEntries:  cfg.MaxEntries(),
		DefaultLead: cfg.DefaultLead(),
		Log:         log,
		OnSave:      a.onScheduleSave,
	})
	if err := a.store.Load(); err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	rc, err := cfg.ResolveRinger()
	if err != nil {
		return nil, err
	}
	a.sched = agenda.New(a.store, agendaConfig(rc), log.With(logx.String("comp", "agenda")))
	a.tick.Store(int64(rc.Tick))

	player, err := cfg.ResolvePlayer()
	if err != nil {
		return nil, err
	}
	if a.dev, err = device.Open(deviceConfig(cfg, player), log.With(logx.String("comp", "device"))); err != nil {
		return nil, err
	}

	a.sd = systemd.NewNotifier(log)
	a.ring = ringer.New(a.sched, a.dev, ringer.Options{
		Tick:   rc.Tick,
		Audit:  a.audit,
		Bus:    a.bus,
		Status: a.sd.Status,
		Log:    log,
	})

	jc, err := cfg.ResolveJobs()
	if err != nil {
		return nil, err
	}
	if jc.Enabled {
		a.jobs = jobs.New(rc.Location, log)
		if err := a.registerJobs(jc); err != nil {
			return nil, err
		}
	}

	if cfg.Telegram.Enabled() {
		timeout, err := cfg.TelegramPollTimeout()
		if err != nil {
			return nil, err
		}
		if a.tg, err = telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: timeout}, log); err != nil {
			return nil, err
		}
		logs.SetSender(a.tg)
		deps := remote.Deps{
			Store:  a.store,
			Agenda: a.sched,
			Bells:  a.ring,
			Device: a.dev,
			Audit:  a.audit,
			Bus:    a.bus,
		}
		if a.jobs != nil {
			deps.Jobs = a.jobs
		}
		a.remote = remote.New(a.tg, deps, remoteOptions(cfg), log)
	}

	ok = true
	return a, nil
}

func (a *App) onScheduleSave(err error) {
	if err != nil {
		a.bus.Publish(eventbus.Event{Type: eventbus.ScheduleSaveFail, Data: err})
		return
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.ScheduleSaved})
}

func (a *App) registerJobs(jc config.Jobs) error {
	a.retention.Store(int64(jc.AuditRetention))
	lib := a.dev.Library()
	if err := a.jobs.Add("sounds.rescan", jc.SoundRescan, 10*time.Second, func(context.Context) error {
		changed, err := lib.Rescan()
		if changed {
			a.log.Info("sound files changed", logx.String("dir", lib.Dir()))
		}
		return err
	}); err != nil {
		return err
	}
	if a.audit == nil {
		a.jobs.Remove("audit.prune")
		return nil
	}
	return a.jobs.Add("audit.prune", jc.AuditPrune, time.Minute, func(ctx context.Context) error {
		before := time.Now().Add(-time.Duration(a.retention.Load()))
		n, err := a.audit.PruneRings(ctx, before)
		if err != nil {
			return err
		}
		if n > 0 {
			a.log.Info("ring log pruned", logx.Int("removed", n), logx.Time("before", before))
		}
		return nil
	})
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateReload)

	a.sup.GoRestart("ringer", a.ring.Run, rtsup.WithRestartBackoff(100*time.Millisecond, 5*time.Second))
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return a.sd.RunWatchdog(c, func() bool {
			return a.ring.Alive(watchdogGrace(time.Duration(a.tick.Load())))
		})
	})

	if a.cfgm.Get().Schedule.Watch {
		a.sup.GoRestart("schedule.watch", a.store.Watch)
	}
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.Go("eventbus.log", a.logEvents)

	if a.jobs != nil {
		a.jobs.Start(a.sup.Context())
	}
	if a.remote != nil {
		a.sup.GoRestart("remote", a.remote.Run, rtsup.WithRestartBackoff(time.Second, time.Minute))
	}

	a.sd.Ready()
	a.log.Info("app started",
		logx.String("schedule", a.store.Path()),
		logx.Int("bells", a.store.Len()),
		logx.Bool("remote", a.remote != nil),
	)
	return nil
}

// validateReload rejects reloads that cannot take effect without losing
// state.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	if n := a.store.Len(); cfg.MaxEntries() < n {
		return fmt.Errorf("schedule.max_entries=%d is below the %d bells already defined", cfg.MaxEntries(), n)
	}
	return nil
}

func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}
