// Package systemd reports service state to systemd through sd_notify.
// Outside a systemd unit every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "schoolbell/pkg/logx"
)

// Notifier sends readiness, status and watchdog messages.
type Notifier struct {
	log      logx.Logger
	notify   func(state string) (bool, error)
	interval time.Duration
}

func NewNotifier(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{
		log:    log.With(logx.String("comp", "systemd")),
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
	if d, err := daemon.SdWatchdogEnabled(false); err == nil && d > 0 {
		n.interval = d / 2
	}
	return n
}

// WatchdogInterval is how often Watchdog should be called. Zero means the
// unit has no watchdog.
func (n *Notifier) WatchdogInterval() time.Duration { return n.interval }

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Trace("sd_notify", logx.String("state", state))
	}
}

func (n *Notifier) Ready()             { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping()          { n.send(daemon.SdNotifyStopping) }
func (n *Notifier) Watchdog()          { n.send(daemon.SdNotifyWatchdog) }
func (n *Notifier) Status(text string) { n.send("STATUS=" + text) }

// RunWatchdog pings on the watchdog interval while alive reports true.
// A stalled tick loop therefore lets systemd restart the service.
func (n *Notifier) RunWatchdog(ctx context.Context, alive func() bool) error {
	if n.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(n.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if alive == nil || alive() {
				n.Watchdog()
			} else {
				n.log.Warn("watchdog ping withheld: tick loop stalled")
			}
		}
	}
}
