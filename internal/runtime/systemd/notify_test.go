package systemd

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "schoolbell/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(state string) (bool, error) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func TestNotifierStates(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	n := &Notifier{log: logx.Nop(), notify: rec.notify}
	n.Ready()
	n.Status("next bell at 08:00")
	n.Stopping()
	if rec.count("READY=1") != 1 || rec.count("STATUS=next bell at 08:00") != 1 || rec.count("STOPPING=1") != 1 {
		t.Fatalf("states = %v", rec.states)
	}
}

func TestRunWatchdogWithholdsWhenStalled(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	n := &Notifier{log: logx.Nop(), notify: rec.notify, interval: 5 * time.Millisecond}
	var mu sync.Mutex
	alive := true
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = n.RunWatchdog(ctx, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return alive
		})
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	alive = false
	mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	before := rec.count("WATCHDOG=1")
	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	if before == 0 {
		t.Fatalf("expected watchdog pings while alive")
	}
	if after := rec.count("WATCHDOG=1"); after != before {
		t.Fatalf("pings continued while stalled: %d -> %d", before, after)
	}
}

func TestRunWatchdogDisabledBlocksUntilDone(t *testing.T) {
	t.Parallel()

	n := &Notifier{log: logx.Nop(), notify: (&recorder{}).notify}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.RunWatchdog(ctx, nil); err != nil {
		t.Fatalf("err = %v", err)
	}
}
