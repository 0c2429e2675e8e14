package app

import (
	"context"
	"fmt"
	"time"

	logx "schoolbell/pkg/logx"
)

// Stop shuts everything down in order: tick loop and console first, then
// the amplifier and playback, then the final schedule save and the ring log.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources(ctx)
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()
	a.sup.Cancel()

	a.step(ctx, "jobs", 2*time.Second, func(c context.Context) error {
		if a.jobs != nil {
			a.jobs.Stop(c)
		}
		return nil
	})
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.closeResources(ctx)

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) closeResources(ctx context.Context) {
	a.step(ctx, "device", 2*time.Second, func(c context.Context) error {
		if a.dev != nil {
			return a.dev.Close(c)
		}
		return nil
	})
	a.step(ctx, "schedule", 3*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close(c)
		}
		return nil
	})
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.audit != nil {
			return a.audit.Close()
		}
		return nil
	})
}

// step runs one shutdown step with an upper bound so a stuck component
// cannot stall the rest.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}
