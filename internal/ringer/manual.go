package ringer

import (
	"context"

	"schoolbell/internal/device"
	"schoolbell/internal/eventbus"
	"schoolbell/internal/storage"
	logx "schoolbell/pkg/logx"
)

// Ring plays a sound on operator request and records it as manual.
func (r *Ringer) Ring(ctx context.Context, s device.Sound, actor string) error {
	err := r.driver.Play(ctx, s)
	r.recordManual(ctx, "manual_"+s.String(), actor, err)
	if err != nil {
		return err
	}
	r.log.Info("manual sound started", logx.String("sound", s.String()), logx.String("actor", actor))
	return nil
}

// Silence stops playback, including an alarm, and switches the amplifier off.
func (r *Ringer) Silence(ctx context.Context, actor string) error {
	err := r.driver.Stop(ctx)
	r.recordManual(ctx, "manual_stop", actor, err)
	if err != nil {
		return err
	}
	r.log.Info("playback stopped", logx.String("actor", actor))
	return nil
}

func (r *Ringer) recordManual(ctx context.Context, kind, actor string, err error) {
	data := eventbus.RingData{Kind: kind}
	if err != nil {
		data.Err = err.Error()
	}
	r.publish(eventbus.RingFired, data)
	if r.audit == nil {
		return
	}
	rec := storage.NewRingRecord(kind, storage.OutcomeManual)
	rec.Actor, rec.Error = actor, data.Err
	actx, cancel := context.WithTimeout(ctx, auditTimeout)
	defer cancel()
	if aerr := r.audit.AppendRing(actx, rec); aerr != nil {
		r.log.Warn("audit append failed", logx.String("kind", kind), logx.Err(aerr))
	}
}
