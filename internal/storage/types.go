package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type Outcome string

const (
	OutcomeFired   Outcome = "fired"
	OutcomeDropped Outcome = "dropped"
	OutcomeFailed  Outcome = "failed"
	// OutcomeManual marks sounds started by an operator.
	OutcomeManual Outcome = "manual"
)

// RingRecord is one audit entry. Keep it compact and schema-stable.
type RingRecord struct {
	ID     string        `json:"id"`
	At     time.Time     `json:"at"`
	FireAt time.Time     `json:"fire_at,omitempty"`
	BellAt time.Time     `json:"bell_at,omitempty"`
	Kind   string        `json:"kind"`
	Result Outcome       `json:"outcome"`
	Lag    time.Duration `json:"lag_ns,omitempty"`
	Actor  string        `json:"actor,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// NewRingRecord stamps a record with a fresh ID and the current time.
func NewRingRecord(kind string, outcome Outcome) RingRecord {
	return RingRecord{ID: uuid.NewString(), At: time.Now(), Kind: kind, Result: outcome}
}

// Store is the audit log API.
type Store interface {
	AppendRing(ctx context.Context, r RingRecord) error
	// RecentRings returns up to limit records, newest first.
	RecentRings(ctx context.Context, limit int) ([]RingRecord, error)
	// PruneRings deletes records older than before and reports how many.
	PruneRings(ctx context.Context, before time.Time) (int, error)
	Close() error
}

func fillDefaults(r *RingRecord) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
}
