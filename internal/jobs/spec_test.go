package jobs

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		kind    SpecKind
		expr    string
		every   time.Duration
		source  string
		wantErr bool
	}{
		{in: "*/5 * * * *", kind: SpecCron, expr: "*/5 * * * *", source: "cron"},
		{in: "cron: 0 3 * * *", kind: SpecCron, expr: "0 3 * * *", source: "cron"},
		{in: "@daily", kind: SpecCron, expr: "@daily", source: "cron"},
		{in: "10m", kind: SpecInterval, expr: "@every 10m0s", every: 10 * time.Minute, source: "duration"},
		{in: "interval:45s", kind: SpecInterval, expr: "@every 45s", every: 45 * time.Second, source: "duration"},
		{in: "every: 5s", kind: SpecInterval, expr: "@every 5s", every: 5 * time.Second, source: "duration"},
		{in: "01:30", kind: SpecInterval, expr: "@every 1h30m0s", every: 90 * time.Minute, source: "hhmm"},
		{in: "", wantErr: true},
		{in: "cron:", wantErr: true},
		{in: "0s", wantErr: true},
		{in: "00:75", wantErr: true},
		{in: "soon", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseSchedule(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseSchedule(%q): expected error, got %+v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tt.in, err)
		}
		if got.Kind != tt.kind || got.Expr() != tt.expr || got.Every != tt.every || got.Source != tt.source {
			t.Fatalf("ParseSchedule(%q) = %+v (expr %q)", tt.in, got, got.Expr())
		}
	}
}
