// Package jobs runs background maintenance on cron or interval schedules
// (sound rescans, audit pruning). Each run gets its own timeout and a run
// that is still going when the next is due is skipped.
package jobs
