package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "schoolbell/pkg/logx"
)

// Func is one run of a job.
type Func func(ctx context.Context) error

type job struct {
	name    string
	spec    Spec
	timeout time.Duration
	fn      Func
	entryID cron.EntryID

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
	lastDur time.Duration
}

type Service struct {
	log    logx.Logger
	parser cron.Parser

	mu   sync.Mutex
	loc  *time.Location
	c    *cron.Cron
	jobs []*job
	// runCtx is canceled by Stop so in-flight runs end early.
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(loc *time.Location, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		log: log.With(logx.String("comp", "jobs")),
		loc: loc,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add registers (or replaces, by name) a job. Jobs added before Start are
// registered when Start runs.
func (s *Service) Add(name, schedule string, timeout time.Duration, fn Func) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if fn == nil {
		return errors.New("job func required")
	}
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	if _, err := s.parser.Parse(spec.Expr()); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	j := &job{name: name, spec: spec, timeout: timeout, fn: fn}
	s.jobs = append(s.jobs, j)
	if s.c != nil {
		if err := s.registerLocked(j); err != nil {
			return err
		}
	}
	s.log.Debug("job registered", logx.String("name", name), logx.String("spec", spec.Expr()), logx.Duration("timeout", timeout))
	return nil
}

// Remove unregisters a job by name.
func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

func (s *Service) removeLocked(name string) {
	for i, j := range s.jobs {
		if j.name != name {
			continue
		}
		if s.c != nil && j.entryID != 0 {
			s.c.Remove(j.entryID)
		}
		s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
		return
	}
}

func (s *Service) registerLocked(j *job) error {
	id, err := s.c.AddFunc(j.spec.Expr(), func() { s.run(j) })
	if err != nil {
		s.log.Error("job register failed", logx.String("name", j.name), logx.String("spec", j.spec.Expr()), logx.Err(err))
		return err
	}
	j.entryID = id
	return nil
}

func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{log: s.log})),
	)
	for _, j := range s.jobs {
		_ = s.registerLocked(j)
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Stop halts triggering, cancels running jobs and waits for them until ctx
// ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	cronDone := c.Stop().Done()
	if cancel != nil {
		cancel()
	}
	select {
	case <-cronDone:
	case <-ctx.Done():
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("service stopped")
	case <-ctx.Done():
		s.log.Warn("service stop timed out with jobs still running")
	}
}

// RunNow triggers a job immediately, outside its schedule.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	var target *job
	for _, j := range s.jobs {
		if j.name == name {
			target = j
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("job %q not found", name)
	}
	s.run(target)
	return nil
}

func (s *Service) run(j *job) {
	if !j.running.CompareAndSwap(false, true) {
		j.skipped.Add(1)
		s.log.Debug("job still running; skipped", logx.String("name", j.name))
		return
	}
	defer j.running.Store(false)

	s.mu.Lock()
	parent := s.runCtx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	s.wg.Add(1)
	defer s.wg.Done()

	ctx := parent
	cancel := context.CancelFunc(func() {})
	if j.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, j.timeout)
	}
	defer cancel()

	start := time.Now()
	err := j.fn(ctx)
	took := time.Since(start)
	j.runs.Add(1)

	j.mu.Lock()
	j.lastRun = start
	j.lastErr = err
	j.lastDur = took
	j.mu.Unlock()

	if err != nil {
		s.log.Warn("job failed", logx.String("name", j.name), logx.Duration("took", took), logx.Err(err))
		return
	}
	s.log.Trace("job done", logx.String("name", j.name), logx.Duration("took", took))
}

// Info describes one job for display.
type Info struct {
	Name    string
	Spec    string
	Next    time.Time
	LastRun time.Time
	LastErr error
	Took    time.Duration
	Runs    uint64
	Skipped uint64
}

func (s *Service) Snapshot() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.jobs))
	for _, j := range s.jobs {
		info := Info{Name: j.name, Spec: j.spec.Expr(), Runs: j.runs.Load(), Skipped: j.skipped.Load()}
		if s.c != nil && j.entryID != 0 {
			info.Next = s.c.Entry(j.entryID).Next
		}
		j.mu.Lock()
		info.LastRun, info.LastErr, info.Took = j.lastRun, j.lastErr, j.lastDur
		j.mu.Unlock()
		out = append(out, info)
	}
	return out
}

// cronLogger adapts logx to cron's logger for panic recovery reports.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", keysAndValues))
}
