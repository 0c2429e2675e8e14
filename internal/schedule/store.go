package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logx "schoolbell/pkg/logx"
)

const (
	DefaultMaxEntries  = 24
	DefaultLeadMinutes = 1.0
	defaultEntryTime   = "00:00"
)

type Options struct {
	Path string
	// MaxEntries caps the document. Zero selects DefaultMaxEntries.
	MaxEntries int
	// DefaultLead is the pre-bell lead given to new entries and to entries
	// whose stored lead is missing. Zero means no pre-bell.
	DefaultLead float64
	Log         logx.Logger
	// OnSave, if set, is called after every save attempt with its result.
	OnSave func(err error)
}

type Store struct {
	path        string
	max         int
	defaultLead float64
	log         logx.Logger
	onSave      func(error)

	mu       sync.Mutex
	doc      Document
	revision uint64
	unsaved  bool
	// lastHash is the hash of the file content last written or read.
	lastHash uint64

	// saveMu admits one writer at a time.
	saveMu sync.Mutex
	bg     sync.WaitGroup
}

func NewStore(opt Options) *Store {
	limit := opt.MaxEntries
	if limit <= 0 {
		limit = DefaultMaxEntries
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	lead := opt.DefaultLead
	if validLead(lead) != nil {
		lead = DefaultLeadMinutes
	}
	return &Store{
		path:        opt.Path,
		max:         limit,
		defaultLead: lead,
		log:         log.With(logx.String("comp", "schedule")),
		onSave:      opt.OnSave,
		doc:         Document{SuppressWeekends: true},
	}
}

func (s *Store) Path() string         { return s.path }
func (s *Store) MaxEntries() int      { return s.max }
func (s *Store) DefaultLead() float64 { return s.defaultLead }

// Load reads the document from disk. A missing file yields an empty
// document that is saved right away. Unreadable or corrupt content yields
// an empty document in memory and leaves the file alone until the next
// save; Load does not fail in that case.
func (s *Store) Load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.doc = Document{SuppressWeekends: true}
		s.revision++
		s.unsaved = true
		s.mu.Unlock()
		s.log.Info("schedule file missing; creating empty schedule", logx.String("path", s.path))
		return s.Save()
	}
	if err != nil {
		s.resetCorrupt(nil, err)
		return nil
	}

	doc, notes, err := decodeDocument(b, s.defaultLead, s.max)
	if err != nil {
		s.resetCorrupt(b, err)
		return nil
	}
	for _, n := range notes {
		s.log.Warn("schedule repaired on load", logx.String("path", s.path), logx.String("detail", n))
	}

	s.mu.Lock()
	s.doc = doc
	s.revision++
	s.unsaved = false
	s.lastHash = hashBytes(b)
	s.mu.Unlock()

	s.log.Info("schedule loaded",
		logx.String("path", s.path),
		logx.Int("bells", len(doc.Entries)),
		logx.Bool("suppress_weekends", doc.SuppressWeekends),
	)
	return nil
}

func (s *Store) resetCorrupt(content []byte, err error) {
	s.log.Error("schedule unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
	s.mu.Lock()
	s.doc = Document{SuppressWeekends: true}
	s.revision++
	s.unsaved = false
	s.lastHash = hashBytes(content)
	s.mu.Unlock()
}

// AddEntry appends a default entry (00:00, default lead, active) and saves
// in the background. The caller re-reads the entries to find its position.
func (s *Store) AddEntry() error {
	s.mu.Lock()
	if len(s.doc.Entries) >= s.max {
		s.mu.Unlock()
		return fmt.Errorf("%w: at most %d bells", ErrCapacityExceeded, s.max)
	}
	s.doc.Entries = append(s.doc.Entries, Entry{Time: defaultEntryTime, LeadMinutes: s.defaultLead, Active: true})
	sortEntries(s.doc.Entries)
	s.touchLocked()
	s.mu.Unlock()

	s.saveInBackground()
	return nil
}

// DeleteEntry removes the entry at i and saves in the background.
func (s *Store) DeleteEntry(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.doc.Entries) {
		n := len(s.doc.Entries)
		s.mu.Unlock()
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, n)
	}
	s.doc.Entries = append(s.doc.Entries[:i], s.doc.Entries[i+1:]...)
	sortEntries(s.doc.Entries)
	s.touchLocked()
	s.mu.Unlock()

	s.saveInBackground()
	return nil
}

// MutateEntry updates the fields set in m on entry i. All fields are
// validated before any is applied. The entry keeps its position and
// nothing is saved; callers batch edits and call Save when done.
func (s *Store) MutateEntry(i int, m Mutation) error {
	var normalized string
	if m.Time != nil {
		tod, err := ParseTimeOfDay(*m.Time)
		if err != nil {
			return err
		}
		normalized = tod.String()
	}
	if m.LeadMinutes != nil {
		if err := validLead(*m.LeadMinutes); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.doc.Entries) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, len(s.doc.Entries))
	}
	if m.IsZero() {
		return nil
	}
	e := &s.doc.Entries[i]
	if m.Time != nil {
		e.Time = normalized
	}
	if m.LeadMinutes != nil {
		e.LeadMinutes = *m.LeadMinutes
	}
	if m.Active != nil {
		e.Active = *m.Active
	}
	s.touchLocked()
	return nil
}

func (s *Store) SetSuppressWeekends(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.SuppressWeekends == v {
		return
	}
	s.doc.SuppressWeekends = v
	s.touchLocked()
}

func (s *Store) touchLocked() {
	s.revision++
	s.unsaved = true
}

// Save sorts the document and writes it atomically. Saves run one at a
// time; each writes the document as it was when it got its turn.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if sortEntries(s.doc.Entries) {
		s.revision++
	}
	snap := s.doc.Clone()
	rev := s.revision
	s.mu.Unlock()

	err := s.write(snap, rev)
	if err != nil {
		s.log.Error("schedule save failed", logx.String("path", s.path), logx.Err(err))
	} else {
		s.log.Debug("schedule saved", logx.String("path", s.path), logx.Int("bells", len(snap.Entries)))
	}
	if s.onSave != nil {
		s.onSave(err)
	}
	return err
}

func (s *Store) write(doc Document, rev uint64) error {
	b, err := encodeDocument(doc)
	if err != nil {
		return &IOError{Op: "encode", Path: s.path, Err: err}
	}
	if err := writeFileAtomic(s.path, b); err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	s.mu.Lock()
	s.lastHash = hashBytes(b)
	if s.revision == rev {
		s.unsaved = false
	}
	s.mu.Unlock()
	return nil
}

// SaveAsync saves on a separate goroutine and delivers the result on the
// returned channel, which is buffered so the result is never lost.
func (s *Store) SaveAsync() <-chan error {
	ch := make(chan error, 1)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ch <- s.Save()
	}()
	return ch
}

func (s *Store) saveInBackground() {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		_ = s.Save()
	}()
}

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Close waits for background saves and writes the document one last time.
func (s *Store) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Save()
}
