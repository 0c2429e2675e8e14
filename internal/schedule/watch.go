package schedule

import (
	"context"
	"os"

	"schoolbell/internal/fswatch"
	logx "schoolbell/pkg/logx"
)

// Reload re-reads the file after an external edit. Memory stays the source
// of truth while it holds unsaved changes; content identical to what was
// last written or read is ignored. It reports whether the document changed.
func (s *Store) Reload() (bool, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return false, &IOError{Op: "read", Path: s.path, Err: err}
	}
	h := hashBytes(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsaved {
		s.log.Warn("schedule file changed on disk; keeping unsaved in-memory edits", logx.String("path", s.path))
		return false, nil
	}
	if h == s.lastHash {
		return false, nil
	}
	doc, notes, err := decodeDocument(b, s.defaultLead, s.max)
	if err != nil {
		return false, err
	}
	for _, n := range notes {
		s.log.Warn("schedule repaired on reload", logx.String("path", s.path), logx.String("detail", n))
	}
	s.doc = doc
	s.revision++
	s.lastHash = h
	s.log.Info("schedule reloaded from disk", logx.String("path", s.path), logx.Int("bells", len(doc.Entries)))
	return true, nil
}

// Watch reloads the document on external edits until ctx ends.
func (s *Store) Watch(ctx context.Context) error {
	return fswatch.Watch(ctx, s.path, fswatch.Options{Log: s.log}, func() {
		if _, err := s.Reload(); err != nil {
			s.log.Warn("schedule reload failed", logx.String("path", s.path), logx.Err(err))
		}
	})
}
