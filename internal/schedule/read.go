package schedule

import "fmt"

// Entries returns a copy of the entries in stored order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.doc.Entries...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doc.Entries)
}

func (s *Store) SuppressWeekends() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.SuppressWeekends
}

// Revision increases with every change to the document.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Unsaved reports whether the document changed since the last save or load.
func (s *Store) Unsaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsaved
}

// View runs fn with the live document and its revision while holding the
// store lock. fn must not retain the document or call back into the store.
func (s *Store) View(fn func(doc Document, revision uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc, s.revision)
}

// FormattedSummary returns one display line per entry, in time order.
// Sorting is applied to the stored document as a side effect.
func (s *Store) FormattedSummary() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sortEntries(s.doc.Entries) {
		s.revision++
	}
	if len(s.doc.Entries) == 0 {
		return []string{"No bells defined"}
	}
	out := make([]string, 0, len(s.doc.Entries))
	for i, e := range s.doc.Entries {
		status := "✅ Active "
		if !e.Active {
			status = "❌ Inactive"
		}
		out = append(out, fmt.Sprintf("%s Bell %d: %s", status, i+1, e.Time))
	}
	return out
}
