package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "schoolbell/pkg/logx"
)

// fileStore keeps the audit log in <prefix>.rings.jsonl. Appends go to the
// open file; reads and prunes scan it from the start.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
	f  *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	ringsPath := prefix + ".rings.jsonl"
	f, err := os.OpenFile(ringsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: ringsPath, f: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendRing(ctx context.Context, r RingRecord) error {
	_ = ctx
	fillDefaults(&r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.f).Encode(r)
}

func (s *fileStore) RecentRings(ctx context.Context, limit int) ([]RingRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, ErrClosed
	}

	// Keep the last limit records in a ring buffer.
	buf := make([]RingRecord, 0, limit)
	next := 0
	err := s.scanLocked(ctx, func(r RingRecord) {
		if len(buf) < limit {
			buf = append(buf, r)
			return
		}
		buf[next] = r
		next = (next + 1) % limit
	})
	if err != nil {
		return nil, err
	}

	out := make([]RingRecord, 0, len(buf))
	for i := 0; i < len(buf); i++ {
		idx := (next - 1 - i + 2*len(buf)) % len(buf)
		out = append(out, buf[idx])
	}
	return out, nil
}

func (s *fileStore) PruneRings(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, ErrClosed
	}

	tmp := s.path + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(tf)
	removed := 0
	var werr error
	err = s.scanLocked(ctx, func(r RingRecord) {
		if werr != nil {
			return
		}
		if r.At.Before(before) {
			removed++
			return
		}
		werr = enc.Encode(r)
	})
	if err == nil {
		err = werr
	}
	if cerr := tf.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if removed == 0 {
		_ = os.Remove(tmp)
		return 0, nil
	}

	if err := s.f.Close(); err != nil {
		s.log.Debug("closing audit file before prune failed", logx.Err(err))
	}
	s.f = nil
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return 0, s.reopenLocked(err)
	}
	return removed, s.reopenLocked(nil)
}

func (s *fileStore) reopenLocked(cause error) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Join(cause, err)
	}
	s.f = f
	return cause
}

// scanLocked calls fn for every decodable record in file order. Lines that
// fail to decode (e.g. a torn final write) are skipped.
func (s *fileStore) scanLocked(ctx context.Context, fn func(RingRecord)) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var r RingRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		fn(r)
	}
	return sc.Err()
}
