package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "schoolbell/pkg/logx"
)

var ErrNoSound = errors.New("device: no sound file")

var soundExts = map[string]bool{".mp3": true, ".wav": true, ".ogg": true, ".flac": true}

// Library maps each Sound to a file in the sounds directory. A file whose
// name starts with "1" is the bell, "2" the pre-bell and "0" the alarm; the
// first match in name order wins. Sounds without a match use the fallback.
type Library struct {
	dir      string
	fallback string
	log      logx.Logger

	mu    sync.RWMutex
	files map[Sound]string
}

func NewLibrary(dir, fallback string, log logx.Logger) *Library {
	return &Library{dir: dir, fallback: fallback, log: log, files: map[Sound]string{}}
}

func (l *Library) Dir() string { return l.dir }

// Rescan re-reads the directory. It reports whether any mapping changed.
// A missing directory is not an error; every sound falls back.
func (l *Library) Rescan() (bool, error) {
	found := map[Sound]string{}
	ents, err := os.ReadDir(l.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("device: scan %s: %w", l.dir, err)
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || !soundExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, s := range sounds {
		for _, n := range names {
			if strings.HasPrefix(n, s.prefix()) {
				found[s] = filepath.Join(l.dir, n)
				break
			}
		}
	}

	l.mu.Lock()
	changed := len(found) != len(l.files)
	for s, p := range found {
		if l.files[s] != p {
			changed = true
		}
	}
	l.files = found
	l.mu.Unlock()

	if changed {
		fields := []logx.Field{logx.String("dir", l.dir)}
		for _, s := range sounds {
			fields = append(fields, logx.String(s.String(), filepath.Base(found[s])))
		}
		l.log.Info("sound files updated", fields...)
	}
	return changed, nil
}

// Path returns the file for s, or the fallback when none was found.
func (l *Library) Path(s Sound) (string, error) {
	l.mu.RLock()
	p, ok := l.files[s]
	l.mu.RUnlock()
	if ok {
		return p, nil
	}
	if l.fallback != "" {
		if _, err := os.Stat(l.fallback); err == nil {
			return l.fallback, nil
		}
	}
	return "", fmt.Errorf("%w for %s in %s", ErrNoSound, s, l.dir)
}

// Files returns the current mapping, without fallbacks.
func (l *Library) Files() map[Sound]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[Sound]string, len(l.files))
	for s, p := range l.files {
		out[s] = p
	}
	return out
}
