package config

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"schoolbell/internal/fswatch"
	logx "schoolbell/pkg/logx"
)

const validateTimeout = 5 * time.Second

// snapshot is a committed config together with its content hash.
type snapshot struct {
	cfg  *Config
	hash uint64
}

// ConfigManager owns the config file: it loads it, watches it and fans out
// accepted revisions to subscribers.
type ConfigManager struct {
	path string
	cur  atomic.Pointer[snapshot]

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error

	mu   sync.Mutex
	subs map[chan *Config]struct{}
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, subs: map[chan *Config]struct{}{}}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs an extra check run on every reload after Validate.
// A rejected config is logged and never published.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and decodes the file without validating or committing it.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return decode(m.path, b)
}

// Load parses and validates the file and commits the result.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.commit(cfg, hashConfig(cfg))
	return cfg, nil
}

// Get returns the last committed config, or nil before Load.
func (m *ConfigManager) Get() *Config {
	if s := m.cur.Load(); s != nil {
		return s.cfg
	}
	return nil
}

func (m *ConfigManager) commit(cfg *Config, hash uint64) {
	m.cur.Store(&snapshot{cfg: cfg, hash: hash})
}

// Subscribe returns a channel receiving every published config and a func
// that detaches and closes it. A subscriber that falls behind only loses
// older revisions.
func (m *ConfigManager) Subscribe(buffer int) (<-chan *Config, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Config, buffer)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, ch)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *ConfigManager) publish(cfg *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		for {
			select {
			case ch <- cfg:
			default:
				select {
				case <-ch:
					continue
				default:
				}
			}
			break
		}
	}
}

// reload re-reads the file and publishes it when its content changed and it
// passes validation. It reports whether a new config was published.
func (m *ConfigManager) reload(ctx context.Context) bool {
	log := m.log.With(logx.String("path", m.path))

	cfg, err := m.Parse()
	if err != nil {
		log.Warn("config parse failed", logx.Err(err))
		return false
	}
	h := hashConfig(cfg)
	if prev := m.cur.Load(); prev != nil && prev.hash == h {
		log.Debug("config content unchanged")
		return false
	}
	if err := m.check(ctx, cfg); err != nil {
		log.Warn("config rejected", logx.Err(err))
		return false
	}

	m.commit(cfg, h)
	m.publish(cfg)
	log.Debug("config published", logx.String("hash", strconv.FormatUint(h, 16)))
	return true
}

func (m *ConfigManager) check(ctx context.Context, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.validator == nil {
		return nil
	}
	vctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	return m.validator(vctx, cfg)
}

// Watch reloads the config whenever the file changes until ctx ends.
func (m *ConfigManager) Watch(ctx context.Context) error {
	return fswatch.Watch(ctx, m.path, fswatch.Options{Log: m.log}, func() {
		m.reload(ctx)
	})
}

// hashConfig fingerprints the decoded config, so formatting-only edits and
// repeated editor writes do not count as changes.
func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
