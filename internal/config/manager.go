package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "digestbot/pkg/logx"
)

const (
	debounceWindow  = 250 * time.Millisecond
	validateTimeout = 5 * time.Second

	watchBackoffFloor = 250 * time.Millisecond
	watchBackoffCeil  = 5 * time.Second
)

// Manager owns the committed configuration and, in daemon mode, the file
// watch that revalidates and republishes it on change.
type Manager struct {
	path string

	mu       sync.RWMutex
	current  *Config
	lastHash uint64

	// subMu also serializes publish against Unsubscribe's close.
	subMu sync.Mutex
	subs  []chan *Config

	log      logx.Logger
	validate func(ctx context.Context, cfg *Config) error
}

// NewManager creates a manager for path. An empty path is legal: Parse
// then builds the config purely from defaults and environment, which is
// how one-shot CI runs operate.
func NewManager(path string) *Manager { return &Manager{path: path} }

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator gates Watch commits: a reload that fails the hook is
// dropped and the previously committed config stays in effect.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validate = fn
}

// Parse reads the file (when a path is set), overlays environment
// variables, and fills defaults. It does not commit.
func (m *Manager) Parse() (*Config, error) {
	cfg := &Config{}
	if m.path != "" {
		var err error
		if cfg, err = decodeFile(m.path); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	cfg.applyDefaults()
	return cfg, nil
}

// decodeFile decodes JSON or YAML strictly: unknown fields and trailing
// data are errors in either format.
func decodeFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, err := asJSON(path, raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	switch err := dec.Decode(&struct{}{}); err {
	case io.EOF:
		return &cfg, nil
	case nil:
		return nil, fmt.Errorf("invalid config: trailing data")
	default:
		return nil, err
	}
}

// Commit makes cfg the current configuration.
func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.current = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

// Load is Parse followed by Commit.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// Subscribe returns a channel that receives validated reloads. The
// channel belongs to the manager; release it with Unsubscribe.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subMu.Lock()
	m.subs = append(m.subs, ch)
	m.subMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, have := range m.subs {
		if have != ch {
			continue
		}
		m.subs = append(m.subs[:i], m.subs[i+1:]...)
		close(ch)
		return
	}
}

// publish hands cfg to every subscriber. A full buffer loses its oldest
// entry first, so even a slow subscriber sees the newest config.
func (m *Manager) publish(cfg *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped (subscriber slow)",
				logx.Int("queue_cap", cap(ch)))
		}
	}
}

// Watch blocks until ctx is done, reloading the file on change events.
// Reloads are debounced (editors fire bursts of partial writes), deduped
// by content hash, and gated by the validator before commit and publish.
// A broken watcher is rebuilt with jittered backoff.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		return nil
	}
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	backoff := watchBackoffFloor
	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		switch {
		case err != nil:
			m.log.Warn("config watch setup failed", logx.Err(err), logx.String("dir", dir))
		default:
			backoff = watchBackoffFloor
			m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))
			m.runWatch(ctx, w, file)
			_ = w.Close()
			if ctx.Err() != nil {
				return nil
			}
			m.log.Warn("config watcher stopped; rebuilding", logx.String("path", m.path))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(jitterDuration(backoff)):
		}
		backoff *= 2
		if backoff > watchBackoffCeil {
			backoff = watchBackoffCeil
		}
	}
	return nil
}

// runWatch drains one watcher until it breaks. Events on the config file
// arm a short timer; the reload runs once the burst goes quiet.
func (m *Manager) runWatch(ctx context.Context, w *fsnotify.Watcher, file string) {
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()
	armed := false
	arm := func() {
		if armed && !debounce.Stop() {
			<-debounce.C
		}
		debounce.Reset(debounceWindow)
		armed = true
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-debounce.C:
			armed = false
			m.reload(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			// Basename match survives editors that replace the file.
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				arm()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			// An overflow may have swallowed events; reload to resync.
			if strings.Contains(strings.ToLower(err.Error()), "overflow") {
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				arm()
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
			if strings.Contains(strings.ToLower(err.Error()), "closed") {
				return
			}
		}
	}
}

// reload parses the file and, when the content is new and valid, commits
// and publishes it. Failures leave the committed config untouched.
func (m *Manager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		return
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		return
	}

	if m.validate != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validate(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected; keeping previous", logx.String("path", m.path), logx.Err(err))
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path))
}

func jitterDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}
