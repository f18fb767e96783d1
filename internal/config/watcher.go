package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// snapshot is one successfully loaded version of the config file.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// Watcher polls a config file and reports validated edits to a callback.
// Edits that fail to parse or validate are reported to the reject hook and
// the previous config stays current. Edits that change nothing [Diff] sees,
// such as comments or reordered keys, update the current config silently.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, next *Config)
	onReject func(error)

	mu   sync.Mutex
	last snapshot
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithRejectHook registers fn to be called with the error of every edit that
// could not be applied.
func WithRejectHook(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onReject = fn }
}

// NewWatcher loads the config at path and returns a watcher for it. Polling
// starts with [Watcher.Run].
func NewWatcher(path string, onChange func(old, next *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := readSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.last = snap
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Run polls the file until ctx ends. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.reject(err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.last.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	snap, err := readSnapshot(w.path)
	if err != nil {
		// Remember the mtime so a broken file is reported once per edit.
		w.mu.Lock()
		w.last.mtime = info.ModTime()
		w.mu.Unlock()
		w.reject(err)
		return
	}

	w.mu.Lock()
	old := w.last
	w.last = snap
	w.mu.Unlock()

	if snap.sum == old.sum || Diff(old.cfg, snap.cfg).Empty() {
		return
	}
	slog.Info("config reloaded", "path", w.path)
	// Called without the lock so the callback may use Current.
	if w.onChange != nil {
		w.onChange(old.cfg, snap.cfg)
	}
}

func (w *Watcher) reject(err error) {
	slog.Warn("config edit rejected, keeping previous config", "path", w.path, "err", err)
	if w.onReject != nil {
		w.onReject(err)
	}
}

// readSnapshot reads, parses and validates the file at path.
func readSnapshot(path string) (snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
