// Package retention deletes old voice sample recordings so the recording
// directory does not grow without bound.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultInterval is the default period between sweeps.
const DefaultInterval = 10 * time.Minute

// FilePrefix is the name prefix of files the janitor manages. Other files in
// the directory are never touched.
const FilePrefix = "recording_"

// Result reports what a sweep removed.
type Result struct {
	// ByAge counts files removed for exceeding MaxAge.
	ByAge int

	// ByCount counts files removed to get down to MaxFiles.
	ByCount int

	// Kept is the number of recordings left.
	Kept int
}

// Config configures a [Janitor].
type Config struct {
	// Dir is the recording directory.
	Dir string

	// MaxAge removes recordings last modified longer ago. Zero disables.
	MaxAge time.Duration

	// MaxFiles keeps at most this many of the newest recordings. Zero
	// disables.
	MaxFiles int

	// Interval is how often Run sweeps. Defaults to [DefaultInterval].
	Interval time.Duration

	// OnRemoved is called after each sweep that removed files, once per
	// reason ("age" or "count").
	OnRemoved func(ctx context.Context, reason string, n int)
}

// Janitor enforces the retention policy on a recording directory. All
// methods are safe for concurrent use.
type Janitor struct {
	dir       string
	maxAge    time.Duration
	maxFiles  int
	interval  time.Duration
	onRemoved func(context.Context, string, int)
	now       func() time.Time

	mu      sync.Mutex
	trigger chan struct{}
}

// New returns a Janitor for cfg.
func New(cfg Config) *Janitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{
		dir:       cfg.Dir,
		maxAge:    cfg.MaxAge,
		maxFiles:  cfg.MaxFiles,
		interval:  interval,
		onRemoved: cfg.OnRemoved,
		now:       time.Now,
		trigger:   make(chan struct{}, 1),
	}
}

type entry struct {
	path    string
	modTime time.Time
}

// Sweep applies the policy once. A missing directory is not an error.
// Files that cannot be removed are skipped and reported in the joined error.
func (j *Janitor) Sweep(ctx context.Context) (Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.list()
	if err != nil {
		return Result{}, err
	}

	var (
		res  Result
		errs []error
		kept []entry
	)
	if j.maxAge > 0 {
		cutoff := j.now().Add(-j.maxAge)
		for _, e := range entries {
			if e.modTime.Before(cutoff) {
				if err := remove(e.path); err != nil {
					errs = append(errs, err)
					kept = append(kept, e)
					continue
				}
				res.ByAge++
				continue
			}
			kept = append(kept, e)
		}
	} else {
		kept = entries
	}

	if j.maxFiles > 0 && len(kept) > j.maxFiles {
		// Newest first; the tail beyond maxFiles goes.
		excess := kept[j.maxFiles:]
		kept = kept[:j.maxFiles]
		for _, e := range excess {
			if err := remove(e.path); err != nil {
				errs = append(errs, err)
				kept = append(kept, e)
				continue
			}
			res.ByCount++
		}
	}
	res.Kept = len(kept)

	if res.ByAge > 0 || res.ByCount > 0 {
		slog.Info("retention: removed recordings",
			"dir", j.dir, "by_age", res.ByAge, "by_count", res.ByCount, "kept", res.Kept)
		if j.onRemoved != nil {
			if res.ByAge > 0 {
				j.onRemoved(ctx, "age", res.ByAge)
			}
			if res.ByCount > 0 {
				j.onRemoved(ctx, "count", res.ByCount)
			}
		}
	}
	return res, errors.Join(errs...)
}

// list returns the managed recordings, newest first.
func (j *Janitor) list() ([]entry, error) {
	des, err := os.ReadDir(j.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retention: read %s: %w", j.dir, err)
	}
	var entries []entry
	for _, de := range des {
		if !de.Type().IsRegular() || !strings.HasPrefix(de.Name(), FilePrefix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, entry{path: filepath.Join(j.dir, de.Name()), modTime: info.ModTime()})
	}
	sort.Slice(entries, func(a, b int) bool {
		if !entries[a].modTime.Equal(entries[b].modTime) {
			return entries[a].modTime.After(entries[b].modTime)
		}
		return entries[a].path > entries[b].path
	})
	return entries, nil
}

func remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("retention: remove %s: %w", path, err)
	}
	return nil
}

// SetPolicy replaces the age and count limits. It takes effect on the next
// sweep.
func (j *Janitor) SetPolicy(maxAge time.Duration, maxFiles int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.maxAge = maxAge
	j.maxFiles = maxFiles
}

// Trigger requests a sweep from a running [Janitor.Run] loop without
// blocking. Requests made while one is pending are coalesced.
func (j *Janitor) Trigger() {
	select {
	case j.trigger <- struct{}{}:
	default:
	}
}

// Run sweeps once immediately, then on every interval tick and every
// [Janitor.Trigger], until ctx ends. It always returns nil so that it can run
// inside an errgroup next to servers.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweepLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.sweepLogged(ctx)
		case <-j.trigger:
			j.sweepLogged(ctx)
		}
	}
}

func (j *Janitor) sweepLogged(ctx context.Context) {
	if _, err := j.Sweep(ctx); err != nil {
		slog.Warn("retention: sweep failed", "dir", j.dir, "err", err)
	}
}
