// Package scan computes exact token totals from Claude Code session logs.
package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/burnmeter/internal/model"
	"github.com/theirongolddev/burnmeter/internal/source"
)

// Store persists parsed files between process runs.
type Store interface {
	LoadFileUsage() ([]model.FileUsage, error)
	SaveFileUsage(model.FileUsage) error
	DeleteFileUsage(path string) error
}

// ProgressFunc is called while files are parsed.
// current is the number of files processed so far, total is the total count.
type ProgressFunc func(current, total int)

// RefreshStats summarizes one Refresh call.
type RefreshStats struct {
	TotalFiles  int
	CachedFiles int
	ParsedFiles int
	FileErrors  int
	ParseErrors int
	Removed     int
	Expired     int
}

// Counter holds parsed session files keyed by path. A file is rescanned only
// when its modification time or size changes.
type Counter struct {
	claudeDir string
	store     Store
	log       *zap.Logger
	workers   int
	progress  ProgressFunc
	now       func() time.Time

	mu        sync.RWMutex
	files     map[string]*model.FileUsage
	warmed    bool
	retention time.Duration
}

// Option configures a Counter.
type Option func(*Counter)

// WithStore persists parsed files and rewarms the cache from it on first refresh.
func WithStore(s Store) Option { return func(c *Counter) { c.store = s } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Counter) { c.log = l } }

// WithConcurrency bounds the number of files parsed in parallel.
func WithConcurrency(n int) Option { return func(c *Counter) { c.workers = n } }

// WithProgress reports parse progress.
func WithProgress(fn ProgressFunc) Option { return func(c *Counter) { c.progress = fn } }

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option { return func(c *Counter) { c.now = now } }

// New creates a Counter over the given Claude data directory.
func New(claudeDir string, opts ...Option) *Counter {
	c := &Counter{
		claudeDir: claudeDir,
		log:       zap.NewNop(),
		workers:   runtime.GOMAXPROCS(0),
		now:       time.Now,
		files:     make(map[string]*model.FileUsage),
	}
	for _, o := range opts {
		o(c)
	}
	if c.workers < 1 {
		c.workers = 4
	}
	return c
}

// Refresh discovers session files and reparses those that changed since the
// last call. Files that fail to open or read are skipped and keep no entry.
// Once Prune has set a retention, files last modified before it are ignored.
func (c *Counter) Refresh(ctx context.Context) (RefreshStats, error) {
	c.warm()

	files, err := source.ScanDir(c.claudeDir)
	if err != nil {
		return RefreshStats{}, fmt.Errorf("scanning %s: %w", c.claudeDir, err)
	}

	stats := RefreshStats{TotalFiles: len(files)}
	seen := make(map[string]struct{}, len(files))
	var toParse []source.DiscoveredFile

	c.mu.RLock()
	var cutoff int64
	if c.retention > 0 {
		cutoff = c.now().Add(-c.retention).UnixNano()
	}
	for _, df := range files {
		if df.MtimeNs < cutoff {
			stats.Expired++
			continue
		}
		seen[df.Path] = struct{}{}
		if fu, ok := c.files[df.Path]; ok && fu.MtimeNs == df.MtimeNs && fu.SizeBytes == df.SizeBytes {
			stats.CachedFiles++
			continue
		}
		toParse = append(toParse, df)
	}
	var removed []string
	for path := range c.files {
		if _, ok := seen[path]; !ok {
			removed = append(removed, path)
		}
	}
	c.mu.RUnlock()

	results := make([]source.ParseResult, len(toParse))
	var processed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range toParse {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = source.ParseFile(toParse[i])
			n := processed.Add(1)
			if c.progress != nil {
				c.progress(int(n), len(toParse))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	var parsed []*model.FileUsage
	var failed []string
	for i, pr := range results {
		if pr.Err != nil {
			stats.FileErrors++
			c.log.Debug("skipping session file", zap.String("path", toParse[i].Path), zap.Error(pr.Err))
			failed = append(failed, toParse[i].Path)
			continue
		}
		stats.ParsedFiles++
		stats.ParseErrors += pr.ParseErrors
		fu := pr.Usage
		parsed = append(parsed, &fu)
	}

	c.mu.Lock()
	for _, fu := range parsed {
		c.files[fu.Path] = fu
	}
	removed = append(removed, failed...)
	for _, path := range removed {
		delete(c.files, path)
	}
	c.mu.Unlock()
	stats.Removed = len(removed) - len(failed)

	c.persist(parsed, removed)
	return stats, nil
}

// warm loads persisted files once. Entries whose file changed on disk are
// replaced by the following scan.
func (c *Counter) warm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.warmed || c.store == nil {
		c.warmed = true
		return
	}
	c.warmed = true

	cached, err := c.store.LoadFileUsage()
	if err != nil {
		c.log.Warn("loading scan cache", zap.Error(err))
		return
	}
	for i := range cached {
		fu := cached[i]
		c.files[fu.Path] = &fu
	}
	c.log.Debug("scan cache warmed", zap.Int("files", len(cached)))
}

func (c *Counter) persist(parsed []*model.FileUsage, removed []string) {
	if c.store == nil {
		return
	}
	for _, fu := range parsed {
		if err := c.store.SaveFileUsage(*fu); err != nil {
			c.log.Warn("saving scan cache entry", zap.String("path", fu.Path), zap.Error(err))
		}
	}
	for _, path := range removed {
		if err := c.store.DeleteFileUsage(path); err != nil {
			c.log.Warn("deleting scan cache entry", zap.String("path", path), zap.Error(err))
		}
	}
}

// Prune drops entries whose file is gone or was last modified before
// now-retention, and keeps later refreshes from reparsing such files. It
// returns the number of entries removed.
func (c *Counter) Prune(retention time.Duration) int {
	cutoff := c.now().Add(-retention).UnixNano()

	c.mu.Lock()
	c.retention = retention
	var removed []string
	for path, fu := range c.files {
		if fu.MtimeNs < cutoff {
			removed = append(removed, path)
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			removed = append(removed, path)
		}
	}
	for _, path := range removed {
		delete(c.files, path)
	}
	c.mu.Unlock()

	c.persist(nil, removed)
	return len(removed)
}

// Len returns the number of cached files.
func (c *Counter) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}
