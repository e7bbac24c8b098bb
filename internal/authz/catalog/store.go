package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vaxtrack/vaxtrack-core/internal/models"
	"github.com/vaxtrack/vaxtrack-core/pkg/logger"
)

// Store owns the catalog lifecycle: load at startup (fail fast), swap-on-reload,
// TTL-based refresh, optional file watching. Reads are lock-free; the only
// lock serializes concurrent reload attempts.
type Store struct {
	path   string
	ttl    time.Duration
	logger logger.Logger

	current  atomic.Pointer[Catalog]
	version  atomic.Int64
	reloadMu sync.Mutex
}

// NewStore loads the catalog from path. A malformed catalog at startup is a
// hard failure.
func NewStore(path string, ttl time.Duration, log logger.Logger) (*Store, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	s := &Store{
		path:   path,
		ttl:    ttl,
		logger: log,
	}

	cat, err := s.loadFromDisk()
	if err != nil {
		return nil, fmt.Errorf("initial catalog load failed: %w", err)
	}
	s.current.Store(cat)
	s.logger.Info("role catalog loaded",
		"path", path, "roles", len(cat.roles), "resources", len(cat.resources), "version", cat.Version)
	return s, nil
}

func (s *Store) loadFromDisk() (*Catalog, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &ConfigError{Section: "catalog", Message: "cannot read catalog file", Err: err}
	}
	return parse(data, s.version.Add(1))
}

// Catalog returns the current snapshot. When the TTL has elapsed it attempts
// a refresh first, but a failed refresh never evicts the last good catalog.
func (s *Store) Catalog() *Catalog {
	cat := s.current.Load()
	if time.Since(cat.LoadedAt) > s.ttl {
		if err := s.refresh(); err != nil {
			s.logger.Warn("catalog refresh failed, keeping last good catalog",
				"error", err, "version", cat.Version)
		}
		cat = s.current.Load()
	}
	return cat
}

// refresh is the TTL-triggered variant of Reload: it debounces so a burst of
// stale readers triggers a single disk read.
func (s *Store) refresh() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if time.Since(s.current.Load().LoadedAt) <= s.ttl {
		return nil
	}
	cat, err := s.loadFromDisk()
	if err != nil {
		return err
	}
	s.current.Store(cat)
	return nil
}

// Role resolves a role definition from the current snapshot.
func (s *Store) Role(name string) (*models.Role, error) {
	return s.Catalog().Role(name)
}

// Reload re-reads the catalog file and atomically replaces the snapshot,
// bumping the version counter. section names the configuration section that
// triggered the reload; the whole document is always re-validated and swapped
// as one unit so the system never runs with a half-applied catalog.
func (s *Store) Reload(section string) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cat, err := s.loadFromDisk()
	if err != nil {
		return err
	}

	s.current.Store(cat)
	s.logger.Info("role catalog reloaded", "section", section, "version", cat.Version)
	return nil
}

// Version returns the monotonic catalog version.
func (s *Store) Version() int64 {
	return s.current.Load().Version
}

// Watch reloads the catalog whenever its file changes on disk. It blocks
// until ctx is cancelled, so run it on its own goroutine. Reload failures are
// logged and leave the previous catalog in place.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and config mounts replace the file,
	// which would drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch catalog directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.Reload("roles"); err != nil {
				s.logger.Error("catalog reload after file change failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("catalog watcher error", "error", err)
		}
	}
}
