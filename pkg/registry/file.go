package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/highstation/gateway/pkg/domain"
)

// serviceFile is the on-disk shape of the registry file.
type serviceFile struct {
	Services []*domain.Service `yaml:"services"`
}

// FileStore loads service records from a YAML file and hot-reloads them when
// the file changes. Records marked verified at runtime keep that status until
// the next reload; the file remains the source of truth.
type FileStore struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	mu       sync.RWMutex
	snapshot *MemoryStore
}

// NewFileStore creates a FileStore watching path.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve registry path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create registry watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &FileStore{
		path:     absPath,
		logger:   logger,
		watcher:  watcher,
		cancel:   cancel,
		snapshot: NewMemoryStore(),
	}

	if err := s.load(); err != nil {
		// A missing file is not fatal: services appear once it is written.
		logger.Warn("initial registry load failed", "path", absPath, "error", err)
	}

	// Watch the directory: editors replace files rather than writing in place.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		cancel()
		return nil, fmt.Errorf("watch registry directory: %w", err)
	}

	go s.watchLoop(ctx)
	return s, nil
}

// Close stops the file watcher.
func (s *FileStore) Close() error {
	s.cancel()
	return s.watcher.Close()
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path) // #nosec G304 -- path is configured at startup
	if err != nil {
		return fmt.Errorf("read registry file: %w", err)
	}

	var parsed serviceFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse registry file: %w", err)
	}

	next := NewMemoryStore()
	for _, svc := range parsed.Services {
		if svc == nil {
			continue
		}
		if svc.Status == "" {
			svc.Status = domain.StatusPending
		}
		if err := next.Put(svc); err != nil {
			s.logger.Warn("skipping invalid service record", "slug", svc.Slug, "error", err)
		}
	}

	s.mu.Lock()
	s.snapshot = next
	s.mu.Unlock()

	s.logger.Info("service registry loaded", "path", s.path, "services", len(parsed.Services))
	return nil
}

func (s *FileStore) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.load(); err != nil {
				s.logger.Error("registry reload failed", "error", err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("registry watcher error", "error", err)
		}
	}
}

func (s *FileStore) current() *MemoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// GetByCustomDomain implements domain.ServiceRegistry.
func (s *FileStore) GetByCustomDomain(ctx context.Context, host string) (*domain.Service, error) {
	return s.current().GetByCustomDomain(ctx, host)
}

// GetBySlug implements domain.ServiceRegistry.
func (s *FileStore) GetBySlug(ctx context.Context, slug string, verifiedOnly bool) (*domain.Service, error) {
	return s.current().GetBySlug(ctx, slug, verifiedOnly)
}

// MarkVerified implements domain.ServiceVerifier.
func (s *FileStore) MarkVerified(ctx context.Context, slug string) error {
	return s.current().MarkVerified(ctx, slug)
}
