package httpapi

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore owns the scratch directory for synthesized audio files. Files
// are named with a uuid and deleted once their TTL expires after the
// response has been sent; deletion failures are logged, never surfaced.
type FileStore struct {
	dir    string
	ttl    time.Duration
	log    *slog.Logger
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewFileStore(dir string, ttl time.Duration, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		ttl:    ttl,
		log:    log.With(slog.String("component", "filestore")),
		timers: make(map[string]*time.Timer),
	}, nil
}

// NewName returns a fresh scratch file name with the given extension.
func (f *FileStore) NewName(ext string) string {
	return fmt.Sprintf("tts_%s.%s", uuid.New().String(), ext)
}

// Path resolves a file name inside the scratch directory. Names carrying
// path separators or traversal segments are rejected.
func (f *FileStore) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(f.dir, name), nil
}

// Schedule queues the file for deletion after the TTL.
func (f *FileStore) Schedule(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if timer, ok := f.timers[name]; ok {
		timer.Stop()
	}
	f.timers[name] = time.AfterFunc(f.ttl, func() {
		f.remove(name)
	})
}

func (f *FileStore) remove(name string) {
	f.mu.Lock()
	delete(f.timers, name)
	f.mu.Unlock()

	path, err := f.Path(name)
	if err != nil {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		f.log.Warn("failed to delete scratch file", slog.String("path", path), slogError(err))
		return
	}
	f.log.Debug("scratch file deleted", slog.String("path", path))
}

// Close stops pending deletion timers and removes their files.
func (f *FileStore) Close() {
	f.mu.Lock()
	names := make([]string, 0, len(f.timers))
	for name, timer := range f.timers {
		timer.Stop()
		names = append(names, name)
	}
	f.timers = make(map[string]*time.Timer)
	f.mu.Unlock()

	for _, name := range names {
		f.remove(name)
	}
}
