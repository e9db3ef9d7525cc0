package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultExtension = ".mp3"

// Workspace owns the directory that holds Temporary Audio Artifacts.
type Workspace struct {
	dir    string
	ext    string
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

type Option func(*Workspace)

func WithExtension(ext string) Option {
	return func(w *Workspace) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.ext = ext
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Workspace) {
		w.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Workspace) {
		w.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(w *Workspace) {
		w.newID = newID
	}
}

// New creates dir if absent and returns a workspace rooted there.
func New(dir string, opts ...Option) (*Workspace, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("work directory is required")
	}

	w := &Workspace{
		dir:   filepath.Clean(dir),
		ext:   DefaultExtension,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory %s: %w", w.dir, err)
	}
	return w, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

// Acquire reserves a unique artifact path. The file itself is created by
// whoever writes to Path; Release removes it if it exists.
func (w *Workspace) Acquire() *Artifact {
	name := fmt.Sprintf("%d-%s%s", w.now().UnixNano(), w.newID(), w.ext)
	return &Artifact{
		Path:   filepath.Join(w.dir, name),
		logger: w.logger,
	}
}

// Sweep removes artifacts older than maxAge, typically left behind by a
// previous process that did not shut down cleanly. It returns the number
// of files removed.
func (w *Workspace) Sweep(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("read work directory: %w", err)
	}

	cutoff := w.now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), w.ext) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(w.dir, entry.Name())
		if err := removeIfExists(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if len(errs) > 0 {
		return removed, fmt.Errorf("sweep work directory: %w", errors.Join(errs...))
	}
	return removed, nil
}

// Artifact is one request's transient audio file.
type Artifact struct {
	Path string

	logger *zap.Logger
	once   sync.Once
	err    error
}

// Release deletes the artifact file. It is safe to call more than once and
// a missing file is not an error. Failures are logged and returned for
// callers that care; they are never meant to replace a request's outcome.
func (a *Artifact) Release() error {
	a.once.Do(func() {
		a.err = removeIfExists(a.Path)
		if a.err != nil {
			a.logger.Warn("failed to remove audio artifact", zap.String("path", a.Path), zap.Error(a.err))
		}
	})
	return a.err
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
