package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "audio")
	ws, err := New(dir)
	require.NoError(t, err)
	require.Equal(t, dir, ws.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	_, err = New(dir)
	require.NoError(t, err, "creating an existing work directory must be idempotent")
}

func TestNewRequiresDirectory(t *testing.T) {
	t.Parallel()

	_, err := New("  ")
	require.Error(t, err)
}

func TestAcquireNamesCombineTimestampAndID(t *testing.T) {
	t.Parallel()

	fixed := time.Unix(1700000000, 42)
	ws, err := New(t.TempDir(),
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string { return "abc" }),
		WithExtension("m4a"),
	)
	require.NoError(t, err)

	artifact := ws.Acquire()
	require.Equal(t, filepath.Join(ws.Dir(), "1700000000000000042-abc.m4a"), artifact.Path)
}

func TestAcquireNeverCollidesWithinSameTimestamp(t *testing.T) {
	t.Parallel()

	fixed := time.Unix(1700000000, 0)
	ws, err := New(t.TempDir(), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := ws.Acquire().Path
			mu.Lock()
			seen[path] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, 64)
}

func TestReleaseRemovesFileAndIsIdempotent(t *testing.T) {
	t.Parallel()

	ws, err := New(t.TempDir())
	require.NoError(t, err)

	artifact := ws.Acquire()
	require.NoError(t, os.WriteFile(artifact.Path, []byte("audio"), 0o644))

	require.NoError(t, artifact.Release())
	_, err = os.Stat(artifact.Path)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, artifact.Release())
}

func TestReleaseMissingFileIsNotAnError(t *testing.T) {
	t.Parallel()

	ws, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, ws.Acquire().Release())
}

func TestReleaseFailureIsLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	ws, err := New(t.TempDir(), WithLogger(zap.New(core)))
	require.NoError(t, err)

	artifact := ws.Acquire()
	// A non-empty directory at the artifact path cannot be removed with os.Remove.
	require.NoError(t, os.MkdirAll(filepath.Join(artifact.Path, "child"), 0o755))

	require.Error(t, artifact.Release())
	require.Equal(t, 1, logs.FilterMessage("failed to remove audio artifact").Len())
}

func TestSweepRemovesOnlyStaleArtifacts(t *testing.T) {
	t.Parallel()

	now := time.Now()
	ws, err := New(t.TempDir(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	stale := filepath.Join(ws.Dir(), "1-stale.mp3")
	fresh := filepath.Join(ws.Dir(), "2-fresh.mp3")
	other := filepath.Join(ws.Dir(), "notes.txt")
	for _, path := range []string{stale, fresh, other} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	old := now.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	removed, err := ws.Sweep(time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	entries, err := os.ReadDir(ws.Dir())
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	require.Equal(t, "2-fresh.mp3,notes.txt", strings.Join(names, ","))
}

func TestSweepDisabled(t *testing.T) {
	t.Parallel()

	ws, err := New(t.TempDir())
	require.NoError(t, err)

	removed, err := ws.Sweep(0)
	require.NoError(t, err)
	require.Zero(t, removed)
}
