package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestWatcher(t *testing.T, debounce time.Duration) (*FileWatcher, string) {
	t.Helper()

	// macos is funny =)
	// tmpdir lives in /var/folders but it's actually symlink to /private/var/folders
	tempDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err, "failed to evaluate symlinks")

	fw := NewFileWatcher(tempDir)
	fw.SetDebounceTimeout(debounce)
	require.NoError(t, fw.Start(t.Context()), "failed to start file watcher")
	t.Cleanup(fw.Stop)

	return fw, tempDir
}

func TestNewFileWatcher(t *testing.T) {
	fw := NewFileWatcher("/test/path")

	assert.Equal(t, "/test/path", fw.watchDir)
	assert.Nil(t, fw.events)
	assert.Nil(t, fw.rawEvents)
	assert.Empty(t, fw.ignore)
	assert.NotNil(t, fw.done)
	assert.Equal(t, DefaultDebounceTimeout, fw.debounceTimeout)
}

func TestFileWatcherBasic(t *testing.T) {
	fw, dir := startTestWatcher(t, 50*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.txt"), []byte("hello world"), 0o644))

	select {
	case event := <-fw.Events():
		assert.Equal(t, "test.txt", event.Path)
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "Timeout waiting for file event")
	}
}

func TestFileWatcherNestedPathIsRelative(t *testing.T) {
	sub := "a/b"
	fw, dir := startTestWatcher(t, 50*time.Millisecond)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "c.txt"), []byte("x"), 0o644))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-fw.Events():
			if event.Path == sub+"/c.txt" {
				return
			}
		case <-deadline:
			assert.FailNow(t, "Timeout waiting for nested event")
		}
	}
}

func TestFileWatcherDebounceCoalesces(t *testing.T) {
	fw, dir := startTestWatcher(t, 300*time.Millisecond)

	file := filepath.Join(dir, "burst.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte{byte(i)}, 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case event := <-fw.Events():
		assert.Equal(t, "burst.txt", event.Path)
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "Timeout waiting for debounced event")
	}

	select {
	case event := <-fw.Events():
		assert.FailNow(t, "expected a single event", "got %s", event.Path)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestFileWatcherIgnoreOnce(t *testing.T) {
	fw, dir := startTestWatcher(t, 50*time.Millisecond)

	fw.IgnoreOnce("ignored.txt")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("ignored content"), 0o644))

	select {
	case event := <-fw.Events():
		assert.FailNow(t, "Expected no events", "got event for path %s", event.Path)
	case <-time.After(time.Second):
	}

	// consumed: the next change goes through
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("changed"), 0o644))
	select {
	case event := <-fw.Events():
		assert.Equal(t, "ignored.txt", event.Path)
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "Timeout waiting for event after ignore was consumed")
	}
}

func TestFileWatcherFilterPaths(t *testing.T) {
	tempDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	fw := NewFileWatcher(tempDir)
	fw.SetDebounceTimeout(50 * time.Millisecond)
	fw.FilterPaths(func(relPath string) bool {
		return filepath.Ext(relPath) == ".tmp"
	})
	require.NoError(t, fw.Start(t.Context()))
	defer fw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "skip.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "keep.txt"), []byte("x"), 0o644))

	select {
	case event := <-fw.Events():
		assert.Equal(t, "keep.txt", event.Path)
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "Timeout waiting for event")
	}
}

func TestFileWatcherAutoCleanup(t *testing.T) {
	tempDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	fw := NewFileWatcher(tempDir)
	fw.SetCleanupInterval(50 * time.Millisecond)
	require.NoError(t, fw.Start(t.Context()))
	defer fw.Stop()

	fw.IgnoreOnceWithTimeout("test1.txt", 20*time.Millisecond)
	fw.IgnoreOnceWithTimeout("test2.txt", 400*time.Millisecond)

	fw.ignoreMu.Lock()
	assert.Len(t, fw.ignore, 2)
	fw.ignoreMu.Unlock()

	time.Sleep(150 * time.Millisecond)

	fw.ignoreMu.Lock()
	_, path1Exists := fw.ignore["test1.txt"]
	_, path2Exists := fw.ignore["test2.txt"]
	fw.ignoreMu.Unlock()
	assert.False(t, path1Exists, "test1 should have been cleaned up")
	assert.True(t, path2Exists, "test2 should still exist")

	time.Sleep(400 * time.Millisecond)

	fw.ignoreMu.Lock()
	assert.Empty(t, fw.ignore)
	fw.ignoreMu.Unlock()
}

func TestFileWatcher_StopProperlyShutdown(t *testing.T) {
	tempDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	fw := NewFileWatcher(tempDir)
	fw.SetCleanupInterval(10 * time.Millisecond)
	require.NoError(t, fw.Start(t.Context()))

	done := make(chan struct{})
	go func() {
		fw.Stop()
		fw.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		assert.Fail(t, "Stop() took too long, goroutines may not have shut down properly")
	}

	select {
	case _, ok := <-fw.Events():
		assert.False(t, ok, "events channel should be closed after Stop()")
	case <-time.After(100 * time.Millisecond):
		assert.Fail(t, "events channel should be closed and readable immediately")
	}
}
