package sync

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncLocalState_Scan(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "deep"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "deep", "a.md"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "x.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".bisync-metadata.json"), []byte("[]"), 0o644))

	ignore := NewSyncIgnoreList(root, []*regexp.Regexp{regexp.MustCompile(`^node_modules(/|$)`)}, ".bisync-metadata.json")
	scanner := NewSyncLocalState(root, ignore)

	var visited atomic.Int32
	state, err := scanner.Scan(t.Context(), func(string) { visited.Add(1) })
	require.NoError(t, err)

	assert.Len(t, state, 4)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", state["hello.txt"].Hash)
	assert.Equal(t, int64(5), state["hello.txt"].Size)
	assert.True(t, state["docs"].IsDir)
	assert.True(t, state["docs/deep"].IsDir)
	assert.Empty(t, state["docs"].Hash)
	assert.Contains(t, state, "docs/deep/a.md")
	assert.NotContains(t, state, "node_modules")
	assert.NotContains(t, state, "node_modules/x.js")
	assert.NotContains(t, state, ".bisync-metadata.json")
	assert.Equal(t, int32(3), visited.Load(), "root, docs, docs/deep")
}

func TestSyncLocalState_SkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("r"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	state, err := NewSyncLocalState(root, nil).Scan(t.Context(), nil)
	require.NoError(t, err)
	assert.Contains(t, state, "real.txt")
	assert.NotContains(t, state, "link.txt")
}

func TestSyncLocalState_HashCache(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("one"), 0o644))

	scanner := NewSyncLocalState(root, nil)
	first, err := scanner.Scan(t.Context(), nil)
	require.NoError(t, err)

	// same size and mtime: the cached hash is reused even though content changed
	info, err := os.Stat(file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, []byte("two"), 0o644))
	require.NoError(t, os.Chtimes(file, info.ModTime(), info.ModTime()))

	second, err := scanner.Scan(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, first["f.txt"].Hash, second["f.txt"].Hash)

	// a new mtime invalidates it
	later := info.ModTime().Add(time.Minute)
	require.NoError(t, os.Chtimes(file, later, later))
	third, err := scanner.Scan(t.Context(), nil)
	require.NoError(t, err)
	assert.NotEqual(t, first["f.txt"].Hash, third["f.txt"].Hash)
}

func TestSyncLocalState_MissingRoot(t *testing.T) {
	_, err := NewSyncLocalState(filepath.Join(t.TempDir(), "nope"), nil).Scan(t.Context(), nil)
	assert.Error(t, err)
}
