package sync

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncIgnoreList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IgnoreFileName), []byte("# comment\n*.log\nbuild/\n"), 0o644))

	patterns := []*regexp.Regexp{
		regexp.MustCompile(`^node_modules(/|$)`),
		regexp.MustCompile(`\.tmp$`),
	}
	ignore := NewSyncIgnoreList(dir, patterns, ".bisync-metadata.json", ".bisync.lock")
	ignore.Load()

	tests := []struct {
		path string
		want bool
	}{
		{path: "docs/readme.md", want: false},
		{path: "node_modules", want: true},
		{path: "node_modules/x/index.js", want: true},
		{path: "src/node_modules.txt", want: false},
		{path: "a/b/c.tmp", want: true},
		{path: ".bisync-metadata.json", want: true},
		{path: ".bisync-metadata.json.tmp-1234", want: false},
		{path: "." + ".bisync-metadata.json" + ".tmp-1234", want: true},
		{path: "sub/.bisync-metadata.json", want: false},
		{path: ".bisync.lock", want: true},
		{path: "photos/.bisync-tmp-abc", want: true},
		{path: "server.log", want: true},
		{path: "build/out.bin", want: true},
		{path: "build", want: true},
		{path: "builder.txt", want: false},
		{path: rootPath, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ignore.ShouldIgnore(tt.path))
		})
	}
}

func TestSyncIgnoreList_NoFile(t *testing.T) {
	ignore := NewSyncIgnoreList(t.TempDir(), nil)
	ignore.Load()
	assert.False(t, ignore.ShouldIgnore("anything.log"))
}
