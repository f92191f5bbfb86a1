package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name      string
		input     string
		want      string
		wantError bool
	}{
		{name: "empty path", input: "", wantError: true},
		{name: "absolute path", input: "/tmp/test/../x", want: filepath.Clean("/tmp/x")},
		{name: "home path", input: "~/Bisync", want: filepath.Join(home, "Bisync")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePath(tt.input)
			if tt.wantError {
				assert.ErrorIs(t, err, ErrEmptyPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestEnsureParentAndExists(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "file.txt")

	require.NoError(t, EnsureParent(target))
	assert.True(t, DirExists(filepath.Join(dir, "a", "b")))
	assert.False(t, FileExists(target))

	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	assert.True(t, FileExists(target))
	assert.False(t, DirExists(target))
}

func TestSlashDepth(t *testing.T) {
	assert.Equal(t, 0, SlashDepth("a"))
	assert.Equal(t, 1, SlashDepth("a/b"))
	assert.Equal(t, 2, SlashDepth("a/b/c.txt"))
}
