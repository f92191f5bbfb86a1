package localstore

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), "root", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestStore_Lifecycle(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := openTestStore(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	folder, err := s.Create(ctx, "docs", "root", true)
	require.NoError(t, err)

	fileID, err := s.Create(ctx, "a.txt", folder, false)
	require.NoError(t, err)
	assert.Equal(t, "", readAll(t, mustGet(t, s, fileID)))

	updated, err := s.Update(ctx, fileID, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", updated.MD5)
	assert.Equal(t, int64(5), updated.Size)
	assert.True(t, updated.ModifiedTime.Equal(fixed))

	assert.Equal(t, "hello", readAll(t, mustGet(t, s, fileID)))

	root, err := s.List(ctx, "root", "")
	require.NoError(t, err)
	require.Len(t, root.Files, 1)
	assert.True(t, root.Files[0].IsFolder())

	inside, err := s.List(ctx, folder, "")
	require.NoError(t, err)
	require.Len(t, inside.Files, 1)
	assert.Equal(t, "a.txt", inside.Files[0].Name)
	assert.Equal(t, updated.MD5, inside.Files[0].MD5)

	require.NoError(t, s.Delete(ctx, folder))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.GetContent(ctx, fileID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = os.Stat(s.blobPath(fileID))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_ListPagination(t *testing.T) {
	s := openTestStore(t, WithPageSize(2))
	ctx := context.Background()

	for _, name := range []string{"c", "a", "b", "d", "e"} {
		_, err := s.Create(ctx, name, "root", false)
		require.NoError(t, err)
	}

	var names []string
	token := ""
	pages := 0
	for {
		page, err := s.List(ctx, "root", token)
		require.NoError(t, err)
		pages++
		for _, f := range page.Files {
			names = append(names, f.Name)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names)
	assert.Equal(t, 3, pages)
}

func TestStore_Errors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "x", "missing-parent", false)
	assert.ErrorIs(t, err, remote.ErrNotFound)

	_, err = s.Create(ctx, "a/b", "root", false)
	assert.ErrorIs(t, err, remote.ErrInvalidName)

	_, err = s.Create(ctx, "dup", "root", false)
	require.NoError(t, err)
	_, err = s.Create(ctx, "dup", "root", false)
	var apiErr *remote.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.StatusCode)

	_, err = s.List(ctx, "nope", "")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "nope"), remote.ErrNotFound)
}

func mustGet(t *testing.T, s *Store, id string) io.ReadCloser {
	t.Helper()
	rc, err := s.GetContent(context.Background(), id)
	require.NoError(t, err)
	return rc
}
