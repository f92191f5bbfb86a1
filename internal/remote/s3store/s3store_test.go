package s3store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/remote"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket supporting prefix/delimiter listing
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	pageLen int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, pageLen: 1000}
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	type item struct {
		key      string
		isPrefix bool
	}
	var items []item
	seen := map[string]bool{}
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if delim != "" && rest != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					items = append(items, item{key: cp, isPrefix: true})
				}
				continue
			}
		}
		items = append(items, item{key: k})
	}

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	end := start + f.pageLen
	if end > len(items) {
		end = len(items)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(items))}
	if end < len(items) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	for _, it := range items[start:end] {
		if it.isPrefix {
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(it.key)})
			continue
		}
		data := f.objects[it.key]
		sum := md5.Sum(data)
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(it.key),
			Size:         aws.Int64(int64(len(data))),
			ETag:         aws.String(`"` + hex.EncodeToString(sum[:]) + `"`),
			LastModified: aws.Time(time.Now()),
		})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	sum := md5.Sum(data)
	return &s3.PutObjectOutput{ETag: aws.String(`"` + hex.EncodeToString(sum[:]) + `"`)}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestStore_CreateListUpdate(t *testing.T) {
	fake := newFakeS3()
	store := NewWithAPI(fake, "bucket")
	ctx := context.Background()

	docs, err := store.Create(ctx, "docs", "root", true)
	require.NoError(t, err)
	assert.Equal(t, "docs/", docs)

	fileID, err := store.Create(ctx, "a.txt", docs, false)
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", fileID)

	updated, err := store.Update(ctx, fileID, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", updated.MD5)
	assert.Equal(t, int64(5), updated.Size)

	root, err := store.List(ctx, "root", "")
	require.NoError(t, err)
	require.Len(t, root.Files, 1)
	assert.True(t, root.Files[0].IsFolder())
	assert.Equal(t, "docs", root.Files[0].Name)
	assert.Equal(t, "docs/", root.Files[0].ID)

	inside, err := store.List(ctx, docs, "")
	require.NoError(t, err)
	require.Len(t, inside.Files, 1, "folder marker must not be listed")
	assert.Equal(t, "a.txt", inside.Files[0].Name)
	assert.Equal(t, updated.MD5, inside.Files[0].MD5)

	rc, err := store.GetContent(ctx, fileID)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello", string(data))
}

func TestStore_ListPaginates(t *testing.T) {
	fake := newFakeS3()
	fake.pageLen = 2
	store := NewWithAPI(fake, "bucket")
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := store.Create(ctx, name, "", false)
		require.NoError(t, err)
	}

	page, err := store.List(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, page.Files, 2)
	require.NotEmpty(t, page.NextPageToken)

	page, err = store.List(ctx, "", page.NextPageToken)
	require.NoError(t, err)
	assert.Len(t, page.Files, 1)
	assert.Empty(t, page.NextPageToken)
}

func TestStore_DeleteFolderRecursive(t *testing.T) {
	fake := newFakeS3()
	store := NewWithAPI(fake, "bucket")
	ctx := context.Background()

	fake.objects["x/"] = nil
	fake.objects["x/1"] = []byte("1")
	fake.objects["x/y/2"] = []byte("2")
	fake.objects["z"] = []byte("z")

	require.NoError(t, store.Delete(ctx, "x/"))
	assert.Equal(t, map[string][]byte{"z": []byte("z")}, fake.objects)
}

func TestStore_GetMissing(t *testing.T) {
	store := NewWithAPI(newFakeS3(), "bucket")
	_, err := store.GetContent(context.Background(), "missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestEtagMD5(t *testing.T) {
	assert.Equal(t, "abc", etagMD5(`"abc"`))
	assert.Equal(t, "", etagMD5(`"abc-3"`))
}

func TestFolderPrefix(t *testing.T) {
	assert.Equal(t, "", folderPrefix("root"))
	assert.Equal(t, "", folderPrefix(""))
	assert.Equal(t, "a/", folderPrefix("a"))
	assert.Equal(t, "a/b/", folderPrefix("a/b/"))
}
