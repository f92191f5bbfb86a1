// Package localstore is a directory-backed remote.Store. Object metadata lives
// in a SQLite index and contents in a blob directory keyed by object ID.
package localstore

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/db"
	"github.com/AzPepoze/gdrive-bisync/internal/remote"
	"github.com/AzPepoze/gdrive-bisync/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS objects (
    id TEXT PRIMARY KEY,
    parent_id TEXT NOT NULL,
    name TEXT NOT NULL,
    is_folder INTEGER NOT NULL DEFAULT 0,
    size INTEGER NOT NULL DEFAULT 0,
    md5 TEXT NOT NULL DEFAULT '',
    modified_at INTEGER NOT NULL, -- unix millis
    UNIQUE (parent_id, name)
);

CREATE INDEX IF NOT EXISTS idx_objects_parent ON objects(parent_id, name);
`

const (
	indexFile       = "index.db"
	blobsDir        = "blobs"
	defaultPageSize = 1000
)

type objectRow struct {
	ID         string `db:"id"`
	ParentID   string `db:"parent_id"`
	Name       string `db:"name"`
	IsFolder   bool   `db:"is_folder"`
	Size       int64  `db:"size"`
	MD5        string `db:"md5"`
	ModifiedAt int64  `db:"modified_at"`
}

func (r *objectRow) toRemote() *remote.File {
	f := &remote.File{
		ID:           r.ID,
		Name:         r.Name,
		ModifiedTime: time.UnixMilli(r.ModifiedAt).UTC(),
		Size:         r.Size,
		MD5:          r.MD5,
	}
	if r.IsFolder {
		f.MimeType = remote.FolderMimeType
	} else {
		f.MimeType = "application/octet-stream"
	}
	return f
}

type Option func(*Store)

// WithPageSize caps List results per page
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithClock overrides the modification timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Store struct {
	db       *sqlx.DB
	dir      string
	rootID   string
	pageSize int
	now      func() time.Time
}

// Open creates or opens a store in dir. rootID names the implicit top folder.
func Open(dir, rootID string, opts ...Option) (*Store, error) {
	if err := utils.EnsureDir(filepath.Join(dir, blobsDir)); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}

	conn, err := db.NewSqliteDB(
		db.WithPath(filepath.Join(dir, indexFile)),
		db.WithMaxOpenConns(1),
		db.WithSchema(schema),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open store index: %w", err)
	}

	s := &Store{
		db:       conn,
		dir:      dir,
		rootID:   rootID,
		pageSize: defaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	slog.Debug("local store open", "dir", dir, "root", rootID)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) List(ctx context.Context, folderID, pageToken string) (*remote.ListPage, error) {
	if err := s.checkFolder(ctx, folderID, "list"); err != nil {
		return nil, err
	}

	var rows []objectRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, parent_id, name, is_folder, size, md5, modified_at FROM objects
		 WHERE parent_id = ? AND name > ? ORDER BY name LIMIT ?`,
		folderID, pageToken, s.pageSize+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
	}

	page := &remote.ListPage{}
	if len(rows) > s.pageSize {
		rows = rows[:s.pageSize]
		page.NextPageToken = rows[len(rows)-1].Name
	}
	page.Files = make([]*remote.File, 0, len(rows))
	for i := range rows {
		page.Files = append(page.Files, rows[i].toRemote())
	}
	return page, nil
}

func (s *Store) GetContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	row, err := s.get(ctx, fileID, "get")
	if err != nil {
		return nil, err
	}
	if row.IsFolder {
		return nil, remote.NewAPIError("get", http.StatusBadRequest, "cannot download a folder")
	}

	f, err := os.Open(s.blobPath(fileID))
	if errors.Is(err, os.ErrNotExist) {
		// created but never written
		return io.NopCloser(strings.NewReader("")), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", fileID, err)
	}
	return f, nil
}

func (s *Store) Create(ctx context.Context, name, parentID string, isFolder bool) (string, error) {
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: %q", remote.ErrInvalidName, name)
	}
	if err := s.checkFolder(ctx, parentID, "create"); err != nil {
		return "", err
	}

	row := objectRow{
		ID:         uuid.NewString(),
		ParentID:   parentID,
		Name:       name,
		IsFolder:   isFolder,
		ModifiedAt: s.now().UnixMilli(),
	}
	if !isFolder {
		row.MD5 = remote.EmptyMD5
	}

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO objects (id, parent_id, name, is_folder, size, md5, modified_at)
		 VALUES (:id, :parent_id, :name, :is_folder, :size, :md5, :modified_at)`, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return "", remote.NewAPIError("create", http.StatusConflict, fmt.Sprintf("%q already exists in %s", name, parentID))
		}
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	return row.ID, nil
}

func (s *Store) Update(ctx context.Context, fileID string, r io.Reader) (*remote.File, error) {
	row, err := s.get(ctx, fileID, "update")
	if err != nil {
		return nil, err
	}
	if row.IsFolder {
		return nil, remote.NewAPIError("update", http.StatusBadRequest, "cannot write content to a folder")
	}

	blob := s.blobPath(fileID)
	if err := utils.EnsureParent(blob); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(blob), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write blob %s: %w", fileID, err)
	}
	if err := os.Rename(tmp.Name(), blob); err != nil {
		return nil, fmt.Errorf("failed to commit blob %s: %w", fileID, err)
	}

	row.Size = size
	row.MD5 = hex.EncodeToString(hash.Sum(nil))
	row.ModifiedAt = s.now().UnixMilli()

	_, err = s.db.NamedExecContext(ctx,
		`UPDATE objects SET size = :size, md5 = :md5, modified_at = :modified_at WHERE id = :id`, row)
	if err != nil {
		return nil, fmt.Errorf("failed to update index for %s: %w", fileID, err)
	}

	return row.toRemote(), nil
}

// Delete removes an object. Folders take their whole subtree with them.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	if _, err := s.get(ctx, fileID, "delete"); err != nil {
		return err
	}

	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM objects WHERE id = ?
			UNION ALL
			SELECT o.id FROM objects o JOIN subtree t ON o.parent_id = t.id
		)
		SELECT id FROM subtree`, fileID)
	if err != nil {
		return fmt.Errorf("failed to collect subtree of %s: %w", fileID, err)
	}

	query, args, err := sqlx.In(`DELETE FROM objects WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to delete %s: %w", fileID, err)
	}

	for _, id := range ids {
		if err := os.Remove(s.blobPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("local store blob cleanup", "id", id, "error", err)
		}
	}
	return nil
}

// Count returns the number of indexed objects
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM objects"); err != nil {
		return 0, fmt.Errorf("failed to count objects: %w", err)
	}
	return n, nil
}

func (s *Store) get(ctx context.Context, id, op string) (*objectRow, error) {
	var row objectRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, parent_id, name, is_folder, size, md5, modified_at FROM objects WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, remote.NewAPIError(op, http.StatusNotFound, "object "+id+" not found")
	} else if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", id, err)
	}
	return &row, nil
}

func (s *Store) checkFolder(ctx context.Context, folderID, op string) error {
	if folderID == s.rootID {
		return nil
	}
	row, err := s.get(ctx, folderID, op)
	if err != nil {
		return err
	}
	if !row.IsFolder {
		return remote.NewAPIError(op, http.StatusBadRequest, folderID+" is not a folder")
	}
	return nil
}

func (s *Store) blobPath(id string) string {
	shard := id
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.dir, blobsDir, shard, id)
}

var _ remote.Store = (*Store)(nil)
