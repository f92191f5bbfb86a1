// Package remote defines the object-store capability set the sync engine talks to.
// Backends live in the drive, s3store and localstore sub-packages.
package remote

import (
	"context"
	"io"
	"strings"
	"time"
)

const (
	// FolderMimeType marks folders in List results
	FolderMimeType = "application/vnd.google-apps.folder"

	// EmptyMD5 is the MD5 of zero bytes
	EmptyMD5 = "d41d8cd98f00b204e9800998ecf8427e"

	nativeMimePrefix = "application/vnd.google-apps."
)

// File is a single child of a remote folder
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Size         int64     `json:"size"`
	MD5          string    `json:"md5Checksum,omitempty"`
}

func (f *File) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

// ContentHash is MD5, or EmptyMD5 for a blob file that has no content yet.
// Drive reports no checksum for a file created without media.
func (f *File) ContentHash() string {
	if f.MD5 != "" || f.Size != 0 || strings.HasPrefix(f.MimeType, nativeMimePrefix) {
		return f.MD5
	}
	return EmptyMD5
}

// ListPage is one page of a folder listing. An empty NextPageToken ends the listing.
type ListPage struct {
	Files         []*File
	NextPageToken string
}

// Store is the remote object store. IDs are opaque handles; only List reveals
// the folder structure.
type Store interface {
	// List returns the direct, non-trashed children of folderID
	List(ctx context.Context, folderID, pageToken string) (*ListPage, error)

	// GetContent streams a file's bytes. The caller closes the reader.
	GetContent(ctx context.Context, fileID string) (io.ReadCloser, error)

	// Create makes an empty file or a folder under parentID and returns its ID
	Create(ctx context.Context, name, parentID string, isFolder bool) (string, error)

	// Update replaces a file's content and returns its new metadata
	Update(ctx context.Context, fileID string, r io.Reader) (*File, error)

	Delete(ctx context.Context, fileID string) error
}
