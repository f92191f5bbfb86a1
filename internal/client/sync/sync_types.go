package sync

import (
	"path"
	"time"
)

// rootPath is the parent of every top-level entry
const rootPath = "."

// LocalEntry is one file or directory found by the local scanner.
// Hash is the hex MD5 of the content and is empty for directories.
type LocalEntry struct {
	Path    string
	ModTime time.Time
	Size    int64
	Hash    string
	IsDir   bool
}

// RemoteEntry is one file or folder found by the remote scanner. ID is the
// only handle accepted by remote mutations.
type RemoteEntry struct {
	ID      string
	Path    string
	Name    string
	ModTime time.Time
	Size    int64
	Hash    string
	IsDir   bool
}

// SyncRecord remembers the remote content hash seen after the last
// successful sync of a path.
type SyncRecord struct {
	Path       string
	RemoteHash string
}

// SyncAction is the outcome of the decision engine for one path
type SyncAction string

const (
	ActionUploadNew      SyncAction = "UPLOAD_NEW"
	ActionUploadUpdate   SyncAction = "UPLOAD_UPDATE"
	ActionUploadConflict SyncAction = "UPLOAD_CONFLICT"
	ActionDownloadNew    SyncAction = "DOWNLOAD_NEW"
	ActionDownloadUpdate SyncAction = "DOWNLOAD_UPDATE"
	ActionDeleteLocal    SyncAction = "DELETE_LOCAL"
	ActionDeleteRemote   SyncAction = "DELETE_REMOTE"
	ActionSkipIdentical  SyncAction = "SKIP_IDENTICAL"
	ActionSkipNoChange   SyncAction = "SKIP_NO_CHANGE"
)

func (a SyncAction) IsUpload() bool {
	return a == ActionUploadNew || a == ActionUploadUpdate || a == ActionUploadConflict
}

func (a SyncAction) IsDownload() bool {
	return a == ActionDownloadNew || a == ActionDownloadUpdate
}

func (a SyncAction) IsSkip() bool {
	return a == ActionSkipIdentical || a == ActionSkipNoChange
}

// SyncTask is a unit of work produced by a full cycle
type SyncTask struct {
	Action SyncAction
	Path   string
}

// parentOf returns the parent of a slash-separated relative path, rootPath for top-level entries
func parentOf(p string) string {
	return path.Dir(p)
}
