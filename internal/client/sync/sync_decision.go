package sync

import (
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/remote"
)

const (
	// remoteNewerTolerance absorbs clock skew and mtime rounding between the two sides
	remoteNewerTolerance = 2 * time.Second

	emptyContentHash = remote.EmptyMD5
)

// Decide classifies one path. It is pure: the same inputs always produce the
// same action. A nil last record counts as a record with an empty hash.
func Decide(local *LocalEntry, remote *RemoteEntry, last *SyncRecord) SyncAction {
	switch {
	case local != nil && remote == nil:
		return ActionUploadNew
	case local == nil && remote != nil:
		return ActionDownloadNew
	case local == nil && remote == nil:
		return ActionSkipNoChange
	}

	// hash equality wins over history so matching files never become conflicts
	if local.Hash != "" && remote.Hash != "" && local.Hash == remote.Hash {
		return ActionSkipIdentical
	}

	lastRemoteHash := ""
	if last != nil {
		lastRemoteHash = last.RemoteHash
	}
	if lastRemoteHash == remote.Hash {
		return ActionUploadUpdate
	}

	// an empty remote file with no history is the placeholder of an upload
	// that never finished
	if lastRemoteHash == "" && remote.Hash == emptyContentHash {
		return ActionUploadUpdate
	}

	if remote.ModTime.After(local.ModTime.Add(remoteNewerTolerance)) {
		return ActionDownloadUpdate
	}
	return ActionUploadConflict
}

// Decider applies Decide with optional delete propagation. With
// PropagateDeletes a path that was synced before and is now missing on one
// side is deleted from the other side instead of being copied back.
type Decider struct {
	PropagateDeletes bool
}

func (d Decider) Decide(local *LocalEntry, remote *RemoteEntry, last *SyncRecord) SyncAction {
	if d.PropagateDeletes && last != nil {
		switch {
		case local == nil && remote != nil:
			return ActionDeleteRemote
		case local != nil && remote == nil:
			return ActionDeleteLocal
		}
	}
	return Decide(local, remote, last)
}
