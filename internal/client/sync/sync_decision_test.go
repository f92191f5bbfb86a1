package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	local := func(hash string, mtime time.Time) *LocalEntry {
		return &LocalEntry{Path: "doc.txt", Hash: hash, ModTime: mtime}
	}
	remote := func(hash string, mtime time.Time) *RemoteEntry {
		return &RemoteEntry{ID: "r1", Path: "doc.txt", Hash: hash, ModTime: mtime}
	}
	record := func(hash string) *SyncRecord {
		return &SyncRecord{Path: "doc.txt", RemoteHash: hash}
	}

	tests := []struct {
		name   string
		local  *LocalEntry
		remote *RemoteEntry
		last   *SyncRecord
		want   SyncAction
	}{
		{
			name:  "local only",
			local: local("L1", t0),
			want:  ActionUploadNew,
		},
		{
			name:  "local only with record still uploads",
			local: local("L1", t0),
			last:  record("R0"),
			want:  ActionUploadNew,
		},
		{
			name:   "remote only",
			remote: remote("R1", t0),
			want:   ActionDownloadNew,
		},
		{
			name: "neither side",
			last: record("R0"),
			want: ActionSkipNoChange,
		},
		{
			name:   "identical hashes",
			local:  local("H", t0),
			remote: remote("H", t0.Add(time.Hour)),
			last:   record("OLD"),
			want:   ActionSkipIdentical,
		},
		{
			name:   "remote unchanged since last sync",
			local:  local("L2", t0),
			remote: remote("R1", t0.Add(time.Hour)),
			last:   record("R1"),
			want:   ActionUploadUpdate,
		},
		{
			name:   "remote changed and newer beyond tolerance",
			local:  local("L1", t0),
			remote: remote("R1", t0.Add(10*time.Second)),
			last:   record("R0"),
			want:   ActionDownloadUpdate,
		},
		{
			name:   "remote changed but within tolerance",
			local:  local("L1", t0),
			remote: remote("R1", t0.Add(time.Second)),
			last:   record("R0"),
			want:   ActionUploadConflict,
		},
		{
			name:   "remote exactly at tolerance is a conflict",
			local:  local("L1", t0),
			remote: remote("R1", t0.Add(2*time.Second)),
			last:   record("R0"),
			want:   ActionUploadConflict,
		},
		{
			name:   "remote older is a conflict",
			local:  local("L1", t0),
			remote: remote("R1", t0.Add(-time.Hour)),
			last:   record("R0"),
			want:   ActionUploadConflict,
		},
		{
			name:   "no record and newer remote downloads",
			local:  local("L1", t0),
			remote: remote("R1", t0.Add(time.Minute)),
			want:   ActionDownloadUpdate,
		},
		{
			name:   "no record and remote without hash uploads",
			local:  local("L1", t0),
			remote: remote("", t0.Add(time.Minute)),
			want:   ActionUploadUpdate,
		},
		{
			name:   "empty remote without history is an unfinished upload",
			local:  local("L1", t0),
			remote: remote(emptyContentHash, t0.Add(time.Hour)),
			want:   ActionUploadUpdate,
		},
		{
			name:   "remote emptied after a sync downloads",
			local:  local("L1", t0),
			remote: remote(emptyContentHash, t0.Add(time.Hour)),
			last:   record("L1"),
			want:   ActionDownloadUpdate,
		},
		{
			name:   "empty hashes are never identical",
			local:  local("", t0),
			remote: remote("", t0.Add(time.Minute)),
			last:   record("R0"),
			want:   ActionDownloadUpdate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.local, tt.remote, tt.last))
		})
	}
}

func TestDecider_PropagateDeletes(t *testing.T) {
	t0 := time.Now()
	l := &LocalEntry{Path: "a", Hash: "L", ModTime: t0}
	r := &RemoteEntry{Path: "a", Hash: "R", ModTime: t0}
	rec := &SyncRecord{Path: "a", RemoteHash: "R"}

	off := Decider{}
	assert.Equal(t, ActionUploadNew, off.Decide(l, nil, rec))
	assert.Equal(t, ActionDownloadNew, off.Decide(nil, r, rec))

	on := Decider{PropagateDeletes: true}
	assert.Equal(t, ActionDeleteLocal, on.Decide(l, nil, rec))
	assert.Equal(t, ActionDeleteRemote, on.Decide(nil, r, rec))
	assert.Equal(t, ActionUploadNew, on.Decide(l, nil, nil), "never synced before")
	assert.Equal(t, ActionDownloadNew, on.Decide(nil, r, nil), "never synced before")
	assert.Equal(t, ActionUploadUpdate, on.Decide(l, r, rec), "both present falls through")
	assert.Equal(t, ActionSkipNoChange, on.Decide(nil, nil, rec))
}

func TestSyncAction_Kinds(t *testing.T) {
	assert.True(t, ActionUploadConflict.IsUpload())
	assert.True(t, ActionDownloadUpdate.IsDownload())
	assert.True(t, ActionSkipIdentical.IsSkip())
	assert.False(t, ActionDeleteLocal.IsSkip())
	assert.Equal(t, rootPath, parentOf("a.txt"))
	assert.Equal(t, "a/b", parentOf("a/b/c.txt"))
}
