// Package manifest defines the schema-versioned document that is the
// single source of truth transferred between machines: which
// repositories and workspaces exist, at which revisions, which loose
// files and symlinks were captured, and where everything lives relative
// to the root directory the backup was taken from.
//
// Field declaration order below is deliberate: Go's encoding/json
// marshals struct fields in declaration order, so the struct itself is
// the serialization contract described in the data model — no extra
// ordering bookkeeping is required.
package manifest

import "time"

// CurrentVersion is written by new manifests that include loose files.
// Version 1 is reserved for manifests produced with --no-include-files.
const CurrentVersion = 2

// Manifest is the root document captured by a backup and consumed by a
// restore.
type Manifest struct {
	Version          int                  `json:"version"`
	CapturedAt       time.Time            `json:"captured_at"`
	Hostname         string               `json:"hostname"`
	RootDir          string               `json:"root_dir"`
	Workspaces       map[string]*RepoData `json:"workspaces"`
	Uncommitted      []UncommittedChange  `json:"uncommitted"`
	AgentInstructions string              `json:"agent_instructions,omitempty"`
	Files            []FileEntry          `json:"files,omitempty"`
	Symlinks         []SymlinkEntry       `json:"symlinks,omitempty"`
}

// RepoData describes a single repository captured under the manifest's
// root directory: its remotes and the workspaces backed onto it.
type RepoData struct {
	Remotes    map[string]string         `json:"remotes"`
	Workspaces map[string]*WorkspaceData `json:"workspaces"`
}

// WorkspaceData captures a single workspace's identity: the absolute
// path it lives at, the change/commit it is parked on, and an optional
// bookmark that happens to point at that same change.
type WorkspaceData struct {
	Path            string `json:"path"`
	CurrentChangeID string `json:"current_change_id"`
	CurrentCommitID string `json:"current_commit_id"`
	Bookmark        string `json:"bookmark,omitempty"`
}

// UncommittedChange is recorded for human reference only; restore never
// acts on it (see spec's open question on the uncommitted list).
type UncommittedChange struct {
	RepoName    string `json:"repo_name"`
	ChangeID    string `json:"change_id"`
	CommitID    string `json:"commit_id"`
	Description string `json:"description"`
	Bookmark    string `json:"bookmark,omitempty"`
}

// FileEntry describes one loose file captured outside any workspace.
type FileEntry struct {
	RelativePath string    `json:"relative_path"`
	Size         int64     `json:"size"`
	Mtime        time.Time `json:"mtime"`
}

// SymlinkEntry describes one symlink captured outside any workspace,
// with both the link and its target stored relative to root_dir.
type SymlinkEntry struct {
	RelativePath string `json:"relative_path"`
	Target       string `json:"target"`
}

// NewManifest constructs an empty manifest for hostname at rootDir,
// stamped with the given capture time. includeFiles selects the schema
// version: version 2 when loose files/symlinks are part of the
// manifest, version 1 when --no-include-files was requested.
func NewManifest(hostname, rootDir string, capturedAt time.Time, includeFiles bool) *Manifest {
	version := 1
	if includeFiles {
		version = CurrentVersion
	}
	return &Manifest{
		Version:     version,
		CapturedAt:  capturedAt,
		Hostname:    hostname,
		RootDir:     rootDir,
		Workspaces:  make(map[string]*RepoData),
		Uncommitted: nil,
	}
}
