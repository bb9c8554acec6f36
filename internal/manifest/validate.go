package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sjawhar/devenv/internal/safety"
)

// allowedRemoteSchemePrefixes enumerates the prefixes a remote URL must
// start with to be accepted. "git@" is SCP-like syntax, not a URL
// scheme, but is accepted as a valid remote form.
var allowedRemoteSchemePrefixes = []string{
	"https://",
	"http://",
	"git@",
	"ssh://",
	"git://",
}

// IsAllowedRemoteURL reports whether url matches one of the allowed
// remote schemes.
func IsAllowedRemoteURL(url string) bool {
	for _, prefix := range allowedRemoteSchemePrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// Validate checks every invariant listed in the data model section:
// required fields, path containment, remote URL schemes, and the
// bookmark/change-id correspondence. It returns the first violation
// found; callers that want every violation should call ValidateAll.
func (m *Manifest) Validate() error {
	errs := m.ValidateAll()
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

// ValidateAll runs every check and returns all violations found, rather
// than stopping at the first.
func (m *Manifest) ValidateAll() []error {
	var errs []error

	if m.RootDir == "" {
		errs = append(errs, &SchemaError{Field: "root_dir", Reason: "must not be empty"})
		// Nothing else can be validated meaningfully without a root.
		return errs
	}
	if m.Version != 1 && m.Version != 2 {
		errs = append(errs, &SchemaError{Field: "version", Reason: fmt.Sprintf("unsupported version %d", m.Version)})
	}
	if m.Version == 1 && (len(m.Files) > 0 || len(m.Symlinks) > 0) {
		errs = append(errs, &SchemaError{Field: "files", Reason: "version 1 manifests must omit files and symlinks"})
	}
	if m.Hostname == "" {
		errs = append(errs, &SchemaError{Field: "hostname", Reason: "must not be empty"})
	}
	if m.CapturedAt.IsZero() {
		errs = append(errs, &SchemaError{Field: "captured_at", Reason: "must be set"})
	}

	for name, repo := range m.Workspaces {
		if repo == nil {
			errs = append(errs, &SchemaError{Field: "workspaces." + name, Reason: "must not be null"})
			continue
		}
		errs = append(errs, m.validateRepo(name, repo)...)
	}

	for i, f := range m.Files {
		errs = append(errs, m.validateFileEntry(i, f)...)
	}
	for i, s := range m.Symlinks {
		errs = append(errs, m.validateSymlinkEntry(i, s)...)
	}

	return errs
}

func (m *Manifest) validateRepo(name string, repo *RepoData) []error {
	var errs []error

	hasValidRemote := false
	for remoteName, url := range repo.Remotes {
		if !IsAllowedRemoteURL(url) {
			errs = append(errs, &UrlSchemeRejected{Remote: remoteName, URL: url})
			continue
		}
		hasValidRemote = true
	}
	if len(repo.Remotes) > 0 && !hasValidRemote {
		errs = append(errs, &SchemaError{Field: "workspaces." + name + ".remotes", Reason: "no remote with an allowed URL scheme"})
	}

	if _, ok := repo.Workspaces["default"]; !ok {
		errs = append(errs, &SchemaError{Field: "workspaces." + name + ".workspaces", Reason: "missing required \"default\" workspace"})
	}

	for wsName, ws := range repo.Workspaces {
		if ws == nil {
			errs = append(errs, &SchemaError{Field: fmt.Sprintf("workspaces.%s.workspaces.%s", name, wsName), Reason: "must not be null"})
			continue
		}
		field := fmt.Sprintf("workspaces.%s.workspaces.%s", name, wsName)
		if ws.CurrentChangeID == "" {
			errs = append(errs, &SchemaError{Field: field + ".current_change_id", Reason: "must not be empty"})
		}
		if ws.CurrentCommitID == "" {
			errs = append(errs, &SchemaError{Field: field + ".current_commit_id", Reason: "must not be empty"})
		}
		if ws.Path == "" {
			errs = append(errs, &SchemaError{Field: field + ".path", Reason: "must not be empty"})
		} else if err := safety.CheckInsideRoot(m.RootDir, ws.Path); err != nil {
			errs = append(errs, &PathEscape{Field: field + ".path", Path: ws.Path, Root: m.RootDir})
		}
		// Bookmark invariant: only meaningful when also carrying the
		// change id it is supposed to match. The manifest alone cannot
		// re-derive "the bookmark's change id" (that requires the live
		// repository state captured at write time); the writer
		// guarantees the invariant and this check only rejects the
		// degenerate case of a bookmark recorded with no change id.
		if ws.Bookmark != "" && ws.CurrentChangeID == "" {
			errs = append(errs, &SchemaError{Field: field + ".bookmark", Reason: "bookmark recorded without a current_change_id to match"})
		}
	}

	return errs
}

func (m *Manifest) validateFileEntry(i int, f FileEntry) []error {
	var errs []error
	field := fmt.Sprintf("files[%d]", i)
	if f.RelativePath == "" {
		errs = append(errs, &SchemaError{Field: field + ".relative_path", Reason: "must not be empty"})
		return errs
	}
	if strings.HasPrefix(f.RelativePath, "/") {
		errs = append(errs, &SchemaError{Field: field + ".relative_path", Reason: "must not be absolute"})
	}
	if pathHasDotDotSegment(f.RelativePath) {
		errs = append(errs, &PathEscape{Field: field + ".relative_path", Path: f.RelativePath, Root: m.RootDir})
	}
	if err := safety.CheckInsideRoot(m.RootDir, f.RelativePath); err != nil {
		errs = append(errs, &PathEscape{Field: field + ".relative_path", Path: f.RelativePath, Root: m.RootDir})
	}
	return errs
}

func (m *Manifest) validateSymlinkEntry(i int, s SymlinkEntry) []error {
	var errs []error
	field := fmt.Sprintf("symlinks[%d]", i)
	if s.RelativePath == "" {
		errs = append(errs, &SchemaError{Field: field + ".relative_path", Reason: "must not be empty"})
	} else if err := safety.CheckInsideRoot(m.RootDir, s.RelativePath); err != nil {
		errs = append(errs, &PathEscape{Field: field + ".relative_path", Path: s.RelativePath, Root: m.RootDir})
	}
	if s.Target == "" {
		errs = append(errs, &SchemaError{Field: field + ".target", Reason: "must not be empty"})
	} else if err := safety.CheckInsideRoot(m.RootDir, s.Target); err != nil {
		errs = append(errs, &PathEscape{Field: field + ".target", Path: s.Target, Root: m.RootDir})
	}
	return errs
}

func pathHasDotDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// Encode writes the manifest as deterministically-ordered, indented JSON.
func Encode(w io.Writer, m *Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(m)
}

// Decode reads and schema-validates a manifest from r. A structurally
// malformed document is reported as a SchemaError; a well-formed but
// invariant-violating document is reported as whatever ValidateAll's
// first error is (PathEscape, UrlSchemeRejected, or SchemaError).
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, &SchemaError{Field: "<root>", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
