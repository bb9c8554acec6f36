// Package restore implements the capture side's inverse: download a
// manifest, validate every path it names, clone missing repositories,
// pin every workspace to its recorded revision, restore loose files,
// and realize symlinks last.
package restore

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sjawhar/devenv/internal/agentsync"
	"github.com/sjawhar/devenv/internal/errorlist"
	"github.com/sjawhar/devenv/internal/lockfile"
	"github.com/sjawhar/devenv/internal/manifest"
	"github.com/sjawhar/devenv/internal/objectstore"
	"github.com/sjawhar/devenv/internal/s3url"
	"github.com/sjawhar/devenv/internal/vcsdriver"
)

// MaxConcurrentClones bounds simultaneous `jj git clone` invocations.
const MaxConcurrentClones = 4

// Options configures a single restore invocation, matching the
// `restore` CLI verb's flags.
type Options struct {
	Base                   string
	Name                   string
	Machine                string
	ClaudeDirDestination   string
	OpenCodeDirDestination string
	ManifestFile           string
	SessionsAfter          *time.Time
	Force                  bool
	DryRun                 bool
}

// Result summarizes a completed (or dry-run) restore for the CLI to
// report.
type Result struct {
	RunID           string
	Manifest        *manifest.Manifest
	ClonedRepos     []string
	FilesRestored   int
	FilesSkipped    int
	SymlinksCreated int
	SymlinksSkipped int
	AgentFilesA     int
	AgentFilesB     int
	AgentSkippedA   int
	AgentSkippedB   int
	DryRun          bool
}

// NewDriverFunc constructs a vcsdriver.Driver rooted at dir; overridable
// in tests.
type NewDriverFunc func(dir string) *vcsdriver.Driver

// Orchestrator runs restores.
type Orchestrator struct {
	Store     objectstore.Client
	NewDriver NewDriverFunc
	Logger    *log.Logger
	Errors    *errorlist.List
}

func (o *Orchestrator) init() {
	if o.Logger == nil {
		o.Logger = log.New(os.Stderr, "[restore] ", log.LstdFlags)
	}
	if o.NewDriver == nil {
		o.NewDriver = vcsdriver.New
	}
	if o.Errors == nil {
		o.Errors = errorlist.New()
	}
}

// Run executes one restore: fetch and validate the manifest, clone or
// reuse repos, pin workspaces, download files, realize symlinks, and
// sync agent directories.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	o.init()

	runID := uuid.New().String()
	o.Logger.Printf("run %s: starting restore", runID)

	m, basePrefix, backupPrefix, err := o.fetchManifest(ctx, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: runID, Manifest: m, DryRun: opts.DryRun}
	if opts.DryRun {
		o.Logger.Printf("dry run: would restore %d repos, %d files, %d symlinks",
			len(m.Workspaces), len(m.Files), len(m.Symlinks))
		return result, nil
	}

	lock, err := lockfile.Acquire(ctx, m.RootDir)
	if err != nil {
		return result, fmt.Errorf("acquiring restore lock: %w", err)
	}
	defer lock.Release()

	onDisk, needsClone := o.partitionRepos(m)
	if err := o.cloneRepos(ctx, needsClone); err != nil {
		return result, err
	}
	for name := range needsClone {
		result.ClonedRepos = append(result.ClonedRepos, name)
	}
	sort.Strings(result.ClonedRepos)

	allRepos := map[string]*manifest.RepoData{}
	for name, repo := range onDisk {
		allRepos[name] = repo
	}
	for name, repo := range needsClone {
		allRepos[name] = repo
	}

	o.pinDefaultWorkspaces(ctx, allRepos)
	o.createAndPinNonDefaultWorkspaces(ctx, allRepos)

	result.FilesRestored, result.FilesSkipped = o.downloadFiles(ctx, m, backupPrefix, opts.Force)
	result.SymlinksCreated, result.SymlinksSkipped = o.realizeSymlinks(m, opts.Force)

	if opts.ClaudeDirDestination != "" {
		n, s, err := o.downloadAgentDir(ctx, s3url.Join(basePrefix, "claude-code", m.Hostname), opts.ClaudeDirDestination, opts)
		if err != nil {
			o.Errors.Add("restore", "claude-code", err)
		}
		result.AgentFilesA, result.AgentSkippedA = n, s
	}
	if opts.OpenCodeDirDestination != "" {
		n, s, err := o.downloadAgentDir(ctx, s3url.Join(basePrefix, "opencode", m.Hostname), opts.OpenCodeDirDestination, opts)
		if err != nil {
			o.Errors.Add("restore", "opencode", err)
		}
		result.AgentFilesB, result.AgentSkippedB = n, s
	}

	return result, nil
}

// fetchManifest downloads (or reads from opts.ManifestFile) and decodes
// the manifest. Any error here — network, SchemaError, PathEscape,
// UrlSchemeRejected — aborts the restore before anything is written.
// It returns the bucket's base prefix (before {machine}/{name}) and the
// full backup prefix, both needed to derive download keys later; they
// are derived from opts.Base, so both are empty when only
// opts.ManifestFile is given.
func (o *Orchestrator) fetchManifest(ctx context.Context, opts Options) (m *manifest.Manifest, basePrefix, backupPrefix string, err error) {
	var data []byte

	if opts.Base != "" || opts.ManifestFile == "" {
		_, basePrefix, err = s3url.Parse(opts.Base)
		if err != nil {
			return nil, "", "", err
		}
		backupPrefix = s3url.Join(basePrefix, opts.Machine, opts.Name)
	}

	if opts.ManifestFile != "" {
		data, err = os.ReadFile(opts.ManifestFile)
		if err != nil {
			return nil, "", "", fmt.Errorf("reading manifest file: %w", err)
		}
	} else {
		key := s3url.Join(backupPrefix, "manifest.json")
		data, err = o.Store.DownloadBytes(ctx, key)
		if err != nil {
			return nil, "", "", fmt.Errorf("downloading manifest (backup not found or incomplete): %w", err)
		}
	}

	m, err = manifest.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", "", err
	}
	return m, basePrefix, backupPrefix, nil
}

func (o *Orchestrator) partitionRepos(m *manifest.Manifest) (onDisk, needsClone map[string]*manifest.RepoData) {
	onDisk = map[string]*manifest.RepoData{}
	needsClone = map[string]*manifest.RepoData{}
	for name, repo := range m.Workspaces {
		def, ok := repo.Workspaces["default"]
		if !ok {
			o.Errors.Add("restore", name, fmt.Errorf("manifest has no default workspace for this repo"))
			continue
		}
		if info, err := os.Stat(filepath.Join(def.Path, ".jj")); err == nil && info.IsDir() {
			onDisk[name] = repo
		} else {
			needsClone[name] = repo
		}
	}
	return onDisk, needsClone
}

func pickOriginURL(remotes map[string]string) (string, bool) {
	if url, ok := remotes["origin"]; ok {
		return url, true
	}
	var names []string
	for name := range remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "", false
	}
	return remotes[names[0]], true
}

// cloneRepos clones every repo in needsClone in parallel, bounded by
// MaxConcurrentClones, then registers every non-origin remote.
func (o *Orchestrator) cloneRepos(ctx context.Context, needsClone map[string]*manifest.RepoData) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(MaxConcurrentClones)

	for name, repo := range needsClone {
		name, repo := name, repo
		def := repo.Workspaces["default"]
		url, ok := pickOriginURL(repo.Remotes)
		if !ok {
			o.Errors.Add("restore", name, fmt.Errorf("no remote to clone from"))
			continue
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			parent := filepath.Dir(def.Path)
			if err := os.MkdirAll(parent, 0o755); err != nil {
				o.Errors.Add("restore", name, err)
				return nil
			}

			// Clone into a uniquely-named sibling directory first and
			// rename it into place, so a clone that's interrupted
			// mid-transfer never leaves a partial checkout visible at
			// def.Path.
			tmpDest := def.Path + ".restore-" + uuid.New().String()
			drv := o.NewDriver(parent)
			if err := drv.Clone(gctx, url, tmpDest); err != nil {
				o.Errors.Add("restore", name, err)
				return nil
			}
			if err := os.Rename(tmpDest, def.Path); err != nil {
				o.Errors.Add("restore", name, err)
				os.RemoveAll(tmpDest)
				return nil
			}

			cloneDrv := o.NewDriver(def.Path)
			for remoteName, remoteURL := range repo.Remotes {
				if remoteName == "origin" {
					continue
				}
				if err := cloneDrv.AddRemote(gctx, remoteName, remoteURL); err != nil {
					o.Errors.Add("restore", name, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// pin applies the pin procedure for one workspace.
func (o *Orchestrator) pin(ctx context.Context, drv *vcsdriver.Driver, repoName, wsName, changeID string) error {
	state, err := drv.CurrentState(ctx)
	if err != nil {
		return fmt.Errorf("%s/%s: reading current state: %w", repoName, wsName, err)
	}
	if state.ChangeID == changeID {
		return nil
	}
	if state.Divergent {
		o.Logger.Printf("warning: %s/%s is divergent before pinning", repoName, wsName)
	}
	if err := drv.EditRevision(ctx, changeID); err != nil {
		return fmt.Errorf("%s/%s: editing to %s: %w", repoName, wsName, changeID, err)
	}
	after, err := drv.CurrentState(ctx)
	if err != nil {
		return fmt.Errorf("%s/%s: reading state after edit: %w", repoName, wsName, err)
	}
	if after.ChangeID != changeID {
		return fmt.Errorf("%s/%s: expected change id %s after pin, got %s", repoName, wsName, changeID, after.ChangeID)
	}
	if after.Divergent {
		o.Logger.Printf("warning: %s/%s still divergent after pinning", repoName, wsName)
	}
	return nil
}

func (o *Orchestrator) pinDefaultWorkspaces(ctx context.Context, repos map[string]*manifest.RepoData) {
	var wg errgroup.Group
	for name, repo := range repos {
		name, repo := name, repo
		def, ok := repo.Workspaces["default"]
		if !ok {
			continue
		}
		wg.Go(func() error {
			drv := o.NewDriver(def.Path)
			if err := o.pin(ctx, drv, name, "default", def.CurrentChangeID); err != nil {
				o.Errors.Add("restore", name+"/default", err)
			}
			return nil
		})
	}
	_ = wg.Wait()
}

// createAndPinNonDefaultWorkspaces creates and pins every non-default
// workspace: serially within a repo, in parallel across repos.
func (o *Orchestrator) createAndPinNonDefaultWorkspaces(ctx context.Context, repos map[string]*manifest.RepoData) {
	var wg errgroup.Group
	for name, repo := range repos {
		name, repo := name, repo
		def, ok := repo.Workspaces["default"]
		if !ok {
			continue
		}
		var wsNames []string
		for wsName := range repo.Workspaces {
			if wsName != "default" {
				wsNames = append(wsNames, wsName)
			}
		}
		sort.Strings(wsNames)
		if len(wsNames) == 0 {
			continue
		}

		wg.Go(func() error {
			primary := o.NewDriver(def.Path)
			for _, wsName := range wsNames {
				ws := repo.Workspaces[wsName]
				if err := os.MkdirAll(filepath.Dir(ws.Path), 0o755); err != nil {
					o.Errors.Add("restore", name+"/"+wsName, err)
					continue
				}
				if _, err := os.Stat(filepath.Join(ws.Path, ".jj")); err != nil {
					if err := primary.AddWorkspace(ctx, wsName, ws.Path); err != nil {
						o.Errors.Add("restore", name+"/"+wsName, err)
						continue
					}
				}
				drv := o.NewDriver(ws.Path)
				if err := o.pin(ctx, drv, name, wsName, ws.CurrentChangeID); err != nil {
					o.Errors.Add("restore", name+"/"+wsName, err)
				}
			}
			return nil
		})
	}
	_ = wg.Wait()
}

// downloadFiles restores every FileEntry in parallel, skipping existing
// files unless force. Returns (restored, skipped) counts.
func (o *Orchestrator) downloadFiles(ctx context.Context, m *manifest.Manifest, backupPrefix string, force bool) (restored, skipped int) {
	type outcome struct{ restored, skipped bool }
	results := make([]outcome, len(m.Files))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(objectstore.MaxConcurrentOps)

	for i, f := range m.Files {
		i, f := i, f
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			dest := filepath.Join(m.RootDir, filepath.FromSlash(f.RelativePath))
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				o.Errors.Add("restore", f.RelativePath, err)
				return nil
			}
			key := s3url.Join(backupPrefix, "files", f.RelativePath)
			err := o.Store.DownloadFile(gctx, key, dest, force)
			switch {
			case err == objectstore.ErrSkipped:
				results[i] = outcome{skipped: true}
			case err != nil:
				o.Errors.Add("restore", f.RelativePath, err)
			default:
				results[i] = outcome{restored: true}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.skipped {
			skipped++
		} else if r.restored {
			restored++
		}
	}
	return restored, skipped
}

// realizeSymlinks creates every SymlinkEntry as a relative link, last,
// after every file and repository is in place.
func (o *Orchestrator) realizeSymlinks(m *manifest.Manifest, force bool) (created, skipped int) {
	for _, s := range m.Symlinks {
		linkPath := filepath.Join(m.RootDir, filepath.FromSlash(s.RelativePath))
		targetAbs := filepath.Join(m.RootDir, filepath.FromSlash(s.Target))

		if _, err := os.Lstat(linkPath); err == nil {
			if !force {
				skipped++
				continue
			}
			if err := os.Remove(linkPath); err != nil {
				o.Errors.Add("restore", s.RelativePath, err)
				continue
			}
		}

		if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
			o.Errors.Add("restore", s.RelativePath, err)
			continue
		}

		relTarget, err := filepath.Rel(filepath.Dir(linkPath), targetAbs)
		if err != nil {
			o.Errors.Add("restore", s.RelativePath, err)
			continue
		}
		if err := os.Symlink(relTarget, linkPath); err != nil {
			o.Errors.Add("restore", s.RelativePath, err)
			continue
		}
		created++
	}
	return created, skipped
}

// downloadAgentDir lists objects under srcPrefix and downloads each one
// into destDir, preserving the key's tail as a relative path and
// honoring opts.SessionsAfter and opts.Force.
func (o *Orchestrator) downloadAgentDir(ctx context.Context, srcPrefix, destDir string, opts Options) (downloaded, skippedByDate int, err error) {
	objects, err := o.Store.List(ctx, srcPrefix+"/")
	if err != nil {
		return 0, 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(objectstore.MaxConcurrentOps)
	var downloadedCount, skippedCount int

	for _, obj := range objects {
		obj := obj
		rel := relativeToPrefix(obj.Key, srcPrefix)
		if rel == "" {
			continue
		}
		if opts.SessionsAfter != nil && obj.LastModified.Before(*opts.SessionsAfter) {
			skippedCount++
			continue
		}
		if !agentsync.IncludeA(rel) && !agentsync.IncludeB(rel) {
			// Objects were already filtered at backup time; this is a
			// defense-in-depth check against a hand-edited bucket.
			continue
		}

		dest := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				o.Errors.Add("restore", rel, err)
				return nil
			}
			if err := o.Store.DownloadFile(gctx, obj.Key, dest, opts.Force); err != nil && err != objectstore.ErrSkipped {
				o.Errors.Add("restore", rel, err)
				return nil
			}
			downloadedCount++
			return nil
		})
	}
	_ = g.Wait()
	return downloadedCount, skippedCount, nil
}

func relativeToPrefix(key, prefix string) string {
	if len(key) <= len(prefix) {
		return ""
	}
	rel := key[len(prefix):]
	for len(rel) > 0 && rel[0] == '/' {
		rel = rel[1:]
	}
	return rel
}
