// Package backup composes discovery, the manifest model, and the
// object-store client into the capture side of the workflow: discover
// the source tree, build a manifest in memory, upload files and agent
// directories, then upload the manifest as the atomic commit point.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sjawhar/devenv/internal/agentsync"
	"github.com/sjawhar/devenv/internal/discovery"
	"github.com/sjawhar/devenv/internal/errorlist"
	"github.com/sjawhar/devenv/internal/manifest"
	"github.com/sjawhar/devenv/internal/objectstore"
	"github.com/sjawhar/devenv/internal/s3url"
	"github.com/sjawhar/devenv/internal/safety"
	"github.com/sjawhar/devenv/internal/vcsdriver"
)

// Options configures a single backup invocation, matching the `backup`
// CLI verb's flags.
type Options struct {
	RootDir           string
	Base              string
	Name              string
	Machine           string
	AgentInstructions string
	ClaudeDirSource   string
	OpenCodeDirSource string
	IncludeFiles      bool
	DryRun            bool
}

// Result summarizes a completed (or dry-run) backup for the CLI to
// report.
type Result struct {
	RunID       string
	Manifest    *manifest.Manifest
	Bucket      string
	Prefix      string
	Name        string
	FilesTried  int
	AgentFilesA int
	AgentFilesB int
	DryRun      bool
}

// Orchestrator runs backups. NewDriver and Store are overridable for
// tests.
type Orchestrator struct {
	Store     objectstore.Client
	NewDriver discovery.NewDriverFunc
	Logger    *log.Logger
	Errors    *errorlist.List
}

// DiscoverOptions configures a standalone discovery-to-manifest build:
// the same walk-and-query logic Run performs before ever touching the
// object store, exposed on its own for the `manifest` CLI verb's local
// preview.
type DiscoverOptions struct {
	RootDir           string
	Machine           string
	AgentInstructions string
	IncludeFiles      bool
	NewDriver         discovery.NewDriverFunc
	Logger            *log.Logger
	Errors            *errorlist.List
}

// DiscoverManifest walks opts.RootDir, queries every discovered
// repository's VCS state, and builds an in-memory manifest. It never
// touches the object store. The discovery.Result is also returned so
// Run can reuse it for uploads without re-walking the tree.
func DiscoverManifest(ctx context.Context, opts DiscoverOptions) (*manifest.Manifest, *discovery.Result, error) {
	newDriver := opts.NewDriver
	if newDriver == nil {
		newDriver = vcsdriver.New
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[backup] ", log.LstdFlags)
	}
	errs := opts.Errors
	if errs == nil {
		errs = errorlist.New()
	}

	hostname := opts.Machine
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			h = "unknown"
		}
		hostname = safety.SanitizeHostname(h)
	}
	if err := safety.CheckName("machine name", hostname); err != nil {
		return nil, nil, err
	}

	d := &discovery.Discoverer{RootDir: opts.RootDir, NewDriver: newDriver, Logger: logger, Errors: errs}
	found, err := d.Discover(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("discovery: %w", err)
	}

	capturedAt := time.Now().UTC()
	m := manifest.NewManifest(hostname, opts.RootDir, capturedAt, opts.IncludeFiles)
	m.AgentInstructions = opts.AgentInstructions

	builder := &Orchestrator{NewDriver: newDriver, Logger: logger, Errors: errs}
	builder.buildRepos(ctx, m, found)

	for _, f := range found.Files {
		info, err := os.Stat(f.AbsolutePath)
		if err != nil {
			errs.Add("backup", f.RelativePath, err)
			continue
		}
		m.Files = append(m.Files, manifest.FileEntry{
			RelativePath: f.RelativePath,
			Size:         f.Size,
			Mtime:        info.ModTime().UTC(),
		})
	}
	for _, s := range found.Symlinks {
		m.Symlinks = append(m.Symlinks, manifest.SymlinkEntry{RelativePath: s.RelativePath, Target: s.Target})
	}

	return m, found, nil
}

// Run executes one backup.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	if o.Logger == nil {
		o.Logger = log.New(os.Stderr, "[backup] ", log.LstdFlags)
	}
	if o.NewDriver == nil {
		o.NewDriver = vcsdriver.New
	}
	if o.Errors == nil {
		o.Errors = errorlist.New()
	}

	runID := uuid.New().String()
	o.Logger.Printf("run %s: starting backup of %s", runID, opts.RootDir)

	name := opts.Name
	if name == "" {
		name = time.Now().UTC().Format("2006-01-02T15-04-05Z")
	}
	if err := safety.CheckName("backup name", name); err != nil {
		return nil, err
	}

	bucket, prefix, err := s3url.Parse(opts.Base)
	if err != nil {
		return nil, err
	}

	m, found, err := DiscoverManifest(ctx, DiscoverOptions{
		RootDir:           opts.RootDir,
		Machine:           opts.Machine,
		AgentInstructions: opts.AgentInstructions,
		IncludeFiles:      opts.IncludeFiles,
		NewDriver:         o.NewDriver,
		Logger:            o.Logger,
		Errors:            o.Errors,
	})
	if err != nil {
		return nil, err
	}
	hostname := m.Hostname

	result := &Result{RunID: runID, Manifest: m, Bucket: bucket, Prefix: prefix, Name: name, FilesTried: len(found.Files), DryRun: opts.DryRun}

	if opts.DryRun {
		o.Logger.Printf("dry run: would upload %d repos, %d files, manifest to s3://%s/%s",
			len(m.Workspaces), len(m.Files), bucket, s3url.Join(prefix, hostname, name, "manifest.json"))
		return result, nil
	}

	backupPrefix := s3url.Join(prefix, hostname, name)

	if err := o.uploadFiles(ctx, found, backupPrefix); err != nil {
		o.Errors.Add("backup", "files", err)
	}

	if opts.ClaudeDirSource != "" {
		n, err := o.syncAgentDir(ctx, opts.ClaudeDirSource, s3url.Join(prefix, "claude-code", hostname), agentsync.IncludeA, nil)
		if err != nil {
			o.Errors.Add("backup", "claude-code", err)
		}
		result.AgentFilesA = n
	}
	if opts.OpenCodeDirSource != "" {
		n, err := o.syncAgentDir(ctx, opts.OpenCodeDirSource, s3url.Join(prefix, "opencode", hostname), agentsync.IncludeB, nil)
		if err != nil {
			o.Errors.Add("backup", "opencode", err)
		}
		result.AgentFilesB = n
	}

	var buf bytes.Buffer
	if err := manifest.Encode(&buf, m); err != nil {
		return result, fmt.Errorf("encoding manifest: %w", err)
	}
	manifestKey := s3url.Join(backupPrefix, "manifest.json")
	if err := o.Store.UploadBytes(ctx, manifestKey, buf.Bytes()); err != nil {
		return result, fmt.Errorf("uploading manifest (atomic commit point): %w", err)
	}

	return result, nil
}

// buildRepos populates m.Workspaces and m.Uncommitted from discovered
// repositories, querying each workspace's current state via the VCS
// driver. A workspace whose state can't be read is dropped with an
// accumulated error rather than failing the whole backup.
func (o *Orchestrator) buildRepos(ctx context.Context, m *manifest.Manifest, found *discovery.Result) {
	for name, repo := range found.Repos {
		rd := &manifest.RepoData{
			Remotes:    repo.Remotes,
			Workspaces: map[string]*manifest.WorkspaceData{},
		}
		for wsName, ws := range repo.Workspaces {
			drv := o.NewDriver(ws.Path)
			state, err := drv.CurrentState(ctx)
			if err != nil {
				o.Errors.Add("backup", name+"/"+wsName, err)
				continue
			}
			rd.Workspaces[wsName] = &manifest.WorkspaceData{
				Path:            ws.Path,
				CurrentChangeID: state.ChangeID,
				CurrentCommitID: state.CommitID,
				Bookmark:        state.Bookmark,
			}
			if state.Divergent {
				o.Logger.Printf("warning: %s/%s is divergent", name, wsName)
			}
		}
		if _, ok := rd.Workspaces["default"]; !ok {
			o.Errors.Add("backup", name, fmt.Errorf("no readable default workspace, dropping repo"))
			continue
		}
		m.Workspaces[name] = rd

		drv := o.NewDriver(repo.PrimaryPath)
		uncommitted, err := drv.ListUncommitted(ctx)
		if err != nil {
			o.Errors.Add("backup", name, err)
			continue
		}
		for _, u := range uncommitted {
			m.Uncommitted = append(m.Uncommitted, manifest.UncommittedChange{
				RepoName:    name,
				ChangeID:    u.ChangeID,
				CommitID:    u.CommitID,
				Description: u.Description,
				Bookmark:    u.Bookmark,
			})
		}
	}
}

// uploadFiles uploads every discovered loose file in parallel, bounded
// by the object-store's own concurrency cap.
func (o *Orchestrator) uploadFiles(ctx context.Context, found *discovery.Result, backupPrefix string) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(objectstore.MaxConcurrentOps)

	for _, f := range found.Files {
		f := f
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			key := s3url.Join(backupPrefix, "files", f.RelativePath)
			if err := o.Store.UploadFile(gctx, key, f.AbsolutePath); err != nil {
				o.Errors.Add("backup", f.RelativePath, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// syncAgentDir walks srcDir and uploads every file whose relative path
// include accepts, under destPrefix. If after is non-nil, files with an
// older modification time are skipped.
func (o *Orchestrator) syncAgentDir(ctx context.Context, srcDir, destPrefix string, include func(string) bool, after *time.Time) (int, error) {
	if _, err := os.Stat(srcDir); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	type job struct {
		rel, abs string
	}
	var jobs []job
	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !include(rel) {
			return nil
		}
		if after != nil {
			info, err := d.Info()
			if err == nil && info.ModTime().Before(*after) {
				return nil
			}
		}
		jobs = append(jobs, job{rel: rel, abs: path})
		return nil
	})
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(objectstore.MaxConcurrentOps)
	for _, j := range jobs {
		j := j
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			key := s3url.Join(destPrefix, j.rel)
			if err := o.Store.UploadFile(gctx, key, j.abs); err != nil {
				o.Errors.Add("backup", j.rel, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(jobs), err
	}
	return len(jobs), nil
}
