// Package discovery walks a root directory once, classifying every
// directory as a primary repository, a secondary workspace, a
// workspace-tree parent, or an ordinary directory, and enumerating the
// loose files and symlinks eligible for backup.
package discovery

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sjawhar/devenv/internal/errorlist"
	"github.com/sjawhar/devenv/internal/vcsdriver"
)

// skipDirs is the fixed dependency/cache noise set that is never
// descended into.
var skipDirs = map[string]bool{
	"node_modules": true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".cache":       true,
	"target":       true,
	"dist":         true,
	".cargo":       true,
	".rustup":      true,
	".mise":        true,
	".local":       true,
	".npm":         true,
	".bun":         true,
	"go":           true,
	".gradle":      true,
	".m2":          true,
}

// dotAllowSet lists dot-directory names that are descended into despite
// starting with ".".
var dotAllowSet = map[string]bool{
	".dotfiles": true,
}

const maxLooseFileSize = 10 * 1024 * 1024 // 10 MiB
const sniffSize = 8 * 1024                // 8 KiB

// Workspace is a single workspace belonging to a repository: its name
// ("default" for the primary) and absolute path.
type Workspace struct {
	Name string
	Path string
}

// Repo is a discovered primary repository: its unique name, the
// filesystem path of its primary (default) workspace, its remotes, and
// every workspace (including "default") backed onto it.
type Repo struct {
	Name        string
	PrimaryPath string
	Remotes     map[string]string
	Workspaces  map[string]Workspace
}

// FileEntry is a discovered loose file, with a path relative to root.
type FileEntry struct {
	RelativePath string
	AbsolutePath string
	Size         int64
}

// SymlinkEntry is a discovered loose symlink, both paths relative to
// root.
type SymlinkEntry struct {
	RelativePath string
	Target       string
}

// Result is everything Discover found.
type Result struct {
	Repos    map[string]*Repo
	Files    []FileEntry
	Symlinks []SymlinkEntry
}

// NewDriverFunc constructs a vcsdriver.Driver rooted at dir; overridable
// in tests.
type NewDriverFunc func(dir string) *vcsdriver.Driver

// Discoverer walks a root directory and classifies its contents.
type Discoverer struct {
	RootDir   string
	NewDriver NewDriverFunc
	Logger    *log.Logger
	Errors    *errorlist.List

	secondaryByJJDir map[string]secondaryRef // .jj dir path -> pending secondary workspace
	names            map[string]int          // base name -> next disambiguation suffix
	result           *Result
}

type secondaryRef struct {
	workspaceDir string
	jjFile       string // contents of .jj/repo file: points at primary .jj dir
}

// Discover runs the walk and returns the classified result.
func (d *Discoverer) Discover(ctx context.Context) (*Result, error) {
	if d.Logger == nil {
		d.Logger = log.New(os.Stderr, "[discovery] ", log.LstdFlags)
	}
	if d.NewDriver == nil {
		d.NewDriver = vcsdriver.New
	}
	if d.Errors == nil {
		d.Errors = errorlist.New()
	}

	d.secondaryByJJDir = map[string]secondaryRef{}
	d.names = map[string]int{}
	d.result = &Result{Repos: map[string]*Repo{}}

	primaries := map[string]*primaryRef{}

	if err := d.collectRootFiles(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(d.RootDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if shouldSkipDir(e.Name()) {
			continue
		}
		sub := filepath.Join(d.RootDir, e.Name())
		d.classify(ctx, sub, primaries)
	}

	d.resolveSecondaries(ctx, primaries)
	d.assignNames(primaries)

	return d.result, nil
}

type primaryRef struct {
	jjDir      string
	path       string
	remotes    map[string]string
	workspaces map[string]Workspace // keyed by workspace name
}

func shouldSkipDir(name string) bool {
	if skipDirs[name] {
		return true
	}
	if strings.HasPrefix(name, ".") && !dotAllowSet[name] {
		return true
	}
	return false
}

// classify recursively visits dir, recording primary/secondary
// workspaces, workspace-tree parents (and their loose files), and loose
// symlinks. It returns whether dir itself is a workspace.
func (d *Discoverer) classify(ctx context.Context, dir string, primaries map[string]*primaryRef) bool {
	jjDir := filepath.Join(dir, ".jj")
	if info, err := os.Stat(jjDir); err == nil && info.IsDir() {
		d.classifyWorkspace(dir, jjDir, primaries)
		return true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		d.Errors.Add("discovery", dir, err)
		return false
	}

	d.collectSymlinksIn(dir, entries)

	var childDirs []string
	var childWorkspaces []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if shouldSkipDir(e.Name()) {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		childDirs = append(childDirs, sub)
		if d.classify(ctx, sub, primaries) {
			childWorkspaces = append(childWorkspaces, sub)
		}
	}

	if dir != d.RootDir && len(childWorkspaces) > 0 {
		d.collectDirectFiles(dir, entries)
		workspaceSet := map[string]bool{}
		for _, w := range childWorkspaces {
			workspaceSet[w] = true
		}
		for _, sub := range childDirs {
			if workspaceSet[sub] {
				continue
			}
			d.collectLooseSubtree(sub)
		}
	}

	return false
}

// classifyWorkspace records dir (which has a .jj subdirectory) as either
// a primary repository or a secondary workspace.
func (d *Discoverer) classifyWorkspace(dir, jjDir string, primaries map[string]*primaryRef) {
	repoMarker := filepath.Join(jjDir, "repo")
	info, err := os.Stat(repoMarker)
	if err != nil {
		d.Errors.Add("discovery", dir, err)
		return
	}

	if info.IsDir() {
		// Primary repository.
		primaries[jjDir] = &primaryRef{
			jjDir:      jjDir,
			path:       dir,
			workspaces: map[string]Workspace{"default": {Name: "default", Path: dir}},
		}
		return
	}

	// Secondary workspace: repoMarker is a file naming the primary's
	// .jj location (relative or absolute).
	content, err := os.ReadFile(repoMarker)
	if err != nil {
		d.Errors.Add("discovery", dir, err)
		return
	}
	target := strings.TrimSpace(string(content))
	if !filepath.IsAbs(target) {
		target = filepath.Join(jjDir, target)
	}
	target = filepath.Clean(target)

	d.secondaryByJJDir[target] = secondaryRef{workspaceDir: dir, jjFile: target}
}

// resolveSecondaries attaches every discovered secondary workspace to
// its primary repository and fetches remotes for every primary.
func (d *Discoverer) resolveSecondaries(ctx context.Context, primaries map[string]*primaryRef) {
	for jjDir, primary := range primaries {
		drv := d.NewDriver(primary.path)
		remotes, err := drv.ListRemotes(ctx)
		if err != nil {
			d.Errors.Add("discovery", primary.path, err)
		}
		primary.remotes = map[string]string{}
		for _, r := range remotes {
			primary.remotes[r.Name] = r.URL
		}

		_ = jjDir // primaries keyed by jjDir for lookup below
	}

	for targetJJDir, sec := range d.secondaryByJJDir {
		primary, ok := primaries[targetJJDir]
		if !ok {
			d.Errors.Add("discovery", sec.workspaceDir, errUnresolvedSecondary(sec.workspaceDir))
			continue
		}
		name := filepath.Base(sec.workspaceDir)
		primary.workspaces[name] = Workspace{Name: name, Path: sec.workspaceDir}
	}
}

type unresolvedSecondaryError struct{ dir string }

func (e *unresolvedSecondaryError) Error() string {
	return "secondary workspace " + e.dir + " points at a primary repository that was not discovered under root"
}

func errUnresolvedSecondary(dir string) error { return &unresolvedSecondaryError{dir: dir} }

// assignNames derives each repository's manifest name from its origin
// remote (or first remote if no origin), disambiguating collisions with
// a numeric suffix, and drops repositories with no valid-scheme remote.
func (d *Discoverer) assignNames(primaries map[string]*primaryRef) {
	// Deterministic order: sort by primary path so disambiguation
	// suffixes are stable across runs.
	var paths []string
	byPath := map[string]*primaryRef{}
	for _, p := range primaries {
		paths = append(paths, p.path)
		byPath[p.path] = p
	}
	sort.Strings(paths)

	for _, path := range paths {
		p := byPath[path]
		base, ok := deriveRepoName(p.remotes)
		if !ok {
			d.Errors.Add("discovery", p.path, errNoValidRemote(p.path))
			continue
		}

		name := base
		if n, exists := d.names[base]; exists {
			name = base + "-" + itoa(n)
			d.names[base] = n + 1
		} else {
			d.names[base] = 1
		}

		d.result.Repos[name] = &Repo{
			Name:        name,
			PrimaryPath: p.path,
			Remotes:     p.remotes,
			Workspaces:  p.workspaces,
		}
	}
}

type noValidRemoteError struct{ dir string }

func (e *noValidRemoteError) Error() string { return "repository " + e.dir + " has no remote with an allowed URL scheme" }

func errNoValidRemote(dir string) error { return &noValidRemoteError{dir: dir} }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

// deriveRepoName picks the origin remote (or first remote, in sorted
// key order for determinism) with an allowed URL scheme and returns its
// final path segment, trailing ".git" stripped.
func deriveRepoName(remotes map[string]string) (string, bool) {
	pick := func(url string) (string, bool) {
		url = strings.TrimRight(url, "/")
		idx := strings.LastIndexAny(url, "/:")
		seg := url
		if idx >= 0 && idx+1 < len(url) {
			seg = url[idx+1:]
		}
		seg = strings.TrimSuffix(seg, ".git")
		if seg == "" {
			return "", false
		}
		return seg, true
	}

	if url, ok := remotes["origin"]; ok && isAllowedScheme(url) {
		return pick(url)
	}

	var names []string
	for name := range remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		url := remotes[name]
		if isAllowedScheme(url) {
			return pick(url)
		}
	}
	return "", false
}

var allowedSchemePrefixes = []string{"https://", "http://", "git@", "ssh://", "git://"}

func isAllowedScheme(url string) bool {
	for _, p := range allowedSchemePrefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}
