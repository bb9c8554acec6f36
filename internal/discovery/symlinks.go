package discovery

import (
	"os"
	"path/filepath"
	"strings"
)

// collectSymlinksIn gathers eligible symlinks directly inside dir: not
// inside a ".dotfiles" directory, and resolving (relative to dir) to a
// target still inside root_dir.
func (d *Discoverer) collectSymlinksIn(dir string, entries []os.DirEntry) {
	if d.insideDotfiles(dir) {
		return
	}
	for _, e := range entries {
		if e.Type()&os.ModeSymlink == 0 {
			continue
		}
		d.maybeCollectSymlink(dir, e.Name())
	}
}

func (d *Discoverer) insideDotfiles(dir string) bool {
	rel, err := filepath.Rel(d.RootDir, dir)
	if err != nil {
		return false
	}
	if rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == ".dotfiles" {
			return true
		}
	}
	return false
}

func (d *Discoverer) maybeCollectSymlink(dir, name string) {
	linkPath := filepath.Join(dir, name)
	rawTarget, err := os.Readlink(linkPath)
	if err != nil {
		d.Errors.Add("discovery", linkPath, err)
		return
	}

	resolvedTarget := rawTarget
	if !filepath.IsAbs(resolvedTarget) {
		resolvedTarget = filepath.Join(dir, resolvedTarget)
	}
	resolvedTarget = filepath.Clean(resolvedTarget)

	relLink, err := filepath.Rel(d.RootDir, linkPath)
	if err != nil {
		return
	}
	relTarget, err := filepath.Rel(d.RootDir, resolvedTarget)
	if err != nil || relTarget == ".." || strings.HasPrefix(relTarget, ".."+string(filepath.Separator)) {
		return
	}

	d.result.Symlinks = append(d.result.Symlinks, SymlinkEntry{
		RelativePath: filepath.ToSlash(relLink),
		Target:       filepath.ToSlash(relTarget),
	})
}
