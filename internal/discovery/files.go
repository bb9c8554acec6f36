package discovery

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// collectRootFiles gathers direct file children of root_dir, rule (a).
func (d *Discoverer) collectRootFiles() error {
	entries, err := os.ReadDir(d.RootDir)
	if err != nil {
		return err
	}
	d.collectDirectFiles(d.RootDir, entries)
	d.collectSymlinksIn(d.RootDir, entries)
	return nil
}

// collectDirectFiles gathers eligible direct file children of dir, used
// for root_dir (rule a) and workspace-tree parents (rule b).
func (d *Discoverer) collectDirectFiles(dir string, entries []os.DirEntry) {
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		d.maybeCollectFile(dir, e)
	}
}

// collectLooseSubtree recursively collects eligible files under dir,
// stopping at workspace interiors, dot-directories, and the skip set
// (rule c).
func (d *Discoverer) collectLooseSubtree(dir string) {
	if isWorkspaceDir(dir) {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		d.Errors.Add("discovery", dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			if shouldSkipDir(e.Name()) {
				continue
			}
			d.collectLooseSubtree(filepath.Join(dir, e.Name()))
			continue
		}
		d.maybeCollectFile(dir, e)
	}
}

func isWorkspaceDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".jj"))
	return err == nil && info.IsDir()
}

// maybeCollectFile applies the loose-file eligibility rules: regular
// file, non-dot name, size at most 10 MiB, no NUL byte in the first 8
// KiB.
func (d *Discoverer) maybeCollectFile(dir string, e os.DirEntry) {
	name := e.Name()
	if strings.HasPrefix(name, ".") {
		return
	}
	if e.Type()&os.ModeSymlink != 0 {
		return
	}
	info, err := e.Info()
	if err != nil {
		d.Errors.Add("discovery", filepath.Join(dir, name), err)
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	if info.Size() > maxLooseFileSize {
		return
	}

	abs := filepath.Join(dir, name)
	if hasNulPrefix(abs) {
		return
	}

	rel, err := filepath.Rel(d.RootDir, abs)
	if err != nil {
		d.Errors.Add("discovery", abs, err)
		return
	}

	d.result.Files = append(d.result.Files, FileEntry{
		RelativePath: filepath.ToSlash(rel),
		AbsolutePath: abs,
		Size:         info.Size(),
	})
}

func hasNulPrefix(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true // unreadable; exclude rather than risk a bad entry
	}
	defer f.Close()

	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return true
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
