package vcsdriver

import (
	"context"
	"fmt"
	"strings"
)

// ListWorkspaces returns the names of every workspace registered against
// this repository, via `jj workspace list`.
func (d *Driver) ListWorkspaces(ctx context.Context) ([]string, error) {
	out, err := d.runRead(ctx, "workspace", "list")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}
		names = append(names, strings.TrimSpace(line[:colon]))
	}
	return names, nil
}

// AddWorkspace creates a named secondary workspace at path, colocated
// with the same Git backend as the primary repository. It must be run
// from within the primary repository (or an existing workspace of it);
// d.Dir is that directory.
func (d *Driver) AddWorkspace(ctx context.Context, name, path string) error {
	_, err := d.run(ctx, d.timeout(), "workspace", "add", "--name", name, path)
	return err
}

// Clone creates a new checkout at dest from url with a colocated Git
// backend, bounded by the driver's CloneTimeout. On failure the partial
// target directory is removed before the error is reported.
func (d *Driver) Clone(ctx context.Context, url, dest string) error {
	timeout := d.CloneTimeout
	if timeout <= 0 {
		timeout = CloneTimeout
	}

	cloner := &Driver{Dir: d.Dir, Bin: d.Bin}
	_, err := cloner.run(ctx, timeout, "git", "clone", "--colocate", url, dest)
	if err != nil {
		removePartial(dest)
		return fmt.Errorf("clone %s into %s: %w", url, dest, err)
	}
	return nil
}

// AddRemote registers an additional remote on an already-cloned
// repository, via `jj git remote add`.
func (d *Driver) AddRemote(ctx context.Context, name, url string) error {
	_, err := d.run(ctx, d.timeout(), "git", "remote", "add", name, url)
	return err
}
