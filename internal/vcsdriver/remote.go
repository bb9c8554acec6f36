package vcsdriver

import (
	"context"
	"strings"
)

// Remote is a single configured remote.
type Remote struct {
	Name string
	URL  string
}

// ListRemotes returns the repository's configured remotes via
// `jj git remote list`, which prints one "name url" pair per line for a
// colocated (or plain jj-on-git) repository.
func (d *Driver) ListRemotes(ctx context.Context) ([]Remote, error) {
	out, err := d.runRead(ctx, "git", "remote", "list")
	if err != nil {
		return nil, err
	}

	var remotes []Remote
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		remotes = append(remotes, Remote{Name: fields[0], URL: fields[1]})
	}
	return remotes, nil
}
