package vcsdriver

import (
	"context"
	"strings"
)

// Bookmark is a single local bookmark, annotated with whether a remote
// tracking entry for it currently points at the same change.
type Bookmark struct {
	Name             string
	ChangeID         string
	SyncedWithRemote bool
}

// ListBookmarks returns every local bookmark via `jj bookmark list --all`.
//
// The local bookmark name is everything before @ and
// before :". jj prints remote-tracking lines as "name@remote: ...", so a
// line's bookmark name is always the text before the first '@' (if any)
// and the colon terminates the name/target split.
func (d *Driver) ListBookmarks(ctx context.Context) ([]Bookmark, error) {
	out, err := d.runRead(ctx, "bookmark", "list", "--all")
	if err != nil {
		return nil, err
	}

	type target struct {
		changeID string
		isRemote bool
	}
	order := []string{}
	byName := map[string][]target{}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}
		spec := line[:colon]
		rest := strings.TrimSpace(line[colon+1:])

		name := spec
		isRemote := false
		if at := strings.Index(spec, "@"); at >= 0 {
			name = spec[:at]
			isRemote = true
		}

		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		changeID := fields[0]

		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] = append(byName[name], target{changeID: changeID, isRemote: isRemote})
	}

	var bookmarks []Bookmark
	for _, name := range order {
		targets := byName[name]
		var localChangeID string
		synced := false
		for _, t := range targets {
			if !t.isRemote {
				localChangeID = t.changeID
			}
		}
		for _, t := range targets {
			if t.isRemote && t.changeID == localChangeID {
				synced = true
			}
		}
		if localChangeID == "" {
			// Only remote-tracking entries exist (bookmark deleted
			// locally but still tracked); not a local bookmark.
			continue
		}
		bookmarks = append(bookmarks, Bookmark{Name: name, ChangeID: localChangeID, SyncedWithRemote: synced})
	}

	return bookmarks, nil
}
