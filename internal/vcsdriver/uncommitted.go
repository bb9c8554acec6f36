package vcsdriver

import (
	"context"
	"strings"
)

// UncommittedRecord describes one revision reachable from the working
// copy but not pushed to any remote bookmark. RepoName is left for the
// caller to fill in; the driver has no notion of repository identity.
type UncommittedRecord struct {
	ChangeID    string
	CommitID    string
	Description string
	Bookmark    string
}

// ListUncommitted returns revisions in ::@ that are not reachable from
// any remote bookmark.
func (d *Driver) ListUncommitted(ctx context.Context) ([]UncommittedRecord, error) {
	tmpl := "change_id ++ \"" + unitSep + "\" ++ commit_id ++ \"" + unitSep +
		"\" ++ description.first_line() ++ \"" + unitSep + "\" ++ local_bookmarks.join(\",\") ++ \"\\n\""

	out, err := d.runRead(ctx, "log", "-r", "::@ ~ ::remote_bookmarks()", "--no-graph", "-T", tmpl)
	if err != nil {
		return nil, err
	}

	var records []UncommittedRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, unitSep)
		if len(fields) < 3 {
			continue
		}
		rec := UncommittedRecord{
			ChangeID:    fields[0],
			CommitID:    fields[1],
			Description: fields[2],
		}
		if len(fields) >= 4 {
			bookmarks := strings.Split(fields[3], ",")
			if len(bookmarks) > 0 && bookmarks[0] != "" {
				rec.Bookmark = bookmarks[0]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
