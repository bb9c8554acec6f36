package vcsdriver

import (
	"context"
	"strings"
)

// WorkingCopyState is the result of the "current state" operation:
// the working copy's change id, commit id, and the local bookmark (if
// any) currently pointing at that change.
type WorkingCopyState struct {
	ChangeID  string
	CommitID  string
	Bookmark  string
	Divergent bool
}

// unitSep delimits jj template output so fields containing
// arbitrary text (descriptions, bookmark names) can't be confused with
// the delimiters themselves.
const unitSep = "\x1f"

// CurrentState returns the working copy's change id, commit id, and any
// local bookmark whose target is exactly that change (see the bookmark
// invariant: a bookmark is only ever reported alongside a change id it
// truly matches).
func (d *Driver) CurrentState(ctx context.Context) (WorkingCopyState, error) {
	tmpl := "change_id ++ \"" + unitSep + "\" ++ commit_id ++ \"" + unitSep + "\" ++ local_bookmarks.join(\",\")"
	out, err := d.runRead(ctx, "log", "-r", "@", "-n", "1", "--no-graph", "-T", tmpl)
	if err != nil {
		return WorkingCopyState{}, err
	}

	line := strings.TrimSpace(out)
	fields := strings.Split(line, unitSep)
	if len(fields) < 2 {
		return WorkingCopyState{}, &Failure{Kind: ParseError, Reason: "expected change_id" + unitSep + "commit_id[" + unitSep + "bookmarks], got: " + line}
	}

	state := WorkingCopyState{
		ChangeID: strings.TrimSpace(fields[0]),
		CommitID: strings.TrimSpace(fields[1]),
	}
	if state.ChangeID == "" || state.CommitID == "" {
		return WorkingCopyState{}, &Failure{Kind: ParseError, Reason: "empty change_id or commit_id in: " + line}
	}
	if len(fields) >= 3 {
		bookmarks := strings.Split(fields[2], ",")
		if len(bookmarks) > 0 && strings.TrimSpace(bookmarks[0]) != "" {
			state.Bookmark = strings.TrimSpace(bookmarks[0])
		}
	}

	// A second read for divergence: `jj log` marks a divergent
	// change with "??" in place of a stable id, or prints a trailer
	// line containing "divergent". We check the raw log (with graph
	// markers) once more here because the templated read above
	// suppresses jj's own divergence annotation.
	rawOut, rawErr := d.run(ctx, d.timeout(), "log", "-r", "@", "-n", "1")
	if rawErr == nil && containsDivergent(rawOut) {
		state.Divergent = true
	}

	return state, nil
}

// EditRevision moves the working copy to the given change id.
func (d *Driver) EditRevision(ctx context.Context, changeID string) error {
	_, err := d.run(ctx, d.timeout(), "edit", changeID)
	return err
}

// UpdateStale invokes `jj workspace update-stale` directly. The typed
// read operations already do this internally on a Stale failure; this
// method runs it on demand. Nothing in this repository calls it.
func (d *Driver) UpdateStale(ctx context.Context) error {
	_, err := d.run(ctx, d.timeout(), "workspace", "update-stale")
	return err
}
