package vcsdriver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFakeBin(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "jj")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSuccess(t *testing.T) {
	bin := writeFakeBin(t, `echo hello`)
	d := &Driver{Dir: t.TempDir(), Bin: bin}

	out, err := d.Exec(context.Background(), "status")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if out != "hello\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	bin := writeFakeBin(t, `echo "boom" >&2; exit 1`)
	d := &Driver{Dir: t.TempDir(), Bin: bin}

	_, err := d.Exec(context.Background(), "status")
	failure, ok := AsFailure(err)
	if !ok {
		t.Fatalf("expected *Failure, got %v (%T)", err, err)
	}
	if failure.Kind != NonZeroExit {
		t.Fatalf("expected NonZeroExit, got %v", failure.Kind)
	}
	if failure.Stderr != "boom\n" {
		t.Fatalf("unexpected stderr: %q", failure.Stderr)
	}
}

func TestRunTimeout(t *testing.T) {
	bin := writeFakeBin(t, `exec sleep 5`)
	d := &Driver{Dir: t.TempDir(), Bin: bin, Timeout: 100 * time.Millisecond}

	start := time.Now()
	_, err := d.Exec(context.Background(), "status")
	elapsed := time.Since(start)

	failure, ok := AsFailure(err)
	if !ok {
		t.Fatalf("expected *Failure, got %v (%T)", err, err)
	}
	if failure.Kind != Timeout {
		t.Fatalf("expected Timeout, got %v", failure.Kind)
	}
	if elapsed > 4*time.Second {
		t.Fatalf("took too long to report timeout: %v", elapsed)
	}
}

func TestRunReadRetriesOnceAfterStaleWorkspace(t *testing.T) {
	counterFile := filepath.Join(t.TempDir(), "count")
	bin := writeFakeBin(t, `
case "$*" in
  *update-stale*)
    exit 0
    ;;
esac
count=0
if [ -f "$FAKE_JJ_COUNTER" ]; then count=$(cat "$FAKE_JJ_COUNTER"); fi
count=$((count+1))
echo "$count" > "$FAKE_JJ_COUNTER"
if [ "$count" = "1" ]; then
  echo "workspace is stale" >&2
  exit 1
fi
echo ok
`)
	t.Setenv("FAKE_JJ_COUNTER", counterFile)

	d := &Driver{Dir: t.TempDir(), Bin: bin}
	out, err := d.Exec(context.Background(), "log")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if out != "ok\n" {
		t.Fatalf("expected retry to succeed with ok, got %q", out)
	}
}

func TestCurrentStateParsesFields(t *testing.T) {
	bin := writeFakeBin(t, `
found_t=0
for a in "$@"; do
  if [ "$a" = "-T" ]; then found_t=1; fi
done
if [ "$found_t" = "1" ]; then
  printf 'abc123\037def456\037main\n'
else
  echo "plain log, nothing unusual"
fi
`)
	d := &Driver{Dir: t.TempDir(), Bin: bin}

	state, err := d.CurrentState(context.Background())
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if state.ChangeID != "abc123" || state.CommitID != "def456" || state.Bookmark != "main" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.Divergent {
		t.Fatal("expected non-divergent state")
	}
}

func TestCurrentStateDetectsDivergence(t *testing.T) {
	bin := writeFakeBin(t, `
found_t=0
for a in "$@"; do
  if [ "$a" = "-T" ]; then found_t=1; fi
done
if [ "$found_t" = "1" ]; then
  printf 'abc123\037def456\037\n'
else
  echo "this change is divergent"
fi
`)
	d := &Driver{Dir: t.TempDir(), Bin: bin}

	state, err := d.CurrentState(context.Background())
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if !state.Divergent {
		t.Fatal("expected divergent state to be detected")
	}
	if state.Bookmark != "" {
		t.Fatalf("expected no bookmark, got %q", state.Bookmark)
	}
}

func TestCurrentStateRejectsEmptyChangeID(t *testing.T) {
	bin := writeFakeBin(t, `printf '\037def456\037\n'`)
	d := &Driver{Dir: t.TempDir(), Bin: bin}

	_, err := d.CurrentState(context.Background())
	failure, ok := AsFailure(err)
	if !ok || failure.Kind != ParseError {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestListBookmarksMarksSyncedAndUnsynced(t *testing.T) {
	bin := writeFakeBin(t, `cat <<'EOF'
main: abc123 some description
main@origin: abc123 some description
feature: def456 wip
EOF
`)
	d := &Driver{Dir: t.TempDir(), Bin: bin}

	bookmarks, err := d.ListBookmarks(context.Background())
	if err != nil {
		t.Fatalf("ListBookmarks: %v", err)
	}
	byName := map[string]Bookmark{}
	for _, b := range bookmarks {
		byName[b.Name] = b
	}
	if !byName["main"].SyncedWithRemote {
		t.Error("expected main to be synced with remote")
	}
	if byName["feature"].SyncedWithRemote {
		t.Error("expected feature to be unsynced")
	}
	if byName["feature"].ChangeID != "def456" {
		t.Errorf("unexpected change id for feature: %q", byName["feature"].ChangeID)
	}
}

func TestListUncommittedParsesRecords(t *testing.T) {
	bin := writeFakeBin(t, `printf 'aaa\037bbb\037wip change\037mybookmark\n'`)
	d := &Driver{Dir: t.TempDir(), Bin: bin}

	records, err := d.ListUncommitted(context.Background())
	if err != nil {
		t.Fatalf("ListUncommitted: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.ChangeID != "aaa" || r.CommitID != "bbb" || r.Description != "wip change" || r.Bookmark != "mybookmark" {
		t.Fatalf("unexpected record: %+v", r)
	}
}

func TestListRemotesParsesPairs(t *testing.T) {
	bin := writeFakeBin(t, `cat <<'EOF'
origin https://example.com/org/repo.git
backup git@example.com:org/repo.git
EOF
`)
	d := &Driver{Dir: t.TempDir(), Bin: bin}

	remotes, err := d.ListRemotes(context.Background())
	if err != nil {
		t.Fatalf("ListRemotes: %v", err)
	}
	if len(remotes) != 2 || remotes[0].Name != "origin" || remotes[1].URL != "git@example.com:org/repo.git" {
		t.Fatalf("unexpected remotes: %+v", remotes)
	}
}

func TestListWorkspacesParsesNames(t *testing.T) {
	bin := writeFakeBin(t, `cat <<'EOF'
default: abc123 (no description set)
secondary: def456 (no description set)
EOF
`)
	d := &Driver{Dir: t.TempDir(), Bin: bin}

	names, err := d.ListWorkspaces(context.Background())
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	if len(names) != 2 || names[0] != "default" || names[1] != "secondary" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestContainsStaleIsCaseInsensitive(t *testing.T) {
	if !containsStale("Workspace is STALE, please update") {
		t.Fatal("expected stale to be detected case-insensitively")
	}
	if containsStale("everything is fine") {
		t.Fatal("did not expect stale to be detected")
	}
}

func TestContainsDivergentIsCaseInsensitive(t *testing.T) {
	if !containsDivergent("This commit is DIVERGENT") {
		t.Fatal("expected divergent to be detected case-insensitively")
	}
	if containsDivergent("all good") {
		t.Fatal("did not expect divergent to be detected")
	}
}

func TestCloneRemovesPartialDirOnFailure(t *testing.T) {
	bin := writeFakeBin(t, `exit 1`)
	parent := t.TempDir()
	dest := filepath.Join(parent, "cloned")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatal(err)
	}

	d := &Driver{Dir: parent, Bin: bin}
	err := d.Clone(context.Background(), "https://example.com/org/repo.git", dest)
	if err == nil {
		t.Fatal("expected clone to fail")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial clone dir to be removed, stat err: %v", statErr)
	}
}
