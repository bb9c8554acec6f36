package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestUploadBytesDownloadBytesRoundTrip(t *testing.T) {
	c := NewMemClient()
	ctx := context.Background()

	if err := c.UploadBytes(ctx, "backups/a/manifest.json", []byte("hello")); err != nil {
		t.Fatalf("UploadBytes: %v", err)
	}
	data, err := c.DownloadBytes(ctx, "backups/a/manifest.json")
	if err != nil {
		t.Fatalf("DownloadBytes: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected data: %q", data)
	}
}

func TestDownloadBytesMissingKey(t *testing.T) {
	c := NewMemClient()
	_, err := c.DownloadBytes(context.Background(), "does/not/exist")
	if err == nil {
		t.Fatal("expected an error for a missing key")
	}
}

func TestDownloadFileSkipsExistingUnlessOverwrite(t *testing.T) {
	c := NewMemClient()
	ctx := context.Background()
	if err := c.UploadBytes(ctx, "k", []byte("new")); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(dest, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := c.DownloadFile(ctx, "k", dest, false)
	if !errors.Is(err, ErrSkipped) {
		t.Fatalf("expected ErrSkipped, got %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "old" {
		t.Fatal("file should not have been overwritten")
	}

	if err := c.DownloadFile(ctx, "k", dest, true); err != nil {
		t.Fatalf("DownloadFile with overwrite: %v", err)
	}
	data, _ = os.ReadFile(dest)
	if string(data) != "new" {
		t.Fatalf("expected overwritten content, got %q", data)
	}
}

func TestUploadFileStreamsFromDisk(t *testing.T) {
	c := NewMemClient()
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := c.UploadFile(ctx, "uploaded", src); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	data, err := c.DownloadBytes(ctx, "uploaded")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected data: %q", data)
	}
}

func TestListReturnsPrefixedKeysSorted(t *testing.T) {
	c := NewMemClient()
	ctx := context.Background()
	for _, k := range []string{"backups/b/manifest.json", "backups/a/manifest.json", "other/x"} {
		if err := c.UploadBytes(ctx, k, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}

	objs, err := c.List(ctx, "backups/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 2 || objs[0].Key != "backups/a/manifest.json" || objs[1].Key != "backups/b/manifest.json" {
		t.Fatalf("unexpected list result: %+v", objs)
	}
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	c := NewMemClient()
	c.FailuresBeforeSuccess = 2
	ctx := context.Background()

	if err := c.UploadBytes(ctx, "flaky", []byte("data")); err != nil {
		t.Fatalf("expected retry to eventually succeed, got %v", err)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	c := NewMemClient()
	c.FailuresBeforeSuccess = MaxAttempts + 5
	ctx := context.Background()

	err := c.UploadBytes(ctx, "always-flaky", []byte("data"))
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
}

func TestIsTransientClassification(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"503 ServiceUnavailable", true},
		{"SlowDown: please reduce request rate", true},
		{"connection reset by peer", true},
		{"NoSuchKey: the specified key does not exist", false},
		{"AccessDenied", false},
	}
	for _, tc := range cases {
		if got := isTransient(errors.New(tc.msg)); got != tc.want {
			t.Errorf("isTransient(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}
