package lockfile

import (
	"context"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(context.Background(), dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestAcquireBlocksConcurrentHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(context.Background(), dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer func() { _ = first.Release() }()

	ctx, cancel := context.WithTimeout(context.Background(), 3*PollInterval)
	defer cancel()

	if _, err := Acquire(ctx, dir); err == nil {
		t.Fatal("expected Acquire to fail while the lock is held")
	}
}

func TestPathForIsStableAndDistinct(t *testing.T) {
	a, err := pathFor("/tmp/one")
	if err != nil {
		t.Fatal(err)
	}
	b, err := pathFor("/tmp/one")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("pathFor not stable: %q != %q", a, b)
	}

	c, err := pathFor("/tmp/two")
	if err != nil {
		t.Fatal(err)
	}
	if a == c {
		t.Fatalf("pathFor collided for distinct directories: %q", a)
	}
}

func TestAcquireRespectsCanceledContext(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(context.Background(), dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer func() { _ = first.Release() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if _, err := Acquire(ctx, dir); err == nil {
		t.Fatal("expected error on already-canceled context")
	}
	if time.Since(start) > time.Second {
		t.Fatal("Acquire did not return promptly on canceled context")
	}
}
