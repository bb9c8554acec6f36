// Package objectstore provides a narrow Client interface over a remote
// object store (S3), a real implementation backed by aws-sdk-go-v2, and
// an in-memory fake for tests that can simulate transient failures.
//
// Every operation is retried up to MaxAttempts times with exponential
// backoff when the underlying error looks transient, and every call
// acquires a slot from a bounded semaphore so a backup or restore never
// runs more than MaxConcurrentOps requests against the store at once.
package objectstore

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// MaxConcurrentOps bounds how many object-store requests may be
// in flight at once.
const MaxConcurrentOps = 20

// MaxAttempts is the retry ceiling for a single logical operation.
const MaxAttempts = 5

const (
	backoffBase = time.Second
	backoffCap  = 8 * time.Second
)

// ObjectInfo describes one object returned from List.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Client is the object-store surface the backup and restore engines
// need. Implementations are expected to apply their own retry policy
// internally (withRetry below is the shared helper both implementations
// use).
type Client interface {
	// UploadFile streams the contents of localPath to key.
	UploadFile(ctx context.Context, key, localPath string) error
	// UploadBytes uploads data directly to key, for small in-memory
	// payloads such as the manifest.
	UploadBytes(ctx context.Context, key string, data []byte) error
	// DownloadFile streams key to localPath. If overwrite is false and
	// localPath already exists, DownloadFile returns ErrSkipped without
	// touching the file.
	DownloadFile(ctx context.Context, key, localPath string, overwrite bool) error
	// DownloadBytes reads key fully into memory, for the manifest.
	DownloadBytes(ctx context.Context, key string) ([]byte, error)
	// List returns every object whose key has the given prefix,
	// paginating internally.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ErrSkipped is returned by DownloadFile when a destination file already
// exists and overwrite was not requested.
var ErrSkipped = errors.New("objectstore: destination exists, skipped")

// DownloadChunkSize is the buffer size used when streaming objects to
// disk.
const DownloadChunkSize = 8 * 1024 * 1024

// semGate bounds concurrent operations across every Client
// implementation sharing it.
type semGate struct {
	sem *semaphore.Weighted
}

func newSemGate(n int64) *semGate {
	return &semGate{sem: semaphore.NewWeighted(n)}
}

func (g *semGate) acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *semGate) release() {
	g.sem.Release(1)
}

// withRetry runs op up to MaxAttempts times, retrying only on errors
// isTransient considers retryable, with exponential backoff (base 1s,
// capped at 8s) and jitter: each wait is drawn from [d/2, d), where d is
// that attempt's backoff step.
func withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt == MaxAttempts-1 {
			break
		}
		delay := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase * time.Duration(math.Pow(2, float64(attempt)))
	if d > backoffCap {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter
}

// transientSubstrings covers the S3 error codes and generic network
// conditions considered retryable.
var transientSubstrings = []string{
	"429",
	"500",
	"503",
	"slowdown",
	"serviceunavailable",
	"service unavailable",
	"connection reset",
	"connection refused",
	"timeout",
	"timed out",
	"eof",
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
