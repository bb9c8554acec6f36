package objectstore

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	data         []byte
	lastModified time.Time
}

// MemClient is an in-memory Client used in tests. It can be configured
// to fail the first N attempts at any key with a transient error,
// exercising the same retry path the real S3Client goes through.
type MemClient struct {
	mu      sync.Mutex
	objects map[string]memObject

	// FailuresBeforeSuccess, if set, makes every operation against a key
	// fail this many times with a transient error before succeeding.
	FailuresBeforeSuccess int
	attempts              map[string]int

	// Clock, if set, is used as the LastModified timestamp for every
	// subsequent upload; defaults to time.Now when unset.
	Clock func() time.Time

	gate *semGate
}

// NewMemClient returns an empty MemClient.
func NewMemClient() *MemClient {
	return &MemClient{
		objects:  map[string]memObject{},
		attempts: map[string]int{},
		gate:     newSemGate(MaxConcurrentOps),
	}
}

func (c *MemClient) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// SetLastModified forces the stored LastModified for an already-uploaded
// key, for tests that need to control the sessions-after filter boundary
// without relying on wall-clock timing.
func (c *MemClient) SetLastModified(key string, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if obj, ok := c.objects[key]; ok {
		obj.lastModified = t
		c.objects[key] = obj
	}
}

// errTransientInjected simulates a retryable S3 error (503
// ServiceUnavailable) for MemClient.FailuresBeforeSuccess.
var errTransientInjected = errors.New("503 ServiceUnavailable (injected)")

func (c *MemClient) maybeFailTransiently(key string) error {
	if c.FailuresBeforeSuccess <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts[key] < c.FailuresBeforeSuccess {
		c.attempts[key]++
		return errTransientInjected
	}
	return nil
}

func (c *MemClient) UploadFile(ctx context.Context, key, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return c.UploadBytes(ctx, key, data)
}

func (c *MemClient) UploadBytes(ctx context.Context, key string, data []byte) error {
	if err := c.gate.acquire(ctx); err != nil {
		return err
	}
	defer c.gate.release()

	return withRetry(ctx, func() error {
		if err := c.maybeFailTransiently(key); err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		cp := make([]byte, len(data))
		copy(cp, data)
		c.objects[key] = memObject{data: cp, lastModified: c.now()}
		return nil
	})
}

func (c *MemClient) DownloadFile(ctx context.Context, key, localPath string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(localPath); err == nil {
			return ErrSkipped
		}
	}

	data, err := c.DownloadBytes(ctx, key)
	if err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (c *MemClient) DownloadBytes(ctx context.Context, key string) ([]byte, error) {
	if err := c.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.release()

	var data []byte
	err := withRetry(ctx, func() error {
		if err := c.maybeFailTransiently(key); err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		stored, ok := c.objects[key]
		if !ok {
			return &notFoundError{key: key}
		}
		data = make([]byte, len(stored.data))
		copy(data, stored.data)
		return nil
	})
	return data, err
}

func (c *MemClient) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := c.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.release()

	c.mu.Lock()
	defer c.mu.Unlock()

	var objects []ObjectInfo
	for key, obj := range c.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, ObjectInfo{Key: key, Size: int64(len(obj.data)), LastModified: obj.lastModified})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

type notFoundError struct{ key string }

func (e *notFoundError) Error() string { return "objectstore: key not found: " + e.key }
