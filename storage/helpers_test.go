package storage

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stepClock returns a time that advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{t: time.Date(2024, 10, 20, 12, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

// faultyBackend wraps MemoryBackend with per-key failure injection.
type faultyBackend struct {
	*MemoryBackend

	uploadErr   func(key string) error
	infoErr     func(key string) error
	downloadErr func(key string) error
	listErr     error
	pingErr     error

	infoCalls atomic.Int32
	listCalls atomic.Int32
}

func newFaultyBackend() *faultyBackend {
	return &faultyBackend{MemoryBackend: NewMemoryBackend()}
}

func (f *faultyBackend) List(ctx context.Context, dir string) ([]string, error) {
	f.listCalls.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryBackend.List(ctx, dir)
}

func (f *faultyBackend) Info(ctx context.Context, key string) (map[string]string, error) {
	f.infoCalls.Add(1)
	if f.infoErr != nil {
		if err := f.infoErr(key); err != nil {
			return nil, err
		}
	}
	return f.MemoryBackend.Info(ctx, key)
}

func (f *faultyBackend) Download(ctx context.Context, key string) ([]byte, error) {
	if f.downloadErr != nil {
		if err := f.downloadErr(key); err != nil {
			return nil, err
		}
	}
	return f.MemoryBackend.Download(ctx, key)
}

func (f *faultyBackend) Upload(ctx context.Context, key string, body []byte, opts UploadOptions) error {
	if f.uploadErr != nil {
		if err := f.uploadErr(key); err != nil {
			return err
		}
	}
	return f.MemoryBackend.Upload(ctx, key, body, opts)
}

func (f *faultyBackend) Ping(context.Context) error {
	return f.pingErr
}

func failWhen(match func(key string) bool, err error) func(string) error {
	return func(key string) error {
		if match(key) {
			return err
		}
		return nil
	}
}

func isVersionKey(key string) bool { return strings.Contains(key, "/"+versionsDir+"/") }
func isMainKey(key string) bool    { return strings.HasSuffix(key, "/"+defaultName+objectExt) }

func newTestStore(t *testing.T, backend Backend, opts ...Option) *Store {
	t.Helper()
	clock := newStepClock(time.Second)
	all := append([]Option{WithClock(clock.Now)}, opts...)
	return NewStore(StaticPool(backend, nil), all...)
}

var testMetadata = ExtractedMetadata{
	Title:         "test title",
	Description:   "test description",
	Author:        "kim",
	Thumbnail:     "https://example.com/thumb.png",
	Favicon:       "https://example.com/favicon.ico",
	TextDirection: TextDirectionLTR,
	TextLanguage:  "en",
}
