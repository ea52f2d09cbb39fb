package storage

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
)

type memoryObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

// MemoryBackend is an in-process Backend. It is safe for concurrent use.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string]memoryObject)}
}

func (m *MemoryBackend) List(_ context.Context, dir string) ([]string, error) {
	prefix := strings.TrimSuffix(dir, "/") + "/"

	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for key := range m.objects {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || rest == "" || strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryBackend) Info(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return maps.Clone(obj.metadata), nil
}

func (m *MemoryBackend) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), obj.body...), nil
}

func (m *MemoryBackend) Upload(_ context.Context, key string, body []byte, opts UploadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[key]; exists && !opts.Upsert {
		return ErrAlreadyExists
	}
	m.objects[key] = memoryObject{
		body:        append([]byte(nil), body...),
		contentType: opts.ContentType,
		metadata:    maps.Clone(opts.Metadata),
	}
	return nil
}

func (m *MemoryBackend) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored objects.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
