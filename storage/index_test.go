package storage

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisIndexLookup(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	idx := NewRedisIndex(client, "")

	got, err := idx.Lookup(ctx, testSlug, "abc")
	require.NoError(t, err)
	assert.Equal(t, IndexLookup{}, got)

	require.NoError(t, idx.Record(ctx, testSlug, "abc", "v1"))
	require.NoError(t, idx.Record(ctx, testSlug, "abc", "v2"))

	got, err = idx.Lookup(ctx, testSlug, "abc")
	require.NoError(t, err)
	assert.Equal(t, IndexLookup{Version: "v1", Found: true}, got, "first recorded version wins")
}

func TestRedisIndexSeed(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	idx := NewRedisIndex(client, "test")

	require.NoError(t, idx.Seed(ctx, testSlug, map[string]string{"h1": "v1", "h2": "v2"}, false))
	got, err := idx.Lookup(ctx, testSlug, "missing")
	require.NoError(t, err)
	assert.False(t, got.Complete)

	require.NoError(t, idx.Seed(ctx, testSlug, nil, true))
	got, err = idx.Lookup(ctx, testSlug, "h2")
	require.NoError(t, err)
	assert.Equal(t, IndexLookup{Version: "v2", Found: true, Complete: true}, got)

	assert.Equal(t, "v1", mr.HGet("test:"+testSlug, "h1"))
}

func TestRedisIndexInvalidate(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	idx := NewRedisIndex(client, "")

	require.NoError(t, idx.Seed(ctx, testSlug, map[string]string{"h1": "v1"}, true))
	require.NoError(t, idx.Invalidate(ctx, testSlug))

	got, err := idx.Lookup(ctx, testSlug, "h1")
	require.NoError(t, err)
	assert.Equal(t, IndexLookup{Version: "v1", Found: true}, got, "entries survive, completeness does not")
}

// flakyRecordIndex fails Record while failRecord is set.
type flakyRecordIndex struct {
	*RedisIndex
	failRecord atomic.Bool
}

func (f *flakyRecordIndex) Record(ctx context.Context, slug, hash, version string) error {
	if f.failRecord.Load() {
		return assert.AnError
	}
	return f.RedisIndex.Record(ctx, slug, hash, version)
}

func TestUploadRescansAfterIndexRecordFails(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	idx := &flakyRecordIndex{RedisIndex: NewRedisIndex(client, "")}
	store := newTestStore(t, NewMemoryBackend(), WithIndex(idx))

	_, err := store.Upload(ctx, testSlug, "first", testMetadata)
	require.NoError(t, err)
	got, err := idx.Lookup(ctx, testSlug, contentHash("first"))
	require.NoError(t, err)
	require.True(t, got.Complete)

	idx.failRecord.Store(true)
	second, err := store.Upload(ctx, testSlug, "second body", testMetadata)
	require.NoError(t, err)
	idx.failRecord.Store(false)

	again, err := store.Upload(ctx, testSlug, "second body", testMetadata)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, again.Status)
	assert.Equal(t, second.VersionName, again.VersionName)

	versions, err := store.ListVersions(ctx, testSlug)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestUploadUsesHashIndex(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	backend := newFaultyBackend()
	store := newTestStore(t, backend, WithIndex(NewRedisIndex(client, "")))

	first, err := store.Upload(ctx, testSlug, "Hello", testMetadata)
	require.NoError(t, err)
	_, err = store.Upload(ctx, testSlug, "Hello there", testMetadata)
	require.NoError(t, err)

	lists := backend.listCalls.Load()
	infos := backend.infoCalls.Load()

	again, err := store.Upload(ctx, testSlug, "Hello", testMetadata)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, again.Status)
	assert.Equal(t, first.VersionName, again.VersionName)
	assert.Equal(t, lists, backend.listCalls.Load(), "indexed dedup does not list versions")
	assert.Equal(t, infos, backend.infoCalls.Load(), "indexed dedup does not read metadata")

	res, err := store.Upload(ctx, testSlug, "Bye", testMetadata)
	require.NoError(t, err)
	assert.Equal(t, StatusStoredVersion, res.Status)
	assert.Equal(t, lists, backend.listCalls.Load(), "a complete index answers misses too")
}

func TestUploadSeedsIndexFromExistingVersions(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	backend := newFaultyBackend()

	plain := newTestStore(t, backend)
	first, err := plain.Upload(ctx, testSlug, "Hello", testMetadata)
	require.NoError(t, err)

	idx := NewRedisIndex(client, "")
	indexed := newTestStore(t, backend, WithIndex(idx))
	_, err = indexed.Upload(ctx, testSlug, "Hello there", testMetadata)
	require.NoError(t, err)

	got, err := idx.Lookup(ctx, testSlug, contentHash("Hello"))
	require.NoError(t, err)
	assert.Equal(t, IndexLookup{Version: first.VersionName, Found: true, Complete: true}, got)
}

func TestUploadDoesNotMarkPartialScanComplete(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	backend := newFaultyBackend()

	plain := newTestStore(t, backend)
	_, err := plain.Upload(ctx, testSlug, "Hello", testMetadata)
	require.NoError(t, err)

	idx := NewRedisIndex(client, "")
	indexed := newTestStore(t, backend, WithIndex(idx))
	backend.infoErr = failWhen(isVersionKey, assert.AnError)
	_, err = indexed.Upload(ctx, testSlug, "Hello there", testMetadata)
	require.NoError(t, err)

	got, err := idx.Lookup(ctx, testSlug, contentHash("Hello"))
	require.NoError(t, err)
	assert.False(t, got.Complete)
	assert.False(t, got.Found)
}

func TestUploadFallsBackToScanWhenIndexFails(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := newTestStore(t, NewMemoryBackend(), WithIndex(NewRedisIndex(client, "")))

	first, err := store.Upload(ctx, testSlug, "Hello", testMetadata)
	require.NoError(t, err)

	mr.SetError("ERR server down")

	again, err := store.Upload(ctx, testSlug, "Hello", testMetadata)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, again.Status)
	assert.Equal(t, first.VersionName, again.VersionName)
}
