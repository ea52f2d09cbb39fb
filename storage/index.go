package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultIndexPrefix prefixes the Redis keys of the hash index.
const DefaultIndexPrefix = "curio:versions"

// completeField marks an index entry whose hash map covers every version of the slug. Content
// hashes are hex, so the field cannot collide with one.
const completeField = "_complete"

// IndexLookup is the result of a hash index lookup.
type IndexLookup struct {
	// Version is the version holding the content, when Found.
	Version string
	Found   bool
	// Complete means the index knows every version of the slug, so a miss needs no scan.
	Complete bool
}

// HashIndex maps content hashes to version ids per slug, so Upload can dedup without reading
// every version's metadata.
type HashIndex interface {
	Lookup(ctx context.Context, slug, hash string) (IndexLookup, error)
	Record(ctx context.Context, slug, hash, version string) error
	// Seed stores the entries of a full version scan; complete marks the slug as fully indexed.
	Seed(ctx context.Context, slug string, entries map[string]string, complete bool) error
	// Invalidate clears the completeness mark of slug, so the next miss scans versions again.
	Invalidate(ctx context.Context, slug string) error
}

// RedisIndex keeps one Redis hash per slug: content hash -> version id.
type RedisIndex struct {
	client *redis.Client
	prefix string
}

// NewRedisIndex creates an index over an existing Redis client.
func NewRedisIndex(client *redis.Client, prefix string) *RedisIndex {
	if prefix == "" {
		prefix = DefaultIndexPrefix
	}
	return &RedisIndex{client: client, prefix: prefix}
}

func (r *RedisIndex) key(slug string) string {
	return r.prefix + ":" + slug
}

func (r *RedisIndex) Lookup(ctx context.Context, slug, hash string) (IndexLookup, error) {
	vals, err := r.client.HMGet(ctx, r.key(slug), hash, completeField).Result()
	if err != nil {
		return IndexLookup{}, fmt.Errorf("hmget %s: %w", r.key(slug), err)
	}

	var out IndexLookup
	if v, ok := vals[0].(string); ok && v != "" {
		out.Version = v
		out.Found = true
	}
	if v, ok := vals[1].(string); ok && v == "1" {
		out.Complete = true
	}
	return out, nil
}

func (r *RedisIndex) Record(ctx context.Context, slug, hash, version string) error {
	// HSETNX keeps the earliest version when two uploads of the same content raced.
	if err := r.client.HSetNX(ctx, r.key(slug), hash, version).Err(); err != nil {
		return fmt.Errorf("hsetnx %s: %w", r.key(slug), err)
	}
	return nil
}

func (r *RedisIndex) Seed(ctx context.Context, slug string, entries map[string]string, complete bool) error {
	if len(entries) == 0 && !complete {
		return nil
	}
	key := r.key(slug)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for hash, version := range entries {
			pipe.HSetNX(ctx, key, hash, version)
		}
		if complete {
			pipe.HSet(ctx, key, completeField, "1")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed %s: %w", key, err)
	}
	return nil
}

func (r *RedisIndex) Invalidate(ctx context.Context, slug string) error {
	if err := r.client.HDel(ctx, r.key(slug), completeField).Err(); err != nil {
		return fmt.Errorf("hdel %s: %w", r.key(slug), err)
	}
	return nil
}
