// Package storage is the item content versioning store.
//
// Every upload for a slug is kept as an immutable version object at
// {slug}/versions/{timestamp}.md. The canonical copy lives at {slug}/default.md and is replaced
// only by strictly longer content, so re-extracting a page can improve the canonical text but
// never degrade it. Identical content (by SHA-256) is never stored twice.
//
// The store holds no per-slug state. Concurrent uploads to the same slug race on the dedup scan
// and on promotion (last writer wins on default) unless a Locker is configured.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"curio/logger"
)

// maxTimestampAttempts bounds how far Upload advances a colliding version timestamp.
const maxTimestampAttempts = 5

// Store reads and writes versioned item content.
type Store struct {
	pool   *Pool
	index  HashIndex
	locker Locker
	log    logger.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIndex makes Upload consult a hash index before scanning versions.
func WithIndex(idx HashIndex) Option {
	return func(s *Store) { s.index = idx }
}

// WithLocker serializes uploads per slug.
func WithLocker(l Locker) Option {
	return func(s *Store) { s.locker = l }
}

// WithLogger sets the store's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides the source of version timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store over the given backend pool.
func NewStore(pool *Pool, opts ...Option) *Store {
	s := &Store{
		pool: pool,
		log:  logger.NewNop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.String("component", "storage"))
	return s
}

// Upload stores content as a new version of slug. Identical content already stored is skipped;
// otherwise the new version becomes default when there is no default yet or it is strictly
// longer than the current one.
//
// A failure to update default after the version was written is returned as an error; the version
// object stays in place.
func (s *Store) Upload(ctx context.Context, slug, content string, metadata ExtractedMetadata) (UploadResult, error) {
	if !validSlug(slug) {
		return UploadResult{}, newError(opUpload, slug, "Invalid slug", ErrInvalidSlug)
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, slug)
		if err != nil {
			return UploadResult{}, newError(opUpload, slug, "Failed to lock item", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("Failed to release item lock", logger.String("slug", slug), logger.Error(err))
			}
		}()
	}

	backend, err := s.pool.Acquire(ctx)
	if err != nil {
		return UploadResult{}, err
	}

	hash := contentHash(content)
	timestamp := s.now()

	existing, found, err := s.findDuplicate(ctx, backend, slug, hash)
	if err != nil {
		return UploadResult{}, err
	}
	if found {
		s.log.Info("Content already exists, skipping upload",
			logger.String("slug", slug), logger.String("hash", hash), logger.String("version", existing))
		return UploadResult{VersionName: existing, Status: StatusSkipped}, nil
	}

	meta := VersionMetadata{
		Length:            utf8.RuneCountInString(content),
		Hash:              hash,
		ExtractedMetadata: metadata,
	}
	encoded, err := s.writeVersion(ctx, backend, slug, content, &meta, timestamp)
	if err != nil {
		return UploadResult{}, err
	}
	s.record(ctx, slug, hash, meta.Timestamp)

	current, err := s.readMetadata(ctx, backend, mainKey(slug))
	switch {
	case err == nil:
	case missing(err):
		current = nil
	default:
		s.log.Error("Error reading main file metadata", logger.String("slug", slug), logger.Error(err))
		s.pool.Fail(err)
		return UploadResult{}, newError(opUpload, slug, "Failed to read main file metadata", err)
	}

	if current != nil && current.Length >= meta.Length {
		return UploadResult{VersionName: meta.Timestamp, Status: StatusStoredVersion}, nil
	}

	err = backend.Upload(ctx, mainKey(slug), []byte(content), UploadOptions{
		ContentType: ContentType,
		Metadata:    encoded,
		Upsert:      true,
	})
	if err != nil {
		s.log.Error("Error updating main file", logger.String("slug", slug), logger.Error(err))
		s.pool.Fail(err)
		return UploadResult{}, newError(opUpload, slug, "Failed to update main file", err)
	}

	s.log.Info("Updated main file",
		logger.String("slug", slug), logger.String("version", meta.Timestamp), logger.Int("length", meta.Length))
	return UploadResult{VersionName: meta.Timestamp, Status: StatusUpdatedMain}, nil
}

// writeVersion creates the version object, advancing the timestamp by a millisecond when another
// upload already claimed it. It fills meta.Timestamp and returns the encoded metadata.
func (s *Store) writeVersion(ctx context.Context, backend Backend, slug, content string, meta *VersionMetadata, ts time.Time) (map[string]string, error) {
	for attempt := 0; attempt < maxTimestampAttempts; attempt++ {
		meta.Timestamp = FormatTimestamp(ts)
		encoded, err := encodeMetadata(*meta)
		if err != nil {
			return nil, newError(opUpload, slug, "Failed to serialize version metadata", err)
		}

		err = backend.Upload(ctx, versionKey(slug, meta.Timestamp), []byte(content), UploadOptions{
			ContentType: ContentType,
			Metadata:    encoded,
		})
		if err == nil {
			return encoded, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			s.log.Error("Error uploading version", logger.String("slug", slug), logger.Error(err))
			s.pool.Fail(err)
			return nil, newError(opUpload, slug, "Failed to upload version", err)
		}
		ts = ts.Add(time.Millisecond)
	}
	return nil, newError(opUpload, slug, "Failed to upload version", ErrAlreadyExists)
}

// findDuplicate looks for a version whose content hash matches. Versions whose metadata cannot
// be read are skipped. A full scan without a match seeds the hash index.
func (s *Store) findDuplicate(ctx context.Context, backend Backend, slug, hash string) (string, bool, error) {
	if s.index != nil {
		lookup, err := s.index.Lookup(ctx, slug, hash)
		switch {
		case err != nil:
			s.log.Warn("Hash index lookup failed, scanning versions", logger.String("slug", slug), logger.Error(err))
		case lookup.Found:
			return lookup.Version, true, nil
		case lookup.Complete:
			return "", false, nil
		}
	}

	names, err := backend.List(ctx, versionDir(slug))
	if err != nil {
		s.pool.Fail(err)
		return "", false, newError(opUpload, slug, "Failed to list versions", err)
	}

	entries := make(map[string]string, len(names))
	complete := true
	for _, name := range names {
		version := strings.TrimSuffix(name, objectExt)
		meta, err := s.readMetadata(ctx, backend, versionKey(slug, version))
		if err != nil {
			complete = false
			s.log.Debug("Skipping unreadable version metadata",
				logger.String("slug", slug), logger.String("version", version), logger.Error(err))
			continue
		}
		if meta.Hash == hash {
			s.record(ctx, slug, hash, version)
			return version, true, nil
		}
		if _, seen := entries[meta.Hash]; !seen && meta.Hash != "" {
			entries[meta.Hash] = version
		}
	}

	if s.index != nil {
		if err := s.index.Seed(ctx, slug, entries, complete); err != nil {
			s.log.Warn("Failed to seed hash index", logger.String("slug", slug), logger.Error(err))
		}
	}
	return "", false, nil
}

func (s *Store) record(ctx context.Context, slug, hash, version string) {
	if s.index == nil {
		return
	}
	err := s.index.Record(ctx, slug, hash, version)
	if err == nil {
		return
	}
	s.log.Warn("Failed to record version in hash index",
		logger.String("slug", slug), logger.String("version", version), logger.Error(err))

	// The index no longer covers every version, so misses must fall back to a scan.
	if err := s.index.Invalidate(ctx, slug); err != nil {
		s.log.Error("Failed to invalidate hash index", logger.String("slug", slug), logger.Error(err))
	}
}

// GetContent reads a version of slug, or default when version is empty. A requested version that
// is missing falls back to default; Content.Version reports what was served.
func (s *Store) GetContent(ctx context.Context, slug, version string) (Content, error) {
	if !validSlug(slug) {
		return Content{}, newError(opGetContent, slug, "Invalid slug", ErrInvalidSlug)
	}

	backend, err := s.pool.Acquire(ctx)
	if err != nil {
		return Content{}, err
	}

	if version != "" {
		c, err := s.readContent(ctx, backend, slug, version)
		if err == nil {
			return c, nil
		}
		if !missing(err) {
			s.log.Error("Error getting version content",
				logger.String("slug", slug), logger.String("version", version), logger.Error(err))
			s.pool.Fail(err)
			return Content{}, newError(opGetContent, slug, "Failed to download content", err)
		}
		s.log.Debug("Version not found, falling back to default",
			logger.String("slug", slug), logger.String("version", version), logger.Error(err))
	}

	c, err := s.readContent(ctx, backend, slug, "")
	if err != nil {
		s.log.Error("Error getting content", logger.String("slug", slug), logger.Error(err))
		s.pool.Fail(err)
		return Content{}, newError(opGetContent, slug, "Failed to download content", err)
	}
	return c, nil
}

func (s *Store) readContent(ctx context.Context, backend Backend, slug, version string) (Content, error) {
	key := mainKey(slug)
	if version != "" {
		if !validVersion(version) {
			return Content{}, errInvalidVersion
		}
		key = versionKey(slug, version)
	}

	body, err := backend.Download(ctx, key)
	if err != nil {
		return Content{}, err
	}
	meta, err := s.readMetadata(ctx, backend, key)
	if err != nil {
		return Content{}, err
	}

	return Content{
		Version:     version,
		VersionName: meta.Timestamp,
		Content:     string(body),
	}, nil
}

// GetMetadata returns the metadata of slug's default object. An object without a title is
// treated as not found. Metadata written before text direction and language were recorded reads
// back as left-to-right with an empty language.
func (s *Store) GetMetadata(ctx context.Context, slug string) (VersionMetadata, error) {
	if !validSlug(slug) {
		return VersionMetadata{}, newError(opGetMetadata, slug, "Invalid slug", ErrInvalidSlug)
	}

	backend, err := s.pool.Acquire(ctx)
	if err != nil {
		return VersionMetadata{}, err
	}

	meta, err := s.readMetadata(ctx, backend, mainKey(slug))
	if err != nil {
		s.log.Error("Error getting metadata", logger.String("slug", slug), logger.Error(err))
		s.pool.Fail(err)
		if missing(err) && !errors.Is(err, ErrNotFound) {
			err = errors.Join(ErrNotFound, err)
		}
		return VersionMetadata{}, newError(opGetMetadata, slug, "Failed to get metadata", err)
	}
	if meta.Title == "" {
		return VersionMetadata{}, newError(opGetMetadata, slug, "Failed to verify metadata contents", ErrNotFound)
	}

	if meta.TextDirection == "" {
		meta.TextDirection = TextDirectionLTR
	}
	return *meta, nil
}

// ListVersions returns the version ids of slug in chronological order.
func (s *Store) ListVersions(ctx context.Context, slug string) ([]string, error) {
	if !validSlug(slug) {
		return nil, newError(opList, slug, "Invalid slug", ErrInvalidSlug)
	}

	backend, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	names, err := backend.List(ctx, versionDir(slug))
	if err != nil {
		s.pool.Fail(err)
		return nil, newError(opList, slug, "Failed to list versions", err)
	}

	versions := make([]string, 0, len(names))
	for _, name := range names {
		if v, ok := strings.CutSuffix(name, objectExt); ok {
			versions = append(versions, v)
		}
	}
	sort.Strings(versions)
	return versions, nil
}

func (s *Store) readMetadata(ctx context.Context, backend Backend, key string) (*VersionMetadata, error) {
	raw, err := backend.Info(ctx, key)
	if err != nil {
		return nil, err
	}
	meta, err := decodeMetadata(raw)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
