package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"strings"

	"curio/common"
)

// maxS3Metadata is S3's limit on user-defined metadata (keys plus values, in bytes).
const maxS3Metadata = 2048

// S3Backend stores content objects in an S3 bucket, optionally under a key prefix.
type S3Backend struct {
	client *common.S3
	bucket string
	prefix string
}

// NewS3Backend returns a backend storing objects under bucket/prefix.
func NewS3Backend(client *common.S3, bucket, prefix string) *S3Backend {
	if prefix != "" {
		prefix = strings.Trim(prefix, "/") + "/"
	}
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

func (b *S3Backend) List(ctx context.Context, dir string) ([]string, error) {
	full := b.prefix + strings.TrimSuffix(dir, "/") + "/"
	keys, err := b.client.ListNames(ctx, b.bucket, full)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", full, err)
	}

	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if name := strings.TrimPrefix(k, full); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (b *S3Backend) Info(ctx context.Context, key string) (map[string]string, error) {
	out, err := b.client.Head(ctx, b.bucket, b.prefix+key)
	if err != nil {
		return nil, b.translate(key, err)
	}
	return decodeHeaderValues(out.Metadata), nil
}

func (b *S3Backend) Download(ctx context.Context, key string) ([]byte, error) {
	body, err := b.client.Get(ctx, b.bucket, b.prefix+key)
	if err != nil {
		return nil, b.translate(key, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (b *S3Backend) Upload(ctx context.Context, key string, body []byte, opts UploadOptions) error {
	metadata, err := encodeHeaderValues(opts.Metadata)
	if err != nil {
		return err
	}

	err = b.client.Put(ctx, b.bucket, b.prefix+key, bytes.NewReader(body), common.PutOptions{
		ContentType: opts.ContentType,
		Metadata:    metadata,
		CreateOnly:  !opts.Upsert,
	})
	if err != nil {
		if common.IsPreconditionFailed(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (b *S3Backend) Ping(ctx context.Context) error {
	if err := b.client.HeadBucket(ctx, b.bucket); err != nil {
		return fmt.Errorf("head bucket %s: %w", b.bucket, err)
	}
	return nil
}

func (b *S3Backend) translate(key string, err error) error {
	if common.IsNotFound(err) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", key, err)
}

// truncatableFields are trimmed, in order, when metadata would exceed maxS3Metadata.
var truncatableFields = []string{keyDescription, keyAuthor, keyThumbnail}

// encodeHeaderValues RFC 2047-encodes values that cannot travel verbatim as HTTP headers, since
// S3 user metadata is sent that way. Values over the S3 size limit are trimmed from the
// truncatable fields; only an overflow of the remaining fields is an error.
func encodeHeaderValues(in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	size := 0
	for k, v := range in {
		out[k] = encodeHeaderValue(v)
		size += len(k) + len(out[k])
	}

	for _, k := range truncatableFields {
		if size <= maxS3Metadata {
			break
		}
		v, ok := in[k]
		if !ok {
			continue
		}
		size -= len(k) + len(out[k])
		trimmed := fitHeaderValue(v, maxS3Metadata-size-len(k))
		if trimmed == "" {
			delete(out, k)
			continue
		}
		out[k] = encodeHeaderValue(trimmed)
		size += len(k) + len(out[k])
	}

	if size > maxS3Metadata {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrMetadataTooLarge, size, maxS3Metadata)
	}
	return out, nil
}

// encodeHeaderValue picks the shorter of Q and B encoding. Values that would otherwise be
// misread on the way back (a literal encoded word, surrounding whitespace) are always encoded.
func encodeHeaderValue(v string) string {
	q := mime.QEncoding.Encode("utf-8", v)
	if q == v {
		if !strings.Contains(v, "=?") && strings.TrimSpace(v) == v {
			return v
		}
		return "=?utf-8?b?" + base64.StdEncoding.EncodeToString([]byte(v)) + "?="
	}
	if b := mime.BEncoding.Encode("utf-8", v); len(b) < len(q) {
		return b
	}
	return q
}

// fitHeaderValue returns the longest rune prefix of v whose encoding fits in budget bytes.
func fitHeaderValue(v string, budget int) string {
	if budget <= 0 {
		return ""
	}
	runes := []rune(v)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if len(encodeHeaderValue(string(runes[:mid]))) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}

func decodeHeaderValues(in map[string]string) map[string]string {
	dec := new(mime.WordDecoder)
	out := make(map[string]string, len(in))
	for k, v := range in {
		decoded, err := dec.DecodeHeader(v)
		if err != nil {
			decoded = v
		}
		out[strings.ToLower(k)] = decoded
	}
	return out
}
