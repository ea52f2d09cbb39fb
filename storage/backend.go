package storage

import (
	"context"
	"path"
	"strings"
)

const (
	defaultName = "default"
	versionsDir = "versions"
	objectExt   = ".md"

	// ContentType is attached to every stored object.
	ContentType = "text/markdown; charset=utf-8"
)

// Backend is the blob store holding content objects and their per-object metadata.
//
// Keys are "/" separated. Info and Download return ErrNotFound for missing keys; Upload with
// Upsert unset returns ErrAlreadyExists when the key is taken.
type Backend interface {
	// List returns the names (relative to dir) of the objects stored directly under dir, sorted.
	List(ctx context.Context, dir string) ([]string, error)
	// Info returns the object's metadata. An object without metadata yields an empty map.
	Info(ctx context.Context, key string) (map[string]string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, body []byte, opts UploadOptions) error
	// Ping verifies the backend is reachable and accessible.
	Ping(ctx context.Context) error
}

// UploadOptions describes an object write.
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string
	// Upsert allows overwriting an existing object.
	Upsert bool
}

func mainKey(slug string) string {
	return path.Join(slug, defaultName+objectExt)
}

func versionDir(slug string) string {
	return path.Join(slug, versionsDir)
}

func versionKey(slug, version string) string {
	return path.Join(slug, versionsDir, version+objectExt)
}

func validSlug(slug string) bool {
	return slug != "" && slug != "." && slug != ".." && !strings.ContainsAny(slug, "/\\")
}

func validVersion(version string) bool {
	return version != "" && version != "." && version != ".." && !strings.ContainsAny(version, "/\\")
}
