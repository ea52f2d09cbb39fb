package storage

import (
	"errors"
)

var (
	// ErrNotFound is returned by backends for missing objects and wrapped by terminal read failures.
	ErrNotFound = errors.New("object not found")
	// ErrAlreadyExists is returned by backends when a create-only write hits an existing key.
	ErrAlreadyExists = errors.New("object already exists")
	// ErrMetadataTooLarge is returned when encoded metadata exceeds what the backend can attach.
	ErrMetadataTooLarge = errors.New("metadata too large")
	// ErrInvalidSlug is returned for slugs that cannot name a storage directory.
	ErrInvalidSlug = errors.New("invalid slug")

	errMissingMetadata = errors.New("object has no metadata")
	errCorruptMetadata = errors.New("object metadata is corrupt")
	errInvalidVersion  = errors.New("invalid version identifier")
	errInvalidEncoding = errors.New("metadata is not valid UTF-8")
)

const (
	opAcquire     = "acquire"
	opUpload      = "upload"
	opGetContent  = "get_content"
	opGetMetadata = "get_metadata"
	opList        = "list_versions"
)

// StorageError is the single error type surfaced by the store.
type StorageError struct {
	Op      string
	Slug    string
	Message string
	Err     error
}

func newError(op, slug, message string, err error) *StorageError {
	return &StorageError{Op: op, Slug: slug, Message: message, Err: err}
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a terminal not-found read failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// missing reports whether a read failed because the object is absent or unusable, as opposed
// to the backend failing.
func missing(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, errMissingMetadata) ||
		errors.Is(err, errCorruptMetadata) ||
		errors.Is(err, errInvalidVersion)
}
