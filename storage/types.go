package storage

import (
	"time"
)

// TextDirection is the reading direction of the stored text.
type TextDirection string

const (
	TextDirectionLTR  TextDirection = "ltr"
	TextDirectionRTL  TextDirection = "rtl"
	TextDirectionAuto TextDirection = "auto"
)

// ExtractedMetadata is the descriptive metadata the extraction pipeline hands to Upload.
type ExtractedMetadata struct {
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Author        string        `json:"author,omitempty"`
	Thumbnail     string        `json:"thumbnail,omitempty"`
	Favicon       string        `json:"favicon,omitempty"`
	PublishedAt   *time.Time    `json:"publishedAt,omitempty"`
	TextDirection TextDirection `json:"textDirection,omitempty"`
	TextLanguage  string        `json:"textLanguage"`

	// Origin records where the content came from. Optional.
	Origin *Origin `json:"origin,omitempty"`
}

// Origin is the fixed-schema provenance extension of ExtractedMetadata.
type Origin struct {
	URL       string `json:"url,omitempty"`
	Extractor string `json:"extractor,omitempty"`
}

// VersionMetadata is attached to every stored content object.
type VersionMetadata struct {
	// Timestamp is the version identifier, an ISO-8601 UTC string.
	Timestamp string `json:"timestamp"`
	// Length is the content length in characters.
	Length int `json:"length"`
	// Hash is the hex SHA-256 of the content, used for deduplication.
	Hash string `json:"hash"`

	ExtractedMetadata
}

// UploadStatus is the outcome of an Upload.
type UploadStatus string

const (
	// StatusUpdatedMain means a new version was stored and promoted to default.
	StatusUpdatedMain UploadStatus = "UPDATED_MAIN"
	// StatusStoredVersion means a new version was stored; default was kept.
	StatusStoredVersion UploadStatus = "STORED_VERSION"
	// StatusSkipped means identical content already existed; nothing was written.
	StatusSkipped UploadStatus = "SKIPPED"
)

// UploadResult is returned by Upload.
type UploadResult struct {
	VersionName string       `json:"versionName"`
	Status      UploadStatus `json:"status"`
}

// Content is returned by GetContent.
type Content struct {
	// Version is the version actually served; empty when default was served. A value that differs
	// from the requested one tells the caller to drop its stored version pointer.
	Version     string `json:"version,omitempty"`
	VersionName string `json:"versionName"`
	Content     string `json:"content"`
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t as a version identifier.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
