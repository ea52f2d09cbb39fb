package storage

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

// Object metadata keys. Lowercase so they survive S3's header normalization.
const (
	keyTimestamp       = "timestamp"
	keyLength          = "length"
	keyHash            = "hash"
	keyTitle           = "title"
	keyDescription     = "description"
	keyAuthor          = "author"
	keyThumbnail       = "thumbnail"
	keyFavicon         = "favicon"
	keyPublishedAt     = "published-at"
	keyTextDirection   = "text-direction"
	keyTextLanguage    = "text-language"
	keyOriginURL       = "origin-url"
	keyOriginExtractor = "origin-extractor"
)

func encodeMetadata(m VersionMetadata) (map[string]string, error) {
	out := map[string]string{
		keyTimestamp: m.Timestamp,
		keyLength:    strconv.Itoa(m.Length),
		keyHash:      m.Hash,
	}

	optional := map[string]string{
		keyTitle:         m.Title,
		keyDescription:   m.Description,
		keyAuthor:        m.Author,
		keyThumbnail:     m.Thumbnail,
		keyFavicon:       m.Favicon,
		keyTextDirection: string(m.TextDirection),
		keyTextLanguage:  m.TextLanguage,
	}
	if m.PublishedAt != nil {
		optional[keyPublishedAt] = m.PublishedAt.UTC().Format(time.RFC3339Nano)
	}
	if m.Origin != nil {
		optional[keyOriginURL] = m.Origin.URL
		optional[keyOriginExtractor] = m.Origin.Extractor
	}

	for k, v := range optional {
		if v == "" {
			continue
		}
		if !utf8.ValidString(v) {
			return nil, fmt.Errorf("%s: %w", k, errInvalidEncoding)
		}
		out[k] = v
	}
	return out, nil
}

func decodeMetadata(raw map[string]string) (VersionMetadata, error) {
	if len(raw) == 0 {
		return VersionMetadata{}, errMissingMetadata
	}

	m := VersionMetadata{
		Timestamp: raw[keyTimestamp],
		Hash:      raw[keyHash],
		ExtractedMetadata: ExtractedMetadata{
			Title:         raw[keyTitle],
			Description:   raw[keyDescription],
			Author:        raw[keyAuthor],
			Thumbnail:     raw[keyThumbnail],
			Favicon:       raw[keyFavicon],
			TextDirection: TextDirection(raw[keyTextDirection]),
			TextLanguage:  raw[keyTextLanguage],
		},
	}

	if v, ok := raw[keyLength]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return VersionMetadata{}, fmt.Errorf("%w: length %q", errCorruptMetadata, v)
		}
		m.Length = n
	}
	if v := raw[keyPublishedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return VersionMetadata{}, fmt.Errorf("%w: published-at %q", errCorruptMetadata, v)
		}
		m.PublishedAt = &t
	}
	if url, extractor := raw[keyOriginURL], raw[keyOriginExtractor]; url != "" || extractor != "" {
		m.Origin = &Origin{URL: url, Extractor: extractor}
	}
	return m, nil
}
