// Package ingest saves web pages into the version store: it derives the item slug, obtains the
// page text and uploads it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"curio/extract"
	"curio/logger"
	"curio/slug"
	"curio/storage"
)

// ClientExtractor is the origin extractor recorded for content supplied by the caller.
const ClientExtractor = "client"

// ErrInvalidRequest is returned for requests that cannot be saved.
var ErrInvalidRequest = errors.New("invalid ingest request")

// Extractor produces content and metadata from a page.
type Extractor interface {
	FromURL(ctx context.Context, pageURL string) (extract.Result, error)
	FromHTML(doc, pageURL string) (extract.Result, error)
}

// Uploader is the write side of the version store.
type Uploader interface {
	Upload(ctx context.Context, slug, content string, metadata storage.ExtractedMetadata) (storage.UploadResult, error)
}

// Request describes one page to save. Content wins over HTML, and HTML over fetching URL.
// Metadata, when given, is used as-is with Content and fills gaps in extracted metadata
// otherwise.
type Request struct {
	URL      string                     `json:"url" binding:"required"`
	HTML     string                     `json:"html,omitempty"`
	Content  string                     `json:"content,omitempty"`
	Metadata *storage.ExtractedMetadata `json:"metadata,omitempty"`
}

// Result reports where a page was saved.
type Result struct {
	Slug        string               `json:"slug"`
	CleanedURL  string               `json:"cleanedUrl"`
	VersionName string               `json:"versionName"`
	Status      storage.UploadStatus `json:"status"`
}

// Service saves pages.
type Service struct {
	store     Uploader
	extractor Extractor
	log       logger.Logger
}

// NewService creates a service. log may be nil.
func NewService(store Uploader, extractor Extractor, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		store:     store,
		extractor: extractor,
		log:       log.With(logger.String("component", "ingest")),
	}
}

// Save stores the page described by req as a new version of its item.
func (s *Service) Save(ctx context.Context, req Request) (Result, error) {
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return Result{}, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}

	res := Result{
		Slug:       slug.Derive(rawURL),
		CleanedURL: slug.Clean(rawURL),
	}

	content, metadata, err := s.content(ctx, rawURL, req)
	if err != nil {
		s.log.Warn("Failed to obtain page content", logger.String("url", rawURL), logger.Error(err))
		return res, err
	}
	if metadata.Title == "" {
		metadata.Title = res.CleanedURL
	}

	uploaded, err := s.store.Upload(ctx, res.Slug, content, metadata)
	if err != nil {
		return res, err
	}

	res.VersionName = uploaded.VersionName
	res.Status = uploaded.Status
	s.log.Info("Saved item",
		logger.String("slug", res.Slug),
		logger.String("version", res.VersionName),
		logger.String("status", string(res.Status)))
	return res, nil
}

func (s *Service) content(ctx context.Context, rawURL string, req Request) (string, storage.ExtractedMetadata, error) {
	if strings.TrimSpace(req.Content) != "" {
		var md storage.ExtractedMetadata
		if req.Metadata != nil {
			md = *req.Metadata
		}
		if md.Origin == nil {
			md.Origin = &storage.Origin{URL: rawURL, Extractor: ClientExtractor}
		}
		return req.Content, md, nil
	}

	if s.extractor == nil {
		return "", storage.ExtractedMetadata{}, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}

	var (
		extracted extract.Result
		err       error
	)
	if req.HTML != "" {
		extracted, err = s.extractor.FromHTML(req.HTML, rawURL)
	} else {
		extracted, err = s.extractor.FromURL(ctx, rawURL)
	}
	if err != nil {
		return "", storage.ExtractedMetadata{}, fmt.Errorf("extract %s: %w", rawURL, err)
	}

	md := extracted.Metadata
	if req.Metadata != nil {
		md = merge(md, *req.Metadata)
	}
	md.Origin = &storage.Origin{URL: rawURL, Extractor: extract.Name}
	return extracted.Content, md, nil
}

// merge fills the empty fields of md from hint.
func merge(md, hint storage.ExtractedMetadata) storage.ExtractedMetadata {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&md.Title, hint.Title)
	fill(&md.Description, hint.Description)
	fill(&md.Author, hint.Author)
	fill(&md.Thumbnail, hint.Thumbnail)
	fill(&md.Favicon, hint.Favicon)
	fill(&md.TextLanguage, hint.TextLanguage)
	if md.TextDirection == "" {
		md.TextDirection = hint.TextDirection
	}
	if md.PublishedAt == nil {
		md.PublishedAt = hint.PublishedAt
	}
	return md
}
