package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curio/extract"
	"curio/slug"
	"curio/storage"
)

type fakeExtractor struct {
	result   extract.Result
	err      error
	fetched  []string
	fromHTML []string
}

func (f *fakeExtractor) FromURL(_ context.Context, pageURL string) (extract.Result, error) {
	f.fetched = append(f.fetched, pageURL)
	return f.result, f.err
}

func (f *fakeExtractor) FromHTML(doc, _ string) (extract.Result, error) {
	f.fromHTML = append(f.fromHTML, doc)
	return f.result, f.err
}

func newService(t *testing.T, ex Extractor) (*Service, *storage.Store) {
	t.Helper()
	store := storage.NewStore(storage.StaticPool(storage.NewMemoryBackend(), nil))
	return NewService(store, ex, nil), store
}

func TestSaveWithContent(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExtractor{}
	svc, store := newService(t, ex)

	res, err := svc.Save(ctx, Request{
		URL:      "https://www.example.com/posts/hello-world/?utm=x",
		Content:  "Hello",
		Metadata: &storage.ExtractedMetadata{Title: "Hello world"},
	})
	require.NoError(t, err)
	assert.Equal(t, slug.Derive("https://www.example.com/posts/hello-world/?utm=x"), res.Slug)
	assert.Equal(t, "https://www.example.com/posts/hello-world", res.CleanedURL)
	assert.Equal(t, storage.StatusUpdatedMain, res.Status)
	assert.Empty(t, ex.fetched)

	meta, err := store.GetMetadata(ctx, res.Slug)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", meta.Title)
	require.NotNil(t, meta.Origin)
	assert.Equal(t, ClientExtractor, meta.Origin.Extractor)

	again, err := svc.Save(ctx, Request{URL: "https://www.example.com/posts/hello-world", Content: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSkipped, again.Status)
	assert.Equal(t, res.VersionName, again.VersionName)
}

func TestSaveExtractsHTML(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExtractor{result: extract.Result{
		Content:  "extracted text",
		Metadata: storage.ExtractedMetadata{Title: "From page", TextDirection: storage.TextDirectionRTL},
	}}
	svc, store := newService(t, ex)

	res, err := svc.Save(ctx, Request{URL: "https://example.com/a", HTML: "<html></html>"})
	require.NoError(t, err)
	assert.Equal(t, []string{"<html></html>"}, ex.fromHTML)
	assert.Empty(t, ex.fetched)

	c, err := store.GetContent(ctx, res.Slug, "")
	require.NoError(t, err)
	assert.Equal(t, "extracted text", c.Content)

	meta, err := store.GetMetadata(ctx, res.Slug)
	require.NoError(t, err)
	assert.Equal(t, storage.TextDirectionRTL, meta.TextDirection)
	assert.Equal(t, &storage.Origin{URL: "https://example.com/a", Extractor: extract.Name}, meta.Origin)
}

func TestSaveFetchesURLAndMergesHints(t *testing.T) {
	ctx := context.Background()
	published := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ex := &fakeExtractor{result: extract.Result{
		Content:  "fetched text",
		Metadata: storage.ExtractedMetadata{Author: "Page Author"},
	}}
	svc, store := newService(t, ex)

	res, err := svc.Save(ctx, Request{
		URL: "https://example.com/feed-item",
		Metadata: &storage.ExtractedMetadata{
			Title:       "Feed title",
			Author:      "Feed Author",
			PublishedAt: &published,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/feed-item"}, ex.fetched)

	meta, err := store.GetMetadata(ctx, res.Slug)
	require.NoError(t, err)
	assert.Equal(t, "Feed title", meta.Title)
	assert.Equal(t, "Page Author", meta.Author)
	require.NotNil(t, meta.PublishedAt)
	assert.True(t, published.Equal(*meta.PublishedAt))
}

func TestSaveDefaultsTitleToCleanedURL(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, &fakeExtractor{})

	res, err := svc.Save(ctx, Request{URL: "https://Example.com/untitled/", Content: "text"})
	require.NoError(t, err)

	meta, err := store.GetMetadata(ctx, res.Slug)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/untitled", meta.Title)
}

func TestSaveErrors(t *testing.T) {
	ctx := context.Background()

	svc, _ := newService(t, &fakeExtractor{})
	_, err := svc.Save(ctx, Request{URL: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	noExtractor, _ := newService(t, nil)
	_, err = noExtractor.Save(ctx, Request{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	failing, _ := newService(t, &fakeExtractor{err: extract.ErrNoContent})
	res, err := failing.Save(ctx, Request{URL: "https://example.com/empty"})
	assert.ErrorIs(t, err, extract.ErrNoContent)
	assert.NotEmpty(t, res.Slug)
}

type failingUploader struct{}

func (failingUploader) Upload(context.Context, string, string, storage.ExtractedMetadata) (storage.UploadResult, error) {
	return storage.UploadResult{}, errors.New("backend down")
}

func TestSaveUploadFailure(t *testing.T) {
	svc := NewService(failingUploader{}, nil, nil)
	_, err := svc.Save(context.Background(), Request{URL: "https://example.com", Content: "x"})
	assert.EqualError(t, err, "backend down")
}

func TestMerge(t *testing.T) {
	got := merge(
		storage.ExtractedMetadata{Title: "page", TextLanguage: "en"},
		storage.ExtractedMetadata{Title: "hint", Description: "d", TextLanguage: "fr", TextDirection: storage.TextDirectionRTL},
	)
	assert.Equal(t, storage.ExtractedMetadata{
		Title:         "page",
		Description:   "d",
		TextLanguage:  "en",
		TextDirection: storage.TextDirectionRTL,
	}, got)
}
