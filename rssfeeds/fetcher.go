// Package rssfeeds reads RSS and Atom feeds and saves their entries as items.
package rssfeeds

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"curio/ingest"
	"curio/storage"
)

// Entry is one feed item worth saving.
type Entry struct {
	GUID        string     `json:"guid,omitempty"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Author      string     `json:"author,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	Language    string     `json:"language,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// FetchFeed retrieves and parses an RSS/Atom feed, returning at most maxCount entries. A
// non-positive maxCount returns every entry.
func FetchFeed(ctx context.Context, feedURL string, maxCount int) ([]Entry, error) {
	feed, err := gofeed.NewParser().ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}
	return entriesFromFeed(feed, maxCount), nil
}

// ParseFeed parses a feed document.
func ParseFeed(r io.Reader, maxCount int) ([]Entry, error) {
	feed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return entriesFromFeed(feed, maxCount), nil
}

func entriesFromFeed(feed *gofeed.Feed, maxCount int) []Entry {
	count := len(feed.Items)
	if maxCount > 0 {
		count = min(count, maxCount)
	}

	entries := make([]Entry, 0, count)
	for _, item := range feed.Items {
		if len(entries) == count {
			break
		}
		// Entries without a link have nothing to save.
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}

		e := Entry{
			GUID:     item.GUID,
			Title:    strings.TrimSpace(item.Title),
			URL:      link,
			Summary:  item.Description,
			Language: feed.Language,
		}
		if e.Summary == "" {
			e.Summary = item.Content
		}
		switch {
		case item.PublishedParsed != nil:
			e.PublishedAt = item.PublishedParsed
		case item.UpdatedParsed != nil:
			e.PublishedAt = item.UpdatedParsed
		}
		if item.Author != nil {
			e.Author = item.Author.Name
		} else if len(item.Authors) > 0 && item.Authors[0] != nil {
			e.Author = item.Authors[0].Name
		}
		if item.Image != nil {
			e.ImageURL = item.Image.URL
		}
		entries = append(entries, e)
	}
	return entries
}

// Request turns the entry into an ingest request. Feed fields only fill gaps left by page
// extraction.
func (e Entry) Request() ingest.Request {
	return ingest.Request{
		URL: e.URL,
		Metadata: &storage.ExtractedMetadata{
			Title:        e.Title,
			Author:       e.Author,
			Thumbnail:    e.ImageURL,
			PublishedAt:  e.PublishedAt,
			TextLanguage: e.Language,
		},
	}
}
