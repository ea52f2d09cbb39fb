// Package extract turns fetched HTML into item content and descriptive metadata using
// go-readability. It is the only place in the module that parses HTML.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"curio/storage"
)

// Name is recorded as the origin extractor of content produced here.
const Name = "readability"

const (
	defaultTimeout = 30 * time.Second
	maxPageBytes   = 10 << 20
	userAgent      = "curio/1.0 (+https://github.com/curio)"
)

// ErrNoContent is returned when a page yields no readable text.
var ErrNoContent = errors.New("no readable content")

// Result is the outcome of extracting one page.
type Result struct {
	Content  string
	Metadata storage.ExtractedMetadata
}

// Extractor fetches pages and runs readability over them.
type Extractor struct {
	client *http.Client
}

// New returns an extractor whose page fetches time out after timeout.
func New(timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Extractor{client: &http.Client{Timeout: timeout}}
}

// FromURL fetches pageURL and extracts it.
func (e *Extractor) FromURL(ctx context.Context, pageURL string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("fetch %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", pageURL, err)
	}
	return FromHTML(string(body), pageURL)
}

// FromHTML extracts already-fetched HTML. pageURL resolves relative links and may be empty.
func (e *Extractor) FromHTML(doc, pageURL string) (Result, error) {
	return FromHTML(doc, pageURL)
}

// FromHTML extracts already-fetched HTML. pageURL resolves relative links and may be empty.
func FromHTML(doc, pageURL string) (Result, error) {
	base, err := nurl.Parse(pageURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse page url: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(doc), base)
	if err != nil {
		return Result{}, fmt.Errorf("readability extraction failed: %w", err)
	}

	dir, lang := documentAttrs(doc)
	if article.Language == "" {
		article.Language = lang
	}
	res := fromArticle(article, dir)
	if res.Content == "" {
		return Result{}, ErrNoContent
	}
	return res, nil
}

func fromArticle(a readability.Article, dir string) Result {
	lang := normalizeLanguage(a.Language)
	return Result{
		Content: strings.TrimSpace(a.TextContent),
		Metadata: storage.ExtractedMetadata{
			Title:         strings.TrimSpace(a.Title),
			Description:   strings.TrimSpace(a.Excerpt),
			Author:        strings.TrimSpace(a.Byline),
			Thumbnail:     a.Image,
			Favicon:       a.Favicon,
			PublishedAt:   a.PublishedTime,
			TextDirection: Direction(dir, lang),
			TextLanguage:  lang,
		},
	}
}

// rtlLanguages are primary language subtags written right to left.
var rtlLanguages = map[string]bool{
	"ar": true, "arc": true, "ckb": true, "dv": true, "fa": true, "ha": true,
	"he": true, "khw": true, "ks": true, "ps": true, "sd": true, "ur": true, "yi": true,
}

// Direction resolves the text direction from the document's dir attribute, falling back to
// the language. Unknown languages read left to right.
func Direction(dir, lang string) storage.TextDirection {
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "rtl":
		return storage.TextDirectionRTL
	case "ltr":
		return storage.TextDirectionLTR
	case "auto":
		return storage.TextDirectionAuto
	}

	primary, _, _ := strings.Cut(normalizeLanguage(lang), "-")
	if rtlLanguages[primary] {
		return storage.TextDirectionRTL
	}
	return storage.TextDirectionLTR
}

func normalizeLanguage(lang string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(lang)), "_", "-")
}

// documentAttrs returns the dir and lang attributes of the root element. A dir on <body> is
// used when <html> has none.
func documentAttrs(doc string) (dir, lang string) {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return dir, lang
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if tag != "html" && tag != "body" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				switch string(key) {
				case "dir":
					if dir == "" {
						dir = string(val)
					}
				case "lang":
					if lang == "" && tag == "html" {
						lang = string(val)
					}
				}
			}
			if tag == "body" {
				return dir, lang
			}
		}
	}
}
