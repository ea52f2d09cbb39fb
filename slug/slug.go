// Package slug derives the storage key of a saved item from its URL.
//
// A slug is built from the host and the most informative path segment of the URL, transliterated to
// lowercase ASCII, followed by a short SHA-256 suffix of the cleaned URL:
//
//	https://www.npr.org/2005/08/08/4785079/always-go-to-the-funeral?utm_source=x
//	-> npr-org-always-go-to-the-funeral-1a2b3c
//
// Derive is pure and total: input that cannot be parsed as an absolute URL still yields a usable
// "item-" slug.
package slug

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/net/idna"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FallbackHostname is the host of synthetic URLs minted for items without a web address, such as
// newsletters saved by email: https://{FallbackHostname}/{sender-domain}/{subject}. For these the
// first path segment stands in for the host.
const FallbackHostname = "curio.local"

const (
	maxWords       = 7
	suffixLength   = 6
	fallbackLength = 8
	fallbackPrefix = "item-"
)

var (
	extensionPattern = regexp.MustCompile(`\.[a-zA-Z0-9]+$`)
	repeatedHyphens  = regexp.MustCompile(`-+`)
	nonSlugChars     = regexp.MustCompile(`[^a-z0-9]+`)
	slugSafe         = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// Clean returns the canonical form of rawURL: scheme and host lowercased, default port dropped,
// query string, fragment and trailing slashes removed. Input that is not an absolute URL is
// returned unchanged.
func Clean(rawURL string) string {
	u, ok := parse(rawURL)
	if !ok {
		return rawURL
	}
	return clean(u)
}

// Derive maps rawURL to its slug. Two URLs with the same cleaned form always share a slug.
func Derive(rawURL string) string {
	u, ok := parse(rawURL)
	if !ok {
		return fallbackPrefix + digest(rawURL)[:fallbackLength]
	}
	cleaned := clean(u)

	host := strings.ToLower(u.Hostname())
	domain := strings.TrimPrefix(host, "www.")
	if host == FallbackHostname {
		domain = firstSegment(u.Path)
	}

	domainWords := truncateWords(strings.ReplaceAll(domain, ".", "-"), maxWords)
	pathWords := truncateWords(longestSegment(u.Path), maxWords)

	words := strings.ToLower(domainWords + "-" + pathWords)
	words = repeatedHyphens.ReplaceAllString(words, "-")
	words = strings.Trim(words, "-")

	tokens := make([]string, 0, 2*maxWords+2)
	for _, part := range strings.Split(words, "-") {
		if token := asciiToken(part); token != "" {
			tokens = append(tokens, token)
		}
	}
	// Every watch page cleans to the same URL, so the video id and its digest identify the item.
	if id := youtubeVideoID(u); id != "" {
		if token := sanitize(strings.ToLower(id)); token != "" {
			tokens = append(tokens, token)
		}
		tokens = append(tokens, digest(id)[:suffixLength])
		return strings.Join(tokens, "-")
	}
	tokens = append(tokens, digest(cleaned)[:suffixLength])

	return strings.Join(tokens, "-")
}

func parse(rawURL string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return nil, false
	}
	return u, true
}

func clean(u *url.URL) string {
	host := stripDefaultPort(u.Scheme, strings.ToLower(u.Host))
	return u.Scheme + "://" + host + strings.TrimRight(u.EscapedPath(), "/")
}

func stripDefaultPort(scheme, host string) string {
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

func youtubeVideoID(u *url.URL) string {
	if !strings.Contains(strings.ToLower(u.Hostname()), "youtube.com") {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("v"))
}

func segments(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstSegment(path string) string {
	parts := segments(path)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// longestSegment picks the longest path segment, keeping the earliest on ties. A file extension is
// stripped only when that segment ends the path.
func longestSegment(path string) string {
	parts := segments(path)
	if len(parts) == 0 {
		return ""
	}

	longest := parts[0]
	for _, p := range parts[1:] {
		if utf8.RuneCountInString(p) > utf8.RuneCountInString(longest) {
			longest = p
		}
	}
	if parts[len(parts)-1] == longest {
		longest = extensionPattern.ReplaceAllString(longest, "")
	}
	return strings.ReplaceAll(longest, ".", "-")
}

func truncateWords(s string, n int) string {
	words := strings.Split(s, "-")
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, "-")
}

// asciiToken transliterates one word. Words with no ASCII rendering at all (emoji, symbols) are
// encoded instead of dropped.
func asciiToken(part string) string {
	if part == "" {
		return ""
	}
	if token := transliterate(part); token != "" {
		return token
	}
	return encodeToken(part)
}

func transliterate(s string) string {
	// transform.Chain keeps internal state, so it is built per call.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripMarks, s)
	if err != nil {
		stripped = s
	}
	return sanitize(strings.ToLower(unidecode.Unidecode(stripped)))
}

func sanitize(s string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(s, "-"), "-")
}

func encodeToken(part string) string {
	encoded, err := idna.Punycode.ToASCII(part)
	if err == nil {
		encoded = strings.TrimPrefix(strings.ToLower(encoded), "xn--")
		if slugSafe.MatchString(encoded) {
			return encoded
		}
	}
	return hex.EncodeToString([]byte(part))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
