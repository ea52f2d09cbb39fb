package rssfeeds

import (
	"fmt"
	"sort"
	"strings"
)

// Default feed settings.
const (
	DefaultFeedPreset = "hn"
	DefaultCount      = 10
	DefaultWorkers    = 5
)

// FeedConfig is a named feed.
type FeedConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// FeedPresets maps short keys to well-known feeds.
var FeedPresets = map[string]FeedConfig{
	"cna": {
		Name: "Channel News Asia",
		URL:  "https://www.channelnewsasia.com/api/v1/rss-outbound-feed?_format=xml",
	},
	"st": {
		Name: "Straits Times",
		URL:  "https://www.straitstimes.com/news/singapore/rss.xml",
	},
	"hn": {
		Name: "Hacker News",
		URL:  "https://hnrss.org/newest",
	},
	"tr": {
		Name: "Technology Review",
		URL:  "https://www.technologyreview.com/feed/",
	},
}

// ResolveFeedURL returns the URL of a preset, or the input itself when it is not a preset name.
func ResolveFeedURL(feed string) string {
	if preset, ok := FeedPresets[strings.ToLower(strings.TrimSpace(feed))]; ok {
		return preset.URL
	}
	return feed
}

// PresetList renders the presets one per line, sorted by key.
func PresetList() string {
	keys := make([]string, 0, len(FeedPresets))
	for k := range FeedPresets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "  %-6s %-20s %s\n", k, FeedPresets[k].Name, FeedPresets[k].URL)
	}
	return b.String()
}
