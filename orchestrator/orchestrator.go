// Package orchestrator runs one feed ingestion cycle: fetch the feed, save every entry, and
// summarize what happened to each.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"curio/logger"
	"curio/rssfeeds"
	"curio/storage"
)

// FetchFunc retrieves feed entries.
type FetchFunc func(ctx context.Context, feedURL string, maxCount int) ([]rssfeeds.Entry, error)

// Options selects the feed and how hard to work on it.
type Options struct {
	// Feed is a preset name or a feed URL.
	Feed    string
	Count   int
	Workers int
}

// Summary counts the outcomes of one run.
type Summary struct {
	FeedURL  string        `json:"feedUrl"`
	Total    int           `json:"total"`
	Updated  int           `json:"updated"`
	Stored   int           `json:"stored"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Runner runs feed ingestion cycles.
type Runner struct {
	fetch FetchFunc
	saver rssfeeds.Saver
	log   logger.Logger
	now   func() time.Time
}

// New creates a runner. A nil fetch uses rssfeeds.FetchFeed.
func New(fetch FetchFunc, saver rssfeeds.Saver, log logger.Logger) *Runner {
	if fetch == nil {
		fetch = rssfeeds.FetchFeed
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{
		fetch: fetch,
		saver: saver,
		log:   log.With(logger.String("component", "orchestrator")),
		now:   time.Now,
	}
}

// RunOnce executes a single cycle. Per-entry failures are counted, not returned.
func (r *Runner) RunOnce(ctx context.Context, opts Options) (Summary, error) {
	if opts.Feed == "" {
		opts.Feed = rssfeeds.DefaultFeedPreset
	}
	if opts.Count <= 0 {
		opts.Count = rssfeeds.DefaultCount
	}

	start := r.now()
	summary := Summary{FeedURL: rssfeeds.ResolveFeedURL(opts.Feed)}
	r.log.Info("Fetching feed", logger.String("feed", summary.FeedURL), logger.Int("count", opts.Count))

	entries, err := r.fetch(ctx, summary.FeedURL, opts.Count)
	if err != nil {
		return summary, fmt.Errorf("fetch feed: %w", err)
	}

	outcomes := rssfeeds.IngestFeed(ctx, r.saver, entries, opts.Workers, r.log)
	for _, out := range outcomes {
		summary.add(out)
	}
	summary.Duration = r.now().Sub(start)

	r.log.Info("Feed run complete",
		logger.String("feed", summary.FeedURL),
		logger.Int("total", summary.Total),
		logger.Int("updated", summary.Updated),
		logger.Int("stored", summary.Stored),
		logger.Int("skipped", summary.Skipped),
		logger.Int("failed", summary.Failed),
		logger.Duration("duration", summary.Duration))

	if summary.Total > 0 && summary.Failed == summary.Total {
		return summary, errors.New("every feed entry failed")
	}
	return summary, nil
}

func (s *Summary) add(out rssfeeds.Outcome) {
	s.Total++
	if out.Err != nil {
		s.Failed++
		return
	}
	switch out.Result.Status {
	case storage.StatusUpdatedMain:
		s.Updated++
	case storage.StatusStoredVersion:
		s.Stored++
	case storage.StatusSkipped:
		s.Skipped++
	}
}
