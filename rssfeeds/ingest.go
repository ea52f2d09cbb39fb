package rssfeeds

import (
	"context"
	"sync"

	"curio/ingest"
	"curio/logger"
)

// Saver saves one page.
type Saver interface {
	Save(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

// Outcome is the result of saving one entry.
type Outcome struct {
	Entry  Entry
	Result ingest.Result
	Err    error
}

// IngestFeed saves entries with a pool of workers and returns one outcome per entry, in entry
// order. Entries not yet started when ctx is cancelled report ctx's error.
func IngestFeed(ctx context.Context, saver Saver, entries []Entry, workers int, log logger.Logger) []Outcome {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = logger.NewNop()
	}

	outcomes := make([]Outcome, len(entries))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(entries)); w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				entry := entries[i]
				out := Outcome{Entry: entry}
				if err := ctx.Err(); err != nil {
					out.Err = err
				} else {
					out.Result, out.Err = saver.Save(ctx, entry.Request())
				}
				if out.Err != nil {
					log.Warn("Failed to save feed entry",
						logger.Int("worker", workerID), logger.String("url", entry.URL), logger.Error(out.Err))
				}
				outcomes[i] = out
			}
		}(w)
	}

	for i := range entries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}
