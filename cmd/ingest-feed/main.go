// Command ingest-feed saves the entries of one RSS/Atom feed into the item store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"curio/app"
	"curio/config"
	"curio/logger"
	"curio/orchestrator"
	"curio/rssfeeds"
)

func main() {
	feed := flag.String("feed", rssfeeds.DefaultFeedPreset, "feed preset name or URL (use -feeds to list presets)")
	count := flag.Int("count", rssfeeds.DefaultCount, "maximum number of entries to save")
	workers := flag.Int("workers", 0, "concurrent saves (default from config)")
	listFeeds := flag.Bool("feeds", false, "list feed presets and exit")
	flag.Parse()

	if *listFeeds {
		fmt.Println("Available feed presets:")
		fmt.Print(rssfeeds.PresetList())
		fmt.Printf("\nDefault: %s\n", rssfeeds.DefaultFeedPreset)
		return
	}

	cfg, err := config.Load(config.Path("config.yml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(logger.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", logger.Error(err))
	}
	defer a.Close()

	if *workers <= 0 {
		*workers = cfg.Fetch.Workers
	}
	summary, runErr := a.Feeds.RunOnce(ctx, orchestrator.Options{Feed: *feed, Count: *count, Workers: *workers})

	// The summary goes to stdout so it can be piped; logs stay on stderr.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Error("Failed to encode summary", logger.Error(err))
	}

	if runErr != nil {
		log.Error("Feed ingestion failed", logger.Error(runErr))
		_ = log.Sync()
		os.Exit(1)
	}
}
