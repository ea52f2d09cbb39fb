// Command consumer saves items from "save page" events published to Kafka.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"curio/app"
	"curio/config"
	"curio/ingest"
	"curio/logger"
	"curio/shared/kafka"
)

func main() {
	cfg, err := config.Load(config.Path("config.yml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(logger.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	defer func() { _ = log.Sync() }()

	if err := cfg.Kafka.Validate(); err != nil {
		log.Fatal("Invalid Kafka config", logger.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", logger.Error(err))
	}
	defer a.Close()

	handler := &kafka.TypedMessageHandler[ingest.Request]{
		Validate: func(req *ingest.Request) bool {
			return strings.TrimSpace(req.URL) != ""
		},
		Process: func(ctx context.Context, req *ingest.Request) error {
			saveCtx, cancel := context.WithTimeout(ctx, cfg.Fetch.Timeout+30*time.Second)
			defer cancel()
			_, err := a.Ingest.Save(saveCtx, *req)
			return err
		},
		AlwaysMark: true,
		Logger:     log,
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
		Handler: handler,
		Logger:  log,
	})
	if err != nil {
		log.Fatal("Failed to create Kafka consumer", logger.Error(err))
	}

	if err := consumer.Start(ctx); err != nil {
		log.Error("Kafka consumer did not start", logger.Error(err))
	}

	<-ctx.Done()
	if err := consumer.Close(); err != nil {
		log.Error("Failed to close Kafka consumer", logger.Error(err))
	}
}
