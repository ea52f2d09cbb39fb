// Package api exposes item saving and reading over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"curio/extract"
	"curio/ingest"
	"curio/logger"
	"curio/orchestrator"
	"curio/storage"
)

// ItemStore is the read side of the version store.
type ItemStore interface {
	GetContent(ctx context.Context, slug, version string) (storage.Content, error)
	GetMetadata(ctx context.Context, slug string) (storage.VersionMetadata, error)
	ListVersions(ctx context.Context, slug string) ([]string, error)
}

// Saver saves pages.
type Saver interface {
	Save(ctx context.Context, req ingest.Request) (ingest.Result, error)
}

// FeedRunner runs one feed ingestion cycle.
type FeedRunner interface {
	RunOnce(ctx context.Context, opts orchestrator.Options) (orchestrator.Summary, error)
}

// HealthCheck verifies a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the services behind the routes. Feeds and Health are optional.
type Deps struct {
	Store  ItemStore
	Ingest Saver
	Feeds  FeedRunner
	Health HealthCheck
	Log    logger.Logger
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	log := d.Log.With(logger.String("component", "api"))

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	RegisterHealthRoutes(r, d.Health)
	RegisterItemRoutes(r, &ItemsController{store: d.Store, ingest: d.Ingest, log: log})
	if d.Feeds != nil {
		RegisterFeedRoutes(r, &FeedsController{runner: d.Feeds, log: log, timeout: defaultFeedTimeout})
	}
	return r
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Handled request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)))
	}
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, log logger.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case storage.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidSlug), errors.Is(err, ingest.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, extract.ErrNoContent):
		status = http.StatusUnprocessableEntity
	}

	message := err.Error()
	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		message = storageErr.Message
	}

	if status == http.StatusInternalServerError {
		log.Error("Request failed", logger.String("path", c.FullPath()), logger.Error(err))
	}
	c.JSON(status, gin.H{"error": message})
}
