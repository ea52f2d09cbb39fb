package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"curio/logger"
	"curio/orchestrator"
)

const defaultFeedTimeout = 10 * time.Minute

// FeedsController triggers feed ingestion runs.
type FeedsController struct {
	runner  FeedRunner
	log     logger.Logger
	timeout time.Duration
	// done, when set, receives the summary of every finished run.
	done chan<- orchestrator.Summary
}

type refreshRequest struct {
	Feed    string `json:"feed"`
	Count   int    `json:"count"`
	Workers int    `json:"workers"`
}

// RegisterFeedRoutes registers feed ingestion endpoints.
func RegisterFeedRoutes(r *gin.Engine, ctl *FeedsController) {
	g := r.Group("/api/feeds")
	g.POST("/refresh", ctl.handleRefresh)
}

// handleRefresh starts a feed run in the background and returns 202 Accepted immediately.
func (ctl *FeedsController) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Count < 0 || req.Workers < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count and workers must not be negative"})
		return
	}

	opts := orchestrator.Options{Feed: req.Feed, Count: req.Count, Workers: req.Workers}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ctl.timeout)
		defer cancel()

		summary, err := ctl.runner.RunOnce(ctx, opts)
		if err != nil {
			ctl.log.Error("Feed refresh failed", logger.String("feed", summary.FeedURL), logger.Error(err))
		}
		if ctl.done != nil {
			ctl.done <- summary
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "refresh started"})
}
