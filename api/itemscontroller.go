package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"curio/ingest"
	"curio/logger"
	"curio/slug"
)

// ItemsController serves item content, metadata and saves.
type ItemsController struct {
	store  ItemStore
	ingest Saver
	log    logger.Logger
}

// RegisterItemRoutes registers item endpoints.
func RegisterItemRoutes(r *gin.Engine, ctl *ItemsController) {
	g := r.Group("/api/items")
	g.POST("/slug", ctl.handleSlug)
	g.POST("/content", ctl.handleSave)
	g.GET("/:slug/content", ctl.handleContent)
	g.GET("/:slug/metadata", ctl.handleMetadata)
	g.GET("/:slug/versions", ctl.handleVersions)
}

type slugRequest struct {
	URL string `json:"url" binding:"required"`
}

// handleSlug derives the slug and cleaned URL of a page without storing anything.
func (ctl *ItemsController) handleSlug(c *gin.Context) {
	var req slugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"slug":       slug.Derive(req.URL),
		"cleanedUrl": slug.Clean(req.URL),
	})
}

func (ctl *ItemsController) handleSave(c *gin.Context) {
	var req ingest.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := ctl.ingest.Save(c.Request.Context(), req)
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleContent serves ?version= when it exists and default otherwise. The response's version
// is empty when default was served.
func (ctl *ItemsController) handleContent(c *gin.Context) {
	content, err := ctl.store.GetContent(c.Request.Context(), c.Param("slug"), c.Query("version"))
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version":     content.Version,
		"versionName": content.VersionName,
		"content":     content.Content,
	})
}

func (ctl *ItemsController) handleMetadata(c *gin.Context) {
	meta, err := ctl.store.GetMetadata(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (ctl *ItemsController) handleVersions(c *gin.Context) {
	versions, err := ctl.store.ListVersions(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, ctl.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}
