package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/forum-comb/app/cfg"
	"github.com/lysyi3m/forum-comb/app/fetch"
	"github.com/lysyi3m/forum-comb/app/sources"
	"github.com/lysyi3m/forum-comb/app/store"
	"github.com/lysyi3m/forum-comb/app/tasks"
)

func NewHandler(configCache *sources.ConfigCache, st *store.Store, client *fetch.Client,
	filterer *sources.Filterer, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		st:          st,
		configCache: configCache,
		client:      client,
		filterer:    filterer,
		scheduler:   scheduler,
	}
}

// GetSources lists the source index.
func (h *Handler) GetSources(c *gin.Context) {
	ids, err := h.st.ListSources()
	if err != nil {
		slog.Error("Failed to list sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sources"})
		return
	}

	entries := make([]*store.IndexEntry, 0, len(ids))
	for _, id := range ids {
		info, err := h.st.SourceInfo(id)
		if err != nil {
			slog.Error("Failed to read source info", "source", id, "error", err)
			continue
		}
		if info != nil {
			entries = append(entries, info)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": entries,
		"total":   len(entries),
	})
}

// GetSourceWeeks lists a source's stored week dates, most recent first.
func (h *Handler) GetSourceWeeks(c *gin.Context) {
	id := c.Param("id")

	info, err := h.st.SourceInfo(id)
	if err != nil {
		slog.Error("Failed to read source info", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read source info"})
		return
	}
	if info == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	weeks, err := h.st.ListWeeks(id)
	if err != nil {
		slog.Error("Failed to list weeks", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list weeks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source": id,
		"weeks":  weeks,
		"total":  len(weeks),
	})
}

// GetSourceData returns the bucket for the week containing ?date
// (default: now). Absent buckets are a 404, never an empty success.
func (h *Handler) GetSourceData(c *gin.Context) {
	id := c.Param("id")

	date := time.Now()
	if param := c.Query("date"); param != "" {
		parsed, err := time.Parse("2006-01-02", param)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	envelopes, err := h.st.Load(id, date)
	if err != nil {
		slog.Error("Failed to load bucket", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load bucket"})
		return
	}
	if envelopes == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No data for the requested week"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source": id,
		"week":   store.WeekStart(date).Format("2006-01-02"),
		"posts":  envelopes,
		"total":  len(envelopes),
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if ids, err := h.st.ListSources(); err == nil {
		health["sources"] = len(ids)
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

// APIScrapeSource enqueues an immediate scrape for one source.
func (h *Handler) APIScrapeSource(c *gin.Context) {
	id := c.Param("id")

	sourceConfig, err := h.configCache.GetConfig(id)
	if err != nil {
		slog.Error("Source configuration not found", "source", id, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		return
	}

	task := tasks.NewScrapeSourceTask(sourceConfig, h.client, h.filterer, h.st)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing scrape task", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue scrape task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

// APIArchiveSource enqueues a retention pass for one source.
func (h *Handler) APIArchiveSource(c *gin.Context) {
	id := c.Param("id")

	info, err := h.st.SourceInfo(id)
	if err != nil {
		slog.Error("Failed to read source info", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read source info"})
		return
	}
	if info == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	task := tasks.NewArchiveSourceTask(id, h.st, cfg.Get().ArchiveWeeks)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing archive task", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue archive task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}
