package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/debunkd/app/content"
	"github.com/lysyi3m/debunkd/app/search"
	"github.com/lysyi3m/debunkd/app/topics"
)

const (
	defaultArchiveLimit = 20
	maxArchiveLimit     = 100
)

func NewHandler(sections *content.Sections, store *content.Store, topicSet *topics.Set,
	state WorkerStateInterface, limiter RateWindowInterface, archive ArchiveInterface,
	searches SearchQueueInterface, baseURL, version string) *Handler {
	return &Handler{
		sections:  sections,
		store:     store,
		topics:    topicSet,
		state:     state,
		limiter:   limiter,
		archive:   archive,
		searches:  searches,
		generator: NewGenerator(baseURL, version),
		version:   version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":           "ok",
		"timestamp":        time.Now().In(time.Local).Format(time.RFC3339),
		"version":          h.version,
		"sections":         h.topics.Len(),
		"articles":         h.store.Len(),
		"initial_complete": h.state.InitialComplete(),
	}

	if h.archive != nil {
		if count, err := h.archive.GetArticleCount(c.Request.Context()); err == nil {
			health["archived_articles"] = count
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListSections(c *gin.Context) {
	sections := make([]sectionInfo, 0, h.topics.Len())

	for _, topic := range h.topics.All() {
		stats, ok := h.sections.Stats(topic.Name)
		if !ok {
			continue
		}

		info := sectionInfo{
			Name:        topic.Name,
			Title:       topic.Title,
			Kind:        topic.Kind,
			Headlines:   stats.Headlines,
			Articles:    stats.Articles,
			MaxArticles: h.sections.MaxArticles(),
		}
		if !stats.LastUpdateTime.IsZero() {
			updated := stats.LastUpdateTime.In(time.Local).Format(time.RFC3339)
			info.LastUpdateTime = &updated
		}

		sections = append(sections, info)
	}

	c.JSON(http.StatusOK, gin.H{
		"sections":         sections,
		"total":            len(sections),
		"initial_complete": h.state.InitialComplete(),
	})
}

func (h *Handler) GetSection(c *gin.Context) {
	name := c.Param("name")

	topic, err := h.topics.Get(name)
	if err != nil {
		if errors.Is(err, topics.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Section not found"})
			return
		}
		slog.Error("Failed to look up section", "section", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	articles := h.sections.Snapshot(topic.Name)

	c.JSON(http.StatusOK, gin.H{
		"section":          topic.Name,
		"title":            topic.Title,
		"kind":             topic.Kind,
		"articles":         articles,
		"count":            len(articles),
		"initial_complete": h.state.InitialComplete(),
	})
}

func (h *Handler) GetArticle(c *gin.Context) {
	article, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}

	c.JSON(http.StatusOK, article)
}

func (h *Handler) RequestRefresh(c *gin.Context) {
	h.state.RequestRefresh()

	snapshot := h.state.Snapshot()
	slog.Info("Refresh requested", "phase", snapshot.Phase.String(), "client_ip", c.ClientIP())

	c.JSON(http.StatusAccepted, gin.H{
		"message":           "Refresh requested",
		"phase":             snapshot.Phase.String(),
		"refresh_requested": snapshot.RefreshRequested,
	})
}

func (h *Handler) GetStatus(c *gin.Context) {
	snapshot := h.state.Snapshot()

	status := map[string]interface{}{
		"phase":             snapshot.Phase.String(),
		"step":              snapshot.Step,
		"unit":              snapshot.Unit,
		"cycle":             snapshot.Cycle,
		"initial_complete":  snapshot.InitialComplete,
		"refresh_requested": snapshot.RefreshRequested,
		"rate_window": map[string]int{
			"calls":     h.limiter.Len(),
			"max_calls": h.limiter.MaxCalls(),
		},
	}

	if !snapshot.LastStepTime.IsZero() {
		status["last_step_time"] = snapshot.LastStepTime.In(time.Local).Format(time.RFC3339)
	}
	if !snapshot.LastRefreshAt.IsZero() {
		status["last_refresh_at"] = snapshot.LastRefreshAt.In(time.Local).Format(time.RFC3339)
	}
	if snapshot.BackoffUntil.After(time.Now()) {
		status["backoff_until"] = snapshot.BackoffUntil.In(time.Local).Format(time.RFC3339)
	}
	if h.searches != nil {
		status["searches_pending"] = h.searches.Pending()
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) GetFeed(c *gin.Context) {
	name := c.Param("name")

	topic, err := h.topics.Get(name)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	articles := h.sections.Snapshot(topic.Name)

	rss, err := h.generator.Run(topic, articles)
	if err != nil {
		slog.Error("RSS generation error", "section", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(articles)))
	c.Header("X-Feed-Name", name)

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetArchive(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive is disabled"})
		return
	}

	limit := defaultArchiveLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxArchiveLimit)
	}

	section := c.Query("section")
	if section != "" && !h.sections.Has(section) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Section not found"})
		return
	}

	articles, err := h.archive.GetRecentArticles(c.Request.Context(), section, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_recent_articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if articles == nil {
		articles = []content.Article{}
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": articles,
		"total":    len(articles),
	})
}

// SubmitSearch queues a fact-check for the worker and returns at once. The
// client polls GetSearch for the answer.
func (h *Handler) SubmitSearch(c *gin.Context) {
	if h.searches == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Search is disabled"})
		return
	}

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	job, err := h.searches.Submit(req.Query)
	switch {
	case errors.Is(err, search.ErrEmptyQuery), errors.Is(err, search.ErrQueryTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, search.ErrQueueFull):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.Error("Failed to queue search", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	h.state.Notify()
	slog.Info("Search queued", "id", job.ID, "client_ip", c.ClientIP())

	c.Header("Location", "/api/search/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

func (h *Handler) GetSearch(c *gin.Context) {
	if h.searches == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Search is disabled"})
		return
	}

	job, err := h.searches.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Search not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}
