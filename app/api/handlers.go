package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-hoard/app/database"
	"github.com/lysyi3m/rss-hoard/app/feed"
	"github.com/lysyi3m/rss-hoard/app/tasks"
)

const maxPageSize = 200

func NewHandler(configCache *feed.ConfigCache, feedRepo database.FeedRepository, articleRepo database.ArticleRepository,
	contentRepo database.ContentRepository, content ContentService, status StatusSource,
	scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		configCache: configCache,
		feedRepo:    feedRepo,
		articleRepo: articleRepo,
		contentRepo: contentRepo,
		content:     content,
		status:      status,
		scheduler:   scheduler,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(c.Request.Context()); err == nil {
		health["feeds"] = feedCount
	}

	if h.configCache != nil {
		health["loaded_configurations"] = h.configCache.GetConfigCount()
	}

	c.JSON(http.StatusOK, health)
}

// TriggerRefresh starts a fetch cycle; it answers 202 even when one is already running.
func (h *Handler) TriggerRefresh(c *gin.Context) {
	started := h.scheduler.TriggerFetchAll()
	c.JSON(http.StatusAccepted, gin.H{"success": true, "started": started})
}

func (h *Handler) GetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.State())
}

func (h *Handler) ListFeeds(c *gin.Context) {
	ctx := c.Request.Context()

	feeds, err := h.feedRepo.ListFeeds(ctx)
	if err != nil {
		respondError(c, "list_feeds", err)
		return
	}

	infos := make([]feedInfo, 0, len(feeds))
	for _, f := range feeds {
		info := feedInfo{Feed: f, Source: feed.SourceKindFor(f.URL, f.ScriptPath)}
		if count, err := h.articleRepo.GetArticleCount(ctx, f.ID); err == nil {
			info.ArticleCount = count
		}
		infos = append(infos, info)
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": infos,
		"total": len(infos),
	})
}

func (h *Handler) RefreshFeed(c *gin.Context) {
	id := c.Param("id")

	if err := h.scheduler.RefreshFeed(id); err != nil {
		respondError(c, "refresh_feed", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "feed": id})
}

func (h *Handler) ListArticles(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.feedRepo.GetFeed(ctx, id); err != nil {
		respondError(c, "get_feed", err)
		return
	}

	limit, err := queryInt(c, "limit", 50)
	if err != nil || limit <= 0 || limit > maxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxPageSize)})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be non-negative"})
		return
	}

	articles, err := h.articleRepo.ListArticles(ctx, database.ArticleFilter{
		FeedID:        id,
		IncludeHidden: c.Query("hidden") == "true",
		UnreadOnly:    c.Query("unread") == "true",
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		respondError(c, "list_articles", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": articles,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) UpdateArticle(c *gin.Context) {
	var flags database.ArticleFlags
	if err := c.ShouldBindJSON(&flags); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	article, err := h.articleRepo.UpdateFlags(c.Request.Context(), c.Param("id"), flags)
	if err != nil {
		respondError(c, "update_article", err)
		return
	}

	c.JSON(http.StatusOK, article)
}

// GetArticleContent returns the cached content of an article. With fresh=true, or when
// nothing is cached, the content is read again from the article's feed.
func (h *Handler) GetArticleContent(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if c.Query("fresh") != "true" {
		cached, err := h.contentRepo.GetArticleContent(ctx, id)
		if err == nil {
			c.JSON(http.StatusOK, contentResponse{ArticleID: id, Content: cached.Content})
			return
		}
		if !errors.Is(err, database.ErrNotFound) {
			respondError(c, "get_content", err)
			return
		}
	}

	content, err := h.content.FreshContent(ctx, id)
	if err != nil {
		respondError(c, "fresh_content", err)
		return
	}

	c.JSON(http.StatusOK, contentResponse{ArticleID: id, Content: content, Fresh: true})
}

func (h *Handler) CountContent(c *gin.Context) {
	count, err := h.contentRepo.CountArticleContents(c.Request.Context())
	if err != nil {
		respondError(c, "count_content", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) ClearContent(c *gin.Context) {
	deleted, err := h.contentRepo.DeleteAllArticleContents(c.Request.Context())
	if err != nil {
		respondError(c, "clear_content", err)
		return
	}

	slog.Info("Article content cache cleared", "deleted", deleted)
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func respondError(c *gin.Context, operation string, err error) {
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, tasks.ErrItemNotInFeed) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	slog.ErrorContext(c.Request.Context(), "Request failed", "operation", operation, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
