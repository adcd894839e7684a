package api

import (
	"context"

	"github.com/lysyi3m/rss-hoard/app/database"
	"github.com/lysyi3m/rss-hoard/app/feed"
	"github.com/lysyi3m/rss-hoard/app/tasks"
)

// ContentService serves article content straight from the article's feed.
type ContentService interface {
	FreshContent(ctx context.Context, articleID string) (string, error)
}

type StatusSource interface {
	State() tasks.FetchState
}

var (
	_ ContentService = (*tasks.Orchestrator)(nil)
	_ StatusSource   = (*tasks.Tracker)(nil)
)

type Handler struct {
	configCache *feed.ConfigCache
	feedRepo    database.FeedRepository
	articleRepo database.ArticleRepository
	contentRepo database.ContentRepository
	content     ContentService
	status      StatusSource
	scheduler   tasks.TaskSchedulerInterface
}

type feedInfo struct {
	database.Feed
	Source       feed.SourceKind `json:"source"`
	ArticleCount int             `json:"article_count"`
}

type contentResponse struct {
	ArticleID string `json:"article_id"`
	Content   string `json:"content"`
	Fresh     bool   `json:"fresh"`
}
