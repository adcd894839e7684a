package database

import (
	"context"
	"time"
)

type FeedRepository interface {
	ListFeeds(ctx context.Context) ([]Feed, error)
	GetFeed(ctx context.Context, id string) (Feed, error)
	GetFeedCount(ctx context.Context) (int, error)

	UpsertFeed(ctx context.Context, feed Feed) error
	MarkFetched(ctx context.Context, id string, title string, fetchedAt time.Time) error
	DeleteFeed(ctx context.Context, id string) error
	DeleteFeedsNotIn(ctx context.Context, ids []string) (int64, error)
}

type ArticleRepository interface {
	GetArticleByID(ctx context.Context, id string) (Article, error)
	ArticleExistsForURL(ctx context.Context, feedID, url string) (bool, error)
	ListArticles(ctx context.Context, filter ArticleFilter) ([]Article, error)
	ListArticlesWithoutContent(ctx context.Context, feedID string, limit int) ([]Article, error)
	GetArticleCount(ctx context.Context, feedID string) (int, error)

	UpsertArticle(ctx context.Context, feedID string, article NewArticle) (bool, error)
	UpdateFlags(ctx context.Context, id string, flags ArticleFlags) (Article, error)
}

type ContentRepository interface {
	GetArticleContent(ctx context.Context, articleID string) (ArticleContent, error)
	CountArticleContents(ctx context.Context) (int, error)

	SaveArticleContent(ctx context.Context, articleID, content string) error
	DeleteAllArticleContents(ctx context.Context) (int64, error)
}
