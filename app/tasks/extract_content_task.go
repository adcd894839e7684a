package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-hoard/app/database"
)

// ExtractContentTask caches readable full text for the feed's articles that have none yet.
type ExtractContentTask struct {
	Task
	Feed             database.Feed
	articleRepo      database.ArticleRepository
	contentRepo      database.ContentRepository
	pageFetcher      PageFetcher
	contentExtractor ContentExtractor
}

func NewExtractContentTask(f database.Feed, articleRepo database.ArticleRepository, contentRepo database.ContentRepository,
	pageFetcher PageFetcher, contentExtractor ContentExtractor) *ExtractContentTask {
	return &ExtractContentTask{
		Task:             NewTask(TaskTypeExtractContent, f.ID),
		Feed:             f,
		articleRepo:      articleRepo,
		contentRepo:      contentRepo,
		pageFetcher:      pageFetcher,
		contentExtractor: contentExtractor,
	}
}

func (t *ExtractContentTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.Feed.ExtractContent {
		slog.Debug("Content extraction disabled for feed", "feed", t.FeedID)
		return nil
	}

	limit := t.Feed.MaxItems
	if limit <= 0 {
		limit = 100
	}

	articles, err := t.articleRepo.ListArticlesWithoutContent(ctx, t.FeedID, limit)
	if err != nil {
		return fmt.Errorf("failed to get articles for content extraction: %w", err)
	}

	if len(articles) == 0 {
		slog.Debug("No articles need content extraction", "feed", t.FeedID)
		return nil
	}

	successCount := 0
	errorCount := 0

	for _, article := range articles {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		extractCtx, cancel := context.WithTimeout(ctx, t.timeout())
		err := t.extractContentForArticle(extractCtx, article)
		cancel()

		if err != nil {
			slog.Warn("Failed to extract content for article", "article_id", article.ID, "url", article.URL, "error", err)
			errorCount++
		} else {
			successCount++
		}
	}

	slog.Info("Task completed",
		"type", t.Type,
		"feed", t.FeedID,
		"duration", t.Elapsed(),
		"success", successCount,
		"errors", errorCount)

	return nil
}

func (t *ExtractContentTask) timeout() time.Duration {
	if d := t.Feed.Timeout(); d > 0 {
		return d
	}
	return 30 * time.Second
}

func (t *ExtractContentTask) extractContentForArticle(ctx context.Context, article database.Article) error {
	data, err := t.pageFetcher.Fetch(ctx, article.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch article page: %w", err)
	}

	content, err := t.contentExtractor.Run(data, article.URL)
	if err != nil {
		return fmt.Errorf("failed to extract content: %w", err)
	}

	if err := t.contentRepo.SaveArticleContent(ctx, article.ID, content); err != nil {
		return fmt.Errorf("failed to save extracted content: %w", err)
	}

	return nil
}
