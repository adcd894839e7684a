package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/rss-hoard/app/feed"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API to manage background task processing.
// Example usage:
//
//	scheduler := NewScheduler(configCache, orchestrator, feedRepo, articleRepo, contentRepo, pageFetcher, contentExtractor, interval, workerCount)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.TriggerFetchAll()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	TriggerFetchAll() bool
	RefreshFeed(feedID string) error
	ReloadFeedConfig(feedName string)
	RemoveFeedConfig(feedName string)
}

// FeedParser turns a feed source into parsed items within a timeout.
type FeedParser interface {
	ParseFeed(ctx context.Context, sourceURL, scriptPath string, timeout time.Duration) (*feed.ParsedFeed, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

type ContentExtractor interface {
	Run(data []byte, pageURL string) (string, error)
}

type ConfigSource interface {
	GetConfigs() []*feed.Config
}
