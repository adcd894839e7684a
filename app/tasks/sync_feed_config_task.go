package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-hoard/app/database"
	"github.com/lysyi3m/rss-hoard/app/feed"
)

// SyncFeedConfigTask mirrors the loaded feed definitions into the feeds table and
// removes feeds whose definition is gone. An empty definition set never prunes.
type SyncFeedConfigTask struct {
	Task
	configs  ConfigSource
	feedRepo database.FeedRepository
}

func NewSyncFeedConfigTask(configs ConfigSource, feedRepo database.FeedRepository) *SyncFeedConfigTask {
	return &SyncFeedConfigTask{
		Task:     NewTask(TaskTypeSyncFeedConfig, ""),
		configs:  configs,
		feedRepo: feedRepo,
	}
}

func (t *SyncFeedConfigTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	configs := t.configs.GetConfigs()
	ids := make([]string, 0, len(configs))

	for _, config := range configs {
		if err := t.feedRepo.UpsertFeed(ctx, feedFromConfig(config)); err != nil {
			return fmt.Errorf("failed to sync feed %s: %w", config.Name, err)
		}
		ids = append(ids, config.Name)
	}

	var removed int64
	if len(ids) == 0 {
		slog.Warn("No feed definitions loaded, stored feeds kept")
	} else {
		var err error
		removed, err = t.feedRepo.DeleteFeedsNotIn(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to remove stale feeds: %w", err)
		}
	}

	slog.Info("Task completed",
		"type", t.Type,
		"duration", t.Elapsed(),
		"synced", len(ids),
		"removed", removed)

	return nil
}

func feedFromConfig(config *feed.Config) database.Feed {
	return database.Feed{
		ID:             config.Name,
		URL:            config.URL,
		ScriptPath:     config.Script,
		Category:       config.Category,
		Type:           config.Type,
		Enabled:        config.Settings.IsEnabled(),
		TimeoutSeconds: config.Settings.Timeout,
		ExtractContent: config.Settings.ExtractContent,
		MaxItems:       config.Settings.MaxItems,
	}
}
