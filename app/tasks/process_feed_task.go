package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-hoard/app/database"
)

// ProcessFeedTask refreshes a single feed outside the regular cycle.
type ProcessFeedTask struct {
	Task
	orchestrator *Orchestrator
	feedRepo     database.FeedRepository
}

func NewProcessFeedTask(feedID string, orchestrator *Orchestrator, feedRepo database.FeedRepository) *ProcessFeedTask {
	return &ProcessFeedTask{
		Task:         NewTask(TaskTypeProcessFeed, feedID),
		orchestrator: orchestrator,
		feedRepo:     feedRepo,
	}
}

func (t *ProcessFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	f, err := t.feedRepo.GetFeed(ctx, t.FeedID)
	if errors.Is(err, database.ErrNotFound) {
		slog.Debug("Feed no longer exists, skipping", "feed", t.FeedID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load feed: %w", err)
	}

	if !f.Enabled {
		slog.Debug("Feed disabled, skipping", "feed", t.FeedID)
		return nil
	}

	if _, err := t.orchestrator.RefreshFeed(ctx, f); err != nil {
		return fmt.Errorf("failed to refresh feed: %w", err)
	}

	return nil
}
