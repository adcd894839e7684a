package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/rss-hoard/app/database"
	"github.com/lysyi3m/rss-hoard/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	configCache      *feed.ConfigCache
	orchestrator     *Orchestrator
	feedRepo         database.FeedRepository
	articleRepo      database.ArticleRepository
	contentRepo      database.ContentRepository
	pageFetcher      PageFetcher
	contentExtractor ContentExtractor
	interval         time.Duration
	workerCount      int
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	taskQueue        chan TaskInterface
}

func NewScheduler(configCache *feed.ConfigCache, orchestrator *Orchestrator, feedRepo database.FeedRepository,
	articleRepo database.ArticleRepository, contentRepo database.ContentRepository, pageFetcher PageFetcher,
	contentExtractor ContentExtractor, interval time.Duration, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		configCache:      configCache,
		orchestrator:     orchestrator,
		feedRepo:         feedRepo,
		articleRepo:      articleRepo,
		contentRepo:      contentRepo,
		pageFetcher:      pageFetcher,
		contentExtractor: contentExtractor,
		interval:         interval,
		workerCount:      max(workerCount, 1),
		ctx:              ctx,
		cancel:           cancel,
		taskQueue:        make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.TriggerFetchAll()
			}
		}
	}()
}

// Stop cancels running work and waits for workers and any in-flight cycle to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// TriggerFetchAll starts a fetch cycle without waiting for it. It reports false
// when a cycle is already in progress.
func (s *Scheduler) TriggerFetchAll() bool {
	s.wg.Add(1)
	started := s.orchestrator.Trigger(s.ctx, func(err error) {
		defer s.wg.Done()
		if err != nil {
			return
		}
		s.enqueueExtractionTasks()
	})

	if !started {
		s.wg.Done()
		slog.Debug("Fetch cycle already running, trigger ignored")
	}

	return started
}

// RefreshFeed queues a refresh of one feed.
func (s *Scheduler) RefreshFeed(feedID string) error {
	if _, err := s.feedRepo.GetFeed(s.ctx, feedID); err != nil {
		return err
	}
	return s.EnqueueTask(NewProcessFeedTask(feedID, s.orchestrator, s.feedRepo))
}

// ReloadFeedConfig re-reads a changed definition file, syncs it to the store and
// queues a refresh of the feed.
func (s *Scheduler) ReloadFeedConfig(feedName string) {
	config, err := s.configCache.LoadConfig(feedName)
	if err != nil {
		slog.Error("Failed to reload feed configuration", "feed", feedName, "error", err)
		return
	}

	s.orchestrator.ForgetFeed(feedName)
	s.executeTask(-1, NewSyncFeedConfigTask(s.configCache, s.feedRepo))

	if !config.Settings.IsEnabled() {
		return
	}
	if err := s.EnqueueTask(NewProcessFeedTask(feedName, s.orchestrator, s.feedRepo)); err != nil {
		slog.Warn("Failed to enqueue ProcessFeedTask", "feed", feedName, "error", err)
	}
}

// RemoveFeedConfig forgets a deleted definition and removes the feed with its articles.
func (s *Scheduler) RemoveFeedConfig(feedName string) {
	s.configCache.Remove(feedName)
	s.orchestrator.ForgetFeed(feedName)

	if err := s.feedRepo.DeleteFeed(s.ctx, feedName); err != nil && !errors.Is(err, database.ErrNotFound) {
		slog.Error("Failed to remove feed", "feed", feedName, "error", err)
		return
	}
	slog.Info("Feed removed", "feed", feedName)
}

func (s *Scheduler) runStartupTasks() {
	feedConfigs := s.configCache.GetConfigs()
	if len(feedConfigs) == 0 {
		slog.Debug("No feed configurations found")
	}

	// feeds must exist in the store before the first cycle lists them
	s.executeTask(-1, NewSyncFeedConfigTask(s.configCache, s.feedRepo))
	s.TriggerFetchAll()
}

func (s *Scheduler) enqueueExtractionTasks() {
	feeds, err := s.feedRepo.ListFeeds(s.ctx)
	if err != nil {
		slog.Warn("Failed to list feeds for content extraction", "error", err)
		return
	}

	for _, f := range feeds {
		if !f.Enabled || !f.ExtractContent {
			continue
		}

		extractTask := NewExtractContentTask(f, s.articleRepo, s.contentRepo, s.pageFetcher, s.contentExtractor)
		if err := s.EnqueueTask(extractTask); err != nil {
			slog.Warn("Failed to enqueue ExtractContentTask", "feed", f.ID, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	meta := task.Base()
	meta.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "task", meta, "error", err)

	if s.ctx.Err() != nil {
		return
	}

	retryDelay, stop := meta.NextRetry()
	if stop {
		slog.Error("Task failed after maximum retries", "task", meta, "last_error", err)
		return
	}

	slog.Warn("Task retry scheduled", "task", meta, "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "task", meta)
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "task", meta, "error", retryErr)
			}
		}
	}()
}
