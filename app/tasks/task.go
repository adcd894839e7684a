package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

type TaskType string

const (
	TaskTypeExtractContent TaskType = "extract_content"
	TaskTypeProcessFeed    TaskType = "process_feed"
	TaskTypeSyncFeedConfig TaskType = "sync_feed_config"
)

const (
	taskMaxRetries = 3
	taskRetryBase  = time.Second
	taskRetryCap   = 30 * time.Second
)

// TaskInterface is a unit of work the scheduler queues, runs and retries.
type TaskInterface interface {
	Execute(ctx context.Context) error
	Base() *Task
}

// Task is the bookkeeping shared by all queued work. Concrete tasks embed it.
type Task struct {
	ID       string
	Type     TaskType
	FeedID   string
	Attempts int

	startedAt time.Time
	backoff   retry.Backoff
}

func NewTask(taskType TaskType, feedID string) Task {
	return Task{
		ID:     uuid.NewString()[:8],
		Type:   taskType,
		FeedID: feedID,
	}
}

func (t *Task) Base() *Task {
	return t
}

// Start marks the beginning of an attempt.
func (t *Task) Start() {
	t.startedAt = time.Now()
	t.Attempts++
}

// Elapsed is the time spent in the current attempt.
func (t *Task) Elapsed() time.Duration {
	if t.startedAt.IsZero() {
		return 0
	}
	return time.Since(t.startedAt)
}

// NextRetry returns the delay before the next attempt. stop is true once the
// retries are used up. Delays double from one second up to thirty.
func (t *Task) NextRetry() (delay time.Duration, stop bool) {
	if t.backoff == nil {
		t.backoff = retry.WithCappedDuration(taskRetryCap,
			retry.WithMaxRetries(taskMaxRetries, retry.NewExponential(taskRetryBase)))
	}
	return t.backoff.Next()
}

func (t *Task) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", t.ID),
		slog.String("type", string(t.Type)),
		slog.Int("attempt", t.Attempts),
	}
	if t.FeedID != "" {
		attrs = append(attrs, slog.String("feed", t.FeedID))
	}
	return slog.GroupValue(attrs...)
}
