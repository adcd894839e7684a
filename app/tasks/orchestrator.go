package tasks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/rss-hoard/app/database"
	"github.com/lysyi3m/rss-hoard/app/feed"
	"github.com/lysyi3m/rss-hoard/app/logger"
)

var (
	ErrCycleRunning  = errors.New("fetch cycle already running")
	ErrItemNotInFeed = errors.New("article no longer present in its feed")
)

const (
	freshFeedCacheSize = 64
	freshFeedCacheTTL  = time.Minute
)

// Orchestrator runs fetch cycles over all enabled feeds and serves on-demand
// content for single articles. Per-feed failures are logged and never abort a cycle.
type Orchestrator struct {
	parser         FeedParser
	feedRepo       database.FeedRepository
	articleRepo    database.ArticleRepository
	contentRepo    database.ContentRepository
	tracker        *Tracker
	workerCount    int
	defaultTimeout time.Duration
	fresh          *expirable.LRU[string, *feed.ParsedFeed]
}

func NewOrchestrator(parser FeedParser, feedRepo database.FeedRepository, articleRepo database.ArticleRepository,
	contentRepo database.ContentRepository, tracker *Tracker, workerCount int, defaultTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		parser:         parser,
		feedRepo:       feedRepo,
		articleRepo:    articleRepo,
		contentRepo:    contentRepo,
		tracker:        tracker,
		workerCount:    max(workerCount, 1),
		defaultTimeout: defaultTimeout,
		fresh:          expirable.NewLRU[string, *feed.ParsedFeed](freshFeedCacheSize, nil, freshFeedCacheTTL),
	}
}

func (o *Orchestrator) Tracker() *Tracker {
	return o.tracker
}

// FetchAll runs one cycle and returns when every feed has been processed. The
// returned error only reports that the cycle could not start or list its feeds.
func (o *Orchestrator) FetchAll(ctx context.Context) error {
	if !o.tracker.MarkRunning() {
		return ErrCycleRunning
	}
	return o.runCycle(ctx)
}

// Trigger starts a cycle in the background. The tracker is marked running before
// Trigger returns, so an immediate status read already sees the cycle. done, when
// set, is called with the cycle result. Trigger reports false if a cycle is running.
func (o *Orchestrator) Trigger(ctx context.Context, done func(error)) bool {
	if !o.tracker.MarkRunning() {
		return false
	}

	go func() {
		err := o.runCycle(ctx)
		if done != nil {
			done(err)
		}
	}()

	return true
}

type cycleStats struct {
	failed  atomic.Int64
	created atomic.Int64
}

func (o *Orchestrator) runCycle(ctx context.Context) error {
	defer o.tracker.MarkIdle()

	start := time.Now()
	ctx = logger.Ctx(ctx, slog.String("cycle", uuid.NewString()[:8]))

	feeds, err := o.feedRepo.ListFeeds(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list feeds", "error", err)
		return fmt.Errorf("failed to list feeds: %w", err)
	}

	enabled := make([]database.Feed, 0, len(feeds))
	for _, f := range feeds {
		if f.Enabled {
			enabled = append(enabled, f)
		}
	}

	o.tracker.MarkProgress(0, len(enabled))
	slog.InfoContext(ctx, "Fetch cycle started", "feeds", len(enabled))

	var stats cycleStats
	var g errgroup.Group
	g.SetLimit(o.workerCount)

	for _, f := range enabled {
		g.Go(func() error {
			defer o.tracker.Advance()

			created, err := o.RefreshFeed(ctx, f)
			stats.created.Add(int64(created))
			if err != nil {
				stats.failed.Add(1)
				slog.WarnContext(ctx, "Feed fetch failed", "feed", f.ID, "source", feed.SourceKindFor(f.URL, f.ScriptPath), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.InfoContext(ctx, "Task completed",
		"type", "FetchAll",
		"duration", time.Since(start),
		"feeds", len(enabled),
		"failed", stats.failed.Load(),
		"new", stats.created.Load())

	return nil
}

// FetchOne fetches and parses a single feed within its timeout.
func (o *Orchestrator) FetchOne(ctx context.Context, f database.Feed) (*feed.ParsedFeed, error) {
	timeout := f.Timeout()
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}
	return o.parser.ParseFeed(ctx, f.URL, f.ScriptPath, timeout)
}

// RefreshFeed fetches one feed and stores the items it has not seen before. It is
// the unit of work of a cycle and also serves manual single-feed refreshes; the two
// may overlap safely since storing an item is insert-if-absent.
func (o *Orchestrator) RefreshFeed(ctx context.Context, f database.Feed) (created int, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Feed processing panicked", "feed", f.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic while processing feed %s: %v", f.ID, r)
		}
	}()

	start := time.Now()
	ctx = logger.Ctx(ctx, slog.String("feed", f.ID))

	parsed, err := o.FetchOne(ctx, f)
	if err != nil {
		return 0, err
	}

	items := parsed.Items
	if f.MaxItems > 0 && len(items) > f.MaxItems {
		items = items[:f.MaxItems]
	}

	duplicates, skipped := 0, 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		isNew, err := o.ingestItem(ctx, f.ID, item)
		switch {
		case err != nil:
			skipped++
			slog.WarnContext(ctx, "Failed to store article", "url", item.Link, "error", err)
		case isNew:
			created++
		default:
			duplicates++
		}
	}

	if err := o.feedRepo.MarkFetched(ctx, f.ID, parsed.Metadata.Title, time.Now()); err != nil {
		slog.WarnContext(ctx, "Failed to record fetch time", "error", err)
	}
	o.ForgetFeed(f.ID)

	slog.InfoContext(ctx, "Task completed",
		"type", "ProcessFeed",
		"duration", time.Since(start),
		"total", len(items),
		"duplicates", duplicates,
		"skipped", skipped,
		"new", created)

	return created, nil
}

// ingestItem stores one item unless the feed already has it. Known items are not
// extracted or sanitized again.
func (o *Orchestrator) ingestItem(ctx context.Context, feedID string, item feed.Item) (bool, error) {
	link := itemLink(item)
	if link == "" {
		return false, fmt.Errorf("item %q has neither link nor guid", item.Title)
	}

	exists, err := o.articleRepo.ArticleExistsForURL(ctx, feedID, link)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	content := feed.CleanHTML(feed.ExtractContent(item))

	return o.articleRepo.UpsertArticle(ctx, feedID, database.NewArticle{
		URL:         link,
		Title:       item.Title,
		Content:     content,
		PublishedAt: item.PublishedAt,
	})
}

func itemLink(item feed.Item) string {
	return strings.TrimSpace(cmp.Or(item.Link, item.GUID))
}

// FreshContent re-reads the article's feed, finds the matching item and returns its
// sanitized content, caching it as the article's content. A memoized parse is only
// used when it holds the article; otherwise the feed is fetched again. Articles or
// feeds that no longer exist yield database.ErrNotFound.
func (o *Orchestrator) FreshContent(ctx context.Context, articleID string) (string, error) {
	article, err := o.articleRepo.GetArticleByID(ctx, articleID)
	if err != nil {
		return "", err
	}

	f, err := o.feedRepo.GetFeed(ctx, article.FeedID)
	if err != nil {
		return "", err
	}

	ctx = logger.Ctx(ctx, slog.String("feed", f.ID), slog.String("article", article.ID))

	if parsed, ok := o.fresh.Get(f.ID); ok {
		if item, found := findItem(parsed, article.URL); found {
			return o.saveFreshContent(ctx, article.ID, item)
		}
	}

	parsed, err := o.FetchOne(ctx, f)
	if err != nil {
		return "", fmt.Errorf("failed to fetch feed: %w", err)
	}
	o.fresh.Add(f.ID, parsed)

	item, found := findItem(parsed, article.URL)
	if !found {
		return "", ErrItemNotInFeed
	}
	return o.saveFreshContent(ctx, article.ID, item)
}

func findItem(parsed *feed.ParsedFeed, articleURL string) (feed.Item, bool) {
	for _, item := range parsed.Items {
		if feed.URLsMatch(itemLink(item), articleURL) {
			return item, true
		}
	}
	return feed.Item{}, false
}

func (o *Orchestrator) saveFreshContent(ctx context.Context, articleID string, item feed.Item) (string, error) {
	content := feed.CleanHTML(feed.ExtractContent(item))
	if err := o.contentRepo.SaveArticleContent(ctx, articleID, content); err != nil {
		return "", fmt.Errorf("failed to cache content: %w", err)
	}

	slog.DebugContext(ctx, "Fresh content loaded", "content_length", len(content))
	return content, nil
}

// ForgetFeed drops the memoized parse of a feed, e.g. after its definition changed.
func (o *Orchestrator) ForgetFeed(feedID string) {
	o.fresh.Remove(feedID)
}
