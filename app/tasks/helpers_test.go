package tasks

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-hoard/app/database"
	"github.com/lysyi3m/rss-hoard/app/feed"
)

type testStore struct {
	feeds    *database.FeedRepo
	articles *database.ArticleRepo
	contents *database.ContentRepo
}

func newTestStore(t *testing.T) testStore {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "hoard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	return testStore{
		feeds:    database.NewFeedRepository(db),
		articles: database.NewArticleRepository(db),
		contents: database.NewContentRepository(db),
	}
}

func (s testStore) addFeed(t *testing.T, id, url string) database.Feed {
	t.Helper()

	f := database.Feed{ID: id, URL: url, Enabled: true, TimeoutSeconds: 5, MaxItems: 100}
	require.NoError(t, s.feeds.UpsertFeed(context.Background(), f))

	stored, err := s.feeds.GetFeed(context.Background(), id)
	require.NoError(t, err)
	return stored
}

func (s testStore) articleCount(t *testing.T, feedID string) int {
	t.Helper()
	count, err := s.articles.GetArticleCount(context.Background(), feedID)
	require.NoError(t, err)
	return count
}

type parseFunc func(ctx context.Context) (*feed.ParsedFeed, error)

// fakeParser serves canned results per source URL and honours the timeout like the
// real adapter does.
type fakeParser struct {
	mu      sync.Mutex
	sources map[string]parseFunc
	calls   map[string]int
}

func newFakeParser() *fakeParser {
	return &fakeParser{sources: map[string]parseFunc{}, calls: map[string]int{}}
}

func (p *fakeParser) set(url string, fn parseFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources[url] = fn
}

func (p *fakeParser) serve(url string, items ...feed.Item) {
	p.set(url, func(context.Context) (*feed.ParsedFeed, error) {
		return &feed.ParsedFeed{Metadata: feed.Metadata{Title: "Title of " + url}, Items: items}, nil
	})
}

func (p *fakeParser) callCount(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[url]
}

func (p *fakeParser) ParseFeed(ctx context.Context, sourceURL, scriptPath string, timeout time.Duration) (*feed.ParsedFeed, error) {
	p.mu.Lock()
	fn, ok := p.sources[sourceURL]
	p.calls[sourceURL]++
	p.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: no fake for %s", feed.ErrHTTPStatus, sourceURL)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// hang blocks until the per-feed timeout fires.
func hang(ctx context.Context) (*feed.ParsedFeed, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %w", feed.ErrTimeout, ctx.Err())
}

func item(link, content string) feed.Item {
	return feed.Item{GUID: link, Title: "Item " + link, Link: link, Content: content}
}
