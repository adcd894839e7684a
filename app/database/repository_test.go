package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	version, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)

	return db
}

func seedFeed(t *testing.T, repo *FeedRepo, id string) {
	t.Helper()
	require.NoError(t, repo.UpsertFeed(context.Background(), Feed{
		ID:             id,
		URL:            "https://example.com/" + id + ".xml",
		Enabled:        true,
		TimeoutSeconds: 30,
		MaxItems:       100,
	}))
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestFeedRepoUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewFeedRepository(openTestDB(t))

	_, err := repo.GetFeed(ctx, "news")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.UpsertFeed(ctx, Feed{
		ID:             "news",
		URL:            "https://example.com/feed.xml",
		Category:       "tech",
		Type:           "rss",
		Enabled:        true,
		TimeoutSeconds: 15,
		MaxItems:       20,
	}))

	feed, err := repo.GetFeed(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/feed.xml", feed.URL)
	assert.Equal(t, "tech", feed.Category)
	assert.Equal(t, 15*time.Second, feed.Timeout())
	assert.True(t, feed.Enabled)
	assert.Nil(t, feed.LastFetchedAt)

	fetchedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkFetched(ctx, "news", "Example News", fetchedAt))

	// a definition change keeps the fetched title and timestamp
	require.NoError(t, repo.UpsertFeed(ctx, Feed{
		ID:             "news",
		ScriptPath:     "news.py",
		Enabled:        false,
		TimeoutSeconds: 30,
		MaxItems:       100,
	}))

	feed, err = repo.GetFeed(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, "", feed.URL)
	assert.Equal(t, "news.py", feed.ScriptPath)
	assert.False(t, feed.Enabled)
	assert.Equal(t, "Example News", feed.Title)
	require.NotNil(t, feed.LastFetchedAt)
	assert.True(t, fetchedAt.Equal(*feed.LastFetchedAt))

	count, err := repo.GetFeedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFeedRepoMarkFetchedMissing(t *testing.T) {
	repo := NewFeedRepository(openTestDB(t))
	err := repo.MarkFetched(context.Background(), "missing", "", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeedRepoDeleteFeedsNotInCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	feeds := NewFeedRepository(db)
	articles := NewArticleRepository(db)
	contents := NewContentRepository(db)

	seedFeed(t, feeds, "keep")
	seedFeed(t, feeds, "drop")

	_, err := articles.UpsertArticle(ctx, "drop", NewArticle{URL: "https://example.com/a", Title: "A"})
	require.NoError(t, err)
	list, err := articles.ListArticles(ctx, ArticleFilter{FeedID: "drop"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, contents.SaveArticleContent(ctx, list[0].ID, "<p>A</p>"))

	deleted, err := feeds.DeleteFeedsNotIn(ctx, []string{"keep"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = articles.GetArticleByID(ctx, list[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := contents.CountArticleContents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	all, err := feeds.ListFeeds(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "keep", all[0].ID)

	deleted, err = feeds.DeleteFeedsNotIn(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestFeedRepoDeleteFeed(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	feeds := NewFeedRepository(db)
	articles := NewArticleRepository(db)

	seedFeed(t, feeds, "keep")
	seedFeed(t, feeds, "drop")
	_, err := articles.UpsertArticle(ctx, "drop", NewArticle{URL: "https://example.com/a", Title: "A"})
	require.NoError(t, err)

	require.NoError(t, feeds.DeleteFeed(ctx, "drop"))

	count, err := articles.GetArticleCount(ctx, "drop")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	all, err := feeds.ListFeeds(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	assert.ErrorIs(t, feeds.DeleteFeed(ctx, "drop"), ErrNotFound)
}

func TestArticleRepoUpsertDeduplicatesByCanonicalURL(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	feeds := NewFeedRepository(db)
	articles := NewArticleRepository(db)
	seedFeed(t, feeds, "blog")
	seedFeed(t, feeds, "other")

	published := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	created, err := articles.UpsertArticle(ctx, "blog", NewArticle{
		URL:         "https://example.com/post/1",
		Title:       "Post",
		Content:     "<p>first</p>",
		PublishedAt: &published,
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = articles.UpsertArticle(ctx, "blog", NewArticle{
		URL:     "http://www.example.com/post/1/?utm_source=rss",
		Title:   "Post (updated)",
		Content: "<p>second</p>",
	})
	require.NoError(t, err)
	assert.False(t, created)

	// same resource in another feed is a separate article
	created, err = articles.UpsertArticle(ctx, "other", NewArticle{URL: "https://example.com/post/1"})
	require.NoError(t, err)
	assert.True(t, created)

	list, err := articles.ListArticles(ctx, ArticleFilter{FeedID: "blog"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Post", list[0].Title)
	assert.Equal(t, "<p>first</p>", list[0].Content)
	assert.True(t, published.Equal(list[0].PublishedAt))
	assert.Nil(t, list[0].TranslatedTitle)

	exists, err := articles.ArticleExistsForURL(ctx, "blog", "https://example.com/post/1#comments")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = articles.ArticleExistsForURL(ctx, "blog", "https://example.com/post/2")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = articles.ArticleExistsForURL(ctx, "blog", "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestArticleRepoUpsertUnknownFeed(t *testing.T) {
	articles := NewArticleRepository(openTestDB(t))
	_, err := articles.UpsertArticle(context.Background(), "missing", NewArticle{URL: "https://example.com/a"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArticleRepoUpsertRequiresURL(t *testing.T) {
	db := openTestDB(t)
	seedFeed(t, NewFeedRepository(db), "blog")
	_, err := NewArticleRepository(db).UpsertArticle(context.Background(), "blog", NewArticle{Title: "no link"})
	assert.Error(t, err)
}

func TestArticleRepoConcurrentUpsertCreatesOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedFeed(t, NewFeedRepository(db), "blog")
	articles := NewArticleRepository(db)

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := articles.UpsertArticle(ctx, "blog", NewArticle{URL: "https://example.com/same"})
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	count, err := articles.GetArticleCount(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestArticleRepoUpdateFlags(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedFeed(t, NewFeedRepository(db), "blog")
	articles := NewArticleRepository(db)

	_, err := articles.UpsertArticle(ctx, "blog", NewArticle{URL: "https://example.com/a", Content: "body"})
	require.NoError(t, err)
	list, err := articles.ListArticles(ctx, ArticleFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].ID

	yes := true
	updated, err := articles.UpdateFlags(ctx, id, ArticleFlags{IsRead: &yes, IsHidden: &yes})
	require.NoError(t, err)
	assert.True(t, updated.IsRead)
	assert.True(t, updated.IsHidden)
	assert.False(t, updated.IsFavorite)
	assert.Equal(t, "body", updated.Content)

	visible, err := articles.ListArticles(ctx, ArticleFilter{FeedID: "blog"})
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := articles.ListArticles(ctx, ArticleFilter{FeedID: "blog", IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	unread, err := articles.ListArticles(ctx, ArticleFilter{IncludeHidden: true, UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)

	_, err = articles.UpdateFlags(ctx, "missing", ArticleFlags{IsRead: &yes})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArticleRepoListWithoutContentAndPaging(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedFeed(t, NewFeedRepository(db), "blog")
	articles := NewArticleRepository(db)
	contents := NewContentRepository(db)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, path := range []string{"a", "b", "c"} {
		published := base.Add(time.Duration(i) * time.Hour)
		_, err := articles.UpsertArticle(ctx, "blog", NewArticle{URL: "https://example.com/" + path, Title: path, PublishedAt: &published})
		require.NoError(t, err)
	}

	list, err := articles.ListArticles(ctx, ArticleFilter{FeedID: "blog"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{list[0].Title, list[1].Title, list[2].Title})

	page, err := articles.ListArticles(ctx, ArticleFilter{FeedID: "blog", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].Title)

	require.NoError(t, contents.SaveArticleContent(ctx, list[0].ID, "<p>c</p>"))

	pending, err := articles.ListArticlesWithoutContent(ctx, "blog", 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].Title)
	assert.Equal(t, "a", pending[1].Title)
}

func TestContentRepoLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedFeed(t, NewFeedRepository(db), "blog")
	articles := NewArticleRepository(db)
	contents := NewContentRepository(db)

	for _, path := range []string{"a", "b"} {
		_, err := articles.UpsertArticle(ctx, "blog", NewArticle{URL: "https://example.com/" + path})
		require.NoError(t, err)
	}
	list, err := articles.ListArticles(ctx, ArticleFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, err = contents.GetArticleContent(ctx, list[0].ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, contents.SaveArticleContent(ctx, list[0].ID, "old"))
	require.NoError(t, contents.SaveArticleContent(ctx, list[0].ID, "new"))
	require.NoError(t, contents.SaveArticleContent(ctx, list[1].ID, "other"))

	got, err := contents.GetArticleContent(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Content)

	count, err := contents.CountArticleContents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	err = contents.SaveArticleContent(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := contents.DeleteAllArticleContents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err = contents.CountArticleContents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	deleted, err = contents.DeleteAllArticleContents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}
