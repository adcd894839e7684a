package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-hoard/app/database"
	"github.com/lysyi3m/rss-hoard/app/tasks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeScheduler struct {
	mu        sync.Mutex
	triggers  int
	refreshed []string
	tracker   *tasks.Tracker
	feedRepo  database.FeedRepository
}

func (s *fakeScheduler) Start()                                {}
func (s *fakeScheduler) Stop()                                 {}
func (s *fakeScheduler) EnqueueTask(tasks.TaskInterface) error { return nil }
func (s *fakeScheduler) ReloadFeedConfig(string)               {}
func (s *fakeScheduler) RemoveFeedConfig(string)               {}

func (s *fakeScheduler) TriggerFetchAll() bool {
	s.mu.Lock()
	s.triggers++
	s.mu.Unlock()
	return s.tracker.MarkRunning()
}

func (s *fakeScheduler) RefreshFeed(feedID string) error {
	if _, err := s.feedRepo.GetFeed(context.Background(), feedID); err != nil {
		return err
	}
	s.mu.Lock()
	s.refreshed = append(s.refreshed, feedID)
	s.mu.Unlock()
	return nil
}

type fakeContent struct {
	content  map[string]string
	err      error
	calls    int
	contents database.ContentRepository
}

func (f *fakeContent) FreshContent(ctx context.Context, articleID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	content, ok := f.content[articleID]
	if !ok {
		return "", tasks.ErrItemNotInFeed
	}
	if err := f.contents.SaveArticleContent(ctx, articleID, content); err != nil {
		return "", err
	}
	return content, nil
}

type testServer struct {
	engine    *gin.Engine
	feeds     *database.FeedRepo
	articles  *database.ArticleRepo
	contents  *database.ContentRepo
	tracker   *tasks.Tracker
	scheduler *fakeScheduler
	fresh     *fakeContent
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	ts := &testServer{
		feeds:    database.NewFeedRepository(db),
		articles: database.NewArticleRepository(db),
		contents: database.NewContentRepository(db),
		tracker:  tasks.NewTracker(),
	}
	ts.scheduler = &fakeScheduler{tracker: ts.tracker, feedRepo: ts.feeds}
	ts.fresh = &fakeContent{content: map[string]string{}, contents: ts.contents}

	handler := NewHandler(nil, ts.feeds, ts.articles, ts.contents, ts.fresh, ts.tracker, ts.scheduler)
	ts.engine = NewServer(handler, apiKey)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func (ts *testServer) seed(t *testing.T) database.Article {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, ts.feeds.UpsertFeed(ctx, database.Feed{ID: "blog", URL: "https://blog.example.com/rss", Enabled: true}))
	_, err := ts.articles.UpsertArticle(ctx, "blog", database.NewArticle{URL: "https://blog.example.com/1", Title: "One", Content: "<p>one</p>"})
	require.NoError(t, err)

	list, err := ts.articles.ListArticles(ctx, database.ArticleFilter{FeedID: "blog"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, "secret")

	w := ts.do(t, http.MethodGet, "/api/progress", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "API key required", decode(t, w)["error"])

	w = ts.do(t, http.MethodGet, "/api/progress", "", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid API key", decode(t, w)["error"])

	w = ts.do(t, http.MethodGet, "/api/progress", "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/progress", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code, "health is public")
}

func TestTriggerRefreshAndProgress(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/api/progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"is_running":false,"current":0,"total":0}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decode(t, w)["started"])

	w = ts.do(t, http.MethodGet, "/api/progress", "")
	assert.Equal(t, true, decode(t, w)["is_running"])

	w = ts.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusAccepted, w.Code, "a trigger during a cycle still succeeds")
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["started"])
	assert.Equal(t, 2, ts.scheduler.triggers)
}

func TestListFeedsAndArticles(t *testing.T) {
	ts := newTestServer(t, "")
	ts.seed(t)

	w := ts.do(t, http.MethodGet, "/api/feeds", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["total"])
	feeds := body["feeds"].([]any)
	first := feeds[0].(map[string]any)
	assert.Equal(t, "blog", first["id"])
	assert.Equal(t, "url", first["source"])
	assert.EqualValues(t, 1, first["article_count"])

	w = ts.do(t, http.MethodGet, "/api/feeds/blog/articles?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	articles := decode(t, w)["articles"].([]any)
	require.Len(t, articles, 1)
	assert.Equal(t, "One", articles[0].(map[string]any)["title"])
	assert.NotContains(t, articles[0].(map[string]any), "canonical_url")

	w = ts.do(t, http.MethodGet, "/api/feeds/blog/articles?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/feeds/missing/articles", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshSingleFeed(t *testing.T) {
	ts := newTestServer(t, "")
	ts.seed(t)

	w := ts.do(t, http.MethodPost, "/api/feeds/blog/refresh", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"blog"}, ts.scheduler.refreshed)

	w = ts.do(t, http.MethodPost, "/api/feeds/missing/refresh", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateArticle(t *testing.T) {
	ts := newTestServer(t, "")
	article := ts.seed(t)

	w := ts.do(t, http.MethodPatch, "/api/articles/"+article.ID, `{"is_read":true,"is_favorite":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["is_read"])
	assert.Equal(t, true, body["is_favorite"])
	assert.Equal(t, false, body["is_hidden"])

	w = ts.do(t, http.MethodPatch, "/api/articles/"+article.ID, `{"is_read":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/articles/nope", `{"is_read":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetArticleContent(t *testing.T) {
	ts := newTestServer(t, "")
	article := ts.seed(t)
	ts.fresh.content[article.ID] = "<p>fresh</p>"

	// nothing cached yet, so the feed is consulted
	w := ts.do(t, http.MethodGet, "/api/articles/"+article.ID+"/content", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"article_id":"`+article.ID+`","content":"<p>fresh</p>","fresh":true}`, w.Body.String())
	assert.Equal(t, 1, ts.fresh.calls)

	w = ts.do(t, http.MethodGet, "/api/articles/"+article.ID+"/content", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["fresh"])
	assert.Equal(t, 1, ts.fresh.calls)

	w = ts.do(t, http.MethodGet, "/api/articles/"+article.ID+"/content?fresh=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, ts.fresh.calls)

	delete(ts.fresh.content, article.ID)
	w = ts.do(t, http.MethodGet, "/api/articles/"+article.ID+"/content?fresh=true", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	ts.fresh.err = errors.New("upstream exploded")
	w = ts.do(t, http.MethodGet, "/api/articles/"+article.ID+"/content?fresh=true", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "upstream exploded", decode(t, w)["error"])
}

func TestContentCacheMaintenance(t *testing.T) {
	ts := newTestServer(t, "")
	article := ts.seed(t)
	require.NoError(t, ts.contents.SaveArticleContent(context.Background(), article.ID, "cached"))

	w := ts.do(t, http.MethodGet, "/api/content/count", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":1}`, w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/content", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":1}`, w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/content", "")
	assert.JSONEq(t, `{"deleted":0}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/content/count", "")
	assert.JSONEq(t, `{"count":0}`, w.Body.String())
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, "key")
	ts.seed(t)

	w := ts.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RSS Hoard", decode(t, w)["service"])

	w = ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["feeds"])

	w = ts.do(t, http.MethodOptions, "/api/feeds", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
