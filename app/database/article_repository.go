package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/lysyi3m/rss-hoard/app/feed"
)

var _ ArticleRepository = (*ArticleRepo)(nil)

type ArticleRepo struct {
	db *DB
}

func NewArticleRepository(db *DB) *ArticleRepo {
	return &ArticleRepo{db: db}
}

func (r *ArticleRepo) GetArticleByID(ctx context.Context, id string) (Article, error) {
	const q = `SELECT * FROM articles WHERE id = ?;`

	var article Article
	err := r.db.GetContext(ctx, &article, q, id)
	if notFound(err) {
		return Article{}, fmt.Errorf("article %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Article{}, fmt.Errorf("failed to get article: %w", err)
	}

	return article, nil
}

// ArticleExistsForURL reports whether the feed already holds an article whose link
// identifies the same resource as url.
func (r *ArticleRepo) ArticleExistsForURL(ctx context.Context, feedID, url string) (bool, error) {
	canonical := feed.CanonicalURL(url)
	if canonical == "" {
		return false, nil
	}

	const q = `SELECT EXISTS(SELECT 1 FROM articles WHERE feed_id = ? AND canonical_url = ?);`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, feedID, canonical); err != nil {
		return false, fmt.Errorf("failed to check article: %w", err)
	}

	return exists, nil
}

// UpsertArticle stores a new article unless the feed already has one for the same
// canonical URL; existing rows are never touched. It reports whether a row was created.
func (r *ArticleRepo) UpsertArticle(ctx context.Context, feedID string, article NewArticle) (bool, error) {
	canonical := feed.CanonicalURL(article.URL)
	if canonical == "" {
		return false, fmt.Errorf("article has no URL")
	}

	now := time.Now().UTC()
	publishedAt := now
	if article.PublishedAt != nil && !article.PublishedAt.IsZero() {
		publishedAt = article.PublishedAt.UTC()
	}

	row := Article{
		ID:           uuid.NewString(),
		FeedID:       feedID,
		URL:          article.URL,
		CanonicalURL: canonical,
		Title:        article.Title,
		Content:      article.Content,
		PublishedAt:  publishedAt.Truncate(time.Second),
		CreatedAt:    now,
	}

	const q = `INSERT INTO articles (id, feed_id, url, canonical_url, title, content, published_at, created_at)
	VALUES (:id, :feed_id, :url, :canonical_url, :title, :content, :published_at, :created_at)
	ON CONFLICT(feed_id, canonical_url) DO NOTHING;`

	res, err := r.db.NamedExecContext(ctx, q, row)
	if foreignKeyViolation(err) {
		return false, fmt.Errorf("feed %q: %w", feedID, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert article: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return n > 0, nil
}

func (r *ArticleRepo) ListArticles(ctx context.Context, filter ArticleFilter) ([]Article, error) {
	q := sq.Select("*").From("articles").OrderBy("published_at DESC", "id")
	if filter.FeedID != "" {
		q = q.Where(sq.Eq{"feed_id": filter.FeedID})
	}
	if !filter.IncludeHidden {
		q = q.Where(sq.Eq{"is_hidden": false})
	}
	if filter.UnreadOnly {
		q = q.Where(sq.Eq{"is_read": false})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	articles := []Article{}
	if err := r.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepo) ListArticlesWithoutContent(ctx context.Context, feedID string, limit int) ([]Article, error) {
	const q = `SELECT a.* FROM articles a
	LEFT JOIN article_contents c ON c.article_id = a.id
	WHERE a.feed_id = ? AND c.article_id IS NULL
	ORDER BY a.published_at DESC
	LIMIT ?;`

	articles := []Article{}
	if err := r.db.SelectContext(ctx, &articles, q, feedID, limit); err != nil {
		return nil, fmt.Errorf("failed to list articles without content: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepo) GetArticleCount(ctx context.Context, feedID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM articles WHERE feed_id = ?;`, feedID); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

func (r *ArticleRepo) UpdateFlags(ctx context.Context, id string, flags ArticleFlags) (Article, error) {
	if flags.Empty() {
		return r.GetArticleByID(ctx, id)
	}

	q := sq.Update("articles").Where(sq.Eq{"id": id})
	if flags.IsRead != nil {
		q = q.Set("is_read", *flags.IsRead)
	}
	if flags.IsFavorite != nil {
		q = q.Set("is_favorite", *flags.IsFavorite)
	}
	if flags.IsHidden != nil {
		q = q.Set("is_hidden", *flags.IsHidden)
	}
	if flags.IsReadLater != nil {
		q = q.Set("is_read_later", *flags.IsReadLater)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return Article{}, fmt.Errorf("failed to build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Article{}, fmt.Errorf("failed to update article flags: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Article{}, fmt.Errorf("article %q: %w", id, ErrNotFound)
	}

	return r.GetArticleByID(ctx, id)
}
