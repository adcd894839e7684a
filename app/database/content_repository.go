package database

import (
	"context"
	"fmt"
	"time"
)

var _ ContentRepository = (*ContentRepo)(nil)

type ContentRepo struct {
	db *DB
}

func NewContentRepository(db *DB) *ContentRepo {
	return &ContentRepo{db: db}
}

func (r *ContentRepo) GetArticleContent(ctx context.Context, articleID string) (ArticleContent, error) {
	const q = `SELECT * FROM article_contents WHERE article_id = ?;`

	var content ArticleContent
	err := r.db.GetContext(ctx, &content, q, articleID)
	if notFound(err) {
		return ArticleContent{}, fmt.Errorf("content for article %q: %w", articleID, ErrNotFound)
	}
	if err != nil {
		return ArticleContent{}, fmt.Errorf("failed to get article content: %w", err)
	}

	return content, nil
}

// SaveArticleContent caches content for an article, replacing any previous copy.
func (r *ContentRepo) SaveArticleContent(ctx context.Context, articleID, content string) error {
	const q = `INSERT INTO article_contents (article_id, content, created_at) VALUES (?, ?, ?)
	ON CONFLICT(article_id) DO UPDATE SET content = excluded.content, created_at = excluded.created_at;`

	_, err := r.db.ExecContext(ctx, q, articleID, content, time.Now().UTC())
	if foreignKeyViolation(err) {
		return fmt.Errorf("article %q: %w", articleID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to save article content: %w", err)
	}

	return nil
}

func (r *ContentRepo) DeleteAllArticleContents(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM article_contents;`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete article contents: %w", err)
	}
	return res.RowsAffected()
}

func (r *ContentRepo) CountArticleContents(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM article_contents;`); err != nil {
		return 0, fmt.Errorf("failed to count article contents: %w", err)
	}
	return count, nil
}
