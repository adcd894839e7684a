package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var _ FeedRepository = (*FeedRepo)(nil)

type FeedRepo struct {
	db *DB
}

func NewFeedRepository(db *DB) *FeedRepo {
	return &FeedRepo{db: db}
}

func (r *FeedRepo) ListFeeds(ctx context.Context) ([]Feed, error) {
	const q = `SELECT * FROM feeds ORDER BY id;`

	feeds := []Feed{}
	if err := r.db.SelectContext(ctx, &feeds, q); err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	return feeds, nil
}

func (r *FeedRepo) GetFeed(ctx context.Context, id string) (Feed, error) {
	const q = `SELECT * FROM feeds WHERE id = ?;`

	var feed Feed
	err := r.db.GetContext(ctx, &feed, q, id)
	if notFound(err) {
		return Feed{}, fmt.Errorf("feed %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Feed{}, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, nil
}

func (r *FeedRepo) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM feeds;`); err != nil {
		return 0, fmt.Errorf("failed to count feeds: %w", err)
	}
	return count, nil
}

// UpsertFeed inserts a feed or refreshes its definition columns. The title and
// last fetch time belong to the fetch path and are left alone on update.
func (r *FeedRepo) UpsertFeed(ctx context.Context, feed Feed) error {
	const q = `INSERT INTO feeds (id, url, script_path, category, type, enabled, timeout_seconds,
		extract_content, max_items, created_at, updated_at)
	VALUES (:id, :url, :script_path, :category, :type, :enabled, :timeout_seconds,
		:extract_content, :max_items, :created_at, :updated_at)
	ON CONFLICT(id) DO UPDATE SET
		url = excluded.url,
		script_path = excluded.script_path,
		category = excluded.category,
		type = excluded.type,
		enabled = excluded.enabled,
		timeout_seconds = excluded.timeout_seconds,
		extract_content = excluded.extract_content,
		max_items = excluded.max_items,
		updated_at = excluded.updated_at;`

	now := time.Now().UTC()
	feed.CreatedAt = now
	feed.UpdatedAt = now

	if _, err := r.db.NamedExecContext(ctx, q, feed); err != nil {
		return fmt.Errorf("failed to upsert feed: %w", err)
	}

	return nil
}

func (r *FeedRepo) MarkFetched(ctx context.Context, id string, title string, fetchedAt time.Time) error {
	q := sq.Update("feeds").
		Set("last_fetched_at", fetchedAt.UTC()).
		Where(sq.Eq{"id": id})
	if title != "" {
		q = q.Set("title", title)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark feed fetched: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("feed %q: %w", id, ErrNotFound)
	}

	return nil
}

// DeleteFeed removes one feed with its articles and cached contents.
func (r *FeedRepo) DeleteFeed(ctx context.Context, id string) error {
	query, args, err := sq.Delete("feeds").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("feed %q: %w", id, ErrNotFound)
	}

	return nil
}

// DeleteFeedsNotIn removes every feed whose id is not listed. Their articles and
// cached contents go with them.
func (r *FeedRepo) DeleteFeedsNotIn(ctx context.Context, ids []string) (int64, error) {
	q := sq.Delete("feeds")
	if len(ids) > 0 {
		q = q.Where(sq.NotEq{"id": ids})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete feeds: %w", err)
	}

	return res.RowsAffected()
}
