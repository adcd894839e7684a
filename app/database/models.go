package database

import (
	"time"
)

type Feed struct {
	ID             string     `db:"id" json:"id"` // feed definition name, immutable
	URL            string     `db:"url" json:"url"`
	ScriptPath     string     `db:"script_path" json:"script_path,omitempty"`
	Category       string     `db:"category" json:"category"`
	Type           string     `db:"type" json:"type"`
	Title          string     `db:"title" json:"title"`
	Enabled        bool       `db:"enabled" json:"enabled"`
	TimeoutSeconds int        `db:"timeout_seconds" json:"timeout_seconds"`
	ExtractContent bool       `db:"extract_content" json:"extract_content"`
	MaxItems       int        `db:"max_items" json:"max_items"`
	LastFetchedAt  *time.Time `db:"last_fetched_at" json:"last_fetched_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (f Feed) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

type Article struct {
	ID              string    `db:"id" json:"id"`
	FeedID          string    `db:"feed_id" json:"feed_id"`
	URL             string    `db:"url" json:"url"`
	CanonicalURL    string    `db:"canonical_url" json:"-"`
	Title           string    `db:"title" json:"title"`
	TranslatedTitle *string   `db:"translated_title" json:"translated_title"`
	Content         string    `db:"content" json:"content"`
	PublishedAt     time.Time `db:"published_at" json:"published_at"`
	IsRead          bool      `db:"is_read" json:"is_read"`
	IsFavorite      bool      `db:"is_favorite" json:"is_favorite"`
	IsHidden        bool      `db:"is_hidden" json:"is_hidden"`
	IsReadLater     bool      `db:"is_read_later" json:"is_read_later"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type ArticleContent struct {
	ArticleID string    `db:"article_id" json:"article_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NewArticle is what ingestion hands to the store for one feed item.
type NewArticle struct {
	URL         string
	Title       string
	Content     string
	PublishedAt *time.Time
}

// ArticleFlags carries the user-state flags to change; nil fields stay as they are.
type ArticleFlags struct {
	IsRead      *bool `json:"is_read"`
	IsFavorite  *bool `json:"is_favorite"`
	IsHidden    *bool `json:"is_hidden"`
	IsReadLater *bool `json:"is_read_later"`
}

func (f ArticleFlags) Empty() bool {
	return f.IsRead == nil && f.IsFavorite == nil && f.IsHidden == nil && f.IsReadLater == nil
}

type ArticleFilter struct {
	FeedID        string
	IncludeHidden bool
	UnreadOnly    bool
	Limit         int
	Offset        int
}
